package dirshare

import (
	"sync"

	log "github.com/cihub/seelog"
)

// Suppressor tracks filenames currently being written because of a remote
// event, so the monitor does not detect the write and republish it. Suppress
// and Resume are idempotent; every code path that suppresses a name must
// resume it, including failure paths.
type Suppressor struct {
	paths map[string]struct{}
	sync.Mutex
}

func NewSuppressor() *Suppressor {
	return &Suppressor{paths: make(map[string]struct{})}
}

// Suppress exempts filename from outbound change notifications.
func (s *Suppressor) Suppress(filename string) {
	s.Lock()
	defer s.Unlock()
	s.paths[filename] = struct{}{}
	log.Debugf("suppressing notifications for '%s'", filename)
}

// Resume lifts the exemption. Resuming a name that is not suppressed is a
// no-op.
func (s *Suppressor) Resume(filename string) {
	s.Lock()
	defer s.Unlock()
	if _, ok := s.paths[filename]; !ok {
		return
	}
	delete(s.paths, filename)
	log.Debugf("resumed notifications for '%s'", filename)
}

// IsSuppressed reports whether filename is currently exempt.
func (s *Suppressor) IsSuppressed(filename string) bool {
	s.Lock()
	defer s.Unlock()
	_, ok := s.paths[filename]
	return ok
}

// Count returns the number of suppressed filenames.
func (s *Suppressor) Count() int {
	s.Lock()
	defer s.Unlock()
	return len(s.paths)
}

// Clear drops every entry.
func (s *Suppressor) Clear() {
	s.Lock()
	defer s.Unlock()
	s.paths = make(map[string]struct{})
}
