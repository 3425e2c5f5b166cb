package dirshare

import (
	"sort"
	"sync"

	log "github.com/cihub/seelog"
	"github.com/pkg/errors"
)

// Monitor polls a directory and diffs it against the state it last reported.
// Changes to suppressed filenames are absorbed: the baseline is updated but
// nothing is reported, so a write applied from a remote peer is not bounced
// straight back out.
type Monitor struct {
	Directory string

	failSilently bool
	previous     map[string]FileMetadata
	suppressor   *Suppressor
	sync.Mutex
}

// NewMonitor returns a monitor over dir sharing suppressor with the inbound
// reconciler. With failSilently a missing directory is tolerated quietly,
// for pre-start or torn-down directories.
func NewMonitor(dir string, suppressor *Suppressor, failSilently bool) *Monitor {
	if !exists(dir) && !failSilently {
		log.Errorf("directory does not exist: %s", dir)
	}
	return &Monitor{
		Directory:    dir,
		failSilently: failSilently,
		previous:     make(map[string]FileMetadata),
		suppressor:   suppressor,
	}
}

// Scan lists the directory, computes metadata for every file and returns the
// names created, modified and deleted since the previous scan. Two scans with
// no intervening change return empty sets. Suppressed candidates update the
// baseline silently and never appear in the output.
func (m *Monitor) Scan() (created, modified, deleted []string, err error) {
	m.Lock()
	defer m.Unlock()

	names, errList := ListDir(m.Directory)
	if errList != nil {
		err = errors.Wrap(errList, "scan failed")
		if !m.failSilently {
			log.Error(err)
		}
		return
	}

	current := make(map[string]FileMetadata, len(names))
	for _, name := range names {
		meta, errMeta := fileMetadata(m.Directory, name)
		if errMeta != nil {
			// raced with a writer or the file vanished, next scan gets it
			continue
		}
		current[name] = meta
	}

	created = []string{}
	modified = []string{}
	deleted = []string{}
	for name, meta := range current {
		prev, ok := m.previous[name]
		if ok && prev == meta {
			continue
		}
		if m.suppressor.IsSuppressed(name) {
			log.Debugf("absorbing suppressed change to '%s' (remote update in progress)", name)
			continue
		}
		if ok {
			modified = append(modified, name)
		} else {
			created = append(created, name)
		}
	}
	for name := range m.previous {
		if _, ok := current[name]; ok {
			continue
		}
		if m.suppressor.IsSuppressed(name) {
			log.Debugf("absorbing suppressed delete of '%s'", name)
			continue
		}
		deleted = append(deleted, name)
	}

	// The baseline records every real transition, suppressed or not,
	// otherwise the next scan would rediscover stale diffs.
	m.previous = current

	sort.Strings(created)
	sort.Strings(modified)
	sort.Strings(deleted)
	return
}

// AllFiles returns metadata for every file currently in the directory, used
// for the startup snapshot.
func (m *Monitor) AllFiles() (files []FileMetadata) {
	m.Lock()
	defer m.Unlock()

	names, err := ListDir(m.Directory)
	if err != nil {
		if !m.failSilently {
			log.Error(err)
		}
		return
	}
	for _, name := range names {
		meta, errMeta := fileMetadata(m.Directory, name)
		if errMeta != nil {
			continue
		}
		files = append(files, meta)
	}
	return
}

// Metadata returns the current metadata for one file.
func (m *Monitor) Metadata(filename string) (meta FileMetadata, err error) {
	if !ValidFilename(filename) {
		err = errors.Wrapf(ErrInvalidFilename, "'%s'", filename)
		return
	}
	meta, err = fileMetadata(m.Directory, filename)
	return
}
