package dirshare

import (
	"path/filepath"
	"sync"
	"time"

	log "github.com/cihub/seelog"
	"github.com/pkg/errors"
)

// Reconciler applies remote change events to the local directory. Conflicts
// resolve last-write-wins on the event timestamp with the local file winning
// ties, and the shared Suppressor is held around every local write so the
// monitor does not republish what was just received.
type Reconciler struct {
	Directory string

	suppressor *Suppressor
	assembler  *Assembler

	// pending records when each suppressed filename started waiting for
	// its content, so a wait whose content never arrives can be abandoned
	pending map[string]time.Time
	sync.Mutex
}

func NewReconciler(dir string, suppressor *Suppressor) *Reconciler {
	return &Reconciler{
		Directory:  dir,
		suppressor: suppressor,
		assembler:  NewAssembler(),
		pending:    make(map[string]time.Time),
	}
}

// HandleEvent is the transport callback for an arriving ChangeEvent.
func (r *Reconciler) HandleEvent(event ChangeEvent) (err error) {
	if !ValidFilename(event.Filename) {
		err = errors.Wrapf(ErrInvalidFilename, "'%s'", event.Filename)
		log.Error(err)
		return
	}
	log.Infof("received %s event for '%s'", event.Op, event.Filename)

	switch event.Op {
	case OpCreate:
		err = r.handleCreate(event)
	case OpModify:
		err = r.handleModify(event)
	case OpDelete:
		err = r.handleDelete(event)
	default:
		err = errors.Errorf("unknown operation %d for '%s'", event.Op, event.Filename)
	}
	return
}

func (r *Reconciler) handleCreate(event ChangeEvent) (err error) {
	full := filepath.Join(r.Directory, event.Filename)
	if FileExists(full) {
		// collision: the existing local file stays authoritative until a
		// modify or delete with a newer timestamp arrives
		log.Infof("'%s' already exists locally, ignoring create", event.Filename)
		return
	}
	r.expectContent(event)
	return
}

func (r *Reconciler) handleModify(event ChangeEvent) (err error) {
	full := filepath.Join(r.Directory, event.Filename)
	if !FileExists(full) {
		log.Debugf("'%s' does not exist locally, treating modify as create", event.Filename)
		r.expectContent(event)
		return
	}

	local, errStat := localMtime(full)
	if errStat != nil {
		err = errStat
		return
	}
	if !event.Timestamp.Newer(local) {
		log.Infof("local '%s' is newer or same, ignoring modify", event.Filename)
		return
	}
	r.expectContent(event)
	return
}

func (r *Reconciler) handleDelete(event ChangeEvent) (err error) {
	full := filepath.Join(r.Directory, event.Filename)
	if !FileExists(full) {
		return
	}

	local, errStat := localMtime(full)
	if errStat != nil {
		err = errStat
		return
	}
	if !event.Timestamp.Newer(local) {
		log.Infof("local '%s' is newer or same, keeping it", event.Filename)
		return
	}

	r.suppressor.Suppress(event.Filename)
	defer r.suppressor.Resume(event.Filename)
	err = DeleteFile(full)
	if err == nil {
		log.Infof("deleted '%s'", event.Filename)
	}
	return
}

// expectContent suppresses the filename and records the event so the write
// happens when its content (or final chunk) arrives.
func (r *Reconciler) expectContent(event ChangeEvent) {
	r.suppressor.Suppress(event.Filename)
	r.Lock()
	r.pending[event.Filename] = time.Now()
	r.Unlock()
	log.Debugf("waiting for content of '%s'", event.Filename)
}

func (r *Reconciler) clearPending(filename string) {
	r.Lock()
	delete(r.pending, filename)
	r.Unlock()
}

// HandleContent is the transport callback for a whole-file content message.
// A content message with no pending event is itself a valid trigger.
func (r *Reconciler) HandleContent(content FileContent) (err error) {
	if !ValidFilename(content.Filename) {
		err = errors.Wrapf(ErrInvalidFilename, "'%s'", content.Filename)
		log.Error(err)
		return
	}
	return r.apply(content)
}

// HandleChunk is the transport callback for one chunk of a large file. The
// file flows through the same apply path as HandleContent once reassembled.
func (r *Reconciler) HandleChunk(chunk FileChunk) (err error) {
	if !ValidFilename(chunk.Filename) {
		err = errors.Wrapf(ErrInvalidFilename, "'%s'", chunk.Filename)
		log.Error(err)
		return
	}

	content, err := r.assembler.Add(chunk)
	if err != nil {
		// a failed reassembly must not leave the name suppressed forever
		r.clearPending(chunk.Filename)
		r.suppressor.Resume(chunk.Filename)
		log.Error(err)
		return
	}
	if content == nil {
		return
	}
	return r.apply(*content)
}

// SweepAssemblies abandons chunk transfers idle past maxIdle and lifts their
// suppression entries. Waits whose content never arrived at all have no
// assembly to sweep but still hold suppression, so stale pending entries are
// abandoned too; without this a lost content message would absorb every
// future local edit to that name.
func (r *Reconciler) SweepAssemblies(maxIdle time.Duration) {
	for _, filename := range r.assembler.Sweep(maxIdle) {
		r.clearPending(filename)
		r.suppressor.Resume(filename)
	}

	r.Lock()
	var stale []string
	for filename, since := range r.pending {
		if time.Since(since) <= maxIdle {
			continue
		}
		// chunks are still flowing, the assembler's own idle bound governs
		if r.assembler.InProgress(filename) {
			continue
		}
		delete(r.pending, filename)
		stale = append(stale, filename)
	}
	r.Unlock()
	for _, filename := range stale {
		r.suppressor.Resume(filename)
		log.Warnf("abandoning wait for content of '%s'", filename)
	}
}

// apply is the single write path for inbound content. The suppressor is held
// for the duration and always resumed, on failure paths included.
func (r *Reconciler) apply(content FileContent) (err error) {
	filename := content.Filename
	full := filepath.Join(r.Directory, filename)

	r.suppressor.Suppress(filename)
	defer r.suppressor.Resume(filename)
	defer r.clearPending(filename)

	// The content carries the sender's mtime, so the conflict check runs
	// again here: a local write that landed after the event was sent wins.
	if FileExists(full) {
		local, errStat := localMtime(full)
		if errStat != nil {
			err = errStat
			return
		}
		if !content.Timestamp.Newer(local) {
			log.Infof("local '%s' is newer or same, ignoring content", filename)
			return
		}
	}

	if content.Size != uint64(len(content.Data)) {
		err = errors.Errorf("size mismatch for '%s': header %d, payload %d",
			filename, content.Size, len(content.Data))
		return
	}
	if Checksum(content.Data) != content.Checksum {
		err = errors.Wrapf(ErrChecksumMismatch, "content of '%s'", filename)
		return
	}

	if err = WriteFile(full, content.Data); err != nil {
		return
	}
	if errMtime := SetMtime(full, content.Timestamp.Sec, content.Timestamp.Nsec); errMtime != nil {
		// the file itself was written fine
		log.Warnf("could not preserve mtime on '%s': %s", filename, errMtime)
	}
	log.Infof("wrote '%s' (%d bytes, checksum 0x%08X)", filename, content.Size, content.Checksum)
	return
}

func localMtime(full string) (ts Timestamp, err error) {
	sec, nsec, errStat := GetMtime(full)
	if errStat != nil {
		err = errStat
		return
	}
	ts = Timestamp{Sec: sec, Nsec: nsec}
	return
}
