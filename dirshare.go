package dirshare

import (
	"path/filepath"
	"sync"
	"time"

	log "github.com/cihub/seelog"
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
)

const (
	// DefaultPollInterval is how often the directory is rescanned.
	DefaultPollInterval = 2 * time.Second
	// assemblyMaxIdle bounds how long a stalled chunk transfer is kept.
	assemblyMaxIdle = 5 * time.Minute
	// watcherQuiet is the minimum gap between scans triggered by
	// filesystem notifications, so a burst of writes is batched.
	watcherQuiet = 500 * time.Millisecond
)

// Publisher sends outbound messages to peers. The transport implements it;
// tests substitute their own.
type Publisher interface {
	PublishEvent(ChangeEvent) error
	PublishContent(FileContent) error
	PublishChunk(FileChunk) error
	PublishSnapshot(DirectorySnapshot) error
}

// DirShare synchronizes one flat local directory with peers.
type DirShare struct {
	Directory    string
	Passcode     string
	Port         string
	PollInterval time.Duration

	id         string
	suppressor *Suppressor
	monitor    *Monitor
	reconciler *Reconciler
	publisher  Publisher
	transport  *transport
	stop       chan struct{}
	sync.RWMutex
}

// New returns a DirShare watching dir, serving peers on port and discovering
// them with the shared passcode.
func New(dir, port, passcode string) (ds *DirShare, err error) {
	dir = filepath.Clean(dir)
	if !exists(dir) {
		err = errors.Errorf("not a directory: %s", dir)
		return
	}

	ds = new(DirShare)
	ds.Directory = dir
	ds.Port = port
	ds.Passcode = passcode
	ds.PollInterval = DefaultPollInterval
	ds.id = participantID()
	ds.suppressor = NewSuppressor()
	ds.monitor = NewMonitor(dir, ds.suppressor, false)
	ds.reconciler = NewReconciler(dir, ds.suppressor)
	ds.transport = newTransport(ds)
	ds.publisher = ds.transport
	ds.stop = make(chan struct{})
	return
}

// Watch starts the transport and runs the scan loop until Stop is called.
// The loop polls on a fixed interval; filesystem notifications only nudge it
// into an early scan so edits propagate faster.
func (ds *DirShare) Watch() (err error) {
	go ds.transport.watchForPeers()
	go ds.transport.listen()

	ds.publishSnapshot()

	var fsEvents chan fsnotify.Event
	var fsErrors chan error
	watcher, errWatch := fsnotify.NewWatcher()
	if errWatch != nil {
		log.Warnf("filesystem notifications unavailable, polling only: %s", errWatch)
	} else {
		defer watcher.Close()
		watcher.Add(ds.Directory)
		fsEvents = watcher.Events
		fsErrors = watcher.Errors
	}

	ticker := time.NewTicker(ds.PollInterval)
	defer ticker.Stop()

	lastScan := time.Time{}
	lastSweep := time.Now()
	for {
		scanNow := false
		select {
		case <-ds.stop:
			return
		case <-ticker.C:
			scanNow = true
		case event := <-fsEvents:
			log.Debug("event:", event)
			scanNow = time.Since(lastScan) > watcherQuiet
		case errWatcher := <-fsErrors:
			log.Debug("error:", errWatcher)
		}
		if !scanNow {
			continue
		}
		lastScan = time.Now()
		if errScan := ds.scanOnce(); errScan != nil {
			log.Error(errScan)
		}
		if time.Since(lastSweep) > time.Minute {
			lastSweep = time.Now()
			ds.reconciler.SweepAssemblies(assemblyMaxIdle)
		}
	}
}

// Stop ends the Watch loop.
func (ds *DirShare) Stop() {
	close(ds.stop)
}

// scanOnce runs one scan and publishes every non-suppressed change.
func (ds *DirShare) scanOnce() (err error) {
	created, modified, deleted, err := ds.monitor.Scan()
	if err != nil {
		return
	}
	for _, filename := range created {
		ds.publishChange(OpCreate, filename)
	}
	for _, filename := range modified {
		ds.publishChange(OpModify, filename)
	}
	for _, filename := range deleted {
		ds.publishDelete(filename)
	}
	return
}

// publishChange announces a create or modify, then sends the file's bytes as
// a single content message or a chunk series depending on size.
func (ds *DirShare) publishChange(op Op, filename string) {
	meta, err := ds.monitor.Metadata(filename)
	if err != nil {
		log.Warnf("could not read metadata for '%s': %s", filename, err)
		return
	}

	event := ChangeEvent{
		Op:        op,
		Filename:  filename,
		Timestamp: meta.Modified,
		Metadata:  meta,
	}
	if err = ds.publisher.PublishEvent(event); err != nil {
		log.Warn(err)
		return
	}

	data, err := ReadFile(filepath.Join(ds.Directory, filename))
	if err != nil {
		log.Warn(err)
		return
	}

	if NeedsChunking(meta.Size) {
		chunks := SplitFile(meta, data)
		log.Infof("publishing '%s' as %d chunks (%d bytes)", filename, len(chunks), meta.Size)
		for _, chunk := range chunks {
			if errChunk := ds.publisher.PublishChunk(chunk); errChunk != nil {
				log.Warn(errChunk)
				break
			}
		}
	} else {
		content := FileContent{
			Filename:  filename,
			Size:      meta.Size,
			Checksum:  meta.Checksum,
			Timestamp: meta.Modified,
			Data:      data,
		}
		if errContent := ds.publisher.PublishContent(content); errContent != nil {
			log.Warn(errContent)
		}
	}
	log.Infof("published %s for '%s'", op, filename)
}

func (ds *DirShare) publishDelete(filename string) {
	event := ChangeEvent{
		Op:        OpDelete,
		Filename:  filename,
		Timestamp: nowTimestamp(),
	}
	if err := ds.publisher.PublishEvent(event); err != nil {
		log.Warn(err)
		return
	}
	log.Infof("published DELETE for '%s'", filename)
}

// publishSnapshot tells peers everything this participant currently holds.
func (ds *DirShare) publishSnapshot() {
	snapshot := DirectorySnapshot{
		ParticipantID: ds.id,
		Files:         ds.monitor.AllFiles(),
		Taken:         nowTimestamp(),
	}
	if err := ds.publisher.PublishSnapshot(snapshot); err != nil {
		log.Warn(err)
		return
	}
	log.Infof("published snapshot of %d files", len(snapshot.Files))
}

// handleSnapshot answers a peer's snapshot by republishing every local file
// the peer is missing or holds an older copy of. This is how a late joiner
// catches up without waiting for the next edit.
func (ds *DirShare) handleSnapshot(snapshot DirectorySnapshot) {
	if snapshot.ParticipantID == ds.id {
		return
	}
	log.Infof("received snapshot from %s (%d files)", snapshot.ParticipantID, len(snapshot.Files))

	remote := make(map[string]FileMetadata, len(snapshot.Files))
	for _, meta := range snapshot.Files {
		remote[meta.Filename] = meta
	}
	for _, meta := range ds.monitor.AllFiles() {
		theirs, ok := remote[meta.Filename]
		if ok && !meta.Modified.Newer(theirs.Modified) {
			continue
		}
		op := OpModify
		if !ok {
			op = OpCreate
		}
		ds.publishChange(op, meta.Filename)
	}
}
