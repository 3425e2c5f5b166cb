package dirshare

import (
	"bytes"
	"path/filepath"
	"sync"
	"testing"
)

// fakePublisher records everything published instead of sending it anywhere.
type fakePublisher struct {
	events    []ChangeEvent
	contents  []FileContent
	chunks    []FileChunk
	snapshots []DirectorySnapshot
	sync.Mutex
}

func (p *fakePublisher) PublishEvent(event ChangeEvent) error {
	p.Lock()
	defer p.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *fakePublisher) PublishContent(content FileContent) error {
	p.Lock()
	defer p.Unlock()
	p.contents = append(p.contents, content)
	return nil
}

func (p *fakePublisher) PublishChunk(chunk FileChunk) error {
	p.Lock()
	defer p.Unlock()
	p.chunks = append(p.chunks, chunk)
	return nil
}

func (p *fakePublisher) PublishSnapshot(snapshot DirectorySnapshot) error {
	p.Lock()
	defer p.Unlock()
	p.snapshots = append(p.snapshots, snapshot)
	return nil
}

func newTestDirShare(t *testing.T) (ds *DirShare, pub *fakePublisher) {
	t.Helper()
	ds, err := New(t.TempDir(), "0", "test")
	if err != nil {
		t.Fatal(err)
	}
	pub = &fakePublisher{}
	ds.publisher = pub
	return
}

func TestScanOncePublishesContent(t *testing.T) {
	ds, pub := newTestDirShare(t)
	data := []byte("hello peers")
	if err := WriteFile(filepath.Join(ds.Directory, "a.txt"), data); err != nil {
		t.Fatal(err)
	}

	if err := ds.scanOnce(); err != nil {
		t.Fatal(err)
	}

	if len(pub.events) != 1 {
		t.Fatalf("published %d events, want 1", len(pub.events))
	}
	event := pub.events[0]
	if event.Op != OpCreate || event.Filename != "a.txt" {
		t.Errorf("event = %+v", event)
	}
	if event.Metadata.Checksum != Checksum(data) {
		t.Error("event metadata checksum wrong")
	}
	if len(pub.contents) != 1 {
		t.Fatalf("published %d contents, want 1", len(pub.contents))
	}
	if !bytes.Equal(pub.contents[0].Data, data) {
		t.Error("published content differs from file")
	}
	if len(pub.chunks) != 0 {
		t.Error("small file was chunked")
	}

	// quiescent scan publishes nothing more
	if err := ds.scanOnce(); err != nil {
		t.Fatal(err)
	}
	if len(pub.events) != 1 {
		t.Errorf("quiescent scan republished: %d events", len(pub.events))
	}
}

func TestScanOncePublishesChunks(t *testing.T) {
	ds, pub := newTestDirShare(t)
	data := make([]byte, int(ChunkThreshold)+100)
	for i := range data {
		data[i] = byte(i)
	}
	if err := WriteFile(filepath.Join(ds.Directory, "big.bin"), data); err != nil {
		t.Fatal(err)
	}

	if err := ds.scanOnce(); err != nil {
		t.Fatal(err)
	}

	if len(pub.contents) != 0 {
		t.Error("large file sent as a single content message")
	}
	want := int(ChunkCount(uint64(len(data))))
	if len(pub.chunks) != want {
		t.Fatalf("published %d chunks, want %d", len(pub.chunks), want)
	}
	for _, chunk := range pub.chunks {
		if chunk.FileChecksum != Checksum(data) {
			t.Error("chunk carries wrong file checksum")
			break
		}
	}
}

func TestScanOncePublishesDelete(t *testing.T) {
	ds, pub := newTestDirShare(t)
	path := filepath.Join(ds.Directory, "a.txt")
	WriteFile(path, []byte("soon gone"))
	if err := ds.scanOnce(); err != nil {
		t.Fatal(err)
	}

	DeleteFile(path)
	if err := ds.scanOnce(); err != nil {
		t.Fatal(err)
	}

	last := pub.events[len(pub.events)-1]
	if last.Op != OpDelete || last.Filename != "a.txt" {
		t.Errorf("last event = %+v, want DELETE a.txt", last)
	}
}

func TestSuppressedFileNotPublished(t *testing.T) {
	ds, pub := newTestDirShare(t)

	ds.suppressor.Suppress("remote.txt")
	WriteFile(filepath.Join(ds.Directory, "remote.txt"), []byte("from a peer"))
	if err := ds.scanOnce(); err != nil {
		t.Fatal(err)
	}
	ds.suppressor.Resume("remote.txt")

	if len(pub.events) != 0 {
		t.Errorf("suppressed file was published: %+v", pub.events)
	}
}

func TestHandleSnapshotRepublishesMissing(t *testing.T) {
	ds, pub := newTestDirShare(t)
	WriteFile(filepath.Join(ds.Directory, "have.txt"), []byte("only here"))

	ds.handleSnapshot(DirectorySnapshot{
		ParticipantID: "someone-else",
		Files:         nil, // peer has nothing
	})

	if len(pub.events) != 1 || pub.events[0].Filename != "have.txt" {
		t.Fatalf("events = %+v, want create for have.txt", pub.events)
	}
	if pub.events[0].Op != OpCreate {
		t.Errorf("op = %v, want CREATE", pub.events[0].Op)
	}
	if len(pub.contents) != 1 {
		t.Error("snapshot response did not include content")
	}
}

func TestHandleSnapshotIgnoresOwn(t *testing.T) {
	ds, pub := newTestDirShare(t)
	WriteFile(filepath.Join(ds.Directory, "have.txt"), []byte("only here"))

	ds.handleSnapshot(DirectorySnapshot{ParticipantID: ds.id})
	if len(pub.events) != 0 {
		t.Error("responded to own snapshot")
	}
}

func TestHandleSnapshotSkipsNewerRemote(t *testing.T) {
	ds, pub := newTestDirShare(t)
	path := filepath.Join(ds.Directory, "shared.txt")
	WriteFile(path, []byte("old here"))
	SetMtime(path, 1000, 0)

	ds.handleSnapshot(DirectorySnapshot{
		ParticipantID: "someone-else",
		Files: []FileMetadata{{
			Filename: "shared.txt",
			Modified: Timestamp{Sec: 2000},
		}},
	})
	if len(pub.events) != 0 {
		t.Errorf("republished a file the peer already has newer: %+v", pub.events)
	}
}
