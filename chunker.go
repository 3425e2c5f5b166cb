package dirshare

import (
	"sync"
	"time"

	log "github.com/cihub/seelog"
	"github.com/pkg/errors"
)

const (
	// ChunkThreshold is the file size at and above which content is
	// transferred as a chunk series instead of a single message.
	ChunkThreshold = 10 * 1024 * 1024
	// ChunkSize is the payload size of each chunk except possibly the last.
	ChunkSize = 1024 * 1024
)

// NeedsChunking reports whether a file of the given size is sent chunked.
func NeedsChunking(size uint64) bool {
	return size >= ChunkThreshold
}

// ChunkCount returns ceil(size / ChunkSize).
func ChunkCount(size uint64) uint32 {
	return uint32((size + ChunkSize - 1) / ChunkSize)
}

// SplitFile cuts data into a chunk series. Every chunk repeats the file-level
// metadata and carries a CRC32 over just its own bytes. The chunks alias
// data, so the caller must not mutate it while the series is in flight.
// If data does not match meta.Size (the file changed between stat and read)
// no chunks are produced; the next scan will pick up the new state.
func SplitFile(meta FileMetadata, data []byte) (chunks []FileChunk) {
	if uint64(len(data)) != meta.Size {
		log.Warnf("'%s' is %d bytes but its metadata says %d, not splitting",
			meta.Filename, len(data), meta.Size)
		return
	}
	total := ChunkCount(meta.Size)
	chunks = make([]FileChunk, 0, total)
	for id := uint32(0); id < total; id++ {
		offset := uint64(id) * ChunkSize
		end := offset + ChunkSize
		if end > meta.Size {
			end = meta.Size
		}
		piece := data[offset:end]
		chunks = append(chunks, FileChunk{
			Filename:      meta.Filename,
			ChunkID:       id,
			TotalChunks:   total,
			FileSize:      meta.Size,
			FileChecksum:  meta.Checksum,
			ChunkChecksum: Checksum(piece),
			Timestamp:     meta.Modified,
			Data:          piece,
		})
	}
	return
}

type assembly struct {
	totalChunks  uint32
	fileSize     uint64
	fileChecksum uint32
	timestamp    Timestamp
	received     map[uint32]struct{}
	data         []byte
	lastChunk    time.Time
}

func (a *assembly) complete() bool {
	return uint32(len(a.received)) == a.totalChunks
}

// Assembler reassembles inbound chunk series, one in-progress buffer per
// filename. Chunks may arrive in any order, duplicated or corrupted; a chunk
// failing its checksum is dropped and awaits retransmission.
type Assembler struct {
	inProgress map[string]*assembly
	sync.Mutex
}

func NewAssembler() *Assembler {
	return &Assembler{inProgress: make(map[string]*assembly)}
}

// Add feeds one received chunk into its file's buffer. Once the final chunk
// lands and the whole-file checksum verifies, the reassembled content is
// returned; on whole-file mismatch the assembly is discarded and an
// ErrChecksumMismatch surfaces so a corrupt file is never written to disk.
func (a *Assembler) Add(chunk FileChunk) (content *FileContent, err error) {
	if Checksum(chunk.Data) != chunk.ChunkChecksum {
		log.Errorf("chunk checksum mismatch for '%s' chunk %d, dropping",
			chunk.Filename, chunk.ChunkID)
		return
	}

	a.Lock()
	defer a.Unlock()

	asm, ok := a.inProgress[chunk.Filename]
	if !ok {
		asm = &assembly{
			totalChunks:  chunk.TotalChunks,
			fileSize:     chunk.FileSize,
			fileChecksum: chunk.FileChecksum,
			timestamp:    chunk.Timestamp,
			received:     make(map[uint32]struct{}),
			data:         make([]byte, chunk.FileSize),
		}
		a.inProgress[chunk.Filename] = asm
		log.Infof("starting reassembly of '%s' (%d bytes, %d chunks)",
			chunk.Filename, chunk.FileSize, chunk.TotalChunks)
	}

	if chunk.TotalChunks != asm.totalChunks ||
		chunk.FileSize != asm.fileSize ||
		chunk.FileChecksum != asm.fileChecksum {
		err = errors.Errorf("inconsistent metadata for '%s' chunk %d",
			chunk.Filename, chunk.ChunkID)
		return
	}

	offset := uint64(chunk.ChunkID) * ChunkSize
	if offset+uint64(len(chunk.Data)) > asm.fileSize {
		err = errors.Errorf("chunk %d exceeds file size for '%s'",
			chunk.ChunkID, chunk.Filename)
		return
	}
	copy(asm.data[offset:], chunk.Data)
	asm.received[chunk.ChunkID] = struct{}{}
	asm.lastChunk = time.Now()
	log.Debugf("reassembly progress for '%s': %d/%d chunks",
		chunk.Filename, len(asm.received), asm.totalChunks)

	if !asm.complete() {
		return
	}

	delete(a.inProgress, chunk.Filename)
	if Checksum(asm.data) != asm.fileChecksum {
		err = errors.Wrapf(ErrChecksumMismatch, "reassembled '%s'", chunk.Filename)
		return
	}
	content = &FileContent{
		Filename:  chunk.Filename,
		Size:      asm.fileSize,
		Checksum:  asm.fileChecksum,
		Timestamp: asm.timestamp,
		Data:      asm.data,
	}
	return
}

// InProgress reports whether a reassembly buffer exists for filename.
func (a *Assembler) InProgress(filename string) bool {
	a.Lock()
	defer a.Unlock()
	_, ok := a.inProgress[filename]
	return ok
}

// Pending returns the number of in-progress reassemblies.
func (a *Assembler) Pending() int {
	a.Lock()
	defer a.Unlock()
	return len(a.inProgress)
}

// Sweep drops assemblies that have not received a chunk within maxIdle,
// abandoning transfers whose sender disappeared mid-stream.
func (a *Assembler) Sweep(maxIdle time.Duration) (evicted []string) {
	a.Lock()
	defer a.Unlock()
	for filename, asm := range a.inProgress {
		if time.Since(asm.lastChunk) <= maxIdle {
			continue
		}
		delete(a.inProgress, filename)
		evicted = append(evicted, filename)
		log.Warnf("abandoning stalled transfer of '%s' (%d/%d chunks received)",
			filename, len(asm.received), asm.totalChunks)
	}
	return
}
