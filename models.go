package dirshare

// Op is the kind of filesystem change carried by a ChangeEvent.
type Op uint8

const (
	OpCreate Op = iota
	OpModify
	OpDelete
)

func (o Op) String() string {
	switch o {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	}
	return "UNKNOWN"
}

// Timestamp is a file modification time split into seconds and nanoseconds,
// since not every filesystem round-trips full nanosecond precision.
type Timestamp struct {
	Sec  uint64 `json:"s"`
	Nsec uint32 `json:"ns"`
}

// Newer reports whether t is strictly later than other. Seconds compare
// first, nanoseconds break the tie. Equal timestamps are not newer, which is
// what makes the local copy win ties during reconciliation.
func (t Timestamp) Newer(other Timestamp) bool {
	if t.Sec != other.Sec {
		return t.Sec > other.Sec
	}
	return t.Nsec > other.Nsec
}

// FileMetadata is a snapshot of one file at one instant.
type FileMetadata struct {
	Filename string    `json:"f"`
	Size     uint64    `json:"sz"`
	Modified Timestamp `json:"t"`
	Checksum uint32    `json:"c"`
}

// ChangeEvent announces a create/modify/delete to peers. Metadata is zeroed
// for deletes.
type ChangeEvent struct {
	Op        Op           `json:"op"`
	Filename  string       `json:"f"`
	Timestamp Timestamp    `json:"t"`
	Metadata  FileMetadata `json:"m"`
}

// FileContent carries a whole small file in one message.
type FileContent struct {
	Filename  string    `json:"f"`
	Size      uint64    `json:"sz"`
	Checksum  uint32    `json:"c"`
	Timestamp Timestamp `json:"t"`
	Data      []byte    `json:"d"`
}

// FileChunk carries one slice of a large file. Every chunk of a transfer
// repeats the whole-file size and checksum so reassembly can start from any
// chunk.
type FileChunk struct {
	Filename      string    `json:"f"`
	ChunkID       uint32    `json:"id"`
	TotalChunks   uint32    `json:"n"`
	FileSize      uint64    `json:"sz"`
	FileChecksum  uint32    `json:"fc"`
	ChunkChecksum uint32    `json:"cc"`
	Timestamp     Timestamp `json:"t"`
	Data          []byte    `json:"d"`
}

// DirectorySnapshot is published once at startup so peers that joined later
// learn what this participant holds without waiting for edits.
type DirectorySnapshot struct {
	ParticipantID string         `json:"id"`
	Files         []FileMetadata `json:"files"`
	Taken         Timestamp      `json:"t"`
}

type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
