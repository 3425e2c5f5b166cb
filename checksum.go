package dirshare

import (
	"hash/crc32"
	"io"
	"os"

	"github.com/pkg/errors"
)

// ErrChecksumMismatch indicates received data did not match its advertised
// CRC32. The data is discarded and retransmission is left to the transport.
var ErrChecksumMismatch = errors.New("checksum mismatch")

// InitialCRC seeds an incremental CRC32 computation.
const InitialCRC uint32 = 0xFFFFFFFF

// Checksum returns the CRC32 of data (0xEDB88320 table, init 0xFFFFFFFF,
// final complement). Checksum(nil) == 0.
func Checksum(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}

// ChecksumIncremental folds data into a running CRC32 state. Seed with
// InitialCRC and finish with FinalizeChecksum; how the input is partitioned
// never changes the final digest.
func ChecksumIncremental(data []byte, running uint32) uint32 {
	return ^crc32.Update(^running, crc32.IEEETable, data)
}

// FinalizeChecksum applies the final complement to a running state.
func FinalizeChecksum(running uint32) uint32 {
	return ^running
}

// ChecksumFile computes the CRC32 of a file, streaming it in blocks so large
// files are not held in memory.
func ChecksumFile(path string) (sum uint32, err error) {
	f, errOpen := os.Open(path)
	if errOpen != nil {
		err = errors.Wrap(errOpen, "could not checksum "+path)
		return
	}
	defer f.Close()

	running := InitialCRC
	buf := make([]byte, 64*1024)
	for {
		n, errRead := f.Read(buf)
		if n > 0 {
			running = ChecksumIncremental(buf[:n], running)
		}
		if errRead == io.EOF {
			break
		}
		if errRead != nil {
			err = errors.Wrap(errRead, "could not checksum "+path)
			return
		}
	}
	sum = FinalizeChecksum(running)
	return
}
