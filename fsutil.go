package dirshare

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// ErrInvalidFilename indicates a name that could escape the shared directory.
// Names are rejected before any filesystem access.
var ErrInvalidFilename = errors.New("invalid filename")

// ValidFilename reports whether a peer-supplied name is safe to touch:
// non-empty, no path separators, no ".." segments, no absolute-path or
// drive-letter prefix. Every name coming off the wire must pass through here
// before it reaches the filesystem.
func ValidFilename(name string) bool {
	if name == "" {
		return false
	}
	if strings.ContainsAny(name, "/\\") {
		return false
	}
	// separators are already rejected, so ".." can only escape as a whole name
	if name == ".." {
		return false
	}
	if len(name) >= 2 && name[1] == ':' {
		return false
	}
	return true
}

// ReadFile reads a whole file.
func ReadFile(path string) (data []byte, err error) {
	data, err = ioutil.ReadFile(path)
	if err != nil {
		err = errors.Wrap(err, "could not read "+path)
	}
	return
}

// WriteFile replaces the file's content, creating it if absent.
func WriteFile(path string, data []byte) (err error) {
	err = ioutil.WriteFile(path, data, 0666)
	if err != nil {
		err = errors.Wrap(err, "could not write "+path)
	}
	return
}

// GetMtime returns the file's modification time as seconds + nanoseconds.
func GetMtime(path string) (sec uint64, nsec uint32, err error) {
	stat, errStat := os.Stat(path)
	if errStat != nil {
		err = errors.Wrap(errStat, "could not stat "+path)
		return
	}
	mod := stat.ModTime()
	sec = uint64(mod.Unix())
	nsec = uint32(mod.Nanosecond())
	return
}

// SetMtime sets the file's modification time without touching its content.
// Sub-second precision is best effort; only second granularity survives every
// filesystem.
func SetMtime(path string, sec uint64, nsec uint32) (err error) {
	t := time.Unix(int64(sec), int64(nsec))
	err = os.Chtimes(path, t, t)
	if err != nil {
		err = errors.Wrap(err, "could not set mtime on "+path)
	}
	return
}

// FileExists reports whether path exists and is a regular file.
func FileExists(path string) bool {
	stat, err := os.Stat(path)
	return err == nil && stat.Mode().IsRegular()
}

// DeleteFile removes a file.
func DeleteFile(path string) (err error) {
	err = os.Remove(path)
	if err != nil {
		err = errors.Wrap(err, "could not delete "+path)
	}
	return
}

// ListDir lists the regular files directly inside dir. Subdirectories,
// symlinks and names failing ValidFilename are excluded.
func ListDir(dir string) (files []string, err error) {
	stat, errStat := os.Stat(dir)
	if errStat != nil || !stat.IsDir() {
		err = errors.Errorf("not a directory: %s", dir)
		return
	}
	entries, errRead := ioutil.ReadDir(dir)
	if errRead != nil {
		err = errors.Wrap(errRead, "could not list "+dir)
		return
	}
	files = []string{}
	for _, entry := range entries {
		if !entry.Mode().IsRegular() {
			continue
		}
		if !ValidFilename(entry.Name()) {
			continue
		}
		files = append(files, entry.Name())
	}
	return
}

func fileMetadata(dir, name string) (meta FileMetadata, err error) {
	full := filepath.Join(dir, name)
	stat, errStat := os.Stat(full)
	if errStat != nil {
		err = errors.Wrap(errStat, "could not stat "+full)
		return
	}
	meta.Filename = name
	meta.Size = uint64(stat.Size())
	meta.Modified = Timestamp{
		Sec:  uint64(stat.ModTime().Unix()),
		Nsec: uint32(stat.ModTime().Nanosecond()),
	}
	meta.Checksum, err = ChecksumFile(full)
	return
}
