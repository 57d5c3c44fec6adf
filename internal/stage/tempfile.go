package stage

import (
	"os"
)

// TempFile wraps an *os.File created in the system temp directory and
// removes it from the filesystem on Close, so a fetch that's abandoned
// midway (coordinator gives up, worker is asked to shut down) never leaks a
// partial download into the target directory.
type TempFile struct {
	*os.File
}

// NewTempFile creates a TempFile in dir (the OS default if empty) using
// pattern as the os.CreateTemp pattern.
func NewTempFile(dir, pattern string) (*TempFile, error) {
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return nil, err
	}
	return &TempFile{File: f}, nil
}

// Close closes the underlying file handle and removes it from disk.
func (t *TempFile) Close() error {
	name := t.File.Name()
	if err := t.File.Close(); err != nil {
		return err
	}
	return os.Remove(name)
}
