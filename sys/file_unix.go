// file_unix.go
//go:build unix

package sys

import "os"

// unixFile implements File for Unix-like systems using os.OpenFile
// directly: unlike Windows, these don't need FILE_SHARE_DELETE-style
// sharing flags to let a file be removed while open.
type unixFile struct{}

// NewFile returns the platform-specific File implementation.
func NewFile() File {
	return &unixFile{}
}

func (ufo *unixFile) OpenFile(name string, flag int, perm os.FileMode) (*os.File, error) {
	return os.OpenFile(name, flag, perm)
}
