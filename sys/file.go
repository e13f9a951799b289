package sys

import (
	"os"
	"sync/atomic"
)

// fileWrapper is a stable concrete type used to store the File interface
// inside an atomic.Value. atomic.Value requires that all stored values
// have the same concrete type; wrapping the File interface in this small
// struct ensures we can swap different File implementations safely.
type fileWrapper struct {
	f File
}

// defaultFile stores the current platform `File` implementation wrapped in a
// concrete `fileWrapper`. We store `fileWrapper` (not the interface) so that
// `atomic.Value` always sees the same concrete type across stores.
var defaultFile atomic.Value // stores fileWrapper
var debugMode atomic.Bool

// File abstracts the one filesystem call the device layer actually
// needs across platforms: opening the backing file for a simulated
// zoned device, with Windows' FILE_SHARE_DELETE semantics applied on
// that platform and plain os.OpenFile everywhere else.
type File interface {
	OpenFile(name string, flag int, perm os.FileMode) (*os.File, error)
}

// FileHandle is the open-file surface the zoned block device core reads
// and writes through: random-access I/O, durability, and a Name.
// Preallocate keys its per-filesystem cache by device id, not by Name.
type FileHandle interface {
	Close() error
	Sync() error
	Name() string

	WriteAt(p []byte, off int64) (n int, err error)
	ReadAt(p []byte, off int64) (n int, err error)
}

type OpenFileHandler func(name string, flag int, perm os.FileMode) (FileHandle, error)

func init() {
	debugMode.Store(false)
	file := NewFile()
	defaultFile.Store(fileWrapper{f: file})
}

func SetDefaultFile(file File) {
	defaultFile.Store(fileWrapper{f: file})
}

func SetDebugMode(mode bool) {
	debugMode.Store(mode)
}

var OpenFile OpenFileHandler = (func(name string, flag int, perm os.FileMode) (FileHandle, error) {
	p := defaultFile.Load()
	if p == nil {
		return nil, os.ErrInvalid
	}
	fw, ok := p.(fileWrapper)
	if !ok || fw.f == nil {
		return nil, os.ErrInvalid
	}
	file := fw.f
	if debugMode.Load() {
		return DOpenFile(file, name, flag, perm)
	}
	return ROpenFile(file, name, flag, perm)
})
