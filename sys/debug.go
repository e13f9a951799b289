package sys

import (
	"log/slog"
	"os"
	"sync/atomic"
)

var _ FileHandle = (*DebugFile)(nil)
var nextID atomic.Uint64

// DebugFile wraps a FileHandle with structured logging of every open
// and close, enabled by SetDebugMode(true) (zonectl's --debug-io flag).
type DebugFile struct {
	id     uint64
	f      *os.File
	logger *slog.Logger
}

func DOpenFile(sysFile File, name string, flag int, perm os.FileMode) (FileHandle, error) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})).With("component", "DebugFile")

	f, err := sysFile.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}

	id := nextID.Add(1)
	logger = logger.With("id", id)
	logger = logger.With("file_name", name)
	logger.Debug("opening file")

	return &DebugFile{
		id:     id,
		f:      f,
		logger: logger,
	}, nil
}

func (df *DebugFile) Name() string {
	return df.f.Name()
}

func (df *DebugFile) Sync() error {
	return df.f.Sync()
}

func (df *DebugFile) WriteAt(p []byte, off int64) (n int, err error) {
	return df.f.WriteAt(p, off)
}

func (df *DebugFile) ReadAt(p []byte, off int64) (n int, err error) {
	return df.f.ReadAt(p, off)
}

func (df *DebugFile) Close() error {
	df.logger.Debug("closing file")
	return df.f.Close()
}
