package wfile

import (
	"context"

	"github.com/INLOpen/zonefs/zonefile"
)

// SequentialFile reads a ZoneFile front-to-back, tracking its own
// cursor, the way a log reader or an SST full-scan would.
type SequentialFile struct {
	f      *zonefile.ZoneFile
	offset int64
}

// NewSequentialFile wraps f for cursor-based sequential access.
func NewSequentialFile(f *zonefile.ZoneFile) *SequentialFile {
	return &SequentialFile{f: f}
}

// Read fills p starting at the current cursor and advances it by the
// number of bytes returned.
func (s *SequentialFile) Read(ctx context.Context, p []byte) (int, error) {
	n, err := s.f.PositionedRead(ctx, s.offset, p)
	s.offset += int64(n)
	return n, err
}

// Skip advances the cursor by n bytes without reading them.
func (s *SequentialFile) Skip(n int64) {
	s.offset += n
}

// UniqueID returns the underlying file's stable identifier.
func (s *SequentialFile) UniqueID() uint64 {
	return s.f.UniqueID()
}
