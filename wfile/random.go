package wfile

import (
	"context"

	"github.com/INLOpen/zonefs/zerrors"
	"github.com/INLOpen/zonefs/zonefile"
)

// RandomAccessFile reads a ZoneFile at arbitrary, caller-supplied
// offsets, for index and block-cache style access patterns.
type RandomAccessFile struct {
	f *zonefile.ZoneFile
}

// NewRandomAccessFile wraps f for offset-addressed access.
func NewRandomAccessFile(f *zonefile.ZoneFile) *RandomAccessFile {
	return &RandomAccessFile{f: f}
}

// Read fills p starting at off.
func (r *RandomAccessFile) Read(ctx context.Context, off int64, p []byte) (int, error) {
	return r.f.PositionedRead(ctx, off, p)
}

// MultiRead batches several reads into one call in the original ZenFS
// design; the simulated device gains nothing from batching since each
// extent read is already a direct pread, so this is intentionally left
// unimplemented the same way ZenFS's own MultiRead returns "Not
// implemented".
func (r *RandomAccessFile) MultiRead(ctx context.Context, reqs []ReadRequest) error {
	return zerrors.ErrNotSupported
}

// ReadRequest is one entry of a MultiRead batch.
type ReadRequest struct {
	Offset int64
	Buf    []byte
}

// Prefetch is a hint that [off, off+n) will likely be read soon; the
// simulated device has no separate read-ahead path to warm, so this is
// a no-op rather than an error.
func (r *RandomAccessFile) Prefetch(ctx context.Context, off int64, n int64) error {
	return nil
}

// UniqueID returns the underlying file's stable identifier.
func (r *RandomAccessFile) UniqueID() uint64 {
	return r.f.UniqueID()
}
