// Package wfile adapts zonefile.ZoneFile to the POSIX-shaped append/read
// file interfaces the engine above expects, mirroring ZenFS's
// ZonedWritableFile/ZonedSequentialFile/ZonedRandomAccessFile split.
package wfile

import (
	"context"

	"github.com/INLOpen/zonefs/zerrors"
	"github.com/INLOpen/zonefs/zone"
	"github.com/INLOpen/zonefs/zonefile"
)

// WritableFile is the append-only write side of a zoned file. It
// forbids everything the sequential-write contract cannot express:
// overwrites, shrinking truncates, and seeks backward.
type WritableFile struct {
	f *zonefile.ZoneFile
}

// NewWritableFile wraps f for append-style access.
func NewWritableFile(f *zonefile.ZoneFile) *WritableFile {
	return &WritableFile{f: f}
}

// Append writes p at the current end of the file.
func (w *WritableFile) Append(ctx context.Context, p []byte) error {
	_, err := w.f.Append(ctx, p)
	return err
}

// PositionedAppend writes p at offset off, which must equal the file's
// current size; any other offset is rejected since the zone beneath it
// only accepts sequential writes.
func (w *WritableFile) PositionedAppend(ctx context.Context, p []byte, off uint64) error {
	if off != w.f.FileSize() {
		return zerrors.ErrNotSupported
	}
	_, err := w.f.Append(ctx, p)
	return err
}

// Truncate only supports truncating to the file's current size (a
// no-op); shrinking a zoned file would require rewriting extents the
// sequential-write contract forbids in place.
func (w *WritableFile) Truncate(ctx context.Context, size uint64) error {
	if size != w.f.FileSize() {
		return zerrors.ErrNotSupported
	}
	return nil
}

// Flush is a no-op: Append already pushes complete blocks to the zone
// as they fill; nothing is held back except a sub-block tail, which
// Sync and Close both handle explicitly.
func (w *WritableFile) Flush(ctx context.Context) error {
	return nil
}

// Sync pads and flushes any buffered tail to the active zone so the
// bytes are on the device. It does this through ZoneFile.CloseWR,
// exactly as Close does: the file's zone hold is released and the file
// accepts no further appends (Append then returns zerrors.ErrShutdown).
func (w *WritableFile) Sync(ctx context.Context) error {
	return w.f.CloseWR(ctx)
}

// Fsync is equivalent to Sync here: the simulated and real zoned
// devices both perform direct, unbuffered I/O on every Append, so
// there is no separate page-cache flush step to request.
func (w *WritableFile) Fsync(ctx context.Context) error {
	return w.Sync(ctx)
}

// RangeSync is a hint that data in [off, off+nbytes) should be made
// durable; since every append already lands synchronously, there is
// nothing additional to do beyond a full Sync.
func (w *WritableFile) RangeSync(ctx context.Context, off, nbytes uint64) error {
	return w.Sync(ctx)
}

// Close flushes any pending tail and releases the file's zone hold.
func (w *WritableFile) Close(ctx context.Context) error {
	return w.f.CloseWR(ctx)
}

// SetWriteLifetimeHint is a no-op: the hint the ZoneFile was created
// with is the one its zone allocations use.
func (w *WritableFile) SetWriteLifetimeHint(hint zone.LifetimeHint) {}

// SetMinMaxKeyAndLevel forwards the key range and LSM level to the
// underlying ZoneFile for the allocator's affinity policy to read back.
func (w *WritableFile) SetMinMaxKeyAndLevel(smallest, largest []byte, level int32) {
	w.f.SetMinMaxKeyAndLevel(smallest, largest, level)
}

// UniqueID returns the file's stable identifier.
func (w *WritableFile) UniqueID() uint64 {
	return w.f.UniqueID()
}
