package zonefile

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/INLOpen/zonefs/zbd"
	"github.com/INLOpen/zonefs/zerrors"
	"github.com/INLOpen/zonefs/zone"
)

var nextFileID atomic.Uint64

// ZoneAllocator is the narrow slice of device.ZoneDevice a ZoneFile
// needs in order to grow: get a zone able to take at least minBytes
// more bytes under the file's lifetime hint. Depending on this
// interface instead of the device package directly keeps zonefile free
// of a circular import.
type ZoneAllocator interface {
	AllocateZone(ctx context.Context, hint zone.LifetimeHint, minBytes uint64) (*zone.Zone, error)
}

// ZoneFile is the append-only, extent-tracking file abstraction the
// core exposes to writers and readers above it. A file's data lives as
// a list of extents, each wholly contained in one zone, accumulated as
// the file grows; nothing about a ZoneFile is ever rewritten in place.
type ZoneFile struct {
	id       uint64
	filename string
	dev      zbd.Device
	alloc    ZoneAllocator

	blockSize int
	lifetime  zone.LifetimeHint
	level     int32
	smallest  []byte
	largest   []byte

	extentMu        sync.Mutex
	extentCond      *sync.Cond
	readerCount     int
	extents         []*zone.Extent
	activeZone      *zone.Zone
	fileSize        uint64
	nrSyncedExtents int

	buf *Buffer

	closed bool
}

// NewZoneFile constructs an empty ZoneFile. The filename is caller
// supplied and only used for display and journal records; identity for
// extent attribution is the numeric id.
func NewZoneFile(dev zbd.Device, alloc ZoneAllocator, filename string, lifetime zone.LifetimeHint, level int32) *ZoneFile {
	f := &ZoneFile{
		id:        nextFileID.Add(1),
		filename:  filename,
		dev:       dev,
		alloc:     alloc,
		blockSize: int(dev.BlockSize()),
		lifetime:  lifetime,
		level:     level,
		buf:       NewBuffer(int(dev.BlockSize()), 1<<20),
	}
	f.extentCond = sync.NewCond(&f.extentMu)
	return f
}

// UniqueID returns an identifier stable for the file's lifetime,
// suitable for cache keys and journal attribution.
func (f *ZoneFile) UniqueID() uint64 { return f.id }

// Filename returns the file's current display name.
func (f *ZoneFile) Filename() string {
	f.extentMu.Lock()
	defer f.extentMu.Unlock()
	return f.filename
}

// Rename changes the file's display name. It takes no device action;
// persistence happens through the caller's next metadata journal write.
func (f *ZoneFile) Rename(newName string) {
	f.extentMu.Lock()
	defer f.extentMu.Unlock()
	f.filename = newName
}

// FileSize returns the total number of live, readable bytes appended so
// far, including any not-yet-flushed partial block in the buffer.
func (f *ZoneFile) FileSize() uint64 {
	f.extentMu.Lock()
	defer f.extentMu.Unlock()
	return f.fileSize + uint64(f.buf.Len())
}

// SetMinMaxKeyAndLevel records the key range and LSM level this file
// covers, supplied by the caller once its contents are known. The
// allocator reads these back to place files with overlapping ranges at
// the same level into the same zone (steps 1-2 of
// device.ZoneDevice.AllocateZoneForLevel; AllocateZone skips them);
// beyond that the core treats them as opaque.
func (f *ZoneFile) SetMinMaxKeyAndLevel(smallest, largest []byte, level int32) {
	f.extentMu.Lock()
	defer f.extentMu.Unlock()
	f.smallest = append([]byte(nil), smallest...)
	f.largest = append([]byte(nil), largest...)
	f.level = level
}

// Level returns the LSM level last set via SetMinMaxKeyAndLevel.
func (f *ZoneFile) Level() int32 {
	f.extentMu.Lock()
	defer f.extentMu.Unlock()
	return f.level
}

// KeyRange returns the key range last set via SetMinMaxKeyAndLevel.
func (f *ZoneFile) KeyRange() (smallest, largest []byte) {
	f.extentMu.Lock()
	defer f.extentMu.Unlock()
	return f.smallest, f.largest
}

// ActiveZone returns the zone this file is currently appending to, or
// nil if it has none open.
func (f *ZoneFile) ActiveZone() *zone.Zone {
	f.extentMu.Lock()
	defer f.extentMu.Unlock()
	return f.activeZone
}

// ensureZoneLocked returns the file's active zone, allocating a fresh
// one through alloc if the file has none yet or its current zone
// cannot take minBytes more. extentMu must be held.
func (f *ZoneFile) ensureZoneLocked(ctx context.Context, minBytes uint64) (*zone.Zone, error) {
	if f.activeZone != nil && f.activeZone.RemainingCapacity() >= minBytes {
		return f.activeZone, nil
	}
	if f.activeZone != nil {
		f.activeZone.CloseWR()
		f.activeZone = nil
	}
	z, err := f.alloc.AllocateZone(ctx, f.lifetime, minBytes)
	if err != nil {
		return nil, err
	}
	f.activeZone = z
	return z, nil
}

// Append buffers p and flushes full blocks to the active zone as they
// accumulate, allocating new zones transparently as each fills. It
// never overwrites a previously written byte: every call only grows
// the file.
func (f *ZoneFile) Append(ctx context.Context, p []byte) (int, error) {
	f.extentMu.Lock()
	defer f.extentMu.Unlock()
	if f.closed {
		return 0, zerrors.ErrShutdown
	}

	total := 0
	for len(p) > 0 {
		n := f.buf.Write(p)
		p = p[n:]
		total += n

		for f.buf.Full() {
			chunk := f.buf.AlignedChunk()
			z, err := f.ensureZoneLocked(ctx, uint64(len(chunk)))
			if err != nil {
				return total, err
			}
			if rem := z.RemainingCapacity(); uint64(len(chunk)) > rem {
				chunk = chunk[:rem]
			}
			extent, err := z.Append(ctx, chunk)
			if err != nil {
				return total, err
			}
			f.extents = append(f.extents, extent)
			f.fileSize += uint64(extent.Length)
			f.buf.Advance(len(chunk))
		}
	}
	return total, nil
}

// PushExtent records an extent produced outside of Append, such as one
// relocated into this file by the cleaner during compaction. It is the
// file-side half of extent relocation; the zone-side half is
// zone.Extent.Invalidate on the extent's old home.
func (f *ZoneFile) PushExtent(e *zone.Extent) {
	f.extentMu.Lock()
	defer f.extentMu.Unlock()
	f.extents = append(f.extents, e)
	f.fileSize += uint64(e.Length)
}

// ReplaceExtent patches the file's extent list in place, swapping old
// for newExtent at old's own index. Used by the cleaner to relocate a
// still-valid extent's bytes to a fresh zone: the logical range and its
// length are unchanged, only where the bytes live moves, so fileSize is
// left untouched. Reports whether old was found.
func (f *ZoneFile) ReplaceExtent(old, newExtent *zone.Extent) bool {
	f.extentMu.Lock()
	defer f.extentMu.Unlock()
	for i, e := range f.extents {
		if e == old {
			f.extents[i] = newExtent
			return true
		}
	}
	return false
}

// InvalidateAll marks every extent this file owns as invalid, releasing
// their bytes back to their zones' garbage tallies. Called when the
// file is deleted; idempotent per extent via zone.Extent.Invalidate.
func (f *ZoneFile) InvalidateAll() {
	f.extentMu.Lock()
	extents := make([]*zone.Extent, len(f.extents))
	copy(extents, f.extents)
	f.extentMu.Unlock()

	for _, e := range extents {
		e.Invalidate()
	}
}

// Extents returns a snapshot of the file's extent list in append order.
func (f *ZoneFile) Extents() []*zone.Extent {
	f.extentMu.Lock()
	defer f.extentMu.Unlock()
	out := make([]*zone.Extent, len(f.extents))
	copy(out, f.extents)
	return out
}

// beginRead registers an in-flight positioned read so WaitForDrain can
// block a closing or relocating caller until it completes.
func (f *ZoneFile) beginRead() {
	f.extentMu.Lock()
	f.readerCount++
	f.extentMu.Unlock()
}

func (f *ZoneFile) endRead() {
	f.extentMu.Lock()
	f.readerCount--
	if f.readerCount == 0 {
		f.extentCond.Broadcast()
	}
	f.extentMu.Unlock()
}

// WaitForDrain blocks until every in-flight PositionedRead has
// returned, or ctx is cancelled first. Callers use this before an
// operation that invalidates extents out from under concurrent readers,
// such as the cleaner relocating this file's data.
func (f *ZoneFile) WaitForDrain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		f.extentMu.Lock()
		for f.readerCount > 0 {
			f.extentCond.Wait()
		}
		f.extentMu.Unlock()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		f.extentMu.Lock()
		f.extentCond.Broadcast()
		f.extentMu.Unlock()
		<-done
		return ctx.Err()
	}
}

// PositionedRead reads len(p) bytes starting at absolute file offset
// off, scattering the read across whichever extents it spans. It never
// crosses into data appended concurrently past the file size observed
// at call entry.
func (f *ZoneFile) PositionedRead(ctx context.Context, off int64, p []byte) (int, error) {
	f.beginRead()
	defer f.endRead()

	f.extentMu.Lock()
	extents := make([]*zone.Extent, len(f.extents))
	copy(extents, f.extents)
	f.extentMu.Unlock()

	remaining := p
	cursor := int64(0)
	read := 0
	for _, e := range extents {
		extentEnd := cursor + int64(e.Length)
		if off >= extentEnd {
			cursor = extentEnd
			continue
		}
		if len(remaining) == 0 {
			break
		}
		skip := off - cursor
		if skip < 0 {
			skip = 0
		}
		want := int64(e.Length) - skip
		if want > int64(len(remaining)) {
			want = int64(len(remaining))
		}
		if want <= 0 {
			cursor = extentEnd
			continue
		}
		n, err := f.dev.ReadAt(ctx, e.Start+uint64(skip), remaining[:want], true)
		if err != nil {
			return read, &zerrors.IOError{ZoneID: int(e.Zone.ID), Err: err}
		}
		remaining = remaining[n:]
		read += n
		off += int64(n)
		cursor = extentEnd
	}
	if read == 0 && len(p) > 0 {
		return 0, io.EOF
	}
	return read, nil
}

// CloseWR flushes any partial trailing block and releases the file's
// hold on its active zone. The caller is responsible for the
// metadata journal write that makes the new extents durable.
func (f *ZoneFile) CloseWR(ctx context.Context) error {
	f.extentMu.Lock()
	defer f.extentMu.Unlock()
	if f.closed {
		return nil
	}
	if f.buf.Len() > 0 {
		f.buf.PadToBlock()
		chunk := f.buf.AlignedChunk()
		z, err := f.ensureZoneLocked(ctx, uint64(len(chunk)))
		if err != nil {
			return err
		}
		extent, err := z.Append(ctx, chunk)
		if err != nil {
			return err
		}
		f.extents = append(f.extents, extent)
		f.fileSize += uint64(extent.Length)
		f.buf.Advance(len(chunk))
	}
	if f.activeZone != nil {
		f.activeZone.CloseWR()
		f.activeZone = nil
	}
	f.closed = true
	return nil
}

// MetadataSynced marks every extent currently on the file as durable in
// the metadata journal, advancing the high-water mark EncodeUpdateTo
// uses to emit only what changed since the last sync.
func (f *ZoneFile) MetadataSynced() {
	f.extentMu.Lock()
	defer f.extentMu.Unlock()
	f.nrSyncedExtents = len(f.extents)
}

// EncodeTo emits the full record set needed to reconstruct this file
// from scratch: a create record followed by one append record per
// extent.
func (f *ZoneFile) EncodeTo(w RecordWriter) error {
	f.extentMu.Lock()
	defer f.extentMu.Unlock()
	return f.encodeLocked(w, tagFileCreate, 0)
}

// EncodeUpdateTo emits only the extents appended since the last call to
// MetadataSynced, for incremental journal writes on a hot write path.
func (f *ZoneFile) EncodeUpdateTo(w RecordWriter) error {
	f.extentMu.Lock()
	defer f.extentMu.Unlock()
	return f.encodeLocked(w, tagFileCreate, f.nrSyncedExtents)
}

// EncodeSnapshotTo emits the full record set tagged as a checkpoint
// snapshot rather than an incremental create, for periodic metadata
// compaction.
func (f *ZoneFile) EncodeSnapshotTo(w RecordWriter) error {
	f.extentMu.Lock()
	defer f.extentMu.Unlock()
	return f.encodeLocked(w, tagSnapshot, 0)
}

// EncodeInvalidateTo journals a single extent's transition to invalid,
// the wire counterpart of zone.Extent.Invalidate. Callers invalidate
// the extent first and then call this so a crash between the two still
// leaves the journal behind the in-memory state rather than ahead of
// it.
func (f *ZoneFile) EncodeInvalidateTo(w RecordWriter, e *zone.Extent) error {
	return w.WriteRecord(&Record{
		Tag:    tagExtentInvalidate,
		FileID: f.UniqueID(),
		ZoneID: e.Zone.ID,
		Start:  e.Start,
		Length: e.Length,
	})
}

// EncodeDeleteTo journals the deletion of this file. It does not
// itself invalidate the file's extents; callers pair it with
// InvalidateAll (and, per extent, EncodeInvalidateTo) so the journal
// records the same invalidations the in-memory state underwent.
func (f *ZoneFile) EncodeDeleteTo(w RecordWriter) error {
	f.extentMu.Lock()
	defer f.extentMu.Unlock()
	return w.WriteRecord(&Record{
		Tag:      tagFileDelete,
		FileID:   f.id,
		Filename: f.filename,
	})
}

// RecordWriter is the narrow append sink EncodeTo and friends write
// through; any MetadataWriter satisfies it via WriteRecord, and tests can
// substitute a plain slice-collecting stub.
type RecordWriter interface {
	WriteRecord(r *Record) error
}

func (f *ZoneFile) encodeLocked(w RecordWriter, headTag recordTag, fromExtent int) error {
	head := &Record{
		Tag:      headTag,
		FileID:   f.id,
		Filename: f.filename,
		Lifetime: int32(f.lifetime),
		Level:    f.level,
		FileSize: f.fileSize,
	}
	if err := w.WriteRecord(head); err != nil {
		return err
	}
	for _, e := range f.extents[fromExtent:] {
		rec := &Record{
			Tag:    tagExtentAppend,
			FileID: f.id,
			ZoneID: e.Zone.ID,
			Start:  e.Start,
			Length: e.Length,
		}
		if err := w.WriteRecord(rec); err != nil {
			return err
		}
	}
	return nil
}

// MergeUpdate folds the extents of an incremental update record set,
// decoded from the journal during recovery, into this file. It is the
// read-side counterpart of EncodeUpdateTo.
func (f *ZoneFile) MergeUpdate(extents []*zone.Extent) {
	f.extentMu.Lock()
	defer f.extentMu.Unlock()
	for _, e := range extents {
		f.extents = append(f.extents, e)
		f.fileSize += uint64(e.Length)
	}
}
