package zone

import "sync/atomic"

// Extent is a contiguous run of bytes written into exactly one zone.
// Extents never span a zone boundary; a write that would cross one is
// split by the caller into multiple extents before it reaches Append.
type Extent struct {
	Start  uint64 // absolute device offset
	Length uint32
	Zone   *Zone

	invalidated atomic.Bool
}

// End returns the absolute device offset immediately past the extent.
func (e *Extent) End() uint64 {
	return e.Start + uint64(e.Length)
}

// Valid reports whether this extent's bytes are still referenced by a
// live file. It flips true->false exactly once, via Invalidate.
func (e *Extent) Valid() bool {
	return !e.invalidated.Load()
}

// Invalidate tells the owning zone that this extent's bytes are no
// longer referenced by any live file. It is safe to call more than
// once on the same extent: only the first call decrements the owning
// zone's used capacity, so callers scanning a file's extents don't
// need to track which ones they've already invalidated themselves.
func (e *Extent) Invalidate() {
	if !e.invalidated.CompareAndSwap(false, true) {
		return
	}
	e.Zone.Invalidate(e.Length)
}
