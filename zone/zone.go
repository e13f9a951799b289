package zone

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/INLOpen/zonefs/zbd"
	"github.com/INLOpen/zonefs/zerrors"
)

// State is the zone's position in the EMPTY -> OPEN -> FULL -> EMPTY
// lifecycle. It is layered on top of, and kept consistent with, the
// device's own zbd.ZoneCondition.
type State int

const (
	StateEmpty State = iota
	StateOpen
	StateFull
	StateOffline
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateOpen:
		return "open"
	case StateFull:
		return "full"
	case StateOffline:
		return "offline"
	default:
		return "unknown"
	}
}

// Zone is one sequential write region of the backing device. It tracks
// its own write pointer, capacity, lifetime affinity, and the set of
// extents currently written into it. A Zone never moves or resizes
// after it is constructed at device Open; only its write pointer, used
// capacity, and state change over its life.
type Zone struct {
	dev zbd.Device

	// ID, Start, and MaxCapacity are fixed for the lifetime of the
	// process; they come straight from the device's zone report.
	ID          uint32
	Start       uint64
	MaxCapacity uint64
	Type        zbd.ZoneType

	mu    sync.Mutex
	state State
	wp    uint64 // absolute device offset of the next write

	// usedCapacity is the sum of still-valid extent lengths written into
	// this zone; it only ever decreases via Invalidate and resets to 0
	// on Reset. It is read far more often than it is written (by the
	// cleaner's victim scoring), hence the separate atomic.
	usedCapacity atomic.Int64

	lifetime          LifetimeHint
	secondaryLifetime float64

	// open counts callers currently holding this zone for append via
	// CloseWR's paired OpenForWrite; Finish and Reset refuse to run
	// while it is nonzero.
	open int

	extents []*Extent
}

// NewZone constructs a Zone from a device zone report. It is EMPTY
// unless the report carries a nonzero write pointer, in which case the
// zone is treated as OPEN so pending writes resume correctly after a
// restart.
func NewZone(dev zbd.Device, report zbd.ZoneReport) *Zone {
	z := &Zone{
		dev:         dev,
		ID:          report.ID,
		Start:       report.Start,
		MaxCapacity: report.Length,
		Type:        report.Type,
		wp:          report.Start + report.WritePointer,
	}
	if report.WritePointer > 0 {
		z.state = StateOpen
	}
	return z
}

// State returns the zone's current lifecycle state.
func (z *Zone) State() State {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.state
}

// WritePointer returns the zone's current absolute write offset.
func (z *Zone) WritePointer() uint64 {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.wp
}

// RemainingCapacity returns how many bytes may still be written before
// the zone is full.
func (z *Zone) RemainingCapacity() uint64 {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.Start + z.MaxCapacity - z.wp
}

// UsedCapacity returns the sum of still-valid extent lengths in the
// zone. It may be read without holding mu.
func (z *Zone) UsedCapacity() int64 {
	return z.usedCapacity.Load()
}

// InvalidCapacity returns bytes written into the zone that no longer
// belong to any live extent: the write pointer's advance minus what is
// still valid. It is the cleaner's primary victim-selection signal.
func (z *Zone) InvalidCapacity() int64 {
	z.mu.Lock()
	written := int64(z.wp - z.Start)
	z.mu.Unlock()
	return written - z.usedCapacity.Load()
}

// LifetimeHint returns the hint the zone was opened with.
func (z *Zone) LifetimeHint() LifetimeHint {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.lifetime
}

// SecondaryLifetime returns the finer-grained affinity score layered on
// top of the coarse LifetimeHint, used to break ties between
// equally-compatible zones during allocation.
func (z *Zone) SecondaryLifetime() float64 {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.secondaryLifetime
}

// UpdateSecondaryLifeTime folds hint, observed for length newly written
// bytes, into the zone's running affinity estimate: the old estimate is
// weighted by the zone's used capacity and hint by length. Only a File
// actively appending to this zone should call this.
func (z *Zone) UpdateSecondaryLifeTime(hint LifetimeHint, length uint64) {
	z.mu.Lock()
	defer z.mu.Unlock()
	used := float64(z.usedCapacity.Load())
	total := used + float64(length)
	if total <= 0 {
		return
	}
	z.secondaryLifetime = (z.secondaryLifetime*used + float64(hint)*float64(length)) / total
}

// OpenForWrite marks the zone as held by an in-flight append, moving it
// from EMPTY to OPEN on the first call and preventing concurrent Reset
// or Finish until every matching CloseWR has run.
func (z *Zone) OpenForWrite(lifetime LifetimeHint) error {
	z.mu.Lock()
	defer z.mu.Unlock()
	if z.state == StateFull || z.state == StateOffline {
		return zerrors.ErrBusy
	}
	if z.open == 0 {
		z.lifetime = lifetime
	}
	z.open++
	z.state = StateOpen
	return nil
}

// CloseWR releases one hold acquired by OpenForWrite.
func (z *Zone) CloseWR() {
	z.mu.Lock()
	defer z.mu.Unlock()
	if z.open > 0 {
		z.open--
	}
}

// Append writes buf starting at the zone's current write pointer and
// advances it by len(buf). buf must already be block-size aligned and
// padded by the caller; Zone performs no buffering of its own. Append
// transitions the zone to FULL when the write pointer reaches capacity,
// and to OFFLINE (no further appends, still readable) when the device
// write fails.
func (z *Zone) Append(ctx context.Context, buf []byte) (*Extent, error) {
	z.mu.Lock()
	if z.state == StateFull || z.state == StateOffline {
		z.mu.Unlock()
		return nil, zerrors.ErrBusy
	}
	if uint64(len(buf)) > z.Start+z.MaxCapacity-z.wp {
		z.mu.Unlock()
		return nil, zerrors.ErrNoSpace
	}
	off := z.wp
	z.mu.Unlock()

	n, err := z.dev.WriteAt(ctx, z.ID, off, buf)
	if err != nil {
		z.mu.Lock()
		z.state = StateOffline
		z.mu.Unlock()
		return nil, &zerrors.IOError{ZoneID: int(z.ID), Err: err}
	}

	z.mu.Lock()
	z.wp += uint64(n)
	full := z.wp >= z.Start+z.MaxCapacity
	if full {
		z.state = StateFull
	}
	z.mu.Unlock()

	z.usedCapacity.Add(int64(n))

	extent := &Extent{Start: off, Length: uint32(n), Zone: z}
	z.mu.Lock()
	z.extents = append(z.extents, extent)
	z.mu.Unlock()

	return extent, nil
}

// Finish forces the zone to FULL, wasting whatever capacity remains
// ahead of the write pointer. It fails with ErrBusy while any caller
// still holds the zone open for append.
func (z *Zone) Finish(ctx context.Context) (wasted int64, err error) {
	z.mu.Lock()
	if z.open > 0 {
		z.mu.Unlock()
		return 0, zerrors.ErrBusy
	}
	if z.state == StateFull {
		z.mu.Unlock()
		return 0, nil
	}
	wasted = int64(z.Start + z.MaxCapacity - z.wp)
	z.mu.Unlock()

	if err := z.dev.FinishZone(ctx, z.ID); err != nil {
		return 0, &zerrors.IOError{ZoneID: int(z.ID), Err: err}
	}

	z.mu.Lock()
	z.wp = z.Start + z.MaxCapacity
	z.state = StateFull
	z.mu.Unlock()
	return wasted, nil
}

// Reset reclaims the zone, returning its write pointer to Start and its
// capacity to MaxCapacity. It fails with ErrBusy if the zone still
// carries valid (not yet invalidated) extents, or is currently held
// open for append.
func (z *Zone) Reset(ctx context.Context) error {
	z.mu.Lock()
	if z.open > 0 {
		z.mu.Unlock()
		return zerrors.ErrBusy
	}
	if z.usedCapacity.Load() > 0 {
		z.mu.Unlock()
		return zerrors.ErrBusy
	}
	z.mu.Unlock()

	if err := z.dev.ResetZone(ctx, z.ID); err != nil {
		return &zerrors.IOError{ZoneID: int(z.ID), Err: err}
	}

	z.mu.Lock()
	z.wp = z.Start
	z.state = StateEmpty
	z.lifetime = LifetimeNotSet
	z.secondaryLifetime = 0
	z.extents = z.extents[:0]
	z.mu.Unlock()
	z.usedCapacity.Store(0)
	return nil
}

// Invalidate subtracts length from the zone's used capacity, recording
// that the extent it measures no longer belongs to any live file. It
// never fails: an already-fully-invalid zone simply accumulates more
// invalid capacity until it is chosen for cleaning.
func (z *Zone) Invalidate(length uint32) {
	z.usedCapacity.Add(-int64(length))
}

// Extents returns a snapshot of the extents currently attributed to
// this zone, for cleaner inspection.
func (z *Zone) Extents() []*Extent {
	z.mu.Lock()
	defer z.mu.Unlock()
	out := make([]*Extent, len(z.extents))
	copy(out, z.extents)
	return out
}
