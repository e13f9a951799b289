package device

import (
	"bytes"
	"context"

	"go.opentelemetry.io/otel/trace"

	"github.com/INLOpen/zonefs/zerrors"
	"github.com/INLOpen/zonefs/zone"
)

// AllocateZone runs the allocation policy without level or key-range
// information, so the two affinity steps (same-file same-level, then
// level) never match: it takes an empty zone, then a hint-compatible
// open zone, then blocks waiting for one to free up.
// It is the method zonefile.ZoneFile calls (through the ZoneAllocator
// interface) every time it needs to grow past its current zone.
func (d *ZoneDevice) AllocateZone(ctx context.Context, hint zone.LifetimeHint, minBytes uint64) (*zone.Zone, error) {
	return d.allocateZoneForLevel(ctx, hint, minBytes, -1, nil, nil)
}

// AllocateZoneForLevel is the level/key-range-aware entry point the
// engine uses for SST writers, where level and the key range are
// already known. AllocateZone above is the degraded form used when a
// caller has no level/key-range information (the metadata journal's
// own writer, for instance).
func (d *ZoneDevice) AllocateZoneForLevel(ctx context.Context, hint zone.LifetimeHint, minBytes uint64, level int32, smallest, largest []byte) (*zone.Zone, error) {
	return d.allocateZoneForLevel(ctx, hint, minBytes, level, smallest, largest)
}

func (d *ZoneDevice) allocateZoneForLevel(ctx context.Context, hint zone.LifetimeHint, minBytes uint64, level int32, smallest, largest []byte) (*zone.Zone, error) {
	var span trace.Span
	if d.tracer != nil {
		ctx, span = d.tracer.Start(ctx, "ZoneDevice.AllocateZone")
		defer span.End()
	}

	for {
		if z := d.tryAffinityStep(level, smallest, largest, hint, minBytes, true); z != nil {
			d.metrics.allocations.Inc()
			return z, nil
		}
		if z := d.tryAffinityStep(level, smallest, largest, hint, minBytes, false); z != nil {
			d.metrics.allocations.Inc()
			return z, nil
		}

		d.resourceMu.Lock()
		if d.closed {
			d.resourceMu.Unlock()
			return nil, zerrors.ErrShutdown
		}

		if z := d.tryEmptyZoneLocked(hint); z != nil {
			d.resourceMu.Unlock()
			d.metrics.allocations.Inc()
			return z, nil
		}
		if z := d.tryOpenHintZoneLocked(hint, minBytes); z != nil {
			d.resourceMu.Unlock()
			d.metrics.allocations.Inc()
			return z, nil
		}

		d.metrics.allocationStalls.Inc()
		if err := d.waitForResourceLocked(ctx); err != nil {
			d.resourceMu.Unlock()
			return nil, err
		}
		d.resourceMu.Unlock()
	}
}

// tryAffinityStep implements policy steps 1 and 2. requireOverlap==true with
// a nonempty key range is step 1 (same-file/same-level, key overlap);
// otherwise it is step 2 (level only).
func (d *ZoneDevice) tryAffinityStep(level int32, smallest, largest []byte, hint zone.LifetimeHint, minBytes uint64, requireOverlap bool) *zone.Zone {
	if level < 0 {
		return nil
	}
	if requireOverlap && (smallest == nil && largest == nil) {
		return nil
	}

	var best *zone.Zone
	var bestRemaining uint64
	for _, f := range d.Files() {
		if f.Level() != level {
			continue
		}
		if requireOverlap {
			fs, fl := f.KeyRange()
			if !keyRangesOverlap(smallest, largest, fs, fl) {
				continue
			}
		}
		z := f.ActiveZone()
		if z == nil {
			continue
		}
		if !zone.Compatible(z.LifetimeHint(), hint, true) {
			continue
		}
		remaining := z.RemainingCapacity()
		if remaining < minBytes {
			continue
		}
		if best == nil || remaining > bestRemaining ||
			(remaining == bestRemaining && z.ID < best.ID) {
			best = z
			bestRemaining = remaining
		}
	}
	return best
}

func keyRangesOverlap(aS, aL, bS, bL []byte) bool {
	if aS == nil && aL == nil {
		return true
	}
	if bS == nil && bL == nil {
		return false
	}
	return bytes.Compare(aS, bL) <= 0 && bytes.Compare(bS, aL) <= 0
}

// tryEmptyZoneLocked implements policy step 3. resourceMu must be held.
func (d *ZoneDevice) tryEmptyZoneLocked(hint zone.LifetimeHint) *zone.Zone {
	if d.activeIOZones >= d.cfg.MaxActiveZones {
		return nil
	}
	if d.freeIOZones.IsEmpty() {
		return nil
	}
	id := d.freeIOZones.Minimum()

	d.zonesMu.RLock()
	z := d.ioZones[id]
	d.zonesMu.RUnlock()
	if z == nil {
		return nil
	}
	if err := z.OpenForWrite(hint); err != nil {
		return nil
	}

	d.freeIOZones.Remove(id)
	d.openIOZones.Add(id)
	d.activeIOZones++
	d.openIOZonesCnt++
	d.metrics.zonesFree.Set(float64(d.freeIOZones.GetCardinality()))
	d.metrics.zonesOpen.Set(float64(d.openIOZonesCnt))
	d.metrics.zonesActive.Set(float64(d.activeIOZones))
	return z
}

// tryOpenHintZoneLocked implements policy step 4: among OPEN zones with
// a compatible lifetime hint and at least one free block, pick the one
// with the most remaining capacity. resourceMu must be held.
func (d *ZoneDevice) tryOpenHintZoneLocked(hint zone.LifetimeHint, minBytes uint64) *zone.Zone {
	want := minBytes
	if want < uint64(d.blockSize) {
		want = uint64(d.blockSize)
	}

	d.zonesMu.RLock()
	var best *zone.Zone
	var bestRemaining uint64
	it := d.openIOZones.Iterator()
	for it.HasNext() {
		id := it.Next()
		z, ok := d.ioZones[id]
		if !ok || !zone.Compatible(z.LifetimeHint(), hint, true) {
			continue
		}
		remaining := z.RemainingCapacity()
		if remaining < want {
			continue
		}
		if best == nil || remaining > bestRemaining {
			best, bestRemaining = z, remaining
		}
	}
	d.zonesMu.RUnlock()

	if best == nil {
		return nil
	}
	if err := best.OpenForWrite(hint); err != nil {
		return nil
	}
	return best
}

// AllocateZoneForCleaning implements the cleaner's own allocation path:
// reserved zones first, then the device's general allocate queue
// ordered by fewest valid bytes first (ties broken by most invalid
// bytes), never blocking on the active/open caps.
func (d *ZoneDevice) AllocateZoneForCleaning() (*zone.Zone, error) {
	d.zonesMu.RLock()
	for _, z := range d.reservedZone {
		if z.State() == zone.StateEmpty {
			d.zonesMu.RUnlock()
			if err := z.OpenForWrite(zone.LifetimeNotSet); err != nil {
				continue
			}
			return z, nil
		}
	}
	candidates := make([]*zone.Zone, 0, len(d.ioZones))
	for _, z := range d.ioZones {
		candidates = append(candidates, z)
	}
	d.zonesMu.RUnlock()

	q := zone.NewAllocateQueue(candidates)
	for {
		best := q.PopNext()
		if best == nil {
			return nil, zerrors.ErrNoSpace
		}
		if err := best.OpenForWrite(zone.LifetimeNotSet); err == nil {
			return best, nil
		}
	}
}

// AllocateMetaZone returns the first meta zone, in map iteration order
// (which is not defined), that is not FULL and accepts OpenForWrite. It
// keeps no position between calls, so it does not rotate through the
// meta zones, and a meta zone already open for write is returned again.
func (d *ZoneDevice) AllocateMetaZone() (*zone.Zone, error) {
	d.zonesMu.RLock()
	defer d.zonesMu.RUnlock()
	for _, z := range d.metaZones {
		if z.State() != zone.StateFull {
			if err := z.OpenForWrite(zone.LifetimeNotSet); err == nil {
				return z, nil
			}
		}
	}
	return nil, zerrors.ErrNoSpace
}
