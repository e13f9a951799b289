package device

import (
	"context"
	"fmt"
	"sync"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/INLOpen/zonefs/config"
	"github.com/INLOpen/zonefs/hooks"
	"github.com/INLOpen/zonefs/zone"
)

// CleanResult summarizes one cleaning pass.
type CleanResult struct {
	ZonesReset   int
	BytesCopied  int64
	FilesTouched int
}

// Clean runs one cleaning pass: it scores every io zone by invalid
// capacity, visits up to cfg.ZonesPerPass of the worst offenders whose
// invalid fraction clears cfg.InvalidBytesThreshold, copies each
// zone's still-valid extents forward into a cleaner-owned destination
// zone, patches the owning files' extent lists, and resets the zone
// once it is empty. Relocation of independent victim zones runs
// concurrently, bounded by errgroup; patching a single file's extent
// list is always serialized through that file's own extentMu.
func (d *ZoneDevice) Clean(ctx context.Context, cfg config.CleanerConfig) (CleanResult, error) {
	d.cleaningMu.Lock()
	defer d.cleaningMu.Unlock()

	var span trace.Span
	if d.tracer != nil {
		ctx, span = d.tracer.Start(ctx, "ZoneDevice.Clean")
		defer span.End()
	}

	if err := d.hooks.Trigger(ctx, hooks.NewPreCleanEvent(hooks.PreCleanPayload{TargetZones: cfg.ZonesPerPass})); err != nil {
		return CleanResult{}, err
	}

	d.zonesMu.RLock()
	candidates := make([]*zone.Zone, 0, len(d.ioZones))
	for _, z := range d.ioZones {
		if z.State() == zone.StateFull {
			candidates = append(candidates, z)
		}
	}
	d.zonesMu.RUnlock()

	victims := zone.NewGCVictimQueue(candidates)

	var result CleanResult
	var resultMu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i < cfg.ZonesPerPass; i++ {
		v := victims.PopVictim()
		if v == nil {
			break
		}
		total := int64(v.RemainingCapacity()) + v.UsedCapacity() + v.InvalidCapacity()
		if total <= 0 || float64(v.InvalidCapacity())/float64(total) < cfg.InvalidBytesThreshold {
			continue
		}

		victim := v
		g.Go(func() error {
			copied, touched, err := d.cleanZone(gctx, victim, cfg)
			if err != nil {
				return fmt.Errorf("cleaning zone %d: %w", victim.ID, err)
			}
			resultMu.Lock()
			result.ZonesReset++
			result.BytesCopied += copied
			result.FilesTouched += touched
			resultMu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return result, err
	}

	d.metrics.cleansRun.Inc()
	d.metrics.zonesReclaimed.Add(float64(result.ZonesReset))
	d.metrics.bytesRelocated.Add(float64(result.BytesCopied))

	d.hooks.Trigger(ctx, hooks.NewPostCleanEvent(hooks.PostCleanPayload{
		ZonesReset:   result.ZonesReset,
		BytesCopied:  result.BytesCopied,
		FilesTouched: result.FilesTouched,
	}))
	return result, nil
}

func (d *ZoneDevice) cleanZone(ctx context.Context, victim *zone.Zone, cfg config.CleanerConfig) (int64, int, error) {
	touchedFiles := map[uint64]bool{}
	var copied int64

	for _, file := range d.Files() {
		relocated := false
		for _, extent := range file.Extents() {
			if extent.Zone != victim {
				continue
			}
			if !extent.Valid() {
				continue
			}

			op := func() (*zone.Extent, error) {
				dst, err := d.AllocateZoneForCleaning()
				if err != nil {
					return nil, err
				}
				buf := make([]byte, extent.Length)
				if _, err := d.dev.ReadAt(ctx, extent.Start, buf, false); err != nil {
					dst.CloseWR()
					return nil, err
				}
				newExtent, err := dst.Append(ctx, buf)
				dst.CloseWR()
				if err != nil {
					return nil, err
				}
				return newExtent, nil
			}

			bo := backoff.NewExponentialBackOff()
			bo.InitialInterval = config.ParseDuration(cfg.RetryBackoffInitial, bo.InitialInterval, nil)
			bo.MaxInterval = config.ParseDuration(cfg.RetryBackoffMax, bo.MaxInterval, nil)

			newExtent, err := backoff.Retry(ctx, op,
				backoff.WithBackOff(bo),
				backoff.WithMaxTries(5),
			)
			if err != nil {
				return copied, len(touchedFiles), err
			}

			extent.Invalidate()
			if !file.ReplaceExtent(extent, newExtent) {
				return copied, len(touchedFiles), fmt.Errorf("cleaning zone %d: extent not found on file %d", victim.ID, file.UniqueID())
			}
			copied += int64(extent.Length)
			relocated = true

			d.hooks.Trigger(ctx, hooks.NewOnExtentRelocateEvent(hooks.ExtentRelocatePayload{
				FileID:     file.UniqueID(),
				FromZoneID: int(victim.ID),
				ToZoneID:   int(newExtent.Zone.ID),
				Length:     extent.Length,
			}))
		}
		if relocated {
			touchedFiles[file.UniqueID()] = true
		}
	}

	if err := victim.Reset(ctx); err != nil {
		return copied, len(touchedFiles), err
	}
	return copied, len(touchedFiles), nil
}
