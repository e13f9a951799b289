// Package device orchestrates the zones reported by a zbd.Device into
// the pools, registries, and admission limits the rest of the module
// allocates against: io zones for file data, meta zones for the
// metadata journal, and reserved zones held back for the cleaner.
package device

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"sync"

	"github.com/INLOpen/skiplist"
	"github.com/RoaringBitmap/roaring"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/INLOpen/zonefs/config"
	"github.com/INLOpen/zonefs/hooks"
	"github.com/INLOpen/zonefs/zbd"
	"github.com/INLOpen/zonefs/zone"
	"github.com/INLOpen/zonefs/zonefile"
)

// ZoneDevice is the top-level handle the rest of the module opens once
// per backing device. It owns every zone.Zone, enforces the
// max-active/max-open admission limits, and is the ZoneAllocator every
// zonefile.ZoneFile allocates through.
type ZoneDevice struct {
	dev    zbd.Device
	cfg    config.DeviceConfig
	logger *slog.Logger
	hooks  hooks.HookManager

	blockSize uint32

	zonesMu      sync.RWMutex
	ioZones      map[uint32]*zone.Zone
	metaZones    map[uint32]*zone.Zone
	reservedZone map[uint32]*zone.Zone

	// freeIOZones and openIOZones are bitmaps over io zone ids, kept in
	// sync with each zone's own State() so the allocator can do set
	// algebra (which zones are both open and lifetime-compatible)
	// without locking and scanning every zone.Zone in turn.
	freeIOZones *roaring.Bitmap
	openIOZones *roaring.Bitmap

	resourceMu     sync.Mutex
	resourceCond   *sync.Cond
	activeIOZones  int
	openIOZonesCnt int
	closed         bool

	// files is the ordered registry of every open ZoneFile, keyed by
	// name. ZenFS keeps this as a std::map for deterministic ordered
	// iteration during recovery and listing; skiplist.SkipList is its
	// direct Go analog, unlike a plain map which has none.
	filesMu sync.RWMutex
	files   *skiplist.SkipList[string, *zonefile.ZoneFile]

	cleaningMu sync.Mutex

	metrics *deviceMetrics
	// tracer is nil unless cfg.Tracing.Enabled; every span-creating call
	// site checks for nil first the same way LevelsManager does, so
	// tracing is free when disabled instead of emitting no-op spans.
	tracer trace.Tracer
}

func filenameComparator(a, b string) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

// Open reports the device's zones and classifies them into the io,
// meta, and reserved pools per cfg, then returns a ready ZoneDevice.
// Any pre-existing write pointers reported by the device (a restart
// with data already on disk) are preserved as-is. Open does not rebuild
// the extent/file registry from the metadata journal; callers do that
// afterwards with Recover.
func Open(ctx context.Context, dev zbd.Device, cfg config.DeviceConfig, tracing config.TracingConfig, hm hooks.HookManager, logger *slog.Logger) (*ZoneDevice, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if hm == nil {
		hm = hooks.NewHookManager(logger)
	}

	var tracer trace.Tracer
	if tracing.Enabled {
		name := tracing.ServiceName
		if name == "" {
			name = "zonefs"
		}
		tracer = otel.Tracer(name)
	}

	if err := hm.Trigger(ctx, hooks.NewPreDeviceOpenEvent()); err != nil {
		return nil, err
	}

	reports, err := dev.Report(ctx)
	if err != nil {
		return nil, fmt.Errorf("zonefs: reporting zones: %w", err)
	}
	sort.Slice(reports, func(i, j int) bool { return reports[i].Start < reports[j].Start })

	d := &ZoneDevice{
		dev:          dev,
		cfg:          cfg,
		logger:       logger,
		hooks:        hm,
		blockSize:    dev.BlockSize(),
		ioZones:      make(map[uint32]*zone.Zone),
		metaZones:    make(map[uint32]*zone.Zone),
		reservedZone: make(map[uint32]*zone.Zone),
		freeIOZones:  roaring.New(),
		openIOZones:  roaring.New(),
		files:        skiplist.NewWithComparator[string, *zonefile.ZoneFile](filenameComparator),
		metrics:      newDeviceMetrics(),
		tracer:       tracer,
	}
	d.resourceCond = sync.NewCond(&d.resourceMu)

	metaWant := cfg.NumMetaZones
	reservedWant := cfg.NumReservedZones
	for _, r := range reports {
		z := zone.NewZone(dev, r)
		switch {
		case metaWant > 0:
			d.metaZones[z.ID] = z
			metaWant--
		case reservedWant > 0:
			d.reservedZone[z.ID] = z
			reservedWant--
		default:
			d.ioZones[z.ID] = z
			if z.State() == zone.StateEmpty {
				d.freeIOZones.Add(z.ID)
			} else if z.State() == zone.StateOpen {
				d.openIOZones.Add(z.ID)
				d.openIOZonesCnt++
				d.activeIOZones++
			}
		}
	}

	d.metrics.zonesTotal.Set(float64(len(d.ioZones)))
	d.metrics.zonesFree.Set(float64(d.freeIOZones.GetCardinality()))

	if err := hm.Trigger(ctx, hooks.NewPostDeviceOpenEvent()); err != nil {
		return nil, err
	}
	return d, nil
}

// Close marks the device shut down and wakes any in-flight admission
// waiters so they return ErrShutdown (it does not wait for them to
// return), stops the hook manager, and releases the underlying device.
func (d *ZoneDevice) Close(ctx context.Context) error {
	if err := d.hooks.Trigger(ctx, hooks.NewPreDeviceCloseEvent()); err != nil {
		d.logger.Warn("pre-device-close hook failed", "error", err)
	}

	d.resourceMu.Lock()
	d.closed = true
	d.resourceCond.Broadcast()
	d.resourceMu.Unlock()

	d.hooks.Stop()
	err := d.dev.Close()
	d.hooks.Trigger(ctx, hooks.NewPostDeviceCloseEvent())
	return err
}

// IOZone looks up an io zone by id.
func (d *ZoneDevice) IOZone(id uint32) (*zone.Zone, bool) {
	d.zonesMu.RLock()
	defer d.zonesMu.RUnlock()
	z, ok := d.ioZones[id]
	return z, ok
}

// RegisterFile adds a ZoneFile to the device's ordered file registry,
// used by the metadata recovery path and by Clean to find every file
// referencing a given zone.
func (d *ZoneDevice) RegisterFile(f *zonefile.ZoneFile) {
	d.filesMu.Lock()
	defer d.filesMu.Unlock()
	d.files.Insert(f.Filename(), f)
}

// UnregisterFile marks a file deleted in the registry, used when a file
// is deleted by the caller above. The skiplist has no delete primitive
// the teacher's own usage exercises, so a tombstone entry takes the
// slot instead, the same way an LSM memtable represents a delete.
func (d *ZoneDevice) UnregisterFile(name string) {
	d.filesMu.Lock()
	defer d.filesMu.Unlock()
	d.files.Insert(name, nil)
}

// ResolveZone looks up a zone by id across every pool the device
// manages (io, meta, reserved), satisfying zonefile.ZoneResolver so
// Recover can turn a journal's numeric ZoneID fields back into live
// zones.
func (d *ZoneDevice) ResolveZone(id uint32) (*zone.Zone, bool) {
	d.zonesMu.RLock()
	defer d.zonesMu.RUnlock()
	if z, ok := d.ioZones[id]; ok {
		return z, true
	}
	if z, ok := d.metaZones[id]; ok {
		return z, true
	}
	if z, ok := d.reservedZone[id]; ok {
		return z, true
	}
	return nil, false
}

// Recover replays a metadata journal record stream into the device's
// file registry. Callers run this once, immediately after Open and
// before any NewFile call, on a restart: recovered files keep the
// FileID they held before the crash, and NewFile's id counter is
// advanced past every id Recover sees so a freshly created file can
// never collide with one.
func (d *ZoneDevice) Recover(ctx context.Context, r io.Reader) error {
	files, err := zonefile.Replay(r, d.dev, d, d)
	if err != nil {
		return fmt.Errorf("zonefs: replaying metadata journal: %w", err)
	}
	for _, f := range files {
		d.RegisterFile(f)
	}
	return nil
}

// DeleteFile invalidates every extent the named file owns and removes
// it from the registry. The invalidations release their bytes back to
// each owning zone's garbage tally, making the cleaner eligible to
// reclaim them; if journal is non-nil, one invalidate record per
// extent and a trailing delete record are written so Recover can
// reproduce the same deletion after a crash.
func (d *ZoneDevice) DeleteFile(ctx context.Context, name string, journal zonefile.RecordWriter) error {
	f, ok := d.File(name)
	if !ok {
		return fmt.Errorf("zonefs: delete %q: %w", name, os.ErrNotExist)
	}

	if err := f.WaitForDrain(ctx); err != nil {
		return err
	}

	for _, e := range f.Extents() {
		e.Invalidate()
		if journal != nil {
			if err := f.EncodeInvalidateTo(journal, e); err != nil {
				return err
			}
		}
		d.hooks.Trigger(ctx, hooks.NewOnExtentInvalidateEvent(hooks.ExtentInvalidatePayload{
			ZoneID: int(e.Zone.ID),
			FileID: f.UniqueID(),
			Length: e.Length,
		}))
	}

	if journal != nil {
		if err := f.EncodeDeleteTo(journal); err != nil {
			return err
		}
	}

	d.UnregisterFile(name)
	return nil
}

// File looks up a registered, non-deleted file by name.
func (d *ZoneDevice) File(name string) (*zonefile.ZoneFile, bool) {
	d.filesMu.RLock()
	defer d.filesMu.RUnlock()
	node, ok := d.files.Seek(name)
	if !ok || node.Key() != name {
		return nil, false
	}
	f := node.Value()
	return f, f != nil
}

// Files returns every registered, non-deleted file in filename order.
func (d *ZoneDevice) Files() []*zonefile.ZoneFile {
	d.filesMu.RLock()
	defer d.filesMu.RUnlock()
	out := make([]*zonefile.ZoneFile, 0, d.files.Len())
	d.files.Range(func(name string, f *zonefile.ZoneFile) bool {
		if f != nil {
			out = append(out, f)
		}
		return true
	})
	return out
}

// NewFile creates and registers an empty ZoneFile backed by this device.
func (d *ZoneDevice) NewFile(name string, lifetime zone.LifetimeHint, level int32) *zonefile.ZoneFile {
	f := zonefile.NewZoneFile(d.dev, d, name, lifetime, level)
	d.RegisterFile(f)
	return f
}

// waitForResourceLocked blocks until either a slot frees up, the device
// is closed, or ctx is cancelled. resourceMu must be held on entry and
// is held again on return. This follows the same cancellable
// condition-variable wait shape the core used for sequence-number
// waits: a helper goroutine owns the Wait() call so ctx.Done() can
// still unblock the caller by broadcasting.
func (d *ZoneDevice) waitForResourceLocked(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.resourceMu.Lock()
		d.resourceCond.Wait()
		d.resourceMu.Unlock()
		close(done)
	}()
	d.resourceMu.Unlock()

	select {
	case <-done:
		d.resourceMu.Lock()
		return nil
	case <-ctx.Done():
		d.resourceMu.Lock()
		d.resourceCond.Broadcast()
		d.resourceMu.Unlock()
		<-done
		d.resourceMu.Lock()
		return ctx.Err()
	}
}
