package zbd

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/INLOpen/zonefs/sys"
)

// SimDevice is a file-backed stand-in for a real zoned block device: a
// single preallocated backing file sliced into fixed-size zones, with
// write-pointer and condition bookkeeping enforced in software instead
// of by hardware. It exists so the rest of this module has a concrete
// Device to open, write through, and test against without real ZBD
// hardware.
type SimDevice struct {
	path      string
	file      sys.FileHandle
	release   func() error
	blockSize uint32
	zoneSize  uint64
	numZones  uint32

	mu    sync.Mutex
	state []simZoneState
}

type simZoneState struct {
	wp        uint64 // zone-relative
	condition ZoneCondition
	zoneType  ZoneType
}

// SimDeviceOptions configures NewSimDevice.
type SimDeviceOptions struct {
	Path           string
	BlockSizeBytes int64
	ZoneSizeBytes  int64
	NumZones       int
	MetaZones      int
}

// NewSimDevice creates or reopens a backing file at opts.Path sized to
// hold opts.NumZones zones of opts.ZoneSizeBytes each, preallocating
// the full extent up front via sys.Preallocate so later writes never
// race the filesystem extending the file underneath them. It takes an
// exclusive lock on the backing path for the life of the device,
// refusing to open a file another process already holds.
func NewSimDevice(opts SimDeviceOptions) (*SimDevice, error) {
	if err := sys.MigrateLockFileToBinary(opts.Path + ".lock"); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("zonefs: migrating legacy lock file: %w", err)
	}

	release, err := sys.AcquireFileLock(opts.Path, 3, 50*time.Millisecond, 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("zonefs: locking backing file %s: %w", opts.Path, err)
	}

	fh, err := sys.OpenFile(opts.Path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		release()
		return nil, fmt.Errorf("zonefs: opening backing file %s: %w", opts.Path, err)
	}

	total := opts.ZoneSizeBytes * int64(opts.NumZones)
	if err := sys.Preallocate(fh, total); err != nil && err != sys.ErrPreallocNotSupported {
		fh.Close()
		release()
		return nil, fmt.Errorf("zonefs: preallocating backing file: %w", err)
	}

	d := &SimDevice{
		path:      opts.Path,
		file:      fh,
		release:   release,
		blockSize: uint32(opts.BlockSizeBytes),
		zoneSize:  uint64(opts.ZoneSizeBytes),
		numZones:  uint32(opts.NumZones),
		state:     make([]simZoneState, opts.NumZones),
	}
	for i := range d.state {
		d.state[i].condition = ZoneConditionEmpty
		if i < opts.MetaZones {
			d.state[i].zoneType = ZoneTypeMeta
		} else {
			d.state[i].zoneType = ZoneTypeData
		}
	}
	return d, nil
}

// Report returns the current state of every zone on the simulated
// device.
func (d *SimDevice) Report(ctx context.Context) ([]ZoneReport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	reports := make([]ZoneReport, d.numZones)
	for i := range reports {
		reports[i] = ZoneReport{
			ID:           uint32(i),
			Start:        uint64(i) * d.zoneSize,
			Length:       d.zoneSize,
			Type:         d.state[i].zoneType,
			Condition:    d.state[i].condition,
			WritePointer: d.state[i].wp,
		}
	}
	return reports, nil
}

// BlockSize returns the device's required I/O alignment.
func (d *SimDevice) BlockSize() uint32 { return d.blockSize }

// WriteAt writes buf at off, which must be the addressed zone's
// current write pointer, advancing it by len(buf).
func (d *SimDevice) WriteAt(ctx context.Context, zoneID uint32, off uint64, buf []byte) (int, error) {
	if zoneID >= d.numZones {
		return 0, fmt.Errorf("zonefs: zone %d out of range", zoneID)
	}
	if uint32(len(buf))%d.blockSize != 0 {
		return 0, fmt.Errorf("zonefs: write of %d bytes is not block-aligned", len(buf))
	}

	d.mu.Lock()
	zoneStart := uint64(zoneID) * d.zoneSize
	if off != zoneStart+d.state[zoneID].wp {
		d.mu.Unlock()
		return 0, fmt.Errorf("zonefs: write at %d does not match zone %d write pointer %d", off, zoneID, d.state[zoneID].wp)
	}
	if d.state[zoneID].wp+uint64(len(buf)) > d.zoneSize {
		d.mu.Unlock()
		return 0, fmt.Errorf("zonefs: write of %d bytes overflows zone %d", len(buf), zoneID)
	}
	d.mu.Unlock()

	n, err := d.file.WriteAt(buf, int64(off))
	if err != nil {
		return n, err
	}

	d.mu.Lock()
	d.state[zoneID].wp += uint64(n)
	if d.state[zoneID].wp >= d.zoneSize {
		d.state[zoneID].condition = ZoneConditionFull
	} else {
		d.state[zoneID].condition = ZoneConditionImplicitOpen
	}
	d.mu.Unlock()
	return n, nil
}

// ReadAt reads into buf starting at the absolute offset off. direct is
// accepted for interface parity but has no effect on the simulated
// device, which always performs a plain pread.
func (d *SimDevice) ReadAt(ctx context.Context, off uint64, buf []byte, direct bool) (int, error) {
	return d.file.ReadAt(buf, int64(off))
}

// ResetZone returns the addressed zone to EMPTY.
func (d *SimDevice) ResetZone(ctx context.Context, zoneID uint32) error {
	if zoneID >= d.numZones {
		return fmt.Errorf("zonefs: zone %d out of range", zoneID)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state[zoneID].wp = 0
	d.state[zoneID].condition = ZoneConditionEmpty
	return nil
}

// FinishZone marks the addressed zone FULL without further writes.
func (d *SimDevice) FinishZone(ctx context.Context, zoneID uint32) error {
	if zoneID >= d.numZones {
		return fmt.Errorf("zonefs: zone %d out of range", zoneID)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state[zoneID].wp = d.zoneSize
	d.state[zoneID].condition = ZoneConditionFull
	return nil
}

// OpenZone marks the addressed zone explicit-open. The simulated
// device does not enforce a hardware limit on concurrently open zones;
// device.ZoneDevice enforces the configured cap in software instead.
func (d *SimDevice) OpenZone(ctx context.Context, zoneID uint32) error {
	if zoneID >= d.numZones {
		return fmt.Errorf("zonefs: zone %d out of range", zoneID)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state[zoneID].condition != ZoneConditionFull {
		d.state[zoneID].condition = ZoneConditionExplicitOpen
	}
	return nil
}

// CloseZone marks the addressed zone closed, provided it is not FULL.
func (d *SimDevice) CloseZone(ctx context.Context, zoneID uint32) error {
	if zoneID >= d.numZones {
		return fmt.Errorf("zonefs: zone %d out of range", zoneID)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state[zoneID].condition != ZoneConditionFull {
		d.state[zoneID].condition = ZoneConditionClosed
	}
	return nil
}

// Close syncs and closes the backing file and releases the device's
// exclusive lock on its path.
func (d *SimDevice) Close() error {
	syncErr := d.file.Sync()
	closeErr := d.file.Close()
	releaseErr := d.release()
	if syncErr != nil {
		return syncErr
	}
	if closeErr != nil {
		return closeErr
	}
	return releaseErr
}
