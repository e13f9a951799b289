package wfile

import (
	"context"
	"testing"

	"github.com/INLOpen/zonefs/zbd"
	"github.com/INLOpen/zonefs/zone"
	"github.com/INLOpen/zonefs/zonefile"
)

// stubDevice is a minimal in-memory zbd.Device, keyed by absolute
// offset so PositionedRead round trips through whatever WriteAt wrote.
type stubDevice struct {
	blockSize uint32
	data      map[uint64][]byte
}

func newStubDevice(blockSize uint32) *stubDevice {
	return &stubDevice{blockSize: blockSize, data: map[uint64][]byte{}}
}

func (d *stubDevice) Report(ctx context.Context) ([]zbd.ZoneReport, error) { return nil, nil }
func (d *stubDevice) BlockSize() uint32                                   { return d.blockSize }

func (d *stubDevice) WriteAt(ctx context.Context, zoneID uint32, off uint64, buf []byte) (int, error) {
	d.data[off] = append([]byte(nil), buf...)
	return len(buf), nil
}

func (d *stubDevice) ReadAt(ctx context.Context, off uint64, buf []byte, direct bool) (int, error) {
	if b, ok := d.data[off]; ok {
		return copy(buf, b), nil
	}
	return len(buf), nil
}

func (d *stubDevice) ResetZone(ctx context.Context, zoneID uint32) error  { return nil }
func (d *stubDevice) FinishZone(ctx context.Context, zoneID uint32) error { return nil }
func (d *stubDevice) OpenZone(ctx context.Context, zoneID uint32) error  { return nil }
func (d *stubDevice) CloseZone(ctx context.Context, zoneID uint32) error { return nil }
func (d *stubDevice) Close() error                                       { return nil }

// stubAllocator hands out fresh, already-open zones of a fixed capacity.
type stubAllocator struct {
	dev      zbd.Device
	capacity uint64
	nextID   uint32
}

func (a *stubAllocator) AllocateZone(ctx context.Context, hint zone.LifetimeHint, minBytes uint64) (*zone.Zone, error) {
	id := a.nextID
	a.nextID++
	z := zone.NewZone(a.dev, zbd.ZoneReport{ID: id, Start: uint64(id) * a.capacity, Length: a.capacity})
	if err := z.OpenForWrite(hint); err != nil {
		return nil, err
	}
	return z, nil
}

func newTestFile(t *testing.T, blockSize int, zoneCapacity uint64) *zonefile.ZoneFile {
	t.Helper()
	dev := newStubDevice(uint32(blockSize))
	alloc := &stubAllocator{dev: dev, capacity: zoneCapacity}
	return zonefile.NewZoneFile(dev, alloc, "000001.sst", zone.LifetimeShort, 0)
}
