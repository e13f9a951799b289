package zone

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/INLOpen/zonefs/zbd"
	"github.com/INLOpen/zonefs/zerrors"
)

// fakeDevice is a minimal in-memory zbd.Device for exercising zone.Zone
// without a real backing file.
type fakeDevice struct {
	blockSize    uint32
	failWriteErr error
	writes       [][]byte
	finished     map[uint32]bool
	reset        map[uint32]bool
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{blockSize: 4096, finished: map[uint32]bool{}, reset: map[uint32]bool{}}
}

func (d *fakeDevice) Report(ctx context.Context) ([]zbd.ZoneReport, error) { return nil, nil }
func (d *fakeDevice) BlockSize() uint32                                   { return d.blockSize }

func (d *fakeDevice) WriteAt(ctx context.Context, zoneID uint32, off uint64, buf []byte) (int, error) {
	if d.failWriteErr != nil {
		return 0, d.failWriteErr
	}
	d.writes = append(d.writes, append([]byte(nil), buf...))
	return len(buf), nil
}

func (d *fakeDevice) ReadAt(ctx context.Context, off uint64, buf []byte, direct bool) (int, error) {
	return len(buf), nil
}

func (d *fakeDevice) ResetZone(ctx context.Context, zoneID uint32) error {
	d.reset[zoneID] = true
	return nil
}

func (d *fakeDevice) FinishZone(ctx context.Context, zoneID uint32) error {
	d.finished[zoneID] = true
	return nil
}

func (d *fakeDevice) OpenZone(ctx context.Context, zoneID uint32) error  { return nil }
func (d *fakeDevice) CloseZone(ctx context.Context, zoneID uint32) error { return nil }
func (d *fakeDevice) Close() error                                       { return nil }

func newTestZone(dev zbd.Device, id uint32, capacity uint64) *Zone {
	return NewZone(dev, zbd.ZoneReport{ID: id, Start: uint64(id) * capacity, Length: capacity})
}

func TestNewZone_FreshZoneIsEmpty(t *testing.T) {
	z := newTestZone(newFakeDevice(), 0, 4096*4)
	assert.Equal(t, StateEmpty, z.State())
	assert.EqualValues(t, 0, z.WritePointer())
}

func TestNewZone_ResumesOpenWhenWritePointerNonzero(t *testing.T) {
	dev := newFakeDevice()
	z := NewZone(dev, zbd.ZoneReport{ID: 1, Start: 0, Length: 4096 * 4, WritePointer: 4096})
	assert.Equal(t, StateOpen, z.State())
	assert.EqualValues(t, 4096, z.WritePointer())
}

func TestZone_AppendAdvancesWritePointerAndUsedCapacity(t *testing.T) {
	dev := newFakeDevice()
	z := newTestZone(dev, 0, 4096*4)
	require.NoError(t, z.OpenForWrite(LifetimeShort))

	buf := make([]byte, 4096)
	extent, err := z.Append(context.Background(), buf)
	require.NoError(t, err)
	assert.EqualValues(t, 0, extent.Start)
	assert.EqualValues(t, 4096, extent.Length)
	assert.EqualValues(t, 4096, z.WritePointer())
	assert.EqualValues(t, 4096, z.UsedCapacity())
	assert.EqualValues(t, 0, z.InvalidCapacity())
}

func TestZone_AppendFillsZoneToFull(t *testing.T) {
	dev := newFakeDevice()
	z := newTestZone(dev, 0, 4096*2)
	require.NoError(t, z.OpenForWrite(LifetimeShort))

	_, err := z.Append(context.Background(), make([]byte, 4096*2))
	require.NoError(t, err)
	assert.Equal(t, StateFull, z.State())

	_, err = z.Append(context.Background(), make([]byte, 1))
	assert.ErrorIs(t, err, zerrors.ErrBusy)
}

func TestZone_AppendRejectsOverflow(t *testing.T) {
	dev := newFakeDevice()
	z := newTestZone(dev, 0, 4096)
	require.NoError(t, z.OpenForWrite(LifetimeShort))

	_, err := z.Append(context.Background(), make([]byte, 4096*2))
	assert.ErrorIs(t, err, zerrors.ErrNoSpace)
}

func TestZone_AppendWrapsDeviceErrorAsIOError(t *testing.T) {
	dev := newFakeDevice()
	dev.failWriteErr = errors.New("device gone")
	z := newTestZone(dev, 0, 4096*4)
	require.NoError(t, z.OpenForWrite(LifetimeShort))

	_, err := z.Append(context.Background(), make([]byte, 4096))
	require.Error(t, err)
	assert.ErrorIs(t, err, zerrors.ErrIOError)
}

func TestZone_FinishFailsWhileOpenForWrite(t *testing.T) {
	dev := newFakeDevice()
	z := newTestZone(dev, 0, 4096*4)
	require.NoError(t, z.OpenForWrite(LifetimeShort))

	_, err := z.Finish(context.Background())
	assert.ErrorIs(t, err, zerrors.ErrBusy)
}

func TestZone_FinishWastesRemainingCapacity(t *testing.T) {
	dev := newFakeDevice()
	z := newTestZone(dev, 0, 4096*4)
	require.NoError(t, z.OpenForWrite(LifetimeShort))
	_, err := z.Append(context.Background(), make([]byte, 4096))
	require.NoError(t, err)
	z.CloseWR()

	wasted, err := z.Finish(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 4096*3, wasted)
	assert.Equal(t, StateFull, z.State())
	assert.True(t, dev.finished[z.ID])
}

func TestZone_ResetFailsWithLiveExtents(t *testing.T) {
	dev := newFakeDevice()
	z := newTestZone(dev, 0, 4096*4)
	require.NoError(t, z.OpenForWrite(LifetimeShort))
	_, err := z.Append(context.Background(), make([]byte, 4096))
	require.NoError(t, err)
	z.CloseWR()

	err = z.Reset(context.Background())
	assert.ErrorIs(t, err, zerrors.ErrBusy)
}

func TestZone_ResetSucceedsAfterInvalidate(t *testing.T) {
	dev := newFakeDevice()
	z := newTestZone(dev, 0, 4096*4)
	require.NoError(t, z.OpenForWrite(LifetimeShort))
	extent, err := z.Append(context.Background(), make([]byte, 4096))
	require.NoError(t, err)
	z.CloseWR()

	extent.Invalidate()
	assert.EqualValues(t, 0, z.UsedCapacity())

	require.NoError(t, z.Reset(context.Background()))
	assert.Equal(t, StateEmpty, z.State())
	assert.EqualValues(t, 0, z.WritePointer())
	assert.True(t, dev.reset[z.ID])
	assert.Empty(t, z.Extents())
}

func TestZone_InvalidCapacityTracksGarbage(t *testing.T) {
	dev := newFakeDevice()
	z := newTestZone(dev, 0, 4096*4)
	require.NoError(t, z.OpenForWrite(LifetimeShort))
	e1, err := z.Append(context.Background(), make([]byte, 4096))
	require.NoError(t, err)
	_, err = z.Append(context.Background(), make([]byte, 4096))
	require.NoError(t, err)

	e1.Invalidate()
	assert.EqualValues(t, 4096, z.InvalidCapacity())
	assert.EqualValues(t, 4096, z.UsedCapacity())
}
