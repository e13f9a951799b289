package zone

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// zoneWithGarbage builds a zone of the given capacity, appends
// appendedBytes of data, then invalidates invalidBytes of it (from the
// front), leaving (appendedBytes-invalidBytes) as valid/used capacity.
func zoneWithGarbage(t *testing.T, id uint32, capacity uint64, appendedBytes, invalidBytes int) *Zone {
	t.Helper()
	dev := newFakeDevice()
	z := newTestZone(dev, id, capacity)
	require.NoError(t, z.OpenForWrite(LifetimeShort))

	remaining := appendedBytes
	for remaining > 0 {
		chunk := 4096
		if remaining < chunk {
			chunk = remaining
		}
		_, err := z.Append(context.Background(), make([]byte, chunk))
		require.NoError(t, err)
		remaining -= chunk
	}
	z.CloseWR()

	if invalidBytes > 0 {
		z.Invalidate(uint32(invalidBytes))
	}
	return z
}

func TestGCVictimQueue_OrdersByMostInvalidCapacityFirst(t *testing.T) {
	low := zoneWithGarbage(t, 0, 4096*8, 4096*4, 4096)   // 3072*... invalid=4096
	high := zoneWithGarbage(t, 1, 4096*8, 4096*4, 4096*3)
	none := zoneWithGarbage(t, 2, 4096*8, 4096*4, 0)

	q := NewGCVictimQueue([]*Zone{low, high, none})
	// none has zero invalid capacity and is filtered out entirely.
	require.Equal(t, 2, q.Len())

	first := q.PopVictim()
	require.Equal(t, high.ID, first.ID)

	second := q.PopVictim()
	require.Equal(t, low.ID, second.ID)

	require.Nil(t, q.PopVictim())
}

func TestAllocateQueue_OrdersByValidAscendingThenInvalidDescending(t *testing.T) {
	// zone A: mostly empty (little valid data).
	a := zoneWithGarbage(t, 0, 4096*8, 4096, 0)
	// zone B: same valid bytes as A but more garbage - should come before A.
	b := zoneWithGarbage(t, 1, 4096*8, 4096*3, 4096*2)
	// zone C: lots of valid data, should come last.
	c := zoneWithGarbage(t, 2, 4096*8, 4096*6, 0)

	q := NewAllocateQueue([]*Zone{a, b, c})
	require.Equal(t, 3, q.Len())

	// a and b tie on valid bytes (4096 each); b carries more invalid
	// bytes (8192 vs 0) so it is preferred first under the descending
	// invalid-bytes tiebreak.
	first := q.PopNext()
	require.Equal(t, b.ID, first.ID)

	second := q.PopNext()
	require.Equal(t, a.ID, second.ID)

	third := q.PopNext()
	require.Equal(t, c.ID, third.ID)
}
