package device

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestDeviceMetrics_CountersAndGaugesAreUsable(t *testing.T) {
	m := newDeviceMetrics()

	m.zonesTotal.Set(10)
	m.zonesFree.Set(4)
	m.allocations.Inc()
	m.allocationStalls.Inc()
	m.bytesRelocated.Add(4096)

	assert.Equal(t, float64(10), testutil.ToFloat64(m.zonesTotal))
	assert.Equal(t, float64(4), testutil.ToFloat64(m.zonesFree))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.allocations))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.allocationStalls))
	assert.Equal(t, float64(4096), testutil.ToFloat64(m.bytesRelocated))
}

func TestHostDiskCollector_StartStopDoesNotHang(t *testing.T) {
	c := NewHostDiskCollector(t.TempDir(), 10*time.Millisecond, nil)
	c.Start()
	time.Sleep(25 * time.Millisecond)
	c.Stop()
}
