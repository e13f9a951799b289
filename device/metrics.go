package device

import (
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v3/disk"
)

var deviceMetricsRegisterOnce sync.Once

// deviceMetrics holds the Prometheus collectors a ZoneDevice publishes.
// They are registered exactly once per process regardless of how many
// ZoneDevice instances are opened, the same guarded-global pattern the
// example pack uses for package-level collectors.
type deviceMetrics struct {
	zonesTotal       prometheus.Gauge
	zonesFree        prometheus.Gauge
	zonesOpen        prometheus.Gauge
	zonesActive      prometheus.Gauge
	bytesWritten     prometheus.Counter
	allocations      prometheus.Counter
	allocationStalls prometheus.Counter
	cleansRun        prometheus.Counter
	zonesReclaimed   prometheus.Counter
	bytesRelocated   prometheus.Counter
}

func newDeviceMetrics() *deviceMetrics {
	m := &deviceMetrics{
		zonesTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "zonefs", Subsystem: "device", Name: "io_zones_total",
			Help: "Number of io zones on the device.",
		}),
		zonesFree: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "zonefs", Subsystem: "device", Name: "io_zones_free",
			Help: "Number of io zones currently in the EMPTY state.",
		}),
		zonesOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "zonefs", Subsystem: "device", Name: "io_zones_open",
			Help: "Number of io zones currently holding an open write token.",
		}),
		zonesActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "zonefs", Subsystem: "device", Name: "io_zones_active",
			Help: "Number of io zones counted against the active-zone admission limit.",
		}),
		bytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "zonefs", Subsystem: "device", Name: "bytes_written_total",
			Help: "Total bytes appended across all io zones.",
		}),
		allocations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "zonefs", Subsystem: "device", Name: "allocations_total",
			Help: "Total successful zone allocations.",
		}),
		allocationStalls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "zonefs", Subsystem: "device", Name: "allocation_stalls_total",
			Help: "Total allocations that had to wait for an admission slot.",
		}),
		cleansRun: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "zonefs", Subsystem: "cleaner", Name: "passes_total",
			Help: "Total cleaning passes run.",
		}),
		zonesReclaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "zonefs", Subsystem: "cleaner", Name: "zones_reclaimed_total",
			Help: "Total zones reset by the cleaner.",
		}),
		bytesRelocated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "zonefs", Subsystem: "cleaner", Name: "bytes_relocated_total",
			Help: "Total bytes copied forward by the cleaner out of victim zones.",
		}),
	}

	deviceMetricsRegisterOnce.Do(func() {
		prometheus.MustRegister(
			m.zonesTotal, m.zonesFree, m.zonesOpen, m.zonesActive,
			m.bytesWritten, m.allocations, m.allocationStalls,
			m.cleansRun, m.zonesReclaimed, m.bytesRelocated,
		)
	})
	return m
}

// HostDiskCollector periodically samples host-level disk utilization
// for the backing store's mount point via gopsutil, publishing it
// alongside the zone-level Prometheus metrics above. It exists because
// zone-level accounting alone can't see filesystem-level effects (a
// simulated device backed by a file on a nearly-full host volume).
type HostDiskCollector struct {
	path     string
	interval time.Duration
	usedPct  prometheus.Gauge
	logger   *slog.Logger
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewHostDiskCollector builds a collector for the filesystem mounted at
// path. Start must be called to begin sampling.
func NewHostDiskCollector(path string, interval time.Duration, logger *slog.Logger) *HostDiskCollector {
	if logger == nil {
		logger = slog.Default()
	}
	c := &HostDiskCollector{
		path:     path,
		interval: interval,
		logger:   logger.With("component", "HostDiskCollector"),
		stopCh:   make(chan struct{}),
		usedPct: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "zonefs", Subsystem: "device", Name: "host_disk_used_percent",
			Help: "Host filesystem utilization of the backing store's mount point.",
		}),
	}
	prometheus.Register(c.usedPct) //nolint:errcheck // duplicate registration across devices sharing a path is harmless
	return c
}

// Start begins the periodic sampling loop.
func (c *HostDiskCollector) Start() {
	c.wg.Add(1)
	go c.loop()
}

// Stop halts sampling and waits for the loop to exit.
func (c *HostDiskCollector) Stop() {
	close(c.stopCh)
	c.wg.Wait()
}

func (c *HostDiskCollector) loop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if du, err := disk.Usage(c.path); err == nil {
				c.usedPct.Set(du.UsedPercent)
			} else {
				c.logger.Warn("failed to sample host disk usage", "path", c.path, "error", err)
			}
		case <-c.stopCh:
			return
		}
	}
}
