package infrastructure

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// RuntimeStats is a point-in-time view of the process, served by the health
// endpoint
type RuntimeStats struct {
	Goroutines    int       `json:"goroutines"`
	HeapAllocMB   uint64    `json:"heap_alloc_mb"`
	SysMB         uint64    `json:"sys_mb"`
	GCCount       uint32    `json:"gc_count"`
	LastGCPauseMS int64     `json:"last_gc_pause_ms"`
	CPUCount      int       `json:"cpu_count"`
	UptimeSeconds float64   `json:"uptime_seconds"`
	Timestamp     time.Time `json:"timestamp"`
}

// RuntimeCollector samples Go runtime statistics into gauges at a fixed
// interval
type RuntimeCollector struct {
	goroutines metric.Int64Gauge
	heapAlloc  metric.Int64Gauge
	sys        metric.Int64Gauge
	uptime     metric.Float64Gauge

	startTime time.Time
	interval  time.Duration
	stopCh    chan struct{}
	stopOnce  sync.Once
}

// NewRuntimeCollector registers the runtime gauges on meter
func NewRuntimeCollector(meter metric.Meter, interval time.Duration) (*RuntimeCollector, error) {
	goroutines, err1 := meter.Int64Gauge("runtime_goroutines",
		metric.WithDescription("Number of active goroutines"))
	heapAlloc, err2 := meter.Int64Gauge("runtime_heap_alloc_bytes",
		metric.WithDescription("Heap bytes allocated and in use"), metric.WithUnit("By"))
	sys, err3 := meter.Int64Gauge("runtime_sys_bytes",
		metric.WithDescription("Memory obtained from the OS"), metric.WithUnit("By"))
	uptime, err4 := meter.Float64Gauge("process_uptime_seconds",
		metric.WithDescription("Process uptime in seconds"), metric.WithUnit("s"))
	if err := errors.Join(err1, err2, err3, err4); err != nil {
		return nil, err
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}

	return &RuntimeCollector{
		goroutines: goroutines,
		heapAlloc:  heapAlloc,
		sys:        sys,
		uptime:     uptime,
		startTime:  time.Now(),
		interval:   interval,
		stopCh:     make(chan struct{}),
	}, nil
}

// Collect samples the runtime and records the gauges
func (c *RuntimeCollector) Collect(ctx context.Context) RuntimeStats {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	stats := RuntimeStats{
		Goroutines:    runtime.NumGoroutine(),
		HeapAllocMB:   mem.HeapAlloc / 1024 / 1024,
		SysMB:         mem.Sys / 1024 / 1024,
		GCCount:       mem.NumGC,
		LastGCPauseMS: time.Duration(mem.PauseNs[(mem.NumGC+255)%256]).Milliseconds(),
		CPUCount:      runtime.NumCPU(),
		UptimeSeconds: time.Since(c.startTime).Seconds(),
		Timestamp:     time.Now(),
	}

	c.goroutines.Record(ctx, int64(stats.Goroutines))
	c.heapAlloc.Record(ctx, int64(mem.HeapAlloc))
	c.sys.Record(ctx, int64(mem.Sys))
	c.uptime.Record(ctx, stats.UptimeSeconds)
	return stats
}

// Start collects until ctx is done or Stop is called
func (c *RuntimeCollector) Start(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.Collect(ctx)
	for {
		select {
		case <-ticker.C:
			c.Collect(ctx)
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop ends collection; it is safe to call more than once
func (c *RuntimeCollector) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}
