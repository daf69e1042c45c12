package profiler

import (
	"context"
	"net/http"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// RuntimeProfiler records operation timings and session events, exposes them
// to Prometheus and periodically logs a summary.
//
// The profiler is thread-safe; timings can be recorded from any goroutine.
type RuntimeProfiler struct {
	reportInterval time.Duration
	logger         *zap.SugaredLogger

	// State management
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.RWMutex
	startTime time.Time
	running   bool

	operationTimes map[string]*TimeTracker

	registry      *prometheus.Registry
	durations     *prometheus.HistogramVec
	events        *prometheus.CounterVec
	inventorySize prometheus.Gauge
	inventoryRows prometheus.Gauge
}

// TimeTracker tracks operation timing statistics.
type TimeTracker struct {
	TotalTime time.Duration
	MinTime   time.Duration
	MaxTime   time.Duration
	Count     int64
}

// Average returns the mean duration.
func (t TimeTracker) Average() time.Duration {
	if t.Count == 0 {
		return 0
	}
	return t.TotalTime / time.Duration(t.Count)
}

// ProfilingOptions configures the runtime profiler.
type ProfilingOptions struct {
	// ReportInterval specifies how often to log a summary (default: 30s).
	ReportInterval time.Duration
	// Namespace prefixes every metric name (default: "pantry").
	Namespace string
	// Logger receives the periodic summary. Nil disables it.
	Logger *zap.SugaredLogger
}

// NewRuntimeProfiler creates a new runtime profiler with the specified options.
//
// Arguments:
// - opts: Configuration options for the profiler
//
// Returns:
// - A configured RuntimeProfiler instance
func NewRuntimeProfiler(opts ProfilingOptions) *RuntimeProfiler {
	if opts.ReportInterval == 0 {
		opts.ReportInterval = 30 * time.Second
	}
	if opts.Namespace == "" {
		opts.Namespace = "pantry"
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}

	ctx, cancel := context.WithCancel(context.Background())

	rp := &RuntimeProfiler{
		reportInterval: opts.ReportInterval,
		logger:         opts.Logger,
		ctx:            ctx,
		cancel:         cancel,
		startTime:      time.Now(),
		operationTimes: make(map[string]*TimeTracker),
		registry:       prometheus.NewRegistry(),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: opts.Namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of timed operations such as inference and annotation",
			Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"operation"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: opts.Namespace,
			Name:      "events_total",
			Help:      "Session events by kind",
		}, []string{"event"}),
		inventorySize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: opts.Namespace,
			Name:      "inventory_items",
			Help:      "Sum of detected counts over all labels",
		}),
		inventoryRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: opts.Namespace,
			Name:      "inventory_labels",
			Help:      "Number of distinct labels in the inventory",
		}),
	}

	rp.registry.MustRegister(
		rp.durations,
		rp.events,
		rp.inventorySize,
		rp.inventoryRows,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	rp.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: opts.Namespace,
			Name:      "uptime_seconds",
			Help:      "Seconds since the profiler was created",
		},
		func() float64 { return time.Since(rp.startTime).Seconds() },
	))

	return rp
}

// Start begins periodic summary logging. Calling it more than once is safe.
func (rp *RuntimeProfiler) Start() {
	rp.mu.Lock()
	defer rp.mu.Unlock()

	if rp.running {
		return
	}
	rp.running = true

	rp.wg.Add(1)
	go func() {
		defer rp.wg.Done()

		ticker := time.NewTicker(rp.reportInterval)
		defer ticker.Stop()

		for {
			select {
			case <-rp.ctx.Done():
				return
			case <-ticker.C:
				rp.emitStatusReport()
			}
		}
	}()
}

// Stop gracefully stops the profiler and waits for all goroutines to complete.
func (rp *RuntimeProfiler) Stop() {
	rp.mu.Lock()
	if !rp.running {
		rp.mu.Unlock()
		return
	}
	rp.running = false
	rp.mu.Unlock()

	rp.cancel()
	rp.wg.Wait()
}

// StartOperation begins timing an operation.
//
// Arguments:
// - name: The name of the operation to track
//
// Returns:
// - A function to call when the operation completes
func (rp *RuntimeProfiler) StartOperation(name string) func() {
	start := time.Now()
	return func() {
		rp.recordOperationTime(name, time.Since(start))
	}
}

// RecordEvent counts one occurrence of a session event.
func (rp *RuntimeProfiler) RecordEvent(name string) {
	rp.events.WithLabelValues(name).Inc()
}

// SetInventorySize publishes the current inventory totals.
//
// Arguments:
// - labels: Distinct labels in the inventory.
// - items: Sum of all detected counts.
func (rp *RuntimeProfiler) SetInventorySize(labels, items int) {
	rp.inventoryRows.Set(float64(labels))
	rp.inventorySize.Set(float64(items))
}

// Registry returns the registry holding every profiler metric.
func (rp *RuntimeProfiler) Registry() *prometheus.Registry {
	return rp.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (rp *RuntimeProfiler) Handler() http.Handler {
	return promhttp.HandlerFor(rp.registry, promhttp.HandlerOpts{})
}

// Operations returns a snapshot of the timing statistics per operation.
func (rp *RuntimeProfiler) Operations() map[string]TimeTracker {
	rp.mu.RLock()
	defer rp.mu.RUnlock()

	out := make(map[string]TimeTracker, len(rp.operationTimes))
	for name, t := range rp.operationTimes {
		out[name] = *t
	}
	return out
}

// recordOperationTime records the completion time of an operation.
func (rp *RuntimeProfiler) recordOperationTime(name string, duration time.Duration) {
	rp.durations.WithLabelValues(name).Observe(duration.Seconds())

	rp.mu.Lock()
	defer rp.mu.Unlock()

	tracker, exists := rp.operationTimes[name]
	if !exists {
		tracker = &TimeTracker{MinTime: duration, MaxTime: duration}
		rp.operationTimes[name] = tracker
	}

	tracker.TotalTime += duration
	tracker.Count++

	if duration < tracker.MinTime {
		tracker.MinTime = duration
	}
	if duration > tracker.MaxTime {
		tracker.MaxTime = duration
	}
}

// emitStatusReport logs one line per operation plus runtime figures.
func (rp *RuntimeProfiler) emitStatusReport() {
	ops := rp.Operations()

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	rp.logger.Infow("runtime status",
		"uptime", time.Since(rp.startTime).Truncate(time.Second).String(),
		"goroutines", runtime.NumGoroutine(),
		"heap_alloc", mem.HeapAlloc,
		"gc_cycles", mem.NumGC,
	)

	names := make([]string, 0, len(ops))
	for name := range ops {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		t := ops[name]
		rp.logger.Infow("operation timing",
			"operation", name,
			"avg", t.Average().Truncate(time.Microsecond).String(),
			"min", t.MinTime.Truncate(time.Microsecond).String(),
			"max", t.MaxTime.Truncate(time.Microsecond).String(),
			"count", t.Count,
		)
	}
}
