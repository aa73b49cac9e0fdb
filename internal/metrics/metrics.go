// Package metrics is a small Prometheus-compatible collector for the bot's
// counters and gauges. It writes text/plain exposition format directly,
// without pulling in prometheus/client_golang.
package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Default is the process-wide collector.
var Default = NewCollector()

// Collector aggregates named counters and gauges.
type Collector struct {
	mu        sync.Mutex
	counters  map[string]*Counter
	gauges    map[string]*Gauge
	startTime time.Time
}

func NewCollector() *Collector {
	return &Collector{
		counters:  make(map[string]*Counter),
		gauges:    make(map[string]*Gauge),
		startTime: time.Now(),
	}
}

// Counter is a monotonically increasing counter.
type Counter struct {
	name  string
	help  string
	value atomic.Int64
}

func (c *Counter) Inc()         { c.value.Add(1) }
func (c *Counter) Add(n int64)  { c.value.Add(n) }
func (c *Counter) Value() int64 { return c.value.Load() }

// Gauge is a value that can go up and down.
type Gauge struct {
	name  string
	help  string
	value atomic.Int64
}

func (g *Gauge) Set(v int64)  { g.value.Store(v) }
func (g *Gauge) Inc()         { g.value.Add(1) }
func (g *Gauge) Dec()         { g.value.Add(-1) }
func (g *Gauge) Value() int64 { return g.value.Load() }

// Counter returns (creating if needed) the counter with the given name.
// Labels are baked into the name, e.g. `updates_total{kind="voice"}`.
func (c *Collector) Counter(name, help string) *Counter {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.counters[name]; ok {
		return existing
	}
	counter := &Counter{name: name, help: help}
	c.counters[name] = counter
	return counter
}

func (c *Collector) Gauge(name, help string) *Gauge {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.gauges[name]; ok {
		return existing
	}
	gauge := &Gauge{name: name, help: help}
	c.gauges[name] = gauge
	return gauge
}

// WriteTo renders the exposition format, sorted by metric name so output
// is stable for scrapers and tests.
func (c *Collector) WriteTo(w http.ResponseWriter) {
	c.mu.Lock()
	names := make([]string, 0, len(c.counters)+len(c.gauges))
	lines := make(map[string]string, len(c.counters)+len(c.gauges))
	for name, counter := range c.counters {
		names = append(names, name)
		lines[name] = formatMetric(name, counter.help, "counter", counter.Value())
	}
	for name, gauge := range c.gauges {
		names = append(names, name)
		lines[name] = formatMetric(name, gauge.help, "gauge", gauge.Value())
	}
	c.mu.Unlock()

	sort.Strings(names)
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	for _, name := range names {
		fmt.Fprint(w, lines[name])
	}
	fmt.Fprintf(w, "# HELP process_uptime_seconds Seconds since the process started.\n# TYPE process_uptime_seconds gauge\nprocess_uptime_seconds %d\n",
		int64(time.Since(c.startTime).Seconds()))
}

func formatMetric(name, help, kind string, value int64) string {
	// Labels live inside the name; HELP/TYPE lines use the bare name.
	bare := name
	if i := strings.IndexByte(name, '{'); i >= 0 {
		bare = name[:i]
	}
	return fmt.Sprintf("# HELP %s %s\n# TYPE %s %s\n%s %d\n", bare, help, bare, kind, name, value)
}

// Handler serves the collector over HTTP.
func (c *Collector) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.WriteTo(w)
	})
}
