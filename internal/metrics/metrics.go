// Package metrics is a lightweight counter collector that renders
// Prometheus text exposition format without pulling in client_golang.
package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Collector aggregates named counters.
type Collector struct {
	mu        sync.Mutex
	counters  map[string]*Counter
	startTime time.Time
}

func NewCollector() *Collector {
	return &Collector{
		counters:  make(map[string]*Counter),
		startTime: time.Now(),
	}
}

// Counter is a monotonically increasing counter.
type Counter struct {
	name  string
	help  string
	value atomic.Int64
}

func (c *Counter) Inc() { c.value.Add(1) }

func (c *Counter) Add(n int64) { c.value.Add(n) }

func (c *Counter) Value() int64 { return c.value.Load() }

// Counter returns the counter with the given name, registering it on first
// use.
func (c *Collector) Counter(name, help string) *Counter {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.counters[name]; ok {
		return existing
	}
	ctr := &Counter{name: name, help: help}
	c.counters[name] = ctr
	return ctr
}

// Handler serves the collector in Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")

		c.mu.Lock()
		names := make([]string, 0, len(c.counters))
		for name := range c.counters {
			names = append(names, name)
		}
		sort.Strings(names)
		counters := make([]*Counter, 0, len(names))
		for _, name := range names {
			counters = append(counters, c.counters[name])
		}
		c.mu.Unlock()

		for _, ctr := range counters {
			fmt.Fprintf(w, "# HELP %s %s\n", ctr.name, ctr.help)
			fmt.Fprintf(w, "# TYPE %s counter\n", ctr.name)
			fmt.Fprintf(w, "%s %d\n", ctr.name, ctr.Value())
		}

		fmt.Fprintf(w, "# HELP dimeagent_uptime_seconds Seconds since the collector started\n")
		fmt.Fprintf(w, "# TYPE dimeagent_uptime_seconds gauge\n")
		fmt.Fprintf(w, "dimeagent_uptime_seconds %.0f\n", time.Since(c.startTime).Seconds())
	})
}
