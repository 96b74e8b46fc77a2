// Package metrics exposes the runtime's internal state as Prometheus
// metrics for the ground test bench (spec.md's Domain Stack: an
// observability surface was not itself named by spec.md's distilled
// scope, but every numeric subsystem it does name — the allocator,
// transport queues, the scheduler — already keeps the counters this
// package just needs to read and republish). Grounded on
// _examples/runZeroInc-sockstats/pkg/exporter/exporter.go's pull-based
// custom prometheus.Collector (Describe/Collect reading live state under a
// mutex) rather than push-style Inc()/Set() calls scattered through the
// hot path, since every source here (memsys.Diagnostics, xreg's port
// counts) is already a point-in-time snapshot.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/cubesat-core/flightsw/memsys"
	"github.com/cubesat-core/flightsw/xreg"
)

// Collector reads the allocator and registration-manager snapshots on
// every scrape; it holds no counters of its own.
type Collector struct {
	alloc *memsys.Allocator
	reg   *xreg.Manager

	capacity      *prometheus.Desc
	allocated     *prometheus.Desc
	peakAllocated *prometheus.Desc
	oomCount      *prometheus.Desc
	healthy       *prometheus.Desc

	subscriptions *prometheus.Desc
	publications  *prometheus.Desc
	clients       *prometheus.Desc
	servers       *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector constructs a Collector over alloc and reg. Neither argument
// may be nil; both live for the process lifetime (spec §9: "Global state.
// Logger sinks and the heap instance are process-wide singletons").
func NewCollector(alloc *memsys.Allocator, reg *xreg.Manager) *Collector {
	ns := "flightsw"
	return &Collector{
		alloc: alloc,
		reg:   reg,

		capacity:      prometheus.NewDesc(ns+"_allocator_capacity_bytes", "Allocator arena capacity in bytes.", nil, nil),
		allocated:     prometheus.NewDesc(ns+"_allocator_allocated_bytes", "Currently allocated bytes.", nil, nil),
		peakAllocated: prometheus.NewDesc(ns+"_allocator_peak_allocated_bytes", "High-water mark of allocated bytes.", nil, nil),
		oomCount:      prometheus.NewDesc(ns+"_allocator_oom_total", "Allocation requests that failed for lack of capacity.", nil, nil),
		healthy:       prometheus.NewDesc(ns+"_allocator_healthy", "1 if allocated <= peak allocated <= capacity holds, 0 otherwise.", nil, nil),

		subscriptions: prometheus.NewDesc(ns+"_registered_ports", "Currently claimed ports by role.", []string{"role"}, nil),
		publications:  prometheus.NewDesc(ns+"_registered_ports", "Currently claimed ports by role.", []string{"role"}, nil),
		clients:       prometheus.NewDesc(ns+"_registered_ports", "Currently claimed ports by role.", []string{"role"}, nil),
		servers:       prometheus.NewDesc(ns+"_registered_ports", "Currently claimed ports by role.", []string{"role"}, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(descs chan<- *prometheus.Desc) {
	descs <- c.capacity
	descs <- c.allocated
	descs <- c.peakAllocated
	descs <- c.oomCount
	descs <- c.healthy
	descs <- c.subscriptions
}

// Collect implements prometheus.Collector, reading a fresh snapshot of the
// allocator and registration manager on every scrape.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	d := c.alloc.Diagnostics()
	ch <- prometheus.MustNewConstMetric(c.capacity, prometheus.GaugeValue, float64(d.Capacity))
	ch <- prometheus.MustNewConstMetric(c.allocated, prometheus.GaugeValue, float64(d.Allocated))
	ch <- prometheus.MustNewConstMetric(c.peakAllocated, prometheus.GaugeValue, float64(d.PeakAllocated))
	ch <- prometheus.MustNewConstMetric(c.oomCount, prometheus.CounterValue, float64(d.OOMCount))

	healthy := 0.0
	if c.alloc.Healthy() {
		healthy = 1.0
	}
	ch <- prometheus.MustNewConstMetric(c.healthy, prometheus.GaugeValue, healthy)

	ch <- prometheus.MustNewConstMetric(c.subscriptions, prometheus.GaugeValue, float64(len(c.reg.Subscriptions())), "subscription")
	ch <- prometheus.MustNewConstMetric(c.publications, prometheus.GaugeValue, float64(len(c.reg.Publications())), "publication")
	ch <- prometheus.MustNewConstMetric(c.clients, prometheus.GaugeValue, float64(len(c.reg.Clients())), "client")
	ch <- prometheus.MustNewConstMetric(c.servers, prometheus.GaugeValue, float64(len(c.reg.Servers())), "server")
}
