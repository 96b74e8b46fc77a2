package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/cubesat-core/flightsw/loopmgr"
)

// TransportCollector exposes the loop manager's forwarding counters (spec
// §4.D's bridging behaviour and its dedup-suppression enrichment).
type TransportCollector struct {
	mgr *loopmgr.Manager

	dispatched     *prometheus.Desc
	forwarded      *prometheus.Desc
	forwardSkipped *prometheus.Desc
	forwardErrors  *prometheus.Desc
}

var _ prometheus.Collector = (*TransportCollector)(nil)

func NewTransportCollector(mgr *loopmgr.Manager) *TransportCollector {
	ns := "flightsw_transport"
	return &TransportCollector{
		mgr:            mgr,
		dispatched:     prometheus.NewDesc(ns+"_dispatched_total", "Transfers dispatched to the service manager.", nil, nil),
		forwarded:      prometheus.NewDesc(ns+"_forwarded_total", "Transfers rebroadcast onto another adapter.", nil, nil),
		forwardSkipped: prometheus.NewDesc(ns+"_forward_skipped_total", "Transfers whose rebroadcast was suppressed by the dedup filter.", nil, nil),
		forwardErrors:  prometheus.NewDesc(ns+"_forward_errors_total", "Rebroadcast attempts that failed.", nil, nil),
	}
}

func (c *TransportCollector) Describe(descs chan<- *prometheus.Desc) {
	descs <- c.dispatched
	descs <- c.forwarded
	descs <- c.forwardSkipped
	descs <- c.forwardErrors
}

func (c *TransportCollector) Collect(ch chan<- prometheus.Metric) {
	cnt := c.mgr.Counters()
	ch <- prometheus.MustNewConstMetric(c.dispatched, prometheus.CounterValue, float64(cnt.Dispatched))
	ch <- prometheus.MustNewConstMetric(c.forwarded, prometheus.CounterValue, float64(cnt.Forwarded))
	ch <- prometheus.MustNewConstMetric(c.forwardSkipped, prometheus.CounterValue, float64(cnt.ForwardSkipped))
	ch <- prometheus.MustNewConstMetric(c.forwardErrors, prometheus.CounterValue, float64(cnt.ForwardErrors))
}
