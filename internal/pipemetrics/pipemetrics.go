// Package pipemetrics registers the Prometheus collectors SPEC_FULL.md §6
// names for the pipeline core: live refcount gauges, TS continuity-counter
// and PCR-discontinuity counters, and dropped-section counters, served as
// a small always-on HTTP diagnostics surface alongside /healthz, using
// github.com/prometheus/client_golang.
package pipemetrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles the collectors one running pipeline process exposes.
type Registry struct {
	reg *prometheus.Registry

	UrefsTotal             *prometheus.CounterVec
	RefcountLive           *prometheus.GaugeVec
	TSCCErrorsTotal        *prometheus.CounterVec
	TSPCRDiscontinuities   *prometheus.CounterVec
	PSISectionsDropped     *prometheus.CounterVec
	WorkerBinQueueDepth    *prometheus.GaugeVec
}

// New constructs and registers a fresh Registry.
func New() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{
		reg: reg,
		UrefsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "upipe_urefs_total",
			Help: "Total urefs emitted by a pipe.",
		}, []string{"pipe"}),
		RefcountLive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "upipe_refcount_live",
			Help: "Live refcounted object count by type.",
		}, []string{"type"}),
		TSCCErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "upipe_ts_cc_errors_total",
			Help: "TS continuity-counter errors observed per PID.",
		}, []string{"pid"}),
		TSPCRDiscontinuities: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "upipe_ts_pcr_discontinuities_total",
			Help: "PCR discontinuities observed per program.",
		}, []string{"program"}),
		PSISectionsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "upipe_psi_sections_dropped_total",
			Help: "PSI sections dropped due to CRC or structural errors, per table.",
		}, []string{"table"}),
		WorkerBinQueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "upipe_workerbin_queue_depth",
			Help: "Current depth of a workerbin's input or output queue.",
		}, []string{"bin", "direction"}),
	}
	reg.MustRegister(
		r.UrefsTotal,
		r.RefcountLive,
		r.TSCCErrorsTotal,
		r.TSPCRDiscontinuities,
		r.PSISectionsDropped,
		r.WorkerBinQueueDepth,
	)
	return r
}

// Handler returns the HTTP handler to mount at /metrics.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
