package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Topology metrics
	MachinesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "singularity_machines_total",
			Help: "Number of tracked machines by kind and lifecycle bucket",
		},
		[]string{"kind", "bucket"},
	)

	// Placement metrics
	RackChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "singularity_rack_checks_total",
			Help: "Total number of rack placement checks by verdict",
		},
		[]string{"verdict"},
	)

	OffersCheckedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "singularity_offers_checked_total",
			Help: "Total number of resource offers inspected for discovery",
		},
	)

	DiscoveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "singularity_discoveries_total",
			Help: "Total number of node registration outcomes by result",
		},
		[]string{"result"},
	)

	ResyncDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "singularity_resync_duration_seconds",
			Help:    "Full-roster resync duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Upstream reconciliation metrics
	UpstreamSyncPassesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "singularity_upstream_sync_passes_total",
			Help: "Total number of upstream sync passes by outcome",
		},
		[]string{"outcome"},
	)

	UpstreamSyncDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "singularity_upstream_sync_duration_seconds",
			Help:    "Upstream sync pass duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ExtraUpstreamsRemovedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "singularity_extra_upstreams_removed_total",
			Help: "Total number of stale upstreams submitted for removal",
		},
	)

	// Poller metrics
	PollerPassesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "singularity_poller_passes_total",
			Help: "Total number of periodic passes by pass name and outcome",
		},
		[]string{"pass", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		MachinesTotal,
		RackChecksTotal,
		OffersCheckedTotal,
		DiscoveriesTotal,
		ResyncDuration,
		UpstreamSyncPassesTotal,
		UpstreamSyncDuration,
		ExtraUpstreamsRemovedTotal,
		PollerPassesTotal,
	)
}

// Handler returns the scrape endpoint handler
func Handler() http.Handler {
	return promhttp.Handler()
}
