package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// total requests per endpoint, method and status code
	RequestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediation_requests_total",
			Help: "Total API requests received",
		},
		[]string{"endpoint", "method", "status"},
	)

	// request latency in seconds per endpoint/method
	RequestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mediation_request_duration_seconds",
			Help:    "Histogram of request latencies",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method"},
	)

	// fills per network
	FillCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediation_fills_total",
			Help: "Total filled mediation requests per network",
		},
		[]string{"network"},
	)

	// no-fill responses (waterfall exhausted)
	NoFillCount = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mediation_nofill_total",
			Help: "Total mediation requests no network filled",
		},
	)

	// adapter attempts per network and outcome (fill or mediation error code)
	AdapterAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediation_adapter_attempts_total",
			Help: "Total adapter load attempts per network and outcome",
		},
		[]string{"network", "outcome"},
	)

	// adapter call latency per network
	AdapterLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mediation_adapter_duration_seconds",
			Help:    "Histogram of partner adapter call latencies",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"network"},
	)

	// banner size resolution outcomes
	SizeResolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediation_size_resolutions_total",
			Help: "Total banner size resolutions per resolved size (or none)",
		},
		[]string{"size"},
	)

	// impression events received (status code label)
	ImpressionCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediation_impressions_total",
			Help: "Total impression events",
		},
		[]string{"status"},
	)

	// events recorded, labelled by type
	EventCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediation_events_total",
			Help: "Total events recorded",
		},
		[]string{"type"},
	)

	// revenue per network, in CPM dollars
	RevenueTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediation_revenue_cpm_total",
			Help: "Total CPM revenue recorded per network",
		},
		[]string{"network"},
	)

	// rate limit hits per network
	RateLimitHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediation_ratelimit_hits_total",
			Help: "Total rate limit hits per network",
		},
		[]string{"network"},
	)

	// rate limit requests per network
	RateLimitRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediation_ratelimit_requests_total",
			Help: "Total rate limit requests per network",
		},
		[]string{"network"},
	)

	// consent-based network skips per regime
	ConsentSkips = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediation_consent_skips_total",
			Help: "Total networks skipped for missing consent, per regime",
		},
		[]string{"regime"},
	)
)

func init() {
	// register all metrics
	prometheus.MustRegister(
		RequestCount,
		RequestLatency,
		FillCount,
		NoFillCount,
		AdapterAttempts,
		AdapterLatency,
		SizeResolutions,
		ImpressionCount,
		EventCount,
		RevenueTotal,
		RateLimitHits,
		RateLimitRequests,
		ConsentSkips,
	)
}
