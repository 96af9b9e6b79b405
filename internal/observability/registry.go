package observability

import "time"

// MetricsRegistry provides an interface for recording application metrics
// This replaces direct access to global Prometheus metrics with dependency injection
type MetricsRegistry interface {
	// HTTP Request metrics
	IncrementRequests(endpoint, method, status string)
	RecordRequestLatency(endpoint, method string, duration time.Duration)

	// Waterfall metrics
	IncrementFills(network string)
	IncrementNoFills()
	IncrementAdapterAttempts(network, outcome string)
	RecordAdapterLatency(network string, duration time.Duration)
	IncrementSizeResolutions(size string)
	IncrementConsentSkips(regime string)

	// Event tracking metrics
	IncrementImpressions(status string)
	IncrementEvent(eventType string)

	// Revenue tracking metrics
	AddRevenue(network string, priceCPM float64)

	// Rate limiting metrics
	IncrementRateLimitRequests(network string)
	IncrementRateLimitHits(network string)
}

// PrometheusRegistry implements MetricsRegistry using the global Prometheus metrics
type PrometheusRegistry struct{}

// NewPrometheusRegistry creates a new PrometheusRegistry
func NewPrometheusRegistry() *PrometheusRegistry {
	return &PrometheusRegistry{}
}

// HTTP Request metrics
func (r *PrometheusRegistry) IncrementRequests(endpoint, method, status string) {
	RequestCount.WithLabelValues(endpoint, method, status).Inc()
}

func (r *PrometheusRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {
	RequestLatency.WithLabelValues(endpoint, method).Observe(duration.Seconds())
}

// Waterfall metrics
func (r *PrometheusRegistry) IncrementFills(network string) {
	FillCount.WithLabelValues(network).Inc()
}

func (r *PrometheusRegistry) IncrementNoFills() {
	NoFillCount.Inc()
}

func (r *PrometheusRegistry) IncrementAdapterAttempts(network, outcome string) {
	AdapterAttempts.WithLabelValues(network, outcome).Inc()
}

func (r *PrometheusRegistry) RecordAdapterLatency(network string, duration time.Duration) {
	AdapterLatency.WithLabelValues(network).Observe(duration.Seconds())
}

func (r *PrometheusRegistry) IncrementSizeResolutions(size string) {
	SizeResolutions.WithLabelValues(size).Inc()
}

func (r *PrometheusRegistry) IncrementConsentSkips(regime string) {
	ConsentSkips.WithLabelValues(regime).Inc()
}

// Event tracking metrics
func (r *PrometheusRegistry) IncrementImpressions(status string) {
	ImpressionCount.WithLabelValues(status).Inc()
}

func (r *PrometheusRegistry) IncrementEvent(eventType string) {
	EventCount.WithLabelValues(eventType).Inc()
}

// Revenue tracking metrics
func (r *PrometheusRegistry) AddRevenue(network string, priceCPM float64) {
	RevenueTotal.WithLabelValues(network).Add(priceCPM)
}

// Rate limiting metrics
func (r *PrometheusRegistry) IncrementRateLimitRequests(network string) {
	RateLimitRequests.WithLabelValues(network).Inc()
}

func (r *PrometheusRegistry) IncrementRateLimitHits(network string) {
	RateLimitHits.WithLabelValues(network).Inc()
}

// NoOpRegistry implements MetricsRegistry with no-op methods for CLI tools
// that share library code but should not register collectors.
type NoOpRegistry struct{}

// NewNoOpRegistry creates a new NoOpRegistry
func NewNoOpRegistry() *NoOpRegistry {
	return &NoOpRegistry{}
}

func (r *NoOpRegistry) IncrementRequests(endpoint, method, status string)                    {}
func (r *NoOpRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {}
func (r *NoOpRegistry) IncrementFills(network string)                                        {}
func (r *NoOpRegistry) IncrementNoFills()                                                    {}
func (r *NoOpRegistry) IncrementAdapterAttempts(network, outcome string)                     {}
func (r *NoOpRegistry) RecordAdapterLatency(network string, duration time.Duration)          {}
func (r *NoOpRegistry) IncrementSizeResolutions(size string)                                 {}
func (r *NoOpRegistry) IncrementConsentSkips(regime string)                                  {}
func (r *NoOpRegistry) IncrementImpressions(status string)                                   {}
func (r *NoOpRegistry) IncrementEvent(eventType string)                                      {}
func (r *NoOpRegistry) AddRevenue(network string, priceCPM float64)                          {}
func (r *NoOpRegistry) IncrementRateLimitRequests(network string)                            {}
func (r *NoOpRegistry) IncrementRateLimitHits(network string)                                {}
