package observability

import "time"

// MockMetricsRegistry is a mock implementation of MetricsRegistry for testing
type MockMetricsRegistry struct{}

// HTTP Request metrics
func (m *MockMetricsRegistry) IncrementRequests(endpoint, method, status string)                    {}
func (m *MockMetricsRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {}

// Waterfall metrics
func (m *MockMetricsRegistry) IncrementFills(network string)                               {}
func (m *MockMetricsRegistry) IncrementNoFills()                                           {}
func (m *MockMetricsRegistry) IncrementAdapterAttempts(network, outcome string)            {}
func (m *MockMetricsRegistry) RecordAdapterLatency(network string, duration time.Duration) {}
func (m *MockMetricsRegistry) IncrementSizeResolutions(size string)                        {}
func (m *MockMetricsRegistry) IncrementConsentSkips(regime string)                         {}

// Event tracking metrics
func (m *MockMetricsRegistry) IncrementImpressions(status string) {}
func (m *MockMetricsRegistry) IncrementEvent(eventType string)    {}

// Revenue tracking metrics
func (m *MockMetricsRegistry) AddRevenue(network string, priceCPM float64) {}

// Rate limiting metrics
func (m *MockMetricsRegistry) IncrementRateLimitRequests(network string) {}
func (m *MockMetricsRegistry) IncrementRateLimitHits(network string)     {}
