package analytics

import (
	"context"
	"sync"

	"github.com/openmediate/gateway/internal/models"
)

var _ AnalyticsService = (*MockAnalytics)(nil)

// MockAnalytics is an in-memory AnalyticsService for testing. It records
// every event it is asked to write so tests can assert on them.
type MockAnalytics struct {
	mu     sync.Mutex
	Events []Event
}

// NewMockAnalytics creates a new mock analytics instance
func NewMockAnalytics() *MockAnalytics {
	return &MockAnalytics{}
}

func (m *MockAnalytics) RecordEvent(ctx context.Context, ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, ev)
	return nil
}

func (m *MockAnalytics) RecordFill(ctx context.Context, requestID string, placement *models.Placement, fill *models.AdFill, device models.DeviceContext) error {
	ev := baseEvent(EventFill, requestID, placement, device)
	if fill != nil {
		ev = withNetwork(ev, fill.NetworkID, fill.NetworkName)
		ev.PriceCPM = fill.PriceCPM
	}
	return m.RecordEvent(ctx, ev)
}

func (m *MockAnalytics) RecordNoFill(ctx context.Context, requestID string, placement *models.Placement, device models.DeviceContext) error {
	return m.RecordEvent(ctx, baseEvent(EventNoFill, requestID, placement, device))
}

func (m *MockAnalytics) RecordAdapterError(ctx context.Context, requestID string, placement *models.Placement, networkID int, networkName, errorCode string) error {
	ev := withNetwork(baseEvent(EventAdapterError, requestID, placement, models.DeviceContext{}), networkID, networkName)
	if errorCode != "" {
		ev.ErrorCode = &errorCode
	}
	return m.RecordEvent(ctx, ev)
}

func (m *MockAnalytics) RecordImpression(ctx context.Context, requestID string, placement *models.Placement, networkID int, networkName, creativeID string, priceCPM float64, device models.DeviceContext) error {
	ev := withNetwork(baseEvent(EventImpression, requestID, placement, device), networkID, networkName)
	ev.PriceCPM = priceCPM
	return m.RecordEvent(ctx, ev)
}

func (m *MockAnalytics) RecordClick(ctx context.Context, requestID string, placement *models.Placement, networkID int, networkName, creativeID string, device models.DeviceContext) error {
	return m.RecordEvent(ctx, withNetwork(baseEvent(EventClick, requestID, placement, device), networkID, networkName))
}

// EventsOfType returns recorded events matching the given type.
func (m *MockAnalytics) EventsOfType(eventType string) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Event
	for _, ev := range m.Events {
		if ev.EventType == eventType {
			out = append(out, ev)
		}
	}
	return out
}
