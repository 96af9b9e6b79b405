package analytics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmediate/gateway/internal/models"
)

func TestRecordEvent_Unavailable(t *testing.T) {
	var a *Analytics
	err := a.RecordEvent(context.Background(), Event{EventType: EventFill})
	assert.ErrorIs(t, err, ErrUnavailable)

	a = &Analytics{}
	err = a.RecordEvent(context.Background(), Event{EventType: EventFill})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestBaseEvent_PlacementFields(t *testing.T) {
	placement := &models.Placement{ID: "plc-1", PublisherID: 7}
	device := models.DeviceContext{DeviceType: "phone", Country: "DE"}

	ev := baseEvent(EventNoFill, "req-1", placement, device)

	assert.Equal(t, EventNoFill, ev.EventType)
	assert.Equal(t, "req-1", ev.RequestID)
	assert.Equal(t, "plc-1", ev.PlacementID)
	require.NotNil(t, ev.PublisherID)
	assert.Equal(t, int32(7), *ev.PublisherID)
	require.NotNil(t, ev.DeviceType)
	assert.Equal(t, "phone", *ev.DeviceType)
	require.NotNil(t, ev.Country)
	assert.Equal(t, "DE", *ev.Country)
}

func TestMockAnalytics_RecordsFill(t *testing.T) {
	m := NewMockAnalytics()
	placement := &models.Placement{ID: "plc-1", PublisherID: 1}
	fill := &models.AdFill{NetworkID: 3, NetworkName: "partner-a", PriceCPM: 2.5}

	err := m.RecordFill(context.Background(), "req-1", placement, fill, models.DeviceContext{})
	require.NoError(t, err)

	fills := m.EventsOfType(EventFill)
	require.Len(t, fills, 1)
	require.NotNil(t, fills[0].NetworkID)
	assert.Equal(t, int32(3), *fills[0].NetworkID)
	assert.Equal(t, 2.5, fills[0].PriceCPM)
}

func TestMockAnalytics_RecordsAdapterError(t *testing.T) {
	m := NewMockAnalytics()
	placement := &models.Placement{ID: "plc-1", PublisherID: 1}

	err := m.RecordAdapterError(context.Background(), "req-1", placement, 3, "partner-a", "timeout")
	require.NoError(t, err)

	errs := m.EventsOfType(EventAdapterError)
	require.Len(t, errs, 1)
	require.NotNil(t, errs[0].ErrorCode)
	assert.Equal(t, "timeout", *errs[0].ErrorCode)
}
