package macros

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openmediate/gateway/internal/models"
	"github.com/openmediate/gateway/internal/token"
)

func TestNewTrackingContextFromClaims(t *testing.T) {
	tc := NewTrackingContextFromClaims(token.Claims{
		RequestID:    "req-1",
		PlacementID:  "plc-1",
		NetworkID:    3,
		NetworkName:  "partner-a",
		CreativeID:   "cr-9",
		PublisherID:  7,
		PriceCPM:     2.5,
		CustomParams: map[string]string{"k": "v"},
	})

	assert.Equal(t, "req-1", tc.RequestID)
	assert.Equal(t, 3, tc.NetworkID)
	assert.Equal(t, "partner-a", tc.NetworkName)
	assert.Equal(t, 2.5, tc.PriceCPM)
	assert.Equal(t, "v", tc.CustomParams["k"])
	assert.False(t, tc.Timestamp.IsZero())
}

func TestGetDestinationURL_ExpandsHouseClickURL(t *testing.T) {
	s := NewServiceForTesting(zap.NewNop())
	creative := &models.HouseCreative{
		ID:       1,
		ClickURL: "https://example.com/landing?req={AUCTION_ID}&net={NETWORK}",
	}
	tc := &TrackingContext{RequestID: "req-1", NetworkName: "house"}

	got, err := s.GetDestinationURL(creative, tc)
	require.NoError(t, err)
	assert.Contains(t, got, "req=req-1")
	assert.Contains(t, got, "net=house")
}

func TestGetDestinationURL_NoClickURL(t *testing.T) {
	s := NewServiceForTesting(zap.NewNop())

	got, err := s.GetDestinationURL(&models.HouseCreative{ID: 1}, &TrackingContext{})
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = s.GetDestinationURL(nil, &TrackingContext{})
	require.NoError(t, err)
	assert.Empty(t, got)
}
