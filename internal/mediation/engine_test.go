package mediation

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openmediate/gateway/internal/adapter"
	"github.com/openmediate/gateway/internal/analytics"
	"github.com/openmediate/gateway/internal/consent"
	"github.com/openmediate/gateway/internal/db"
	"github.com/openmediate/gateway/internal/logic"
	"github.com/openmediate/gateway/internal/models"
	"github.com/openmediate/gateway/internal/observability"
)

const iphoneUA = "Mozilla/5.0 (iPhone; CPU iPhone OS 16_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.0 Mobile/15E148 Safari/604.1"

// scriptedAdapter answers Load from a per-network script and records the call
// order, so tests can assert on the waterfall scan.
type scriptedAdapter struct {
	networkID int
	script    map[int]func() (*models.AdFill, error)
	calls     *[]int
}

func (a *scriptedAdapter) Kind() models.NetworkKind { return models.NetworkKindHTTP }

func (a *scriptedAdapter) Load(_ context.Context, req *adapter.LoadRequest) (*models.AdFill, error) {
	*a.calls = append(*a.calls, a.networkID)
	if fn, ok := a.script[a.networkID]; ok {
		return fn()
	}
	return nil, adapter.E(adapter.CodeNoFill, req.Network.Name, nil)
}

type testEnv struct {
	engine *Engine
	store  models.MediationDataStore
	mr     *miniredis.Miniredis
	calls  *[]int
	script map[int]func() (*models.AdFill, error)
	sink   *analytics.MockAnalytics
}

func fillFor(networkID int, name string, cpm float64) func() (*models.AdFill, error) {
	return func() (*models.AdFill, error) {
		return &models.AdFill{
			NetworkID:   networkID,
			NetworkName: name,
			CreativeID:  "cr-1",
			Markup:      "<div>ad</div>",
			Width:       320,
			Height:      50,
			PriceCPM:    cpm,
			Currency:    "USD",
		}, nil
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	redisStore := &db.RedisStore{
		Client: goredis.NewClient(&goredis.Options{Addr: mr.Addr()}),
		Ctx:    context.Background(),
	}
	t.Cleanup(redisStore.Close)

	store := models.NewTestMediationDataStore()
	require.NoError(t, store.SetPublishers([]models.Publisher{{ID: 1, Name: "pub", APIKey: "key"}}))
	require.NoError(t, store.SetNetworks([]models.Network{
		{ID: 1, Name: "alpha", Kind: models.NetworkKindHTTP, Active: true},
		{ID: 2, Name: "beta", Kind: models.NetworkKindHTTP, Active: true},
		{ID: 3, Name: "gated", Kind: models.NetworkKindHTTP, Active: true, RequiresConsent: true},
	}))
	require.NoError(t, store.SetPlacements([]models.Placement{{
		ID:          "plc-1",
		PublisherID: 1,
		Width:       320,
		Height:      50,
		Formats:     []models.AdFormat{models.FormatBanner},
		Networks: []models.NetworkEntry{
			{NetworkID: 1, Priority: 1},
			{NetworkID: 2, Priority: 2},
		},
	}}))

	calls := &[]int{}
	script := map[int]func() (*models.AdFill, error){}
	registry := adapter.NewRegistry(adapter.Options{DataStore: store})
	registry.Register(models.NetworkKindHTTP, func(n *models.Network, _ adapter.Options) (adapter.Adapter, error) {
		return &scriptedAdapter{networkID: n.ID, script: script, calls: calls}, nil
	})

	sink := analytics.NewMockAnalytics()
	engine := &Engine{
		Store:     store,
		Redis:     redisStore,
		Registry:  registry,
		Consent:   consent.NewResolver(nil),
		Analytics: sink,
		Metrics:   &observability.MockMetricsRegistry{},
		Logger:    zap.NewNop(),
	}
	return &testEnv{engine: engine, store: store, mr: mr, calls: calls, script: script, sink: sink}
}

func bannerRequest(id string) *models.MediationRequest {
	return &models.MediationRequest{
		ID:          id,
		PlacementID: "plc-1",
		User:        models.User{ID: "user-1"},
		Device:      models.Device{UA: iphoneUA},
	}
}

func TestMediate_FirstNetworkFills(t *testing.T) {
	env := newTestEnv(t)
	env.script[1] = fillFor(1, "alpha", 2.0)

	res := env.engine.Mediate(context.Background(), bannerRequest("req-1"))

	require.True(t, res.Filled)
	require.NotNil(t, res.Fill)
	assert.Equal(t, "alpha", res.Fill.NetworkName)
	assert.Equal(t, "320x50", res.Size.String())
	assert.Equal(t, []int{1}, *env.calls)
	require.Len(t, res.Attempts, 1)
	assert.Equal(t, "fill", res.Attempts[0].Outcome)
	assert.Len(t, env.sink.EventsOfType(analytics.EventFill), 1)
}

func TestMediate_WaterfallFallsThrough(t *testing.T) {
	env := newTestEnv(t)
	env.script[2] = fillFor(2, "beta", 1.0)

	res := env.engine.Mediate(context.Background(), bannerRequest("req-1"))

	require.True(t, res.Filled)
	assert.Equal(t, "beta", res.Fill.NetworkName)
	assert.Equal(t, []int{1, 2}, *env.calls)
	require.Len(t, res.Attempts, 2)
	assert.Equal(t, "no_fill", res.Attempts[0].Outcome)
	assert.Equal(t, "fill", res.Attempts[1].Outcome)
}

func TestMediate_NoFillBackoffSkipsNetwork(t *testing.T) {
	env := newTestEnv(t)
	env.script[2] = fillFor(2, "beta", 1.0)

	// First request: alpha no-fills and starts its backoff window.
	env.engine.Mediate(context.Background(), bannerRequest("req-1"))
	*env.calls = nil

	res := env.engine.Mediate(context.Background(), bannerRequest("req-2"))

	require.True(t, res.Filled)
	assert.Equal(t, []int{2}, *env.calls, "alpha must be skipped while backed off")
	require.Len(t, res.Attempts, 2)
	assert.Equal(t, "backoff", res.Attempts[0].Outcome)
}

func TestMediate_AllNetworksNoFill(t *testing.T) {
	env := newTestEnv(t)

	res := env.engine.Mediate(context.Background(), bannerRequest("req-1"))

	assert.False(t, res.Filled)
	assert.Equal(t, adapter.CodeNoFill, res.Code)
	assert.Len(t, env.sink.EventsOfType(analytics.EventNoFill), 1)
}

func TestMediate_ConsentGating(t *testing.T) {
	env := newTestEnv(t)
	// Route the placement through the consent-gated network only.
	require.NoError(t, env.store.SetPlacements([]models.Placement{{
		ID:          "plc-1",
		PublisherID: 1,
		Width:       320,
		Height:      50,
		Networks:    []models.NetworkEntry{{NetworkID: 3, Priority: 1}},
	}}))
	env.script[3] = fillFor(3, "gated", 3.0)

	gdpr := true
	req := bannerRequest("req-1")
	req.Consent = models.Consent{GDPRApplies: &gdpr}

	res := env.engine.Mediate(context.Background(), req)

	assert.False(t, res.Filled)
	assert.Empty(t, *env.calls, "gated network must not be called without a TC string")
	require.Len(t, res.Attempts, 1)
	assert.Equal(t, "consent_denied", res.Attempts[0].Outcome)

	// With a TC string the same network serves.
	req2 := bannerRequest("req-2")
	req2.Consent = models.Consent{GDPRApplies: &gdpr, TCString: "CPc89...consent"}
	res2 := env.engine.Mediate(context.Background(), req2)
	require.True(t, res2.Filled)
	assert.Equal(t, "gated", res2.Fill.NetworkName)
}

func TestMediate_AdapterErrorFallsThrough(t *testing.T) {
	env := newTestEnv(t)
	env.script[1] = func() (*models.AdFill, error) {
		return nil, adapter.E(adapter.CodeNetworkError, "alpha", errors.New("connection refused"))
	}
	env.script[2] = fillFor(2, "beta", 1.0)

	res := env.engine.Mediate(context.Background(), bannerRequest("req-1"))

	require.True(t, res.Filled)
	assert.Equal(t, "network_error", res.Attempts[0].Outcome)
	assert.Len(t, env.sink.EventsOfType(analytics.EventAdapterError), 1)

	// A hard error does not start a no-fill backoff.
	*env.calls = nil
	env.engine.Mediate(context.Background(), bannerRequest("req-2"))
	assert.Equal(t, []int{1, 2}, *env.calls)
}

func TestMediate_InvalidPlacement(t *testing.T) {
	env := newTestEnv(t)
	req := bannerRequest("req-1")
	req.PlacementID = "missing"

	res := env.engine.Mediate(context.Background(), req)

	assert.False(t, res.Filled)
	assert.Equal(t, adapter.CodeInvalidRequest, res.Code)
	assert.Empty(t, *env.calls)
}

func TestMediate_UnresolvableSize(t *testing.T) {
	env := newTestEnv(t)
	env.script[1] = fillFor(1, "alpha", 2.0)
	req := bannerRequest("req-1")
	req.Size = &models.RequestedSize{Width: 300, Height: 100}

	res := env.engine.Mediate(context.Background(), req)

	assert.False(t, res.Filled)
	assert.Equal(t, adapter.CodeInvalidBannerSize, res.Code)
	assert.Empty(t, *env.calls, "no partner may be called when no size fits")
}

func TestMediate_FrequencyCapStopsWaterfall(t *testing.T) {
	env := newTestEnv(t)
	env.script[1] = fillFor(1, "alpha", 2.0)

	placement := env.store.GetPlacement("plc-1")
	for i := 0; i < logic.DefaultFrequencyCap; i++ {
		require.NoError(t, logic.IncrementFrequencyCap(env.engine.Redis, "user-1", placement))
	}

	res := env.engine.Mediate(context.Background(), bannerRequest("req-1"))

	assert.False(t, res.Filled)
	assert.Equal(t, adapter.CodeNoFill, res.Code)
	assert.Empty(t, *env.calls)
}

func TestMediate_AutoRankReordersWaterfall(t *testing.T) {
	env := newTestEnv(t)
	env.engine.Config.AutoRank = true
	require.NoError(t, env.store.UpdateNetworksECPM(map[int]float64{1: 0.5, 2: 4.0}))
	env.script[2] = fillFor(2, "beta", 4.0)

	res := env.engine.Mediate(context.Background(), bannerRequest("req-1"))

	require.True(t, res.Filled)
	assert.Equal(t, []int{2}, *env.calls, "higher eCPM network must be tried first")
}

func TestRefreshECPM(t *testing.T) {
	env := newTestEnv(t)

	require.NoError(t, env.engine.Redis.AddRevenue(1, 2.0))
	require.NoError(t, env.engine.Redis.AddRevenue(1, 4.0))

	require.NoError(t, RefreshECPM(env.store, env.engine.Redis, nil, zap.NewNop()))

	n := env.store.GetNetwork(1)
	require.NotNil(t, n)
	assert.InDelta(t, 3.0, n.ECPM, 0.001)

	// Networks without revenue keep their previous value.
	n2 := env.store.GetNetwork(2)
	require.NotNil(t, n2)
	assert.Zero(t, n2.ECPM)
}
