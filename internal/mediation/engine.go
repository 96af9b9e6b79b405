// Package mediation implements the waterfall engine: the ordered scan over a
// placement's partner networks that produces at most one fill per request.
package mediation

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/openmediate/gateway/internal/adapter"
	"github.com/openmediate/gateway/internal/analytics"
	"github.com/openmediate/gateway/internal/consent"
	"github.com/openmediate/gateway/internal/db"
	"github.com/openmediate/gateway/internal/geoip"
	"github.com/openmediate/gateway/internal/logic"
	"github.com/openmediate/gateway/internal/logic/banner"
	"github.com/openmediate/gateway/internal/logic/ratelimit"
	"github.com/openmediate/gateway/internal/middleware"
	"github.com/openmediate/gateway/internal/models"
	"github.com/openmediate/gateway/internal/observability"
)

// DefaultAdapterTimeout bounds one partner call. The full waterfall budget is
// this times the number of networks, so it is kept short.
const DefaultAdapterTimeout = 500 * time.Millisecond

// Waterfall skip outcomes recorded in attempt traces. Outcomes for networks
// that were actually called use the mediation error code vocabulary instead.
const (
	outcomeFill        = "fill"
	outcomeFormatSkip  = "format_unsupported"
	outcomeConsentSkip = "consent_denied"
	outcomeBackoffSkip = "backoff"
	outcomeRateLimit   = "throttled"
)

// Config holds the engine's tunables.
type Config struct {
	// AdapterTimeout bounds each partner call.
	AdapterTimeout time.Duration
	// NoFillBackoff is how long a no-filling network is skipped per placement.
	NoFillBackoff time.Duration
	// AutoRank reorders the waterfall by observed eCPM instead of the
	// configured priorities.
	AutoRank bool
}

// Engine runs the mediation waterfall. All fields must be set except Logger,
// which falls back to the global logger, and Redis/Analytics, which degrade
// to no-ops when absent.
type Engine struct {
	Store     models.MediationDataStore
	Redis     *db.RedisStore
	Registry  *adapter.Registry
	Consent   *consent.Resolver
	Geo       *geoip.GeoIP
	Limiter   *ratelimit.NetworkLimiter
	Analytics analytics.AnalyticsService
	Metrics   observability.MetricsRegistry
	Logger    *zap.Logger
	Config    Config
}

// Result is the outcome of one waterfall run, carrying everything the HTTP
// layer needs to build the response and its tracking URLs.
type Result struct {
	Filled bool
	// Code is the terminal mediation error code when Filled is false.
	Code adapter.Code
	Fill *models.AdFill
	// Size is the resolved fixed banner size, zero for non-banner formats.
	Size      models.StandardAdSize
	Placement *models.Placement
	Device    models.DeviceContext
	Consent   models.ResolvedConsent
	Attempts  []models.AttemptTrace

	// lastDurationMS is scratch state for attempt traces.
	lastDurationMS int64
}

func (e *Engine) logger(ctx context.Context) *zap.Logger {
	base := e.Logger
	if base == nil {
		base = zap.L()
	}
	return middleware.LoggerFromContext(ctx, base)
}

func (e *Engine) timeout() time.Duration {
	if e.Config.AdapterTimeout > 0 {
		return e.Config.AdapterTimeout
	}
	return DefaultAdapterTimeout
}

// Mediate runs the waterfall for one request. It never returns nil; requests
// that fail validation come back unfilled with the matching mediation code.
func (e *Engine) Mediate(ctx context.Context, req *models.MediationRequest) *Result {
	if req == nil || req.PlacementID == "" {
		return &Result{Code: adapter.CodeInvalidRequest}
	}
	log := e.logger(ctx).With(zap.String("request_id", req.ID), zap.String("placement_id", req.PlacementID))

	format := req.Format
	if format == "" {
		format = models.FormatBanner
	}
	if !format.Valid() {
		return &Result{Code: adapter.CodeInvalidRequest}
	}

	placement := e.Store.GetPlacement(req.PlacementID)
	if placement == nil {
		log.Warn("unknown placement")
		return &Result{Code: adapter.CodeInvalidRequest}
	}
	if !placement.SupportsFormat(format) {
		return &Result{Code: adapter.CodeInvalidRequest, Placement: placement}
	}

	device := logic.ResolveDevice(e.Geo, req.Device.UA, req.Device.IP)
	if device.IsBot {
		log.Debug("bot traffic rejected", zap.String("ua", req.Device.UA))
		return &Result{Code: adapter.CodeInvalidRequest, Placement: placement, Device: device}
	}

	res := &Result{Placement: placement, Device: device}

	// Banner requests must resolve to a fixed catalog size before any
	// partner is called. A request that fits nothing is a load failure.
	if format == models.FormatBanner {
		size, ok := banner.Resolve(e.requestedSize(req, placement, device))
		if !ok {
			log.Debug("no standard size fits requested area")
			res.Code = adapter.CodeInvalidBannerSize
			return res
		}
		res.Size = size
		e.Metrics.IncrementSizeResolutions(size.String())
	}

	res.Consent = e.resolveConsent(req)

	e.recordRequest(ctx, req, placement, device)

	if exceeded, _ := logic.HasUserExceededFrequencyCap(e.Redis, req.User.ID, placement); exceeded {
		log.Debug("frequency cap exceeded", zap.String("user_id", req.User.ID))
		res.Code = adapter.CodeNoFill
		e.Metrics.IncrementNoFills()
		return res
	}

	for _, n := range e.waterfall(placement) {
		network := n
		trace := models.AttemptTrace{NetworkID: network.ID, NetworkName: network.Name}

		if !network.SupportsFormat(format) {
			trace.Outcome = outcomeFormatSkip
			res.Attempts = append(res.Attempts, trace)
			continue
		}
		if !res.Consent.PermitsNetwork(&network) {
			e.Metrics.IncrementConsentSkips(string(res.Consent.Regime))
			trace.Outcome = outcomeConsentSkip
			res.Attempts = append(res.Attempts, trace)
			continue
		}
		if backed, _ := logic.IsNetworkBackedOff(e.Redis, placement.ID, network.ID); backed {
			trace.Outcome = outcomeBackoffSkip
			res.Attempts = append(res.Attempts, trace)
			continue
		}
		if e.Limiter != nil && !e.Limiter.Allow(network.ID) {
			trace.Outcome = outcomeRateLimit
			res.Attempts = append(res.Attempts, trace)
			continue
		}

		fill, err := e.callAdapter(ctx, req, placement, &network, format, res)
		trace.DurationMS = res.lastDurationMS
		if err == nil {
			trace.Outcome = outcomeFill
			res.Attempts = append(res.Attempts, trace)
			res.Filled = true
			res.Fill = fill
			e.Metrics.IncrementFills(network.Name)
			if e.Analytics != nil {
				if aerr := e.Analytics.RecordFill(ctx, req.ID, placement, fill, device); aerr != nil && aerr != analytics.ErrUnavailable {
					log.Warn("record fill", zap.Error(aerr))
				}
			}
			_ = logic.IncrementFrequencyCap(e.Redis, req.User.ID, placement)
			return res
		}

		code := adapter.CodeOf(err)
		trace.Outcome = string(code)
		res.Attempts = append(res.Attempts, trace)
		e.Metrics.IncrementAdapterAttempts(network.Name, string(code))

		if adapter.IsNoFill(err) {
			_ = logic.MarkNetworkNoFill(e.Redis, placement.ID, network.ID, e.Config.NoFillBackoff)
			continue
		}
		log.Warn("adapter failure",
			zap.String("network", network.Name),
			zap.String("code", string(code)),
			zap.Error(err),
		)
		if e.Analytics != nil {
			_ = e.Analytics.RecordAdapterError(ctx, req.ID, placement, network.ID, network.Name, string(code))
		}
	}

	res.Code = adapter.CodeNoFill
	e.Metrics.IncrementNoFills()
	if e.Analytics != nil {
		_ = e.Analytics.RecordNoFill(ctx, req.ID, placement, device)
	}
	return res
}

func (e *Engine) callAdapter(ctx context.Context, req *models.MediationRequest, placement *models.Placement, network *models.Network, format models.AdFormat, res *Result) (*models.AdFill, error) {
	a, err := e.Registry.AdapterFor(network)
	if err != nil {
		res.lastDurationMS = 0
		return nil, err
	}

	load := &adapter.LoadRequest{
		RequestID: req.ID,
		Placement: placement,
		Network:   network,
		Format:    format,
		Size:      res.Size,
		User:      req.User,
		Device:    res.Device,
		Consent:   res.Consent,
		FloorCPM:  floorFor(placement, network.ID),
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout())
	defer cancel()

	start := time.Now()
	fill, err := a.Load(callCtx, load)
	elapsed := time.Since(start)
	res.lastDurationMS = elapsed.Milliseconds()
	e.Metrics.RecordAdapterLatency(network.Name, elapsed)
	return fill, err
}

// requestedSize picks the requested area for banner resolution: the request's
// own size, then the placement's configured dimensions, then a device default.
func (e *Engine) requestedSize(req *models.MediationRequest, placement *models.Placement, device models.DeviceContext) models.RequestedSize {
	if req.Size != nil {
		return *req.Size
	}
	if placement.Width > 0 {
		return models.RequestedSize{Width: placement.Width, Height: placement.Height}
	}
	return logic.DefaultSizeForDevice(device)
}

// resolveConsent merges stored user defaults under the request's signals and
// resolves the governing regime.
func (e *Engine) resolveConsent(req *models.MediationRequest) models.ResolvedConsent {
	signals := req.Consent
	if e.Redis != nil && req.User.ID != "" {
		if stored, err := e.Redis.GetUserConsent(req.User.ID); err == nil && stored != nil {
			signals = consent.Merge(stored, req.Consent)
		}
	}
	return e.Consent.Resolve(signals, req.Device.IP)
}

// waterfall returns the networks to try for a placement in scan order:
// configured priority, or observed eCPM descending when auto-ranking is on.
func (e *Engine) waterfall(placement *models.Placement) []models.Network {
	entries := append([]models.NetworkEntry(nil), placement.Networks...)
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Priority < entries[j].Priority })

	networks := make([]models.Network, 0, len(entries))
	for _, entry := range entries {
		n := e.Store.GetNetwork(entry.NetworkID)
		if n == nil || !n.Active {
			continue
		}
		networks = append(networks, *n)
	}

	if e.Config.AutoRank {
		sort.SliceStable(networks, func(i, j int) bool { return networks[i].ECPM > networks[j].ECPM })
	}
	return networks
}

func floorFor(placement *models.Placement, networkID int) float64 {
	for _, entry := range placement.Networks {
		if entry.NetworkID == networkID {
			return entry.FloorCPM
		}
	}
	return 0
}

func (e *Engine) recordRequest(ctx context.Context, req *models.MediationRequest, placement *models.Placement, device models.DeviceContext) {
	if e.Analytics == nil {
		return
	}
	pub := int32(placement.PublisherID)
	ev := analytics.Event{
		EventType:   analytics.EventAdRequest,
		RequestID:   req.ID,
		PlacementID: placement.ID,
		PublisherID: &pub,
		KeyValues:   req.Ext.CustomParams,
	}
	if device.DeviceType != "" {
		dt := device.DeviceType
		ev.DeviceType = &dt
	}
	if device.Country != "" {
		co := device.Country
		ev.Country = &co
	}
	if err := e.Analytics.RecordEvent(ctx, ev); err != nil && err != analytics.ErrUnavailable {
		e.logger(ctx).Warn("record ad_request", zap.Error(err))
	}
}
