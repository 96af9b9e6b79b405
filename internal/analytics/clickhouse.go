package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	_ "github.com/ClickHouse/clickhouse-go/v2"

	"github.com/openmediate/gateway/internal/db"
	"github.com/openmediate/gateway/internal/models"
	"github.com/openmediate/gateway/internal/observability"
)

// AnalyticsService defines the interface for analytics operations.
// Implementations should handle cases where underlying storage is unavailable
// by returning ErrUnavailable.
type AnalyticsService interface {
	// RecordEvent records a raw mediation event row.
	RecordEvent(ctx context.Context, ev Event) error
	// RecordFill records a successful waterfall fill.
	RecordFill(ctx context.Context, requestID string, placement *models.Placement, fill *models.AdFill, device models.DeviceContext) error
	// RecordNoFill records a request the waterfall could not fill.
	RecordNoFill(ctx context.Context, requestID string, placement *models.Placement, device models.DeviceContext) error
	// RecordAdapterError records a partner call that failed with the given code.
	RecordAdapterError(ctx context.Context, requestID string, placement *models.Placement, networkID int, networkName, errorCode string) error
	// RecordImpression records a rendered impression and books its revenue.
	RecordImpression(ctx context.Context, requestID string, placement *models.Placement, networkID int, networkName, creativeID string, priceCPM float64, device models.DeviceContext) error
	// RecordClick records a click on a rendered ad.
	RecordClick(ctx context.Context, requestID string, placement *models.Placement, networkID int, networkName, creativeID string, device models.DeviceContext) error
}

// Analytics wraps a ClickHouse DB connection.
type Analytics struct {
	DB      *sql.DB
	Redis   *db.RedisStore
	Metrics observability.MetricsRegistry
}

// Event mirrors a row in the mediation_events table.
type Event struct {
	Timestamp   time.Time         `json:"timestamp"`
	EventType   string            `json:"event_type"`
	RequestID   string            `json:"request_id"`
	PlacementID string            `json:"placement_id"`
	PublisherID *int32            `json:"publisher_id"`
	NetworkID   *int32            `json:"network_id"`
	NetworkName *string           `json:"network_name"`
	CreativeID  *string           `json:"creative_id"`
	PriceCPM    float64           `json:"price_cpm"`
	Size        *string           `json:"size"`
	ErrorCode   *string           `json:"error_code"`
	DeviceType  *string           `json:"device_type"`
	Country     *string           `json:"country"`
	KeyValues   map[string]string `json:"key_values,omitempty"`
}

// Event types written to the mediation_events table.
const (
	EventAdRequest    = "ad_request"
	EventFill         = "fill"
	EventNoFill       = "no_fill"
	EventAdapterError = "adapter_error"
	EventImpression   = "impression"
	EventClick        = "click"
)

// InitClickHouse connects to ClickHouse and ensures the events table exists.
// redisStore may be nil if revenue accumulation is not needed.
func InitClickHouse(dsn string, redisStore *db.RedisStore, metrics observability.MetricsRegistry) (*Analytics, error) {
	chdb, err := sql.Open("clickhouse", dsn)
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	chdb.SetMaxOpenConns(25)
	if err := chdb.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	create := `CREATE TABLE IF NOT EXISTS mediation_events (
       timestamp    DateTime,
       event_type   String,
       request_id   String,
       placement_id String,
       publisher_id Nullable(Int32),
       network_id   Nullable(Int32),
       network_name Nullable(String),
       creative_id  Nullable(String),
       price_cpm    Float64,
       size         Nullable(String),
       error_code   Nullable(String),
       device_type  Nullable(String),
       country      Nullable(String),
       key_values   Map(String, String)
   ) ENGINE=MergeTree() ORDER BY (event_type, timestamp)`
	if _, err := chdb.ExecContext(context.Background(), create); err != nil {
		return nil, fmt.Errorf("clickhouse create table: %w", err)
	}

	zap.L().Info("Connected to ClickHouse")
	return &Analytics{DB: chdb, Redis: redisStore, Metrics: metrics}, nil
}

// ErrUnavailable is returned when the analytics DB is not configured.
var ErrUnavailable = fmt.Errorf("analytics unavailable")

// RecordEvent inserts a single event row into the mediation_events table.
func (a *Analytics) RecordEvent(ctx context.Context, ev Event) error {
	if a == nil || a.DB == nil {
		return ErrUnavailable
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	if ev.KeyValues == nil {
		ev.KeyValues = map[string]string{}
	}

	var pub, net sql.NullInt32
	if ev.PublisherID != nil {
		pub.Int32 = *ev.PublisherID
		pub.Valid = true
	}
	if ev.NetworkID != nil {
		net.Int32 = *ev.NetworkID
		net.Valid = true
	}

	var netName, cr, size, ec, dt, co sql.NullString
	setString := func(dst *sql.NullString, src *string) {
		if src != nil && *src != "" {
			dst.String = *src
			dst.Valid = true
		}
	}
	setString(&netName, ev.NetworkName)
	setString(&cr, ev.CreativeID)
	setString(&size, ev.Size)
	setString(&ec, ev.ErrorCode)
	setString(&dt, ev.DeviceType)
	setString(&co, ev.Country)

	stmt := `INSERT INTO mediation_events (timestamp, event_type, request_id, placement_id, publisher_id, network_id, network_name, creative_id, price_cpm, size, error_code, device_type, country, key_values) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := a.DB.ExecContext(ctx, stmt, ev.Timestamp, ev.EventType, ev.RequestID, ev.PlacementID, pub, net, netName, cr, ev.PriceCPM, size, ec, dt, co, ev.KeyValues); err != nil {
		zap.L().Error("clickhouse insert failed", zap.Error(err), zap.String("event_type", ev.EventType))
		return fmt.Errorf("insert %s event: %w", ev.EventType, err)
	}
	if a.Metrics != nil {
		a.Metrics.IncrementEvent(ev.EventType)
	}
	return nil
}

func baseEvent(eventType, requestID string, placement *models.Placement, device models.DeviceContext) Event {
	ev := Event{
		EventType: eventType,
		RequestID: requestID,
	}
	if placement != nil {
		ev.PlacementID = placement.ID
		pub := int32(placement.PublisherID)
		ev.PublisherID = &pub
	}
	if device.DeviceType != "" {
		dt := device.DeviceType
		ev.DeviceType = &dt
	}
	if device.Country != "" {
		co := device.Country
		ev.Country = &co
	}
	return ev
}

func withNetwork(ev Event, networkID int, networkName string) Event {
	if networkID > 0 {
		id := int32(networkID)
		ev.NetworkID = &id
	}
	if networkName != "" {
		ev.NetworkName = &networkName
	}
	return ev
}

// RecordFill records a successful waterfall fill with the winning network and
// the price it bid.
func (a *Analytics) RecordFill(ctx context.Context, requestID string, placement *models.Placement, fill *models.AdFill, device models.DeviceContext) error {
	ev := baseEvent(EventFill, requestID, placement, device)
	if fill != nil {
		ev = withNetwork(ev, fill.NetworkID, fill.NetworkName)
		if fill.CreativeID != "" {
			cr := fill.CreativeID
			ev.CreativeID = &cr
		}
		ev.PriceCPM = fill.PriceCPM
		size := fmt.Sprintf("%dx%d", fill.Width, fill.Height)
		ev.Size = &size
	}
	return a.RecordEvent(ctx, ev)
}

// RecordNoFill records a request that exhausted the waterfall without a fill.
func (a *Analytics) RecordNoFill(ctx context.Context, requestID string, placement *models.Placement, device models.DeviceContext) error {
	return a.RecordEvent(ctx, baseEvent(EventNoFill, requestID, placement, device))
}

// RecordAdapterError records a partner call that failed, tagged with the
// translated error code.
func (a *Analytics) RecordAdapterError(ctx context.Context, requestID string, placement *models.Placement, networkID int, networkName, errorCode string) error {
	ev := withNetwork(baseEvent(EventAdapterError, requestID, placement, models.DeviceContext{}), networkID, networkName)
	if errorCode != "" {
		ev.ErrorCode = &errorCode
	}
	return a.RecordEvent(ctx, ev)
}

// RecordImpression records a rendered impression and accumulates revenue for
// the winning network. Revenue bookkeeping is best effort: a Redis failure is
// logged but does not fail the impression.
func (a *Analytics) RecordImpression(ctx context.Context, requestID string, placement *models.Placement, networkID int, networkName, creativeID string, priceCPM float64, device models.DeviceContext) error {
	ev := withNetwork(baseEvent(EventImpression, requestID, placement, device), networkID, networkName)
	if creativeID != "" {
		ev.CreativeID = &creativeID
	}
	ev.PriceCPM = priceCPM

	if err := a.RecordEvent(ctx, ev); err != nil {
		a.bookRevenue(networkID, networkName, priceCPM)
		return err
	}
	a.bookRevenue(networkID, networkName, priceCPM)
	return nil
}

// RecordClick records a click on a rendered ad.
func (a *Analytics) RecordClick(ctx context.Context, requestID string, placement *models.Placement, networkID int, networkName, creativeID string, device models.DeviceContext) error {
	ev := withNetwork(baseEvent(EventClick, requestID, placement, device), networkID, networkName)
	if creativeID != "" {
		ev.CreativeID = &creativeID
	}
	return a.RecordEvent(ctx, ev)
}

// bookRevenue updates the Redis revenue counters and the Prometheus gauge for
// a network. The counters feed the daily eCPM auto-ranking pass.
func (a *Analytics) bookRevenue(networkID int, networkName string, priceCPM float64) {
	if a == nil || networkID <= 0 || priceCPM <= 0 {
		return
	}
	if a.Redis != nil {
		if err := a.Redis.AddRevenue(networkID, priceCPM); err != nil {
			zap.L().Error("revenue counter update failed", zap.Error(err), zap.Int("network_id", networkID))
		}
	}
	if a.Metrics != nil && networkName != "" {
		a.Metrics.AddRevenue(networkName, priceCPM)
	}
}

// Close terminates the ClickHouse connection.
func (a *Analytics) Close() {
	if a != nil && a.DB != nil {
		if err := a.DB.Close(); err != nil {
			zap.L().Error("clickhouse close", zap.Error(err))
		}
	}
}

// GetEventsByRequestID returns all events for a given request ID ordered by timestamp.
func (a *Analytics) GetEventsByRequestID(id string) ([]Event, error) {
	if a == nil || a.DB == nil {
		return nil, ErrUnavailable
	}
	query := `SELECT timestamp, event_type, request_id, placement_id, publisher_id, network_id, network_name, creative_id, price_cpm, size, error_code, device_type, country FROM mediation_events WHERE request_id=? ORDER BY timestamp`
	rows, err := a.DB.QueryContext(context.Background(), query, id)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			zap.L().Warn("rows close", zap.Error(err))
		}
	}()

	var events []Event
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.Timestamp, &ev.EventType, &ev.RequestID, &ev.PlacementID, &ev.PublisherID, &ev.NetworkID, &ev.NetworkName, &ev.CreativeID, &ev.PriceCPM, &ev.Size, &ev.ErrorCode, &ev.DeviceType, &ev.Country); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return events, nil
}
