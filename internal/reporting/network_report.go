// Package reporting provides mediation performance reporting. It queries
// ClickHouse analytics data to break down request volume, fill rate and
// revenue by partner network and by placement.
package reporting

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// NetworkMetrics represents performance metrics for one partner network over
// a reporting period. Revenue is in USD; FillRate is a percentage (0-100).
type NetworkMetrics struct {
	NetworkID   int       `json:"network_id"`   // Network identifier
	NetworkName string    `json:"network_name"` // Human-readable network name
	Date        time.Time `json:"date"`         // Date for daily metrics, current time for totals
	Attempts    int64     `json:"attempts"`     // Waterfall attempts routed to this network (fills + errors)
	Fills       int64     `json:"fills"`        // Successful fills
	Impressions int64     `json:"impressions"`  // Rendered impressions
	Clicks      int64     `json:"clicks"`       // Clicks received
	Revenue     float64   `json:"revenue"`      // Summed impression CPM revenue in USD
	FillRate    float64   `json:"fill_rate"`    // fills/attempts as percentage
	ECPM        float64   `json:"ecpm"`         // revenue per 1000 impressions in USD
}

// PlacementMetrics represents mediation outcomes for one placement: how much
// demand it saw and how often the waterfall filled it.
type PlacementMetrics struct {
	PlacementID string  `json:"placement_id"`
	Requests    int64   `json:"requests"`  // Mediation requests received
	Fills       int64   `json:"fills"`     // Requests the waterfall filled
	NoFills     int64   `json:"no_fills"`  // Requests that exhausted the waterfall
	FillRate    float64 `json:"fill_rate"` // fills/requests as percentage
	Revenue     float64 `json:"revenue"`   // Summed impression revenue in USD
}

// MediationSummary contains the full mediation report: per-network totals,
// per-network daily breakdowns and per-placement outcomes.
type MediationSummary struct {
	Days             int                `json:"days"`
	NetworkTotals    []NetworkMetrics   `json:"network_totals"`
	DailyNetworks    []NetworkMetrics   `json:"daily_networks"`
	PlacementMetrics []PlacementMetrics `json:"placement_metrics"`
}

// GenerateMediationReport queries ClickHouse for mediation performance data
// and assembles the report. publisherID of 0 covers all publishers.
func GenerateMediationReport(ctx context.Context, db *sql.DB, publisherID int, days int) (*MediationSummary, error) {
	summary := &MediationSummary{Days: days}

	daily, err := getDailyNetworkMetrics(ctx, db, publisherID, days)
	if err != nil {
		return nil, fmt.Errorf("get daily network metrics: %w", err)
	}
	summary.DailyNetworks = daily

	// Aggregate totals per network from the daily rows.
	totals := make(map[int]*NetworkMetrics)
	order := []int{}
	for _, dm := range daily {
		t, ok := totals[dm.NetworkID]
		if !ok {
			t = &NetworkMetrics{NetworkID: dm.NetworkID, NetworkName: dm.NetworkName, Date: time.Now()}
			totals[dm.NetworkID] = t
			order = append(order, dm.NetworkID)
		}
		t.Attempts += dm.Attempts
		t.Fills += dm.Fills
		t.Impressions += dm.Impressions
		t.Clicks += dm.Clicks
		t.Revenue += dm.Revenue
	}
	for _, id := range order {
		t := totals[id]
		if t.Attempts > 0 {
			t.FillRate = float64(t.Fills) / float64(t.Attempts) * 100
		}
		if t.Impressions > 0 {
			t.ECPM = t.Revenue / float64(t.Impressions) * 1000
		}
		summary.NetworkTotals = append(summary.NetworkTotals, *t)
	}

	placements, err := getPlacementMetrics(ctx, db, publisherID, days)
	if err != nil {
		return nil, fmt.Errorf("get placement metrics: %w", err)
	}
	summary.PlacementMetrics = placements

	return summary, nil
}

// getDailyNetworkMetrics queries ClickHouse for daily per-network mediation
// metrics over the given number of days.
func getDailyNetworkMetrics(ctx context.Context, db *sql.DB, publisherID int, days int) ([]NetworkMetrics, error) {
	query := `
		SELECT
			toDate(timestamp) as date,
			assumeNotNull(network_id) as network_id,
			anyLast(assumeNotNull(network_name)) as network_name,
			countIf(event_type IN ('fill', 'adapter_error')) as attempts,
			countIf(event_type = 'fill') as fills,
			countIf(event_type = 'impression') as impressions,
			countIf(event_type = 'click') as clicks,
			sumIf(price_cpm, event_type = 'impression') / 1000 as revenue,
			round(if(attempts > 0, fills / attempts * 100, 0), 2) as fill_rate,
			round(if(impressions > 0, revenue / impressions * 1000, 0), 4) as ecpm
		FROM mediation_events
		WHERE network_id IS NOT NULL
			AND (? = 0 OR publisher_id = ?)
			AND timestamp >= now() - INTERVAL ? DAY
		GROUP BY date, network_id
		ORDER BY date DESC, fills DESC`

	rows, err := db.QueryContext(ctx, query, publisherID, publisherID, days)
	if err != nil {
		return nil, fmt.Errorf("query daily network metrics: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var metrics []NetworkMetrics
	for rows.Next() {
		var m NetworkMetrics
		err := rows.Scan(&m.Date, &m.NetworkID, &m.NetworkName, &m.Attempts, &m.Fills,
			&m.Impressions, &m.Clicks, &m.Revenue, &m.FillRate, &m.ECPM)
		if err != nil {
			return nil, fmt.Errorf("scan network metrics: %w", err)
		}
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}

// getPlacementMetrics queries ClickHouse for per-placement mediation
// outcomes over the given number of days.
func getPlacementMetrics(ctx context.Context, db *sql.DB, publisherID int, days int) ([]PlacementMetrics, error) {
	query := `
		SELECT
			placement_id,
			countIf(event_type = 'ad_request') as requests,
			countIf(event_type = 'fill') as fills,
			countIf(event_type = 'no_fill') as no_fills,
			round(if(requests > 0, fills / requests * 100, 0), 2) as fill_rate,
			sumIf(price_cpm, event_type = 'impression') / 1000 as revenue
		FROM mediation_events
		WHERE placement_id != ''
			AND (? = 0 OR publisher_id = ?)
			AND timestamp >= now() - INTERVAL ? DAY
		GROUP BY placement_id
		ORDER BY requests DESC`

	rows, err := db.QueryContext(ctx, query, publisherID, publisherID, days)
	if err != nil {
		return nil, fmt.Errorf("query placement metrics: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var metrics []PlacementMetrics
	for rows.Next() {
		var m PlacementMetrics
		err := rows.Scan(&m.PlacementID, &m.Requests, &m.Fills, &m.NoFills, &m.FillRate, &m.Revenue)
		if err != nil {
			return nil, fmt.Errorf("scan placement metrics: %w", err)
		}
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}
