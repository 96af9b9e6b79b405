package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/XSAM/otelsql"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/openmediate/gateway/internal/models"
)

// Postgres wraps a postgres DB connection.
type Postgres struct {
	DB *sql.DB
}

// schemaSQL sets up the necessary tables if they don't exist.
const schemaSQL = `CREATE TABLE IF NOT EXISTS publishers (
    id SERIAL PRIMARY KEY,
    name TEXT NOT NULL,
    domain TEXT NOT NULL,
    api_key TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS networks (
    id SERIAL PRIMARY KEY,
    name TEXT NOT NULL,
    kind TEXT NOT NULL,
    endpoint TEXT,
    app_id TEXT,
    api_key TEXT,
    zone_id TEXT,
    formats TEXT[],
    requires_consent BOOLEAN NOT NULL DEFAULT FALSE,
    active BOOLEAN NOT NULL DEFAULT TRUE,
    ecpm DOUBLE PRECISION NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS placements (
    id TEXT PRIMARY KEY,
    publisher_id INT REFERENCES publishers(id),
    width INT,
    height INT,
    formats TEXT[],
    frequency_cap INT,
    frequency_window INT
);

CREATE TABLE IF NOT EXISTS placement_networks (
    placement_id TEXT REFERENCES placements(id),
    network_id INT REFERENCES networks(id),
    priority INT NOT NULL,
    floor_cpm DOUBLE PRECISION NOT NULL DEFAULT 0,
    PRIMARY KEY (placement_id, network_id)
);

CREATE TABLE IF NOT EXISTS house_creatives (
    id SERIAL PRIMARY KEY,
    placement_id TEXT REFERENCES placements(id),
    markup TEXT NOT NULL,
    width INT,
    height INT,
    format TEXT,
    click_url TEXT,
    active BOOLEAN NOT NULL DEFAULT TRUE
);

-- Hot-path lookup indexes
CREATE INDEX IF NOT EXISTS idx_placements_publisher_id ON placements (publisher_id);
CREATE INDEX IF NOT EXISTS idx_placement_networks_placement ON placement_networks (placement_id, priority);
CREATE INDEX IF NOT EXISTS idx_house_creatives_placement ON house_creatives (placement_id) WHERE active;
CREATE INDEX IF NOT EXISTS idx_publishers_api_key ON publishers (api_key);
`

// InitPostgres connects to Postgres with connection pooling configuration.
func InitPostgres(dsn string, maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) (*Postgres, error) {
	// Register the otelsql wrapper for postgres
	driverName, err := otelsql.Register("postgres",
		otelsql.WithAttributes(
			attribute.String("db.system", "postgresql"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("register otelsql: %w", err)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)
	db.SetConnMaxIdleTime(connMaxIdleTime)

	if err := db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	p := &Postgres{DB: db}
	if err := p.ensureSchema(); err != nil {
		return nil, err
	}
	zap.L().Info("Connected to Postgres with connection pooling",
		zap.Int("max_open_conns", maxOpenConns),
		zap.Int("max_idle_conns", maxIdleConns),
		zap.Duration("conn_max_lifetime", connMaxLifetime))
	return p, nil
}

// Close terminates the Postgres connection.
func (p *Postgres) Close() {
	if p != nil && p.DB != nil {
		if err := p.DB.Close(); err != nil {
			zap.L().Error("postgres close", zap.Error(err))
		}
	}
}

// ensureSchema creates the required tables if they do not exist.
func (p *Postgres) ensureSchema() error {
	ctx := context.Background()
	if _, err := p.DB.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// LoadPublishers retrieves all publishers from the database.
func (p *Postgres) LoadPublishers() ([]models.Publisher, error) {
	rows, err := p.DB.QueryContext(context.Background(), `SELECT id, name, domain, api_key FROM publishers`)
	if err != nil {
		return nil, fmt.Errorf("query publishers: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var pubs []models.Publisher
	for rows.Next() {
		var pub models.Publisher
		if err := rows.Scan(&pub.ID, &pub.Name, &pub.Domain, &pub.APIKey); err != nil {
			return nil, fmt.Errorf("scan publisher: %w", err)
		}
		pubs = append(pubs, pub)
	}
	return pubs, rows.Err()
}

// LoadNetworks retrieves all configured networks from the database.
func (p *Postgres) LoadNetworks() ([]models.Network, error) {
	rows, err := p.DB.QueryContext(context.Background(), `SELECT id, name, kind, endpoint, app_id, api_key, zone_id, formats, requires_consent, active, ecpm FROM networks`)
	if err != nil {
		return nil, fmt.Errorf("query networks: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var networks []models.Network
	for rows.Next() {
		var n models.Network
		var kind string
		var endpoint, appID, apiKey, zoneID sql.NullString
		var formats pq.StringArray
		if err := rows.Scan(&n.ID, &n.Name, &kind, &endpoint, &appID, &apiKey, &zoneID, &formats, &n.RequiresConsent, &n.Active, &n.ECPM); err != nil {
			return nil, fmt.Errorf("scan network: %w", err)
		}
		n.Kind = models.NetworkKind(kind)
		n.Endpoint = endpoint.String
		n.AppID = appID.String
		n.APIKey = apiKey.String
		n.ZoneID = zoneID.String
		for _, f := range formats {
			n.Formats = append(n.Formats, models.AdFormat(f))
		}
		networks = append(networks, n)
	}
	return networks, rows.Err()
}

// LoadPlacements retrieves placements and their waterfall entries ordered by
// priority.
func (p *Postgres) LoadPlacements() ([]models.Placement, error) {
	ctx := context.Background()
	rows, err := p.DB.QueryContext(ctx, `SELECT id, publisher_id, width, height, formats, frequency_cap, frequency_window FROM placements`)
	if err != nil {
		return nil, fmt.Errorf("query placements: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var placements []models.Placement
	index := make(map[string]int)
	for rows.Next() {
		var pl models.Placement
		var width, height, freqCap, freqWindow sql.NullInt64
		var formats pq.StringArray
		if err := rows.Scan(&pl.ID, &pl.PublisherID, &width, &height, &formats, &freqCap, &freqWindow); err != nil {
			return nil, fmt.Errorf("scan placement: %w", err)
		}
		pl.Width = int(width.Int64)
		pl.Height = int(height.Int64)
		pl.FrequencyCap = int(freqCap.Int64)
		pl.FrequencyWindowSec = int(freqWindow.Int64)
		for _, f := range formats {
			pl.Formats = append(pl.Formats, models.AdFormat(f))
		}
		index[pl.ID] = len(placements)
		placements = append(placements, pl)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	wrows, err := p.DB.QueryContext(ctx, `SELECT placement_id, network_id, priority, floor_cpm FROM placement_networks ORDER BY placement_id, priority`)
	if err != nil {
		return nil, fmt.Errorf("query placement networks: %w", err)
	}
	defer func() {
		_ = wrows.Close()
	}()

	for wrows.Next() {
		var placementID string
		var entry models.NetworkEntry
		if err := wrows.Scan(&placementID, &entry.NetworkID, &entry.Priority, &entry.FloorCPM); err != nil {
			return nil, fmt.Errorf("scan placement network: %w", err)
		}
		if i, ok := index[placementID]; ok {
			placements[i].Networks = append(placements[i].Networks, entry)
		}
	}
	return placements, wrows.Err()
}

// LoadHouseCreatives retrieves active house creatives from the database.
func (p *Postgres) LoadHouseCreatives() ([]models.HouseCreative, error) {
	rows, err := p.DB.QueryContext(context.Background(), `SELECT id, placement_id, markup, width, height, format, click_url, active FROM house_creatives WHERE active`)
	if err != nil {
		return nil, fmt.Errorf("query house creatives: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var creatives []models.HouseCreative
	for rows.Next() {
		var c models.HouseCreative
		var format, clickURL sql.NullString
		if err := rows.Scan(&c.ID, &c.PlacementID, &c.Markup, &c.Width, &c.Height, &format, &clickURL, &c.Active); err != nil {
			return nil, fmt.Errorf("scan house creative: %w", err)
		}
		c.Format = models.AdFormat(format.String)
		if c.Format == "" {
			c.Format = models.FormatBanner
		}
		c.ClickURL = clickURL.String
		creatives = append(creatives, c)
	}
	return creatives, rows.Err()
}

// PersistNetworkECPM writes an observed eCPM back to the networks table so a
// restart starts from the last known ranking.
func (p *Postgres) PersistNetworkECPM(networkID int, ecpm float64) error {
	_, err := p.DB.ExecContext(context.Background(), `UPDATE networks SET ecpm = $1 WHERE id = $2`, ecpm, networkID)
	if err != nil {
		return fmt.Errorf("persist network ecpm: %w", err)
	}
	return nil
}
