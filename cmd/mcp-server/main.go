// Command mcp-server exposes mediation configuration and performance data
// over the Model Context Protocol, so agent tooling can inspect waterfalls
// and pull network reports without direct database access.
package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "github.com/ClickHouse/clickhouse-go/v2" // ClickHouse driver
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/openmediate/gateway/internal/db"
	"github.com/openmediate/gateway/internal/models"
	"github.com/openmediate/gateway/internal/reporting"
)

type GetInventoryInput struct {
	PublisherID int `json:"publisher_id"`
}

type InventoryPlacement struct {
	PlacementID string   `json:"placement_id"`
	Width       int      `json:"width"`
	Height      int      `json:"height"`
	Formats     []string `json:"formats"`
	Waterfall   []string `json:"waterfall"` // Network names in configured priority order
}

type GetInventoryOutput struct {
	Publisher  string               `json:"publisher"`
	Placements []InventoryPlacement `json:"placements"`
}

type GetMediationReportInput struct {
	PublisherID int `json:"publisher_id,omitempty"`
	Days        int `json:"days,omitempty"`
}

type mediationServer struct {
	dataStore models.MediationDataStore
	ch        *sql.DB
	logger    *zap.Logger
}

// GetInventory lists a publisher's placements with their configured
// waterfalls.
func (s *mediationServer) GetInventory(ctx context.Context, req *mcp.CallToolRequest, input GetInventoryInput) (*mcp.CallToolResult, GetInventoryOutput, error) {
	pub := s.dataStore.GetPublisher(input.PublisherID)
	if pub == nil {
		return nil, GetInventoryOutput{}, fmt.Errorf("unknown publisher %d", input.PublisherID)
	}

	out := GetInventoryOutput{Publisher: pub.Name}
	for _, pl := range s.dataStore.GetAllPlacements() {
		if pl.PublisherID != input.PublisherID {
			continue
		}
		ip := InventoryPlacement{
			PlacementID: pl.ID,
			Width:       pl.Width,
			Height:      pl.Height,
		}
		for _, f := range pl.Formats {
			ip.Formats = append(ip.Formats, string(f))
		}
		for _, entry := range pl.Networks {
			if n := s.dataStore.GetNetwork(entry.NetworkID); n != nil && n.Active {
				ip.Waterfall = append(ip.Waterfall, n.Name)
			}
		}
		out.Placements = append(out.Placements, ip)
	}

	s.logger.Info("inventory listed",
		zap.Int("publisher_id", input.PublisherID),
		zap.Int("placements", len(out.Placements)))
	return nil, out, nil
}

// GetMediationReport returns fill and revenue performance per network and
// per placement from ClickHouse.
func (s *mediationServer) GetMediationReport(ctx context.Context, req *mcp.CallToolRequest, input GetMediationReportInput) (*mcp.CallToolResult, *reporting.MediationSummary, error) {
	if s.ch == nil {
		return nil, nil, fmt.Errorf("analytics database unavailable")
	}
	days := input.Days
	if days <= 0 {
		days = 7
	}
	if days > 365 {
		days = 365
	}

	summary, err := reporting.GenerateMediationReport(ctx, s.ch, input.PublisherID, days)
	if err != nil {
		return nil, nil, fmt.Errorf("generate report: %w", err)
	}
	return nil, summary, nil
}

func main() {
	// Use stderr for all logging to avoid corrupting the stdio transport.
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	logger, err := cfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger = logger.Named("openmediate-mcp").With(zap.String("service", "openmediate-mcp"))

	postgresURL := os.Getenv("POSTGRES_DSN")
	if postgresURL == "" {
		logger.Fatal("POSTGRES_DSN environment variable is required")
	}

	pg, err := db.InitPostgres(postgresURL, 10, 5, 30*time.Minute, time.Minute)
	if err != nil {
		logger.Fatal("failed to connect to PostgreSQL", zap.Error(err))
	}
	defer pg.Close()

	dataStore := models.NewInMemoryMediationDataStore()
	if err := loadConfiguration(pg, dataStore); err != nil {
		logger.Fatal("failed to load mediation configuration", zap.Error(err))
	}

	clickhouseDSN := os.Getenv("CLICKHOUSE_DSN")
	if clickhouseDSN == "" {
		clickhouseDSN = "clickhouse://default:@localhost:9000/default"
	}
	clickhouseDB, err := sql.Open("clickhouse", clickhouseDSN)
	if err != nil {
		logger.Warn("failed to connect to ClickHouse, reports unavailable", zap.Error(err))
		clickhouseDB = nil
	}

	srv := &mediationServer{
		dataStore: dataStore,
		ch:        clickhouseDB,
		logger:    logger,
	}

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "openmediate",
		Version: "1.0.0",
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_inventory",
		Description: "List a publisher's placements with their configured mediation waterfalls",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"publisher_id": map[string]interface{}{
					"type":        "integer",
					"description": "Publisher ID to list inventory for",
				},
			},
			"required": []string{"publisher_id"},
		},
	}, srv.GetInventory)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_mediation_report",
		Description: "Mediation performance report: fills, fill rate and revenue per network and placement",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"publisher_id": map[string]interface{}{
					"type":        "integer",
					"description": "Restrict the report to one publisher (optional, defaults to all)",
				},
				"days": map[string]interface{}{
					"type":        "integer",
					"description": "Number of days to include (optional, defaults to 7, max 365)",
				},
			},
		},
	}, srv.GetMediationReport)

	stdioTransport := &mcp.StdioTransport{}

	var logBuffer bytes.Buffer
	loggingTransport := &mcp.LoggingTransport{
		Transport: stdioTransport,
		Writer:    &logBuffer,
	}

	logger.Info("MCP server running via stdio")

	if err := server.Run(context.Background(), loggingTransport); err != nil {
		logger.Fatal("server error", zap.Error(err), zap.String("mcp_logs", logBuffer.String()))
	}
}

// loadConfiguration populates the data store from Postgres. The MCP server
// takes a one-shot snapshot; long-lived sessions re-run the binary.
func loadConfiguration(pg *db.Postgres, dataStore models.MediationDataStore) error {
	publishers, err := pg.LoadPublishers()
	if err != nil {
		return fmt.Errorf("load publishers: %w", err)
	}
	placements, err := pg.LoadPlacements()
	if err != nil {
		return fmt.Errorf("load placements: %w", err)
	}
	networks, err := pg.LoadNetworks()
	if err != nil {
		return fmt.Errorf("load networks: %w", err)
	}
	creatives, err := pg.LoadHouseCreatives()
	if err != nil {
		return fmt.Errorf("load house creatives: %w", err)
	}
	return dataStore.ReloadAll(publishers, placements, networks, creatives)
}
