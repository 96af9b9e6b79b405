package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/openmediate/gateway/internal/config"
	"github.com/openmediate/gateway/internal/db"
	"github.com/openmediate/gateway/internal/models"
	"github.com/openmediate/gateway/internal/observability"
)

var (
	pubCount     = flag.Int("publishers", 1, "number of additional random publishers")
	networksPer  = flag.Int("networks", 3, "HTTP networks per waterfall")
	placements   = flag.Int("placements", 2, "placements per publisher")
	creativesPer = flag.Int("creatives", 2, "house creatives per placement")
	seed         = flag.Int64("seed", time.Now().UnixNano(), "rng seed")
	skipReload   = flag.Bool("skip-reload", false, "skip automatic reload after data insertion")
)

func main() {
	flag.Parse()

	logger, err := observability.InitLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg := config.Load()
	pg, err := db.InitPostgres(cfg.PostgresDSN, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime, cfg.DBConnMaxIdleTime)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect postgres: %v\n", err)
		os.Exit(1)
	}
	defer pg.Close()

	r := rand.New(rand.NewSource(*seed))

	// Shared partner networks: one house fallback plus the HTTP partners every
	// waterfall draws from.
	houseNet, httpNets, err := ensureNetworks(pg, r)
	if err != nil {
		logger.Fatal("insert networks", zap.Error(err))
	}

	// Check if demo publisher already exists
	var demoExists int
	if err := pg.DB.QueryRowContext(context.Background(), `SELECT COUNT(*) FROM publishers WHERE domain = 'demo.example.com'`).Scan(&demoExists); err != nil {
		logger.Fatal("check demo publisher", zap.Error(err))
	}

	if demoExists == 0 {
		demo := models.Publisher{Name: "Demo Publisher", Domain: "demo.example.com", APIKey: "demo123"}
		if err := insertPublisher(pg, &demo); err != nil {
			logger.Fatal("insert demo publisher", zap.Error(err))
		}

		for _, pl := range demoPlacements(demo.ID) {
			if err := insertPlacement(pg, pl); err != nil {
				logger.Fatal("insert placement", zap.Error(err))
			}
			if err := insertWaterfall(pg, r, pl.ID, httpNets, houseNet); err != nil {
				logger.Fatal("insert waterfall", zap.Error(err))
			}
			for x := 0; x < *creativesPer; x++ {
				cr := randomHouseCreative(r, pl)
				if err := insertHouseCreative(pg, &cr); err != nil {
					logger.Fatal("insert house creative", zap.Error(err))
				}
			}
		}
	}

	for i := 0; i < *pubCount; i++ {
		pub := models.Publisher{
			Name:   fakeName(r),
			Domain: fakeDomain(r),
			APIKey: randomString(r, 8),
		}
		if err := insertPublisher(pg, &pub); err != nil {
			logger.Fatal("insert publisher", zap.Error(err))
		}

		for j := 0; j < *placements; j++ {
			pl := randomPlacement(r, pub.ID, j+1)
			if err := insertPlacement(pg, pl); err != nil {
				logger.Fatal("insert placement", zap.Error(err))
			}
			if err := insertWaterfall(pg, r, pl.ID, httpNets, houseNet); err != nil {
				logger.Fatal("insert waterfall", zap.Error(err))
			}
			for x := 0; x < *creativesPer; x++ {
				cr := randomHouseCreative(r, pl)
				if err := insertHouseCreative(pg, &cr); err != nil {
					logger.Fatal("insert house creative", zap.Error(err))
				}
			}
		}
	}

	fmt.Println("fake data inserted")

	if !*skipReload {
		if err := callReloadEndpoint(&cfg); err != nil {
			logger.Error("reload endpoint failed", zap.Error(err))
			fmt.Fprintf(os.Stderr, "Warning: failed to reload server data: %v\n", err)
		} else {
			fmt.Println("server data reloaded")
		}
	}
}

// ensureNetworks inserts the shared partner networks once, keyed by name.
func ensureNetworks(pg *db.Postgres, r *rand.Rand) (house models.Network, http []models.Network, err error) {
	house = models.Network{
		Name:    "house",
		Kind:    models.NetworkKindHouse,
		Formats: []models.AdFormat{models.FormatBanner},
		Active:  true,
	}
	if err = upsertNetwork(pg, &house); err != nil {
		return house, nil, err
	}

	partners := []models.Network{
		{
			Name:            "demandgrid",
			Kind:            models.NetworkKindHTTP,
			Endpoint:        "http://localhost:9101/load",
			AppID:           "dg-app-demo",
			APIKey:          randomString(r, 12),
			ZoneID:          "dg-zone-1",
			Formats:         []models.AdFormat{models.FormatBanner, models.FormatInterstitial},
			RequiresConsent: true,
			Active:          true,
			ECPM:            float64(r.Intn(400)+100) / 100,
		},
		{
			Name:     "adpeak",
			Kind:     models.NetworkKindHTTP,
			Endpoint: "http://localhost:9102/load",
			AppID:    "ap-app-demo",
			APIKey:   randomString(r, 12),
			ZoneID:   "ap-zone-1",
			Formats:  []models.AdFormat{models.FormatBanner},
			Active:   true,
			ECPM:     float64(r.Intn(300)+50) / 100,
		},
		{
			Name:            "bidstream",
			Kind:            models.NetworkKindHTTP,
			Endpoint:        "http://localhost:9103/load",
			AppID:           "bs-app-demo",
			APIKey:          randomString(r, 12),
			ZoneID:          "bs-zone-1",
			Formats:         []models.AdFormat{models.FormatBanner, models.FormatRewarded},
			RequiresConsent: true,
			Active:          true,
			ECPM:            float64(r.Intn(500)+100) / 100,
		},
	}
	for i := range partners {
		if err = upsertNetwork(pg, &partners[i]); err != nil {
			return house, nil, err
		}
	}
	return house, partners, nil
}

func upsertNetwork(pg *db.Postgres, n *models.Network) error {
	formats := make([]string, len(n.Formats))
	for i, f := range n.Formats {
		formats[i] = string(f)
	}
	err := pg.DB.QueryRowContext(context.Background(), `SELECT id FROM networks WHERE name = $1`, n.Name).Scan(&n.ID)
	if err == nil {
		return nil
	}
	return pg.DB.QueryRowContext(context.Background(), `INSERT INTO networks
        (name, kind, endpoint, app_id, api_key, zone_id, formats, requires_consent, active, ecpm)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING id`,
		n.Name, string(n.Kind), nullString(n.Endpoint), nullString(n.AppID), nullString(n.APIKey),
		nullString(n.ZoneID), pq.Array(formats), n.RequiresConsent, n.Active, n.ECPM).Scan(&n.ID)
}

func insertPublisher(pg *db.Postgres, p *models.Publisher) error {
	err := pg.DB.QueryRowContext(context.Background(), `INSERT INTO publishers (name, domain, api_key) VALUES ($1,$2,$3) RETURNING id`, p.Name, p.Domain, p.APIKey).Scan(&p.ID)
	return err
}

func insertPlacement(pg *db.Postgres, p models.Placement) error {
	formats := make([]string, len(p.Formats))
	for i, f := range p.Formats {
		formats[i] = string(f)
	}
	_, err := pg.DB.ExecContext(context.Background(), `INSERT INTO placements (id, publisher_id, width, height, formats, frequency_cap, frequency_window) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		p.ID, p.PublisherID, p.Width, p.Height, pq.Array(formats), p.FrequencyCap, p.FrequencyWindowSec)
	return err
}

// insertWaterfall wires a random subset of HTTP partners above the house
// fallback, in descending priority.
func insertWaterfall(pg *db.Postgres, r *rand.Rand, placementID string, httpNets []models.Network, houseNet models.Network) error {
	n := *networksPer
	if n > len(httpNets) {
		n = len(httpNets)
	}
	order := r.Perm(len(httpNets))[:n]
	priority := 1
	for _, idx := range order {
		net := httpNets[idx]
		floor := float64(r.Intn(200)) / 100
		if err := insertPlacementNetwork(pg, placementID, net.ID, priority, floor); err != nil {
			return err
		}
		priority++
	}
	return insertPlacementNetwork(pg, placementID, houseNet.ID, priority, 0)
}

func insertPlacementNetwork(pg *db.Postgres, placementID string, networkID, priority int, floorCPM float64) error {
	_, err := pg.DB.ExecContext(context.Background(), `INSERT INTO placement_networks (placement_id, network_id, priority, floor_cpm) VALUES ($1,$2,$3,$4) ON CONFLICT DO NOTHING`,
		placementID, networkID, priority, floorCPM)
	return err
}

func insertHouseCreative(pg *db.Postgres, c *models.HouseCreative) error {
	err := pg.DB.QueryRowContext(context.Background(), `INSERT INTO house_creatives
        (placement_id, markup, width, height, format, click_url, active)
        VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
		c.PlacementID, c.Markup, c.Width, c.Height, string(c.Format), nullString(c.ClickURL), c.Active).Scan(&c.ID)
	return err
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// random helpers

var nameAdjectives = []string{"Acme", "Prime", "Dynamic", "Next", "Fast", "Bright", "Super"}
var nameNouns = []string{"Games", "Apps", "Media", "Studio", "Labs", "Interactive"}

func fakeName(r *rand.Rand) string {
	return fmt.Sprintf("%s %s", nameAdjectives[r.Intn(len(nameAdjectives))], nameNouns[r.Intn(len(nameNouns))])
}

var domainWords = []string{"alpha", "beta", "gamma", "delta", "omega", "play", "arcade"}
var domainTLDs = []string{"com", "net", "io", "dev"}

func fakeDomain(r *rand.Rand) string {
	return fmt.Sprintf("%s%d.%s", domainWords[r.Intn(len(domainWords))], r.Intn(1000), domainTLDs[r.Intn(len(domainTLDs))])
}

func randomString(r *rand.Rand, n int) string {
	letters := []rune("abcdefghijklmnopqrstuvwxyz0123456789")
	b := make([]rune, n)
	for i := range b {
		b[i] = letters[r.Intn(len(letters))]
	}
	return string(b)
}

// generateHouseClickURL builds a landing page URL exercising macro expansion.
func generateHouseClickURL(r *rand.Rand) string {
	pages := []struct {
		landingPage    string
		trackingParams []string
	}{
		{
			landingPage: "/install",
			trackingParams: []string{
				"utm_source={PUBLISHER_ID}",
				"utm_medium=house",
				"utm_content={CREATIVE_ID}",
				"click_id={UUID}",
				"timestamp={TIMESTAMP}",
			},
		},
		{
			landingPage: "/offers",
			trackingParams: []string{
				"publisher={PUBLISHER_ID}",
				"placement={PLACEMENT_ID}",
				"cr={CREATIVE_ID}",
				"auction={AUCTION_ID}",
				"t={TIMESTAMP_MS}",
			},
		},
		{
			landingPage: "/premium",
			trackingParams: []string{
				"ref={PUBLISHER_ID}",
				"ad={CREATIVE_ID}",
				"uuid={UUID}",
				"when={ISO_TIMESTAMP}",
				"cb={CACHEBUSTER}",
			},
		},
	}

	page := pages[r.Intn(len(pages))]
	baseURL := "https://example.com" + page.landingPage

	numParams := r.Intn(3) + 2
	if numParams > len(page.trackingParams) {
		numParams = len(page.trackingParams)
	}
	params := make([]string, len(page.trackingParams))
	copy(params, page.trackingParams)
	for i := len(params) - 1; i > 0; i-- {
		j := r.Intn(i + 1)
		params[i], params[j] = params[j], params[i]
	}
	return baseURL + "?" + strings.Join(params[:numParams], "&")
}

func randomPlacement(r *rand.Rand, pubID, idx int) models.Placement {
	sizes := []struct {
		Name string
		W, H int
	}{
		{"leaderboard", 728, 90},
		{"rectangle", 300, 250},
		{"mobile_banner", 320, 50},
		{"flex_banner", 320, 0},
	}
	s := sizes[r.Intn(len(sizes))]
	id := fmt.Sprintf("%s_%d_%d", s.Name, pubID, idx)
	return models.Placement{
		ID:                 id,
		PublisherID:        pubID,
		Width:              s.W,
		Height:             s.H,
		Formats:            []models.AdFormat{models.FormatBanner},
		FrequencyCap:       3,
		FrequencyWindowSec: 60,
	}
}

func demoPlacements(pubID int) []models.Placement {
	return []models.Placement{
		{ID: "home-banner", PublisherID: pubID, Width: 320, Height: 50, Formats: []models.AdFormat{models.FormatBanner}},
		{ID: "game-over", PublisherID: pubID, Width: 728, Height: 0, Formats: []models.AdFormat{models.FormatBanner}},
		{ID: "content-rect", PublisherID: pubID, Width: 300, Height: 250, Formats: []models.AdFormat{models.FormatBanner}},
		{ID: "level-complete", PublisherID: pubID, Width: 0, Height: 0, Formats: []models.AdFormat{models.FormatInterstitial, models.FormatBanner}},
	}
}

func randomHouseCreative(r *rand.Rand, p models.Placement) models.HouseCreative {
	randID := r.Intn(10000)
	w, h := p.Width, p.Height
	if w == 0 {
		w = 320
	}
	if h == 0 {
		h = 50
	}
	txt := fmt.Sprintf("House Ad %d", randID)
	markup := fmt.Sprintf("<div style='width:%dpx;height:%dpx;background:#e8f4ff;border:1px solid #888;display:flex;align-items:center;justify-content:center;font-family:sans-serif;cursor:pointer;'>%s</div>", w, h, txt)
	return models.HouseCreative{
		PlacementID: p.ID,
		Markup:      markup,
		Width:       w,
		Height:      h,
		Format:      models.FormatBanner,
		ClickURL:    generateHouseClickURL(r),
		Active:      true,
	}
}

func callReloadEndpoint(cfg *config.Config) error {
	reloadURL := fmt.Sprintf("http://localhost:%s/reload", cfg.Port)
	req, err := http.NewRequest("POST", reloadURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	return nil
}
