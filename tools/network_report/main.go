// Network Report Tool generates mediation performance reports per partner
// network and per placement.
//
// This tool connects directly to ClickHouse to query mediation analytics and
// prints a formatted report with fill rates, revenue and automated insights.
//
// Usage:
//
//	go run ./tools/network_report -days=30
//	go run ./tools/network_report -publisher-id=1 -days=7
//
// The tool outputs a formatted report including:
//   - Per-network totals (attempts, fills, fill rate, revenue, eCPM)
//   - Daily per-network breakdown
//   - Per-placement mediation outcomes
//   - Automated insights on waterfall health
//
// Configuration:
//
//	-publisher-id: Optional. Restrict the report to one publisher (default: all)
//	-days: Optional. Number of days to include in the report (default: 7)
//	-clickhouse-dsn: Optional. ClickHouse connection string (default: tcp://localhost:9000)
//
// Environment Variables:
//
//	CLICKHOUSE_DSN: ClickHouse connection string (overridden by -clickhouse-dsn flag)
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	_ "github.com/ClickHouse/clickhouse-go/v2"

	"github.com/openmediate/gateway/internal/reporting"
)

func main() {
	var (
		publisherID = flag.Int("publisher-id", 0, "Publisher ID to restrict the report to (0 for all)")
		days        = flag.Int("days", 7, "Number of days to include in report")
		dsn         = flag.String("clickhouse-dsn", getEnv("CLICKHOUSE_DSN", "tcp://localhost:9000"), "ClickHouse DSN")
	)
	flag.Parse()

	// Connect to ClickHouse
	db, err := sql.Open("clickhouse", *dsn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to ClickHouse: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if err := db.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close database connection: %v\n", err)
		}
	}()

	if err := db.PingContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error pinging ClickHouse: %v\n", err)
		os.Exit(1)
	}

	summary, err := reporting.GenerateMediationReport(context.Background(), db, *publisherID, *days)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating report: %v\n", err)
		os.Exit(1)
	}

	printMediationReport(summary, *publisherID)
}

// printMediationReport outputs a formatted mediation performance report to
// stdout: per-network totals, a daily breakdown and placement outcomes,
// followed by automated waterfall health insights.
func printMediationReport(summary *reporting.MediationSummary, publisherID int) {
	fmt.Printf("═══════════════════════════════════════════════════════════════════════════════════\n")
	fmt.Printf("                             MEDIATION PERFORMANCE REPORT                          \n")
	fmt.Printf("═══════════════════════════════════════════════════════════════════════════════════\n")
	if publisherID > 0 {
		fmt.Printf("Publisher ID: %d\n", publisherID)
	} else {
		fmt.Printf("Publisher: all\n")
	}
	fmt.Printf("Report Period: %d days (ending %s)\n", summary.Days, time.Now().Format("2006-01-02"))
	fmt.Printf("Generated: %s\n\n", time.Now().Format("2006-01-02 15:04:05"))

	// Network Totals
	if len(summary.NetworkTotals) > 0 {
		fmt.Printf("📊 NETWORK TOTALS\n")
		fmt.Printf("───────────────────────────────────────────────────────────────────────────────────\n")
		fmt.Printf("Network         | Attempts |  Fills | Fill Rate | Impressions | Clicks |  Revenue |  eCPM \n")
		fmt.Printf("----------------|----------|--------|-----------|-------------|--------|----------|-------\n")
		for _, nm := range summary.NetworkTotals {
			fmt.Printf("%-15s | %8s | %6s | %8.2f%% | %11s | %6s | $%7.2f | $%5.2f\n",
				nm.NetworkName,
				formatNumber(nm.Attempts),
				formatNumber(nm.Fills),
				nm.FillRate,
				formatNumber(nm.Impressions),
				formatNumber(nm.Clicks),
				nm.Revenue,
				nm.ECPM,
			)
		}
		fmt.Printf("\n")
	}

	// Daily Breakdown
	if len(summary.DailyNetworks) > 0 {
		fmt.Printf("📅 DAILY BREAKDOWN\n")
		fmt.Printf("───────────────────────────────────────────────────────────────────────────────────\n")
		fmt.Printf("Date        | Network         | Attempts |  Fills | Fill Rate |  Revenue \n")
		fmt.Printf("------------|-----------------|----------|--------|-----------|----------\n")
		for _, nm := range summary.DailyNetworks {
			fmt.Printf("%-10s | %-15s | %8s | %6s | %8.2f%% | $%7.2f\n",
				nm.Date.Format("2006-01-02"),
				nm.NetworkName,
				formatNumber(nm.Attempts),
				formatNumber(nm.Fills),
				nm.FillRate,
				nm.Revenue,
			)
		}
		fmt.Printf("\n")
	}

	// Placement Outcomes
	if len(summary.PlacementMetrics) > 0 {
		fmt.Printf("📋 PLACEMENT OUTCOMES\n")
		fmt.Printf("───────────────────────────────────────────────────────────────────────────────────\n")
		fmt.Printf("Placement            | Requests |  Fills | No Fills | Fill Rate |  Revenue \n")
		fmt.Printf("---------------------|----------|--------|----------|-----------|----------\n")
		for _, pm := range summary.PlacementMetrics {
			fmt.Printf("%-20s | %8s | %6s | %8s | %8.2f%% | $%7.2f\n",
				pm.PlacementID,
				formatNumber(pm.Requests),
				formatNumber(pm.Fills),
				formatNumber(pm.NoFills),
				pm.FillRate,
				pm.Revenue,
			)
		}
		fmt.Printf("\n")
	}

	// Insights
	fmt.Printf("💡 INSIGHTS & RECOMMENDATIONS\n")
	fmt.Printf("───────────────────────────────────────────────────────────────────────────────────\n")

	if len(summary.NetworkTotals) == 0 {
		fmt.Printf("⚠️  No mediation traffic recorded in this period\n")
	} else {
		var best, worst *reporting.NetworkMetrics
		for i := range summary.NetworkTotals {
			nm := &summary.NetworkTotals[i]
			if nm.Attempts == 0 {
				continue
			}
			if best == nil || nm.FillRate > best.FillRate {
				best = nm
			}
			if worst == nil || nm.FillRate < worst.FillRate {
				worst = nm
			}
		}
		if best != nil {
			fmt.Printf("✅ Best filling network: %s (%.2f%% fill rate, $%.2f eCPM)\n",
				best.NetworkName, best.FillRate, best.ECPM)
		}
		if worst != nil && best != nil && worst.NetworkName != best.NetworkName && worst.FillRate < 10 {
			fmt.Printf("⚠️  %s fills only %.2f%% of attempts - consider demoting it in the waterfall\n",
				worst.NetworkName, worst.FillRate)
		}
	}

	for _, pm := range summary.PlacementMetrics {
		if pm.Requests > 100 && pm.FillRate < 50 {
			fmt.Printf("⚠️  Placement %s fills only %.2f%% of requests - check its waterfall depth\n",
				pm.PlacementID, pm.FillRate)
		}
	}

	fmt.Printf("═══════════════════════════════════════════════════════════════════════════════════\n")
}

// formatNumber formats large integers with comma separators for improved
// readability. Example: 1234567 becomes "1,234,567"
func formatNumber(n int64) string {
	str := fmt.Sprintf("%d", n)
	if len(str) <= 3 {
		return str
	}
	var result []byte
	for i, c := range []byte(str) {
		if i > 0 && (len(str)-i)%3 == 0 {
			result = append(result, ',')
		}
		result = append(result, c)
	}
	return string(result)
}

// getEnv returns the environment variable value or a default.
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
