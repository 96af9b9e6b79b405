package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/openmediate/gateway/internal/analytics"
	"github.com/openmediate/gateway/internal/config"
	"github.com/openmediate/gateway/internal/observability"
)

func main() {
	logger, err := observability.InitLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	var id string
	var dsn string
	flag.StringVar(&id, "id", "", "request ID")
	flag.StringVar(&dsn, "dsn", "", "ClickHouse DSN")
	flag.Parse()

	if id == "" {
		fmt.Fprintln(os.Stderr, "id required")
		os.Exit(1)
	}
	if dsn == "" {
		cfg := config.Load()
		dsn = cfg.ClickHouseDSN
	}

	a, err := analytics.InitClickHouse(dsn, nil, observability.NewNoOpRegistry())
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect clickhouse: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	events, err := a.GetEventsByRequestID(id)
	if err != nil {
		fmt.Fprintf(os.Stderr, "query events: %v\n", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(events); err != nil {
		fmt.Fprintf(os.Stderr, "encode events: %v\n", err)
		os.Exit(1)
	}

	printWaterfallSummary(events)
}

// printWaterfallSummary condenses a request's event trail into the mediation
// outcome: which networks were attempted, who filled and at what price, and
// whether the impression and click callbacks arrived.
func printWaterfallSummary(events []analytics.Event) {
	if len(events) == 0 {
		fmt.Fprintln(os.Stderr, "no events recorded for this request")
		return
	}

	byType := make(map[string]int)
	var attempted []string
	var winner *analytics.Event
	for i, ev := range events {
		byType[ev.EventType]++
		switch ev.EventType {
		case analytics.EventFill:
			winner = &events[i]
			fallthrough
		case analytics.EventNoFill, analytics.EventAdapterError:
			if ev.NetworkName != nil {
				attempted = append(attempted, *ev.NetworkName)
			}
		}
	}

	fmt.Fprintf(os.Stderr, "\n%d events for request %s\n", len(events), events[0].RequestID)
	if len(attempted) > 0 {
		fmt.Fprintf(os.Stderr, "waterfall: %s\n", strings.Join(attempted, " -> "))
	}
	if winner != nil && winner.NetworkName != nil {
		fmt.Fprintf(os.Stderr, "filled by %s at %.2f CPM\n", *winner.NetworkName, winner.PriceCPM)
	} else {
		fmt.Fprintln(os.Stderr, "no fill")
	}
	fmt.Fprintf(os.Stderr, "impressions: %d, clicks: %d\n",
		byType[analytics.EventImpression], byType[analytics.EventClick])
}
