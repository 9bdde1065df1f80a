// Command seed loads farmers and observations from a JSON fixture into the
// configured record store. Observations go through the alert engine, so
// trigger evaluation runs exactly as it does for live reports.
//
// Usage:
//
//	STORE_DRIVER=sqlite go run ./cmd/seed \
//	  -fixture data/seed/malabe.json \
//	  -now 2024-05-08T12:00:00Z
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/couchcryptid/crop-threat-alerts/internal/alerting"
	"github.com/couchcryptid/crop-threat-alerts/internal/app"
	"github.com/couchcryptid/crop-threat-alerts/internal/config"
	"github.com/couchcryptid/crop-threat-alerts/internal/domain"
	"github.com/couchcryptid/crop-threat-alerts/internal/observability"
	"github.com/jonboulle/clockwork"
)

type fixture struct {
	Farmers      []domain.Farmer             `json:"farmers"`
	Observations []domain.ObservationPayload `json:"observations"`
}

type farmerSaver interface {
	SaveFarmer(ctx context.Context, f domain.Farmer) (domain.Farmer, error)
}

type recorder interface {
	RecordObservation(ctx context.Context, in domain.NewObservation) (domain.Observation, error)
}

// seedResult counts what was loaded, for the summary printed at the end.
type seedResult struct {
	farmers  int
	recorded map[string]int // kind|name
	rejected int
}

func main() {
	if err := run(); err != nil {
		slog.Error("seed failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	fixturePath := flag.String("fixture", "data/seed/malabe.json", "path to the JSON fixture")
	nowFlag := flag.String("now", "", "RFC3339 time to evaluate triggers at (default: wall clock)")
	flag.Parse()

	clock := clockwork.NewRealClock()
	if *nowFlag != "" {
		now, err := time.Parse(time.RFC3339, *nowFlag)
		if err != nil {
			return fmt.Errorf("parse -now: %w", err)
		}
		clock = clockwork.NewFakeClockAt(now.UTC())
	}

	fx, err := loadFixture(*fixturePath)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx := context.Background()
	store, closeStore, err := app.OpenStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore() //nolint:errcheck // best effort on exit

	engine, err := alerting.New(store, app.Notifier(nil, metrics, logger), logger, metrics,
		alerting.WithPolicy(cfg.AlertPolicy()),
		alerting.WithVocabulary(domain.DefaultVocabulary(cfg.PestVocabulary, cfg.DiseaseVocabulary)),
		alerting.WithClock(clock),
	)
	if err != nil {
		return err
	}

	res, err := seed(ctx, store, engine, fx, logger)
	if err != nil {
		return err
	}
	printSummary(os.Stdout, res)
	return nil
}

func loadFixture(path string) (fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return fixture{}, fmt.Errorf("read fixture: %w", err)
	}
	var fx fixture
	if err := json.Unmarshal(data, &fx); err != nil {
		return fixture{}, fmt.Errorf("decode fixture %s: %w", path, err)
	}
	return fx, nil
}

// seed saves every farmer, then records observations in fixture order.
// Invalid observations are logged and counted; store failures abort.
func seed(ctx context.Context, farmers farmerSaver, rec recorder, fx fixture, logger *slog.Logger) (seedResult, error) {
	res := seedResult{recorded: map[string]int{}}
	for _, f := range fx.Farmers {
		if _, err := farmers.SaveFarmer(ctx, f); err != nil {
			return res, fmt.Errorf("save farmer %s: %w", f.ID, err)
		}
		res.farmers++
	}

	for i, p := range fx.Observations {
		in, err := p.ToNewObservation("")
		if err != nil {
			logger.Warn("skipping fixture observation", "index", i, "error", err)
			res.rejected++
			continue
		}
		obs, err := rec.RecordObservation(ctx, in)
		if err != nil {
			if errors.Is(err, domain.ErrInvalidInput) || errors.Is(err, domain.ErrNotFound) {
				logger.Warn("skipping fixture observation", "index", i, "error", err)
				res.rejected++
				continue
			}
			return res, fmt.Errorf("record observation %d: %w", i, err)
		}
		res.recorded[string(obs.Kind)+"|"+obs.Name]++
	}
	return res, nil
}

func printSummary(w io.Writer, res seedResult) {
	keys := make([]string, 0, len(res.recorded))
	total := 0
	for k, n := range res.recorded {
		keys = append(keys, k)
		total += n
	}
	sort.Strings(keys)

	fmt.Fprintf(w, "farmers: %d\n", res.farmers)
	fmt.Fprintf(w, "observations: %d (rejected %d)\n", total, res.rejected)
	for _, k := range keys {
		fmt.Fprintf(w, "  %s=%d\n", k, res.recorded[k])
	}
}
