package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/crop-threat-alerts/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/crop-threat-alerts/internal/adapter/kafka"
	"github.com/couchcryptid/crop-threat-alerts/internal/adapter/mapbox"
	"github.com/couchcryptid/crop-threat-alerts/internal/adapter/shoutrrr"
	"github.com/couchcryptid/crop-threat-alerts/internal/alerting"
	"github.com/couchcryptid/crop-threat-alerts/internal/app"
	"github.com/couchcryptid/crop-threat-alerts/internal/config"
	"github.com/couchcryptid/crop-threat-alerts/internal/domain"
	"github.com/couchcryptid/crop-threat-alerts/internal/observability"
	"github.com/couchcryptid/crop-threat-alerts/internal/pipeline"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := app.OpenStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Error("store close error", "error", err)
		}
	}()

	// Reverse geocoding of coordinate-only observations (MAPBOX_ENABLED / MAPBOX_TOKEN).
	var geocoder domain.Geocoder
	if cfg.MapboxEnabled {
		client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, metrics, logger)
		geocoder = mapbox.NewCachedGeocoder(client, cfg.MapboxCacheSize, metrics)
		logger.Info("mapbox geocoding enabled", "cache_size", cfg.MapboxCacheSize, "timeout", cfg.MapboxTimeout)
	} else {
		logger.Info("mapbox geocoding disabled")
	}

	var channels []alerting.Channel
	var writer *kafkaadapter.Writer
	if cfg.KafkaEnabled {
		writer = kafkaadapter.NewWriter(cfg, logger)
		defer func() {
			if err := writer.Close(); err != nil {
				logger.Error("kafka writer close error", "error", err)
			}
		}()
		channels = append(channels, alerting.Channel{Name: "kafka", Notifier: writer})
	}
	if len(cfg.NotifyURLs) > 0 {
		push, err := shoutrrr.NewNotifier(cfg.NotifyURLs, cfg.NotifyTimeout, logger)
		if err != nil {
			return err
		}
		channels = append(channels, alerting.Channel{Name: "shoutrrr", Notifier: push})
		logger.Info("push notifications enabled", "services", len(cfg.NotifyURLs))
	}

	engine, err := alerting.New(store, app.Notifier(channels, metrics, logger), logger, metrics,
		alerting.WithPolicy(cfg.AlertPolicy()),
		alerting.WithVocabulary(domain.DefaultVocabulary(cfg.PestVocabulary, cfg.DiseaseVocabulary)),
		alerting.WithGeocoder(geocoder),
	)
	if err != nil {
		return err
	}

	ready := app.Readiness{engine}
	var p *pipeline.Pipeline
	var reader *kafkaadapter.Reader
	if cfg.KafkaEnabled {
		reader = kafkaadapter.NewReader(cfg, logger)
		p = pipeline.New(reader, pipeline.NewDecoder(), engine, logger, metrics, cfg.BatchSize)
		ready = append(ready, p)
	} else {
		logger.Info("kafka ingest disabled")
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, engine, ready, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	// Start ingest pipeline. pipelineDone closes once the in-flight message,
	// including its alert delivery, has settled.
	pipelineDone := make(chan struct{})
	if p != nil {
		go func() {
			defer close(pipelineDone)
			if err := p.Run(ctx); err != nil {
				logger.Error("pipeline error", "error", err)
			}
		}()
	} else {
		close(pipelineDone)
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if !awaitDone(shutdownCtx, pipelineDone) {
		logger.Warn("pipeline did not stop before shutdown timeout")
	}
	if reader != nil {
		if err := reader.Close(); err != nil {
			logger.Error("kafka reader close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
	return nil
}

// awaitDone waits for done to close. It returns false if ctx ends first.
func awaitDone(ctx context.Context, done <-chan struct{}) bool {
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
