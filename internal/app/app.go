// Package app assembles the record store, notification channels and
// readiness checks from configuration. The commands share it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/crop-threat-alerts/internal/adapter/memstore"
	"github.com/couchcryptid/crop-threat-alerts/internal/adapter/postgres"
	"github.com/couchcryptid/crop-threat-alerts/internal/adapter/sqlite"
	"github.com/couchcryptid/crop-threat-alerts/internal/alerting"
	"github.com/couchcryptid/crop-threat-alerts/internal/config"
	"github.com/couchcryptid/crop-threat-alerts/internal/domain"
	"github.com/couchcryptid/crop-threat-alerts/internal/observability"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
)

// Store is a record store that can also register farmers.
type Store interface {
	alerting.RecordStore
	SaveFarmer(ctx context.Context, f domain.Farmer) (domain.Farmer, error)
}

// OpenStore opens the store selected by STORE_DRIVER. The returned func
// releases it.
func OpenStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Store, func() error, error) {
	switch cfg.StoreDriver {
	case config.StorePostgres:
		s, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("record store ready", "driver", cfg.StoreDriver)
		return s, s.Close, nil
	case config.StoreSQLite:
		s, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("record store ready", "driver", cfg.StoreDriver, "path", cfg.SQLitePath)
		return s, s.Close, nil
	case config.StoreMemory:
		logger.Warn("using in-memory record store; data is lost on restart")
		return memstore.New(), func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
	}
}

// Notifier builds the alert delivery fan-out. The log channel is always
// present so fired alerts are visible even when every other channel fails.
func Notifier(channels []alerting.Channel, metrics *observability.Metrics, logger *slog.Logger) alerting.Notifier {
	all := append([]alerting.Channel{{Name: "log", Notifier: alerting.NewLogNotifier(logger)}}, channels...)
	return alerting.NewFanout(metrics, all...)
}

// Readiness reports ready only when every checker does.
type Readiness []sharedobs.ReadinessChecker

func (r Readiness) CheckReadiness(ctx context.Context) error {
	var errs []error
	for _, c := range r {
		if err := c.CheckReadiness(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
