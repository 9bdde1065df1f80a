package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/crop-threat-alerts/internal/domain"
	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Store drivers accepted by STORE_DRIVER.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Alert policy. Severity and trigger thresholds are independent.
	AlertWindow      time.Duration
	SeverityMediumAt int
	SeverityHighAt   int
	TriggerWindow    time.Duration
	TriggerCount     int
	RecentLimit      int

	// Extra names appended to the built-in vocabularies.
	PestVocabulary    []string
	DiseaseVocabulary []string

	// Record store.
	StoreDriver string
	DatabaseURL string
	SQLitePath  string

	// Kafka ingest and alert publishing.
	KafkaEnabled          bool
	KafkaBrokers          []string
	KafkaObservationTopic string
	KafkaAlertTopic       string
	KafkaGroupID          string

	BatchSize          int
	BatchFlushInterval time.Duration

	// Notification delivery via shoutrrr service URLs.
	NotifyURLs    []string
	NotifyTimeout time.Duration

	// Mapbox geocoding configuration.
	MapboxToken     string
	MapboxEnabled   bool
	MapboxTimeout   time.Duration
	MapboxCacheSize int
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	alertWindow, err := parsePositiveDuration("ALERT_WINDOW", "168h")
	if err != nil {
		return nil, err
	}
	triggerWindow, err := parsePositiveDuration("TRIGGER_WINDOW", "168h")
	if err != nil {
		return nil, err
	}
	notifyTimeout, err := parsePositiveDuration("NOTIFY_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	mapboxTimeout, err := parsePositiveDuration("MAPBOX_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}

	mediumAt, err := parsePositiveInt("SEVERITY_MEDIUM_AT", 2)
	if err != nil {
		return nil, err
	}
	highAt, err := parsePositiveInt("SEVERITY_HIGH_AT", 3)
	if err != nil {
		return nil, err
	}
	triggerCount, err := parsePositiveInt("TRIGGER_COUNT", 3)
	if err != nil {
		return nil, err
	}
	recentLimit, err := parsePositiveInt("RECENT_LIMIT", 10)
	if err != nil {
		return nil, err
	}

	mapboxToken := os.Getenv("MAPBOX_TOKEN")
	mapboxEnabled := mapboxToken != ""
	if v := os.Getenv("MAPBOX_ENABLED"); v != "" {
		mapboxEnabled = v == "true"
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		AlertWindow:      alertWindow,
		SeverityMediumAt: mediumAt,
		SeverityHighAt:   highAt,
		TriggerWindow:    triggerWindow,
		TriggerCount:     triggerCount,
		RecentLimit:      recentLimit,

		PestVocabulary:    splitList(os.Getenv("PEST_VOCABULARY")),
		DiseaseVocabulary: splitList(os.Getenv("DISEASE_VOCABULARY")),

		StoreDriver: strings.ToLower(sharedcfg.EnvOrDefault("STORE_DRIVER", StoreMemory)),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		SQLitePath:  sharedcfg.EnvOrDefault("SQLITE_PATH", "crop-alerts.db"),

		KafkaEnabled:          os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers:          sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaObservationTopic: sharedcfg.EnvOrDefault("KAFKA_OBSERVATION_TOPIC", "farm-observations"),
		KafkaAlertTopic:       sharedcfg.EnvOrDefault("KAFKA_ALERT_TOPIC", "area-threat-alerts"),
		KafkaGroupID:          sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "crop-threat-alerts"),
		BatchSize:             batchSize,
		BatchFlushInterval:    flushInterval,

		NotifyURLs:    splitList(os.Getenv("NOTIFY_URLS")),
		NotifyTimeout: notifyTimeout,

		MapboxToken:     mapboxToken,
		MapboxEnabled:   mapboxEnabled,
		MapboxTimeout:   mapboxTimeout,
		MapboxCacheSize: parseMapboxCacheSize(),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.SeverityHighAt < c.SeverityMediumAt {
		return errors.New("SEVERITY_HIGH_AT must not be below SEVERITY_MEDIUM_AT")
	}
	switch c.StoreDriver {
	case StoreMemory, StoreSQLite:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required when STORE_DRIVER is postgres")
		}
	default:
		return fmt.Errorf("invalid STORE_DRIVER %q", c.StoreDriver)
	}
	if c.KafkaEnabled {
		if len(c.KafkaBrokers) == 0 {
			return errors.New("KAFKA_BROKERS is required")
		}
		if c.KafkaObservationTopic == "" {
			return errors.New("KAFKA_OBSERVATION_TOPIC is required")
		}
		if c.KafkaAlertTopic == "" {
			return errors.New("KAFKA_ALERT_TOPIC is required")
		}
	}
	if c.MapboxEnabled && c.MapboxToken == "" {
		return errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}
	return nil
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parsePositiveInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive integer", key)
	}
	return n, nil
}

func parseMapboxCacheSize() int {
	if s := os.Getenv("MAPBOX_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 1000
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// AlertPolicy returns the engine thresholds described by the config.
func (c *Config) AlertPolicy() domain.AlertPolicy {
	return domain.AlertPolicy{
		Window: c.AlertWindow,
		Severity: domain.SeverityThresholds{
			MediumAt: c.SeverityMediumAt,
			HighAt:   c.SeverityHighAt,
		},
		Trigger: domain.TriggerRule{
			Window: c.TriggerWindow,
			Count:  c.TriggerCount,
		},
		RecentLimit: c.RecentLimit,
	}
}
