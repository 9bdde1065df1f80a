// Package sqlite is a single-file record store for small deployments.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/couchcryptid/crop-threat-alerts/internal/domain"
	"github.com/google/uuid"
	sqlite3 "github.com/mattn/go-sqlite3"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// driverName is go-sqlite3 with a fold() SQL function. SQLite's own LOWER()
// folds ASCII only; fold() applies the same Unicode lowering as
// domain.MatchesArea.
const driverName = "sqlite3_fold"

func init() {
	sql.Register(driverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc("fold", strings.ToLower, true)
		},
	})
}

type farmerModel struct {
	Seq           uint64 `gorm:"primaryKey;autoIncrement"`
	ID            string `gorm:"uniqueIndex;not null"`
	FirstName     string
	LastName      string
	ContactNumber string
	Email         string
	LandLocation  string `gorm:"not null"`
	RegisteredAt  time.Time
}

func (farmerModel) TableName() string { return "farmers" }

type observationModel struct {
	Seq        uint64 `gorm:"primaryKey;autoIncrement"`
	ID         string `gorm:"uniqueIndex;not null"`
	Kind       string `gorm:"index:idx_observations_kind_observed_at,priority:1;not null"`
	ReporterID string `gorm:"index;not null"`
	Name       string `gorm:"not null"`
	Location   string `gorm:"not null"`
	Latitude   *float64
	Longitude  *float64
	ObservedAt time.Time `gorm:"index:idx_observations_kind_observed_at,priority:2;not null"`
	RecordedAt time.Time `gorm:"not null"`
}

func (observationModel) TableName() string { return "observations" }

// Store implements alerting.RecordStore on SQLite through gorm.
type Store struct {
	db *gorm.DB
}

// Open opens or creates the database file at path and migrates the schema.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.New(sqlite.Config{DriverName: driverName, DSN: path}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	if err := db.AutoMigrate(&farmerModel{}, &observationModel{}); err != nil {
		return nil, fmt.Errorf("migrate sqlite schema: %w", err)
	}
	// SQLite allows one writer; a single connection avoids "database is locked".
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlite handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// SaveFarmer upserts a farmer by ID, assigning one when empty.
func (s *Store) SaveFarmer(ctx context.Context, f domain.Farmer) (domain.Farmer, error) {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.RegisteredAt.IsZero() {
		f.RegisteredAt = time.Now().UTC()
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing farmerModel
		err := tx.Where("id = ?", f.ID).Take(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			m := toFarmerModel(f)
			return tx.Create(&m).Error
		case err != nil:
			return err
		}
		m := toFarmerModel(f)
		m.Seq = existing.Seq
		m.RegisteredAt = existing.RegisteredAt
		return tx.Save(&m).Error
	})
	if err != nil {
		return domain.Farmer{}, fmt.Errorf("save farmer %q: %w", f.ID, err)
	}
	return f, nil
}

func (s *Store) GetFarmer(ctx context.Context, id string) (domain.Farmer, error) {
	var m farmerModel
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Farmer{}, fmt.Errorf("farmer %q: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Farmer{}, fmt.Errorf("get farmer %q: %w", id, err)
	}
	return m.toDomain(), nil
}

func (s *Store) FindFarmersByArea(ctx context.Context, area string) ([]domain.Farmer, error) {
	var models []farmerModel
	err := s.db.WithContext(ctx).
		Where(`fold(land_location) LIKE ? ESCAPE '\'`, containsPattern(area)).
		Order("seq").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("query farmers: %w", err)
	}
	farmers := make([]domain.Farmer, 0, len(models))
	for i := range models {
		farmers = append(farmers, models[i].toDomain())
	}
	return farmers, nil
}

// FindRecords returns matching observations in insertion order.
func (s *Store) FindRecords(ctx context.Context, filter domain.RecordFilter) ([]domain.Observation, error) {
	q := s.db.WithContext(ctx).
		Where("kind = ?", string(filter.Kind)).
		Where(`fold(location) LIKE ? ESCAPE '\'`, containsPattern(filter.Area))
	if !filter.Since.IsZero() {
		q = q.Where("observed_at >= ?", filter.Since.UTC())
	}
	if filter.Name != "" {
		q = q.Where("name = ?", filter.Name)
	}
	if filter.NameContains != "" {
		q = q.Where(`fold(name) LIKE ? ESCAPE '\'`, containsPattern(filter.NameContains))
	}
	if filter.ReporterID != "" {
		q = q.Where("reporter_id = ?", filter.ReporterID)
	}

	var models []observationModel
	if err := q.Order("seq").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("query observations: %w", err)
	}
	records := make([]domain.Observation, 0, len(models))
	for i := range models {
		records = append(records, models[i].toDomain())
	}
	return records, nil
}

func (s *Store) GetObservation(ctx context.Context, id string) (domain.Observation, error) {
	var m observationModel
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Observation{}, fmt.Errorf("observation %q: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Observation{}, fmt.Errorf("get observation %q: %w", id, err)
	}
	return m.toDomain(), nil
}

// SaveObservation inserts obs, assigning an ID when empty. An ID that is
// already stored is left untouched and the stored row is returned.
func (s *Store) SaveObservation(ctx context.Context, obs domain.Observation) (domain.Observation, error) {
	if obs.ID == "" {
		obs.ID = uuid.NewString()
	}
	m := observationModel{
		ID:         obs.ID,
		Kind:       string(obs.Kind),
		ReporterID: obs.ReporterID,
		Name:       obs.Name,
		Location:   obs.Location,
		ObservedAt: obs.ObservedAt.UTC(),
		RecordedAt: obs.RecordedAt.UTC(),
	}
	if c := obs.Coordinates; c != nil {
		lat, lon := c.Lat, c.Lon
		m.Latitude, m.Longitude = &lat, &lon
	}
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(&m)
	if res.Error != nil {
		return domain.Observation{}, fmt.Errorf("insert observation: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return s.GetObservation(ctx, obs.ID)
	}
	return obs, nil
}

func toFarmerModel(f domain.Farmer) farmerModel {
	return farmerModel{
		ID:            f.ID,
		FirstName:     f.FirstName,
		LastName:      f.LastName,
		ContactNumber: f.ContactNumber,
		Email:         f.Email,
		LandLocation:  f.LandLocation,
		RegisteredAt:  f.RegisteredAt.UTC(),
	}
}

func (m farmerModel) toDomain() domain.Farmer {
	return domain.Farmer{
		ID:            m.ID,
		FirstName:     m.FirstName,
		LastName:      m.LastName,
		ContactNumber: m.ContactNumber,
		Email:         m.Email,
		LandLocation:  m.LandLocation,
		RegisteredAt:  m.RegisteredAt.UTC(),
	}
}

func (m observationModel) toDomain() domain.Observation {
	o := domain.Observation{
		ID:         m.ID,
		Kind:       domain.Kind(m.Kind),
		ReporterID: m.ReporterID,
		Name:       m.Name,
		Location:   m.Location,
		ObservedAt: m.ObservedAt.UTC(),
		RecordedAt: m.RecordedAt.UTC(),
	}
	if m.Latitude != nil && m.Longitude != nil {
		o.Coordinates = &domain.Coordinates{Lat: *m.Latitude, Lon: *m.Longitude}
	}
	return o
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern builds a substring LIKE pattern for area, to be matched
// against a fold()ed column.
func containsPattern(area string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(strings.TrimSpace(area))) + "%"
}
