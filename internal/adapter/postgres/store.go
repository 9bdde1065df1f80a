// Package postgres is the PostgreSQL record store.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/couchcryptid/crop-threat-alerts/internal/domain"
	"github.com/google/uuid"
	_ "github.com/lib/pq" // postgres driver
)

// Pool defaults.
const (
	maxOpenConns    = 25
	maxIdleConns    = 10
	connMaxLifetime = 30 * time.Minute
	connMaxIdleTime = 5 * time.Minute
)

// Store implements alerting.RecordStore on PostgreSQL.
type Store struct {
	db *sql.DB
}

// Open connects to databaseURL, applies migrations and verifies the connection.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	if err := Migrate(databaseURL); err != nil {
		return nil, err
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)
	db.SetConnMaxIdleTime(connMaxIdleTime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const farmerColumns = `id, first_name, last_name, contact_number, email, land_location, registered_at`

// SaveFarmer upserts a farmer, assigning an ID when empty.
func (s *Store) SaveFarmer(ctx context.Context, f domain.Farmer) (domain.Farmer, error) {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.RegisteredAt.IsZero() {
		f.RegisteredAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO farmers (`+farmerColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			contact_number = EXCLUDED.contact_number,
			email = EXCLUDED.email,
			land_location = EXCLUDED.land_location`,
		f.ID, f.FirstName, f.LastName, f.ContactNumber, f.Email, f.LandLocation, f.RegisteredAt,
	)
	if err != nil {
		return domain.Farmer{}, fmt.Errorf("save farmer %q: %w", f.ID, err)
	}
	return f, nil
}

func (s *Store) GetFarmer(ctx context.Context, id string) (domain.Farmer, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+farmerColumns+` FROM farmers WHERE id = $1`, id)
	f, err := scanFarmer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Farmer{}, fmt.Errorf("farmer %q: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Farmer{}, fmt.Errorf("get farmer %q: %w", id, err)
	}
	return f, nil
}

func (s *Store) FindFarmersByArea(ctx context.Context, area string) ([]domain.Farmer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+farmerColumns+` FROM farmers
		WHERE land_location ILIKE '%' || $1 || '%' ESCAPE '\'
		ORDER BY seq`,
		escapeLike(area),
	)
	if err != nil {
		return nil, fmt.Errorf("query farmers: %w", err)
	}
	defer rows.Close()

	farmers := []domain.Farmer{}
	for rows.Next() {
		f, err := scanFarmer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan farmer: %w", err)
		}
		farmers = append(farmers, f)
	}
	return farmers, rows.Err()
}

const observationColumns = `id, kind, reporter_id, name, location, latitude, longitude, observed_at, recorded_at`

// FindRecords returns matching observations in insertion order.
func (s *Store) FindRecords(ctx context.Context, filter domain.RecordFilter) ([]domain.Observation, error) {
	var since any
	if !filter.Since.IsZero() {
		since = filter.Since
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+observationColumns+` FROM observations
		WHERE kind = $1
		  AND ($2::timestamptz IS NULL OR observed_at >= $2)
		  AND location ILIKE '%' || $3 || '%' ESCAPE '\'
		  AND ($4 = '' OR name = $4)
		  AND ($5 = '' OR name ILIKE '%' || $5 || '%' ESCAPE '\')
		  AND ($6 = '' OR reporter_id = $6)
		ORDER BY seq`,
		string(filter.Kind), since, escapeLike(strings.TrimSpace(filter.Area)), filter.Name,
		escapeLike(filter.NameContains), filter.ReporterID,
	)
	if err != nil {
		return nil, fmt.Errorf("query observations: %w", err)
	}
	defer rows.Close()

	records := []domain.Observation{}
	for rows.Next() {
		o, err := scanObservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		records = append(records, o)
	}
	return records, rows.Err()
}

func (s *Store) GetObservation(ctx context.Context, id string) (domain.Observation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+observationColumns+` FROM observations WHERE id = $1`, id)
	o, err := scanObservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Observation{}, fmt.Errorf("observation %q: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Observation{}, fmt.Errorf("get observation %q: %w", id, err)
	}
	return o, nil
}

// SaveObservation inserts obs, assigning an ID when empty. An ID that is
// already stored is left untouched and the stored row is returned.
func (s *Store) SaveObservation(ctx context.Context, obs domain.Observation) (domain.Observation, error) {
	if obs.ID == "" {
		obs.ID = uuid.NewString()
	}
	var lat, lon sql.NullFloat64
	if c := obs.Coordinates; c != nil {
		lat = sql.NullFloat64{Float64: c.Lat, Valid: true}
		lon = sql.NullFloat64{Float64: c.Lon, Valid: true}
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO observations (`+observationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`,
		obs.ID, string(obs.Kind), obs.ReporterID, obs.Name, obs.Location, lat, lon, obs.ObservedAt, obs.RecordedAt,
	)
	if err != nil {
		return domain.Observation{}, fmt.Errorf("insert observation: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return s.GetObservation(ctx, obs.ID)
	}
	return obs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanObservation(row scanner) (domain.Observation, error) {
	var (
		o        domain.Observation
		kind     string
		lat, lon sql.NullFloat64
	)
	if err := row.Scan(&o.ID, &kind, &o.ReporterID, &o.Name, &o.Location, &lat, &lon, &o.ObservedAt, &o.RecordedAt); err != nil {
		return domain.Observation{}, err
	}
	o.Kind = domain.Kind(kind)
	if lat.Valid && lon.Valid {
		o.Coordinates = &domain.Coordinates{Lat: lat.Float64, Lon: lon.Float64}
	}
	o.ObservedAt = o.ObservedAt.UTC()
	o.RecordedAt = o.RecordedAt.UTC()
	return o, nil
}

func scanFarmer(row scanner) (domain.Farmer, error) {
	var f domain.Farmer
	err := row.Scan(&f.ID, &f.FirstName, &f.LastName, &f.ContactNumber, &f.Email, &f.LandLocation, &f.RegisteredAt)
	f.RegisteredAt = f.RegisteredAt.UTC()
	return f, err
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes s match literally inside a LIKE pattern.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
