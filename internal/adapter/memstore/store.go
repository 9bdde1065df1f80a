// Package memstore is an in-process record store. It backs single-instance
// deployments without a database and the engine's tests.
package memstore

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/couchcryptid/crop-threat-alerts/internal/domain"
	"github.com/google/uuid"
)

// Store keeps farmers and observations in memory. Observations are kept in
// insertion order and are never modified after they are saved.
type Store struct {
	mu           sync.RWMutex
	farmers      map[string]domain.Farmer
	farmerOrder  []string
	observations []domain.Observation
	byID         map[string]int // observation ID to index
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		farmers: make(map[string]domain.Farmer),
		byID:    make(map[string]int),
	}
}

// SaveFarmer inserts or replaces a farmer, assigning an ID when empty.
func (s *Store) SaveFarmer(_ context.Context, f domain.Farmer) (domain.Farmer, error) {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.farmers[f.ID]; !exists {
		s.farmerOrder = append(s.farmerOrder, f.ID)
	}
	s.farmers[f.ID] = f
	return f, nil
}

func (s *Store) GetFarmer(ctx context.Context, id string) (domain.Farmer, error) {
	if err := ctx.Err(); err != nil {
		return domain.Farmer{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.farmers[id]
	if !ok {
		return domain.Farmer{}, fmt.Errorf("farmer %q: %w", id, domain.ErrNotFound)
	}
	return f, nil
}

func (s *Store) FindFarmersByArea(ctx context.Context, area string) ([]domain.Farmer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []domain.Farmer{}
	for _, id := range s.farmerOrder {
		if f := s.farmers[id]; domain.MatchesArea(f.LandLocation, area) {
			out = append(out, f)
		}
	}
	return out, nil
}

func (s *Store) FindRecords(ctx context.Context, filter domain.RecordFilter) ([]domain.Observation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	filter.Area = strings.TrimSpace(filter.Area)

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []domain.Observation{}
	for _, o := range s.observations {
		if filter.Matches(o) {
			out = append(out, o)
		}
	}
	return out, nil
}

// GetObservation returns the observation with the given ID.
func (s *Store) GetObservation(ctx context.Context, id string) (domain.Observation, error) {
	if err := ctx.Err(); err != nil {
		return domain.Observation{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.byID[id]
	if !ok {
		return domain.Observation{}, fmt.Errorf("observation %q: %w", id, domain.ErrNotFound)
	}
	return s.observations[i], nil
}

// SaveObservation appends an observation, assigning an ID when empty. An ID
// that is already stored returns the stored observation.
func (s *Store) SaveObservation(ctx context.Context, obs domain.Observation) (domain.Observation, error) {
	if err := ctx.Err(); err != nil {
		return domain.Observation{}, err
	}
	if obs.ID == "" {
		obs.ID = uuid.NewString()
	}
	if obs.Coordinates != nil {
		c := *obs.Coordinates
		obs.Coordinates = &c
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if i, ok := s.byID[obs.ID]; ok {
		return s.observations[i], nil
	}
	s.byID[obs.ID] = len(s.observations)
	s.observations = append(s.observations, obs)
	return obs, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Len returns the number of stored observations.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.observations)
}
