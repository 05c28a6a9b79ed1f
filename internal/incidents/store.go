// Package incidents implements the process-local Incident Store and the
// Incident Manager that grooms anomalies into deduplicated incidents.
package incidents

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/adityaviki/sentinelops/internal/models"
)

// ErrNotFound is returned when a lookup misses.
var ErrNotFound = errors.New("incident not found")

// StoreConfig parameterizes retention and the cooldown lifecycle rule.
type StoreConfig struct {
	MaxIncidents         int
	DedupCooldownMinutes int
}

// record is the store's internal representation, including the bookkeeping
// needed to compute the lazy active/cooling transition at read time.
type record struct {
	incident      models.Incident
	lastAnomalyAt time.Time
}

// Store is a mutex-guarded, copy-on-read collection of incidents with O(1)
// lookup by id and by dedup key. Status transitions (active -> cooling) are
// computed lazily at read time rather than by a background sweep.
type Store struct {
	mu       sync.Mutex
	cfg      StoreConfig
	byID     map[string]*record
	byDedup  map[models.DedupKey][]string // ordered oldest-first ids sharing a dedup key
	order    []string                     // insertion order, oldest first, for retention eviction
}

// NewStore constructs a Store.
func NewStore(cfg StoreConfig) *Store {
	if cfg.MaxIncidents <= 0 {
		cfg.MaxIncidents = 1000
	}
	return &Store{
		cfg:     cfg,
		byID:    make(map[string]*record),
		byDedup: make(map[models.DedupKey][]string),
	}
}

// Put inserts a new incident. The caller is responsible for re-allocating an
// id on collision.
func (s *Store) Put(incident models.Incident) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[incident.ID]; exists {
		return errors.New("id collision: caller must re-allocate")
	}

	rec := &record{incident: incident, lastAnomalyAt: incident.CreatedAt}
	s.byID[incident.ID] = rec
	s.byDedup[incident.DedupKey] = append(s.byDedup[incident.DedupKey], incident.ID)
	s.order = append(s.order, incident.ID)

	s.evictLocked()
	return nil
}

// Get returns a clone of the incident with id, or ErrNotFound.
func (s *Store) Get(id string, now time.Time) (models.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok {
		return models.Incident{}, ErrNotFound
	}
	return s.materializeLocked(rec, now), nil
}

// FindActiveByDedupKey returns the most recent incident with key whose
// created_at is within `within` of now, or ErrNotFound.
func (s *Store) FindActiveByDedupKey(key models.DedupKey, within time.Duration, now time.Time) (models.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := s.byDedup[key]
	for i := len(ids) - 1; i >= 0; i-- {
		rec, ok := s.byID[ids[i]]
		if !ok {
			continue
		}
		if now.Sub(rec.incident.CreatedAt) <= within {
			return s.materializeLocked(rec, now), nil
		}
	}
	return models.Incident{}, ErrNotFound
}

// TouchDedupKey records that a new anomaly matching an existing incident's
// dedup key arrived at `at`, refreshing the cooldown window so the incident
// stays active.
func (s *Store) TouchDedupKey(key models.DedupKey, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := s.byDedup[key]
	if len(ids) == 0 {
		return
	}
	latest := ids[len(ids)-1]
	if rec, ok := s.byID[latest]; ok && at.After(rec.lastAnomalyAt) {
		rec.lastAnomalyAt = at
	}
}

// List returns incidents ordered descending by created_at, paginated.
func (s *Store) List(limit, offset int, now time.Time) []models.Incident {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, len(s.order))
	copy(ids, s.order)
	sort.Slice(ids, func(i, j int) bool {
		return s.byID[ids[i]].incident.CreatedAt.After(s.byID[ids[j]].incident.CreatedAt)
	})

	if offset >= len(ids) {
		return nil
	}
	end := len(ids)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}

	out := make([]models.Incident, 0, end-offset)
	for _, id := range ids[offset:end] {
		out = append(out, s.materializeLocked(s.byID[id], now))
	}
	return out
}

// Count returns the total retained incidents.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// materializeLocked clones the incident and overlays its lazily-computed
// status. Must be called with s.mu held.
func (s *Store) materializeLocked(rec *record, now time.Time) models.Incident {
	out := rec.incident.Clone()
	cooldown := time.Duration(s.cfg.DedupCooldownMinutes) * time.Minute
	out.Status = out.StatusAt(now, cooldown, rec.lastAnomalyAt)
	return out
}

// evictLocked drops the oldest incidents until the store is within its
// retention bound. Must be called with s.mu held.
func (s *Store) evictLocked() {
	for len(s.order) > s.cfg.MaxIncidents {
		oldest := s.order[0]
		s.order = s.order[1:]

		rec, ok := s.byID[oldest]
		if !ok {
			continue
		}
		delete(s.byID, oldest)

		ids := s.byDedup[rec.incident.DedupKey]
		for i, id := range ids {
			if id == oldest {
				s.byDedup[rec.incident.DedupKey] = append(ids[:i], ids[i+1:]...)
				break
			}
		}
	}
}
