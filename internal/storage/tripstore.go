package storage

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/example/tripmatch/internal/models"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a compare-and-set status update finds a
	// different status than expected.
	ErrConflict = errors.New("status changed concurrently")
)

// TripStore defines persistence operations for trips.
type TripStore interface {
	SaveTrip(ctx context.Context, t *models.Trip) error
	GetTrip(ctx context.Context, id string) (*models.Trip, error)
	GetTrips(ctx context.Context, ids []string) ([]*models.Trip, error)
	ActiveTrips(ctx context.Context) ([]*models.Trip, error)
	UpdateTripStatus(ctx context.Context, id string, status models.TripStatus) error
}

// PreferencesStore reads and writes per-user matching preferences.
type PreferencesStore interface {
	// GetPreferences returns ErrNotFound when the user has none stored.
	GetPreferences(ctx context.Context, userID string) (*models.UserPreferences, error)
	UpsertPreferences(ctx context.Context, p *models.UserPreferences) error
}

// MatchStore persists scored pairings.
type MatchStore interface {
	// SaveMatch stores m unless the trip pair already has a match, in which
	// case the stored match is returned with created=false.
	SaveMatch(ctx context.Context, m *models.TripMatch) (stored *models.TripMatch, created bool, err error)
	GetMatch(ctx context.Context, id string) (*models.TripMatch, error)
	MatchesForTrip(ctx context.Context, tripID string) ([]*models.TripMatch, error)
	UpdateMatchStatus(ctx context.Context, id string, from, to models.MatchStatus, at time.Time) error
	// ExpireMatches moves every open match whose ExpiresAt is before now to
	// EXPIRED and returns them.
	ExpireMatches(ctx context.Context, now time.Time) ([]*models.TripMatch, error)
}

// Store is the full persistence surface used by the matcher.
type Store interface {
	TripStore
	PreferencesStore
	MatchStore
}

type MemoryStore struct {
	mu      sync.RWMutex
	trips   map[string]*models.Trip
	prefs   map[string]*models.UserPreferences
	matches map[string]*models.TripMatch
	pairs   map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		trips:   make(map[string]*models.Trip),
		prefs:   make(map[string]*models.UserPreferences),
		matches: make(map[string]*models.TripMatch),
		pairs:   make(map[string]string),
	}
}

func (m *MemoryStore) SaveTrip(_ context.Context, t *models.Trip) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.trips[t.ID] = &cp
	return nil
}

func (m *MemoryStore) GetTrip(_ context.Context, id string) (*models.Trip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.trips[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *MemoryStore) GetTrips(_ context.Context, ids []string) ([]*models.Trip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Trip, 0, len(ids))
	for _, id := range ids {
		if t, ok := m.trips[id]; ok {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryStore) ActiveTrips(_ context.Context) ([]*models.Trip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Trip
	for _, t := range m.trips {
		if t.Status == models.TripActive {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) UpdateTripStatus(_ context.Context, id string, status models.TripStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trips[id]
	if !ok {
		return ErrNotFound
	}
	t.Status = status
	t.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) GetPreferences(_ context.Context, userID string) (*models.UserPreferences, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.prefs[userID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryStore) UpsertPreferences(_ context.Context, p *models.UserPreferences) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.prefs[p.UserID] = &cp
	return nil
}

func (m *MemoryStore) SaveMatch(_ context.Context, tm *models.TripMatch) (*models.TripMatch, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := models.PairKey(tm.TripAID, tm.TripBID)
	if id, ok := m.pairs[key]; ok {
		cp := *m.matches[id]
		return &cp, false, nil
	}
	cp := *tm
	m.matches[tm.ID] = &cp
	m.pairs[key] = tm.ID
	out := cp
	return &out, true, nil
}

func (m *MemoryStore) GetMatch(_ context.Context, id string) (*models.TripMatch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tm, ok := m.matches[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *tm
	return &cp, nil
}

func (m *MemoryStore) MatchesForTrip(_ context.Context, tripID string) ([]*models.TripMatch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.TripMatch
	for _, tm := range m.matches {
		if tm.TripAID == tripID || tm.TripBID == tripID {
			cp := *tm
			out = append(out, &cp)
		}
	}
	sortMatches(out)
	return out, nil
}

func (m *MemoryStore) UpdateMatchStatus(_ context.Context, id string, from, to models.MatchStatus, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tm, ok := m.matches[id]
	if !ok {
		return ErrNotFound
	}
	if tm.Status != from {
		return ErrConflict
	}
	tm.Status = to
	tm.UpdatedAt = at
	return nil
}

func (m *MemoryStore) ExpireMatches(_ context.Context, now time.Time) ([]*models.TripMatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.TripMatch
	for _, tm := range m.matches {
		if tm.Status.Terminal() || !tm.ExpiresAt.Before(now) {
			continue
		}
		tm.Status = models.MatchExpired
		tm.UpdatedAt = now
		cp := *tm
		out = append(out, &cp)
	}
	sortMatches(out)
	return out, nil
}

// sortMatches orders best score first, then by ID.
func sortMatches(ms []*models.TripMatch) {
	sort.Slice(ms, func(i, j int) bool {
		if ms[i].CompatibilityScore != ms[j].CompatibilityScore {
			return ms[i].CompatibilityScore > ms[j].CompatibilityScore
		}
		return ms[i].ID < ms[j].ID
	})
}
