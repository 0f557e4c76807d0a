// Package matcher runs the trip matching workflow: it stores posted trips,
// scores them against the other active trips, persists the viable pairs
// and drives each match through its lifecycle.
package matcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/example/tripmatch/internal/directions"
	"github.com/example/tripmatch/internal/dispatch"
	"github.com/example/tripmatch/internal/geo"
	"github.com/example/tripmatch/internal/ingest"
	"github.com/example/tripmatch/internal/models"
	"github.com/example/tripmatch/internal/observability"
	"github.com/example/tripmatch/internal/scoring"
	"github.com/example/tripmatch/internal/storage"
)

var (
	ErrForbidden    = errors.New("user does not own a trip in this match")
	ErrMatchExpired = errors.New("match has expired")
	ErrTripClosed   = errors.New("trip can no longer change")
)

// Publisher emits trip and match events. *ingest.KafkaProducer implements it.
type Publisher interface {
	Publish(ctx context.Context, ev ingest.TripEvent) error
}

type Service struct {
	Store storage.Store
	// Index may be nil; every active trip is then a candidate.
	Index geo.Index
	// Directions may be nil; Fallback then routes every trip.
	Directions directions.Provider
	// Fallback answers when Directions is unset or fails.
	Fallback directions.StraightLine
	Notifier dispatch.Notifier
	// Publisher may be nil.
	Publisher  Publisher
	Aggregator *scoring.Aggregator

	Workers         int
	NotifyThreshold float64
	MatchTTL        time.Duration
	PrefsAttempts   int
	PrefsDelay      time.Duration
	// InlineMatching runs FindMatches as part of CreateTrip. When false a
	// consumer of trip.created events is expected to do it.
	InlineMatching bool

	Logger *slog.Logger
	Now    func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) workers() int {
	if s.Workers <= 0 {
		return 4
	}
	return s.Workers
}

// CreateTrip validates and stores a new ACTIVE trip, indexes it and makes
// sure its owner has preferences. With InlineMatching the matches found
// for it are returned too; a matching failure does not undo the trip.
func (s *Service) CreateTrip(ctx context.Context, t *models.Trip) (*models.Trip, []*models.TripMatch, error) {
	if t == nil {
		return nil, nil, &models.ValidationError{Problems: []string{"trip is required"}}
	}
	now := s.now()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.Status = models.TripActive
	t.CreatedAt = now
	t.UpdatedAt = now
	if err := t.Validate(); err != nil {
		return nil, nil, err
	}
	if _, err := storage.EnsurePreferences(ctx, s.Store, t.OwnerID, s.PrefsAttempts, s.PrefsDelay); err != nil {
		return nil, nil, err
	}
	if err := s.Store.SaveTrip(ctx, t); err != nil {
		return nil, nil, fmt.Errorf("save trip: %w", err)
	}
	if s.Index != nil {
		if err := s.Index.Add(ctx, t); err != nil {
			s.Logger.Warn("index add failed", "trip_id", t.ID, "error", err)
		}
	}
	observability.TripsCreated.Inc()
	s.publish(ctx, ingest.TripEvent{Type: ingest.EventTripCreated, Trip: t, OccurredAt: now})
	s.Logger.Info("trip created", "trip_id", t.ID, "owner_id", t.OwnerID)

	if !s.InlineMatching {
		return t, nil, nil
	}
	matches, err := s.FindMatches(ctx, t.ID)
	if err != nil {
		s.Logger.Error("inline matching failed", "trip_id", t.ID, "error", err)
		return t, nil, nil
	}
	return t, matches, nil
}

// FindMatches scores a stored trip against every candidate, persists the
// viable pairs as SUGGESTED matches and notifies both owners of the strong
// ones. Matches are returned best first; a pair matched before keeps its
// stored match.
func (s *Service) FindMatches(ctx context.Context, tripID string) ([]*models.TripMatch, error) {
	start := time.Now()
	defer func() { observability.MatchLatency.Observe(time.Since(start).Seconds()) }()

	trip, err := s.Store.GetTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if !trip.Status.Matchable() {
		return nil, fmt.Errorf("%w: trip %s is %s", scoring.ErrNotMatchable, trip.ID, trip.Status)
	}
	self, err := s.party(ctx, trip)
	if err != nil {
		return nil, err
	}
	cands, err := s.candidates(ctx, self)
	if err != nil {
		return nil, err
	}

	results := make([]*scoring.Result, len(cands))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers())
	for i, c := range cands {
		g.Go(func() error {
			other, err := s.party(gctx, c)
			if err != nil {
				return err
			}
			res, err := s.Aggregator.Evaluate(self, other)
			if err != nil {
				// a bad stored trip must not block matching for the rest
				s.Logger.Warn("candidate skipped", "trip_id", trip.ID, "candidate_id", c.ID, "error", err)
				observability.Evaluations.WithLabelValues("invalid").Inc()
				return nil
			}
			observability.Evaluations.WithLabelValues(string(res.Outcome)).Inc()
			if res.Viable() {
				results[i] = &res
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	viable := make([]scoring.Result, 0, len(results))
	for _, r := range results {
		if r != nil {
			viable = append(viable, *r)
		}
	}
	scoring.Rank(viable)

	now := s.now()
	out := make([]*models.TripMatch, 0, len(viable))
	for _, r := range viable {
		m := r.Match()
		m.ID = uuid.NewString()
		m.Status = models.MatchSuggested
		m.CreatedAt = now
		m.UpdatedAt = now
		m.ExpiresAt = now.Add(s.MatchTTL)
		stored, created, err := s.Store.SaveMatch(ctx, &m)
		if err != nil {
			return nil, fmt.Errorf("save match: %w", err)
		}
		out = append(out, stored)
		if !created {
			continue
		}
		observability.MatchesSuggested.Inc()
		s.publish(ctx, ingest.TripEvent{Type: ingest.EventMatchSuggested, Match: stored, OccurredAt: now})
		if stored.CompatibilityScore >= s.NotifyThreshold {
			s.notify(ctx, stored.UserAID, dispatch.NewNotification(dispatch.KindMatchSuggested, stored))
			s.notify(ctx, stored.UserBID, dispatch.NewNotification(dispatch.KindMatchSuggested, stored))
		}
	}
	s.Logger.Info("matching done", "trip_id", trip.ID, "candidates", len(cands), "matches", len(out))
	return out, nil
}

// Evaluate scores two trips without storing anything. The trips need not
// be stored; their owners' preferences are looked up or defaulted.
func (s *Service) Evaluate(ctx context.Context, a, b *models.Trip) (scoring.Result, error) {
	if a == nil || b == nil {
		return scoring.Result{}, &models.ValidationError{Problems: []string{"two trips are required"}}
	}
	pa, err := s.party(ctx, a)
	if err != nil {
		return scoring.Result{}, err
	}
	pb, err := s.party(ctx, b)
	if err != nil {
		return scoring.Result{}, err
	}
	res, err := s.Aggregator.Evaluate(pa, pb)
	if err != nil {
		return scoring.Result{}, err
	}
	observability.Evaluations.WithLabelValues(string(res.Outcome)).Inc()
	return res, nil
}

// party gathers what the scorer needs about one trip.
func (s *Service) party(ctx context.Context, t *models.Trip) (scoring.Party, error) {
	p := scoring.Party{Trip: t}
	if t.OwnerID != "" {
		prefs, err := s.Preferences(ctx, t.OwnerID)
		if err != nil {
			return p, err
		}
		p.Prefs = prefs
	}
	if !t.Origin.Coord.Valid() || !t.Destination.Coord.Valid() {
		return p, nil
	}
	r, routed := s.route(ctx, t)
	p.Path = r.Path
	p.DistanceMeters = r.DistanceMeters
	p.DurationSeconds = r.DurationSeconds
	p.Routed = routed
	return p, nil
}

// route asks the directions provider for the trip's route and falls back
// to a straight segment when it is unset or fails. routed reports whether
// the provider answered.
func (s *Service) route(ctx context.Context, t *models.Trip) (r directions.Route, routed bool) {
	from, to := t.Origin.Coord, t.Destination.Coord
	if s.Directions != nil {
		got, err := s.Directions.Route(ctx, from, to)
		if err == nil && len(got.Path) >= 2 {
			return got, true
		}
		observability.DirectionsFallbacks.Inc()
		s.Logger.Debug("directions fallback", "trip_id", t.ID, "error", err)
	}
	r, _ = s.Fallback.Route(ctx, from, to)
	return r, false
}

// candidates returns the active trips of other owners that could pair with
// self. The index narrows them to trips within the owner's detour limit of
// self's bounding box; without an index, or when it fails, every active
// trip is considered.
func (s *Service) candidates(ctx context.Context, self scoring.Party) ([]*models.Trip, error) {
	var trips []*models.Trip
	var err error
	if s.Index != nil {
		limit := models.ResolvePreferences(self.Prefs, self.Trip.OwnerID).MaxDetourMeters
		min, max := self.Trip.Bounds()
		min, max = geo.ExpandBounds(min, max, limit)
		var ids []string
		if ids, err = s.Index.Search(ctx, min, max); err == nil {
			trips, err = s.Store.GetTrips(ctx, ids)
		} else {
			s.Logger.Warn("index search failed, scanning active trips", "trip_id", self.Trip.ID, "error", err)
		}
	}
	if s.Index == nil || err != nil {
		trips, err = s.Store.ActiveTrips(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("load candidates: %w", err)
	}
	out := trips[:0]
	for _, t := range trips {
		if t.ID == self.Trip.ID || t.OwnerID == self.Trip.OwnerID || !t.Status.Matchable() {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// CancelTrip closes a trip on behalf of its owner.
func (s *Service) CancelTrip(ctx context.Context, tripID, actor string) (*models.Trip, error) {
	return s.closeTrip(ctx, tripID, actor, models.TripCancelled, ingest.EventTripCancelled)
}

// CompleteTrip marks a trip as travelled.
func (s *Service) CompleteTrip(ctx context.Context, tripID, actor string) (*models.Trip, error) {
	return s.closeTrip(ctx, tripID, actor, models.TripCompleted, ingest.EventTripCompleted)
}

func (s *Service) closeTrip(ctx context.Context, tripID, actor string, to models.TripStatus, event string) (*models.Trip, error) {
	t, err := s.Store.GetTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if t.OwnerID != actor {
		return nil, ErrForbidden
	}
	if t.Status.Terminal() {
		return nil, fmt.Errorf("%w: trip %s is %s", ErrTripClosed, t.ID, t.Status)
	}
	if err := s.Store.UpdateTripStatus(ctx, t.ID, to); err != nil {
		return nil, err
	}
	s.unindex(ctx, t.ID)
	t.Status = to
	t.UpdatedAt = s.now()
	s.publish(ctx, ingest.TripEvent{Type: event, Trip: t, OccurredAt: t.UpdatedAt})
	s.Logger.Info("trip closed", "trip_id", t.ID, "status", to)
	return t, nil
}

// Transition moves a match to the requested status on behalf of one of
// its owners. Accepting a match takes both trips out of matching.
func (s *Service) Transition(ctx context.Context, matchID, actor string, to models.MatchStatus) (*models.TripMatch, error) {
	m, err := s.Store.GetMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if !m.Involves(actor) {
		return nil, ErrForbidden
	}
	now := s.now()
	if !m.Status.Terminal() && now.After(m.ExpiresAt) {
		if err := s.Store.UpdateMatchStatus(ctx, m.ID, m.Status, models.MatchExpired, now); err == nil {
			observability.MatchesExpired.Inc()
		}
		return nil, ErrMatchExpired
	}
	if !m.Status.CanTransition(to) {
		return nil, fmt.Errorf("%w: %s to %s", models.ErrInvalidTransition, m.Status, to)
	}

	if to == models.MatchAccepted {
		for _, id := range []string{m.TripAID, m.TripBID} {
			t, err := s.Store.GetTrip(ctx, id)
			if err != nil {
				return nil, err
			}
			if !t.Status.Matchable() {
				return nil, fmt.Errorf("%w: trip %s is %s", ErrTripClosed, t.ID, t.Status)
			}
		}
	}
	if err := s.Store.UpdateMatchStatus(ctx, m.ID, m.Status, to, now); err != nil {
		return nil, err
	}
	if to == models.MatchAccepted {
		for _, id := range []string{m.TripAID, m.TripBID} {
			if err := s.Store.UpdateTripStatus(ctx, id, models.TripMatched); err != nil {
				return nil, fmt.Errorf("mark trip %s matched: %w", id, err)
			}
			s.unindex(ctx, id)
		}
	}
	m.Status = to
	m.UpdatedAt = now
	observability.MatchTransitions.WithLabelValues(string(to)).Inc()
	s.publish(ctx, ingest.TripEvent{Type: ingest.EventMatchStatus, Match: m, OccurredAt: now})
	s.notify(ctx, m.Counterpart(actor), dispatch.NewNotification(dispatch.KindMatchStatus, m))
	return m, nil
}

// ExpireMatches moves every open match past its expiry to EXPIRED and
// returns how many it moved.
func (s *Service) ExpireMatches(ctx context.Context) (int, error) {
	now := s.now()
	expired, err := s.Store.ExpireMatches(ctx, now)
	if err != nil {
		return 0, err
	}
	observability.MatchesExpired.Add(float64(len(expired)))
	for _, m := range expired {
		s.publish(ctx, ingest.TripEvent{Type: ingest.EventMatchStatus, Match: m, OccurredAt: now})
	}
	if len(expired) > 0 {
		s.Logger.Info("matches expired", "count", len(expired))
	}
	return len(expired), nil
}

func (s *Service) GetTrip(ctx context.Context, id string) (*models.Trip, error) {
	return s.Store.GetTrip(ctx, id)
}

func (s *Service) GetMatch(ctx context.Context, id string) (*models.TripMatch, error) {
	return s.Store.GetMatch(ctx, id)
}

func (s *Service) MatchesForTrip(ctx context.Context, tripID string) ([]*models.TripMatch, error) {
	if _, err := s.Store.GetTrip(ctx, tripID); err != nil {
		return nil, err
	}
	return s.Store.MatchesForTrip(ctx, tripID)
}

// Preferences returns the stored preferences of a user, or the defaults
// when none are stored.
func (s *Service) Preferences(ctx context.Context, userID string) (*models.UserPreferences, error) {
	p, err := s.Store.GetPreferences(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		def := models.DefaultPreferences(userID)
		return &def, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load preferences: %w", err)
	}
	return p, nil
}

func (s *Service) UpdatePreferences(ctx context.Context, p *models.UserPreferences) (*models.UserPreferences, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	p.UpdatedAt = s.now()
	if err := s.Store.UpsertPreferences(ctx, p); err != nil {
		return nil, fmt.Errorf("save preferences: %w", err)
	}
	return p, nil
}

func (s *Service) unindex(ctx context.Context, tripID string) {
	if s.Index == nil {
		return
	}
	if err := s.Index.Remove(ctx, tripID); err != nil {
		s.Logger.Warn("index remove failed", "trip_id", tripID, "error", err)
	}
}

func (s *Service) notify(ctx context.Context, userID string, n dispatch.Notification) {
	if s.Notifier == nil || userID == "" {
		return
	}
	if err := s.Notifier.Notify(ctx, userID, n); err != nil {
		observability.Notifications.WithLabelValues("failed").Inc()
		s.Logger.Warn("notify failed", "user_id", userID, "match_id", n.Match.ID, "error", err)
		return
	}
	observability.Notifications.WithLabelValues("sent").Inc()
}

func (s *Service) publish(ctx context.Context, ev ingest.TripEvent) {
	if s.Publisher == nil {
		return
	}
	if err := s.Publisher.Publish(ctx, ev); err != nil {
		s.Logger.Warn("publish failed", "type", ev.Type, "key", ev.Key(), "error", err)
	}
}
