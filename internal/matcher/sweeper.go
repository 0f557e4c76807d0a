package matcher

import (
	"context"
	"errors"
	"time"

	"github.com/example/tripmatch/internal/ingest"
	"github.com/example/tripmatch/internal/scoring"
	"github.com/example/tripmatch/internal/storage"
)

// RunExpirySweeper expires overdue matches every interval until ctx is done.
func (s *Service) RunExpirySweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.ExpireMatches(ctx); err != nil && ctx.Err() == nil {
				s.Logger.Error("expiry sweep failed", "error", err)
			}
		}
	}
}

// HandleEvent is the trip event consumer's handler. New trips are matched;
// every other event type is ignored.
func (s *Service) HandleEvent(ctx context.Context, ev ingest.TripEvent) error {
	if ev.Type != ingest.EventTripCreated || ev.Trip == nil {
		return nil
	}
	_, err := s.FindMatches(ctx, ev.Trip.ID)
	if errors.Is(err, scoring.ErrNotMatchable) || errors.Is(err, storage.ErrNotFound) {
		// closed or removed before the event arrived
		s.Logger.Info("trip no longer matchable", "trip_id", ev.Trip.ID)
		return nil
	}
	return err
}
