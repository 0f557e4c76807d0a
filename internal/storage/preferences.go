package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/tripmatch/internal/models"
)

// EnsurePreferences returns the stored preferences of userID, writing the
// defaults first when none exist. Store errors are retried up to attempts
// times with a doubling delay; the write is an upsert so a retry after a
// lost acknowledgement is harmless.
func EnsurePreferences(ctx context.Context, s PreferencesStore, userID string, attempts int, delay time.Duration) (*models.UserPreferences, error) {
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
		p, err := s.GetPreferences(ctx, userID)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, ErrNotFound) {
			lastErr = err
			continue
		}
		def := models.DefaultPreferences(userID)
		def.UpdatedAt = time.Now()
		if err := s.UpsertPreferences(ctx, &def); err != nil {
			lastErr = err
			continue
		}
		return &def, nil
	}
	return nil, fmt.Errorf("ensure preferences for %s after %d attempts: %w", userID, attempts, lastErr)
}
