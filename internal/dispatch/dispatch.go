package dispatch

import (
	"context"
	"log/slog"

	"github.com/example/tripmatch/internal/models"
	"github.com/example/tripmatch/internal/scoring"
)

const (
	KindMatchSuggested = "match.suggested"
	KindMatchStatus    = "match.status"
)

// Notification tells a trip owner about a match.
type Notification struct {
	Kind    string            `json:"kind"`
	Match   *models.TripMatch `json:"match"`
	Display scoring.Display   `json:"display"`
}

func NewNotification(kind string, m *models.TripMatch) Notification {
	return Notification{Kind: kind, Match: m, Display: scoring.NewDisplay(m, true)}
}

// Notifier delivers a notification to one user.
type Notifier interface {
	Notify(ctx context.Context, userID string, n Notification) error
}

// LogNotifier only records notifications; used for users no channel can reach.
type LogNotifier struct {
	Logger *slog.Logger
}

func (l *LogNotifier) Notify(_ context.Context, userID string, n Notification) error {
	l.Logger.Info("notify", "user_id", userID, "kind", n.Kind, "match_id", n.Match.ID, "score", n.Match.CompatibilityScore)
	return nil
}
