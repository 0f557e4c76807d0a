package ingest

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/tripmatch/internal/observability"
)

// Handler processes one decoded event.
type Handler func(ctx context.Context, ev TripEvent) error

// MessageReader is the subset of *kafka.Reader the consumer needs.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type Consumer struct {
	Reader   MessageReader
	Handle   Handler
	Logger   *slog.Logger
	Attempts int
	Delay    time.Duration
}

func NewKafkaReader(brokers []string, topic, group string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{Brokers: brokers, Topic: topic, GroupID: group, MinBytes: 10e3, MaxBytes: 10e6})
}

// Run reads until ctx is cancelled. Read errors back off exponentially up
// to 30s; handler errors are retried per message and then skipped.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		m, err := c.Reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.Logger.Info("shutting down consumer")
				return nil
			}
			c.Logger.Warn("kafka read error", "error", err, "backoff", backoff.String())
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		// reset backoff on success
		backoff = time.Second
		observability.EventsConsumed.Inc()

		var ev TripEvent
		if err := json.Unmarshal(m.Value, &ev); err != nil {
			observability.EventsInvalid.Inc()
			c.Logger.Warn("invalid message", "error", err, "offset", m.Offset)
			continue
		}
		if err := handleWithRetry(ctx, c.Handle, ev, c.Attempts, c.Delay); err != nil {
			observability.EventErrors.Inc()
			c.Logger.Error("event handling failed", "type", ev.Type, "key", ev.Key(), "error", err)
		}
	}
}

func handleWithRetry(ctx context.Context, h Handler, ev TripEvent, attempts int, delay time.Duration) error {
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = h(ctx, ev); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}
