package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/tripmatch/internal/models"
)

func TestHandleWithRetry_SucceedsAfterRetries(t *testing.T) {
	calls := 0
	h := func(ctx context.Context, ev TripEvent) error {
		calls++
		if calls < 3 {
			return errors.New("store busy")
		}
		return nil
	}
	start := time.Now()
	require.NoError(t, handleWithRetry(context.Background(), h, TripEvent{Type: EventTripCreated}, 3, 5*time.Millisecond))
	assert.Equal(t, 3, calls)
	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
}

func TestHandleWithRetry_FailsWhenExhausted(t *testing.T) {
	calls := 0
	h := func(ctx context.Context, ev TripEvent) error {
		calls++
		return errors.New("store down")
	}
	assert.Error(t, handleWithRetry(context.Background(), h, TripEvent{}, 3, time.Millisecond))
	assert.Equal(t, 3, calls)
}

// fakeReader replays messages, then blocks until the context ends.
type fakeReader struct {
	msgs []kafka.Message
}

func (f *fakeReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if len(f.msgs) > 0 {
		m := f.msgs[0]
		f.msgs = f.msgs[1:]
		return m, nil
	}
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (f *fakeReader) Close() error { return nil }

func TestConsumer_RunDecodesAndSkipsInvalid(t *testing.T) {
	good, err := json.Marshal(TripEvent{Type: EventTripCreated, Trip: &models.Trip{ID: "t1"}})
	require.NoError(t, err)
	reader := &fakeReader{msgs: []kafka.Message{{Value: []byte("{not json")}, {Value: good}}}

	ctx, cancel := context.WithCancel(context.Background())
	var seen []TripEvent
	c := &Consumer{
		Reader: reader,
		Handle: func(ctx context.Context, ev TripEvent) error {
			seen = append(seen, ev)
			cancel()
			return nil
		},
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Attempts: 1,
	}
	require.NoError(t, c.Run(ctx))
	require.Len(t, seen, 1)
	assert.Equal(t, "t1", seen[0].Key())
}
