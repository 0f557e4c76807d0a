package ingest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/tripmatch/internal/models"
)

const (
	EventTripCreated    = "trip.created"
	EventTripCancelled  = "trip.cancelled"
	EventTripCompleted  = "trip.completed"
	EventMatchSuggested = "match.suggested"
	EventMatchStatus    = "match.status"
)

// TripEvent is the message carried on the trip events topic.
type TripEvent struct {
	Type       string            `json:"type"`
	Trip       *models.Trip      `json:"trip,omitempty"`
	Match      *models.TripMatch `json:"match,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// Key partitions events by trip so one trip's events stay ordered.
func (e TripEvent) Key() string {
	switch {
	case e.Trip != nil:
		return e.Trip.ID
	case e.Match != nil:
		return e.Match.TripAID
	}
	return ""
}

type KafkaProducer struct {
	writer  *kafka.Writer
	timeout time.Duration
}

func NewKafkaProducer(brokers []string, topic string) *KafkaProducer {
	w := &kafka.Writer{Addr: kafka.TCP(brokers...), Topic: topic, Balancer: &kafka.Hash{}}
	return &KafkaProducer{writer: w, timeout: 2 * time.Second}
}

func (k *KafkaProducer) Publish(ctx context.Context, ev TripEvent) error {
	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(ev.Key()), Value: b})
}

func (k *KafkaProducer) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}
