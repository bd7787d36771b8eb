// Package publisher fans lifecycle transitions out to other systems.
package publisher

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/segmentio/kafka-go"
)

// LifecycleEvent describes one committed status change.
type LifecycleEvent struct {
	ExperimentID int64     `json:"experiment_id"`
	Name         string    `json:"name"`
	From         string    `json:"from"`
	To           string    `json:"to"`
	Winner       string    `json:"winner,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	At           time.Time `json:"at"`
}

// Type is the event name, e.g. experiment.completed.
func (e LifecycleEvent) Type() string {
	return "experiment." + e.To
}

type Publisher interface {
	Publish(ctx context.Context, e LifecycleEvent) error
	Close() error
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, LifecycleEvent) error { return nil }
func (Nop) Close() error { return nil }

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka writes events as JSON, keyed by experiment id so one experiment's
// transitions stay ordered within a partition.
type Kafka struct {
	writer messageWriter
}

func NewKafka(brokers []string, topic string) *Kafka {
	return &Kafka{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.Hash{},
		},
	}
}

func (k *Kafka) Publish(ctx context.Context, e LifecycleEvent) error {
	msg, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return k.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(strconv.FormatInt(e.ExperimentID, 10)),
		Value:   msg,
		Time:    e.At,
		Headers: []kafka.Header{{Key: "type", Value: []byte(e.Type())}},
	})
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}

// New returns a Kafka publisher when brokers are configured, Nop otherwise.
func New(brokers []string, topic string) Publisher {
	if len(brokers) == 0 {
		return Nop{}
	}
	return NewKafka(brokers, topic)
}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []LifecycleEvent
}

func (r *Recorder) Publish(_ context.Context, e LifecycleEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *Recorder) Close() error { return nil }

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []LifecycleEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]LifecycleEvent(nil), r.events...)
}
