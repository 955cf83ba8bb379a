// Package analytics publishes game events to Kafka and tallies them back.
package analytics

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// Event names.
const (
	MatchStart = "match.start"
	Move       = "move"
	GameEnd    = "game.end"
)

// Event is the JSON payload of one Kafka message.
type Event struct {
	Event  string    `json:"event"`
	GameID string    `json:"gameId"`
	TS     time.Time `json:"ts"`

	// match.start
	Start string `json:"start,omitempty"`
	// move
	Side        string  `json:"side,omitempty"`
	Column      *int    `json:"col,omitempty"`
	Simulations int     `json:"simulations,omitempty"`
	WinRate     float64 `json:"winRate,omitempty"`
	// game.end
	Outcome    string `json:"outcome,omitempty"`
	Plies      int    `json:"plies,omitempty"`
	DurationMS int64  `json:"durationMs,omitempty"`
}

// Emitter publishes events. Emit never blocks the caller on failure for long
// and never returns an error; analytics are best effort.
type Emitter interface {
	Emit(ctx context.Context, ev Event)
}

// Nop drops every event.
type Nop struct{}

func (Nop) Emit(context.Context, Event) {}

type KafkaEmitter struct {
	writer  *kafka.Writer
	logger  *slog.Logger
	timeout time.Duration
}

// NewKafkaEmitter writes to topic on the comma separated brokers list.
func NewKafkaEmitter(brokers, topic string, logger *slog.Logger) *KafkaEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(splitBrokers(brokers)...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
	}
	return &KafkaEmitter{writer: w, logger: logger, timeout: 2 * time.Second}
}

func (k *KafkaEmitter) Emit(ctx context.Context, ev Event) {
	if k == nil || k.writer == nil {
		return
	}
	if ev.TS.IsZero() {
		ev.TS = time.Now().UTC()
	}
	b, err := json.Marshal(ev)
	if err != nil {
		k.logger.Warn("analytics marshal failed", "event", ev.Event, "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), k.timeout)
	defer cancel()
	// Keyed by game so one game's events stay ordered within a partition.
	if err := k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(ev.GameID), Value: b}); err != nil {
		k.logger.Warn("kafka emit failed", "event", ev.Event, "game_id", ev.GameID, "error", err)
	}
}

func (k *KafkaEmitter) Close() error {
	return k.writer.Close()
}

func splitBrokers(s string) []string {
	var out []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// Recorder keeps events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(_ context.Context, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}
