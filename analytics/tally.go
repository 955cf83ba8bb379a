package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// Totals is a point-in-time view of a Tally.
type Totals struct {
	Games    int            `json:"games"`
	Finished int            `json:"finished"`
	Moves    int            `json:"moves"`
	Outcomes map[string]int `json:"outcomes"`
	// AvgSimulations is over engine moves that ran a search.
	AvgSimulations float64       `json:"avg_simulations"`
	AvgDuration    time.Duration `json:"avg_duration"`
}

// Tally aggregates events into running totals.
type Tally struct {
	mu        sync.Mutex
	totals    Totals
	searches  int
	simTotal  int
	durations time.Duration
}

func NewTally() *Tally {
	return &Tally{totals: Totals{Outcomes: map[string]int{}}}
}

func (t *Tally) Apply(ev Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tt := &t.totals
	switch ev.Event {
	case MatchStart:
		tt.Games++
	case Move:
		tt.Moves++
		if ev.Simulations > 0 {
			t.searches++
			t.simTotal += ev.Simulations
			tt.AvgSimulations = float64(t.simTotal) / float64(t.searches)
		}
	case GameEnd:
		tt.Finished++
		tt.Outcomes[ev.Outcome]++
		t.durations += time.Duration(ev.DurationMS) * time.Millisecond
		tt.AvgDuration = t.durations / time.Duration(tt.Finished)
	}
}

func (t *Tally) Totals() Totals {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.totals
	out.Outcomes = make(map[string]int, len(t.totals.Outcomes))
	for k, v := range t.totals.Outcomes {
		out.Outcomes[k] = v
	}
	return out
}

// MessageReader is the part of *kafka.Reader that Consume uses.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

func NewReader(brokers, topic, group string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers: splitBrokers(brokers),
		Topic:   topic,
		GroupID: group,
	})
}

// Consume feeds every message into t until ctx is done. Malformed messages
// are logged and skipped.
func Consume(ctx context.Context, r MessageReader, t *Tally, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		var ev Event
		if err := json.Unmarshal(m.Value, &ev); err != nil {
			logger.Warn("skipping malformed event", "offset", m.Offset, "error", err)
			continue
		}
		t.Apply(ev)
	}
}
