package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

type scriptedReader struct {
	msgs []kafka.Message
	err  error
}

func (r *scriptedReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.msgs) == 0 {
		if r.err != nil {
			return kafka.Message{}, r.err
		}
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	m := r.msgs[0]
	r.msgs = r.msgs[1:]
	return m, nil
}

func msg(t *testing.T, ev Event) kafka.Message {
	t.Helper()
	b, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return kafka.Message{Key: []byte(ev.GameID), Value: b}
}

func col(c int) *int { return &c }

func TestTally(t *testing.T) {
	tl := NewTally()
	tl.Apply(Event{Event: MatchStart, GameID: "g"})
	tl.Apply(Event{Event: Move, GameID: "g", Side: "human", Column: col(3)})
	tl.Apply(Event{Event: Move, GameID: "g", Side: "computer", Column: col(2), Simulations: 100})
	tl.Apply(Event{Event: Move, GameID: "g", Side: "computer", Column: col(2), Simulations: 300})
	tl.Apply(Event{Event: GameEnd, GameID: "g", Outcome: "computer_win", DurationMS: 4000})

	got := tl.Totals()
	if got.Games != 1 || got.Finished != 1 || got.Moves != 3 {
		t.Fatalf("totals=%+v", got)
	}
	if got.AvgSimulations != 200 {
		t.Fatalf("avg simulations=%v want 200", got.AvgSimulations)
	}
	if got.Outcomes["computer_win"] != 1 || got.AvgDuration != 4*time.Second {
		t.Fatalf("totals=%+v", got)
	}

	got.Outcomes["computer_win"] = 99
	if tl.Totals().Outcomes["computer_win"] != 1 {
		t.Fatalf("Totals shares its map with the tally")
	}
}

func TestConsume(t *testing.T) {
	r := &scriptedReader{msgs: []kafka.Message{
		msg(t, Event{Event: MatchStart, GameID: "a"}),
		{Value: []byte("not json")},
		msg(t, Event{Event: GameEnd, GameID: "a", Outcome: "draw"}),
	}}
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	tl := NewTally()
	if err := Consume(ctx, r, tl, nil); err != nil {
		t.Fatalf("Consume: %v", err)
	}
	got := tl.Totals()
	if got.Games != 1 || got.Outcomes["draw"] != 1 {
		t.Fatalf("totals=%+v", got)
	}

	boom := errors.New("broker gone")
	if err := Consume(context.Background(), &scriptedReader{err: boom}, NewTally(), nil); !errors.Is(err, boom) {
		t.Fatalf("err=%v want %v", err, boom)
	}
}

func TestEventJSON(t *testing.T) {
	b, err := json.Marshal(Event{Event: Move, GameID: "g", Column: col(0)})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	// Column 0 must survive omitempty.
	if m["col"] != float64(0) {
		t.Fatalf("col missing from %s", b)
	}
	if _, ok := m["outcome"]; ok {
		t.Fatalf("empty outcome serialized: %s", b)
	}
}

func TestRecorder(t *testing.T) {
	var r Recorder
	var e Emitter = &r
	e.Emit(context.Background(), Event{Event: MatchStart, GameID: "x"})
	Nop{}.Emit(context.Background(), Event{Event: MatchStart})
	if evs := r.Events(); len(evs) != 1 || evs[0].GameID != "x" {
		t.Fatalf("events=%+v", evs)
	}
}

func TestKafkaEmitter(t *testing.T) {
	brokers := os.Getenv("KAFKA_BROKERS")
	if brokers == "" {
		t.Skip("set KAFKA_BROKERS to run against a broker")
	}
	k := NewKafkaEmitter(brokers, "connect4.test", nil)
	defer k.Close()
	k.Emit(context.Background(), Event{Event: MatchStart, GameID: "kafka-test"})
}
