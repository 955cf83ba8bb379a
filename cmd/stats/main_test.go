package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/brensch/connect4/analytics"
	"github.com/brensch/connect4/persist"
	"github.com/brensch/connect4/store"
)

func TestPrintArchive(t *testing.T) {
	rep := archiveReport{
		Summary:  store.Summary{Games: 2, Plies: 14, AvgGameLength: 7, AvgSimulations: 1200},
		Outcomes: []store.OutcomeCount{{Source: "selfplay", Outcome: "computer_win", Games: 2}},
		Openings: []store.OpeningStat{{Column: 3, Games: 2, ComputerWins: 1, ComputerPct: 50}},
	}

	var buf bytes.Buffer
	if err := printArchive(&buf, rep, false); err != nil {
		t.Fatalf("printArchive: %v", err)
	}
	for _, want := range []string{"games", "selfplay", "computer_win", "50.0%"} {
		if !strings.Contains(buf.String(), want) {
			t.Fatalf("table missing %q:\n%s", want, buf.String())
		}
	}

	buf.Reset()
	if err := printArchive(&buf, rep, true); err != nil {
		t.Fatalf("printArchive json: %v", err)
	}
	var got archiveReport
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if got.Summary.Games != 2 || len(got.Openings) != 1 || got.Openings[0].Column != 3 {
		t.Fatalf("json report=%+v", got)
	}
}

func TestPrintTally(t *testing.T) {
	tally := analytics.NewTally()
	tally.Apply(analytics.Event{Event: analytics.MatchStart, GameID: "g"})
	tally.Apply(analytics.Event{Event: analytics.GameEnd, GameID: "g", Outcome: "draw", DurationMS: 1500})

	var buf bytes.Buffer
	if err := printTally(&buf, tally.Totals(), false); err != nil {
		t.Fatalf("printTally: %v", err)
	}
	if !strings.Contains(buf.String(), "draw") || !strings.Contains(buf.String(), "1.5s") {
		t.Fatalf("tally output:\n%s", buf.String())
	}
}

func TestPrintRecent(t *testing.T) {
	games := []persist.GameRecord{{
		ID:      uuid.New(),
		Starter: "human",
		Outcome: "human_win",
		Moves:   []int16{0, 1, 0, 1, 0, 1, 0},
		Ended:   time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}}
	var buf bytes.Buffer
	if err := printRecent(&buf, games, false); err != nil {
		t.Fatalf("printRecent: %v", err)
	}
	if !strings.Contains(buf.String(), "human_win") || !strings.Contains(buf.String(), "2024-01-02T03:04:05Z") {
		t.Fatalf("recent output:\n%s", buf.String())
	}
}
