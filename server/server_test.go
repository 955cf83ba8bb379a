package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/brensch/connect4/analytics"
	"github.com/brensch/connect4/game"
	"github.com/brensch/connect4/mcts"
	"github.com/brensch/connect4/persist"
	"github.com/brensch/connect4/store"
)

type fakeStore struct {
	mu    sync.Mutex
	games []persist.GameRecord
}

func (f *fakeStore) SaveGame(_ context.Context, g persist.GameRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.games = append(f.games, g)
	return nil
}

func (f *fakeStore) RecentGames(_ context.Context, limit int) ([]persist.GameRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if limit > len(f.games) {
		limit = len(f.games)
	}
	return append([]persist.GameRecord(nil), f.games[:limit]...), nil
}

func (f *fakeStore) saved() []persist.GameRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]persist.GameRecord(nil), f.games...)
}

func testServer(t *testing.T, st GameStore, rec analytics.Emitter, archive string) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := mcts.DefaultConfig()
	cfg.Budget = 10 * time.Second
	cfg.MaxCycles = 100
	return New(Options{
		Engine:     cfg,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		Store:      st,
		Emitter:    rec,
		ArchiveDir: archive,
	})
}

func postMove(t *testing.T, h http.Handler, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/move", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func emptyBoard() [][]int {
	b := make([][]int, 6)
	for i := range b {
		b[i] = make([]int, 7)
	}
	return b
}

func TestHealth(t *testing.T) {
	h := testServer(t, nil, nil, "").Routes()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"ok":true`) {
		t.Fatalf("health %d %s", w.Code, w.Body.String())
	}
}

func TestMove(t *testing.T) {
	h := testServer(t, nil, nil, "").Routes()

	w := postMove(t, h, MoveRequest{Board: emptyBoard(), Turn: "computer", BudgetMS: 100})
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	var resp MoveResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Column < 0 || resp.Column > 6 || resp.Simulations < 1 || resp.Simulations > 100 {
		t.Fatalf("response %+v", resp)
	}
}

func TestMove_ImmediateWin(t *testing.T) {
	h := testServer(t, nil, nil, "").Routes()
	b := emptyBoard()
	b[5][3], b[4][3], b[3][3] = 2, 2, 2
	b[5][0], b[5][4], b[5][5] = 1, 1, 1

	w := postMove(t, h, MoveRequest{Board: b, Turn: "computer"})
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	var resp MoveResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Column != 3 || !resp.ShortCircuit {
		t.Fatalf("response %+v", resp)
	}
}

func TestMove_Rejects(t *testing.T) {
	h := testServer(t, nil, nil, "").Routes()

	won := emptyBoard()
	for r := 2; r < 6; r++ {
		won[r][0] = 2
	}
	won[5][1], won[5][2], won[4][1], won[5][4] = 1, 1, 1, 1

	floating := emptyBoard()
	floating[0][0] = 1

	tests := []struct {
		name string
		body any
		want int
	}{
		{"short board", MoveRequest{Board: emptyBoard()[:5], Turn: "computer"}, http.StatusBadRequest},
		{"floating disc", MoveRequest{Board: floating, Turn: "computer"}, http.StatusBadRequest},
		{"bad turn", MoveRequest{Board: emptyBoard(), Turn: "martian"}, http.StatusBadRequest},
		{"not json", "nope", http.StatusBadRequest},
		{"decided game", MoveRequest{Board: won, Turn: "human"}, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := postMove(t, h, tt.body); w.Code != tt.want {
				t.Fatalf("status %d want %d: %s", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestRequestBudget(t *testing.T) {
	const ceiling = 30 * time.Second
	tests := []struct {
		name string
		ms   int
		def  time.Duration
		want time.Duration
	}{
		{"default", 0, 5 * time.Second, 5 * time.Second},
		{"negative uses default", -5, 5 * time.Second, 5 * time.Second},
		{"requested", 250, 5 * time.Second, 250 * time.Millisecond},
		{"capped", 60000, 5 * time.Second, ceiling},
		{"default capped", 0, time.Minute, ceiling},
		{"overflowing", math.MaxInt, 5 * time.Second, ceiling},
		{"wraps negative when multiplied", math.MaxInt64/int(time.Millisecond) + 1, 5 * time.Second, ceiling},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := requestBudget(tt.ms, tt.def, ceiling); got != tt.want {
				t.Fatalf("requestBudget(%d)=%s want %s", tt.ms, got, tt.want)
			}
		})
	}
}

func TestMove_HugeBudgetIsCapped(t *testing.T) {
	s := testServer(t, nil, nil, "")
	s.opts.MaxBudget = 2 * time.Second
	w := postMove(t, s.Routes(), MoveRequest{Board: emptyBoard(), Turn: "computer", BudgetMS: math.MaxInt64/int(time.Millisecond) + 1})
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	var resp MoveResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	// A wrapped budget would stop after a single cycle.
	if resp.Simulations != 100 {
		t.Fatalf("simulations=%d want the full 100 cycles", resp.Simulations)
	}
}

func TestRecent(t *testing.T) {
	w := httptest.NewRecorder()
	testServer(t, nil, nil, "").Routes().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/recent", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("no store: status %d", w.Code)
	}

	st := &fakeStore{games: []persist.GameRecord{{Outcome: "draw"}, {Outcome: "human_win"}}}
	w = httptest.NewRecorder()
	testServer(t, st, nil, "").Routes().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/recent?limit=1", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	var got []persist.GameRecord
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil || len(got) != 1 || got[0].Outcome != "draw" {
		t.Fatalf("recent=%+v err=%v", got, err)
	}
}

type wsMsg struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func dial(t *testing.T, srv *httptest.Server, start string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?start=" + start
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	return conn
}

func read(t *testing.T, conn *websocket.Conn) wsMsg {
	t.Helper()
	var m wsMsg
	if err := conn.ReadJSON(&m); err != nil {
		t.Fatalf("read: %v", err)
	}
	return m
}

func firstOpen(board [][]int) int {
	for c := 0; c < 7; c++ {
		if board[0][c] == 0 {
			return c
		}
	}
	return -1
}

func TestWebSocketGame(t *testing.T) {
	st := &fakeStore{}
	rec := &analytics.Recorder{}
	archive := t.TempDir()
	s := testServer(t, st, rec, archive)
	srv := httptest.NewServer(s.Routes())
	defer srv.Close()

	conn := dial(t, srv, "human")
	defer conn.Close()

	first := read(t, conn)
	var st0 StatePayload
	if err := json.Unmarshal(first.Data, &st0); err != nil || first.Type != "state" {
		t.Fatalf("first message %s %s", first.Type, first.Data)
	}
	if st0.Turn != "human" || st0.GameID == "" {
		t.Fatalf("initial state %+v", st0)
	}
	if sess, ok := s.Hub().Get(uuid.MustParse(st0.GameID)); !ok || sess.Starter != game.Human {
		t.Fatalf("session %s not registered in hub", st0.GameID)
	}

	// Out of range columns are rejected without ending the game.
	if err := conn.WriteJSON(Message{Type: "move", Data: MovePayload{Col: 9}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if m := read(t, conn); m.Type != "error" {
		t.Fatalf("want error, got %s %s", m.Type, m.Data)
	}

	board := st0.Board
	var end EndPayload
	for moves := 0; ; moves++ {
		if moves > 42 {
			t.Fatalf("game did not end")
		}
		if err := conn.WriteJSON(Message{Type: "move", Data: MovePayload{Col: firstOpen(board)}}); err != nil {
			t.Fatalf("write: %v", err)
		}
		done := false
		for !done {
			m := read(t, conn)
			switch m.Type {
			case "state":
				var sp StatePayload
				if err := json.Unmarshal(m.Data, &sp); err != nil {
					t.Fatalf("state: %v", err)
				}
				board = sp.Board
				done = sp.Turn == "human" && sp.Outcome == "ongoing"
			case "end":
				if err := json.Unmarshal(m.Data, &end); err != nil {
					t.Fatalf("end: %v", err)
				}
				done = true
			default:
				t.Fatalf("unexpected %s %s", m.Type, m.Data)
			}
		}
		if end.Outcome != "" {
			break
		}
	}
	if end.GameID != st0.GameID || end.Message == "" {
		t.Fatalf("end payload %+v", end)
	}

	saved := st.saved()
	if len(saved) != 1 || saved[0].Outcome != end.Outcome || saved[0].Starter != "human" {
		t.Fatalf("saved %+v", saved)
	}
	rows, err := store.ReadArchive(filepath.Join(archive, end.GameID+".parquet"))
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if len(rows) != len(saved[0].Moves) || rows[0].Outcome != end.Outcome {
		t.Fatalf("archive has %d rows for %d moves", len(rows), len(saved[0].Moves))
	}

	evs := rec.Events()
	if evs[0].Event != analytics.MatchStart || evs[len(evs)-1].Event != analytics.GameEnd {
		t.Fatalf("events %+v", evs)
	}

	deadline := time.Now().Add(5 * time.Second)
	for s.Hub().Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("session still registered")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWebSocket_ComputerStarts(t *testing.T) {
	srv := httptest.NewServer(testServer(t, nil, nil, "").Routes())
	defer srv.Close()
	conn := dial(t, srv, "computer")
	defer conn.Close()

	if m := read(t, conn); m.Type != "state" {
		t.Fatalf("first message %s", m.Type)
	}
	m := read(t, conn)
	var sp StatePayload
	if err := json.Unmarshal(m.Data, &sp); err != nil || m.Type != "state" {
		t.Fatalf("second message %s %s", m.Type, m.Data)
	}
	if sp.LastSide != "computer" || sp.LastMove == nil || sp.Turn != "human" || sp.Simulations == 0 {
		t.Fatalf("computer opening state %+v", sp)
	}

	if err := conn.WriteJSON(Message{Type: "ping"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if m := read(t, conn); m.Type != "error" {
		t.Fatalf("unknown type answered with %s", m.Type)
	}
}

func TestWebSocket_BadStart(t *testing.T) {
	w := httptest.NewRecorder()
	testServer(t, nil, nil, "").Routes().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws?start=nobody", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status %d", w.Code)
	}
}
