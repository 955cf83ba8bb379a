package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/brensch/connect4/analytics"
	"github.com/brensch/connect4/config"
	"github.com/brensch/connect4/game"
	"github.com/brensch/connect4/mcts"
	"github.com/brensch/connect4/persist"
	"github.com/brensch/connect4/rules"
	"github.com/brensch/connect4/store"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Session is one human-versus-computer game played over a WebSocket.
type Session struct {
	ID      uuid.UUID
	Starter game.Side
	Started time.Time

	mu     sync.Mutex
	pos    *game.Position
	moves  []int16
	rows   []store.PlyRow
	engine *mcts.Engine
	conn   *websocket.Conn
}

func (s *Session) send(msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return s.conn.WriteJSON(msg)
}

func (s *Session) state(last *int, lastSide game.Side, res *mcts.Result) StatePayload {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := StatePayload{
		GameID:   s.ID.String(),
		Board:    s.pos.Grid(),
		Turn:     s.pos.Turn.String(),
		Outcome:  rules.Evaluate(s.pos).String(),
		LastMove: last,
	}
	if last != nil {
		st.LastSide = lastSide.String()
	}
	if res != nil {
		st.Simulations = res.Simulations
		st.WinRate = res.WinRate
	}
	return st
}

// play applies m for the side to move and records it.
func (s *Session) play(m game.Move, res *mcts.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := store.NewPlyRow(s.ID.String(), len(s.moves), s.pos, m, res)
	if !s.pos.Apply(m) {
		return fmt.Errorf("%w: column %d", game.ErrInvalidMove, int(m))
	}
	s.moves = append(s.moves, int16(m))
	s.rows = append(s.rows, row)
	return nil
}

func (s *Session) snapshot() *game.Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos.Clone()
}

// Hub tracks live sessions.
type Hub struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
}

func NewHub() *Hub {
	return &Hub{sessions: make(map[uuid.UUID]*Session)}
}

func (h *Hub) Add(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[s.ID] = s
}

func (h *Hub) Remove(id uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, id)
}

func (h *Hub) Get(id uuid.UUID) (*Session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.sessions[id]
	return s, ok
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

func (s *Server) handleWS(c *gin.Context) {
	starter := game.Human
	if v := c.Query("start"); v != "" {
		var err error
		if starter, err = config.ParseSide(v); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sess := &Session{
		ID:      uuid.New(),
		Starter: starter,
		Started: time.Now(),
		pos:     game.Initial(starter),
		engine:  mcts.NewEngine(s.opts.Engine, mcts.NewSource(uint64(time.Now().UnixNano())), s.logger),
		conn:    conn,
	}
	s.hub.Add(sess)
	defer s.hub.Remove(sess.ID)

	logger := s.logger.With("game_id", sess.ID.String())
	logger.Info("session started", "start", starter.String())
	ctx := c.Request.Context()
	s.emit.Emit(ctx, analytics.Event{Event: analytics.MatchStart, GameID: sess.ID.String(), Start: starter.String()})

	if err := sess.send(Message{Type: "state", Data: sess.state(nil, 0, nil)}); err != nil {
		return
	}
	if starter == game.Computer {
		if done, err := s.computerTurn(ctx, sess); done || err != nil {
			return
		}
	}

	for {
		var in inMessage
		if err := conn.ReadJSON(&in); err != nil {
			logger.Info("session closed", "error", err)
			return
		}
		if in.Type != "move" {
			_ = sess.send(Message{Type: "error", Data: ErrorPayload{Error: fmt.Sprintf("unknown message type %q", in.Type)}})
			continue
		}
		var mv MovePayload
		if err := json.Unmarshal(in.Data, &mv); err != nil {
			_ = sess.send(Message{Type: "error", Data: ErrorPayload{Error: "bad move payload"}})
			continue
		}

		if sess.snapshot().Turn != game.Human {
			_ = sess.send(Message{Type: "error", Data: ErrorPayload{Error: "not your turn"}})
			continue
		}
		col := game.Move(mv.Col)
		if err := sess.play(col, nil); err != nil {
			_ = sess.send(Message{Type: "error", Data: ErrorPayload{Error: err.Error()}})
			continue
		}
		s.emitMove(ctx, sess, game.Human, col, nil)
		last := int(col)
		if err := sess.send(Message{Type: "state", Data: sess.state(&last, game.Human, nil)}); err != nil {
			return
		}
		if s.finishIfOver(ctx, sess) {
			return
		}
		if done, err := s.computerTurn(ctx, sess); done || err != nil {
			return
		}
	}
}

// computerTurn plays the engine's move. done reports that the game ended.
func (s *Server) computerTurn(ctx context.Context, sess *Session) (done bool, err error) {
	pos := sess.snapshot()
	m, res, err := sess.engine.ChooseMove(ctx, pos)
	if err != nil {
		s.logger.Error("engine failed", "game_id", sess.ID.String(), "error", err)
		_ = sess.send(Message{Type: "error", Data: ErrorPayload{Error: err.Error()}})
		return false, err
	}
	if err := sess.play(m, &res); err != nil {
		return false, err
	}
	s.emitMove(ctx, sess, game.Computer, m, &res)
	last := int(m)
	if err := sess.send(Message{Type: "state", Data: sess.state(&last, game.Computer, &res)}); err != nil {
		return false, err
	}
	return s.finishIfOver(ctx, sess), nil
}

func (s *Server) emitMove(ctx context.Context, sess *Session, side game.Side, m game.Move, res *mcts.Result) {
	col := int(m)
	ev := analytics.Event{Event: analytics.Move, GameID: sess.ID.String(), Side: side.String(), Column: &col}
	if res != nil {
		ev.Simulations = res.Simulations
		ev.WinRate = res.WinRate
	}
	s.emit.Emit(ctx, ev)
}

var endMessages = map[rules.Outcome]string{
	rules.ComputerWin: "The computer won.",
	rules.HumanWin:    "You won!",
	rules.Draw:        "Draw: the board is full.",
}

// finishIfOver persists, archives and announces a decided game.
func (s *Server) finishIfOver(ctx context.Context, sess *Session) bool {
	pos := sess.snapshot()
	out := rules.Evaluate(pos)
	if out == rules.Ongoing {
		return false
	}
	ended := time.Now()
	logger := s.logger.With("game_id", sess.ID.String())

	sess.mu.Lock()
	moves := append([]int16(nil), sess.moves...)
	rows := append([]store.PlyRow(nil), sess.rows...)
	sess.mu.Unlock()

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if s.opts.Store != nil {
		rec := persist.GameRecord{
			ID:       sess.ID,
			Starter:  sess.Starter.String(),
			Outcome:  out.String(),
			Moves:    moves,
			BudgetMS: int32(s.opts.Engine.Budget.Milliseconds()),
			Started:  sess.Started,
			Ended:    ended,
		}
		if err := s.opts.Store.SaveGame(saveCtx, rec); err != nil {
			logger.Error("save game failed", "error", err)
		}
	}
	if s.opts.ArchiveDir != "" {
		store.SetOutcome(rows, out, "server")
		if _, err := store.WriteArchiveAtomic(s.opts.ArchiveDir, sess.ID.String(), rows); err != nil {
			logger.Error("archive game failed", "error", err)
		}
	}
	s.emit.Emit(saveCtx, analytics.Event{
		Event:      analytics.GameEnd,
		GameID:     sess.ID.String(),
		Outcome:    out.String(),
		Plies:      len(moves),
		DurationMS: ended.Sub(sess.Started).Milliseconds(),
	})
	logger.Info("session finished", "outcome", out.String(), "plies", len(moves))

	_ = sess.send(Message{Type: "end", Data: EndPayload{GameID: sess.ID.String(), Outcome: out.String(), Message: endMessages[out]}})
	sess.mu.Lock()
	_ = sess.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "game over"), time.Now().Add(time.Second))
	sess.mu.Unlock()
	return true
}
