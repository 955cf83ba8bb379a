package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/brensch/connect4/config"
	"github.com/brensch/connect4/game"
	"github.com/brensch/connect4/mcts"
	"github.com/brensch/connect4/rules"
)

// handleMove answers with the engine's move for the posted position.
func (s *Server) handleMove(c *gin.Context) {
	var req MoveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	turn := game.Computer
	if req.Turn != "" {
		var err error
		if turn, err = config.ParseSide(req.Turn); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	pos, err := game.FromRows(req.Board, turn)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if out := rules.Evaluate(pos); out != rules.Ongoing {
		c.JSON(http.StatusConflict, gin.H{"error": "game is over", "outcome": out.String()})
		return
	}

	cfg := s.opts.Engine
	cfg.Budget = requestBudget(req.BudgetMS, cfg.Budget, s.opts.MaxBudget)
	eng := mcts.NewEngine(cfg, mcts.NewSource(uint64(time.Now().UnixNano())), s.logger)

	m, res, err := eng.ChooseMove(c.Request.Context(), pos)
	switch {
	case errors.Is(err, mcts.ErrNoLegalMoves), errors.Is(err, mcts.ErrGameOver):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, MoveResponse{
		Column:       int(m),
		Simulations:  res.Simulations,
		WinRate:      res.WinRate,
		ShortCircuit: res.ShortCircuit,
		ElapsedMS:    res.Elapsed.Milliseconds(),
	})
}

// requestBudget is the search budget for a budget_ms request field. ms is
// clamped before conversion so huge values cannot overflow past ceiling.
func requestBudget(ms int, def, ceiling time.Duration) time.Duration {
	budget := def
	if ms > 0 {
		if int64(ms) > ceiling.Milliseconds() {
			return ceiling
		}
		budget = time.Duration(ms) * time.Millisecond
	}
	if budget > ceiling {
		budget = ceiling
	}
	return budget
}
