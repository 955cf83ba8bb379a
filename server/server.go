// Package server exposes the engine over HTTP and WebSocket.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/brensch/connect4/analytics"
	"github.com/brensch/connect4/mcts"
	"github.com/brensch/connect4/persist"
)

// GameStore persists finished games. *persist.DB satisfies it.
type GameStore interface {
	SaveGame(ctx context.Context, g persist.GameRecord) error
	RecentGames(ctx context.Context, limit int) ([]persist.GameRecord, error)
}

type Options struct {
	Engine mcts.Config
	// MaxBudget caps budget_ms on /move requests.
	MaxBudget time.Duration
	Logger    *slog.Logger
	// Store and Emitter are optional.
	Store   GameStore
	Emitter analytics.Emitter
	// ArchiveDir, when set, receives one Parquet file per finished session.
	ArchiveDir string
}

type Server struct {
	opts   Options
	logger *slog.Logger
	emit   analytics.Emitter
	hub    *Hub
}

func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Emitter == nil {
		opts.Emitter = analytics.Nop{}
	}
	if opts.MaxBudget <= 0 {
		opts.MaxBudget = 30 * time.Second
	}
	return &Server{
		opts:   opts,
		logger: opts.Logger,
		emit:   opts.Emitter,
		hub:    NewHub(),
	}
}

func (s *Server) Hub() *Hub { return s.hub }

func (s *Server) Routes() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger(), cors())
	r.GET("/health", s.handleHealth)
	r.POST("/move", s.handleMove)
	r.GET("/ws", s.handleWS)
	r.GET("/recent", s.handleRecent)
	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"elapsed", time.Since(start),
		)
	}
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true, "sessions": s.hub.Len()})
}

func (s *Server) handleRecent(c *gin.Context) {
	if s.opts.Store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no database configured"})
		return
	}
	limit := 10
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	games, err := s.opts.Store.RecentGames(c.Request.Context(), limit)
	if err != nil {
		s.logger.Error("recent games failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, games)
}
