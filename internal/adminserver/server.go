// Package adminserver implements the admin server (C13, SPEC_FULL.md §4.14):
// a small Fiber HTTP surface for operators, exposing liveness, open
// positions, and trade metrics. Grounded on the teacher's
// internal/signal/server.go Fiber usage — here repurposed from an inbound
// signal gateway into an outbound status server, since signals arrive over
// the Redis queue (C1) in this spec rather than over HTTP.
package adminserver

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"memecoin-agent/internal/health"
	"memecoin-agent/internal/metrics"
	"memecoin-agent/internal/position"
)

// Server is the operator-facing status surface.
type Server struct {
	app       *fiber.App
	host      string
	port      int
	checker   *health.Checker
	positions *position.Registry
	metrics   *metrics.Metrics
}

// New builds the admin server bound to its three read-only collaborators.
func New(host string, port int, checker *health.Checker, positions *position.Registry, tradeMetrics *metrics.Metrics) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           5 * time.Second,
		WriteTimeout:          5 * time.Second,
	})

	s := &Server{
		app:       app,
		host:      host,
		port:      port,
		checker:   checker,
		positions: positions,
		metrics:   tradeMetrics,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.app.Get("/health", s.handleHealth)
	s.app.Get("/positions", s.handlePositions)
	s.app.Get("/metrics", s.handleMetrics)
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	statuses := s.checker.Statuses()
	code := fiber.StatusOK
	if !s.checker.AllHealthy() {
		code = fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(fiber.Map{
		"healthy":    s.checker.AllHealthy(),
		"components": statuses,
		"time":       time.Now().Unix(),
	})
}

func (s *Server) handlePositions(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"count":     s.positions.Count(),
		"positions": s.positions.All(),
	})
}

func (s *Server) handleMetrics(c *fiber.Ctx) error {
	return c.JSON(s.metrics.Snapshot())
}

// Start runs the HTTP server; blocks until Shutdown is called or the
// listener fails.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	log.Info().Str("addr", addr).Msg("adminserver: listening")
	return s.app.Listen(addr)
}

// Shutdown gracefully drains and stops the HTTP server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
