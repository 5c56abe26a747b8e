// Package api exposes review runs over HTTP so CI systems can trigger them.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"

	"github.com/appsec/internal/config"
	"github.com/appsec/internal/review"
	"github.com/appsec/internal/runerr"
	"github.com/appsec/pkg/models"
)

// Runner executes one review run. *review.Service implements it.
type Runner interface {
	RunWithID(ctx context.Context, runID string, ref models.ChangeSetRef) (*review.Outcome, error)
}

// Server represents the API server
type Server struct {
	echo       *echo.Echo
	port       int
	secret     []byte
	runTimeout time.Duration
	runner     Runner
	runs       *registry

	// runCtx outlives requests; cancelled on shutdown.
	runCtx    context.Context
	cancelRun context.CancelFunc
	wg        sync.WaitGroup
}

// NewServer creates a new API server
func NewServer(settings config.ServerSettings, runner Runner) (*Server, error) {
	if strings.TrimSpace(settings.JWTSecret) == "" {
		return nil, runerr.Configuration("create api server", "server.jwt_secret is required")
	}
	if runner == nil {
		return nil, errors.New("api: runner is required")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Debug().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("Request handled")
			return nil
		},
	}))

	runCtx, cancel := context.WithCancel(context.Background())
	server := &Server{
		echo:       e,
		port:       settings.Port,
		secret:     []byte(settings.JWTSecret),
		runTimeout: settings.RunTimeout,
		runner:     runner,
		runs:       newRegistry(),
		runCtx:     runCtx,
		cancelRun:  cancel,
	}

	// Setup routes
	server.setupRoutes()

	return server, nil
}

// setupRoutes configures all API endpoints
func (s *Server) setupRoutes() {
	// Health check endpoint
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status": "healthy",
		})
	})

	// API v1 group
	v1 := s.echo.Group("/api/v1", RequireToken(s.secret))

	// Runs endpoints
	v1.POST("/runs", s.createRun)
	v1.GET("/runs/:id", s.getRun)
}

// Handler returns the HTTP handler, e.g. for httptest.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves until ctx is done, then shuts down gracefully and cancels
// the runs still in flight.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", s.port).Msg("API server listening")
		if err := s.echo.Start(fmt.Sprintf(":%d", s.port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			s.cancelRun()
			return fmt.Errorf("api server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := s.echo.Shutdown(shutdownCtx)
	s.cancelRun()
	s.Wait()
	return err
}

// Wait blocks until every background run has finished.
func (s *Server) Wait() {
	s.wg.Wait()
}

type createRunRequest struct {
	Repo      string `json:"repo"`
	ToEvent   string `json:"to_event"`
	FromEvent string `json:"from_event"`
}

type createRunResponse struct {
	RunID  string    `json:"run_id"`
	Status RunStatus `json:"status"`
}

func (s *Server) createRun(c echo.Context) error {
	var req createRunRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	ref := models.ChangeSetRef{
		Repo: strings.TrimSpace(req.Repo),
		To:   strings.TrimSpace(req.ToEvent),
		From: strings.TrimSpace(req.FromEvent),
	}
	if ref.To == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "to_event is required")
	}
	if ref.Repo == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "repo is required")
	}

	run := s.runs.create(ref)
	log.Info().
		Str("run_id", run.ID).
		Str("repo", ref.Repo).
		Str("to", ref.To).
		Str("subject", subjectFrom(c)).
		Msg("Run queued")

	s.wg.Add(1)
	go s.execute(run.ID, ref)

	return c.JSON(http.StatusAccepted, createRunResponse{RunID: run.ID, Status: run.Status})
}

func (s *Server) getRun(c echo.Context) error {
	run, ok := s.runs.get(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "Run not found")
	}
	return c.JSON(http.StatusOK, run)
}

func (s *Server) execute(id string, ref models.ChangeSetRef) {
	defer s.wg.Done()

	ctx := s.runCtx
	if s.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.runTimeout)
		defer cancel()
	}

	s.runs.start(id)
	outcome, err := s.runner.RunWithID(ctx, id, ref)
	s.runs.finish(id, outcome, err)

	if err != nil {
		log.Warn().Err(err).Str("run_id", id).Msg("Triggered run failed")
		return
	}
	log.Info().Str("run_id", id).Msg("Triggered run succeeded")
}
