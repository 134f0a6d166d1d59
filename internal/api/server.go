// Package api exposes the HTTP control surface: health, sync
// triggering and run inspection.
package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/feedsync/internal/origin"
	"github.com/feedsync/pkg/models"
)

// RunStore reads persisted sync runs.
type RunStore interface {
	SyncRunByID(ctx context.Context, id string) (*models.SyncRun, error)
	RecentSyncRuns(ctx context.Context, limit int) ([]*models.SyncRun, error)
}

// SyncTrigger enqueues a sync pass; satisfied by jobqueue.JobQueue.
type SyncTrigger interface {
	EnqueueSync(ctx context.Context, timeline models.TimelineType) error
}

// Server represents the API server.
type Server struct {
	echo    *echo.Echo
	port    int
	runs    RunStore
	trigger SyncTrigger
}

// NewServer creates a new API server.
func NewServer(port int, runs RunStore, trigger SyncTrigger) *Server {
	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	server := &Server{
		echo:    e,
		port:    port,
		runs:    runs,
		trigger: trigger,
	}

	server.setupRoutes()

	return server
}

func (s *Server) setupRoutes() {
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status": "healthy",
		})
	})

	v1 := s.echo.Group("/api/v1")

	v1.GET("/origins", s.getOrigins)
	v1.POST("/sync", s.triggerSync)
	v1.GET("/runs", s.getRecentRuns)
	v1.GET("/runs/:id", s.getRunByID)
}

// Start begins the API server and blocks until an interrupt arrives,
// then shuts down gracefully.
func (s *Server) Start() error {
	go func() {
		if err := s.echo.Start(fmt.Sprintf(":%d", s.port)); err != nil && err != http.ErrServerClosed {
			s.echo.Logger.Fatal("shutting down the server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.echo.Shutdown(ctx)
}

type originInfo struct {
	ID               int64  `json:"id"`
	Name             string `json:"name"`
	MaxMessageLength int    `json:"max_message_length"`
}

func (s *Server) getOrigins(c echo.Context) error {
	names := origin.Names()
	infos := make([]originInfo, 0, len(names))
	for _, name := range names {
		o := origin.FromName(name)
		infos = append(infos, originInfo{
			ID:               o.ID,
			Name:             o.Name,
			MaxMessageLength: o.MaxMessageLength,
		})
	}
	return c.JSON(http.StatusOK, infos)
}

type syncRequest struct {
	Timeline string `json:"timeline"`
}

var knownTimelines = map[models.TimelineType]bool{
	models.TimelineHome:      true,
	models.TimelineMentions:  true,
	models.TimelineDirect:    true,
	models.TimelineFavorites: true,
	models.TimelineAll:       true,
}

func (s *Server) triggerSync(c echo.Context) error {
	var req syncRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	timeline := models.TimelineType(req.Timeline)
	if timeline == "" {
		timeline = models.TimelineHome
	}
	if !knownTimelines[timeline] {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": fmt.Sprintf("unknown timeline %q", req.Timeline),
		})
	}

	if err := s.trigger.EnqueueSync(c.Request().Context(), timeline); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "could not enqueue sync"})
	}
	return c.JSON(http.StatusAccepted, map[string]string{
		"status":   "queued",
		"timeline": string(timeline),
	})
}

func (s *Server) getRecentRuns(c echo.Context) error {
	limit := 20
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 200 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "limit must be between 1 and 200"})
		}
		limit = n
	}

	runs, err := s.runs.RecentSyncRuns(c.Request().Context(), limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "could not load runs"})
	}
	return c.JSON(http.StatusOK, runs)
}

func (s *Server) getRunByID(c echo.Context) error {
	run, err := s.runs.SyncRunByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "could not load run"})
	}
	if run == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "run not found"})
	}
	return c.JSON(http.StatusOK, run)
}
