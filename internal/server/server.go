// Package server exposes a read-mostly HTTP view of a running capture daemon.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"camlapse/internal/database"
	"camlapse/internal/lapse"
)

// StatusSource reports the capture loop state.
type StatusSource interface {
	Status() lapse.SchedulerStatus
}

// Assembler is the slice of the assembly coordinator the server needs.
type Assembler interface {
	lapse.BucketSubmitter
	Jobs() []lapse.AssemblyJob
}

// History lists persisted jobs. Optional.
type History interface {
	ListJobs(limit int) ([]*database.JobRecord, error)
}

// Deps are the components the handlers read from. History may be nil.
type Deps struct {
	Scheduler StatusSource
	Archive   lapse.ArchiveStore
	Assembler Assembler
	History   History
	Policy    *lapse.BucketPolicy
	Clock     lapse.Clock
}

// Server serves the status API.
type Server struct {
	addr   string
	deps   Deps
	logger lapse.Logger
	router *gin.Engine
}

func New(addr string, deps Deps, logger lapse.Logger) *Server {
	s := &Server{addr: addr, deps: deps, logger: logger}
	s.router = s.routes()
	return s
}

// Handler returns the gin engine, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(s.logger))

	r.GET("/health", func(c *gin.Context) { ok(c, gin.H{"status": "ok"}) })
	r.GET("/status", s.status)
	r.GET("/buckets", s.listBuckets)
	r.GET("/buckets/:id", s.getBucket)
	r.POST("/buckets/:id/assemble", s.assembleBucket)
	r.GET("/jobs", s.listJobs)
	return r
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("status server listening", "addr", s.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("status server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down status server: %w", err)
	}
	s.logger.Info("status server stopped")
	return nil
}

func requestLogger(logger lapse.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
		)
	}
}
