// Package api exposes the operator HTTP surface: active trends and warnings,
// escalation rules, queue stats and the prometheus endpoint.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"trendguard/internal/ledger"
	"trendguard/internal/logger"
	"trendguard/internal/queue"
	"trendguard/internal/respond"
	"trendguard/internal/rules"
	"trendguard/internal/store"
)

// Config configures the operator API listener.
type Config struct {
	Addr  string
	Debug bool
}

// Server holds the handler dependencies.
type Server struct {
	cfg       Config
	ledger    ledger.Ledger
	engine    *rules.Engine
	rulesPath string
	queue     queue.Queue
	review    respond.ReviewLanes
	store     store.ContentStore
}

// NewServer wires the operator API.
func NewServer(cfg Config, led ledger.Ledger, engine *rules.Engine, rulesPath string, q queue.Queue, review respond.ReviewLanes, st store.ContentStore) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	return &Server{
		cfg:       cfg,
		ledger:    led,
		engine:    engine,
		rulesPath: rulesPath,
		queue:     q,
		review:    review,
		store:     st,
	}
}

// Router builds the gin engine with all routes mounted.
func (s *Server) Router() *gin.Engine {
	if !s.cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", s.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	{
		v1.GET("/trends", s.listTrends)
		v1.GET("/trends/:id", s.getTrend)
		v1.GET("/warnings", s.listWarnings)
		v1.GET("/warnings/:id", s.getWarning)
		v1.POST("/warnings/:id/ack", s.ackWarning)
		v1.GET("/content/:id", s.getContent)
		v1.GET("/rules", s.listRules)
		v1.POST("/rules/reload", s.reloadRules)
		v1.GET("/queues", s.queueStats)
		v1.GET("/review/:severity", s.pendingReview)
	}
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("operator API listening on %s", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		logger.Infof("operator API stopped")
		return nil
	}
}
