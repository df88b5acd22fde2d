// Package server exposes runs over HTTP: a trigger endpoint, run history,
// recent logs, host resources and the Prometheus metrics.
package server

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"

	"settleflow/config"
	"settleflow/logger"
	"settleflow/models"
)

// Runner executes one run.
type Runner interface {
	Run(ctx context.Context, date string) models.RunResult
}

type runRequest struct {
	Date string `json:"date"`
}

// Server serialises runs: a trigger that arrives while a run is active is
// answered with 409.
type Server struct {
	cfg        config.ServerConfig
	runner     Runner
	metrics    http.Handler
	log        *logger.Log
	logs       *runLogStore
	resources  *resourceSampler
	runMu      sync.Mutex
	running    atomic.Bool
	closeOnce  sync.Once
	mu         sync.RWMutex
	history    []models.RunResult
	httpServer *http.Server
}

// NewServer builds a server. metricsHandler may be nil.
func NewServer(cfg config.ServerConfig, runner Runner, metricsHandler http.Handler, log *logger.Log) *Server {
	cfg.Address = normalizeAddress(cfg.Address)
	if cfg.RunHistory <= 0 {
		cfg.RunHistory = 20
	}

	logs := newRunLogStore(cfg.LogHistory)
	log.AddHook(logs)

	srv := &Server{
		cfg:     cfg,
		runner:  runner,
		metrics: metricsHandler,
		log:     log,
		logs:    logs,
	}
	if cfg.Resources.Enabled {
		srv.resources = newResourceSampler(cfg.Resources.History, cfg.Resources.Interval, cfg.Resources.DiskPath, log)
	}
	return srv
}

// Close stops log capture and detaches the capture hook from the logger.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		s.logs.close()
		s.log.RemoveHook(s.logs)
	})
}

// Run serves until ctx is cancelled or the listener fails.
func (s *Server) Run(ctx context.Context) error {
	defer s.Close()
	s.resources.start(ctx)
	defer s.resources.stop()

	s.httpServer = &http.Server{
		Addr:              s.cfg.Address,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	s.log.WithComponent("server").WithFields(logger.Fields{"address": s.cfg.Address}).Info("http server listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}

// Address reports the address the server listens on.
func (s *Server) Address() string {
	return s.cfg.Address
}

// Router returns the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	if s.cfg.Mode == gin.DebugMode {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", s.handleHealth)
	if s.metrics != nil {
		router.GET("/metrics", gin.WrapH(s.metrics))
	}

	api := router.Group("/api/v1")
	api.POST("/runs", s.handleTrigger)
	api.GET("/runs", s.handleHistory)
	api.GET("/runs/latest", s.handleLatest)
	api.GET("/logs", s.handleLogs)
	api.GET("/system", s.handleSystem)

	return router
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "running": s.running.Load()})
}

func (s *Server) handleTrigger(c *gin.Context) {
	var req runRequest
	if c.Request.Body != nil && c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, gin.H{"statusCode": http.StatusBadRequest, "statusDescription": "invalid request body"})
			return
		}
	}
	if req.Date == "" {
		req.Date = c.Query("date")
	}

	if !s.runMu.TryLock() {
		c.JSON(http.StatusConflict, gin.H{"statusCode": http.StatusConflict, "statusDescription": "a run is already in progress"})
		return
	}
	defer s.runMu.Unlock()
	s.running.Store(true)
	defer s.running.Store(false)

	s.log.WithComponent("server").WithFields(logger.Fields{"date": req.Date, "remote": c.ClientIP()}).Info("run triggered")

	// A disconnecting client must not abort a run halfway through the writes.
	result := s.runner.Run(context.WithoutCancel(c.Request.Context()), strings.TrimSpace(req.Date))
	s.remember(result)
	c.JSON(result.StatusCode, result)
}

func (s *Server) handleLatest(c *gin.Context) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.history) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"statusCode": http.StatusNotFound, "statusDescription": "no run yet"})
		return
	}
	c.JSON(http.StatusOK, s.history[len(s.history)-1])
}

func (s *Server) handleHistory(c *gin.Context) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	payload := make([]gin.H, 0, len(s.history))
	for i := len(s.history) - 1; i >= 0; i-- {
		r := s.history[i]
		payload = append(payload, gin.H{
			"runId":             r.RunID,
			"statusCode":        r.StatusCode,
			"statusDescription": r.StatusDescription,
			"sources":           len(r.Sources),
		})
	}
	c.JSON(http.StatusOK, gin.H{"runs": payload})
}

func (s *Server) handleLogs(c *gin.Context) {
	filter, err := parseRunLogFilter(c.Query("run_id"), c.Query("source"), c.Query("level"), c.Query("limit"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"statusCode": http.StatusBadRequest, "statusDescription": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": s.logs.query(filter)})
}

func (s *Server) handleSystem(c *gin.Context) {
	snaps := s.resources.snapshot()
	if snaps == nil {
		snaps = []resourceSnapshot{}
	}
	c.JSON(http.StatusOK, gin.H{"resources": snaps})
}

func (s *Server) remember(r models.RunResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, r)
	if len(s.history) > s.cfg.RunHistory {
		s.history = append([]models.RunResult(nil), s.history[len(s.history)-s.cfg.RunHistory:]...)
	}
}

func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "0.0.0.0:8080"
	}

	if strings.Contains(addr, "://") {
		if parsed, err := url.Parse(addr); err == nil && parsed.Host != "" {
			addr = parsed.Host
		}
	}

	host, port, err := net.SplitHostPort(addr)
	if err == nil {
		if host == "" || host == "*" {
			host = "0.0.0.0"
		}
		if port == "" {
			port = "8080"
		}
		return net.JoinHostPort(host, port)
	}

	if !strings.Contains(addr, ":") {
		return net.JoinHostPort(addr, "8080")
	}
	return addr
}
