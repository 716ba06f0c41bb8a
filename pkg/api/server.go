// Package api serves health and ingest counters over HTTP.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"chairgate/pkg/ingest"
)

// StatsSource provides the counters reported by /api/stats. Either field may
// be nil when that transport is disabled.
type StatsSource struct {
	Stream   *ingest.StreamStats
	Datagram *ingest.DatagramStats
}

// Server is the read-only status API.
type Server struct {
	addr      string
	stats     StatsSource
	router    *gin.Engine
	server    *http.Server
	mu        sync.Mutex
	listener  net.Listener
	startTime time.Time
}

// NewServer creates a status API server. Default addr is "127.0.0.1:9100".
func NewServer(addr string, stats StatsSource) *Server {
	if addr == "" {
		addr = "127.0.0.1:9100"
	}
	s := &Server{
		addr:      addr,
		stats:     stats,
		startTime: time.Now(),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/api/health", s.handleHealth)
	r.GET("/api/stats", s.handleStats)
	return r
}

// Listen binds the API address.
func (s *Server) Listen() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()
	return nil
}

// Addr returns the bound address, or the configured one before Listen.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Serve answers requests until ctx is cancelled, then shuts down.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	listener := s.listener
	s.mu.Unlock()
	if listener == nil {
		return errors.New("api: Serve called before Listen")
	}

	s.server = &http.Server{
		Handler:           s.router,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- s.server.Serve(listener) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(s.startTime).Round(time.Second).String(),
	})
}

func (s *Server) handleStats(c *gin.Context) {
	body := gin.H{}
	if s.stats.Stream != nil {
		body["stream"] = s.stats.Stream.Snapshot()
	}
	if s.stats.Datagram != nil {
		body["datagram"] = s.stats.Datagram.Snapshot()
	}
	c.JSON(http.StatusOK, body)
}
