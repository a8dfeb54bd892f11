// Package gateway serves the relay over WebSockets.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Youssefbenarbiya/booki-relay/internal/auth"
	"github.com/Youssefbenarbiya/booki-relay/internal/config"
	"github.com/Youssefbenarbiya/booki-relay/internal/relay"
	"github.com/Youssefbenarbiya/booki-relay/pkg/protocol"
)

// Server is the gateway server handling WebSocket and HTTP connections.
type Server struct {
	cfg         *config.Config
	engine      *relay.Engine
	rateLimiter *RateLimiter
	auth        auth.Authenticator

	upgrader websocket.Upgrader
	clients  map[string]*Client
	mu       sync.RWMutex
	draining atomic.Bool

	httpServer *http.Server
	mux        *http.ServeMux
}

// NewServer creates a gateway server. limiter is the same limiter the
// engine was built with, so config reloads can retune it; it may be nil.
func NewServer(cfg *config.Config, engine *relay.Engine, limiter *RateLimiter) *Server {
	s := &Server{
		cfg:         cfg,
		engine:      engine,
		rateLimiter: limiter,
		auth:        auth.New(cfg.Gateway.Token, cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.Audience),
		clients:     make(map[string]*Client),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// RateLimiter returns the server's rate limiter.
func (s *Server) RateLimiter() *RateLimiter { return s.rateLimiter }

// checkOrigin validates WebSocket connection origin against the allowed origins whitelist.
// If no origins are configured, all origins are allowed (dev mode).
// Empty Origin header (non-browser clients like the chat CLI) is always allowed.
func (s *Server) checkOrigin(r *http.Request) bool {
	allowed := s.cfg.AllowedOrigins()
	if len(allowed) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, a := range allowed {
		if origin == a || a == "*" {
			return true
		}
	}
	slog.Warn("security.cors_rejected", "origin", origin)
	return false
}

// authorize authenticates the upgrade and returns the connect parameters
// to use. A token bound to a subject fixes the identity: a missing identity
// parameter is filled from it, a different one is refused.
func (s *Server) authorize(r *http.Request) (url.Values, int) {
	query := r.URL.Query()
	if s.auth == nil {
		return query, http.StatusOK
	}
	claims, err := s.auth.Authenticate(r)
	if err != nil {
		slog.Warn("security.unauthorized", "remote", r.RemoteAddr, "error", err)
		return nil, http.StatusUnauthorized
	}
	if claims.Subject == "" {
		return query, http.StatusOK
	}
	switch identity := query.Get(protocol.ParamIdentity); identity {
	case "":
		query.Set(protocol.ParamIdentity, claims.Subject)
	case claims.Subject:
	default:
		slog.Warn("security.identity_mismatch", "remote", r.RemoteAddr, "identity", identity, "subject", claims.Subject)
		return nil, http.StatusForbidden
	}
	return query, http.StatusOK
}

// BuildMux creates and caches the HTTP mux with all routes registered.
// Call this before Start() if you need the mux for additional listeners (e.g. Tailscale).
func (s *Server) BuildMux() *http.ServeMux {
	if s.mux != nil {
		return s.mux
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	s.mux = mux
	return mux
}

// Start listens on the configured address and serves until ctx is done,
// then drains. It returns once the drain has finished.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Gateway.Host, s.cfg.Gateway.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("gateway listen: %w", err)
	}
	slog.Info("gateway starting", "addr", addr)
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done. Shutdown stops accepting, lets every
// connection finish its in-flight frame and closes the sockets, bounded by
// gateway.drain_timeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.httpServer = &http.Server{
		Handler:           s.BuildMux(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		<-ctx.Done()
		drainCtx, cancel := context.WithTimeout(context.Background(), s.cfg.DrainTimeout())
		defer cancel()
		s.draining.Store(true)
		s.httpServer.Shutdown(drainCtx)
		s.Drain(drainCtx)
	}()

	if err := s.httpServer.Serve(ln); err != http.ErrServerClosed {
		return fmt.Errorf("gateway server: %w", err)
	}
	<-drained
	return nil
}

// Drain closes every connected client after its in-flight frame. New
// upgrades are refused from the first call on.
func (s *Server) Drain(ctx context.Context) {
	s.draining.Store(true)

	s.mu.RLock()
	clients := make([]*Client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.RUnlock()

	slog.Info("gateway draining", "clients", len(clients))
	var wg sync.WaitGroup
	for _, c := range clients {
		wg.Add(1)
		go func(c *Client) {
			defer wg.Done()
			c.drain()
		}(c)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		slog.Info("gateway drained")
	case <-ctx.Done():
		slog.Warn("gateway drain timed out", "clients", len(clients))
		for _, c := range clients {
			c.abort()
		}
	}
}

// ApplyConfig takes over the hot-reloadable settings of a freshly loaded
// config.
func (s *Server) ApplyConfig(fresh *config.Config) {
	s.cfg.ApplyReloadable(fresh)
	if s.rateLimiter != nil {
		s.rateLimiter.SetRPM(s.cfg.RateLimitRPM())
	}
}

// handleWebSocket upgrades HTTP to WebSocket and manages the connection.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.draining.Load() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	query, status := s.authorize(r)
	if status != http.StatusOK {
		http.Error(w, http.StatusText(status), status)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}

	client := NewClient(conn, s, query)
	s.registerClient(client)

	defer func() {
		s.unregisterClient(client)
		client.Close()
	}()

	client.Run(r.Context())
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	n := len(s.clients)
	s.mu.RUnlock()

	status := "ok"
	if s.draining.Load() {
		status = "draining"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":        status,
		"protocol":      protocol.ProtocolVersion,
		"connections":   n,
		"conversations": s.engine.Hub().SlotCount(),
	})
}

func (s *Server) registerClient(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c.id] = c
	slog.Debug("client connected", "id", c.id)
}

func (s *Server) unregisterClient(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, c.id)
	slog.Debug("client disconnected", "id", c.id)
}

// StartTestServer creates a listener on 127.0.0.1:0 and returns the actual
// address and a start function. Used for integration tests.
func StartTestServer(s *Server, ctx context.Context) (addr string, start func()) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		panic("listen: " + err.Error())
	}
	addr = ln.Addr().String()
	start = func() {
		s.Serve(ctx, ln)
	}
	return addr, start
}
