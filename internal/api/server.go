// File: internal/api/server.go
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/vibepilot/api/schemas"
	"github.com/xkilldash9x/vibepilot/internal/agent"
	"github.com/xkilldash9x/vibepilot/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	defaultShutdownTimeout = 10 * time.Second
	requestTimeout         = 5 * time.Minute
)

// Agent is the controller surface served over HTTP. *agent.Controller
// satisfies it.
type Agent interface {
	Sessions() []schemas.Session
	Session(id string) (schemas.Session, error)
	NewChat(platform schemas.Platform) (schemas.Session, error)
	CreateProject(name, goal string, platform schemas.Platform) (schemas.Session, error)
	Delete(id string) (string, error)
	Select(id string) error
	ActiveID() string
	SendMessage(ctx context.Context, id, text string) error
	Start(id string) error
	Pause(id string) error
	Stop(id string) error
	Confirm(ctx context.Context, id string) error
	Cancel(id string) error
	Pending(id string) (agent.ConfirmationView, bool)
	Summarize(ctx context.Context, id string) (string, error)
	Events() *agent.EventBus
}

var _ Agent = (*agent.Controller)(nil)

// Server exposes the agent controller as a JSON API plus a websocket event
// stream.
type Server struct {
	agent           Agent
	cfg             config.ServerConfig
	defaultPlatform schemas.Platform
	logger          *zap.Logger
	upgrader        websocket.Upgrader

	closing   chan struct{}
	closeOnce sync.Once
	clients   sync.WaitGroup
}

// NewServer builds a server. New chats without an explicit platform use
// defaultPlatform.
func NewServer(a Agent, cfg config.ServerConfig, defaultPlatform schemas.Platform, logger *zap.Logger) *Server {
	s := &Server{
		agent:           a,
		cfg:             cfg,
		defaultPlatform: defaultPlatform,
		logger:          logger.Named("api"),
		closing:         make(chan struct{}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.originAllowed,
	}
	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.cors)

	r.Get("/healthz", s.handleHealth)

	r.Group(func(r chi.Router) {
		if s.cfg.JWTSecret != "" {
			r.Use(bearerAuth([]byte(s.cfg.JWTSecret), s.logger))
		}

		// Websocket upgrades stay outside the timeout and request logging
		// middleware, which wrap the response writer.
		r.Get("/ws", s.handleEvents)

		r.Group(func(r chi.Router) {
			r.Use(s.requestLogger)
			r.Use(middleware.Timeout(requestTimeout))
			s.registerRoutes(r)
		})
	})
	return r
}

// Run serves on cfg.Addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("API server listening.", zap.String("address", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		s.close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down API server...")
	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Hijacked websocket connections are not tracked by Shutdown.
	s.close()
	err := srv.Shutdown(shutdownCtx)
	s.clients.Wait()
	if err != nil {
		return fmt.Errorf("API server shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) close() {
	s.closeOnce.Do(func() { close(s.closing) })
}

func (s *Server) originAllowed(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(r) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}
