// Package webhook exposes the HTTP surface the remote store notifies:
// verification challenges, change notifications and a status endpoint.
package webhook

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"mediasync/pkg/models"
)

// Engine is the sync surface the webhook drives.
type Engine interface {
	ScheduleSync(direction models.Direction)
	Status() (models.RunState, error)
}

// Server listens for remote change notifications. A GET with a challenge
// query parameter is answered with the challenge verbatim, which is how
// the remote store verifies endpoint ownership. A POST schedules a
// download sync; notification payloads are intentionally not inspected,
// the sync pass itself discovers what changed.
type Server struct {
	addr   string
	engine Engine
	logger *slog.Logger

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	wg       sync.WaitGroup
}

func NewServer(addr string, engine Engine, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		addr:   addr,
		engine: engine,
		logger: logger.With("component", "webhook"),
	}
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/webhook", s.handleWebhook)
	mux.HandleFunc("/status", s.handleStatus)

	s.mu.Lock()
	s.listener = ln
	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Info("webhook listening", "addr", ln.Addr().String())
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("webhook server error", "error", err)
		}
	}()
	return nil
}

// Stop drains in-flight requests and shuts the server down.
func (s *Server) Stop() error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(ctx)
	s.wg.Wait()
	return err
}

// Addr reports the bound address, useful when addr was ":0".
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		// Ownership verification: echo the challenge exactly as sent.
		challenge := r.URL.Query().Get("challenge")
		if challenge == "" {
			http.Error(w, "missing challenge", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		if _, err := w.Write([]byte(challenge)); err != nil {
			s.logger.Warn("challenge response failed", "error", err)
		}
	case http.MethodPost:
		s.logger.Info("change notification received")
		s.engine.ScheduleSync(models.DirectionFromRemote)
		w.WriteHeader(http.StatusOK)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	state, err := s.engine.Status()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(state); err != nil {
		s.logger.Warn("status encode failed", "error", err)
	}
}
