// Package server exposes the local control-plane HTTP API: manual sends,
// health, and metrics. It binds to loopback by default and carries no auth.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"dimeagent/internal/domain"
	"dimeagent/internal/metrics"
	"dimeagent/internal/source"
)

const maxBodySize = 1 << 20 // 1MB

// Server is the control-plane HTTP listener. It shares the pipeline's
// notifier so manual sends travel the same outbound path as confirmations.
type Server struct {
	host      string
	port      int
	notifier  domain.Notifier
	collector *metrics.Collector
	logger    *slog.Logger
	server    *http.Server
	started   time.Time
}

type Config struct {
	Host      string
	Port      int
	Notifier  domain.Notifier
	Collector *metrics.Collector
	Logger    *slog.Logger
}

func New(cfg Config) *Server {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Collector == nil {
		cfg.Collector = metrics.NewCollector()
	}
	return &Server{
		host:      cfg.Host,
		port:      cfg.Port,
		notifier:  cfg.Notifier,
		collector: cfg.Collector,
		logger:    cfg.Logger,
	}
}

// Start serves until ctx is cancelled. It blocks; run it in its own
// goroutine next to the pipeline.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	s.started = time.Now()
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	s.logger.Info("control API started", "addr", addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(shutdownCtx)
	}()

	if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Handler builds the route table. Exposed separately so tests can drive it
// without a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("POST /api/send", s.handleSend)
	mux.Handle("GET /metrics", s.collector.Handler())
	return withCORS(mux)
}

// withCORS allows a local dashboard served from another port to call the
// API from the browser.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Access-Control-Allow-Origin", "*")
		rw.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		rw.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			rw.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(rw, r)
	})
}

func (s *Server) handleIndex(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, http.StatusOK, map[string]any{
		"service": "dimeagent",
		"endpoints": []string{
			"GET /api/health",
			"POST /api/send",
			"GET /metrics",
		},
	})
}

func (s *Server) handleHealth(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, http.StatusOK, map[string]any{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
	})
}

type sendRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	Message     string `json:"message"`
}

type sendResponse struct {
	Success bool   `json:"success"`
	SentAt  string `json:"sentAt"`
}

func (s *Server) handleSend(rw http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		writeJSON(rw, http.StatusBadRequest, map[string]string{"error": "bad request"})
		return
	}

	var req sendRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(rw, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if strings.TrimSpace(req.PhoneNumber) == "" {
		writeJSON(rw, http.StatusBadRequest, map[string]string{"error": "phoneNumber is required"})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeJSON(rw, http.StatusBadRequest, map[string]string{"error": "message is required"})
		return
	}

	to := source.NormalizePhone(req.PhoneNumber)
	if err := s.notifier.Send(r.Context(), to, req.Message); err != nil {
		s.logger.Error("manual send failed", "to", to, "err", err)
		writeJSON(rw, http.StatusBadGateway, map[string]string{"error": "send failed"})
		return
	}

	s.logger.Info("manual send delivered", "to", to, "len", len(req.Message))
	writeJSON(rw, http.StatusOK, sendResponse{
		Success: true,
		SentAt:  time.Now().UTC().Format(time.RFC3339),
	})
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	json.NewEncoder(rw).Encode(v)
}
