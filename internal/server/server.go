// Package server exposes the webhook endpoint Telegram delivers updates to,
// plus health and metrics endpoints.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"togglbot/internal/metrics"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// maxBodySize caps webhook bodies; Telegram updates are far smaller.
const maxBodySize = 1 << 20

// UpdateHandler processes one decoded update.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, update tgbotapi.Update)
}

// Server is the webhook HTTP server.
type Server struct {
	port       int
	path       string
	dispatcher UpdateHandler
	logger     *slog.Logger
	server     *http.Server

	// Dispatches run detached from the request but are tracked so a
	// graceful shutdown can drain them, and cancelled once it gives up.
	dispatches     sync.WaitGroup
	dispatchCtx    context.Context
	stopDispatches context.CancelFunc
}

type Config struct {
	Port       int
	Path       string // webhook URL path (default: /webhook)
	Dispatcher UpdateHandler
	Logger     *slog.Logger
}

func New(cfg Config) *Server {
	if cfg.Path == "" {
		cfg.Path = "/webhook"
	}
	if cfg.Port == 0 {
		cfg.Port = 5000
	}
	s := &Server{
		port:       cfg.Port,
		path:       cfg.Path,
		dispatcher: cfg.Dispatcher,
		logger:     cfg.Logger,
	}
	s.dispatchCtx, s.stopDispatches = context.WithCancel(context.Background())
	return s
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleHome)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", metrics.Default.Handler())
	mux.HandleFunc(s.path, s.handleWebhook)

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Info("webhook server starting", "port", s.port, "path", s.path)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("webhook server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := s.server.Shutdown(shutdownCtx)

		// Let in-flight dispatches finish within the shutdown window,
		// then cancel whatever is still running.
		drained := make(chan struct{})
		go func() {
			s.dispatches.Wait()
			close(drained)
		}()
		select {
		case <-drained:
		case <-shutdownCtx.Done():
			s.logger.Warn("dispatches still running at shutdown deadline")
		}
		s.stopDispatches()
		return err
	case err := <-errCh:
		return fmt.Errorf("webhook server: %w", err)
	}
}

// handleWebhook accepts one update per call and answers 200 immediately;
// processing happens on its own goroutine so the messaging platform never
// sees a slow or failed response and re-delivers.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var update tgbotapi.Update
	if err := json.Unmarshal(body, &update); err != nil {
		s.logger.Warn("webhook body is not a Telegram update", "err", err)
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	s.logger.Debug("update received", "update_id", update.UpdateID)

	// The HTTP request ends as soon as we answer; the dispatch keeps
	// running on the server-scoped context, which shutdown cancels
	// after the drain window.
	s.dispatches.Add(1)
	go func() {
		defer s.dispatches.Done()
		s.dispatcher.HandleUpdate(s.dispatchCtx, update)
	}()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	fmt.Fprintln(w, "togglbot is running")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "ok")
}
