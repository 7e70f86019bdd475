package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"log/slog"

	"scribe/internal/api"
	"scribe/internal/config"
	"scribe/internal/logging"
	"scribe/internal/store"
)

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	if cfg == nil || d == nil {
		return nil, nil
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, nil
	}

	mux := http.NewServeMux()
	srv := &apiServer{
		bind:   bind,
		logger: logger,
		daemon: d,
	}

	mux.HandleFunc("/api/status", srv.requireReady(srv.handleStatus))
	mux.HandleFunc("/api/status/stream", srv.requireReady(srv.handleStatusStream))
	mux.HandleFunc("/api/sessions", srv.requireReady(srv.handleSessions))
	mux.HandleFunc("/api/sessions/", srv.requireReady(srv.handleSessionEvents))
	mux.HandleFunc("/api/queue", srv.requireReady(srv.handleQueue))
	mux.HandleFunc("/api/shutdown", srv.requireReady(srv.handleShutdown))

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

// addr reports the bound listener address, empty before start.
func (s *apiServer) addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// requireReady answers 503 with a retry hint until the core is
// initialized. The listener is up before the store so early callers see
// a deterministic response instead of connection refused.
func (s *apiServer) requireReady(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch s.daemon.State() {
		case StateStarting:
			w.Header().Set("Retry-After", "1")
			s.writeError(w, http.StatusServiceUnavailable, "daemon is starting")
			return
		case StateStopped:
			s.writeError(w, http.StatusServiceUnavailable, "daemon is stopped")
			return
		}
		next(w, r)
	}
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, s.daemon.Status(r.Context()))
}

// handleStatusStream pushes status snapshots as server-sent events. A new
// subscriber gets the current snapshot immediately, then every published
// change until it disconnects.
func (s *apiServer) handleStatusStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	bc := s.daemon.Broadcaster()
	id, events := bc.Subscribe()
	defer bc.Unsubscribe(id)

	writeEvent := func(snapshot any) bool {
		data, err := json.Marshal(snapshot)
		if err != nil {
			return false
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	if !writeEvent(bc.Last()) {
		return
	}
	for {
		select {
		case <-r.Context().Done():
			return
		case snapshot, ok := <-events:
			if !ok {
				return
			}
			if !writeEvent(snapshot) {
				return
			}
		}
	}
}

func (s *apiServer) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	records, err := s.daemon.Sessions(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := api.SessionListResponse{Sessions: make([]api.SessionRecord, 0, len(records))}
	for _, record := range records {
		resp.Sessions = append(resp.Sessions, api.FromSessionRecord(record))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	sessionID, tail, found := strings.Cut(rest, "/")
	if !found || tail != "events" || strings.TrimSpace(sessionID) == "" {
		s.writeError(w, http.StatusNotFound, "not found")
		return
	}

	var req api.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	item, err := s.daemon.Enqueue(r.Context(), sessionID, req.Project, req.Payload)
	if err != nil {
		if errors.Is(err, ErrNotReady) {
			w.Header().Set("Retry-After", "1")
			s.writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, api.SubmitResponse{Item: api.FromItem(item)})
}

func (s *apiServer) handleQueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var statuses []store.ItemStatus
	for _, value := range r.URL.Query()["status"] {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		status, ok := store.ParseItemStatus(trimmed)
		if !ok {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", trimmed))
			return
		}
		statuses = append(statuses, status)
	}

	items, err := s.daemon.QueueList(r.Context(), statuses)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := api.QueueListResponse{Items: make([]api.WorkItem, 0, len(items))}
	for _, item := range items {
		resp.Items = append(resp.Items, api.FromItem(item))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleShutdown(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "shutting down"})
	go func() {
		_ = s.daemon.Shutdown(context.Background())
	}()
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return logging.NewComponentLogger(s.logger, "api-server")
	}
	return logging.NewNop()
}
