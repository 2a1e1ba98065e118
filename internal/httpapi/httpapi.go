// Package httpapi exposes the storage coordinator over HTTP. It maps bearer
// credentials to users, enforces the read-permission matrix, and translates
// storage errors into protocol responses. Storage semantics live in the
// coordinator; this layer only frames them.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/MenxLi/fss/internal/storage"
)

type Server struct {
	DB             *storage.Database
	BindAddr       string
	Port           int
	MaxUploadBytes int64
	Logger         *slog.Logger
}

// Handler builds the route table. Exposed separately from ListenAndServe so
// tests can drive it through httptest.
func (s *Server) Handler() http.Handler {
	if s.Logger == nil {
		s.Logger = slog.Default()
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/_api/whoami", s.withUser(s.handleWhoami))
	mux.HandleFunc("/_api/fmeta", s.withUser(s.handleFileMeta))
	mux.HandleFunc("/f/", s.withUser(s.handleFile))

	var h http.Handler = mux
	h = s.withRecover(h)
	h = s.withRequestLog(h)
	return h
}

// Serve runs the HTTP server until it fails or ctx is cancelled, in which
// case in-flight requests are drained before returning.
func (s *Server) Serve(ctx context.Context) error {
	if s.DB == nil {
		return errors.New("storage database is required")
	}
	if s.Logger == nil {
		s.Logger = slog.Default()
	}
	srv := s.httpServer()
	s.Logger.Info("http server listening", "addr", srv.Addr)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) httpServer() *http.Server {
	return &http.Server{
		Addr:              s.BindAddr + ":" + strconv.Itoa(s.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps a storage error onto an HTTP status.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrInvalidURL):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, storage.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, storage.ErrExists):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "server error"})
	}
}
