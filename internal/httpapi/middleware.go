package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/MenxLi/fss/internal/store"
)

type ctxKey string

const ctxUser ctxKey = "user"

// requestUser returns the resolved caller; the anonymous sentinel when no
// credential was presented.
func requestUser(r *http.Request) *store.User {
	u, _ := r.Context().Value(ctxUser).(*store.User)
	if u == nil {
		anon := store.Anonymous
		return &anon
	}
	return u
}

// withUser resolves the caller from a bearer credential, in the
// Authorization header or the token query parameter. No credential maps to
// the anonymous sentinel; an unknown credential is a 401.
func (s *Server) withUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cred := bearerToken(r)
		if cred == "" {
			next(w, r)
			return
		}
		u, ok, err := s.DB.GetUserByCredential(r.Context(), cred)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "server error"})
			return
		}
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid token"})
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), ctxUser, u)))
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return r.URL.Query().Get("token")
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(p)
	w.bytes += int64(n)
	return n, err
}

func (s *Server) withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sr := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(sr, r)

		lvl := slog.LevelInfo
		if sr.status >= 500 {
			lvl = slog.LevelError
		} else if sr.status >= 400 {
			lvl = slog.LevelWarn
		}
		s.Logger.Log(r.Context(), lvl, "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sr.status,
			"bytes", sr.bytes,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// withRecover guards handlers against panics and returns a 500 response.
func (s *Server) withRecover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				s.Logger.Error("panic", "panic", v, "stack", string(debug.Stack()))
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "server error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
