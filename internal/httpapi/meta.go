package httpapi

import (
	"net/http"

	"github.com/MenxLi/fss/internal/store"
)

// fileJSON shapes a file record for API responses.
func fileJSON(rec *store.FileRecord) map[string]any {
	return map[string]any{
		"url":         rec.URL,
		"user_id":     rec.UserID,
		"file_size":   rec.FileSize,
		"permission":  rec.Permission.String(),
		"create_time": rec.CreateTime,
	}
}

// handleWhoami returns the authenticated caller's account, with secrets
// redacted. Anonymous callers get a 401.
func (s *Server) handleWhoami(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	user := requestUser(r)
	if user.ID == store.Anonymous.ID {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "login required"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":          user.ID,
		"username":    user.Username,
		"is_admin":    user.IsAdmin,
		"create_time": user.CreateTime,
		"last_active": user.LastActive,
	})
}

// handleFileMeta reads (GET) or updates (POST) a file record's metadata.
// A POST may change the permission (perm), move the file (new_path), or
// both; the owner or an admin may do either.
func (s *Server) handleFileMeta(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("path")

	switch r.Method {
	case http.MethodGet:
		rec, ok, err := s.DB.GetFileRecord(r.Context(), url)
		if err != nil {
			writeError(w, err)
			return
		}
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "file not found"})
			return
		}
		writeJSON(w, http.StatusOK, fileJSON(rec))
	case http.MethodPost:
		user := requestUser(r)
		if user.ID == store.Anonymous.ID {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "login required"})
			return
		}
		rec, ok, err := s.DB.GetFileRecord(r.Context(), url)
		if err != nil {
			writeError(w, err)
			return
		}
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "file not found"})
			return
		}
		if !user.IsAdmin && user.ID != rec.UserID {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "permission denied"})
			return
		}
		permParam := r.URL.Query().Get("perm")
		newPath := r.URL.Query().Get("new_path")
		if permParam == "" && newPath == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "nothing to update"})
			return
		}
		if permParam != "" {
			perm, err := store.ParsePermission(permParam)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
				return
			}
			if err := s.DB.SetPermission(r.Context(), url, perm); err != nil {
				writeError(w, err)
				return
			}
		}
		if newPath != "" {
			if err := s.DB.MoveFile(r.Context(), url, newPath); err != nil {
				writeError(w, err)
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"ok": "1"})
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}
