package httpapi

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/MenxLi/fss/internal/storage"
	"github.com/MenxLi/fss/internal/store"
)

// handleFile serves GET/PUT/DELETE for /f/{url}. The storage URL is the
// request path with the /f prefix stripped, so it always begins with "/".
func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	url := strings.TrimPrefix(r.URL.Path, "/f")

	switch r.Method {
	case http.MethodGet:
		if strings.HasSuffix(url, "/") {
			s.listPath(w, r, url)
			return
		}
		s.serveFile(w, r, url)
	case http.MethodPut:
		s.putFile(w, r, url)
	case http.MethodDelete:
		s.deleteFile(w, r, url)
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

// listPath serves a one-level directory view for a trailing-slash URL:
// child directory names plus the records directly under the prefix. A
// credential is required; non-admins only see their own namespace, and the
// root view shows top-level directory names only.
func (s *Server) listPath(w http.ResponseWriter, r *http.Request, prefix string) {
	user := requestUser(r)
	if user.ID == store.Anonymous.ID {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "credential required"})
		return
	}

	if prefix == "/" {
		dirs := []string{user.Username}
		if user.IsAdmin {
			roots, err := s.DB.ListRoots(r.Context())
			if err != nil {
				writeError(w, err)
				return
			}
			dirs = roots
			if dirs == nil {
				dirs = []string{}
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"dirs": dirs, "files": []any{}})
		return
	}
	if !user.IsAdmin && !strings.HasPrefix(prefix, "/"+user.Username+"/") {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "permission denied"})
		return
	}

	records, err := s.DB.ListPath(r.Context(), prefix)
	if err != nil {
		writeError(w, err)
		return
	}
	dirs := []string{}
	seen := map[string]bool{}
	files := []map[string]any{}
	for _, rec := range records {
		rest := strings.TrimPrefix(rec.URL, prefix)
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			if d := rest[:i]; !seen[d] {
				seen[d] = true
				dirs = append(dirs, d)
			}
		} else {
			files = append(files, fileJSON(&rec))
		}
	}
	sort.Strings(dirs)
	writeJSON(w, http.StatusOK, map[string]any{"dirs": dirs, "files": files})
}

func (s *Server) serveFile(w http.ResponseWriter, r *http.Request, url string) {
	rec, ok, err := s.DB.GetFileRecord(r.Context(), url)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "file not found"})
		return
	}
	if !readAllowed(requestUser(r), rec) {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "permission denied"})
		return
	}

	size, stream, err := s.DB.ReadFileStream(r.Context(), url)
	if err != nil {
		writeError(w, err)
		return
	}
	defer stream.Close()

	fname := path.Base(url)
	download := r.URL.Query().Get("download") != ""
	ctype := ""
	if !download {
		ctype = mime.TypeByExtension(path.Ext(fname))
	}
	disposition := "inline"
	if ctype == "" {
		ctype = "application/octet-stream"
		disposition = "attachment"
	}
	w.Header().Set("content-type", ctype)
	w.Header().Set("content-length", strconv.FormatInt(size, 10))
	w.Header().Set("content-disposition", fmt.Sprintf("%s; filename=%q", disposition, fname))
	_, _ = io.Copy(w, stream)
}

// readAllowed is the read-permission matrix over the closed enum:
// private files are for the owner or an admin, protected files for any
// authenticated user, public files for anyone.
func readAllowed(u *store.User, rec *store.FileRecord) bool {
	switch rec.Permission {
	case store.PermissionPrivate:
		return u.IsAdmin || u.ID == rec.UserID
	case store.PermissionProtected:
		return u.ID != store.Anonymous.ID
	case store.PermissionPublic:
		return true
	}
	return false
}

// writeAllowed restricts writes and deletes to the authenticated owner
// whose username prefixes the target URL. The anonymous sentinel never
// writes.
func writeAllowed(u *store.User, url string) (int, bool) {
	if u.ID == store.Anonymous.ID {
		return http.StatusUnauthorized, false
	}
	if !strings.HasPrefix(url, "/"+u.Username+"/") {
		return http.StatusForbidden, false
	}
	return 0, true
}

func (s *Server) putFile(w http.ResponseWriter, r *http.Request, url string) {
	user := requestUser(r)
	if code, ok := writeAllowed(user, url); !ok {
		writeJSON(w, code, map[string]string{"error": "permission denied"})
		return
	}
	if s.MaxUploadBytes > 0 && r.ContentLength > s.MaxUploadBytes {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "file too large"})
		return
	}

	body := r.Body
	if s.MaxUploadBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, s.MaxUploadBytes)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "file too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "read body failed"})
		return
	}

	_, existed, err := s.DB.GetFileRecord(r.Context(), url)
	if err != nil {
		writeError(w, err)
		return
	}
	if existed {
		if _, err := s.DB.DeleteFile(r.Context(), url); err != nil {
			writeError(w, err)
			return
		}
	}
	if _, err := s.DB.SaveFile(r.Context(), storage.ByID(user.ID), url, data); err != nil {
		writeError(w, err)
		return
	}

	// 201 reports an overwrite, 200 a first write.
	status := http.StatusOK
	if existed {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]string{"url": url})
}

func (s *Server) deleteFile(w http.ResponseWriter, r *http.Request, url string) {
	user := requestUser(r)
	if code, ok := writeAllowed(user, url); !ok {
		writeJSON(w, code, map[string]string{"error": "permission denied"})
		return
	}

	// a trailing slash deletes everything under the prefix
	var deleted bool
	var err error
	if strings.HasSuffix(url, "/") {
		var n int
		n, err = s.DB.DeleteFiles(r.Context(), url)
		deleted = n > 0
	} else {
		deleted, err = s.DB.DeleteFile(r.Context(), url)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	if !deleted {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "file not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"ok": "1"})
}
