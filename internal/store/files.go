package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
)

const fileColumns = "url, user_id, file_path, file_size, permission, create_time"

// SetFileRecord upserts the record keyed on its URL. An update overwrites
// owner, blob path, and size but keeps the original permission and
// creation time.
func (s *Store) SetFileRecord(ctx context.Context, rec FileRecord) error {
	if rec.URL == "" || rec.FilePath == "" {
		return errors.New("url and file path are required")
	}
	if !rec.Permission.Valid() {
		rec.Permission = PermissionPublic
	}
	_, err := s.exec(ctx, `
INSERT INTO files(url, user_id, file_path, file_size, permission, create_time)
VALUES(?, ?, ?, ?, ?, ?)
ON CONFLICT(url) DO UPDATE SET
  user_id=excluded.user_id, file_path=excluded.file_path, file_size=excluded.file_size
`, rec.URL, rec.UserID, rec.FilePath, rec.FileSize, int(rec.Permission), nowUnix())
	return err
}

// SetPermission changes the read-access level of an existing record.
func (s *Store) SetPermission(ctx context.Context, url string, perm Permission) error {
	if !perm.Valid() {
		return errors.New("invalid permission")
	}
	_, err := s.exec(ctx, `UPDATE files SET permission=? WHERE url=?`, int(perm), url)
	return err
}

// GetFileRecord looks up a record by exact URL.
// The boolean reports whether the record exists.
func (s *Store) GetFileRecord(ctx context.Context, url string) (*FileRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rec FileRecord
	var perm int
	err := s.conn.QueryRowContext(ctx, "SELECT "+fileColumns+" FROM files WHERE url=?", url).
		Scan(&rec.URL, &rec.UserID, &rec.FilePath, &rec.FileSize, &perm, &rec.CreateTime)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	rec.Permission = Permission(perm)
	return &rec, true, nil
}

// ListUserFiles returns every record owned by the user.
func (s *Store) ListUserFiles(ctx context.Context, userID int64) ([]FileRecord, error) {
	return s.listFiles(ctx, "SELECT "+fileColumns+" FROM files WHERE user_id=?", userID)
}

// ListURLPrefix returns every record whose URL begins with prefix.
// The match is a string prefix, so "/alice/photos" also matches
// "/alice/photosafe"; callers wanting directory semantics pass a
// trailing slash. LIKE metacharacters in the prefix are escaped and
// match literally.
func (s *Store) ListURLPrefix(ctx context.Context, prefix string) ([]FileRecord, error) {
	return s.listFiles(ctx, "SELECT "+fileColumns+" FROM files WHERE url LIKE ? ESCAPE '\\'", escapeLike(prefix)+"%")
}

// ListRoots returns the distinct top-level directory names across all
// recorded URLs, sorted.
func (s *Store) ListRoots(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.conn.QueryContext(ctx, `
SELECT DISTINCT substr(url, 2, instr(substr(url, 2), '/') - 1) AS root
FROM files ORDER BY root ASC
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var root string
		if err := rows.Scan(&root); err != nil {
			return nil, err
		}
		out = append(out, root)
	}
	return out, rows.Err()
}

func (s *Store) listFiles(ctx context.Context, query string, arg any) ([]FileRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.conn.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FileRecord
	for rows.Next() {
		var rec FileRecord
		var perm int
		if err := rows.Scan(&rec.URL, &rec.UserID, &rec.FilePath, &rec.FileSize, &perm, &rec.CreateTime); err != nil {
			return nil, err
		}
		rec.Permission = Permission(perm)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// MoveFileRecord re-keys a record to a new URL and blob path. Owner,
// size, permission, and creation time are untouched.
func (s *Store) MoveFileRecord(ctx context.Context, oldURL, newURL, newPath string) error {
	if oldURL == "" || newURL == "" || newPath == "" {
		return errors.New("old url, new url, and new path are required")
	}
	_, err := s.exec(ctx, `UPDATE files SET url=?, file_path=? WHERE url=?`, newURL, newPath, oldURL)
	return err
}

// DeleteFileRecord removes the record for url, if any.
func (s *Store) DeleteFileRecord(ctx context.Context, url string) error {
	_, err := s.exec(ctx, `DELETE FROM files WHERE url=?`, url)
	return err
}

// DeleteUserFiles removes every record owned by the user.
func (s *Store) DeleteUserFiles(ctx context.Context, userID int64) error {
	_, err := s.exec(ctx, `DELETE FROM files WHERE user_id=?`, userID)
	return err
}

// DeleteURLPrefix removes every record whose URL begins with prefix,
// with the same matching as ListURLPrefix.
func (s *Store) DeleteURLPrefix(ctx context.Context, prefix string) error {
	_, err := s.exec(ctx, `DELETE FROM files WHERE url LIKE ? ESCAPE '\'`, escapeLike(prefix)+"%")
	return err
}

// escapeLike makes a string safe for literal use in a LIKE pattern.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
