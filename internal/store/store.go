package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// ErrDuplicateUser is returned when a username already exists.
var ErrDuplicateUser = errors.New("username already exists")

// Store holds the single metadata connection for the whole process.
// All writes are staged on an open transaction; nothing is durable until the
// caller invokes Commit. Reads on the same connection observe staged writes.
// A mutex serializes access so concurrent goroutines interleave only between
// whole statements.
type Store struct {
	db   *sql.DB
	conn *sql.Conn

	mu   sync.Mutex
	inTx bool
}

// Open opens (creating if needed) the catalog at path and applies migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("store path is required")
	}

	// modernc SQLite uses a URI-like DSN; plain file paths are ok.
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, conn: conn}, nil
}

// Commit makes all staged writes durable. A no-op when nothing is staged.
func (s *Store) Commit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.inTx {
		return nil
	}
	if _, err := s.conn.ExecContext(ctx, "COMMIT"); err != nil {
		return err
	}
	s.inTx = false
	return nil
}

// Close releases the connection. Uncommitted writes are discarded.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inTx {
		_, _ = s.conn.ExecContext(context.Background(), "ROLLBACK")
		s.inTx = false
	}
	err := s.conn.Close()
	if cerr := s.db.Close(); err == nil {
		err = cerr
	}
	return err
}

// begin lazily opens the staging transaction. Callers must hold s.mu.
func (s *Store) begin(ctx context.Context) error {
	if s.inTx {
		return nil
	}
	if _, err := s.conn.ExecContext(ctx, "BEGIN"); err != nil {
		return err
	}
	s.inTx = true
	return nil
}

// exec stages a write statement.
func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx); err != nil {
		return nil, err
	}
	return s.conn.ExecContext(ctx, query, args...)
}

// nowUnix returns the current Unix timestamp in seconds.
func nowUnix() int64 { return time.Now().Unix() }

// isUniqueViolation identifies SQLite uniqueness constraint errors.
// modernc/sqlite surfaces them as strings containing the constraint name.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "unique constraint failed") ||
		strings.Contains(s, "constraint_unique")
}
