package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const userColumns = "id, username, password, credential, is_admin, create_time, last_active"

// CreateUser inserts a new account and returns its assigned id.
// A duplicate username fails with ErrDuplicateUser.
func (s *Store) CreateUser(ctx context.Context, username, password, credential string, isAdmin bool) (int64, error) {
	if username == "" || password == "" || credential == "" {
		return 0, errors.New("username, password, and credential are required")
	}
	now := nowUnix()
	res, err := s.exec(ctx, `
INSERT INTO users(username, password, credential, is_admin, create_time, last_active)
VALUES(?, ?, ?, ?, ?, ?)
`, username, password, credential, boolToInt(isAdmin), now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%w: %s", ErrDuplicateUser, username)
		}
		return 0, err
	}
	return res.LastInsertId()
}

// SetUser replaces an account's password, credential, and admin flag.
func (s *Store) SetUser(ctx context.Context, username, password, credential string, isAdmin bool) error {
	if username == "" || password == "" || credential == "" {
		return errors.New("username, password, and credential are required")
	}
	_, err := s.exec(ctx, `
UPDATE users SET password=?, credential=?, is_admin=? WHERE username=?
`, password, credential, boolToInt(isAdmin), username)
	return err
}

// SetActive bumps the user's last_active timestamp.
func (s *Store) SetActive(ctx context.Context, username string) error {
	_, err := s.exec(ctx, `UPDATE users SET last_active=? WHERE username=?`, nowUnix(), username)
	return err
}

// DeleteUser removes the account row only; file records are the
// coordinator's responsibility.
func (s *Store) DeleteUser(ctx context.Context, username string) error {
	if username == "" {
		return errors.New("username is required")
	}
	_, err := s.exec(ctx, `DELETE FROM users WHERE username=?`, username)
	return err
}

// GetUser looks up an account by username.
// The boolean reports whether the account exists.
func (s *Store) GetUser(ctx context.Context, username string) (*User, bool, error) {
	return s.getUser(ctx, "SELECT "+userColumns+" FROM users WHERE username=?", username)
}

// GetUserByID looks up an account by id.
func (s *Store) GetUserByID(ctx context.Context, id int64) (*User, bool, error) {
	return s.getUser(ctx, "SELECT "+userColumns+" FROM users WHERE id=?", id)
}

// GetUserByCredential looks up an account by its bearer credential.
func (s *Store) GetUserByCredential(ctx context.Context, credential string) (*User, bool, error) {
	if credential == "" {
		return nil, false, nil
	}
	return s.getUser(ctx, "SELECT "+userColumns+" FROM users WHERE credential=?", credential)
}

func (s *Store) getUser(ctx context.Context, query string, arg any) (*User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var u User
	var isAdmin int
	err := s.conn.QueryRowContext(ctx, query, arg).
		Scan(&u.ID, &u.Username, &u.Password, &u.Credential, &isAdmin, &u.CreateTime, &u.LastActive)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	u.IsAdmin = isAdmin != 0
	return &u, true, nil
}

// ListUsers returns all accounts sorted by username.
func (s *Store) ListUsers(ctx context.Context) ([]User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.conn.QueryContext(ctx, "SELECT "+userColumns+" FROM users ORDER BY username ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var u User
		var isAdmin int
		if err := rows.Scan(&u.ID, &u.Username, &u.Password, &u.Credential, &isAdmin, &u.CreateTime, &u.LastActive); err != nil {
			return nil, err
		}
		u.IsAdmin = isAdmin != 0
		out = append(out, u)
	}
	return out, rows.Err()
}

// boolToInt maps booleans to SQLite-friendly integer flags.
func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
