// Package storage coordinates the metadata catalog and the blob store into
// consistent file operations. All mutating calls funnel through Database;
// the two sub-stores are never handed out to callers.
package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/MenxLi/fss/internal/blob"
	"github.com/MenxLi/fss/internal/store"
)

type Database struct {
	meta  *store.Store
	blobs *blob.Store
	log   *slog.Logger
}

func New(meta *store.Store, blobs *blob.Store, log *slog.Logger) *Database {
	if log == nil {
		log = slog.Default()
	}
	return &Database{meta: meta, blobs: blobs, log: log}
}

// Commit flushes staged metadata writes.
func (d *Database) Commit(ctx context.Context) error { return d.meta.Commit(ctx) }

// Close tears down the metadata connection.
func (d *Database) Close() error { return d.meta.Close() }

// validateURL enforces the storage URL rule: the URL must start with "/"
// and must not contain ".." anywhere. This is a coarse traversal guard and
// runs before any filesystem interaction.
func validateURL(url string) error {
	if !strings.HasPrefix(url, "/") || strings.Contains(url, "..") {
		return fmt.Errorf("%w: %s", ErrInvalidURL, url)
	}
	return nil
}

func (d *Database) resolveUser(ctx context.Context, ref UserRef) (*store.User, bool, error) {
	if ref.byID {
		return d.meta.GetUserByID(ctx, ref.id)
	}
	return d.meta.GetUser(ctx, ref.name)
}

// SaveFile writes the blob and upserts its file record, in that order.
// The URL must live under the owner's namespace: /{username}/...
// An unresolvable user makes the call a silent no-op; the empty relative
// path reports that nothing was stored.
//
// The blob hits disk before the record is staged, so a metadata failure can
// leave an orphaned blob behind. That is the accepted partial-failure mode:
// a stale record pointing at a missing blob would be worse, because reads
// would surface it.
func (d *Database) SaveFile(ctx context.Context, ref UserRef, url string, data []byte) (string, error) {
	if err := validateURL(url); err != nil {
		return "", err
	}
	user, ok, err := d.resolveUser(ctx, ref)
	if err != nil {
		return "", err
	}
	if !ok {
		d.log.Debug("save for unknown user ignored", "user", ref.String(), "url", url)
		return "", nil
	}
	if !strings.HasPrefix(url, "/"+user.Username+"/") {
		return "", fmt.Errorf("%w: %s must start with /%s/", ErrInvalidURL, url, user.Username)
	}

	rel := strings.TrimPrefix(url, "/")
	if err := d.blobs.Write(rel, data); err != nil {
		return "", err
	}

	rec := store.FileRecord{
		URL:        url,
		UserID:     user.ID,
		FilePath:   rel,
		FileSize:   int64(len(data)),
		Permission: store.PermissionPublic,
	}
	if err := d.meta.SetFileRecord(ctx, rec); err != nil {
		return "", err
	}
	if err := d.meta.SetActive(ctx, user.Username); err != nil {
		return "", err
	}
	if err := d.meta.Commit(ctx); err != nil {
		return "", err
	}
	d.log.Info("file saved", "url", url, "size", len(data), "user", user.Username)
	return rel, nil
}

// GetFile returns the full blob contents for url.
func (d *Database) GetFile(ctx context.Context, url string) ([]byte, error) {
	if err := validateURL(url); err != nil {
		return nil, err
	}
	rec, ok, err := d.meta.GetFileRecord(ctx, url)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, url)
	}
	return d.blobs.Read(rec.FilePath)
}

// ReadFileStream returns the recorded size and a single-pass byte stream
// for large transfers. The caller closes the stream.
func (d *Database) ReadFileStream(ctx context.Context, url string) (int64, io.ReadCloser, error) {
	if err := validateURL(url); err != nil {
		return 0, nil, err
	}
	rec, ok, err := d.meta.GetFileRecord(ctx, url)
	if err != nil {
		return 0, nil, err
	}
	if !ok {
		return 0, nil, fmt.Errorf("%w: %s", ErrNotFound, url)
	}
	_, rc, err := d.blobs.Open(rec.FilePath)
	if err != nil {
		return 0, nil, err
	}
	return rec.FileSize, rc, nil
}

// DeleteFile removes the blob, then the record, then commits. The returned
// boolean reports whether anything existed; a missing URL is a no-op.
//
// Blob first: a record pointing at a just-deleted blob fails safe on read,
// whereas deleting the record first would strand a blob whose path is lost.
func (d *Database) DeleteFile(ctx context.Context, url string) (bool, error) {
	if err := validateURL(url); err != nil {
		return false, err
	}
	rec, ok, err := d.meta.GetFileRecord(ctx, url)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if err := d.blobs.Remove(rec.FilePath); err != nil {
		return false, err
	}
	if err := d.meta.DeleteFileRecord(ctx, url); err != nil {
		return false, err
	}
	if err := d.meta.Commit(ctx); err != nil {
		return false, err
	}
	d.log.Info("file deleted", "url", url)
	return true, nil
}

// DeleteFiles removes every file whose URL begins with prefix, tolerating
// blobs that are already gone. Matching is a coarse string prefix; pass a
// trailing slash for directory semantics.
func (d *Database) DeleteFiles(ctx context.Context, prefix string) (int, error) {
	if err := validateURL(prefix); err != nil {
		return 0, err
	}
	records, err := d.meta.ListURLPrefix(ctx, prefix)
	if err != nil {
		return 0, err
	}
	paths := make([]string, 0, len(records))
	for _, rec := range records {
		paths = append(paths, rec.FilePath)
	}
	if err := d.blobs.RemoveBatch(paths); err != nil {
		return 0, err
	}
	if err := d.meta.DeleteURLPrefix(ctx, prefix); err != nil {
		return 0, err
	}
	if err := d.meta.Commit(ctx); err != nil {
		return 0, err
	}
	if len(records) > 0 {
		d.log.Info("files deleted", "prefix", prefix, "count", len(records))
	}
	return len(records), nil
}

// DeleteUser removes all of the user's blobs and records, then the account
// row, then commits. An unresolvable user is a no-op. The user's directory
// is removed afterwards on a best-effort basis; its absence is tolerated.
func (d *Database) DeleteUser(ctx context.Context, ref UserRef) error {
	user, ok, err := d.resolveUser(ctx, ref)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	records, err := d.meta.ListUserFiles(ctx, user.ID)
	if err != nil {
		return err
	}
	paths := make([]string, 0, len(records))
	for _, rec := range records {
		paths = append(paths, rec.FilePath)
	}
	if err := d.blobs.RemoveBatch(paths); err != nil {
		return err
	}
	if err := d.meta.DeleteUserFiles(ctx, user.ID); err != nil {
		return err
	}
	if err := d.meta.DeleteUser(ctx, user.Username); err != nil {
		return err
	}
	if err := d.meta.Commit(ctx); err != nil {
		return err
	}
	d.log.Info("user deleted", "user", user.Username, "files", len(records))
	return d.blobs.RemoveDir(user.Username)
}

// MoveFile re-keys a file to a new URL, renaming the blob and updating the
// record in step, then commits. The destination must be free and must stay
// inside the owner's namespace; permission and creation time carry over.
func (d *Database) MoveFile(ctx context.Context, oldURL, newURL string) error {
	if err := validateURL(oldURL); err != nil {
		return err
	}
	if err := validateURL(newURL); err != nil {
		return err
	}
	rec, ok, err := d.meta.GetFileRecord(ctx, oldURL)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, oldURL)
	}
	owner, ok, err := d.meta.GetUserByID(ctx, rec.UserID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: owner of %s", ErrNotFound, oldURL)
	}
	if !strings.HasPrefix(newURL, "/"+owner.Username+"/") {
		return fmt.Errorf("%w: %s must start with /%s/", ErrInvalidURL, newURL, owner.Username)
	}
	if _, taken, err := d.meta.GetFileRecord(ctx, newURL); err != nil {
		return err
	} else if taken {
		return fmt.Errorf("%w: %s", ErrExists, newURL)
	}

	newRel := strings.TrimPrefix(newURL, "/")
	if err := d.blobs.Rename(rec.FilePath, newRel); err != nil {
		return err
	}
	if err := d.meta.MoveFileRecord(ctx, oldURL, newURL, newRel); err != nil {
		return err
	}
	if err := d.meta.Commit(ctx); err != nil {
		return err
	}
	d.log.Info("file moved", "from", oldURL, "to", newURL)
	return nil
}

// ListPath returns every record under a trailing-slash URL prefix.
// Read-only; callers shape the directory view.
func (d *Database) ListPath(ctx context.Context, prefix string) ([]store.FileRecord, error) {
	if err := validateURL(prefix); err != nil {
		return nil, err
	}
	return d.meta.ListURLPrefix(ctx, prefix)
}

// ListRoots returns the top-level directory names across all files.
// Read-only.
func (d *Database) ListRoots(ctx context.Context) ([]string, error) {
	return d.meta.ListRoots(ctx)
}

// SetPermission changes a file's read-access level and commits.
func (d *Database) SetPermission(ctx context.Context, url string, perm store.Permission) error {
	if err := validateURL(url); err != nil {
		return err
	}
	if _, ok, err := d.meta.GetFileRecord(ctx, url); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, url)
	}
	if err := d.meta.SetPermission(ctx, url, perm); err != nil {
		return err
	}
	return d.meta.Commit(ctx)
}

// GetUser resolves a user reference. Read-only.
func (d *Database) GetUser(ctx context.Context, ref UserRef) (*store.User, bool, error) {
	return d.resolveUser(ctx, ref)
}

// GetUserByCredential resolves a bearer credential to a user. Read-only.
func (d *Database) GetUserByCredential(ctx context.Context, credential string) (*store.User, bool, error) {
	return d.meta.GetUserByCredential(ctx, credential)
}

// GetFileRecord looks up file metadata by URL. Read-only.
func (d *Database) GetFileRecord(ctx context.Context, url string) (*store.FileRecord, bool, error) {
	if err := validateURL(url); err != nil {
		return nil, false, err
	}
	return d.meta.GetFileRecord(ctx, url)
}

// ListUsers returns all accounts. Read-only.
func (d *Database) ListUsers(ctx context.Context) ([]store.User, error) {
	return d.meta.ListUsers(ctx)
}

// CreateUser registers an account with a pre-hashed password and derived
// credential, and commits.
func (d *Database) CreateUser(ctx context.Context, username, password, credential string, isAdmin bool) (int64, error) {
	id, err := d.meta.CreateUser(ctx, username, password, credential, isAdmin)
	if err != nil {
		return 0, err
	}
	if err := d.meta.Commit(ctx); err != nil {
		return 0, err
	}
	d.log.Info("user created", "user", username, "admin", isAdmin)
	return id, nil
}

// SetUser updates an account's password, credential, and admin flag, and
// commits.
func (d *Database) SetUser(ctx context.Context, username, password, credential string, isAdmin bool) error {
	if err := d.meta.SetUser(ctx, username, password, credential, isAdmin); err != nil {
		return err
	}
	return d.meta.Commit(ctx)
}
