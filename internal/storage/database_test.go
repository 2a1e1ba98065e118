// Package storage tests exercise the coordinator invariants: namespace
// containment, url/record uniqueness, and blob/metadata agreement.
package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/MenxLi/fss/internal/blob"
	"github.com/MenxLi/fss/internal/store"
)

func newTestDB(t *testing.T) (*Database, string) {
	t.Helper()
	dir := t.TempDir()
	meta, err := store.Open(context.Background(), filepath.Join(dir, "index.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	blobRoot := filepath.Join(dir, "files")
	lg := slog.New(slog.NewTextHandler(io.Discard, nil))
	db := New(meta, blob.New(blobRoot), lg)
	t.Cleanup(func() { _ = db.Close() })
	return db, blobRoot
}

func mustCreateUser(t *testing.T, db *Database, name string, admin bool) int64 {
	t.Helper()
	id, err := db.CreateUser(context.Background(), name, "hash-"+name, "cred-"+name, admin)
	if err != nil {
		t.Fatalf("CreateUser(%s): %v", name, err)
	}
	return id
}

// countBlobs walks the blob root and counts regular files.
func countBlobs(t *testing.T, root string) int {
	t.Helper()
	n := 0
	err := filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			n++
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		t.Fatalf("walk: %v", err)
	}
	return n
}

// TestSaveGetRoundTrip is the canonical scenario: save, read back, delete,
// read again.
func TestSaveGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	db, _ := newTestDB(t)
	mustCreateUser(t, db, "alice", false)

	rel, err := db.SaveFile(ctx, ByName("alice"), "/alice/notes.txt", []byte("hello"))
	if err != nil {
		t.Fatalf("SaveFile: %v", err)
	}
	if rel != "alice/notes.txt" {
		t.Fatalf("unexpected relative path %q", rel)
	}

	got, err := db.GetFile(ctx, "/alice/notes.txt")
	if err != nil {
		t.Fatalf("GetFile: %v", err)
	}
	if !bytes.Equal(got, []byte("hello")) {
		t.Fatalf("got %q", got)
	}

	deleted, err := db.DeleteFile(ctx, "/alice/notes.txt")
	if err != nil || !deleted {
		t.Fatalf("DeleteFile: deleted=%v err=%v", deleted, err)
	}
	if _, err := db.GetFile(ctx, "/alice/notes.txt"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// TestSaveFileByID resolves the owner through the id variant.
func TestSaveFileByID(t *testing.T) {
	ctx := context.Background()
	db, _ := newTestDB(t)
	id := mustCreateUser(t, db, "alice", false)

	if _, err := db.SaveFile(ctx, ByID(id), "/alice/a.txt", []byte("x")); err != nil {
		t.Fatalf("SaveFile: %v", err)
	}
	if _, err := db.GetFile(ctx, "/alice/a.txt"); err != nil {
		t.Fatalf("GetFile: %v", err)
	}
}

// TestInvalidURLsRejectedWithoutSideEffects checks the validation rule on
// every entry point: anything with ".." or without a leading slash fails
// fast, before any blob or row is touched.
func TestInvalidURLsRejectedWithoutSideEffects(t *testing.T) {
	ctx := context.Background()
	db, blobRoot := newTestDB(t)
	mustCreateUser(t, db, "alice", false)

	bad := []string{"/alice/../bob/secret", "alice/notes.txt", "/alice/..", "no-slash", ".."}
	for _, url := range bad {
		if _, err := db.SaveFile(ctx, ByName("alice"), url, []byte("x")); !errors.Is(err, ErrInvalidURL) {
			t.Fatalf("SaveFile(%q): expected ErrInvalidURL, got %v", url, err)
		}
		if _, err := db.GetFile(ctx, url); !errors.Is(err, ErrInvalidURL) {
			t.Fatalf("GetFile(%q): expected ErrInvalidURL, got %v", url, err)
		}
		if _, _, err := db.ReadFileStream(ctx, url); !errors.Is(err, ErrInvalidURL) {
			t.Fatalf("ReadFileStream(%q): expected ErrInvalidURL, got %v", url, err)
		}
		if _, err := db.DeleteFile(ctx, url); !errors.Is(err, ErrInvalidURL) {
			t.Fatalf("DeleteFile(%q): expected ErrInvalidURL, got %v", url, err)
		}
		if _, err := db.DeleteFiles(ctx, url); !errors.Is(err, ErrInvalidURL) {
			t.Fatalf("DeleteFiles(%q): expected ErrInvalidURL, got %v", url, err)
		}
	}
	if n := countBlobs(t, blobRoot); n != 0 {
		t.Fatalf("rejected calls must not write blobs, found %d", n)
	}
}

// TestSaveFileOutsideNamespace rejects a URL not under the owner's prefix.
func TestSaveFileOutsideNamespace(t *testing.T) {
	ctx := context.Background()
	db, blobRoot := newTestDB(t)
	mustCreateUser(t, db, "alice", false)

	if _, err := db.SaveFile(ctx, ByName("alice"), "/bob/secret", []byte("x")); !errors.Is(err, ErrInvalidURL) {
		t.Fatalf("expected ErrInvalidURL, got %v", err)
	}
	if n := countBlobs(t, blobRoot); n != 0 {
		t.Fatalf("no blob expected, found %d", n)
	}
}

// TestSaveFileUnknownUserIsNoop: an unresolved user makes save a silent
// no-op, by contract.
func TestSaveFileUnknownUserIsNoop(t *testing.T) {
	ctx := context.Background()
	db, blobRoot := newTestDB(t)

	rel, err := db.SaveFile(ctx, ByName("ghost"), "/ghost/x", []byte("x"))
	if err != nil {
		t.Fatalf("SaveFile: %v", err)
	}
	if rel != "" {
		t.Fatalf("expected empty path, got %q", rel)
	}
	if n := countBlobs(t, blobRoot); n != 0 {
		t.Fatalf("no blob expected, found %d", n)
	}
}

// TestDeleteFileIdempotent: deleting a missing URL is a no-op, twice.
func TestDeleteFileIdempotent(t *testing.T) {
	ctx := context.Background()
	db, _ := newTestDB(t)
	mustCreateUser(t, db, "alice", false)

	for i := 0; i < 2; i++ {
		deleted, err := db.DeleteFile(ctx, "/alice/nope.txt")
		if err != nil {
			t.Fatalf("DeleteFile #%d: %v", i+1, err)
		}
		if deleted {
			t.Fatalf("DeleteFile #%d: nothing should have been deleted", i+1)
		}
	}
}

// TestOverwriteKeepsSingleRecordAndBlob: saving to the same URL twice leaves
// exactly one record and one blob, holding the newer bytes.
func TestOverwriteKeepsSingleRecordAndBlob(t *testing.T) {
	ctx := context.Background()
	db, blobRoot := newTestDB(t)
	mustCreateUser(t, db, "alice", false)

	if _, err := db.SaveFile(ctx, ByName("alice"), "/alice/a.txt", []byte("old")); err != nil {
		t.Fatalf("SaveFile: %v", err)
	}
	if _, err := db.SaveFile(ctx, ByName("alice"), "/alice/a.txt", []byte("newer")); err != nil {
		t.Fatalf("SaveFile (overwrite): %v", err)
	}

	got, err := db.GetFile(ctx, "/alice/a.txt")
	if err != nil || string(got) != "newer" {
		t.Fatalf("GetFile: %q err=%v", got, err)
	}
	rec, ok, err := db.GetFileRecord(ctx, "/alice/a.txt")
	if err != nil || !ok {
		t.Fatalf("GetFileRecord: ok=%v err=%v", ok, err)
	}
	if rec.FileSize != int64(len("newer")) {
		t.Fatalf("size not updated: %+v", rec)
	}
	if n := countBlobs(t, blobRoot); n != 1 {
		t.Fatalf("expected exactly one blob, found %d", n)
	}
}

// TestReadFileStream returns the recorded size and the exact bytes.
func TestReadFileStream(t *testing.T) {
	ctx := context.Background()
	db, _ := newTestDB(t)
	mustCreateUser(t, db, "alice", false)

	payload := bytes.Repeat([]byte("abc"), 100)
	if _, err := db.SaveFile(ctx, ByName("alice"), "/alice/big.bin", payload); err != nil {
		t.Fatalf("SaveFile: %v", err)
	}

	size, stream, err := db.ReadFileStream(ctx, "/alice/big.bin")
	if err != nil {
		t.Fatalf("ReadFileStream: %v", err)
	}
	defer stream.Close()
	if size != int64(len(payload)) {
		t.Fatalf("size=%d want %d", size, len(payload))
	}
	got, err := io.ReadAll(stream)
	if err != nil || !bytes.Equal(got, payload) {
		t.Fatalf("stream mismatch err=%v", err)
	}
}

// TestDeleteFilesPrefix removes everything under a directory prefix while
// a sibling sharing the name prefix survives.
func TestDeleteFilesPrefix(t *testing.T) {
	ctx := context.Background()
	db, blobRoot := newTestDB(t)
	mustCreateUser(t, db, "alice", false)

	for _, url := range []string{"/alice/photos/1.jpg", "/alice/photos/2.jpg", "/alice/photos/3.jpg", "/alice/photosafe"} {
		if _, err := db.SaveFile(ctx, ByName("alice"), url, []byte("img")); err != nil {
			t.Fatalf("SaveFile(%s): %v", url, err)
		}
	}

	n, err := db.DeleteFiles(ctx, "/alice/photos/")
	if err != nil {
		t.Fatalf("DeleteFiles: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 deletions, got %d", n)
	}
	if _, err := db.GetFile(ctx, "/alice/photosafe"); err != nil {
		t.Fatalf("photosafe should survive a directory delete: %v", err)
	}
	if got := countBlobs(t, blobRoot); got != 1 {
		t.Fatalf("expected 1 remaining blob, found %d", got)
	}
}

// TestDeleteFilesBarePrefixIsCoarse documents the plain prefix match:
// without a trailing slash, /alice/photos also takes /alice/photosafe.
func TestDeleteFilesBarePrefixIsCoarse(t *testing.T) {
	ctx := context.Background()
	db, _ := newTestDB(t)
	mustCreateUser(t, db, "alice", false)

	for _, url := range []string{"/alice/photos/1.jpg", "/alice/photosafe"} {
		if _, err := db.SaveFile(ctx, ByName("alice"), url, []byte("img")); err != nil {
			t.Fatalf("SaveFile(%s): %v", url, err)
		}
	}
	n, err := db.DeleteFiles(ctx, "/alice/photos")
	if err != nil {
		t.Fatalf("DeleteFiles: %v", err)
	}
	if n != 2 {
		t.Fatalf("bare prefix matches photosafe too, expected 2, got %d", n)
	}
}

// TestDeleteUserRemovesEverything: files, blobs, account row, and the
// user's directory are all gone afterwards.
func TestDeleteUserRemovesEverything(t *testing.T) {
	ctx := context.Background()
	db, blobRoot := newTestDB(t)
	mustCreateUser(t, db, "alice", false)
	mustCreateUser(t, db, "bob", false)

	urls := []string{"/alice/a.txt", "/alice/b.txt"}
	for _, url := range urls {
		if _, err := db.SaveFile(ctx, ByName("alice"), url, []byte("data")); err != nil {
			t.Fatalf("SaveFile(%s): %v", url, err)
		}
	}
	if _, err := db.SaveFile(ctx, ByName("bob"), "/bob/keep.txt", []byte("keep")); err != nil {
		t.Fatalf("SaveFile bob: %v", err)
	}

	if err := db.DeleteUser(ctx, ByName("alice")); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}

	for _, url := range urls {
		if _, err := db.GetFile(ctx, url); !errors.Is(err, ErrNotFound) {
			t.Fatalf("GetFile(%s): expected ErrNotFound, got %v", url, err)
		}
	}
	if _, ok, _ := db.GetUser(ctx, ByName("alice")); ok {
		t.Fatalf("account row should be gone")
	}
	if _, err := os.Stat(filepath.Join(blobRoot, "alice")); !os.IsNotExist(err) {
		t.Fatalf("user directory should be gone")
	}
	if _, err := db.GetFile(ctx, "/bob/keep.txt"); err != nil {
		t.Fatalf("bob's file should survive: %v", err)
	}

	// deleting again is a no-op
	if err := db.DeleteUser(ctx, ByName("alice")); err != nil {
		t.Fatalf("DeleteUser (again): %v", err)
	}
}

// TestMoveFile re-keys a record and renames its blob together.
func TestMoveFile(t *testing.T) {
	ctx := context.Background()
	db, blobRoot := newTestDB(t)
	mustCreateUser(t, db, "alice", false)

	if _, err := db.SaveFile(ctx, ByName("alice"), "/alice/old/report.txt", []byte("body")); err != nil {
		t.Fatalf("SaveFile: %v", err)
	}
	if err := db.SetPermission(ctx, "/alice/old/report.txt", store.PermissionPrivate); err != nil {
		t.Fatalf("SetPermission: %v", err)
	}

	if err := db.MoveFile(ctx, "/alice/old/report.txt", "/alice/new/report.txt"); err != nil {
		t.Fatalf("MoveFile: %v", err)
	}

	if _, err := db.GetFile(ctx, "/alice/old/report.txt"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("old url should be gone, got %v", err)
	}
	got, err := db.GetFile(ctx, "/alice/new/report.txt")
	if err != nil || string(got) != "body" {
		t.Fatalf("GetFile after move: %q err=%v", got, err)
	}
	rec, ok, err := db.GetFileRecord(ctx, "/alice/new/report.txt")
	if err != nil || !ok {
		t.Fatalf("GetFileRecord: ok=%v err=%v", ok, err)
	}
	if rec.Permission != store.PermissionPrivate {
		t.Fatalf("permission must carry over: %+v", rec)
	}
	if countBlobs(t, blobRoot) != 1 {
		t.Fatalf("expected exactly one blob after move")
	}
}

// TestMoveFileGuards rejects bad sources and destinations without moving
// anything.
func TestMoveFileGuards(t *testing.T) {
	ctx := context.Background()
	db, _ := newTestDB(t)
	mustCreateUser(t, db, "alice", false)

	if _, err := db.SaveFile(ctx, ByName("alice"), "/alice/a.txt", []byte("a")); err != nil {
		t.Fatalf("SaveFile: %v", err)
	}
	if _, err := db.SaveFile(ctx, ByName("alice"), "/alice/b.txt", []byte("b")); err != nil {
		t.Fatalf("SaveFile: %v", err)
	}

	if err := db.MoveFile(ctx, "/alice/missing", "/alice/m2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing source: got %v", err)
	}
	if err := db.MoveFile(ctx, "/alice/a.txt", "/alice/b.txt"); !errors.Is(err, ErrExists) {
		t.Fatalf("taken destination: got %v", err)
	}
	if err := db.MoveFile(ctx, "/alice/a.txt", "/bob/a.txt"); !errors.Is(err, ErrInvalidURL) {
		t.Fatalf("destination outside namespace: got %v", err)
	}
	if err := db.MoveFile(ctx, "/alice/a.txt", "/alice/../b"); !errors.Is(err, ErrInvalidURL) {
		t.Fatalf("traversal destination: got %v", err)
	}

	// nothing moved
	if _, err := db.GetFile(ctx, "/alice/a.txt"); err != nil {
		t.Fatalf("source must be intact: %v", err)
	}
}

// TestSetPermission updates the record's access level.
func TestSetPermission(t *testing.T) {
	ctx := context.Background()
	db, _ := newTestDB(t)
	mustCreateUser(t, db, "alice", false)

	if _, err := db.SaveFile(ctx, ByName("alice"), "/alice/a.txt", []byte("x")); err != nil {
		t.Fatalf("SaveFile: %v", err)
	}
	if err := db.SetPermission(ctx, "/alice/a.txt", store.PermissionPrivate); err != nil {
		t.Fatalf("SetPermission: %v", err)
	}
	rec, _, _ := db.GetFileRecord(ctx, "/alice/a.txt")
	if rec.Permission != store.PermissionPrivate {
		t.Fatalf("permission not applied: %+v", rec)
	}
	if err := db.SetPermission(ctx, "/alice/missing", store.PermissionPrivate); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// TestSaveFileMarksActive bumps last_active on a successful write.
func TestSaveFileMarksActive(t *testing.T) {
	ctx := context.Background()
	db, _ := newTestDB(t)
	mustCreateUser(t, db, "alice", false)

	before, _, _ := db.GetUser(ctx, ByName("alice"))
	if _, err := db.SaveFile(ctx, ByName("alice"), "/alice/a", []byte("x")); err != nil {
		t.Fatalf("SaveFile: %v", err)
	}
	after, _, _ := db.GetUser(ctx, ByName("alice"))
	if after.LastActive < before.LastActive {
		t.Fatalf("last_active went backwards: %d -> %d", before.LastActive, after.LastActive)
	}
}
