// Package store is the relational metadata catalog: user accounts and the
// file records that map storage URLs to on-disk blob paths.
package store

import "fmt"

// Permission is the read-access level attached to a file record.
type Permission int

const (
	PermissionPublic Permission = iota + 1
	PermissionProtected
	PermissionPrivate
)

// Valid reports whether p is one of the three known levels.
func (p Permission) Valid() bool {
	switch p {
	case PermissionPublic, PermissionProtected, PermissionPrivate:
		return true
	}
	return false
}

func (p Permission) String() string {
	switch p {
	case PermissionPublic:
		return "public"
	case PermissionProtected:
		return "protected"
	case PermissionPrivate:
		return "private"
	}
	return fmt.Sprintf("permission(%d)", int(p))
}

// ParsePermission maps a permission name to its enum value.
func ParsePermission(s string) (Permission, error) {
	switch s {
	case "public":
		return PermissionPublic, nil
	case "protected":
		return PermissionProtected, nil
	case "private":
		return PermissionPrivate, nil
	}
	return 0, fmt.Errorf("unknown permission %q", s)
}

// User is an account row. Password holds the argon2id PHC string; Credential
// is the deterministic bearer token derived from username and password.
type User struct {
	ID         int64
	Username   string
	Password   string
	Credential string
	IsAdmin    bool
	CreateTime int64
	LastActive int64
}

// Anonymous is the reserved sentinel for unauthenticated callers.
// It owns no files and may never write.
var Anonymous = User{ID: 0, Username: "anonymous"}

// FileRecord maps a storage URL to a blob inside the blob store root.
// FilePath is recorded at save time and never recomputed on read.
type FileRecord struct {
	URL        string
	UserID     int64
	FilePath   string
	FileSize   int64
	Permission Permission
	CreateTime int64
}
