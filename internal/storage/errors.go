package storage

import "errors"

// ErrInvalidURL marks a malformed storage URL. Validation runs before any
// filesystem or metadata work, so a rejected call has no side effects.
var ErrInvalidURL = errors.New("invalid url")

// ErrNotFound marks a lookup miss on read. Deletes treat a miss as a
// benign no-op instead.
var ErrNotFound = errors.New("file not found")

// ErrExists marks a move whose destination URL is already taken.
var ErrExists = errors.New("file already exists")
