// Package validate contains simple input validation helpers.
package validate

import (
	"errors"
	"regexp"
)

// usernameRe enforces a conservative username pattern. Usernames become
// path segments in storage URLs, so slashes and dots are off the table.
var usernameRe = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]{0,63}$`)

// Username validates a username string for length and allowed characters.
func Username(s string) error {
	if !usernameRe.MatchString(s) {
		return errors.New("invalid username")
	}
	return nil
}
