package storage

import "strconv"

// UserRef identifies a user either by database id or by username.
// It is resolved once at the operation boundary.
type UserRef struct {
	id   int64
	name string
	byID bool
}

// ByID references a user by database id.
func ByID(id int64) UserRef { return UserRef{id: id, byID: true} }

// ByName references a user by username.
func ByName(name string) UserRef { return UserRef{name: name} }

func (r UserRef) String() string {
	if r.byID {
		return "id:" + strconv.FormatInt(r.id, 10)
	}
	return "name:" + r.name
}
