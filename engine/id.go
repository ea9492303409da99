package engine

import "github.com/oklog/ulid/v2"

// newTaskID generates a lexicographically sortable unique task ID.
func newTaskID() string {
	return ulid.Make().String()
}
