package store

import "github.com/oklog/ulid/v2"

// NewID returns a ULID. IDs sort lexicographically by creation time, which
// the roster query relies on to break ties between samples that share a
// timestamp.
func NewID() string {
	return ulid.Make().String()
}
