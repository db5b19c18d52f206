package store

import "github.com/oklog/ulid/v2"

// NewID mints an identifier for matches, ledger rows, and history entries.
// ULIDs sort by mint time, which keeps the newest-first history queries on
// the primary key.
func NewID() string {
	return ulid.Make().String()
}
