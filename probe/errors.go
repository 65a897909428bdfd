package probe

import (
	"errors"
	"fmt"
)

// ErrDirtyTable is returned by Seed when the table already contains
// probe records at the slots being seeded.
var ErrDirtyTable = errors.New("readprobe: table already contains probe records")

// EmptyReadError reports a latest-version query that returned no record
// for an id known to hold at least one committed version. Program order
// guarantees version 0 exists before any read is issued, so an empty
// result is never a legitimate miss; it signals a consistency violation
// in the store's read path. The issuing worker aborts without retrying.
type EmptyReadError struct {
	// ID is the partition the query returned nothing for.
	ID string
}

func (e *EmptyReadError) Error() string {
	return fmt.Sprintf("readprobe: read anomaly for id %q: latest query returned no record", e.ID)
}

// VerificationError reports an expected (id, version) pair that was
// absent at final check.
type VerificationError struct {
	ID      string `json:"id"`
	Version int    `json:"version"`
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("readprobe: expected record id %q version %d to exist", e.ID, e.Version)
}
