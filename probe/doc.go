// Package probe drives concurrent optimistic-concurrency writers against
// a single DynamoDB table and reports whether the table's read path ever
// misbehaved.
//
// The table holds immutable versioned records: all records sharing an id
// form that entity's history, versions are contiguous integers starting
// at 0, and the greatest version is the current state. One "parent"
// entity is the sole contention point; each of N "child" entities belongs
// to exactly one worker. Every worker appends one version to its child
// and one to the parent, so a clean run ends with N+1 parent versions and
// 2 versions per child.
//
// # Protocol
//
// Each worker runs a read-modify-write loop: read the latest parent
// version, compute its successor, and submit it together with the child's
// successor as one TransactWriteItems call in which every put requires
// its (id, version) slot to be vacant. A cancellation caused by a failed
// condition or a write-write conflict means another worker won the slot;
// the worker re-reads the parent and resubmits. No locks are taken
// anywhere; the vacancy condition is the only mutual exclusion.
//
// # Failure classes
//
// Three failures are kept apart so a reader can tell "store misbehaved"
// from "end state incomplete" from "infrastructure error":
//
//   - [EmptyReadError] - a latest-version query returned nothing for an
//     id that is guaranteed to hold a committed record. The issuing
//     worker aborts without retrying; siblings are unaffected.
//   - [VerificationError] - an expected (id, version) pair was absent at
//     final check. Verification uses point lookups, not the latest-only
//     query, so it cannot mask the anomaly above.
//   - Everything else (connectivity, authorization, unexpected
//     cancellation codes) propagates immediately and aborts the run.
//
// Conflicts are not failures: [Probe.Commit] reports them as an
// unapplied transaction and the retry loop absorbs them.
package probe
