// Package audit implements the append-only audit trail.
//
// Every mutating operation in the lifecycle services records an Entry.
// Appends cross a deliberate best-effort boundary (Recorder): a failed
// durable write is counted and logged operationally but never fails
// the business operation that produced it. That availability-over-
// completeness trade-off is part of the core's contract, which is why
// the failure counter exists — a silently failing audit trail defeats
// its purpose.
//
// Entries are immutable once appended. The only delete path is the
// cascade of a tenant deletion; no update API exists at all. Queries
// are always scoped to a single tenant and gated on the security.view
// capability.
package audit
