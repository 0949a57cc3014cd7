// Package soptrack provides account management and SOP activity tracking
// (bearer token issuance, stateful repositories, HTTP controllers) for
// teams that need an auditable record of completed procedure tasks.
//
// Accounts:
//   - Users carry a role (user or admin) and an active flag persisted via
//     Bun. Username and email uniqueness is enforced by the storage
//     layer, so concurrent registrations cannot create duplicates.
//   - Login issues an HS256 bearer token; every token verification
//     failure collapses into the same ErrTokenInvalid signal so callers
//     cannot distinguish expired, tampered, or foreign tokens.
//
// Activity ledger:
//   - ActivityRecord rows are keyed by the (account, sop_type, task_id)
//     triple. Reporting the same task again refreshes the completion
//     timestamp and request metadata but preserves the original
//     description, so repeated submissions stay idempotent.
//   - Ledger reporting covers per-account listings, fleet-wide filtered
//     listings, CSV export, and a per-account completion summary.
//
// Audit sinks:
//   - AuditSink is a light-weight emitter used by Auther and the admin
//     bootstrap to describe login and provisioning events. Sinks run
//     best-effort (errors are logged) so you can forward to a database
//     or queue without blocking authentication.
package soptrack
