package soptrack

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ActivityOutcome reports whether a task completion created a new ledger
// row or refreshed an existing one.
type ActivityOutcome string

const (
	// ActivityRecorded means a new row was inserted for the triple.
	ActivityRecorded ActivityOutcome = "recorded"
	// ActivityUpdated means the triple already existed and only its
	// completion timestamp and request metadata were refreshed.
	ActivityUpdated ActivityOutcome = "updated"
)

// ActivityRecord is one task completion. At most one row exists per
// (user, sop_type, task_id) triple; repeats refresh the existing row.
type ActivityRecord struct {
	bun.BaseModel `bun:"table:sop_activities,alias:act"`
	ID            uuid.UUID `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID        uuid.UUID `bun:"user_id,notnull,type:uuid" json:"user_id"`
	Username      string    `bun:"username,notnull" json:"username"`
	SopType       string    `bun:"sop_type,notnull" json:"sop_type"`
	TaskID        string    `bun:"task_id,notnull" json:"task_id"`
	Description   string    `bun:"description" json:"description,omitempty"`
	CompletedAt   time.Time `bun:"completed_at,notnull" json:"completed_at"`
	IPAddress     string    `bun:"ip_address" json:"ip_address,omitempty"`
	UserAgent     string    `bun:"user_agent" json:"user_agent,omitempty"`
	SessionID     string    `bun:"session_id" json:"session_id,omitempty"`
}

// ActivityFilter narrows ledger queries. Zero values mean "no filter";
// SinceDays <= 0 disables the time window.
type ActivityFilter struct {
	SopType   string
	UserID    uuid.UUID
	SinceDays int
}

// ActivitySummaryRow is the per-account rollup of distinct completed tasks.
//
// There is no independent task catalog to compare against, so
// CompletedTasks always equals TotalTasks and CompletionRate is 0 or 100.
type ActivitySummaryRow struct {
	UserID         uuid.UUID `json:"user_id"`
	Username       string    `json:"username"`
	TotalTasks     int       `json:"total_tasks"`
	CompletedTasks int       `json:"completed_tasks"`
	CompletionRate float64   `json:"completion_rate"`
}

// Ledger records and reports SOP task completions.
type Ledger interface {
	Record(ctx context.Context, record *ActivityRecord) (ActivityOutcome, error)
	ListForUser(ctx context.Context, userID uuid.UUID, sopType string) ([]*ActivityRecord, error)
	ListAll(ctx context.Context, filter ActivityFilter) ([]*ActivityRecord, error)
	Summarize(ctx context.Context, sopType string, sinceDays int) ([]*ActivitySummaryRow, error)
}

// AuditEventType enumerates supported audit categories.
type AuditEventType string

const (
	AuditEventLoginSuccess AuditEventType = "auth.login.success"
	AuditEventLoginFailure AuditEventType = "auth.login.failure"
	AuditEventAdminCreated AuditEventType = "admin.bootstrap.created"
)

// AuditEvent captures audit-friendly information about an action.
type AuditEvent struct {
	EventType  AuditEventType
	UserID     string
	Metadata   map[string]any
	OccurredAt time.Time
}

// AuditSink consumes audit events for telemetry purposes. Sinks run
// best-effort: errors are logged, never propagated to the caller.
type AuditSink interface {
	Record(ctx context.Context, event AuditEvent) error
}

// AuditSinkFunc adapts a function to the AuditSink interface.
type AuditSinkFunc func(ctx context.Context, event AuditEvent) error

// Record implements AuditSink.
func (f AuditSinkFunc) Record(ctx context.Context, event AuditEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopAuditSink struct{}

func (noopAuditSink) Record(context.Context, AuditEvent) error {
	return nil
}

func normalizeAuditSink(s AuditSink) AuditSink {
	if s == nil {
		return noopAuditSink{}
	}
	return s
}
