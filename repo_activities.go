package soptrack

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ActivitiesRepository implements Ledger using Bun.
type ActivitiesRepository struct {
	db  *bun.DB
	now func() time.Time
}

var _ Ledger = (*ActivitiesRepository)(nil)

// ActivitiesOption customizes the repository.
type ActivitiesOption func(*ActivitiesRepository)

// WithActivitiesClock injects a custom clock (useful for tests).
func WithActivitiesClock(clock func() time.Time) ActivitiesOption {
	return func(r *ActivitiesRepository) {
		if clock != nil {
			r.now = clock
		}
	}
}

// NewActivitiesRepository creates a new ledger repository.
func NewActivitiesRepository(db *bun.DB, opts ...ActivitiesOption) *ActivitiesRepository {
	repo := &ActivitiesRepository{
		db:  db,
		now: time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(repo)
		}
	}
	return repo
}

// Record upserts a task completion keyed by (user_id, sop_type, task_id).
// A fresh triple inserts the full record; a repeat refreshes the
// completion timestamp and request metadata, leaving the description and
// identity fields untouched. Both statements are individually atomic, so
// two concurrent completions of the same triple still converge on one
// row: the losing insert falls through to the update path. On either
// outcome record reflects the stored row when Record returns.
func (r *ActivitiesRepository) Record(ctx context.Context, record *ActivityRecord) (ActivityOutcome, error) {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.CompletedAt.IsZero() {
		record.CompletedAt = r.now()
	}

	res, err := r.db.NewInsert().
		Model(record).
		On("CONFLICT (user_id, sop_type, task_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return "", WrapInternal(err, "failed to record activity")
	}

	if inserted, err := res.RowsAffected(); err == nil && inserted > 0 {
		return ActivityRecorded, nil
	}

	_, err = r.db.NewUpdate().
		Model((*ActivityRecord)(nil)).
		Set("completed_at = ?", record.CompletedAt).
		Set("ip_address = ?", record.IPAddress).
		Set("user_agent = ?", record.UserAgent).
		Set("session_id = ?", record.SessionID).
		Where("user_id = ? AND sop_type = ? AND task_id = ?",
			record.UserID, record.SopType, record.TaskID).
		Exec(ctx)
	if err != nil {
		return "", WrapInternal(err, "failed to refresh activity")
	}

	// reload so the caller sees the stored row: the original id and
	// description, not the submitted ones
	err = r.db.NewSelect().
		Model(record).
		Where("?TableAlias.user_id = ? AND ?TableAlias.sop_type = ? AND ?TableAlias.task_id = ?",
			record.UserID, record.SopType, record.TaskID).
		Scan(ctx)
	if err != nil {
		return "", WrapInternal(err, "failed to reload activity")
	}

	return ActivityUpdated, nil
}

// ListForUser returns the user's completions, newest first. sopType is
// optional.
func (r *ActivitiesRepository) ListForUser(ctx context.Context, userID uuid.UUID, sopType string) ([]*ActivityRecord, error) {
	return r.ListAll(ctx, ActivityFilter{
		SopType: sopType,
		UserID:  userID,
	})
}

// ListAll returns completions matching the filter, newest first.
func (r *ActivitiesRepository) ListAll(ctx context.Context, filter ActivityFilter) ([]*ActivityRecord, error) {
	var records []*ActivityRecord

	q := r.db.NewSelect().Model(&records)
	r.applyFilter(q, filter)

	err := q.Order("completed_at DESC").Scan(ctx)
	if err != nil {
		return nil, WrapInternal(err, "failed to list activities")
	}

	return records, nil
}

// Summarize rolls the filtered ledger up per account, counting distinct
// task ids. There is no task catalog to measure against, so
// CompletedTasks mirrors TotalTasks and the rate is always 100 for any
// account that appears at all.
func (r *ActivitiesRepository) Summarize(ctx context.Context, sopType string, sinceDays int) ([]*ActivitySummaryRow, error) {
	var rows []*ActivitySummaryRow

	q := r.db.NewSelect().
		Model((*ActivityRecord)(nil)).
		ColumnExpr("?TableAlias.user_id AS user_id").
		ColumnExpr("?TableAlias.username AS username").
		ColumnExpr("COUNT(DISTINCT ?TableAlias.task_id) AS total_tasks").
		GroupExpr("?TableAlias.user_id, ?TableAlias.username").
		OrderExpr("?TableAlias.username ASC")

	r.applyFilter(q, ActivityFilter{SopType: sopType, SinceDays: sinceDays})

	if err := q.Scan(ctx, &rows); err != nil {
		return nil, WrapInternal(err, "failed to summarize activities")
	}

	for _, row := range rows {
		row.CompletedTasks = row.TotalTasks
		if row.TotalTasks > 0 {
			row.CompletionRate = 100
		}
	}

	return rows, nil
}

func (r *ActivitiesRepository) applyFilter(q *bun.SelectQuery, filter ActivityFilter) {
	if filter.SopType != "" {
		q.Where("?TableAlias.sop_type = ?", filter.SopType)
	}
	if filter.UserID != uuid.Nil {
		q.Where("?TableAlias.user_id = ?", filter.UserID)
	}
	if filter.SinceDays > 0 {
		cutoff := r.now().AddDate(0, 0, -filter.SinceDays)
		q.Where("?TableAlias.completed_at >= ?", cutoff)
	}
}
