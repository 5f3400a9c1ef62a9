package repository

import (
	"context"
	"time"

	"peer-match/internal/database"
	"peer-match/internal/domain/reminder"

	"github.com/google/uuid"
)

type ReminderRepository interface {
	// ListDue returns up to limit scheduled events with RemindAt <= now that sort after the cursor,
	// ordered by (RemindAt, ID).
	ListDue(ctx context.Context, now time.Time, after reminder.Cursor, limit int) ([]reminder.Event, error)
	// MarkSent advances a scheduled event to sent. It reports false if the event was not scheduled.
	MarkSent(ctx context.Context, id uuid.UUID) (bool, error)
}

type PostgresReminderRepository struct {
	db database.DB
}

func NewPostgresReminderRepository(db database.DB) *PostgresReminderRepository {
	return &PostgresReminderRepository{db: db}
}

func (r *PostgresReminderRepository) ListDue(ctx context.Context, now time.Time, after reminder.Cursor, limit int) ([]reminder.Event, error) {
	if limit <= 0 {
		limit = 500
	}

	query := `SELECT id, match_id, starts_at, remind_at, status
		 FROM events
		 WHERE status = $1 AND remind_at <= $2
		 ORDER BY remind_at ASC, id ASC
		 LIMIT $3`
	args := []any{string(reminder.StatusScheduled), now, limit}
	if !after.IsZero() {
		query = `SELECT id, match_id, starts_at, remind_at, status
		 FROM events
		 WHERE status = $1 AND remind_at <= $2 AND (remind_at, id) > ($4, $5)
		 ORDER BY remind_at ASC, id ASC
		 LIMIT $3`
		args = append(args, after.RemindAt, after.ID)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]reminder.Event, 0)
	for rows.Next() {
		var e reminder.Event
		var status string
		if err := rows.Scan(&e.ID, &e.MatchID, &e.StartsAt, &e.RemindAt, &status); err != nil {
			return nil, err
		}
		e.Status = reminder.Status(status)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PostgresReminderRepository) MarkSent(ctx context.Context, id uuid.UUID) (bool, error) {
	n, err := r.db.Exec(ctx,
		`UPDATE events SET status = $1 WHERE id = $2 AND status = $3`,
		string(reminder.StatusSent), id, string(reminder.StatusScheduled),
	)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
