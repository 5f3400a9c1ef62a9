package repository

import (
	"context"
	"time"

	"peer-match/internal/database"
	"peer-match/internal/domain/notification"

	"github.com/google/uuid"
)

type OutboxRepository interface {
	// Enqueue records msg unless a message with the same dedupe key exists, in which case
	// the existing message is returned with created=false.
	Enqueue(ctx context.Context, msg notification.Message) (notification.Message, bool, error)
	MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
	ListRetryable(ctx context.Context, maxAttempts int, createdBefore time.Time, limit int) ([]notification.Message, error)
}

type PostgresOutboxRepository struct {
	db database.DB
}

func NewPostgresOutboxRepository(db database.DB) *PostgresOutboxRepository {
	return &PostgresOutboxRepository{db: db}
}

const outboxColumns = `id, kind, user_id, address, text, dedupe_key, status, attempts, last_error, created_at, sent_at`

func (r *PostgresOutboxRepository) Enqueue(ctx context.Context, msg notification.Message) (notification.Message, bool, error) {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	if msg.Status == "" {
		msg.Status = notification.StatusPending
	}

	row := r.db.QueryRow(ctx,
		`INSERT INTO outbound_messages (id, kind, user_id, address, text, dedupe_key, status, attempts, last_error, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, 0, '', $8)
		 ON CONFLICT (dedupe_key) DO NOTHING
		 RETURNING `+outboxColumns,
		msg.ID, string(msg.Kind), msg.MemberID, msg.Address, msg.Text, msg.DedupeKey, string(msg.Status), msg.CreatedAt,
	)
	created, err := scanOutbox(row)
	if err == nil {
		return created, true, nil
	}
	if !isNoRows(err) {
		return notification.Message{}, false, err
	}

	row = r.db.QueryRow(ctx,
		`SELECT `+outboxColumns+` FROM outbound_messages WHERE dedupe_key = $1`,
		msg.DedupeKey,
	)
	existing, err := scanOutbox(row)
	if err != nil {
		return notification.Message{}, false, err
	}
	return existing, false, nil
}

func (r *PostgresOutboxRepository) MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.db.Exec(ctx,
		`UPDATE outbound_messages
		 SET status = $1, attempts = attempts + 1, last_error = '', sent_at = $2
		 WHERE id = $3`,
		string(notification.StatusSent), at, id,
	)
	return err
}

func (r *PostgresOutboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE outbound_messages
		 SET status = $1, attempts = attempts + 1, last_error = $2
		 WHERE id = $3 AND status <> $4`,
		string(notification.StatusFailed), reason, id, string(notification.StatusSent),
	)
	return err
}

func (r *PostgresOutboxRepository) ListRetryable(ctx context.Context, maxAttempts int, createdBefore time.Time, limit int) ([]notification.Message, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.Query(ctx,
		`SELECT `+outboxColumns+`
		 FROM outbound_messages
		 WHERE attempts < $1
		   AND (status = $2 OR (status = $3 AND created_at < $4))
		 ORDER BY created_at ASC, id ASC
		 LIMIT $5`,
		maxAttempts, string(notification.StatusFailed), string(notification.StatusPending), createdBefore, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]notification.Message, 0)
	for rows.Next() {
		m, err := scanOutbox(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func scanOutbox(row database.Row) (notification.Message, error) {
	var m notification.Message
	var kind, status string
	if err := row.Scan(&m.ID, &kind, &m.MemberID, &m.Address, &m.Text, &m.DedupeKey, &status, &m.Attempts, &m.LastError, &m.CreatedAt, &m.SentAt); err != nil {
		return notification.Message{}, err
	}
	m.Kind = notification.Kind(kind)
	m.Status = notification.Status(status)
	return m, nil
}
