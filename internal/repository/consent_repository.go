package repository

import (
	"context"
	"time"

	"peer-match/internal/database"
	"peer-match/internal/domain/match"

	"github.com/google/uuid"
)

type ConsentRepository interface {
	// Upsert writes the record keyed by (match, member); the latest write wins.
	Upsert(ctx context.Context, rec match.ConsentRecord) error
	// UpsertWhilePending writes the record only while the match is pending and reports whether it did.
	UpsertWhilePending(ctx context.Context, rec match.ConsentRecord) (bool, error)
	ListByMatch(ctx context.Context, matchID uuid.UUID) ([]match.ConsentRecord, error)
}

type PostgresConsentRepository struct {
	db database.DB
}

func NewPostgresConsentRepository(db database.DB) *PostgresConsentRepository {
	return &PostgresConsentRepository{db: db}
}

func (r *PostgresConsentRepository) Upsert(ctx context.Context, rec match.ConsentRecord) error {
	if rec.ConsentedAt.IsZero() {
		rec.ConsentedAt = time.Now().UTC()
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO match_consents (match_id, user_id, consent, consented_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (match_id, user_id) DO UPDATE SET
			consent = EXCLUDED.consent,
			consented_at = EXCLUDED.consented_at`,
		rec.MatchID,
		rec.MemberID,
		rec.Consent,
		rec.ConsentedAt,
	)
	return err
}

func (r *PostgresConsentRepository) UpsertWhilePending(ctx context.Context, rec match.ConsentRecord) (bool, error) {
	if rec.ConsentedAt.IsZero() {
		rec.ConsentedAt = time.Now().UTC()
	}

	// FOR SHARE holds off a concurrent status change until this insert commits.
	n, err := r.db.Exec(ctx,
		`INSERT INTO match_consents (match_id, user_id, consent, consented_at)
		 SELECT m.id, $2::uuid, $3::boolean, $4::timestamptz
		 FROM matches m
		 WHERE m.id = $1 AND m.status = $5
		 FOR SHARE
		 ON CONFLICT (match_id, user_id) DO UPDATE SET
			consent = EXCLUDED.consent,
			consented_at = EXCLUDED.consented_at`,
		rec.MatchID,
		rec.MemberID,
		rec.Consent,
		rec.ConsentedAt,
		string(match.StatusPending),
	)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *PostgresConsentRepository) ListByMatch(ctx context.Context, matchID uuid.UUID) ([]match.ConsentRecord, error) {
	rows, err := r.db.Query(ctx,
		`SELECT match_id, user_id, consent, consented_at
		 FROM match_consents
		 WHERE match_id = $1
		 ORDER BY user_id`,
		matchID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]match.ConsentRecord, 0, 2)
	for rows.Next() {
		var rec match.ConsentRecord
		if err := rows.Scan(&rec.MatchID, &rec.MemberID, &rec.Consent, &rec.ConsentedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
