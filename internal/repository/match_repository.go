package repository

import (
	"context"
	"fmt"
	"time"

	"peer-match/internal/database"
	"peer-match/internal/domain/match"

	"github.com/google/uuid"
)

type MatchRepository interface {
	// CreateMatches inserts every pair as a pending match, all or nothing.
	CreateMatches(ctx context.Context, pairs []match.CandidatePair, createdAt time.Time) ([]uuid.UUID, error)
	RecentPairs(ctx context.Context, since time.Time) (match.PairSet, error)
	GetByID(ctx context.Context, id uuid.UUID) (match.Match, error)
	ListByMember(ctx context.Context, memberID uuid.UUID) ([]match.Match, error)
	// TransitionStatus moves a match from one status to another only if it is still in from.
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to match.Status) (bool, error)
}

type PostgresMatchRepository struct {
	db database.DB
}

func NewPostgresMatchRepository(db database.DB) *PostgresMatchRepository {
	return &PostgresMatchRepository{db: db}
}

func (r *PostgresMatchRepository) CreateMatches(ctx context.Context, pairs []match.CandidatePair, createdAt time.Time) ([]uuid.UUID, error) {
	if len(pairs) == 0 {
		return []uuid.UUID{}, nil
	}
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	ids := make([]uuid.UUID, 0, len(pairs))
	err := database.WithTx(ctx, r.db, func(q database.Querier) error {
		for _, p := range pairs {
			id := uuid.New()
			_, err := q.Exec(ctx,
				`INSERT INTO matches (id, user_a, user_b, score, status, created_at)
				 VALUES ($1, $2, $3, $4, $5, $6)`,
				id, p.MemberA, p.MemberB, p.Score, string(match.StatusPending), createdAt,
			)
			if err != nil {
				return fmt.Errorf("insert match %s/%s: %w", p.MemberA, p.MemberB, err)
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *PostgresMatchRepository) RecentPairs(ctx context.Context, since time.Time) (match.PairSet, error) {
	rows, err := r.db.Query(ctx,
		`SELECT user_a, user_b FROM matches WHERE created_at >= $1`,
		since,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := match.PairSet{}
	for rows.Next() {
		var a, b uuid.UUID
		if err := rows.Scan(&a, &b); err != nil {
			return nil, err
		}
		out.Add(a, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PostgresMatchRepository) GetByID(ctx context.Context, id uuid.UUID) (match.Match, error) {
	row := r.db.QueryRow(ctx,
		`SELECT id, user_a, user_b, score, status, created_at FROM matches WHERE id = $1`,
		id,
	)

	m, err := scanMatch(row)
	if err != nil {
		if isNoRows(err) {
			return match.Match{}, ErrMatchNotFound
		}
		return match.Match{}, err
	}
	return m, nil
}

func (r *PostgresMatchRepository) ListByMember(ctx context.Context, memberID uuid.UUID) ([]match.Match, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, user_a, user_b, score, status, created_at
		 FROM matches
		 WHERE user_a = $1 OR user_b = $1
		 ORDER BY created_at DESC, id ASC`,
		memberID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]match.Match, 0)
	for rows.Next() {
		m, err := scanMatch(rows)
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

func (r *PostgresMatchRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to match.Status) (bool, error) {
	n, err := r.db.Exec(ctx,
		`UPDATE matches SET status = $1 WHERE id = $2 AND status = $3`,
		string(to), id, string(from),
	)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func scanMatch(row database.Row) (match.Match, error) {
	var m match.Match
	var status string
	if err := row.Scan(&m.ID, &m.MemberA, &m.MemberB, &m.Score, &status, &m.CreatedAt); err != nil {
		return match.Match{}, err
	}
	m.Status = match.Status(status)
	return m, nil
}
