package repository

import (
	"context"

	"peer-match/internal/database"
	"peer-match/internal/domain/member"

	"github.com/google/uuid"
)

// MemberRepository reads the member data owned by profile management. The only write is the
// Telegram sign-in sync of a member's name fields.
type MemberRepository interface {
	ListOptedIn(ctx context.Context) ([]uuid.UUID, error)
	FindAttributes(ctx context.Context, ids []uuid.UUID) ([]member.Member, error)
	FindProfiles(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]member.Profile, error)
	// UpsertTelegramUser creates or refreshes the member identified by p.MessagingAddress and
	// returns its id. Bio is left untouched.
	UpsertTelegramUser(ctx context.Context, p member.Profile) (uuid.UUID, error)
}

type PostgresMemberRepository struct {
	db database.DB
}

func NewPostgresMemberRepository(db database.DB) *PostgresMemberRepository {
	return &PostgresMemberRepository{db: db}
}

func (r *PostgresMemberRepository) ListOptedIn(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx,
		`SELECT mp.user_id
		 FROM match_preferences mp
		 JOIN users u ON u.id = mp.user_id
		 WHERE mp.opt_in = TRUE
		 ORDER BY mp.user_id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]uuid.UUID, 0)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PostgresMemberRepository) FindAttributes(ctx context.Context, ids []uuid.UUID) ([]member.Member, error) {
	keys := uuidStrings(ids)
	if len(keys) == 0 {
		return []member.Member{}, nil
	}

	rows, err := r.db.Query(ctx,
		`SELECT u.id, COALESCE(mp.opt_in, FALSE), COALESCE(u.tg_user_id, 0)
		 FROM users u
		 LEFT JOIN match_preferences mp ON mp.user_id = u.id
		 WHERE u.id = ANY($1::uuid[])
		 ORDER BY u.id`,
		keys,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[uuid.UUID]*member.Member, len(keys))
	order := make([]uuid.UUID, 0, len(keys))
	for rows.Next() {
		m := member.Member{Skills: member.NewTagSet(), Interests: member.NewTagSet()}
		if err := rows.Scan(&m.ID, &m.OptIn, &m.MessagingAddress); err != nil {
			return nil, err
		}
		byID[m.ID] = &m
		order = append(order, m.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := r.loadTags(ctx, `SELECT user_id, skill_id::text FROM user_skills WHERE user_id = ANY($1::uuid[])`, keys, func(m *member.Member, tag string) {
		m.Skills.Add(tag)
	}, byID); err != nil {
		return nil, err
	}
	if err := r.loadTags(ctx, `SELECT user_id, interest_id::text FROM user_interests WHERE user_id = ANY($1::uuid[])`, keys, func(m *member.Member, tag string) {
		m.Interests.Add(tag)
	}, byID); err != nil {
		return nil, err
	}

	out := make([]member.Member, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	return out, nil
}

func (r *PostgresMemberRepository) loadTags(ctx context.Context, query string, keys []string, add func(*member.Member, string), byID map[uuid.UUID]*member.Member) error {
	rows, err := r.db.Query(ctx, query, keys)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		var tag string
		if err := rows.Scan(&id, &tag); err != nil {
			return err
		}
		if m, ok := byID[id]; ok {
			add(m, tag)
		}
	}
	return rows.Err()
}

func (r *PostgresMemberRepository) FindProfiles(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]member.Profile, error) {
	keys := uuidStrings(ids)
	out := make(map[uuid.UUID]member.Profile, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, COALESCE(tg_user_id, 0), COALESCE(first_name, ''), COALESCE(last_name, ''), COALESCE(username, ''), COALESCE(bio, '')
		 FROM users
		 WHERE id = ANY($1::uuid[])`,
		keys,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var p member.Profile
		if err := rows.Scan(&p.ID, &p.MessagingAddress, &p.FirstName, &p.LastName, &p.Username, &p.Bio); err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PostgresMemberRepository) UpsertTelegramUser(ctx context.Context, p member.Profile) (uuid.UUID, error) {
	if p.MessagingAddress == 0 {
		return uuid.Nil, ErrMemberNotFound
	}

	var id uuid.UUID
	err := r.db.QueryRow(ctx,
		`INSERT INTO users (id, tg_user_id, first_name, last_name, username)
		 VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''))
		 ON CONFLICT (tg_user_id) DO UPDATE
		 SET first_name = EXCLUDED.first_name,
		     last_name = EXCLUDED.last_name,
		     username = EXCLUDED.username
		 RETURNING id`,
		uuid.New(), p.MessagingAddress, p.FirstName, p.LastName, p.Username,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}
