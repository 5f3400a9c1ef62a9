package seeder

import (
	"context"
	"fmt"

	"peer-match/internal/database"

	"github.com/google/uuid"
)

// demoNamespace keeps demo member IDs stable across runs.
var demoNamespace = uuid.MustParse("5b0f6c1e-3b7a-4f4e-9d7b-6d1f0a2c8e41")

type DemoMember struct {
	TelegramID int64
	FirstName  string
	Username   string
	Bio        string
	Skills     []string
	Interests  []string
}

func (m DemoMember) ID() uuid.UUID {
	return uuid.NewSHA1(demoNamespace, []byte(fmt.Sprintf("tg:%d", m.TelegramID)))
}

func DemoMembers() []DemoMember {
	return []DemoMember{
		{TelegramID: 900001, FirstName: "Ada", Username: "ada_demo", Bio: "Backend, databases", Skills: []string{"go", "postgres"}, Interests: []string{"chess"}},
		{TelegramID: 900002, FirstName: "Bob", Username: "bob_demo", Bio: "Systems", Skills: []string{"go", "rust"}, Interests: []string{"chess", "hiking"}},
		{TelegramID: 900003, FirstName: "Cy", Bio: "Design", Skills: []string{"figma"}, Interests: []string{"photography"}},
		{TelegramID: 900004, FirstName: "Dee", Username: "dee_demo", Bio: "Product design", Skills: []string{"figma", "research"}, Interests: []string{"photography"}},
	}
}

// DemoMembersSeeder inserts opted-in members for local runs. Existing rows are left alone.
type DemoMembersSeeder struct {
	Members []DemoMember
}

func (DemoMembersSeeder) Name() string { return "demo_members" }

func (s DemoMembersSeeder) Run(ctx context.Context, db database.DB) error {
	if err := EnsureTableColumns(ctx, db, "users", "id", "tg_user_id", "first_name", "username", "bio"); err != nil {
		return err
	}
	if err := EnsureTableColumns(ctx, db, "match_preferences", "user_id", "opt_in"); err != nil {
		return err
	}

	return database.WithTx(ctx, db, func(q database.Querier) error {
		for _, m := range s.Members {
			id := m.ID()
			if _, err := q.Exec(
				ctx,
				`INSERT INTO users (id, tg_user_id, first_name, username, bio) VALUES ($1, $2, $3, NULLIF($4, ''), $5) ON CONFLICT DO NOTHING`,
				id, m.TelegramID, m.FirstName, m.Username, m.Bio,
			); err != nil {
				return err
			}
			if _, err := q.Exec(ctx, `INSERT INTO match_preferences (user_id, opt_in) VALUES ($1, TRUE) ON CONFLICT DO NOTHING`, id); err != nil {
				return err
			}
			for _, sk := range m.Skills {
				if _, err := q.Exec(ctx, `INSERT INTO user_skills (user_id, skill_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, id, sk); err != nil {
					return err
				}
			}
			for _, in := range m.Interests {
				if _, err := q.Exec(ctx, `INSERT INTO user_interests (user_id, interest_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, id, in); err != nil {
					return err
				}
			}
		}
		return nil
	})
}
