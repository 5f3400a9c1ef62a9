package seeder

import (
	"context"
	"errors"
	"testing"

	"peer-match/internal/database"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubDB struct {
	database.DB
}

type recordingSeeder struct {
	name string
	err  error
	runs *[]string
}

func (s recordingSeeder) Name() string { return s.name }

func (s recordingSeeder) Run(context.Context, database.DB) error {
	*s.runs = append(*s.runs, s.name)
	return s.err
}

func TestRunner_Order(t *testing.T) {
	var runs []string
	r := Runner{Seeders: []Seeder{
		recordingSeeder{name: "a", runs: &runs},
		nil,
		recordingSeeder{name: "b", runs: &runs},
	}}

	require.NoError(t, r.Run(context.Background(), stubDB{}))
	assert.Equal(t, []string{"a", "b"}, runs)
}

func TestRunner_StopsOnError(t *testing.T) {
	var runs []string
	boom := errors.New("boom")
	r := Runner{Seeders: []Seeder{
		recordingSeeder{name: "a", err: boom, runs: &runs},
		recordingSeeder{name: "b", runs: &runs},
	}}

	err := r.Run(context.Background(), stubDB{})
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "seed a")
	assert.Equal(t, []string{"a"}, runs)
}

func TestRunner_NilDB(t *testing.T) {
	require.Error(t, Runner{}.Run(context.Background(), nil))
}

func TestDemoMembers_StableIDs(t *testing.T) {
	ms := DemoMembers()
	require.Len(t, ms, 4)

	seen := map[string]bool{}
	for _, m := range ms {
		assert.Equal(t, m.ID(), m.ID())
		assert.False(t, seen[m.ID().String()])
		seen[m.ID().String()] = true
	}
}

type columnsDB struct {
	database.Querier
	cols []string
}

func (d columnsDB) Query(context.Context, string, ...any) (database.Rows, error) {
	return &stringRows{vals: d.cols}, nil
}

type stringRows struct {
	vals []string
	i    int
}

func (r *stringRows) Close()     {}
func (r *stringRows) Err() error { return nil }
func (r *stringRows) Next() bool {
	r.i++
	return r.i <= len(r.vals)
}
func (r *stringRows) Scan(dest ...any) error {
	*(dest[0].(*string)) = r.vals[r.i-1]
	return nil
}

func TestEnsureTableColumns(t *testing.T) {
	db := columnsDB{cols: []string{"id", "tg_user_id", "first_name"}}

	require.NoError(t, EnsureTableColumns(context.Background(), db, "users", "id", "first_name"))

	err := EnsureTableColumns(context.Background(), db, "users", "id", "username", "bio")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "users.username, users.bio")

	require.Error(t, EnsureTableColumns(context.Background(), db, "", "id"))
	require.Error(t, EnsureTableColumns(context.Background(), db, "users", ""))
}
