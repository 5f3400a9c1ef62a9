package usecase

import (
	"testing"
	"time"

	"peer-match/internal/config"
	"peer-match/internal/domain/match"
	"peer-match/internal/domain/member"
	"peer-match/internal/infrastructure/cache"
	"peer-match/internal/notify"
	"peer-match/internal/notify/notifytest"
	"peer-match/internal/repository/memstore"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

var (
	idA = uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	idB = uuid.MustParse("00000000-0000-0000-0000-00000000000b")
	idC = uuid.MustParse("00000000-0000-0000-0000-00000000000c")
	idD = uuid.MustParse("00000000-0000-0000-0000-00000000000d")
)

type fixture struct {
	store      *memstore.Store
	sender     *notifytest.Sender
	dispatcher *notify.Dispatcher
	templates  *notify.Templates
	locker     *cache.Redis
	redis      *miniredis.Miniredis
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	tpl, err := notify.NewTemplates(config.DefaultNotify())
	require.NoError(t, err)

	store := memstore.New()
	sender := notifytest.NewSender()
	return &fixture{
		store:      store,
		sender:     sender,
		dispatcher: notify.NewDispatcher(store.Outbox, sender, nil, nil),
		templates:  tpl,
		locker:     cache.NewRedisFromClient(client, 5*time.Second, nil),
		redis:      mr,
	}
}

// seedScenario stores the four reference members; A..D get messaging addresses 1..4.
func (f *fixture) seedScenario() {
	f.putMember(idA, 1, "Ada", "ada", []string{"s1", "s2"}, []string{"i1"})
	f.putMember(idB, 2, "Bob", "bob", []string{"s1", "s3"}, []string{"i1", "i2"})
	f.putMember(idC, 3, "Cy", "", []string{"s4"}, []string{"i3"})
	f.putMember(idD, 4, "Dee", "dee", []string{"s4", "s5"}, []string{"i3"})
}

func (f *fixture) putMember(id uuid.UUID, address int64, name, username string, skills, interests []string) {
	f.store.PutMember(
		member.Member{
			ID:               id,
			OptIn:            true,
			Skills:           member.NewTagSet(skills...),
			Interests:        member.NewTagSet(interests...),
			MessagingAddress: address,
		},
		member.Profile{FirstName: name, Username: username, Bio: name + " bio"},
	)
}

func (f *fixture) pendingMatch(a, b uuid.UUID) match.Match {
	m := match.Match{
		ID:        uuid.New(),
		MemberA:   a,
		MemberB:   b,
		Score:     0.4,
		Status:    match.StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	f.store.PutMatch(m)
	return m
}
