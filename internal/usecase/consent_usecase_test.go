package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"

	"peer-match/internal/config"
	"peer-match/internal/domain/match"
	"peer-match/internal/domain/notification"
	"peer-match/internal/notify"
	"peer-match/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newConsent(f *fixture, locker Locker) *Consent {
	return NewConsentUsecase(f.store.Matches, f.store.Consents, f.store.Members, f.dispatcher, f.templates, locker, nil, nil)
}

func submit(t *testing.T, uc *Consent, matchID, memberID uuid.UUID, consent bool) (match.Status, error) {
	t.Helper()
	return uc.SubmitConsent(context.Background(), SubmitConsentInput{MatchID: matchID, MemberID: memberID, Consent: consent})
}

func TestConsent_Errors(t *testing.T) {
	f := newFixture(t)
	f.seedScenario()
	m := f.pendingMatch(idA, idB)
	uc := newConsent(f, f.locker)

	tests := []struct {
		name    string
		matchID uuid.UUID
		member  uuid.UUID
		want    error
	}{
		{name: "no caller", matchID: m.ID, member: uuid.Nil, want: ErrUnauthorized},
		{name: "no match id", matchID: uuid.Nil, member: idA, want: ErrInvalidInput},
		{name: "unknown match", matchID: uuid.New(), member: idA, want: ErrMatchNotFound},
		{name: "not a party", matchID: m.ID, member: idC, want: ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := submit(t, uc, tt.matchID, tt.member, true)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Zero(t, f.store.ConsentCount(m.ID))
}

func TestConsent_MutualAcceptReveals(t *testing.T) {
	f := newFixture(t)
	f.seedScenario()
	m := f.pendingMatch(idA, idB)
	uc := newConsent(f, f.locker)

	st, err := submit(t, uc, m.ID, idA, true)
	require.NoError(t, err)
	assert.Equal(t, match.StatusPending, st)
	assert.Empty(t, f.sender.Sent())

	st, err = submit(t, uc, m.ID, idB, true)
	require.NoError(t, err)
	assert.Equal(t, match.StatusConsented, st)

	got, _ := f.store.Match(m.ID)
	assert.Equal(t, match.StatusConsented, got.Status)

	toA := f.sender.To(1)
	require.Len(t, toA, 1)
	assert.Contains(t, toA[0], "Bob")
	assert.Contains(t, toA[0], "https://t.me/bob")

	toB := f.sender.To(2)
	require.Len(t, toB, 1)
	assert.Contains(t, toB[0], "https://t.me/ada")
}

func TestConsent_RevealWithoutUsername(t *testing.T) {
	f := newFixture(t)
	f.seedScenario()
	m := f.pendingMatch(idA, idC)
	uc := newConsent(f, f.locker)

	_, err := submit(t, uc, m.ID, idC, true)
	require.NoError(t, err)
	_, err = submit(t, uc, m.ID, idA, true)
	require.NoError(t, err)

	toA := f.sender.To(1)
	require.Len(t, toA, 1)
	assert.Contains(t, toA[0], config.DefaultNoUsernameText)
}

func TestConsent_DeclineIdempotent(t *testing.T) {
	f := newFixture(t)
	f.seedScenario()
	m := f.pendingMatch(idA, idB)
	uc := newConsent(f, f.locker)

	for i := 0; i < 2; i++ {
		st, err := submit(t, uc, m.ID, idA, false)
		require.NoError(t, err)
		assert.Equal(t, match.StatusDeclined, st)
	}
	assert.Equal(t, 1, f.store.ConsentCount(m.ID))
	assert.Empty(t, f.sender.Sent())
}

func TestConsent_DeclineAfterOtherAccepted(t *testing.T) {
	f := newFixture(t)
	f.seedScenario()
	m := f.pendingMatch(idA, idB)
	uc := newConsent(f, f.locker)

	_, err := submit(t, uc, m.ID, idA, true)
	require.NoError(t, err)

	st, err := submit(t, uc, m.ID, idB, false)
	require.NoError(t, err)
	assert.Equal(t, match.StatusDeclined, st)
}

func TestConsent_DeclinePrecedence(t *testing.T) {
	f := newFixture(t)
	f.seedScenario()
	m := f.pendingMatch(idA, idB)
	uc := newConsent(f, f.locker)

	_, err := submit(t, uc, m.ID, idA, false)
	require.NoError(t, err)

	_, err = submit(t, uc, m.ID, idB, true)
	require.ErrorIs(t, err, ErrMatchClosed)

	_, err = submit(t, uc, m.ID, idA, true)
	require.ErrorIs(t, err, ErrMatchClosed)

	got, _ := f.store.Match(m.ID)
	assert.Equal(t, match.StatusDeclined, got.Status)
	assert.Empty(t, f.sender.Sent())
}

func TestConsent_TerminalConsented(t *testing.T) {
	f := newFixture(t)
	f.seedScenario()
	m := f.pendingMatch(idA, idB)
	uc := newConsent(f, f.locker)

	_, err := submit(t, uc, m.ID, idA, true)
	require.NoError(t, err)
	_, err = submit(t, uc, m.ID, idB, true)
	require.NoError(t, err)

	st, err := submit(t, uc, m.ID, idA, true)
	require.NoError(t, err)
	assert.Equal(t, match.StatusConsented, st)

	_, err = submit(t, uc, m.ID, idB, false)
	require.ErrorIs(t, err, ErrMatchClosed)

	assert.Len(t, f.sender.To(1), 1)
	assert.Len(t, f.sender.To(2), 1)
}

func TestConsent_ConcurrentConvergence(t *testing.T) {
	for _, tc := range []struct {
		name   string
		locked bool
	}{{"with lock", true}, {"compare-and-set only", false}} {
		t.Run(tc.name, func(t *testing.T) {
			for round := 0; round < 20; round++ {
				f := newFixture(t)
				f.seedScenario()
				m := f.pendingMatch(idA, idB)

				var locker Locker
				if tc.locked {
					locker = f.locker
				}
				uc := newConsent(f, locker)

				var wg sync.WaitGroup
				errs := make(chan error, 6)
				for _, id := range []uuid.UUID{idA, idB, idA, idB, idA, idB} {
					wg.Add(1)
					go func(id uuid.UUID) {
						defer wg.Done()
						_, err := uc.SubmitConsent(context.Background(), SubmitConsentInput{MatchID: m.ID, MemberID: id, Consent: true})
						errs <- err
					}(id)
				}
				wg.Wait()
				close(errs)
				for err := range errs {
					require.NoError(t, err)
				}

				got, _ := f.store.Match(m.ID)
				require.Equal(t, match.StatusConsented, got.Status)
				require.Len(t, f.sender.To(1), 1)
				require.Len(t, f.sender.To(2), 1)
				require.Equal(t, 2, f.store.ConsentCount(m.ID))
			}
		})
	}
}

// racingMatches lets another submission close the match just before the status compare-and-set.
type racingMatches struct {
	repository.MatchRepository
	close func()
}

func (r racingMatches) TransitionStatus(ctx context.Context, id uuid.UUID, from, to match.Status) (bool, error) {
	r.close()
	return r.MatchRepository.TransitionStatus(ctx, id, from, to)
}

// racingConsents lets another submission close the match just before a pending-only write.
type racingConsents struct {
	repository.ConsentRepository
	close func()
}

func (r racingConsents) UpsertWhilePending(ctx context.Context, rec match.ConsentRecord) (bool, error) {
	r.close()
	return r.ConsentRepository.UpsertWhilePending(ctx, rec)
}

func consentRecord(t *testing.T, f *fixture, matchID, memberID uuid.UUID) (match.ConsentRecord, bool) {
	t.Helper()
	records, err := f.store.Consents.ListByMatch(context.Background(), matchID)
	require.NoError(t, err)
	for _, r := range records {
		if r.MemberID == memberID {
			return r, true
		}
	}
	return match.ConsentRecord{}, false
}

func TestConsent_DeclineLosingToAcceptLeavesNoRecord(t *testing.T) {
	f := newFixture(t)
	f.seedScenario()
	m := f.pendingMatch(idA, idB)

	matches := racingMatches{MatchRepository: f.store.Matches, close: func() {
		closed := m
		closed.Status = match.StatusConsented
		f.store.PutMatch(closed)
	}}
	uc := NewConsentUsecase(matches, f.store.Consents, f.store.Members, f.dispatcher, f.templates, nil, nil, nil)

	_, err := submit(t, uc, m.ID, idB, false)
	require.ErrorIs(t, err, ErrMatchClosed)

	got, _ := f.store.Match(m.ID)
	assert.Equal(t, match.StatusConsented, got.Status)
	_, ok := consentRecord(t, f, m.ID, idB)
	assert.False(t, ok)
}

func TestConsent_DeclineLosingToDeclineStillRecorded(t *testing.T) {
	f := newFixture(t)
	f.seedScenario()
	m := f.pendingMatch(idA, idB)

	matches := racingMatches{MatchRepository: f.store.Matches, close: func() {
		closed := m
		closed.Status = match.StatusDeclined
		f.store.PutMatch(closed)
	}}
	uc := NewConsentUsecase(matches, f.store.Consents, f.store.Members, f.dispatcher, f.templates, nil, nil, nil)

	st, err := submit(t, uc, m.ID, idB, false)
	require.NoError(t, err)
	assert.Equal(t, match.StatusDeclined, st)

	rec, ok := consentRecord(t, f, m.ID, idB)
	require.True(t, ok)
	assert.False(t, rec.Consent)
}

func TestConsent_AcceptAfterConcurrentDecline(t *testing.T) {
	f := newFixture(t)
	f.seedScenario()
	m := f.pendingMatch(idA, idB)

	consents := racingConsents{ConsentRepository: f.store.Consents, close: func() {
		closed := m
		closed.Status = match.StatusDeclined
		f.store.PutMatch(closed)
	}}
	uc := NewConsentUsecase(f.store.Matches, consents, f.store.Members, f.dispatcher, f.templates, nil, nil, nil)

	_, err := submit(t, uc, m.ID, idA, true)
	require.ErrorIs(t, err, ErrMatchClosed)

	_, ok := consentRecord(t, f, m.ID, idA)
	assert.False(t, ok)
	assert.Empty(t, f.sender.Sent())
}

func TestConsent_DeclineRecordWriteRetried(t *testing.T) {
	f := newFixture(t)
	f.seedScenario()
	m := f.pendingMatch(idA, idB)
	uc := newConsent(f, f.locker)

	f.store.Fail("Upsert", errors.New("db down"))
	_, err := submit(t, uc, m.ID, idA, false)
	require.ErrorIs(t, err, ErrDependency)
	got, _ := f.store.Match(m.ID)
	assert.Equal(t, match.StatusDeclined, got.Status)

	f.store.Fail("Upsert", nil)
	st, err := submit(t, uc, m.ID, idA, false)
	require.NoError(t, err)
	assert.Equal(t, match.StatusDeclined, st)
	rec, ok := consentRecord(t, f, m.ID, idA)
	require.True(t, ok)
	assert.False(t, rec.Consent)
}

func TestConsent_RevealFailureKeepsState(t *testing.T) {
	f := newFixture(t)
	f.seedScenario()
	f.sender.FailFor(1, notify.ErrDelivery)
	m := f.pendingMatch(idA, idB)
	uc := newConsent(f, f.locker)

	_, err := submit(t, uc, m.ID, idA, true)
	require.NoError(t, err)
	st, err := submit(t, uc, m.ID, idB, true)
	require.NoError(t, err)
	assert.Equal(t, match.StatusConsented, st)

	assert.Empty(t, f.sender.To(1))
	assert.Len(t, f.sender.To(2), 1)

	var failed []notification.Message
	for _, msg := range f.store.Messages() {
		if msg.Status == notification.StatusFailed {
			failed = append(failed, msg)
		}
	}
	require.Len(t, failed, 1)
	assert.Equal(t, notification.RevealKey(m.ID, idA), failed[0].DedupeKey)
}

func TestConsent_DependencyErrors(t *testing.T) {
	for _, op := range []string{"GetByID", "Upsert", "ListByMatch", "TransitionStatus"} {
		t.Run(op, func(t *testing.T) {
			f := newFixture(t)
			f.seedScenario()
			m := f.pendingMatch(idA, idB)
			uc := newConsent(f, f.locker)

			_, err := submit(t, uc, m.ID, idA, true)
			require.NoError(t, err)

			f.store.Fail(op, errors.New("db down"))
			_, err = submit(t, uc, m.ID, idB, true)
			require.ErrorIs(t, err, ErrDependency)

			f.store.Fail(op, nil)
			st, err := submit(t, uc, m.ID, idB, true)
			require.NoError(t, err)
			assert.Equal(t, match.StatusConsented, st)
			assert.Len(t, f.sender.To(1), 1)
		})
	}
}

func TestConsent_ListMyMatches(t *testing.T) {
	f := newFixture(t)
	f.seedScenario()
	closed := f.pendingMatch(idA, idB)
	open := f.pendingMatch(idA, idC)
	uc := newConsent(f, f.locker)

	_, err := submit(t, uc, closed.ID, idA, true)
	require.NoError(t, err)
	_, err = submit(t, uc, closed.ID, idB, true)
	require.NoError(t, err)

	views, err := uc.ListMyMatches(context.Background(), idA)
	require.NoError(t, err)
	require.Len(t, views, 2)

	byID := map[uuid.UUID]MatchView{}
	for _, v := range views {
		byID[v.ID] = v
	}

	c := byID[closed.ID]
	assert.Equal(t, idB, c.CounterpartID)
	assert.Equal(t, "Bob", c.CounterpartName)
	assert.Equal(t, "https://t.me/bob", c.Contact)
	require.NotNil(t, c.MyConsent)
	assert.True(t, *c.MyConsent)

	o := byID[open.ID]
	assert.Equal(t, match.StatusPending, o.Status)
	assert.Empty(t, o.Contact)
	assert.Nil(t, o.MyConsent)

	_, err = uc.ListMyMatches(context.Background(), uuid.Nil)
	assert.ErrorIs(t, err, ErrUnauthorized)
}
