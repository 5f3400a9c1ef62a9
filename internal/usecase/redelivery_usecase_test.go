package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"peer-match/internal/domain/notification"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedelivery_ResendsFailed(t *testing.T) {
	f := newFixture(t)
	f.seedScenario()
	f.sender.FailFor(1, errors.New("chat unavailable"))

	m := f.pendingMatch(idA, idB)
	uc := newConsent(f, f.locker)
	_, err := submit(t, uc, m.ID, idA, true)
	require.NoError(t, err)
	_, err = submit(t, uc, m.ID, idB, true)
	require.NoError(t, err)
	require.Empty(t, f.sender.To(1))

	rd := NewRedeliveryUsecase(f.store.Outbox, f.dispatcher, f.locker, 3, nil)

	res, err := rd.Redeliver(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, RedeliveryResult{Sent: 0, Failed: 1}, res)

	f.sender.FailFor(1, nil)
	res, err = rd.Redeliver(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, RedeliveryResult{Sent: 1, Failed: 0}, res)
	assert.Len(t, f.sender.To(1), 1)

	res, err = rd.Redeliver(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, RedeliveryResult{}, res)
}

func TestRedelivery_StopsAtMaxAttempts(t *testing.T) {
	f := newFixture(t)
	f.sender.FailFor(9, errors.New("blocked"))

	_, err := f.dispatcher.Dispatch(context.Background(), []notification.Message{{
		Kind:      notification.KindReminder,
		Address:   9,
		Text:      "x",
		DedupeKey: "reminder:test",
	}})
	require.Error(t, err)

	rd := NewRedeliveryUsecase(f.store.Outbox, f.dispatcher, nil, 2, nil)
	res, err := rd.Redeliver(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)

	res, err = rd.Redeliver(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, RedeliveryResult{}, res)
}

func TestRedelivery_StalePendingOnly(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.store.Outbox.Enqueue(context.Background(), notification.Message{
		Kind: notification.KindReveal, Address: 5, Text: "fresh", DedupeKey: "fresh", CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	_, _, err = f.store.Outbox.Enqueue(context.Background(), notification.Message{
		Kind: notification.KindReveal, Address: 6, Text: "stale", DedupeKey: "stale", CreatedAt: time.Now().UTC().Add(-time.Hour),
	})
	require.NoError(t, err)

	rd := NewRedeliveryUsecase(f.store.Outbox, f.dispatcher, nil, 5, nil)
	res, err := rd.Redeliver(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent)
	assert.Len(t, f.sender.To(6), 1)
	assert.Empty(t, f.sender.To(5))
}

func TestRedelivery_ListFailure(t *testing.T) {
	f := newFixture(t)
	f.store.Fail("ListRetryable", errors.New("db down"))

	rd := NewRedeliveryUsecase(f.store.Outbox, f.dispatcher, nil, 5, nil)
	_, err := rd.Redeliver(context.Background(), 0)
	require.ErrorIs(t, err, ErrDependency)
}
