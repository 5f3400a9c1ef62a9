package usecase

import (
	"context"
	"time"

	"peer-match/internal/domain/member"
	"peer-match/internal/domain/notification"
	"peer-match/internal/domain/reminder"
)

// Locker serializes work that must not overlap. A non-nil error from Acquire means the lock is held.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
	AcquireWait(ctx context.Context, key string, ttl, poll time.Duration) (func(), error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, msgs []notification.Message) (int, error)
	Deliver(ctx context.Context, msg notification.Message) error
}

type MessageRenderer interface {
	Reveal(counterpart member.Profile) (string, error)
	Reminder(e reminder.Event) (string, error)
}

func acquire(ctx context.Context, l Locker, key string) (func(), error) {
	if l == nil {
		return func() {}, nil
	}
	return l.Acquire(ctx, key, 0)
}
