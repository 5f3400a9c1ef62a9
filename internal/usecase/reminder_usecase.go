package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"peer-match/internal/domain/notification"
	"peer-match/internal/domain/reminder"
	"peer-match/internal/logger"
	"peer-match/internal/metrics"
	"peer-match/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	reminderSweepLockKey = "lock:reminder-sweep"
	reminderBatchSize    = 500
)

type ReminderSweepUsecase interface {
	Sweep(ctx context.Context, now time.Time) (int, error)
}

type ReminderSweep struct {
	events     repository.ReminderRepository
	matches    repository.MatchRepository
	members    repository.MemberRepository
	dispatcher Dispatcher
	renderer   MessageRenderer
	locker     Locker
	metrics    *metrics.Metrics
	logger     *zap.Logger
	batchSize  int
}

func NewReminderSweepUsecase(
	events repository.ReminderRepository,
	matches repository.MatchRepository,
	members repository.MemberRepository,
	dispatcher Dispatcher,
	renderer MessageRenderer,
	locker Locker,
	m *metrics.Metrics,
	l *zap.Logger,
) *ReminderSweep {
	return &ReminderSweep{
		events:     events,
		matches:    matches,
		members:    members,
		dispatcher: dispatcher,
		renderer:   renderer,
		locker:     locker,
		metrics:    m,
		logger:     logger.OrNop(l),
		batchSize:  reminderBatchSize,
	}
}

// Sweep sends a reminder to both parties of every due event and then marks the event sent.
// Events are read page by page in (remind_at, id) order; events left scheduled by a failure are
// passed over until the next sweep.
// Send and mark are not atomic, so a crash in between repeats the reminder on the next sweep.
// It returns the number of events marked sent.
func (u *ReminderSweep) Sweep(ctx context.Context, now time.Time) (int, error) {
	release, err := acquire(ctx, u.locker, reminderSweepLockKey)
	if err != nil {
		return 0, fmt.Errorf("%w: reminder sweep", ErrBusy)
	}
	defer release()

	now = now.UTC()

	var (
		cursor    reminder.Cursor
		due       int
		processed int
	)
	for {
		page, err := u.events.ListDue(ctx, now, cursor, u.batchSize)
		if err != nil {
			return processed, fmt.Errorf("%w: list due reminders: %w", ErrDependency, err)
		}
		due += len(page)

		for _, e := range page {
			if err := ctx.Err(); err != nil {
				return processed, err
			}
			ok, err := u.process(ctx, e, now)
			if err != nil {
				u.logger.Warn("reminder left scheduled",
					zap.String("event_id", e.ID.String()),
					zap.String("match_id", e.MatchID.String()),
					zap.Error(err),
				)
				continue
			}
			if ok {
				processed++
				u.metrics.IncReminderSent()
			}
		}

		if len(page) < u.batchSize {
			break
		}
		cursor = reminder.CursorOf(page[len(page)-1])
	}

	u.logger.Info("reminder sweep finished", zap.Int("due", due), zap.Int("sent", processed))
	return processed, nil
}

func (u *ReminderSweep) process(ctx context.Context, e reminder.Event, now time.Time) (bool, error) {
	m, err := u.matches.GetByID(ctx, e.MatchID)
	if err != nil {
		if errors.Is(err, repository.ErrMatchNotFound) {
			u.logger.Warn("reminder skipped, match missing", zap.String("event_id", e.ID.String()))
			return false, nil
		}
		return false, fmt.Errorf("load match: %w", err)
	}

	profiles, err := u.members.FindProfiles(ctx, []uuid.UUID{m.MemberA, m.MemberB})
	if err != nil {
		return false, fmt.Errorf("load profiles: %w", err)
	}

	text, err := u.renderer.Reminder(e)
	if err != nil {
		return false, fmt.Errorf("render reminder: %w", err)
	}

	msgs := make([]notification.Message, 0, 2)
	for _, id := range []uuid.UUID{m.MemberA, m.MemberB} {
		p := profileOrID(profiles, id)
		msgs = append(msgs, notification.Message{
			Kind:      notification.KindReminder,
			MemberID:  id,
			Address:   p.MessagingAddress,
			Text:      text,
			DedupeKey: notification.ReminderKey(e.ID, id, now),
		})
	}

	if sent, err := u.dispatcher.Dispatch(ctx, msgs); err != nil {
		u.logger.Warn("reminder delivery incomplete",
			zap.String("event_id", e.ID.String()),
			zap.Int("sent", sent),
			zap.Error(err),
		)
	}

	ok, err := u.events.MarkSent(ctx, e.ID)
	if err != nil {
		return false, fmt.Errorf("mark sent: %w", err)
	}
	return ok, nil
}
