package usecase

import (
	"context"
	"fmt"
	"time"

	"peer-match/internal/logger"
	"peer-match/internal/repository"

	"go.uber.org/zap"
)

const (
	redeliveryLockKey = "lock:redelivery"
	// Pending messages younger than this may still be in flight.
	redeliveryStaleAfter = time.Minute
	redeliveryBatchSize  = 200
)

type RedeliveryResult struct {
	Sent   int
	Failed int
}

type RedeliveryUsecase interface {
	Redeliver(ctx context.Context, limit int) (RedeliveryResult, error)
}

type Redelivery struct {
	outbox      repository.OutboxRepository
	dispatcher  Dispatcher
	locker      Locker
	maxAttempts int
	logger      *zap.Logger
	now         func() time.Time
}

func NewRedeliveryUsecase(outbox repository.OutboxRepository, dispatcher Dispatcher, locker Locker, maxAttempts int, l *zap.Logger) *Redelivery {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Redelivery{
		outbox:      outbox,
		dispatcher:  dispatcher,
		locker:      locker,
		maxAttempts: maxAttempts,
		logger:      logger.OrNop(l),
		now:         time.Now,
	}
}

// Redeliver resends failed and stale pending outbox messages that have attempts left.
func (u *Redelivery) Redeliver(ctx context.Context, limit int) (RedeliveryResult, error) {
	if limit <= 0 || limit > redeliveryBatchSize {
		limit = redeliveryBatchSize
	}

	release, err := acquire(ctx, u.locker, redeliveryLockKey)
	if err != nil {
		return RedeliveryResult{}, fmt.Errorf("%w: redelivery", ErrBusy)
	}
	defer release()

	msgs, err := u.outbox.ListRetryable(ctx, u.maxAttempts, u.now().UTC().Add(-redeliveryStaleAfter), limit)
	if err != nil {
		return RedeliveryResult{}, fmt.Errorf("%w: list retryable messages: %w", ErrDependency, err)
	}

	var res RedeliveryResult
	for _, msg := range msgs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := u.dispatcher.Deliver(ctx, msg); err != nil {
			res.Failed++
			continue
		}
		res.Sent++
	}

	u.logger.Info("redelivery finished",
		zap.Int("candidates", len(msgs)),
		zap.Int("sent", res.Sent),
		zap.Int("failed", res.Failed),
	)
	return res, nil
}
