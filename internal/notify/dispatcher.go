package notify

import (
	"context"
	"time"

	"peer-match/internal/domain/notification"
	"peer-match/internal/logger"
	"peer-match/internal/metrics"
	"peer-match/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Dispatcher records outbound messages in the outbox and hands them to a Sender.
// Delivery is best effort: failures are recorded and returned, never retried inline.
type Dispatcher struct {
	outbox  repository.OutboxRepository
	sender  Sender
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

func NewDispatcher(outbox repository.OutboxRepository, sender Sender, m *metrics.Metrics, l *zap.Logger) *Dispatcher {
	return &Dispatcher{
		outbox:  outbox,
		sender:  sender,
		metrics: m,
		logger:  logger.OrNop(l),
		now:     time.Now,
	}
}

// Dispatch delivers msgs in order and returns how many were sent.
// Messages whose dedupe key was already delivered are skipped.
func (d *Dispatcher) Dispatch(ctx context.Context, msgs []notification.Message) (int, error) {
	sent := 0
	var errs error
	for _, msg := range msgs {
		stored, skip, err := d.record(ctx, msg)
		if err != nil {
			// The outbox is unavailable; still attempt the send so state changes are not left unannounced.
			d.logger.Warn("outbox enqueue failed, sending without record",
				zap.String("kind", string(msg.Kind)),
				zap.String("dedupe_key", msg.DedupeKey),
				zap.Error(err),
			)
		}
		if skip {
			d.logger.Debug("outbound message already delivered", zap.String("dedupe_key", msg.DedupeKey))
			continue
		}

		if err := d.Deliver(ctx, stored); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		sent++
	}
	return sent, errs
}

func (d *Dispatcher) record(ctx context.Context, msg notification.Message) (notification.Message, bool, error) {
	if d.outbox == nil {
		return msg, false, nil
	}
	stored, created, err := d.outbox.Enqueue(ctx, msg)
	if err != nil {
		return msg, false, err
	}
	if !created && stored.Status == notification.StatusSent {
		return stored, true, nil
	}
	return stored, false, nil
}

// Deliver sends one message and records the outcome in the outbox.
func (d *Dispatcher) Deliver(ctx context.Context, msg notification.Message) error {
	err := d.sender.Send(ctx, msg.Address, msg.Text)
	d.metrics.IncDelivery(string(msg.Kind), err == nil)

	if err != nil {
		d.logger.Warn("outbound message delivery failed",
			zap.String("kind", string(msg.Kind)),
			zap.String("member_id", msg.MemberID.String()),
			zap.String("dedupe_key", msg.DedupeKey),
			zap.Error(err),
		)
		if d.outbox != nil && msg.ID != uuid.Nil {
			if mErr := d.outbox.MarkFailed(ctx, msg.ID, err.Error()); mErr != nil {
				d.logger.Error("outbox mark failed error", zap.String("message_id", msg.ID.String()), zap.Error(mErr))
			}
		}
		return err
	}

	if d.outbox != nil && msg.ID != uuid.Nil {
		if mErr := d.outbox.MarkSent(ctx, msg.ID, d.now().UTC()); mErr != nil {
			d.logger.Error("outbox mark sent error", zap.String("message_id", msg.ID.String()), zap.Error(mErr))
		}
	}
	return nil
}
