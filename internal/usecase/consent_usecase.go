package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"peer-match/internal/domain/match"
	"peer-match/internal/domain/member"
	"peer-match/internal/domain/notification"
	"peer-match/internal/logger"
	"peer-match/internal/metrics"
	"peer-match/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	consentLockWait = 3 * time.Second
	consentLockPoll = 20 * time.Millisecond
)

type SubmitConsentInput struct {
	MatchID  uuid.UUID
	MemberID uuid.UUID
	Consent  bool
}

// MatchView is one of a member's matches as seen by that member.
type MatchView struct {
	ID              uuid.UUID
	CounterpartID   uuid.UUID
	CounterpartName string
	Contact         string
	Score           float64
	Status          match.Status
	MyConsent       *bool
	CreatedAt       time.Time
}

type ConsentUsecase interface {
	SubmitConsent(ctx context.Context, in SubmitConsentInput) (match.Status, error)
	ListMyMatches(ctx context.Context, memberID uuid.UUID) ([]MatchView, error)
}

type Consent struct {
	matches    repository.MatchRepository
	consents   repository.ConsentRepository
	members    repository.MemberRepository
	dispatcher Dispatcher
	renderer   MessageRenderer
	locker     Locker
	metrics    *metrics.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

func NewConsentUsecase(
	matches repository.MatchRepository,
	consents repository.ConsentRepository,
	members repository.MemberRepository,
	dispatcher Dispatcher,
	renderer MessageRenderer,
	locker Locker,
	m *metrics.Metrics,
	l *zap.Logger,
) *Consent {
	return &Consent{
		matches:    matches,
		consents:   consents,
		members:    members,
		dispatcher: dispatcher,
		renderer:   renderer,
		locker:     locker,
		metrics:    m,
		logger:     logger.OrNop(l),
		now:        time.Now,
	}
}

// SubmitConsent records a member's decision and advances the match.
// A decline closes a pending match immediately. An accept closes it only once both parties
// accepted, and only the submission that performs that transition sends the reveal messages.
// Terminal matches accept a repeat of the same decision and reject the opposite one.
func (u *Consent) SubmitConsent(ctx context.Context, in SubmitConsentInput) (match.Status, error) {
	if in.MemberID == uuid.Nil {
		return "", ErrUnauthorized
	}
	if in.MatchID == uuid.Nil {
		return "", ErrInvalidInput
	}

	release := u.lockMatch(ctx, in.MatchID)
	defer release()

	m, err := u.matches.GetByID(ctx, in.MatchID)
	if err != nil {
		if errors.Is(err, repository.ErrMatchNotFound) {
			return "", ErrMatchNotFound
		}
		return "", fmt.Errorf("%w: load match: %w", ErrDependency, err)
	}
	if !m.HasParty(in.MemberID) {
		return "", ErrForbidden
	}

	if m.Status.Terminal() {
		return u.resubmit(ctx, m, in)
	}

	if !in.Consent {
		return u.decline(ctx, m, in)
	}

	written, err := u.consents.UpsertWhilePending(ctx, u.record(m, in))
	if err != nil {
		return "", fmt.Errorf("%w: save consent: %w", ErrDependency, err)
	}
	if !written {
		// Closed since it was loaded.
		current, err := u.matches.GetByID(ctx, m.ID)
		if err != nil {
			return "", fmt.Errorf("%w: reload match: %w", ErrDependency, err)
		}
		return u.resubmit(ctx, current, in)
	}

	records, err := u.consents.ListByMatch(ctx, m.ID)
	if err != nil {
		return "", fmt.Errorf("%w: load consents: %w", ErrDependency, err)
	}
	if !match.BothAccepted(m, records) {
		u.metrics.IncConsent(string(match.StatusPending))
		return match.StatusPending, nil
	}

	return u.transition(ctx, m, match.StatusConsented)
}

func (u *Consent) lockMatch(ctx context.Context, matchID uuid.UUID) func() {
	if u.locker == nil {
		return func() {}
	}
	waitCtx, cancel := context.WithTimeout(ctx, consentLockWait)
	defer cancel()

	release, err := u.locker.AcquireWait(waitCtx, "lock:consent:"+matchID.String(), 0, consentLockPoll)
	if err != nil {
		u.logger.Warn("consent lock not acquired, relying on status compare-and-set",
			zap.String("match_id", matchID.String()),
			zap.Error(err),
		)
		return func() {}
	}
	return release
}

func (u *Consent) resubmit(ctx context.Context, m match.Match, in SubmitConsentInput) (match.Status, error) {
	want := match.StatusDeclined
	if in.Consent {
		want = match.StatusConsented
	}
	if m.Status != want {
		return "", ErrMatchClosed
	}

	if !in.Consent {
		if err := u.consents.Upsert(ctx, u.record(m, in)); err != nil {
			return "", fmt.Errorf("%w: save consent: %w", ErrDependency, err)
		}
	}

	u.metrics.IncConsent(string(m.Status))
	return m.Status, nil
}

// decline closes the match before writing the decline record, so a decline that loses to a
// concurrent accept leaves no record behind. A failed write after the close is repaired by
// submitting the decline again.
func (u *Consent) decline(ctx context.Context, m match.Match, in SubmitConsentInput) (match.Status, error) {
	st, err := u.transition(ctx, m, match.StatusDeclined)
	if err != nil {
		return "", err
	}
	if err := u.consents.Upsert(ctx, u.record(m, in)); err != nil {
		return "", fmt.Errorf("%w: save consent: %w", ErrDependency, err)
	}
	return st, nil
}

func (u *Consent) record(m match.Match, in SubmitConsentInput) match.ConsentRecord {
	return match.ConsentRecord{
		MatchID:     m.ID,
		MemberID:    in.MemberID,
		Consent:     in.Consent,
		ConsentedAt: u.now().UTC(),
	}
}

// transition moves m out of pending. When another submission got there first, the persisted
// status decides the outcome.
func (u *Consent) transition(ctx context.Context, m match.Match, to match.Status) (match.Status, error) {
	ok, err := u.matches.TransitionStatus(ctx, m.ID, match.StatusPending, to)
	if err != nil {
		return "", fmt.Errorf("%w: update match status: %w", ErrDependency, err)
	}

	if !ok {
		current, err := u.matches.GetByID(ctx, m.ID)
		if err != nil {
			return "", fmt.Errorf("%w: reload match: %w", ErrDependency, err)
		}
		if current.Status != to {
			return "", ErrMatchClosed
		}
		u.metrics.IncConsent(string(to))
		return to, nil
	}

	u.logger.Info("match closed",
		zap.String("match_id", m.ID.String()),
		zap.String("status", string(to)),
	)
	u.metrics.IncConsent(string(to))

	if to == match.StatusConsented {
		u.reveal(ctx, m)
	}
	return to, nil
}

// reveal sends each party the other's contact. Failures stay in the outbox; the match stays consented.
func (u *Consent) reveal(ctx context.Context, m match.Match) {
	if u.dispatcher == nil || u.renderer == nil {
		return
	}

	profiles, err := u.members.FindProfiles(ctx, []uuid.UUID{m.MemberA, m.MemberB})
	if err != nil {
		u.logger.Error("reveal skipped, profiles unavailable", zap.String("match_id", m.ID.String()), zap.Error(err))
		return
	}

	msgs := make([]notification.Message, 0, 2)
	for _, pair := range [][2]uuid.UUID{{m.MemberA, m.MemberB}, {m.MemberB, m.MemberA}} {
		recipient, counterpart := profileOrID(profiles, pair[0]), profileOrID(profiles, pair[1])

		text, err := u.renderer.Reveal(counterpart)
		if err != nil {
			u.logger.Error("reveal render failed", zap.String("match_id", m.ID.String()), zap.Error(err))
			continue
		}
		msgs = append(msgs, notification.Message{
			Kind:      notification.KindReveal,
			MemberID:  recipient.ID,
			Address:   recipient.MessagingAddress,
			Text:      text,
			DedupeKey: notification.RevealKey(m.ID, recipient.ID),
		})
	}

	sent, err := u.dispatcher.Dispatch(ctx, msgs)
	if err != nil {
		u.logger.Warn("reveal delivery incomplete",
			zap.String("match_id", m.ID.String()),
			zap.Int("sent", sent),
			zap.Error(err),
		)
	}
}

func profileOrID(profiles map[uuid.UUID]member.Profile, id uuid.UUID) member.Profile {
	if p, ok := profiles[id]; ok {
		return p
	}
	return member.Profile{ID: id}
}

// ListMyMatches returns the member's matches, newest first. Contacts are filled in only for
// consented matches.
func (u *Consent) ListMyMatches(ctx context.Context, memberID uuid.UUID) ([]MatchView, error) {
	if memberID == uuid.Nil {
		return nil, ErrUnauthorized
	}

	ms, err := u.matches.ListByMember(ctx, memberID)
	if err != nil {
		return nil, fmt.Errorf("%w: list matches: %w", ErrDependency, err)
	}
	if len(ms) == 0 {
		return []MatchView{}, nil
	}

	counterparts := make([]uuid.UUID, 0, len(ms))
	for _, m := range ms {
		if id, ok := m.Counterpart(memberID); ok {
			counterparts = append(counterparts, id)
		}
	}
	profiles, err := u.members.FindProfiles(ctx, counterparts)
	if err != nil {
		return nil, fmt.Errorf("%w: load profiles: %w", ErrDependency, err)
	}

	out := make([]MatchView, 0, len(ms))
	for _, m := range ms {
		other, _ := m.Counterpart(memberID)
		p := profileOrID(profiles, other)

		records, err := u.consents.ListByMatch(ctx, m.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: load consents: %w", ErrDependency, err)
		}

		v := MatchView{
			ID:              m.ID,
			CounterpartID:   other,
			CounterpartName: p.DisplayName(),
			Score:           m.Score,
			Status:          m.Status,
			CreatedAt:       m.CreatedAt,
		}
		for _, r := range records {
			if r.MemberID == memberID {
				c := r.Consent
				v.MyConsent = &c
			}
		}
		if m.Status == match.StatusConsented {
			v.Contact, _ = p.ContactLink()
		}
		out = append(out, v)
	}
	return out, nil
}
