// Package memstore is an in-memory implementation of the repository interfaces, used by tests
// and local runs without Postgres. All repositories of one Store share a single lock.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"peer-match/internal/domain/match"
	"peer-match/internal/domain/member"
	"peer-match/internal/domain/notification"
	"peer-match/internal/domain/reminder"
	"peer-match/internal/repository"

	"github.com/google/uuid"
)

type consentKey struct {
	match  uuid.UUID
	member uuid.UUID
}

type Store struct {
	mu sync.Mutex

	members  map[uuid.UUID]member.Member
	profiles map[uuid.UUID]member.Profile
	matches  map[uuid.UUID]match.Match
	consents map[consentKey]match.ConsentRecord
	events   map[uuid.UUID]reminder.Event
	outbox   map[uuid.UUID]notification.Message
	outKeys  map[string]uuid.UUID

	failures map[string]error

	Members   *MemberRepo
	Matches   *MatchRepo
	Consents  *ConsentRepo
	Reminders *ReminderRepo
	Outbox    *OutboxRepo
}

func New() *Store {
	s := &Store{
		members:  map[uuid.UUID]member.Member{},
		profiles: map[uuid.UUID]member.Profile{},
		matches:  map[uuid.UUID]match.Match{},
		consents: map[consentKey]match.ConsentRecord{},
		events:   map[uuid.UUID]reminder.Event{},
		outbox:   map[uuid.UUID]notification.Message{},
		outKeys:  map[string]uuid.UUID{},
		failures: map[string]error{},
	}
	s.Members = &MemberRepo{s: s}
	s.Matches = &MatchRepo{s: s}
	s.Consents = &ConsentRepo{s: s}
	s.Reminders = &ReminderRepo{s: s}
	s.Outbox = &OutboxRepo{s: s}
	return s
}

// Fail makes the named operation (e.g. "CreateMatches") return err until cleared with a nil err.
func (s *Store) Fail(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

func (s *Store) failure(op string) error {
	return s.failures[op]
}

func (s *Store) PutMember(m member.Member, p member.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.Skills == nil {
		m.Skills = member.NewTagSet()
	}
	if m.Interests == nil {
		m.Interests = member.NewTagSet()
	}
	p.ID = m.ID
	if p.MessagingAddress == 0 {
		p.MessagingAddress = m.MessagingAddress
	}
	s.members[m.ID] = m
	s.profiles[m.ID] = p
}

func (s *Store) PutMatch(m match.Match) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.matches[m.ID] = m
}

func (s *Store) PutEvent(e reminder.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[e.ID] = e
}

func (s *Store) Match(id uuid.UUID) (match.Match, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[id]
	return m, ok
}

func (s *Store) AllMatches() []match.Match {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]match.Match, 0, len(s.matches))
	for _, m := range s.matches {
		out = append(out, m)
	}
	sortMatches(out)
	return out
}

func (s *Store) Event(id uuid.UUID) (reminder.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	return e, ok
}

func (s *Store) ConsentCount(matchID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k := range s.consents {
		if k.match == matchID {
			n++
		}
	}
	return n
}

func (s *Store) Messages() []notification.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]notification.Message, 0, len(s.outbox))
	for _, m := range s.outbox {
		out = append(out, m)
	}
	sortMessages(out)
	return out
}

type MemberRepo struct{ s *Store }

var _ repository.MemberRepository = (*MemberRepo)(nil)

func (r *MemberRepo) ListOptedIn(_ context.Context) ([]uuid.UUID, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("ListOptedIn"); err != nil {
		return nil, err
	}
	out := make([]uuid.UUID, 0)
	for id, m := range r.s.members {
		if m.OptIn {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}

func (r *MemberRepo) FindAttributes(_ context.Context, ids []uuid.UUID) ([]member.Member, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("FindAttributes"); err != nil {
		return nil, err
	}
	out := make([]member.Member, 0, len(ids))
	for _, id := range ids {
		if m, ok := r.s.members[id]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *MemberRepo) FindProfiles(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]member.Profile, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("FindProfiles"); err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]member.Profile, len(ids))
	for _, id := range ids {
		if p, ok := r.s.profiles[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (r *MemberRepo) UpsertTelegramUser(_ context.Context, p member.Profile) (uuid.UUID, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("UpsertTelegramUser"); err != nil {
		return uuid.Nil, err
	}
	if p.MessagingAddress == 0 {
		return uuid.Nil, repository.ErrMemberNotFound
	}
	for id, existing := range r.s.profiles {
		if existing.MessagingAddress == p.MessagingAddress {
			existing.FirstName, existing.LastName, existing.Username = p.FirstName, p.LastName, p.Username
			r.s.profiles[id] = existing
			return id, nil
		}
	}
	id := uuid.New()
	p.ID = id
	r.s.profiles[id] = p
	r.s.members[id] = member.Member{
		ID:               id,
		Skills:           member.NewTagSet(),
		Interests:        member.NewTagSet(),
		MessagingAddress: p.MessagingAddress,
	}
	return id, nil
}

type MatchRepo struct{ s *Store }

var _ repository.MatchRepository = (*MatchRepo)(nil)

func (r *MatchRepo) CreateMatches(_ context.Context, pairs []match.CandidatePair, createdAt time.Time) ([]uuid.UUID, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("CreateMatches"); err != nil {
		return nil, err
	}
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	ids := make([]uuid.UUID, 0, len(pairs))
	for _, p := range pairs {
		id := uuid.New()
		r.s.matches[id] = match.Match{
			ID:        id,
			MemberA:   p.MemberA,
			MemberB:   p.MemberB,
			Score:     p.Score,
			Status:    match.StatusPending,
			CreatedAt: createdAt,
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (r *MatchRepo) RecentPairs(_ context.Context, since time.Time) (match.PairSet, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("RecentPairs"); err != nil {
		return nil, err
	}
	out := match.PairSet{}
	for _, m := range r.s.matches {
		if !m.CreatedAt.Before(since) {
			out.Add(m.MemberA, m.MemberB)
		}
	}
	return out, nil
}

func (r *MatchRepo) GetByID(_ context.Context, id uuid.UUID) (match.Match, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("GetByID"); err != nil {
		return match.Match{}, err
	}
	m, ok := r.s.matches[id]
	if !ok {
		return match.Match{}, repository.ErrMatchNotFound
	}
	return m, nil
}

func (r *MatchRepo) ListByMember(_ context.Context, memberID uuid.UUID) ([]match.Match, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("ListByMember"); err != nil {
		return nil, err
	}
	out := make([]match.Match, 0)
	for _, m := range r.s.matches {
		if m.HasParty(memberID) {
			out = append(out, m)
		}
	}
	sortMatches(out)
	return out, nil
}

func (r *MatchRepo) TransitionStatus(_ context.Context, id uuid.UUID, from, to match.Status) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("TransitionStatus"); err != nil {
		return false, err
	}
	m, ok := r.s.matches[id]
	if !ok || m.Status != from {
		return false, nil
	}
	m.Status = to
	r.s.matches[id] = m
	return true, nil
}

type ConsentRepo struct{ s *Store }

var _ repository.ConsentRepository = (*ConsentRepo)(nil)

func (r *ConsentRepo) Upsert(_ context.Context, rec match.ConsentRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("Upsert"); err != nil {
		return err
	}
	if rec.ConsentedAt.IsZero() {
		rec.ConsentedAt = time.Now().UTC()
	}
	r.s.consents[consentKey{match: rec.MatchID, member: rec.MemberID}] = rec
	return nil
}

func (r *ConsentRepo) UpsertWhilePending(_ context.Context, rec match.ConsentRecord) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("Upsert"); err != nil {
		return false, err
	}
	if m, ok := r.s.matches[rec.MatchID]; !ok || m.Status != match.StatusPending {
		return false, nil
	}
	if rec.ConsentedAt.IsZero() {
		rec.ConsentedAt = time.Now().UTC()
	}
	r.s.consents[consentKey{match: rec.MatchID, member: rec.MemberID}] = rec
	return true, nil
}

func (r *ConsentRepo) ListByMatch(_ context.Context, matchID uuid.UUID) ([]match.ConsentRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("ListByMatch"); err != nil {
		return nil, err
	}
	out := make([]match.ConsentRecord, 0, 2)
	for k, rec := range r.s.consents {
		if k.match == matchID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MemberID.String() < out[j].MemberID.String() })
	return out, nil
}

type ReminderRepo struct{ s *Store }

var _ repository.ReminderRepository = (*ReminderRepo)(nil)

func (r *ReminderRepo) ListDue(_ context.Context, now time.Time, after reminder.Cursor, limit int) ([]reminder.Event, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("ListDue"); err != nil {
		return nil, err
	}
	out := make([]reminder.Event, 0)
	for _, e := range r.s.events {
		if e.Due(now) && e.After(after) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].RemindAt.Equal(out[j].RemindAt) {
			return out[i].RemindAt.Before(out[j].RemindAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *ReminderRepo) MarkSent(_ context.Context, id uuid.UUID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("MarkEventSent"); err != nil {
		return false, err
	}
	e, ok := r.s.events[id]
	if !ok || e.Status != reminder.StatusScheduled {
		return false, nil
	}
	e.Status = reminder.StatusSent
	r.s.events[id] = e
	return true, nil
}

type OutboxRepo struct{ s *Store }

var _ repository.OutboxRepository = (*OutboxRepo)(nil)

func (r *OutboxRepo) Enqueue(_ context.Context, msg notification.Message) (notification.Message, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("Enqueue"); err != nil {
		return notification.Message{}, false, err
	}
	if id, ok := r.s.outKeys[msg.DedupeKey]; ok {
		return r.s.outbox[id], false, nil
	}
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	msg.Status = notification.StatusPending
	r.s.outbox[msg.ID] = msg
	r.s.outKeys[msg.DedupeKey] = msg.ID
	return msg, true, nil
}

func (r *OutboxRepo) MarkSent(_ context.Context, id uuid.UUID, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("MarkMessageSent"); err != nil {
		return err
	}
	m, ok := r.s.outbox[id]
	if !ok {
		return nil
	}
	m.Status = notification.StatusSent
	m.Attempts++
	m.LastError = ""
	m.SentAt = &at
	r.s.outbox[id] = m
	return nil
}

func (r *OutboxRepo) MarkFailed(_ context.Context, id uuid.UUID, reason string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("MarkMessageFailed"); err != nil {
		return err
	}
	m, ok := r.s.outbox[id]
	if !ok || m.Status == notification.StatusSent {
		return nil
	}
	m.Status = notification.StatusFailed
	m.Attempts++
	m.LastError = reason
	r.s.outbox[id] = m
	return nil
}

func (r *OutboxRepo) ListRetryable(_ context.Context, maxAttempts int, createdBefore time.Time, limit int) ([]notification.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("ListRetryable"); err != nil {
		return nil, err
	}
	out := make([]notification.Message, 0)
	for _, m := range r.s.outbox {
		if m.Attempts >= maxAttempts {
			continue
		}
		if m.Status == notification.StatusFailed || (m.Status == notification.StatusPending && m.CreatedAt.Before(createdBefore)) {
			out = append(out, m)
		}
	}
	sortMessages(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func sortMatches(ms []match.Match) {
	sort.Slice(ms, func(i, j int) bool {
		if !ms[i].CreatedAt.Equal(ms[j].CreatedAt) {
			return ms[i].CreatedAt.After(ms[j].CreatedAt)
		}
		return ms[i].ID.String() < ms[j].ID.String()
	})
}

func sortMessages(ms []notification.Message) {
	sort.Slice(ms, func(i, j int) bool {
		if !ms[i].CreatedAt.Equal(ms[j].CreatedAt) {
			return ms[i].CreatedAt.Before(ms[j].CreatedAt)
		}
		return ms[i].ID.String() < ms[j].ID.String()
	})
}
