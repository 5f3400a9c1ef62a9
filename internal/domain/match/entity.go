package match

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConsented Status = "consented"
	StatusDeclined  Status = "declined"
)

func (s Status) Terminal() bool {
	return s == StatusConsented || s == StatusDeclined
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConsented, StatusDeclined:
		return true
	default:
		return false
	}
}

// CandidatePair is an unordered pair normalized so that MemberA sorts before MemberB.
type CandidatePair struct {
	MemberA uuid.UUID
	MemberB uuid.UUID
	Score   float64
}

func NewCandidatePair(a, b uuid.UUID, score float64) CandidatePair {
	a, b = OrderIDs(a, b)
	return CandidatePair{MemberA: a, MemberB: b, Score: score}
}

func (p CandidatePair) Key() PairKey {
	return NewPairKey(p.MemberA, p.MemberB)
}

type Match struct {
	ID        uuid.UUID
	MemberA   uuid.UUID
	MemberB   uuid.UUID
	Score     float64
	Status    Status
	CreatedAt time.Time
}

func (m Match) HasParty(memberID uuid.UUID) bool {
	return memberID != uuid.Nil && (m.MemberA == memberID || m.MemberB == memberID)
}

func (m Match) Counterpart(memberID uuid.UUID) (uuid.UUID, bool) {
	switch memberID {
	case m.MemberA:
		return m.MemberB, true
	case m.MemberB:
		return m.MemberA, true
	default:
		return uuid.Nil, false
	}
}

type ConsentRecord struct {
	MatchID     uuid.UUID
	MemberID    uuid.UUID
	Consent     bool
	ConsentedAt time.Time
}

// BothAccepted reports whether both parties of m hold an accepted record in records.
func BothAccepted(m Match, records []ConsentRecord) bool {
	var a, b bool
	for _, r := range records {
		if r.MatchID != m.ID || !r.Consent {
			continue
		}
		switch r.MemberID {
		case m.MemberA:
			a = true
		case m.MemberB:
			b = true
		}
	}
	return a && b
}

type PairKey struct {
	A uuid.UUID
	B uuid.UUID
}

func NewPairKey(a, b uuid.UUID) PairKey {
	a, b = OrderIDs(a, b)
	return PairKey{A: a, B: b}
}

type PairSet map[PairKey]struct{}

func (s PairSet) Add(a, b uuid.UUID) {
	s[NewPairKey(a, b)] = struct{}{}
}

func (s PairSet) Has(a, b uuid.UUID) bool {
	if s == nil {
		return false
	}
	_, ok := s[NewPairKey(a, b)]
	return ok
}

func OrderIDs(a, b uuid.UUID) (uuid.UUID, uuid.UUID) {
	if a.String() > b.String() {
		return b, a
	}
	return a, b
}
