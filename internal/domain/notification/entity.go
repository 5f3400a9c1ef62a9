package notification

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindReveal   Kind = "reveal"
	KindReminder Kind = "reminder"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// Message is an outbound message recorded before it is handed to the messaging endpoint.
type Message struct {
	ID        uuid.UUID
	Kind      Kind
	MemberID  uuid.UUID
	Address   int64
	Text      string
	DedupeKey string
	Status    Status
	Attempts  int
	LastError string
	CreatedAt time.Time
	SentAt    *time.Time
}

func RevealKey(matchID, memberID uuid.UUID) string {
	return fmt.Sprintf("reveal:%s:%s", matchID, memberID)
}

func ReminderKey(eventID, memberID uuid.UUID, sweptAt time.Time) string {
	return fmt.Sprintf("reminder:%s:%s:%d", eventID, memberID, sweptAt.UTC().Unix())
}
