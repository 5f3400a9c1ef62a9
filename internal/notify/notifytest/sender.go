// Package notifytest provides a recording Sender for tests.
package notifytest

import (
	"context"
	"sync"
)

type Sent struct {
	Address int64
	Text    string
}

// Sender records every message and fails for addresses listed in FailFor.
type Sender struct {
	mu      sync.Mutex
	sent    []Sent
	failFor map[int64]error
}

func NewSender() *Sender {
	return &Sender{failFor: map[int64]error{}}
}

func (s *Sender) FailFor(address int64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failFor, address)
		return
	}
	s.failFor[address] = err
}

func (s *Sender) Send(ctx context.Context, address int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.failFor[address]; ok {
		return err
	}
	s.sent = append(s.sent, Sent{Address: address, Text: text})
	return nil
}

func (s *Sender) Sent() []Sent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Sent, len(s.sent))
	copy(out, s.sent)
	return out
}

// To returns the texts delivered to address.
func (s *Sender) To(address int64) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, m := range s.sent {
		if m.Address == address {
			out = append(out, m.Text)
		}
	}
	return out
}
