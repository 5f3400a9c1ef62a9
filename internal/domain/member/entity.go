package member

import (
	"sort"
	"strings"

	"github.com/google/uuid"
)

type TagSet map[string]struct{}

func NewTagSet(tags ...string) TagSet {
	s := make(TagSet, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		s[t] = struct{}{}
	}
	return s
}

func (s TagSet) Add(tag string) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return
	}
	s[tag] = struct{}{}
}

func (s TagSet) Has(tag string) bool {
	_, ok := s[tag]
	return ok
}

func (s TagSet) Len() int {
	return len(s)
}

func (s TagSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for t := range s {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

type Member struct {
	ID               uuid.UUID
	OptIn            bool
	Skills           TagSet
	Interests        TagSet
	MessagingAddress int64
}

// Profile is the contact card revealed to a counterpart after mutual consent.
type Profile struct {
	ID               uuid.UUID
	MessagingAddress int64
	FirstName        string
	LastName         string
	Username         string
	Bio              string
}

func (p Profile) DisplayName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

func (p Profile) ContactLink() (string, bool) {
	u := strings.TrimPrefix(strings.TrimSpace(p.Username), "@")
	if u == "" {
		return "", false
	}
	return "https://t.me/" + u, true
}
