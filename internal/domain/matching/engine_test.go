package matching

import (
	"testing"

	"peer-match/internal/domain/match"
	"peer-match/internal/domain/member"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

var (
	idA = uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	idB = uuid.MustParse("00000000-0000-0000-0000-00000000000b")
	idC = uuid.MustParse("00000000-0000-0000-0000-00000000000c")
	idD = uuid.MustParse("00000000-0000-0000-0000-00000000000d")
)

func mem(id uuid.UUID, skills []string, interests []string) member.Member {
	return member.Member{
		ID:        id,
		OptIn:     true,
		Skills:    member.NewTagSet(skills...),
		Interests: member.NewTagSet(interests...),
	}
}

func scenarioMembers() []member.Member {
	return []member.Member{
		mem(idA, []string{"s1", "s2"}, []string{"i1"}),
		mem(idB, []string{"s1", "s3"}, []string{"i1", "i2"}),
		mem(idC, []string{"s4"}, []string{"i3"}),
		mem(idD, []string{"s4", "s5"}, []string{"i3"}),
	}
}

func TestJaccard(t *testing.T) {
	tests := []struct {
		name string
		a, b member.TagSet
		want float64
	}{
		{"both empty", member.NewTagSet(), member.NewTagSet(), 0},
		{"one empty", member.NewTagSet("x"), member.NewTagSet(), 0},
		{"identical", member.NewTagSet("x", "y"), member.NewTagSet("y", "x"), 1},
		{"partial", member.NewTagSet("s1", "s2"), member.NewTagSet("s1", "s3"), 1.0 / 3.0},
		{"disjoint", member.NewTagSet("a"), member.NewTagSet("b"), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Jaccard(tt.a, tt.b), 1e-9)
			assert.InDelta(t, tt.want, Jaccard(tt.b, tt.a), 1e-9)
		})
	}
}

func TestScorer_Scenario(t *testing.T) {
	s := NewScorer(DefaultWeights())
	ms := scenarioMembers()
	a, b, c, d := ms[0], ms[1], ms[2], ms[3]

	assert.InDelta(t, 0.40, s.Score(a, b, nil), 1e-9)
	assert.InDelta(t, 0.72, s.Score(c, d, nil), 1e-9)

	// Cross pairs share nothing; only the skill-count difference contributes.
	assert.InDelta(t, 0.02, s.Score(a, c, nil), 1e-9)
	assert.InDelta(t, 0.0, s.Score(a, d, nil), 1e-9)
	assert.InDelta(t, 0.02, s.Score(b, c, nil), 1e-9)
	assert.InDelta(t, 0.0, s.Score(b, d, nil), 1e-9)
}

func TestScorer_Symmetric(t *testing.T) {
	s := NewScorer(DefaultWeights())
	ms := scenarioMembers()
	recent := match.PairSet{}
	recent.Add(idB, idA)

	for i := range ms {
		for j := range ms {
			if i == j {
				continue
			}
			assert.Equal(t, s.Score(ms[i], ms[j], recent), s.Score(ms[j], ms[i], recent))
		}
	}
}

func TestScorer_CooldownPenalty(t *testing.T) {
	s := NewScorer(DefaultWeights())
	ms := scenarioMembers()
	recent := match.PairSet{}
	recent.Add(idD, idC)

	assert.InDelta(t, 0.22, s.Score(ms[2], ms[3], recent), 1e-9)
	assert.InDelta(t, 0.40, s.Score(ms[0], ms[1], recent), 1e-9)
}

func TestScorer_CanGoNegative(t *testing.T) {
	s := NewScorer(DefaultWeights())
	a := mem(idA, nil, nil)
	b := mem(idB, nil, nil)
	recent := match.PairSet{}
	recent.Add(idA, idB)

	assert.InDelta(t, -0.5, s.Score(a, b, recent), 1e-9)
}

func TestScorer_CustomWeights(t *testing.T) {
	s := NewScorer(Weights{Skill: 1, Interest: 0, SizeDiffBonus: 0, CooldownPenalty: 0})
	ms := scenarioMembers()

	assert.InDelta(t, 0.5, s.Score(ms[2], ms[3], nil), 1e-9)
}
