package matching

import (
	"peer-match/internal/domain/match"
	"peer-match/internal/domain/member"
)

type Weights struct {
	Skill           float64
	Interest        float64
	SizeDiffBonus   float64
	CooldownPenalty float64
}

func DefaultWeights() Weights {
	return Weights{
		Skill:           0.6,
		Interest:        0.4,
		SizeDiffBonus:   0.02,
		CooldownPenalty: 0.5,
	}
}

// Scorer computes the compatibility of two members. It is a pure function of its inputs.
type Scorer struct {
	w Weights
}

func NewScorer(w Weights) Scorer {
	return Scorer{w: w}
}

func (s Scorer) Weights() Weights {
	return s.w
}

// Score is symmetric in a and b. A pair present in recent is penalized, never excluded.
func (s Scorer) Score(a, b member.Member, recent match.PairSet) float64 {
	skillSim := Jaccard(a.Skills, b.Skills)
	interestSim := Jaccard(a.Interests, b.Interests)
	sizeDiff := absInt(a.Skills.Len() - b.Skills.Len())

	score := s.w.Skill*skillSim + s.w.Interest*interestSim + s.w.SizeDiffBonus*float64(sizeDiff)
	if recent.Has(a.ID, b.ID) {
		score -= s.w.CooldownPenalty
	}
	return score
}

// Jaccard returns |a∩b| / |a∪b|, or 0 when both sets are empty.
func Jaccard(a, b member.TagSet) float64 {
	if a.Len() == 0 && b.Len() == 0 {
		return 0
	}
	small, large := a, b
	if small.Len() > large.Len() {
		small, large = large, small
	}
	inter := 0
	for t := range small {
		if large.Has(t) {
			inter++
		}
	}
	union := a.Len() + b.Len() - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
