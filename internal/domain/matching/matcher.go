package matching

import (
	"context"
	"sort"

	"peer-match/internal/domain/match"
	"peer-match/internal/domain/member"

	"golang.org/x/sync/errgroup"
)

// Matcher turns an opt-in pool into disjoint scored pairs.
type Matcher interface {
	Match(ctx context.Context, members []member.Member, recent match.PairSet) ([]match.CandidatePair, error)
}

// GreedyMatcher sorts every candidate pair by score and claims pairs in that order,
// skipping any pair whose member is already claimed. This approximates maximum-weight
// matching; it is kept greedy so that outcomes are reproducible and explainable.
type GreedyMatcher struct {
	scorer  Scorer
	workers int
}

func NewGreedyMatcher(scorer Scorer, workers int) *GreedyMatcher {
	if workers <= 0 {
		workers = 1
	}
	return &GreedyMatcher{scorer: scorer, workers: workers}
}

func (m *GreedyMatcher) Match(ctx context.Context, members []member.Member, recent match.PairSet) ([]match.CandidatePair, error) {
	pool := Eligible(members)
	if len(pool) < 2 {
		return []match.CandidatePair{}, nil
	}

	pairs, err := m.scoreAll(ctx, pool, recent)
	if err != nil {
		return nil, err
	}

	SortCandidates(pairs)
	return SelectGreedy(pairs), nil
}

// Eligible returns opted-in members with unique ids, sorted by id.
func Eligible(members []member.Member) []member.Member {
	seen := make(map[string]struct{}, len(members))
	out := make([]member.Member, 0, len(members))
	for _, mb := range members {
		if !mb.OptIn {
			continue
		}
		k := mb.ID.String()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, mb)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out
}

func (m *GreedyMatcher) scoreAll(ctx context.Context, pool []member.Member, recent match.PairSet) ([]match.CandidatePair, error) {
	n := len(pool)
	pairs := make([]match.CandidatePair, n*(n-1)/2)

	// rows[i] is the offset of the first pair whose left member is pool[i].
	rows := make([]int, n)
	off := 0
	for i := 0; i < n; i++ {
		rows[i] = off
		off += n - 1 - i
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)
	for i := 0; i < n-1; i++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			a := pool[i]
			k := rows[i]
			for j := i + 1; j < n; j++ {
				b := pool[j]
				pairs[k] = match.NewCandidatePair(a.ID, b.ID, m.scorer.Score(a, b, recent))
				k++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return pairs, nil
}

// SortCandidates orders pairs by score descending, breaking ties by member ids.
func SortCandidates(pairs []match.CandidatePair) {
	sort.SliceStable(pairs, func(i, j int) bool {
		if pairs[i].Score != pairs[j].Score {
			return pairs[i].Score > pairs[j].Score
		}
		ai, aj := pairs[i].MemberA.String(), pairs[j].MemberA.String()
		if ai != aj {
			return ai < aj
		}
		return pairs[i].MemberB.String() < pairs[j].MemberB.String()
	})
}

// SelectGreedy walks sorted pairs and keeps those whose members are both unclaimed.
func SelectGreedy(sorted []match.CandidatePair) []match.CandidatePair {
	claimed := make(map[string]struct{}, len(sorted))
	out := make([]match.CandidatePair, 0)
	for _, p := range sorted {
		a, b := p.MemberA.String(), p.MemberB.String()
		if _, ok := claimed[a]; ok {
			continue
		}
		if _, ok := claimed[b]; ok {
			continue
		}
		claimed[a] = struct{}{}
		claimed[b] = struct{}{}
		out = append(out, p)
	}
	return out
}
