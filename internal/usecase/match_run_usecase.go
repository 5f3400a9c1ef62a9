package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"peer-match/internal/config"
	"peer-match/internal/domain/matching"
	"peer-match/internal/logger"
	"peer-match/internal/metrics"
	"peer-match/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const matchRunLockKey = "lock:match-run"

type RunStatus string

const (
	RunMatched        RunStatus = "matched"
	RunNotEnoughUsers RunStatus = "not_enough_users"
	RunNoPairsFormed  RunStatus = "no_pairs_formed"
)

type RunResult struct {
	Status   RunStatus
	Matched  int
	MatchIDs []uuid.UUID
}

type MatchRunUsecase interface {
	Run(ctx context.Context) (RunResult, error)
}

type MatchRun struct {
	members  repository.MemberRepository
	matches  repository.MatchRepository
	matcher  matching.Matcher
	locker   Locker
	cooldown time.Duration
	metrics  *metrics.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

func NewMatchRunUsecase(
	members repository.MemberRepository,
	matches repository.MatchRepository,
	matcher matching.Matcher,
	locker Locker,
	cfg config.MatchingConfig,
	m *metrics.Metrics,
	l *zap.Logger,
) *MatchRun {
	return &MatchRun{
		members:  members,
		matches:  matches,
		matcher:  matcher,
		locker:   locker,
		cooldown: cfg.Cooldown,
		metrics:  m,
		logger:   logger.OrNop(l),
		now:      time.Now,
	}
}

// Run pairs the current opt-in pool and persists the pairs as pending matches.
// The run is all or nothing: when persisting fails no match is assumed to exist.
func (u *MatchRun) Run(ctx context.Context) (RunResult, error) {
	release, err := acquire(ctx, u.locker, matchRunLockKey)
	if err != nil {
		return RunResult{}, fmt.Errorf("%w: match run", ErrBusy)
	}
	defer release()

	now := u.now().UTC()

	ids, err := u.members.ListOptedIn(ctx)
	if err != nil {
		return u.fail(fmt.Errorf("%w: list opted-in members: %w", ErrDependency, err))
	}
	if len(ids) < 2 {
		return u.finish(RunResult{Status: RunNotEnoughUsers}), nil
	}

	members, err := u.members.FindAttributes(ctx, ids)
	if err != nil {
		return u.fail(fmt.Errorf("%w: load member attributes: %w", ErrDependency, err))
	}
	if len(matching.Eligible(members)) < 2 {
		return u.finish(RunResult{Status: RunNotEnoughUsers}), nil
	}

	recent, err := u.matches.RecentPairs(ctx, now.Add(-u.cooldown))
	if err != nil {
		return u.fail(fmt.Errorf("%w: load match history: %w", ErrDependency, err))
	}

	start := time.Now()
	pairs, err := u.matcher.Match(ctx, members, recent)
	u.metrics.ObserveScoring(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return u.fail(err)
		}
		return u.fail(fmt.Errorf("%w: matcher: %w", ErrInternal, err))
	}
	if len(pairs) == 0 {
		return u.finish(RunResult{Status: RunNoPairsFormed}), nil
	}

	matchIDs, err := u.matches.CreateMatches(ctx, pairs, now)
	if err != nil {
		return u.fail(fmt.Errorf("%w: create matches: %w", ErrDependency, err))
	}

	u.metrics.AddMatchesCreated(len(matchIDs))
	u.logger.Info("match run finished",
		zap.Int("pool", len(ids)),
		zap.Int("matched", len(matchIDs)),
		zap.Int("recent_pairs", len(recent)),
	)
	return u.finish(RunResult{Status: RunMatched, Matched: len(matchIDs), MatchIDs: matchIDs}), nil
}

func (u *MatchRun) finish(res RunResult) RunResult {
	u.metrics.IncRun(string(res.Status))
	if res.Status != RunMatched {
		u.logger.Info("match run finished", zap.String("status", string(res.Status)))
	}
	return res
}

func (u *MatchRun) fail(err error) (RunResult, error) {
	u.metrics.IncRun("failed")
	u.logger.Error("match run failed", zap.Error(err))
	return RunResult{}, err
}
