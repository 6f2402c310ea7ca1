// Package cache keeps the in-process aggregate view of the contract: the
// counter stats plus the viewer's poll list and the explore page. Counter
// refreshes are best-effort; a failed counter keeps its previous value.
package cache

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/pollchain/pollchain-go/internal/domain"
	"github.com/pollchain/pollchain-go/internal/metrics"
)

// Reader is the slice of the contract gateway the cache refreshes from.
type Reader interface {
	ActivePollsCount(ctx context.Context) (uint64, error)
	TotalPollsCount(ctx context.Context) (uint64, error)
	VotesCast(ctx context.Context) (uint64, error)
	PollsVotedByUser(ctx context.Context) (uint64, error)
	GetUserPolls(ctx context.Context) ([]domain.Poll, error)
	GetAllPolls(ctx context.Context, offset, limit uint64) ([]domain.Poll, error)
}

type Aggregate struct {
	reader Reader
	logger *zap.Logger

	mu          sync.RWMutex
	stats       domain.AggregateStats
	userPolls   []domain.Poll
	globalPolls []domain.Poll
}

func NewAggregate(reader Reader, logger *zap.Logger) *Aggregate {
	return &Aggregate{
		reader: reader,
		logger: logger,
	}
}

// RefreshAll fetches the three global counters in parallel. Individual
// failures are logged and swallowed so one slow counter never blocks the
// others from landing.
func (a *Aggregate) RefreshAll(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		a.refreshCounter(ctx, "active_polls", a.reader.ActivePollsCount, func(v uint64) {
			a.stats.ActivePolls = v
		})
	}()
	go func() {
		defer wg.Done()
		a.refreshCounter(ctx, "total_polls", a.reader.TotalPollsCount, func(v uint64) {
			a.stats.TotalPolls = v
		})
	}()
	go func() {
		defer wg.Done()
		a.refreshCounter(ctx, "votes_cast", a.reader.VotesCast, func(v uint64) {
			a.stats.VotesCast = v
		})
	}()

	wg.Wait()
}

// RefreshViewer updates the per-account counter for the connected wallet.
func (a *Aggregate) RefreshViewer(ctx context.Context) {
	a.refreshCounter(ctx, "polls_voted_by_user", a.reader.PollsVotedByUser, func(v uint64) {
		a.stats.PollsVotedByUser = v
	})
}

func (a *Aggregate) refreshCounter(ctx context.Context, name string, fetch func(context.Context) (uint64, error), apply func(uint64)) {
	v, err := fetch(ctx)
	metrics.RecordCacheRefresh(name, err == nil)
	if err != nil {
		a.logger.Warn("counter refresh failed", zap.String("counter", name), zap.Error(err))
		return
	}
	a.mu.Lock()
	apply(v)
	a.mu.Unlock()
}

// LoadUserPolls replaces the viewer's poll list wholesale. Unlike counter
// refreshes the failure propagates: callers asked for this list explicitly.
func (a *Aggregate) LoadUserPolls(ctx context.Context) ([]domain.Poll, error) {
	polls, err := a.reader.GetUserPolls(ctx)
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	a.userPolls = polls
	a.mu.Unlock()
	return copyPolls(polls), nil
}

// LoadGlobalPolls fetches one explore page plus the total for pagination.
func (a *Aggregate) LoadGlobalPolls(ctx context.Context, offset, limit uint64) ([]domain.Poll, uint64, error) {
	polls, err := a.reader.GetAllPolls(ctx, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	total, err := a.reader.TotalPollsCount(ctx)
	if err != nil {
		return nil, 0, err
	}
	a.mu.Lock()
	a.globalPolls = polls
	a.stats.TotalPolls = total
	a.mu.Unlock()
	return copyPolls(polls), total, nil
}

func (a *Aggregate) UserPolls() []domain.Poll {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return copyPolls(a.userPolls)
}

func (a *Aggregate) GlobalPolls() []domain.Poll {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return copyPolls(a.globalPolls)
}

// RemoveUserPoll drops one poll from both cached lists after a confirmed
// deletion, without waiting for the next full reload.
func (a *Aggregate) RemoveUserPoll(id uint64) {
	a.mu.Lock()
	a.userPolls = removePoll(a.userPolls, id)
	a.globalPolls = removePoll(a.globalPolls, id)
	a.mu.Unlock()
}

func (a *Aggregate) Stats() domain.AggregateStats {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.stats
}

// Flush resets every cached value. Used when the wallet disconnects or the
// chain changes underneath us.
func (a *Aggregate) Flush() {
	a.mu.Lock()
	a.stats = domain.AggregateStats{}
	a.userPolls = nil
	a.globalPolls = nil
	a.mu.Unlock()
}

func copyPolls(polls []domain.Poll) []domain.Poll {
	out := make([]domain.Poll, len(polls))
	copy(out, polls)
	return out
}

func removePoll(polls []domain.Poll, id uint64) []domain.Poll {
	out := polls[:0]
	for _, p := range polls {
		if p.ID != id {
			out = append(out, p)
		}
	}
	return out
}
