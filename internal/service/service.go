// Package service sequences poll operations: submit to the chain, wait for
// the outcome, then bring the aggregate cache and downstream consumers up to
// date. Each user flow is strictly ordered; independent flows are not.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pollchain/pollchain-go/internal/contract"
	"github.com/pollchain/pollchain-go/internal/domain"
	"github.com/pollchain/pollchain-go/internal/events"
)

// ChainGateway is the slice of the contract gateway the service drives.
type ChainGateway interface {
	CreatePoll(ctx context.Context, req domain.CreatePollRequest) error
	Vote(ctx context.Context, pollID, optionIndex uint64) error
	DeletePoll(ctx context.Context, pollID uint64) error
	GetPoll(ctx context.Context, pollID uint64) (*domain.Poll, error)
	GetPollsByAddress(ctx context.Context, creator string) ([]domain.Poll, error)
}

// EventWaiter correlates a submitted transaction with its completion event.
type EventWaiter interface {
	AwaitEvent(ctx context.Context, eventName string, submit func(context.Context) error) (uint64, error)
}

// AggregateCache is the poll aggregate store the service keeps fresh.
type AggregateCache interface {
	RefreshAll(ctx context.Context)
	RefreshViewer(ctx context.Context)
	LoadUserPolls(ctx context.Context) ([]domain.Poll, error)
	LoadGlobalPolls(ctx context.Context, offset, limit uint64) ([]domain.Poll, uint64, error)
	RemoveUserPoll(id uint64)
	Stats() domain.AggregateStats
}

// AddressSource reports the connected wallet account, when there is one.
type AddressSource interface {
	Address() (string, bool)
}

type Service interface {
	CreatePoll(ctx context.Context, req domain.CreatePollRequest) error
	Vote(ctx context.Context, pollID, optionIndex uint64) (*domain.Poll, error)
	DeletePoll(ctx context.Context, pollID uint64) (uint64, error)
	GetPoll(ctx context.Context, pollID uint64) (*domain.Poll, error)
	ExplorePolls(ctx context.Context, offset, limit uint64) (*domain.PollPage, error)
	MyPolls(ctx context.Context) ([]domain.Poll, error)
	PollsByAddress(ctx context.Context, creator string) ([]domain.Poll, error)
	Stats() domain.AggregateStats
	RefreshStats(ctx context.Context)
}

type service struct {
	gateway   ChainGateway
	tracker   EventWaiter
	cache     AggregateCache
	publisher events.Publisher
	wallet    AddressSource
	logger    *zap.Logger
}

func New(gateway ChainGateway, tracker EventWaiter, cache AggregateCache, publisher events.Publisher, wallet AddressSource, logger *zap.Logger) Service {
	return &service{
		gateway:   gateway,
		tracker:   tracker,
		cache:     cache,
		publisher: publisher,
		wallet:    wallet,
		logger:    logger,
	}
}

// CreatePoll validates, submits, waits for inclusion, then refreshes the
// counters. Counters are never bumped optimistically; only a refresh after
// confirmation moves them.
func (s *service) CreatePoll(ctx context.Context, req domain.CreatePollRequest) error {
	if err := validateCreatePoll(req); err != nil {
		return err
	}
	if err := s.gateway.CreatePoll(ctx, req); err != nil {
		return err
	}

	s.publish(ctx, "poll.created", func(creator string) error {
		return s.publisher.PublishPollCreated(ctx, creator, req)
	})
	s.cache.RefreshAll(ctx)
	return nil
}

// Vote submits the vote, refetches the poll so the caller sees the post-vote
// tallies, then refreshes the aggregates.
func (s *service) Vote(ctx context.Context, pollID, optionIndex uint64) (*domain.Poll, error) {
	if err := s.gateway.Vote(ctx, pollID, optionIndex); err != nil {
		return nil, err
	}

	poll, err := s.gateway.GetPoll(ctx, pollID)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, "poll.voted", func(voter string) error {
		return s.publisher.PublishPollVoted(ctx, voter, poll, optionIndex)
	})
	s.cache.RefreshAll(ctx)
	s.cache.RefreshViewer(ctx)
	return poll, nil
}

// DeletePoll completes only when the PollDeleted event confirms which poll
// the chain removed; the transaction itself returns nothing.
func (s *service) DeletePoll(ctx context.Context, pollID uint64) (uint64, error) {
	deletedID, err := s.tracker.AwaitEvent(ctx, contract.EventPollDeleted, func(ctx context.Context) error {
		return s.gateway.DeletePoll(ctx, pollID)
	})
	if err != nil {
		return 0, err
	}
	if deletedID != pollID {
		s.logger.Warn("deletion event for a different poll",
			zap.Uint64("requested", pollID),
			zap.Uint64("confirmed", deletedID))
	}

	s.cache.RemoveUserPoll(deletedID)
	s.publish(ctx, "poll.deleted", func(creator string) error {
		return s.publisher.PublishPollDeleted(ctx, creator, deletedID)
	})
	s.cache.RefreshAll(ctx)
	return deletedID, nil
}

func (s *service) GetPoll(ctx context.Context, pollID uint64) (*domain.Poll, error) {
	return s.gateway.GetPoll(ctx, pollID)
}

func (s *service) ExplorePolls(ctx context.Context, offset, limit uint64) (*domain.PollPage, error) {
	if limit == 0 {
		limit = domain.DefaultLimit
	}
	if limit > domain.MaxPageSize {
		limit = domain.MaxPageSize
	}

	polls, total, err := s.cache.LoadGlobalPolls(ctx, offset, limit)
	if err != nil {
		return nil, err
	}
	return &domain.PollPage{
		Polls:  polls,
		Total:  total,
		Offset: offset,
		Limit:  limit,
		Pages:  domain.PageCount(total, limit),
	}, nil
}

func (s *service) MyPolls(ctx context.Context) ([]domain.Poll, error) {
	return s.cache.LoadUserPolls(ctx)
}

func (s *service) PollsByAddress(ctx context.Context, creator string) ([]domain.Poll, error) {
	return s.gateway.GetPollsByAddress(ctx, creator)
}

func (s *service) Stats() domain.AggregateStats {
	return s.cache.Stats()
}

func (s *service) RefreshStats(ctx context.Context) {
	s.cache.RefreshAll(ctx)
	s.cache.RefreshViewer(ctx)
}

// publish is best-effort: a broker outage must not fail a confirmed chain
// operation.
func (s *service) publish(ctx context.Context, kind string, fn func(account string) error) {
	account, _ := s.wallet.Address()
	if err := fn(account); err != nil {
		s.logger.Warn("event publish failed", zap.String("event", kind), zap.Error(err))
	}
}

func validateCreatePoll(req domain.CreatePollRequest) error {
	if strings.TrimSpace(req.Title) == "" {
		return fmt.Errorf("%w: title is required", domain.ErrInvalidInput)
	}
	if strings.TrimSpace(req.Question) == "" {
		return fmt.Errorf("%w: question is required", domain.ErrInvalidInput)
	}
	if len(req.OptionTexts) < domain.MinPollOptions || len(req.OptionTexts) > domain.MaxPollOptions {
		return fmt.Errorf("%w: between %d and %d options required",
			domain.ErrInvalidInput, domain.MinPollOptions, domain.MaxPollOptions)
	}
	for _, opt := range req.OptionTexts {
		if strings.TrimSpace(opt) == "" {
			return fmt.Errorf("%w: option text cannot be empty", domain.ErrInvalidInput)
		}
	}
	if req.Deadline <= time.Now().UnixMilli() {
		return fmt.Errorf("%w: deadline must be in the future", domain.ErrInvalidInput)
	}
	return nil
}
