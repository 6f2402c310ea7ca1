package contract

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/pollchain/pollchain-go/internal/domain"
)

// Subscriber is the slice of the backend the tracker needs.
type Subscriber interface {
	SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error)
}

// Tracker confirms transactions whose outcome is only observable through a
// contract event. The subscription is opened before the transaction is
// submitted so the event cannot slip through the gap, and is released on
// every exit path.
type Tracker struct {
	backend Subscriber
	address common.Address
	abi     abi.ABI
	timeout time.Duration
	logger  *zap.Logger
}

func NewTracker(backend Subscriber, address common.Address, timeout time.Duration, logger *zap.Logger) (*Tracker, error) {
	parsed, err := abi.JSON(strings.NewReader(PollChainABI))
	if err != nil {
		return nil, fmt.Errorf("parse contract abi: %w", err)
	}
	return &Tracker{
		backend: backend,
		address: address,
		abi:     parsed,
		timeout: timeout,
		logger:  logger,
	}, nil
}

// AwaitEvent subscribes to eventName, runs submit, then races the first
// matching log against the configured timeout. Returns the event's poll id.
func (t *Tracker) AwaitEvent(ctx context.Context, eventName string, submit func(context.Context) error) (uint64, error) {
	ev, ok := t.abi.Events[eventName]
	if !ok {
		return 0, fmt.Errorf("unknown contract event %q", eventName)
	}

	logs := make(chan types.Log, 1)
	query := ethereum.FilterQuery{
		Addresses: []common.Address{t.address},
		Topics:    [][]common.Hash{{ev.ID}},
	}
	sub, err := t.backend.SubscribeFilterLogs(ctx, query, logs)
	if err != nil {
		return 0, &domain.CallError{Op: "subscribe to " + eventName, Err: err}
	}
	defer sub.Unsubscribe()

	if err := submit(ctx); err != nil {
		return 0, err
	}

	timer := time.NewTimer(t.timeout)
	defer timer.Stop()

	select {
	case lg := <-logs:
		return t.decodePollID(eventName, lg)
	case err := <-sub.Err():
		return 0, &domain.CallError{Op: "await " + eventName, Err: err}
	case <-timer.C:
		t.logger.Warn("event wait timed out",
			zap.String("event", eventName),
			zap.Duration("timeout", t.timeout))
		return 0, domain.ErrEventTimeout
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (t *Tracker) decodePollID(eventName string, lg types.Log) (uint64, error) {
	vals, err := t.abi.Unpack(eventName, lg.Data)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrMalformedEvent, err)
	}
	if len(vals) == 0 {
		return 0, fmt.Errorf("%w: %s carried no payload", domain.ErrMalformedEvent, eventName)
	}
	id, ok := vals[0].(*big.Int)
	if !ok || id == nil || id.Sign() <= 0 {
		return 0, fmt.Errorf("%w: %s carried no poll id", domain.ErrMalformedEvent, eventName)
	}
	return narrowUint64("pollId", id)
}
