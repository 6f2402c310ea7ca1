package contract

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pollchain/pollchain-go/internal/domain"
)

type fakeSubscription struct {
	errCh chan error

	mu           sync.Mutex
	unsubscribed bool
}

func newFakeSubscription() *fakeSubscription {
	return &fakeSubscription{errCh: make(chan error, 1)}
}

func (s *fakeSubscription) Unsubscribe() {
	s.mu.Lock()
	s.unsubscribed = true
	s.mu.Unlock()
}

func (s *fakeSubscription) Err() <-chan error {
	return s.errCh
}

func (s *fakeSubscription) isUnsubscribed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unsubscribed
}

type fakeSubscriber struct {
	sub          *fakeSubscription
	subscribeErr error

	query ethereum.FilterQuery
	logs  chan<- types.Log
}

func (f *fakeSubscriber) SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	if f.subscribeErr != nil {
		return nil, f.subscribeErr
	}
	f.query = q
	f.logs = ch
	return f.sub, nil
}

func newTestTracker(t *testing.T, backend *fakeSubscriber, timeout time.Duration) *Tracker {
	t.Helper()
	tracker, err := NewTracker(backend, testContract, timeout, zap.NewNop())
	require.NoError(t, err)
	return tracker
}

func deletedLog(t *testing.T, pollID int64) types.Log {
	t.Helper()
	data, err := mustParseABI(t).Events[EventPollDeleted].Inputs.Pack(big.NewInt(pollID))
	require.NoError(t, err)
	return types.Log{Address: testContract, Data: data}
}

func TestAwaitEvent(t *testing.T) {
	t.Run("subscribes before submitting and returns the poll id", func(t *testing.T) {
		backend := &fakeSubscriber{sub: newFakeSubscription()}
		tracker := newTestTracker(t, backend, time.Second)

		id, err := tracker.AwaitEvent(context.Background(), EventPollDeleted, func(ctx context.Context) error {
			// The listener must be live before the transaction goes out.
			require.NotNil(t, backend.logs)
			backend.logs <- deletedLog(t, 7)
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, uint64(7), id)
		assert.True(t, backend.sub.isUnsubscribed())

		ev := mustParseABI(t).Events[EventPollDeleted]
		require.Len(t, backend.query.Topics, 1)
		assert.Equal(t, ev.ID, backend.query.Topics[0][0])
		assert.Equal(t, []common.Address{testContract}, backend.query.Addresses)
	})

	t.Run("times out when the event never arrives", func(t *testing.T) {
		backend := &fakeSubscriber{sub: newFakeSubscription()}
		tracker := newTestTracker(t, backend, 20*time.Millisecond)

		_, err := tracker.AwaitEvent(context.Background(), EventPollDeleted, func(ctx context.Context) error {
			return nil
		})
		assert.ErrorIs(t, err, domain.ErrEventTimeout)
		assert.True(t, backend.sub.isUnsubscribed())
	})

	t.Run("submit failure propagates and releases the listener", func(t *testing.T) {
		backend := &fakeSubscriber{sub: newFakeSubscription()}
		tracker := newTestTracker(t, backend, time.Second)
		submitErr := errors.New("tx rejected")

		_, err := tracker.AwaitEvent(context.Background(), EventPollDeleted, func(ctx context.Context) error {
			return submitErr
		})
		assert.ErrorIs(t, err, submitErr)
		assert.True(t, backend.sub.isUnsubscribed())
	})

	t.Run("subscribe failure is reported before submit runs", func(t *testing.T) {
		backend := &fakeSubscriber{sub: newFakeSubscription(), subscribeErr: errors.New("ws closed")}
		tracker := newTestTracker(t, backend, time.Second)

		submitted := false
		_, err := tracker.AwaitEvent(context.Background(), EventPollDeleted, func(ctx context.Context) error {
			submitted = true
			return nil
		})
		require.Error(t, err)
		assert.False(t, submitted)
	})

	t.Run("subscription error ends the wait", func(t *testing.T) {
		backend := &fakeSubscriber{sub: newFakeSubscription()}
		tracker := newTestTracker(t, backend, time.Second)

		_, err := tracker.AwaitEvent(context.Background(), EventPollDeleted, func(ctx context.Context) error {
			backend.sub.errCh <- errors.New("connection dropped")
			return nil
		})
		var callErr *domain.CallError
		assert.ErrorAs(t, err, &callErr)
	})

	t.Run("empty payload is malformed", func(t *testing.T) {
		backend := &fakeSubscriber{sub: newFakeSubscription()}
		tracker := newTestTracker(t, backend, time.Second)

		_, err := tracker.AwaitEvent(context.Background(), EventPollDeleted, func(ctx context.Context) error {
			backend.logs <- types.Log{Address: testContract}
			return nil
		})
		assert.ErrorIs(t, err, domain.ErrMalformedEvent)
	})

	t.Run("zero poll id is malformed", func(t *testing.T) {
		backend := &fakeSubscriber{sub: newFakeSubscription()}
		tracker := newTestTracker(t, backend, time.Second)

		_, err := tracker.AwaitEvent(context.Background(), EventPollDeleted, func(ctx context.Context) error {
			backend.logs <- deletedLog(t, 0)
			return nil
		})
		assert.ErrorIs(t, err, domain.ErrMalformedEvent)
	})

	t.Run("context cancellation wins over the timer", func(t *testing.T) {
		backend := &fakeSubscriber{sub: newFakeSubscription()}
		tracker := newTestTracker(t, backend, time.Second)

		ctx, cancel := context.WithCancel(context.Background())
		_, err := tracker.AwaitEvent(ctx, EventPollDeleted, func(ctx context.Context) error {
			cancel()
			return nil
		})
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("unknown event name", func(t *testing.T) {
		backend := &fakeSubscriber{sub: newFakeSubscription()}
		tracker := newTestTracker(t, backend, time.Second)

		_, err := tracker.AwaitEvent(context.Background(), "NoSuchEvent", func(ctx context.Context) error {
			return nil
		})
		require.Error(t, err)
	})
}
