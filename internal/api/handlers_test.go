package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pollchain/pollchain-go/internal/domain"
	"github.com/pollchain/pollchain-go/internal/session"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) CreatePoll(ctx context.Context, req domain.CreatePollRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

func (m *MockService) Vote(ctx context.Context, pollID, optionIndex uint64) (*domain.Poll, error) {
	args := m.Called(ctx, pollID, optionIndex)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Poll), args.Error(1)
}

func (m *MockService) DeletePoll(ctx context.Context, pollID uint64) (uint64, error) {
	args := m.Called(ctx, pollID)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *MockService) GetPoll(ctx context.Context, pollID uint64) (*domain.Poll, error) {
	args := m.Called(ctx, pollID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Poll), args.Error(1)
}

func (m *MockService) ExplorePolls(ctx context.Context, offset, limit uint64) (*domain.PollPage, error) {
	args := m.Called(ctx, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PollPage), args.Error(1)
}

func (m *MockService) MyPolls(ctx context.Context) ([]domain.Poll, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Poll), args.Error(1)
}

func (m *MockService) PollsByAddress(ctx context.Context, creator string) ([]domain.Poll, error) {
	args := m.Called(ctx, creator)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Poll), args.Error(1)
}

func (m *MockService) Stats() domain.AggregateStats {
	args := m.Called()
	return args.Get(0).(domain.AggregateStats)
}

func (m *MockService) RefreshStats(ctx context.Context) {
	m.Called(ctx)
}

type fakeBinder struct {
	user     *domain.User
	state    session.State
	connAddr string
	connErr  error
	loginErr error
}

func (b *fakeBinder) EstablishSession(ctx context.Context) (*domain.User, error) {
	if b.user == nil {
		return nil, domain.ErrNoSession
	}
	return b.user, nil
}

func (b *fakeBinder) Login(ctx context.Context, req domain.LoginRequest) (*domain.User, error) {
	if b.loginErr != nil {
		return nil, b.loginErr
	}
	b.state = session.StateDisconnected
	return b.user, nil
}

func (b *fakeBinder) Logout(ctx context.Context) error {
	b.user = nil
	b.state = session.StateNoSession
	return nil
}

func (b *fakeBinder) ConnectWallet(ctx context.Context) (string, error) {
	if b.connErr != nil {
		return "", b.connErr
	}
	b.state = session.StateConnected
	return b.connAddr, nil
}

func (b *fakeBinder) DisconnectWallet() {
	b.state = session.StateDisconnected
}

func (b *fakeBinder) State() session.State { return b.state }

func (b *fakeBinder) User() (*domain.User, bool) {
	if b.user == nil {
		return nil, false
	}
	return b.user, true
}

func (b *fakeBinder) RefreshIfNeeded(ctx context.Context) {}

type fakeAccount struct{ activeUsers int }

func (a *fakeAccount) Signup(ctx context.Context, req domain.SignupRequest) (*domain.User, error) {
	return &domain.User{ID: "u2", Username: req.Username, Email: req.Email}, nil
}

func (a *fakeAccount) UpdateProfile(ctx context.Context, req domain.UpdateProfileRequest) (*domain.User, error) {
	return &domain.User{ID: "u1", Username: req.Username}, nil
}

func (a *fakeAccount) ActiveUsers(ctx context.Context) (int, error) {
	return a.activeUsers, nil
}

type fakeWalletInfo struct {
	addr      string
	connected bool
}

func (w *fakeWalletInfo) Address() (string, bool) { return w.addr, w.connected }

type MockRedis struct {
	*redis.Client
	counters map[string]int64
	windows  map[string]int64
}

func NewMockRedis() *MockRedis {
	return &MockRedis{
		Client:   redis.NewClient(&redis.Options{}),
		counters: make(map[string]int64),
		windows:  make(map[string]int64),
	}
}

func (m *MockRedis) Incr(ctx context.Context, key string) *redis.IntCmd {
	m.counters[key]++
	return redis.NewIntResult(m.counters[key], nil)
}

func (m *MockRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	if strings.HasSuffix(key, ":count") {
		if count, exists := m.counters[key]; exists {
			return redis.NewStringResult(strconv.FormatInt(count, 10), nil)
		}
		return redis.NewStringResult("0", nil)
	}
	if strings.HasSuffix(key, ":window") {
		if window, exists := m.windows[key]; exists {
			return redis.NewStringResult(strconv.FormatInt(window, 10), nil)
		}
		return redis.NewStringResult(strconv.FormatInt(time.Now().Unix(), 10), nil)
	}
	return redis.NewStringResult("", redis.Nil)
}

func (m *MockRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	if strings.HasSuffix(key, ":window") {
		if val, ok := value.(int64); ok {
			m.windows[key] = val
		}
	}
	return redis.NewStatusResult("OK", nil)
}

func (m *MockRedis) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	return redis.NewBoolResult(true, nil)
}

func (m *MockRedis) Pipeline() redis.Pipeliner {
	return &MockPipeline{mockRedis: m}
}

type MockPipeline struct {
	redis.Pipeliner
	mockRedis *MockRedis
}

func (m *MockPipeline) Exec(ctx context.Context) ([]redis.Cmder, error) {
	return nil, nil
}

func (m *MockPipeline) Get(ctx context.Context, key string) *redis.StringCmd {
	return m.mockRedis.Get(ctx, key)
}

func (m *MockPipeline) Incr(ctx context.Context, key string) *redis.IntCmd {
	return m.mockRedis.Incr(ctx, key)
}

func (m *MockPipeline) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	return m.mockRedis.Set(ctx, key, value, expiration)
}

func setupTest(t *testing.T, binder *fakeBinder) (*gin.Engine, *MockService) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()

	mockService := new(MockService)
	logger := zap.NewNop()
	wallet := &fakeWalletInfo{addr: "0xabc", connected: binder.state == session.StateConnected}

	handler := NewHandler(mockService, binder, &fakeAccount{activeUsers: 4}, wallet, NewMockRedis(), logger)
	handler.RegisterRoutes(r)
	return r, mockService
}

func authedBinder() *fakeBinder {
	return &fakeBinder{
		user:     &domain.User{ID: "u1", Username: "alice"},
		state:    session.StateConnected,
		connAddr: "0xabc",
	}
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreatePollEndpoint(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		r, svc := setupTest(t, authedBinder())
		svc.On("CreatePoll", mock.Anything, mock.MatchedBy(func(req domain.CreatePollRequest) bool {
			return req.Title == "Lunch Poll" && len(req.OptionTexts) == 2
		})).Return(nil)

		w := doJSON(t, r, http.MethodPost, "/api/polls", gin.H{
			"title":       "Lunch Poll",
			"question":    "Where should we eat?",
			"optionTexts": []string{"Pizza", "Sushi"},
			"deadline":    time.Now().Add(48 * time.Hour).UnixMilli(),
		})

		assert.Equal(t, http.StatusCreated, w.Code)
		svc.AssertExpectations(t)
	})

	t.Run("requires a session", func(t *testing.T) {
		r, svc := setupTest(t, &fakeBinder{})

		w := doJSON(t, r, http.MethodPost, "/api/polls", gin.H{"title": "x"})

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		svc.AssertNotCalled(t, "CreatePoll", mock.Anything, mock.Anything)
	})

	t.Run("revert reason comes back verbatim", func(t *testing.T) {
		r, svc := setupTest(t, authedBinder())
		svc.On("CreatePoll", mock.Anything, mock.Anything).
			Return(&domain.RevertError{Reason: "Deadline must be in the future"})

		w := doJSON(t, r, http.MethodPost, "/api/polls", gin.H{
			"title":       "Lunch Poll",
			"question":    "Where should we eat?",
			"optionTexts": []string{"Pizza", "Sushi"},
			"deadline":    time.Now().Add(48 * time.Hour).UnixMilli(),
		})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "Deadline must be in the future")
	})

	t.Run("wallet not connected maps to conflict", func(t *testing.T) {
		r, svc := setupTest(t, authedBinder())
		svc.On("CreatePoll", mock.Anything, mock.Anything).Return(domain.ErrSignerNotInitialized)

		w := doJSON(t, r, http.MethodPost, "/api/polls", gin.H{
			"title":       "Lunch Poll",
			"question":    "Where should we eat?",
			"optionTexts": []string{"Pizza", "Sushi"},
			"deadline":    time.Now().Add(48 * time.Hour).UnixMilli(),
		})

		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("invalid body", func(t *testing.T) {
		r, _ := setupTest(t, authedBinder())

		w := doJSON(t, r, http.MethodPost, "/api/polls", gin.H{"title": "only a title"})

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("generic failure keeps the operation-wrapped message", func(t *testing.T) {
		r, svc := setupTest(t, authedBinder())
		svc.On("CreatePoll", mock.Anything, mock.Anything).
			Return(&domain.CallError{Op: "create poll", Err: errors.New("connection refused")})

		w := doJSON(t, r, http.MethodPost, "/api/polls", gin.H{
			"title":       "Lunch Poll",
			"question":    "Where should we eat?",
			"optionTexts": []string{"Pizza", "Sushi"},
			"deadline":    time.Now().Add(48 * time.Hour).UnixMilli(),
		})

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Contains(t, w.Body.String(), "failed to create poll: connection refused")
	})
}

func TestVoteEndpoint(t *testing.T) {
	t.Run("returns the refreshed poll", func(t *testing.T) {
		r, svc := setupTest(t, authedBinder())
		poll := &domain.Poll{ID: 7, OptionVotes: []uint64{4, 1}}
		svc.On("Vote", mock.Anything, uint64(7), uint64(0)).Return(poll, nil)

		w := doJSON(t, r, http.MethodPost, "/api/polls/7/vote", gin.H{"optionIndex": 0})

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"voterCount"`)
		svc.AssertExpectations(t)
	})

	t.Run("option zero is a valid choice", func(t *testing.T) {
		r, svc := setupTest(t, authedBinder())
		svc.On("Vote", mock.Anything, uint64(7), uint64(0)).Return(&domain.Poll{ID: 7}, nil)

		w := doJSON(t, r, http.MethodPost, "/api/polls/7/vote", gin.H{"optionIndex": 0})

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("missing option index", func(t *testing.T) {
		r, _ := setupTest(t, authedBinder())

		w := doJSON(t, r, http.MethodPost, "/api/polls/7/vote", gin.H{})

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("non-numeric poll id", func(t *testing.T) {
		r, _ := setupTest(t, authedBinder())

		w := doJSON(t, r, http.MethodPost, "/api/polls/abc/vote", gin.H{"optionIndex": 0})

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestDeletePollEndpoint(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		r, svc := setupTest(t, authedBinder())
		svc.On("DeletePoll", mock.Anything, uint64(7)).Return(uint64(7), nil)

		w := doJSON(t, r, http.MethodDelete, "/api/polls/7", nil)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"poll_id":7`)
	})

	t.Run("event timeout maps to gateway timeout", func(t *testing.T) {
		r, svc := setupTest(t, authedBinder())
		svc.On("DeletePoll", mock.Anything, uint64(7)).Return(uint64(0), domain.ErrEventTimeout)

		w := doJSON(t, r, http.MethodDelete, "/api/polls/7", nil)

		assert.Equal(t, http.StatusGatewayTimeout, w.Code)
	})
}

func TestExplorePollsEndpoint(t *testing.T) {
	t.Run("passes pagination through", func(t *testing.T) {
		r, svc := setupTest(t, authedBinder())
		svc.On("ExplorePolls", mock.Anything, uint64(6), uint64(6)).Return(&domain.PollPage{
			Polls:  []domain.Poll{{ID: 7}},
			Total:  10,
			Offset: 6,
			Limit:  6,
			Pages:  2,
		}, nil)

		w := doJSON(t, r, http.MethodGet, "/api/polls?offset=6&limit=6", nil)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"pages":2`)
	})

	t.Run("rejects an oversized limit", func(t *testing.T) {
		r, _ := setupTest(t, authedBinder())

		w := doJSON(t, r, http.MethodGet, "/api/polls?limit=500", nil)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestWalletEndpoints(t *testing.T) {
	t.Run("connect", func(t *testing.T) {
		binder := authedBinder()
		binder.state = session.StateDisconnected
		r, _ := setupTest(t, binder)

		w := doJSON(t, r, http.MethodPost, "/api/wallet/connect", nil)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "0xabc")
	})

	t.Run("user rejection maps to forbidden", func(t *testing.T) {
		binder := authedBinder()
		binder.connErr = domain.ErrUserRejected
		r, _ := setupTest(t, binder)

		w := doJSON(t, r, http.MethodPost, "/api/wallet/connect", nil)

		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("status", func(t *testing.T) {
		r, _ := setupTest(t, authedBinder())

		w := doJSON(t, r, http.MethodGet, "/api/wallet/status", nil)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"connected":true`)
	})
}

func TestStatsEndpoint(t *testing.T) {
	r, svc := setupTest(t, authedBinder())
	svc.On("Stats").Return(domain.AggregateStats{TotalPolls: 10, ActivePolls: 3, VotesCast: 25})

	w := doJSON(t, r, http.MethodGet, "/api/stats", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"totalPolls":10`)
}

func TestSessionEndpoints(t *testing.T) {
	t.Run("check session without cookies", func(t *testing.T) {
		r, _ := setupTest(t, &fakeBinder{})

		w := doJSON(t, r, http.MethodGet, "/api/auth/session", nil)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "Session expired")
	})

	t.Run("login", func(t *testing.T) {
		r, _ := setupTest(t, authedBinder())

		w := doJSON(t, r, http.MethodPost, "/api/auth/login", gin.H{
			"email":    "alice@example.com",
			"password": "secret",
		})

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "alice")
	})

	t.Run("active users", func(t *testing.T) {
		r, _ := setupTest(t, authedBinder())

		w := doJSON(t, r, http.MethodGet, "/api/auth/active-users", nil)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"active_users":4`)
	})
}
