package session

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/pollchain/pollchain-go/internal/domain"
)

// State is the binder's position in the session/wallet lifecycle. A wallet
// can only be Connected while a session is active.
type State int

const (
	StateNoSession State = iota
	StateDisconnected
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateNoSession:
		return "no_session"
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// API is the slice of the backend client the binder drives.
type API interface {
	CheckSession(ctx context.Context) (*domain.User, error)
	RefreshToken(ctx context.Context) (*domain.User, error)
	Login(ctx context.Context, req domain.LoginRequest) (*domain.User, error)
	Logout(ctx context.Context) error
	SessionExpiringSoon() bool
}

// WalletController is the slice of the wallet manager the binder drives.
type WalletController interface {
	Initialize(ctx context.Context) (bool, error)
	Connect(ctx context.Context) (string, error)
	Disconnect()
	SetDisconnectHook(fn func())
	SetChainChangedHook(fn func())
}

// Cache is what the binder flushes and warms across lifecycle transitions.
type Cache interface {
	RefreshAll(ctx context.Context)
	RefreshViewer(ctx context.Context)
	Flush()
}

// Binder ties the authenticated identity to the wallet connection. Wallet
// operations are gated entirely behind an active session.
type Binder struct {
	api    API
	wallet WalletController
	cache  Cache
	logger *zap.Logger

	mu    sync.RWMutex
	state State
	user  *domain.User
}

func NewBinder(api API, wallet WalletController, cache Cache, logger *zap.Logger) *Binder {
	b := &Binder{
		api:    api,
		wallet: wallet,
		cache:  cache,
		logger: logger,
	}
	wallet.SetDisconnectHook(b.onForcedDisconnect)
	wallet.SetChainChangedHook(b.onChainChanged)
	return b
}

// EstablishSession validates the existing session, falling back to a token
// refresh, then attempts a wallet auto-connect. Auto-connect failure is
// logged and non-fatal: the session stays usable without a wallet.
func (b *Binder) EstablishSession(ctx context.Context) (*domain.User, error) {
	user, err := b.api.CheckSession(ctx)
	if err != nil {
		b.logger.Debug("session check failed, trying refresh", zap.Error(err))
		user, err = b.api.RefreshToken(ctx)
		if err != nil {
			b.setState(StateNoSession, nil)
			return nil, fmt.Errorf("%w: session expired, login again", domain.ErrNoSession)
		}
	}

	b.setState(StateDisconnected, user)
	b.autoConnect(ctx)
	return user, nil
}

// RefreshIfNeeded proactively renews the session when the access token is
// about to expire. Harmless to call on every request.
func (b *Binder) RefreshIfNeeded(ctx context.Context) {
	if b.State() == StateNoSession || !b.api.SessionExpiringSoon() {
		return
	}
	user, err := b.api.RefreshToken(ctx)
	if err != nil {
		b.logger.Warn("proactive token refresh failed", zap.Error(err))
		return
	}
	b.mu.Lock()
	b.user = user
	b.mu.Unlock()
}

func (b *Binder) Login(ctx context.Context, req domain.LoginRequest) (*domain.User, error) {
	user, err := b.api.Login(ctx, req)
	if err != nil {
		return nil, err
	}
	b.setState(StateDisconnected, user)
	b.autoConnect(ctx)
	return user, nil
}

// Logout ends the session and forces the wallet down regardless of state.
func (b *Binder) Logout(ctx context.Context) error {
	err := b.api.Logout(ctx)
	b.wallet.Disconnect()
	b.cache.Flush()
	b.setState(StateNoSession, nil)
	return err
}

// ConnectWallet explicitly connects the wallet. Fails with ErrNoSession when
// no user is authenticated; Connected is unreachable from NoSession.
func (b *Binder) ConnectWallet(ctx context.Context) (string, error) {
	if b.State() == StateNoSession {
		return "", domain.ErrNoSession
	}
	addr, err := b.wallet.Connect(ctx)
	if err != nil {
		return "", err
	}
	b.markConnected()
	b.cache.RefreshAll(ctx)
	b.cache.RefreshViewer(ctx)
	return addr, nil
}

func (b *Binder) DisconnectWallet() {
	b.wallet.Disconnect()
	b.cache.Flush()
	b.mu.Lock()
	if b.state == StateConnected {
		b.state = StateDisconnected
	}
	b.mu.Unlock()
}

func (b *Binder) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

func (b *Binder) User() (*domain.User, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.user == nil {
		return nil, false
	}
	u := *b.user
	return &u, true
}

func (b *Binder) autoConnect(ctx context.Context) {
	ok, err := b.wallet.Initialize(ctx)
	if err != nil {
		b.logger.Warn("wallet auto-connect failed", zap.Error(err))
		return
	}
	if !ok {
		b.logger.Info("no signing provider configured, staying disconnected")
		return
	}
	b.markConnected()
	b.cache.RefreshAll(ctx)
	b.cache.RefreshViewer(ctx)
}

// setState replaces the state/user pair together; a half-updated pair is
// never visible to a concurrent read.
func (b *Binder) setState(state State, user *domain.User) {
	b.mu.Lock()
	b.state = state
	b.user = user
	b.mu.Unlock()
}

func (b *Binder) markConnected() {
	b.mu.Lock()
	if b.state != StateNoSession {
		b.state = StateConnected
	}
	b.mu.Unlock()
}

// onForcedDisconnect runs when the provider empties the account list or the
// signer cannot be rebound. The session itself survives.
func (b *Binder) onForcedDisconnect() {
	b.logger.Info("wallet force-disconnected by provider")
	b.cache.Flush()
	b.mu.Lock()
	if b.state == StateConnected {
		b.state = StateDisconnected
	}
	b.mu.Unlock()
}

// onChainChanged drops every piece of chain-derived state and starts over.
// No partial reconciliation across chains is attempted.
func (b *Binder) onChainChanged() {
	b.logger.Warn("chain changed, resetting chain state")
	b.cache.Flush()
	b.mu.Lock()
	if b.state == StateConnected {
		b.state = StateDisconnected
	}
	b.mu.Unlock()
	b.autoConnect(context.Background())
}
