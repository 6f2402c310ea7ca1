package wallet

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/pollchain/pollchain-go/internal/domain"
	"github.com/pollchain/pollchain-go/internal/metrics"
)

// Manager is the single owner of the provider/signer pair. The signer and the
// account address are always replaced together under one lock; a half-updated
// pair is never visible to a concurrent read.
type Manager struct {
	provider Provider
	logger   *zap.Logger

	mu            sync.RWMutex
	signer        *bind.TransactOpts
	address       common.Address
	connected     bool
	subscribed    bool
	unsubAccounts func()
	unsubChain    func()

	hookMu         sync.Mutex
	onDisconnect   func()
	onChainChanged func()
}

// NewManager accepts a nil provider: Initialize then reports that no
// compatible provider is present instead of failing.
func NewManager(provider Provider, logger *zap.Logger) *Manager {
	return &Manager{
		provider: provider,
		logger:   logger,
	}
}

// SetDisconnectHook registers a callback invoked after the manager force-
// disconnects on its own (empty account list, signer rebind failure).
func (m *Manager) SetDisconnectHook(fn func()) {
	m.hookMu.Lock()
	m.onDisconnect = fn
	m.hookMu.Unlock()
}

// SetChainChangedHook registers a callback invoked after a chain change has
// torn the connection down. No partial state survives a chain switch; the
// hook is expected to flush caches and re-initialize.
func (m *Manager) SetChainChangedHook(fn func()) {
	m.hookMu.Lock()
	m.onChainChanged = fn
	m.hookMu.Unlock()
}

// Initialize attempts to obtain accounts from the provider. It returns
// (false, nil) when no provider is configured, and (false, err) when a
// provider exists but connecting failed.
func (m *Manager) Initialize(ctx context.Context) (bool, error) {
	if m.provider == nil {
		return false, nil
	}
	if _, err := m.connect(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Connect explicitly requests account access, which may prompt the user on
// the agent side, and (re)binds the signer pair.
func (m *Manager) Connect(ctx context.Context) (string, error) {
	if m.provider == nil {
		return "", domain.ErrProviderUnavailable
	}
	return m.connect(ctx)
}

func (m *Manager) connect(ctx context.Context) (string, error) {
	accounts, err := m.provider.RequestAccounts(ctx)
	if err != nil {
		metrics.RecordWalletConnection(err)
		return "", err
	}
	if len(accounts) == 0 {
		metrics.RecordWalletConnection(domain.ErrProviderUnavailable)
		return "", fmt.Errorf("%w: provider returned no accounts", domain.ErrProviderUnavailable)
	}

	signer, err := m.provider.Signer(ctx, accounts[0])
	if err != nil {
		metrics.RecordWalletConnection(err)
		return "", fmt.Errorf("derive signer: %w", err)
	}

	m.mu.Lock()
	m.signer = signer
	m.address = accounts[0]
	m.connected = true
	m.ensureSubscriptionsLocked()
	m.mu.Unlock()

	metrics.RecordWalletConnection(nil)
	addr := normalizeAddress(accounts[0])
	m.logger.Info("wallet connected", zap.String("address", addr))
	return addr, nil
}

// ensureSubscriptionsLocked registers the account/chain listeners exactly
// once for the manager's lifetime, so repeated connects never stack handlers.
func (m *Manager) ensureSubscriptionsLocked() {
	if m.subscribed {
		return
	}
	m.subscribed = true
	m.unsubAccounts = m.provider.OnAccountsChanged(m.handleAccountsChanged)
	m.unsubChain = m.provider.OnChainChanged(m.handleChainChanged)
}

func (m *Manager) handleAccountsChanged(accounts []common.Address) {
	if len(accounts) == 0 {
		m.logger.Info("account list empty, disconnecting wallet")
		m.Disconnect()
		m.fireDisconnect()
		return
	}

	signer, err := m.provider.Signer(context.Background(), accounts[0])
	if err != nil {
		m.logger.Warn("failed to rebind signer after account change", zap.Error(err))
		m.Disconnect()
		m.fireDisconnect()
		return
	}

	m.mu.Lock()
	m.signer = signer
	m.address = accounts[0]
	m.connected = true
	m.mu.Unlock()

	m.logger.Info("active account changed", zap.String("address", normalizeAddress(accounts[0])))
}

func (m *Manager) handleChainChanged(chainID *big.Int) {
	m.logger.Warn("chain changed, tearing down connection", zap.String("chain_id", chainID.String()))
	m.Disconnect()
	m.hookMu.Lock()
	fn := m.onChainChanged
	m.hookMu.Unlock()
	if fn != nil {
		fn()
	}
}

func (m *Manager) fireDisconnect() {
	m.hookMu.Lock()
	fn := m.onDisconnect
	m.hookMu.Unlock()
	if fn != nil {
		fn()
	}
}

// Disconnect clears the signer/address pair unconditionally. Idempotent.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.signer = nil
	m.address = common.Address{}
	m.connected = false
	m.mu.Unlock()
}

func (m *Manager) Connected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

func (m *Manager) Address() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.connected {
		return "", false
	}
	return normalizeAddress(m.address), true
}

// Connection returns an atomic view of the bound account and signer. Fails
// fast with ErrSignerNotInitialized before any successful connect.
func (m *Manager) Connection() (common.Address, *bind.TransactOpts, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.connected || m.signer == nil {
		return common.Address{}, nil, domain.ErrSignerNotInitialized
	}
	return m.address, m.signer, nil
}

// Close releases the provider listeners and drops the connection. After Close
// the manager can be connected again; listeners are re-registered once.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.unsubAccounts != nil {
		m.unsubAccounts()
		m.unsubAccounts = nil
	}
	if m.unsubChain != nil {
		m.unsubChain()
		m.unsubChain = nil
	}
	m.subscribed = false
	m.mu.Unlock()
	m.Disconnect()
}

func normalizeAddress(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}
