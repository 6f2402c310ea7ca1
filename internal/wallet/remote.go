package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"

	"github.com/pollchain/pollchain-go/internal/domain"
)

// EIP-1193: the agent returns code 4001 when the user declines a prompt.
const codeUserRejected = 4001

// RemoteProvider talks to an external signing agent over JSON-RPC. The agent
// holds the keys; transactions are signed via eth_signTransaction. Account and
// chain changes are detected by polling eth_accounts/eth_chainId and diffing
// against the last observed values.
type RemoteProvider struct {
	rpc          *rpc.Client
	chainID      *big.Int
	pollInterval time.Duration
	logger       *zap.Logger

	mu           sync.Mutex
	accountSubs  map[int]func([]common.Address)
	chainSubs    map[int]func(*big.Int)
	nextSub      int
	lastAccounts []common.Address
	lastChainID  *big.Int

	stop      chan struct{}
	watchOnce sync.Once
	closeOnce sync.Once
}

func DialRemoteProvider(ctx context.Context, agentURL string, chainID int64, pollInterval time.Duration, logger *zap.Logger) (*RemoteProvider, error) {
	client, err := rpc.DialContext(ctx, agentURL)
	if err != nil {
		return nil, fmt.Errorf("dial signing agent: %w", err)
	}
	return &RemoteProvider{
		rpc:          client,
		chainID:      big.NewInt(chainID),
		pollInterval: pollInterval,
		logger:       logger,
		accountSubs:  make(map[int]func([]common.Address)),
		chainSubs:    make(map[int]func(*big.Int)),
		stop:         make(chan struct{}),
	}, nil
}

func (p *RemoteProvider) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	var accounts []common.Address
	if err := p.rpc.CallContext(ctx, &accounts, "eth_requestAccounts"); err != nil {
		var rpcErr rpc.Error
		if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == codeUserRejected {
			return nil, domain.ErrUserRejected
		}
		return nil, fmt.Errorf("request accounts: %w", err)
	}

	p.mu.Lock()
	p.lastAccounts = accounts
	p.mu.Unlock()
	p.startWatch()
	return accounts, nil
}

func (p *RemoteProvider) Signer(ctx context.Context, account common.Address) (*bind.TransactOpts, error) {
	return &bind.TransactOpts{
		From: account,
		Signer: func(addr common.Address, tx *types.Transaction) (*types.Transaction, error) {
			if addr != account {
				return nil, bind.ErrNotAuthorized
			}
			return p.signTx(account, tx)
		},
	}, nil
}

func (p *RemoteProvider) signTx(account common.Address, tx *types.Transaction) (*types.Transaction, error) {
	arg := map[string]interface{}{
		"from":    account,
		"nonce":   hexutil.Uint64(tx.Nonce()),
		"gas":     hexutil.Uint64(tx.Gas()),
		"data":    hexutil.Bytes(tx.Data()),
		"chainId": (*hexutil.Big)(p.chainID),
	}
	if tx.To() != nil {
		arg["to"] = *tx.To()
	}
	if tx.Value() != nil {
		arg["value"] = (*hexutil.Big)(tx.Value())
	}
	if tx.Type() == types.DynamicFeeTxType {
		arg["maxFeePerGas"] = (*hexutil.Big)(tx.GasFeeCap())
		arg["maxPriorityFeePerGas"] = (*hexutil.Big)(tx.GasTipCap())
	} else {
		arg["gasPrice"] = (*hexutil.Big)(tx.GasPrice())
	}

	var raw hexutil.Bytes
	if err := p.rpc.CallContext(context.Background(), &raw, "eth_signTransaction", arg); err != nil {
		var rpcErr rpc.Error
		if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == codeUserRejected {
			return nil, domain.ErrUserRejected
		}
		return nil, fmt.Errorf("sign transaction: %w", err)
	}

	signed := new(types.Transaction)
	if err := signed.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("decode signed transaction: %w", err)
	}
	return signed, nil
}

func (p *RemoteProvider) OnAccountsChanged(fn func([]common.Address)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextSub
	p.nextSub++
	p.accountSubs[id] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.accountSubs, id)
	}
}

func (p *RemoteProvider) OnChainChanged(fn func(*big.Int)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextSub
	p.nextSub++
	p.chainSubs[id] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.chainSubs, id)
	}
}

func (p *RemoteProvider) Close() error {
	p.closeOnce.Do(func() {
		close(p.stop)
		p.rpc.Close()
	})
	return nil
}

func (p *RemoteProvider) startWatch() {
	p.watchOnce.Do(func() {
		go p.watch()
	})
}

func (p *RemoteProvider) watch() {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.checkAccounts()
			p.checkChain()
		}
	}
}

func (p *RemoteProvider) checkAccounts() {
	ctx, cancel := context.WithTimeout(context.Background(), p.pollInterval)
	defer cancel()

	var accounts []common.Address
	if err := p.rpc.CallContext(ctx, &accounts, "eth_accounts"); err != nil {
		p.logger.Debug("account poll failed", zap.Error(err))
		return
	}

	p.mu.Lock()
	if sameAccounts(p.lastAccounts, accounts) {
		p.mu.Unlock()
		return
	}
	p.lastAccounts = accounts
	subs := make([]func([]common.Address), 0, len(p.accountSubs))
	for _, fn := range p.accountSubs {
		subs = append(subs, fn)
	}
	p.mu.Unlock()

	for _, fn := range subs {
		fn(accounts)
	}
}

func (p *RemoteProvider) checkChain() {
	ctx, cancel := context.WithTimeout(context.Background(), p.pollInterval)
	defer cancel()

	var id hexutil.Big
	if err := p.rpc.CallContext(ctx, &id, "eth_chainId"); err != nil {
		p.logger.Debug("chain id poll failed", zap.Error(err))
		return
	}

	current := (*big.Int)(&id)
	p.mu.Lock()
	if p.lastChainID != nil && p.lastChainID.Cmp(current) == 0 {
		p.mu.Unlock()
		return
	}
	first := p.lastChainID == nil
	p.lastChainID = new(big.Int).Set(current)
	subs := make([]func(*big.Int), 0, len(p.chainSubs))
	for _, fn := range p.chainSubs {
		subs = append(subs, fn)
	}
	p.mu.Unlock()

	// The first observation is a baseline, not a change.
	if first {
		return
	}
	for _, fn := range subs {
		fn(current)
	}
}

func sameAccounts(a, b []common.Address) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
