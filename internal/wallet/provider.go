// Package wallet owns the signing-provider handle and the derived account
// address. All consumers see one consistent provider/signer pair through the
// Manager; the Provider implementations are the external boundary to a
// signing agent.
package wallet

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

// Provider is the external signing-agent boundary. RequestAccounts may prompt
// the user on the agent side. The change subscriptions return an unsubscribe
// func; implementations must tolerate unsubscribe being called after Close.
type Provider interface {
	RequestAccounts(ctx context.Context) ([]common.Address, error)
	Signer(ctx context.Context, account common.Address) (*bind.TransactOpts, error)
	OnAccountsChanged(fn func(accounts []common.Address)) (unsubscribe func())
	OnChainChanged(fn func(chainID *big.Int)) (unsubscribe func())
	Close() error
}
