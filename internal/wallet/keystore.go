package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// KeystoreProvider signs with a server-held private key. There is exactly one
// account and it never changes, so the change subscriptions are no-ops.
type KeystoreProvider struct {
	key     *ecdsa.PrivateKey
	address common.Address
	chainID *big.Int
}

func NewKeystoreProvider(hexKey string, chainID int64) (*KeystoreProvider, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return &KeystoreProvider{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		chainID: big.NewInt(chainID),
	}, nil
}

func (p *KeystoreProvider) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	return []common.Address{p.address}, nil
}

func (p *KeystoreProvider) Signer(ctx context.Context, account common.Address) (*bind.TransactOpts, error) {
	if account != p.address {
		return nil, bind.ErrNotAuthorized
	}
	opts, err := bind.NewKeyedTransactorWithChainID(p.key, p.chainID)
	if err != nil {
		return nil, fmt.Errorf("build keyed transactor: %w", err)
	}
	return opts, nil
}

func (p *KeystoreProvider) OnAccountsChanged(fn func([]common.Address)) func() {
	return func() {}
}

func (p *KeystoreProvider) OnChainChanged(fn func(*big.Int)) func() {
	return func() {}
}

func (p *KeystoreProvider) Close() error {
	return nil
}
