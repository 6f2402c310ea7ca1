// Package contract wraps the PollChain contract behind typed operations.
// Reads go through eth_call with the connected account as caller; writes are
// signed through the wallet manager and waited to inclusion.
package contract

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/pollchain/pollchain-go/internal/domain"
	"github.com/pollchain/pollchain-go/internal/metrics"
)

// Backend is the chain connection the gateway needs: calls, transactions and
// receipt lookups. *ethclient.Client satisfies it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// Wallet supplies the bound account and signer. Every operation, reads
// included, requires a live connection: view methods depend on the caller
// address for per-user fields.
type Wallet interface {
	Connection() (common.Address, *bind.TransactOpts, error)
}

type Gateway struct {
	backend Backend
	wallet  Wallet
	bound   *bind.BoundContract
	address common.Address
	logger  *zap.Logger
}

func NewGateway(backend Backend, wallet Wallet, address common.Address, logger *zap.Logger) (*Gateway, error) {
	parsed, err := abi.JSON(strings.NewReader(PollChainABI))
	if err != nil {
		return nil, fmt.Errorf("parse contract abi: %w", err)
	}
	return &Gateway{
		backend: backend,
		wallet:  wallet,
		bound:   bind.NewBoundContract(address, parsed, backend, backend, backend),
		address: address,
		logger:  logger,
	}, nil
}

func (g *Gateway) CreatePoll(ctx context.Context, req domain.CreatePollRequest) error {
	start := time.Now()
	err := g.transact(ctx, "create poll", "createPoll",
		req.Title, req.Question, req.OptionTexts, big.NewInt(req.Deadline))
	metrics.RecordContractCall("create_poll", start, err)
	return err
}

func (g *Gateway) Vote(ctx context.Context, pollID, optionIndex uint64) error {
	start := time.Now()
	err := g.transact(ctx, "cast vote", "vote",
		new(big.Int).SetUint64(pollID), new(big.Int).SetUint64(optionIndex))
	metrics.RecordContractCall("vote", start, err)
	return err
}

// DeletePoll submits the deletion transaction. Confirmation arrives through
// the PollDeleted event, not the receipt; callers race it via the Tracker.
func (g *Gateway) DeletePoll(ctx context.Context, pollID uint64) error {
	start := time.Now()
	err := g.transact(ctx, "delete poll", "deletePoll", new(big.Int).SetUint64(pollID))
	metrics.RecordContractCall("delete_poll", start, err)
	return err
}

func (g *Gateway) GetPoll(ctx context.Context, pollID uint64) (*domain.Poll, error) {
	start := time.Now()
	out, err := g.call(ctx, "getPoll", new(big.Int).SetUint64(pollID))
	metrics.RecordContractCall("get_poll", start, err)
	if err != nil {
		return nil, normalize("fetch poll", err)
	}
	res := *abi.ConvertType(out[0], new(pollResult)).(*pollResult)
	poll, err := toPoll(res)
	if err != nil {
		return nil, err
	}
	return &poll, nil
}

func (g *Gateway) GetAllPolls(ctx context.Context, offset, limit uint64) ([]domain.Poll, error) {
	start := time.Now()
	out, err := g.call(ctx, "getAllPolls",
		new(big.Int).SetUint64(offset), new(big.Int).SetUint64(limit))
	metrics.RecordContractCall("get_all_polls", start, err)
	if err != nil {
		return nil, normalize("fetch polls", err)
	}
	return toPolls(*abi.ConvertType(out[0], new([]pollResult)).(*[]pollResult))
}

func (g *Gateway) GetUserPolls(ctx context.Context) ([]domain.Poll, error) {
	start := time.Now()
	out, err := g.call(ctx, "getUserPolls")
	metrics.RecordContractCall("get_user_polls", start, err)
	if err != nil {
		return nil, normalize("fetch your polls", err)
	}
	return toPolls(*abi.ConvertType(out[0], new([]pollResult)).(*[]pollResult))
}

func (g *Gateway) GetPollsByAddress(ctx context.Context, creator string) ([]domain.Poll, error) {
	if !common.IsHexAddress(creator) {
		return nil, fmt.Errorf("%w: invalid address %q", domain.ErrInvalidInput, creator)
	}
	start := time.Now()
	out, err := g.call(ctx, "getPollsViaAddress", common.HexToAddress(creator))
	metrics.RecordContractCall("get_polls_by_address", start, err)
	if err != nil {
		return nil, normalize("fetch polls for address", err)
	}
	return toPolls(*abi.ConvertType(out[0], new([]pollResult)).(*[]pollResult))
}

func (g *Gateway) ActivePollsCount(ctx context.Context) (uint64, error) {
	return g.count(ctx, "getActivePollsCount", "active_polls_count", "fetch active polls count")
}

func (g *Gateway) TotalPollsCount(ctx context.Context) (uint64, error) {
	return g.count(ctx, "getAllPollsCount", "total_polls_count", "fetch total polls count")
}

func (g *Gateway) VotesCast(ctx context.Context) (uint64, error) {
	return g.count(ctx, "getVotesCasted", "votes_cast", "fetch votes cast")
}

func (g *Gateway) PollsVotedByUser(ctx context.Context) (uint64, error) {
	return g.count(ctx, "getPollsVotedByUser", "polls_voted_by_user", "fetch polls voted by user")
}

func (g *Gateway) count(ctx context.Context, method, metric, op string) (uint64, error) {
	start := time.Now()
	out, err := g.call(ctx, method)
	metrics.RecordContractCall(metric, start, err)
	if err != nil {
		return 0, normalize(op, err)
	}
	return narrowUint64(method, *abi.ConvertType(out[0], new(*big.Int)).(**big.Int))
}

// call runs a view method as the connected account. Fails fast with
// ErrSignerNotInitialized when no wallet is bound.
func (g *Gateway) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	from, _, err := g.wallet.Connection()
	if err != nil {
		return nil, err
	}
	var out []interface{}
	opts := &bind.CallOpts{Context: ctx, From: from}
	if err := g.bound.Call(opts, &out, method, args...); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("method %s returned no values", method)
	}
	return out, nil
}

func (g *Gateway) transact(ctx context.Context, op, method string, args ...interface{}) error {
	_, signer, err := g.wallet.Connection()
	if err != nil {
		return err
	}

	opts := *signer
	opts.Context = ctx
	tx, err := g.bound.Transact(&opts, method, args...)
	if err != nil {
		return normalize(op, err)
	}

	g.logger.Debug("transaction submitted",
		zap.String("method", method),
		zap.String("tx", tx.Hash().Hex()))

	receipt, err := bind.WaitMined(ctx, g.backend, tx)
	if err != nil {
		return normalize(op, err)
	}
	if receipt.Status == types.ReceiptStatusFailed {
		return normalize(op, fmt.Errorf("transaction %s reverted", tx.Hash().Hex()))
	}
	return nil
}
