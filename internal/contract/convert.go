package contract

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pollchain/pollchain-go/internal/domain"
)

// pollResult mirrors the PollView ABI tuple. Field order matters for unpacking.
type pollResult struct {
	Id              *big.Int
	Creator         common.Address
	Title           string
	Question        string
	OptionTexts     []string
	OptionVotes     []*big.Int
	VoterCount      *big.Int
	Deadline        *big.Int
	CreatedAt       *big.Int
	HasAlreadyVoted bool
}

func toPoll(res pollResult) (domain.Poll, error) {
	id, err := narrowUint64("id", res.Id)
	if err != nil {
		return domain.Poll{}, err
	}
	voterCount, err := narrowUint64("voterCount", res.VoterCount)
	if err != nil {
		return domain.Poll{}, err
	}
	deadline, err := narrowInt64("deadline", res.Deadline)
	if err != nil {
		return domain.Poll{}, err
	}
	createdAt, err := narrowInt64("createdAt", res.CreatedAt)
	if err != nil {
		return domain.Poll{}, err
	}

	votes := make([]uint64, len(res.OptionVotes))
	for i, v := range res.OptionVotes {
		votes[i], err = narrowUint64(fmt.Sprintf("optionVotes[%d]", i), v)
		if err != nil {
			return domain.Poll{}, err
		}
	}

	return domain.Poll{
		ID:              id,
		Creator:         strings.ToLower(res.Creator.Hex()),
		Title:           res.Title,
		Question:        res.Question,
		OptionTexts:     res.OptionTexts,
		OptionVotes:     votes,
		VoterCount:      voterCount,
		Deadline:        deadline,
		CreatedAt:       createdAt,
		HasAlreadyVoted: res.HasAlreadyVoted,
	}, nil
}

func toPolls(results []pollResult) ([]domain.Poll, error) {
	polls := make([]domain.Poll, 0, len(results))
	for _, res := range results {
		poll, err := toPoll(res)
		if err != nil {
			return nil, err
		}
		polls = append(polls, poll)
	}
	return polls, nil
}

// narrowUint64 rejects values the rest of the system cannot represent instead
// of silently truncating them.
func narrowUint64(field string, v *big.Int) (uint64, error) {
	if v == nil {
		return 0, fmt.Errorf("%w: %s is nil", domain.ErrValueOutOfRange, field)
	}
	if !v.IsUint64() {
		return 0, fmt.Errorf("%w: %s=%s exceeds uint64", domain.ErrValueOutOfRange, field, v.String())
	}
	return v.Uint64(), nil
}

func narrowInt64(field string, v *big.Int) (int64, error) {
	if v == nil {
		return 0, fmt.Errorf("%w: %s is nil", domain.ErrValueOutOfRange, field)
	}
	if !v.IsInt64() {
		return 0, fmt.Errorf("%w: %s=%s exceeds int64", domain.ErrValueOutOfRange, field, v.String())
	}
	return v.Int64(), nil
}
