package contract

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pollchain/pollchain-go/internal/domain"
)

func validPollResult() pollResult {
	return pollResult{
		Id:              big.NewInt(7),
		Creator:         common.HexToAddress("0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B"),
		Title:           "Favorite language",
		Question:        "Which one do you reach for first?",
		OptionTexts:     []string{"Go", "Rust"},
		OptionVotes:     []*big.Int{big.NewInt(3), big.NewInt(1)},
		VoterCount:      big.NewInt(4),
		Deadline:        big.NewInt(1756400000000),
		CreatedAt:       big.NewInt(1756300000),
		HasAlreadyVoted: true,
	}
}

func TestToPoll(t *testing.T) {
	t.Run("converts and lowercases creator", func(t *testing.T) {
		poll, err := toPoll(validPollResult())
		require.NoError(t, err)

		assert.Equal(t, uint64(7), poll.ID)
		assert.Equal(t, "0xab5801a7d398351b8be11c439e05c5b3259aec9b", poll.Creator)
		assert.Equal(t, []string{"Go", "Rust"}, poll.OptionTexts)
		assert.Equal(t, []uint64{3, 1}, poll.OptionVotes)
		assert.Equal(t, uint64(4), poll.VoterCount)
		assert.Equal(t, int64(1756400000000), poll.Deadline)
		assert.Equal(t, int64(1756300000), poll.CreatedAt)
		assert.True(t, poll.HasAlreadyVoted)
	})

	overflow := new(big.Int).Lsh(big.NewInt(1), 80)

	tests := []struct {
		name   string
		mutate func(*pollResult)
	}{
		{"id overflows", func(r *pollResult) { r.Id = overflow }},
		{"voter count overflows", func(r *pollResult) { r.VoterCount = overflow }},
		{"deadline overflows", func(r *pollResult) { r.Deadline = overflow }},
		{"created at overflows", func(r *pollResult) { r.CreatedAt = overflow }},
		{"option votes overflow", func(r *pollResult) { r.OptionVotes[1] = overflow }},
		{"nil counter", func(r *pollResult) { r.VoterCount = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := validPollResult()
			tt.mutate(&res)

			_, err := toPoll(res)
			assert.ErrorIs(t, err, domain.ErrValueOutOfRange)
		})
	}
}

func TestNarrowUint64(t *testing.T) {
	v, err := narrowUint64("id", new(big.Int).SetUint64(1<<63))
	require.NoError(t, err)
	assert.Equal(t, uint64(1)<<63, v)

	_, err = narrowUint64("id", big.NewInt(-1))
	assert.ErrorIs(t, err, domain.ErrValueOutOfRange)
}

func TestNarrowInt64(t *testing.T) {
	_, err := narrowInt64("deadline", new(big.Int).SetUint64(1<<63))
	assert.ErrorIs(t, err, domain.ErrValueOutOfRange)
}
