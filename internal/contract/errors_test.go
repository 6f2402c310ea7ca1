package contract

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pollchain/pollchain-go/internal/domain"
)

type dataError struct {
	msg  string
	data interface{}
}

func (e *dataError) Error() string          { return e.msg }
func (e *dataError) ErrorData() interface{} { return e.data }

// encodeRevert builds the Error(string) payload a node attaches to a revert.
func encodeRevert(t *testing.T, reason string) string {
	t.Helper()
	typ, err := abi.NewType("string", "", nil)
	require.NoError(t, err)
	packed, err := abi.Arguments{{Type: typ}}.Pack(reason)
	require.NoError(t, err)
	return hexutil.Encode(append([]byte{0x08, 0xc3, 0x79, 0xa0}, packed...))
}

func TestNormalize(t *testing.T) {
	t.Run("structured revert data surfaces reason verbatim", func(t *testing.T) {
		err := normalize("cast vote", &dataError{
			msg:  "execution reverted",
			data: encodeRevert(t, "You have already voted in this poll"),
		})

		var revert *domain.RevertError
		require.ErrorAs(t, err, &revert)
		assert.Equal(t, "You have already voted in this poll", revert.Reason)
		assert.Equal(t, "You have already voted in this poll", err.Error())
	})

	t.Run("reason parsed from message text", func(t *testing.T) {
		err := normalize("delete poll", errors.New("execution reverted: Only the creator can delete this poll"))

		var revert *domain.RevertError
		require.ErrorAs(t, err, &revert)
		assert.Equal(t, "Only the creator can delete this poll", revert.Reason)
	})

	t.Run("revert without reason falls through to call error", func(t *testing.T) {
		err := normalize("cast vote", errors.New("execution reverted"))

		var callErr *domain.CallError
		require.ErrorAs(t, err, &callErr)
		assert.Equal(t, "failed to cast vote: execution reverted", err.Error())
	})

	t.Run("transport failure gets operation prefix", func(t *testing.T) {
		inner := errors.New("connection refused")
		err := normalize("fetch poll", inner)

		var callErr *domain.CallError
		require.ErrorAs(t, err, &callErr)
		assert.Equal(t, "failed to fetch poll: connection refused", err.Error())
		assert.ErrorIs(t, err, inner)
	})
}
