package contract

import (
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/pollchain/pollchain-go/internal/domain"
)

// normalize maps a raw backend failure to the domain error shape: a revert
// reason surfaces verbatim, anything else gets the operation prefix.
func normalize(op string, err error) error {
	if reason, ok := revertReason(err); ok {
		return &domain.RevertError{Reason: reason}
	}
	return &domain.CallError{Op: op, Err: err}
}

// revertReason extracts the contract-level reason string, first from the
// structured error data the node attaches, then from the message text nodes
// that only report "execution reverted: <reason>".
func revertReason(err error) (string, bool) {
	var de rpc.DataError
	if errors.As(err, &de) {
		if data, ok := de.ErrorData().(string); ok {
			if raw, decErr := hexutil.Decode(data); decErr == nil {
				if reason, unpackErr := abi.UnpackRevert(raw); unpackErr == nil && reason != "" {
					return reason, true
				}
			}
		}
	}

	msg := err.Error()
	if i := strings.Index(msg, "execution reverted"); i >= 0 {
		rest := strings.TrimPrefix(msg[i+len("execution reverted"):], ":")
		if rest = strings.TrimSpace(rest); rest != "" {
			return rest, true
		}
	}
	return "", false
}
