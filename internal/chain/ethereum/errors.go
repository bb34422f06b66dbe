package ethereum

import (
	"errors"
	"fmt"
	"strings"

	"arcreceipts/internal/chain"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// JSON-RPC error code nodes use for execution reverts.
const revertCode = 3

// classify maps a node or transport error onto the chain taxonomy.
// Reverts become ErrContractRevert, with the decoded reason when the node
// returned one; everything else is ErrConnection. The original error stays
// in the chain for errors.Is, so context cancellation still matches.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, chain.ErrContractRevert) || errors.Is(err, chain.ErrConnection) {
		return fmt.Errorf("%s: %w", op, err)
	}
	if isRevert(err) {
		if reason := revertReason(err); reason != "" {
			return fmt.Errorf("%s: %w: %s: %w", op, chain.ErrContractRevert, reason, err)
		}
		return fmt.Errorf("%s: %w: %w", op, chain.ErrContractRevert, err)
	}
	return fmt.Errorf("%s: %w: %w", op, chain.ErrConnection, err)
}

func isRevert(err error) bool {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == revertCode {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "reverted")
}

// revertReason decodes an Error(string) payload attached to the RPC error.
func revertReason(err error) string {
	var dataErr rpc.DataError
	if !errors.As(err, &dataErr) {
		return ""
	}
	s, ok := dataErr.ErrorData().(string)
	if !ok {
		return ""
	}
	data, derr := hexutil.Decode(s)
	if derr != nil {
		return ""
	}
	reason, uerr := abi.UnpackRevert(data)
	if uerr != nil {
		return ""
	}
	return reason
}
