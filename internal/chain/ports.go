// Package chain holds the outbound ports to the receipts contract and the
// logic that rebuilds canonical receipts from what those ports return.
package chain

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// Contract function and event names used by the core.
const (
	MethodNextReceiptID  = "nextReceiptId"
	MethodGetReceipt     = "getReceipt"
	MethodAllowance      = "allowance"
	MethodApprove        = "approve"
	MethodPayWithReceipt = "payWithReceipt"
	MethodSwapAndPay     = "swapAndPay"
	EventReceiptCreated  = "ReceiptCreated"
)

// Ports for outbound adapters.
type (
	// Reader queries a view function. Results come back as a decoded Value so
	// that callers can resolve fields by name or by position.
	Reader interface {
		Read(ctx context.Context, contract common.Address, method string, args ...any) (Value, error)
	}

	// Writer submits state-changing transactions.
	Writer interface {
		Write(ctx context.Context, contract common.Address, method string, args ...any) (TxHandle, error)
		// AwaitConfirmation blocks until the transaction is mined or ctx ends.
		// A mined but failed transaction yields ErrTransactionReverted.
		AwaitConfirmation(ctx context.Context, h TxHandle) (Confirmation, error)
	}

	// LogQuerier fetches emitted events.
	LogQuerier interface {
		QueryLogs(ctx context.Context, q LogQuery) ([]LogEntry, error)
	}

	// ReadWriter is the full collaborator surface used by the payment path.
	ReadWriter interface {
		Reader
		Writer
	}
)

// TxHandle identifies a submitted transaction.
type TxHandle struct {
	Hash  common.Hash
	From  common.Address
	Nonce uint64
}

// Confirmation is the outcome of a mined transaction.
type Confirmation struct {
	Hash        common.Hash
	BlockNumber uint64
	GasUsed     uint64
}

// LogQuery selects events of one contract. Topics holds values for the
// event's indexed parameters in declaration order; nil entries match anything.
type LogQuery struct {
	Contract  common.Address
	Event     string
	Topics    []any
	FromBlock uint64
}

// LogEntry is one decoded event occurrence.
type LogEntry struct {
	TxHash      common.Hash
	BlockNumber uint64
	Index       uint
	Fields      Value
}
