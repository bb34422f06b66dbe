package chain

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedReceipt    = errors.New("malformed receipt")
	ErrNotFound            = errors.New("receipt not found")
	ErrConnection          = errors.New("chain connection error")
	ErrContractRevert      = errors.New("contract call reverted")
	ErrTransactionReverted = errors.New("transaction reverted")
	ErrTransactionDropped  = errors.New("transaction dropped")
	ErrScanFailed          = errors.New("receipt scan failed")
)

// ScanError aborts a scan. It matches ErrScanFailed and unwraps to the cause.
// ID is the receipt being read, or 0 for the nextReceiptId read; the cause
// already names it, so the message does not repeat it.
type ScanError struct {
	ID  uint64
	Err error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("%v: %v", ErrScanFailed, e.Err)
}

func (e *ScanError) Unwrap() error { return e.Err }

func (e *ScanError) Is(target error) bool { return target == ErrScanFailed }

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedReceipt, fmt.Sprintf(format, args...))
}
