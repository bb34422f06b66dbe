// Package memory is an in-process stand-in for the receipts contract, the
// USDC token and the FX router. It serves the memory backend and tests.
package memory

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"arcreceipts/internal/chain"
	"arcreceipts/internal/core"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// Config names the contracts the ledger answers for.
type Config struct {
	Receipts common.Address
	USDC     common.Address
	Router   common.Address
}

type allowanceKey struct {
	owner, spender common.Address
}

type pendingTx struct {
	handle chain.TxHandle
	apply  func(hash common.Hash) error
	done   bool
}

// Ledger holds receipts in id order and emulates the handful of contract
// functions the application calls. Writes take effect on confirmation.
type Ledger struct {
	mu sync.Mutex

	cfg    Config
	sender common.Address
	now    func() time.Time
	flat   bool

	receipts  []core.Receipt
	raw       map[uint64]chain.Value
	readErr   map[uint64]error
	nextErr   error
	allowance map[allowanceKey]*uint256.Int
	pending   map[common.Hash]*pendingTx
	logs      []chain.LogEntry
	nonce     uint64
	block     uint64

	writeErr   error
	confirmErr error

	readIDs []uint64
	calls   []string
}

// New creates an empty ledger; the next receipt id is 1.
func New(cfg Config) *Ledger {
	return &Ledger{
		cfg:       cfg,
		now:       time.Now,
		raw:       map[uint64]chain.Value{},
		readErr:   map[uint64]error{},
		allowance: map[allowanceKey]*uint256.Int{},
		pending:   map[common.Hash]*pendingTx{},
	}
}

// SetSender sets the account that signs writes.
func (l *Ledger) SetSender(a common.Address) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sender = a
}

// SetClock overrides block time.
func (l *Ledger) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

// UseFlatShape makes getReceipt answer in the single-token layout.
func (l *Ledger) UseFlatShape(flat bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.flat = flat
}

// Seed appends receipts as if they had been paid, assigning ids in order.
// Zero timestamps take the ledger clock and a zero token means USDC.
func (l *Ledger) Seed(rs ...core.Receipt) []uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	ids := make([]uint64, 0, len(rs))
	for _, r := range rs {
		l.block++
		ids = append(ids, l.appendLocked(r, l.nextTxHashLocked()))
	}
	return ids
}

// SetRaw overrides the getReceipt answer for one id.
func (l *Ledger) SetRaw(id uint64, v chain.Value) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.raw[id] = v
}

// FailRead makes getReceipt(id) fail with err; nil clears it.
func (l *Ledger) FailRead(id uint64, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err == nil {
		delete(l.readErr, id)
		return
	}
	l.readErr[id] = err
}

// FailNextID makes nextReceiptId fail with err; nil clears it.
func (l *Ledger) FailNextID(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextErr = err
}

// FailNextWrite makes the next Write return err.
func (l *Ledger) FailNextWrite(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writeErr = err
}

// FailNextConfirmation makes the next AwaitConfirmation return err without
// applying the transaction.
func (l *Ledger) FailNextConfirmation(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.confirmErr = err
}

// ReadIDs lists the ids passed to getReceipt, in call order.
func (l *Ledger) ReadIDs() []uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]uint64(nil), l.readIDs...)
}

// Calls lists every contract function invoked, reads and writes.
func (l *Ledger) Calls() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

// ResetCalls clears the read and call journals.
func (l *Ledger) ResetCalls() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.readIDs = nil
	l.calls = nil
}

// Receipts returns stored receipts in id order.
func (l *Ledger) Receipts() []core.Receipt {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]core.Receipt(nil), l.receipts...)
}

// AllowanceOf returns the USDC allowance owner granted spender.
func (l *Ledger) AllowanceOf(owner, spender common.Address) *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if a, ok := l.allowance[allowanceKey{owner, spender}]; ok {
		return new(uint256.Int).Set(a)
	}
	return new(uint256.Int)
}

// Read implements chain.Reader.
func (l *Ledger) Read(ctx context.Context, contract common.Address, method string, args ...any) (chain.Value, error) {
	if err := ctx.Err(); err != nil {
		return chain.Value{}, fmt.Errorf("%w: %v", chain.ErrConnection, err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, method)

	switch {
	case contract == l.cfg.Receipts && method == chain.MethodNextReceiptID:
		if l.nextErr != nil {
			return chain.Value{}, l.nextErr
		}
		return chain.Tuple(new(big.Int).SetUint64(uint64(len(l.receipts)) + 1)), nil

	case contract == l.cfg.Receipts && method == chain.MethodGetReceipt:
		id, err := uintArg(args, 0)
		if err != nil {
			return chain.Value{}, err
		}
		l.readIDs = append(l.readIDs, id)
		if err := l.readErr[id]; err != nil {
			return chain.Value{}, err
		}
		if v, ok := l.raw[id]; ok {
			return v, nil
		}
		var r core.Receipt // unassigned ids read as a zeroed struct
		if id >= 1 && id <= uint64(len(l.receipts)) {
			r = l.receipts[id-1]
		}
		if l.flat {
			return chain.FlatValue(r), nil
		}
		return chain.NestedValue(r), nil

	case contract == l.cfg.USDC && method == chain.MethodAllowance:
		owner, err := addressArg(args, 0)
		if err != nil {
			return chain.Value{}, err
		}
		spender, err := addressArg(args, 1)
		if err != nil {
			return chain.Value{}, err
		}
		a := new(uint256.Int)
		if v, ok := l.allowance[allowanceKey{owner, spender}]; ok {
			a.Set(v)
		}
		return chain.Tuple(a.ToBig()), nil
	}
	return chain.Value{}, fmt.Errorf("%w: %s on %s", chain.ErrContractRevert, method, contract.Hex())
}

// Write implements chain.Writer. Arguments are validated at submission and
// state changes at confirmation.
func (l *Ledger) Write(ctx context.Context, contract common.Address, method string, args ...any) (chain.TxHandle, error) {
	if err := ctx.Err(); err != nil {
		return chain.TxHandle{}, fmt.Errorf("%w: %v", chain.ErrConnection, err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, method)

	if err := l.writeErr; err != nil {
		l.writeErr = nil
		return chain.TxHandle{}, err
	}

	apply, err := l.prepareLocked(contract, method, args)
	if err != nil {
		return chain.TxHandle{}, err
	}
	h := chain.TxHandle{Hash: l.nextTxHashLocked(), From: l.sender, Nonce: l.nonce}
	l.pending[h.Hash] = &pendingTx{handle: h, apply: apply}
	return h, nil
}

// AwaitConfirmation implements chain.Writer.
func (l *Ledger) AwaitConfirmation(ctx context.Context, h chain.TxHandle) (chain.Confirmation, error) {
	if err := ctx.Err(); err != nil {
		return chain.Confirmation{}, fmt.Errorf("await %s: %w", h.Hash.Hex(), err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	tx, ok := l.pending[h.Hash]
	if !ok {
		return chain.Confirmation{}, fmt.Errorf("%w: unknown transaction %s", chain.ErrTransactionDropped, h.Hash.Hex())
	}
	if err := l.confirmErr; err != nil {
		l.confirmErr = nil
		delete(l.pending, h.Hash)
		return chain.Confirmation{}, err
	}
	if !tx.done {
		l.block++
		if err := tx.apply(h.Hash); err != nil {
			delete(l.pending, h.Hash)
			return chain.Confirmation{}, fmt.Errorf("%w: %v", chain.ErrTransactionReverted, err)
		}
		tx.done = true
	}
	return chain.Confirmation{Hash: h.Hash, BlockNumber: l.block, GasUsed: 21000}, nil
}

// QueryLogs implements chain.LogQuerier for ReceiptCreated. The first topic
// filters on the receipt id.
func (l *Ledger) QueryLogs(ctx context.Context, q chain.LogQuery) ([]chain.LogEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", chain.ErrConnection, err)
	}
	if q.Contract != l.cfg.Receipts || q.Event != chain.EventReceiptCreated {
		return nil, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, "getLogs")

	var want *uint64
	if len(q.Topics) > 0 && q.Topics[0] != nil {
		id, err := chain.AsUint64(q.Topics[0])
		if err != nil {
			return nil, fmt.Errorf("id topic: %w", err)
		}
		want = &id
	}

	var out []chain.LogEntry
	for _, e := range l.logs {
		if e.BlockNumber < q.FromBlock {
			continue
		}
		if want != nil {
			x, _ := e.Fields.Field("id", 0)
			if id, err := chain.AsUint64(x); err != nil || id != *want {
				continue
			}
		}
		out = append(out, e)
	}
	return out, nil
}

func (l *Ledger) prepareLocked(contract common.Address, method string, args []any) (func(common.Hash) error, error) {
	from := l.sender
	switch {
	case contract == l.cfg.USDC && method == chain.MethodApprove:
		spender, err := addressArg(args, 0)
		if err != nil {
			return nil, err
		}
		amount, err := amountArg(args, 1)
		if err != nil {
			return nil, err
		}
		return func(common.Hash) error {
			l.allowance[allowanceKey{from, spender}] = amount
			return nil
		}, nil

	case contract == l.cfg.Receipts && method == chain.MethodPayWithReceipt:
		if len(args) != 4 {
			return nil, fmt.Errorf("%w: payWithReceipt takes 4 arguments, got %d", chain.ErrContractRevert, len(args))
		}
		token, err := addressArg(args, 0)
		if err != nil {
			return nil, err
		}
		to, err := addressArg(args, 1)
		if err != nil {
			return nil, err
		}
		amount, err := amountArg(args, 2)
		if err != nil {
			return nil, err
		}
		meta, ok := chain.ValueOf(args[3])
		if !ok {
			return nil, fmt.Errorf("%w: meta has type %T", chain.ErrContractRevert, args[3])
		}
		r, err := receiptFromMeta(meta, "category", "reason", "sourceCurrency", "destinationCurrency", "corridor")
		if err != nil {
			return nil, err
		}
		r.From, r.To, r.Token, r.Amount = from, to, token, core.Money{Units: *amount}
		return func(hash common.Hash) error {
			if err := l.spendLocked(from, contract, token, amount); err != nil {
				return err
			}
			l.appendLocked(r, hash)
			return nil
		}, nil

	case contract == l.cfg.Router && method == chain.MethodSwapAndPay:
		if len(args) != 10 {
			return nil, fmt.Errorf("%w: swapAndPay takes 10 arguments, got %d", chain.ErrContractRevert, len(args))
		}
		tokenIn, err := addressArg(args, 0)
		if err != nil {
			return nil, err
		}
		tokenOut, err := addressArg(args, 1)
		if err != nil {
			return nil, err
		}
		amount, err := amountArg(args, 2)
		if err != nil {
			return nil, err
		}
		recipient, err := addressArg(args, 4)
		if err != nil {
			return nil, err
		}
		r, err := receiptFromMeta(chain.Tuple(args[5:]...), "", "", "", "", "")
		if err != nil {
			return nil, err
		}
		r.From, r.To, r.Token, r.Amount = from, recipient, tokenOut, core.Money{Units: *amount}
		return func(hash common.Hash) error {
			if err := l.spendLocked(from, contract, tokenIn, amount); err != nil {
				return err
			}
			l.appendLocked(r, hash)
			return nil
		}, nil
	}
	return nil, fmt.Errorf("%w: %s on %s", chain.ErrContractRevert, method, contract.Hex())
}

// spendLocked consumes USDC allowance granted to spender.
func (l *Ledger) spendLocked(owner, spender, token common.Address, amount *uint256.Int) error {
	if token != l.cfg.USDC {
		return nil
	}
	k := allowanceKey{owner, spender}
	have, ok := l.allowance[k]
	if !ok || have.Lt(amount) {
		return fmt.Errorf("ERC20: insufficient allowance")
	}
	l.allowance[k] = new(uint256.Int).Sub(have, amount)
	return nil
}

// appendLocked stores r under the next id and emits ReceiptCreated in the
// current block.
func (l *Ledger) appendLocked(r core.Receipt, tx common.Hash) uint64 {
	r.ID = uint64(len(l.receipts)) + 1
	if r.Timestamp == 0 {
		r.Timestamp = uint64(l.now().Unix())
	}
	if r.Token == (common.Address{}) {
		r.Token = l.cfg.USDC
	}
	l.receipts = append(l.receipts, r)
	l.logs = append(l.logs, chain.LogEntry{
		TxHash:      tx,
		BlockNumber: l.block,
		Fields: chain.Record(map[string]any{
			"id":        new(big.Int).SetUint64(r.ID),
			"from":      r.From,
			"to":        r.To,
			"token":     r.Token,
			"amount":    r.Amount.Units.ToBig(),
			"corridor":  r.Corridor,
			"timestamp": new(big.Int).SetUint64(r.Timestamp),
		}),
	})
	return r.ID
}

func (l *Ledger) nextTxHashLocked() common.Hash {
	l.nonce++
	return crypto.Keccak256Hash([]byte(fmt.Sprintf("tx:%d", l.nonce)))
}

// receiptFromMeta reads category, reason, sourceCurrency, destinationCurrency
// and corridor by the given names, or by position when names are empty.
func receiptFromMeta(v chain.Value, names ...string) (core.Receipt, error) {
	var r core.Receipt
	get := func(i int) (any, error) {
		x, ok := v.Field(names[i], i)
		if !ok {
			return nil, fmt.Errorf("%w: metadata field %d missing", chain.ErrContractRevert, i)
		}
		return x, nil
	}
	x, err := get(0)
	if err != nil {
		return r, err
	}
	cat, err := chain.AsUint64(x)
	if err != nil || cat > 255 {
		return r, fmt.Errorf("%w: bad category %v", chain.ErrContractRevert, x)
	}
	r.Category = core.Category(cat)
	for i, dst := range []*string{&r.Reason, &r.SourceCurrency, &r.DestinationCurrency, &r.Corridor} {
		x, err := get(i + 1)
		if err != nil {
			return r, err
		}
		if *dst, err = chain.AsString(x); err != nil {
			return r, fmt.Errorf("%w: %v", chain.ErrContractRevert, err)
		}
	}
	return r, nil
}

func uintArg(args []any, i int) (uint64, error) {
	if i >= len(args) {
		return 0, fmt.Errorf("%w: missing argument %d", chain.ErrContractRevert, i)
	}
	n, err := chain.AsUint64(args[i])
	if err != nil {
		return 0, fmt.Errorf("%w: argument %d: %v", chain.ErrContractRevert, i, err)
	}
	return n, nil
}

func amountArg(args []any, i int) (*uint256.Int, error) {
	if i >= len(args) {
		return nil, fmt.Errorf("%w: missing argument %d", chain.ErrContractRevert, i)
	}
	n, err := chain.AsUint256(args[i])
	if err != nil {
		return nil, fmt.Errorf("%w: argument %d: %v", chain.ErrContractRevert, i, err)
	}
	return n, nil
}

func addressArg(args []any, i int) (common.Address, error) {
	if i >= len(args) {
		return common.Address{}, fmt.Errorf("%w: missing argument %d", chain.ErrContractRevert, i)
	}
	a, err := chain.AsAddress(args[i])
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: argument %d: %v", chain.ErrContractRevert, i, err)
	}
	return a, nil
}
