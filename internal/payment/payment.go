// Package payment implements the receipt-creating write path: allowance
// check, approval, expected id capture and the pay or swap-and-pay call.
package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"strings"

	"arcreceipts/internal/chain"
	"arcreceipts/internal/core"

	"github.com/ethereum/go-ethereum/common"
)

// Mode selects the contract a payment goes through.
type Mode string

const (
	// Direct pays USDC straight through the receipts contract.
	Direct Mode = "direct"
	// Swap converts USDC to another stablecoin through the FX router.
	Swap Mode = "swap"
)

// ParseMode accepts "direct" and "swap"; empty means Direct.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "", Direct:
		return Direct, nil
	case Swap:
		return Swap, nil
	default:
		return "", fmt.Errorf("%w: payment mode %q", core.ErrInvalidFormat, s)
	}
}

// Stage names a step of the payment flow.
type Stage string

const (
	StageCheckingAllowance Stage = "checking_allowance"
	StageApproving         Stage = "approving"
	StageSubmitting        Stage = "submitting"
	StageConfirming        Stage = "confirming"
	StageDone              Stage = "done"
)

var (
	// ErrUnsupportedToken is returned for a swap target outside the registry or equal to USDC.
	ErrUnsupportedToken = errors.New("unsupported target token")
)

// Request is a payment as entered by the payer.
type Request struct {
	Mode Mode
	// To defaults to the payer when blank.
	To       string
	Amount   string
	Category core.Category
	Reason   string
	// Target is the swap output token symbol; ignored for direct payments.
	Target string
	// Currency labels both sides of a direct payment. Blank means USD.
	Currency string
}

// Result describes a payment attempt. ExpectedID is filled as soon as it is
// known and stays set when a later step fails.
type Result struct {
	ExpectedID   uint64             `json:"expectedId"`
	Spender      common.Address     `json:"spender"`
	ApprovalTx   common.Hash        `json:"approvalTx,omitempty"`
	Tx           common.Hash        `json:"tx"`
	BlockNumber  uint64             `json:"blockNumber"`
	Corridor     string             `json:"corridor"`
	ReceiptPath  string             `json:"receiptPath"`
	Approved     bool               `json:"approved"`
	Confirmation chain.Confirmation `json:"-"`
}

// Addresses are the contracts the payment path talks to.
type Addresses struct {
	Receipts common.Address
	USDC     common.Address
	Router   common.Address
}

// Observer receives payment outcomes, for metrics.
type Observer interface {
	ObservePayment(mode string, err error)
}

// Option configures a Service.
type Option func(*Service)

// WithProgress registers a callback invoked at each stage.
func WithProgress(fn func(Stage)) Option {
	return func(s *Service) { s.progress = fn }
}

// WithObserver registers a payment outcome observer.
func WithObserver(o Observer) Option {
	return func(s *Service) { s.observer = o }
}

// Service executes payments from one payer account.
type Service struct {
	rw       chain.ReadWriter
	payer    common.Address
	addrs    Addresses
	progress func(Stage)
	observer Observer
}

// NewService creates a payment service for payer.
func NewService(rw chain.ReadWriter, payer common.Address, addrs Addresses, opts ...Option) *Service {
	s := &Service{rw: rw, payer: payer, addrs: addrs}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Payer is the paying account.
func (s *Service) Payer() common.Address { return s.payer }

type plan struct {
	mode     Mode
	to       common.Address
	amount   core.Money
	spender  common.Address
	tokenOut common.Address
	meta     chain.Meta
}

func (s *Service) plan(req Request) (plan, error) {
	mode := req.Mode
	if mode == "" {
		mode = Direct
	}
	p := plan{mode: mode, to: s.payer}
	if strings.TrimSpace(req.To) != "" {
		to, err := core.ParseAddress(req.To)
		if err != nil {
			return plan{}, fmt.Errorf("recipient: %w", err)
		}
		p.to = to
	}

	amount, err := core.ParseAmount(req.Amount)
	if err != nil {
		return plan{}, fmt.Errorf("amount: %w", err)
	}
	if amount.IsZero() {
		return plan{}, fmt.Errorf("amount: %w", core.ErrNonPositiveAmount)
	}
	p.amount = amount

	if !req.Category.Known() {
		return plan{}, fmt.Errorf("%w: category %d", core.ErrInvalidFormat, req.Category)
	}
	p.meta = chain.Meta{Category: uint8(req.Category), Reason: strings.TrimSpace(req.Reason)}

	switch mode {
	case Direct:
		p.spender = s.addrs.Receipts
		label, err := currencyLabel(req.Currency)
		if err != nil {
			return plan{}, err
		}
		p.meta.SourceCurrency, p.meta.DestinationCurrency = label, label
	case Swap:
		tok, ok := core.TokenBySymbol(req.Target)
		if !ok || tok.Address == s.addrs.USDC {
			return plan{}, fmt.Errorf("%w: %q", ErrUnsupportedToken, req.Target)
		}
		if s.addrs.Router == (common.Address{}) {
			return plan{}, errors.New("swap payments need a router address")
		}
		p.spender = s.addrs.Router
		p.tokenOut = tok.Address
		p.meta.SourceCurrency, p.meta.DestinationCurrency = "USDC", tok.Symbol
	default:
		return plan{}, fmt.Errorf("%w: payment mode %q", core.ErrInvalidFormat, mode)
	}
	p.meta.Corridor = p.meta.SourceCurrency + "-" + p.meta.DestinationCurrency
	return p, nil
}

// DefaultCurrency labels direct payments that name no currency.
const DefaultCurrency = "USD"

func currencyLabel(s string) (string, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return DefaultCurrency, nil
	}
	if len(s) > 10 {
		return "", fmt.Errorf("%w: currency %q", core.ErrInvalidFormat, s)
	}
	for _, c := range s {
		if c < 'A' || c > 'Z' {
			return "", fmt.Errorf("%w: currency %q", core.ErrInvalidFormat, s)
		}
	}
	return s, nil
}

// Pay validates req and runs the full payment flow. On failure the returned
// Result still carries whatever was recorded before the failing step.
func (s *Service) Pay(ctx context.Context, req Request) (Result, error) {
	res, err := s.pay(ctx, req)
	if s.observer != nil {
		mode := req.Mode
		if mode == "" {
			mode = Direct
		}
		s.observer.ObservePayment(string(mode), err)
	}
	return res, err
}

func (s *Service) pay(ctx context.Context, req Request) (Result, error) {
	p, err := s.plan(req)
	if err != nil {
		return Result{}, err
	}
	res := Result{Spender: p.spender, Corridor: p.meta.Corridor}
	logger := slog.With("component", "payment", "mode", string(p.mode), "to", p.to.Hex(), "amount", p.amount.String())

	s.stage(StageCheckingAllowance)
	allowance, err := s.allowance(ctx, p.spender)
	if err != nil {
		return res, err
	}
	if allowance.Cmp(p.amount) < 0 {
		s.stage(StageApproving)
		h, err := s.rw.Write(ctx, s.addrs.USDC, chain.MethodApprove, p.spender, p.amount.Units.ToBig())
		if err != nil {
			return res, fmt.Errorf("approve: %w", err)
		}
		res.ApprovalTx = h.Hash
		if _, err := s.rw.AwaitConfirmation(ctx, h); err != nil {
			return res, fmt.Errorf("approve: %w", err)
		}
		res.Approved = true
		logger.InfoContext(ctx, "Allowance approved", "tx_hash", h.Hash.Hex(), "spender", p.spender.Hex())
	}

	next, err := chain.NextReceiptID(ctx, s.rw, s.addrs.Receipts)
	if err != nil {
		return res, err
	}
	res.ExpectedID = next
	res.ReceiptPath = ReceiptPath(next, common.Hash{})

	s.stage(StageSubmitting)
	var h chain.TxHandle
	switch p.mode {
	case Direct:
		h, err = s.rw.Write(ctx, s.addrs.Receipts, chain.MethodPayWithReceipt,
			s.addrs.USDC, p.to, p.amount.Units.ToBig(), p.meta)
	case Swap:
		h, err = s.rw.Write(ctx, s.addrs.Router, chain.MethodSwapAndPay,
			s.addrs.USDC, p.tokenOut, p.amount.Units.ToBig(), big.NewInt(0), p.to,
			p.meta.Category, p.meta.Reason, p.meta.SourceCurrency, p.meta.DestinationCurrency, p.meta.Corridor)
	}
	if err != nil {
		logger.WarnContext(ctx, "Payment submission failed", "expected_receipt_id", next, "error", err)
		return res, fmt.Errorf("submit payment: %w", err)
	}
	res.Tx = h.Hash
	res.ReceiptPath = ReceiptPath(next, h.Hash)

	s.stage(StageConfirming)
	conf, err := s.rw.AwaitConfirmation(ctx, h)
	if err != nil {
		logger.WarnContext(ctx, "Payment not confirmed", "expected_receipt_id", next, "tx_hash", h.Hash.Hex(), "error", err)
		return res, fmt.Errorf("confirm payment: %w", err)
	}
	res.Confirmation = conf
	res.BlockNumber = conf.BlockNumber
	s.stage(StageDone)

	logger.InfoContext(ctx, "Payment confirmed",
		"expected_receipt_id", next,
		"tx_hash", h.Hash.Hex(),
		"block", conf.BlockNumber)
	return res, nil
}

func (s *Service) allowance(ctx context.Context, spender common.Address) (core.Money, error) {
	v, err := s.rw.Read(ctx, s.addrs.USDC, chain.MethodAllowance, s.payer, spender)
	if err != nil {
		return core.Money{}, fmt.Errorf("read allowance: %w", err)
	}
	x, ok := v.Field("", 0)
	if !ok {
		return core.Money{}, errors.New("read allowance: empty result")
	}
	u, err := chain.AsUint256(x)
	if err != nil {
		return core.Money{}, fmt.Errorf("read allowance: %w", err)
	}
	return core.Money{Units: *u}, nil
}

func (s *Service) stage(st Stage) {
	if s.progress != nil {
		s.progress(st)
	}
}

// ReceiptPath is the front-end path of a receipt page. The tx query is
// omitted when the hash is unknown.
func ReceiptPath(id uint64, tx common.Hash) string {
	p := "/receipt/" + strconv.FormatUint(id, 10)
	if tx != (common.Hash{}) {
		p += "?tx=" + tx.Hex()
	}
	return p
}
