// Package ethereum implements the chain ports over JSON-RPC with go-ethereum.
package ethereum

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"arcreceipts/internal/chain"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Backend is the subset of *ethclient.Client the adapter needs.
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// Config configures the adapter.
type Config struct {
	RPCURL   string
	ChainID  int64
	Receipts common.Address
	USDC     common.Address
	Router   common.Address
	// PrivateKey is hex, with or without 0x. Empty makes the client read-only.
	PrivateKey     string
	ConfirmTimeout time.Duration
	ConfirmPoll    time.Duration
}

// Client implements chain.Reader, chain.Writer and chain.LogQuerier.
type Client struct {
	backend Backend
	closer  func()
	abis    map[common.Address]*abi.ABI
	chainID *big.Int
	key     *ecdsa.PrivateKey
	from    common.Address
	timeout time.Duration
	poll    time.Duration
}

// Dial connects to cfg.RPCURL.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	ec, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w: %w", cfg.RPCURL, chain.ErrConnection, err)
	}
	c, err := New(ec, cfg)
	if err != nil {
		ec.Close()
		return nil, err
	}
	c.closer = ec.Close
	return c, nil
}

// New wraps an existing backend.
func New(backend Backend, cfg Config) (*Client, error) {
	c := &Client{
		backend: backend,
		abis: map[common.Address]*abi.ABI{
			cfg.Receipts: &ReceiptsABI,
			cfg.USDC:     &ERC20ABI,
		},
		chainID: big.NewInt(cfg.ChainID),
		timeout: cfg.ConfirmTimeout,
		poll:    cfg.ConfirmPoll,
	}
	if cfg.Router != (common.Address{}) {
		c.abis[cfg.Router] = &RouterABI
	}
	if c.timeout <= 0 {
		c.timeout = 2 * time.Minute
	}
	if c.poll <= 0 {
		c.poll = 2 * time.Second
	}

	if pk := strings.TrimPrefix(strings.TrimSpace(cfg.PrivateKey), "0x"); pk != "" {
		key, err := crypto.HexToECDSA(pk)
		if err != nil {
			return nil, fmt.Errorf("invalid private key: %w", err)
		}
		c.key = key
		c.from = crypto.PubkeyToAddress(key.PublicKey)
	}
	return c, nil
}

// Close releases the RPC connection.
func (c *Client) Close() {
	if c.closer != nil {
		c.closer()
	}
}

// From is the signing account, zero for a read-only client.
func (c *Client) From() common.Address { return c.from }

func (c *Client) abiFor(contract common.Address) (*abi.ABI, error) {
	a, ok := c.abis[contract]
	if !ok {
		return nil, fmt.Errorf("no ABI registered for %s", contract.Hex())
	}
	return a, nil
}

// Read implements chain.Reader.
func (c *Client) Read(ctx context.Context, contract common.Address, method string, args ...any) (chain.Value, error) {
	a, err := c.abiFor(contract)
	if err != nil {
		return chain.Value{}, err
	}
	data, err := a.Pack(method, args...)
	if err != nil {
		return chain.Value{}, fmt.Errorf("pack %s: %w", method, err)
	}

	out, err := c.backend.CallContract(ctx, ethereum.CallMsg{From: c.from, To: &contract, Data: data}, nil)
	if err != nil {
		return chain.Value{}, classify("call "+method, err)
	}
	if len(out) == 0 {
		return chain.Value{}, fmt.Errorf("call %s: %w: empty return data from %s", method, chain.ErrContractRevert, contract.Hex())
	}

	vals, err := a.Unpack(method, out)
	if err != nil {
		if method == chain.MethodGetReceipt {
			return chain.Value{}, fmt.Errorf("%w: unpack: %v", chain.ErrMalformedReceipt, err)
		}
		return chain.Value{}, fmt.Errorf("unpack %s: %w", method, err)
	}
	return outputsValue(a.Methods[method].Outputs, vals), nil
}

// outputsValue unwraps a single tuple output into its fields; otherwise the
// outputs are exposed by position and by their non-empty names.
func outputsValue(outputs abi.Arguments, vals []any) chain.Value {
	if len(vals) == 1 && len(outputs) == 1 && outputs[0].Type.T == abi.TupleTy {
		if v, ok := chain.ValueOf(vals[0]); ok {
			return v
		}
	}
	v := chain.Value{Positional: vals}
	for i, o := range outputs {
		if o.Name == "" || i >= len(vals) {
			continue
		}
		if v.Named == nil {
			v.Named = map[string]any{}
		}
		v.Named[o.Name] = vals[i]
	}
	return v
}

// Write implements chain.Writer: it packs, estimates, signs and submits a
// legacy EIP-155 transaction from the configured key.
func (c *Client) Write(ctx context.Context, contract common.Address, method string, args ...any) (chain.TxHandle, error) {
	if c.key == nil {
		return chain.TxHandle{}, fmt.Errorf("write %s: no signing key configured", method)
	}
	a, err := c.abiFor(contract)
	if err != nil {
		return chain.TxHandle{}, err
	}
	data, err := a.Pack(method, args...)
	if err != nil {
		return chain.TxHandle{}, fmt.Errorf("pack %s: %w", method, err)
	}

	nonce, err := c.backend.PendingNonceAt(ctx, c.from)
	if err != nil {
		return chain.TxHandle{}, classify("get nonce", err)
	}
	gasPrice, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return chain.TxHandle{}, classify("get gas price", err)
	}
	gas, err := c.backend.EstimateGas(ctx, ethereum.CallMsg{From: c.from, To: &contract, Data: data})
	if err != nil {
		return chain.TxHandle{}, classify("estimate "+method, err)
	}
	gas += gas / 5

	tx := types.NewTransaction(nonce, contract, big.NewInt(0), gas, gasPrice, data)
	signed, err := types.SignTx(tx, types.NewEIP155Signer(c.chainID), c.key)
	if err != nil {
		return chain.TxHandle{}, fmt.Errorf("sign %s: %w", method, err)
	}
	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		return chain.TxHandle{}, classify("send "+method, err)
	}

	slog.InfoContext(ctx, "Transaction submitted",
		"component", "chain",
		"method", method,
		"tx_hash", signed.Hash().Hex(),
		"nonce", nonce,
		"gas", gas)
	return chain.TxHandle{Hash: signed.Hash(), From: c.from, Nonce: nonce}, nil
}

// AwaitConfirmation implements chain.Writer. A transaction still unmined
// after the confirm timeout is reported as dropped.
func (c *Client) AwaitConfirmation(ctx context.Context, h chain.TxHandle) (chain.Confirmation, error) {
	waitCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()

	for {
		rcpt, err := c.backend.TransactionReceipt(waitCtx, h.Hash)
		switch {
		case err == nil && rcpt != nil:
			if rcpt.Status != types.ReceiptStatusSuccessful {
				return chain.Confirmation{}, fmt.Errorf("%w: %s in block %d", chain.ErrTransactionReverted, h.Hash.Hex(), rcpt.BlockNumber)
			}
			conf := chain.Confirmation{Hash: h.Hash, GasUsed: rcpt.GasUsed}
			if rcpt.BlockNumber != nil {
				conf.BlockNumber = rcpt.BlockNumber.Uint64()
			}
			return conf, nil
		case err != nil && !errors.Is(err, ethereum.NotFound) && waitCtx.Err() == nil:
			slog.WarnContext(ctx, "Receipt poll failed", "component", "chain", "tx_hash", h.Hash.Hex(), "error", err)
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return chain.Confirmation{}, fmt.Errorf("await %s: %w", h.Hash.Hex(), ctx.Err())
			}
			return chain.Confirmation{}, fmt.Errorf("%w: %s not mined within %s", chain.ErrTransactionDropped, h.Hash.Hex(), c.timeout)
		case <-ticker.C:
		}
	}
}

// QueryLogs implements chain.LogQuerier.
func (c *Client) QueryLogs(ctx context.Context, q chain.LogQuery) ([]chain.LogEntry, error) {
	a, err := c.abiFor(q.Contract)
	if err != nil {
		return nil, err
	}
	event, ok := a.Events[q.Event]
	if !ok {
		return nil, fmt.Errorf("unknown event %s", q.Event)
	}

	query := [][]any{{event.ID}}
	for _, t := range q.Topics {
		if t == nil {
			query = append(query, []any{})
			continue
		}
		query = append(query, []any{t})
	}
	topics, err := abi.MakeTopics(query...)
	if err != nil {
		return nil, fmt.Errorf("build topics: %w", err)
	}

	logs, err := c.backend.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(q.FromBlock),
		Addresses: []common.Address{q.Contract},
		Topics:    topics,
	})
	if err != nil {
		return nil, classify("filter logs", err)
	}

	var indexed abi.Arguments
	for _, in := range event.Inputs {
		if in.Indexed {
			indexed = append(indexed, in)
		}
	}

	out := make([]chain.LogEntry, 0, len(logs))
	for _, lg := range logs {
		fields := map[string]any{}
		if len(lg.Data) > 0 {
			if err := a.UnpackIntoMap(fields, event.Name, lg.Data); err != nil {
				return nil, fmt.Errorf("decode %s data: %w", event.Name, err)
			}
		}
		if len(lg.Topics) > 1 {
			if err := abi.ParseTopicsIntoMap(fields, indexed, lg.Topics[1:]); err != nil {
				return nil, fmt.Errorf("decode %s topics: %w", event.Name, err)
			}
		}
		v := chain.Value{Named: fields, Positional: make([]any, len(event.Inputs))}
		for i, in := range event.Inputs {
			v.Positional[i] = fields[in.Name]
		}
		out = append(out, chain.LogEntry{
			TxHash:      lg.TxHash,
			BlockNumber: lg.BlockNumber,
			Index:       lg.Index,
			Fields:      v,
		})
	}
	return out, nil
}
