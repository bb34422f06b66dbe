package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"arcreceipts/internal/cache"
	"arcreceipts/internal/chain"
	"arcreceipts/internal/chain/ethereum"
	"arcreceipts/internal/chain/memory"
	"arcreceipts/internal/core"
	applog "arcreceipts/internal/log"
	"arcreceipts/internal/metrics"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// DevPayer signs writes on the memory backend when no private key is set.
var DevPayer = common.HexToAddress("0x00000000000000000000000000000000000000A1")

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *applog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *applog.Logger) Factory {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &DefaultFactory{
		logger: logger.WithComponent(applog.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		res *BackendResult
		err error
	)
	switch config.Type {
	case EthereumBackend:
		res, err = f.createEthereumBackend(ctx, config)
	case MemoryBackend:
		res, err = f.createMemoryBackend(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}

	res.Reader = metrics.InstrumentReader(res.Chain, config.Metrics)

	c, closeCache, err := f.createCache(ctx, config)
	if err != nil {
		_ = res.Cleanup()
		return nil, err
	}
	res.Cache = c
	config.Metrics.RegisterCache("receipts", c)
	res.Source = chain.NewCachedSource(chain.ContractSource{Reader: res.Reader, Contract: config.Receipts}, c)

	chainCleanup := res.Cleanup
	res.Cleanup = func() error {
		return errors.Join(closeCache(), chainCleanup())
	}
	return res, nil
}

func (f *DefaultFactory) createEthereumBackend(ctx context.Context, config Config) (*BackendResult, error) {
	client, err := ethereum.Dial(ctx, ethereum.Config{
		RPCURL:         config.RPCURL,
		ChainID:        config.ChainID,
		Receipts:       config.Receipts,
		USDC:           config.USDC,
		Router:         config.Router,
		PrivateKey:     config.PrivateKey,
		ConfirmTimeout: config.ConfirmTimeout,
		ConfirmPoll:    config.ConfirmPoll,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ethereum client: %w", err)
	}

	f.logger.InfoContext(ctx, "Initialized ethereum backend",
		"rpc_url", config.RPCURL,
		"chain_id", config.ChainID,
		"contract", config.Receipts.Hex(),
		"signer", client.From() != common.Address{})

	return &BackendResult{
		Chain: client,
		Payer: client.From(),
		Cleanup: func() error {
			client.Close()
			return nil
		},
	}, nil
}

func (f *DefaultFactory) createMemoryBackend(ctx context.Context, config Config) (*BackendResult, error) {
	ledger := memory.New(memory.Config{
		Receipts: config.Receipts,
		USDC:     config.USDC,
		Router:   config.Router,
	})

	payer := DevPayer
	if pk := strings.TrimPrefix(strings.TrimSpace(config.PrivateKey), "0x"); pk != "" {
		key, err := crypto.HexToECDSA(pk)
		if err != nil {
			return nil, fmt.Errorf("invalid private key: %w", err)
		}
		payer = crypto.PubkeyToAddress(key.PublicKey)
	}
	ledger.SetSender(payer)
	if len(config.Seed) > 0 {
		ledger.Seed(config.Seed...)
	}

	f.logger.InfoContext(ctx, "Initialized memory backend", "payer", payer.Hex(), "seeded", len(config.Seed))

	return &BackendResult{
		Chain:   ledger,
		Payer:   payer,
		Cleanup: func() error { return nil },
	}, nil
}

func (f *DefaultFactory) createCache(ctx context.Context, config Config) (cache.Cache[core.Receipt], func() error, error) {
	noop := func() error { return nil }
	switch config.CacheType {
	case MemoryCache:
		size := config.CacheSize
		if size <= 0 {
			size = 500
		}
		f.logger.InfoContext(ctx, "Initialized receipt cache", "type", "memory", "size", size, "ttl", config.CacheTTL)
		lru := cache.NewLRUCache[core.Receipt](size, config.CacheTTL)
		stop := cache.StartJanitor(min(config.CacheTTL, time.Minute), lru)
		return lru, func() error { stop(); return nil }, nil
	case RedisCache:
		client, err := cache.NewRedisClient(ctx, config.Redis)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize redis cache: %w", err)
		}
		f.logger.InfoContext(ctx, "Initialized receipt cache", "type", "redis", "addr", config.Redis.Addr, "ttl", config.Redis.TTL)
		return cache.NewRedisCache[core.Receipt](client, config.Redis.Prefix, config.Redis.TTL), client.Close, nil
	default:
		return nil, noop, nil
	}
}
