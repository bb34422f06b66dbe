package backend

import (
	"context"
	"time"

	"arcreceipts/internal/cache"
	"arcreceipts/internal/chain"
	"arcreceipts/internal/core"
	"arcreceipts/internal/metrics"

	"github.com/ethereum/go-ethereum/common"
)

// Chain is the full collaborator surface of a chain backend.
type Chain interface {
	chain.Reader
	chain.Writer
	chain.LogQuerier
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult bundles the collaborators built for one process.
type BackendResult struct {
	// Chain is the raw backend, used by the payment path.
	Chain Chain
	// Reader is Chain wrapped with read metrics.
	Reader chain.Reader
	// Source reads normalized receipts through the configured cache.
	Source chain.Source
	Cache  cache.Cache[core.Receipt]
	// Payer is the signing account, zero for a read-only backend.
	Payer   common.Address
	Cleanup CleanupFunc
}

// Ready probes the receipts contract.
func (b *BackendResult) Ready(contract common.Address) func(context.Context) error {
	return func(ctx context.Context) error {
		_, err := chain.NextReceiptID(ctx, b.Reader, contract)
		return err
	}
}

// Factory creates backends based on configuration
type Factory interface {
	// CreateBackend creates a backend instance based on the provided config
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type      BackendType
	CacheType CacheType

	// Ethereum specific
	RPCURL         string
	ChainID        int64
	PrivateKey     string
	ConfirmTimeout time.Duration
	ConfirmPoll    time.Duration

	Receipts common.Address
	USDC     common.Address
	Router   common.Address

	// Cache specific
	CacheSize int
	CacheTTL  time.Duration
	Redis     cache.RedisOptions

	// Memory backend specific
	Seed []core.Receipt

	Metrics *metrics.Metrics
}

// BackendType represents the type of chain backend
type BackendType string

const (
	EthereumBackend BackendType = "ethereum"
	MemoryBackend   BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case EthereumBackend, MemoryBackend:
		return true
	default:
		return false
	}
}

// CacheType selects where normalized receipts are memoized.
type CacheType string

const (
	MemoryCache CacheType = "memory"
	RedisCache  CacheType = "redis"
	NoCache     CacheType = "none"
)

// IsValid returns true if the cache type is valid
func (ct CacheType) IsValid() bool {
	switch ct {
	case MemoryCache, RedisCache, NoCache:
		return true
	default:
		return false
	}
}
