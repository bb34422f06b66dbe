package backend

import (
	"fmt"

	"arcreceipts/internal/cache"
	"arcreceipts/internal/config"
	"arcreceipts/internal/metrics"

	"github.com/ethereum/go-ethereum/common"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config, m *metrics.Metrics) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	backendType := BackendType(appConfig.ChainBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.ChainBackend)
	}
	cacheType := CacheType(appConfig.CacheBackend)
	if !cacheType.IsValid() {
		return Config{}, fmt.Errorf("invalid cache type in config: %s", appConfig.CacheBackend)
	}

	return Config{
		Type:      backendType,
		CacheType: cacheType,

		RPCURL:         appConfig.RPCURL,
		ChainID:        appConfig.ChainID,
		PrivateKey:     appConfig.PayerPrivateKey,
		ConfirmTimeout: appConfig.ConfirmTimeout,
		ConfirmPoll:    appConfig.ConfirmPoll,

		Receipts: appConfig.Receipts(),
		USDC:     appConfig.USDC(),
		Router:   appConfig.FXRouter(),

		CacheSize: appConfig.CacheSize,
		CacheTTL:  appConfig.CacheTTL,
		Redis: cache.RedisOptions{
			Addr:     appConfig.RedisAddr,
			Password: appConfig.RedisPassword,
			DB:       appConfig.RedisDB,
			Prefix:   "arcreceipts:",
			TTL:      appConfig.CacheTTL,
		},

		Metrics: m,
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}
	if !c.CacheType.IsValid() {
		return fmt.Errorf("invalid cache type: %s", c.CacheType)
	}

	switch c.Type {
	case EthereumBackend:
		if c.RPCURL == "" {
			return fmt.Errorf("RPC URL is required for ethereum backend")
		}
		if c.ChainID <= 0 {
			return fmt.Errorf("chain id is required for ethereum backend")
		}
	case MemoryBackend:
	}

	if c.Receipts == (common.Address{}) || c.USDC == (common.Address{}) {
		return fmt.Errorf("receipts contract and USDC addresses are required")
	}
	if c.CacheType == RedisCache && c.Redis.Addr == "" {
		return fmt.Errorf("redis address is required for redis cache")
	}
	return nil
}

// GetBackendTypes returns all valid backend types
func GetBackendTypes() []BackendType {
	return []BackendType{EthereumBackend, MemoryBackend}
}
