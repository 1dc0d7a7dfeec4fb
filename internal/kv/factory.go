package kv

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/amoylab/sessionkv/internal/common/cnst"
	"github.com/amoylab/sessionkv/internal/common/config"
)

type constructor func(logger *zap.Logger, cfg *config.StoreConfig) (Client, error)

var constructors = map[cnst.StoreType]constructor{
	cnst.StoreTypeMemory: func(*zap.Logger, *config.StoreConfig) (Client, error) {
		return NewMemoryClient(), nil
	},
	cnst.StoreTypeRedis: func(logger *zap.Logger, cfg *config.StoreConfig) (Client, error) {
		return NewRedisClient(logger, cfg.Redis)
	},
	cnst.StoreTypeDB: func(logger *zap.Logger, cfg *config.StoreConfig) (Client, error) {
		return NewDBClient(logger, &cfg.Database)
	},
}

// NewClient creates a store client based on configuration
func NewClient(logger *zap.Logger, cfg *config.StoreConfig) (Client, error) {
	logger.Info("Initializing kv store", zap.String("type", cfg.Type), zap.String("bucket", cfg.Bucket))
	ctor, ok := constructors[cnst.StoreType(cfg.Type)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", cnst.ErrUnsupportedStoreType, cfg.Type)
	}
	client, err := ctor(logger, cfg)
	if err != nil {
		return nil, err
	}
	return WithNamespace(client, cfg.Bucket), nil
}
