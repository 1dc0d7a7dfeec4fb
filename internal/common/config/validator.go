package config

import (
	"fmt"
	"strings"

	"github.com/amoylab/sessionkv/internal/common/cnst"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// ValidationErrors collects every problem found in a configuration
type ValidationErrors []*ValidationError

func (e ValidationErrors) Error() string {
	var sb strings.Builder
	for i, err := range e {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("--> ")
		sb.WriteString(err.Error())
	}
	return sb.String()
}

// Validate checks the configuration for values the binary cannot run with
func (c *SessionKVConfig) Validate() error {
	var errs ValidationErrors

	switch cnst.StoreType(c.Store.Type) {
	case cnst.StoreTypeMemory, cnst.StoreTypeRedis:
	case cnst.StoreTypeDB:
		switch c.Store.Database.Type {
		case "sqlite", "mysql", "postgres":
		default:
			errs = append(errs, &ValidationError{Field: "store.database.type", Message: fmt.Sprintf("unsupported database type %q", c.Store.Database.Type)})
		}
	default:
		errs = append(errs, &ValidationError{Field: "store.type", Message: fmt.Sprintf("%s %q", cnst.ErrUnsupportedStoreType, c.Store.Type)})
	}

	switch c.Store.Redis.ClusterType {
	case cnst.RedisClusterTypeSingle, cnst.RedisClusterTypeSentinel, cnst.RedisClusterTypeCluster:
	default:
		errs = append(errs, &ValidationError{Field: "store.redis.cluster_type", Message: fmt.Sprintf("unsupported cluster type %q", c.Store.Redis.ClusterType)})
	}

	switch cnst.CodecName(c.Session.Codec) {
	case cnst.CodecJSON, cnst.CodecGzip:
	default:
		errs = append(errs, &ValidationError{Field: "session.codec", Message: fmt.Sprintf("%s %q", cnst.ErrUnsupportedCodec, c.Session.Codec)})
	}

	if c.Session.MaxRetryCount < 0 {
		errs = append(errs, &ValidationError{Field: "session.max_retry_count", Message: "must not be negative"})
	}
	if c.Session.Timeout < 0 {
		errs = append(errs, &ValidationError{Field: "session.timeout", Message: "must not be negative"})
	}
	if c.Session.HeaderPrefix == c.Session.DataPrefix {
		errs = append(errs, &ValidationError{Field: "session.header_prefix", Message: "must differ from data_prefix"})
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}
