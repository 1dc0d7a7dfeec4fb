package provider

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/amoylab/sessionkv/internal/common/cnst"
	"github.com/amoylab/sessionkv/internal/common/config"
)

// Recognized provider attribute names
const (
	AttrBucket          = "bucket"
	AttrExclusiveAccess = "exclusiveAccess"
	AttrHeaderPrefix    = "headerPrefix"
	AttrDataPrefix      = "dataPrefix"
	AttrMaxRetryCount   = "maxRetryCount"
	AttrThrowOnError    = "throwOnError"
	AttrCodec           = "codec"
	AttrTimeout         = "timeout"
)

// ParseAttributes turns a framework style attribute map into a session
// configuration and a bucket name. Every attribute must be recognized.
func ParseAttributes(attrs map[string]string) (cfg config.SessionConfig, bucket string, err error) {
	rest := make(map[string]string, len(attrs))
	for k, v := range attrs {
		rest[k] = v
	}
	take := func(name string) (string, bool) {
		v, ok := rest[name]
		delete(rest, name)
		return strings.TrimSpace(v), ok
	}

	bucket, _ = take(AttrBucket)
	if v, ok := take(AttrExclusiveAccess); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, "", fmt.Errorf("attribute %s: %w", AttrExclusiveAccess, err)
		}
		cfg.ExclusiveAccess = &b
	}
	cfg.HeaderPrefix, _ = take(AttrHeaderPrefix)
	cfg.DataPrefix, _ = take(AttrDataPrefix)
	if v, ok := take(AttrMaxRetryCount); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, "", fmt.Errorf("attribute %s: %w", AttrMaxRetryCount, err)
		}
		cfg.MaxRetryCount = n
	}
	if v, ok := take(AttrThrowOnError); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, "", fmt.Errorf("attribute %s: %w", AttrThrowOnError, err)
		}
		cfg.ThrowOnError = b
	}
	cfg.Codec, _ = take(AttrCodec)
	if v, ok := take(AttrTimeout); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, "", fmt.Errorf("attribute %s: %w", AttrTimeout, err)
		}
		cfg.Timeout = n
	}

	if len(rest) > 0 {
		names := make([]string, 0, len(rest))
		for k := range rest {
			names = append(names, k)
		}
		sort.Strings(names)
		return cfg, "", fmt.Errorf("%w: %s", cnst.ErrUnknownAttribute, strings.Join(names, ", "))
	}

	cfg.SetDefaults()
	return cfg, bucket, nil
}
