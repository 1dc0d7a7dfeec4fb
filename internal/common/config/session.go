package config

import "time"

type (
	// SessionConfig represents the session state provider configuration
	SessionConfig struct {
		// ExclusiveAccess enables the CAS guarded lock protocol. Nil means true.
		ExclusiveAccess  *bool         `yaml:"exclusive_access" toml:"exclusive_access"`
		HeaderPrefix     string        `yaml:"header_prefix" toml:"header_prefix"`
		DataPrefix       string        `yaml:"data_prefix" toml:"data_prefix"`
		MaxRetryCount    int           `yaml:"max_retry_count" toml:"max_retry_count"`
		ThrowOnError     bool          `yaml:"throw_on_error" toml:"throw_on_error"`
		Codec            string        `yaml:"codec" toml:"codec"`                         // json or gzip
		Timeout          int           `yaml:"timeout" toml:"timeout"`                     // session timeout in minutes
		ExecutionTimeout time.Duration `yaml:"execution_timeout" toml:"execution_timeout"` // lock age after which a lock is forcibly released
		LockPollInterval time.Duration `yaml:"lock_poll_interval" toml:"lock_poll_interval"`
		CookieName       string        `yaml:"cookie_name" toml:"cookie_name"`
		CookieSecure     bool          `yaml:"cookie_secure" toml:"cookie_secure"`
	}

	// OutputCacheConfig represents the output cache configuration
	OutputCacheConfig struct {
		Enabled      bool          `yaml:"enabled" toml:"enabled"`
		Prefix       string        `yaml:"prefix" toml:"prefix"`
		ThrowOnError bool          `yaml:"throw_on_error" toml:"throw_on_error"`
		Duration     time.Duration `yaml:"duration" toml:"duration"` // default lifetime of cached responses
	}
)

// IsExclusive reports whether the lock protocol is enabled
func (c *SessionConfig) IsExclusive() bool {
	return c.ExclusiveAccess == nil || *c.ExclusiveAccess
}

// SetDefaults fills zero values with their defaults
func (c *SessionConfig) SetDefaults() {
	if c.HeaderPrefix == "" {
		c.HeaderPrefix = "info-"
	}
	if c.DataPrefix == "" {
		c.DataPrefix = "data-"
	}
	if c.MaxRetryCount == 0 {
		c.MaxRetryCount = 5
	}
	if c.Codec == "" {
		c.Codec = "json"
	}
	if c.Timeout == 0 {
		c.Timeout = 20
	}
	if c.ExecutionTimeout == 0 {
		c.ExecutionTimeout = 110 * time.Second
	}
	if c.LockPollInterval == 0 {
		c.LockPollInterval = 500 * time.Millisecond
	}
	if c.CookieName == "" {
		c.CookieName = "sessionkv_id"
	}
}

// SetDefaults fills zero values with their defaults
func (c *OutputCacheConfig) SetDefaults() {
	if c.Prefix == "" {
		c.Prefix = "output-"
	}
	if c.Duration == 0 {
		c.Duration = time.Minute
	}
}
