package cnst

const (
	// SessionKVYaml is the default configuration file name
	SessionKVYaml = "sessionkv.yaml"
)

const (
	RedisClusterTypeSentinel = "sentinel"
	RedisClusterTypeCluster  = "cluster"
	RedisClusterTypeSingle   = "single"
)
