package cnst

// StoreType represents the backend of the key-value store client
type StoreType string

const (
	// StoreTypeMemory keeps entries in process memory
	StoreTypeMemory StoreType = "memory"
	// StoreTypeRedis keeps entries in Redis
	StoreTypeRedis StoreType = "redis"
	// StoreTypeDB keeps entries in a SQL table through gorm
	StoreTypeDB StoreType = "db"
)

func (s StoreType) String() string {
	return string(s)
}

// CodecName identifies a session payload codec
type CodecName string

const (
	CodecJSON CodecName = "json"
	CodecGzip CodecName = "gzip"
)

func (c CodecName) String() string {
	return string(c)
}
