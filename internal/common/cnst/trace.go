package cnst

// Tracer names used across the packages
const (
	// TraceSession is the tracer name for the session store engine
	TraceSession = "sessionkv/session"
	// TraceOutputCache is the tracer name for the output cache
	TraceOutputCache = "sessionkv/outputcache"
)

// Common span names and prefixes
const (
	// SpanSessionPrefix prefixes spans for engine operations
	SpanSessionPrefix = "session."

	SpanOutputCacheGet = "outputcache.get"
	SpanOutputCacheSet = "outputcache.set"
)
