package settings

// DB config keys and defaults for settings.
const (
	// SiteNameKey is the DB config key for the UI site name.
	SiteNameKey = "SITE_NAME"
	// DefaultSiteName is the fallback UI site name.
	DefaultSiteName = "Rojo Studio"
	// RateLimitRequestsPerWindowKey controls the default per-user quota.
	RateLimitRequestsPerWindowKey = "RATE_LIMIT_REQUESTS_PER_WINDOW"
	// RateLimitWindowSecondsKey controls the trailing window length in seconds.
	RateLimitWindowSecondsKey = "RATE_LIMIT_WINDOW_SECONDS"
	// RateLimitMaxInFlightKey controls the system-wide concurrency ceiling.
	RateLimitMaxInFlightKey = "RATE_LIMIT_MAX_IN_FLIGHT"
	// RateLimitRedisEnabledKey toggles the Redis-backed state store.
	RateLimitRedisEnabledKey = "RATE_LIMIT_REDIS_ENABLED"
	// RateLimitRedisAddrKey defines the Redis address for the state store.
	RateLimitRedisAddrKey = "RATE_LIMIT_REDIS_ADDR"
	// RateLimitRedisPasswordKey defines the Redis password for the state store.
	RateLimitRedisPasswordKey = "RATE_LIMIT_REDIS_PASSWORD"
	// RateLimitRedisDBKey defines the Redis DB index for the state store.
	RateLimitRedisDBKey = "RATE_LIMIT_REDIS_DB"
	// RateLimitRedisPrefixKey defines the Redis key prefix for the state store.
	RateLimitRedisPrefixKey = "RATE_LIMIT_REDIS_PREFIX"
	// ChatHistoryTurnsKey bounds how many prior turns are relayed upstream.
	ChatHistoryTurnsKey = "CHAT_HISTORY_TURNS"
	// DefaultRateLimitRequestsPerWindow is the fallback per-user quota.
	DefaultRateLimitRequestsPerWindow = 6
	// DefaultRateLimitWindowSeconds is the fallback trailing window (one hour).
	DefaultRateLimitWindowSeconds = 3600
	// DefaultRateLimitMaxInFlight is the fallback concurrency ceiling.
	DefaultRateLimitMaxInFlight = 3
	// DefaultRateLimitRedisPrefix is the fallback Redis key prefix.
	DefaultRateLimitRedisPrefix = "rojo:rl"
	// DefaultChatHistoryTurns is the fallback relayed history length.
	DefaultChatHistoryTurns = 10
)
