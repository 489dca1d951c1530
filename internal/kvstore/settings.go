package kvstore

import (
	internalsettings "github.com/rojo-studio/rojo-server/internal/settings"
)

// RedisSettings captures the Redis backend settings stored in DB config.
type RedisSettings struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// LoadRedisSettings loads the current Redis settings snapshot.
func LoadRedisSettings() RedisSettings {
	cfg := RedisSettings{Prefix: internalsettings.DefaultRateLimitRedisPrefix}

	if raw, ok := internalsettings.DBConfigValue(internalsettings.RateLimitRedisEnabledKey); ok {
		if enabled, okParse := internalsettings.ParseBool(raw); okParse {
			cfg.Enabled = enabled
		}
	}
	if raw, ok := internalsettings.DBConfigValue(internalsettings.RateLimitRedisAddrKey); ok {
		if addr, okParse := internalsettings.ParseString(raw); okParse {
			cfg.Addr = addr
		}
	}
	if raw, ok := internalsettings.DBConfigValue(internalsettings.RateLimitRedisPasswordKey); ok {
		if password, okParse := internalsettings.ParseString(raw); okParse {
			cfg.Password = password
		}
	}
	if raw, ok := internalsettings.DBConfigValue(internalsettings.RateLimitRedisDBKey); ok {
		if db, okParse := internalsettings.ParseNonNegativeInt(raw); okParse {
			cfg.DB = db
		}
	}
	if raw, ok := internalsettings.DBConfigValue(internalsettings.RateLimitRedisPrefixKey); ok {
		if prefix, okParse := internalsettings.ParseString(raw); okParse && prefix != "" {
			cfg.Prefix = prefix
		}
	}
	return cfg
}
