package ratelimit

import (
	"time"

	internalsettings "github.com/rojo-studio/rojo-server/internal/settings"
)

// SettingsProvider supplies the latest limiter settings.
type SettingsProvider func() Config

// LoadSettingsConfig loads the limiter settings from the DB config snapshot.
func LoadSettingsConfig() Config {
	cfg := DefaultConfig()

	if raw, ok := internalsettings.DBConfigValue(internalsettings.RateLimitRequestsPerWindowKey); ok {
		if limit, okParse := internalsettings.ParseNonNegativeInt(raw); okParse {
			cfg.DefaultLimit = limit
		}
	}
	if raw, ok := internalsettings.DBConfigValue(internalsettings.RateLimitWindowSecondsKey); ok {
		if seconds, okParse := internalsettings.ParsePositiveInt(raw); okParse {
			cfg.Window = time.Duration(seconds) * time.Second
		}
	}
	if raw, ok := internalsettings.DBConfigValue(internalsettings.RateLimitMaxInFlightKey); ok {
		if ceiling, okParse := internalsettings.ParsePositiveInt(raw); okParse {
			cfg.MaxInFlight = ceiling
		}
	}
	return cfg
}
