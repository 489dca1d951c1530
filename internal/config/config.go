package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	EnvConfigPath        = "CONFIG_PATH"
	EnvDBConnection      = "DB_CONNECTION"
	EnvJWTSecret         = "JWT_SECRET"
	EnvJWTExpiry         = "JWT_EXPIRY"
	EnvChatAPIKey        = "CHAT_API_KEY"
	EnvOpenRouterAPIKey  = "OPENROUTER_API_KEY"
	EnvChatBaseURL       = "CHAT_BASE_URL"
	EnvChatModel         = "CHAT_MODEL"
	EnvWebAuthnRPID      = "WEBAUTHN_RP_ID"
	EnvWebAuthnRPOrigins = "WEBAUTHN_RP_ORIGINS"
)

// AppConfig holds resolved application configuration values.
type AppConfig struct {
	ConfigPath string
}

// LoadFromEnv loads app config from environment variables.
func LoadFromEnv() (AppConfig, error) {
	return AppConfig{ConfigPath: ResolveConfigPath(os.Getenv(EnvConfigPath))}, nil
}

// ResolveConfigPath normalizes the config path and applies defaults.
func ResolveConfigPath(p string) string {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		trimmed = "./config.yaml"
	}
	if abs, err := filepath.Abs(trimmed); err == nil {
		return abs
	}
	return trimmed
}

// ErrMissingDatabaseDSN indicates no database DSN is present in the config file.
var ErrMissingDatabaseDSN = errors.New("missing database dsn (set `database-dsn` or `database.dsn` in config file)")

// JWTConfig holds JWT secret and expiry settings.
type JWTConfig struct {
	Secret string        `yaml:"secret"`
	Expiry time.Duration `yaml:"expiry"`
}

// LoadDatabaseDSN reads the database DSN from the YAML config file.
func LoadDatabaseDSN(configPath string) (string, error) {
	if dsn := strings.TrimSpace(os.Getenv(EnvDBConnection)); dsn != "" {
		return dsn, nil
	}

	// fileConfig maps the YAML fields needed for DSN resolution.
	type fileConfig struct {
		DatabaseDSN string `yaml:"database-dsn"`
		Database    struct {
			DSN string `yaml:"dsn"`
		} `yaml:"database"`
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return "", fmt.Errorf("read config file: %w", err)
	}

	var cfg fileConfig
	if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
		return "", fmt.Errorf("parse config file: %w", errUnmarshal)
	}

	if dsn := strings.TrimSpace(cfg.DatabaseDSN); dsn != "" {
		return dsn, nil
	}
	if dsn := strings.TrimSpace(cfg.Database.DSN); dsn != "" {
		return dsn, nil
	}
	return "", ErrMissingDatabaseDSN
}

// defaultJWTExpiry is used when the config omits or invalidates JWT expiry.
const defaultJWTExpiry = 30 * 24 * time.Hour

// LoadJWTConfig loads JWT settings from the YAML config file.
func LoadJWTConfig(configPath string) (JWTConfig, error) {
	// fileConfig maps the YAML fields needed for JWT settings.
	type fileConfig struct {
		JWT JWTConfig `yaml:"jwt"`
	}

	result := JWTConfig{Expiry: defaultJWTExpiry}

	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		var cfg fileConfig
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal == nil {
			result = cfg.JWT
		}
	}

	if secret := strings.TrimSpace(os.Getenv(EnvJWTSecret)); secret != "" {
		result.Secret = secret
	}
	if expiryRaw := strings.TrimSpace(os.Getenv(EnvJWTExpiry)); expiryRaw != "" {
		if expiry, errParse := time.ParseDuration(expiryRaw); errParse == nil && expiry > 0 {
			result.Expiry = expiry
		}
	}

	if result.Expiry <= 0 {
		result.Expiry = defaultJWTExpiry
	}
	return result, nil
}

// readYAML decodes configPath into dst. A missing file leaves dst untouched.
func readYAML(configPath string, dst any) error {
	data, errRead := os.ReadFile(configPath)
	if errRead != nil {
		if errors.Is(errRead, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config file: %w", errRead)
	}
	if errUnmarshal := yaml.Unmarshal(data, dst); errUnmarshal != nil {
		return fmt.Errorf("parse config file: %w", errUnmarshal)
	}
	return nil
}

// ServerConfig holds listener and logging settings.
type ServerConfig struct {
	Host  string `yaml:"host"`
	Port  int    `yaml:"port"`
	Debug bool   `yaml:"debug"`
}

// LoadServerConfig loads listener settings. defaultPort applies when port is unset.
func LoadServerConfig(configPath string, defaultPort int) (ServerConfig, error) {
	var result ServerConfig
	if errRead := readYAML(configPath, &result); errRead != nil {
		return ServerConfig{}, errRead
	}
	result.Host = strings.TrimSpace(result.Host)
	if result.Port <= 0 {
		result.Port = defaultPort
	}
	return result, nil
}

// Addr returns host:port.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ChatConfig holds the upstream completion endpoint settings.
type ChatConfig struct {
	BaseURL     string  `yaml:"base-url,omitempty"`
	APIKey      string  `yaml:"api-key,omitempty"`
	Model       string  `yaml:"model,omitempty"`
	Temperature float64 `yaml:"temperature,omitempty"`
	MaxTokens   int     `yaml:"max-tokens,omitempty"`
	SiteURL     string  `yaml:"site-url,omitempty"`
}

// LoadChatConfig loads the chat section with environment overrides.
// CHAT_API_KEY wins over OPENROUTER_API_KEY.
func LoadChatConfig(configPath string) (ChatConfig, error) {
	type fileConfig struct {
		Chat ChatConfig `yaml:"chat"`
	}
	var cfg fileConfig
	if errRead := readYAML(configPath, &cfg); errRead != nil {
		return ChatConfig{}, errRead
	}
	result := cfg.Chat
	if key := strings.TrimSpace(os.Getenv(EnvOpenRouterAPIKey)); key != "" {
		result.APIKey = key
	}
	if key := strings.TrimSpace(os.Getenv(EnvChatAPIKey)); key != "" {
		result.APIKey = key
	}
	if baseURL := strings.TrimSpace(os.Getenv(EnvChatBaseURL)); baseURL != "" {
		result.BaseURL = baseURL
	}
	if model := strings.TrimSpace(os.Getenv(EnvChatModel)); model != "" {
		result.Model = model
	}
	result.APIKey = strings.TrimSpace(result.APIKey)
	return result, nil
}

// WebAuthnConfig holds passkey relying party settings.
type WebAuthnConfig struct {
	RPID          string   `yaml:"rp-id,omitempty"`
	RPDisplayName string   `yaml:"rp-display-name,omitempty"`
	RPOrigins     []string `yaml:"rp-origins,omitempty"`
}

// LoadWebAuthnConfig loads the webauthn section. WEBAUTHN_RP_ORIGINS is comma separated.
func LoadWebAuthnConfig(configPath string) (WebAuthnConfig, error) {
	type fileConfig struct {
		WebAuthn WebAuthnConfig `yaml:"webauthn"`
	}
	var cfg fileConfig
	if errRead := readYAML(configPath, &cfg); errRead != nil {
		return WebAuthnConfig{}, errRead
	}
	result := cfg.WebAuthn
	if rpID := strings.TrimSpace(os.Getenv(EnvWebAuthnRPID)); rpID != "" {
		result.RPID = rpID
	}
	if raw := strings.TrimSpace(os.Getenv(EnvWebAuthnRPOrigins)); raw != "" {
		result.RPOrigins = nil
		for _, origin := range strings.Split(raw, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				result.RPOrigins = append(result.RPOrigins, origin)
			}
		}
	}
	return result, nil
}

// defaultMFAStepUpTTL bounds how long a second-factor verification authorizes admin changes.
const defaultMFAStepUpTTL = 15 * time.Minute

// AdminConfig holds admin console settings.
type AdminConfig struct {
	MFAStepUpTTL time.Duration `yaml:"mfa-step-up-ttl"`
}

// LoadAdminConfig loads the admin section.
func LoadAdminConfig(configPath string) (AdminConfig, error) {
	type fileConfig struct {
		Admin AdminConfig `yaml:"admin"`
	}
	var cfg fileConfig
	if errRead := readYAML(configPath, &cfg); errRead != nil {
		return AdminConfig{}, errRead
	}
	result := cfg.Admin
	if result.MFAStepUpTTL <= 0 {
		result.MFAStepUpTTL = defaultMFAStepUpTTL
	}
	return result, nil
}
