package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rojo-studio/rojo-server/internal/config"
	"github.com/rojo-studio/rojo-server/internal/security"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// generatedConfig is the config.yaml written by the setup wizard.
type generatedConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	DatabaseDSN string `yaml:"database-dsn"`
	JWT         struct {
		Secret string `yaml:"secret"`
		Expiry string `yaml:"expiry"`
	} `yaml:"jwt"`
	Admin struct {
		MFAStepUpTTL string `yaml:"mfa-step-up-ttl"`
	} `yaml:"admin"`
	Chat     config.ChatConfig     `yaml:"chat,omitempty"`
	WebAuthn config.WebAuthnConfig `yaml:"webauthn,omitempty"`
}

func newGeneratedConfig(dsn string, port int, req InitRequest) generatedConfig {
	var out generatedConfig
	out.Port = port
	out.DatabaseDSN = dsn
	out.JWT.Expiry = "720h"
	out.Admin.MFAStepUpTTL = "15m"
	out.Chat = config.ChatConfig{
		BaseURL: req.Chat.BaseURL,
		APIKey:  req.Chat.APIKey,
		Model:   req.Chat.Model,
	}
	out.WebAuthn = config.WebAuthnConfig{
		RPID:          req.WebAuthn.RPID,
		RPDisplayName: req.WebAuthn.RPDisplayName,
		RPOrigins:     req.WebAuthn.RPOrigins,
	}
	if out.WebAuthn.RPID != "" && out.WebAuthn.RPDisplayName == "" {
		out.WebAuthn.RPDisplayName = req.SiteName
	}
	return out
}

// ConfigExists reports whether a config file is present at path.
func ConfigExists(path string) bool {
	info, errStat := os.Stat(path)
	return errStat == nil && !info.IsDir()
}

// WriteConfigFile writes cfg to path with owner-only permissions. A missing
// JWT secret is generated.
func WriteConfigFile(path string, cfg generatedConfig) error {
	if strings.TrimSpace(cfg.JWT.Secret) == "" {
		secret, errSecret := security.GenerateRandomString(32)
		if errSecret != nil {
			return fmt.Errorf("generate jwt secret: %w", errSecret)
		}
		cfg.JWT.Secret = secret
	}
	data, errMarshal := yaml.Marshal(&cfg)
	if errMarshal != nil {
		return fmt.Errorf("encode config: %w", errMarshal)
	}
	if dir := filepath.Dir(path); dir != "" {
		if errMkdir := os.MkdirAll(dir, 0o755); errMkdir != nil {
			return fmt.Errorf("create config dir: %w", errMkdir)
		}
	}
	// Write beside the target and rename so a crash never leaves half a file.
	tmp := path + ".tmp"
	if errWrite := os.WriteFile(tmp, data, 0o600); errWrite != nil {
		return fmt.Errorf("write config: %w", errWrite)
	}
	if errRename := os.Rename(tmp, path); errRename != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("install config: %w", errRename)
	}
	return nil
}

func removeConfigFile(path string) {
	if errRemove := os.Remove(path); errRemove != nil && !os.IsNotExist(errRemove) {
		log.WithError(errRemove).Warn("init: remove config after failed setup")
	}
}
