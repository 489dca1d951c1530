package app

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/rojo-studio/rojo-server/internal/db"
	log "github.com/sirupsen/logrus"
)

// Supported database types for the setup form.
const (
	databasePostgres = "postgres"
	databaseSQLite   = "sqlite"
)

// defaultSQLitePath is the default SQLite database file name.
const defaultSQLitePath = "rojo.db"

// DatabaseInput is the database section of the setup form.
type DatabaseInput struct {
	Type     string `json:"type"`
	Host     string `json:"host,omitempty"`
	Port     int    `json:"port,omitempty"`
	User     string `json:"user,omitempty"`
	Password string `json:"password,omitempty"`
	Name     string `json:"name,omitempty"`
	Path     string `json:"path,omitempty"`
	SSLMode  string `json:"ssl_mode,omitempty"`
}

func (d *DatabaseInput) normalize() error {
	d.Type = strings.ToLower(strings.TrimSpace(d.Type))
	if d.Type == "" {
		d.Type = databasePostgres
	}
	switch d.Type {
	case databasePostgres:
		d.Host = strings.TrimSpace(d.Host)
		d.User = strings.TrimSpace(d.User)
		d.Name = strings.TrimSpace(d.Name)
		switch {
		case d.Host == "":
			return fmt.Errorf("Database host is required")
		case d.Port <= 0 || d.Port > 65535:
			return fmt.Errorf("Invalid database port")
		case d.User == "":
			return fmt.Errorf("Database username is required")
		case d.Name == "":
			return fmt.Errorf("Database name is required")
		case strings.TrimSpace(d.Password) == "":
			return fmt.Errorf("Database password is required")
		}
		if d.SSLMode = strings.TrimSpace(d.SSLMode); d.SSLMode == "" {
			d.SSLMode = "disable"
		}
	case databaseSQLite:
		if d.Path = strings.TrimSpace(d.Path); d.Path == "" {
			d.Path = defaultSQLitePath
		}
	default:
		return fmt.Errorf("Unsupported database type")
	}
	return nil
}

// DSN renders the connection string for a normalized input.
func (d DatabaseInput) DSN() (string, error) {
	switch d.Type {
	case databasePostgres:
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(d.User, d.Password),
			Host:     d.Host + ":" + strconv.Itoa(d.Port),
			Path:     "/" + d.Name,
			RawQuery: url.Values{"sslmode": {d.SSLMode}}.Encode(),
		}
		return u.String(), nil
	case databaseSQLite:
		return sqliteDSN(d.Path), nil
	default:
		return "", fmt.Errorf("unsupported database type %q", d.Type)
	}
}

// sqliteDSN adds the pragmas the server expects to a SQLite file path.
func sqliteDSN(path string) string {
	dsn := strings.TrimSpace(path)
	if dsn == "" {
		dsn = defaultSQLitePath
	}
	if !strings.HasPrefix(strings.ToLower(dsn), "file:") {
		dsn = "file:" + dsn
	}
	pragmas := url.Values{"_pragma": {"busy_timeout(5000)", "journal_mode(WAL)", "foreign_keys(1)"}}
	separator := "?"
	if strings.Contains(dsn, "?") {
		separator = "&"
	}
	return dsn + separator + pragmas.Encode()
}

// pingDatabase opens dsn once to prove the credentials work.
func pingDatabase(dsn string) error {
	conn, errOpen := db.Open(dsn)
	if errOpen != nil {
		return fmt.Errorf("failed to connect to database: %w", errOpen)
	}
	sqlDB, errDB := conn.DB()
	if errDB != nil {
		return fmt.Errorf("failed to get sql db: %w", errDB)
	}
	defer func() {
		if errClose := sqlDB.Close(); errClose != nil {
			log.WithError(errClose).Warn("init: close check connection")
		}
	}()
	return sqlDB.Ping()
}

// initPrefill is the database section shown to a deployment configured
// through DB_CONNECTION. The password itself is never returned.
type initPrefill struct {
	DatabaseInput
	PasswordSet bool `json:"password_set"`
}

func initPrefillFromDSN(dsn string) (initPrefill, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return initPrefill{}, fmt.Errorf("empty dsn")
	}
	if strings.HasPrefix(strings.ToLower(trimmed), "file:") {
		path, _, _ := strings.Cut(trimmed[len("file:"):], "?")
		return initPrefill{DatabaseInput: DatabaseInput{Type: databaseSQLite, Path: strings.TrimSpace(path)}}, nil
	}

	u, errParse := url.Parse(trimmed)
	if errParse != nil {
		return initPrefill{}, fmt.Errorf("parse dsn: %w", errParse)
	}
	if scheme := strings.ToLower(u.Scheme); scheme != "postgres" && scheme != "postgresql" {
		return initPrefill{}, fmt.Errorf("unsupported dsn scheme %q", u.Scheme)
	}

	prefill := initPrefill{DatabaseInput: DatabaseInput{
		Type:    databasePostgres,
		Host:    u.Hostname(),
		Port:    5432,
		Name:    strings.TrimPrefix(u.Path, "/"),
		SSLMode: u.Query().Get("sslmode"),
	}}
	if rawPort := u.Port(); rawPort != "" {
		port, errPort := strconv.Atoi(rawPort)
		if errPort != nil {
			return initPrefill{}, fmt.Errorf("parse port: %w", errPort)
		}
		prefill.Port = port
	}
	if prefill.SSLMode == "" {
		prefill.SSLMode = "disable"
	}
	if u.User != nil {
		prefill.User = u.User.Username()
		_, prefill.PasswordSet = u.User.Password()
	}
	return prefill, nil
}
