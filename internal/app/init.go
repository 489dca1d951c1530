package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rojo-studio/rojo-server/internal/config"
	internalsettings "github.com/rojo-studio/rojo-server/internal/settings"
	log "github.com/sirupsen/logrus"
)

// ErrInitCompleted signals that initialization finished and the server should restart.
var ErrInitCompleted = errors.New("init completed")

// InitRequest is the first-run setup form.
type InitRequest struct {
	Database DatabaseInput `json:"database"`
	SiteName string        `json:"site_name"`
	Admin    AdminInput    `json:"admin"`
	Chat     ChatInput     `json:"chat"`
	WebAuthn WebAuthnInput `json:"webauthn"`
}

// AdminInput describes the first super admin.
type AdminInput struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// ChatInput configures the completion upstream. Empty fields keep the
// client defaults; an empty key leaves the relay disabled until one is set.
type ChatInput struct {
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
	APIKey  string `json:"api_key"`
}

// WebAuthnInput configures the passkey relying party. The RP id defaults to
// the host of the first origin.
type WebAuthnInput struct {
	RPID          string   `json:"rp_id"`
	RPDisplayName string   `json:"rp_display_name"`
	RPOrigins     []string `json:"rp_origins"`
}

// InitStatusResponse reports whether initialization is complete.
type InitStatusResponse struct {
	Initialized bool `json:"initialized"`
}

// minAdminPasswordLength matches the sign-up password rule.
const minAdminPasswordLength = 6

// validateInitRequest normalizes every section of a setup form.
func validateInitRequest(req *InitRequest) error {
	if errDB := req.Database.normalize(); errDB != nil {
		return errDB
	}
	if errAdmin := validateAdminInput(req); errAdmin != nil {
		return errAdmin
	}
	if errChat := req.Chat.normalize(); errChat != nil {
		return errChat
	}
	return req.WebAuthn.normalize()
}

// validateAdminInput normalizes the site name and the first admin account.
func validateAdminInput(req *InitRequest) error {
	req.SiteName = strings.TrimSpace(req.SiteName)
	if req.SiteName == "" {
		req.SiteName = internalsettings.DefaultSiteName
	}
	admin := &req.Admin
	admin.Email = strings.ToLower(strings.TrimSpace(admin.Email))
	if _, errParse := mail.ParseAddress(admin.Email); errParse != nil {
		return fmt.Errorf("Invalid admin email")
	}
	admin.Username = strings.TrimSpace(admin.Username)
	if admin.Username == "" {
		return fmt.Errorf("Admin username is required")
	}
	if len(admin.Password) < minAdminPasswordLength {
		return fmt.Errorf("Password must be at least %d characters", minAdminPasswordLength)
	}
	return nil
}

func (c *ChatInput) normalize() error {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	c.Model = strings.TrimSpace(c.Model)
	c.APIKey = strings.TrimSpace(c.APIKey)
	if c.BaseURL != "" {
		if _, ok := parseHTTPURL(c.BaseURL); !ok {
			return fmt.Errorf("Invalid chat base URL")
		}
	}
	return nil
}

func (w *WebAuthnInput) normalize() error {
	w.RPID = strings.TrimSpace(w.RPID)
	w.RPDisplayName = strings.TrimSpace(w.RPDisplayName)
	origins := make([]string, 0, len(w.RPOrigins))
	for _, origin := range w.RPOrigins {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		if origin == "" {
			continue
		}
		if _, ok := parseHTTPURL(origin); !ok {
			return fmt.Errorf("Invalid passkey origin %q", origin)
		}
		origins = append(origins, origin)
	}
	w.RPOrigins = origins
	if w.RPID == "" && len(origins) > 0 {
		u, _ := parseHTTPURL(origins[0])
		w.RPID = u.Hostname()
	}
	if w.RPID != "" && len(origins) == 0 {
		return fmt.Errorf("Passkey origins are required when an RP id is set")
	}
	return nil
}

func parseHTTPURL(raw string) (*url.URL, bool) {
	u, errParse := url.Parse(raw)
	if errParse != nil || u.Host == "" {
		return nil, false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, false
	}
	return u, true
}

// RunInitServer serves the setup API until a setup succeeds or ctx ends.
func RunInitServer(ctx context.Context, cfg config.AppConfig, port int) error {
	gin.SetMode(gin.ReleaseMode)
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	setup := newInitSetup(configPath, port)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: setup.engine(),
	}
	log.Infof("starting init server on %s (config not found at %s)", srv.Addr, configPath)

	go func() {
		select {
		case <-ctx.Done():
		case <-setup.done:
			// Let the setup response reach the client first.
			time.Sleep(500 * time.Millisecond)
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if errShutdown := srv.Shutdown(shutdownCtx); errShutdown != nil {
			log.WithError(errShutdown).Error("init server shutdown failed")
		}
	}()

	if errListen := srv.ListenAndServe(); errListen != nil && !errors.Is(errListen, http.ErrServerClosed) {
		return errListen
	}
	select {
	case <-setup.done:
		return ErrInitCompleted
	default:
		return nil
	}
}

// initSetup owns the first-run routes.
type initSetup struct {
	configPath string
	port       int

	mu       sync.Mutex
	done     chan struct{}
	doneOnce sync.Once
}

func newInitSetup(configPath string, port int) *initSetup {
	return &initSetup{configPath: configPath, port: port, done: make(chan struct{})}
}

func (s *initSetup) engine() *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())
	engine.GET("/v0/init/status", s.status)
	engine.POST("/v0/init/setup", s.submit)
	engine.NoRoute(func(c *gin.Context) {
		if ConfigExists(s.configPath) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "System initializing, please restart the server"})
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "System not initialized, POST /v0/init/setup first"})
	})
	return engine
}

func (s *initSetup) status(c *gin.Context) {
	c.JSON(http.StatusOK, InitStatusResponse{Initialized: ConfigExists(s.configPath)})
}

func (s *initSetup) submit(c *gin.Context) {
	// One setup at a time; the config file is the completion marker.
	s.mu.Lock()
	defer s.mu.Unlock()

	if ConfigExists(s.configPath) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "System already initialized"})
		return
	}
	var req InitRequest
	if errBind := c.ShouldBindJSON(&req); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if errValidate := validateInitRequest(&req); errValidate != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errValidate.Error()})
		return
	}

	dsn, errBuild := req.Database.DSN()
	if errBuild != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errBuild.Error()})
		return
	}
	if errPing := pingDatabase(dsn); errPing != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Database connection failed: %v", errPing)})
		return
	}
	if errWrite := WriteConfigFile(s.configPath, newGeneratedConfig(dsn, s.port, req)); errWrite != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to write config: %v", errWrite)})
		return
	}
	if errAdmin := CreateAdminUser(dsn, req.Admin, req.SiteName); errAdmin != nil {
		removeConfigFile(s.configPath)
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to create admin: %v", errAdmin)})
		return
	}

	log.WithFields(log.Fields{
		"database":        req.Database.Type,
		"chat_configured": req.Chat.APIKey != "",
		"passkeys":        req.WebAuthn.RPID != "",
	}).Info("init: setup completed")
	c.JSON(http.StatusOK, gin.H{"message": "Initialization successful"})
	s.doneOnce.Do(func() { close(s.done) })
}
