package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/rojo-studio/rojo-server/internal/chat"
	"github.com/rojo-studio/rojo-server/internal/config"
	"github.com/rojo-studio/rojo-server/internal/contentfilter"
	"github.com/rojo-studio/rojo-server/internal/db"
	internalhttp "github.com/rojo-studio/rojo-server/internal/http"
	"github.com/rojo-studio/rojo-server/internal/http/api/admin"
	"github.com/rojo-studio/rojo-server/internal/http/api/front"
	"github.com/rojo-studio/rojo-server/internal/kvstore"
	"github.com/rojo-studio/rojo-server/internal/projects"
	"github.com/rojo-studio/rojo-server/internal/ratelimit"
	"github.com/rojo-studio/rojo-server/internal/security"
	internalsettings "github.com/rojo-studio/rojo-server/internal/settings"
	"github.com/rojo-studio/rojo-server/internal/store"
	"github.com/rojo-studio/rojo-server/internal/usage"
	"github.com/rojo-studio/rojo-server/internal/watcher"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// shutdownTimeout bounds how long in-flight streams may run after a stop signal.
const shutdownTimeout = 15 * time.Second

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, cfg config.AppConfig) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	return db.Migrate(conn.WithContext(ctx))
}

// RunServer boots the studio API with database-backed components.
func RunServer(ctx context.Context, cfg config.AppConfig, defaultPort int) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	serverCfg, err := config.LoadServerConfig(configPath, defaultPort)
	if err != nil {
		return err
	}
	if serverCfg.Debug {
		log.SetLevel(log.DebugLevel)
	}
	jwtConfig, err := config.LoadJWTConfig(configPath)
	if err != nil {
		return err
	}
	adminConfig, err := config.LoadAdminConfig(configPath)
	if err != nil {
		return err
	}
	chatConfig, err := config.LoadChatConfig(configPath)
	if err != nil {
		return err
	}

	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}

	initialized, errInit := HasAdminInitialized(conn)
	if errInit != nil {
		return errInit
	}
	var initState atomic.Bool
	initState.Store(initialized)

	// The kv backend and limiter read the settings snapshot on construction.
	if errRefresh := watcher.RefreshSettings(ctx, conn); errRefresh != nil {
		return errRefresh
	}
	kvPrimary := store.NewGormKVStore(conn)
	kv := kvstore.NewManager(kvPrimary, kvstore.LoadRedisSettings, nil, nil)
	limiter := ratelimit.NewLimiter(ctx, kv, ratelimit.LoadSettingsConfig(), nil)
	applySettings := func() {
		limiter.Configure(ratelimit.LoadSettingsConfig())
	}
	watcher.New(conn, watcher.Options{
		Purger:           kvPrimary,
		OnSettingsChange: applySettings,
	}).Start(ctx)

	flags := store.NewGormFlagStore(conn)
	bans := store.NewGormBanStore(conn)
	filter := contentfilter.New(flags)
	projectService := projects.NewService(store.NewGormProjectRepository(conn), filter)
	recorder := usage.NewGormRecorder(conn)
	chatClient := chat.NewClient(chat.Options{
		BaseURL:     chatConfig.BaseURL,
		APIKey:      chatConfig.APIKey,
		Model:       chatConfig.Model,
		Temperature: chatConfig.Temperature,
		MaxTokens:   chatConfig.MaxTokens,
		SiteURL:     chatConfig.SiteURL,
		SiteName:    internalsettings.SiteName(),
	})
	if !chatClient.Configured() {
		log.Warn("chat: no api key configured, /v1/chat will answer 503")
	}

	webAuthn, errWebAuthn := loadWebAuthn(configPath)
	if errWebAuthn != nil {
		return errWebAuthn
	}

	loginThrottle := internalhttp.NewLoginThrottle(10, 5)
	loginThrottle.Start(ctx)

	if !serverCfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(internalhttp.RequestLogger())
	engine.Use(corsMiddleware())

	front.RegisterFrontRoutes(engine, conn, jwtConfig, front.Services{
		Projects:      projectService,
		Limiter:       limiter,
		Filter:        filter,
		Chat:          chatClient,
		Usage:         recorder,
		Bans:          bans,
		LoginThrottle: loginThrottle,
	})
	admin.RegisterAdminRoutes(engine, conn, jwtConfig, adminConfig, admin.Services{
		Limiter:          limiter,
		Projects:         projectService,
		Flags:            flags,
		Bans:             bans,
		Usage:            recorder,
		KV:               kv,
		WebAuthn:         webAuthn,
		OnSettingsChange: applySettings,
		LoginThrottle:    loginThrottle,
	})
	registerInitRoutes(engine, conn, dsn, &initState)
	engine.NoRoute(func(c *gin.Context) {
		if !isAPIRoute(c.Request.URL.Path) && !initState.Load() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "System not initialized, POST /v0/init/setup first"})
			return
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	srv := &http.Server{
		Addr:    serverCfg.Addr(),
		Handler: engine,
	}
	return serve(ctx, srv)
}

// serve runs srv until ctx ends, then drains connections.
func serve(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		log.Infof("starting server on %s", srv.Addr)
		if errListen := srv.ListenAndServe(); errListen != nil && !errors.Is(errListen, http.ErrServerClosed) {
			errCh <- errListen
		}
		close(errCh)
	}()

	select {
	case errListen, ok := <-errCh:
		if ok {
			return errListen
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if errShutdown := srv.Shutdown(shutdownCtx); errShutdown != nil {
		return fmt.Errorf("server shutdown: %w", errShutdown)
	}
	log.Info("server stopped")
	return nil
}

// loadWebAuthn builds the passkey relying party. Missing settings disable passkeys.
func loadWebAuthn(configPath string) (*webauthn.WebAuthn, error) {
	cfg, errLoad := config.LoadWebAuthnConfig(configPath)
	if errLoad != nil {
		return nil, errLoad
	}
	w, errNew := security.NewWebAuthn(security.WebAuthnOptions{
		RPID:          cfg.RPID,
		RPDisplayName: cfg.RPDisplayName,
		RPOrigins:     cfg.RPOrigins,
	})
	if errors.Is(errNew, security.ErrWebAuthnDisabled) {
		log.Info("webauthn: relying party not configured, passkeys disabled")
		return nil, nil
	}
	if errNew != nil {
		return nil, errNew
	}
	return w, nil
}

// registerInitRoutes exposes first-run setup for deployments configured
// through DB_CONNECTION without an admin account. Only the admin section of
// the form applies; chat and passkey settings come from the environment.
func registerInitRoutes(engine *gin.Engine, conn *gorm.DB, dsn string, initState *atomic.Bool) {
	engine.GET("/v0/init/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, InitStatusResponse{Initialized: initState.Load()})
	})
	engine.GET("/v0/init/prefill", func(c *gin.Context) {
		prefill, errPrefill := initPrefillFromDSN(dsn)
		if errPrefill != nil {
			c.JSON(http.StatusOK, gin.H{"locked": true})
			return
		}
		c.JSON(http.StatusOK, struct {
			Locked bool `json:"locked"`
			initPrefill
		}{Locked: true, initPrefill: prefill})
	})
	engine.POST("/v0/init/setup", func(c *gin.Context) {
		if ok, errInit := HasAdminInitialized(conn); errInit != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "check admin status failed"})
			return
		} else if ok {
			initState.Store(true)
			c.JSON(http.StatusBadRequest, gin.H{"error": "System already initialized"})
			return
		}

		var req InitRequest
		if errBind := c.ShouldBindJSON(&req); errBind != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errBind.Error()})
			return
		}
		if errValidate := validateAdminInput(&req); errValidate != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errValidate.Error()})
			return
		}

		if errAdmin := CreateAdminUserWithConn(conn, req.Admin, req.SiteName); errAdmin != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to create admin: %v", errAdmin)})
			return
		}
		initState.Store(true)
		if errRefresh := watcher.RefreshSettings(c.Request.Context(), conn); errRefresh != nil {
			log.WithError(errRefresh).Warn("init: refresh settings failed")
		}
		c.JSON(http.StatusOK, gin.H{"message": "Initialization successful"})
	})
}

// corsMiddleware enables permissive CORS for the browser studio.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// isAPIRoute reports whether a path targets API endpoints.
func isAPIRoute(requestPath string) bool {
	if requestPath == "/healthz" || strings.HasPrefix(requestPath, "/healthz/") {
		return true
	}
	for _, prefix := range []string{"/v0", "/v1"} {
		if requestPath == prefix || strings.HasPrefix(requestPath, prefix+"/") {
			return true
		}
	}
	return false
}
