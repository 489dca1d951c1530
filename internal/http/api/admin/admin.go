package admin

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/rojo-studio/rojo-server/internal/config"
	internalhttp "github.com/rojo-studio/rojo-server/internal/http"
	handlers "github.com/rojo-studio/rojo-server/internal/http/api/admin/handlers"
	"github.com/rojo-studio/rojo-server/internal/http/api/admin/permissions"
	"github.com/rojo-studio/rojo-server/internal/kvstore"
	"github.com/rojo-studio/rojo-server/internal/models"
	"github.com/rojo-studio/rojo-server/internal/projects"
	"github.com/rojo-studio/rojo-server/internal/ratelimit"
	"github.com/rojo-studio/rojo-server/internal/security"
	"github.com/rojo-studio/rojo-server/internal/store"
	"github.com/rojo-studio/rojo-server/internal/usage"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Services bundles the components the admin routes delegate to.
type Services struct {
	Limiter  *ratelimit.Limiter
	Projects *projects.Service
	Flags    *store.GormFlagStore
	Bans     *store.GormBanStore
	Usage    *usage.GormRecorder
	KV       kvstore.Store
	// WebAuthn is nil when passkeys are not configured.
	WebAuthn *webauthn.WebAuthn
	// OnSettingsChange applies a refreshed settings snapshot.
	OnSettingsChange func()
	LoginThrottle    *internalhttp.LoginThrottle
}

// RegisterAdminRoutes registers admin routes, middleware, and handlers.
func RegisterAdminRoutes(r *gin.Engine, db *gorm.DB, jwtCfg config.JWTConfig, adminCfg config.AdminConfig, svc Services) {
	if r == nil || db == nil {
		return
	}

	healthHandler := handlers.NewHealthHandler(db)
	r.GET("/healthz", healthHandler.Healthz)

	adminGroup := r.Group("/v0/admin")

	authHandler := handlers.NewAuthHandler(db, jwtCfg)
	if svc.LoginThrottle != nil {
		adminGroup.POST("/login", svc.LoginThrottle.Middleware(), authHandler.Login)
	} else {
		adminGroup.POST("/login", authHandler.Login)
	}

	stepUp := requireMFAStepUp(adminCfg.MFAStepUpTTL)

	selfAuthed := adminGroup.Group("")
	selfAuthed.Use(adminAuthMiddleware(db, jwtCfg))

	mfaHandler := handlers.NewMFAHandler(db, jwtCfg, adminCfg.MFAStepUpTTL, svc.WebAuthn, svc.KV)
	selfAuthed.GET("/mfa/status", mfaHandler.Status)
	selfAuthed.POST("/mfa/totp/prepare", mfaHandler.PrepareTOTP)
	selfAuthed.POST("/mfa/totp/confirm", mfaHandler.ConfirmTOTP)
	selfAuthed.POST("/mfa/totp/disable", stepUp, mfaHandler.DisableTOTP)
	selfAuthed.POST("/mfa/passkey/options", mfaHandler.BeginPasskeyRegistration)
	selfAuthed.POST("/mfa/passkey/verify", mfaHandler.FinishPasskeyRegistration)
	selfAuthed.POST("/mfa/passkey/disable", stepUp, mfaHandler.DisablePasskey)
	selfAuthed.POST("/mfa/verify", mfaHandler.Verify)
	selfAuthed.POST("/mfa/verify/passkey/options", mfaHandler.BeginPasskeyVerify)
	selfAuthed.POST("/mfa/verify/passkey/verify", mfaHandler.FinishPasskeyVerify)

	authed := adminGroup.Group("")
	authed.Use(adminAuthMiddleware(db, jwtCfg))
	authed.Use(adminPermissionMiddleware())
	authed.Use(stepUpOnMutation(stepUp))

	userHandler := handlers.NewUserHandler(db, svc.Limiter, svc.Projects, svc.Flags)
	authed.GET("/users", userHandler.List)
	authed.GET("/users/:id", userHandler.Get)
	authed.PUT("/users/:id/role", userHandler.UpdateRole)
	authed.PUT("/users/:id/admin", userHandler.UpdateAdmin)
	authed.DELETE("/users/:id", userHandler.Delete)

	rateLimitHandler := handlers.NewRateLimitHandler(db, svc.Limiter)
	authed.GET("/rate-limits", rateLimitHandler.Overview)
	authed.GET("/rate-limits/:id", rateLimitHandler.Status)
	authed.POST("/rate-limits/:id/bonus", rateLimitHandler.GrantBonus)
	authed.PUT("/rate-limits/:id/limit", rateLimitHandler.SetLimit)
	authed.POST("/rate-limits/:id/reset", rateLimitHandler.Reset)

	banHandler := handlers.NewBanHandler(db, svc.Bans)
	authed.GET("/bans", banHandler.List)
	authed.POST("/bans", banHandler.Create)
	authed.DELETE("/bans/:ip", banHandler.Delete)

	flagHandler := handlers.NewFlagHandler(svc.Flags)
	authed.GET("/flags", flagHandler.List)
	authed.DELETE("/flags/:id", flagHandler.Delete)
	authed.DELETE("/users/:id/flags", flagHandler.ClearUser)

	globalMessageHandler := handlers.NewGlobalMessageHandler(db)
	authed.GET("/global-messages", globalMessageHandler.List)
	authed.POST("/global-messages", globalMessageHandler.Create)
	authed.POST("/global-messages/publish-update", globalMessageHandler.PublishUpdate)
	authed.DELETE("/global-messages/:id", globalMessageHandler.Delete)

	changelogHandler := handlers.NewChangelogHandler(db)
	authed.GET("/changelogs", changelogHandler.List)
	authed.POST("/changelogs", changelogHandler.Create)
	authed.DELETE("/changelogs/:id", changelogHandler.Delete)

	usageHandler := handlers.NewUsageHandler(svc.Usage)
	authed.GET("/usage", usageHandler.List)

	settingHandler := handlers.NewSettingHandler(db, svc.OnSettingsChange)
	authed.POST("/settings", settingHandler.Create)
	authed.GET("/settings", settingHandler.List)
	authed.GET("/settings/:key", settingHandler.Get)
	authed.PUT("/settings/:key", settingHandler.Update)
	authed.DELETE("/settings/:key", settingHandler.Delete)

	permissionHandler := handlers.NewPermissionHandler()
	authed.GET("/permissions", permissionHandler.List)
}

// adminAuthMiddleware validates admin JWTs and loads admin context.
func adminAuthMiddleware(db *gorm.DB, jwtCfg config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, errMsg := internalhttp.BearerToken(c)
		if errMsg != "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errMsg})
			return
		}

		claims, errJWT := security.ParseToken(jwtCfg.Secret, token)
		if errJWT != nil || !claims.IsAdmin {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		var admin models.User
		if errFind := db.WithContext(c.Request.Context()).First(&admin, claims.UserID).Error; errFind != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "admin not found"})
			return
		}
		if !admin.IsAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin access revoked"})
			return
		}

		adminPermissions := permissions.ParsePermissions(admin.Permissions)
		c.Set(handlers.ContextAdminID, admin.ID)
		c.Set(handlers.ContextAdminUsername, admin.Username)
		c.Set(handlers.ContextAdminPermissions, adminPermissions)
		c.Set(handlers.ContextAdminIsSuperAdmin, admin.IsSuperAdmin)
		c.Set(handlers.ContextAdminClaims, claims)
		c.Set(contextAdminHasMFA, admin.HasMFA())
		c.Next()
	}
}

const contextAdminHasMFA = "adminHasMFA"

// adminPermissionMiddleware checks the route's permission key. Super admins
// bypass the check.
func adminPermissionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetBool(handlers.ContextAdminIsSuperAdmin) {
			c.Next()
			return
		}
		key := permissions.Key(c.Request.Method, c.FullPath())
		perms, _ := c.Get(handlers.ContextAdminPermissions)
		list, _ := perms.([]string)
		if !permissions.HasPermission(list, key) {
			log.WithFields(log.Fields{
				"admin_id":   c.GetUint64(handlers.ContextAdminID),
				"permission": key,
			}).Warn("admin: permission denied")
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "permission denied", "permission": key})
			return
		}
		c.Next()
	}
}

// requireMFAStepUp rejects admins without an enrolled second factor or
// without a verification newer than ttl.
func requireMFAStepUp(ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !c.GetBool(contextAdminHasMFA) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "mfa enrollment required", "code": "mfa_enrollment_required"})
			return
		}
		value, _ := c.Get(handlers.ContextAdminClaims)
		claims, _ := value.(*security.Claims)
		if !claims.MFAVerifiedWithin(time.Now(), ttl) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "mfa verification required", "code": "mfa_required"})
			return
		}
		c.Next()
	}
}

// stepUpOnMutation applies stepUp to every non-read request.
func stepUpOnMutation(stepUp gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
		default:
			stepUp(c)
		}
	}
}
