// Package front registers the studio API consumed by the web client.
package front

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rojo-studio/rojo-server/internal/chat"
	"github.com/rojo-studio/rojo-server/internal/config"
	"github.com/rojo-studio/rojo-server/internal/contentfilter"
	internalhttp "github.com/rojo-studio/rojo-server/internal/http"
	"github.com/rojo-studio/rojo-server/internal/http/api/front/handlers"
	"github.com/rojo-studio/rojo-server/internal/models"
	"github.com/rojo-studio/rojo-server/internal/projects"
	"github.com/rojo-studio/rojo-server/internal/ratelimit"
	"github.com/rojo-studio/rojo-server/internal/security"
	"gorm.io/gorm"
)

// Services bundles the components the front routes delegate to.
type Services struct {
	Projects      *projects.Service
	Limiter       *ratelimit.Limiter
	Filter        *contentfilter.Filter
	Chat          *chat.Client
	Usage         handlers.UsageRecorder
	Bans          internalhttp.BanLookup
	LoginThrottle *internalhttp.LoginThrottle
}

// RegisterFrontRoutes registers /v1 routes.
func RegisterFrontRoutes(r *gin.Engine, db *gorm.DB, jwtCfg config.JWTConfig, svc Services) {
	if r == nil || db == nil {
		return
	}

	v1 := r.Group("/v1")
	v1.Use(internalhttp.IPBanMiddleware(svc.Bans))

	announcementHandler := handlers.NewAnnouncementHandler(db)
	v1.GET("/global-messages/latest", announcementHandler.LatestGlobalMessage)
	v1.GET("/changelogs", announcementHandler.Changelogs)

	authHandler := handlers.NewAuthHandler(db, jwtCfg)
	v1.POST("/auth/signup", authHandler.Signup)
	if svc.LoginThrottle != nil {
		v1.POST("/auth/login", svc.LoginThrottle.Middleware(), authHandler.Login)
	} else {
		v1.POST("/auth/login", authHandler.Login)
	}

	authed := v1.Group("")
	authed.Use(frontAuthMiddleware(db, jwtCfg))
	authed.GET("/auth/me", authHandler.Me)

	projectHandler := handlers.NewProjectHandler(svc.Projects)
	authed.GET("/projects", projectHandler.List)
	authed.POST("/projects", projectHandler.Create)
	authed.POST("/projects/join", projectHandler.Join)
	authed.GET("/projects/:id", projectHandler.Get)
	authed.PUT("/projects/:id", projectHandler.Update)
	authed.DELETE("/projects/:id", projectHandler.Delete)
	authed.POST("/projects/:id/threads", projectHandler.CreateThread)
	authed.PUT("/projects/:id/threads/:threadID", projectHandler.UpdateThread)
	authed.DELETE("/projects/:id/threads/:threadID", projectHandler.DeleteThread)
	authed.POST("/projects/:id/threads/:threadID/activate", projectHandler.ActivateThread)
	authed.POST("/projects/:id/threads/:threadID/messages", projectHandler.AppendMessage)

	chatHandler := handlers.NewChatHandler(svc.Chat, svc.Filter, svc.Limiter, svc.Projects, svc.Usage)
	authed.POST("/chat", chatHandler.Chat)

	rateLimitHandler := handlers.NewRateLimitHandler(svc.Limiter)
	authed.GET("/rate-limit", rateLimitHandler.Status)
}

// frontAuthMiddleware validates user JWTs and loads the user into the context.
func frontAuthMiddleware(db *gorm.DB, jwtCfg config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, errMsg := internalhttp.BearerToken(c)
		if errMsg != "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errMsg})
			return
		}
		claims, errJWT := security.ParseToken(jwtCfg.Secret, token)
		if errJWT != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		var user models.User
		if errFind := db.WithContext(c.Request.Context()).First(&user, claims.UserID).Error; errFind != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
			return
		}
		c.Set(handlers.ContextUserID, user.ID)
		c.Set(handlers.ContextUser, &user)
		c.Next()
	}
}
