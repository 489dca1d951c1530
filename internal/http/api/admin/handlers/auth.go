package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rojo-studio/rojo-server/internal/config"
	"github.com/rojo-studio/rojo-server/internal/models"
	"github.com/rojo-studio/rojo-server/internal/security"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// AuthHandler signs administrators into the console.
type AuthHandler struct {
	db     *gorm.DB
	jwtCfg config.JWTConfig
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(db *gorm.DB, jwtCfg config.JWTConfig) *AuthHandler {
	return &AuthHandler{db: db, jwtCfg: jwtCfg}
}

// loginRequest defines the request body for admin sign in.
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login verifies an administrator's password. The returned token carries no
// second-factor claim; privileged actions require a step-up first.
func (h *AuthHandler) Login(c *gin.Context) {
	var body loginRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	email := strings.ToLower(strings.TrimSpace(body.Email))
	if email == "" || body.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing email or password"})
		return
	}

	var user models.User
	errFind := h.db.WithContext(c.Request.Context()).Where("email = ?", email).Take(&user).Error
	if errFind != nil && !errors.Is(errFind, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	if errFind != nil || !security.CheckPassword(user.Password, body.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	if !user.IsAdmin {
		log.WithFields(log.Fields{"user_id": user.ID, "client_ip": c.ClientIP()}).Warn("admin login refused for non-admin")
		c.JSON(http.StatusForbidden, gin.H{"error": "admin access required"})
		return
	}

	token, expiresAt, errToken := issueAdminToken(h.jwtCfg, user.ID, time.Time{})
	if errToken != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue token failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":          token,
		"expires_at":     expiresAt,
		"mfa_enrolled":   user.HasMFA(),
		"is_super_admin": user.IsSuperAdmin,
	})
}

func issueAdminToken(jwtCfg config.JWTConfig, userID uint64, mfaAt time.Time) (string, time.Time, error) {
	return security.IssueToken(jwtCfg.Secret, security.TokenRequest{
		UserID:  userID,
		IsAdmin: true,
		MFAAt:   mfaAt,
		Expiry:  jwtCfg.Expiry,
	})
}
