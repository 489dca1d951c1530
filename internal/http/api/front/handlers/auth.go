package handlers

import (
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rojo-studio/rojo-server/internal/config"
	dbutil "github.com/rojo-studio/rojo-server/internal/db"
	"github.com/rojo-studio/rojo-server/internal/models"
	"github.com/rojo-studio/rojo-server/internal/security"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// AuthHandler serves sign up, sign in and the current user.
type AuthHandler struct {
	db     *gorm.DB
	jwtCfg config.JWTConfig
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(db *gorm.DB, jwtCfg config.JWTConfig) *AuthHandler {
	return &AuthHandler{db: db, jwtCfg: jwtCfg}
}

// signupRequest defines the request body for sign up.
type signupRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Nickname string `json:"nickname"`
	Password string `json:"password"`
}

// Signup creates an account and returns a session token.
func (h *AuthHandler) Signup(c *gin.Context) {
	var body signupRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	email := strings.ToLower(strings.TrimSpace(body.Email))
	if _, errAddr := mail.ParseAddress(email); errAddr != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid email"})
		return
	}
	username := strings.TrimSpace(body.Username)
	if username == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing username"})
		return
	}
	nickname := strings.TrimSpace(body.Nickname)
	if nickname == "" {
		nickname = username
	}

	hash, errHash := security.HashPassword(body.Password)
	if errHash != nil {
		if errors.Is(errHash, security.ErrWeakPassword) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Password must be at least 6 characters"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "hash password failed"})
		return
	}

	ctx := c.Request.Context()
	var existing int64
	if errCount := h.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", email).Count(&existing).Error; errCount != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	if existing > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email already registered"})
		return
	}

	now := time.Now().UTC()
	user := models.User{
		Email:     email,
		Username:  username,
		Nickname:  nickname,
		Password:  hash,
		Role:      models.UserRoleUser,
		LastIP:    c.ClientIP(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if errCreate := h.db.WithContext(ctx).Create(&user).Error; errCreate != nil {
		if dbutil.IsUniqueViolation(errCreate) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Email or username already registered"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create user failed"})
		return
	}
	log.WithFields(log.Fields{"user_id": user.ID, "client_ip": user.LastIP}).Info("user signed up")
	h.respondWithToken(c, http.StatusCreated, &user)
}

// loginRequest defines the request body for sign in.
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login verifies credentials and returns a session token.
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

	ctx := c.Request.Context()
	var user models.User
	errFind := h.db.WithContext(ctx).Where("email = ?", email).Take(&user).Error
	if errFind != nil && !errors.Is(errFind, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	if errFind != nil || !security.CheckPassword(user.Password, body.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
		return
	}

	ip := c.ClientIP()
	if ip != user.LastIP {
		if errUpdate := h.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", user.ID).
			Updates(map[string]any{"last_ip": ip, "updated_at": time.Now().UTC()}).Error; errUpdate != nil {
			log.WithError(errUpdate).WithField("user_id", user.ID).Warn("update last ip failed")
		}
		user.LastIP = ip
	}
	h.respondWithToken(c, http.StatusOK, &user)
}

// Me returns the signed in user.
func (h *AuthHandler) Me(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": userPayload(user)})
}

func (h *AuthHandler) respondWithToken(c *gin.Context, status int, user *models.User) {
	token, expiresAt, errToken := security.IssueToken(h.jwtCfg.Secret, security.TokenRequest{
		UserID: user.ID,
		Expiry: h.jwtCfg.Expiry,
	})
	if errToken != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue token failed"})
		return
	}
	c.JSON(status, gin.H{
		"token":      token,
		"expires_at": expiresAt,
		"user":       userPayload(user),
	})
}
