package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rojo-studio/rojo-server/internal/models"
	"github.com/rojo-studio/rojo-server/internal/ratelimit"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// RateLimitHandler inspects and adjusts per-user quotas.
type RateLimitHandler struct {
	db      *gorm.DB
	limiter *ratelimit.Limiter
}

// NewRateLimitHandler constructs a RateLimitHandler.
func NewRateLimitHandler(db *gorm.DB, limiter *ratelimit.Limiter) *RateLimitHandler {
	return &RateLimitHandler{db: db, limiter: limiter}
}

// Overview returns the active configuration and system load.
func (h *RateLimitHandler) Overview(c *gin.Context) {
	cfg := h.limiter.Config()
	c.JSON(http.StatusOK, gin.H{
		"window_seconds": int64(cfg.Window.Seconds()),
		"default_limit":  cfg.DefaultLimit,
		"max_in_flight":  cfg.MaxInFlight,
		"in_flight":      h.limiter.InFlight(),
		"queue_length":   h.limiter.QueueLength(),
	})
}

// userExists resolves :id and writes the error response when it fails.
func (h *RateLimitHandler) userExists(c *gin.Context) (uint64, bool) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	var user models.User
	if errFind := h.db.WithContext(c.Request.Context()).Select("id").First(&user, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return 0, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return 0, false
	}
	return id, true
}

// Status returns one user's quota view.
func (h *RateLimitHandler) Status(c *gin.Context) {
	id, ok := h.userExists(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.limiter.Status(id))
}

// grantBonusRequest defines the request body for bonus grants.
type grantBonusRequest struct {
	Count int `json:"count"`
}

// GrantBonus raises a user's quota.
func (h *RateLimitHandler) GrantBonus(c *gin.Context) {
	id, ok := h.userExists(c)
	if !ok {
		return
	}
	var body grantBonusRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	limit, errGrant := h.limiter.GrantBonus(c.Request.Context(), id, body.Count)
	if errGrant != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "count must be a positive integer"})
		return
	}
	log.WithFields(log.Fields{"user_id": id, "count": body.Count, "limit": limit, "admin_id": adminIDFromContext(c)}).Info("admin: bonus requests granted")
	c.JSON(http.StatusOK, h.limiter.Status(id))
}

// setLimitRequest defines the request body for quota overrides.
type setLimitRequest struct {
	Limit *int `json:"limit"`
}

// SetLimit overrides a user's quota.
func (h *RateLimitHandler) SetLimit(c *gin.Context) {
	id, ok := h.userExists(c)
	if !ok {
		return
	}
	var body setLimitRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil || body.Limit == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if errSet := h.limiter.SetUserLimit(c.Request.Context(), id, *body.Limit); errSet != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must not be negative"})
		return
	}
	log.WithFields(log.Fields{"user_id": id, "limit": *body.Limit, "admin_id": adminIDFromContext(c)}).Info("admin: quota overridden")
	c.JSON(http.StatusOK, h.limiter.Status(id))
}

// Reset clears a user's usage and queue slot.
func (h *RateLimitHandler) Reset(c *gin.Context) {
	id, ok := h.userExists(c)
	if !ok {
		return
	}
	h.limiter.ResetUser(c.Request.Context(), id)
	log.WithFields(log.Fields{"user_id": id, "admin_id": adminIDFromContext(c)}).Info("admin: rate limit reset")
	c.JSON(http.StatusOK, h.limiter.Status(id))
}
