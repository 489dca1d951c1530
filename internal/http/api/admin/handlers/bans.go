package handlers

import (
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rojo-studio/rojo-server/internal/models"
	"github.com/rojo-studio/rojo-server/internal/store"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// BanHandler manages IP bans.
type BanHandler struct {
	db   *gorm.DB
	bans *store.GormBanStore
}

// NewBanHandler constructs a BanHandler.
func NewBanHandler(db *gorm.DB, bans *store.GormBanStore) *BanHandler {
	return &BanHandler{db: db, bans: bans}
}

func formatBan(ban *models.IPBan) gin.H {
	return gin.H{
		"id":         ban.ID,
		"ip":         ban.IP,
		"user_id":    ban.UserID,
		"reason":     ban.Reason,
		"banned_by":  ban.BannedBy,
		"banned_at":  ban.BannedAt,
		"expires_at": ban.ExpiresAt,
	}
}

// List returns active bans, or every ban with ?all=true.
func (h *BanHandler) List(c *gin.Context) {
	rows, errList := h.bans.List(c.Request.Context(), c.Query("all") == "true")
	if errList != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list bans failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, formatBan(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{"bans": out})
}

// createBanRequest bans either an explicit IP or a user's last seen IP.
type createBanRequest struct {
	IP      string  `json:"ip"`
	UserID  *uint64 `json:"user_id"`
	Reason  string  `json:"reason"`
	Days    int     `json:"days"`
	Hours   int     `json:"hours"`
	Minutes int     `json:"minutes"`
	Seconds int     `json:"seconds"`
}

func (r createBanRequest) duration() time.Duration {
	return time.Duration(r.Days)*24*time.Hour +
		time.Duration(r.Hours)*time.Hour +
		time.Duration(r.Minutes)*time.Minute +
		time.Duration(r.Seconds)*time.Second
}

// Create bans an IP for the requested duration.
func (h *BanHandler) Create(c *gin.Context) {
	var body createBanRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if body.Days < 0 || body.Hours < 0 || body.Minutes < 0 || body.Seconds < 0 || body.duration() <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Please set a ban duration"})
		return
	}

	ip := strings.TrimSpace(body.IP)
	if ip == "" && body.UserID != nil {
		var user models.User
		if errFind := h.db.WithContext(c.Request.Context()).Select("id", "last_ip").First(&user, *body.UserID).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
			return
		}
		ip = strings.TrimSpace(user.LastIP)
		if ip == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "user has no recorded ip"})
			return
		}
	}
	if net.ParseIP(ip) == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid ip"})
		return
	}

	ban, errBan := h.bans.Ban(c.Request.Context(), ip, body.UserID, body.Reason, adminIDFromContext(c), body.duration())
	if errBan != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create ban failed"})
		return
	}
	log.WithFields(log.Fields{"ip": ip, "expires_at": ban.ExpiresAt, "admin_id": adminIDFromContext(c)}).Info("admin: ip banned")
	c.JSON(http.StatusCreated, formatBan(ban))
}

// Delete lifts every ban on :ip.
func (h *BanHandler) Delete(c *gin.Context) {
	ip := strings.TrimSpace(c.Param("ip"))
	if net.ParseIP(ip) == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid ip"})
		return
	}
	removed, errUnban := h.bans.Unban(c.Request.Context(), ip)
	if errUnban != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "unban failed"})
		return
	}
	if removed == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	log.WithFields(log.Fields{"ip": ip, "admin_id": adminIDFromContext(c)}).Info("admin: ip unbanned")
	c.Status(http.StatusNoContent)
}
