package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rojo-studio/rojo-server/internal/models"
	"gorm.io/gorm"
)

const maxChangelogLimit = 100

// AnnouncementHandler serves public banners and release notes.
type AnnouncementHandler struct {
	db *gorm.DB
}

// NewAnnouncementHandler constructs an AnnouncementHandler.
func NewAnnouncementHandler(db *gorm.DB) *AnnouncementHandler {
	return &AnnouncementHandler{db: db}
}

// LatestGlobalMessage returns the newest banner, or null when none exists.
func (h *AnnouncementHandler) LatestGlobalMessage(c *gin.Context) {
	var row models.GlobalMessage
	errFind := h.db.WithContext(c.Request.Context()).Order("created_at DESC").Order("id DESC").Take(&row).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusOK, gin.H{"message": nil})
		return
	}
	if errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": gin.H{
		"id":         row.ID,
		"message":    row.Message,
		"type":       row.Type,
		"created_at": row.CreatedAt,
	}})
}

// Changelogs lists release notes, newest first.
func (h *AnnouncementHandler) Changelogs(c *gin.Context) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		parsed, errParse := strconv.Atoi(raw)
		if errParse != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = min(parsed, maxChangelogLimit)
	}
	var rows []models.Changelog
	if errFind := h.db.WithContext(c.Request.Context()).Order("created_at DESC").Order("id DESC").Limit(limit).Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, gin.H{
			"id":          row.ID,
			"version":     row.Version,
			"title":       row.Title,
			"description": row.Description,
			"created_at":  row.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"changelogs": out})
}
