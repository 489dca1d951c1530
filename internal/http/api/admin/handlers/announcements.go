package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rojo-studio/rojo-server/internal/models"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// publishedUpdatePrefix leads every publish-update banner.
const publishedUpdatePrefix = "New Update Published: "

// GlobalMessageHandler manages site-wide banners.
type GlobalMessageHandler struct {
	db *gorm.DB
}

// NewGlobalMessageHandler constructs a GlobalMessageHandler.
func NewGlobalMessageHandler(db *gorm.DB) *GlobalMessageHandler {
	return &GlobalMessageHandler{db: db}
}

func formatGlobalMessage(row *models.GlobalMessage) gin.H {
	return gin.H{
		"id":         row.ID,
		"message":    row.Message,
		"type":       row.Type,
		"created_by": row.CreatedBy,
		"created_at": row.CreatedAt,
	}
}

// List returns banners newest first.
func (h *GlobalMessageHandler) List(c *gin.Context) {
	limit, ok := parseLimitQuery(c, 50, 200)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}
	var rows []models.GlobalMessage
	if errFind := h.db.WithContext(c.Request.Context()).Order("created_at DESC").Order("id DESC").Limit(limit).Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list messages failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, formatGlobalMessage(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{"messages": out})
}

// createGlobalMessageRequest defines the request body for banners.
type createGlobalMessageRequest struct {
	Message string                   `json:"message"`
	Type    models.GlobalMessageType `json:"type"`
	Roles   []models.UserRole        `json:"roles"`
}

// Create publishes a banner. When roles are given the text is prefixed with
// the addressed role names.
func (h *GlobalMessageHandler) Create(c *gin.Context) {
	var body createGlobalMessageRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	text := strings.TrimSpace(body.Message)
	if text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return
	}
	if body.Type == "" {
		body.Type = models.GlobalMessageInfo
	}
	if !body.Type.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid type"})
		return
	}
	if len(body.Roles) > 0 {
		prefix, ok := roleTargetPrefix(body.Roles)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid role"})
			return
		}
		text = prefix + text
	}
	h.create(c, text, body.Type)
}

// publishUpdateRequest defines the request body for update announcements.
type publishUpdateRequest struct {
	Notes string `json:"notes"`
}

// PublishUpdate announces a release to every user.
func (h *GlobalMessageHandler) PublishUpdate(c *gin.Context) {
	var body publishUpdateRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	notes := strings.TrimSpace(body.Notes)
	if notes == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Please enter update notes"})
		return
	}
	h.create(c, publishedUpdatePrefix+notes, models.GlobalMessageSuccess)
}

func (h *GlobalMessageHandler) create(c *gin.Context, text string, msgType models.GlobalMessageType) {
	row := models.GlobalMessage{
		Message:   text,
		Type:      msgType,
		CreatedBy: adminIDFromContext(c),
		CreatedAt: time.Now().UTC(),
	}
	if errCreate := h.db.WithContext(c.Request.Context()).Create(&row).Error; errCreate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create message failed"})
		return
	}
	log.WithFields(log.Fields{"message_id": row.ID, "type": row.Type, "admin_id": row.CreatedBy}).Info("admin: global message published")
	c.JSON(http.StatusCreated, formatGlobalMessage(&row))
}

// Delete removes a banner.
func (h *GlobalMessageHandler) Delete(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	res := h.db.WithContext(c.Request.Context()).Delete(&models.GlobalMessage{}, id)
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

// roleTargetPrefix renders "[To Helper, Tester] " for the given roles.
func roleTargetPrefix(roles []models.UserRole) (string, bool) {
	seen := make(map[models.UserRole]struct{}, len(roles))
	names := make([]string, 0, len(roles))
	for _, role := range roles {
		if !role.Valid() {
			return "", false
		}
		if _, dup := seen[role]; dup {
			continue
		}
		seen[role] = struct{}{}
		names = append(names, role.Label())
	}
	return "[To " + strings.Join(names, ", ") + "] ", true
}

// ChangelogHandler manages release notes.
type ChangelogHandler struct {
	db *gorm.DB
}

// NewChangelogHandler constructs a ChangelogHandler.
func NewChangelogHandler(db *gorm.DB) *ChangelogHandler {
	return &ChangelogHandler{db: db}
}

func formatChangelog(row *models.Changelog) gin.H {
	return gin.H{
		"id":          row.ID,
		"version":     row.Version,
		"title":       row.Title,
		"description": row.Description,
		"created_by":  row.CreatedBy,
		"created_at":  row.CreatedAt,
	}
}

// List returns release notes newest first.
func (h *ChangelogHandler) List(c *gin.Context) {
	var rows []models.Changelog
	if errFind := h.db.WithContext(c.Request.Context()).Order("created_at DESC").Order("id DESC").Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list changelogs failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, formatChangelog(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{"changelogs": out})
}

// createChangelogRequest defines the request body for release notes.
type createChangelogRequest struct {
	Version     string `json:"version"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Create adds a release note.
func (h *ChangelogHandler) Create(c *gin.Context) {
	var body createChangelogRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	version := strings.TrimSpace(body.Version)
	title := strings.TrimSpace(body.Title)
	if version == "" || title == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "version and title are required"})
		return
	}
	row := models.Changelog{
		Version:     version,
		Title:       title,
		Description: strings.TrimSpace(body.Description),
		CreatedBy:   adminIDFromContext(c),
		CreatedAt:   time.Now().UTC(),
	}
	if errCreate := h.db.WithContext(c.Request.Context()).Create(&row).Error; errCreate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create changelog failed"})
		return
	}
	c.JSON(http.StatusCreated, formatChangelog(&row))
}

// Delete removes a release note.
func (h *ChangelogHandler) Delete(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	res := h.db.WithContext(c.Request.Context()).Delete(&models.Changelog{}, id)
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.Status(http.StatusNoContent)
}
