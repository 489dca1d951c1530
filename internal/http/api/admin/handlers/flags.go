package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rojo-studio/rojo-server/internal/store"
	log "github.com/sirupsen/logrus"
)

// FlagHandler moderates messages rejected by the content filter.
type FlagHandler struct {
	flags *store.GormFlagStore
}

// NewFlagHandler constructs a FlagHandler.
func NewFlagHandler(flags *store.GormFlagStore) *FlagHandler {
	return &FlagHandler{flags: flags}
}

// List returns flagged messages, optionally for one user_id.
func (h *FlagHandler) List(c *gin.Context) {
	var userID uint64
	if raw := strings.TrimSpace(c.Query("user_id")); raw != "" {
		parsed, errParse := strconv.ParseUint(raw, 10, 64)
		if errParse != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user_id"})
			return
		}
		userID = parsed
	}
	limit, ok := parseLimitQuery(c, 100, 500)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}
	rows, errList := h.flags.List(c.Request.Context(), userID, limit)
	if errList != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list flags failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, gin.H{
			"id":         row.ID,
			"user_id":    row.UserID,
			"message":    row.Message,
			"reason":     row.Reason,
			"created_at": row.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"flags": out})
}

// Delete removes one flag.
func (h *FlagHandler) Delete(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	removed, errDelete := h.flags.Delete(c.Request.Context(), id)
	if errDelete != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	if !removed {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

// ClearUser removes every flag recorded for :id.
func (h *FlagHandler) ClearUser(c *gin.Context) {
	userID, ok := parseUintParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	removed, errClear := h.flags.ClearUser(c.Request.Context(), userID)
	if errClear != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "clear flags failed"})
		return
	}
	log.WithFields(log.Fields{"user_id": userID, "removed": removed, "admin_id": adminIDFromContext(c)}).Info("admin: flags cleared")
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}
