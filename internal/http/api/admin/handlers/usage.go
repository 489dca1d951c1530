package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rojo-studio/rojo-server/internal/usage"
)

// UsageHandler lists relay usage rows.
type UsageHandler struct {
	recorder *usage.GormRecorder
}

// NewUsageHandler constructs a UsageHandler.
func NewUsageHandler(recorder *usage.GormRecorder) *UsageHandler {
	return &UsageHandler{recorder: recorder}
}

// List supports user_id, since (RFC3339) and limit filters.
func (h *UsageHandler) List(c *gin.Context) {
	var filter usage.ListFilter
	if raw := strings.TrimSpace(c.Query("user_id")); raw != "" {
		userID, errParse := strconv.ParseUint(raw, 10, 64)
		if errParse != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user_id"})
			return
		}
		filter.UserID = userID
	}
	if raw := strings.TrimSpace(c.Query("since")); raw != "" {
		since, errParse := time.Parse(time.RFC3339, raw)
		if errParse != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid since"})
			return
		}
		filter.Since = since
	}
	limit, ok := parseLimitQuery(c, 100, 500)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}
	filter.Limit = limit

	rows, errList := h.recorder.List(c.Request.Context(), filter)
	if errList != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list usage failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, gin.H{
			"request_id":  row.RequestID,
			"user_id":     row.UserID,
			"project_id":  row.ProjectID,
			"model":       row.Model,
			"fragments":   row.Fragments,
			"bytes":       row.Bytes,
			"failed":      row.Failed,
			"error":       row.Error,
			"started_at":  row.StartedAt,
			"finished_at": row.FinishedAt,
			"duration_ms": row.FinishedAt.Sub(row.StartedAt).Milliseconds(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"usage": out})
}
