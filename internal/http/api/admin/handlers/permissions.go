package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rojo-studio/rojo-server/internal/http/api/admin/permissions"
)

// PermissionHandler lists admin permission definitions.
type PermissionHandler struct{}

// NewPermissionHandler constructs a PermissionHandler.
func NewPermissionHandler() *PermissionHandler {
	return &PermissionHandler{}
}

// List returns every permission grouped in definition order.
func (h *PermissionHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"permissions": permissions.Definitions()})
}
