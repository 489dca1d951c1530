package handlers

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rojo-studio/rojo-server/internal/security"
)

// Context keys set by the admin auth middleware.
const (
	ContextAdminID           = "adminID"
	ContextAdminUsername     = "adminUsername"
	ContextAdminPermissions  = "adminPermissions"
	ContextAdminIsSuperAdmin = "adminIsSuperAdmin"
	ContextAdminClaims       = "adminClaims"
)

func adminIDFromContext(c *gin.Context) uint64 {
	return c.GetUint64(ContextAdminID)
}

func adminClaims(c *gin.Context) *security.Claims {
	value, ok := c.Get(ContextAdminClaims)
	if !ok {
		return nil
	}
	claims, _ := value.(*security.Claims)
	return claims
}

func parseUintParam(c *gin.Context, name string) (uint64, bool) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param(name)), 10, 64)
	if errParse != nil || id == 0 {
		return 0, false
	}
	return id, true
}

func parseLimitQuery(c *gin.Context, def, maxLimit int) (int, bool) {
	raw := strings.TrimSpace(c.Query("limit"))
	if raw == "" {
		return def, true
	}
	limit, errParse := strconv.Atoi(raw)
	if errParse != nil || limit <= 0 {
		return 0, false
	}
	return min(limit, maxLimit), true
}
