package handlers

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rojo-studio/rojo-server/internal/models"
)

// Context keys set by the front auth middleware.
const (
	ContextUserID = "userID"
	ContextUser   = "user"
)

func currentUserID(c *gin.Context) uint64 {
	return c.GetUint64(ContextUserID)
}

func currentUser(c *gin.Context) *models.User {
	value, ok := c.Get(ContextUser)
	if !ok {
		return nil
	}
	user, _ := value.(*models.User)
	return user
}

func parseIDParam(c *gin.Context, name string) (uint64, bool) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param(name)), 10, 64)
	if errParse != nil || id == 0 {
		return 0, false
	}
	return id, true
}

func userPayload(user *models.User) gin.H {
	return gin.H{
		"id":         user.ID,
		"email":      user.Email,
		"username":   user.Username,
		"nickname":   user.Nickname,
		"role":       user.Role,
		"is_admin":   user.IsAdmin,
		"created_at": user.CreatedAt,
	}
}
