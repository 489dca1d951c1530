package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	dbutil "github.com/rojo-studio/rojo-server/internal/db"
	"github.com/rojo-studio/rojo-server/internal/http/api/admin/permissions"
	"github.com/rojo-studio/rojo-server/internal/models"
	"github.com/rojo-studio/rojo-server/internal/projects"
	"github.com/rojo-studio/rojo-server/internal/ratelimit"
	"github.com/rojo-studio/rojo-server/internal/store"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// UserHandler manages studio accounts from the console.
type UserHandler struct {
	db       *gorm.DB
	limiter  *ratelimit.Limiter
	projects *projects.Service
	flags    *store.GormFlagStore
}

// NewUserHandler constructs a UserHandler.
func NewUserHandler(db *gorm.DB, limiter *ratelimit.Limiter, svc *projects.Service, flags *store.GormFlagStore) *UserHandler {
	return &UserHandler{db: db, limiter: limiter, projects: svc, flags: flags}
}

func (h *UserHandler) formatUser(user *models.User, flagCount int64) gin.H {
	return gin.H{
		"id":             user.ID,
		"email":          user.Email,
		"username":       user.Username,
		"nickname":       user.Nickname,
		"role":           user.Role,
		"last_ip":        user.LastIP,
		"is_admin":       user.IsAdmin,
		"is_super_admin": user.IsSuperAdmin,
		"permissions":    permissions.ParsePermissions(user.Permissions),
		"mfa_enrolled":   user.HasMFA(),
		"flag_count":     flagCount,
		"rate_limit":     h.limiter.Status(user.ID),
		"created_at":     user.CreatedAt,
		"updated_at":     user.UpdatedAt,
	}
}

// List returns users with optional filters, flag counts and quota status.
func (h *UserHandler) List(c *gin.Context) {
	var (
		idQ     = strings.TrimSpace(c.Query("id"))
		roleQ   = strings.TrimSpace(c.Query("role"))
		searchQ = strings.TrimSpace(c.Query("search"))
	)

	ctx := c.Request.Context()
	q := h.db.WithContext(ctx).Model(&models.User{})
	if idQ != "" {
		if id, errParse := strconv.ParseUint(idQ, 10, 64); errParse == nil {
			q = q.Where("id = ?", id)
		}
	}
	if roleQ != "" {
		q = q.Where("role = ?", roleQ)
	}
	if searchQ != "" {
		ciPattern := dbutil.NormalizeLikePattern(h.db, "%"+searchQ+"%")
		q = q.Where(
			dbutil.CaseInsensitiveLikeExpr(h.db, "username")+" OR "+
				dbutil.CaseInsensitiveLikeExpr(h.db, "email")+" OR "+
				dbutil.CaseInsensitiveLikeExpr(h.db, "nickname"),
			ciPattern,
			ciPattern,
			ciPattern,
		)
	}

	var rows []models.User
	if errFind := q.Order("created_at DESC").Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list users failed"})
		return
	}
	ids := make([]uint64, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	counts, errCount := h.flags.CountByUser(ctx, ids)
	if errCount != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "count flags failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, h.formatUser(&rows[i], counts[rows[i].ID]))
	}
	c.JSON(http.StatusOK, gin.H{"users": out})
}

func (h *UserHandler) findUser(c *gin.Context) (*models.User, bool) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return nil, false
	}
	var user models.User
	if errFind := h.db.WithContext(c.Request.Context()).First(&user, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return nil, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return nil, false
	}
	return &user, true
}

// Get returns a user by ID.
func (h *UserHandler) Get(c *gin.Context) {
	user, ok := h.findUser(c)
	if !ok {
		return
	}
	counts, errCount := h.flags.CountByUser(c.Request.Context(), []uint64{user.ID})
	if errCount != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "count flags failed"})
		return
	}
	c.JSON(http.StatusOK, h.formatUser(user, counts[user.ID]))
}

// updateRoleRequest defines the request body for role changes.
type updateRoleRequest struct {
	Role models.UserRole `json:"role"`
}

// UpdateRole assigns a community role.
func (h *UserHandler) UpdateRole(c *gin.Context) {
	user, ok := h.findUser(c)
	if !ok {
		return
	}
	var body updateRoleRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if !body.Role.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid role"})
		return
	}
	if errUpdate := h.db.WithContext(c.Request.Context()).Model(&models.User{}).Where("id = ?", user.ID).
		Updates(map[string]any{"role": body.Role, "updated_at": time.Now().UTC()}).Error; errUpdate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	log.WithFields(log.Fields{"user_id": user.ID, "role": body.Role, "admin_id": adminIDFromContext(c)}).Info("admin: role updated")
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// updateAdminRequest defines the request body for console access changes.
type updateAdminRequest struct {
	IsAdmin     *bool     `json:"is_admin"`
	Permissions *[]string `json:"permissions"`
}

// UpdateAdmin grants or revokes console access and permissions.
func (h *UserHandler) UpdateAdmin(c *gin.Context) {
	user, ok := h.findUser(c)
	if !ok {
		return
	}
	var body updateAdminRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if user.IsSuperAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": "super admin cannot be modified"})
		return
	}
	updates := map[string]any{"updated_at": time.Now().UTC()}
	if body.IsAdmin != nil {
		updates["is_admin"] = *body.IsAdmin
	}
	if body.Permissions != nil {
		if errValidate := permissions.ValidatePermissions(*body.Permissions); errValidate != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errValidate.Error()})
			return
		}
		raw, errMarshal := permissions.MarshalPermissions(*body.Permissions)
		if errMarshal != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "encode permissions failed"})
			return
		}
		updates["permissions"] = datatypes.JSON(raw)
	}
	if errUpdate := h.db.WithContext(c.Request.Context()).Model(&models.User{}).Where("id = ?", user.ID).
		Updates(updates).Error; errUpdate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	log.WithFields(log.Fields{"user_id": user.ID, "admin_id": adminIDFromContext(c)}).Info("admin: console access updated")
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Delete removes a user with their flags, owned projects and quota state.
func (h *UserHandler) Delete(c *gin.Context) {
	user, ok := h.findUser(c)
	if !ok {
		return
	}
	if user.ID == adminIDFromContext(c) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot delete yourself"})
		return
	}
	if user.IsSuperAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": "super admin cannot be deleted"})
		return
	}

	ctx := c.Request.Context()
	if errDelete := h.db.WithContext(ctx).Delete(&models.User{}, user.ID).Error; errDelete != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	flagsRemoved, projectsRemoved := h.cleanupUser(ctx, user.ID)
	log.WithFields(log.Fields{
		"user_id":          user.ID,
		"admin_id":         adminIDFromContext(c),
		"flags_removed":    flagsRemoved,
		"projects_removed": projectsRemoved,
	}).Info("admin: user deleted")
	c.JSON(http.StatusOK, gin.H{"ok": true, "flags_removed": flagsRemoved, "projects_removed": projectsRemoved})
}

// cleanupUser removes data owned by a deleted user. Failures are logged and
// leave orphaned rows that no request can reach.
func (h *UserHandler) cleanupUser(ctx context.Context, userID uint64) (int64, int64) {
	flagsRemoved, errFlags := h.flags.ClearUser(ctx, userID)
	if errFlags != nil {
		log.WithError(errFlags).WithField("user_id", userID).Warn("admin: clear flags failed")
	}
	projectsRemoved, errProjects := h.projects.DeleteOwnedBy(ctx, userID)
	if errProjects != nil {
		log.WithError(errProjects).WithField("user_id", userID).Warn("admin: delete owned projects failed")
	}
	h.limiter.ForgetUser(ctx, userID)
	return flagsRemoved, projectsRemoved
}
