package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rojo-studio/rojo-server/internal/fileops"
	"github.com/rojo-studio/rojo-server/internal/projects"
	log "github.com/sirupsen/logrus"
)

// ProjectHandler serves project, thread and message endpoints.
type ProjectHandler struct {
	svc *projects.Service
}

// NewProjectHandler constructs a ProjectHandler.
func NewProjectHandler(svc *projects.Service) *ProjectHandler {
	return &ProjectHandler{svc: svc}
}

func respondProjectError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, projects.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, projects.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.Is(err, projects.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": strings.TrimPrefix(err.Error(), projects.ErrInvalidInput.Error()+": ")})
	default:
		log.WithError(err).Warn("project request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "project request failed"})
	}
}

func projectSummary(p *projects.Project) gin.H {
	return gin.H{
		"id":            p.ID,
		"name":          p.Name,
		"owner_id":      p.OwnerID,
		"invite_code":   p.InviteCode,
		"collaborators": p.Collaborators,
		"thread_count":  len(p.Threads),
		"created_at":    p.CreatedAt,
		"updated_at":    p.UpdatedAt,
	}
}

// List returns the caller's projects.
func (h *ProjectHandler) List(c *gin.Context) {
	list, errList := h.svc.List(c.Request.Context(), currentUserID(c))
	if errList != nil {
		respondProjectError(c, errList)
		return
	}
	out := make([]gin.H, 0, len(list))
	for i := range list {
		out = append(out, projectSummary(&list[i]))
	}
	c.JSON(http.StatusOK, gin.H{"projects": out})
}

// createProjectRequest defines the request body for project creation.
type createProjectRequest struct {
	Name string `json:"name"`
}

// Create makes a new project.
func (h *ProjectHandler) Create(c *gin.Context) {
	var body createProjectRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	project, errCreate := h.svc.Create(c.Request.Context(), currentUserID(c), body.Name)
	if errCreate != nil {
		respondProjectError(c, errCreate)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"project": project})
}

// Get returns one project with its explorer tree and threads.
func (h *ProjectHandler) Get(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	project, errGet := h.svc.Get(c.Request.Context(), currentUserID(c), id)
	if errGet != nil {
		respondProjectError(c, errGet)
		return
	}
	c.JSON(http.StatusOK, gin.H{"project": project})
}

// updateProjectRequest defines the request body for project updates.
type updateProjectRequest struct {
	Name         *string         `json:"name"`
	ExplorerData *[]fileops.Node `json:"explorerData"`
	OpenScripts  *[]string       `json:"openScripts"`
}

// Update renames a project or replaces its workspace state.
func (h *ProjectHandler) Update(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var body updateProjectRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	project, errUpdate := h.svc.UpdateWorkspace(c.Request.Context(), currentUserID(c), id, projects.WorkspaceUpdate{
		Name:        body.Name,
		Explorer:    body.ExplorerData,
		OpenScripts: body.OpenScripts,
	})
	if errUpdate != nil {
		respondProjectError(c, errUpdate)
		return
	}
	c.JSON(http.StatusOK, gin.H{"project": project})
}

// Delete removes a project owned by the caller.
func (h *ProjectHandler) Delete(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	if errDelete := h.svc.Delete(c.Request.Context(), currentUserID(c), id); errDelete != nil {
		respondProjectError(c, errDelete)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

// joinProjectRequest defines the request body for joining by invite code.
type joinProjectRequest struct {
	InviteCode string `json:"inviteCode"`
}

// Join adds the caller to a project by invite code.
func (h *ProjectHandler) Join(c *gin.Context) {
	var body joinProjectRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	project, errJoin := h.svc.Join(c.Request.Context(), currentUserID(c), body.InviteCode)
	if errJoin != nil {
		if errors.Is(errJoin, projects.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Invalid invite code"})
			return
		}
		respondProjectError(c, errJoin)
		return
	}
	c.JSON(http.StatusOK, gin.H{"project": project})
}

// threadRequest defines the request body for thread creation and updates.
type threadRequest struct {
	Name     *string             `json:"name"`
	Messages *[]projects.Message `json:"messages"`
}

// CreateThread adds a chat thread and makes it active.
func (h *ProjectHandler) CreateThread(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var body threadRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	name := ""
	if body.Name != nil {
		name = *body.Name
	}
	project, thread, errCreate := h.svc.CreateThread(c.Request.Context(), currentUserID(c), id, name)
	if errCreate != nil {
		respondProjectError(c, errCreate)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"thread": thread, "active_thread_id": project.ActiveThreadID})
}

// UpdateThread renames a thread and/or replaces its messages.
func (h *ProjectHandler) UpdateThread(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	threadID := strings.TrimSpace(c.Param("threadID"))
	var body threadRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if body.Name == nil && body.Messages == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "nothing to update"})
		return
	}
	ctx := c.Request.Context()
	userID := currentUserID(c)
	var (
		project *projects.Project
		errOp   error
	)
	if body.Name != nil {
		if project, errOp = h.svc.RenameThread(ctx, userID, id, threadID, *body.Name); errOp != nil {
			respondProjectError(c, errOp)
			return
		}
	}
	if body.Messages != nil {
		if project, errOp = h.svc.ReplaceMessages(ctx, userID, id, threadID, *body.Messages); errOp != nil {
			respondProjectError(c, errOp)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"project": project})
}

// DeleteThread removes a thread.
func (h *ProjectHandler) DeleteThread(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	project, errDelete := h.svc.DeleteThread(c.Request.Context(), currentUserID(c), id, strings.TrimSpace(c.Param("threadID")))
	if errDelete != nil {
		respondProjectError(c, errDelete)
		return
	}
	c.JSON(http.StatusOK, gin.H{"threads": project.Threads, "active_thread_id": project.ActiveThreadID})
}

// ActivateThread selects the thread shown when the project opens.
func (h *ProjectHandler) ActivateThread(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	project, errActivate := h.svc.ActivateThread(c.Request.Context(), currentUserID(c), id, strings.TrimSpace(c.Param("threadID")))
	if errActivate != nil {
		respondProjectError(c, errActivate)
		return
	}
	c.JSON(http.StatusOK, gin.H{"active_thread_id": project.ActiveThreadID})
}

// appendMessageRequest defines the request body for appending a message.
type appendMessageRequest struct {
	Role    projects.MessageRole `json:"role"`
	Content string               `json:"content"`
}

// AppendMessage stores a message. Assistant messages apply their file operations.
func (h *ProjectHandler) AppendMessage(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var body appendMessageRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	result, errAppend := h.svc.AppendMessage(c.Request.Context(), currentUserID(c), id, strings.TrimSpace(c.Param("threadID")), body.Role, body.Content)
	if errAppend != nil {
		respondProjectError(c, errAppend)
		return
	}
	skipped := make([]string, 0, len(result.Applied.Skipped))
	for _, opErr := range result.Applied.Skipped {
		skipped = append(skipped, opErr.Error())
	}
	c.JSON(http.StatusCreated, gin.H{
		"message":      result.Message,
		"explorerData": result.Project.Explorer,
		"created":      result.Applied.Created,
		"deleted":      result.Applied.Deleted,
		"skipped":      skipped,
	})
}
