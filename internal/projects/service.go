package projects

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rojo-studio/rojo-server/internal/fileops"
	log "github.com/sirupsen/logrus"
)

const inviteCodeAttempts = 5

// ResponseFilter screens assistant output before it is stored.
// It returns the text to keep and whether it was replaced.
type ResponseFilter interface {
	FilterResponse(text string) (string, bool)
}

// Service implements project operations on top of a Repository.
type Service struct {
	repo    Repository
	filter  ResponseFilter
	nowFn   func() time.Time
	newCode func() (string, error)
}

// NewService constructs a Service. filter may be nil.
func NewService(repo Repository, filter ResponseFilter) *Service {
	return &Service{
		repo:    repo,
		filter:  filter,
		nowFn:   time.Now,
		newCode: GenerateInviteCode,
	}
}

// WorkspaceUpdate carries optional replacements for a project's editable fields.
type WorkspaceUpdate struct {
	Name        *string
	Explorer    *[]fileops.Node
	OpenScripts *[]string
}

// AppendResult is returned by AppendMessage.
type AppendResult struct {
	Project *Project
	Message Message
	Applied fileops.Result
}

func (s *Service) now() time.Time {
	return s.nowFn().UTC()
}

func cleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return "", fmt.Errorf("%w: name is too long", ErrInvalidInput)
	}
	return name, nil
}

func (s *Service) newThread(name string) Thread {
	now := s.now()
	return Thread{ID: uuid.NewString(), Name: name, Messages: []Message{}, CreatedAt: now, UpdatedAt: now}
}

// Create makes a project owned by ownerID with the default explorer and one thread.
func (s *Service) Create(ctx context.Context, ownerID uint64, name string) (*Project, error) {
	if ownerID == 0 {
		return nil, ErrForbidden
	}
	name, errName := cleanName(name)
	if errName != nil {
		return nil, errName
	}
	now := s.now()
	thread := s.newThread(DefaultThreadName)
	project := &Project{
		OwnerID:        ownerID,
		Name:           name,
		Collaborators:  []uint64{},
		Explorer:       fileops.DefaultExplorer(),
		OpenScripts:    []string{},
		Threads:        []Thread{thread},
		ActiveThreadID: thread.ID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	for attempt := 0; attempt < inviteCodeAttempts; attempt++ {
		code, errCode := s.newCode()
		if errCode != nil {
			return nil, errCode
		}
		project.InviteCode = code
		errCreate := s.repo.Create(ctx, project)
		if errCreate == nil {
			log.WithFields(log.Fields{"project_id": project.ID, "owner_id": ownerID}).Info("project created")
			return project, nil
		}
		if !errors.Is(errCreate, ErrDuplicateInviteCode) {
			return nil, errCreate
		}
	}
	return nil, fmt.Errorf("projects: could not allocate a unique invite code: %w", ErrDuplicateInviteCode)
}

// List returns the projects userID owns or collaborates on.
func (s *Service) List(ctx context.Context, userID uint64) ([]Project, error) {
	return s.repo.ListForUser(ctx, userID)
}

// Get loads a project the caller can access.
func (s *Service) Get(ctx context.Context, userID, projectID uint64) (*Project, error) {
	project, errGet := s.repo.Get(ctx, projectID)
	if errGet != nil {
		return nil, errGet
	}
	if !project.CanAccess(userID) {
		return nil, ErrForbidden
	}
	s.ensureThread(project)
	return project, nil
}

// ensureThread gives a project without threads a fresh default thread.
func (s *Service) ensureThread(project *Project) {
	if len(project.Threads) == 0 {
		thread := s.newThread(DefaultThreadName)
		project.Threads = []Thread{thread}
		project.ActiveThreadID = thread.ID
	}
	if project.threadIndex(project.ActiveThreadID) < 0 {
		project.ActiveThreadID = project.Threads[0].ID
	}
}

func (s *Service) save(ctx context.Context, project *Project) error {
	project.UpdatedAt = s.now()
	return s.repo.Save(ctx, project)
}

// UpdateWorkspace renames the project or replaces its explorer tree or open scripts.
func (s *Service) UpdateWorkspace(ctx context.Context, userID, projectID uint64, update WorkspaceUpdate) (*Project, error) {
	project, errGet := s.Get(ctx, userID, projectID)
	if errGet != nil {
		return nil, errGet
	}
	if update.Name != nil {
		name, errName := cleanName(*update.Name)
		if errName != nil {
			return nil, errName
		}
		project.Name = name
	}
	if update.Explorer != nil {
		project.Explorer = fileops.Clone(*update.Explorer)
		if project.Explorer == nil {
			project.Explorer = []fileops.Node{}
		}
	}
	if update.OpenScripts != nil {
		project.OpenScripts = append([]string{}, (*update.OpenScripts)...)
	}
	if errSave := s.save(ctx, project); errSave != nil {
		return nil, errSave
	}
	return project, nil
}

// Delete removes a project. Only the owner may delete.
func (s *Service) Delete(ctx context.Context, userID, projectID uint64) error {
	project, errGet := s.repo.Get(ctx, projectID)
	if errGet != nil {
		return errGet
	}
	if project.OwnerID != userID {
		return ErrForbidden
	}
	if errDelete := s.repo.Delete(ctx, projectID); errDelete != nil {
		return errDelete
	}
	log.WithFields(log.Fields{"project_id": projectID, "owner_id": userID}).Info("project deleted")
	return nil
}

// DeleteOwnedBy removes every project owned by userID.
func (s *Service) DeleteOwnedBy(ctx context.Context, userID uint64) (int64, error) {
	return s.repo.DeleteByOwner(ctx, userID)
}

// Join adds userID as a collaborator of the project with the invite code.
// Joining a project the user already belongs to is a no-op.
func (s *Service) Join(ctx context.Context, userID uint64, code string) (*Project, error) {
	code = NormalizeInviteCode(code)
	if code == "" {
		return nil, fmt.Errorf("%w: invite code is required", ErrInvalidInput)
	}
	project, errGet := s.repo.GetByInviteCode(ctx, code)
	if errGet != nil {
		return nil, errGet
	}
	if project.CanAccess(userID) {
		return project, nil
	}
	project.Collaborators = append(project.Collaborators, userID)
	if errSave := s.save(ctx, project); errSave != nil {
		return nil, errSave
	}
	log.WithFields(log.Fields{"project_id": project.ID, "user_id": userID}).Info("collaborator joined project")
	return project, nil
}
