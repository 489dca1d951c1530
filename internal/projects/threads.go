package projects

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rojo-studio/rojo-server/internal/fileops"
	log "github.com/sirupsen/logrus"
)

// CreateThread adds a thread and makes it active.
func (s *Service) CreateThread(ctx context.Context, userID, projectID uint64, name string) (*Project, *Thread, error) {
	name, errName := cleanName(name)
	if errName != nil {
		return nil, nil, errName
	}
	project, errGet := s.Get(ctx, userID, projectID)
	if errGet != nil {
		return nil, nil, errGet
	}
	thread := s.newThread(name)
	project.Threads = append(project.Threads, thread)
	project.ActiveThreadID = thread.ID
	if errSave := s.save(ctx, project); errSave != nil {
		return nil, nil, errSave
	}
	return project, &project.Threads[len(project.Threads)-1], nil
}

// RenameThread changes a thread's name.
func (s *Service) RenameThread(ctx context.Context, userID, projectID uint64, threadID, name string) (*Project, error) {
	name, errName := cleanName(name)
	if errName != nil {
		return nil, errName
	}
	return s.mutateThread(ctx, userID, projectID, threadID, func(thread *Thread) error {
		thread.Name = name
		return nil
	})
}

// ReplaceMessages overwrites a thread's messages. Messages missing an id or
// timestamp get one.
func (s *Service) ReplaceMessages(ctx context.Context, userID, projectID uint64, threadID string, messages []Message) (*Project, error) {
	now := s.now()
	cleaned := make([]Message, 0, len(messages))
	for _, msg := range messages {
		if !msg.Role.Valid() {
			return nil, fmt.Errorf("%w: unknown message role %q", ErrInvalidInput, msg.Role)
		}
		if len(msg.Content) > maxMessageLength {
			return nil, fmt.Errorf("%w: message is too long", ErrInvalidInput)
		}
		if msg.ID == "" {
			msg.ID = uuid.NewString()
		}
		if msg.CreatedAt.IsZero() {
			msg.CreatedAt = now
		}
		cleaned = append(cleaned, msg)
	}
	return s.mutateThread(ctx, userID, projectID, threadID, func(thread *Thread) error {
		thread.Messages = cleaned
		return nil
	})
}

// DeleteThread removes a thread. The active thread moves to the first
// remaining one, and deleting the last thread creates a fresh default thread.
func (s *Service) DeleteThread(ctx context.Context, userID, projectID uint64, threadID string) (*Project, error) {
	project, errGet := s.Get(ctx, userID, projectID)
	if errGet != nil {
		return nil, errGet
	}
	idx := project.threadIndex(threadID)
	if idx < 0 {
		return nil, ErrNotFound
	}
	project.Threads = append(project.Threads[:idx], project.Threads[idx+1:]...)
	if len(project.Threads) == 0 {
		project.Threads = []Thread{s.newThread(DefaultThreadName)}
	}
	if project.ActiveThreadID == threadID {
		project.ActiveThreadID = project.Threads[0].ID
	}
	if errSave := s.save(ctx, project); errSave != nil {
		return nil, errSave
	}
	return project, nil
}

// ActivateThread marks a thread as the one shown when the project opens.
func (s *Service) ActivateThread(ctx context.Context, userID, projectID uint64, threadID string) (*Project, error) {
	project, errGet := s.Get(ctx, userID, projectID)
	if errGet != nil {
		return nil, errGet
	}
	if project.threadIndex(threadID) < 0 {
		return nil, ErrNotFound
	}
	project.ActiveThreadID = threadID
	if errSave := s.save(ctx, project); errSave != nil {
		return nil, errSave
	}
	return project, nil
}

// AppendMessage adds a message to a thread. Assistant messages are screened
// by the response filter, split into thinking and answer, and any file
// operations block in the answer is applied to the explorer tree.
func (s *Service) AppendMessage(ctx context.Context, userID, projectID uint64, threadID string, role MessageRole, content string) (*AppendResult, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown message role %q", ErrInvalidInput, role)
	}
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: content is required", ErrInvalidInput)
	}
	if len(content) > maxMessageLength {
		return nil, fmt.Errorf("%w: message is too long", ErrInvalidInput)
	}
	project, errGet := s.Get(ctx, userID, projectID)
	if errGet != nil {
		return nil, errGet
	}
	idx := project.threadIndex(threadID)
	if idx < 0 {
		return nil, ErrNotFound
	}

	now := s.now()
	msg := Message{ID: uuid.NewString(), Role: role, Content: content, CreatedAt: now}
	result := &AppendResult{Project: project}
	if role == RoleAssistant {
		s.prepareAssistantMessage(project, &msg, result)
	}

	thread := &project.Threads[idx]
	thread.Messages = append(thread.Messages, msg)
	thread.UpdatedAt = now
	if errSave := s.save(ctx, project); errSave != nil {
		return nil, errSave
	}
	result.Message = msg
	return result, nil
}

func (s *Service) prepareAssistantMessage(project *Project, msg *Message, result *AppendResult) {
	if s.filter != nil {
		if replaced, filtered := s.filter.FilterResponse(msg.Content); filtered {
			msg.Content = replaced
			msg.Filtered = true
			return
		}
	}
	thinking, answer := fileops.SplitAnswer(msg.Content)
	msg.Thinking = thinking
	msg.Content = answer

	batch, ok := fileops.Parse(answer)
	if !ok {
		return
	}
	msg.Operations = batch.Operations
	project.Explorer, result.Applied = fileops.Apply(project.Explorer, batch.Operations)
	fields := log.Fields{
		"project_id": project.ID,
		"created":    len(result.Applied.Created),
		"deleted":    len(result.Applied.Deleted),
	}
	for _, skipped := range result.Applied.Skipped {
		log.WithFields(fields).WithError(skipped).Warn("file operation skipped")
	}
	log.WithFields(fields).Debug("file operations applied")
}

func (s *Service) mutateThread(ctx context.Context, userID, projectID uint64, threadID string, fn func(*Thread) error) (*Project, error) {
	project, errGet := s.Get(ctx, userID, projectID)
	if errGet != nil {
		return nil, errGet
	}
	idx := project.threadIndex(threadID)
	if idx < 0 {
		return nil, ErrNotFound
	}
	thread := &project.Threads[idx]
	if errFn := fn(thread); errFn != nil {
		return nil, errFn
	}
	thread.UpdatedAt = s.now()
	if errSave := s.save(ctx, project); errSave != nil {
		return nil, errSave
	}
	return project, nil
}
