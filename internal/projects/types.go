// Package projects owns project workspaces: explorer trees, chat threads,
// invite codes and collaborator membership.
package projects

import (
	"errors"
	"time"

	"github.com/rojo-studio/rojo-server/internal/fileops"
)

var (
	// ErrNotFound is returned for unknown projects, threads or invite codes.
	ErrNotFound = errors.New("projects: not found")
	// ErrForbidden is returned when the caller cannot access or modify the project.
	ErrForbidden = errors.New("projects: forbidden")
	// ErrInvalidInput is returned for rejected names, roles or payloads.
	ErrInvalidInput = errors.New("projects: invalid input")
	// ErrDuplicateInviteCode is returned by repositories on an invite code collision.
	ErrDuplicateInviteCode = errors.New("projects: duplicate invite code")
)

// DefaultThreadName names the thread every project starts with.
const DefaultThreadName = "Main Chat"

const (
	maxNameLength    = 100
	maxMessageLength = 64 * 1024
)

// MessageRole identifies the author of a chat message.
type MessageRole string

// MessageRole values.
const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Valid reports whether r is a known role.
func (r MessageRole) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Message is one chat entry of a thread.
type Message struct {
	ID         string              `json:"id"`
	Role       MessageRole         `json:"role"`
	Content    string              `json:"content"`
	Thinking   []string            `json:"thinking,omitempty"`
	Operations []fileops.Operation `json:"operations,omitempty"`
	Filtered   bool                `json:"filtered,omitempty"`
	CreatedAt  time.Time           `json:"createdAt"`
}

// Thread is a named conversation inside a project.
type Thread struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Project is a workspace owned by one user and shared by invite code.
type Project struct {
	ID             uint64         `json:"id"`
	OwnerID        uint64         `json:"ownerId"`
	Name           string         `json:"name"`
	InviteCode     string         `json:"inviteCode"`
	Collaborators  []uint64       `json:"collaborators"`
	Explorer       []fileops.Node `json:"explorerData"`
	OpenScripts    []string       `json:"openScripts"`
	Threads        []Thread       `json:"chatThreads"`
	ActiveThreadID string         `json:"activeThreadId"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

// CanAccess reports whether userID owns or collaborates on p.
func (p *Project) CanAccess(userID uint64) bool {
	if p == nil || userID == 0 {
		return false
	}
	if p.OwnerID == userID {
		return true
	}
	for _, id := range p.Collaborators {
		if id == userID {
			return true
		}
	}
	return false
}

// threadIndex returns the index of the thread with id, or -1.
func (p *Project) threadIndex(id string) int {
	for i := range p.Threads {
		if p.Threads[i].ID == id {
			return i
		}
	}
	return -1
}
