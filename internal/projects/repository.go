package projects

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
)

// Repository persists projects. Save replaces the whole record.
type Repository interface {
	Create(ctx context.Context, project *Project) error
	Get(ctx context.Context, id uint64) (*Project, error)
	GetByInviteCode(ctx context.Context, code string) (*Project, error)
	ListForUser(ctx context.Context, userID uint64) ([]Project, error)
	Save(ctx context.Context, project *Project) error
	Delete(ctx context.Context, id uint64) error
	DeleteByOwner(ctx context.Context, ownerID uint64) (int64, error)
}

// MemoryRepository keeps projects in process memory.
type MemoryRepository struct {
	mu       sync.Mutex
	nextID   uint64
	projects map[uint64]*Project
}

// NewMemoryRepository constructs an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{projects: make(map[uint64]*Project)}
}

// Create implements Repository.
func (r *MemoryRepository) Create(_ context.Context, project *Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.projects {
		if existing.InviteCode == project.InviteCode {
			return ErrDuplicateInviteCode
		}
	}
	r.nextID++
	project.ID = r.nextID
	r.projects[project.ID] = cloneProject(project)
	return nil
}

// Get implements Repository.
func (r *MemoryRepository) Get(_ context.Context, id uint64) (*Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	project, ok := r.projects[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneProject(project), nil
}

// GetByInviteCode implements Repository.
func (r *MemoryRepository) GetByInviteCode(_ context.Context, code string) (*Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, project := range r.projects {
		if project.InviteCode == code {
			return cloneProject(project), nil
		}
	}
	return nil, ErrNotFound
}

// ListForUser implements Repository.
func (r *MemoryRepository) ListForUser(_ context.Context, userID uint64) ([]Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Project, 0)
	for _, project := range r.projects {
		if project.CanAccess(userID) {
			out = append(out, *cloneProject(project))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

// Save implements Repository.
func (r *MemoryRepository) Save(_ context.Context, project *Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.projects[project.ID]; !ok {
		return ErrNotFound
	}
	r.projects[project.ID] = cloneProject(project)
	return nil
}

// Delete implements Repository.
func (r *MemoryRepository) Delete(_ context.Context, id uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.projects[id]; !ok {
		return ErrNotFound
	}
	delete(r.projects, id)
	return nil
}

// DeleteByOwner implements Repository.
func (r *MemoryRepository) DeleteByOwner(_ context.Context, ownerID uint64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed int64
	for id, project := range r.projects {
		if project.OwnerID == ownerID {
			delete(r.projects, id)
			removed++
		}
	}
	return removed, nil
}

// cloneProject deep-copies p through its JSON form.
func cloneProject(p *Project) *Project {
	raw, errMarshal := json.Marshal(p)
	if errMarshal != nil {
		copied := *p
		return &copied
	}
	var out Project
	if errUnmarshal := json.Unmarshal(raw, &out); errUnmarshal != nil {
		copied := *p
		return &copied
	}
	return &out
}
