package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	dbutil "github.com/rojo-studio/rojo-server/internal/db"
	"github.com/rojo-studio/rojo-server/internal/fileops"
	"github.com/rojo-studio/rojo-server/internal/models"
	"github.com/rojo-studio/rojo-server/internal/projects"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// GormProjectRepository implements projects.Repository on the projects table.
type GormProjectRepository struct {
	db *gorm.DB
}

// NewGormProjectRepository constructs a GormProjectRepository.
func NewGormProjectRepository(db *gorm.DB) *GormProjectRepository {
	return &GormProjectRepository{db: db}
}

// Create implements projects.Repository.
func (r *GormProjectRepository) Create(ctx context.Context, project *projects.Project) error {
	row, errRow := projectToModel(project)
	if errRow != nil {
		return errRow
	}
	row.ID = 0
	if errCreate := r.db.WithContext(ctx).Create(row).Error; errCreate != nil {
		if dbutil.IsUniqueViolation(errCreate) {
			return projects.ErrDuplicateInviteCode
		}
		return fmt.Errorf("project repository: create: %w", errCreate)
	}
	project.ID = row.ID
	project.CreatedAt = row.CreatedAt
	project.UpdatedAt = row.UpdatedAt
	return nil
}

// Get implements projects.Repository.
func (r *GormProjectRepository) Get(ctx context.Context, id uint64) (*projects.Project, error) {
	var row models.Project
	errFind := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		return nil, projects.ErrNotFound
	}
	if errFind != nil {
		return nil, fmt.Errorf("project repository: get: %w", errFind)
	}
	return projectFromModel(&row)
}

// GetByInviteCode implements projects.Repository.
func (r *GormProjectRepository) GetByInviteCode(ctx context.Context, code string) (*projects.Project, error) {
	var row models.Project
	errFind := r.db.WithContext(ctx).Where("invite_code = ?", code).Take(&row).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		return nil, projects.ErrNotFound
	}
	if errFind != nil {
		return nil, fmt.Errorf("project repository: get by invite code: %w", errFind)
	}
	return projectFromModel(&row)
}

// ListForUser implements projects.Repository.
func (r *GormProjectRepository) ListForUser(ctx context.Context, userID uint64) ([]projects.Project, error) {
	var rows []models.Project
	errFind := r.db.WithContext(ctx).
		Where("owner_id = ? OR "+dbutil.JSONArrayContainsExpr(r.db, "collaborators"), userID, dbutil.JSONArrayContainsValue(r.db, userID)).
		Order("updated_at DESC").
		Find(&rows).Error
	if errFind != nil {
		return nil, fmt.Errorf("project repository: list: %w", errFind)
	}
	out := make([]projects.Project, 0, len(rows))
	for i := range rows {
		project, errConvert := projectFromModel(&rows[i])
		if errConvert != nil {
			return nil, errConvert
		}
		out = append(out, *project)
	}
	return out, nil
}

// Save implements projects.Repository.
func (r *GormProjectRepository) Save(ctx context.Context, project *projects.Project) error {
	row, errRow := projectToModel(project)
	if errRow != nil {
		return errRow
	}
	res := r.db.WithContext(ctx).Model(&models.Project{}).Where("id = ?", project.ID).Updates(map[string]any{
		"name":             row.Name,
		"collaborators":    row.Collaborators,
		"explorer_data":    row.ExplorerData,
		"open_scripts":     row.OpenScripts,
		"chat_threads":     row.ChatThreads,
		"active_thread_id": row.ActiveThreadID,
		"updated_at":       row.UpdatedAt,
	})
	if res.Error != nil {
		return fmt.Errorf("project repository: save: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return projects.ErrNotFound
	}
	return nil
}

// Delete implements projects.Repository.
func (r *GormProjectRepository) Delete(ctx context.Context, id uint64) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Project{})
	if res.Error != nil {
		return fmt.Errorf("project repository: delete: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return projects.ErrNotFound
	}
	return nil
}

// DeleteByOwner implements projects.Repository.
func (r *GormProjectRepository) DeleteByOwner(ctx context.Context, ownerID uint64) (int64, error) {
	res := r.db.WithContext(ctx).Where("owner_id = ?", ownerID).Delete(&models.Project{})
	if res.Error != nil {
		return 0, fmt.Errorf("project repository: delete by owner: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func projectToModel(p *projects.Project) (*models.Project, error) {
	explorer, errExplorer := marshalJSON(p.Explorer, "[]")
	if errExplorer != nil {
		return nil, fmt.Errorf("project repository: encode explorer: %w", errExplorer)
	}
	openScripts, errScripts := marshalJSON(p.OpenScripts, "[]")
	if errScripts != nil {
		return nil, fmt.Errorf("project repository: encode open scripts: %w", errScripts)
	}
	threads, errThreads := marshalJSON(p.Threads, "[]")
	if errThreads != nil {
		return nil, fmt.Errorf("project repository: encode threads: %w", errThreads)
	}
	return &models.Project{
		ID:             p.ID,
		OwnerID:        p.OwnerID,
		Name:           p.Name,
		InviteCode:     p.InviteCode,
		Collaborators:  models.UserIDs(p.Collaborators).Clean(),
		ExplorerData:   explorer,
		OpenScripts:    openScripts,
		ChatThreads:    threads,
		ActiveThreadID: p.ActiveThreadID,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}, nil
}

func projectFromModel(row *models.Project) (*projects.Project, error) {
	p := &projects.Project{
		ID:             row.ID,
		OwnerID:        row.OwnerID,
		Name:           row.Name,
		InviteCode:     row.InviteCode,
		Collaborators:  []uint64(row.Collaborators.Clean()),
		Explorer:       []fileops.Node{},
		OpenScripts:    []string{},
		Threads:        []projects.Thread{},
		ActiveThreadID: row.ActiveThreadID,
		CreatedAt:      row.CreatedAt,
		UpdatedAt:      row.UpdatedAt,
	}
	if errExplorer := unmarshalJSON(row.ExplorerData, &p.Explorer); errExplorer != nil {
		return nil, fmt.Errorf("project repository: decode explorer of %d: %w", row.ID, errExplorer)
	}
	if errScripts := unmarshalJSON(row.OpenScripts, &p.OpenScripts); errScripts != nil {
		return nil, fmt.Errorf("project repository: decode open scripts of %d: %w", row.ID, errScripts)
	}
	if errThreads := unmarshalJSON(row.ChatThreads, &p.Threads); errThreads != nil {
		return nil, fmt.Errorf("project repository: decode threads of %d: %w", row.ID, errThreads)
	}
	return p, nil
}

func marshalJSON(v any, empty string) (datatypes.JSON, error) {
	raw, errMarshal := json.Marshal(v)
	if errMarshal != nil {
		return nil, errMarshal
	}
	if string(raw) == "null" {
		raw = []byte(empty)
	}
	return datatypes.JSON(raw), nil
}

func unmarshalJSON(raw datatypes.JSON, dst any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, dst)
}
