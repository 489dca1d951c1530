package store

import (
	"context"
	"errors"
	"testing"

	"github.com/rojo-studio/rojo-server/internal/fileops"
	"github.com/rojo-studio/rojo-server/internal/models"
	"github.com/rojo-studio/rojo-server/internal/projects"
)

func TestGormProjectRepositoryRoundTrip(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()
	owner := models.User{Email: "owner@example.com", Username: "owner", Password: "x"}
	member := models.User{Email: "member@example.com", Username: "member", Password: "x"}
	if err := conn.Create(&owner).Error; err != nil {
		t.Fatalf("create owner: %v", err)
	}
	if err := conn.Create(&member).Error; err != nil {
		t.Fatalf("create member: %v", err)
	}

	svc := projects.NewService(NewGormProjectRepository(conn), nil)
	project, err := svc.Create(ctx, owner.ID, "Tycoon")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err = svc.Join(ctx, member.ID, project.InviteCode); err != nil {
		t.Fatalf("Join() error = %v", err)
	}

	list, err := svc.List(ctx, member.ID)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 1 || list[0].ID != project.ID {
		t.Fatalf("list = %#v", list)
	}

	answer := `ANSWER: ok {"type":"file_operations","operations":[{"action":"create","itemType":"folder","name":"Maps","location":"Workspace"}],"explanation":""}`
	if _, err = svc.AppendMessage(ctx, member.ID, project.ID, project.ActiveThreadID, projects.RoleAssistant, answer); err != nil {
		t.Fatalf("AppendMessage() error = %v", err)
	}
	stored, err := svc.Get(ctx, owner.ID, project.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if _, ok := fileops.Find(stored.Explorer, "game.Workspace.Maps"); !ok {
		t.Fatal("explorer change not persisted")
	}
	if len(stored.Threads) != 1 || len(stored.Threads[0].Messages) != 1 {
		t.Fatalf("threads = %#v", stored.Threads)
	}
	if len(stored.Collaborators) != 1 || stored.Collaborators[0] != member.ID {
		t.Fatalf("collaborators = %#v", stored.Collaborators)
	}
}

func TestGormProjectRepositoryDuplicateInviteCode(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()
	repo := NewGormProjectRepository(conn)
	first := &projects.Project{OwnerID: 1, Name: "a", InviteCode: "ABCDEFGH"}
	if err := repo.Create(ctx, first); err != nil {
		t.Fatalf("first Create() error = %v", err)
	}
	second := &projects.Project{OwnerID: 1, Name: "b", InviteCode: "ABCDEFGH"}
	if err := repo.Create(ctx, second); !errors.Is(err, projects.ErrDuplicateInviteCode) {
		t.Fatalf("duplicate Create() error = %v", err)
	}
	if _, err := repo.Get(ctx, 999); !errors.Is(err, projects.ErrNotFound) {
		t.Fatalf("Get(missing) error = %v", err)
	}
	removed, err := repo.DeleteByOwner(ctx, 1)
	if err != nil || removed != 1 {
		t.Fatalf("DeleteByOwner() = %d, %v", removed, err)
	}
}
