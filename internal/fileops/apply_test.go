package fileops

import (
	"errors"
	"testing"
)

func TestDefaultExplorer(t *testing.T) {
	tree := DefaultExplorer()
	if len(tree) != 10 {
		t.Fatalf("services = %d", len(tree))
	}
	node, ok := Find(tree, "StarterPlayer.StarterPlayerScripts")
	if !ok || node.Type != NodeFolder || node.Path != "game.StarterPlayer.StarterPlayerScripts" {
		t.Fatalf("node = %#v ok=%v", node, ok)
	}
}

func TestApplyCreatesMissingParents(t *testing.T) {
	tree := DefaultExplorer()
	out, result := Apply(tree, []Operation{{
		Action:   ActionCreate,
		ItemType: NodeScript,
		Name:     "Spawner",
		Location: "ReplicatedStorage.Modules.Combat",
	}})
	if len(result.Skipped) != 0 || len(result.Created) != 1 {
		t.Fatalf("result = %#v", result)
	}
	modules, ok := Find(out, "game.ReplicatedStorage.Modules")
	if !ok || modules.Type != NodeFolder {
		t.Fatalf("modules = %#v", modules)
	}
	script, ok := Find(out, "game.ReplicatedStorage.Modules.Combat.Spawner")
	if !ok {
		t.Fatal("script not created")
	}
	if script.Content != "-- Spawner\nprint(\"Hello from Spawner\")" {
		t.Fatalf("content = %q", script.Content)
	}
	if _, found := Find(tree, "game.ReplicatedStorage.Modules"); found {
		t.Fatal("input tree was mutated")
	}
}

func TestApplyCreatesServiceAtRoot(t *testing.T) {
	out, _ := Apply(nil, []Operation{{Action: ActionCreate, ItemType: NodeFolder, Name: "Maps", Location: "game.Teams"}})
	teams, ok := Find(out, "game.Teams")
	if !ok || teams.Type != NodeService {
		t.Fatalf("teams = %#v", teams)
	}
	maps, ok := Find(out, "game.Teams.Maps")
	if !ok || maps.Type != NodeFolder || maps.Children == nil {
		t.Fatalf("maps = %#v", maps)
	}
}

func TestApplyReplacesSameName(t *testing.T) {
	ops := []Operation{
		{Action: ActionCreate, Name: "Main", Location: "ServerScriptService", Code: "print(1)"},
		{Action: ActionCreate, Name: "Main", Location: "ServerScriptService", Code: "print(2)"},
	}
	out, _ := Apply(DefaultExplorer(), ops)
	sss, _ := Find(out, "ServerScriptService")
	if len(sss.Children) != 1 || sss.Children[0].Content != "print(2)" {
		t.Fatalf("children = %#v", sss.Children)
	}
}

func TestApplyDeleteAcceptsBothPathForms(t *testing.T) {
	out, _ := Apply(DefaultExplorer(), []Operation{
		{Action: ActionCreate, Name: "A", Location: "Workspace"},
		{Action: ActionCreate, Name: "B", Location: "Workspace"},
	})
	out, result := Apply(out, []Operation{
		{Action: ActionDelete, Path: "Workspace.A"},
		{Action: ActionDelete, Path: "game.Workspace.B"},
		{Action: ActionDelete, Path: "Workspace.Missing"},
	})
	if len(result.Deleted) != 2 {
		t.Fatalf("deleted = %#v", result.Deleted)
	}
	ws, _ := Find(out, "Workspace")
	if len(ws.Children) != 0 {
		t.Fatalf("children = %#v", ws.Children)
	}
}

func TestApplySkipsInvalidOperations(t *testing.T) {
	_, result := Apply(DefaultExplorer(), []Operation{
		{Action: ActionCreate, Name: "", Location: "Workspace"},
		{Action: ActionCreate, Name: "a.b", Location: "Workspace"},
		{Action: ActionCreate, Name: "X", Location: ""},
		{Action: "rename", Name: "X"},
		{Action: ActionDelete},
	})
	if len(result.Skipped) != 5 {
		t.Fatalf("skipped = %d", len(result.Skipped))
	}
	if !errors.Is(result.Skipped[3], errUnknownAction) {
		t.Fatalf("err = %v", result.Skipped[3])
	}
}
