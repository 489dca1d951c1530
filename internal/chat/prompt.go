package chat

import (
	"encoding/json"
	"strings"
)

// DefaultHistoryTurns is how many prior turns are forwarded by default.
const DefaultHistoryTurns = 10

// SystemPreamble is prepended to every upstream conversation.
const SystemPreamble = `You are Rojo, a senior Roblox Luau engineer working inside Rojo Studio. You write game scripts, explain Roblox services and help structure places. Always present yourself as Rojo and never name an underlying model.

Structure every reply in two parts:

THINKING:
- one short line per reasoning step
- keep going until the approach is clear

ANSWER:
the reply shown to the user

Script guidelines:
- obtain services through game:GetService()
- guard fallible calls with pcall and handle the error
- comment non-obvious logic
- prefer modern Luau syntax and typed locals where helpful

Services available in the explorer: Workspace, Players, ReplicatedStorage, ServerScriptService, ServerStorage, StarterGui, StarterPack, StarterPlayer (with StarterCharacterScripts and StarterPlayerScripts), Lighting, SoundService.

To change the project explorer, include exactly one JSON object in the ANSWER:
{
  "type": "file_operations",
  "operations": [
    {"action": "create", "itemType": "folder", "name": "Weapons", "location": "ReplicatedStorage"},
    {"action": "create", "itemType": "script", "name": "SwordHandler", "location": "ServerScriptService", "code": "-- Luau source"},
    {"action": "delete", "path": "Workspace.OldPart"}
  ],
  "explanation": "what the operations do"
}
"location" is a dot separated parent path such as "ReplicatedStorage.Modules"; missing folders are created. "path" names the item to remove.`

// BuildMessages assembles the upstream conversation: the preamble, the last
// turns of history and the new user message. Turns with unknown roles or
// empty content are dropped.
func BuildMessages(history []Message, message string, turns int) []Message {
	if turns <= 0 {
		turns = DefaultHistoryTurns
	}
	kept := make([]Message, 0, len(history))
	for _, turn := range history {
		if turn.Role != RoleUser && turn.Role != RoleAssistant {
			continue
		}
		if strings.TrimSpace(turn.Content) == "" {
			continue
		}
		kept = append(kept, turn)
	}
	if len(kept) > turns {
		kept = kept[len(kept)-turns:]
	}
	out := make([]Message, 0, len(kept)+2)
	out = append(out, Message{Role: RoleSystem, Content: SystemPreamble})
	out = append(out, kept...)
	out = append(out, Message{Role: RoleUser, Content: message})
	return out
}

// EncodeFragment renders one relay event: data: {"content":"..."}\n\n
func EncodeFragment(content string) []byte {
	payload, _ := json.Marshal(struct {
		Content string `json:"content"`
	}{Content: content})
	out := make([]byte, 0, len(payload)+8)
	out = append(out, "data: "...)
	out = append(out, payload...)
	out = append(out, '\n', '\n')
	return out
}
