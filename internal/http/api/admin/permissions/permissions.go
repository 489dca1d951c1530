package permissions

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Definition describes an admin permission.
type Definition struct {
	Key    string `json:"key"`
	Method string `json:"method"`
	Path   string `json:"path"`
	Label  string `json:"label"`
	Module string `json:"module"`
}

// Key builds a permission key from method and path.
func Key(method, path string) string {
	return strings.ToUpper(method) + " " + path
}

// NormalizePermissions trims, de-duplicates, and sorts permissions.
func NormalizePermissions(perms []string) []string {
	if len(perms) == 0 {
		return []string{}
	}
	seen := make(map[string]struct{}, len(perms))
	normalized := make([]string, 0, len(perms))
	for _, perm := range perms {
		trimmed := strings.TrimSpace(perm)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		normalized = append(normalized, trimmed)
	}
	sort.Strings(normalized)
	return normalized
}

// ValidatePermissions validates that all permissions exist in the definition set.
func ValidatePermissions(perms []string) error {
	if len(perms) == 0 {
		return nil
	}
	allowed := definitionMap
	for _, perm := range perms {
		trimmed := strings.TrimSpace(perm)
		if trimmed == "" {
			continue
		}
		if _, ok := allowed[trimmed]; !ok {
			return fmt.Errorf("invalid permission: %s", trimmed)
		}
	}
	return nil
}

// ParsePermissions parses and normalizes permissions from JSON.
func ParsePermissions(raw []byte) []string {
	if len(raw) == 0 {
		return []string{}
	}
	var perms []string
	if err := json.Unmarshal(raw, &perms); err != nil {
		return []string{}
	}
	return NormalizePermissions(perms)
}

// MarshalPermissions serializes normalized permissions to JSON.
func MarshalPermissions(perms []string) ([]byte, error) {
	normalized := NormalizePermissions(perms)
	return json.Marshal(normalized)
}

// HasPermission checks whether the key exists in the permission list.
func HasPermission(perms []string, key string) bool {
	if key == "" {
		return false
	}
	for _, perm := range perms {
		if perm == key {
			return true
		}
	}
	return false
}

// Definitions returns a copy of all permission definitions.
func Definitions() []Definition {
	out := make([]Definition, len(definitions))
	copy(out, definitions)
	return out
}

// DefinitionMap returns a copy of the permission definition map.
func DefinitionMap() map[string]Definition {
	out := make(map[string]Definition, len(definitionMap))
	for key, value := range definitionMap {
		out[key] = value
	}
	return out
}

// newDefinition builds a Definition with a normalized key.
func newDefinition(method, path, label, module string) Definition {
	upperMethod := strings.ToUpper(method)
	return Definition{
		Key:    Key(upperMethod, path),
		Method: upperMethod,
		Path:   path,
		Label:  label,
		Module: module,
	}
}

// definitions is the ordered list of permission definitions.
var definitions = []Definition{
	newDefinition("GET", "/v0/admin/users", "List Users", "Users"),
	newDefinition("GET", "/v0/admin/users/:id", "Get User", "Users"),
	newDefinition("PUT", "/v0/admin/users/:id/role", "Update User Role", "Users"),
	newDefinition("PUT", "/v0/admin/users/:id/admin", "Update Admin Access", "Users"),
	newDefinition("DELETE", "/v0/admin/users/:id", "Delete User", "Users"),

	newDefinition("GET", "/v0/admin/rate-limits", "View Rate Limit Overview", "Rate Limits"),
	newDefinition("GET", "/v0/admin/rate-limits/:id", "View User Rate Limit", "Rate Limits"),
	newDefinition("POST", "/v0/admin/rate-limits/:id/bonus", "Grant Bonus Requests", "Rate Limits"),
	newDefinition("PUT", "/v0/admin/rate-limits/:id/limit", "Set User Limit", "Rate Limits"),
	newDefinition("POST", "/v0/admin/rate-limits/:id/reset", "Reset User Rate Limit", "Rate Limits"),

	newDefinition("GET", "/v0/admin/bans", "List IP Bans", "Moderation"),
	newDefinition("POST", "/v0/admin/bans", "Ban IP", "Moderation"),
	newDefinition("DELETE", "/v0/admin/bans/:ip", "Unban IP", "Moderation"),
	newDefinition("GET", "/v0/admin/flags", "List Flagged Messages", "Moderation"),
	newDefinition("DELETE", "/v0/admin/flags/:id", "Delete Flagged Message", "Moderation"),
	newDefinition("DELETE", "/v0/admin/users/:id/flags", "Clear User Flags", "Moderation"),

	newDefinition("GET", "/v0/admin/global-messages", "List Global Messages", "Announcements"),
	newDefinition("POST", "/v0/admin/global-messages", "Send Global Message", "Announcements"),
	newDefinition("POST", "/v0/admin/global-messages/publish-update", "Publish Update", "Announcements"),
	newDefinition("DELETE", "/v0/admin/global-messages/:id", "Delete Global Message", "Announcements"),
	newDefinition("GET", "/v0/admin/changelogs", "List Changelogs", "Announcements"),
	newDefinition("POST", "/v0/admin/changelogs", "Create Changelog", "Announcements"),
	newDefinition("DELETE", "/v0/admin/changelogs/:id", "Delete Changelog", "Announcements"),

	newDefinition("GET", "/v0/admin/usage", "List Chat Usage", "Usage"),

	newDefinition("POST", "/v0/admin/settings", "Create Setting", "Settings"),
	newDefinition("GET", "/v0/admin/settings", "List Settings", "Settings"),
	newDefinition("GET", "/v0/admin/settings/:key", "Get Setting", "Settings"),
	newDefinition("PUT", "/v0/admin/settings/:key", "Update Setting", "Settings"),
	newDefinition("DELETE", "/v0/admin/settings/:key", "Delete Setting", "Settings"),

	newDefinition("GET", "/v0/admin/permissions", "List Permissions", "Permissions"),
}

// definitionMap provides fast lookup for permission definitions.
var definitionMap = func() map[string]Definition {
	out := make(map[string]Definition, len(definitions))
	for _, def := range definitions {
		out[def.Key] = def
	}
	return out
}()
