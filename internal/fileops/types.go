// Package fileops parses the file operation blocks embedded in assistant
// answers and applies them to a project's explorer tree.
package fileops

// NodeType classifies explorer entries.
type NodeType string

// NodeType values.
const (
	NodeService NodeType = "service"
	NodeFolder  NodeType = "folder"
	NodeScript  NodeType = "script"
)

// Node is one entry of the explorer tree. Paths are dotted and rooted at "game".
type Node struct {
	Name     string   `json:"name"`
	Type     NodeType `json:"type"`
	Path     string   `json:"path"`
	Content  string   `json:"content,omitempty"`
	Children []Node   `json:"children,omitempty"`
}

// Action is an operation verb.
type Action string

// Action values.
const (
	ActionCreate Action = "create"
	ActionDelete Action = "delete"
)

// Operation is one requested explorer mutation.
type Operation struct {
	Action   Action   `json:"action"`
	ItemType NodeType `json:"itemType,omitempty"`
	Name     string   `json:"name,omitempty"`
	Location string   `json:"location,omitempty"`
	Code     string   `json:"code,omitempty"`
	Path     string   `json:"path,omitempty"`
}

// Batch is the decoded file_operations block.
type Batch struct {
	Type        string      `json:"type"`
	Operations  []Operation `json:"operations"`
	Explanation string      `json:"explanation"`
}

// BatchType is the marker value of a file operations block.
const BatchType = "file_operations"

const legacyBatchType = "script_creation"

// legacyBatch is the older script-only block shape.
type legacyBatch struct {
	Type    string `json:"type"`
	Scripts []struct {
		Name     string `json:"name"`
		Location string `json:"location"`
		Code     string `json:"code"`
	} `json:"scripts"`
	Explanation string `json:"explanation"`
}
