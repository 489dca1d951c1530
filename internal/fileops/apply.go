package fileops

import (
	"errors"
	"fmt"
	"strings"
)

var (
	errMissingName     = errors.New("fileops: name is required")
	errInvalidName     = errors.New("fileops: name must not contain '.'")
	errMissingLocation = errors.New("fileops: location is required")
	errMissingPath     = errors.New("fileops: path is required")
	errUnknownItemType = errors.New("fileops: item type must be folder or script")
	errUnknownAction   = errors.New("fileops: unknown action")
)

// OpError reports a skipped operation.
type OpError struct {
	Index int
	Err   error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("operation %d: %v", e.Index, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// Result summarises an Apply call.
type Result struct {
	Created []Node
	Deleted []string
	Skipped []*OpError
}

// NormalizePath trims whitespace and prefixes the root segment when missing.
func NormalizePath(path string) string {
	path = strings.Trim(strings.TrimSpace(path), ".")
	if path == "" || path == RootPath || strings.HasPrefix(path, RootPath+".") {
		return path
	}
	return RootPath + "." + path
}

func locationParts(location string) []string {
	location = strings.TrimPrefix(NormalizePath(location), RootPath)
	location = strings.Trim(location, ".")
	if location == "" {
		return nil
	}
	parts := strings.Split(location, ".")
	out := parts[:0]
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Apply runs ops against a copy of tree and returns the new tree. Invalid
// operations are skipped and reported in the result.
func Apply(tree []Node, ops []Operation) ([]Node, Result) {
	out := Clone(tree)
	var result Result
	for i, op := range ops {
		var errOp error
		switch op.Action {
		case ActionCreate:
			var created Node
			out, created, errOp = applyCreate(out, op)
			if errOp == nil {
				result.Created = append(result.Created, created)
			}
		case ActionDelete:
			path := NormalizePath(op.Path)
			if path == "" {
				errOp = errMissingPath
				break
			}
			var removed bool
			out, removed = removePath(out, path)
			if removed {
				result.Deleted = append(result.Deleted, path)
			}
		default:
			errOp = fmt.Errorf("%w: %q", errUnknownAction, op.Action)
		}
		if errOp != nil {
			result.Skipped = append(result.Skipped, &OpError{Index: i, Err: errOp})
		}
	}
	return out, result
}

func applyCreate(tree []Node, op Operation) ([]Node, Node, error) {
	name := strings.TrimSpace(op.Name)
	if name == "" {
		return tree, Node{}, errMissingName
	}
	if strings.Contains(name, ".") {
		return tree, Node{}, errInvalidName
	}
	itemType := op.ItemType
	if itemType == "" {
		itemType = NodeScript
	}
	if itemType != NodeFolder && itemType != NodeScript {
		return tree, Node{}, errUnknownItemType
	}
	parts := locationParts(op.Location)
	if len(parts) == 0 {
		return tree, Node{}, errMissingLocation
	}

	item := Node{Name: name, Type: itemType}
	if itemType == NodeScript {
		item.Content = op.Code
		if strings.TrimSpace(item.Content) == "" {
			item.Content = fmt.Sprintf("-- %s\nprint(\"Hello from %s\")", name, name)
		}
	}
	created := insert(&tree, parts, item)
	return tree, created, nil
}

// insert walks parts from the root, creating missing services and folders,
// and places item under the final part. An item with the same name is replaced.
func insert(root *[]Node, parts []string, item Node) Node {
	level := root
	parentPath := RootPath
	for i, part := range parts {
		path := parentPath + "." + part
		idx := -1
		for j := range *level {
			if (*level)[j].Name == part {
				idx = j
				break
			}
		}
		if idx < 0 {
			nodeType := NodeFolder
			if i == 0 {
				nodeType = NodeService
			}
			*level = append(*level, Node{Name: part, Type: nodeType, Path: path, Children: []Node{}})
			idx = len(*level) - 1
		}
		parent := &(*level)[idx]
		parentPath = parent.Path
		level = &parent.Children
	}

	item.Path = parentPath + "." + item.Name
	if item.Type == NodeFolder {
		item.Children = []Node{}
	}
	for j := range *level {
		if (*level)[j].Name == item.Name {
			(*level)[j] = item
			return item
		}
	}
	*level = append(*level, item)
	return item
}

// removePath drops every node whose path equals path, at any depth.
func removePath(tree []Node, path string) ([]Node, bool) {
	removed := false
	out := tree[:0]
	for _, node := range tree {
		if node.Path == path {
			removed = true
			continue
		}
		if len(node.Children) > 0 {
			var childRemoved bool
			node.Children, childRemoved = removePath(node.Children, path)
			removed = removed || childRemoved
		}
		out = append(out, node)
	}
	return out, removed
}
