package fileops

// RootPath prefixes every explorer path.
const RootPath = "game"

var defaultServices = []string{
	"Workspace",
	"Players",
	"ReplicatedStorage",
	"ServerScriptService",
	"ServerStorage",
	"StarterGui",
	"StarterPack",
	"StarterPlayer",
	"Lighting",
	"SoundService",
}

// DefaultExplorer returns the explorer tree of a new project.
func DefaultExplorer() []Node {
	nodes := make([]Node, 0, len(defaultServices))
	for _, name := range defaultServices {
		node := Node{Name: name, Type: NodeService, Path: RootPath + "." + name}
		if name == "StarterPlayer" {
			node.Children = []Node{
				{Name: "StarterCharacterScripts", Type: NodeFolder, Path: node.Path + ".StarterCharacterScripts"},
				{Name: "StarterPlayerScripts", Type: NodeFolder, Path: node.Path + ".StarterPlayerScripts"},
			}
		}
		nodes = append(nodes, node)
	}
	return nodes
}

// Find returns the node at path, accepting paths with or without the root prefix.
func Find(tree []Node, path string) (*Node, bool) {
	path = NormalizePath(path)
	for i := range tree {
		if tree[i].Path == path {
			return &tree[i], true
		}
		if found, ok := Find(tree[i].Children, path); ok {
			return found, true
		}
	}
	return nil, false
}

// Clone returns a deep copy of tree.
func Clone(tree []Node) []Node {
	if tree == nil {
		return nil
	}
	out := make([]Node, len(tree))
	for i, node := range tree {
		out[i] = node
		out[i].Children = Clone(node.Children)
	}
	return out
}
