// services/common/catalog/tree.go

// Package catalog turns a flat object listing into a browsable tree.
package catalog

import (
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/watchme-app/vault-api/services/common/objectstore"
	"github.com/watchme-app/vault-api/services/common/pathkey"
)

const (
	TypeDir  = "dir"
	TypeFile = "file"
)

// Node is a directory or a stored object.
type Node struct {
	Name         string     `json:"name"`
	Type         string     `json:"type"`
	Path         string     `json:"path,omitempty"`
	Size         int64      `json:"size,omitempty"`
	SizeHuman    string     `json:"size_human,omitempty"`
	ContentType  string     `json:"content_type,omitempty"`
	LastModified *time.Time `json:"last_modified,omitempty"`
	Children     []*Node    `json:"children,omitempty"`

	index map[string]*Node
}

// dateDepth is the level holding date folders: root/{device}/{date}.
const dateDepth = 1

// Build nests objects below root. At every level directories come before
// files and names sort ascending, except date folders which sort newest first.
func Build(objects []objectstore.ObjectInfo, root string) []*Node {
	top := &Node{Type: TypeDir}
	for _, obj := range objects {
		rel := strings.TrimPrefix(obj.Key, root)
		if rel == obj.Key && root != "" {
			continue
		}
		parts := strings.Split(rel, "/")
		dir := top
		for _, part := range parts[:len(parts)-1] {
			if part == "" {
				continue
			}
			dir = dir.child(part)
		}
		name := parts[len(parts)-1]
		if name == "" {
			continue
		}
		modified := obj.LastModified
		dir.Children = append(dir.Children, &Node{
			Name:         name,
			Type:         TypeFile,
			Path:         obj.Key,
			Size:         obj.Size,
			SizeHuman:    humanize.Bytes(uint64(obj.Size)),
			ContentType:  obj.ContentType,
			LastModified: &modified,
		})
	}
	sortTree(top.Children, 0)
	return top.Children
}

func (n *Node) child(name string) *Node {
	if n.index == nil {
		n.index = map[string]*Node{}
	}
	if c, ok := n.index[name]; ok {
		return c
	}
	c := &Node{Name: name, Type: TypeDir}
	n.index[name] = c
	n.Children = append(n.Children, c)
	return c
}

func sortTree(nodes []*Node, depth int) {
	sort.SliceStable(nodes, func(i, j int) bool {
		a, b := nodes[i], nodes[j]
		if a.Type != b.Type {
			return a.Type == TypeDir
		}
		if depth == dateDepth && a.Type == TypeDir {
			return newerDate(a.Name, b.Name)
		}
		return a.Name < b.Name
	})
	for _, n := range nodes {
		n.index = nil
		sortTree(n.Children, depth+1)
	}
}

// newerDate orders valid dates descending, followed by unparsable names.
func newerDate(a, b string) bool {
	ta, errA := pathkey.ParseDate(a)
	tb, errB := pathkey.ParseDate(b)
	switch {
	case errA != nil && errB != nil:
		return a < b
	case errA != nil:
		return false
	case errB != nil:
		return true
	}
	return ta.After(tb)
}
