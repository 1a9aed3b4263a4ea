package reflection

import (
	"fmt"
	"strings"

	"github.com/spaghettifunk/prism/engine/core"
)

// Member is one node of a BindingLayout: a leaf, a struct or an array.
// Offsets are absolute from the start of the block.
type Member struct {
	Name   string
	Offset uint32
	Size   uint32

	parent   int32
	children map[string]int32
	order    []int32
}

// IsLeaf reports whether the member has no sub-members.
func (m Member) IsLeaf() bool {
	return len(m.order) == 0
}

// BindingLayout is the reconstructed member tree of one uniform block. Nodes
// live in a single slice and refer to each other by index; node 0 is the
// block itself. A layout never changes after Parse returns it.
type BindingLayout struct {
	// Name is the variable name, or the block type name when the variable is
	// anonymous.
	Name string
	// TypeName is the block type name with any "type." prefix removed.
	TypeName string
	Set      uint32
	Binding  uint32
	// Size is the total byte size of the block, padding included.
	Size uint32

	nodes []Member
}

func newLayout(name, typeName string, set, binding, size uint32) *BindingLayout {
	l := &BindingLayout{
		Name:     name,
		TypeName: typeName,
		Set:      set,
		Binding:  binding,
		Size:     size,
	}
	l.nodes = append(l.nodes, Member{Name: name, Size: size, parent: -1})
	return l
}

func (l *BindingLayout) add(parent int32, name string, offset, size uint32) int32 {
	idx := int32(len(l.nodes))
	l.nodes = append(l.nodes, Member{Name: name, Offset: offset, Size: size, parent: parent})
	p := &l.nodes[parent]
	if p.children == nil {
		p.children = make(map[string]int32)
	}
	p.children[name] = idx
	p.order = append(p.order, idx)
	return idx
}

// Lookup resolves a member path such as "lights[2].color" or "weights[1][3]".
func (l *BindingLayout) Lookup(path string) (Member, error) {
	idx, err := l.resolve(path)
	if err != nil {
		return Member{}, err
	}
	return l.nodes[idx], nil
}

func (l *BindingLayout) resolve(path string) (int32, error) {
	keys, err := splitPath(path)
	if err != nil {
		return 0, err
	}
	cur := int32(0)
	for _, key := range keys {
		next, ok := l.nodes[cur].children[key]
		if !ok {
			return 0, fmt.Errorf("%w: `%s` has no member `%s` in block `%s`", core.ErrUniformNotFound, path, key, l.Name)
		}
		cur = next
	}
	return cur, nil
}

// Has reports whether path names a member of the block.
func (l *BindingLayout) Has(path string) bool {
	_, err := l.resolve(path)
	return err == nil
}

// Members returns the names of the top level members in declaration order.
func (l *BindingLayout) Members() []string {
	return l.childNames(0)
}

// Children returns the names of the direct sub-members of path, in
// declaration order.
func (l *BindingLayout) Children(path string) ([]string, error) {
	idx, err := l.resolve(path)
	if err != nil {
		return nil, err
	}
	return l.childNames(idx), nil
}

func (l *BindingLayout) childNames(idx int32) []string {
	n := l.nodes[idx]
	out := make([]string, 0, len(n.order))
	for _, c := range n.order {
		out = append(out, l.nodes[c].Name)
	}
	return out
}

// Walk visits every member depth first in declaration order with its full
// path. Returning false from fn skips the member's children.
func (l *BindingLayout) Walk(fn func(path string, m Member) bool) {
	var visit func(idx int32, prefix string)
	visit = func(idx int32, prefix string) {
		for _, c := range l.nodes[idx].order {
			child := l.nodes[c]
			path := joinPath(prefix, child.Name)
			if fn(path, child) {
				visit(c, path)
			}
		}
	}
	visit(0, "")
}

// joinPath appends name to prefix. Array element names already carry their
// parent's name so they replace the last segment instead of extending it.
func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	if i := strings.LastIndexByte(prefix, '.'); i >= 0 {
		last := prefix[i+1:]
		if strings.HasPrefix(name, last+"[") {
			return prefix[:i+1] + name
		}
		return prefix + "." + name
	}
	if strings.HasPrefix(name, prefix+"[") {
		return name
	}
	return prefix + "." + name
}

func (l *BindingLayout) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s (set %d, binding %d, %d bytes)\n", l.Name, l.Set, l.Binding, l.Size)
	var visit func(idx int32, depth int)
	visit = func(idx int32, depth int) {
		for _, c := range l.nodes[idx].order {
			m := l.nodes[c]
			fmt.Fprintf(&sb, "%s%s offset=%d size=%d\n", strings.Repeat("  ", depth+1), m.Name, m.Offset, m.Size)
			visit(c, depth+1)
		}
	}
	visit(0, 0)
	return sb.String()
}
