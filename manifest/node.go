// Package manifest implements an arena-backed tree for parsed DASH manifests and the
// repair passes applied before a manifest is handed to the media engine.
//
// Nodes are addressed by integer id and store their parent and children as indices,
// never as pointers. Traversal and mutation operate on indices only, which keeps the
// parent back-references free of ownership or cycle hazards. A Document lives for the
// duration of a single engine load and is discarded afterwards.
package manifest

import "encoding/xml"

// None is the id returned for a missing node or parent.
const None = -1

// node is a single structural element: a name, an ordered attribute bag,
// character data and an ordered child list.
type node struct {
	name     string
	attrs    []xml.Attr
	text     string
	parent   int
	children []int
}

// Document is an arena of manifest nodes. The zero value is empty; use Parse or
// NewDocument to obtain one.
type Document struct {
	nodes []node
	root  int
}

// NewDocument returns an empty document with a root element of the given name.
func NewDocument(rootName string) *Document {
	d := &Document{root: None}
	d.root = d.CreateElement(rootName)
	return d
}

// Root returns the id of the root element, or None for an empty document.
func (d *Document) Root() int {
	return d.root
}

// Len returns the total number of nodes in the arena.
func (d *Document) Len() int {
	return len(d.nodes)
}

// CreateElement allocates a new unattached element and returns its id.
func (d *Document) CreateElement(name string) int {
	d.nodes = append(d.nodes, node{name: name, parent: None})
	return len(d.nodes) - 1
}

// AppendChild attaches child as the last child of parent.
func (d *Document) AppendChild(parent, child int) {
	d.nodes[child].parent = parent
	d.nodes[parent].children = append(d.nodes[parent].children, child)
}

// PrependChild attaches child as the first child of parent.
func (d *Document) PrependChild(parent, child int) {
	d.nodes[child].parent = parent
	d.nodes[parent].children = append([]int{child}, d.nodes[parent].children...)
}

// RemoveChild detaches child from parent. The node stays in the arena but is no
// longer reachable from the root.
func (d *Document) RemoveChild(parent, child int) {
	kept := d.nodes[parent].children[:0]
	for _, id := range d.nodes[parent].children {
		if id != child {
			kept = append(kept, id)
		}
	}
	d.nodes[parent].children = kept
	d.nodes[child].parent = None
}

// Name returns the element name of a node.
func (d *Document) Name(id int) string {
	return d.nodes[id].name
}

// Parent returns the parent id of a node, or None for the root.
func (d *Document) Parent(id int) int {
	return d.nodes[id].parent
}

// Children returns the ordered child ids of a node. The returned slice is the
// document's own storage; callers reorder it through SetChildren.
func (d *Document) Children(id int) []int {
	return d.nodes[id].children
}

// SetChildren replaces the ordered child list of a node. Every entry must already
// be parented to id; the call only changes ordering and membership bookkeeping.
func (d *Document) SetChildren(id int, children []int) {
	d.nodes[id].children = children
	for _, c := range children {
		d.nodes[c].parent = id
	}
}

// ChildrenNamed returns the child ids of a node bearing the given element name,
// in document order.
func (d *Document) ChildrenNamed(id int, name string) []int {
	var out []int
	for _, c := range d.nodes[id].children {
		if d.nodes[c].name == name {
			out = append(out, c)
		}
	}
	return out
}

// FirstChildNamed returns the first child with the given name, or None.
func (d *Document) FirstChildNamed(id int, name string) int {
	for _, c := range d.nodes[id].children {
		if d.nodes[c].name == name {
			return c
		}
	}
	return None
}

// DescendantsNamed returns every descendant with the given name in document order
// (depth-first, pre-order).
func (d *Document) DescendantsNamed(id int, name string) []int {
	var out []int
	var walk func(int)
	walk = func(n int) {
		for _, c := range d.nodes[n].children {
			if d.nodes[c].name == name {
				out = append(out, c)
			}
			walk(c)
		}
	}
	walk(id)
	return out
}

// Attr returns the value of the named attribute and whether it is present.
func (d *Document) Attr(id int, name string) (string, bool) {
	for _, a := range d.nodes[id].attrs {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

// AttrOr returns the value of the named attribute or a default.
func (d *Document) AttrOr(id int, name, fallback string) string {
	if v, ok := d.Attr(id, name); ok {
		return v
	}
	return fallback
}

// SetAttr sets or replaces the named attribute, preserving attribute order for
// existing names.
func (d *Document) SetAttr(id int, name, value string) {
	for i, a := range d.nodes[id].attrs {
		if a.Name.Local == name {
			d.nodes[id].attrs[i].Value = value
			return
		}
	}
	d.nodes[id].attrs = append(d.nodes[id].attrs, xml.Attr{
		Name:  xml.Name{Local: name},
		Value: value,
	})
}

// DeleteAttr removes the named attribute if present.
func (d *Document) DeleteAttr(id int, name string) {
	kept := d.nodes[id].attrs[:0]
	for _, a := range d.nodes[id].attrs {
		if a.Name.Local != name {
			kept = append(kept, a)
		}
	}
	d.nodes[id].attrs = kept
}

// Text returns the character data of a node (e.g. a BaseURL value).
func (d *Document) Text(id int) string {
	return d.nodes[id].text
}

// SetText replaces the character data of a node.
func (d *Document) SetText(id int, text string) {
	d.nodes[id].text = text
}
