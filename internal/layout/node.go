// Package layout constructs the static dashboard page tree. The tree holds containers,
// labels, interactive controls and empty anchors that callbacks fill with charts later.
package layout

// Kind tags a node of the layout tree
type Kind string

const (
	KindPage    Kind = "page"
	KindNavbar  Kind = "navbar"
	KindNavItem Kind = "nav-item"
	KindBrand   Kind = "brand"
	KindRow     Kind = "row"
	KindCol     Kind = "col"
	KindCard    Kind = "card"
	KindHeading Kind = "heading"
	KindText    Kind = "text"
	KindSlot    Kind = "slot"
	KindFooter  Kind = "footer"
	KindImage   Kind = "image"
	KindLink    Kind = "link"
	KindControl Kind = "control"
	KindWidget  Kind = "widget"
)

// Node is one element of the layout tree
type Node struct {
	Kind     Kind
	ID       string
	Class    string
	Style    map[string]string
	Attrs    map[string]string
	Text     string
	Children []*Node

	// Control is set for KindControl nodes
	Control Control
}

// Walk calls fn for n and its descendants, depth first in document order. Returning
// false from fn skips the children of that node.
func (n *Node) Walk(fn func(*Node) bool) {
	if n == nil {
		return
	}
	if !fn(n) {
		return
	}
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// Find returns the first node with the given id, or nil
func (n *Node) Find(id string) *Node {
	var found *Node
	n.Walk(func(c *Node) bool {
		if found != nil {
			return false
		}
		if c.ID == id {
			found = c
			return false
		}
		return true
	})
	return found
}

// IDs returns every node id in document order, duplicates included
func (n *Node) IDs() []string {
	var ids []string
	n.Walk(func(c *Node) bool {
		if c.ID != "" {
			ids = append(ids, c.ID)
		}
		return true
	})
	return ids
}

// Widget returns the injection point for the widget key, or nil
func (n *Node) Widget(key string) *Node {
	var found *Node
	n.Walk(func(c *Node) bool {
		if found != nil {
			return false
		}
		if c.Kind == KindWidget && c.Attrs[widgetAttr] == key {
			found = c
			return false
		}
		return true
	})
	return found
}

// Clone returns a deep copy of n. Controls are shared.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := *n
	c.Style = cloneMap(n.Style)
	c.Attrs = cloneMap(n.Attrs)
	if n.Children != nil {
		c.Children = make([]*Node, len(n.Children))
		for i, child := range n.Children {
			c.Children[i] = child.Clone()
		}
	}
	return &c
}

func cloneMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func el(kind Kind, class string, children ...*Node) *Node {
	return &Node{Kind: kind, Class: class, Children: children}
}

func row(class string, children ...*Node) *Node {
	return el(KindRow, joinClass("row", class), children...)
}

func col(class string, children ...*Node) *Node {
	return el(KindCol, joinClass("col", class), children...)
}

func heading(level, text, class string) *Node {
	return &Node{Kind: KindHeading, Class: class, Text: text, Attrs: map[string]string{"level": level}}
}

func text(s, class string) *Node {
	return &Node{Kind: KindText, Class: class, Text: s}
}

func link(s, href string) *Node {
	return &Node{Kind: KindLink, Text: s, Attrs: map[string]string{"href": href, "target": "_blank"}}
}

// slot is an empty anchor populated at runtime
func slot(id string) *Node {
	return &Node{Kind: KindSlot, ID: id}
}

func control(c Control) *Node {
	return &Node{Kind: KindControl, ID: c.ControlID(), Control: c}
}

func joinClass(base, extra string) string {
	if extra == "" {
		return base
	}
	return base + " " + extra
}
