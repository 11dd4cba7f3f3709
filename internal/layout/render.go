package layout

import (
	"io"
	"sort"
	"strconv"
	"strings"

	g "maragu.dev/gomponents"
	h "maragu.dev/gomponents/html"
)

// Stylesheet and script dependencies of the page
const (
	BootstrapCSS = "https://cdn.jsdelivr.net/npm/bootstrap@5.0.2/dist/css/bootstrap.min.css"
	PlotlyJS     = "https://cdn.plot.ly/plotly-2.27.0.min.js"
)

// Page describes the HTML document around the layout tree
type Page struct {
	Title string
	Root  *Node

	// StaticPrefix is the URL prefix of the embedded assets. Default: /static
	StaticPrefix string

	// CallbackPrefix is the URL prefix of the callback API, handed to the page script.
	// Default: /api/callbacks
	CallbackPrefix string
}

// Render writes the full HTML document for page
func Render(w io.Writer, page Page) error {
	return Document(page).Render(w)
}

// Document returns the HTML document for page
func Document(page Page) g.Node {
	title := page.Title
	if title == "" {
		title = Title
	}
	static := strings.TrimSuffix(page.StaticPrefix, "/")
	if static == "" {
		static = "/static"
	}
	callbacks := page.CallbackPrefix
	if callbacks == "" {
		callbacks = "/api/callbacks"
	}

	return h.Doctype(
		h.HTML(h.Lang("en"),
			h.Head(
				h.Meta(h.Charset("utf-8")),
				h.Meta(h.Name("viewport"), h.Content("width=device-width, initial-scale=1")),
				h.TitleEl(g.Text(title)),
				h.Link(h.Rel("stylesheet"), h.Href(BootstrapCSS)),
				h.Link(h.Rel("stylesheet"), h.Href(static+"/dashboard.css")),
				h.Script(h.Src(PlotlyJS)),
			),
			h.Body(h.Data("callbacks", callbacks),
				NodeHTML(page.Root),
				h.Script(h.Src(static+"/dashboard.js"), h.Defer()),
			),
		),
	)
}

// NodeHTML renders one layout node and its children
func NodeHTML(n *Node) g.Node {
	if n == nil {
		return g.Group{}
	}

	attrs := commonAttrs(n)
	children := make([]g.Node, 0, len(n.Children))
	for _, c := range n.Children {
		children = append(children, NodeHTML(c))
	}

	switch n.Kind {
	case KindPage:
		return h.Main(append(attrs, children...)...)
	case KindNavbar:
		var brand g.Node = g.Group{}
		for _, c := range n.Children {
			if c.Kind == KindBrand {
				brand = NodeHTML(c)
				break
			}
		}
		return h.Nav(append(attrs,
			h.Div(h.Class("container-fluid"), brand, h.Ul(h.Class("navbar-nav ms-auto"), g.Group(navItems(n)))),
		)...)
	case KindBrand:
		return h.A(append(attrs, h.Class("navbar-brand d-flex align-items-center"), h.Href("#"), g.Group(children), h.Span(g.Text(n.Text)))...)
	case KindNavItem:
		return h.Li(h.Class("nav-item"), h.A(h.Class("nav-link"), h.Href(n.Attrs["href"]), g.Text(n.Text)))
	case KindHeading:
		return g.El("h"+headingLevel(n), append(attrs, g.Text(n.Text))...)
	case KindText:
		return h.P(append(attrs, g.Text(n.Text))...)
	case KindLink:
		return h.A(append(attrs, g.Text(n.Text))...)
	case KindImage:
		return h.Img(attrs...)
	case KindFooter:
		return h.Footer(append(attrs, children...)...)
	case KindSlot:
		return h.Div(append(attrs, h.Data("anchor", n.ID))...)
	case KindControl:
		return controlHTML(n.Control)
	}
	return h.Div(append(attrs, children...)...)
}

func navItems(n *Node) []g.Node {
	var items []g.Node
	for _, c := range n.Children {
		if c.Kind == KindNavItem {
			items = append(items, NodeHTML(c))
		}
	}
	return items
}

func commonAttrs(n *Node) []g.Node {
	var attrs []g.Node
	if n.ID != "" {
		attrs = append(attrs, h.ID(n.ID))
	}
	if n.Class != "" {
		attrs = append(attrs, h.Class(n.Class))
	}
	if style := styleString(n.Style); style != "" {
		attrs = append(attrs, h.StyleAttr(style))
	}
	for _, k := range sortedKeys(n.Attrs) {
		if k == "level" {
			continue
		}
		attrs = append(attrs, g.Attr(k, n.Attrs[k]))
	}
	return attrs
}

func headingLevel(n *Node) string {
	level, err := strconv.Atoi(n.Attrs["level"])
	if err != nil || level < 1 || level > 6 {
		return "1"
	}
	return strconv.Itoa(level)
}

func styleString(style map[string]string) string {
	if len(style) == 0 {
		return ""
	}
	parts := make([]string, 0, len(style))
	for _, k := range sortedKeys(style) {
		parts = append(parts, k+": "+style[k])
	}
	return strings.Join(parts, "; ")
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func controlHTML(c Control) g.Node {
	if absent(c) {
		return g.Group{}
	}
	switch c := c.(type) {
	case *Dropdown:
		return dropdownHTML(c)
	case *DatePickerRange:
		return datePickerHTML(c)
	case *Checklist:
		return checklistHTML(c)
	case *RadioItems:
		return radioHTML(c)
	}
	return h.Div(h.ID(c.ControlID()), h.Data("control", string(c.ControlType())))
}

func dropdownHTML(d *Dropdown) g.Node {
	options := make([]g.Node, 0, len(d.Options))
	for _, o := range d.Options {
		options = append(options, h.Option(h.Value(o.Value), g.Text(o.Label), g.If(d.Selected(o.Value), h.Selected())))
	}
	return h.Select(
		h.ID(d.ID),
		h.Class(joinClass("form-select", d.Class)),
		h.Data("control", string(ControlDropdown)),
		g.If(d.Multi, h.Multiple()),
		g.Group(options),
	)
}

func datePickerHTML(d *DatePickerRange) g.Node {
	const layout = "2006-01-02"
	return h.Div(
		h.ID(d.ID),
		h.Class("d-inline-flex gap-2 align-items-center"),
		h.Data("control", string(ControlDatePickerRange)),
		h.Data("display-format", d.DisplayFormat),
		h.Input(h.Type("date"), h.Name("start_date"), h.Class("form-control"),
			h.Min(d.Min.Format(layout)), h.Max(d.Max.Format(layout)), h.Value(d.Start.Format(layout))),
		h.Span(g.Text("to")),
		h.Input(h.Type("date"), h.Name("end_date"), h.Class("form-control"),
			h.Min(d.Min.Format(layout)), h.Max(d.Max.Format(layout)), h.Value(d.End.Format(layout))),
	)
}

func checklistHTML(c *Checklist) g.Node {
	class := "form-check form-check-inline"
	if c.Switch {
		class += " form-switch"
	}
	items := make([]g.Node, 0, len(c.Options))
	for i, o := range c.Options {
		id := c.ID + "-" + strconv.Itoa(i)
		items = append(items, h.Div(h.Class(class),
			h.Input(h.Type("checkbox"), h.Class("form-check-input"), h.ID(id), h.Value(o.Value), g.If(c.Checked(o.Value), h.Checked())),
			h.Label(h.Class("form-check-label"), h.For(id), g.Text(o.Label)),
		))
	}
	return h.Div(h.ID(c.ID), h.Class("d-inline-block ms-3"), h.Data("control", string(ControlChecklist)), g.Group(items))
}

func radioHTML(r *RadioItems) g.Node {
	class := "form-check"
	if r.Inline {
		class += " form-check-inline"
	}
	items := make([]g.Node, 0, len(r.Options))
	for i, o := range r.Options {
		id := r.ID + "-" + strconv.Itoa(i)
		items = append(items, h.Div(h.Class(class),
			h.Input(h.Type("radio"), h.Class("form-check-input"), h.Name(r.ID), h.ID(id), h.Value(o.Value), g.If(o.Value == r.Value, h.Checked())),
			h.Label(h.Class("form-check-label"), h.For(id), g.Text(o.Label)),
		))
	}
	return h.Div(h.ID(r.ID), h.Data("control", string(ControlRadioItems)), g.Group(items))
}
