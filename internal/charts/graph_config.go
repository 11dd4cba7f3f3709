package charts

// GraphConfig builds a single trace figure step by step:
//
//	fig := NewGraphConfig().
//		X(days).Y(cases).Type(Line).
//		Marker().Color(DefaultMarkerColor).Proceed().
//		Layout().Title("New Covid-19 Cases By Day").XAxis("Day").YAxis("New Cases").Proceed().
//		Build()
type GraphConfig struct {
	x      []string
	y      []float64
	kind   Kind
	marker *MarkerConfig
	layout *LayoutConfig
}

// MarkerConfig configures the marker of a GraphConfig
type MarkerConfig struct {
	gc    *GraphConfig
	color string
}

// LayoutConfig configures the layout of a GraphConfig
type LayoutConfig struct {
	gc    *GraphConfig
	title string
	xaxis string
	yaxis string
}

// NewGraphConfig returns a line graph config with the default marker color and the
// title "Dash Plot".
func NewGraphConfig() *GraphConfig {
	gc := &GraphConfig{kind: Line}
	gc.marker = &MarkerConfig{gc: gc, color: DefaultMarkerColor}
	gc.layout = &LayoutConfig{gc: gc, title: "Dash Plot"}
	return gc
}

func (gc *GraphConfig) X(x []string) *GraphConfig {
	gc.x = x
	return gc
}

func (gc *GraphConfig) Y(y []float64) *GraphConfig {
	gc.y = y
	return gc
}

func (gc *GraphConfig) Type(kind Kind) *GraphConfig {
	gc.kind = kind
	return gc
}

// Marker switches to marker configuration. Call Proceed to return.
func (gc *GraphConfig) Marker() *MarkerConfig {
	return gc.marker
}

// Layout switches to layout configuration. Call Proceed to return.
func (gc *GraphConfig) Layout() *LayoutConfig {
	return gc.layout
}

func (m *MarkerConfig) Color(color string) *MarkerConfig {
	m.color = color
	return m
}

func (m *MarkerConfig) Proceed() *GraphConfig {
	return m.gc
}

func (l *LayoutConfig) Title(title string) *LayoutConfig {
	l.title = title
	return l
}

func (l *LayoutConfig) XAxis(title string) *LayoutConfig {
	l.xaxis = title
	return l
}

func (l *LayoutConfig) YAxis(title string) *LayoutConfig {
	l.yaxis = title
	return l
}

func (l *LayoutConfig) Proceed() *GraphConfig {
	return l.gc
}

// Build creates the figure. An unsupported kind falls back to a line graph.
func (gc *GraphConfig) Build() *Figure {
	f, err := NewFigure(gc.kind, gc.layout.title)
	if err != nil {
		f, _ = NewFigure(Line, gc.layout.title)
	}
	f.Axes(gc.layout.xaxis, gc.layout.yaxis)
	f.Add("", gc.x, gc.y)
	f.Color(gc.marker.color)
	return f
}
