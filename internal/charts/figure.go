// Package charts builds Plotly compatible figures as JSON values.
package charts

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrUnsupportedFigure is returned by NewFigure for an unknown kind
var ErrUnsupportedFigure = errors.New("unsupported figure type")

// Kind is the type of a figure
type Kind string

const (
	Line    Kind = "line"
	Bar     Kind = "bar"
	Scatter Kind = "scatter"
	Pie     Kind = "pie"
)

const (
	DefaultMarkerColor = "#0074D9"
	DeathsColor        = "red"
	GridColor          = "#eee"
	BackgroundColor    = "white"
)

// DateLayout formats dates on the x axis
const DateLayout = "2006-01-02"

// Figure is a Plotly figure
type Figure struct {
	Data   []Trace `json:"data"`
	Layout Layout  `json:"layout"`

	kind Kind
}

// Trace is one Plotly trace. Missing y values are encoded as null so Plotly leaves a gap.
type Trace struct {
	Type          string     `json:"type"`
	Mode          string     `json:"mode,omitempty"`
	Name          string     `json:"name,omitempty"`
	X             []string   `json:"x,omitempty"`
	Y             []*float64 `json:"y,omitempty"`
	Labels        []string   `json:"labels,omitempty"`
	Values        []*float64 `json:"values,omitempty"`
	Text          []string   `json:"text,omitempty"`
	HoverTemplate string     `json:"hovertemplate,omitempty"`
	Marker        *Marker    `json:"marker,omitempty"`
}

// Marker styles a trace
type Marker struct {
	Color string `json:"color,omitempty"`
}

// Layout is the Plotly layout
type Layout struct {
	Title        Title   `json:"title"`
	XAxis        *Axis   `json:"xaxis,omitempty"`
	YAxis        *Axis   `json:"yaxis,omitempty"`
	PaperBGColor string  `json:"paper_bgcolor,omitempty"`
	PlotBGColor  string  `json:"plot_bgcolor,omitempty"`
	Legend       *Legend `json:"legend,omitempty"`
}

// Legend holds legend settings
type Legend struct {
	Title Title `json:"title"`
}

// Title holds title text
type Title struct {
	Text string `json:"text"`
}

// Axis holds axis settings
type Axis struct {
	Title     Title  `json:"title"`
	GridColor string `json:"gridcolor,omitempty"`
}

// NewFigure creates an empty styled figure: white backgrounds and light grid lines.
func NewFigure(kind Kind, title string) (*Figure, error) {
	switch kind {
	case Line, Bar, Scatter, Pie:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFigure, kind)
	}

	f := &Figure{
		kind: kind,
		Layout: Layout{
			Title:        Title{Text: title},
			PaperBGColor: BackgroundColor,
			PlotBGColor:  BackgroundColor,
		},
	}
	if kind != Pie {
		f.Layout.XAxis = &Axis{GridColor: GridColor}
		f.Layout.YAxis = &Axis{GridColor: GridColor}
	}
	return f, nil
}

// Kind returns the figure kind
func (f *Figure) Kind() Kind {
	return f.kind
}

// Axes sets the axis titles. It has no effect on pie charts.
func (f *Figure) Axes(x, y string) *Figure {
	if f.Layout.XAxis != nil {
		f.Layout.XAxis.Title.Text = x
	}
	if f.Layout.YAxis != nil {
		f.Layout.YAxis.Title.Text = y
	}
	return f
}

// Add appends one trace of the figure kind. For pie charts x are the labels and y the values.
func (f *Figure) Add(name string, x []string, y []float64) *Trace {
	t := Trace{Name: name}
	switch f.kind {
	case Pie:
		t.Type = "pie"
		t.Labels = x
		t.Values = Nullable(y)
	case Line:
		t.Type = "scatter"
		t.Mode = "lines"
		t.X = x
		t.Y = Nullable(y)
	case Scatter:
		t.Type = "scatter"
		t.Mode = "markers"
		t.X = x
		t.Y = Nullable(y)
	default:
		t.Type = string(f.kind)
		t.X = x
		t.Y = Nullable(y)
	}
	f.Data = append(f.Data, t)
	return &f.Data[len(f.Data)-1]
}

// Color sets the marker color of every trace
func (f *Figure) Color(color string) *Figure {
	for i := range f.Data {
		f.Data[i].Marker = &Marker{Color: color}
	}
	return f
}

// Legend sets the legend title
func (f *Figure) Legend(title string) *Figure {
	f.Layout.Legend = &Legend{Title: Title{Text: title}}
	return f
}

// AddGrouped appends one trace per distinct group value, in order of first appearance.
func AddGrouped[T any](f *Figure, rows []T, group func(T) string, x func(T) string, y func(T) float64) {
	var order []string
	xs := make(map[string][]string)
	ys := make(map[string][]float64)

	for _, row := range rows {
		g := group(row)
		if _, ok := xs[g]; !ok {
			order = append(order, g)
			xs[g] = []string{}
		}
		xs[g] = append(xs[g], x(row))
		ys[g] = append(ys[g], y(row))
	}

	for _, g := range order {
		f.Add(g, xs[g], ys[g])
	}
}

// Nullable converts NaN and infinite values to nil
func Nullable(values []float64) []*float64 {
	out := make([]*float64, len(values))
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		v := v
		out[i] = &v
	}
	return out
}

// FormatDate formats t for an x axis
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// Output is the content of one anchor: a figure, a text prompt, or nothing.
type Output struct {
	Figure *Figure `json:"figure,omitempty"`
	Text   string  `json:"text,omitempty"`
}

// FigureOutput wraps f as an anchor output
func FigureOutput(f *Figure) Output {
	return Output{Figure: f}
}

// TextBox returns a centered text prompt output
func TextBox(text string) Output {
	return Output{Text: text}
}

// Empty returns an output clearing the anchor
func Empty() Output {
	return Output{}
}

// IsEmpty reports whether o clears its anchor
func (o Output) IsEmpty() bool {
	return o.Figure == nil && o.Text == ""
}
