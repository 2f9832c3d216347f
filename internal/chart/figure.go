// Package chart builds dashboard figures from a dashboard snapshot and
// renders them as JSON or PNG.
package chart

import (
	"math"
	"strconv"
)

// Trace types.
const (
	TypeLine    = "line"
	TypeArea    = "area"
	TypeBar     = "bar"
	TypeScatter = "scatter"
	TypeBand    = "band"
)

// Values is a numeric series; missing values encode as JSON null.
type Values []float64

// MarshalJSON implements json.Marshaler.
func (v Values) MarshalJSON() ([]byte, error) {
	if v == nil {
		return []byte("null"), nil
	}
	b := make([]byte, 0, 8*len(v)+2)
	b = append(b, '[')
	for i, x := range v {
		if i > 0 {
			b = append(b, ',')
		}
		if math.IsNaN(x) || math.IsInf(x, 0) {
			b = append(b, "null"...)
			continue
		}
		b = strconv.AppendFloat(b, x, 'f', -1, 64)
	}
	return append(b, ']'), nil
}

// Trace is one series of a figure. Line, area and scatter traces use X and
// Y. Bar traces are horizontal: Labels name the bars and X holds their
// lengths. Band traces fill between Lower and Upper over X.
type Trace struct {
	Name       string   `json:"name"`
	Type       string   `json:"type"`
	X          Values   `json:"x,omitempty"`
	Y          Values   `json:"y,omitempty"`
	Lower      Values   `json:"lower,omitempty"`
	Upper      Values   `json:"upper,omitempty"`
	Labels     []string `json:"labels,omitempty"`
	Text       []string `json:"text,omitempty"`
	Color      string   `json:"color,omitempty"`
	Dash       string   `json:"dash,omitempty"`
	Stack      string   `json:"stack,omitempty"`
	Panel      int      `json:"panel,omitempty"`
	ShowLegend bool     `json:"show_legend"`
}

// Axis describes one axis.
type Axis struct {
	Title  string   `json:"title,omitempty"`
	Min    *float64 `json:"min,omitempty"`
	Max    *float64 `json:"max,omitempty"`
	Log    bool     `json:"log,omitempty"`
	Suffix string   `json:"suffix,omitempty"`
}

// Annotation is a text label at a data position.
type Annotation struct {
	X    float64 `json:"x"`
	Text string  `json:"text"`
}

// Figure is a renderer-neutral chart description.
type Figure struct {
	Chart       string       `json:"chart"`
	Title       string       `json:"title"`
	Subtitle    string       `json:"subtitle"`
	Traces      []Trace      `json:"traces"`
	Panels      []string     `json:"panels,omitempty"`
	XAxis       []Axis       `json:"x_axis"`
	YAxis       Axis         `json:"y_axis"`
	VLines      []float64    `json:"vlines,omitempty"`
	Annotations []Annotation `json:"annotations,omitempty"`
	Height      int          `json:"height"`
}

func floatPtr(v float64) *float64 { return &v }

// Historical data runs up to the base year; projections start there.
const (
	baseYear      = 2025
	defaultHeight = 600
)

// splitYears divides a year series into historical (<= base) and projected
// (>= base) parts; the base year appears in both so the lines join.
func splitYears(years, vals []float64) (hx, hy, px, py []float64) {
	for i, y := range years {
		if y <= baseYear {
			hx = append(hx, y)
			hy = append(hy, vals[i])
		}
		if y >= baseYear {
			px = append(px, y)
			py = append(py, vals[i])
		}
	}
	return hx, hy, px, py
}

// addTimeSeries appends a solid historical trace and a dashed projected
// trace for the same series.
func (f *Figure) addTimeSeries(name, color, projDash string, years, vals []float64) {
	hx, hy, px, py := splitYears(years, vals)
	if len(hx) > 0 {
		f.Traces = append(f.Traces, Trace{Name: name, Type: TypeLine, X: hx, Y: hy, Color: color, ShowLegend: true})
	}
	if len(px) > 0 {
		f.Traces = append(f.Traces, Trace{Name: name, Type: TypeLine, X: px, Y: py, Color: color, Dash: projDash, ShowLegend: len(hx) == 0})
	}
}

func (f *Figure) markProjections() {
	f.VLines = append(f.VLines, baseYear)
	f.Annotations = append(f.Annotations,
		Annotation{X: baseYear - 1, Text: "Historical"},
		Annotation{X: baseYear + 1, Text: "Projections"},
	)
}
