package chart

import (
	"image/color"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

// Default PNG size in pixels.
const (
	DefaultWidth  = 1200
	DefaultHeight = defaultHeight
)

// RenderPNG draws a figure as a PNG image of the given pixel size. A zero
// height uses the figure's own height.
func RenderPNG(fig *Figure, w io.Writer, width, height int) error {
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = fig.Height
	}
	if height <= 0 {
		height = DefaultHeight
	}

	plots, err := buildPlots(fig)
	if err != nil {
		return err
	}
	// vgimg renders at 72 dpi, one point per pixel.
	img := vgimg.New(vg.Points(float64(width)), vg.Points(float64(height)))
	dc := draw.New(img)
	if len(plots) == 1 {
		plots[0].Draw(dc)
	} else {
		tiles := draw.Tiles{Rows: 1, Cols: len(plots), PadX: vg.Points(12)}
		canvases := plot.Align([][]*plot.Plot{plots}, tiles, dc)
		for i, p := range plots {
			p.Draw(canvases[0][i])
		}
	}
	if _, err := (vgimg.PngCanvas{Canvas: img}).WriteTo(w); err != nil {
		return eris.Wrap(err, "chart: write png")
	}
	return nil
}

func buildPlots(fig *Figure) ([]*plot.Plot, error) {
	n := max(1, len(fig.Panels))
	for _, t := range fig.Traces {
		n = max(n, t.Panel+1)
	}
	plots := make([]*plot.Plot, n)
	for i := range plots {
		p := plot.New()
		switch {
		case i < len(fig.Panels):
			p.Title.Text = fig.Panels[i]
		case i == 0:
			p.Title.Text = fig.Title
		}
		p.Title.TextStyle.Font.Size = vg.Points(14)
		if i < len(fig.XAxis) {
			applyAxis(&p.X, fig.XAxis[i])
		}
		applyAxis(&p.Y, fig.YAxis)
		p.Add(plotter.NewGrid())
		p.Legend.Top = true
		plots[i] = p
	}

	stacks := make(map[string][]float64)
	for _, t := range fig.Traces {
		p := plots[t.Panel]
		if err := addTrace(p, t, stacks); err != nil {
			return nil, eris.Wrapf(err, "chart: trace %q", t.Name)
		}
	}

	for _, p := range plots {
		for _, x := range fig.VLines {
			if x < p.X.Min || x > p.X.Max {
				continue
			}
			l, err := plotter.NewLine(plotter.XYs{{X: x, Y: p.Y.Min}, {X: x, Y: p.Y.Max}})
			if err != nil {
				return nil, eris.Wrap(err, "chart: vertical line")
			}
			l.LineStyle.Color = color.Gray{Y: 120}
			l.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}
			p.Add(l)
		}
	}
	// Axis bounds set on the figure win over the data range.
	for i, p := range plots {
		if i < len(fig.XAxis) {
			clampAxis(&p.X, fig.XAxis[i])
		}
		clampAxis(&p.Y, fig.YAxis)
	}
	return plots, nil
}

func applyAxis(a *plot.Axis, ax Axis) {
	a.Label.Text = ax.Title
	if ax.Suffix != "" && !strings.Contains(ax.Title, ax.Suffix) {
		a.Label.Text = strings.TrimSpace(ax.Title + " (" + ax.Suffix + ")")
	}
	if ax.Log {
		a.Scale = plot.LogScale{}
		a.Tick.Marker = plot.LogTicks{Prec: -1}
	}
}

func clampAxis(a *plot.Axis, ax Axis) {
	if ax.Min != nil {
		a.Min = *ax.Min
	}
	if ax.Max != nil {
		a.Max = *ax.Max
	}
}

func addTrace(p *plot.Plot, t Trace, stacks map[string][]float64) error {
	c := parseColor(t.Color)
	switch t.Type {
	case TypeLine:
		l, err := plotter.NewLine(points(t.X, t.Y))
		if err != nil {
			return err
		}
		l.LineStyle.Color = c
		l.LineStyle.Width = vg.Points(2)
		if t.Dash != "" {
			l.LineStyle.Dashes = dashes(t.Dash)
		}
		p.Add(l)
		if t.ShowLegend {
			p.Legend.Add(t.Name, l)
		}

	case TypeScatter:
		sc, err := plotter.NewScatter(points(t.X, t.Y))
		if err != nil {
			return err
		}
		sc.GlyphStyle.Color = c
		sc.GlyphStyle.Radius = vg.Points(3)
		p.Add(sc)
		if t.ShowLegend {
			p.Legend.Add(t.Name, sc)
		}

	case TypeArea:
		base := stacks[t.Stack]
		if len(base) != len(t.Y) {
			base = make([]float64, len(t.Y))
		}
		top := make([]float64, len(t.Y))
		for i, y := range t.Y {
			top[i] = base[i] + zeroNaN(y)
		}
		stacks[t.Stack] = top
		poly, err := fill(t.X, base, top, c)
		if err != nil {
			return err
		}
		p.Add(poly)
		if t.ShowLegend {
			p.Legend.Add(t.Name, poly)
		}

	case TypeBand:
		faded := c
		faded.A = 60
		poly, err := fill(t.X, t.Lower, t.Upper, faded)
		if err != nil {
			return err
		}
		p.Add(poly)
		if t.ShowLegend {
			p.Legend.Add(t.Name, poly)
		}

	case TypeBar:
		vals := make(plotter.Values, len(t.X))
		for i, v := range t.X {
			vals[i] = zeroNaN(v)
		}
		bars, err := plotter.NewBarChart(vals, vg.Points(20))
		if err != nil {
			return err
		}
		bars.Horizontal = true
		bars.Color = c
		bars.LineStyle.Width = vg.Length(0)
		p.Add(bars)
		p.NominalY(t.Labels...)
		if len(t.Text) == len(t.X) {
			labels, err := barLabels(vals, t.Text)
			if err != nil {
				return err
			}
			p.Add(labels)
		}

	default:
		return eris.Errorf("unknown trace type %q", t.Type)
	}
	return nil
}

// points pairs x and y, skipping missing values.
func points(x, y []float64) plotter.XYs {
	out := make(plotter.XYs, 0, len(x))
	for i := range x {
		if i >= len(y) || !finite(x[i]) || !finite(y[i]) {
			continue
		}
		out = append(out, plotter.XY{X: x[i], Y: y[i]})
	}
	return out
}

// fill builds the polygon between a lower and an upper series.
func fill(x, lower, upper []float64, c color.RGBA) (*plotter.Polygon, error) {
	var ring plotter.XYs
	for i := range x {
		if finite(x[i]) && finite(upper[i]) && finite(lower[i]) {
			ring = append(ring, plotter.XY{X: x[i], Y: upper[i]})
		}
	}
	for i := len(x) - 1; i >= 0; i-- {
		if finite(x[i]) && finite(upper[i]) && finite(lower[i]) {
			ring = append(ring, plotter.XY{X: x[i], Y: lower[i]})
		}
	}
	poly, err := plotter.NewPolygon(ring)
	if err != nil {
		return nil, err
	}
	poly.Color = c
	poly.LineStyle.Width = vg.Length(0)
	return poly, nil
}

func barLabels(vals plotter.Values, text []string) (*plotter.Labels, error) {
	xys := make([]plotter.XY, len(vals))
	for i, v := range vals {
		xys[i] = plotter.XY{X: v, Y: float64(i)}
	}
	labels, err := plotter.NewLabels(plotter.XYLabels{XYs: xys, Labels: text})
	if err != nil {
		return nil, err
	}
	for i := range labels.TextStyle {
		labels.TextStyle[i].Font.Size = vg.Points(9)
	}
	labels.Offset = vg.Point{X: vg.Points(4)}
	return labels, nil
}

func dashes(style string) []vg.Length {
	if style == "dot" {
		return []vg.Length{vg.Points(1), vg.Points(3)}
	}
	return []vg.Length{vg.Points(6), vg.Points(3)}
}

func parseColor(hex string) color.RGBA {
	hex = strings.TrimPrefix(hex, "#")
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil || len(hex) != 6 {
		return color.RGBA{A: 255}
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func zeroNaN(v float64) float64 {
	if !finite(v) {
		return 0
	}
	return v
}
