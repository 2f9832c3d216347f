package chart

import (
	"github.com/drm-lab/urbanrisk/internal/apperr"
	"github.com/drm-lab/urbanrisk/internal/dashboard"
	"github.com/drm-lab/urbanrisk/internal/panel"
)

var areaColors = map[panel.Area]string{
	panel.Urban: "#2563eb",
	panel.Rural: "#10b981",
}

func parseArea(area string) (panel.Area, error) {
	switch panel.Area(area) {
	case "":
		return panel.Urban, nil
	case panel.Urban, panel.Rural:
		return panel.Area(area), nil
	}
	return "", apperr.Newf(apperr.KindInvalid, "Unknown area %q", area)
}

func seriesXY(obs []panel.Observation) (x, y []float64) {
	x = make([]float64, len(obs))
	y = make([]float64, len(obs))
	for i, o := range obs {
		x[i] = float64(o.Year)
		y[i] = o.Value
	}
	return x, y
}

// band returns the lower and upper series over the years both cover, from
// the base year on.
func band(p *panel.Panel, iso string, lower, upper panel.Indicator) (x, lo, hi []float64) {
	up := make(map[int]float64)
	for _, o := range p.Series(iso, upper) {
		up[o.Year] = o.Value
	}
	for _, o := range p.Series(iso, lower) {
		u, ok := up[o.Year]
		if !ok || o.Year < baseYear {
			continue
		}
		x = append(x, float64(o.Year))
		lo = append(lo, o.Value)
		hi = append(hi, u)
	}
	return x, lo, hi
}

func (f *Figure) addBands(p *panel.Panel, iso, color string, ind func(panel.Bound) panel.Indicator) {
	for _, b := range []struct {
		name         string
		lower, upper panel.Bound
	}{
		{"95% interval", panel.Lower95, panel.Upper95},
		{"80% interval", panel.Lower80, panel.Upper80},
	} {
		x, lo, hi := band(p, iso, ind(b.lower), ind(b.upper))
		if len(x) == 0 {
			continue
		}
		f.Traces = append(f.Traces, Trace{
			Name: b.name, Type: TypeBand, X: x, Lower: lo, Upper: hi, Color: color, ShowLegend: true,
		})
	}
}

// PopulationProjection charts the urban or rural population of a country,
// in millions, with the median projection and its 80% and 95% intervals.
func PopulationProjection(s *dashboard.Snapshot, country, area string) (*Figure, error) {
	code, err := checkCountry(s, country)
	if err != nil {
		return nil, err
	}
	a, err := parseArea(area)
	if err != nil {
		return nil, err
	}
	p, err := s.Projections()
	if err != nil {
		return nil, err
	}
	median := p.Series(code, panel.Pop(a, panel.Median))
	if len(median) == 0 {
		return nil, apperr.Newf(apperr.KindUnavailable, "No %s projection data available for %s", a, s.Name(code))
	}

	fig := &Figure{
		Title:    "Projected " + string(a) + " population of " + s.Name(code),
		Subtitle: "Median projection with 80% and 95% intervals",
		XAxis:    []Axis{{Title: "Year"}},
		YAxis:    Axis{Title: "Population (millions)", Min: floatPtr(0)},
		Height:   defaultHeight,
	}
	color := areaColors[a]
	fig.addBands(p, code, color, func(b panel.Bound) panel.Indicator { return panel.Pop(a, b) })
	x, y := seriesXY(median)
	fig.addTimeSeries("Median", color, "dash", x, y)
	fig.markProjections()
	return fig, nil
}

// GrowthRates charts historical annual growth rates of the urban or rural
// population followed by the projected median with its intervals.
func GrowthRates(s *dashboard.Snapshot, country, area string) (*Figure, error) {
	code, err := checkCountry(s, country)
	if err != nil {
		return nil, err
	}
	a, err := parseArea(area)
	if err != nil {
		return nil, err
	}
	p, err := s.GrowthRates()
	if err != nil {
		return nil, err
	}
	hist := p.Series(code, panel.Growth(a))
	proj := p.Series(code, panel.BoundGrowth(a, panel.Median))
	if len(hist) == 0 && len(proj) == 0 {
		return nil, apperr.Newf(apperr.KindUnavailable, "No %s growth data available for %s", a, s.Name(code))
	}

	fig := &Figure{
		Title:    "Annual " + string(a) + " population growth of " + s.Name(code),
		Subtitle: "Historical and projected growth rates",
		XAxis:    []Axis{{Title: "Year"}},
		YAxis:    Axis{Title: "Growth rate", Suffix: "%"},
		Height:   defaultHeight,
	}
	color := areaColors[a]
	fig.addBands(p, code, color, func(b panel.Bound) panel.Indicator { return panel.BoundGrowth(a, b) })

	var hx, hy []float64
	for _, o := range hist {
		if o.Year <= baseYear {
			hx = append(hx, float64(o.Year))
			hy = append(hy, o.Value)
		}
	}
	if len(hx) > 0 {
		fig.Traces = append(fig.Traces, Trace{Name: "Historical", Type: TypeLine, X: hx, Y: hy, Color: color, ShowLegend: true})
	}
	var px, py []float64
	for _, o := range proj {
		if o.Year >= baseYear {
			px = append(px, float64(o.Year))
			py = append(py, o.Value)
		}
	}
	if len(px) > 0 {
		fig.Traces = append(fig.Traces, Trace{Name: "Projected median", Type: TypeLine, X: px, Y: py, Color: color, Dash: "dash", ShowLegend: true})
	}
	fig.markProjections()
	return fig, nil
}
