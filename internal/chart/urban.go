package chart

import (
	"github.com/drm-lab/urbanrisk/internal/apperr"
	"github.com/drm-lab/urbanrisk/internal/dashboard"
	"github.com/drm-lab/urbanrisk/internal/region"
	"github.com/drm-lab/urbanrisk/internal/table"
)

// Urban system display modes.
const (
	ModeAbsolute  = "absolute"
	ModeRelative1 = "relative_1"
	ModeRelative2 = "relative_2"
)

// Level 1 categories, drawn in this order.
var urbanCategories = []string{"Cities", "Towns", "Rural"}

var categoryColors = map[string]string{
	"Cities": "#2563eb",
	"Towns":  "#f59e0b",
	"Rural":  "#10b981",
}

const urbanizationColor = "#295e84"

var regionColors = map[string]string{
	string(region.SSA): "#34495e",
	string(region.AFE): "#8e44ad",
	string(region.AFW): "#d35400",
}

var benchmarkPalette = []string{
	"#e74c3c", "#f39c12", "#27ae60", "#3498db",
	"#9b59b6", "#1abc9c", "#34495e", "#e67e22",
}

// UrbanSystem charts the Cities, Towns and Rural population of a country
// or region. Mode absolute plots persons, relative_1 plots each category's
// share and relative_2 stacks the shares as percentages.
func UrbanSystem(s *dashboard.Snapshot, country, mode string) (*Figure, error) {
	code, err := checkCountry(s, country)
	if err != nil {
		return nil, err
	}
	if mode == "" {
		mode = ModeAbsolute
	}
	var value string
	switch mode {
	case ModeAbsolute:
		value = "Pop"
	case ModeRelative1, ModeRelative2:
		value = "Pop_rel"
	default:
		return nil, apperr.Newf(apperr.KindInvalid, "Unknown display mode %q", mode)
	}

	rows, err := countryRows(s, dashboard.DatasetUrbanSystem, "ISO3_Code", code, "urban system")
	if err != nil {
		return nil, err
	}
	if err := rows.Require("Category", "Year", value); err != nil {
		return nil, err
	}
	if rows, err = rows.SortBy("Year"); err != nil {
		return nil, err
	}

	fig := &Figure{
		Title:  "Urban system of " + s.Name(code),
		XAxis:  []Axis{{Title: "Year"}},
		Height: defaultHeight,
	}
	if mode == ModeRelative2 {
		return stackedShares(fig, s, code, rows)
	}

	if mode == ModeAbsolute {
		fig.Subtitle = "Population by degree of urbanisation"
		fig.YAxis = Axis{Title: "Population"}
	} else {
		fig.Subtitle = "Share of population by degree of urbanisation"
		fig.YAxis = Axis{Title: "Share of population", Min: floatPtr(0), Max: floatPtr(1)}
	}
	for _, cat := range urbanCategories {
		part := rows.Filter(func(r table.Row) bool { return r.Str("Category") == cat })
		if part.Len() == 0 {
			continue
		}
		years, _ := part.Floats("Year")
		vals, _ := part.Floats(value)
		fig.addTimeSeries(cat, categoryColors[cat], "dash", years, vals)
	}
	fig.markProjections()
	return fig, nil
}

func stackedShares(fig *Figure, s *dashboard.Snapshot, code string, rows *table.Frame) (*Figure, error) {
	wide, err := table.Pivot(rows, table.PivotOptions{
		Index:   []string{"Year"},
		Columns: []string{"Category"},
		Values:  []string{"Pop_rel"},
		Name:    func(_ string, keys []string) string { return keys[0] },
	})
	if err != nil {
		return nil, err
	}
	for _, cat := range urbanCategories {
		if !wide.Has(cat) {
			return nil, apperr.Newf(apperr.KindUnavailable, "No %s data available for %s", cat, s.Name(code))
		}
	}
	if wide, err = wide.SortBy("Year"); err != nil {
		return nil, err
	}
	years, _ := wide.Floats("Year")

	// Rural is drawn first so that it sits at the bottom of the stack.
	for i := len(urbanCategories) - 1; i >= 0; i-- {
		cat := urbanCategories[i]
		vals, _ := wide.Floats(cat)
		fig.Traces = append(fig.Traces, Trace{
			Name:       cat,
			Type:       TypeArea,
			X:          years,
			Y:          scale(vals, 100),
			Color:      categoryColors[cat],
			Stack:      "urban_system",
			ShowLegend: true,
		})
	}
	fig.Subtitle = "Share of population by degree of urbanisation"
	fig.YAxis = Axis{Title: "Share of population", Min: floatPtr(0), Max: floatPtr(100), Suffix: "%"}
	fig.markProjections()
	return fig, nil
}

// UrbanizationRate charts the national-definition urbanization rate of a
// country with optional benchmark countries and regions. Benchmarks with no
// data are skipped.
func UrbanizationRate(s *dashboard.Snapshot, country string, benchmarks []string) (*Figure, error) {
	code, err := checkCountry(s, country)
	if err != nil {
		return nil, err
	}
	all, err := s.Frame(dashboard.DatasetUrbanization)
	if err != nil {
		return nil, err
	}
	if err := all.Require("ISO3_Code", "Year", "Urbanization_Rate"); err != nil {
		return nil, err
	}

	series := func(c string) (years, rate []float64) {
		rows := all.Filter(func(r table.Row) bool { return r.Str("ISO3_Code") == c })
		rows, _ = rows.SortBy("Year")
		years, _ = rows.Floats("Year")
		vals, _ := rows.Floats("Urbanization_Rate")
		return years, scale(vals, 100)
	}

	years, rate := series(code)
	if len(years) == 0 {
		return nil, apperr.Newf(apperr.KindUnavailable, "No urbanization data available for %s", s.Name(code))
	}
	fig := &Figure{
		Title:    "Urbanization rate of " + s.Name(code),
		Subtitle: "Urban population share, national definitions",
		XAxis:    []Axis{{Title: "Year"}},
		YAxis:    Axis{Title: "Urbanization rate", Min: floatPtr(0), Suffix: "%"},
		Height:   defaultHeight,
	}
	fig.addTimeSeries(s.Name(code), urbanizationColor, "dash", years, rate)

	next := 0
	seen := map[string]bool{code: true}
	for _, b := range benchmarks {
		b = region.NormalizeISO3(b)
		if b == "" || seen[b] {
			continue
		}
		seen[b] = true
		years, rate := series(b)
		if len(years) == 0 {
			continue
		}
		color, ok := regionColors[b]
		if !ok {
			color = benchmarkPalette[next%len(benchmarkPalette)]
			next++
		}
		fig.addTimeSeries(s.Name(b), color, "dot", years, rate)
	}
	fig.markProjections()
	return fig, nil
}
