package chart

import (
	"math"
	"strconv"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/drm-lab/urbanrisk/internal/apperr"
	"github.com/drm-lab/urbanrisk/internal/dashboard"
	"github.com/drm-lab/urbanrisk/internal/metric"
	"github.com/drm-lab/urbanrisk/internal/region"
	"github.com/drm-lab/urbanrisk/internal/table"
)

// City chart selectors.
const (
	MetricBuiltUp    = "BU"
	MetricPopulation = "POP"

	ExposurePopulation = "pop"
	ExposureBuiltUp    = "built"

	MeasureAbsolute = "absolute"
	MeasureRelative = "relative"

	defaultReturnPeriod = 100
)

const (
	colCityName = "Agglomeration_Name"
	colCityISO3 = "ISO3"
	colPop      = "africapolis_pop"
	colBuiltKm2 = "worldpop_built_km2"
	colBuiltPC  = "buppercapita"
	colSize     = "size_category"

	barColor  = "#295e84"
	cagrColor = "#e67e22"
)

// Growth periods of the city charts. Built-up area comes from the 2015 and
// 2020 WorldPop layers; population runs to the latest Africapolis year.
var (
	builtPeriod = [2]int{2015, 2020}
	popPeriod   = [2]int{2020, 2025}
)

var sizeColors = map[string]string{
	metric.Size10M:     "#7f1d1d",
	metric.Size5To10M:  "#b91c1c",
	metric.Size1To5M:   "#ea580c",
	metric.Size500kTo1: "#f59e0b",
	metric.Size300k:    "#84cc16",
	metric.SizeSmall:   "#10b981",
}

var printer = message.NewPrinter(language.English)

// codeMatcher reports whether an ISO3 code belongs to a country or region
// selection.
func codeMatcher(s *dashboard.Snapshot, code string) func(string) bool {
	if !region.IsRegion(code) {
		return func(iso string) bool { return iso == code }
	}
	members := make(map[string]bool)
	for _, m := range s.Classifier().Members(region.Region(code)) {
		members[m] = true
	}
	return func(iso string) bool { return members[iso] }
}

// cityRows returns the rows of a city dataset for a country or region.
func cityRows(s *dashboard.Snapshot, dataset, code string, cols ...string) (*table.Frame, error) {
	f, err := s.Frame(dataset)
	if err != nil {
		return nil, err
	}
	if err := f.Require(append([]string{colCityName, colCityISO3}, cols...)...); err != nil {
		return nil, err
	}
	match := codeMatcher(s, code)
	out := f.Filter(func(r table.Row) bool { return match(r.Str(colCityISO3)) })
	if out.Len() == 0 {
		return nil, apperr.Newf(apperr.KindUnavailable, "No city data available for %s", s.Name(code))
	}
	return out, nil
}

// selectCities keeps the named cities, ordered by ascending sort column so
// the largest city ends up at the top of a horizontal bar chart.
func selectCities(f *table.Frame, cities []string, sortCol string) (*table.Frame, error) {
	if len(cities) == 0 {
		return nil, apperr.New(apperr.KindInvalid, "Select at least one city")
	}
	want := make(map[string]bool, len(cities))
	for _, c := range cities {
		want[normalizeName(c)] = true
	}
	out := f.Filter(func(r table.Row) bool { return want[normalizeName(r.Str(colCityName))] })
	if out.Len() == 0 {
		return nil, apperr.New(apperr.KindUnavailable, "None of the selected cities have data")
	}
	return out.SortBy(sortCol)
}

func barHeight(n int) int {
	return max(400, 60*n)
}

// cagrBars converts growth fractions to percent bars; missing rates draw as
// zero-length bars labelled N/A.
func cagrBars(rates []float64) ([]float64, []string) {
	vals := make([]float64, len(rates))
	text := make([]string, len(rates))
	for i, r := range rates {
		if math.IsNaN(r) || math.IsInf(r, 0) {
			text[i] = "N/A"
			continue
		}
		vals[i] = r * 100
		text[i] = printer.Sprintf("%.2f%%", vals[i])
	}
	return vals, text
}

// CitiesGrowth charts the latest built-up area (BU) or population (POP) of
// the selected cities next to its annual growth rate.
func CitiesGrowth(s *dashboard.Snapshot, country, metricName string, cities []string) (*Figure, error) {
	code, err := checkCountry(s, country)
	if err != nil {
		return nil, err
	}
	if metricName == "" {
		metricName = MetricBuiltUp
	}

	var (
		valueCol, cagrCol, valueTitle string
		period                        [2]int
		format                        func(float64) string
	)
	switch metricName {
	case MetricBuiltUp:
		period = builtPeriod
		valueCol = metric.YearColumn(colBuiltKm2, period[1])
		cagrCol = metric.CAGRColumn("worldpop_built", period[0], period[1])
		valueTitle = "Built-up area (km²), " + strconv.Itoa(period[1])
		format = func(v float64) string { return printer.Sprintf("%.1f km²", v) }
	case MetricPopulation:
		period = popPeriod
		valueCol = metric.YearColumn(colPop, period[1])
		cagrCol = metric.CAGRColumn(colPop, period[0], period[1])
		valueTitle = "Population, " + strconv.Itoa(period[1])
		format = func(v float64) string { return printer.Sprintf("%d", int64(math.Round(v))) }
	default:
		return nil, apperr.Newf(apperr.KindInvalid, "Unknown metric %q", metricName)
	}

	sortCol := metric.YearColumn(colPop, popPeriod[1])
	rows, err := cityRows(s, dashboard.DatasetCities, code, valueCol, cagrCol, sortCol)
	if err != nil {
		return nil, err
	}
	if rows, err = selectCities(rows, cities, sortCol); err != nil {
		return nil, err
	}

	names, _ := rows.Strings(colCityName)
	values, _ := rows.Floats(valueCol)
	rates, _ := rows.Floats(cagrCol)
	text := make([]string, len(values))
	for i, v := range values {
		if math.IsNaN(v) {
			text[i] = "N/A"
			continue
		}
		text[i] = format(v)
	}
	cagr, cagrText := cagrBars(rates)

	growthTitle := "Annual growth " + strconv.Itoa(period[0]) + "–" + strconv.Itoa(period[1]) + " (%)"
	return &Figure{
		Title:    "City growth in " + s.Name(code),
		Subtitle: valueTitle,
		Panels:   []string{valueTitle, growthTitle},
		Traces: []Trace{
			{Name: valueTitle, Type: TypeBar, Labels: names, X: values, Text: text, Color: barColor},
			{Name: growthTitle, Type: TypeBar, Labels: names, X: cagr, Text: cagrText, Color: cagrColor, Panel: 1},
		},
		XAxis:  []Axis{{Title: valueTitle, Min: floatPtr(0)}, {Title: growthTitle, Suffix: "%"}},
		Height: barHeight(len(names)),
	}, nil
}

// BuiltUpPerCapita plots each city's population against its built-up area
// per person, coloured by size class.
func BuiltUpPerCapita(s *dashboard.Snapshot, country string) (*Figure, error) {
	code, err := checkCountry(s, country)
	if err != nil {
		return nil, err
	}
	year := popPeriod[1]
	popCol := metric.YearColumn(colPop, year)
	pcCol := metric.YearColumn(colBuiltPC, year)
	sizeCol := metric.YearColumn(colSize, year)
	rows, err := cityRows(s, dashboard.DatasetCities, code, popCol, pcCol)
	if err != nil {
		return nil, err
	}
	rows = rows.Filter(func(r table.Row) bool {
		p, v := r.Num(popCol), r.Num(pcCol)
		return p > 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
	})
	if rows.Len() == 0 {
		return nil, apperr.Newf(apperr.KindUnavailable, "No built-up per capita data available for %s", s.Name(code))
	}

	fig := &Figure{
		Title:    "Built-up area per capita in " + s.Name(code) + ", " + strconv.Itoa(year),
		Subtitle: "Each point is a city",
		XAxis:    []Axis{{Title: "Population", Log: true, Min: floatPtr(1e4)}},
		YAxis:    Axis{Title: "Built-up area per capita (m²)", Min: floatPtr(0)},
		Height:   defaultHeight,
	}
	for _, size := range metric.SizeCategories {
		part := rows.Filter(func(r table.Row) bool {
			cat := r.Str(sizeCol)
			if cat == "" {
				cat = metric.SizeCategory(r.Num(popCol))
			}
			return cat == size
		})
		if part.Len() == 0 {
			continue
		}
		x, _ := part.Floats(popCol)
		y, _ := part.Floats(pcCol)
		names, _ := part.Strings(colCityName)
		fig.Traces = append(fig.Traces, Trace{
			Name: size, Type: TypeScatter, X: x, Y: y, Text: names, Color: sizeColors[size], ShowLegend: true,
		})
	}
	return fig, nil
}

// FloodOptions selects the flood exposure view.
type FloodOptions struct {
	ReturnPeriod int
	Exposure     string
	Measure      string
	Cities       []string
}

func (o FloodOptions) withDefaults() FloodOptions {
	if o.ReturnPeriod == 0 {
		o.ReturnPeriod = defaultReturnPeriod
	}
	if o.Exposure == "" {
		o.Exposure = ExposureBuiltUp
	}
	if o.Measure == "" {
		o.Measure = MeasureAbsolute
	}
	return o
}

// floodColumns names the value and growth columns of a flood view.
func floodColumns(o FloodOptions) (value, cagr, title string, period [2]int, err error) {
	rp := "_rp" + strconv.Itoa(o.ReturnPeriod)
	var base, prefix string
	switch o.Exposure {
	case ExposurePopulation:
		period = popPeriod
		prefix = "pop_ftm3_fluvial_pluvial_flood"
		if o.Measure == MeasureRelative {
			base, title = "worldpop_population_ftm_share", "Share of population exposed (%)"
		} else {
			base, title = "worldpop_population_ftm_total", "Population exposed"
		}
	case ExposureBuiltUp:
		period = builtPeriod
		prefix = "built_ftm3_fluvial_pluvial_flood"
		if o.Measure == MeasureRelative {
			base, title = "worldpop_built_surface_ftm_share", "Share of built-up area exposed (%)"
		} else {
			base, title = "worldpop_built_surface_ftm_km2", "Built-up area exposed (km²)"
		}
	default:
		return "", "", "", period, apperr.Newf(apperr.KindInvalid, "Unknown exposure %q", o.Exposure)
	}
	if o.Measure != MeasureAbsolute && o.Measure != MeasureRelative {
		return "", "", "", period, apperr.Newf(apperr.KindInvalid, "Unknown measure %q", o.Measure)
	}
	value = metric.YearColumn(base+rp, period[1])
	cagr = metric.CAGRColumn(prefix+rp, period[0], period[1])
	return value, cagr, title, period, nil
}

// CitiesFloodExposure charts the flood exposure of the selected cities for
// one return period next to the growth of the exposed quantity.
func CitiesFloodExposure(s *dashboard.Snapshot, country string, opts FloodOptions) (*Figure, error) {
	code, err := checkCountry(s, country)
	if err != nil {
		return nil, err
	}
	opts = opts.withDefaults()
	valueCol, cagrCol, title, period, err := floodColumns(opts)
	if err != nil {
		return nil, err
	}

	sortCol := metric.YearColumn(colPop, popPeriod[0])
	rows, err := cityRows(s, dashboard.DatasetCityFlood, code, sortCol)
	if err != nil {
		return nil, err
	}
	if !rows.Has(valueCol) || !rows.Has(cagrCol) {
		return nil, apperr.New(apperr.KindUnavailable, "Data not available for selected flood type and return period")
	}
	if rows, err = selectCities(rows, opts.Cities, sortCol); err != nil {
		return nil, err
	}

	names, _ := rows.Strings(colCityName)
	values, _ := rows.Floats(valueCol)
	text := make([]string, len(values))
	for i, v := range values {
		switch {
		case math.IsNaN(v):
			text[i] = "N/A"
		case opts.Measure == MeasureRelative:
			values[i] = v * 100
			text[i] = printer.Sprintf("%.1f%%", values[i])
		case opts.Exposure == ExposurePopulation:
			text[i] = printer.Sprintf("%d", int64(math.Round(v)))
		default:
			text[i] = printer.Sprintf("%.2f km²", v)
		}
	}
	rates, _ := rows.Floats(cagrCol)
	cagr, cagrText := cagrBars(rates)

	growthTitle := "Annual growth " + strconv.Itoa(period[0]) + "–" + strconv.Itoa(period[1]) + " (%)"
	return &Figure{
		Title:    "Flood exposure in " + s.Name(code),
		Subtitle: printer.Sprintf("Fluvial and pluvial flooding, 1-in-%d year return period", opts.ReturnPeriod),
		Panels:   []string{title, growthTitle},
		Traces: []Trace{
			{Name: title, Type: TypeBar, Labels: names, X: values, Text: text, Color: barColor},
			{Name: growthTitle, Type: TypeBar, Labels: names, X: cagr, Text: cagrText, Color: cagrColor, Panel: 1},
		},
		XAxis:  []Axis{{Title: title, Min: floatPtr(0)}, {Title: growthTitle, Suffix: "%"}},
		Height: barHeight(len(names)),
	}, nil
}
