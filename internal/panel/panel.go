package panel

import (
	"math"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/drm-lab/urbanrisk/internal/table"
)

// Column names of the panel file.
const (
	ColISO3      = "ISO3"
	ColIndicator = "indicator"
	ColYear      = "year"
	ColValue     = "value"
)

// Observation is one panel row.
type Observation struct {
	ISO3      string
	Indicator Indicator
	Year      int
	Value     float64
}

// Panel is an ordered set of observations.
type Panel struct {
	Obs []Observation
}

// FromFrame validates and converts a panel frame. Unknown indicator keys are
// a schema error naming the key; rows without a value are skipped.
func FromFrame(f *table.Frame) (*Panel, error) {
	if err := f.Require(ColISO3, ColIndicator, ColYear, ColValue); err != nil {
		return nil, err
	}
	iso, _ := f.Strings(ColISO3)
	inds, _ := f.Strings(ColIndicator)
	years, _ := f.Floats(ColYear)
	vals, _ := f.Floats(ColValue)

	p := &Panel{Obs: make([]Observation, 0, f.Len())}
	for i := range iso {
		ind, err := ParseIndicator(inds[i])
		if err != nil {
			return nil, err
		}
		if math.IsNaN(vals[i]) || math.IsNaN(years[i]) {
			continue
		}
		p.Obs = append(p.Obs, Observation{ISO3: iso[i], Indicator: ind, Year: int(years[i]), Value: vals[i]})
	}
	return p, nil
}

// Frame renders the panel with the given column order: ISO3, indicator,
// year, value by default, or ISO3, year, indicator, value when yearFirst.
func (p *Panel) Frame(yearFirst bool) *table.Frame {
	n := len(p.Obs)
	iso := make([]string, n)
	inds := make([]string, n)
	years := make([]float64, n)
	vals := make([]float64, n)
	for i, o := range p.Obs {
		iso[i], inds[i], years[i], vals[i] = o.ISO3, string(o.Indicator), float64(o.Year), o.Value
	}
	cols := []*table.Column{
		table.StringColumn(ColISO3, iso),
		table.StringColumn(ColIndicator, inds),
		table.FloatColumn(ColYear, years),
		table.FloatColumn(ColValue, vals),
	}
	if yearFirst {
		cols[1], cols[2] = cols[2], cols[1]
	}
	f, err := table.New(cols...)
	if err != nil {
		panic(eris.Wrap(err, "panel: frame"))
	}
	return f
}

// Add appends an observation.
func (p *Panel) Add(iso3 string, ind Indicator, year int, value float64) {
	p.Obs = append(p.Obs, Observation{ISO3: iso3, Indicator: ind, Year: year, Value: value})
}

// Series returns the year-sorted observations of one country and indicator.
func (p *Panel) Series(iso3 string, ind Indicator) []Observation {
	var out []Observation
	for _, o := range p.Obs {
		if o.ISO3 == iso3 && o.Indicator == ind {
			out = append(out, o)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Year < out[j].Year })
	return out
}

// Entities returns the distinct ISO3 codes in first-appearance order.
func (p *Panel) Entities() []string {
	seen := make(map[string]bool)
	var out []string
	for _, o := range p.Obs {
		if !seen[o.ISO3] {
			seen[o.ISO3] = true
			out = append(out, o.ISO3)
		}
	}
	return out
}

// Has reports whether any observation exists for the country.
func (p *Panel) Has(iso3 string) bool {
	for _, o := range p.Obs {
		if o.ISO3 == iso3 {
			return true
		}
	}
	return false
}

// Sort orders observations by ISO3, year, then indicator.
func (p *Panel) Sort() {
	sort.SliceStable(p.Obs, func(i, j int) bool {
		a, b := p.Obs[i], p.Obs[j]
		if a.ISO3 != b.ISO3 {
			return a.ISO3 < b.ISO3
		}
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		return a.Indicator < b.Indicator
	})
}
