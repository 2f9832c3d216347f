package chart

import (
	"sort"

	"github.com/drm-lab/urbanrisk/internal/apperr"
	"github.com/drm-lab/urbanrisk/internal/dashboard"
	"github.com/drm-lab/urbanrisk/internal/region"
	"github.com/drm-lab/urbanrisk/internal/table"
)

// Chart names.
const (
	NameUrbanSystem         = "urban_system"
	NameUrbanizationRate    = "urbanization_rate"
	NamePopulationProj      = "population_projection"
	NameGrowthRates         = "growth_rates"
	NameCitiesGrowth        = "cities_growth"
	NameBuiltUpPerCapita    = "builtup_per_capita"
	NameCitiesFloodExposure = "cities_flood_exposure"
)

// Request carries the selector values of a chart. Each builder reads the
// fields it needs and ignores the rest.
type Request struct {
	Country      string
	Mode         string
	Benchmarks   []string
	Area         string
	Metric       string
	Cities       []string
	ReturnPeriod int
	Exposure     string
	Measure      string
}

// Builder produces a figure from a snapshot.
type Builder func(s *dashboard.Snapshot, req Request) (*Figure, error)

var builders = map[string]Builder{
	NameUrbanSystem: func(s *dashboard.Snapshot, r Request) (*Figure, error) {
		return UrbanSystem(s, r.Country, r.Mode)
	},
	NameUrbanizationRate: func(s *dashboard.Snapshot, r Request) (*Figure, error) {
		return UrbanizationRate(s, r.Country, r.Benchmarks)
	},
	NamePopulationProj: func(s *dashboard.Snapshot, r Request) (*Figure, error) {
		return PopulationProjection(s, r.Country, r.Area)
	},
	NameGrowthRates: func(s *dashboard.Snapshot, r Request) (*Figure, error) {
		return GrowthRates(s, r.Country, r.Area)
	},
	NameCitiesGrowth: func(s *dashboard.Snapshot, r Request) (*Figure, error) {
		return CitiesGrowth(s, r.Country, r.Metric, r.Cities)
	},
	NameBuiltUpPerCapita: func(s *dashboard.Snapshot, r Request) (*Figure, error) {
		return BuiltUpPerCapita(s, r.Country)
	},
	NameCitiesFloodExposure: func(s *dashboard.Snapshot, r Request) (*Figure, error) {
		return CitiesFloodExposure(s, r.Country, FloodOptions{
			ReturnPeriod: r.ReturnPeriod,
			Exposure:     r.Exposure,
			Measure:      r.Measure,
			Cities:       r.Cities,
		})
	},
}

// Names lists the available charts.
func Names() []string {
	out := make([]string, 0, len(builders))
	for name := range builders {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Build runs the named chart builder.
func Build(s *dashboard.Snapshot, name string, req Request) (*Figure, error) {
	b, ok := builders[name]
	if !ok {
		return nil, apperr.Newf(apperr.KindNotFound, "unknown chart %q", name)
	}
	fig, err := b(s, req)
	if err != nil {
		return nil, err
	}
	fig.Chart = name
	return fig, nil
}

// checkCountry validates a selected country or region code.
func checkCountry(s *dashboard.Snapshot, code string) (string, error) {
	code = region.NormalizeISO3(code)
	if code == "" {
		return "", apperr.New(apperr.KindInvalid, "No country selected")
	}
	if !region.IsRegion(code) && !s.Classifier().InSSA(code) {
		return "", apperr.Newf(apperr.KindInvalid, "Unknown country %q", code)
	}
	return code, nil
}

// countryRows returns the rows of a dataset for one country, or an
// unavailable error naming the country.
func countryRows(s *dashboard.Snapshot, dataset, codeCol, code, what string) (*table.Frame, error) {
	f, err := s.Frame(dataset)
	if err != nil {
		return nil, err
	}
	if err := f.Require(codeCol); err != nil {
		return nil, err
	}
	out := f.Filter(func(r table.Row) bool { return r.Str(codeCol) == code })
	if out.Len() == 0 {
		return nil, apperr.Newf(apperr.KindUnavailable, "No %s data available for %s", what, s.Name(code))
	}
	return out, nil
}

func scale(vals []float64, k float64) []float64 {
	out := make([]float64, len(vals))
	for i, v := range vals {
		out[i] = v * k
	}
	return out
}
