package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/floats"

	"github.com/drm-lab/urbanrisk/internal/aggregate"
	"github.com/drm-lab/urbanrisk/internal/apperr"
	"github.com/drm-lab/urbanrisk/internal/metric"
	"github.com/drm-lab/urbanrisk/internal/table"
)

// WUP2025 column names.
const (
	colISO3Code = "ISO3_Code"
	colCategory = "Category"
	colYear     = "Year"
	colPop      = "Pop"
	colCities   = "Cities"
)

// WUP processed outputs, relative to the processed dir.
const (
	OutWUPLevel1           = "WUP/WUP2025_Level1_Population_Surface_processed.csv"
	OutWUPSizeClass        = "WUP/WUP2025_Population_by_Size_Class_processed.csv"
	OutWUPNational         = "WUP/WUP2025_National_Definitions_Population_processed.csv"
	OutWUPNationalPivoted  = "WUP/WUP2025_National_Definitions_Population_processed_pivoted.csv"
	OutWUPProjections      = "WUP/WUP2025_urban_projections_consolidated.csv"
	OutWUPGrowthRates      = "WUP/WUP2025_urban_growth_rates_consolidated.csv"
	wupDir                 = "WUP2025"
	wupThousands           = 1000.0
	wupLevel1File          = "WUP2025-DB-DEGURBA-Level1-Population-Surface-Data.csv"
	wupSizeClassFile       = "WUP2025-DB-DEGURBA-Population-by-size-class-of-cities.csv"
	wupNationalFile        = "WUP2025-DB-National-Definitions-Population-Data.csv"
	categoryCitiesAndTowns = "Cities and Towns"
	categoryTotal          = "Total"
)

type share struct {
	value, out string
}

// wupTable cleans one WUP2025 country table: SSA rows only, population in
// persons, regional aggregates appended and shares per (Year, ISO3_Code).
type wupTable struct {
	name    string
	what    string
	file    string
	output  string
	columns []string
	drop    []string
	sum     []string
	shares  []share
}

func wupLevel1() *wupTable {
	return &wupTable{
		name:    "wup_level1",
		what:    "WUP2025 Level1",
		file:    wupLevel1File,
		output:  OutWUPLevel1,
		columns: []string{colISO3Code, colCategory, colYear, colPop},
		drop:    []string{categoryCitiesAndTowns, categoryTotal},
		sum:     []string{colPop},
		shares:  []share{{colPop, "Pop_rel"}},
	}
}

func wupSizeClass() *wupTable {
	return &wupTable{
		name:    "wup_size_class",
		what:    "WUP2025 size class",
		file:    wupSizeClassFile,
		output:  OutWUPSizeClass,
		columns: []string{colISO3Code, colCategory, colYear, colCities, colPop},
		sum:     []string{colCities, colPop},
		shares:  []share{{colPop, "Pop_rel"}, {colCities, "Cities_rel"}},
	}
}

func (s *wupTable) Name() string      { return s.name }
func (s *wupTable) Phase() Phase      { return PhaseCountry }
func (s *wupTable) Outputs() []string { return []string{s.output} }

func (s *wupTable) Run(ctx context.Context, env *Env) (*Result, error) {
	f, err := s.process(ctx, env)
	if err != nil {
		return nil, err
	}
	res := &Result{}
	if err := env.write(ctx, res, s.output, f); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *wupTable) process(ctx context.Context, env *Env) (*table.Frame, error) {
	c, err := env.Classifier()
	if err != nil {
		return nil, err
	}
	f, err := env.readRaw(ctx, s.what, wupDir, s.file)
	if err != nil {
		return nil, err
	}
	if f, err = f.Select(s.columns...); err != nil {
		return nil, err
	}
	if f, err = f.AsText(colISO3Code, colCategory); err != nil {
		return nil, err
	}

	dropped := make(map[string]bool, len(s.drop))
	for _, d := range s.drop {
		dropped[d] = true
	}
	f = f.Filter(func(r table.Row) bool {
		return c.InSSA(r.Str(colISO3Code)) && !dropped[r.Str(colCategory)]
	})

	pop, err := f.Floats(colPop)
	if err != nil {
		return nil, err
	}
	floats.Scale(wupThousands, pop)
	if err := f.SetFloat(colPop, pop); err != nil {
		return nil, eris.Wrap(err, "pipeline: scale population")
	}

	f, err = aggregate.AddRegional(f, c, aggregate.Options{
		CodeColumn: colISO3Code,
		GroupBy:    []string{colCategory, colYear},
		Sum:        s.sum,
	})
	if err != nil {
		return nil, err
	}
	for _, sh := range s.shares {
		if err := metric.AddGroupShare(f, []string{colYear, colISO3Code}, sh.value, sh.out); err != nil {
			return nil, err
		}
	}
	return f.SortBy(colYear, colISO3Code, colCategory)
}

// WUPNational cleans the national-definition urban/rural table and pivots it
// to one row per (ISO3_Code, Year) with the urbanization rate.
type WUPNational struct{}

func (s *WUPNational) Name() string { return "wup_national" }
func (s *WUPNational) Phase() Phase { return PhaseCountry }
func (s *WUPNational) Outputs() []string {
	return []string{OutWUPNational, OutWUPNationalPivoted}
}

func (s *WUPNational) Run(ctx context.Context, env *Env) (*Result, error) {
	long := &wupTable{
		name:    s.Name(),
		what:    "WUP2025 National Definitions",
		file:    wupNationalFile,
		columns: []string{colISO3Code, colCategory, colYear, colPop},
		drop:    []string{categoryTotal},
		sum:     []string{colPop},
		shares:  []share{{colPop, "Pop_Rel"}},
	}
	f, err := long.process(ctx, env)
	if err != nil {
		return nil, err
	}
	res := &Result{}
	if err := env.write(ctx, res, OutWUPNational, f); err != nil {
		return nil, err
	}

	wide, err := UrbanizationPivot(f)
	if err != nil {
		return nil, err
	}
	if err := env.write(ctx, res, OutWUPNationalPivoted, wide); err != nil {
		return nil, err
	}
	res.Metadata = map[string]any{"pivoted_rows": wide.Len()}
	return res, nil
}

// UrbanizationPivot spreads Urban and Rural population to columns and adds
// Total_Pop and Urbanization_Rate.
func UrbanizationPivot(f *table.Frame) (*table.Frame, error) {
	wide, err := table.Pivot(f, table.PivotOptions{
		Index:   []string{colISO3Code, colYear},
		Columns: []string{colCategory},
		Values:  []string{colPop},
		Name:    func(_ string, keys []string) string { return keys[0] },
	})
	if err != nil {
		return nil, err
	}
	if err := wide.Require("Urban", "Rural"); err != nil {
		return nil, apperr.Wrap(err, apperr.KindSchema, "national definitions need Urban and Rural categories")
	}
	urban, _ := wide.Floats("Urban")
	rural, _ := wide.Floats("Rural")
	total := make([]float64, len(urban))
	floats.AddTo(total, urban, rural)
	if err := wide.SetFloat("Total_Pop", total); err != nil {
		return nil, err
	}
	if err := wide.SetFloat("Urbanization_Rate", metric.Ratio(urban, total)); err != nil {
		return nil, err
	}
	return wide.Rename(map[string]string{"Urban": "Urban_Pop", "Rural": "Rural_Pop"})
}
