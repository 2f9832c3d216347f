package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/drm-lab/urbanrisk/internal/aggregate"
	"github.com/drm-lab/urbanrisk/internal/metric"
	"github.com/drm-lab/urbanrisk/internal/table"
)

// WorldPop/Fathom extract columns.
const (
	exposureDir = "data_worldpopg2_fathom3_nov2025"

	colISOA3         = "ISO_A3"
	colWorldPopYear  = "worldpop_year"
	colPopTotal      = "worldpop_population_total"
	colBuiltKm2      = "worldpop_built_surface_km2"
	colBuiltVolume   = "worldpop_built_volume_m3"
	colReturnPeriod  = "ftm_return_period"
	colFloodType     = "ftm_flood_type"
	colPopFtmTotal   = "worldpop_population_ftm_total"
	colPopFtmShare   = "worldpop_population_ftm_share"
	colBuiltFtmKm2   = "worldpop_built_surface_ftm_km2"
	colBuiltFtmShare = "worldpop_built_surface_ftm_share"
	colVolFtm        = "worldpop_built_volume_ftm_m3"
	colVolFtmShare   = "worldpop_built_volume_ftm_share"
)

// Country-level outputs.
const (
	OutCountryExposure  = "df_country_worldpop_stats_merged.csv"
	OutBuiltUpPerCapita = "built_up_per_capita_m2_by_country_year.csv"

	// ColBuiltUpPerCapita is the m² per person column of OutBuiltUpPerCapita.
	ColBuiltUpPerCapita = "built_up_per_capita_m2"
)

func readCountryStats(ctx context.Context, env *Env, cols ...string) (*table.Frame, error) {
	f, err := env.readRaw(ctx, "WorldPop country statistics", exposureDir, "df_country_worldpop_stats.csv")
	if err != nil {
		return nil, err
	}
	if f, err = f.Select(cols...); err != nil {
		return nil, err
	}
	return f.AsText(colISOA3)
}

// CountryExposure joins country WorldPop totals with Fathom flood exposure.
type CountryExposure struct{}

func (s *CountryExposure) Name() string      { return "country_exposure" }
func (s *CountryExposure) Phase() Phase      { return PhaseCountry }
func (s *CountryExposure) Outputs() []string { return []string{OutCountryExposure} }

func (s *CountryExposure) Run(ctx context.Context, env *Env) (*Result, error) {
	log := zap.L().With(zap.String("step", s.Name()))

	stats, err := readCountryStats(ctx, env, colISOA3, colWorldPopYear, colPopTotal, colBuiltKm2, colBuiltVolume)
	if err != nil {
		return nil, err
	}

	ftm, err := env.readRaw(ctx, "Fathom country exposure", exposureDir, "df_country_worldpop_ftm_stats.csv")
	if err != nil {
		return nil, err
	}
	if ftm, err = ftm.Select(colISOA3, colWorldPopYear, colReturnPeriod, colFloodType,
		colPopFtmTotal, colPopFtmShare, colBuiltFtmKm2, colBuiltFtmShare, colVolFtm, colVolFtmShare); err != nil {
		return nil, err
	}
	if ftm, err = ftm.AsText(colISOA3, colFloodType); err != nil {
		return nil, err
	}
	floodType := env.Config.Pipeline.FloodType
	ftm = ftm.Filter(func(r table.Row) bool { return r.Str(colFloodType) == floodType })

	merged, err := table.Merge(stats, ftm, table.MergeOptions{
		On:       []string{colISOA3, colWorldPopYear},
		How:      table.Outer,
		Suffixes: [2]string{"_df", "_dfft"},
	})
	if err != nil {
		return nil, err
	}

	incomplete := merged.Filter(func(r table.Row) bool {
		return r.Str(colISOA3) == "" || r.Str(colWorldPopYear) == ""
	}).Len()
	if incomplete > 0 {
		log.Warn("merge keys missing after merge", zap.Int("rows", incomplete))
	}

	res := &Result{Metadata: map[string]any{"flood_type": floodType}}
	if err := env.write(ctx, res, OutCountryExposure, merged); err != nil {
		return nil, err
	}
	return res, nil
}

// BuiltUpPerCapita computes built-up area per person for SSA countries and
// regions from the WorldPop country totals. Regional ratios are taken from
// regional sums, never averaged.
type BuiltUpPerCapita struct{}

func (s *BuiltUpPerCapita) Name() string      { return "builtup_per_capita" }
func (s *BuiltUpPerCapita) Phase() Phase      { return PhaseCountry }
func (s *BuiltUpPerCapita) Outputs() []string { return []string{OutBuiltUpPerCapita} }

func (s *BuiltUpPerCapita) Run(ctx context.Context, env *Env) (*Result, error) {
	c, err := env.Classifier()
	if err != nil {
		return nil, err
	}
	f, err := readCountryStats(ctx, env, colISOA3, colWorldPopYear, colPopTotal, colBuiltKm2)
	if err != nil {
		return nil, err
	}
	f = f.Filter(func(r table.Row) bool { return c.InSSA(r.Str(colISOA3)) })

	f, err = aggregate.AddRegional(f, c, aggregate.Options{
		CodeColumn: colISOA3,
		GroupBy:    []string{colWorldPopYear},
		Sum:        []string{colPopTotal, colBuiltKm2},
	})
	if err != nil {
		return nil, err
	}
	if err := metric.AddBuiltUpPerCapita(f, colBuiltKm2, colPopTotal, ColBuiltUpPerCapita); err != nil {
		return nil, err
	}
	if f, err = f.Rename(map[string]string{colISOA3: "ISO3", colWorldPopYear: "Year"}); err != nil {
		return nil, err
	}
	if f, err = f.SortBy("ISO3", "Year"); err != nil {
		return nil, err
	}

	res := &Result{}
	if err := env.write(ctx, res, OutBuiltUpPerCapita, f); err != nil {
		return nil, err
	}
	return res, nil
}
