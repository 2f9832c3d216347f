package pipeline

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/drm-lab/urbanrisk/internal/metric"
	"github.com/drm-lab/urbanrisk/internal/reader"
	"github.com/drm-lab/urbanrisk/internal/table"
)

// Agglomeration exposure outputs and columns.
const (
	OutExposureMerged  = "africapolis_worldpop_final_merged.csv"
	OutExposureFormat1 = "africapolis_worldpop_final_merged_format_1.csv"
	OutExposureFormat2 = "africapolis_worldpop_final_merged_format_2.csv"
	OutAggloBuiltUp    = "agglomeration_population_builtup_merged.csv"

	colUniqueID       = "unique_id"
	colAfricapolisPop = "africapolis_pop"
	colBuiltKm2Short  = "worldpop_built_km2"
	colBuiltPerCapita = "buppercapita"
	colSizeCategory   = "size_category"
)

// Flood exposure growth columns: {prefix}_rp{rp}_cagr_{y1}_{y2} computed
// from {base}_rp{rp}_{year}.
var floodGrowth = []struct{ base, prefix string }{
	{colPopFtmTotal, "pop_ftm3_fluvial_pluvial_flood"},
	{colBuiltFtmKm2, "built_ftm3_fluvial_pluvial_flood"},
}

// format2Values are the measures spread per year and return period.
var format2Values = []string{
	colPopFtmTotal,
	colPopFtmShare,
	colPopTotal,
	colAfricapolisPop,
	colBuiltFtmKm2,
	colBuiltFtmShare,
	colBuiltKm2,
}

// AgglomerationExposure merges agglomeration WorldPop statistics, Fathom
// flood exposure and Africapolis population, and derives the two wide
// dashboard formats.
//
// Cities missing WorldPop population in any city year, and cities whose
// Africapolis population is 0 in any year, are dropped entirely.
type AgglomerationExposure struct{}

func (s *AgglomerationExposure) Name() string { return "agglomeration_exposure" }
func (s *AgglomerationExposure) Phase() Phase { return PhaseCity }
func (s *AgglomerationExposure) Outputs() []string {
	return []string{OutExposureMerged, OutExposureFormat1, OutExposureFormat2}
}

func (s *AgglomerationExposure) Run(ctx context.Context, env *Env) (*Result, error) {
	log := zap.L().With(zap.String("step", s.Name()))
	cfg := env.Config.Pipeline

	stats, err := readCityYears(ctx, env, "WorldPop agglomeration statistics", "df_agglo_worldpop_stats_geom")
	if err != nil {
		return nil, err
	}
	if stats, err = stats.AsText(colUniqueID); err != nil {
		return nil, err
	}
	missing, err := idsWhere(stats, func(r table.Row) bool { return math.IsNaN(r.Num(colPopTotal)) })
	if err != nil {
		return nil, err
	}
	stats = dropIDs(stats, missing)

	ftm, err := readCityYears(ctx, env, "Fathom agglomeration exposure", "df_agglo_worldpop_ftm_stats_geom")
	if err != nil {
		return nil, err
	}
	if ftm, err = ftm.AsText(colUniqueID, colFloodType); err != nil {
		return nil, err
	}
	ftm = ftm.Filter(func(r table.Row) bool { return r.Str(colFloodType) == cfg.FloodType })
	ftm = dropIDs(ftm, missing)

	subset, err := stats.Select(colUniqueID, colWorldPopYear, colPopTotal, colBuiltKm2, colBuiltVolume)
	if err != nil {
		return nil, err
	}
	merged, err := table.Merge(ftm, subset, table.MergeOptions{
		On:       []string{colUniqueID, colWorldPopYear},
		How:      table.Left,
		Validate: table.ManyToOne,
	})
	if err != nil {
		return nil, err
	}

	africaPop, err := africapolisPopulation(ctx, env)
	if err != nil {
		return nil, err
	}
	merged, err = table.Merge(merged, africaPop, table.MergeOptions{
		On:       []string{colUniqueID, colWorldPopYear},
		How:      table.Left,
		Validate: table.ManyToOne,
	})
	if err != nil {
		return nil, err
	}

	zero, err := idsWhere(merged, func(r table.Row) bool { return r.Num(colAfricapolisPop) == 0 })
	if err != nil {
		return nil, err
	}
	if len(zero) > 0 {
		before := merged.Len()
		largest := largestCities(merged, zero, 10)
		merged = dropIDs(merged, zero)
		log.Info("dropping cities with zero Africapolis population",
			zap.Int("cities", len(zero)),
			zap.Int("rows", before-merged.Len()),
			zap.Strings("largest", largest),
		)
	}

	res := &Result{Metadata: map[string]any{
		"dropped_missing_population": len(missing),
		"dropped_zero_population":    len(zero),
		"dynamic_extents":            cfg.DynamicExtents,
	}}
	if err := env.write(ctx, res, OutExposureMerged, merged); err != nil {
		return nil, err
	}

	f1, err := ExposureFormat1(merged, cfg.CityYears)
	if err != nil {
		return nil, err
	}
	if err := env.write(ctx, res, OutExposureFormat1, f1); err != nil {
		return nil, err
	}

	f2, err := ExposureFormat2(merged, cfg.CityYears, cfg.ReturnPeriods)
	if err != nil {
		return nil, err
	}
	if err := env.write(ctx, res, OutExposureFormat2, f2); err != nil {
		return nil, err
	}
	return res, nil
}

// readCityYears reads the per-city extract for each city year. With dynamic
// extents every year but the last comes from the dynamic-geometry file;
// otherwise all years come from the static file of the geometry year.
func readCityYears(ctx context.Context, env *Env, what, prefix string) (*table.Frame, error) {
	cfg := env.Config.Pipeline
	static, err := env.readRaw(ctx, what, exposureDir, fmt.Sprintf("%s_static_%d.csv", prefix, cfg.GeometryYear))
	if err != nil {
		return nil, err
	}
	dynamic := static
	if cfg.DynamicExtents {
		if dynamic, err = env.readRaw(ctx, what, exposureDir, prefix+"_dynamic.csv"); err != nil {
			return nil, err
		}
	}
	if err := static.Require(colUniqueID, colWorldPopYear); err != nil {
		return nil, err
	}

	parts := make([]*table.Frame, 0, len(cfg.CityYears))
	for i, y := range cfg.CityYears {
		src := static
		if i < len(cfg.CityYears)-1 {
			src = dynamic
		}
		year := float64(y)
		parts = append(parts, src.Filter(func(r table.Row) bool { return r.Num(colWorldPopYear) == year }))
	}
	return table.Concat(parts...).Named(what), nil
}

// africapolisPopulation returns (unique_id, worldpop_year, africapolis_pop)
// for agglomerations of the geometry year.
func africapolisPopulation(ctx context.Context, env *Env) (*table.Frame, error) {
	cfg := env.Config.Pipeline
	popCols := make([]string, len(cfg.CityYears))
	for i, y := range cfg.CityYears {
		popCols[i] = africapolisPopColumn(y)
	}
	cols := append([]string{colISO3, colAggloID, colGeometryYear}, popCols...)
	f, err := reader.ReadGPKGFrame(ctx, env.africapolisPath(), "Africapolis", reader.VectorOptions{Columns: cols})
	if err != nil {
		return nil, err
	}
	if f, err = f.AsText(colISO3); err != nil {
		return nil, err
	}
	if f, err = f.AsFloat(popCols...); err != nil {
		return nil, err
	}
	f = f.Filter(func(r table.Row) bool { return int(r.Num(colGeometryYear)) == cfg.GeometryYear })

	uid := make([]string, f.Len())
	for i := range uid {
		r := f.Row(i)
		uid[i] = UniqueID(r.Str(colISO3), r.Num(colAggloID))
	}
	if err := f.SetString(colUniqueID, uid); err != nil {
		return nil, err
	}
	long, err := table.Melt(f, []string{colUniqueID}, popCols, colWorldPopYear, colAfricapolisPop)
	if err != nil {
		return nil, err
	}
	labels, _ := long.Strings(colWorldPopYear)
	years := make([]float64, len(labels))
	for i, l := range labels {
		years[i] = table.ParseFloat(strings.TrimPrefix(l, africapolisPopPx))
	}
	if err := long.SetFloat(colWorldPopYear, years); err != nil {
		return nil, err
	}
	return long, nil
}

// UniqueID builds the agglomeration key ISO3_<Agglomeration_ID>.
func UniqueID(iso3 string, id float64) string {
	if math.IsNaN(id) {
		return iso3 + "_"
	}
	return iso3 + "_" + strconv.FormatInt(int64(id), 10)
}

// ExposureFormat1 builds one row per city with built-up area and Africapolis
// population per year, their growth rates between consecutive years,
// built-up per capita and size classes. Only the smallest return period's
// rows are used since these measures do not depend on it.
func ExposureFormat1(merged *table.Frame, years []int) (*table.Frame, error) {
	rps, err := merged.Floats(colReturnPeriod)
	if err != nil {
		return nil, err
	}
	minRP := math.Inf(1)
	for _, rp := range rps {
		if !math.IsNaN(rp) && rp < minRP {
			minRP = rp
		}
	}
	wide := merged.Filter(func(r table.Row) bool { return r.Num(colReturnPeriod) == minRP })

	built, err := table.Pivot(wide, table.PivotOptions{
		Index:   []string{colUniqueID, colISO3, colAggloName},
		Columns: []string{colWorldPopYear},
		Values:  []string{colBuiltKm2},
		Name:    func(_ string, keys []string) string { return colBuiltKm2Short + "_" + keys[0] },
	})
	if err != nil {
		return nil, err
	}
	pop, err := table.Pivot(wide, table.PivotOptions{
		Index:   []string{colUniqueID},
		Columns: []string{colWorldPopYear},
		Values:  []string{colAfricapolisPop},
	})
	if err != nil {
		return nil, err
	}
	f, err := table.Merge(built, pop, table.MergeOptions{On: []string{colUniqueID}, How: table.Left})
	if err != nil {
		return nil, err
	}

	var specs []metric.CAGRSpec
	for _, m := range []struct{ src, name string }{
		{colBuiltKm2Short, "worldpop_built"},
		{colAfricapolisPop, colAfricapolisPop},
	} {
		for i := 1; i < len(years); i++ {
			specs = append(specs, metric.CAGRSpec{Source: m.src, Name: m.name, Y1: years[i-1], Y2: years[i]})
		}
	}
	if err := metric.AddCAGR(f, specs...); err != nil {
		return nil, err
	}

	for _, y := range years {
		popCol := metric.YearColumn(colAfricapolisPop, y)
		if err := metric.AddBuiltUpPerCapita(f, metric.YearColumn(colBuiltKm2Short, y), popCol, metric.YearColumn(colBuiltPerCapita, y)); err != nil {
			return nil, err
		}
		p, err := f.Floats(popCol)
		if err != nil {
			return nil, err
		}
		sizes := make([]string, len(p))
		for i, v := range p {
			sizes[i] = metric.SizeCategory(v)
		}
		if err := f.SetString(metric.YearColumn(colSizeCategory, y), sizes); err != nil {
			return nil, err
		}
		if err := f.SetFloat(popCol, roundAll(p)); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// ExposureFormat2 builds one row per city with every exposure measure per
// year and return period, flood exposure growth rates and rounded
// Africapolis population. Total population is the Africapolis population;
// exposed population is that total times the WorldPop exposed share.
func ExposureFormat2(merged *table.Frame, years, returnPeriods []int) (*table.Frame, error) {
	base := merged.Clone()
	pop, err := base.Floats(colAfricapolisPop)
	if err != nil {
		return nil, err
	}
	share, err := base.Floats(colPopFtmShare)
	if err != nil {
		return nil, err
	}
	exposed := make([]float64, len(pop))
	for i := range pop {
		exposed[i] = metric.Scrub(pop[i] * share[i])
	}
	if err := base.SetFloat(colPopTotal, pop); err != nil {
		return nil, err
	}
	if err := base.SetFloat(colPopFtmTotal, exposed); err != nil {
		return nil, err
	}

	f, err := table.Pivot(base, table.PivotOptions{
		Index:   []string{colUniqueID, colISO3, colAggloName},
		Columns: []string{colWorldPopYear, colReturnPeriod},
		Values:  format2Values,
		Name: func(v string, keys []string) string {
			return fmt.Sprintf("%s_rp%s_%s", v, keys[1], keys[0])
		},
	})
	if err != nil {
		return nil, err
	}

	var specs []metric.CAGRSpec
	for _, rp := range returnPeriods {
		suffix := "_rp" + strconv.Itoa(rp)
		for _, g := range floodGrowth {
			for i := 1; i < len(years); i++ {
				specs = append(specs, metric.CAGRSpec{Source: g.base + suffix, Name: g.prefix + suffix, Y1: years[i-1], Y2: years[i]})
			}
		}
	}
	if err := metric.AddCAGR(f, specs...); err != nil {
		return nil, err
	}

	if len(returnPeriods) > 0 {
		src := colAfricapolisPop + "_rp" + strconv.Itoa(returnPeriods[0])
		for _, y := range years {
			p, err := f.Floats(metric.YearColumn(src, y))
			if err != nil {
				return nil, err
			}
			if err := f.SetFloat(metric.YearColumn(colAfricapolisPop, y), roundAll(p)); err != nil {
				return nil, err
			}
		}
	}
	return f, nil
}

// AgglomerationBuiltUp joins agglomeration population and built-up
// statistics, adds built-up per capita for the geometry year and the last
// population growth period, and drops cities absorbed by others (zero
// population in the last city year).
type AgglomerationBuiltUp struct{}

func (s *AgglomerationBuiltUp) Name() string      { return "agglomeration_builtup" }
func (s *AgglomerationBuiltUp) Phase() Phase      { return PhaseCity }
func (s *AgglomerationBuiltUp) Outputs() []string { return []string{OutAggloBuiltUp} }

func (s *AgglomerationBuiltUp) Run(ctx context.Context, env *Env) (*Result, error) {
	cfg := env.Config.Pipeline
	keys := []string{colUniqueID, colISO3, "Country", "geometry_year_africapolis", colAggloName, "Surface km2"}
	text := []string{colUniqueID, colISO3, "Country", colAggloName}

	pop, err := env.readRaw(ctx, "Agglomeration population", exposureDir, "agglomeration_population_stats.csv")
	if err != nil {
		return nil, err
	}
	built, err := env.readRaw(ctx, "Agglomeration built-up", exposureDir, "agglomeration_builtup_stats.csv")
	if err != nil {
		return nil, err
	}
	if pop, err = pop.AsText(text...); err != nil {
		return nil, err
	}
	if built, err = built.AsText(text...); err != nil {
		return nil, err
	}

	f, err := table.Merge(pop, built, table.MergeOptions{
		On:       keys,
		How:      table.Outer,
		Suffixes: [2]string{"_pop", "_builtup"},
	})
	if err != nil {
		return nil, err
	}

	gy := cfg.GeometryYear
	if err := metric.AddBuiltUpPerCapita(f,
		metric.YearColumn(colBuiltKm2Short, gy),
		metric.YearColumn(colAfricapolisPop, gy),
		metric.YearColumn(colBuiltPerCapita, gy)); err != nil {
		return nil, err
	}

	y1, y2 := cfg.CityYears[len(cfg.CityYears)-2], cfg.CityYears[len(cfg.CityYears)-1]
	last := metric.YearColumn(colAfricapolisPop, y2)
	if err := f.Require(last); err != nil {
		return nil, err
	}
	before := f.Len()
	f = f.Filter(func(r table.Row) bool { return r.Num(last) != 0 })

	if err := metric.AddCAGR(f, metric.CAGRSpec{Source: colAfricapolisPop, Y1: y1, Y2: y2}); err != nil {
		return nil, err
	}

	res := &Result{Metadata: map[string]any{"dropped_absorbed": before - f.Len()}}
	if err := env.write(ctx, res, OutAggloBuiltUp, f); err != nil {
		return nil, err
	}
	return res, nil
}

func idsWhere(f *table.Frame, pred func(table.Row) bool) (map[string]bool, error) {
	if err := f.Require(colUniqueID); err != nil {
		return nil, err
	}
	out := make(map[string]bool)
	for i := 0; i < f.Len(); i++ {
		r := f.Row(i)
		if pred(r) {
			out[r.Str(colUniqueID)] = true
		}
	}
	return out, nil
}

func dropIDs(f *table.Frame, ids map[string]bool) *table.Frame {
	if len(ids) == 0 {
		return f
	}
	return f.Filter(func(r table.Row) bool { return !ids[r.Str(colUniqueID)] })
}

// largestCities names the n dropped cities with the largest WorldPop
// population, for the drop log.
func largestCities(f *table.Frame, ids map[string]bool, n int) []string {
	best := make(map[string]float64)
	label := make(map[string]string)
	for i := 0; i < f.Len(); i++ {
		r := f.Row(i)
		id := r.Str(colUniqueID)
		if !ids[id] {
			continue
		}
		v := r.Num(colPopTotal)
		if cur, ok := best[id]; !ok || v > cur || math.IsNaN(cur) {
			best[id] = v
			label[id] = fmt.Sprintf("%s (%s)", r.Str(colAggloName), r.Str(colISO3))
		}
	}
	order := make([]string, 0, len(best))
	for id := range best {
		order = append(order, id)
	}
	sort.Slice(order, func(i, j int) bool {
		a, b := best[order[i]], best[order[j]]
		if math.IsNaN(b) {
			return !math.IsNaN(a) || order[i] < order[j]
		}
		if a != b {
			return a > b
		}
		return order[i] < order[j]
	})
	if len(order) > n {
		order = order[:n]
	}
	out := make([]string, len(order))
	for i, id := range order {
		out[i] = label[id]
	}
	return out
}

func roundAll(vals []float64) []float64 {
	out := make([]float64, len(vals))
	for i, v := range vals {
		out[i] = math.Round(v)
	}
	return out
}
