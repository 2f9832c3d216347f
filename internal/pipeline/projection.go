package pipeline

import (
	"context"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/drm-lab/urbanrisk/internal/aggregate"
	"github.com/drm-lab/urbanrisk/internal/apperr"
	"github.com/drm-lab/urbanrisk/internal/metric"
	"github.com/drm-lab/urbanrisk/internal/panel"
	"github.com/drm-lab/urbanrisk/internal/reader"
	"github.com/drm-lab/urbanrisk/internal/region"
	"github.com/drm-lab/urbanrisk/internal/table"
)

const (
	wppFile       = "UN_PPP2024_Output_PopTot.xlsx"
	locationsFile = "WUP2018-F00-LOCATIONS_clean.csv"
	wppSkipRows   = 16
	wppFirstYear  = 2024
	wppLastYear   = 2100
	// WPP backfill covers the years between the WUP base and the first WPP year.
	wppBackfillFrom = 2021

	// projectionBaseYear is the first projected period; its growth rate
	// continues the historical series.
	projectionBaseYear = 2025
)

var wppSheets = []struct {
	sheet string
	bound panel.Bound
}{
	{"Median", panel.Median},
	{"Lower 95", panel.Lower95},
	{"Lower 80", panel.Lower80},
	{"Upper 80", panel.Upper80},
	{"Upper 95", panel.Upper95},
}

// series holds the year values of every indicator of one entity.
type series map[panel.Indicator]map[int]float64

func (s series) set(ind panel.Indicator, year int, v float64) {
	if s[ind] == nil {
		s[ind] = make(map[int]float64)
	}
	s[ind][year] = v
}

func (s series) get(ind panel.Indicator, year int) (float64, bool) {
	v, ok := s[ind][year]
	return v, ok && !math.IsNaN(v)
}

// WUPProjections builds the long projection panel: WPP total population
// bounds, WUP urban/rural population and proportions, and urban/rural
// population bounds scaled by the WPP bound to median ratio.
type WUPProjections struct{}

func (s *WUPProjections) Name() string      { return "wup_projections" }
func (s *WUPProjections) Phase() Phase      { return PhaseProjection }
func (s *WUPProjections) Outputs() []string { return []string{OutWUPProjections} }

func (s *WUPProjections) Run(ctx context.Context, env *Env) (*Result, error) {
	log := zap.L().With(zap.String("step", s.Name()))

	c, err := env.Classifier()
	if err != nil {
		return nil, err
	}
	locations, err := readLocations(ctx, env)
	if err != nil {
		return nil, err
	}
	wpp, err := readWPP(env, locations)
	if err != nil {
		return nil, err
	}
	wup, err := readWUPNational(ctx, env)
	if err != nil {
		return nil, err
	}

	p := &panel.Panel{}
	var empty int
	for _, country := range c.SSACountries() {
		ser := countrySeries(wpp[country.ISO3], wup[country.ISO3])
		if len(ser) == 0 {
			empty++
		}
		addSeries(p, country.ISO3, ser)
	}
	if empty > 0 {
		log.Warn("countries without WPP or WUP data", zap.Int("count", empty))
	}

	regional, err := regionalSeries(p, c)
	if err != nil {
		return nil, err
	}
	for _, r := range region.All {
		addSeries(p, string(r), regional[string(r)])
	}

	cfg := env.Config.Pipeline
	kept := p.Obs[:0]
	for _, o := range p.Obs {
		if o.Year >= cfg.ProjectionFirstYear && o.Year <= cfg.ProjectionLastYear &&
			(o.Year-cfg.ProjectionFirstYear)%cfg.ProjectionStep == 0 {
			kept = append(kept, o)
		}
	}
	p.Obs = kept

	f, err := p.Frame(false).SortBy(panel.ColISO3, panel.ColIndicator, panel.ColYear)
	if err != nil {
		return nil, err
	}
	res := &Result{Metadata: map[string]any{"entities": len(p.Entities())}}
	if err := env.write(ctx, res, OutWUPProjections, f); err != nil {
		return nil, err
	}
	return res, nil
}

// readLocations maps UN location codes to ISO3.
func readLocations(ctx context.Context, env *Env) (map[int]string, error) {
	f, err := env.readRaw(ctx, "UN locations", "Urban", locationsFile)
	if err != nil {
		return nil, err
	}
	if err := f.Require("Country Code", "ISO3"); err != nil {
		return nil, err
	}
	out := make(map[int]string, f.Len())
	for i := 0; i < f.Len(); i++ {
		r := f.Row(i)
		code := reader.ParseNumber(r.Str("Country Code"))
		if math.IsNaN(code) {
			continue
		}
		out[int(code)] = region.NormalizeISO3(r.Str("ISO3"))
	}
	return out, nil
}

// readWPP reads the WPP total population workbook in millions, keyed by ISO3
// and bound. 2021-2023 are extrapolated backwards from the 2024-2025 change.
func readWPP(env *Env, locations map[int]string) (map[string]map[panel.Bound]map[int]float64, error) {
	wb, err := reader.OpenXLSX(env.Config.Data.Raw("Urban", wppFile), "WPP2024 population")
	if err != nil {
		return nil, err
	}
	out := make(map[string]map[panel.Bound]map[int]float64)
	for _, sh := range wppSheets {
		f, err := wb.Frame(reader.XLSXOptions{SheetName: sh.sheet, SkipRows: wppSkipRows})
		if err != nil {
			return nil, err
		}
		if err := f.Require("Location code"); err != nil {
			return nil, err
		}
		years := make(map[string]int)
		for _, name := range f.Names() {
			if y, ok := reader.ParseYear(name); ok && y >= wppFirstYear && y <= wppLastYear {
				years[name] = y
			}
		}
		for i := 0; i < f.Len(); i++ {
			r := f.Row(i)
			code := reader.ParseNumber(r.Str("Location code"))
			iso, ok := locations[int(code)]
			if math.IsNaN(code) || !ok {
				continue
			}
			vals := make(map[int]float64, len(years)+3)
			for name, y := range years {
				vals[y] = reader.ParseNumber(r.Str(name)) / 1000
			}
			backfillWPP(vals)
			if out[iso] == nil {
				out[iso] = make(map[panel.Bound]map[int]float64)
			}
			out[iso][sh.bound] = vals
		}
	}
	return out, nil
}

func backfillWPP(vals map[int]float64) {
	v0, ok0 := vals[wppFirstYear]
	v1, ok1 := vals[wppFirstYear+1]
	if !ok0 || !ok1 {
		return
	}
	delta := v1 - v0
	prev := v0
	for y := wppFirstYear - 1; y >= wppBackfillFrom; y-- {
		prev -= delta
		vals[y] = prev
	}
}

// readWUPNational reads the national pivot as per-country series in millions.
func readWUPNational(ctx context.Context, env *Env) (map[string]series, error) {
	f, err := env.readProcessed(ctx, "WUP2025 National Definitions", OutWUPNationalPivoted)
	if err != nil {
		return nil, err
	}
	if err := f.Require(colISO3Code, colYear, "Urban_Pop", "Rural_Pop", "Urbanization_Rate"); err != nil {
		return nil, err
	}
	out := make(map[string]series)
	for i := 0; i < f.Len(); i++ {
		r := f.Row(i)
		iso := r.Str(colISO3Code)
		year := r.Num(colYear)
		if math.IsNaN(year) {
			continue
		}
		y := int(year)
		if out[iso] == nil {
			out[iso] = make(series)
		}
		rate := r.Num("Urbanization_Rate")
		out[iso].set(panel.WUPPop(panel.Urban), y, r.Num("Urban_Pop")/1e6)
		out[iso].set(panel.WUPPop(panel.Rural), y, r.Num("Rural_Pop")/1e6)
		out[iso].set(panel.WUPProp(panel.Urban), y, rate)
		out[iso].set(panel.WUPProp(panel.Rural), y, 1-rate)
	}
	return out, nil
}

// countrySeries combines WPP and WUP values of one country and derives the
// bounded urban and rural populations.
func countrySeries(wpp map[panel.Bound]map[int]float64, wup series) series {
	s := make(series)
	for b, vals := range wpp {
		for y, v := range vals {
			s.set(panel.WPP(b), y, v)
		}
	}
	for ind, vals := range wup {
		for y, v := range vals {
			s.set(ind, y, v)
		}
	}
	for _, a := range panel.Areas {
		for y := range s[panel.WUPPop(a)] {
			w, ok := s.get(panel.WUPPop(a), y)
			if !ok {
				continue
			}
			median, ok := s.get(panel.WPP(panel.Median), y)
			if !ok {
				continue
			}
			for _, b := range panel.Bounds {
				if v, ok := s.get(panel.WPP(b), y); ok {
					s.set(panel.Pop(a, b), y, metric.Scrub(w*v/median))
				}
			}
		}
	}
	return s
}

// addSeries appends the non-missing values of s in year order.
func addSeries(p *panel.Panel, iso3 string, s series) {
	inds := make([]string, 0, len(s))
	for ind := range s {
		inds = append(inds, string(ind))
	}
	sort.Strings(inds)
	for _, ind := range inds {
		vals := s[panel.Indicator(ind)]
		years := make([]int, 0, len(vals))
		for y := range vals {
			years = append(years, y)
		}
		sort.Ints(years)
		for _, y := range years {
			if v := vals[y]; !math.IsNaN(v) {
				p.Add(iso3, panel.Indicator(ind), y, v)
			}
		}
	}
}

// regionalSeries sums the population indicators of member countries and
// recomputes the WUP proportions from the summed populations.
func regionalSeries(p *panel.Panel, c *region.Classifier) (map[string]series, error) {
	sums := &panel.Panel{}
	for _, o := range p.Obs {
		if o.Indicator.IsPopulationSum() {
			sums.Obs = append(sums.Obs, o)
		}
	}
	out := make(map[string]series)
	if len(sums.Obs) == 0 {
		return out, nil
	}

	f, err := aggregate.AddRegional(sums.Frame(false), c, aggregate.Options{
		CodeColumn: panel.ColISO3,
		GroupBy:    []string{panel.ColIndicator, panel.ColYear},
		Sum:        []string{panel.ColValue},
	})
	if err != nil {
		return nil, err
	}
	f = f.Filter(func(r table.Row) bool { return region.IsRegion(r.Str(panel.ColISO3)) })
	regional, err := panel.FromFrame(f)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindComputation, "regional projection aggregates")
	}

	for _, o := range regional.Obs {
		if out[o.ISO3] == nil {
			out[o.ISO3] = make(series)
		}
		out[o.ISO3].set(o.Indicator, o.Year, o.Value)
	}
	for _, s := range out {
		for y := range s[panel.WUPPop(panel.Urban)] {
			u, uok := s.get(panel.WUPPop(panel.Urban), y)
			r, rok := s.get(panel.WUPPop(panel.Rural), y)
			if !uok || !rok {
				continue
			}
			prop := metric.Scrub(u / (u + r))
			s.set(panel.WUPProp(panel.Urban), y, prop)
			s.set(panel.WUPProp(panel.Rural), y, 1-prop)
		}
	}
	return out, nil
}

// WUPGrowthRates derives annualized five-year growth rates from the
// projection panel: historical rates from WUP population and projected
// rates for the median and each bound.
type WUPGrowthRates struct{}

func (s *WUPGrowthRates) Name() string      { return "wup_growth_rates" }
func (s *WUPGrowthRates) Phase() Phase      { return PhaseProjection }
func (s *WUPGrowthRates) Outputs() []string { return []string{OutWUPGrowthRates} }

func (s *WUPGrowthRates) Run(ctx context.Context, env *Env) (*Result, error) {
	f, err := env.readProcessed(ctx, "WUP2025 urban projections", OutWUPProjections)
	if err != nil {
		return nil, err
	}
	p, err := panel.FromFrame(f)
	if err != nil {
		return nil, err
	}
	out := GrowthRates(p, env.Config.Pipeline.ProjectionStep)
	res := &Result{}
	if err := env.write(ctx, res, OutWUPGrowthRates, out.Frame(true)); err != nil {
		return nil, err
	}
	return res, nil
}

// projectedBounds is the order projected growth rates are derived in.
var projectedBounds = []panel.Bound{panel.Median, panel.Lower80, panel.Upper80, panel.Lower95, panel.Upper95}

// GrowthRates computes the growth panel. Consecutive values are those of
// consecutive years present for the entity, spaced step years apart. The
// projected rate at the base year is replaced by the historical rate.
// Missing rates are dropped; the result is sorted by ISO3, year, indicator.
func GrowthRates(p *panel.Panel, step int) *panel.Panel {
	out := &panel.Panel{}
	for _, iso := range p.Entities() {
		s := make(series)
		yearSet := make(map[int]bool)
		for _, o := range p.Obs {
			if o.ISO3 == iso {
				s.set(o.Indicator, o.Year, o.Value)
				yearSet[o.Year] = true
			}
		}
		years := make([]int, 0, len(yearSet))
		for y := range yearSet {
			years = append(years, y)
		}
		sort.Ints(years)
		base := sort.SearchInts(years, projectionBaseYear)
		hasBase := base < len(years) && years[base] == projectionBaseYear

		aligned := func(ind panel.Indicator) []float64 {
			vals := table.NaNs(len(years))
			for i, y := range years {
				if v, ok := s[ind][y]; ok {
					vals[i] = v
				}
			}
			return vals
		}
		emit := func(ind panel.Indicator, rates []float64) {
			for i, y := range years {
				if !math.IsNaN(rates[i]) {
					out.Add(iso, ind, y, rates[i])
				}
			}
		}

		for _, a := range panel.Areas {
			var hist []float64
			if _, ok := s[panel.WUPPop(a)]; ok {
				hist = metric.PeriodGrowth(aligned(panel.WUPPop(a)), step)
				emit(panel.Growth(a), hist)
			}
			for _, b := range projectedBounds {
				if _, ok := s[panel.Pop(a, b)]; !ok {
					continue
				}
				rates := metric.PeriodGrowth(aligned(panel.Pop(a, b)), step)
				if hasBase && hist != nil {
					rates[base] = hist[base]
				}
				emit(panel.BoundGrowth(a, b), rates)
			}
		}
	}
	out.Sort()
	return out
}
