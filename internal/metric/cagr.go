// Package metric derives growth rates, shares, per-capita ratios and size
// classes from table frames. Arithmetic never fails: undefined results
// (division by zero, non-finite powers) become missing values.
package metric

import (
	"fmt"
	"math"

	"github.com/rotisserie/eris"

	"github.com/drm-lab/urbanrisk/internal/table"
)

// Scrub maps non-finite values to NaN, the missing marker.
func Scrub(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return math.NaN()
	}
	return v
}

// CAGR returns the compound annual growth rate between two observations.
func CAGR(v1, v2 float64, y1, y2 int) float64 {
	return Scrub(math.Pow(v2/v1, 1/float64(y2-y1)) - 1)
}

// YearColumn names a year-suffixed column, e.g. africapolis_pop_2020.
func YearColumn(base string, year int) string {
	return fmt.Sprintf("%s_%d", base, year)
}

// CAGRColumn names a growth column, e.g. worldpop_built_cagr_2015_2020.
func CAGRColumn(base string, y1, y2 int) string {
	return fmt.Sprintf("%s_cagr_%d_%d", base, y1, y2)
}

// CAGRSpec describes one growth column added by AddCAGR.
type CAGRSpec struct {
	// Source is the base of the year-suffixed input columns.
	Source string
	// Name is the base of the output column; defaults to Source.
	Name   string
	Y1, Y2 int
}

// AddCAGR adds {Name}_cagr_{Y1}_{Y2} computed from {Source}_{Y1} and
// {Source}_{Y2}. Periods with Y2 <= Y1 are rejected.
func AddCAGR(f *table.Frame, specs ...CAGRSpec) error {
	for _, s := range specs {
		if s.Y2 <= s.Y1 {
			return eris.Errorf("metric: invalid CAGR period %d-%d for %s", s.Y1, s.Y2, s.Source)
		}
		start, err := f.Floats(YearColumn(s.Source, s.Y1))
		if err != nil {
			return err
		}
		end, err := f.Floats(YearColumn(s.Source, s.Y2))
		if err != nil {
			return err
		}
		out := make([]float64, len(start))
		for i := range out {
			out[i] = CAGR(start[i], end[i], s.Y1, s.Y2)
		}
		name := s.Name
		if name == "" {
			name = s.Source
		}
		if err := f.SetFloat(CAGRColumn(name, s.Y1, s.Y2), out); err != nil {
			return eris.Wrap(err, "metric: add CAGR")
		}
	}
	return nil
}

// PeriodGrowth returns annualized growth in percent between consecutive
// values of a series observed every period years. The first value has no
// predecessor and is missing.
func PeriodGrowth(vals []float64, period int) []float64 {
	out := table.NaNs(len(vals))
	for i := 1; i < len(vals); i++ {
		out[i] = Scrub((math.Pow(vals[i]/vals[i-1], 1/float64(period)) - 1) * 100)
	}
	return out
}
