package metric

import (
	"math"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/floats"

	"github.com/drm-lab/urbanrisk/internal/table"
)

// Shares divides each value by the total of the non-missing values.
func Shares(vals []float64) []float64 {
	present := make([]float64, 0, len(vals))
	for _, v := range vals {
		if !math.IsNaN(v) {
			present = append(present, v)
		}
	}
	total := floats.Sum(present)
	out := make([]float64, len(vals))
	for i, v := range vals {
		out[i] = Scrub(v / total)
	}
	return out
}

// AddGroupShare sets outCol to valueCol divided by its total within each
// group of key columns.
func AddGroupShare(f *table.Frame, keys []string, valueCol, outCol string) error {
	shares, err := f.Transform(keys, valueCol, Shares)
	if err != nil {
		return err
	}
	return eris.Wrap(f.SetFloat(outCol, shares), "metric: add share")
}

// Ratio divides element-wise, scrubbing undefined results.
func Ratio(num, den []float64) []float64 {
	out := make([]float64, len(num))
	for i := range num {
		out[i] = Scrub(num[i] / den[i])
	}
	return out
}

// BuiltUpPerCapita converts built-up area in km² and population to square
// metres per person.
func BuiltUpPerCapita(km2, pop float64) float64 {
	return Scrub(km2 * 1e6 / pop)
}

// AddBuiltUpPerCapita sets outCol from a built-up area column in km² and a
// population column.
func AddBuiltUpPerCapita(f *table.Frame, km2Col, popCol, outCol string) error {
	km2, err := f.Floats(km2Col)
	if err != nil {
		return err
	}
	pop, err := f.Floats(popCol)
	if err != nil {
		return err
	}
	out := make([]float64, len(km2))
	for i := range out {
		out[i] = BuiltUpPerCapita(km2[i], pop[i])
	}
	return eris.Wrap(f.SetFloat(outCol, out), "metric: add built-up per capita")
}
