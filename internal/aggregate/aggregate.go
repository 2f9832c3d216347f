// Package aggregate appends regional aggregate rows (AFE, AFW, SSA) to
// country-level frames.
package aggregate

import (
	"math"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/floats"

	"github.com/drm-lab/urbanrisk/internal/region"
	"github.com/drm-lab/urbanrisk/internal/table"
)

// Options configures AddRegional.
type Options struct {
	// CodeColumn holds the ISO3 code of each row; region rows carry the
	// region code in the same column.
	CodeColumn string
	// GroupBy columns are copied onto each region row.
	GroupBy []string
	// Sum columns are summed over member rows.
	Sum []string
	// NameColumn, when set, receives the region display name.
	NameColumn string
}

// AddRegional returns the frame followed by one row per group and region.
// Missing member values are skipped. A region row is emitted only when at
// least one member row has a value in some Sum column, and a Sum column with
// no member values stays missing in that row.
func AddRegional(f *table.Frame, c *region.Classifier, opts Options) (*table.Frame, error) {
	if opts.CodeColumn == "" {
		return nil, eris.New("aggregate: code column required")
	}
	if len(opts.Sum) == 0 {
		return nil, eris.New("aggregate: at least one sum column required")
	}
	if err := f.Require(append(append([]string{opts.CodeColumn}, opts.GroupBy...), opts.Sum...)...); err != nil {
		return nil, err
	}

	codes, err := f.Strings(opts.CodeColumn)
	if err != nil {
		return nil, err
	}
	values := make([][]float64, len(opts.Sum))
	for j, col := range opts.Sum {
		if values[j], err = f.Floats(col); err != nil {
			return nil, err
		}
	}

	var groups []table.Group
	if len(opts.GroupBy) == 0 {
		all := make([]int, f.Len())
		for i := range all {
			all[i] = i
		}
		groups = []table.Group{{Rows: all}}
	} else if groups, err = f.Groups(opts.GroupBy...); err != nil {
		return nil, err
	}

	var (
		outCodes []string
		outNames []string
		outKeys  = make([][]string, len(opts.GroupBy))
		outSums  = make([][]float64, len(opts.Sum))
	)
	for _, g := range groups {
		for _, r := range region.All {
			sums, ok := sumMembers(g.Rows, codes, values, c, r)
			if !ok {
				continue
			}
			outCodes = append(outCodes, string(r))
			outNames = append(outNames, r.Name())
			for k := range opts.GroupBy {
				outKeys[k] = append(outKeys[k], g.Key[k])
			}
			for j := range opts.Sum {
				outSums[j] = append(outSums[j], sums[j])
			}
		}
	}

	cols := []*table.Column{table.StringColumn(opts.CodeColumn, outCodes)}
	if opts.NameColumn != "" {
		cols = append(cols, table.StringColumn(opts.NameColumn, outNames))
	}
	for k, name := range opts.GroupBy {
		cols = append(cols, keyColumn(f, name, outKeys[k]))
	}
	for j, name := range opts.Sum {
		cols = append(cols, table.FloatColumn(name, outSums[j]))
	}
	regional, err := table.New(cols...)
	if err != nil {
		return nil, eris.Wrap(err, "aggregate: build regional rows")
	}
	return table.Concat(f, regional), nil
}

// sumMembers sums each value column over the rows of the group that belong
// to region r. ok is false when no member row carries any value.
func sumMembers(rows []int, codes []string, values [][]float64, c *region.Classifier, r region.Region) ([]float64, bool) {
	sums := make([]float64, len(values))
	found := false
	for j, vals := range values {
		var members []float64
		for _, i := range rows {
			if math.IsNaN(vals[i]) || !memberOf(c, codes[i], r) {
				continue
			}
			members = append(members, vals[i])
		}
		if len(members) == 0 {
			sums[j] = math.NaN()
			continue
		}
		sums[j] = floats.Sum(members)
		found = true
	}
	return sums, found
}

func memberOf(c *region.Classifier, iso3 string, r region.Region) bool {
	for _, m := range c.RegionsOf(iso3) {
		if m == r {
			return true
		}
	}
	return false
}

// keyColumn keeps group keys numeric when the source column is numeric, so
// region rows concatenate cleanly with country rows.
func keyColumn(f *table.Frame, name string, keys []string) *table.Column {
	src, err := f.Col(name)
	if err == nil && src.Kind() == table.Float {
		nums := make([]float64, len(keys))
		for i, k := range keys {
			nums[i] = table.ParseFloat(k)
		}
		return table.FloatColumn(name, nums)
	}
	return table.StringColumn(name, keys)
}
