package table

import (
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// PivotOptions configures Pivot.
type PivotOptions struct {
	// Index columns identify an output row.
	Index []string
	// Columns hold the values that become part of output column names.
	Columns []string
	// Values are the measures spread across the new columns.
	Values []string
	// Name builds an output column name from a measure and its column keys.
	// Defaults to joining them with "_".
	Name func(value string, keys []string) string
}

// Pivot reshapes long rows to wide. Output rows are sorted by index key and
// output column groups follow Values order with column keys sorted; both
// compare numerically where possible. When several rows share an index and
// column key the first non-missing value wins.
func Pivot(f *Frame, opts PivotOptions) (*Frame, error) {
	if len(opts.Index) == 0 || len(opts.Columns) == 0 || len(opts.Values) == 0 {
		return nil, eris.New("table: pivot requires index, columns and values")
	}
	name := opts.Name
	if name == nil {
		name = func(v string, keys []string) string {
			return v + "_" + strings.Join(keys, "_")
		}
	}
	idxCols, err := f.keyCols(opts.Index)
	if err != nil {
		return nil, err
	}
	colCols, err := f.keyCols(opts.Columns)
	if err != nil {
		return nil, err
	}
	valCols, err := f.keyCols(opts.Values)
	if err != nil {
		return nil, err
	}

	rowPos := make(map[string]int)
	var firstRow []int
	colKeys := make(map[string][]string)
	var colOrder []string
	for i := 0; i < f.n; i++ {
		rk := rowKey(idxCols, i)
		if _, ok := rowPos[rk]; !ok {
			rowPos[rk] = len(firstRow)
			firstRow = append(firstRow, i)
		}
		ck := rowKey(colCols, i)
		if _, ok := colKeys[ck]; !ok {
			vals := make([]string, len(colCols))
			for j, c := range colCols {
				vals[j] = c.String(i)
			}
			colKeys[ck] = vals
			colOrder = append(colOrder, ck)
		}
	}
	order := make([]int, len(firstRow))
	for k := range order {
		order[k] = k
	}
	sort.SliceStable(order, func(a, b int) bool {
		ra, rb := firstRow[order[a]], firstRow[order[b]]
		for _, c := range idxCols {
			if cmp := compareText(c.String(ra), c.String(rb)); cmp != 0 {
				return cmp < 0
			}
		}
		return false
	})
	sorted := make([]int, len(firstRow))
	for k, o := range order {
		sorted[k] = firstRow[o]
		rowPos[rowKey(idxCols, firstRow[o])] = k
	}
	firstRow = sorted

	sort.SliceStable(colOrder, func(a, b int) bool {
		ka, kb := colKeys[colOrder[a]], colKeys[colOrder[b]]
		for j := range ka {
			if cmp := compareText(ka[j], kb[j]); cmp != 0 {
				return cmp < 0
			}
		}
		return false
	})
	colPos := make(map[string]int, len(colOrder))
	for j, k := range colOrder {
		colPos[k] = j
	}

	nRows := len(firstRow)
	var cols []*Column
	for _, c := range idxCols {
		cols = append(cols, c.take(firstRow))
	}
	for _, vc := range valCols {
		cells := make([][]float64, len(colOrder))
		texts := make([][]string, len(colOrder))
		for j := range colOrder {
			if vc.kind == Float {
				cells[j] = NaNs(nRows)
			} else {
				texts[j] = make([]string, nRows)
			}
		}
		for i := 0; i < f.n; i++ {
			if vc.IsMissing(i) {
				continue
			}
			r := rowPos[rowKey(idxCols, i)]
			j := colPos[rowKey(colCols, i)]
			if vc.kind == Float {
				if isNaN(cells[j][r]) {
					cells[j][r] = vc.nums[i]
				}
			} else if texts[j][r] == "" {
				texts[j][r] = vc.strs[i]
			}
		}
		for j, k := range colOrder {
			n := name(vc.name, colKeys[k])
			if vc.kind == Float {
				cols = append(cols, FloatColumn(n, cells[j]))
			} else {
				cols = append(cols, StringColumn(n, texts[j]))
			}
		}
	}

	out, err := New(cols...)
	if err != nil {
		return nil, eris.Wrap(err, "table: pivot")
	}
	out.n = nRows
	out.name = f.name
	return out, nil
}

// Melt reshapes wide columns to long rows. For each value column, in order,
// every input row yields one output row carrying the id columns, the value
// column name under varName and its value under valueName.
func Melt(f *Frame, idVars, valueVars []string, varName, valueName string) (*Frame, error) {
	ids, err := f.keyCols(idVars)
	if err != nil {
		return nil, err
	}
	vals, err := f.keyCols(valueVars)
	if err != nil {
		return nil, err
	}
	allFloat := true
	for _, v := range vals {
		if v.kind != Float {
			allFloat = false
		}
	}

	total := f.n * len(vals)
	idx := make([]int, 0, total)
	vars := make([]string, 0, total)
	for _, v := range vals {
		for i := 0; i < f.n; i++ {
			idx = append(idx, i)
			vars = append(vars, v.name)
		}
	}

	var cols []*Column
	for _, c := range ids {
		cols = append(cols, c.take(idx))
	}
	cols = append(cols, StringColumn(varName, vars))
	if allFloat {
		nums := make([]float64, 0, total)
		for _, v := range vals {
			nums = append(nums, v.nums...)
		}
		cols = append(cols, FloatColumn(valueName, nums))
	} else {
		strs := make([]string, 0, total)
		for _, v := range vals {
			strs = append(strs, v.Strings()...)
		}
		cols = append(cols, StringColumn(valueName, strs))
	}

	out, err := New(cols...)
	if err != nil {
		return nil, eris.Wrap(err, "table: melt")
	}
	out.n = total
	out.name = f.name
	return out, nil
}

func isNaN(v float64) bool { return v != v }
