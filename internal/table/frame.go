package table

import (
	"math"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/drm-lab/urbanrisk/internal/apperr"
)

// Frame is an ordered set of equal-length columns.
type Frame struct {
	name  string
	cols  []*Column
	index map[string]int
	n     int
}

// New builds a frame from columns of equal length. Duplicate names are rejected.
func New(cols ...*Column) (*Frame, error) {
	f := &Frame{index: make(map[string]int, len(cols))}
	for i, c := range cols {
		if i == 0 {
			f.n = c.Len()
		}
		if c.Len() != f.n {
			return nil, eris.Errorf("table: column %q has %d rows, want %d", c.name, c.Len(), f.n)
		}
		if _, dup := f.index[c.name]; dup {
			return nil, eris.Errorf("table: duplicate column %q", c.name)
		}
		f.index[c.name] = len(f.cols)
		f.cols = append(f.cols, c)
	}
	return f, nil
}

// mustFrame is used by operations that construct columns of a known length.
func mustFrame(cols ...*Column) *Frame {
	f, err := New(cols...)
	if err != nil {
		panic(err)
	}
	return f
}

// Named attaches a dataset name used in schema errors.
func (f *Frame) Named(name string) *Frame {
	f.name = name
	return f
}

// DatasetName returns the name attached with Named.
func (f *Frame) DatasetName() string { return f.name }

// Len returns the number of rows.
func (f *Frame) Len() int { return f.n }

// Width returns the number of columns.
func (f *Frame) Width() int { return len(f.cols) }

// Names returns the column names in order.
func (f *Frame) Names() []string {
	out := make([]string, len(f.cols))
	for i, c := range f.cols {
		out[i] = c.name
	}
	return out
}

// Has reports whether a column exists.
func (f *Frame) Has(name string) bool {
	_, ok := f.index[name]
	return ok
}

// Col returns a column by name, or a schema error naming the column.
func (f *Frame) Col(name string) (*Column, error) {
	i, ok := f.index[name]
	if !ok {
		return nil, apperr.MissingColumn(name, f.name)
	}
	return f.cols[i], nil
}

// Require checks that all named columns exist.
func (f *Frame) Require(names ...string) error {
	for _, n := range names {
		if !f.Has(n) {
			return apperr.MissingColumn(n, f.name)
		}
	}
	return nil
}

// Floats returns a copy of a column as numbers.
func (f *Frame) Floats(name string) ([]float64, error) {
	c, err := f.Col(name)
	if err != nil {
		return nil, err
	}
	return c.Floats(), nil
}

// Strings returns a copy of a column as text.
func (f *Frame) Strings(name string) ([]string, error) {
	c, err := f.Col(name)
	if err != nil {
		return nil, err
	}
	return c.Strings(), nil
}

// Set adds a column, replacing any column with the same name in place.
func (f *Frame) Set(c *Column) error {
	if len(f.cols) > 0 && c.Len() != f.n {
		return eris.Errorf("table: column %q has %d rows, want %d", c.name, c.Len(), f.n)
	}
	if len(f.cols) == 0 {
		f.n = c.Len()
	}
	if i, ok := f.index[c.name]; ok {
		f.cols[i] = c
		return nil
	}
	f.index[c.name] = len(f.cols)
	f.cols = append(f.cols, c)
	return nil
}

// SetFloat adds or replaces a float column.
func (f *Frame) SetFloat(name string, vals []float64) error {
	return f.Set(FloatColumn(name, vals))
}

// SetString adds or replaces a string column.
func (f *Frame) SetString(name string, vals []string) error {
	return f.Set(StringColumn(name, vals))
}

// Clone deep-copies the frame.
func (f *Frame) Clone() *Frame {
	cols := make([]*Column, len(f.cols))
	for i, c := range f.cols {
		cols[i] = c.clone()
	}
	out := mustFrame(cols...)
	out.n = f.n
	out.name = f.name
	return out
}

// Select returns a frame with only the named columns, in the given order.
func (f *Frame) Select(names ...string) (*Frame, error) {
	cols := make([]*Column, 0, len(names))
	for _, n := range names {
		c, err := f.Col(n)
		if err != nil {
			return nil, err
		}
		cols = append(cols, c)
	}
	out, err := New(cols...)
	if err != nil {
		return nil, err
	}
	out.n = f.n
	out.name = f.name
	return out, nil
}

// Rename returns a frame with columns renamed per the mapping.
func (f *Frame) Rename(mapping map[string]string) (*Frame, error) {
	cols := make([]*Column, len(f.cols))
	for i, c := range f.cols {
		if to, ok := mapping[c.name]; ok {
			cols[i] = c.withName(to)
			continue
		}
		cols[i] = c
	}
	out, err := New(cols...)
	if err != nil {
		return nil, eris.Wrap(err, "table: rename")
	}
	out.n = f.n
	out.name = f.name
	return out, nil
}

// Take returns the rows at the given positions, in that order.
func (f *Frame) Take(idx []int) *Frame {
	cols := make([]*Column, len(f.cols))
	for i, c := range f.cols {
		cols[i] = c.take(idx)
	}
	out := mustFrame(cols...)
	out.n = len(idx)
	out.name = f.name
	return out
}

// Row is a read-only view of one frame row.
type Row struct {
	f *Frame
	i int
}

// Index returns the row position.
func (r Row) Index() int { return r.i }

// Str returns the named value as text, "" if the column does not exist.
func (r Row) Str(name string) string {
	c, ok := r.f.index[name]
	if !ok {
		return ""
	}
	return r.f.cols[c].String(r.i)
}

// Num returns the named value as a number, NaN if the column does not exist.
func (r Row) Num(name string) float64 {
	c, ok := r.f.index[name]
	if !ok {
		return math.NaN()
	}
	return r.f.cols[c].Float(r.i)
}

// Row returns a view of row i.
func (f *Frame) Row(i int) Row { return Row{f: f, i: i} }

// Filter keeps the rows for which keep returns true.
func (f *Frame) Filter(keep func(Row) bool) *Frame {
	var idx []int
	for i := 0; i < f.n; i++ {
		if keep(Row{f: f, i: i}) {
			idx = append(idx, i)
		}
	}
	return f.Take(idx)
}

// keyCols resolves key columns.
func (f *Frame) keyCols(keys []string) ([]*Column, error) {
	cols := make([]*Column, len(keys))
	for i, k := range keys {
		c, err := f.Col(k)
		if err != nil {
			return nil, err
		}
		cols[i] = c
	}
	return cols, nil
}

const keySep = "\x1f"

// rowKey joins the textual key values of row i.
func rowKey(cols []*Column, i int) string {
	if len(cols) == 1 {
		return cols[0].String(i)
	}
	parts := make([]string, len(cols))
	for j, c := range cols {
		parts[j] = c.String(i)
	}
	return strings.Join(parts, keySep)
}

// Group is a set of rows sharing key values.
type Group struct {
	Key  []string
	Rows []int
}

// Groups partitions the rows by key columns, in first-appearance order.
func (f *Frame) Groups(keys ...string) ([]Group, error) {
	cols, err := f.keyCols(keys)
	if err != nil {
		return nil, err
	}
	pos := make(map[string]int)
	var groups []Group
	for i := 0; i < f.n; i++ {
		k := rowKey(cols, i)
		g, ok := pos[k]
		if !ok {
			vals := make([]string, len(cols))
			for j, c := range cols {
				vals[j] = c.String(i)
			}
			g = len(groups)
			pos[k] = g
			groups = append(groups, Group{Key: vals})
		}
		groups[g].Rows = append(groups[g].Rows, i)
	}
	return groups, nil
}

// Transform applies fn to the values of col within each key group and
// returns a full-length result aligned with the frame rows.
func (f *Frame) Transform(keys []string, col string, fn func([]float64) []float64) ([]float64, error) {
	c, err := f.Col(col)
	if err != nil {
		return nil, err
	}
	groups, err := f.Groups(keys...)
	if err != nil {
		return nil, err
	}
	out := NaNs(f.n)
	for _, g := range groups {
		vals := make([]float64, len(g.Rows))
		for j, i := range g.Rows {
			vals[j] = c.Float(i)
		}
		res := fn(vals)
		if len(res) != len(vals) {
			return nil, eris.Errorf("table: transform on %q returned %d values for a group of %d", col, len(res), len(vals))
		}
		for j, i := range g.Rows {
			out[i] = res[j]
		}
	}
	return out, nil
}

// SortBy returns the frame stably sorted by the given columns, ascending.
// Float columns compare numerically with missing values last.
func (f *Frame) SortBy(keys ...string) (*Frame, error) {
	cols, err := f.keyCols(keys)
	if err != nil {
		return nil, err
	}
	idx := make([]int, f.n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		for _, c := range cols {
			if cmp := compareCells(c, idx[a], idx[b]); cmp != 0 {
				return cmp < 0
			}
		}
		return false
	})
	return f.Take(idx), nil
}

func compareCells(c *Column, a, b int) int {
	if c.kind == Float {
		return compareFloats(c.nums[a], c.nums[b])
	}
	return strings.Compare(c.strs[a], c.strs[b])
}

func compareFloats(x, y float64) int {
	xn, yn := math.IsNaN(x), math.IsNaN(y)
	switch {
	case xn && yn:
		return 0
	case xn:
		return 1
	case yn:
		return -1
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}

// compareText orders key texts numerically when both parse as numbers.
func compareText(a, b string) int {
	x, y := ParseFloat(a), ParseFloat(b)
	if !math.IsNaN(x) && !math.IsNaN(y) {
		return compareFloats(x, y)
	}
	return strings.Compare(a, b)
}

// Concat stacks frames vertically. The result has the union of columns in
// first-seen order; columns absent from a frame are missing for its rows.
// A column that is float in one frame and string in another becomes string.
func Concat(frames ...*Frame) *Frame {
	var names []string
	kinds := make(map[string]Kind)
	for _, f := range frames {
		if f == nil {
			continue
		}
		for _, c := range f.cols {
			k, seen := kinds[c.name]
			if !seen {
				names = append(names, c.name)
				kinds[c.name] = c.kind
				continue
			}
			if k != c.kind {
				kinds[c.name] = String
			}
		}
	}

	total := 0
	for _, f := range frames {
		if f != nil {
			total += f.n
		}
	}

	cols := make([]*Column, len(names))
	for j, name := range names {
		if kinds[name] == Float {
			nums := make([]float64, 0, total)
			for _, f := range frames {
				if f == nil {
					continue
				}
				if c, ok := f.index[name]; ok {
					nums = append(nums, f.cols[c].nums...)
				} else {
					nums = append(nums, NaNs(f.n)...)
				}
			}
			cols[j] = FloatColumn(name, nums)
			continue
		}
		strs := make([]string, 0, total)
		for _, f := range frames {
			if f == nil {
				continue
			}
			if c, ok := f.index[name]; ok {
				strs = append(strs, f.cols[c].asKind(String).strs...)
			} else {
				strs = append(strs, make([]string, f.n)...)
			}
		}
		cols[j] = StringColumn(name, strs)
	}

	out := mustFrame(cols...)
	out.n = total
	for _, f := range frames {
		if f != nil && f.name != "" {
			out.name = f.name
			break
		}
	}
	return out
}
