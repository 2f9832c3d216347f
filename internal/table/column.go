// Package table is a small in-memory column store used by every pipeline
// step: typed columns, row filters, group transforms, relational merges with
// cardinality checks, long/wide reshaping and CSV record conversion.
//
// Missing values are NaN in float columns and "" in string columns.
package table

import (
	"math"
	"strconv"
	"strings"
)

// Kind is the storage type of a column.
type Kind int

const (
	String Kind = iota
	Float
)

func (k Kind) String() string {
	if k == Float {
		return "float"
	}
	return "string"
}

// Column is a named, typed vector.
type Column struct {
	name string
	kind Kind
	strs []string
	nums []float64
}

// StringColumn creates a string column. The slice is not copied.
func StringColumn(name string, vals []string) *Column {
	return &Column{name: name, kind: String, strs: vals}
}

// FloatColumn creates a float column. The slice is not copied.
func FloatColumn(name string, vals []float64) *Column {
	return &Column{name: name, kind: Float, nums: vals}
}

// Name returns the column name.
func (c *Column) Name() string { return c.name }

// Kind returns the column storage type.
func (c *Column) Kind() Kind { return c.kind }

// Len returns the number of values.
func (c *Column) Len() int {
	if c.kind == Float {
		return len(c.nums)
	}
	return len(c.strs)
}

// String returns value i as text. Missing floats render as "".
func (c *Column) String(i int) string {
	if c.kind == String {
		return c.strs[i]
	}
	return FormatFloat(c.nums[i])
}

// Float returns value i as a number. Unparsable strings are NaN.
func (c *Column) Float(i int) float64 {
	if c.kind == Float {
		return c.nums[i]
	}
	return ParseFloat(c.strs[i])
}

// IsMissing reports whether value i is missing.
func (c *Column) IsMissing(i int) bool {
	if c.kind == Float {
		return math.IsNaN(c.nums[i])
	}
	return c.strs[i] == ""
}

// Floats returns a copy of the column as numbers.
func (c *Column) Floats() []float64 {
	out := make([]float64, c.Len())
	for i := range out {
		out[i] = c.Float(i)
	}
	return out
}

// Strings returns a copy of the column as text.
func (c *Column) Strings() []string {
	out := make([]string, c.Len())
	for i := range out {
		out[i] = c.String(i)
	}
	return out
}

// withName returns a shallow copy under a new name.
func (c *Column) withName(name string) *Column {
	return &Column{name: name, kind: c.kind, strs: c.strs, nums: c.nums}
}

// clone deep-copies the column.
func (c *Column) clone() *Column {
	out := &Column{name: c.name, kind: c.kind}
	if c.kind == Float {
		out.nums = append([]float64(nil), c.nums...)
	} else {
		out.strs = append([]string(nil), c.strs...)
	}
	return out
}

// take builds a column from the given row positions; -1 yields a missing value.
func (c *Column) take(idx []int) *Column {
	out := &Column{name: c.name, kind: c.kind}
	if c.kind == Float {
		out.nums = make([]float64, len(idx))
		for j, i := range idx {
			if i < 0 {
				out.nums[j] = math.NaN()
				continue
			}
			out.nums[j] = c.nums[i]
		}
		return out
	}
	out.strs = make([]string, len(idx))
	for j, i := range idx {
		if i >= 0 {
			out.strs[j] = c.strs[i]
		}
	}
	return out
}

// asKind converts the column to the requested kind.
func (c *Column) asKind(k Kind) *Column {
	if c.kind == k {
		return c
	}
	if k == String {
		return StringColumn(c.name, c.Strings())
	}
	return FloatColumn(c.name, c.Floats())
}

// missingColumn returns an all-missing column of length n.
func missingColumn(name string, kind Kind, n int) *Column {
	if kind == Float {
		nums := make([]float64, n)
		for i := range nums {
			nums[i] = math.NaN()
		}
		return FloatColumn(name, nums)
	}
	return StringColumn(name, make([]string, n))
}

// FormatFloat renders a float the way processed files store it: shortest
// round-trip representation, "" for missing or non-finite values.
func FormatFloat(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ParseFloat parses a numeric cell. Empty and unparsable cells are NaN.
func ParseFloat(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// NaNs returns a slice of n missing floats.
func NaNs(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
