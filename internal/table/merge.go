package table

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// How selects the join type of a merge.
type How int

const (
	Inner How = iota
	Left
	Outer
)

// Validate declares the expected key cardinality of a merge.
type Validate int

const (
	ValidateNone Validate = iota
	OneToOne
	OneToMany
	ManyToOne
)

func (v Validate) String() string {
	switch v {
	case OneToOne:
		return "1:1"
	case OneToMany:
		return "1:m"
	case ManyToOne:
		return "m:1"
	default:
		return "none"
	}
}

// MergeOptions configures Merge.
type MergeOptions struct {
	On       []string
	How      How
	Validate Validate
	// Suffixes disambiguate non-key columns present on both sides.
	// Defaults to "_x" and "_y".
	Suffixes [2]string
}

// CardinalityError reports a key that violates the declared merge cardinality.
type CardinalityError struct {
	Validate Validate
	Side     string
	Key      []string
	Count    int
}

func (e *CardinalityError) Error() string {
	return fmt.Sprintf("table: merge keys are not unique in %s dataset (%s): key [%s] appears %d times",
		e.Side, e.Validate, strings.Join(e.Key, ", "), e.Count)
}

// Merge joins two frames on key columns. Output rows follow left order with
// each left row expanded over its right matches; for outer merges the
// unmatched right rows follow in right order. Keys match on their textual
// form, so 2020 and 2020.0 stored as floats compare equal.
func Merge(left, right *Frame, opts MergeOptions) (*Frame, error) {
	if len(opts.On) == 0 {
		return nil, eris.New("table: merge requires at least one key column")
	}
	if opts.Suffixes == [2]string{} {
		opts.Suffixes = [2]string{"_x", "_y"}
	}
	lk, err := left.keyCols(opts.On)
	if err != nil {
		return nil, err
	}
	rk, err := right.keyCols(opts.On)
	if err != nil {
		return nil, err
	}

	rightRows := make(map[string][]int)
	var rightOrder []string
	for i := 0; i < right.n; i++ {
		k := rowKey(rk, i)
		if _, ok := rightRows[k]; !ok {
			rightOrder = append(rightOrder, k)
		}
		rightRows[k] = append(rightRows[k], i)
	}

	if opts.Validate == OneToOne || opts.Validate == ManyToOne {
		for _, k := range rightOrder {
			if rows := rightRows[k]; len(rows) > 1 {
				return nil, &CardinalityError{Validate: opts.Validate, Side: "right", Key: strings.Split(k, keySep), Count: len(rows)}
			}
		}
	}
	if opts.Validate == OneToOne || opts.Validate == OneToMany {
		counts := make(map[string]int)
		for i := 0; i < left.n; i++ {
			counts[rowKey(lk, i)]++
		}
		for i := 0; i < left.n; i++ {
			k := rowKey(lk, i)
			if counts[k] > 1 {
				return nil, &CardinalityError{Validate: opts.Validate, Side: "left", Key: strings.Split(k, keySep), Count: counts[k]}
			}
		}
	}

	var li, ri []int
	matched := make(map[string]bool)
	for i := 0; i < left.n; i++ {
		k := rowKey(lk, i)
		rows, ok := rightRows[k]
		if ok {
			matched[k] = true
			for _, r := range rows {
				li = append(li, i)
				ri = append(ri, r)
			}
			continue
		}
		if opts.How != Inner {
			li = append(li, i)
			ri = append(ri, -1)
		}
	}
	if opts.How == Outer {
		for _, k := range rightOrder {
			if matched[k] {
				continue
			}
			for _, r := range rightRows[k] {
				li = append(li, -1)
				ri = append(ri, r)
			}
		}
	}

	isKey := make(map[string]bool, len(opts.On))
	for _, k := range opts.On {
		isKey[k] = true
	}

	var cols []*Column
	for j, name := range opts.On {
		cols = append(cols, mergeKey(name, lk[j], rk[j], li, ri))
	}
	for _, c := range left.cols {
		if isKey[c.name] {
			continue
		}
		name := c.name
		if right.Has(name) {
			name += opts.Suffixes[0]
		}
		cols = append(cols, c.take(li).withName(name))
	}
	for _, c := range right.cols {
		if isKey[c.name] {
			continue
		}
		name := c.name
		if left.Has(name) {
			name += opts.Suffixes[1]
		}
		cols = append(cols, c.take(ri).withName(name))
	}

	out, err := New(cols...)
	if err != nil {
		return nil, err
	}
	out.n = len(li)
	out.name = left.name
	return out, nil
}

// mergeKey coalesces a key column from both sides. The left kind wins unless
// the sides disagree, in which case the key is kept as text.
func mergeKey(name string, l, r *Column, li, ri []int) *Column {
	if l.kind == Float && r.kind == Float {
		nums := make([]float64, len(li))
		for j := range li {
			if li[j] >= 0 {
				nums[j] = l.nums[li[j]]
			} else {
				nums[j] = r.nums[ri[j]]
			}
		}
		return FloatColumn(name, nums)
	}
	strs := make([]string, len(li))
	for j := range li {
		if li[j] >= 0 {
			strs[j] = l.String(li[j])
		} else {
			strs[j] = r.String(ri[j])
		}
	}
	return StringColumn(name, strs)
}
