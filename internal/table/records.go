package table

import (
	"math"
	"strings"

	"github.com/rotisserie/eris"
)

// FromRecords builds a frame from a header and string records. A column is
// stored as float when every non-empty cell parses as a number and at least
// one does; otherwise it stays text. Short records are padded with missing
// values.
func FromRecords(header []string, records [][]string) (*Frame, error) {
	cols := make([]*Column, len(header))
	for j, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "﻿"))
		strs := make([]string, len(records))
		numeric, seen := true, false
		for i, rec := range records {
			if j < len(rec) {
				strs[i] = strings.TrimSpace(rec[j])
			}
			if strs[i] == "" {
				continue
			}
			if math.IsNaN(ParseFloat(strs[i])) {
				numeric = false
				continue
			}
			seen = true
		}
		if numeric && seen {
			nums := make([]float64, len(strs))
			for i, s := range strs {
				nums[i] = ParseFloat(s)
			}
			cols[j] = FloatColumn(name, nums)
			continue
		}
		cols[j] = StringColumn(name, strs)
	}
	f, err := New(cols...)
	if err != nil {
		return nil, eris.Wrap(err, "table: from records")
	}
	f.n = len(records)
	return f, nil
}

// Records renders the frame as a header and string records.
func (f *Frame) Records() ([]string, [][]string) {
	header := f.Names()
	out := make([][]string, f.n)
	for i := range out {
		rec := make([]string, len(f.cols))
		for j, c := range f.cols {
			rec[j] = c.String(i)
		}
		out[i] = rec
	}
	return header, out
}

// AsText returns a copy of the frame with the named columns stored as text.
// Identifier columns such as ISO3 or unique ids use this to stop numeric
// inference from rewriting them.
func (f *Frame) AsText(names ...string) (*Frame, error) {
	out := f.Clone()
	for _, n := range names {
		c, err := out.Col(n)
		if err != nil {
			return nil, err
		}
		out.cols[out.index[n]] = c.asKind(String)
	}
	return out, nil
}

// AsFloat returns a copy of the frame with the named columns stored as numbers.
func (f *Frame) AsFloat(names ...string) (*Frame, error) {
	out := f.Clone()
	for _, n := range names {
		c, err := out.Col(n)
		if err != nil {
			return nil, err
		}
		out.cols[out.index[n]] = c.asKind(Float)
	}
	return out, nil
}
