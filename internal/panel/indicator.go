// Package panel holds the long-format year-series panel of country
// indicators: one observation per (ISO3, indicator, year).
package panel

import (
	"github.com/drm-lab/urbanrisk/internal/apperr"
)

// Indicator is a member of the closed set of panel indicators.
type Indicator string

// Bound is a projection variant.
type Bound string

const (
	Median  Bound = "median"
	Lower95 Bound = "lower95"
	Lower80 Bound = "lower80"
	Upper80 Bound = "upper80"
	Upper95 Bound = "upper95"
)

// Bounds lists the projection variants in workbook order.
var Bounds = []Bound{Median, Lower95, Lower80, Upper80, Upper95}

// Area is an urban or rural population domain.
type Area string

const (
	Urban Area = "urban"
	Rural Area = "rural"
)

// Areas lists both domains.
var Areas = []Area{Urban, Rural}

// WPP returns the WPP total-population indicator for a bound.
func WPP(b Bound) Indicator { return Indicator("wpp_" + string(b)) }

// WUPPop returns the WUP population indicator (millions) for an area.
func WUPPop(a Area) Indicator { return Indicator("wup_" + string(a) + "_pop") }

// WUPProp returns the WUP population proportion indicator for an area.
func WUPProp(a Area) Indicator { return Indicator("wup_" + string(a) + "_prop") }

// Pop returns the bounded area population indicator, e.g. urban_pop_lower80.
func Pop(a Area, b Bound) Indicator { return Indicator(string(a) + "_pop_" + string(b)) }

// Growth returns the historical growth-rate indicator for an area.
func Growth(a Area) Indicator { return Indicator(string(a) + "_growth_rate") }

// BoundGrowth returns the projected growth-rate indicator, e.g.
// urban_median_growth_rate.
func BoundGrowth(a Area, b Bound) Indicator {
	return Indicator(string(a) + "_" + string(b) + "_growth_rate")
}

var known = func() map[Indicator]bool {
	m := make(map[Indicator]bool)
	for _, b := range Bounds {
		m[WPP(b)] = true
	}
	for _, a := range Areas {
		m[WUPPop(a)] = true
		m[WUPProp(a)] = true
		m[Growth(a)] = true
		for _, b := range Bounds {
			m[Pop(a, b)] = true
			m[BoundGrowth(a, b)] = true
		}
	}
	return m
}()

// Valid reports whether the indicator belongs to the closed set.
func (i Indicator) Valid() bool { return known[i] }

// ParseIndicator validates an indicator key read from a file.
func ParseIndicator(s string) (Indicator, error) {
	i := Indicator(s)
	if !i.Valid() {
		return "", apperr.Newf(apperr.KindSchema, "unknown indicator %q", s)
	}
	return i, nil
}

// IsPopulationSum reports whether regional aggregates of the indicator are
// sums of member values. Proportions and growth rates are not additive.
func (i Indicator) IsPopulationSum() bool {
	for _, b := range Bounds {
		if i == WPP(b) {
			return true
		}
	}
	for _, a := range Areas {
		if i == WUPPop(a) {
			return true
		}
		for _, b := range Bounds {
			if i == Pop(a, b) {
				return true
			}
		}
	}
	return false
}
