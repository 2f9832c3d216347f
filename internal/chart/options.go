package chart

import (
	"math"
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"github.com/drm-lab/urbanrisk/internal/dashboard"
	"github.com/drm-lab/urbanrisk/internal/metric"
	"github.com/drm-lab/urbanrisk/internal/region"
)

// Option is a selectable value with its display label.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// City option sources.
const (
	SourceGrowth = "growth"
	SourceFlood  = "flood"

	defaultCityCount = 5
)

// CityOptions lists the selectable cities and the ones selected by default.
type CityOptions struct {
	Options  []Option `json:"options"`
	Selected []string `json:"selected"`
}

// MapView is the set of markers for a selection and the viewport fitting
// them.
type MapView struct {
	CenterLat float64     `json:"center_lat"`
	CenterLon float64     `json:"center_lon"`
	Zoom      int         `json:"zoom"`
	Markers   []MapMarker `json:"markers"`
}

// MapMarker is a city centroid with its country name.
type MapMarker struct {
	dashboard.Marker
	Country string `json:"country"`
}

func normalizeName(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

func sortNames(names []string) {
	collate.New(language.English, collate.Loose).SortStrings(names)
}

// Countries lists the regions followed by the Sub-Saharan African countries
// in alphabetical order of their names.
func Countries(s *dashboard.Snapshot) []Option {
	out := make([]Option, 0, len(region.All))
	for _, r := range region.All {
		out = append(out, Option{Value: string(r), Label: r.Name()})
	}
	countries := s.Classifier().SSACountries()
	byName := make(map[string]string, len(countries))
	names := make([]string, 0, len(countries))
	for _, c := range countries {
		name := normalizeName(c.Name)
		byName[name] = c.ISO3
		names = append(names, name)
	}
	sortNames(names)
	for _, n := range names {
		out = append(out, Option{Value: byName[n], Label: n})
	}
	return out
}

// CityOptionsFor lists the cities of a country or region alphabetically
// and preselects the most populous ones. An empty or unknown country, or a
// missing dataset, yields empty lists.
func CityOptionsFor(s *dashboard.Snapshot, country, source string) CityOptions {
	empty := CityOptions{Options: []Option{}, Selected: []string{}}
	code, err := checkCountry(s, country)
	if err != nil {
		return empty
	}
	dataset, year := dashboard.DatasetCities, popPeriod[1]
	if source == SourceFlood {
		dataset, year = dashboard.DatasetCityFlood, popPeriod[0]
	}
	popCol := metric.YearColumn(colPop, year)
	rows, err := cityRows(s, dataset, code, popCol)
	if err != nil {
		return empty
	}

	seen := make(map[string]bool, rows.Len())
	names := make([]string, 0, rows.Len())
	type ranked struct {
		name string
		pop  float64
	}
	var byPop []ranked
	for i := range rows.Len() {
		r := rows.Row(i)
		name := normalizeName(r.Str(colCityName))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
		if p := r.Num(popCol); !math.IsNaN(p) {
			byPop = append(byPop, ranked{name, p})
		}
	}
	sortNames(names)
	sort.SliceStable(byPop, func(i, j int) bool { return byPop[i].pop > byPop[j].pop })

	out := CityOptions{Options: make([]Option, len(names)), Selected: []string{}}
	for i, n := range names {
		out.Options[i] = Option{Value: n, Label: n}
	}
	for i := 0; i < len(byPop) && i < defaultCityCount; i++ {
		out.Selected = append(out.Selected, byPop[i].name)
	}
	return out
}

// MapMarkers returns the centroids of a country's or region's cities,
// optionally restricted to named cities, with a viewport that fits them.
func MapMarkers(s *dashboard.Snapshot, country string, cities []string) MapView {
	view := MapView{Zoom: 3, Markers: []MapMarker{}}
	code, err := checkCountry(s, country)
	if err != nil {
		return view
	}
	match := codeMatcher(s, code)
	want := make(map[string]bool, len(cities))
	for _, c := range cities {
		want[normalizeName(c)] = true
	}

	var lats, lons []float64
	for _, m := range s.Markers() {
		if !match(m.ISO3) {
			continue
		}
		if len(want) > 0 && !want[normalizeName(m.Name)] {
			continue
		}
		view.Markers = append(view.Markers, MapMarker{Marker: m, Country: s.Name(m.ISO3)})
		lats = append(lats, m.Latitude)
		lons = append(lons, m.Longitude)
	}
	if len(view.Markers) == 0 {
		return view
	}
	view.CenterLat, view.CenterLon = mean(lats), mean(lons)
	view.Zoom = zoomFor(max(spread(lats), spread(lons)))
	return view
}

func mean(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x
	}
	return sum / float64(len(v))
}

func spread(v []float64) float64 {
	lo, hi := v[0], v[0]
	for _, x := range v[1:] {
		lo, hi = min(lo, x), max(hi, x)
	}
	return hi - lo
}

func zoomFor(rangeDeg float64) int {
	switch {
	case rangeDeg > 20:
		return 4
	case rangeDeg > 10:
		return 5
	case rangeDeg > 5:
		return 6
	case rangeDeg > 2:
		return 7
	case rangeDeg > 1:
		return 8
	case rangeDeg > 0.5:
		return 9
	default:
		return 10
	}
}
