package dashboard

import (
	"sort"
	"time"

	"github.com/drm-lab/urbanrisk/internal/apperr"
	"github.com/drm-lab/urbanrisk/internal/panel"
	"github.com/drm-lab/urbanrisk/internal/region"
	"github.com/drm-lab/urbanrisk/internal/table"
)

// Marker is one city centroid.
type Marker struct {
	ID        string  `csv:"Agglomeration_ID" json:"id"`
	Name      string  `csv:"Agglomeration_Name" json:"name"`
	ISO3      string  `csv:"ISO3" json:"iso3"`
	Longitude float64 `csv:"Longitude" json:"longitude"`
	Latitude  float64 `csv:"Latitude" json:"latitude"`
}

// Snapshot is an immutable view of all loaded datasets. Callers must not
// modify the frames it returns.
type Snapshot struct {
	LoadedAt time.Time

	classifier  *region.Classifier
	frames      map[string]*table.Frame
	missing     map[string]string
	projections *panel.Panel
	growth      *panel.Panel
	markers     []Marker
}

// Classifier returns the country classification.
func (s *Snapshot) Classifier() *region.Classifier { return s.classifier }

// Name returns the display name of a country or region code.
func (s *Snapshot) Name(code string) string { return s.classifier.Name(code) }

// Frame returns a loaded dataset. A dataset whose file was absent at load
// time is a not-found error; the expected path is logged at load.
func (s *Snapshot) Frame(name string) (*table.Frame, error) {
	if f, ok := s.frames[name]; ok {
		return f, nil
	}
	if _, ok := s.missing[name]; ok {
		return nil, apperr.Newf(apperr.KindNotFound, "Dataset %s is not available", name)
	}
	return nil, apperr.Newf(apperr.KindNotFound, "unknown dataset %q", name)
}

// Projections returns the projection panel.
func (s *Snapshot) Projections() (*panel.Panel, error) {
	if s.projections == nil {
		_, err := s.Frame(DatasetProjections)
		return nil, err
	}
	return s.projections, nil
}

// GrowthRates returns the growth rate panel.
func (s *Snapshot) GrowthRates() (*panel.Panel, error) {
	if s.growth == nil {
		_, err := s.Frame(DatasetGrowthRates)
		return nil, err
	}
	return s.growth, nil
}

// Markers returns the city centroids.
func (s *Snapshot) Markers() []Marker { return s.markers }

// Missing lists datasets whose files were absent, sorted by name.
func (s *Snapshot) Missing() []string {
	out := make([]string, 0, len(s.missing))
	for name := range s.missing {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Loaded reports the number of datasets loaded.
func (s *Snapshot) Loaded() int { return len(s.frames) }
