package reader

import (
	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"
	"github.com/twpayne/go-geom/xy"
	"go.uber.org/zap"

	"github.com/drm-lab/urbanrisk/internal/apperr"
	"github.com/drm-lab/urbanrisk/internal/table"
)

// Feature is one vector record: text attributes plus an optional geometry.
type Feature struct {
	Attrs map[string]string
	Geom  geom.T
}

// Layer is a set of features sharing one attribute schema.
type Layer struct {
	Name     string
	Fields   []string
	Features []Feature
}

// Frame converts the layer attributes to a frame. Columns restricts and
// orders the output; when empty every field is kept. Numeric columns are
// inferred as with CSV input.
func (l *Layer) Frame(columns ...string) (*table.Frame, error) {
	if len(columns) == 0 {
		columns = l.Fields
	}
	known := make(map[string]bool, len(l.Fields))
	for _, f := range l.Fields {
		known[f] = true
	}
	for _, c := range columns {
		if !known[c] {
			return nil, apperr.MissingColumn(c, l.Name)
		}
	}
	records := make([][]string, len(l.Features))
	for i, ft := range l.Features {
		rec := make([]string, len(columns))
		for j, c := range columns {
			rec[j] = ft.Attrs[c]
		}
		records[i] = rec
	}
	f, err := table.FromRecords(columns, records)
	if err != nil {
		return nil, err
	}
	return f.Named(l.Name), nil
}

// Centroid returns the area-weighted centroid of a geometry as (x, y),
// i.e. (longitude, latitude) for geographic data.
func Centroid(g geom.T) (float64, float64, error) {
	if g == nil || g.Empty() {
		return 0, 0, eris.New("geometry: empty geometry has no centroid")
	}
	c, err := xy.Centroid(g)
	if err != nil {
		return 0, 0, eris.Wrap(err, "geometry: centroid")
	}
	return c.X(), c.Y(), nil
}

// Envelope sizes in bytes indexed by the GeoPackage envelope indicator.
var gpkgEnvelopeSize = [...]int{0, 32, 48, 48, 64}

// DecodeGPKGGeometry decodes a GeoPackage geometry blob: the "GP" header
// (version, flags, SRS id, optional envelope) followed by standard WKB.
// Empty geometries decode to nil.
func DecodeGPKGGeometry(b []byte) (geom.T, error) {
	if len(b) == 0 {
		return nil, nil
	}
	if len(b) < 8 || b[0] != 'G' || b[1] != 'P' {
		return nil, eris.New("geometry: not a GeoPackage geometry blob")
	}
	flags := b[3]
	if flags&0x20 != 0 {
		return nil, eris.New("geometry: extended GeoPackage geometries are not supported")
	}
	env := int(flags>>1) & 0x07
	if env >= len(gpkgEnvelopeSize) {
		return nil, eris.Errorf("geometry: invalid envelope indicator %d", env)
	}
	if flags&0x10 != 0 {
		return nil, nil
	}
	start := 8 + gpkgEnvelopeSize[env]
	if len(b) < start {
		return nil, eris.New("geometry: truncated GeoPackage header")
	}
	g, err := wkb.Unmarshal(b[start:])
	if err != nil {
		return nil, eris.Wrap(err, "geometry: decode WKB")
	}
	return g, nil
}

// shapeToGeom converts a go-shp geometry. Unsupported shapes return nil.
func shapeToGeom(shape shp.Shape) geom.T {
	switch s := shape.(type) {
	case *shp.Point:
		return geom.NewPointFlat(geom.XY, []float64{s.X, s.Y}).SetSRID(4326)
	case *shp.Polygon:
		return polygonToMultiPolygon(s)
	default:
		return nil
	}
}

// polygonToMultiPolygon converts a shapefile Polygon to a geom.MultiPolygon,
// one polygon per part.
func polygonToMultiPolygon(p *shp.Polygon) geom.T {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	mp := geom.NewMultiPolygon(geom.XY).SetSRID(4326)
	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}

		flat := make([]float64, 0, 2*(end-start))
		for j := start; j < end; j++ {
			flat = append(flat, p.Points[j].X, p.Points[j].Y)
		}

		poly := geom.NewPolygon(geom.XY)
		if err := poly.Push(geom.NewLinearRingFlat(geom.XY, flat)); err != nil {
			zap.L().Debug("reader: skipping malformed polygon ring", zap.Int32("part", i), zap.Error(err))
			continue
		}
		if err := mp.Push(poly); err != nil {
			zap.L().Debug("reader: skipping malformed polygon part", zap.Int32("part", i), zap.Error(err))
			continue
		}
	}

	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}
