package reader

import (
	"path/filepath"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/drm-lab/urbanrisk/internal/apperr"
)

// ReadShapefile reads a shapefile. Field names are matched case-insensitively
// against VectorOptions.Columns; the requested spelling is kept.
func ReadShapefile(path string, opts VectorOptions) (*Layer, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "shapefile: open %s", path)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	fieldIdx := make(map[string]int, len(fields))
	var names []string
	for i, f := range fields {
		name := strings.TrimRight(f.String(), "\x00")
		fieldIdx[strings.ToLower(name)] = i
		names = append(names, name)
	}

	attrs := names
	if len(opts.Columns) > 0 {
		for _, c := range opts.Columns {
			if _, ok := fieldIdx[strings.ToLower(c)]; !ok {
				return nil, apperr.MissingColumn(c, path)
			}
		}
		attrs = opts.Columns
	}

	out := &Layer{Name: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)), Fields: attrs}
	var skipped int
	for reader.Next() {
		_, shape := reader.Shape()

		ft := Feature{Attrs: make(map[string]string, len(attrs))}
		for _, col := range attrs {
			ft.Attrs[col] = CleanText(reader.Attribute(fieldIdx[strings.ToLower(col)]))
		}
		if !opts.SkipGeometry {
			ft.Geom = shapeToGeom(shape)
			if ft.Geom == nil {
				skipped++
			}
		}
		out.Features = append(out.Features, ft)
	}

	if skipped > 0 {
		zap.L().Debug("shapefile: records without usable geometry",
			zap.String("path", path),
			zap.Int("skipped", skipped),
		)
	}
	return out, nil
}
