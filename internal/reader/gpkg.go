package reader

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/drm-lab/urbanrisk/internal/apperr"
	"github.com/drm-lab/urbanrisk/internal/table"
)

// VectorOptions configures vector layer reads.
type VectorOptions struct {
	// Layer selects a GeoPackage feature table; empty picks the first one
	// listed in gpkg_contents.
	Layer string
	// Columns restricts the attributes read; empty reads all of them.
	Columns []string
	// SkipGeometry leaves Feature.Geom nil, which is much faster when only
	// attributes are needed.
	SkipGeometry bool
}

// ReadVector reads a GeoPackage or a shapefile depending on the extension.
func ReadVector(ctx context.Context, path, what string, opts VectorOptions) (*Layer, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, apperr.MissingFile(what, path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".shp":
		return ReadShapefile(path, opts)
	case ".gpkg":
		return ReadGPKG(ctx, path, opts)
	default:
		return nil, apperr.Newf(apperr.KindInvalid, "unsupported vector format %q", filepath.Ext(path))
	}
}

// ReadGPKG reads one feature table of a GeoPackage.
func ReadGPKG(ctx context.Context, path string, opts VectorOptions) (*Layer, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "gpkg: open")
	}
	defer db.Close() //nolint:errcheck

	layer := opts.Layer
	if layer == "" {
		err := db.QueryRowContext(ctx,
			`SELECT table_name FROM gpkg_contents WHERE data_type = 'features' ORDER BY table_name LIMIT 1`,
		).Scan(&layer)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.Newf(apperr.KindSchema, "GeoPackage %s has no feature layer", path)
		}
		if err != nil {
			return nil, eris.Wrap(err, "gpkg: list layers")
		}
	}

	var geomCol string
	err = db.QueryRowContext(ctx,
		`SELECT column_name FROM gpkg_geometry_columns WHERE table_name = ?`, layer,
	).Scan(&geomCol)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrap(err, "gpkg: geometry column")
	}

	fields, err := tableColumns(ctx, db, layer)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, apperr.Newf(apperr.KindSchema, "GeoPackage layer %q not found in %s", layer, path)
	}

	var attrs []string
	available := make(map[string]bool, len(fields))
	for _, f := range fields {
		available[f] = true
		if f != geomCol && f != "fid" {
			attrs = append(attrs, f)
		}
	}
	if len(opts.Columns) > 0 {
		for _, c := range opts.Columns {
			if !available[c] {
				return nil, apperr.MissingColumn(c, layer)
			}
		}
		attrs = opts.Columns
	}

	selectCols := make([]string, 0, len(attrs)+1)
	for _, a := range attrs {
		selectCols = append(selectCols, quoteIdent(a))
	}
	withGeom := geomCol != "" && !opts.SkipGeometry
	if withGeom {
		selectCols = append(selectCols, quoteIdent(geomCol))
	}
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(selectCols, ", "), quoteIdent(layer))

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, eris.Wrapf(err, "gpkg: query layer %s", layer)
	}
	defer rows.Close() //nolint:errcheck

	out := &Layer{Name: layer, Fields: attrs}
	var badGeom int
	for rows.Next() {
		vals := make([]any, len(selectCols))
		ptrs := make([]any, len(selectCols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, eris.Wrap(err, "gpkg: scan row")
		}
		ft := Feature{Attrs: make(map[string]string, len(attrs))}
		for i, a := range attrs {
			ft.Attrs[a] = CleanText(sqlText(vals[i]))
		}
		if withGeom {
			blob, _ := vals[len(attrs)].([]byte)
			g, err := DecodeGPKGGeometry(blob)
			if err != nil {
				badGeom++
			} else {
				ft.Geom = g
			}
		}
		out.Features = append(out.Features, ft)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "gpkg: iterate rows")
	}

	if badGeom > 0 {
		zap.L().Warn("gpkg: undecodable geometries",
			zap.String("layer", layer),
			zap.Int("count", badGeom),
		)
	}
	return out, nil
}

// ReadGPKGFrame reads the attributes of a GeoPackage layer as a frame.
func ReadGPKGFrame(ctx context.Context, path, what string, opts VectorOptions) (*table.Frame, error) {
	opts.SkipGeometry = true
	layer, err := ReadVector(ctx, path, what, opts)
	if err != nil {
		return nil, err
	}
	f, err := layer.Frame()
	if err != nil {
		return nil, err
	}
	return f.Named(what), nil
}

func tableColumns(ctx context.Context, db *sql.DB, tbl string) ([]string, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(tbl)))
	if err != nil {
		return nil, eris.Wrap(err, "gpkg: table info")
	}
	defer rows.Close() //nolint:errcheck

	var cols []string
	for rows.Next() {
		var (
			cid      int
			name     string
			typ      string
			notNull  int
			defValue any
			pk       int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &defValue, &pk); err != nil {
			return nil, eris.Wrap(err, "gpkg: scan table info")
		}
		cols = append(cols, name)
	}
	return cols, eris.Wrap(rows.Err(), "gpkg: iterate table info")
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func sqlText(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return table.FormatFloat(x)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}
