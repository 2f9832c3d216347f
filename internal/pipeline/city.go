package pipeline

import (
	"context"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/drm-lab/urbanrisk/internal/metric"
	"github.com/drm-lab/urbanrisk/internal/reader"
	"github.com/drm-lab/urbanrisk/internal/table"
)

// Africapolis attributes.
const (
	colAggloID       = "Agglomeration_ID"
	colAggloName     = "Agglomeration_Name"
	colISO3          = "ISO3"
	colGeometryYear  = "Select_Geometry_Year"
	africapolisPopPx = "Population_"
	africapolisStep  = 5
)

// City-level outputs.
const (
	OutCitiesIndividual = "cities_individual.csv"
	OutCentroids        = "africapolis2024_centroids.csv"
)

func africapolisPopColumn(year int) string {
	return africapolisPopPx + strconv.Itoa(year)
}

// AfricapolisCities lists SSA agglomeration populations in thousands, one
// row per city and year, with a size class.
type AfricapolisCities struct{}

func (s *AfricapolisCities) Name() string      { return "africapolis_cities" }
func (s *AfricapolisCities) Phase() Phase      { return PhaseCity }
func (s *AfricapolisCities) Outputs() []string { return []string{OutCitiesIndividual} }

func (s *AfricapolisCities) Run(ctx context.Context, env *Env) (*Result, error) {
	c, err := env.Classifier()
	if err != nil {
		return nil, err
	}
	cfg := env.Config.Pipeline

	var popCols []string
	for y := cfg.CityListFirstYear; y <= cfg.CityListLastYear; y += africapolisStep {
		popCols = append(popCols, africapolisPopColumn(y))
	}
	cols := append([]string{colAggloName, colISO3, colGeometryYear}, popCols...)

	f, err := reader.ReadGPKGFrame(ctx, env.africapolisPath(), "Africapolis", reader.VectorOptions{Columns: cols})
	if err != nil {
		return nil, err
	}
	if f, err = f.AsText(colAggloName, colISO3); err != nil {
		return nil, err
	}
	f = f.Filter(func(r table.Row) bool {
		return c.InSSA(r.Str(colISO3)) && int(r.Num(colGeometryYear)) == cfg.GeometryYear
	})

	if f, err = f.Select(append([]string{colAggloName, colISO3}, popCols...)...); err != nil {
		return nil, err
	}
	if f, err = f.Rename(map[string]string{colAggloName: "City Name", colISO3: "Country Code"}); err != nil {
		return nil, err
	}
	if f, err = f.AsFloat(popCols...); err != nil {
		return nil, err
	}
	long, err := table.Melt(f, []string{"City Name", "Country Code"}, popCols, "Year", "Population")
	if err != nil {
		return nil, err
	}

	labels, _ := long.Strings("Year")
	pop, _ := long.Floats("Population")
	years := make([]float64, len(labels))
	sizes := make([]string, len(labels))
	for i := range labels {
		years[i] = table.ParseFloat(strings.TrimPrefix(labels[i], africapolisPopPx))
		pop[i] /= 1000
		sizes[i] = metric.SizeCategoryThousands(pop[i])
	}
	if err := long.SetFloat("Year", years); err != nil {
		return nil, err
	}
	if err := long.SetFloat("Population", pop); err != nil {
		return nil, err
	}
	if err := long.SetString("Size Category", sizes); err != nil {
		return nil, err
	}

	res := &Result{}
	if err := env.write(ctx, res, OutCitiesIndividual, long); err != nil {
		return nil, err
	}
	return res, nil
}

// AfricapolisCentroids writes one marker per SSA agglomeration of the
// centroid geometry vintage. Boundaries are expected in EPSG:4326.
type AfricapolisCentroids struct{}

func (s *AfricapolisCentroids) Name() string      { return "africapolis_centroids" }
func (s *AfricapolisCentroids) Phase() Phase      { return PhaseCity }
func (s *AfricapolisCentroids) Outputs() []string { return []string{OutCentroids} }

func (s *AfricapolisCentroids) Run(ctx context.Context, env *Env) (*Result, error) {
	log := zap.L().With(zap.String("step", s.Name()))

	c, err := env.Classifier()
	if err != nil {
		return nil, err
	}
	layer, err := reader.ReadVector(ctx, env.africapolisPath(), "Africapolis", reader.VectorOptions{
		Columns: []string{colAggloID, colAggloName, colISO3, colGeometryYear},
	})
	if err != nil {
		return nil, err
	}

	want := env.Config.Pipeline.CentroidGeometryYear
	var (
		ids, names, isos []string
		lons, lats       []float64
		noGeom           int
	)
	for _, ft := range layer.Features {
		iso := ft.Attrs[colISO3]
		if !c.InSSA(iso) || int(reader.ParseNumber(ft.Attrs[colGeometryYear])) != want {
			continue
		}
		if ft.Geom == nil {
			noGeom++
			continue
		}
		lon, lat, err := reader.Centroid(ft.Geom)
		if err != nil {
			noGeom++
			continue
		}
		ids = append(ids, ft.Attrs[colAggloID])
		names = append(names, ft.Attrs[colAggloName])
		isos = append(isos, iso)
		lons = append(lons, lon)
		lats = append(lats, lat)
	}
	if noGeom > 0 {
		log.Warn("agglomerations without usable geometry", zap.Int("count", noGeom))
	}

	f, err := table.New(
		table.StringColumn(colAggloID, ids),
		table.StringColumn(colAggloName, names),
		table.StringColumn(colISO3, isos),
		table.FloatColumn("Longitude", lons),
		table.FloatColumn("Latitude", lats),
	)
	if err != nil {
		return nil, err
	}
	res := &Result{Metadata: map[string]any{"geometry_year": want, "without_geometry": noGeom}}
	if err := env.write(ctx, res, OutCentroids, f); err != nil {
		return nil, err
	}
	return res, nil
}
