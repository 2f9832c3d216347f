package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/drm-lab/urbanrisk/internal/apperr"
	"github.com/drm-lab/urbanrisk/internal/config"
	"github.com/drm-lab/urbanrisk/internal/dashboard"
	"github.com/drm-lab/urbanrisk/internal/pipeline"
)

const classificationCSV = `Economy,ISO3,Region Code,Subregion Code
Kenya,KEN,SSA,AFE
Nigeria,NGA,SSA,AFW
`

const level1CSV = `ISO3_Code,Category,Year,Pop,Pop_rel
KEN,Cities,2020,10000000,0.2
KEN,Towns,2020,15000000,0.3
KEN,Rural,2020,25000000,0.5
`

const format1CSV = `unique_id,ISO3,Agglomeration_Name,worldpop_built_km2_2020,worldpop_built_cagr_2015_2020,africapolis_pop_2025,africapolis_pop_cagr_2020_2025,buppercapita_2025,size_category_2025
KEN_1,KEN,Nairobi,1234.5,0.031,4500000,0.04,80,1 to 5 million
KEN_2,KEN,Mombasa,210.4,,1300000,0.02,95,1 to 5 million
`

const centroidsCSV = `Agglomeration_ID,Agglomeration_Name,ISO3,Longitude,Latitude
1,Nairobi,KEN,36.8,-1.3
2,Mombasa,KEN,39.7,-4.0
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func testConfig() config.ServerConfig {
	return config.ServerConfig{AllowedOrigins: []string{"*"}, ShutdownTimeoutSecs: 1}
}

// newTestServer loads a snapshot from fixture files and returns the server
// with its data directories.
func newTestServer(t *testing.T) (*Server, config.DataConfig) {
	t.Helper()
	root := t.TempDir()
	data := config.DataConfig{
		ProcessedDir:   filepath.Join(root, "processed"),
		DefinitionsDir: filepath.Join(root, "defs"),
	}
	writeFile(t, data.Definitions(pipeline.ClassificationFile), classificationCSV)
	writeFile(t, data.Processed(pipeline.OutWUPLevel1), level1CSV)
	writeFile(t, data.Processed(pipeline.OutExposureFormat1), format1CSV)
	writeFile(t, data.Processed(pipeline.OutCentroids), centroidsCSV)

	s := New(dashboard.NewProvider(data), testConfig())
	_, err := s.Reload(context.Background())
	require.NoError(t, err)
	return s, data
}

func serve(t *testing.T, s *Server, method, target string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body), rr.Body.String())
	return body
}

type stubLoader struct {
	snap *dashboard.Snapshot
	err  error
}

func (l *stubLoader) Snapshot() *dashboard.Snapshot { return l.snap }

func (l *stubLoader) Reload(context.Context) (*dashboard.Snapshot, error) {
	return l.snap, l.err
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)
	rr := serve(t, s, http.MethodGet, "/health")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")
	body := decode(t, rr)
	assert.Equal(t, "ok", body["status"])
	assert.InDelta(t, 3, body["datasets"], 0)
	assert.Contains(t, body["missing"], dashboard.DatasetProjections)
}

func TestHealth_NotLoaded(t *testing.T) {
	s := New(&stubLoader{}, testConfig())
	rr := serve(t, s, http.MethodGet, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "loading", decode(t, rr)["status"])

	rr = serve(t, s, http.MethodGet, "/api/countries")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, string(apperr.KindUnavailable), decode(t, rr)["error"])
}

func TestCountries(t *testing.T) {
	s, _ := newTestServer(t)
	rr := serve(t, s, http.MethodGet, "/api/countries")
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Countries []struct {
			Value string `json:"value"`
			Label string `json:"label"`
		} `json:"countries"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Countries, 5)
	assert.Equal(t, "AFE", body.Countries[0].Value)
	assert.Equal(t, "Kenya", body.Countries[3].Label)
}

func TestChart_JSON(t *testing.T) {
	s, _ := newTestServer(t)
	rr := serve(t, s, http.MethodGet, "/api/charts/urban_system?country=KEN&mode=relative_1")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	body := decode(t, rr)
	assert.Equal(t, "urban_system", body["chart"])
	assert.Len(t, body["traces"], 3)
}

func TestChart_CitiesQuery(t *testing.T) {
	s, _ := newTestServer(t)
	rr := serve(t, s, http.MethodGet, "/api/charts/cities_growth?country=KEN&metric=pop&city=Nairobi&cities=Mombasa")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var fig struct {
		Traces []struct {
			Labels []string `json:"labels"`
		} `json:"traces"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &fig))
	assert.Equal(t, []string{"Mombasa", "Nairobi"}, fig.Traces[0].Labels)
}

func TestChart_PNG(t *testing.T) {
	s, _ := newTestServer(t)

	rr := serve(t, s, http.MethodGet, "/api/charts/urban_system?country=KEN&format=png&width=640&height=480")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, contentTypePNG, rr.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rr.Body.Bytes(), []byte("\x89PNG")))

	rr = serve(t, s, http.MethodGet, "/api/charts/urban_system?country=KEN", "Accept", "image/png")
	assert.Equal(t, contentTypePNG, rr.Header().Get("Content-Type"))

	rr = serve(t, s, http.MethodGet, "/api/charts/urban_system?country=KEN&format=png&width=9000")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestChart_Errors(t *testing.T) {
	s, _ := newTestServer(t)
	for _, tc := range []struct {
		target string
		status int
		kind   apperr.Kind
	}{
		{"/api/charts/urban_system", http.StatusBadRequest, apperr.KindInvalid},
		{"/api/charts/urban_system?country=NGA", http.StatusNotFound, apperr.KindUnavailable},
		{"/api/charts/population_projection?country=KEN", http.StatusNotFound, apperr.KindNotFound},
		{"/api/charts/pie?country=KEN", http.StatusNotFound, apperr.KindNotFound},
		{"/api/charts/cities_flood_exposure?country=KEN&rp=ten", http.StatusBadRequest, apperr.KindInvalid},
	} {
		t.Run(tc.target, func(t *testing.T) {
			rr := serve(t, s, http.MethodGet, tc.target)
			assert.Equal(t, tc.status, rr.Code)
			body := decode(t, rr)
			assert.Equal(t, string(tc.kind), body["error"])
			assert.NotEmpty(t, body["message"])
		})
	}
}

func TestChart_SchemaErrorIsGeneric(t *testing.T) {
	s, data := newTestServer(t)
	writeFile(t, data.Processed(pipeline.OutWUPLevel1), "ISO3_Code,Year,Pop\nKEN,2020,1\n")
	_, err := s.Reload(context.Background())
	require.NoError(t, err)

	rr := serve(t, s, http.MethodGet, "/api/charts/urban_system?country=KEN")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, string(apperr.KindSchema), body["error"])
	assert.Equal(t, apperr.UserMessage(apperr.New(apperr.KindSchema, "x")), body["message"])
}

func TestCities(t *testing.T) {
	s, _ := newTestServer(t)
	rr := serve(t, s, http.MethodGet, "/api/cities?country=KEN")
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	assert.Len(t, body["options"], 2)
	assert.Equal(t, []any{"Nairobi", "Mombasa"}, body["selected"])

	rr = serve(t, s, http.MethodGet, "/api/cities?country=KEN&source=weather")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestMap(t *testing.T) {
	s, _ := newTestServer(t)
	rr := serve(t, s, http.MethodGet, "/api/map?country=KEN&city=Nairobi")
	require.Equal(t, http.StatusOK, rr.Code)

	var view struct {
		Zoom    int `json:"zoom"`
		Markers []struct {
			Name    string `json:"name"`
			Country string `json:"country"`
		} `json:"markers"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &view))
	require.Len(t, view.Markers, 1)
	assert.Equal(t, "Kenya", view.Markers[0].Country)
	assert.Equal(t, 10, view.Zoom)
}

func TestDatasets(t *testing.T) {
	s, _ := newTestServer(t)
	rr := serve(t, s, http.MethodGet, "/api/datasets")
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Datasets []struct {
			Name      string `json:"name"`
			Available bool   `json:"available"`
			Rows      int    `json:"rows"`
		} `json:"datasets"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Datasets, len(dashboard.Datasets))
	assert.Equal(t, dashboard.DatasetUrbanSystem, body.Datasets[0].Name)
	assert.True(t, body.Datasets[0].Available)
	assert.Equal(t, 3, body.Datasets[0].Rows)
	assert.False(t, body.Datasets[1].Available)
}

func TestDownload(t *testing.T) {
	s, _ := newTestServer(t)

	rr := serve(t, s, http.MethodGet, "/api/datasets/cities/download")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, contentTypeCSV, rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Header().Get("Content-Disposition"), `filename="cities.csv"`)
	assert.Contains(t, rr.Body.String(), "unique_id,ISO3,Agglomeration_Name")

	rr = serve(t, s, http.MethodGet, "/api/datasets/cities/download?format=xlsx")
	require.Equal(t, http.StatusOK, rr.Code)
	x, err := excelize.OpenReader(rr.Body)
	require.NoError(t, err)
	defer x.Close() //nolint:errcheck
	rows, err := x.GetRows("cities")
	require.NoError(t, err)
	assert.Len(t, rows, 3)

	rr = serve(t, s, http.MethodGet, "/api/datasets/cities/download?format=parquet")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = serve(t, s, http.MethodGet, "/api/datasets/projections/download")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = serve(t, s, http.MethodGet, "/api/datasets/nope/download")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestReload(t *testing.T) {
	s, data := newTestServer(t)
	writeFile(t, data.Processed(pipeline.OutWUPNationalPivoted), "ISO3_Code,Year,Urbanization_Rate\nKEN,2020,0.3\n")

	rr := serve(t, s, http.MethodPost, "/admin/reload")
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, "reloaded", body["status"])
	assert.InDelta(t, 4, body["datasets"], 0)

	rr = serve(t, s, http.MethodGet, "/api/charts/urbanization_rate?country=KEN")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestReload_FailureKeepsSnapshot(t *testing.T) {
	s, data := newTestServer(t)
	writeFile(t, data.Processed(pipeline.OutWUPProjections), "ISO3,indicator,year,value\nKEN,bogus,2020,1\n")

	rr := serve(t, s, http.MethodPost, "/admin/reload")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)

	rr = serve(t, s, http.MethodGet, "/api/charts/urban_system?country=KEN")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestMetrics(t *testing.T) {
	s, _ := newTestServer(t)
	serve(t, s, http.MethodGet, "/api/charts/urban_system?country=KEN")
	serve(t, s, http.MethodGet, "/api/charts/urban_system")

	rr := serve(t, s, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rr.Code)
	out := rr.Body.String()
	assert.Contains(t, out, `urbanrisk_charts_total{chart="urban_system",result="ok"} 1`)
	assert.Contains(t, out, `urbanrisk_charts_total{chart="urban_system",result="invalid_input"} 1`)
	assert.Contains(t, out, `route="/api/charts/{chart}"`)
	assert.Contains(t, out, `urbanrisk_snapshot_reloads_total{result="ok"} 1`)
	assert.Contains(t, out, "urbanrisk_snapshot_datasets 3")
}

func TestCORS(t *testing.T) {
	s, _ := newTestServer(t)
	rr := serve(t, s, http.MethodGet, "/api/countries", "Origin", "https://example.org")
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestListenAndServe_StopsOnCancel(t *testing.T) {
	s := New(&stubLoader{}, testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, s.ListenAndServe(ctx, 0))
}
