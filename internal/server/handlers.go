package server

import (
	"bytes"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/drm-lab/urbanrisk/internal/apperr"
	"github.com/drm-lab/urbanrisk/internal/chart"
	"github.com/drm-lab/urbanrisk/internal/dashboard"
	"github.com/drm-lab/urbanrisk/internal/reader"
)

const (
	contentTypePNG  = "image/png"
	contentTypeCSV  = "text/csv; charset=utf-8"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	maxImageSide = 4000
)

type healthResponse struct {
	Status   string    `json:"status"`
	LoadedAt time.Time `json:"loaded_at,omitzero"`
	Datasets int       `json:"datasets"`
	Missing  []string  `json:"missing"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.loader.Snapshot()
	if snap == nil {
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "loading", Missing: []string{}})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:   "ok",
		LoadedAt: snap.LoadedAt,
		Datasets: snap.Loaded(),
		Missing:  snap.Missing(),
	})
}

func (s *Server) handleCountries(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"countries": chart.Countries(snapshotFrom(r))})
}

func (s *Server) handleChartList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"charts": chart.Names()})
}

// listParam collects a multi-valued query parameter given either repeated
// (?city=a&city=b) or comma separated (?cities=a,b).
func listParam(q url.Values, single, plural string) []string {
	var out []string
	for _, v := range q[single] {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	for _, v := range q[plural] {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func intParam(q url.Values, name string) (int, error) {
	v := strings.TrimSpace(q.Get(name))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, apperr.Newf(apperr.KindInvalid, "Invalid %s %q", name, v)
	}
	return n, nil
}

func chartRequest(q url.Values) (chart.Request, error) {
	rp, err := intParam(q, "rp")
	if err != nil {
		return chart.Request{}, err
	}
	return chart.Request{
		Country:      q.Get("country"),
		Mode:         q.Get("mode"),
		Benchmarks:   listParam(q, "benchmark", "benchmarks"),
		Area:         q.Get("area"),
		Metric:       strings.ToUpper(q.Get("metric")),
		Cities:       listParam(q, "city", "cities"),
		ReturnPeriod: rp,
		Exposure:     q.Get("exposure"),
		Measure:      q.Get("measure"),
	}, nil
}

func wantsPNG(r *http.Request) bool {
	if f := r.URL.Query().Get("format"); f != "" {
		return strings.EqualFold(f, "png")
	}
	return strings.Contains(r.Header.Get("Accept"), contentTypePNG)
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "chart")
	q := r.URL.Query()
	req, err := chartRequest(q)
	if err != nil {
		writeError(w, r, err)
		return
	}

	fig, err := chart.Build(snapshotFrom(r), name, req)
	if err != nil {
		s.metrics.IncrementChart(name, string(apperr.KindOf(err)))
		writeError(w, r, err)
		return
	}
	s.metrics.IncrementChart(name, "ok")

	if !wantsPNG(r) {
		writeJSON(w, http.StatusOK, fig)
		return
	}
	width, err := intParam(q, "width")
	if err != nil {
		writeError(w, r, err)
		return
	}
	height, err := intParam(q, "height")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if width > maxImageSide || height > maxImageSide {
		writeError(w, r, apperr.Newf(apperr.KindInvalid, "Image size is limited to %d pixels", maxImageSide))
		return
	}

	var buf bytes.Buffer
	if err := chart.RenderPNG(fig, &buf, width, height); err != nil {
		writeError(w, r, apperr.Wrap(err, apperr.KindComputation, "render chart "+name))
		return
	}
	w.Header().Set("Content-Type", contentTypePNG)
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		zap.L().Debug("write png", zap.Error(err))
	}
}

func (s *Server) handleCities(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	source := q.Get("source")
	if source == "" {
		source = chart.SourceGrowth
	}
	if source != chart.SourceGrowth && source != chart.SourceFlood {
		writeError(w, r, apperr.Newf(apperr.KindInvalid, "Unknown city source %q", source))
		return
	}
	writeJSON(w, http.StatusOK, chart.CityOptionsFor(snapshotFrom(r), q.Get("country"), source))
}

func (s *Server) handleMap(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	writeJSON(w, http.StatusOK, chart.MapMarkers(snapshotFrom(r), q.Get("country"), listParam(q, "city", "cities")))
}

type datasetInfo struct {
	dashboard.Dataset
	Available bool `json:"available"`
	Rows      int  `json:"rows"`
}

func (s *Server) handleDatasets(w http.ResponseWriter, r *http.Request) {
	snap := snapshotFrom(r)
	out := make([]datasetInfo, 0, len(dashboard.Datasets))
	for _, d := range dashboard.Datasets {
		info := datasetInfo{Dataset: d}
		if f, err := snap.Frame(d.Name); err == nil {
			info.Available = true
			info.Rows = f.Len()
		}
		out = append(out, info)
	}
	writeJSON(w, http.StatusOK, map[string]any{"datasets": out})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if _, ok := dashboard.LookupDataset(name); !ok {
		writeError(w, r, apperr.Newf(apperr.KindNotFound, "Unknown dataset %q", name))
		return
	}
	f, err := snapshotFrom(r).Frame(name)
	if err != nil {
		writeError(w, r, err)
		return
	}

	format := strings.ToLower(r.URL.Query().Get("format"))
	if format == "" {
		format = "csv"
	}
	var (
		buf         bytes.Buffer
		contentType string
	)
	switch format {
	case "csv":
		contentType = contentTypeCSV
		err = reader.EncodeCSV(&buf, f)
	case "xlsx":
		contentType = contentTypeXLSX
		err = reader.EncodeXLSX(&buf, f)
	default:
		writeError(w, r, apperr.Newf(apperr.KindInvalid, "Unknown download format %q", format))
		return
	}
	if err != nil {
		writeError(w, r, apperr.Wrap(err, apperr.KindInternal, "encode dataset "+name))
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+"."+format+`"`)
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		zap.L().Debug("write download", zap.Error(err))
	}
}

type reloadResponse struct {
	Status   string    `json:"status"`
	LoadedAt time.Time `json:"loaded_at"`
	Datasets int       `json:"datasets"`
	Missing  []string  `json:"missing"`
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	snap, err := s.Reload(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	zap.L().Info("snapshot reloaded via api",
		zap.Int("datasets", snap.Loaded()),
		zap.Strings("missing", snap.Missing()),
	)
	writeJSON(w, http.StatusOK, reloadResponse{
		Status:   "reloaded",
		LoadedAt: snap.LoadedAt,
		Datasets: snap.Loaded(),
		Missing:  snap.Missing(),
	})
}
