package chart

import (
	"bytes"
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drm-lab/urbanrisk/internal/apperr"
)

func assertKind(t *testing.T, err error, kind apperr.Kind) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, kind, apperr.KindOf(err), "error: %v", err)
}

func TestNames(t *testing.T) {
	names := Names()
	assert.Len(t, names, 7)
	assert.Contains(t, names, NameCitiesFloodExposure)
	assert.IsNonDecreasing(t, names)
}

func TestBuild(t *testing.T) {
	s := testSnapshot(t)

	fig, err := Build(s, NameUrbanSystem, Request{Country: "ken"})
	require.NoError(t, err)
	assert.Equal(t, NameUrbanSystem, fig.Chart)

	_, err = Build(s, "pie", Request{Country: "KEN"})
	assertKind(t, err, apperr.KindNotFound)
}

func TestCheckCountry(t *testing.T) {
	s := testSnapshot(t)

	_, err := checkCountry(s, " ")
	assertKind(t, err, apperr.KindInvalid)
	assert.Equal(t, "No country selected", apperr.UserMessage(err))

	_, err = checkCountry(s, "FRA")
	assertKind(t, err, apperr.KindInvalid)

	code, err := checkCountry(s, "ssa")
	require.NoError(t, err)
	assert.Equal(t, "SSA", code)
}

func TestValues_MarshalJSON(t *testing.T) {
	b, err := json.Marshal(Trace{Name: "x", Type: TypeLine, Y: Values{1, math.NaN(), 2.5, math.Inf(1)}})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"y":[1,null,2.5,null]`)
	assert.NotContains(t, string(b), `"x"`)
}

func TestSplitYears(t *testing.T) {
	hx, hy, px, py := splitYears([]float64{2015, 2020, 2025, 2030}, []float64{1, 2, 3, 4})
	assert.Equal(t, []float64{2015, 2020, 2025}, hx)
	assert.Equal(t, []float64{1, 2, 3}, hy)
	assert.Equal(t, []float64{2025, 2030}, px)
	assert.Equal(t, []float64{3, 4}, py)
}

func TestUrbanSystem_Absolute(t *testing.T) {
	s := testSnapshot(t)
	fig, err := UrbanSystem(s, "KEN", "")
	require.NoError(t, err)

	assert.Equal(t, "Urban system of Kenya", fig.Title)
	require.Len(t, fig.Traces, 6)
	assert.Equal(t, "Cities", fig.Traces[0].Name)
	assert.Equal(t, Values{2020}, fig.Traces[0].X)
	assert.Equal(t, Values{10000000}, fig.Traces[0].Y)
	assert.True(t, fig.Traces[0].ShowLegend)
	assert.Equal(t, "dash", fig.Traces[1].Dash)
	assert.False(t, fig.Traces[1].ShowLegend)
	assert.Equal(t, []float64{baseYear}, fig.VLines)
}

func TestUrbanSystem_StackedShares(t *testing.T) {
	s := testSnapshot(t)
	fig, err := UrbanSystem(s, "KEN", ModeRelative2)
	require.NoError(t, err)

	require.Len(t, fig.Traces, 3)
	assert.Equal(t, "Rural", fig.Traces[0].Name)
	assert.Equal(t, TypeArea, fig.Traces[0].Type)
	assert.InDeltaSlice(t, []float64{50, 45}, []float64(fig.Traces[0].Y), 1e-9)
	assert.Equal(t, "%", fig.YAxis.Suffix)
	assert.InDelta(t, 100, *fig.YAxis.Max, 0)
}

func TestUrbanSystem_Errors(t *testing.T) {
	s := testSnapshot(t)

	_, err := UrbanSystem(s, "KEN", "pie")
	assertKind(t, err, apperr.KindInvalid)

	_, err = UrbanSystem(s, "CIV", ModeAbsolute)
	assertKind(t, err, apperr.KindUnavailable)
	assert.Equal(t, "No urban system data available for Côte d'Ivoire", apperr.UserMessage(err))

	// NGA has no Towns rows.
	_, err = UrbanSystem(s, "NGA", ModeRelative2)
	assertKind(t, err, apperr.KindUnavailable)

	fig, err := UrbanSystem(s, "NGA", ModeRelative1)
	require.NoError(t, err)
	assert.Len(t, fig.Traces, 2)
}

func TestUrbanizationRate_Benchmarks(t *testing.T) {
	s := testSnapshot(t)
	fig, err := UrbanizationRate(s, "KEN", []string{"SSA", "nga", "ZZZ", "KEN", "NGA"})
	require.NoError(t, err)

	require.Len(t, fig.Traces, 4)
	assert.Equal(t, "Kenya", fig.Traces[0].Name)
	assert.InDeltaSlice(t, []float64{30}, []float64(fig.Traces[0].Y), 1e-9)
	assert.Equal(t, urbanizationColor, fig.Traces[0].Color)

	assert.Equal(t, "Sub-Saharan Africa", fig.Traces[2].Name)
	assert.Equal(t, regionColors["SSA"], fig.Traces[2].Color)
	assert.Equal(t, "Nigeria", fig.Traces[3].Name)
	assert.Equal(t, benchmarkPalette[0], fig.Traces[3].Color)
	assert.InDeltaSlice(t, []float64{50}, []float64(fig.Traces[3].Y), 1e-9)
}

func TestUrbanizationRate_NoData(t *testing.T) {
	s := testSnapshot(t)
	_, err := UrbanizationRate(s, "CIV", nil)
	assertKind(t, err, apperr.KindUnavailable)
}

func TestPopulationProjection(t *testing.T) {
	s := testSnapshot(t)
	fig, err := PopulationProjection(s, "KEN", "urban")
	require.NoError(t, err)

	require.Len(t, fig.Traces, 4)
	band95 := fig.Traces[0]
	assert.Equal(t, TypeBand, band95.Type)
	assert.Equal(t, Values{2025, 2030}, band95.X)
	assert.Equal(t, Values{17, 19}, band95.Lower)
	assert.Equal(t, Values{19, 23}, band95.Upper)
	assert.Equal(t, "80% interval", fig.Traces[1].Name)

	assert.Equal(t, Values{2020, 2025}, fig.Traces[2].X)
	assert.Equal(t, Values{2025, 2030}, fig.Traces[3].X)
	assert.Equal(t, Values{18, 21}, fig.Traces[3].Y)

	_, err = PopulationProjection(s, "KEN", "rural")
	assertKind(t, err, apperr.KindUnavailable)
	_, err = PopulationProjection(s, "KEN", "suburban")
	assertKind(t, err, apperr.KindInvalid)
}

func TestGrowthRates(t *testing.T) {
	s := testSnapshot(t)
	fig, err := GrowthRates(s, "KEN", "")
	require.NoError(t, err)

	require.Len(t, fig.Traces, 2)
	assert.Equal(t, "Historical", fig.Traces[0].Name)
	assert.Equal(t, Values{4.2, 3.9}, fig.Traces[0].Y)
	assert.Equal(t, "Projected median", fig.Traces[1].Name)
	assert.Equal(t, Values{2030}, fig.Traces[1].X)

	_, err = GrowthRates(s, "NGA", "urban")
	assertKind(t, err, apperr.KindUnavailable)
}

func TestCitiesGrowth_BuiltUp(t *testing.T) {
	s := testSnapshot(t)
	fig, err := CitiesGrowth(s, "KEN", MetricBuiltUp, []string{"Nairobi", "Mombasa", "Atlantis"})
	require.NoError(t, err)

	require.Len(t, fig.Traces, 2)
	value, growth := fig.Traces[0], fig.Traces[1]
	assert.Equal(t, []string{"Mombasa", "Nairobi"}, value.Labels)
	assert.Equal(t, Values{210.4, 1234.5}, value.X)
	assert.Equal(t, []string{"210.4 km²", "1,234.5 km²"}, value.Text)

	assert.Equal(t, 1, growth.Panel)
	assert.InDeltaSlice(t, []float64{0, 3.1}, []float64(growth.X), 1e-9)
	assert.Equal(t, "N/A", growth.Text[0])
	assert.Equal(t, "3.10%", growth.Text[1])

	assert.Equal(t, []string{"Built-up area (km²), 2020", "Annual growth 2015–2020 (%)"}, fig.Panels)
	assert.Equal(t, 400, fig.Height)
}

func TestCitiesGrowth_PopulationInRegion(t *testing.T) {
	s := testSnapshot(t)
	fig, err := CitiesGrowth(s, "AFE", MetricPopulation, []string{"Nairobi", "Lagos"})
	require.NoError(t, err)

	assert.Equal(t, []string{"Nairobi"}, fig.Traces[0].Labels)
	assert.Equal(t, []string{"4,500,000"}, fig.Traces[0].Text)
	assert.InDeltaSlice(t, []float64{4}, []float64(fig.Traces[1].X), 1e-9)
}

func TestCitiesGrowth_Errors(t *testing.T) {
	s := testSnapshot(t)

	_, err := CitiesGrowth(s, "KEN", MetricBuiltUp, nil)
	assertKind(t, err, apperr.KindInvalid)
	assert.Equal(t, "Select at least one city", apperr.UserMessage(err))

	_, err = CitiesGrowth(s, "KEN", "GDP", []string{"Nairobi"})
	assertKind(t, err, apperr.KindInvalid)

	_, err = CitiesGrowth(s, "KEN", MetricBuiltUp, []string{"Lagos"})
	assertKind(t, err, apperr.KindUnavailable)

	_, err = CitiesGrowth(s, "CIV", MetricBuiltUp, []string{"Abidjan"})
	assertKind(t, err, apperr.KindUnavailable)
}

func TestBarHeight(t *testing.T) {
	assert.Equal(t, 400, barHeight(1))
	assert.Equal(t, 1200, barHeight(20))
}

func TestBuiltUpPerCapita(t *testing.T) {
	s := testSnapshot(t)
	fig, err := BuiltUpPerCapita(s, "KEN")
	require.NoError(t, err)

	// Kisumu (zero population) and Éldoret (missing) are left out.
	require.Len(t, fig.Traces, 1)
	tr := fig.Traces[0]
	assert.Equal(t, "1 to 5 million", tr.Name)
	assert.Equal(t, TypeScatter, tr.Type)
	assert.Equal(t, []string{"Nairobi", "Mombasa"}, tr.Text)
	assert.Equal(t, Values{80, 95}, tr.Y)
	assert.True(t, fig.XAxis[0].Log)

	fig, err = BuiltUpPerCapita(s, "SSA")
	require.NoError(t, err)
	assert.Len(t, fig.Traces, 2)
	assert.Equal(t, "10 million or more", fig.Traces[0].Name)
}

func TestCitiesFloodExposure(t *testing.T) {
	s := testSnapshot(t)
	cities := []string{"Nairobi", "Mombasa"}

	fig, err := CitiesFloodExposure(s, "KEN", FloodOptions{Cities: cities})
	require.NoError(t, err)
	value, growth := fig.Traces[0], fig.Traces[1]
	assert.Equal(t, []string{"Mombasa", "Nairobi"}, value.Labels)
	assert.Equal(t, Values{30, 12.5}, value.X)
	assert.Equal(t, "Built-up area exposed (km²)", value.Name)
	assert.Equal(t, []string{"N/A", "2.00%"}, growth.Text)

	fig, err = CitiesFloodExposure(s, "KEN", FloodOptions{
		ReturnPeriod: 100, Exposure: ExposurePopulation, Measure: MeasureRelative, Cities: cities,
	})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{25, 10}, []float64(fig.Traces[0].X), 1e-9)
	assert.Equal(t, []string{"25.0%", "10.0%"}, fig.Traces[0].Text)
	assert.InDeltaSlice(t, []float64{1, 3}, []float64(fig.Traces[1].X), 1e-9)

	fig, err = CitiesFloodExposure(s, "KEN", FloodOptions{Exposure: ExposurePopulation, Cities: cities})
	require.NoError(t, err)
	assert.Equal(t, []string{"325,000", "450,000"}, fig.Traces[0].Text)
}

func TestCitiesFloodExposure_Errors(t *testing.T) {
	s := testSnapshot(t)

	_, err := CitiesFloodExposure(s, "KEN", FloodOptions{ReturnPeriod: 10, Cities: []string{"Nairobi"}})
	assertKind(t, err, apperr.KindUnavailable)
	assert.Equal(t, "Data not available for selected flood type and return period", apperr.UserMessage(err))

	_, err = CitiesFloodExposure(s, "KEN", FloodOptions{Exposure: "wind", Cities: []string{"Nairobi"}})
	assertKind(t, err, apperr.KindInvalid)

	_, err = CitiesFloodExposure(s, "KEN", FloodOptions{Measure: "log", Cities: []string{"Nairobi"}})
	assertKind(t, err, apperr.KindInvalid)
}

func TestRenderPNG(t *testing.T) {
	s := testSnapshot(t)
	for _, tc := range []struct {
		name string
		req  Request
	}{
		{NameUrbanSystem, Request{Country: "KEN"}},
		{NameUrbanSystem, Request{Country: "KEN", Mode: ModeRelative2}},
		{NamePopulationProj, Request{Country: "KEN"}},
		{NameCitiesGrowth, Request{Country: "KEN", Cities: []string{"Nairobi", "Mombasa"}}},
		{NameBuiltUpPerCapita, Request{Country: "SSA"}},
	} {
		t.Run(tc.name+tc.req.Mode, func(t *testing.T) {
			fig, err := Build(s, tc.name, tc.req)
			require.NoError(t, err)
			var buf bytes.Buffer
			require.NoError(t, RenderPNG(fig, &buf, 800, 0))
			assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("\x89PNG")))
		})
	}
}

func TestParseColor(t *testing.T) {
	c := parseColor("#2563eb")
	assert.Equal(t, uint8(0x25), c.R)
	assert.Equal(t, uint8(0xeb), c.B)
	assert.Equal(t, uint8(255), parseColor("nope").A)
}
