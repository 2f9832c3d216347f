package aggregate

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drm-lab/urbanrisk/internal/apperr"
	"github.com/drm-lab/urbanrisk/internal/region"
	"github.com/drm-lab/urbanrisk/internal/table"
)

func classifier() *region.Classifier {
	return region.NewClassifier([]region.Country{
		{ISO3: "AAA", RegionCode: "SSA", SubregionCode: "AFE"},
		{ISO3: "BBB", RegionCode: "SSA", SubregionCode: "AFE"},
		{ISO3: "CCC", RegionCode: "SSA", SubregionCode: "AFW"},
	})
}

func frame(t *testing.T, iso []string, cat []string, year []float64, pop []float64) *table.Frame {
	t.Helper()
	f, err := table.New(
		table.StringColumn("ISO3_Code", iso),
		table.StringColumn("Category", cat),
		table.FloatColumn("Year", year),
		table.FloatColumn("Pop", pop),
	)
	require.NoError(t, err)
	return f
}

func TestAddRegional_SumsMembers(t *testing.T) {
	f := frame(t,
		[]string{"AAA", "BBB"},
		[]string{"Cities", "Cities"},
		[]float64{2020, 2020},
		[]float64{100, 200},
	)
	out, err := AddRegional(f, classifier(), Options{CodeColumn: "ISO3_Code", GroupBy: []string{"Category", "Year"}, Sum: []string{"Pop"}})
	require.NoError(t, err)

	// AFW has no members in the group, so only AFE and SSA rows are added.
	require.Equal(t, 4, out.Len())
	row := out.Row(2)
	assert.Equal(t, "AFE", row.Str("ISO3_Code"))
	assert.Equal(t, "Cities", row.Str("Category"))
	assert.Equal(t, 2020.0, row.Num("Year"))
	assert.Equal(t, 300.0, row.Num("Pop"))
	assert.Equal(t, "SSA", out.Row(3).Str("ISO3_Code"))
	assert.Equal(t, 300.0, out.Row(3).Num("Pop"))
}

func TestAddRegional_SkipsMissing(t *testing.T) {
	f := frame(t,
		[]string{"AAA", "BBB", "CCC", "AAA"},
		[]string{"Towns", "Towns", "Towns", "Rural"},
		[]float64{2020, 2020, 2020, 2020},
		[]float64{50, math.NaN(), math.NaN(), math.NaN()},
	)
	out, err := AddRegional(f, classifier(), Options{CodeColumn: "ISO3_Code", GroupBy: []string{"Category", "Year"}, Sum: []string{"Pop"}})
	require.NoError(t, err)

	regional := out.Filter(func(r table.Row) bool { return region.IsRegion(r.Str("ISO3_Code")) })
	codes, _ := regional.Strings("ISO3_Code")
	assert.Equal(t, []string{"AFE", "SSA"}, codes)
	pops, _ := regional.Floats("Pop")
	assert.Equal(t, []float64{50, 50}, pops)
}

func TestAddRegional_AllMissingColumnStaysMissing(t *testing.T) {
	f, err := table.New(
		table.StringColumn("ISO3", []string{"AAA"}),
		table.FloatColumn("urban", []float64{10}),
		table.FloatColumn("rural", []float64{math.NaN()}),
	)
	require.NoError(t, err)
	out, err := AddRegional(f, classifier(), Options{CodeColumn: "ISO3", Sum: []string{"urban", "rural"}, NameColumn: "Name"})
	require.NoError(t, err)
	require.Equal(t, 3, out.Len())
	assert.Equal(t, 10.0, out.Row(1).Num("urban"))
	assert.True(t, math.IsNaN(out.Row(1).Num("rural")))
	assert.Equal(t, "Africa Eastern and Southern", out.Row(1).Str("Name"))
}

func TestAddRegional_MissingColumn(t *testing.T) {
	f := frame(t, []string{"AAA"}, []string{"Cities"}, []float64{2020}, []float64{1})
	_, err := AddRegional(f, classifier(), Options{CodeColumn: "ISO3_Code", Sum: []string{"Built"}})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindSchema))
}
