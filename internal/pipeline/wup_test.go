package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drm-lab/urbanrisk/internal/apperr"
	"github.com/drm-lab/urbanrisk/internal/table"
)

const level1CSV = `Location,ISO3_Code,Category,Year,Pop,Surface
Kenya,KEN,Cities,2020,30,1
Kenya,KEN,Towns,2020,10,1
Kenya,KEN,Rural,2020,60,1
Kenya,KEN,Cities and Towns,2020,40,2
Kenya,KEN,Total,2020,100,3
Nigeria,NGA,Cities,2020,100,1
Nigeria,NGA,Towns,2020,50,1
Nigeria,NGA,Rural,2020,50,1
France,FRA,Cities,2020,40,1
`

func TestWUPLevel1(t *testing.T) {
	env := newTestEnv(t)
	writeFile(t, env.Config.Data.Raw(wupDir, wupLevel1File), level1CSV)

	res, err := wupLevel1().Run(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, []string{OutWUPLevel1}, res.Outputs)

	out := readOutput(t, env, OutWUPLevel1)
	codes := uniqueValues(t, out, colISO3Code)
	assert.NotContains(t, codes, "FRA")
	cats := uniqueValues(t, out, colCategory)
	assert.ElementsMatch(t, []string{"Cities", "Towns", "Rural"}, cats)

	ken := rowWhere(t, out, colISO3Code, "KEN", colCategory, "Cities")
	assert.InDelta(t, 30000, ken.Num(colPop), 1e-9)
	assert.InDelta(t, 0.3, ken.Num("Pop_rel"), 1e-9)

	ssa := rowWhere(t, out, colISO3Code, "SSA", colCategory, "Cities")
	assert.InDelta(t, 130000, ssa.Num(colPop), 1e-9)
	assert.InDelta(t, 130.0/300.0, ssa.Num("Pop_rel"), 1e-9)

	afw := rowWhere(t, out, colISO3Code, "AFW", colCategory, "Rural")
	assert.InDelta(t, 50000, afw.Num(colPop), 1e-9)
}

func TestWUPLevel1_SharesSumToOne(t *testing.T) {
	env := newTestEnv(t)
	writeFile(t, env.Config.Data.Raw(wupDir, wupLevel1File), level1CSV)

	out, err := wupLevel1().process(context.Background(), env)
	require.NoError(t, err)

	groups, err := out.Groups(colYear, colISO3Code)
	require.NoError(t, err)
	rel, err := out.Floats("Pop_rel")
	require.NoError(t, err)
	for _, g := range groups {
		var sum float64
		for _, i := range g.Rows {
			sum += rel[i]
		}
		assert.InDelta(t, 1.0, sum, 1e-9)
	}
}

func TestWUPSizeClass(t *testing.T) {
	env := newTestEnv(t)
	writeFile(t, env.Config.Data.Raw(wupDir, wupSizeClassFile), `ISO3_Code,Category,Year,Cities,Pop
KEN,1-5M,2020,1,5000
KEN,0.5-1M,2020,3,2000
NGA,1-5M,2020,4,12000
FRA,1-5M,2020,2,3000
`)

	_, err := wupSizeClass().Run(context.Background(), env)
	require.NoError(t, err)

	out := readOutput(t, env, OutWUPSizeClass)
	ssa := rowWhere(t, out, colISO3Code, "SSA", colCategory, "1-5M")
	assert.InDelta(t, 5, ssa.Num(colCities), 1e-9)
	assert.InDelta(t, 17_000_000, ssa.Num(colPop), 1e-6)
	assert.InDelta(t, 5.0/8.0, ssa.Num("Cities_rel"), 1e-9)

	ken := rowWhere(t, out, colISO3Code, "KEN", colCategory, "0.5-1M")
	assert.InDelta(t, 0.75, ken.Num("Cities_rel"), 1e-9)
}

func TestWUPLevel1_MissingFile(t *testing.T) {
	env := newTestEnv(t)
	_, err := wupLevel1().Run(context.Background(), env)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestWUPNational(t *testing.T) {
	env := newTestEnv(t)
	writeFile(t, env.Config.Data.Raw(wupDir, wupNationalFile), `ISO3_Code,Category,Year,Pop
KEN,Urban,2020,30
KEN,Rural,2020,70
KEN,Total,2020,100
NGA,Urban,2020,60
NGA,Rural,2020,40
`)

	res, err := (&WUPNational{}).Run(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, []string{OutWUPNational, OutWUPNationalPivoted}, res.Outputs)

	wide := readOutput(t, env, OutWUPNationalPivoted)
	ken := rowWhere(t, wide, colISO3Code, "KEN")
	assert.InDelta(t, 30000, ken.Num("Urban_Pop"), 1e-9)
	assert.InDelta(t, 100000, ken.Num("Total_Pop"), 1e-9)
	assert.InDelta(t, 0.3, ken.Num("Urbanization_Rate"), 1e-9)

	ssa := rowWhere(t, wide, colISO3Code, "SSA")
	assert.InDelta(t, 0.45, ssa.Num("Urbanization_Rate"), 1e-9)
}

func TestUrbanizationPivot_CountryMajorOrder(t *testing.T) {
	f, err := table.New(
		table.StringColumn(colISO3Code, []string{"NGA", "KEN", "NGA", "KEN", "NGA", "KEN", "NGA", "KEN"}),
		table.StringColumn(colCategory, []string{"Urban", "Urban", "Rural", "Rural", "Urban", "Urban", "Rural", "Rural"}),
		table.FloatColumn(colYear, []float64{2025, 2025, 2025, 2025, 2020, 2020, 2020, 2020}),
		table.FloatColumn(colPop, []float64{6, 3, 4, 7, 5, 2, 5, 8}),
	)
	require.NoError(t, err)

	wide, err := UrbanizationPivot(f)
	require.NoError(t, err)
	codes, err := wide.Strings(colISO3Code)
	require.NoError(t, err)
	assert.Equal(t, []string{"KEN", "KEN", "NGA", "NGA"}, codes)
	years, err := wide.Floats(colYear)
	require.NoError(t, err)
	assert.Equal(t, []float64{2020, 2025, 2020, 2025}, years)
	rate, err := wide.Floats("Urbanization_Rate")
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.2, 0.3, 0.5, 0.6}, rate, 1e-9)
}

func TestUrbanizationPivot_MissingCategory(t *testing.T) {
	f, err := table.New(
		table.StringColumn(colISO3Code, []string{"KEN"}),
		table.StringColumn(colCategory, []string{"Urban"}),
		table.FloatColumn(colYear, []float64{2020}),
		table.FloatColumn(colPop, []float64{1}),
	)
	require.NoError(t, err)

	_, err = UrbanizationPivot(f)
	assert.Error(t, err)
}
