package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drm-lab/urbanrisk/internal/table"
)

const countryStatsCSV = `ISO_A3,worldpop_year,worldpop_population_total,worldpop_built_surface_km2,worldpop_built_volume_m3
KEN,2020,50000000,1000,1
NGA,2020,200000000,6000,1
FRA,2020,65000000,9000,1
KEN,2025,55000000,1200,1
`

func TestCountryExposure(t *testing.T) {
	env := newTestEnv(t)
	writeFile(t, env.Config.Data.Raw(exposureDir, "df_country_worldpop_stats.csv"), countryStatsCSV)
	writeFile(t, env.Config.Data.Raw(exposureDir, "df_country_worldpop_ftm_stats.csv"),
		`ISO_A3,worldpop_year,ftm_return_period,ftm_flood_type,worldpop_population_ftm_total,worldpop_population_ftm_share,worldpop_built_surface_ftm_km2,worldpop_built_surface_ftm_share,worldpop_built_volume_ftm_m3,worldpop_built_volume_ftm_share
KEN,2020,10,FLUVIAL_PLUVIAL_DEFENDED,500000,0.01,10,0.01,1,0.1
KEN,2020,100,FLUVIAL_PLUVIAL_DEFENDED,1000000,0.02,20,0.02,1,0.1
KEN,2020,100,COASTAL_DEFENDED,9,0.9,9,0.9,9,0.9
NGA,2030,10,FLUVIAL_PLUVIAL_DEFENDED,1,0.1,1,0.1,1,0.1
`)

	_, err := (&CountryExposure{}).Run(context.Background(), env)
	require.NoError(t, err)

	out := readOutput(t, env, OutCountryExposure)
	// Two KEN 2020 return periods, unmatched stats rows and the NGA 2030 exposure row.
	assert.Equal(t, 6, out.Len())

	r := rowWhere(t, out, colISOA3, "KEN", colWorldPopYear, "2020", colReturnPeriod, "100")
	assert.InDelta(t, 50000000, r.Num(colPopTotal), 1e-6)
	assert.InDelta(t, 0.02, r.Num(colPopFtmShare), 1e-12)

	coastal := out.Filter(func(r2 table.Row) bool { return r2.Str(colFloodType) == "COASTAL_DEFENDED" })
	assert.Zero(t, coastal.Len())

	nga := rowWhere(t, out, colISOA3, "NGA", colWorldPopYear, "2030")
	assert.Equal(t, "", nga.Str(colPopTotal))
}

func TestBuiltUpPerCapita(t *testing.T) {
	env := newTestEnv(t)
	writeFile(t, env.Config.Data.Raw(exposureDir, "df_country_worldpop_stats.csv"), countryStatsCSV)

	_, err := (&BuiltUpPerCapita{}).Run(context.Background(), env)
	require.NoError(t, err)

	out := readOutput(t, env, OutBuiltUpPerCapita)
	codes := uniqueValues(t, out, "ISO3")
	assert.NotContains(t, codes, "FRA")

	ken := rowWhere(t, out, "ISO3", "KEN", "Year", "2020")
	assert.InDelta(t, 20, ken.Num(ColBuiltUpPerCapita), 1e-9)

	// Regional ratio from summed area and population, not averaged.
	ssa := rowWhere(t, out, "ISO3", "SSA", "Year", "2020")
	assert.InDelta(t, 7000e6/250e6, ssa.Num(ColBuiltUpPerCapita), 1e-9)

	afw := rowWhere(t, out, "ISO3", "AFW", "Year", "2020")
	assert.InDelta(t, 30, afw.Num(ColBuiltUpPerCapita), 1e-9)
}
