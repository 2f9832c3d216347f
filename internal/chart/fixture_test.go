package chart

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/drm-lab/urbanrisk/internal/config"
	"github.com/drm-lab/urbanrisk/internal/dashboard"
	"github.com/drm-lab/urbanrisk/internal/pipeline"
)

var fixtureFiles = map[string]string{
	pipeline.OutWUPLevel1: `ISO3_Code,Category,Year,Pop,Pop_rel
KEN,Cities,2020,10000000,0.2
KEN,Towns,2020,15000000,0.3
KEN,Rural,2020,25000000,0.5
KEN,Cities,2030,15000000,0.25
KEN,Towns,2030,18000000,0.3
KEN,Rural,2030,27000000,0.45
NGA,Cities,2020,60000000,0.3
NGA,Rural,2020,140000000,0.7
`,
	pipeline.OutWUPNationalPivoted: `ISO3_Code,Year,Urban_Pop,Rural_Pop,Total_Pop,Urbanization_Rate
KEN,2020,15000000,35000000,50000000,0.3
KEN,2030,24000000,36000000,60000000,0.4
NGA,2020,100000000,100000000,200000000,0.5
SSA,2020,400000000,600000000,1000000000,0.4
`,
	pipeline.OutWUPProjections: `ISO3,indicator,year,value
KEN,urban_pop_median,2020,15
KEN,urban_pop_median,2025,18
KEN,urban_pop_median,2030,21
KEN,urban_pop_lower95,2025,17
KEN,urban_pop_lower95,2030,19
KEN,urban_pop_upper95,2025,19
KEN,urban_pop_upper95,2030,23
KEN,urban_pop_lower80,2025,17.5
KEN,urban_pop_lower80,2030,20
KEN,urban_pop_upper80,2025,18.5
KEN,urban_pop_upper80,2030,22
`,
	pipeline.OutWUPGrowthRates: `ISO3,year,indicator,value
KEN,2020,urban_growth_rate,4.2
KEN,2025,urban_growth_rate,3.9
KEN,2030,urban_median_growth_rate,3.1
`,
	pipeline.OutExposureFormat1: `unique_id,ISO3,Agglomeration_Name,worldpop_built_km2_2020,worldpop_built_cagr_2015_2020,africapolis_pop_2025,africapolis_pop_cagr_2020_2025,buppercapita_2025,size_category_2025
KEN_1,KEN,Nairobi,1234.5,0.031,4500000,0.04,80,1 to 5 million
KEN_2,KEN,Mombasa,210.4,,1300000,0.02,95,1 to 5 million
KEN_3,KEN,Kisumu,60,0.01,0,,,Fewer than 300 000
KEN_4,KEN,Éldoret,45,0.02,,,,Fewer than 300 000
NGA_7,NGA,Lagos,1800,0.05,15000000,0.03,40,10 million or more
`,
	pipeline.OutExposureFormat2: `unique_id,ISO3,Agglomeration_Name,africapolis_pop_2020,worldpop_built_surface_ftm_km2_rp100_2020,worldpop_built_surface_ftm_share_rp100_2020,built_ftm3_fluvial_pluvial_flood_rp100_cagr_2015_2020,worldpop_population_ftm_total_rp100_2025,worldpop_population_ftm_share_rp100_2025,pop_ftm3_fluvial_pluvial_flood_rp100_cagr_2020_2025
KEN_1,KEN,Nairobi,4000000,12.5,0.05,0.02,450000,0.1,0.03
KEN_2,KEN,Mombasa,1200000,30,0.15,,325000,0.25,0.01
`,
	pipeline.OutCentroids: `Agglomeration_ID,Agglomeration_Name,ISO3,Longitude,Latitude
1,Nairobi,KEN,36.8,-1.3
2,Mombasa,KEN,39.7,-4.0
7,Lagos,NGA,3.4,6.5
`,
}

const fixtureClassification = `Economy,ISO3,Region Code,Subregion Code
Kenya,KEN,SSA,AFE
Nigeria,NGA,SSA,AFW
Côte d'Ivoire,CIV,SSA,AFW
France,FRA,ECS,
`

func writeFixture(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// testSnapshot loads the fixture files through the dashboard provider.
func testSnapshot(t *testing.T) *dashboard.Snapshot {
	t.Helper()
	root := t.TempDir()
	data := config.DataConfig{
		ProcessedDir:   filepath.Join(root, "processed"),
		DefinitionsDir: filepath.Join(root, "defs"),
	}
	writeFixture(t, data.Definitions(pipeline.ClassificationFile), fixtureClassification)
	for rel, content := range fixtureFiles {
		writeFixture(t, data.Processed(rel), content)
	}
	s, err := dashboard.NewProvider(data).Load(context.Background())
	require.NoError(t, err)
	return s
}
