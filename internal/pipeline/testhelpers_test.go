package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/drm-lab/urbanrisk/internal/config"
	"github.com/drm-lab/urbanrisk/internal/reader"
	"github.com/drm-lab/urbanrisk/internal/region"
	"github.com/drm-lab/urbanrisk/internal/table"
)

func testClassifier() *region.Classifier {
	return region.NewClassifier([]region.Country{
		{ISO3: "KEN", Name: "Kenya", RegionCode: "SSA", SubregionCode: "AFE"},
		{ISO3: "NGA", Name: "Nigeria", RegionCode: "SSA", SubregionCode: "AFW"},
		{ISO3: "FRA", Name: "France", RegionCode: "ECS"},
	})
}

func testConfig(root string) *config.Config {
	return &config.Config{
		Data: config.DataConfig{
			RawDir:         filepath.Join(root, "raw"),
			ProcessedDir:   filepath.Join(root, "processed"),
			DefinitionsDir: filepath.Join(root, "defs"),
			Africapolis:    "Africapolis_GIS_2024.gpkg",
		},
		Pipeline: config.PipelineConfig{
			CityYears:            []int{2015, 2020, 2025},
			ReturnPeriods:        []int{10, 100},
			FloodType:            "FLUVIAL_PLUVIAL_DEFENDED",
			GeometryYear:         2020,
			CentroidGeometryYear: 2025,
			CityListFirstYear:    2015,
			CityListLastYear:     2025,
			ProjectionFirstYear:  1950,
			ProjectionLastYear:   2050,
			ProjectionStep:       5,
		},
	}
}

// newTestEnv returns an environment rooted in a temp dir with the test
// classifier preloaded.
func newTestEnv(t *testing.T) *Env {
	t.Helper()
	env := NewEnv(testConfig(t.TempDir()))
	env.classifier = testClassifier()
	return env
}

// uniqueValues returns the distinct values of a column in first-appearance
// order.
func uniqueValues(t *testing.T, f *table.Frame, col string) []string {
	t.Helper()
	vals, err := f.Strings(col)
	require.NoError(t, err)
	seen := make(map[string]bool)
	var out []string
	for _, v := range vals {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func readOutput(t *testing.T, env *Env, rel string) *table.Frame {
	t.Helper()
	f, err := reader.ReadCSV(context.Background(), env.Config.Data.Processed(rel), rel)
	require.NoError(t, err)
	return f
}

// rowWhere returns the first row matching all column/value pairs.
func rowWhere(t *testing.T, f *table.Frame, kv ...string) table.Row {
	t.Helper()
	for i := 0; i < f.Len(); i++ {
		r := f.Row(i)
		ok := true
		for j := 0; j+1 < len(kv); j += 2 {
			if r.Str(kv[j]) != kv[j+1] {
				ok = false
				break
			}
		}
		if ok {
			return r
		}
	}
	t.Fatalf("no row with %v", kv)
	return table.Row{}
}
