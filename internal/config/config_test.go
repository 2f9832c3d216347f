package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "data/raw", cfg.Data.RawDir)
	assert.Equal(t, "data/processed", cfg.Data.ProcessedDir)
	assert.Equal(t, "data/Definitions", cfg.Data.DefinitionsDir)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8050, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Server.ReadHeaderTimeoutSecs)
	assert.Equal(t, []int{2015, 2020, 2025}, cfg.Pipeline.CityYears)
	assert.Equal(t, []int{10, 100}, cfg.Pipeline.ReturnPeriods)
	assert.Equal(t, "FLUVIAL_PLUVIAL_DEFENDED", cfg.Pipeline.FloodType)
	assert.False(t, cfg.Pipeline.DynamicExtents)
	assert.Equal(t, 2020, cfg.Pipeline.GeometryYear)
	assert.Equal(t, 2025, cfg.Pipeline.CentroidGeometryYear)
	assert.Equal(t, 1950, cfg.Pipeline.ProjectionFirstYear)
	assert.Equal(t, 2050, cfg.Pipeline.ProjectionLastYear)
	assert.Equal(t, 5, cfg.Pipeline.ProjectionStep)
	assert.NoError(t, cfg.Validate("pipeline"))
	assert.NoError(t, cfg.Validate("serve"))
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
data:
  processed_dir: /srv/urbanrisk/processed
log:
  level: debug
  format: console
server:
  port: 9090
pipeline:
  dynamic_extents: true
  return_periods: [10, 50, 100]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/srv/urbanrisk/processed", cfg.Data.ProcessedDir)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.True(t, cfg.Pipeline.DynamicExtents)
	assert.Equal(t, []int{10, 50, 100}, cfg.Pipeline.ReturnPeriods)
	// Defaults still apply for unset values
	assert.Equal(t, "data/raw", cfg.Data.RawDir)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
data:
  raw_dir: from-file
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("URBANRISK_DATA_RAW_DIR", "from-env")
	t.Setenv("URBANRISK_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "from-env", cfg.Data.RawDir)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadDotEnv(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("URBANRISK_SERVER_PORT=3000\n"), 0644))
	t.Cleanup(func() { os.Unsetenv("URBANRISK_SERVER_PORT") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestLoadEnvOverridesDotEnv(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("URBANRISK_SERVER_PORT=3000\n"), 0644))
	t.Setenv("URBANRISK_SERVER_PORT", "4000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 4000, cfg.Server.Port)
}

func TestDataPaths(t *testing.T) {
	d := DataConfig{RawDir: "data/raw", ProcessedDir: "data/processed", DefinitionsDir: "defs"}
	assert.Equal(t, filepath.Join("data", "raw", "WUP2025", "x.csv"), d.Raw("WUP2025", "x.csv"))
	assert.Equal(t, filepath.Join("data", "processed", "cities_individual.csv"), d.Processed("cities_individual.csv"))
	assert.Equal(t, filepath.Join("defs", "WB_Classification.csv"), d.Definitions("WB_Classification.csv"))
	assert.Equal(t, "/abs/file.gpkg", d.Raw("/abs/file.gpkg"))
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Data = DataConfig{RawDir: "raw", ProcessedDir: "processed", DefinitionsDir: "defs"}
	cfg.Pipeline.CityYears = []int{2015, 2020, 2025}
	cfg.Pipeline.ReturnPeriods = []int{10, 100}
	cfg.Pipeline.ProjectionFirstYear = 1950
	cfg.Pipeline.ProjectionLastYear = 2050
	cfg.Pipeline.ProjectionStep = 5
	cfg.Pipeline.CityListFirstYear = 2015
	cfg.Pipeline.CityListLastYear = 2035
	cfg.Server.Port = 8050
	return cfg
}

func TestValidatePipeline_MissingDirs(t *testing.T) {
	cfg := validDefaults()
	cfg.Data = DataConfig{}

	err := cfg.Validate("pipeline")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "data.raw_dir is required")
	assert.Contains(t, err.Error(), "data.processed_dir is required")
}

func TestValidatePipeline_Years(t *testing.T) {
	cfg := validDefaults()
	cfg.Pipeline.CityYears = []int{2020, 2015}
	err := cfg.Validate("pipeline")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "ascending")

	cfg.Pipeline.CityYears = []int{2015, 2015}
	err = cfg.Validate("pipeline")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate year 2015")

	cfg.Pipeline.CityYears = []int{2015, 2020}
	cfg.Pipeline.ReturnPeriods = []int{0}
	err = cfg.Validate("pipeline")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "return_periods must be > 0")
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateServe_NoRawDirNeeded(t *testing.T) {
	cfg := validDefaults()
	cfg.Data.RawDir = ""
	assert.NoError(t, cfg.Validate("serve"))
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
