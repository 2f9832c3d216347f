package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Data     DataConfig     `yaml:"data" mapstructure:"data"`
	Pipeline PipelineConfig `yaml:"pipeline" mapstructure:"pipeline"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// DataConfig locates the input and output trees.
type DataConfig struct {
	RawDir         string `yaml:"raw_dir" mapstructure:"raw_dir"`
	ProcessedDir   string `yaml:"processed_dir" mapstructure:"processed_dir"`
	DefinitionsDir string `yaml:"definitions_dir" mapstructure:"definitions_dir"`
	// Africapolis is the boundary file, relative to RawDir unless absolute.
	Africapolis string `yaml:"africapolis" mapstructure:"africapolis"`
}

// Raw resolves a path under the raw data directory.
func (d DataConfig) Raw(parts ...string) string {
	return resolve(d.RawDir, parts...)
}

// Processed resolves a path under the processed data directory.
func (d DataConfig) Processed(parts ...string) string {
	return resolve(d.ProcessedDir, parts...)
}

// Definitions resolves a path under the definitions directory.
func (d DataConfig) Definitions(parts ...string) string {
	return resolve(d.DefinitionsDir, parts...)
}

func resolve(base string, parts ...string) string {
	if len(parts) > 0 && filepath.IsAbs(parts[0]) {
		return filepath.Join(parts...)
	}
	return filepath.Join(append([]string{base}, parts...)...)
}

// PipelineConfig configures processing parameters.
type PipelineConfig struct {
	// CityYears are the WorldPop/Africapolis snapshot years.
	CityYears []int `yaml:"city_years" mapstructure:"city_years"`
	// ReturnPeriods are the flood return periods that get exposure growth
	// columns.
	ReturnPeriods []int `yaml:"return_periods" mapstructure:"return_periods"`
	// FloodType filters Fathom exposure rows.
	FloodType string `yaml:"flood_type" mapstructure:"flood_type"`
	// DynamicExtents selects per-year city extents instead of the static
	// geometry-year extent.
	DynamicExtents bool `yaml:"dynamic_extents" mapstructure:"dynamic_extents"`
	// GeometryYear is the Africapolis boundary vintage used for joins.
	GeometryYear int `yaml:"geometry_year" mapstructure:"geometry_year"`
	// CentroidGeometryYear is the boundary vintage used for map markers.
	CentroidGeometryYear int `yaml:"centroid_geometry_year" mapstructure:"centroid_geometry_year"`
	// CityListFirstYear and CityListLastYear bound cities_individual.csv.
	CityListFirstYear int `yaml:"city_list_first_year" mapstructure:"city_list_first_year"`
	CityListLastYear  int `yaml:"city_list_last_year" mapstructure:"city_list_last_year"`
	// Projection panel window and step.
	ProjectionFirstYear int `yaml:"projection_first_year" mapstructure:"projection_first_year"`
	ProjectionLastYear  int `yaml:"projection_last_year" mapstructure:"projection_last_year"`
	ProjectionStep      int `yaml:"projection_step" mapstructure:"projection_step"`
}

// ServerConfig configures the dashboard server.
type ServerConfig struct {
	Port                  int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins        []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	ReadHeaderTimeoutSecs int      `yaml:"read_header_timeout_secs" mapstructure:"read_header_timeout_secs"`
	ShutdownTimeoutSecs   int      `yaml:"shutdown_timeout_secs" mapstructure:"shutdown_timeout_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from .env, file and environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrap(err, "config: read .env")
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("URBANRISK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("data.raw_dir", "data/raw")
	v.SetDefault("data.processed_dir", "data/processed")
	v.SetDefault("data.definitions_dir", "data/Definitions")
	v.SetDefault("data.africapolis", "Africapolis_GIS_2024.gpkg")
	v.SetDefault("pipeline.city_years", []int{2015, 2020, 2025})
	v.SetDefault("pipeline.return_periods", []int{10, 100})
	v.SetDefault("pipeline.flood_type", "FLUVIAL_PLUVIAL_DEFENDED")
	v.SetDefault("pipeline.dynamic_extents", false)
	v.SetDefault("pipeline.geometry_year", 2020)
	v.SetDefault("pipeline.centroid_geometry_year", 2025)
	v.SetDefault("pipeline.city_list_first_year", 2015)
	v.SetDefault("pipeline.city_list_last_year", 2035)
	v.SetDefault("pipeline.projection_first_year", 1950)
	v.SetDefault("pipeline.projection_last_year", 2050)
	v.SetDefault("pipeline.projection_step", 5)
	v.SetDefault("server.port", 8050)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.read_header_timeout_secs", 5)
	v.SetDefault("server.shutdown_timeout_secs", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	return &cfg, nil
}

// Validate checks the settings a command mode depends on. Modes are
// "pipeline" and "serve".
func (c *Config) Validate(mode string) error {
	var errs []string
	switch mode {
	case "pipeline":
		errs = append(errs, c.validateData()...)
		errs = append(errs, c.validatePipeline()...)
	case "serve":
		if c.Data.ProcessedDir == "" {
			errs = append(errs, "data.processed_dir is required")
		}
		if c.Data.DefinitionsDir == "" {
			errs = append(errs, "data.definitions_dir is required")
		}
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be > 0 and <= 65535")
		}
		errs = append(errs, c.validatePipeline()...)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}
	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateData() []string {
	var errs []string
	if c.Data.RawDir == "" {
		errs = append(errs, "data.raw_dir is required")
	}
	if c.Data.ProcessedDir == "" {
		errs = append(errs, "data.processed_dir is required")
	}
	if c.Data.DefinitionsDir == "" {
		errs = append(errs, "data.definitions_dir is required")
	}
	return errs
}

func (c *Config) validatePipeline() []string {
	p := c.Pipeline
	var errs []string
	if len(p.CityYears) < 2 {
		errs = append(errs, "pipeline.city_years needs at least two years")
	} else if !sort.IntsAreSorted(p.CityYears) {
		errs = append(errs, "pipeline.city_years must be ascending")
	} else {
		for i := 1; i < len(p.CityYears); i++ {
			if p.CityYears[i] == p.CityYears[i-1] {
				errs = append(errs, fmt.Sprintf("pipeline.city_years has duplicate year %d", p.CityYears[i]))
			}
		}
	}
	if len(p.ReturnPeriods) == 0 {
		errs = append(errs, "pipeline.return_periods is required")
	}
	for _, rp := range p.ReturnPeriods {
		if rp <= 0 {
			errs = append(errs, fmt.Sprintf("pipeline.return_periods must be > 0, got %d", rp))
		}
	}
	if p.ProjectionStep <= 0 || p.ProjectionLastYear <= p.ProjectionFirstYear {
		errs = append(errs, "pipeline projection window is invalid")
	}
	if p.CityListLastYear < p.CityListFirstYear {
		errs = append(errs, "pipeline city list years are invalid")
	}
	return errs
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
