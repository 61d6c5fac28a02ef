package config

import (
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for the warehouse pipeline.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords) must only come from environment variables.
type Config struct {
	Env string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`

	// Document store holding raw vision-model results.
	Mongo MongoConfig `yaml:"mongo"`

	// Warehouse database (PostgreSQL). All four pipeline schemas live in
	// this one database; each stage opens its own pool against it.
	Database DatabaseConfig `yaml:"database"`

	// Region bounding box for synthetic coordinates.
	Region RegionConfig `yaml:"region"`

	// Calendar range pre-populated into the date dimension.
	DateDim DateDimConfig `yaml:"date_dim"`

	// History merge behavior.
	History HistoryConfig `yaml:"history"`
}

// MongoConfig holds document-store connection settings.
type MongoConfig struct {
	URI        string `yaml:"-" env:"MONGO_URI" env-default:"mongodb://localhost:27017"`
	Database   string `yaml:"database" env:"MONGO_DB_NAME" env-default:"satellite"`
	Collection string `yaml:"collection" env:"MONGO_COLLECTION_NAME" env-default:"image_results"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"warehouse"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"satellite_warehouse"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"5"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// RegionConfig bounds the random coordinates generated for images that
// arrive without geolocation. Defaults cover Hungary.
type RegionConfig struct {
	LatMin float64 `yaml:"lat_min" env:"REGION_LAT_MIN" env-default:"45.87"`
	LatMax float64 `yaml:"lat_max" env:"REGION_LAT_MAX" env-default:"48.58"`
	LonMin float64 `yaml:"lon_min" env:"REGION_LON_MIN" env-default:"16.16"`
	LonMax float64 `yaml:"lon_max" env:"REGION_LON_MAX" env-default:"22.89"`
}

// DateDimConfig is the inclusive year range for dim_date population.
type DateDimConfig struct {
	StartYear int `yaml:"start_year" env:"DATE_DIM_START_YEAR" env-default:"2020"`
	EndYear   int `yaml:"end_year" env:"DATE_DIM_END_YEAR" env-default:"2025"`
}

// HistoryConfig controls SCD Type 2 merge behavior.
type HistoryConfig struct {
	// DetectChanges skips opening a new version when the staged row is
	// attribute-identical to the current open version. The source system
	// churned a new version on every run; that remains the default.
	DetectChanges bool `yaml:"detect_changes" env:"HISTORY_DETECT_CHANGES" env-default:"false"`
}

// Load reads configuration from config.yaml with environment variable
// overrides. Secrets (PGPASSWORD, MONGO_URI) must come from environment
// variables (yaml:"-" fields).
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := cleanenv.ReadConfig(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadFromEnv builds configuration from environment variables alone,
// without requiring a config file. Used by tests and containers that
// inject everything through the environment.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Region.LatMin >= c.Region.LatMax {
		return fmt.Errorf("region lat_min %v must be below lat_max %v", c.Region.LatMin, c.Region.LatMax)
	}
	if c.Region.LonMin >= c.Region.LonMax {
		return fmt.Errorf("region lon_min %v must be below lon_max %v", c.Region.LonMin, c.Region.LonMax)
	}
	if c.DateDim.StartYear > c.DateDim.EndYear {
		return fmt.Errorf("date_dim start_year %d is after end_year %d", c.DateDim.StartYear, c.DateDim.EndYear)
	}
	return nil
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
