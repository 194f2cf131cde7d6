package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Feed endpoints and polling.
type FeedsConfig struct {
	StaticURL           string `yaml:"static_url" validate:"required,url"`
	TripUpdatesURL      string `yaml:"trip_updates_url" validate:"omitempty,url"`
	VehiclePositionsURL string `yaml:"vehicle_positions_url" validate:"omitempty,url"`
	AlertsURL           string `yaml:"alerts_url" validate:"omitempty,url"`
	APIKey              string `yaml:"api_key"`
	PollSeconds         int    `yaml:"poll_seconds" validate:"min=5,max=3600"`
}

// Routing knobs. These are the engine's defaults; individual queries
// may override them within the same bounds.
type RoutingConfig struct {
	MaxRoutes          int     `yaml:"max_routes" validate:"min=1,max=10"`
	MaxTransfers       int     `yaml:"max_transfers" validate:"min=0,max=5"`
	MinTransferMinutes int     `yaml:"min_transfer_minutes" validate:"min=0,max=60"`
	MaxWalkMetres      float64 `yaml:"max_walk_metres" validate:"min=0,max=5000"`
	WalkSpeedKPH       float64 `yaml:"walk_speed_kph" validate:"gt=0,lte=10"`
}

type StorageConfig struct {
	Backend     string `yaml:"backend" validate:"oneof=memory sqlite postgres"`
	Dir         string `yaml:"dir"`
	PostgresURL string `yaml:"postgres_url"`
}

type Config struct {
	Feeds   FeedsConfig   `yaml:"feeds"`
	Routing RoutingConfig `yaml:"routing"`
	Storage StorageConfig `yaml:"storage"`
}

func Default() *Config {
	return &Config{
		Feeds: FeedsConfig{
			PollSeconds: 30,
		},
		Routing: RoutingConfig{
			MaxRoutes:          5,
			MaxTransfers:       2,
			MinTransferMinutes: 10,
			MaxWalkMetres:      500,
			WalkSpeedKPH:       4.5,
		},
		Storage: StorageConfig{
			Backend: "sqlite",
			Dir:     ".",
		},
	}
}

// Load reads a YAML config file over the defaults, applies
// environment overrides, and validates the result.
//
// Environment overrides: TRANSIT_STATIC_URL, TRANSIT_API_KEY,
// TRANSIT_POSTGRES_URL.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv builds a config from defaults plus environment overrides,
// for deployments that run without a config file.
func FromEnv() (*Config, error) {
	cfg := Default()
	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("TRANSIT_STATIC_URL"); v != "" {
		cfg.Feeds.StaticURL = v
	}
	if v := os.Getenv("TRANSIT_API_KEY"); v != "" {
		cfg.Feeds.APIKey = v
	}
	if v := os.Getenv("TRANSIT_POSTGRES_URL"); v != "" {
		cfg.Storage.PostgresURL = v
	}
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Storage.Backend == "postgres" && c.Storage.PostgresURL == "" {
		return fmt.Errorf("invalid config: postgres backend requires postgres_url")
	}
	return nil
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Feeds.PollSeconds) * time.Second
}
