// Package config loads and validates the TOML application configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Config represents the application configuration.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Storage   StorageConfig   `toml:"storage"`
	Routing   RoutingConfig   `toml:"routing"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	Logging   LoggingConfig   `toml:"logging"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if err := c.Routing.Validate(); err != nil {
		return fmt.Errorf("routing: %w", err)
	}
	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	return nil
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string `toml:"host"`
	Port            int    `toml:"port"`
	ReadTimeoutSecs int    `toml:"read_timeout_seconds"`
	CORSEnabled     bool   `toml:"cors_enabled"`
}

// Address returns the HTTP listen address.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ReadTimeout returns the server read timeout as a duration.
func (c *ServerConfig) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutSecs) * time.Second
}

// Validate validates the server configuration.
func (c *ServerConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.ReadTimeoutSecs, validation.Min(0)),
	)
}

// StorageConfig holds SQLite database configuration.
type StorageConfig struct {
	Path string `toml:"path"`
}

// Validate validates the storage configuration.
func (c *StorageConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// RoutingConfig holds best-path search configuration.
type RoutingConfig struct {
	QueryTimeoutMs         int     `toml:"query_timeout_ms"`
	CorridorAltitudeMeters float64 `toml:"corridor_altitude_meters"`
	AircraftMaxAgeSecs     int     `toml:"aircraft_max_age_seconds"`
	DefaultWindowHours     int     `toml:"default_window_hours"`
	GridCellDegrees        float64 `toml:"grid_cell_degrees"`
}

// QueryTimeout returns the per-query search budget as a duration.
func (c *RoutingConfig) QueryTimeout() time.Duration {
	return time.Duration(c.QueryTimeoutMs) * time.Millisecond
}

// AircraftMaxAge returns how old an aircraft observation may be before it is
// excluded from routing.
func (c *RoutingConfig) AircraftMaxAge() time.Duration {
	return time.Duration(c.AircraftMaxAgeSecs) * time.Second
}

// DefaultWindow returns the validity window applied to queries that omit an
// end time.
func (c *RoutingConfig) DefaultWindow() time.Duration {
	return time.Duration(c.DefaultWindowHours) * time.Hour
}

// Validate validates the routing configuration.
func (c *RoutingConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.QueryTimeoutMs, validation.Required, validation.Min(1)),
		validation.Field(&c.CorridorAltitudeMeters, validation.Required, validation.Min(1.0)),
		validation.Field(&c.AircraftMaxAgeSecs, validation.Required, validation.Min(1)),
		validation.Field(&c.DefaultWindowHours, validation.Required, validation.Min(1)),
		validation.Field(&c.GridCellDegrees, validation.Required, validation.Min(0.001)),
	)
}

// TelemetryConfig holds the aircraft position feed configuration.
type TelemetryConfig struct {
	Enabled          bool   `toml:"enabled"`
	FeedURL          string `toml:"feed_url"`
	PollIntervalSecs int    `toml:"poll_interval_seconds"`
}

// PollInterval returns the feed polling interval as a duration.
func (c *TelemetryConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSecs) * time.Second
}

// Validate validates the telemetry configuration.
func (c *TelemetryConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.FeedURL, validation.Required),
		validation.Field(&c.PollIntervalSecs, validation.Required, validation.Min(1)),
	)
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeoutSecs: 30,
			CORSEnabled:     true,
		},
		Storage: StorageConfig{
			Path: "./skygraph.db",
		},
		Routing: RoutingConfig{
			QueryTimeoutMs:         1000,
			CorridorAltitudeMeters: 1000,
			AircraftMaxAgeSecs:     60,
			DefaultWindowHours:     24,
			GridCellDegrees:        0.05,
		},
		Telemetry: TelemetryConfig{
			Enabled:          false,
			PollIntervalSecs: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads the TOML config file at the given path, layered over defaults,
// and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}
