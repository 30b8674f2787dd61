package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like "2s" or "10m"
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// LogConfig holds logging settings shared by both binaries
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig toggles the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// StabilityConfig tunes the file-quiescence poll
type StabilityConfig struct {
	Interval    Duration `yaml:"interval"`
	Consecutive int      `yaml:"consecutive"`
	Timeout     Duration `yaml:"timeout"`
}

// CourierConfig holds the producer-side delivery agent configuration
type CourierConfig struct {
	Stream        string          `yaml:"stream"`
	WatchDir      string          `yaml:"watch_directory"`
	IngestURL     string          `yaml:"ingest_url"`
	LedgerPath    string          `yaml:"ledger_path"`
	Extensions    []string        `yaml:"backup_extensions"`
	CycleInterval Duration        `yaml:"cycle_interval"`
	UploadTimeout Duration        `yaml:"upload_timeout"`
	Stability     StabilityConfig `yaml:"stability"`
	Log           LogConfig       `yaml:"log"`
	Metrics       MetricsConfig   `yaml:"metrics"`
}

// StreamConfig describes one archive stream on the depot side
type StreamConfig struct {
	ArchivePath string  `yaml:"archive_path"`
	MaxSizeGB   float64 `yaml:"max_size_gb"`
}

// DepotConfig holds the store-side server configuration
type DepotConfig struct {
	Port    int                     `yaml:"port"`
	Streams map[string]StreamConfig `yaml:"streams"`
	Log     LogConfig               `yaml:"log"`
	Metrics MetricsConfig           `yaml:"metrics"`
}

// LoadCourier loads and validates a courier config from a YAML file
func LoadCourier(path string) (*CourierConfig, error) {
	cfg := &CourierConfig{
		Extensions:    []string{".tar.gz", ".zip", ".tar"},
		CycleInterval: Duration(1 * time.Minute),
		UploadTimeout: Duration(10 * time.Minute),
		Stability: StabilityConfig{
			Interval:    Duration(2 * time.Second),
			Consecutive: 3,
			Timeout:     Duration(60 * time.Second),
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}

	if err := loadYAML(path, cfg); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// LoadDepot loads and validates a depot config from a YAML file
func LoadDepot(path string) (*DepotConfig, error) {
	cfg := &DepotConfig{
		Port: 8080,
		Log:  LogConfig{Level: "info", Format: "text"},
	}

	if err := loadYAML(path, cfg); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// Validate checks if the courier configuration is valid
func (c *CourierConfig) Validate() error {
	if c.Stream == "" {
		return fmt.Errorf("stream is required")
	}
	if c.WatchDir == "" {
		return fmt.Errorf("watch_directory is required")
	}
	if c.IngestURL == "" {
		return fmt.Errorf("ingest_url is required")
	}
	if c.LedgerPath == "" {
		return fmt.Errorf("ledger_path is required")
	}
	if c.Stability.Consecutive < 1 {
		return fmt.Errorf("stability.consecutive must be >= 1")
	}
	if c.Stability.Interval.Std() <= 0 {
		return fmt.Errorf("stability.interval must be positive")
	}
	if c.UploadTimeout.Std() <= 0 {
		return fmt.Errorf("upload_timeout must be positive")
	}
	return nil
}

// Validate checks if the depot configuration is valid
func (c *DepotConfig) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if len(c.Streams) == 0 {
		return fmt.Errorf("at least one stream is required")
	}
	for name, stream := range c.Streams {
		if stream.ArchivePath == "" {
			return fmt.Errorf("stream %q: archive_path is required", name)
		}
	}
	return nil
}

// BudgetBytes converts the stream's GB budget to bytes; zero or negative
// disables retention for the stream
func (s StreamConfig) BudgetBytes() int64 {
	if s.MaxSizeGB <= 0 {
		return 0
	}
	return int64(s.MaxSizeGB * 1024 * 1024 * 1024)
}

func loadYAML(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}
