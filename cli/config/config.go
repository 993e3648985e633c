package config

import (
	"fmt"
	"time"
)

// Config represents a warden.yaml configuration file.
// All values are optional and act as defaults for warden run flags.
// CLI flags (and their environment variables) always override config values.
type Config struct {
	Task              string         `yaml:"task"`
	WorkDir           string         `yaml:"work_dir"`
	MaxIterations     int            `yaml:"max_iterations"`
	InactivityTimeout Duration       `yaml:"inactivity_timeout"`
	BufferLines       int            `yaml:"buffer_lines"`
	Headless          bool           `yaml:"headless"`
	LogFile           string         `yaml:"log_file"`
	LogLevel          string         `yaml:"log_level"`
	Record            string         `yaml:"record"`
	Report            string         `yaml:"report"`
	Worker            WorkerConfig   `yaml:"worker"`
	Reviewer          ReviewerConfig `yaml:"reviewer"`
	Storage           StorageConfig  `yaml:"storage"`
	Adapter           AdapterConfig  `yaml:"adapter"`
}

// WorkerConfig holds OpenCode worker defaults.
// ServerURL attaches to a running server; otherwise one is spawned.
type WorkerConfig struct {
	Model          string   `yaml:"model"`
	ServerURL      string   `yaml:"server_url"`
	Binary         string   `yaml:"binary"`
	ExtraArgs      []string `yaml:"extra_args,omitempty"`
	StartupTimeout Duration `yaml:"startup_timeout"`
}

// ReviewerConfig holds judge endpoint defaults.
type ReviewerConfig struct {
	URL         string   `yaml:"url"`
	Model       string   `yaml:"model"`
	APIKey      string   `yaml:"api_key"`
	Timeout     Duration `yaml:"timeout"`
	MaxAttempts int      `yaml:"max_attempts"`
}

// StorageConfig holds Lode export defaults.
type StorageConfig struct {
	Dataset     string `yaml:"dataset"`
	Backend     string `yaml:"backend"`
	Path        string `yaml:"path"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// AdapterConfig holds run-finished adapter defaults.
type AdapterConfig struct {
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML writes the duration back in its string form.
func (d Duration) MarshalYAML() (any, error) {
	if d.Duration == 0 {
		return "", nil
	}
	return d.String(), nil
}
