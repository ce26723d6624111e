// Package config provides configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Relative locations inside the workspace.
const (
	FilePath     = "config/station.toml"
	EnvFile      = ".env"
	PipelinesDir = "config/pipelines"
)

// Config represents the station configuration.
type Config struct {
	LLM      LLMConfig          `toml:"llm"`
	Profiles map[string]Profile `toml:"profiles"` // Named model presets for pipeline phases
	Agent    AgentConfig        `toml:"agent"`
	Storage  StorageConfig      `toml:"storage"`
	Tools    ToolsConfig        `toml:"tools"`
	Logging  LoggingConfig      `toml:"logging"`
	Events   EventsConfig       `toml:"events"`
}

// LLMConfig contains chat backend settings.
type LLMConfig struct {
	Model       string   `toml:"model"`
	BaseURL     string   `toml:"base_url"`
	Temperature float64  `toml:"temperature"`
	Timeout     Duration `toml:"timeout"`
	MaxRetries  int      `toml:"max_retries"` // 0 disables retries
}

// Profile overrides the model and temperature for phases that name it.
type Profile struct {
	Model       string   `toml:"model"`
	Temperature *float64 `toml:"temperature"`
}

// AgentConfig contains conversation loop limits.
type AgentConfig struct {
	MaxSteps     int      `toml:"max_steps"`
	ShellTimeout Duration `toml:"shell_timeout"`
	HTTPTimeout  Duration `toml:"http_timeout"`
}

// StorageConfig contains persistence locations, relative to the workspace.
type StorageConfig struct {
	StatePath    string `toml:"state_path"`
	HistoryLimit int    `toml:"history_limit"`
	Archive      string `toml:"archive"` // SQLite archive; empty disables
	SessionsDir  string `toml:"sessions_dir"`
}

// ToolsConfig contains settings for delegated tools.
type ToolsConfig struct {
	DashboardURL string `toml:"dashboard_url"`
}

// LoggingConfig contains log output settings.
type LoggingConfig struct {
	Level  string `toml:"level"`
	File   string `toml:"file"`   // JSON log file; empty disables
	Format string `toml:"format"` // text or json for stderr
}

// EventsConfig contains run event publishing settings.
type EventsConfig struct {
	NATSURL string `toml:"nats_url"` // empty disables publishing
	Subject string `toml:"subject"`
}

// Duration is a time.Duration written as a string ("60s") in TOML.
type Duration struct {
	time.Duration
}

// UnmarshalText parses a duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// MarshalText renders the duration string.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ErrInvalid wraps configuration validation failures.
var ErrInvalid = errors.New("invalid configuration")

// New creates a new config with defaults.
func New() *Config {
	return &Config{
		LLM: LLMConfig{
			Model:       "llama3.1",
			BaseURL:     "http://127.0.0.1:11434",
			Temperature: 0.2,
			Timeout:     Duration{120 * time.Second},
		},
		Agent: AgentConfig{
			MaxSteps:     10,
			ShellTimeout: Duration{60 * time.Second},
			HTTPTimeout:  Duration{20 * time.Second},
		},
		Storage: StorageConfig{
			StatePath:    "data/station_state.json",
			HistoryLimit: 50,
			SessionsDir:  "logs/sessions",
		},
		Tools: ToolsConfig{
			DashboardURL: "http://127.0.0.1:8088",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Events: EventsConfig{
			Subject: "station.runs",
		},
	}
}

// LoadFile loads configuration from a TOML file over the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := New()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// Load reads the workspace configuration: the optional .env file, the
// optional config/station.toml, then environment overrides.
func Load(root string) (*Config, error) {
	envPath := filepath.Join(root, EnvFile)
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", EnvFile, err)
		}
	}

	cfg := New()
	path := filepath.Join(root, FilePath)
	if _, err := os.Stat(path); err == nil {
		cfg, err = LoadFile(path)
		if err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv applies environment overrides using lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("STATION_MODEL"); ok && v != "" {
		c.LLM.Model = v
	}
	if v, ok := lookup("OLLAMA_HOST"); ok && v != "" {
		c.LLM.BaseURL = normalizeHost(v)
	}
	if v, ok := lookup("STATION_MAX_STEPS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: STATION_MAX_STEPS=%q is not a number", ErrInvalid, v)
		}
		c.Agent.MaxSteps = n
	}
	if v, ok := lookup("STATION_NATS_URL"); ok {
		c.Events.NATSURL = v
	}
	return nil
}

// normalizeHost accepts OLLAMA_HOST in its bare host:port form.
func normalizeHost(v string) string {
	v = strings.TrimRight(strings.TrimSpace(v), "/")
	if !strings.Contains(v, "://") {
		v = "http://" + v
	}
	return v
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []string
	if c.LLM.Model == "" {
		errs = append(errs, "llm.model is required")
	}
	if c.LLM.BaseURL == "" {
		errs = append(errs, "llm.base_url is required")
	}
	if c.LLM.Timeout.Duration <= 0 {
		errs = append(errs, "llm.timeout must be positive")
	}
	if c.LLM.MaxRetries < 0 {
		errs = append(errs, "llm.max_retries must not be negative")
	}
	if c.Agent.MaxSteps < 1 {
		errs = append(errs, "agent.max_steps must be at least 1")
	}
	if c.Agent.ShellTimeout.Duration <= 0 || c.Agent.HTTPTimeout.Duration <= 0 {
		errs = append(errs, "agent timeouts must be positive")
	}
	if c.Storage.HistoryLimit < 1 {
		errs = append(errs, "storage.history_limit must be at least 1")
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Sprintf("logging.format %q must be text or json", c.Logging.Format))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w:\n  %s", ErrInvalid, strings.Join(errs, "\n  "))
	}
	return nil
}

// ResolvePath makes a configured path absolute under root.
func ResolvePath(root, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(root, p)
}

// GetProfile resolves a phase model setting. A profile name yields the
// profile's model and temperature; any other value is a model name.
// Empty means the default LLM settings.
func (c *Config) GetProfile(name string) (model string, temperature float64) {
	model, temperature = c.LLM.Model, c.LLM.Temperature
	if name == "" {
		return
	}
	p, ok := c.Profiles[name]
	if !ok {
		return name, temperature
	}
	if p.Model != "" {
		model = p.Model
	}
	if p.Temperature != nil {
		temperature = *p.Temperature
	}
	return
}
