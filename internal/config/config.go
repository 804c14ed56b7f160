package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"taskboard/internal/events"
)

const (
	FileName = "taskboard.yml"

	SourceSQL    = "sql"
	SourceMemory = "memory"
)

// Config models taskboard.yml.
type Config struct {
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Reports struct {
		Source      string `yaml:"source"`
		CutoffYear  int    `yaml:"cutoff_year"`
		MinTeamSize int    `yaml:"min_team_size"`
	} `yaml:"reports"`
	Notifier struct {
		IntervalSeconds int `yaml:"interval_seconds"`
	} `yaml:"notifier"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret"`
	Events         []string `yaml:"events"`
	Enabled        *bool    `yaml:"enabled"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
}

// Active reports whether the hook should receive deliveries.
func (w WebhookConfig) Active() bool {
	return (w.Enabled == nil || *w.Enabled) && strings.TrimSpace(w.URL) != ""
}

// Default returns the configuration used when taskboard.yml is absent.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = "127.0.0.1:8080"
	}
	if c.Server.BasePath == "" {
		c.Server.BasePath = "/v1"
	}
	if c.Reports.Source == "" {
		c.Reports.Source = SourceSQL
	}
	if c.Reports.CutoffYear == 0 {
		c.Reports.CutoffYear = 2000
	}
	if c.Reports.MinTeamSize == 0 {
		c.Reports.MinTeamSize = 3
	}
	if c.Notifier.IntervalSeconds == 0 {
		c.Notifier.IntervalSeconds = 2
	}
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	switch c.Reports.Source {
	case SourceSQL, SourceMemory:
	default:
		return fmt.Errorf("config.reports.source must be %q or %q, got %q", SourceSQL, SourceMemory, c.Reports.Source)
	}
	if c.Reports.MinTeamSize < 0 {
		return fmt.Errorf("config.reports.min_team_size must not be negative")
	}
	if c.Notifier.IntervalSeconds < 0 {
		return fmt.Errorf("config.notifier.interval_seconds must not be negative")
	}
	known := map[string]bool{}
	for _, t := range events.Types {
		known[t] = true
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("webhook %d: url is required", i)
		}
		if !strings.HasPrefix(hook.URL, "http://") && !strings.HasPrefix(hook.URL, "https://") {
			return fmt.Errorf("webhook %d: url must be http(s)", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("webhook %d: timeout_seconds must not be negative", i)
		}
		for _, evt := range hook.Events {
			if !known[strings.TrimSpace(evt)] {
				return fmt.Errorf("webhook %d: unknown event type %s", i, evt)
			}
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// LoadOptional returns Default() if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses, defaults and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// Template is written by `tb init`.
const Template = `server:
  addr: 127.0.0.1:8080
  base_path: /v1

reports:
  # sql pushes queries down to sqlite, memory evaluates a loaded snapshot
  source: sql
  cutoff_year: 2000
  min_team_size: 3

notifier:
  interval_seconds: 2

webhooks: []
#  - url: https://example.com/hooks/taskboard
#    secret: change-me
#    events: [task.created, task.state_changed]
#    timeout_seconds: 5
`
