package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"pairings/internal/msr"
	"pairings/internal/render"
)

// DefaultGroups are the run groups printed when none are requested.
var DefaultGroups = []string{"A", "B", "C", "D"}

type API struct {
	BaseURL   string        `yaml:"base_url"` // https://api.motorsportreg.com/rest
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`
}

type Credentials struct {
	OrgID    string `yaml:"org"`
	Username string `yaml:"username"`
	Password string `yaml:"password"` // prefer MSR_PASSWORD or the prompt
}

type Output struct {
	Format      string   `yaml:"format"` // text | json | yaml
	Groups      []string `yaml:"groups"`
	MetricsFile string   `yaml:"metrics_file"`
}

type Config struct {
	API         API         `yaml:"api"`
	Credentials Credentials `yaml:"credentials"`
	EventID     string      `yaml:"event"`
	Verbose     bool        `yaml:"verbose"`
	Output      Output      `yaml:"output"`
}

// Load reads the YAML file at path and fills in defaults. An empty path
// yields the defaults alone.
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
	}
	// Defaults
	if c.API.BaseURL == "" {
		c.API.BaseURL = msr.DefaultBaseURL
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = msr.DefaultTimeout
	}
	if c.Output.Format == "" {
		c.Output.Format = "text"
	}
	if len(c.Output.Groups) == 0 {
		c.Output.Groups = append([]string(nil), DefaultGroups...)
	}
	return &c, nil
}

// Validate checks that everything needed to reach the API is set.
func (c *Config) Validate() error {
	var missing []string
	if c.Credentials.OrgID == "" {
		missing = append(missing, "org")
	}
	if c.EventID == "" {
		missing = append(missing, "event")
	}
	if c.Credentials.Username == "" {
		missing = append(missing, "username")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}
	if c.API.Timeout < 0 {
		return errors.New("api timeout must not be negative")
	}
	if !slices.Contains(render.Formats, strings.ToLower(c.Output.Format)) {
		return fmt.Errorf("unknown format %q (want one of %s)", c.Output.Format, strings.Join(render.Formats, ", "))
	}
	return nil
}

// AllGroups reports whether every group seen in the event should be printed.
func (c *Config) AllGroups() bool {
	return len(c.Output.Groups) == 1 && strings.EqualFold(c.Output.Groups[0], "all")
}
