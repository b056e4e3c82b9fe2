package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/loom/core/metrics"
	"github.com/kilianp07/loom/core/model"
	"github.com/kilianp07/loom/infra/mqtt"
)

// EnvPrefix marks environment overrides. K_LOOM__WINDOW_WEEKS=6 sets
// loom.window_weeks.
const EnvPrefix = "K_"

type Config struct {
	Database   DatabaseConfig         `json:"database"`
	Loom       LoomConfig             `json:"loom"`
	Allocation model.AllocationConfig `json:"allocation"`
	HTTP       HTTPConfig             `json:"http"`
	MQTT       mqtt.Config            `json:"mqtt"`
	Metrics    metrics.Config         `json:"metrics"`
	Logging    LoggingConfig          `json:"logging"`
	Sentry     SentryConfig           `json:"sentry"`
}

// Default returns a configuration with every section defaulted.
func Default() *Config {
	cfg := &Config{}
	cfg.Loom.RollOnStart = true
	cfg.SetDefaults()
	return cfg
}

// SetDefaults fills unset values in every section.
func (c *Config) SetDefaults() {
	c.Database.SetDefaults()
	c.Loom.SetDefaults()
	c.Allocation.SetDefaults()
	c.HTTP.SetDefaults()
	c.MQTT.SetDefaults()
	c.Metrics.SetDefaults()
	c.Logging.SetDefaults()
}

// Validate checks every section.
func (c *Config) Validate() error {
	checks := []struct {
		section string
		fn      func() error
	}{
		{"database", c.Database.Validate},
		{"loom", c.Loom.Validate},
		{"allocation", c.Allocation.Validate},
		{"http", c.HTTP.Validate},
		{"mqtt", c.MQTT.Validate},
		{"logging", c.Logging.Validate},
	}
	for _, ch := range checks {
		if err := ch.fn(); err != nil {
			return fmt.Errorf("%s: %w", ch.section, err)
		}
	}
	return nil
}

// Load reads path, applies environment overrides and validates the result.
// An empty path loads defaults plus environment only.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		var parser koanf.Parser
		switch ext := strings.ToLower(filepath.Ext(path)); ext {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return nil, fmt.Errorf("unsupported config format: %s", ext)
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, err
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	// Keys absent from the sources keep their pre-populated value.
	cfg := &Config{}
	cfg.Loom.RollOnStart = true
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
