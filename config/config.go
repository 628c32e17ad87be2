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

	"github.com/kilianp07/fleetsim/core/dispatch"
	"github.com/kilianp07/fleetsim/core/metrics"
	"github.com/kilianp07/fleetsim/infra/mqtt"
)

// FleetConfig describes the simulated fleet generated at startup.
type FleetConfig struct {
	Size  int     `json:"size"`
	Seed  int64   `json:"seed"`
	AreaM float64 `json:"area_m"`
}

// SetDefaults applies sane defaults.
func (c *FleetConfig) SetDefaults() {
	if c.Size == 0 {
		c.Size = 20
	}
	if c.AreaM == 0 {
		c.AreaM = 10000
	}
}

// Validate checks mandatory fields.
func (c FleetConfig) Validate() error {
	if c.Size < 0 {
		return fmt.Errorf("fleet size must not be negative")
	}
	return nil
}

// SimConfig bounds a standalone simulation run.
type SimConfig struct {
	// StartTick is the tick the first waves are scheduled at.
	StartTick int64 `json:"start_tick"`
	// EndTick stops the run; triggers past it are discarded.
	EndTick int64 `json:"end_tick"`
}

// SetDefaults applies sane defaults.
func (c *SimConfig) SetDefaults() {
	if c.EndTick == 0 {
		c.EndTick = 3600
	}
}

// Validate checks mandatory fields.
func (c SimConfig) Validate() error {
	if c.EndTick <= c.StartTick {
		return fmt.Errorf("end_tick must be after start_tick")
	}
	return nil
}

// Config is the root configuration of the service.
type Config struct {
	Dispatch dispatch.Config `json:"dispatch"`
	Fleet    FleetConfig     `json:"fleet"`
	Sim      SimConfig       `json:"sim"`
	Metrics  metrics.Config  `json:"metrics"`
	Logging  LoggingConfig   `json:"logging"`
	// MQTTEnabled switches the vehicle transport from in-process simulated
	// agents to the MQTT bridge.
	MQTTEnabled bool        `json:"mqtt_enabled"`
	MQTT        mqtt.Config `json:"mqtt"`
}

// Load reads the configuration file (JSON or YAML by extension) and applies
// K_-prefixed environment overrides.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
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
	// Optional environment overrides. The callback emits dot-separated keys,
	// so the provider delimiter must be "." for them to nest.
	if err := k.Load(env.Provider("K_", ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.Dispatch.SetDefaults()
	cfg.Fleet.SetDefaults()
	cfg.Sim.SetDefaults()
	cfg.Logging.SetDefaults()
	cfg.MQTT.SetDefaults()
	if err := cfg.Dispatch.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Fleet.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Sim.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Logging.Validate(); err != nil {
		return nil, err
	}
	if cfg.MQTTEnabled {
		if err := cfg.MQTT.Validate(); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}
