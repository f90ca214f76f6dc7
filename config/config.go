// Package config loads the bridge configuration from a yaml or json file
// with TESLA_ environment variable overrides, e.g. TESLA_MQTT__BROKER maps
// to mqtt.broker.
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

	coremetrics "github.com/mkarlsen/tesla2mqtt/core/metrics"
	"github.com/mkarlsen/tesla2mqtt/infra/mqtt"
	"github.com/mkarlsen/tesla2mqtt/infra/tesla"
)

type Config struct {
	MQTT    mqtt.Config        `json:"mqtt"`
	Vehicle tesla.Config       `json:"vehicle"`
	Bridge  BridgeConfig       `json:"bridge"`
	Metrics coremetrics.Config `json:"metrics"`
}

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
	// Optional environment overrides
	if err := k.Load(env.Provider("TESLA_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "tesla_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.MQTT.SetDefaults()
	cfg.Vehicle.SetDefaults()
	cfg.Bridge.SetDefaults()
	cfg.Metrics.SetDefaults()
	if err := cfg.MQTT.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Vehicle.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Bridge.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
