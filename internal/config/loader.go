package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/okian/ovation/internal/domain/mixer"
)

const (
	envPrefix  = "OVATION_"
	envConfig  = "OVATION_CONFIG"
	envSection = "__"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if OVATION_CONFIG is set
//  3. env (prefix OVATION_, sections split by a double underscore, so
//     OVATION_SERVER__ADDR sets server.addr)
func Load(ctx context.Context) (*Config, error) {
	k := koanf.New(".")

	if path := os.Getenv(envConfig); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%s: %v: %w", path, err, ErrLoadConfig)
		}
	}

	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		if s == envConfig {
			return ""
		}
		s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
		return strings.ReplaceAll(s, envSection, ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("env: %v: %w", err, ErrLoadConfig)
	}

	cfg := New()
	conf := koanf.UnmarshalConf{Tag: "koanf"}
	if err := k.UnmarshalWithConf("", cfg, conf); err != nil {
		return nil, fmt.Errorf("unmarshal: %v: %w", err, ErrLoadConfig)
	}
	// A configured layer list replaces the defaults instead of merging
	// into them element by element.
	if k.Exists("mixer.layers") {
		var layers []mixer.Layer
		if err := k.UnmarshalWithConf("mixer.layers", &layers, conf); err != nil {
			return nil, fmt.Errorf("mixer.layers: %v: %w", err, ErrLoadConfig)
		}
		cfg.Mixer.Layers = layers
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
