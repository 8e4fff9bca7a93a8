// Copyright 2024 The go-nic Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mon

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration with YAML support for "1s"-style strings.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	err := node.Decode(&raw)
	if err != nil {
		return fmt.Errorf("mon: could not decode duration: %w", err)
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("mon: could not parse duration %q: %w", raw, err)
	}
	*d = Duration(v)
	return nil
}

// NicConfig statically describes one adapter, used when no inventory
// database is configured.
type NicConfig struct {
	ID       uint32 `yaml:"id"`
	PortBase int64  `yaml:"port-base"`
	Variant  string `yaml:"variant"`
}

// ProbeConfig describes the optional SMBus temperature probe.
type ProbeConfig struct {
	Enabled bool  `yaml:"enabled"`
	Bus     int   `yaml:"bus"`
	Addr    uint8 `yaml:"addr"`
	Reg     uint8 `yaml:"reg"`
	Max     uint8 `yaml:"max"` // alert threshold, degrees C
}

// Config is the monitor configuration.
type Config struct {
	DB        string      `yaml:"db"`   // inventory database name; empty uses Nics
	Nics      []NicConfig `yaml:"nics"` // static inventory
	Period    Duration    `yaml:"period"`
	PollBound uint32      `yaml:"poll-bound"`
	Escalate  bool        `yaml:"escalate"`
	Metrics   string      `yaml:"metrics"` // prometheus listen address; empty disables
	Probe     ProbeConfig `yaml:"probe"`
}

// LoadConfig reads the monitor configuration from a YAML file and applies
// defaults for unset fields. Escalation is on unless the file disables it.
func LoadConfig(fname string) (Config, error) {
	cfg := Config{Escalate: true}

	raw, err := os.ReadFile(fname)
	if err != nil {
		return cfg, fmt.Errorf("mon: could not read config %q: %w", fname, err)
	}

	err = yaml.Unmarshal(raw, &cfg)
	if err != nil {
		return cfg, fmt.Errorf("mon: could not parse config %q: %w", fname, err)
	}

	if cfg.Period == 0 {
		cfg.Period = Duration(2 * time.Second)
	}
	if cfg.DB == "" && len(cfg.Nics) == 0 {
		return cfg, fmt.Errorf("mon: config %q has neither a db nor a static inventory", fname)
	}
	return cfg, nil
}
