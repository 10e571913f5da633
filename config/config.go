/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package config loads bench configuration from YAML. Everything has a
// default; a bench constructed from Default() runs without any file.
package config

import (
	"io/ioutil"

	"github.com/pkg/errors"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// DriverConfig overrides per-driver knobs.
type DriverConfig struct {
	Name string `yaml:"name"`

	// MaxDeliveryEdges bounds one delivery; 0 inherits the global bound.
	MaxDeliveryEdges int `yaml:"maxDeliveryEdges"`

	// NonBlocking exempts the driver's queue from teardown checks.
	NonBlocking bool `yaml:"nonBlocking"`
}

// ChannelConfig overrides per-channel knobs.
type ChannelConfig struct {
	Name string `yaml:"name"`

	// Window overrides the global match window; 0 inherits it.
	Window int `yaml:"window"`
}

// Config is the bench configuration.
type Config struct {
	// Seed feeds the bench-wide deterministic random source.
	Seed int64 `yaml:"seed"`

	// Logging is the log level: debug, info, warn or error.
	Logging string `yaml:"logging"`

	// MatchWindow is the default scoreboard match window W, in ticks.
	MatchWindow int `yaml:"matchWindow"`

	// MaxDeliveryEdges is the default per-delivery edge bound; 0 means
	// unbounded.
	MaxDeliveryEdges int `yaml:"maxDeliveryEdges"`

	// TracePath enables WAL trace recording when non-empty.
	TracePath string `yaml:"tracePath"`

	// RunStorePath enables run artifact archiving when non-empty.
	RunStorePath string `yaml:"runStorePath"`

	Drivers  []DriverConfig  `yaml:"drivers"`
	Channels []ChannelConfig `yaml:"channels"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Seed:        12345,
		Logging:     "info",
		MatchWindow: 4,
	}
}

// LoadFile reads and validates a YAML configuration file, applying
// defaults for absent fields.
func LoadFile(configFileName string) (*Config, error) {
	f, err := ioutil.ReadFile(configFileName)
	if err != nil {
		return nil, errors.WithMessagef(err, "could not read config file %s", configFileName)
	}

	cfg := Default()
	if err := yaml.Unmarshal(f, cfg); err != nil {
		return nil, errors.WithMessagef(err, "could not unmarshal config file %s", configFileName)
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.WithMessagef(err, "invalid config file %s", configFileName)
	}
	return cfg, nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if _, err := c.ZapLevel(); err != nil {
		return err
	}
	if c.MatchWindow < 0 {
		return errors.Errorf("matchWindow must be non-negative, got %d", c.MatchWindow)
	}
	if c.MaxDeliveryEdges < 0 {
		return errors.Errorf("maxDeliveryEdges must be non-negative, got %d", c.MaxDeliveryEdges)
	}
	seen := map[string]bool{}
	for _, d := range c.Drivers {
		if d.Name == "" {
			return errors.New("driver config requires a name")
		}
		if seen["d"+d.Name] {
			return errors.Errorf("duplicate driver config %q", d.Name)
		}
		seen["d"+d.Name] = true
	}
	for _, ch := range c.Channels {
		if ch.Name == "" {
			return errors.New("channel config requires a name")
		}
		if seen["c"+ch.Name] {
			return errors.Errorf("duplicate channel config %q", ch.Name)
		}
		seen["c"+ch.Name] = true
	}
	return nil
}

// Driver returns the per-driver overrides for name, nil when absent.
func (c *Config) Driver(name string) *DriverConfig {
	for i := range c.Drivers {
		if c.Drivers[i].Name == name {
			return &c.Drivers[i]
		}
	}
	return nil
}

// Channel returns the per-channel overrides for name, nil when absent.
func (c *Config) Channel(name string) *ChannelConfig {
	for i := range c.Channels {
		if c.Channels[i].Name == name {
			return &c.Channels[i]
		}
	}
	return nil
}

// ZapLevel maps the configured logging level to a zap level.
func (c *Config) ZapLevel() (zapcore.Level, error) {
	switch c.Logging {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, errors.Errorf("unknown logging level %q", c.Logging)
	}
}
