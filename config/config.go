// Package config holds the engine settings, loaded from YAML with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/rawbytedev/typeconv/pkg/conversion"
	"github.com/rawbytedev/typeconv/pkg/format"
	"github.com/rawbytedev/typeconv/pkg/typecreator"
	"gopkg.in/yaml.v3"
)

// Config is the top level configuration.
type Config struct {
	Registry RegistryConfig `yaml:"registry"`
	Creator  CreatorConfig  `yaml:"creator"`
	Format   FormatConfig   `yaml:"format"`
	Compare  CompareConfig  `yaml:"compare"`
	Log      LogConfig      `yaml:"log"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

type RegistryConfig struct {
	// Capacity is the number of conversion factory slots.
	Capacity int `yaml:"capacity"`
}

type CreatorConfig struct {
	PageSize uint64 `yaml:"page_size"`
	// MaxBytes bounds the pages of one build; 0 is unlimited.
	MaxBytes uint64 `yaml:"max_bytes"`
}

type FormatConfig struct {
	// Number is a printf style verb such as "%d" or "%.3f".
	Number string `yaml:"number"`
}

type CompareConfig struct {
	Policy string `yaml:"policy"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns the built in settings.
func Default() Config {
	return Config{
		Registry: RegistryConfig{Capacity: conversion.DefaultCapacity},
		Creator:  CreatorConfig{PageSize: typecreator.DefaultPageSize},
		Format:   FormatConfig{Number: "%d"},
		Compare:  CompareConfig{Policy: conversion.CompareAll.String()},
		Log:      LogConfig{Level: "info"},
	}
}

// Load reads path over the defaults, applies TYPECONV_* environment
// variables and validates the result. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Parse reads a YAML document over the defaults.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("TYPECONV_REGISTRY_CAPACITY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("TYPECONV_REGISTRY_CAPACITY: %w", err)
		}
		c.Registry.Capacity = n
	}
	if v := os.Getenv("TYPECONV_CREATOR_PAGE_SIZE"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("TYPECONV_CREATOR_PAGE_SIZE: %w", err)
		}
		c.Creator.PageSize = n
	}
	if v := os.Getenv("TYPECONV_FORMAT_NUMBER"); v != "" {
		c.Format.Number = v
	}
	if v := os.Getenv("TYPECONV_COMPARE_POLICY"); v != "" {
		c.Compare.Policy = v
	}
	if v := os.Getenv("TYPECONV_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	return nil
}

// Validate checks every field.
func (c Config) Validate() error {
	if c.Registry.Capacity < 1 {
		return fmt.Errorf("registry.capacity must be >= 1")
	}
	if c.Creator.PageSize < 8 {
		return fmt.Errorf("creator.page_size must be >= 8")
	}
	if c.Creator.MaxBytes != 0 && c.Creator.MaxBytes < c.Creator.PageSize {
		return fmt.Errorf("creator.max_bytes must be 0 or >= creator.page_size")
	}
	if _, err := c.NumberFormat(); err != nil {
		return fmt.Errorf("format.number: %w", err)
	}
	if _, err := c.ComparePolicy(); err != nil {
		return fmt.Errorf("compare.policy: %w", err)
	}
	if _, err := c.LogLevel(); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

func (c Config) NumberFormat() (format.Descriptor, error) {
	return format.Parse(c.Format.Number)
}

func (c Config) ComparePolicy() (conversion.ComparePolicy, error) {
	return conversion.ParseComparePolicy(c.Compare.Policy)
}

func (c Config) LogLevel() (slog.Level, error) {
	var l slog.Level
	err := l.UnmarshalText([]byte(strings.TrimSpace(c.Log.Level)))
	return l, err
}

// ManagerOptions translates the settings into conversion manager options.
func (c Config) ManagerOptions() []conversion.Option {
	var opts []conversion.Option
	opts = append(opts, conversion.WithCapacity(c.Registry.Capacity))
	if p, err := c.ComparePolicy(); err == nil {
		opts = append(opts, conversion.WithComparePolicy(p))
	}
	if d, err := c.NumberFormat(); err == nil {
		opts = append(opts, conversion.WithFormat(d))
	}
	return opts
}

// CreatorOptions translates the settings into type creator options.
func (c Config) CreatorOptions() []typecreator.Option {
	opts := []typecreator.Option{typecreator.WithPageSize(c.Creator.PageSize)}
	if c.Creator.MaxBytes != 0 {
		opts = append(opts, typecreator.WithMaxBytes(c.Creator.MaxBytes))
	}
	return opts
}
