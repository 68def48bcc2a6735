// Package config handles converter configuration loading and management.
package config

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/pssgconv/pkg/convert"
	"github.com/Faultbox/pssgconv/pkg/obj"
)

// Config holds all converter settings.
type Config struct {
	Output     OutputConfig     `yaml:"output" toml:"output"`
	Conversion ConversionConfig `yaml:"conversion" toml:"conversion"`
	Watch      WatchConfig      `yaml:"watch" toml:"watch"`
	Logging    LoggingConfig    `yaml:"logging" toml:"logging"`
}

// OutputConfig holds settings for written OBJ files.
type OutputConfig struct {
	Dir       string `yaml:"dir" toml:"dir"`             // empty writes next to the input
	Precision string `yaml:"precision" toml:"precision"` // "natural" or "fixed"
}

// ConversionConfig holds pipeline settings.
type ConversionConfig struct {
	OnObjectError string `yaml:"on_object_error" toml:"on_object_error"` // "skip" or "abort"
}

// WatchConfig holds settings for the watch command.
type WatchConfig struct {
	Debounce string `yaml:"debounce" toml:"debounce"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level" toml:"level"`
	LogFile string `yaml:"log_file" toml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Output: OutputConfig{
			Dir:       "",
			Precision: obj.FormatNatural.String(),
		},
		Conversion: ConversionConfig{
			OnObjectError: convert.PolicySkip.String(),
		},
		Watch: WatchConfig{
			Debounce: "250ms",
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}

// Validate reports the first setting that holds an unknown value.
func (c *Config) Validate() error {
	switch c.Output.Precision {
	case "natural", "fixed":
	default:
		return fmt.Errorf("output.precision: unknown value %q", c.Output.Precision)
	}
	switch c.Conversion.OnObjectError {
	case "skip", "abort":
	default:
		return fmt.Errorf("conversion.on_object_error: unknown value %q", c.Conversion.OnObjectError)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unknown value %q", c.Logging.Level)
	}
	if d, err := time.ParseDuration(c.Watch.Debounce); err != nil {
		return fmt.Errorf("watch.debounce: %w", err)
	} else if d < 0 {
		return fmt.Errorf("watch.debounce: negative duration %s", d)
	}
	return nil
}

// ConvertOptions returns the pipeline options described by the config.
func (c *Config) ConvertOptions(log *zap.Logger) convert.Options {
	return convert.Options{
		OutputDir: c.Output.Dir,
		Policy:    convert.ParsePolicy(c.Conversion.OnObjectError),
		Format:    obj.ParseFormat(c.Output.Precision),
		Logger:    log,
	}
}

// WatchOptions returns the watch loop options described by the config.
// An unparsable debounce falls back to no debounce; Load rejects it earlier.
func (c *Config) WatchOptions(log *zap.Logger) convert.WatchOptions {
	debounce, _ := time.ParseDuration(c.Watch.Debounce)
	return convert.WatchOptions{
		Options:  c.ConvertOptions(log),
		Debounce: debounce,
	}
}
