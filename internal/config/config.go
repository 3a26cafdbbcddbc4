// Package config loads and validates harness configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/JakeFAU/streamtrace/internal/export"
	"github.com/JakeFAU/streamtrace/internal/harness"
	"github.com/JakeFAU/streamtrace/internal/logging"
	"github.com/JakeFAU/streamtrace/internal/stream"
)

// EnvPrefix namespaces environment overrides, e.g. STREAMTRACE_HARNESS_UNITS=5.
const EnvPrefix = "STREAMTRACE"

// Config captures every knob loaded via Viper.
type Config struct {
	Source  SourceConfig  `mapstructure:"source"`
	Sink    SinkConfig    `mapstructure:"sink"`
	Harness HarnessConfig `mapstructure:"harness"`
	Logging LoggingConfig `mapstructure:"logging"`
	Export  ExportConfig  `mapstructure:"export"`
}

// SourceConfig configures the producing component.
type SourceConfig struct {
	Name          string `mapstructure:"name"`
	HighWaterMark int    `mapstructure:"high_water_mark"`
	Mode          string `mapstructure:"mode"`
}

// SinkConfig configures the consuming component.
type SinkConfig struct {
	Name          string `mapstructure:"name"`
	HighWaterMark int    `mapstructure:"high_water_mark"`
}

// HarnessConfig describes the scenario the driver runs.
type HarnessConfig struct {
	Units             int    `mapstructure:"units"`
	Template          string `mapstructure:"template"`
	Encoding          string `mapstructure:"encoding"`
	MalformedIndex    int    `mapstructure:"malformed_index"`
	MalformedEncoding string `mapstructure:"malformed_encoding"`
	TolerateErrors    bool   `mapstructure:"tolerate_errors"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// ExportConfig sizes the trace export hub.
type ExportConfig struct {
	BufferSize     int           `mapstructure:"buffer_size"`
	MaxBatchEvents int           `mapstructure:"max_batch_events"`
	MaxBatchWait   time.Duration `mapstructure:"max_batch_wait"`
}

// flagKeys maps CLI flag names onto config keys.
var flagKeys = map[string]string{
	"units":           "harness.units",
	"encoding":        "harness.encoding",
	"tolerate-errors": "harness.tolerate_errors",
	"mode":            "source.mode",
	"source-hwm":      "source.high_water_mark",
	"sink-hwm":        "sink.high_water_mark",
	"log-level":       "logging.level",
}

// Load builds a Config from defaults, an optional file, the environment and
// any flags in flags that were set explicitly. Later sources win.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			f := flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("source.name", "source")
	v.SetDefault("source.high_water_mark", stream.DefaultHighWaterMark)
	v.SetDefault("source.mode", stream.ModeData.String())
	v.SetDefault("sink.name", "sink")
	v.SetDefault("sink.high_water_mark", stream.DefaultHighWaterMark)
	v.SetDefault("harness.units", harness.DefaultUnits)
	v.SetDefault("harness.template", harness.DefaultTemplate)
	v.SetDefault("harness.encoding", "")
	v.SetDefault("harness.malformed_index", -1)
	v.SetDefault("harness.malformed_encoding", harness.DefaultMalformedEncoding)
	v.SetDefault("harness.tolerate_errors", false)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("export.buffer_size", 4096)
	v.SetDefault("export.max_batch_events", 256)
	v.SetDefault("export.max_batch_wait", "100ms")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Source.Name == "" || c.Sink.Name == "" {
		return fmt.Errorf("source.name and sink.name must be set")
	}
	if c.Source.HighWaterMark <= 0 {
		return fmt.Errorf("source.high_water_mark must be > 0")
	}
	if c.Sink.HighWaterMark <= 0 {
		return fmt.Errorf("sink.high_water_mark must be > 0")
	}
	if _, err := stream.ParseMode(c.Source.Mode); err != nil {
		return fmt.Errorf("source.mode: %w", err)
	}
	if c.Export.BufferSize < 0 || c.Export.MaxBatchEvents < 0 || c.Export.MaxBatchWait < 0 {
		return fmt.Errorf("export sizes must be >= 0")
	}
	if _, err := c.HarnessConfig(); err != nil {
		return err
	}
	return nil
}

// HarnessConfig converts the loaded values into a harness scenario.
func (c Config) HarnessConfig() (harness.Config, error) {
	mode, err := stream.ParseMode(c.Source.Mode)
	if err != nil {
		return harness.Config{}, fmt.Errorf("source.mode: %w", err)
	}
	hc := harness.Config{
		Units:             c.Harness.Units,
		Template:          c.Harness.Template,
		Encoding:          c.Harness.Encoding,
		MalformedIndex:    c.Harness.MalformedIndex,
		MalformedEncoding: c.Harness.MalformedEncoding,
		TolerateErrors:    c.Harness.TolerateErrors,
		Source: stream.SourceConfig{
			Name:          c.Source.Name,
			HighWaterMark: c.Source.HighWaterMark,
			Mode:          mode,
		},
		Sink: stream.SinkConfig{
			Name:          c.Sink.Name,
			HighWaterMark: c.Sink.HighWaterMark,
		},
	}
	if err := hc.Validate(); err != nil {
		return harness.Config{}, fmt.Errorf("harness: %w", err)
	}
	return hc, nil
}

// ExportConfig converts the export section into hub settings.
func (c Config) ExportConfig() export.Config {
	return export.Config{
		BufferSize:      c.Export.BufferSize,
		MaxBatchRecords: c.Export.MaxBatchEvents,
		MaxBatchWait:    c.Export.MaxBatchWait,
	}
}

// LoggingOptions converts the logging section into logger options.
func (c Config) LoggingOptions() logging.Options {
	return logging.Options{
		Development: c.Logging.Development,
		Level:       c.Logging.Level,
	}
}
