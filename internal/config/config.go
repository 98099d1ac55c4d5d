// Package config loads the YAML/env configuration for the h264encd CLI
// harness and turns it into an encoder.EncoderConfig plus the ambient
// settings (logging, output path) the harness itself needs. encoder.Driver
// never imports this package — EncoderConfig carries no CLI/file dependency
// of its own (see internal/encoder/backend.go).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/breeze-rmm/h264enc/internal/encoder"
	"github.com/breeze-rmm/h264enc/internal/logging"
)

var log = logging.L("config")

// Config is the on-disk/env shape h264encd loads, re-scoped from an
// agent-wide config to one driver instance plus its own ambient settings.
// yaml tags match the mapstructure ones so WriteDefault's output round-trips
// through the same viper loader Load uses.
type Config struct {
	Profile   string `mapstructure:"profile" yaml:"profile"`
	Level     uint8  `mapstructure:"level" yaml:"level"`
	Width     uint32 `mapstructure:"width" yaml:"width"`
	Height    uint32 `mapstructure:"height" yaml:"height"`
	FrameRate uint32 `mapstructure:"frame_rate" yaml:"frame_rate"`

	IntraIDRPeriod uint32 `mapstructure:"intra_idr_period" yaml:"intra_idr_period"`
	IntraPeriod    uint32 `mapstructure:"intra_period" yaml:"intra_period"`
	IPPeriod       uint32 `mapstructure:"ip_period" yaml:"ip_period"`

	RateControl  string `mapstructure:"rate_control" yaml:"rate_control"`
	MinQP        uint8  `mapstructure:"min_qp" yaml:"min_qp"`
	MaxQP        uint8  `mapstructure:"max_qp" yaml:"max_qp"`
	QualityLevel uint32 `mapstructure:"quality_level" yaml:"quality_level"`

	MaxSliceLen     uint32 `mapstructure:"max_slice_len" yaml:"max_slice_len"`
	MaxL0References uint32 `mapstructure:"max_l0_references" yaml:"max_l0_references"`
	MaxL1References uint32 `mapstructure:"max_l1_references" yaml:"max_l1_references"`
	PreferHardware  bool   `mapstructure:"prefer_hardware" yaml:"prefer_hardware"`

	// Output configuration
	OutputPath string `mapstructure:"output_path" yaml:"output_path"`

	// Logging configuration
	LogLevel      string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat     string `mapstructure:"log_format" yaml:"log_format"`
	LogFile       string `mapstructure:"log_file" yaml:"log_file"`
	LogMaxSizeMB  int    `mapstructure:"log_max_size_mb" yaml:"log_max_size_mb"`
	LogMaxBackups int    `mapstructure:"log_max_backups" yaml:"log_max_backups"`
}

// WriteDefault marshals Default() to path as YAML, for a caller to edit into
// a real config file (h264encd's equivalent of the teacher's enroll-then-
// SaveTo flow, minus any server round-trip since this driver persists no
// enrollment state of its own).
func WriteDefault(path string) error {
	data, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("config: marshal default: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: create directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// Default returns the configuration h264encd runs with when no file or env
// var overrides a field.
func Default() *Config {
	return &Config{
		Profile:         "main",
		Level:           31,
		Width:           1280,
		Height:          720,
		FrameRate:       30,
		IntraIDRPeriod:  300,
		IntraPeriod:     300,
		IPPeriod:        1,
		RateControl:     "cbr",
		MinQP:           10,
		MaxQP:           51,
		MaxSliceLen:     1400,
		MaxL0References: 1,
		MaxL1References: 1,
		LogLevel:        "info",
		LogFormat:       "text",
		LogMaxSizeMB:    50,
		LogMaxBackups:   3,
	}
}

// Load reads cfgFile (or the default search path/name if empty), overlays
// environment variables prefixed H264ENCD_, and returns the result. When
// cfgFile is empty and no file is found on the search path, Default()'s
// values apply; an explicitly named cfgFile that cannot be read is an error.
func Load(cfgFile string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("h264encd")
		v.SetConfigType("yaml")
		v.AddConfigPath(configDir())
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("H264ENCD")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: read %s: %w", cfgFile, err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	result := cfg.ValidateTiered()
	for _, w := range result.Warnings {
		log.Warn("config validation", "error", w)
	}
	if result.HasFatals() {
		return nil, fmt.Errorf("config: %v", result.Fatals[0])
	}

	return cfg, nil
}

// EncoderConfig translates the loaded Config into the backend-agnostic
// encoder.EncoderConfig a Driver is constructed with.
func (c *Config) EncoderConfig() (encoder.EncoderConfig, error) {
	pattern, err := encoder.NewFramePattern(c.IntraIDRPeriod, c.IntraPeriod, c.IPPeriod)
	if err != nil {
		return encoder.EncoderConfig{}, err
	}

	return encoder.EncoderConfig{
		Profile:         parseProfile(c.Profile),
		Level:           encoder.Level(c.Level),
		Resolution:      encoder.Resolution{Width: c.Width, Height: c.Height},
		FrameRate:       c.FrameRate,
		Pattern:         pattern,
		RateControl:     parseRateControl(c.RateControl),
		MinQP:           c.MinQP,
		MaxQP:           c.MaxQP,
		QualityLevel:    c.QualityLevel,
		MaxSliceLen:     c.MaxSliceLen,
		MaxL0References: c.MaxL0References,
		MaxL1References: c.MaxL1References,
		PreferHardware:  c.PreferHardware,
	}, nil
}

func parseProfile(s string) encoder.Profile {
	switch s {
	case "baseline":
		return encoder.ProfileBaseline
	case "high":
		return encoder.ProfileHigh
	default:
		return encoder.ProfileMain
	}
}

func parseRateControl(s string) encoder.RateControlMode {
	switch s {
	case "vbr":
		return encoder.RateControlVBR
	case "cq", "constant_quality":
		return encoder.RateControlConstantQuality
	case "disabled", "":
		return encoder.RateControlDisabled
	default:
		return encoder.RateControlCBR
	}
}

// GetDataDir returns the platform-specific data directory for h264encd.
// OutputPath is not resolved against it; a relative OutputPath is relative
// to the working directory.
func GetDataDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("ProgramData"), "h264encd", "data")
	case "darwin":
		return "/Library/Application Support/h264encd/data"
	default:
		return "/var/lib/h264encd"
	}
}

func configDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("ProgramData"), "h264encd")
	case "darwin":
		return "/Library/Application Support/h264encd"
	default:
		return "/etc/h264encd"
	}
}
