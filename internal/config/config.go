package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Publish policies for the handoff slot.
const (
	PolicyDrop      = "drop"
	PolicyStall     = "stall"
	PolicyOverwrite = "overwrite"
)

type Config struct {
	Device    string `mapstructure:"device" yaml:"device"`
	Quiet     bool   `mapstructure:"quiet" yaml:"quiet"`
	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`
	LogFile   string `mapstructure:"log_file" yaml:"log_file"`

	Capture  CaptureConfig  `mapstructure:"capture" yaml:"capture"`
	Pipeline PipelineConfig `mapstructure:"pipeline" yaml:"pipeline"`
	Display  DisplayConfig  `mapstructure:"display" yaml:"display"`
	Stats    StatsConfig    `mapstructure:"stats" yaml:"stats"`
}

type CaptureConfig struct {
	BufferCount   int           `mapstructure:"buffer_count" yaml:"buffer_count"`
	DiscardFrames int           `mapstructure:"discard_frames" yaml:"discard_frames"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
}

type PipelineConfig struct {
	PublishPolicy string `mapstructure:"publish_policy" yaml:"publish_policy"`
}

type DisplayConfig struct {
	Title string `mapstructure:"title" yaml:"title"`
	AppID string `mapstructure:"app_id" yaml:"app_id"`
}

type StatsConfig struct {
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
}

func Default() *Config {
	return &Config{
		Device:    "/dev/video0",
		LogLevel:  "info",
		LogFormat: "text",
		Capture: CaptureConfig{
			BufferCount:   4,
			DiscardFrames: 5,
			ReadTimeout:   2 * time.Second,
		},
		Pipeline: PipelineConfig{
			PublishPolicy: PolicyDrop,
		},
		Display: DisplayConfig{
			Title: "wl-camera",
			AppID: "wl-camera",
		},
		Stats: StatsConfig{
			Interval: 5 * time.Second,
		},
	}
}

var envKeyReplacer = strings.NewReplacer(".", "_")

// flagKeys maps command line flags onto config keys.
var flagKeys = map[string]string{
	"device":     "device",
	"quiet":      "quiet",
	"log-level":  "log_level",
	"log-format": "log_format",
	"log-file":   "log_file",
}

// Load reads cfgFile (or wl-camera.yaml from the usual places), applies
// WLCAM_* environment overrides and then any explicitly set flags.
// flags may be nil.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	cfg := Default()
	v := viper.New()
	setDefaults(v, cfg)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("wl-camera")
		v.SetConfigType("yaml")
		v.AddConfigPath(configDir())
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("WLCAM")
	v.SetEnvKeyReplacer(envKeyReplacer)
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil && f.Changed {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, err
				}
			}
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Marshal renders cfg as YAML.
func Marshal(cfg *Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}

// setDefaults registers every key so AutomaticEnv can resolve nested
// values that never appear in a file.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("device", cfg.Device)
	v.SetDefault("quiet", cfg.Quiet)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("log_format", cfg.LogFormat)
	v.SetDefault("log_file", cfg.LogFile)
	v.SetDefault("capture.buffer_count", cfg.Capture.BufferCount)
	v.SetDefault("capture.discard_frames", cfg.Capture.DiscardFrames)
	v.SetDefault("capture.read_timeout", cfg.Capture.ReadTimeout)
	v.SetDefault("pipeline.publish_policy", cfg.Pipeline.PublishPolicy)
	v.SetDefault("display.title", cfg.Display.Title)
	v.SetDefault("display.app_id", cfg.Display.AppID)
	v.SetDefault("stats.interval", cfg.Stats.Interval)
}

func configDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "wl-camera")
	}
	return "/etc/wl-camera"
}
