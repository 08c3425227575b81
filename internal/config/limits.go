package config

import (
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// OperationLimits caps a single PDF operation's input.
type OperationLimits struct {
	MinFiles    int   `mapstructure:"minFiles"`
	MaxFiles    int   `mapstructure:"maxFiles"`
	MaxFileSize int64 `mapstructure:"maxFileSize"`
}

// Limits is the hot-reloadable operational tuning for PDF operations.
type Limits struct {
	WatermarkText string                     `mapstructure:"watermarkText"`
	Operations    map[string]OperationLimits `mapstructure:"operations"`
}

func DefaultLimits() Limits {
	return Limits{
		WatermarkText: "Created with Papermill Free",
		Operations: map[string]OperationLimits{
			"merge":     {MinFiles: 2, MaxFiles: 20, MaxFileSize: 25 << 20},
			"split":     {MinFiles: 1, MaxFiles: 1, MaxFileSize: 50 << 20},
			"compress":  {MinFiles: 1, MaxFiles: 1, MaxFileSize: 100 << 20},
			"watermark": {MinFiles: 1, MaxFiles: 1, MaxFileSize: 50 << 20},
		},
	}
}

// ForOperation returns the configured limits for an operation key, falling
// back to the compiled defaults for unknown keys.
func (l Limits) ForOperation(op string) OperationLimits {
	if limits, ok := l.Operations[strings.ToLower(strings.TrimSpace(op))]; ok {
		return limits
	}
	return OperationLimits{MinFiles: 1, MaxFiles: 1, MaxFileSize: 25 << 20}
}

// LimitsHolder exposes the current limits and follows file changes.
type LimitsHolder struct {
	current atomic.Value // holds Limits
}

func NewLimitsHolder() (*LimitsHolder, error) {
	v := viper.New()

	v.SetConfigName("limits")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/papermill/config")
	v.AddConfigPath("/etc/papermill")
	v.AddConfigPath(".")

	v.SetEnvPrefix("PAPERMILL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	holder := &LimitsHolder{}

	load := func() {
		cfg := DefaultLimits()
		if err := v.UnmarshalKey("limits", &cfg); err != nil {
			log.Printf("config: invalid limits file, keeping previous: %v", err)
			return
		}
		if cfg.WatermarkText == "" {
			cfg.WatermarkText = DefaultLimits().WatermarkText
		}
		holder.current.Store(cfg)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		holder.current.Store(DefaultLimits())
	} else {
		load()
		v.OnConfigChange(func(_ fsnotify.Event) { load() })
		v.WatchConfig()
	}

	if holder.current.Load() == nil {
		holder.current.Store(DefaultLimits())
	}
	return holder, nil
}

func (h *LimitsHolder) Current() Limits {
	if value, ok := h.current.Load().(Limits); ok {
		return value
	}
	return DefaultLimits()
}
