package app

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"rewind/server/internal/delta"
	"rewind/server/internal/observability"
	"rewind/server/internal/timeline"
	"rewind/server/logging"
)

// Config is the server's file-level configuration. Zero values fall back
// to the timeline and logging defaults.
type Config struct {
	Addr string `yaml:"addr"`

	Timeline      TimelineConfig       `yaml:"timeline"`
	World         WorldConfig          `yaml:"world"`
	Logging       LoggingConfig        `yaml:"logging"`
	Observability observability.Config `yaml:"observability"`

	// StatusBroadcastSteps is how often (in steps) the hub pushes status
	// to WebSocket observers. Zero disables the push feed.
	StatusBroadcastSteps int `yaml:"status_broadcast_steps"`
}

type TimelineConfig struct {
	Capacity                int      `yaml:"capacity"`
	MemoryCeilingMiB        int64    `yaml:"memory_ceiling_mib"`
	MinFrameFloor           int      `yaml:"min_frame_floor"`
	StepsPerSecond          int      `yaml:"steps_per_second"`
	MaxRewindSeconds        int      `yaml:"max_rewind_seconds"`
	ExcludedTypes           []string `yaml:"excluded_types"`
	MaxCellDeltasPerFrame   int      `yaml:"max_cell_deltas_per_frame"`
	MaxObjectDeltasPerFrame int      `yaml:"max_object_deltas_per_frame"`
	PreviewSampleLimit      int      `yaml:"preview_sample_limit"`
}

type WorldConfig struct {
	DefaultState string   `yaml:"default_state"`
	Regions      []string `yaml:"regions"`
}

type LoggingConfig struct {
	MinSeverity string `yaml:"min_severity"`
	JSONPath    string `yaml:"json_path"`
}

// DefaultAppConfig returns the configuration used when no file is given.
func DefaultAppConfig() Config {
	return Config{
		Addr:                 ":8080",
		StatusBroadcastSteps: 20,
		World: WorldConfig{
			DefaultState: "void",
			Regions:      []string{"world"},
		},
	}
}

// LoadConfig reads a YAML config file, layering it over the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultAppConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// timelineConfig converts the file-level section into the controller's
// config, leaving zero fields to its defaults.
func (c Config) timelineConfig() timeline.Config {
	def := timeline.DefaultConfig()
	tc := def
	if c.Timeline.Capacity > 0 {
		tc.Capacity = c.Timeline.Capacity
	}
	if c.Timeline.MemoryCeilingMiB > 0 {
		tc.MemoryCeilingBytes = c.Timeline.MemoryCeilingMiB << 20
	}
	if c.Timeline.MinFrameFloor > 0 {
		tc.MinFrameFloor = c.Timeline.MinFrameFloor
	}
	if c.Timeline.StepsPerSecond > 0 {
		tc.StepsPerSecond = c.Timeline.StepsPerSecond
	}
	if c.Timeline.MaxRewindSeconds > 0 {
		tc.MaxRewindSeconds = c.Timeline.MaxRewindSeconds
	}
	if len(c.Timeline.ExcludedTypes) > 0 {
		excluded := make([]delta.ObjectType, 0, len(c.Timeline.ExcludedTypes))
		for _, typ := range c.Timeline.ExcludedTypes {
			excluded = append(excluded, delta.ObjectType(typ))
		}
		tc.ExcludedTypes = excluded
	}
	if c.Timeline.MaxCellDeltasPerFrame > 0 {
		tc.MaxCellDeltasPerFrame = c.Timeline.MaxCellDeltasPerFrame
	}
	if c.Timeline.MaxObjectDeltasPerFrame > 0 {
		tc.MaxObjectDeltasPerFrame = c.Timeline.MaxObjectDeltasPerFrame
	}
	if c.Timeline.PreviewSampleLimit > 0 {
		tc.PreviewSampleLimit = c.Timeline.PreviewSampleLimit
	}
	return tc
}

func (c Config) minSeverity() logging.Severity {
	switch c.Logging.MinSeverity {
	case "debug":
		return logging.SeverityDebug
	case "info", "":
		return logging.SeverityInfo
	case "warn":
		return logging.SeverityWarn
	case "error":
		return logging.SeverityError
	default:
		return logging.SeverityInfo
	}
}
