package timeline

import "rewind/server/internal/delta"

// Config fixes the timeline's behavior for the lifetime of a session.
type Config struct {
	// Capacity is the ring buffer size in frames.
	Capacity int
	// MemoryCeilingBytes triggers governor eviction when the running
	// estimate exceeds it.
	MemoryCeilingBytes int64
	// MinFrameFloor is the frame count the governor never evicts below.
	MinFrameFloor int
	// StepsPerSecond converts between seconds and steps.
	StepsPerSecond int
	// MaxRewindSeconds bounds a single rewind request.
	MaxRewindSeconds int
	// ExcludedTypes lists object kinds the recorder skips.
	ExcludedTypes []delta.ObjectType
	// MaxCellDeltasPerFrame caps cell and record deltas per frame.
	MaxCellDeltasPerFrame int
	// MaxObjectDeltasPerFrame caps lifecycle deltas per frame.
	MaxObjectDeltasPerFrame int
	// PreviewSampleLimit bounds the cell sample in preview summaries.
	PreviewSampleLimit int
}

// DefaultConfig returns the session defaults: a 30 second window at 20
// steps per second under a 50 MiB ceiling, keeping at least 5 seconds of
// history under memory pressure.
func DefaultConfig() Config {
	return Config{
		Capacity:                600,
		MemoryCeilingBytes:      50 << 20,
		MinFrameFloor:           100,
		StepsPerSecond:          20,
		MaxRewindSeconds:        30,
		ExcludedTypes:           []delta.ObjectType{"avatar", "spark", "marker"},
		MaxCellDeltasPerFrame:   10000,
		MaxObjectDeltasPerFrame: 1000,
		PreviewSampleLimit:      64,
	}
}

func (c Config) normalized() Config {
	def := DefaultConfig()
	if c.Capacity <= 0 {
		c.Capacity = def.Capacity
	}
	if c.StepsPerSecond <= 0 {
		c.StepsPerSecond = def.StepsPerSecond
	}
	if c.MaxRewindSeconds <= 0 {
		c.MaxRewindSeconds = def.MaxRewindSeconds
	}
	if c.MinFrameFloor < 0 {
		c.MinFrameFloor = 0
	}
	if c.PreviewSampleLimit < 0 {
		c.PreviewSampleLimit = 0
	}
	return c
}
