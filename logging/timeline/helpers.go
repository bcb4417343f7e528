// Package timeline declares the structured events emitted by the rewind
// timeline: frame lifecycle, governor evictions and rewind outcomes.
package timeline

import (
	"context"

	"rewind/server/logging"
)

const (
	// EventFrameCommitted is emitted when a sealed frame enters the ring.
	EventFrameCommitted logging.EventType = "timeline.frame_committed"
	// EventFrameEvicted is emitted when a frame leaves the ring early.
	EventFrameEvicted logging.EventType = "timeline.frame_evicted"
	// EventRewindStarted is emitted when a rewind begins folding frames.
	EventRewindStarted logging.EventType = "timeline.rewind_started"
	// EventRewindCompleted is emitted after a successful apply.
	EventRewindCompleted logging.EventType = "timeline.rewind_completed"
	// EventRewindFailed is emitted when a rewind is rejected or faults.
	EventRewindFailed logging.EventType = "timeline.rewind_failed"
	// EventBufferCleared is emitted when history is dropped wholesale.
	EventBufferCleared logging.EventType = "timeline.buffer_cleared"
	// EventFrozen is emitted when the timeline stops producing frames.
	EventFrozen logging.EventType = "timeline.frozen"
	// EventUnfrozen is emitted when frame production resumes.
	EventUnfrozen logging.EventType = "timeline.unfrozen"
)

// FrameCommittedPayload captures the size of a committed frame.
type FrameCommittedPayload struct {
	DeltaCount  int `json:"deltaCount"`
	MemoryBytes int `json:"memoryBytes"`
}

// FrameEvictedPayload captures an eviction and its trigger.
type FrameEvictedPayload struct {
	EvictedStep uint64 `json:"evictedStep"`
	DeltaCount  int    `json:"deltaCount"`
	MemoryBytes int    `json:"memoryBytes"`
	Reason      string `json:"reason"`
	TotalBytes  int64  `json:"totalBytes"`
}

// RewindStartedPayload captures the requested window.
type RewindStartedPayload struct {
	RequestedSteps int `json:"requestedSteps"`
	FramesFolded   int `json:"framesFolded"`
}

// RewindCompletedPayload summarises a finished rewind.
type RewindCompletedPayload struct {
	StepsRewound    int `json:"stepsRewound"`
	CellsRestored   int `json:"cellsRestored"`
	RecordsRestored int `json:"recordsRestored"`
	ObjectsRestored int `json:"objectsRestored"`
	ObjectsRemoved  int `json:"objectsRemoved"`
	WarningCount    int `json:"warningCount"`
}

// RewindFailedPayload captures why a rewind did not complete.
type RewindFailedPayload struct {
	Reason string `json:"reason"`
}

// FrameCommitted publishes a frame commit event.
func FrameCommitted(ctx context.Context, pub logging.Publisher, step uint64, payload FrameCommittedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventFrameCommitted,
		Step:     step,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryTimeline,
		Payload:  payload,
	})
}

// FrameEvicted publishes an eviction event. Memory-pressure evictions are
// warnings; capacity rollover is routine and logged at debug.
func FrameEvicted(ctx context.Context, pub logging.Publisher, step uint64, payload FrameEvictedPayload) {
	if pub == nil {
		return
	}
	severity := logging.SeverityDebug
	if payload.Reason == "memory" {
		severity = logging.SeverityWarn
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventFrameEvicted,
		Step:     step,
		Severity: severity,
		Category: logging.CategoryTimeline,
		Payload:  payload,
	})
}

// RewindStarted publishes the start of a rewind.
func RewindStarted(ctx context.Context, pub logging.Publisher, step uint64, payload RewindStartedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventRewindStarted,
		Step:     step,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryTimeline,
		Payload:  payload,
	})
}

// RewindCompleted publishes a successful rewind summary.
func RewindCompleted(ctx context.Context, pub logging.Publisher, step uint64, payload RewindCompletedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventRewindCompleted,
		Step:     step,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryTimeline,
		Payload:  payload,
	})
}

// RewindFailed publishes a failed or rejected rewind.
func RewindFailed(ctx context.Context, pub logging.Publisher, step uint64, payload RewindFailedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventRewindFailed,
		Step:     step,
		Severity: logging.SeverityError,
		Category: logging.CategoryTimeline,
		Payload:  payload,
	})
}

// BufferCleared publishes a wholesale history drop.
func BufferCleared(ctx context.Context, pub logging.Publisher, step uint64) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventBufferCleared,
		Step:     step,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryTimeline,
	})
}

// Frozen publishes a freeze transition.
func Frozen(ctx context.Context, pub logging.Publisher, step uint64) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventFrozen,
		Step:     step,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryTimeline,
	})
}

// Unfrozen publishes an unfreeze transition.
func Unfrozen(ctx context.Context, pub logging.Publisher, step uint64) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventUnfrozen,
		Step:     step,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryTimeline,
	})
}
