// Package timeline owns the rewind state machine. A Controller couples a
// recorder and its ring buffer with an applier over a live store, and
// arbitrates between normal frame production, rewinds and freezes.
package timeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"rewind/server/internal/apply"
	"rewind/server/internal/journal"
	"rewind/server/internal/plan"
	"rewind/server/internal/recorder"
	"rewind/server/internal/telemetry"
	"rewind/server/logging"
	tlog "rewind/server/logging/timeline"
)

// State identifies the controller's current mode.
type State int

const (
	// StateRecording is the normal mode: steps produce frames.
	StateRecording State = iota
	// StateRewinding is held for the duration of a rewind apply.
	StateRewinding
	// StateFrozen stops frame production until Unfreeze.
	StateFrozen
)

func (s State) String() string {
	switch s {
	case StateRecording:
		return "recording"
	case StateRewinding:
		return "rewinding"
	case StateFrozen:
		return "frozen"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var (
	// ErrRewindInProgress rejects re-entrant rewind requests.
	ErrRewindInProgress = errors.New("timeline: rewind already in progress")
	// ErrNoHistory rejects a rewind when no frames are buffered.
	ErrNoHistory = errors.New("timeline: no recorded history")
	// ErrInvalidWindow rejects a non-positive window.
	ErrInvalidWindow = errors.New("timeline: rewind window must be positive")
	// ErrWindowTooLarge rejects a window beyond the configured maximum.
	ErrWindowTooLarge = errors.New("timeline: rewind window exceeds maximum")
	// ErrApplyFault reports a rewind whose apply pass faulted mid-way.
	ErrApplyFault = errors.New("timeline: rewind apply faulted")
	// ErrClosed rejects operations after Shutdown.
	ErrClosed = errors.New("timeline: controller closed")
)

// Deps carries the controller's environment hooks. Zero values are safe:
// a nil publisher drops events and a nil metrics sink counts nothing.
type Deps struct {
	Publisher logging.Publisher
	Metrics   telemetry.Metrics
	Clock     logging.Clock
}

// RewindResult reports the outcome of a rewind request.
type RewindResult struct {
	Success         bool     `json:"success"`
	StepsRewound    int      `json:"stepsRewound"`
	CellsRestored   int      `json:"cellsRestored"`
	RecordsRestored int      `json:"recordsRestored"`
	ObjectsRestored int      `json:"objectsRestored"`
	ObjectsRemoved  int      `json:"objectsRemoved"`
	Warnings        []string `json:"warnings,omitempty"`
}

// Status is a point-in-time snapshot of the controller.
type Status struct {
	State              string  `json:"state"`
	Recording          bool    `json:"recording"`
	Paused             bool    `json:"paused"`
	FrameCount         int     `json:"frameCount"`
	Capacity           int     `json:"capacity"`
	MemoryBytes        int64   `json:"memoryBytes"`
	MemoryCeilingBytes int64   `json:"memoryCeilingBytes"`
	OldestStep         uint64  `json:"oldestStep"`
	CurrentStep        uint64  `json:"currentStep"`
	AvailableSeconds   float64 `json:"availableSeconds"`
	StagedRemovals     int     `json:"stagedRemovals"`
}

// Controller serializes all timeline transitions behind one mutex. Store
// mutations reach the recorder without taking this lock, so recording stays
// cheap; the recorder's suspended gate is the only coupling point.
type Controller struct {
	mu      sync.Mutex
	cfg     Config
	deps    Deps
	buffer  *journal.Buffer
	rec     *recorder.Recorder
	applier *apply.Applier

	state    State
	paused   bool
	closed   bool
	lastStep uint64
}

// New builds a controller over the given live store.
func New(cfg Config, store apply.Store, deps Deps) *Controller {
	cfg = cfg.normalized()
	if deps.Metrics == nil {
		deps.Metrics = telemetry.NopMetrics()
	}
	if deps.Clock == nil {
		deps.Clock = logging.SystemClock{}
	}
	buffer := journal.NewBuffer(cfg.Capacity, cfg.MemoryCeilingBytes, cfg.MinFrameFloor)
	rec := recorder.New(buffer, recorder.Config{
		ExcludedTypes: cfg.ExcludedTypes,
		Limits: journal.FrameLimits{
			MaxCellDeltas:   cfg.MaxCellDeltasPerFrame,
			MaxObjectDeltas: cfg.MaxObjectDeltasPerFrame,
		},
	}, deps.Clock, deps.Metrics)
	return &Controller{
		cfg:     cfg,
		deps:    deps,
		buffer:  buffer,
		rec:     rec,
		applier: apply.New(store),
	}
}

// Recorder exposes the recorder so the live store can deliver change
// notifications to it.
func (c *Controller) Recorder() *recorder.Recorder {
	return c.rec
}

// Config returns the active configuration.
func (c *Controller) Config() Config {
	return c.cfg
}

// refreshGateLocked keeps the recorder's suspended flag in sync with the
// controller state. Mutations occurring while suspended are dropped, which
// is what prevents the applier's own writes from being re-recorded.
func (c *Controller) refreshGateLocked() {
	c.rec.SetSuspended(c.state != StateRecording || c.paused || c.closed)
}

func (c *Controller) recordingLocked() bool {
	return c.state == StateRecording && !c.paused && !c.closed
}

// BeginStep opens the frame for the given step. It is a no-op while the
// timeline is paused, frozen or rewinding.
func (c *Controller) BeginStep(ctx context.Context, step uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.recordingLocked() {
		return
	}
	c.lastStep = step
	c.logEvictionsLocked(ctx, c.rec.BeginStep(step))
}

// EndStep seals and commits the open frame and runs the memory governor.
func (c *Controller) EndStep(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.recordingLocked() {
		return
	}
	c.logEvictionsLocked(ctx, c.rec.EndStep())
	if frames := c.buffer.Frames(1); len(frames) == 1 && frames[0].Step() == c.lastStep {
		tlog.FrameCommitted(ctx, c.deps.Publisher, c.lastStep, tlog.FrameCommittedPayload{
			DeltaCount:  frames[0].DeltaCount(),
			MemoryBytes: frames[0].MemoryBytes(),
		})
	}
}

func (c *Controller) logEvictionsLocked(ctx context.Context, evictions []journal.Eviction) {
	for _, ev := range evictions {
		tlog.FrameEvicted(ctx, c.deps.Publisher, c.lastStep, tlog.FrameEvictedPayload{
			EvictedStep: ev.Step,
			DeltaCount:  ev.DeltaCount,
			MemoryBytes: ev.MemoryBytes,
			Reason:      string(ev.Reason),
			TotalBytes:  c.buffer.MemoryBytes(),
		})
	}
}

func (c *Controller) windowSteps(seconds int) (int, error) {
	if seconds <= 0 {
		return 0, ErrInvalidWindow
	}
	if seconds > c.cfg.MaxRewindSeconds {
		return 0, ErrWindowTooLarge
	}
	return seconds * c.cfg.StepsPerSecond, nil
}

// Rewind restores the world to its state the given number of seconds ago.
// On success the rewound frames are discarded, so history is not replayable
// twice. A faulted apply leaves the buffer intact and returns ErrApplyFault
// alongside the partial result.
func (c *Controller) Rewind(ctx context.Context, seconds int) (RewindResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return RewindResult{}, ErrClosed
	}
	if c.state == StateRewinding {
		return RewindResult{}, ErrRewindInProgress
	}
	steps, err := c.windowSteps(seconds)
	if err != nil {
		c.failRewindLocked(ctx, err)
		return RewindResult{}, err
	}

	// The partially recorded step belongs to the window, so commit the
	// open frame before snapshotting.
	c.logEvictionsLocked(ctx, c.rec.CommitOpen())
	frames := c.buffer.Frames(steps)
	if len(frames) == 0 {
		c.failRewindLocked(ctx, ErrNoHistory)
		return RewindResult{}, ErrNoHistory
	}

	prev := c.state
	c.state = StateRewinding
	c.refreshGateLocked()
	defer func() {
		c.state = prev
		c.rec.ClearStaged()
		c.refreshGateLocked()
	}()

	tlog.RewindStarted(ctx, c.deps.Publisher, c.lastStep, tlog.RewindStartedPayload{
		RequestedSteps: steps,
		FramesFolded:   len(frames),
	})

	folded := plan.Fold(frames)
	res := c.applyGuarded(folded)
	result := RewindResult{
		Success:         res.Success,
		StepsRewound:    len(frames),
		CellsRestored:   res.CellsRestored,
		RecordsRestored: res.RecordsRestored,
		ObjectsRestored: res.ObjectsRestored,
		ObjectsRemoved:  res.ObjectsRemoved,
		Warnings:        res.Warnings,
	}
	if !res.Success {
		c.failRewindLocked(ctx, ErrApplyFault)
		return result, ErrApplyFault
	}

	c.buffer.DiscardMostRecent(len(frames))
	tlog.RewindCompleted(ctx, c.deps.Publisher, c.lastStep, tlog.RewindCompletedPayload{
		StepsRewound:    result.StepsRewound,
		CellsRestored:   result.CellsRestored,
		RecordsRestored: result.RecordsRestored,
		ObjectsRestored: result.ObjectsRestored,
		ObjectsRemoved:  result.ObjectsRemoved,
		WarningCount:    len(result.Warnings),
	})
	return result, nil
}

func (c *Controller) failRewindLocked(ctx context.Context, err error) {
	tlog.RewindFailed(ctx, c.deps.Publisher, c.lastStep, tlog.RewindFailedPayload{
		Reason: err.Error(),
	})
}

// applyGuarded runs the apply pass with panic containment: a fault in any
// phase downgrades to a failed result instead of unwinding the controller
// with the gate still closed.
func (c *Controller) applyGuarded(p plan.Plan) (res apply.Result) {
	defer func() {
		if r := recover(); r != nil {
			res.Success = false
			res.Warnings = append(res.Warnings, fmt.Sprintf("internal fault: %v", r))
		}
	}()
	res = c.applier.Apply(p)
	return res
}

// BuildPreviewPlan folds the window without mutating the world or the
// buffer. The open frame is not included; previews see committed history
// only.
func (c *Controller) BuildPreviewPlan(seconds int) (plan.Plan, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return plan.Plan{}, ErrClosed
	}
	if c.state == StateRewinding {
		return plan.Plan{}, ErrRewindInProgress
	}
	steps, err := c.windowSteps(seconds)
	if err != nil {
		return plan.Plan{}, err
	}
	frames := c.buffer.Frames(steps)
	if len(frames) == 0 {
		return plan.Plan{}, ErrNoHistory
	}
	return plan.Fold(frames), nil
}

// Preview summarizes the plan a rewind over the window would apply.
func (c *Controller) Preview(seconds int) (plan.Summary, error) {
	p, err := c.BuildPreviewPlan(seconds)
	if err != nil {
		return plan.Summary{}, err
	}
	return p.Summarize(c.cfg.PreviewSampleLimit), nil
}

// Pause stops recording without committing or discarding the open frame.
func (c *Controller) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = true
	c.refreshGateLocked()
}

// Resume re-enables recording after Pause.
func (c *Controller) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = false
	c.refreshGateLocked()
}

// Freeze commits the open frame and stops frame production. History stays
// available for previews and rewinds while frozen.
func (c *Controller) Freeze(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.state != StateRecording {
		return
	}
	c.logEvictionsLocked(ctx, c.rec.CommitOpen())
	c.state = StateFrozen
	c.refreshGateLocked()
	tlog.Frozen(ctx, c.deps.Publisher, c.lastStep)
}

// Unfreeze resumes frame production.
func (c *Controller) Unfreeze(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.state != StateFrozen {
		return
	}
	c.state = StateRecording
	c.refreshGateLocked()
	tlog.Unfrozen(ctx, c.deps.Publisher, c.lastStep)
}

// Clear drops all buffered history, the open frame and staged removals.
func (c *Controller) Clear(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buffer.Clear()
	c.rec.DiscardOpen()
	c.rec.ClearStaged()
	tlog.BufferCleared(ctx, c.deps.Publisher, c.lastStep)
}

// Status reports the controller's current state and buffer occupancy.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	oldest, _ := c.buffer.OldestStep()
	return Status{
		State:              c.state.String(),
		Recording:          c.recordingLocked(),
		Paused:             c.paused,
		FrameCount:         c.buffer.Len(),
		Capacity:           c.buffer.Capacity(),
		MemoryBytes:        c.buffer.MemoryBytes(),
		MemoryCeilingBytes: c.buffer.MemoryCeiling(),
		OldestStep:         oldest,
		CurrentStep:        c.lastStep,
		AvailableSeconds:   float64(c.buffer.Len()) / float64(c.cfg.StepsPerSecond),
		StagedRemovals:     c.rec.StagedCount(),
	}
}

// Shutdown drops history and rejects further operations.
func (c *Controller) Shutdown(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.buffer.Clear()
	c.rec.DiscardOpen()
	c.rec.ClearStaged()
	c.closed = true
	c.refreshGateLocked()
	tlog.BufferCleared(ctx, c.deps.Publisher, c.lastStep)
}
