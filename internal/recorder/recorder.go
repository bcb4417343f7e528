// Package recorder is the write side of the timeline: host interception
// points call it with before/after values and it appends deltas to the
// frame currently open for the running step.
package recorder

import (
	"sync"
	"sync/atomic"

	"rewind/server/internal/delta"
	"rewind/server/internal/journal"
	"rewind/server/internal/telemetry"
	"rewind/server/logging"
)

// Counter keys reported through telemetry.Metrics.
const (
	MetricAppendSealed   = "recorder_append_sealed"
	MetricFrameCap       = "recorder_frame_cap"
	MetricStagedRemovals = "recorder_staged_removals"
	MetricExcludedSkips  = "recorder_excluded_skips"
)

// Config tunes the recorder.
type Config struct {
	// ExcludedTypes lists object kinds never recorded: externally
	// controlled, transient, or purely technical objects.
	ExcludedTypes []delta.ObjectType
	// Limits caps per-frame delta counts.
	Limits journal.FrameLimits
}

// Recorder owns the open frame and the commit path into the ring buffer.
// All methods except StageDisappeared must run on the scheduling thread.
type Recorder struct {
	buffer   *journal.Buffer
	limits   journal.FrameLimits
	excluded map[delta.ObjectType]struct{}
	clock    logging.Clock
	metrics  telemetry.Metrics

	open     *journal.Frame
	lastStep uint64

	// suspended gates every entry point while the controller is
	// rewinding, frozen or paused. Atomic because StageDisappeared may
	// run on another goroutine.
	suspended atomic.Bool

	stagedMu sync.Mutex
	staged   map[delta.ObjectID]stagedRemoval
}

type stagedRemoval struct {
	region delta.RegionID
	typ    delta.ObjectType
	attrs  delta.Attributes
}

// New constructs a recorder writing into the provided buffer.
func New(buffer *journal.Buffer, cfg Config, clock logging.Clock, metrics telemetry.Metrics) *Recorder {
	if clock == nil {
		clock = logging.SystemClock{}
	}
	if metrics == nil {
		metrics = telemetry.NopMetrics()
	}
	excluded := make(map[delta.ObjectType]struct{}, len(cfg.ExcludedTypes))
	for _, t := range cfg.ExcludedTypes {
		excluded[t] = struct{}{}
	}
	return &Recorder{
		buffer:   buffer,
		limits:   cfg.Limits,
		excluded: excluded,
		clock:    clock,
		metrics:  metrics,
		staged:   make(map[delta.ObjectID]stagedRemoval),
	}
}

// SetSuspended gates or ungates every recording entry point.
func (r *Recorder) SetSuspended(suspended bool) {
	r.suspended.Store(suspended)
}

// Suspended reports whether recording entry points are currently gated.
func (r *Recorder) Suspended() bool {
	return r.suspended.Load()
}

// BeginStep opens a frame for the given step. A pending non-empty frame
// (an emergency frame opened by a pre-step mutation) is sealed and
// committed first, which is how emergency frames merge into regular step
// boundaries. Returns any capacity eviction caused by the commit.
func (r *Recorder) BeginStep(step uint64) []journal.Eviction {
	if r.suspended.Load() {
		return nil
	}
	var evictions []journal.Eviction
	if r.open != nil && !r.open.Sealed() && !r.open.Empty() {
		if ev, ok := r.buffer.Commit(r.open); ok {
			evictions = append(evictions, ev)
		}
	}
	r.open = journal.NewFrame(step, r.clock.Now(), r.limits)
	r.lastStep = step
	return evictions
}

// EndStep drains staged removals into the open frame, seals and commits
// it, then runs the memory governor. Returns every eviction that occurred.
func (r *Recorder) EndStep() []journal.Eviction {
	if r.suspended.Load() {
		return nil
	}
	r.drainStaged()

	var evictions []journal.Eviction
	if r.open != nil && !r.open.Sealed() {
		if ev, ok := r.buffer.Commit(r.open); ok {
			evictions = append(evictions, ev)
		}
		r.open = nil
	}
	evictions = append(evictions, r.buffer.EnforceCeiling()...)
	return evictions
}

// CommitOpen seals and commits a pending non-empty frame immediately,
// discarding it if empty. Used by freeze so no open frame outlives the
// transition.
func (r *Recorder) CommitOpen() []journal.Eviction {
	var evictions []journal.Eviction
	if r.open != nil && !r.open.Sealed() && !r.open.Empty() {
		if ev, ok := r.buffer.Commit(r.open); ok {
			evictions = append(evictions, ev)
		}
	}
	r.open = nil
	return evictions
}

// DiscardOpen drops the open frame without committing it.
func (r *Recorder) DiscardOpen() {
	r.open = nil
}

// OpenFrame exposes the frame currently accepting deltas, or nil.
func (r *Recorder) OpenFrame() *journal.Frame {
	return r.open
}

// ensureOpen opens an emergency frame when a mutation arrives before the
// step formally begins. It inherits the next step counter; BeginStep
// commits it at the following boundary.
func (r *Recorder) ensureOpen() *journal.Frame {
	if r.open == nil || r.open.Sealed() {
		r.open = journal.NewFrame(r.lastStep+1, r.clock.Now(), r.limits)
	}
	return r.open
}

func (r *Recorder) countAppendError(err error) {
	switch err {
	case nil:
	case journal.ErrSealed:
		r.metrics.Add(MetricAppendSealed, 1)
	case journal.ErrFrameFull:
		r.metrics.Add(MetricFrameCap, 1)
	}
}

// RecordCellChange captures a change to what occupies a cell. No-op when
// old and new are identical, or while recording is gated.
func (r *Recorder) RecordCellChange(region delta.RegionID, pos delta.PackedPos, old, new delta.StateID, oldRec, newRec *delta.Record) {
	if r.suspended.Load() {
		return
	}
	if old == new {
		return
	}
	frame := r.ensureOpen()
	err := frame.AddCellDelta(delta.CellDelta{
		Key:       delta.CellKey{Region: region, Pos: pos},
		Old:       old,
		New:       new,
		OldRecord: oldRec.Clone(),
		NewRecord: newRec.Clone(),
	})
	r.countAppendError(err)
}

// RecordAuxChange captures an in-place auxiliary record change. Both
// snapshots must be present; equal snapshots are suppressed.
func (r *Recorder) RecordAuxChange(region delta.RegionID, pos delta.PackedPos, typ delta.RecordType, old, new *delta.Record) {
	if r.suspended.Load() {
		return
	}
	if old == nil || new == nil || old.Equal(new) {
		return
	}
	frame := r.ensureOpen()
	err := frame.AddAuxDelta(delta.AuxDelta{
		Key:  delta.CellKey{Region: region, Pos: pos},
		Type: typ,
		Old:  old.Clone(),
		New:  new.Clone(),
	})
	r.countAppendError(err)
}

func (r *Recorder) excludedType(typ delta.ObjectType) bool {
	if _, skip := r.excluded[typ]; skip {
		r.metrics.Add(MetricExcludedSkips, 1)
		return true
	}
	return false
}

// RecordAppeared captures an object coming into existence this step.
func (r *Recorder) RecordAppeared(region delta.RegionID, id delta.ObjectID, typ delta.ObjectType, attrs delta.Attributes) {
	if r.suspended.Load() || r.excludedType(typ) {
		return
	}
	frame := r.ensureOpen()
	err := frame.AddAppeared(delta.AppearedDelta{Region: region, ID: id, Type: typ, Attrs: attrs})
	r.countAppendError(err)
}

// RecordDisappeared captures an object removal observed on the scheduling
// thread.
func (r *Recorder) RecordDisappeared(region delta.RegionID, id delta.ObjectID, typ delta.ObjectType, attrs delta.Attributes) {
	if r.suspended.Load() || r.excludedType(typ) {
		return
	}
	frame := r.ensureOpen()
	err := frame.AddDisappeared(delta.DisappearedDelta{Region: region, ID: id, Type: typ, Attrs: attrs})
	r.countAppendError(err)
}

// StageDisappeared buffers an object removal reported from outside the
// scheduling thread (asynchronous unload callbacks). Staged removals merge
// into the open frame at the next EndStep. Safe for concurrent use.
func (r *Recorder) StageDisappeared(region delta.RegionID, id delta.ObjectID, typ delta.ObjectType, attrs delta.Attributes) {
	if r.suspended.Load() || r.excludedType(typ) {
		return
	}
	r.stagedMu.Lock()
	r.staged[id] = stagedRemoval{region: region, typ: typ, attrs: attrs}
	r.stagedMu.Unlock()
	r.metrics.Add(MetricStagedRemovals, 1)
}

// RecordChanged captures an in-place attribute change on an object.
func (r *Recorder) RecordChanged(region delta.RegionID, id delta.ObjectID, old, new delta.Attributes) {
	if r.suspended.Load() {
		return
	}
	if old == new {
		return
	}
	frame := r.ensureOpen()
	err := frame.AddChanged(delta.ChangedDelta{Region: region, ID: id, Old: old, New: new})
	r.countAppendError(err)
}

// drainStaged merges staged removals into the open frame on the scheduling
// thread, opening an emergency frame if needed.
func (r *Recorder) drainStaged() {
	r.stagedMu.Lock()
	if len(r.staged) == 0 {
		r.stagedMu.Unlock()
		return
	}
	staged := r.staged
	r.staged = make(map[delta.ObjectID]stagedRemoval)
	r.stagedMu.Unlock()

	frame := r.ensureOpen()
	for id, removal := range staged {
		err := frame.AddDisappeared(delta.DisappearedDelta{
			Region: removal.region,
			ID:     id,
			Type:   removal.typ,
			Attrs:  removal.attrs,
		})
		r.countAppendError(err)
	}
}

// ClearStaged drops any staged removals. Called after a rewind or clear,
// when the staged entries describe history that no longer exists.
func (r *Recorder) ClearStaged() {
	r.stagedMu.Lock()
	r.staged = make(map[delta.ObjectID]stagedRemoval)
	r.stagedMu.Unlock()
}

// StagedCount reports how many removals are waiting for the next EndStep.
func (r *Recorder) StagedCount() int {
	r.stagedMu.Lock()
	defer r.stagedMu.Unlock()
	return len(r.staged)
}
