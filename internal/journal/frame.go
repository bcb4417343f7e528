// Package journal stores the rolling history of world mutations as a ring
// of per-step frames. The buffer always holds a contiguous, gap-free tail
// of history; eviction only ever removes the oldest frame.
package journal

import (
	"errors"
	"time"

	"rewind/server/internal/delta"
)

// ErrSealed is returned when a delta is appended to a frame that has
// already been committed. Appending after seal is a contract violation on
// the capture side; callers count it instead of panicking.
var ErrSealed = errors.New("journal: frame is sealed")

// ErrFrameFull is returned when a frame reaches its per-category delta cap.
var ErrFrameFull = errors.New("journal: frame delta cap reached")

// FrameLimits caps how many deltas a single frame may hold per category.
// The caps bound the damage of runaway capture storms (mass mutations in a
// single step) without breaking history contiguity.
type FrameLimits struct {
	MaxCellDeltas   int
	MaxObjectDeltas int
}

// Frame collects every delta captured within one logical step. A frame is
// open while its step runs, sealed exactly once at the step boundary, and
// immutable afterwards.
type Frame struct {
	step       uint64
	capturedAt time.Time
	limits     FrameLimits

	cells       []delta.CellDelta
	aux         []delta.AuxDelta
	appeared    []delta.AppearedDelta
	disappeared []delta.DisappearedDelta
	changed     []delta.ChangedDelta

	sealed      bool
	memoryBytes int
}

// NewFrame opens an empty frame for the given step.
func NewFrame(step uint64, capturedAt time.Time, limits FrameLimits) *Frame {
	return &Frame{step: step, capturedAt: capturedAt, limits: limits}
}

// Step reports the logical step counter the frame was captured for.
func (f *Frame) Step() uint64 { return f.step }

// CapturedAt reports the wall-clock capture time. Diagnostic only; folding
// never consults it.
func (f *Frame) CapturedAt() time.Time { return f.capturedAt }

// Sealed reports whether the frame has been committed.
func (f *Frame) Sealed() bool { return f.sealed }

// Empty reports whether the frame holds no deltas.
func (f *Frame) Empty() bool {
	return len(f.cells) == 0 && len(f.aux) == 0 &&
		len(f.appeared) == 0 && len(f.disappeared) == 0 && len(f.changed) == 0
}

// DeltaCount reports the total number of deltas across all categories.
func (f *Frame) DeltaCount() int {
	return len(f.cells) + len(f.aux) + len(f.appeared) + len(f.disappeared) + len(f.changed)
}

// MemoryBytes reports the frame's running memory estimate.
func (f *Frame) MemoryBytes() int { return f.memoryBytes }

// Seal marks the frame immutable. Sealing twice is a no-op.
func (f *Frame) Seal() { f.sealed = true }

func (f *Frame) cellCapReached() bool {
	return f.limits.MaxCellDeltas > 0 && len(f.cells)+len(f.aux) >= f.limits.MaxCellDeltas
}

func (f *Frame) objectCapReached() bool {
	if f.limits.MaxObjectDeltas <= 0 {
		return false
	}
	return len(f.appeared)+len(f.disappeared)+len(f.changed) >= f.limits.MaxObjectDeltas
}

// AddCellDelta appends a cell change to the frame.
func (f *Frame) AddCellDelta(d delta.CellDelta) error {
	if f.sealed {
		return ErrSealed
	}
	if f.cellCapReached() {
		return ErrFrameFull
	}
	f.cells = append(f.cells, d)
	f.memoryBytes += d.EstimateBytes()
	return nil
}

// AddAuxDelta appends an auxiliary record change to the frame.
func (f *Frame) AddAuxDelta(d delta.AuxDelta) error {
	if f.sealed {
		return ErrSealed
	}
	if f.cellCapReached() {
		return ErrFrameFull
	}
	f.aux = append(f.aux, d)
	f.memoryBytes += d.EstimateBytes()
	return nil
}

// AddAppeared appends an object appearance to the frame.
func (f *Frame) AddAppeared(d delta.AppearedDelta) error {
	if f.sealed {
		return ErrSealed
	}
	if f.objectCapReached() {
		return ErrFrameFull
	}
	f.appeared = append(f.appeared, d)
	f.memoryBytes += d.EstimateBytes()
	return nil
}

// AddDisappeared appends an object removal to the frame.
func (f *Frame) AddDisappeared(d delta.DisappearedDelta) error {
	if f.sealed {
		return ErrSealed
	}
	if f.objectCapReached() {
		return ErrFrameFull
	}
	f.disappeared = append(f.disappeared, d)
	f.memoryBytes += d.EstimateBytes()
	return nil
}

// AddChanged appends an object attribute change to the frame.
func (f *Frame) AddChanged(d delta.ChangedDelta) error {
	if f.sealed {
		return ErrSealed
	}
	if f.objectCapReached() {
		return ErrFrameFull
	}
	f.changed = append(f.changed, d)
	f.memoryBytes += d.EstimateBytes()
	return nil
}

// CellDeltas exposes the captured cell changes in append order. Sealed
// frames are immutable; callers must not modify the returned slice.
func (f *Frame) CellDeltas() []delta.CellDelta { return f.cells }

// AuxDeltas exposes the captured auxiliary record changes in append order.
func (f *Frame) AuxDeltas() []delta.AuxDelta { return f.aux }

// AppearedDeltas exposes the captured object appearances.
func (f *Frame) AppearedDeltas() []delta.AppearedDelta { return f.appeared }

// DisappearedDeltas exposes the captured object removals.
func (f *Frame) DisappearedDeltas() []delta.DisappearedDelta { return f.disappeared }

// ChangedDeltas exposes the captured object attribute changes in append
// order.
func (f *Frame) ChangedDeltas() []delta.ChangedDelta { return f.changed }
