package journal

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"rewind/server/internal/delta"
)

func cellDeltaAt(x int) delta.CellDelta {
	return delta.CellDelta{
		Key: delta.CellKey{Region: "overworld", Pos: delta.PackPos(x, 64, 0)},
		Old: "stone",
		New: "air",
	}
}

func TestFrameAppendAfterSeal(t *testing.T) {
	f := NewFrame(7, time.Now(), FrameLimits{})
	if err := f.AddCellDelta(cellDeltaAt(1)); err != nil {
		t.Fatalf("expected append to open frame to succeed, got %v", err)
	}

	f.Seal()
	if !f.Sealed() {
		t.Fatalf("expected frame to report sealed")
	}

	if err := f.AddCellDelta(cellDeltaAt(2)); !errors.Is(err, ErrSealed) {
		t.Fatalf("expected ErrSealed after seal, got %v", err)
	}
	if err := f.AddAppeared(delta.AppearedDelta{Region: "overworld", ID: uuid.New()}); !errors.Is(err, ErrSealed) {
		t.Fatalf("expected ErrSealed for object delta after seal, got %v", err)
	}
	if got := f.DeltaCount(); got != 1 {
		t.Fatalf("expected rejected appends to leave count at 1, got %d", got)
	}
}

func TestFrameCellCap(t *testing.T) {
	f := NewFrame(1, time.Now(), FrameLimits{MaxCellDeltas: 3})
	for i := 0; i < 3; i++ {
		if err := f.AddCellDelta(cellDeltaAt(i)); err != nil {
			t.Fatalf("expected append %d under cap to succeed, got %v", i, err)
		}
	}
	if err := f.AddCellDelta(cellDeltaAt(99)); !errors.Is(err, ErrFrameFull) {
		t.Fatalf("expected ErrFrameFull at cap, got %v", err)
	}
	// Aux deltas share the cell budget.
	if err := f.AddAuxDelta(delta.AuxDelta{Key: delta.CellKey{Region: "overworld"}, Type: "furnace"}); !errors.Is(err, ErrFrameFull) {
		t.Fatalf("expected aux append to share the cell cap, got %v", err)
	}
}

func TestFrameObjectCapIndependentOfCells(t *testing.T) {
	f := NewFrame(1, time.Now(), FrameLimits{MaxCellDeltas: 1, MaxObjectDeltas: 2})
	if err := f.AddCellDelta(cellDeltaAt(0)); err != nil {
		t.Fatalf("expected cell append to succeed, got %v", err)
	}
	if err := f.AddAppeared(delta.AppearedDelta{Region: "overworld", ID: uuid.New()}); err != nil {
		t.Fatalf("expected first object append to succeed, got %v", err)
	}
	if err := f.AddChanged(delta.ChangedDelta{Region: "overworld", ID: uuid.New()}); err != nil {
		t.Fatalf("expected second object append to succeed, got %v", err)
	}
	if err := f.AddDisappeared(delta.DisappearedDelta{Region: "overworld", ID: uuid.New()}); !errors.Is(err, ErrFrameFull) {
		t.Fatalf("expected object cap across categories, got %v", err)
	}
}

func TestFrameMemoryAccumulates(t *testing.T) {
	f := NewFrame(1, time.Now(), FrameLimits{})
	if got := f.MemoryBytes(); got != 0 {
		t.Fatalf("expected empty frame to cost 0 bytes, got %d", got)
	}

	before := f.MemoryBytes()
	if err := f.AddCellDelta(cellDeltaAt(0)); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	afterCell := f.MemoryBytes()
	if afterCell <= before {
		t.Fatalf("expected memory estimate to grow after cell append: %d -> %d", before, afterCell)
	}

	withRecord := cellDeltaAt(1)
	withRecord.OldRecord = &delta.Record{Type: "container", Fields: map[string]string{"slots": "27"}}
	if err := f.AddCellDelta(withRecord); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if f.MemoryBytes()-afterCell <= afterCell-before {
		t.Fatalf("expected delta with record snapshot to cost more than bare delta")
	}
}

func TestFrameEmpty(t *testing.T) {
	f := NewFrame(1, time.Now(), FrameLimits{})
	if !f.Empty() {
		t.Fatalf("expected new frame to be empty")
	}
	if err := f.AddChanged(delta.ChangedDelta{Region: "overworld", ID: uuid.New()}); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if f.Empty() {
		t.Fatalf("expected frame with a delta to be non-empty")
	}
}
