package plan

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"rewind/server/internal/delta"
	"rewind/server/internal/journal"
)

func cellKey(x, y, z int) delta.CellKey {
	return delta.CellKey{Region: "overworld", Pos: delta.PackPos(x, y, z)}
}

// buildFrames commits the given builders as consecutive steps and returns
// the frames newest first, the order Fold expects.
func buildFrames(t *testing.T, builders ...func(*journal.Frame)) []*journal.Frame {
	t.Helper()
	frames := make([]*journal.Frame, 0, len(builders))
	for i, build := range builders {
		f := journal.NewFrame(uint64(i+1), time.Now(), journal.FrameLimits{})
		build(f)
		f.Seal()
		frames = append(frames, f)
	}
	// Reverse to newest first.
	for i, j := 0, len(frames)-1; i < j; i, j = i+1, j-1 {
		frames[i], frames[j] = frames[j], frames[i]
	}
	return frames
}

func mustAddCell(t *testing.T, f *journal.Frame, d delta.CellDelta) {
	t.Helper()
	if err := f.AddCellDelta(d); err != nil {
		t.Fatalf("add cell delta: %v", err)
	}
}

func TestFoldOldestWins(t *testing.T) {
	key := cellKey(0, 64, 0)
	frames := buildFrames(t,
		func(f *journal.Frame) { // oldest: stone -> dirt
			mustAddCell(t, f, delta.CellDelta{Key: key, Old: "stone", New: "dirt"})
		},
		func(f *journal.Frame) { // dirt -> gravel
			mustAddCell(t, f, delta.CellDelta{Key: key, Old: "dirt", New: "gravel"})
		},
		func(f *journal.Frame) { // newest: gravel -> air
			mustAddCell(t, f, delta.CellDelta{Key: key, Old: "gravel", New: "air"})
		},
	)

	p := Fold(frames)
	if got := p.CellTargets[key]; got != "stone" {
		t.Fatalf("expected oldest old-state %q to win, got %q", "stone", got)
	}
	if p.FrameCount != 3 {
		t.Fatalf("expected FrameCount 3, got %d", p.FrameCount)
	}
}

func TestFoldAttachedRecordFollowsOldestCellDelta(t *testing.T) {
	key := cellKey(1, 64, 1)
	contents := &delta.Record{Type: "container", Fields: map[string]string{"slots": "27"}}
	frames := buildFrames(t,
		func(f *journal.Frame) { // oldest: stone -> chest, no prior record
			mustAddCell(t, f, delta.CellDelta{Key: key, Old: "stone", New: "chest"})
		},
		func(f *journal.Frame) { // newest: chest -> air, chest had contents
			mustAddCell(t, f, delta.CellDelta{Key: key, Old: "chest", New: "air", OldRecord: contents})
		},
	)

	p := Fold(frames)
	if got := p.CellTargets[key]; got != "stone" {
		t.Fatalf("expected cell target %q, got %q", "stone", got)
	}
	if rec, ok := p.AttachedRecords[key]; ok {
		t.Fatalf("expected no attached record when the oldest delta had none, got %+v", rec)
	}
}

func TestFoldAttachedRecordCloned(t *testing.T) {
	key := cellKey(2, 64, 2)
	contents := &delta.Record{Type: "container", Fields: map[string]string{"slots": "27"}}
	frames := buildFrames(t, func(f *journal.Frame) {
		mustAddCell(t, f, delta.CellDelta{Key: key, Old: "chest", New: "air", OldRecord: contents})
	})

	p := Fold(frames)
	contents.Fields["slots"] = "0"
	if got := p.AttachedRecords[key].Fields["slots"]; got != "27" {
		t.Fatalf("expected folded record independent of the source, got %q", got)
	}
}

func TestFoldStandaloneRecordsOldestWins(t *testing.T) {
	key := cellKey(3, 64, 3)
	frames := buildFrames(t,
		func(f *journal.Frame) { // oldest: progress 1 -> 2
			if err := f.AddAuxDelta(delta.AuxDelta{
				Key: key, Type: "furnace",
				Old: &delta.Record{Type: "furnace", Fields: map[string]string{"progress": "1"}},
				New: &delta.Record{Type: "furnace", Fields: map[string]string{"progress": "2"}},
			}); err != nil {
				t.Fatalf("add aux delta: %v", err)
			}
		},
		func(f *journal.Frame) { // newest: progress 2 -> 3
			if err := f.AddAuxDelta(delta.AuxDelta{
				Key: key, Type: "furnace",
				Old: &delta.Record{Type: "furnace", Fields: map[string]string{"progress": "2"}},
				New: &delta.Record{Type: "furnace", Fields: map[string]string{"progress": "3"}},
			}); err != nil {
				t.Fatalf("add aux delta: %v", err)
			}
		},
	)

	p := Fold(frames)
	rec, ok := p.StandaloneRecords[key]
	if !ok {
		t.Fatalf("expected standalone record target for key")
	}
	if got := rec.Fields["progress"]; got != "1" {
		t.Fatalf("expected oldest record snapshot to win, got progress %q", got)
	}
}

func TestFoldAttachedRecordShadowsStandalone(t *testing.T) {
	key := cellKey(4, 64, 4)
	frames := buildFrames(t,
		func(f *journal.Frame) { // oldest: cell change carries the record snapshot
			mustAddCell(t, f, delta.CellDelta{
				Key: key, Old: "chest", New: "air",
				OldRecord: &delta.Record{Type: "container", Fields: map[string]string{"slots": "27"}},
			})
		},
		func(f *journal.Frame) { // newest: later in-place record change
			if err := f.AddAuxDelta(delta.AuxDelta{
				Key: key, Type: "container",
				Old: &delta.Record{Type: "container", Fields: map[string]string{"slots": "3"}},
				New: &delta.Record{Type: "container", Fields: map[string]string{"slots": "5"}},
			}); err != nil {
				t.Fatalf("add aux delta: %v", err)
			}
		},
	)

	p := Fold(frames)
	if _, ok := p.StandaloneRecords[key]; ok {
		t.Fatalf("expected standalone target dropped when an attached snapshot exists")
	}
	if got := p.AttachedRecords[key].Fields["slots"]; got != "27" {
		t.Fatalf("expected attached snapshot to win, got slots %q", got)
	}
}

func TestFoldTransientObjectCancels(t *testing.T) {
	id := uuid.New()
	frames := buildFrames(t,
		func(f *journal.Frame) { // oldest: appears
			if err := f.AddAppeared(delta.AppearedDelta{Region: "overworld", ID: id, Type: "creature"}); err != nil {
				t.Fatalf("add appeared: %v", err)
			}
		},
		func(f *journal.Frame) { // newest: disappears
			if err := f.AddDisappeared(delta.DisappearedDelta{Region: "overworld", ID: id, Type: "creature"}); err != nil {
				t.Fatalf("add disappeared: %v", err)
			}
		},
	)

	p := Fold(frames)
	if _, ok := p.Removals[id]; !ok {
		t.Fatalf("expected appeared object in the remove set")
	}
	if _, ok := p.Respawns[id]; ok {
		t.Fatalf("expected no respawn for a transient object")
	}
}

func TestFoldRemovalShadowsAttrTarget(t *testing.T) {
	id := uuid.New()
	frames := buildFrames(t,
		func(f *journal.Frame) { // oldest: appears
			if err := f.AddAppeared(delta.AppearedDelta{Region: "overworld", ID: id, Type: "creature"}); err != nil {
				t.Fatalf("add appeared: %v", err)
			}
		},
		func(f *journal.Frame) { // newest: moves
			if err := f.AddChanged(delta.ChangedDelta{
				Region: "overworld", ID: id,
				Old: delta.Attributes{X: 1}, New: delta.Attributes{X: 2},
			}); err != nil {
				t.Fatalf("add changed: %v", err)
			}
		},
	)

	p := Fold(frames)
	if _, ok := p.Removals[id]; !ok {
		t.Fatalf("expected object in the remove set")
	}
	if _, ok := p.AttrTargets[id]; ok {
		t.Fatalf("expected no attribute target for a removed object")
	}
}

func TestFoldRespawnCapturesDisappearSnapshot(t *testing.T) {
	id := uuid.New()
	attrs := delta.Attributes{X: 10, Y: 64, Z: -3, Health: 14}
	frames := buildFrames(t, func(f *journal.Frame) {
		if err := f.AddDisappeared(delta.DisappearedDelta{
			Region: "overworld", ID: id, Type: "creature", Attrs: attrs,
		}); err != nil {
			t.Fatalf("add disappeared: %v", err)
		}
	})

	p := Fold(frames)
	info, ok := p.Respawns[id]
	if !ok {
		t.Fatalf("expected respawn entry for removed object")
	}
	if info.Type != "creature" || info.Attrs != attrs || info.Region != "overworld" {
		t.Fatalf("expected respawn info to carry the removal snapshot, got %+v", info)
	}
}

func TestFoldAttrTargetOldestWins(t *testing.T) {
	id := uuid.New()
	frames := buildFrames(t,
		func(f *journal.Frame) { // oldest
			if err := f.AddChanged(delta.ChangedDelta{
				Region: "overworld", ID: id,
				Old: delta.Attributes{Health: 20}, New: delta.Attributes{Health: 12},
			}); err != nil {
				t.Fatalf("add changed: %v", err)
			}
		},
		func(f *journal.Frame) { // newest
			if err := f.AddChanged(delta.ChangedDelta{
				Region: "overworld", ID: id,
				Old: delta.Attributes{Health: 12}, New: delta.Attributes{Health: 4},
			}); err != nil {
				t.Fatalf("add changed: %v", err)
			}
		},
	)

	p := Fold(frames)
	if got := p.AttrTargets[id].Health; got != 20 {
		t.Fatalf("expected oldest attribute snapshot to win, got health %v", got)
	}
}

func TestFoldEmptyWindow(t *testing.T) {
	p := Fold(nil)
	if !p.Empty() {
		t.Fatalf("expected folding no frames to produce an empty plan")
	}
	if p.FrameCount != 0 {
		t.Fatalf("expected FrameCount 0, got %d", p.FrameCount)
	}
}
