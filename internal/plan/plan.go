// Package plan folds an ordered window of frames into a single target
// state. A Plan is pure data: it decides what to write and in what order,
// and never touches the live store.
package plan

import (
	"rewind/server/internal/delta"
)

// RespawnInfo carries everything needed to recreate a removed object.
type RespawnInfo struct {
	Region delta.RegionID
	Type   delta.ObjectType
	Attrs  delta.Attributes
}

// Plan is the immutable result of folding a window of frames.
type Plan struct {
	// FrameCount is the number of frames folded into the plan.
	FrameCount int

	// CellTargets maps each touched cell to the state it held before the
	// window began.
	CellTargets map[delta.CellKey]delta.StateID

	// AttachedRecords holds record targets captured alongside cell
	// changes. They are applied right after the cell state is written,
	// because the snapshot is guaranteed consistent with that state.
	AttachedRecords map[delta.CellKey]*delta.Record

	// StandaloneRecords holds record targets from in-place record
	// changes. Keys that also have an attached target are dropped during
	// folding: the attached snapshot wins.
	StandaloneRecords map[delta.CellKey]*delta.Record

	// Removals lists objects that appeared inside the window; they must
	// not exist in the restored past.
	Removals map[delta.ObjectID]struct{}

	// Respawns maps objects that disappeared inside the window to the
	// information needed to recreate them.
	Respawns map[delta.ObjectID]RespawnInfo

	// AttrTargets maps surviving objects to the attributes they held
	// before the window began.
	AttrTargets map[delta.ObjectID]delta.Attributes
}

// Empty reports whether the plan would change nothing.
func (p Plan) Empty() bool {
	return len(p.CellTargets) == 0 && len(p.StandaloneRecords) == 0 &&
		len(p.Removals) == 0 && len(p.Respawns) == 0 && len(p.AttrTargets) == 0
}
