package plan

import (
	"rewind/server/internal/delta"
	"rewind/server/internal/journal"
)

// Fold collapses a window of frames, ordered newest first, into a Plan.
//
// Every per-key pass overwrites on each visit, so the value that survives
// is the old side of the oldest frame that touched the key: the state as
// it was before the entire window began ("oldest wins"). Within a single
// frame the last-appended delta for a key wins; capture-side ordering
// inside one step is not guaranteed and should not be relied on.
func Fold(frames []*journal.Frame) Plan {
	p := Plan{
		FrameCount:        len(frames),
		CellTargets:       make(map[delta.CellKey]delta.StateID),
		AttachedRecords:   make(map[delta.CellKey]*delta.Record),
		StandaloneRecords: make(map[delta.CellKey]*delta.Record),
		Removals:          make(map[delta.ObjectID]struct{}),
		Respawns:          make(map[delta.ObjectID]RespawnInfo),
		AttrTargets:       make(map[delta.ObjectID]delta.Attributes),
	}

	foldCells(&p, frames)
	foldStandaloneRecords(&p, frames)
	foldLifecycle(&p, frames)
	return p
}

func foldCells(p *Plan, frames []*journal.Frame) {
	for _, frame := range frames {
		for _, d := range frame.CellDeltas() {
			p.CellTargets[d.Key] = d.Old
			// The record snapshot follows the cell state: an older delta
			// without one clears anything a newer frame contributed.
			if d.OldRecord != nil {
				p.AttachedRecords[d.Key] = d.OldRecord.Clone()
			} else {
				delete(p.AttachedRecords, d.Key)
			}
		}
	}
}

func foldStandaloneRecords(p *Plan, frames []*journal.Frame) {
	for _, frame := range frames {
		for _, d := range frame.AuxDeltas() {
			p.StandaloneRecords[d.Key] = d.Old.Clone()
		}
	}
	// A cell change and an in-place record change on the same cell within
	// the window reconcile in favor of the cell change's snapshot.
	for key := range p.AttachedRecords {
		delete(p.StandaloneRecords, key)
	}
}

func foldLifecycle(p *Plan, frames []*journal.Frame) {
	// Objects that appeared anywhere in the window must not exist in the
	// restored past. The remove-set always wins over the other passes:
	// appearing voids the object's prior existence.
	for _, frame := range frames {
		for _, d := range frame.AppearedDeltas() {
			p.Removals[d.ID] = struct{}{}
		}
	}

	for _, frame := range frames {
		for _, d := range frame.DisappearedDeltas() {
			// An object that both appeared and disappeared inside the
			// window is purely transient and cancels out.
			if _, removed := p.Removals[d.ID]; removed {
				continue
			}
			p.Respawns[d.ID] = RespawnInfo{Region: d.Region, Type: d.Type, Attrs: d.Attrs}
		}
		for _, d := range frame.ChangedDeltas() {
			if _, removed := p.Removals[d.ID]; removed {
				continue
			}
			p.AttrTargets[d.ID] = d.Old
		}
	}
}
