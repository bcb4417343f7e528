// Package apply executes a folded plan against the live store in a fixed
// phase order: removals, attribute restores, respawns, cell targets,
// standalone record targets. Phases continue past individual failures and
// collect warnings; nothing already written is rolled back.
package apply

import (
	"fmt"

	"rewind/server/internal/plan"
)

// Result reports what an Apply call changed.
type Result struct {
	Success         bool     `json:"success"`
	CellsRestored   int      `json:"cellsRestored"`
	RecordsRestored int      `json:"recordsRestored"`
	ObjectsRestored int      `json:"objectsRestored"`
	ObjectsRemoved  int      `json:"objectsRemoved"`
	Warnings        []string `json:"warnings,omitempty"`
}

// Applier writes plans into a live store.
type Applier struct {
	store Store
}

// New constructs an applier over the given store.
func New(store Store) *Applier {
	return &Applier{store: store}
}

// Apply executes the plan. Warnings are additive and never flip Success;
// the result is unsuccessful only when an unexpected internal fault is
// recovered by the caller.
func (a *Applier) Apply(p plan.Plan) Result {
	result := Result{Success: true}

	// Phase 1: remove objects that appeared inside the window. Running
	// removals first means later phases never reference an object that
	// is about to vanish.
	for id := range p.Removals {
		if a.store.RemoveObject(id) {
			result.ObjectsRemoved++
		}
	}

	// Phase 2: restore attributes on surviving objects. An object that
	// despawned since folding is simply skipped.
	for id, attrs := range p.AttrTargets {
		if a.store.RestoreObjectAttributes(id, attrs) {
			result.ObjectsRestored++
		}
	}

	// Phase 3: recreate objects that disappeared inside the window. An
	// object already live again is left alone; that is a race with the
	// host, not an error.
	for id, info := range p.Respawns {
		if a.store.ObjectExists(id) {
			continue
		}
		if err := a.store.SpawnObject(info.Region, id, info.Type, info.Attrs); err != nil {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("respawn %s (%s): %v", id, info.Type, err))
			continue
		}
		result.ObjectsRestored++
	}

	// Phase 4: write cell targets, restoring any attached record onto
	// the resulting occupant.
	for key, state := range p.CellTargets {
		if err := a.store.EnsureAccessible(key.Region, key.Pos); err != nil {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("cell %s: %v", key, err))
			continue
		}
		if err := a.store.WriteCell(key.Region, key.Pos, state); err != nil {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("cell %s: %v", key, err))
			continue
		}
		result.CellsRestored++

		if record, ok := p.AttachedRecords[key]; ok {
			if err := a.store.WriteRecord(key.Region, key.Pos, record); err != nil {
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("record %s: %v", key, err))
				continue
			}
			result.RecordsRestored++
		}
	}

	// Phase 5: standalone record targets. Keys overlapping an attached
	// target were already dropped during folding.
	for key, record := range p.StandaloneRecords {
		if err := a.store.EnsureAccessible(key.Region, key.Pos); err != nil {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("record %s: %v", key, err))
			continue
		}
		if err := a.store.WriteRecord(key.Region, key.Pos, record); err != nil {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("record %s: %v", key, err))
			continue
		}
		result.RecordsRestored++
	}

	return result
}
