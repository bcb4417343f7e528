// Package delta defines the immutable change records captured by the
// timeline recorder. Each delta stores both the old and the new value so
// a window of frames can be folded back into the state that preceded it.
package delta

// StateID is an opaque handle for what occupies a cell. Two cells hold the
// same content exactly when their StateIDs compare equal.
type StateID string

// CellDelta records a change to what occupies a cell. When an auxiliary
// record was attached to the cell before or after the change, the matching
// snapshot travels with the delta so the fold can restore both together.
type CellDelta struct {
	Key CellKey
	Old StateID
	New StateID

	// OldRecord and NewRecord are nil when no record was attached on
	// that side of the change.
	OldRecord *Record
	NewRecord *Record
}

// EstimateBytes approximates the retained size of the delta.
func (d CellDelta) EstimateBytes() int {
	return cellDeltaBaseBytes + d.OldRecord.EstimateBytes() + d.NewRecord.EstimateBytes()
}

// AuxDelta records an in-place change to a cell's auxiliary record with no
// change to what occupies the cell. Both snapshots are always present.
type AuxDelta struct {
	Key  CellKey
	Type RecordType
	Old  *Record
	New  *Record
}

// EstimateBytes approximates the retained size of the delta.
func (d AuxDelta) EstimateBytes() int {
	return auxDeltaBaseBytes + d.Old.EstimateBytes() + d.New.EstimateBytes()
}

const (
	cellDeltaBaseBytes = 48
	auxDeltaBaseBytes  = 48
)
