package apply

import "rewind/server/internal/delta"

// Store is the live world surface the applier writes through. The
// implementation owns all storage access; the applier only decides what to
// write and in what order. The host guarantees single-writer access for
// the duration of an Apply call.
type Store interface {
	// RemoveObject deletes the object if present and reports whether it
	// existed.
	RemoveObject(id delta.ObjectID) bool

	// ObjectExists reports whether the object is live.
	ObjectExists(id delta.ObjectID) bool

	// RestoreObjectAttributes overwrites the tracked attribute subset of
	// a live object and reports whether the object was found.
	RestoreObjectAttributes(id delta.ObjectID, attrs delta.Attributes) bool

	// SpawnObject recreates an object with its original id, type and
	// attributes. It fails when the region is unavailable or the target
	// location cannot be made accessible.
	SpawnObject(region delta.RegionID, id delta.ObjectID, typ delta.ObjectType, attrs delta.Attributes) error

	// EnsureAccessible loads the storage unit containing the position,
	// failing when the region is unavailable or the unit cannot be
	// loaded.
	EnsureAccessible(region delta.RegionID, pos delta.PackedPos) error

	// WriteCell sets the state occupying the cell. The containing
	// storage unit must already be accessible.
	WriteCell(region delta.RegionID, pos delta.PackedPos, state delta.StateID) error

	// WriteRecord restores an auxiliary record onto the cell's occupant.
	// It fails when no occupant at the position can hold a record.
	WriteRecord(region delta.RegionID, pos delta.PackedPos, record *delta.Record) error
}
