// Package world is the in-memory live store the timeline records and
// rewinds. It owns regions of chunked cell storage, auxiliary records and
// lifecycle objects, and notifies an observer at every mutation point so
// the embedding loop can capture history through ordinary function calls.
package world

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"rewind/server/internal/delta"
)

// Observer receives a callback for every mutation. The method set matches
// the recorder's entry points so a recorder can be wired in directly.
type Observer interface {
	RecordCellChange(region delta.RegionID, pos delta.PackedPos, old, new delta.StateID, oldRec, newRec *delta.Record)
	RecordAuxChange(region delta.RegionID, pos delta.PackedPos, typ delta.RecordType, old, new *delta.Record)
	RecordAppeared(region delta.RegionID, id delta.ObjectID, typ delta.ObjectType, attrs delta.Attributes)
	RecordDisappeared(region delta.RegionID, id delta.ObjectID, typ delta.ObjectType, attrs delta.Attributes)
	RecordChanged(region delta.RegionID, id delta.ObjectID, old, new delta.Attributes)
}

// Config tunes the world store.
type Config struct {
	// DefaultState is what an untouched cell holds.
	DefaultState delta.StateID
}

// Object is a live lifecycle object.
type Object struct {
	ID     delta.ObjectID
	Type   delta.ObjectType
	Region delta.RegionID
	Attrs  delta.Attributes
}

type chunkPos struct {
	x, z int
}

type chunk struct {
	cells   map[delta.PackedPos]delta.StateID
	records map[delta.PackedPos]*delta.Record
}

type region struct {
	available bool
	chunks    map[chunkPos]*chunk
}

// World is the live store. A mutex guards it because the status endpoint
// reads concurrently with the scheduling thread; mutation remains
// single-writer by host contract.
type World struct {
	mu       sync.Mutex
	cfg      Config
	regions  map[delta.RegionID]*region
	objects  map[delta.ObjectID]*Object
	observer Observer
}

// New constructs an empty world.
func New(cfg Config) *World {
	return &World{
		cfg:     cfg,
		regions: make(map[delta.RegionID]*region),
		objects: make(map[delta.ObjectID]*Object),
	}
}

// SetObserver wires the mutation observer. Pass nil to detach.
func (w *World) SetObserver(obs Observer) {
	w.mu.Lock()
	w.observer = obs
	w.mu.Unlock()
}

// AddRegion registers an available region.
func (w *World) AddRegion(id delta.RegionID) {
	w.mu.Lock()
	if _, ok := w.regions[id]; !ok {
		w.regions[id] = &region{available: true, chunks: make(map[chunkPos]*chunk)}
	}
	w.mu.Unlock()
}

// SetRegionAvailable toggles whether a region can serve storage access.
func (w *World) SetRegionAvailable(id delta.RegionID, available bool) {
	w.mu.Lock()
	if r, ok := w.regions[id]; ok {
		r.available = available
	}
	w.mu.Unlock()
}

func chunkOf(pos delta.PackedPos) chunkPos {
	x, _, z := pos.Unpack()
	return chunkPos{x: x >> 4, z: z >> 4}
}

// chunkAt returns the loaded chunk containing pos, loading it on demand
// when load is set. Callers hold w.mu.
func (w *World) chunkAt(regionID delta.RegionID, pos delta.PackedPos, load bool) (*chunk, error) {
	r, ok := w.regions[regionID]
	if !ok {
		return nil, fmt.Errorf("region %s not found", regionID)
	}
	if !r.available {
		return nil, fmt.Errorf("region %s unavailable", regionID)
	}
	cp := chunkOf(pos)
	c, ok := r.chunks[cp]
	if !ok {
		if !load {
			return nil, fmt.Errorf("chunk (%d,%d) in region %s not loaded", cp.x, cp.z, regionID)
		}
		c = &chunk{
			cells:   make(map[delta.PackedPos]delta.StateID),
			records: make(map[delta.PackedPos]*delta.Record),
		}
		r.chunks[cp] = c
	}
	return c, nil
}

func (w *World) cellState(c *chunk, pos delta.PackedPos) delta.StateID {
	if state, ok := c.cells[pos]; ok {
		return state
	}
	return w.cfg.DefaultState
}

// EnsureAccessible loads the chunk containing the position.
func (w *World) EnsureAccessible(regionID delta.RegionID, pos delta.PackedPos) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := w.chunkAt(regionID, pos, true)
	return err
}

// WriteCell sets the state occupying a cell. The containing chunk must
// already be loaded. Replacing a cell's state drops any attached record.
func (w *World) WriteCell(regionID delta.RegionID, pos delta.PackedPos, state delta.StateID) error {
	w.mu.Lock()
	c, err := w.chunkAt(regionID, pos, false)
	if err != nil {
		w.mu.Unlock()
		return err
	}
	old := w.cellState(c, pos)
	oldRec := c.records[pos]
	c.cells[pos] = state
	if old != state {
		delete(c.records, pos)
	}
	obs := w.observer
	w.mu.Unlock()

	if obs != nil {
		obs.RecordCellChange(regionID, pos, old, state, oldRec, nil)
	}
	return nil
}

// SetCell is the host-facing mutation: it loads the chunk on demand and
// writes the cell.
func (w *World) SetCell(regionID delta.RegionID, pos delta.PackedPos, state delta.StateID) error {
	if err := w.EnsureAccessible(regionID, pos); err != nil {
		return err
	}
	return w.WriteCell(regionID, pos, state)
}

// WriteRecord restores an auxiliary record onto the cell's occupant. The
// cell must hold a non-default state to carry a record.
func (w *World) WriteRecord(regionID delta.RegionID, pos delta.PackedPos, record *delta.Record) error {
	w.mu.Lock()
	c, err := w.chunkAt(regionID, pos, false)
	if err != nil {
		w.mu.Unlock()
		return err
	}
	if w.cellState(c, pos) == w.cfg.DefaultState {
		w.mu.Unlock()
		return fmt.Errorf("no occupant at %s to hold a record", pos)
	}
	old := c.records[pos]
	cloned := record.Clone()
	c.records[pos] = cloned
	obs := w.observer
	w.mu.Unlock()

	if obs != nil && record != nil {
		obs.RecordAuxChange(regionID, pos, record.Type, old, cloned)
	}
	return nil
}

// SetRecord is the host-facing in-place record mutation.
func (w *World) SetRecord(regionID delta.RegionID, pos delta.PackedPos, record *delta.Record) error {
	if err := w.EnsureAccessible(regionID, pos); err != nil {
		return err
	}
	return w.WriteRecord(regionID, pos, record)
}

// Cell reads the state at a position; untouched cells report the default
// state.
func (w *World) Cell(regionID delta.RegionID, pos delta.PackedPos) delta.StateID {
	w.mu.Lock()
	defer w.mu.Unlock()
	r, ok := w.regions[regionID]
	if !ok {
		return w.cfg.DefaultState
	}
	c, ok := r.chunks[chunkOf(pos)]
	if !ok {
		return w.cfg.DefaultState
	}
	return w.cellState(c, pos)
}

// Record reads the auxiliary record at a position, or nil.
func (w *World) Record(regionID delta.RegionID, pos delta.PackedPos) *delta.Record {
	w.mu.Lock()
	defer w.mu.Unlock()
	r, ok := w.regions[regionID]
	if !ok {
		return nil
	}
	c, ok := r.chunks[chunkOf(pos)]
	if !ok {
		return nil
	}
	return c.records[pos].Clone()
}

// SpawnObject creates an object with a caller-provided id, used by the
// applier to recreate objects under their original identity.
func (w *World) SpawnObject(regionID delta.RegionID, id delta.ObjectID, typ delta.ObjectType, attrs delta.Attributes) error {
	w.mu.Lock()
	r, ok := w.regions[regionID]
	if !ok || !r.available {
		w.mu.Unlock()
		return fmt.Errorf("region %s unavailable", regionID)
	}
	if _, exists := w.objects[id]; exists {
		w.mu.Unlock()
		return fmt.Errorf("object %s already exists", id)
	}
	pos := delta.PackPos(int(attrs.X), int(attrs.Y), int(attrs.Z))
	if _, err := w.chunkAt(regionID, pos, true); err != nil {
		w.mu.Unlock()
		return err
	}
	w.objects[id] = &Object{ID: id, Type: typ, Region: regionID, Attrs: attrs}
	obs := w.observer
	w.mu.Unlock()

	if obs != nil {
		obs.RecordAppeared(regionID, id, typ, attrs)
	}
	return nil
}

// SpawnNew creates an object with a fresh id and returns it.
func (w *World) SpawnNew(regionID delta.RegionID, typ delta.ObjectType, attrs delta.Attributes) (delta.ObjectID, error) {
	id := uuid.New()
	if err := w.SpawnObject(regionID, id, typ, attrs); err != nil {
		return delta.ObjectID{}, err
	}
	return id, nil
}

// RemoveObject deletes an object and reports whether it existed.
func (w *World) RemoveObject(id delta.ObjectID) bool {
	w.mu.Lock()
	obj, ok := w.objects[id]
	if ok {
		delete(w.objects, id)
	}
	obs := w.observer
	w.mu.Unlock()

	if !ok {
		return false
	}
	if obs != nil {
		obs.RecordDisappeared(obj.Region, obj.ID, obj.Type, obj.Attrs)
	}
	return true
}

// ObjectExists reports whether the object is live.
func (w *World) ObjectExists(id delta.ObjectID) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.objects[id]
	return ok
}

// Object returns a copy of a live object.
func (w *World) Object(id delta.ObjectID) (Object, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	obj, ok := w.objects[id]
	if !ok {
		return Object{}, false
	}
	return *obj, true
}

// ObjectCount reports the number of live objects.
func (w *World) ObjectCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.objects)
}

// RestoreObjectAttributes overwrites a live object's tracked attributes.
func (w *World) RestoreObjectAttributes(id delta.ObjectID, attrs delta.Attributes) bool {
	w.mu.Lock()
	obj, ok := w.objects[id]
	if !ok {
		w.mu.Unlock()
		return false
	}
	old := obj.Attrs
	obj.Attrs = attrs
	obs := w.observer
	regionID := obj.Region
	w.mu.Unlock()

	if obs != nil {
		obs.RecordChanged(regionID, id, old, attrs)
	}
	return true
}

// UpdateObject is the host-facing attribute mutation.
func (w *World) UpdateObject(id delta.ObjectID, attrs delta.Attributes) error {
	if !w.RestoreObjectAttributes(id, attrs) {
		return fmt.Errorf("object %s not found", id)
	}
	return nil
}
