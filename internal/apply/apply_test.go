package apply

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"rewind/server/internal/delta"
	"rewind/server/internal/plan"
)

// fakeStore records applier calls in order and can be told to fail
// selectively.
type fakeStore struct {
	phases []string

	objects map[delta.ObjectID]delta.Attributes
	cells   map[delta.CellKey]delta.StateID
	records map[delta.CellKey]*delta.Record

	failSpawn     map[delta.ObjectID]error
	failEnsure    map[delta.CellKey]error
	failWriteCell map[delta.CellKey]error
	failWriteRec  map[delta.CellKey]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		objects: make(map[delta.ObjectID]delta.Attributes),
		cells:   make(map[delta.CellKey]delta.StateID),
		records: make(map[delta.CellKey]*delta.Record),
	}
}

func (s *fakeStore) RemoveObject(id delta.ObjectID) bool {
	s.phases = append(s.phases, "remove")
	if _, ok := s.objects[id]; !ok {
		return false
	}
	delete(s.objects, id)
	return true
}

func (s *fakeStore) ObjectExists(id delta.ObjectID) bool {
	_, ok := s.objects[id]
	return ok
}

func (s *fakeStore) RestoreObjectAttributes(id delta.ObjectID, attrs delta.Attributes) bool {
	s.phases = append(s.phases, "restoreAttrs")
	if _, ok := s.objects[id]; !ok {
		return false
	}
	s.objects[id] = attrs
	return true
}

func (s *fakeStore) SpawnObject(region delta.RegionID, id delta.ObjectID, typ delta.ObjectType, attrs delta.Attributes) error {
	s.phases = append(s.phases, "spawn")
	if err := s.failSpawn[id]; err != nil {
		return err
	}
	s.objects[id] = attrs
	return nil
}

func (s *fakeStore) EnsureAccessible(region delta.RegionID, pos delta.PackedPos) error {
	key := delta.CellKey{Region: region, Pos: pos}
	if err := s.failEnsure[key]; err != nil {
		return err
	}
	return nil
}

func (s *fakeStore) WriteCell(region delta.RegionID, pos delta.PackedPos, state delta.StateID) error {
	s.phases = append(s.phases, "writeCell")
	key := delta.CellKey{Region: region, Pos: pos}
	if err := s.failWriteCell[key]; err != nil {
		return err
	}
	s.cells[key] = state
	return nil
}

func (s *fakeStore) WriteRecord(region delta.RegionID, pos delta.PackedPos, record *delta.Record) error {
	s.phases = append(s.phases, "writeRecord")
	key := delta.CellKey{Region: region, Pos: pos}
	if err := s.failWriteRec[key]; err != nil {
		return err
	}
	s.records[key] = record
	return nil
}

func cellKey(x, y, z int) delta.CellKey {
	return delta.CellKey{Region: "overworld", Pos: delta.PackPos(x, y, z)}
}

func TestApplyPhaseOrder(t *testing.T) {
	store := newFakeStore()
	removed := uuid.New()
	surviving := uuid.New()
	respawned := uuid.New()
	store.objects[removed] = delta.Attributes{}
	store.objects[surviving] = delta.Attributes{Health: 3}

	key := cellKey(0, 64, 0)
	p := plan.Plan{
		CellTargets:       map[delta.CellKey]delta.StateID{key: "chest"},
		AttachedRecords:   map[delta.CellKey]*delta.Record{key: {Type: "container"}},
		StandaloneRecords: map[delta.CellKey]*delta.Record{cellKey(1, 64, 0): {Type: "furnace"}},
		Removals:          map[delta.ObjectID]struct{}{removed: {}},
		Respawns:          map[delta.ObjectID]plan.RespawnInfo{respawned: {Region: "overworld", Type: "creature"}},
		AttrTargets:       map[delta.ObjectID]delta.Attributes{surviving: {Health: 20}},
	}

	result := New(store).Apply(p)
	if !result.Success {
		t.Fatalf("expected success, warnings: %v", result.Warnings)
	}

	want := []string{"remove", "restoreAttrs", "spawn", "writeCell", "writeRecord", "writeRecord"}
	if len(store.phases) != len(want) {
		t.Fatalf("expected %d store calls, got %v", len(want), store.phases)
	}
	for i, phase := range want {
		if store.phases[i] != phase {
			t.Fatalf("expected phase %q at position %d, got %v", phase, i, store.phases)
		}
	}

	if result.ObjectsRemoved != 1 || result.ObjectsRestored != 2 ||
		result.CellsRestored != 1 || result.RecordsRestored != 2 {
		t.Fatalf("unexpected result counts: %+v", result)
	}
	if store.objects[surviving].Health != 20 {
		t.Fatalf("expected surviving object's attributes restored")
	}
	if _, ok := store.objects[respawned]; !ok {
		t.Fatalf("expected respawned object live")
	}
	if store.cells[key] != "chest" {
		t.Fatalf("expected cell restored to %q, got %q", "chest", store.cells[key])
	}
}

func TestApplySkipsExistingRespawn(t *testing.T) {
	store := newFakeStore()
	id := uuid.New()
	store.objects[id] = delta.Attributes{Health: 9}

	p := plan.Plan{
		Respawns: map[delta.ObjectID]plan.RespawnInfo{
			id: {Region: "overworld", Type: "creature", Attrs: delta.Attributes{Health: 20}},
		},
	}

	result := New(store).Apply(p)
	if !result.Success {
		t.Fatalf("expected success, warnings: %v", result.Warnings)
	}
	if result.ObjectsRestored != 0 {
		t.Fatalf("expected live object left alone, got %d restored", result.ObjectsRestored)
	}
	if store.objects[id].Health != 9 {
		t.Fatalf("expected live object untouched, got health %v", store.objects[id].Health)
	}
	if len(result.Warnings) != 0 {
		t.Fatalf("expected no warning for an already-live object, got %v", result.Warnings)
	}
}

func TestApplyCollectsWarningsAndContinues(t *testing.T) {
	store := newFakeStore()
	badSpawn := uuid.New()
	badCell := cellKey(0, 64, 0)
	goodCell := cellKey(1, 64, 0)
	store.failSpawn = map[delta.ObjectID]error{badSpawn: errors.New("region unavailable")}
	store.failEnsure = map[delta.CellKey]error{badCell: errors.New("chunk load failed")}

	p := plan.Plan{
		CellTargets: map[delta.CellKey]delta.StateID{
			badCell:  "stone",
			goodCell: "dirt",
		},
		Respawns: map[delta.ObjectID]plan.RespawnInfo{
			badSpawn: {Region: "void", Type: "creature"},
		},
	}

	result := New(store).Apply(p)
	if !result.Success {
		t.Fatalf("expected warnings not to flip success")
	}
	if len(result.Warnings) != 2 {
		t.Fatalf("expected 2 warnings, got %v", result.Warnings)
	}
	if result.CellsRestored != 1 {
		t.Fatalf("expected the healthy cell still restored, got %d", result.CellsRestored)
	}
	if store.cells[goodCell] != "dirt" {
		t.Fatalf("expected healthy cell written despite warnings")
	}
}

func TestApplyRecordFailureSkipsOnlyRecord(t *testing.T) {
	store := newFakeStore()
	key := cellKey(0, 64, 0)
	store.failWriteRec = map[delta.CellKey]error{key: errors.New("occupant cannot hold a record")}

	p := plan.Plan{
		CellTargets:     map[delta.CellKey]delta.StateID{key: "chest"},
		AttachedRecords: map[delta.CellKey]*delta.Record{key: {Type: "container"}},
	}

	result := New(store).Apply(p)
	if result.CellsRestored != 1 {
		t.Fatalf("expected cell written before record failure, got %d", result.CellsRestored)
	}
	if result.RecordsRestored != 0 {
		t.Fatalf("expected record failure counted out, got %d", result.RecordsRestored)
	}
	if len(result.Warnings) != 1 || !strings.Contains(result.Warnings[0], "record") {
		t.Fatalf("expected a record warning, got %v", result.Warnings)
	}
}

func TestApplyEmptyPlan(t *testing.T) {
	store := newFakeStore()
	result := New(store).Apply(plan.Plan{})
	if !result.Success {
		t.Fatalf("expected empty plan to succeed")
	}
	if len(store.phases) != 0 {
		t.Fatalf("expected no store calls for an empty plan, got %v", store.phases)
	}
}
