package delta

import "github.com/google/uuid"

// ObjectID is the stable 128-bit identifier of a lifecycle object. IDs are
// assigned by the live store when an object is first created and survive
// despawn/respawn cycles.
type ObjectID = uuid.UUID

// ObjectType identifies the kind of a lifecycle object.
type ObjectType string

// Attributes is the fixed subset of object state the timeline tracks.
// Full structural serialization of object state is out of scope; the
// subset covers placement, motion and vitals.
type Attributes struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Z        float64 `json:"z"`
	Yaw      float64 `json:"yaw"`
	Pitch    float64 `json:"pitch"`
	VelX     float64 `json:"velX"`
	VelY     float64 `json:"velY"`
	VelZ     float64 `json:"velZ"`
	OnGround bool    `json:"onGround"`
	Health   float64 `json:"health"`
	HurtTime int     `json:"hurtTime"`
	FallTime int     `json:"fallTime"`
}

// attributesBytes is the flat cost charged per attribute snapshot by the
// memory model.
const attributesBytes = 96

// AppearedDelta records that an object came into existence during a step.
// There is no old state; the object did not exist before.
type AppearedDelta struct {
	Region RegionID
	ID     ObjectID
	Type   ObjectType
	Attrs  Attributes
}

// EstimateBytes approximates the retained size of the delta.
func (d AppearedDelta) EstimateBytes() int {
	return objectDeltaBaseBytes + attributesBytes
}

// DisappearedDelta records that an object was removed during a step. The
// captured type and attributes are everything needed to recreate it.
type DisappearedDelta struct {
	Region RegionID
	ID     ObjectID
	Type   ObjectType
	Attrs  Attributes
}

// EstimateBytes approximates the retained size of the delta.
func (d DisappearedDelta) EstimateBytes() int {
	return objectDeltaBaseBytes + attributesBytes
}

// ChangedDelta records an in-place attribute change on an object that
// existed before and after the step.
type ChangedDelta struct {
	Region RegionID
	ID     ObjectID
	Old    Attributes
	New    Attributes
}

// EstimateBytes approximates the retained size of the delta.
func (d ChangedDelta) EstimateBytes() int {
	return objectDeltaBaseBytes + 2*attributesBytes
}

const objectDeltaBaseBytes = 60
