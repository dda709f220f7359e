package event

import (
	"fmt"

	"github.com/pkg/errors"
)

// The kinds of obstacle event.
type ObstacleType uint32

const (
	Unknown ObstacleType = iota
	Creation
	Deletion
	BodyType
	Position
	Velocity
	Angle
	AngularVelocity
	BoolConsts
	FloatConsts
	OwnerAcquire
	OwnerRelease
)

func (t ObstacleType) String() string {
	switch t {
	default:
		return fmt.Sprintf("Unknown(%v)", uint32(t))
	case Creation:
		return "Creation"
	case Deletion:
		return "Deletion"
	case BodyType:
		return "BodyType"
	case Position:
		return "Position"
	case Velocity:
		return "Velocity"
	case Angle:
		return "Angle"
	case AngularVelocity:
		return "AngularVelocity"
	case BoolConsts:
		return "BoolConsts"
	case FloatConsts:
		return "FloatConsts"
	case OwnerAcquire:
		return "OwnerAcquire"
	case OwnerRelease:
		return "OwnerRelease"
	}
}

// The size of the type and id header.
const obstacleHeader = 4 + 8

type Vec2 struct {
	X, Y float32
}

// The boolean properties of a body, in wire order.
type Bools struct {
	Enabled         bool
	Awake           bool
	SleepingAllowed bool
	FixedRotation   bool
	Bullet          bool
	Sensor          bool
}

// The scalar properties of a body, in wire order.
type Floats struct {
	Density        float32
	Friction       float32
	Restitution    float32
	LinearDamping  float32
	AngularDamping float32
	GravityScale   float32
	Mass           float32
	Inertia        float32
	Centroid       Vec2
}

// A change to a single obstacle.  Which fields are meaningful depends
// on the type:
//
//   Creation:        Factory, Params
//   BodyType:        Body
//   Position:        Position
//   Velocity:        Velocity
//   Angle:           Angle
//   AngularVelocity: AngularVel
//   BoolConsts:      Bools
//   FloatConsts:     Floats
//   OwnerAcquire:    Duration
//
// Deletion and OwnerRelease carry only the id.
type PhysObstEvent struct {
	Type       ObstacleType
	ID         uint64
	Factory    uint32
	Params     []byte
	Body       uint32
	Position   Vec2
	Velocity   Vec2
	Angle      float32
	AngularVel float32
	Bools      Bools
	Floats     Floats
	Duration   uint64
}

// Params are the packed constructor arguments understood by the factory.
func NewCreation(factory uint32, id uint64, params []byte) *PhysObstEvent {
	cp := make([]byte, len(params))
	copy(cp, params)
	return &PhysObstEvent{Type: Creation, ID: id, Factory: factory, Params: cp}
}

func NewDeletion(id uint64) *PhysObstEvent {
	return &PhysObstEvent{Type: Deletion, ID: id}
}

func NewBodyType(id uint64, body uint32) *PhysObstEvent {
	return &PhysObstEvent{Type: BodyType, ID: id, Body: body}
}

func NewPosition(id uint64, pos Vec2) *PhysObstEvent {
	return &PhysObstEvent{Type: Position, ID: id, Position: pos}
}

func NewVelocity(id uint64, vel Vec2) *PhysObstEvent {
	return &PhysObstEvent{Type: Velocity, ID: id, Velocity: vel}
}

func NewAngle(id uint64, angle float32) *PhysObstEvent {
	return &PhysObstEvent{Type: Angle, ID: id, Angle: angle}
}

func NewAngularVelocity(id uint64, vel float32) *PhysObstEvent {
	return &PhysObstEvent{Type: AngularVelocity, ID: id, AngularVel: vel}
}

func NewBoolConsts(id uint64, vals Bools) *PhysObstEvent {
	return &PhysObstEvent{Type: BoolConsts, ID: id, Bools: vals}
}

func NewFloatConsts(id uint64, vals Floats) *PhysObstEvent {
	return &PhysObstEvent{Type: FloatConsts, ID: id, Floats: vals}
}

// Claims ownership of the obstacle for the given number of ticks.  A
// duration of zero claims it indefinitely.
func NewOwnerAcquire(id uint64, duration uint64) *PhysObstEvent {
	return &PhysObstEvent{Type: OwnerAcquire, ID: id, Duration: duration}
}

func NewOwnerRelease(id uint64) *PhysObstEvent {
	return &PhysObstEvent{Type: OwnerRelease, ID: id}
}

func (e *PhysObstEvent) Serialize() []byte {
	enc := NewEncoder()
	enc.PutUint32(uint32(e.Type))
	enc.PutUint64(e.ID)

	switch e.Type {
	case Creation:
		enc.PutUint32(e.Factory)
		enc.PutRaw(e.Params)
	case BodyType:
		enc.PutUint32(e.Body)
	case Position:
		putVec2(enc, e.Position)
	case Velocity:
		putVec2(enc, e.Velocity)
	case Angle:
		enc.PutFloat32(e.Angle)
	case AngularVelocity:
		enc.PutFloat32(e.AngularVel)
	case BoolConsts:
		enc.PutBool(e.Bools.Enabled)
		enc.PutBool(e.Bools.Awake)
		enc.PutBool(e.Bools.SleepingAllowed)
		enc.PutBool(e.Bools.FixedRotation)
		enc.PutBool(e.Bools.Bullet)
		enc.PutBool(e.Bools.Sensor)
	case FloatConsts:
		enc.PutFloat32(e.Floats.Density)
		enc.PutFloat32(e.Floats.Friction)
		enc.PutFloat32(e.Floats.Restitution)
		enc.PutFloat32(e.Floats.LinearDamping)
		enc.PutFloat32(e.Floats.AngularDamping)
		enc.PutFloat32(e.Floats.GravityScale)
		enc.PutFloat32(e.Floats.Mass)
		enc.PutFloat32(e.Floats.Inertia)
		putVec2(enc, e.Floats.Centroid)
	case OwnerAcquire:
		enc.PutUint64(e.Duration)
	}
	return enc.Bytes()
}

func (e *PhysObstEvent) Deserialize(data []byte) error {
	if len(data) < obstacleHeader {
		return errors.Wrapf(TruncatedError, "Obstacle event of [%v] bytes", len(data))
	}

	dec := NewDecoder(data)
	tmp := PhysObstEvent{Type: ObstacleType(dec.ReadUint32()), ID: dec.ReadUint64()}

	switch tmp.Type {
	default:
		return errors.Wrapf(UnknownTypeError, "Obstacle event [%v]", uint32(tmp.Type))
	case Deletion, OwnerRelease:
	case Creation:
		tmp.Factory = dec.ReadUint32()
		tmp.Params = dec.ReadRest()
	case BodyType:
		tmp.Body = dec.ReadUint32()
	case Position:
		tmp.Position = readVec2(dec)
	case Velocity:
		tmp.Velocity = readVec2(dec)
	case Angle:
		tmp.Angle = dec.ReadFloat32()
	case AngularVelocity:
		tmp.AngularVel = dec.ReadFloat32()
	case BoolConsts:
		tmp.Bools.Enabled = dec.ReadBool()
		tmp.Bools.Awake = dec.ReadBool()
		tmp.Bools.SleepingAllowed = dec.ReadBool()
		tmp.Bools.FixedRotation = dec.ReadBool()
		tmp.Bools.Bullet = dec.ReadBool()
		tmp.Bools.Sensor = dec.ReadBool()
	case FloatConsts:
		tmp.Floats.Density = dec.ReadFloat32()
		tmp.Floats.Friction = dec.ReadFloat32()
		tmp.Floats.Restitution = dec.ReadFloat32()
		tmp.Floats.LinearDamping = dec.ReadFloat32()
		tmp.Floats.AngularDamping = dec.ReadFloat32()
		tmp.Floats.GravityScale = dec.ReadFloat32()
		tmp.Floats.Mass = dec.ReadFloat32()
		tmp.Floats.Inertia = dec.ReadFloat32()
		tmp.Floats.Centroid = readVec2(dec)
	case OwnerAcquire:
		tmp.Duration = dec.ReadUint64()
	}

	if err := dec.Err(); err != nil {
		return errors.Wrapf(err, "Decoding [%v] event", tmp.Type)
	}

	*e = tmp
	return nil
}

func (e *PhysObstEvent) String() string {
	return fmt.Sprintf("PhysObst(%v, %#x)", e.Type, e.ID)
}

func putVec2(enc *Encoder, v Vec2) {
	enc.PutFloat32(v.X)
	enc.PutFloat32(v.Y)
}

func readVec2(dec *Decoder) Vec2 {
	return Vec2{dec.ReadFloat32(), dec.ReadFloat32()}
}
