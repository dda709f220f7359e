package physics

import (
	"fmt"

	"github.com/pkopriv2/lockstep/event"
	"github.com/pkopriv2/lockstep/world"
	"github.com/solarlune/resolv"
)

// Tag carried by bodies that stop dynamic bodies.
const SolidTag = "solid"

type BodyType uint32

const (
	Static BodyType = iota
	Kinematic
	Dynamic
)

func (t BodyType) String() string {
	switch t {
	default:
		return fmt.Sprintf("Unknown(%v)", uint32(t))
	case Static:
		return "Static"
	case Kinematic:
		return "Kinematic"
	case Dynamic:
		return "Dynamic"
	}
}

// A rectangular rigid body backed by a resolv object.  Positions refer
// to the top left corner of the rectangle.
type Body struct {
	obj    *resolv.Object
	vel    event.Vec2
	angle  float32
	spin   float32
	kind   BodyType
	bools  event.Bools
	floats event.Floats
	shared bool
	dirty  world.Dirty
}

func NewBody(kind BodyType, x, y, w, h float32, tags ...string) *Body {
	obj := resolv.NewObject(float64(x), float64(y), float64(w), float64(h), tags...)
	obj.SetShape(resolv.NewRectangle(0, 0, float64(w), float64(h)))
	return &Body{
		obj:    obj,
		kind:   kind,
		bools:  event.Bools{Enabled: true, Awake: true, SleepingAllowed: true},
		floats: event.Floats{Density: 1, GravityScale: 1, Mass: w * h},
	}
}

// Creates a static body that blocks dynamic bodies.
func NewWall(x, y, w, h float32) *Body {
	return NewBody(Static, x, y, w, h, SolidTag)
}

func (b *Body) Object() *resolv.Object {
	return b.obj
}

func (b *Body) Size() event.Vec2 {
	return event.Vec2{X: float32(b.obj.W), Y: float32(b.obj.H)}
}

func (b *Body) Position() event.Vec2 {
	return event.Vec2{X: float32(b.obj.X), Y: float32(b.obj.Y)}
}

func (b *Body) Velocity() event.Vec2 {
	return b.vel
}

func (b *Body) Angle() float32 {
	return b.angle
}

func (b *Body) AngularVelocity() float32 {
	return b.spin
}

func (b *Body) SetPosition(p event.Vec2) {
	b.move(float64(p.X), float64(p.Y))
	b.mark(world.DirtyPosition)
}

func (b *Body) SetVelocity(v event.Vec2) {
	b.vel = v
	b.mark(world.DirtyVelocity)
}

func (b *Body) SetAngle(a float32) {
	b.angle = a
	b.mark(world.DirtyAngle)
}

func (b *Body) SetAngularVelocity(v float32) {
	b.spin = v
	b.mark(world.DirtyAngularVelocity)
}

func (b *Body) BodyType() uint32 {
	return uint32(b.kind)
}

func (b *Body) SetBodyType(t uint32) {
	b.kind = BodyType(t)
	b.mark(world.DirtyBodyType)
}

func (b *Body) Bools() event.Bools {
	return b.bools
}

func (b *Body) SetBools(v event.Bools) {
	b.bools = v
	b.mark(world.DirtyBools)
}

func (b *Body) Floats() event.Floats {
	return b.floats
}

func (b *Body) SetFloats(v event.Floats) {
	b.floats = v
	b.mark(world.DirtyFloats)
}

func (b *Body) Shared() bool {
	return b.shared
}

func (b *Body) SetShared(v bool) {
	b.shared = v
}

func (b *Body) Dirty() world.Dirty {
	return b.dirty
}

func (b *Body) ClearDirty() {
	b.dirty = world.Clean
}

func (b *Body) String() string {
	return fmt.Sprintf("Body(%v, %v)", b.kind, b.Position())
}

func (b *Body) mark(d world.Dirty) {
	if b.shared {
		b.dirty |= d
	}
}

func (b *Body) move(x, y float64) {
	b.obj.X, b.obj.Y = x, y
	if b.obj.Space != nil {
		b.obj.Update()
	}
}
