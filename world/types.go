package world

import "github.com/pkopriv2/lockstep/event"

// An axis aligned rectangle.
type Rect struct {
	X, Y          float32
	Width, Height float32
}

func (r Rect) Contains(p event.Vec2) bool {
	return p.X >= r.X && p.X <= r.X+r.Width && p.Y >= r.Y && p.Y <= r.Y+r.Height
}

// An object in the simulation whose identity is shared across devices.
//
// Setters on a shared obstacle record the change as dirty so that it
// can be broadcast.  Setters invoked while the obstacle is not shared
// (as when applying a remote change) leave the dirty set alone.
type Obstacle interface {
	event.Kinematic

	SetPosition(event.Vec2)
	SetVelocity(event.Vec2)
	SetAngle(float32)
	SetAngularVelocity(float32)

	BodyType() uint32
	SetBodyType(uint32)

	Bools() event.Bools
	SetBools(event.Bools)

	Floats() event.Floats
	SetFloats(event.Floats)

	Shared() bool
	SetShared(bool)

	Dirty() Dirty
	ClearDirty()
}

// A constraint between two obstacles.
type Joint interface {
	A() Obstacle
	B() Obstacle
}

// The physics engine beneath a world.  Deactivating an obstacle must
// destroy every joint attached to it and report each one to the
// destruction hook.
type Simulation interface {
	Activate(Obstacle)
	Deactivate(Obstacle)
	ActivateJoint(Joint)
	DeactivateJoint(Joint)
	OnJointDestroyed(func(Joint))
	Step(dt float32)
}
