package physics

import (
	"github.com/kvartborg/vector"
	"github.com/pkopriv2/lockstep/common"
	"github.com/pkopriv2/lockstep/event"
	"github.com/pkopriv2/lockstep/world"
	"github.com/solarlune/resolv"
)

// The default cell size of the collision grid.
const DefaultCellSize = 16

// A kinematic simulation over a resolv space.  Dynamic bodies fall
// under gravity and are stopped by bodies tagged solid.  Kinematic
// bodies move at their velocity and ignore collisions.  Static bodies
// never move.
//
// A space is not safe for concurrent use.
type Space struct {
	space     *resolv.Space
	gravity   event.Vec2
	bodies    []*Body
	joints    []*Joint
	destroyed func(world.Joint)
}

func NewSpace(width, height, cell int) *Space {
	return &Space{space: resolv.NewSpace(width, height, cell, cell)}
}

func (s *Space) Gravity() event.Vec2 {
	return s.gravity
}

func (s *Space) SetGravity(g event.Vec2) {
	s.gravity = g
}

func (s *Space) Bodies() []*Body {
	return append([]*Body(nil), s.bodies...)
}

func (s *Space) NumJoints() int {
	return len(s.joints)
}

func (s *Space) Activate(o world.Obstacle) {
	b := mustBody(o)
	for _, cur := range s.bodies {
		common.Assert(cur != b, "Body already active")
	}

	s.space.Add(b.obj)
	s.bodies = append(s.bodies, b)
}

// Removes the body and destroys every joint attached to it.
func (s *Space) Deactivate(o world.Obstacle) {
	b := mustBody(o)
	for i, cur := range s.bodies {
		if cur == b {
			s.bodies = append(s.bodies[:i], s.bodies[i+1:]...)
			s.space.Remove(b.obj)
			break
		}
	}

	kept := s.joints[:0]
	var gone []*Joint
	for _, j := range s.joints {
		if j.attached(b) {
			gone = append(gone, j)
			continue
		}
		kept = append(kept, j)
	}
	s.joints = kept

	if s.destroyed == nil {
		return
	}
	for _, j := range gone {
		s.destroyed(j)
	}
}

func (s *Space) ActivateJoint(j world.Joint) {
	jnt, ok := j.(*Joint)
	common.Assert(ok, "Unsupported joint [%T]", j)
	s.joints = append(s.joints, jnt)
}

// Removes the joint.  The destruction hook is not invoked.
func (s *Space) DeactivateJoint(j world.Joint) {
	for i, cur := range s.joints {
		if world.Joint(cur) == j {
			s.joints = append(s.joints[:i], s.joints[i+1:]...)
			return
		}
	}
}

func (s *Space) OnJointDestroyed(fn func(world.Joint)) {
	s.destroyed = fn
}

// Advances every body by dt seconds.
func (s *Space) Step(dt float32) {
	for _, b := range s.bodies {
		if !b.bools.Enabled || b.kind == Static {
			continue
		}

		if b.kind == Dynamic {
			s.accelerate(b, dt)
		}

		dx, dy := float64(b.vel.X*dt), float64(b.vel.Y*dt)
		switch {
		case b.kind == Dynamic && !b.bools.Sensor:
			s.slide(b, dx, dy)
		case dx != 0 || dy != 0:
			b.move(b.obj.X+dx, b.obj.Y+dy)
		}
		if !b.bools.FixedRotation {
			b.angle += b.spin * dt
		}
	}

	for _, j := range s.joints {
		j.solve()
	}
}

func (s *Space) accelerate(b *Body, dt float32) {
	scale := b.floats.GravityScale
	b.vel.X += s.gravity.X * scale * dt
	b.vel.Y += s.gravity.Y * scale * dt

	if d := b.floats.LinearDamping; d > 0 {
		b.vel.X /= 1 + dt*d
		b.vel.Y /= 1 + dt*d
	}
	if d := b.floats.AngularDamping; d > 0 {
		b.spin /= 1 + dt*d
	}
}

// Moves the body one axis at a time, stopping short of solid bodies.
func (s *Space) slide(b *Body, dx, dy float64) {
	if dx != 0 {
		if contact, ok := s.contact(b, dx, 0); ok {
			dx = contact.X()
			b.vel.X = 0
		}
		b.move(b.obj.X+dx, b.obj.Y)
	}

	if dy != 0 {
		if contact, ok := s.contact(b, 0, dy); ok {
			dy = contact.Y()
			b.vel.Y = 0
		}
		b.move(b.obj.X, b.obj.Y+dy)
	}
}

// Returns the offset to the nearest solid along the motion, if that
// solid would be reached.
func (s *Space) contact(b *Body, dx, dy float64) (vector.Vector, bool) {
	check := b.obj.Check(dx, dy, SolidTag)
	if check == nil {
		return nil, false
	}

	solids := check.ObjectsByTags(SolidTag)
	if len(solids) == 0 {
		return nil, false
	}

	contact := check.ContactWithObject(solids[0])
	reach := contact.X()*dx + contact.Y()*dy
	return contact, reach >= 0 && reach <= dx*dx+dy*dy
}

func mustBody(o world.Obstacle) *Body {
	b, ok := o.(*Body)
	common.Assert(ok, "Unsupported obstacle [%T]", o)
	return b
}
