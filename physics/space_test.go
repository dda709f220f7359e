package physics

import (
	"testing"

	"github.com/pkopriv2/lockstep/common"
	"github.com/pkopriv2/lockstep/event"
	"github.com/pkopriv2/lockstep/world"
	"github.com/stretchr/testify/assert"
)

const tick = float32(1.0 / 60)

func TestBody_Defaults(t *testing.T) {
	b := NewBody(Dynamic, 1, 2, 4, 4)
	assert.Equal(t, event.Vec2{X: 1, Y: 2}, b.Position())
	assert.Equal(t, event.Vec2{X: 4, Y: 4}, b.Size())
	assert.Equal(t, uint32(Dynamic), b.BodyType())
	assert.True(t, b.Bools().Enabled)
	assert.Equal(t, float32(1), b.Floats().GravityScale)
}

func TestBody_DirtyOnlyWhenShared(t *testing.T) {
	b := NewBody(Dynamic, 0, 0, 1, 1)
	b.SetPosition(event.Vec2{X: 1, Y: 1})
	assert.Equal(t, world.Clean, b.Dirty())

	b.SetShared(true)
	b.SetPosition(event.Vec2{X: 2, Y: 2})
	b.SetAngle(1)
	b.SetBools(event.Bools{Enabled: true})
	assert.Equal(t, world.DirtyPosition|world.DirtyAngle|world.DirtyBools, b.Dirty())

	b.ClearDirty()
	assert.Equal(t, world.Clean, b.Dirty())
}

func TestSpace_Kinematic(t *testing.T) {
	s := NewSpace(640, 480, DefaultCellSize)
	s.SetGravity(event.Vec2{Y: 100})

	b := NewBody(Kinematic, 10, 10, 4, 4)
	b.SetVelocity(event.Vec2{X: 60, Y: 0})
	b.SetAngularVelocity(6)
	s.Activate(b)

	s.Step(tick)
	assert.InDelta(t, 11, b.Position().X, 1e-4)
	assert.InDelta(t, 10, b.Position().Y, 1e-4)
	assert.InDelta(t, 0.1, b.Angle(), 1e-4)
}

func TestSpace_Static(t *testing.T) {
	s := NewSpace(640, 480, DefaultCellSize)
	s.SetGravity(event.Vec2{Y: 100})

	b := NewWall(10, 10, 4, 4)
	b.SetVelocity(event.Vec2{X: 60})
	s.Activate(b)

	s.Step(tick)
	assert.Equal(t, event.Vec2{X: 10, Y: 10}, b.Position())
}

func TestSpace_Disabled(t *testing.T) {
	s := NewSpace(640, 480, DefaultCellSize)

	b := NewBody(Dynamic, 10, 10, 4, 4)
	b.SetVelocity(event.Vec2{X: 60})
	b.SetBools(event.Bools{})
	s.Activate(b)

	s.Step(tick)
	assert.Equal(t, event.Vec2{X: 10, Y: 10}, b.Position())
}

func TestSpace_Gravity(t *testing.T) {
	s := NewSpace(640, 480, DefaultCellSize)
	s.SetGravity(event.Vec2{Y: 60})

	b := NewBody(Dynamic, 100, 100, 4, 4)
	s.Activate(b)

	s.Step(tick)
	assert.InDelta(t, 1, b.Velocity().Y, 1e-4)
	assert.True(t, b.Position().Y > 100)
	assert.Equal(t, float32(100), b.Position().X)
}

func TestSpace_StopsOnSolid(t *testing.T) {
	s := NewSpace(640, 480, DefaultCellSize)
	s.SetGravity(event.Vec2{Y: 600})

	floor := NewWall(0, 200, 640, 16)
	s.Activate(floor)

	b := NewBody(Dynamic, 100, 100, 16, 16)
	s.Activate(b)

	for i := 0; i < 600; i++ {
		s.Step(tick)
	}

	assert.True(t, b.Position().Y+16 <= 200.5, "body fell through floor: %v", b.Position())
	assert.True(t, b.Position().Y > 150, "body did not fall: %v", b.Position())
	assert.Equal(t, float32(0), b.Velocity().Y)
}

func TestSpace_Joint(t *testing.T) {
	s := NewSpace(640, 480, DefaultCellSize)

	anchor := NewBody(Static, 100, 100, 4, 4)
	bob := NewBody(Dynamic, 110, 100, 4, 4)
	s.Activate(anchor)
	s.Activate(bob)

	j := NewJoint(anchor, bob)
	s.ActivateJoint(j)
	assert.Equal(t, 10.0, j.Length())

	bob.SetVelocity(event.Vec2{X: 600})
	s.Step(tick)
	assert.InDelta(t, 110, bob.Position().X, 1e-3)
}

func TestSpace_DeactivateDestroysJoints(t *testing.T) {
	s := NewSpace(640, 480, DefaultCellSize)

	a, b, c := NewBody(Static, 0, 0, 1, 1), NewBody(Dynamic, 5, 0, 1, 1), NewBody(Dynamic, 10, 0, 1, 1)
	s.Activate(a)
	s.Activate(b)
	s.Activate(c)

	ab, bc := NewJoint(a, b), NewJoint(b, c)
	s.ActivateJoint(ab)
	s.ActivateJoint(bc)

	var destroyed []world.Joint
	s.OnJointDestroyed(func(j world.Joint) {
		destroyed = append(destroyed, j)
	})

	s.DeactivateJoint(bc)
	assert.Empty(t, destroyed)

	s.Deactivate(a)
	assert.Equal(t, []world.Joint{ab}, destroyed)
	assert.Equal(t, 0, s.NumJoints())
	assert.Equal(t, 2, len(s.Bodies()))
}

func TestSpace_WithNetWorld(t *testing.T) {
	ctx := common.NewContext(common.NewEmptyConfig())
	defer ctx.Close()

	s := NewSpace(640, 480, DefaultCellSize)
	w := world.NewNetWorldWithUUID(ctx, s, world.Rect{Width: 640, Height: 480}, "device")

	a, b := NewBody(Dynamic, 10, 10, 4, 4), NewBody(Dynamic, 20, 10, 4, 4)
	w.InitObstacle(a)
	w.InitObstacle(b)
	jid := w.PlaceJoint(NewJoint(a, b))

	var destroyed int
	w.OnJointDestroyed(func(world.Joint) { destroyed++ })

	w.MarkRemoved(a)
	w.Update(tick)
	assert.Equal(t, 1, destroyed)
	assert.Equal(t, 1, w.NumObstacles())

	_, ok := w.Joint(jid)
	assert.False(t, ok)
}

func TestSpace_UnsupportedObstacle(t *testing.T) {
	s := NewSpace(640, 480, DefaultCellSize)
	assert.Panics(t, func() {
		s.Activate(nil)
	})
}
