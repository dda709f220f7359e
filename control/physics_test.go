package control

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/pkopriv2/lockstep/event"
	"github.com/pkopriv2/lockstep/physics"
	"github.com/pkopriv2/lockstep/world"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const selfID = "self"

func newTestPhysics(t *testing.T, host bool) (*Physics, *world.NetWorld) {
	ctx := newTestContext(t)
	w := world.NewNetWorldWithUUID(ctx, physics.NewSpace(640, 480, physics.DefaultCellSize), world.Rect{Width: 640, Height: 480}, selfID)
	p := NewPhysics(ctx, w, selfID, host, nil)
	p.AttachFactory(boxFactory{})
	t.Cleanup(p.close)
	return p, w
}

func TestPhysics_AddShared_UnknownFactory(t *testing.T) {
	p, w := newTestPhysics(t, true)

	_, err := p.AddSharedObstacle(7, nil)
	assert.Equal(t, UnknownFactoryError, errors.Cause(err))
	assert.Equal(t, 0, w.NumObstacles())
	assert.Empty(t, p.Drain())
}

func TestPhysics_AddShared(t *testing.T) {
	p, w := newTestPhysics(t, false)
	w.SetShortUID(3)

	obj, err := p.AddSharedObstacle(0, boxParams(1, 2))
	require.Nil(t, err)
	assert.True(t, obj.Shared())
	assert.False(t, w.IsOwned(obj))

	out := p.Drain()
	require.Equal(t, 1, len(out))
	assert.Equal(t, event.NewCreation(0, 0x0000000300000000, boxParams(1, 2)), out[0])
	assert.Empty(t, p.Drain())
}

func TestPhysics_IgnoresSelf(t *testing.T) {
	p, w := newTestPhysics(t, false)

	p.ProcessObstacle(selfID, event.NewCreation(0, 5, boxParams(1, 1)))
	assert.Equal(t, 0, w.NumObstacles())

	p.ProcessObstacle("other", event.NewCreation(0, 5, boxParams(1, 1)))
	assert.Equal(t, 1, w.NumObstacles())

	obj, _ := w.Obstacle(5)
	sync := event.NewPhysSync()
	sync.Add(event.Snapshot{ID: 5, X: 100})
	p.ProcessSync(selfID, sync)
	assert.Empty(t, p.cache)
	assert.Equal(t, float32(1), obj.Position().X)
}

func TestPhysics_Creation_Rejected(t *testing.T) {
	p, w := newTestPhysics(t, false)
	p.AttachFactory(brokenFactory{})

	p.ProcessObstacle("other", event.NewCreation(9, 1, nil))
	p.ProcessObstacle("other", event.NewCreation(1, 2, nil))
	p.ProcessObstacle("other", event.NewCreation(0, 3, boxParams(1000, 1)))
	p.ProcessObstacle("other", event.NewCreation(0, 4, []byte{1}))
	assert.Equal(t, 0, w.NumObstacles())

	p.ProcessObstacle("other", event.NewCreation(0, 5, boxParams(1, 1)))
	p.ProcessObstacle("other", event.NewCreation(0, 5, boxParams(2, 2)))
	assert.Equal(t, 1, w.NumObstacles())
}

func TestPhysics_Creation_HostOwns(t *testing.T) {
	p, w := newTestPhysics(t, true)

	p.ProcessObstacle("other", event.NewCreation(0, 5, boxParams(1, 1)))
	obj, ok := w.Obstacle(5)
	require.True(t, ok)
	assert.True(t, w.IsOwned(obj))
	assert.True(t, obj.Shared())
}

func TestPhysics_Properties(t *testing.T) {
	p, w := newTestPhysics(t, false)
	p.ProcessObstacle("other", event.NewCreation(0, 5, boxParams(1, 1)))
	obj, _ := w.Obstacle(5)

	bools := event.Bools{Enabled: true, Bullet: true}
	floats := event.Floats{Density: 2, Mass: 3}
	p.ProcessObstacle("other", event.NewPosition(5, event.Vec2{X: 3, Y: 4}))
	p.ProcessObstacle("other", event.NewVelocity(5, event.Vec2{X: 5, Y: 6}))
	p.ProcessObstacle("other", event.NewAngle(5, 7))
	p.ProcessObstacle("other", event.NewAngularVelocity(5, 8))
	p.ProcessObstacle("other", event.NewBodyType(5, uint32(physics.Kinematic)))
	p.ProcessObstacle("other", event.NewBoolConsts(5, bools))
	p.ProcessObstacle("other", event.NewFloatConsts(5, floats))

	assert.Equal(t, event.Vec2{X: 3, Y: 4}, obj.Position())
	assert.Equal(t, event.Vec2{X: 5, Y: 6}, obj.Velocity())
	assert.Equal(t, float32(7), obj.Angle())
	assert.Equal(t, float32(8), obj.AngularVelocity())
	assert.Equal(t, uint32(physics.Kinematic), obj.BodyType())
	assert.Equal(t, bools, obj.Bools())
	assert.Equal(t, floats, obj.Floats())

	// remote changes are never echoed
	assert.True(t, obj.Shared())
	assert.Equal(t, world.Clean, obj.Dirty())
	p.PackObstacles()
	assert.Empty(t, p.Drain())

	// unknown obstacles are ignored
	p.ProcessObstacle("other", event.NewPosition(6, event.Vec2{}))
}

func TestPhysics_PackObstacles(t *testing.T) {
	p, w := newTestPhysics(t, true)

	obj, _ := p.AddSharedObstacle(0, boxParams(1, 1))
	id, _ := w.ObstacleID(obj)
	p.Drain()

	obj.SetVelocity(event.Vec2{X: 1})
	obj.SetPosition(event.Vec2{X: 2, Y: 2})
	obj.SetFloats(event.Floats{Mass: 1})
	p.PackObstacles()

	assert.Equal(t, []event.Event{
		event.NewPosition(id, event.Vec2{X: 2, Y: 2}),
		event.NewVelocity(id, event.Vec2{X: 1}),
		event.NewFloatConsts(id, event.Floats{Mass: 1}),
	}, p.Drain())
	assert.Equal(t, world.Clean, obj.Dirty())
}

func TestPhysics_Ownership(t *testing.T) {
	p, w := newTestPhysics(t, false)
	p.ProcessObstacle("other", event.NewCreation(0, 5, boxParams(1, 1)))
	obj, _ := w.Obstacle(5)

	assert.False(t, p.Acquire(physics.NewBody(physics.Dynamic, 1, 1, 1, 1), 1))
	require.True(t, p.Acquire(obj, 2))
	assert.Equal(t, []event.Event{event.NewOwnerAcquire(5, 2)}, p.Drain())

	p.UpdateSimulation()
	dur, _ := w.Ownership(obj)
	assert.Equal(t, uint64(1), dur)
	assert.Empty(t, p.Drain())

	p.UpdateSimulation()
	assert.False(t, w.IsOwned(obj))
	assert.Equal(t, []event.Event{event.NewOwnerRelease(5)}, p.Drain())

	// another device claims it
	p.Acquire(obj, 0)
	p.ProcessObstacle("other", event.NewOwnerAcquire(5, 10))
	assert.False(t, w.IsOwned(obj))
}

func TestPhysics_HostOwnership(t *testing.T) {
	p, w := newTestPhysics(t, true)
	p.ProcessObstacle("other", event.NewCreation(0, 5, boxParams(1, 1)))
	obj, _ := w.Obstacle(5)

	require.True(t, p.Acquire(obj, 2))
	dur, _ := w.Ownership(obj)
	assert.Equal(t, uint64(0), dur)
	assert.False(t, p.Release(obj))

	p.ProcessObstacle("other", event.NewOwnerAcquire(5, 2))
	assert.False(t, w.IsOwned(obj))
	p.ProcessObstacle("other", event.NewOwnerRelease(5))
	assert.True(t, w.IsOwned(obj))
}

func TestPhysics_Interpolation(t *testing.T) {
	p, w := newTestPhysics(t, false)
	p.ProcessObstacle("other", event.NewCreation(0, 5, boxParams(10, 10)))
	obj, _ := w.Obstacle(5)

	// ten units away: clamped to the maximum number of steps
	sync := event.NewPhysSync()
	sync.Add(event.Snapshot{ID: 5, X: 20, Y: 10, VX: 3})
	p.ProcessSync("other", sync)
	require.Equal(t, maxSteps, p.cache[obj].steps)

	p.UpdateSimulation()
	assert.InDelta(t, 10+10.0/30, obj.Position().X, 1e-4)
	assert.InDelta(t, 3.0/30, obj.Velocity().X, 1e-4)
	assert.Equal(t, world.Clean, obj.Dirty())

	for i := 1; i < maxSteps; i++ {
		p.UpdateSimulation()
	}
	assert.InDelta(t, 20, obj.Position().X, 1e-3)
	assert.Equal(t, float32(3), obj.Velocity().X)
	assert.Empty(t, p.cache)
	assert.Equal(t, int64(1), p.Stats().Overrides.Count())
}

func TestPhysics_Interpolation_Small(t *testing.T) {
	p, w := newTestPhysics(t, false)
	p.ProcessObstacle("other", event.NewCreation(0, 5, boxParams(10, 10)))
	obj, _ := w.Obstacle(5)

	sync := event.NewPhysSync()
	sync.Add(event.Snapshot{ID: 5, X: 10.1, Y: 10, Angle: 0.5})
	sync.Add(event.Snapshot{ID: 99})
	p.ProcessSync("other", sync)

	// max(0.1 * 30, 10 * 0.5)
	require.Equal(t, 5, p.cache[obj].steps)
}

func TestPhysics_Interpolation_Replaced(t *testing.T) {
	p, w := newTestPhysics(t, false)
	p.ProcessObstacle("other", event.NewCreation(0, 5, boxParams(10, 10)))
	obj, _ := w.Obstacle(5)

	first := event.NewPhysSync()
	first.Add(event.Snapshot{ID: 5, X: 20, Y: 10, VX: 4, AngularVel: 2})
	p.ProcessSync("other", first)

	second := event.NewPhysSync()
	second.Add(event.Snapshot{ID: 5, X: 30, Y: 10})
	p.ProcessSync("other", second)

	// the velocities of the abandoned target are adopted
	assert.Equal(t, float32(4), obj.Velocity().X)
	assert.Equal(t, float32(2), obj.AngularVelocity())
	assert.Equal(t, float32(30), p.cache[obj].position.X)
	assert.Equal(t, world.Clean, obj.Dirty())
}

func TestPhysics_PackSync(t *testing.T) {
	p, w := newTestPhysics(t, false)

	owned, _ := p.AddSharedObstacle(0, boxParams(1, 1))
	p.Acquire(owned, 0)
	p.AddSharedObstacle(0, boxParams(2, 2))
	local := physics.NewBody(physics.Dynamic, 3, 3, 1, 1)
	w.PlaceObstacle(local)
	p.Drain()

	p.PackSync(FullSync)
	p.PackSync(OverrideFullSync)
	out := p.Drain()
	require.Equal(t, 2, len(out))
	assert.Equal(t, 1, out[0].(*event.PhysSyncEvent).Len())
	assert.Equal(t, 2, out[1].(*event.PhysSyncEvent).Len())
}

func TestPhysics_PrioritySync(t *testing.T) {
	p, w := newTestPhysics(t, true)

	for i := 0; i < 100; i++ {
		obj, err := p.AddSharedObstacle(0, boxParams(1, 1))
		require.Nil(t, err)
		obj.SetVelocity(event.Vec2{X: float32(i)})
	}
	p.Drain()

	p.PackSync(PrioritySync)
	out := p.Drain()
	require.Equal(t, 1, len(out))

	sync := out[0].(*event.PhysSyncEvent)
	assert.Equal(t, prioFastest+prioRoundRobin, sync.Len())

	// the fastest come first
	first := sync.Snapshots()[0]
	obj, _ := w.Obstacle(first.ID)
	assert.Equal(t, float32(99), obj.Velocity().X)
}

func TestPhysics_Remove(t *testing.T) {
	p, w := newTestPhysics(t, true)

	var unlinked []world.Obstacle
	p.OnUnlink(func(o world.Obstacle) { unlinked = append(unlinked, o) })

	p.ProcessObstacle("other", event.NewCreation(0, 5, boxParams(1, 1)))
	obj, _ := w.Obstacle(5)

	p.ProcessObstacle("other", event.NewDeletion(5))
	assert.Equal(t, 0, w.NumObstacles())
	assert.Equal(t, []world.Obstacle{obj}, unlinked)
	assert.False(t, p.RemoveSharedObstacle(obj))
}
