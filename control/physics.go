package control

import (
	"fmt"
	"math"
	"sort"

	"github.com/pkg/errors"
	"github.com/pkopriv2/lockstep/common"
	"github.com/pkopriv2/lockstep/event"
	"github.com/pkopriv2/lockstep/world"
	metrics "github.com/rcrowley/go-metrics"
)

var UnknownFactoryError = errors.New("Control:UnknownFactory")

const (
	// Bounds on the number of ticks spent converging on a synced state.
	minSteps = 1
	maxSteps = 30

	// Bounds on the priority sync.
	prioFastest    = 60
	prioRoundRobin = 20
)

// How much of the world a sync event covers.
type SyncType int

const (
	// Every shared obstacle this device owns.
	FullSync SyncType = iota

	// Every shared obstacle, owned or not.
	OverrideFullSync

	// The fastest shared obstacles, plus a rotating slice of the rest.
	PrioritySync
)

// Builds obstacles from the packed parameters of a creation event.
type ObstacleFactory interface {
	Create(params []byte) (world.Obstacle, error)
}

// Called for obstacles created by the network, so that the game may
// attach them to its scene.
type LinkFunc func(world.Obstacle)

// Interpolation statistics.
type PhysicsStats struct {
	registry       metrics.Registry
	Interpolations metrics.Counter
	Overrides      metrics.Counter
	Steps          metrics.Histogram
}

func newPhysicsStats(name string) *PhysicsStats {
	r := metrics.NewPrefixedChildRegistry(metrics.DefaultRegistry, name+".")
	return &PhysicsStats{
		registry:       r,
		Interpolations: metrics.NewRegisteredCounter("Interpolations", r),
		Overrides:      metrics.NewRegisteredCounter("Overrides", r),
		Steps:          metrics.NewRegisteredHistogram("Steps", r, metrics.NewUniformSample(1024)),
	}
}

func (s *PhysicsStats) unregister() {
	for _, name := range []string{"Interpolations", "Overrides", "Steps"} {
		s.registry.Unregister(name)
	}
}

// The state an obstacle is converging on.
type target struct {
	position   event.Vec2
	velocity   event.Vec2
	angle      float32
	angularVel float32
	step       int
	steps      int
}

// Physics keeps a NetWorld consistent across a room.  Local changes to
// shared obstacles become obstacle events.  Remote events are applied
// to the world, and remote snapshots are approached over several ticks
// rather than applied at once.
//
// Authority over an obstacle is an ownership record in the world.  The
// host owns every obstacle that no client has claimed.  Claims are
// last writer wins: a remote acquisition simply drops our claim.
type Physics struct {
	logger    common.Logger
	world     *world.NetWorld
	self      string
	isHost    bool
	factories []ObstacleFactory
	link      LinkFunc
	unlink    LinkFunc
	cache     map[world.Obstacle]*target
	out       []event.Event
	stats     *PhysicsStats
}

func newPhysics(ctx common.Context, w *world.NetWorld, self string, isHost bool, link LinkFunc) *Physics {
	return &Physics{
		logger: ctx.Logger().Fmt("Physics"),
		world:  w,
		self:   self,
		isHost: isHost,
		link:   link,
		cache:  make(map[world.Obstacle]*target),
		stats:  newPhysicsStats(fmt.Sprintf("control.physics.%v", self)),
	}
}

// Creates a physics link outside of a controller.  Events are read
// with Drain.
func NewPhysics(ctx common.Context, w *world.NetWorld, self string, isHost bool, link LinkFunc) *Physics {
	return newPhysics(ctx, w, self, isHost, link)
}

func (p *Physics) World() *world.NetWorld {
	return p.world
}

func (p *Physics) Stats() *PhysicsStats {
	return p.stats
}

// Registers a factory and returns its id.  Every device must attach the
// same factories in the same order.
func (p *Physics) AttachFactory(f ObstacleFactory) uint32 {
	p.factories = append(p.factories, f)
	return uint32(len(p.factories) - 1)
}

// Registers a hook invoked when the network deletes a linked obstacle.
func (p *Physics) OnUnlink(fn LinkFunc) {
	p.unlink = fn
}

// Creates an obstacle on every device.
func (p *Physics) AddSharedObstacle(factory uint32, params []byte) (world.Obstacle, error) {
	obj, err := p.create(factory, params)
	if err != nil {
		return nil, err
	}

	obj.SetShared(true)
	id := p.world.PlaceObstacle(obj)
	if p.isHost {
		p.world.Own(obj, 0)
	}
	if p.link != nil {
		p.link(obj)
	}

	p.out = append(p.out, event.NewCreation(factory, id, params))
	return obj, nil
}

// Removes an obstacle from every device.
func (p *Physics) RemoveSharedObstacle(obj world.Obstacle) bool {
	id, ok := p.world.ObstacleID(obj)
	if !ok {
		return false
	}

	p.out = append(p.out, event.NewDeletion(id))
	p.forget(obj)
	return true
}

// Claims authority over the obstacle for the given number of ticks.
// The host's claims never expire.
func (p *Physics) Acquire(obj world.Obstacle, duration uint64) bool {
	id, ok := p.world.ObstacleID(obj)
	if !ok {
		return false
	}

	if p.isHost {
		p.world.Own(obj, 0)
	} else {
		p.world.Own(obj, duration)
	}

	p.out = append(p.out, event.NewOwnerAcquire(id, duration))
	return true
}

// Gives authority over the obstacle back to the host.  The host cannot
// release.
func (p *Physics) Release(obj world.Obstacle) bool {
	if p.isHost {
		return false
	}

	id, ok := p.world.ObstacleID(obj)
	if !ok {
		return false
	}

	p.world.Disown(obj)
	p.out = append(p.out, event.NewOwnerRelease(id))
	return true
}

func (p *Physics) OwnAll() {
	for _, obj := range p.world.Obstacles() {
		p.world.Own(obj, 0)
	}
}

// Returns and clears the pending outbound events.
func (p *Physics) Drain() []event.Event {
	ret := p.out
	p.out = nil
	return ret
}

// Counts down timed ownership and advances every interpolation by one
// tick.
func (p *Physics) UpdateSimulation() {
	p.PackObstacles()

	for obj, left := range p.world.OwnedObstacles() {
		switch {
		case left == 1:
			p.Release(obj)
		case left > 1:
			p.world.Own(obj, left-1)
		}
	}

	for obj, t := range p.cache {
		if !obj.Shared() {
			delete(p.cache, obj)
			continue
		}

		left := t.steps - t.step
		p.unshared(obj, func() {
			if left <= 1 {
				obj.SetPosition(t.position)
				obj.SetVelocity(t.velocity)
				obj.SetAngle(t.angle)
				obj.SetAngularVelocity(t.angularVel)
				return
			}

			pos, vel := obj.Position(), obj.Velocity()
			obj.SetPosition(event.Vec2{
				X: interpolate(left, t.position.X, pos.X),
				Y: interpolate(left, t.position.Y, pos.Y),
			})
			obj.SetVelocity(event.Vec2{
				X: interpolate(left, t.velocity.X, vel.X),
				Y: interpolate(left, t.velocity.Y, vel.Y),
			})
			obj.SetAngle(interpolate(left, t.angle, obj.Angle()))
			obj.SetAngularVelocity(interpolate(left, t.angularVel, obj.AngularVelocity()))
		})

		if left <= 1 {
			delete(p.cache, obj)
			p.stats.Overrides.Inc(1)
			continue
		}
		t.step++
	}
}

// Applies an obstacle event from another device.
func (p *Physics) ProcessObstacle(source string, e *event.PhysObstEvent) {
	if source == p.self {
		return
	}

	if e.Type == event.Creation {
		p.materialize(e)
		return
	}

	obj, ok := p.world.Obstacle(e.ID)
	if !ok {
		p.logger.Debug("Dropping [%v]: unknown obstacle", e)
		return
	}

	if e.Type == event.Deletion {
		p.forget(obj)
		return
	}

	p.unshared(obj, func() {
		switch e.Type {
		case event.BodyType:
			obj.SetBodyType(e.Body)
		case event.Position:
			obj.SetPosition(e.Position)
		case event.Velocity:
			obj.SetVelocity(e.Velocity)
		case event.Angle:
			obj.SetAngle(e.Angle)
		case event.AngularVelocity:
			obj.SetAngularVelocity(e.AngularVel)
		case event.BoolConsts:
			obj.SetBools(e.Bools)
		case event.FloatConsts:
			obj.SetFloats(e.Floats)
		case event.OwnerAcquire:
			p.world.Disown(obj)
		case event.OwnerRelease:
			if p.isHost {
				p.world.Own(obj, 0)
			}
		}
	})
}

// Schedules every snapshot in the event as an interpolation target.
func (p *Physics) ProcessSync(source string, e *event.PhysSyncEvent) {
	if source == p.self {
		return
	}

	for _, s := range e.Snapshots() {
		obj, ok := p.world.Obstacle(s.ID)
		if !ok {
			continue
		}

		pos := obj.Position()
		diff := math.Hypot(float64(pos.X-s.X), float64(pos.Y-s.Y))
		angDiff := 10 * math.Abs(float64(obj.Angle()-s.Angle))

		steps := int(math.Max(diff*maxSteps, angDiff))
		if steps > maxSteps {
			steps = maxSteps
		}
		if steps < minSteps {
			steps = minSteps
		}

		p.track(obj, &target{
			position:   event.Vec2{X: s.X, Y: s.Y},
			velocity:   event.Vec2{X: s.VX, Y: s.VY},
			angle:      s.Angle,
			angularVel: s.AngularVel,
			steps:      steps,
		})
	}
}

// Queues a snapshot of the world.
func (p *Physics) PackSync(typ SyncType) {
	sync := event.NewPhysSync()

	switch typ {
	case FullSync:
		owned := p.world.OwnedObstacles()
		for _, obj := range p.world.Obstacles() {
			if _, ok := owned[obj]; ok && obj.Shared() {
				p.snapshot(sync, obj)
			}
		}
	case OverrideFullSync:
		for _, obj := range p.world.Obstacles() {
			if obj.Shared() {
				p.snapshot(sync, obj)
			}
		}
	case PrioritySync:
		shared := make([]world.Obstacle, 0, p.world.NumObstacles())
		for _, obj := range p.world.Obstacles() {
			if obj.Shared() {
				shared = append(shared, obj)
			}
		}

		sort.SliceStable(shared, func(i, j int) bool {
			return speed(shared[i]) > speed(shared[j])
		})

		for i := 0; i < len(shared) && i < prioFastest; i++ {
			p.snapshot(sync, shared[i])
		}
		for i := 0; i < len(shared) && i < prioRoundRobin; i++ {
			if obj, ok := p.world.NextObstacle(); ok {
				p.snapshot(sync, obj)
			}
		}
	}

	p.out = append(p.out, sync)
}

// Turns the dirty properties of every shared obstacle into events.
func (p *Physics) PackObstacles() {
	for _, obj := range p.world.Obstacles() {
		if !obj.Shared() {
			continue
		}

		dirty := obj.Dirty()
		if dirty == world.Clean {
			continue
		}

		id, _ := p.world.ObstacleID(obj)
		for _, flag := range dirty.Split() {
			switch flag {
			case world.DirtyPosition:
				p.out = append(p.out, event.NewPosition(id, obj.Position()))
			case world.DirtyAngle:
				p.out = append(p.out, event.NewAngle(id, obj.Angle()))
			case world.DirtyVelocity:
				p.out = append(p.out, event.NewVelocity(id, obj.Velocity()))
			case world.DirtyAngularVelocity:
				p.out = append(p.out, event.NewAngularVelocity(id, obj.AngularVelocity()))
			case world.DirtyBodyType:
				p.out = append(p.out, event.NewBodyType(id, obj.BodyType()))
			case world.DirtyBools:
				p.out = append(p.out, event.NewBoolConsts(id, obj.Bools()))
			case world.DirtyFloats:
				p.out = append(p.out, event.NewFloatConsts(id, obj.Floats()))
			}
		}
		obj.ClearDirty()
	}
}

// Drops every interpolation and pending event.
func (p *Physics) Reset() {
	p.cache = make(map[world.Obstacle]*target)
	p.out = nil
}

func (p *Physics) close() {
	p.Reset()
	p.stats.unregister()
}

func (p *Physics) create(factory uint32, params []byte) (world.Obstacle, error) {
	if int(factory) >= len(p.factories) {
		return nil, errors.Wrapf(UnknownFactoryError, "Factory [%v]", factory)
	}

	obj, err := p.factories[factory].Create(params)
	if err != nil {
		return nil, errors.Wrapf(err, "Factory [%v]", factory)
	}
	return obj, nil
}

func (p *Physics) materialize(e *event.PhysObstEvent) {
	if _, ok := p.world.Obstacle(e.ID); ok {
		p.logger.Debug("Dropping [%v]: duplicate id", e)
		return
	}

	obj, err := p.create(e.Factory, e.Params)
	if err != nil {
		p.logger.Error("Unable to create obstacle [%#x]: %v", e.ID, err)
		return
	}

	if !p.world.Bounds().Contains(obj.Position()) {
		p.logger.Error("Obstacle [%#x] out of bounds: %v", e.ID, obj.Position())
		return
	}

	obj.SetShared(true)
	p.world.ActivateObstacle(e.ID, obj)
	if p.link != nil {
		p.link(obj)
	}
	if p.isHost {
		p.world.Own(obj, 0)
	}
}

func (p *Physics) forget(obj world.Obstacle) {
	delete(p.cache, obj)
	p.world.RemoveObstacle(obj)
	if p.unlink != nil {
		p.unlink(obj)
	}
}

func (p *Physics) track(obj world.Obstacle, t *target) {
	if old, ok := p.cache[obj]; ok {
		p.unshared(obj, func() {
			obj.SetVelocity(old.velocity)
			obj.SetAngularVelocity(old.angularVel)
		})
	}

	p.cache[obj] = t
	p.stats.Interpolations.Inc(1)
	p.stats.Steps.Update(int64(t.steps))
}

func (p *Physics) snapshot(sync *event.PhysSyncEvent, obj world.Obstacle) {
	if id, ok := p.world.ObstacleID(obj); ok {
		sync.AddObstacle(id, obj)
	}
}

// Runs fn with the obstacle unshared, so that its changes are not
// rebroadcast.
func (p *Physics) unshared(obj world.Obstacle, fn func()) {
	shared := obj.Shared()
	obj.SetShared(false)
	defer obj.SetShared(shared)
	fn()
}

func interpolate(left int, target, source float32) float32 {
	return (target-source)/float32(left) + source
}

func speed(obj world.Obstacle) float64 {
	v := obj.Velocity()
	return math.Hypot(float64(v.X), float64(v.Y))
}
