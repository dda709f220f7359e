package world

import (
	"math"

	"github.com/cespare/xxhash/v2"
	"github.com/emirpasic/gods/maps/treemap"
	"github.com/emirpasic/gods/utils"
	"github.com/pkopriv2/lockstep/common"
	uuid "github.com/satori/go.uuid"
)

// The owner tag reserved for objects created before networking starts.
const InitTag uint32 = 0xFFFFFFFF

// Composes an object id from an owner tag and a counter.
func ID(tag uint32, seq uint32) uint64 {
	return uint64(tag)<<32 | uint64(seq)
}

// Returns the owner tag of an object id.
func Tag(id uint64) uint32 {
	return uint32(id >> 32)
}

// Derives the default short uid of a device from its uuid.
func ShortUID(id string) uint32 {
	return uint32(xxhash.Sum64String(id))
}

// A NetWorld assigns identifiers to the obstacles and joints of a
// simulation so that they may be referenced across devices, and tracks
// which obstacles this device is currently authoring.
//
// Ids are composed of a 32-bit owner tag and a 32-bit counter.  Objects
// created before networking use the reserved InitTag and are marked
// shared.  Objects created afterwards use the device's short uid.
//
// A NetWorld is not safe for concurrent use.  It is meant to be driven
// from the simulation's update loop.
type NetWorld struct {
	ctx    common.Context
	logger common.Logger
	sim    Simulation
	bounds Rect

	uuid     string
	shortUID uint32

	nextInitObj     uint32
	nextSharedObj   uint32
	nextInitJoint   uint32
	nextSharedJoint uint32

	// id -> Obstacle, ordered for the round robin cursor.
	obstacles   *treemap.Map
	obstacleIDs map[Obstacle]uint64
	joints      map[uint64]Joint
	jointIDs    map[Joint]uint64

	// obstacle -> remaining ticks of authorship (0 is indefinite)
	owned map[Obstacle]uint64

	removed       map[Obstacle]struct{}
	removedJoints map[Joint]struct{}

	cursor    uint64
	exhausted bool

	onJointDestroyed func(Joint)
}

// Creates a world with a freshly generated uuid.
func NewNetWorld(ctx common.Context, sim Simulation, bounds Rect) *NetWorld {
	return NewNetWorldWithUUID(ctx, sim, bounds, uuid.NewV4().String())
}

func NewNetWorldWithUUID(ctx common.Context, sim Simulation, bounds Rect, id string) *NetWorld {
	common.Assert(sim != nil, "A world requires a simulation")

	w := &NetWorld{
		sim:           sim,
		bounds:        bounds,
		uuid:          id,
		shortUID:      ShortUID(id),
		obstacles:     treemap.NewWith(utils.UInt64Comparator),
		obstacleIDs:   make(map[Obstacle]uint64),
		joints:        make(map[uint64]Joint),
		jointIDs:      make(map[Joint]uint64),
		owned:         make(map[Obstacle]uint64),
		removed:       make(map[Obstacle]struct{}),
		removedJoints: make(map[Joint]struct{}),
	}
	w.ctx = ctx.Sub("NetWorld(%v)", shortID(id))
	w.logger = w.ctx.Logger()
	sim.OnJointDestroyed(w.jointDestroyed)
	return w
}

func (w *NetWorld) UUID() string {
	return w.uuid
}

func (w *NetWorld) ShortUID() uint32 {
	return w.shortUID
}

// Overrides the owner tag of subsequently placed objects.  Sessions
// assign small, collision free uids to each device, which should be
// installed before any object is placed.
func (w *NetWorld) SetShortUID(uid uint32) {
	w.logger.Debug("Short uid [%#x] -> [%#x]", w.shortUID, uid)
	w.shortUID = uid
}

func (w *NetWorld) Bounds() Rect {
	return w.bounds
}

func (w *NetWorld) Simulation() Simulation {
	return w.sim
}

// Adds an obstacle present on every device at startup.  The obstacle is
// marked shared.
func (w *NetWorld) InitObstacle(obj Obstacle) uint64 {
	id := ID(InitTag, w.nextInitObj)
	w.nextInitObj++
	obj.SetShared(true)
	w.ActivateObstacle(id, obj)
	return id
}

// Adds an obstacle authored by this device.
func (w *NetWorld) PlaceObstacle(obj Obstacle) uint64 {
	id := ID(w.shortUID, w.nextSharedObj)
	w.nextSharedObj++
	w.ActivateObstacle(id, obj)
	return id
}

// Equivalent to PlaceObstacle.  The id may be recovered with ObstacleID.
func (w *NetWorld) AddObstacle(obj Obstacle) {
	w.PlaceObstacle(obj)
}

// Adds an obstacle under the given id.  This is the path taken by
// obstacles created on remote devices.
//
// Panics if the obstacle is out of bounds, or if either the id or the
// obstacle is already registered.
func (w *NetWorld) ActivateObstacle(id uint64, obj Obstacle) {
	common.Assert(obj != nil, "Cannot activate a nil obstacle")
	common.Assert(w.bounds.Contains(obj.Position()), "Obstacle [%#x] is not in bounds [%v]", id, obj.Position())
	_, dup := w.obstacles.Get(id)
	common.Assert(!dup, "Duplicate obstacle id [%#x]", id)
	_, active := w.obstacleIDs[obj]
	common.Assert(!active, "Obstacle already active")

	w.sim.Activate(obj)
	w.obstacles.Put(id, obj)
	w.obstacleIDs[obj] = id
	w.logger.Debug("Activated obstacle [%#x]", id)
}

// Immediately removes the obstacle, along with any joints attached to
// it.  Returns false if the obstacle was not in this world.
//
// Prefer MarkRemoved and GarbageCollect when removing many obstacles.
func (w *NetWorld) RemoveObstacle(obj Obstacle) bool {
	id, ok := w.obstacleIDs[obj]
	if !ok {
		return false
	}

	w.obstacles.Remove(id)
	delete(w.obstacleIDs, obj)
	delete(w.owned, obj)
	delete(w.removed, obj)
	w.sim.Deactivate(obj)
	w.logger.Debug("Removed obstacle [%#x]", id)
	return true
}

func (w *NetWorld) InitJoint(j Joint) uint64 {
	id := ID(InitTag, w.nextInitJoint)
	w.nextInitJoint++
	w.ActivateJoint(id, j)
	return id
}

func (w *NetWorld) PlaceJoint(j Joint) uint64 {
	id := ID(w.shortUID, w.nextSharedJoint)
	w.nextSharedJoint++
	w.ActivateJoint(id, j)
	return id
}

func (w *NetWorld) AddJoint(j Joint) {
	w.PlaceJoint(j)
}

// Adds a joint under the given id.  Both of its obstacles must already
// be in this world.
func (w *NetWorld) ActivateJoint(id uint64, j Joint) {
	common.Assert(j != nil, "Cannot activate a nil joint")
	_, okA := w.obstacleIDs[j.A()]
	common.Assert(okA, "Obstacle A of joint [%#x] not found in world", id)
	_, okB := w.obstacleIDs[j.B()]
	common.Assert(okB, "Obstacle B of joint [%#x] not found in world", id)
	_, dup := w.joints[id]
	common.Assert(!dup, "Duplicate joint id [%#x]", id)

	w.sim.ActivateJoint(j)
	w.joints[id] = j
	w.jointIDs[j] = id
	w.logger.Debug("Activated joint [%#x]", id)
}

// Immediately removes the joint.  Its obstacles are left in place.
func (w *NetWorld) RemoveJoint(j Joint) bool {
	if !w.forgetJoint(j) {
		return false
	}

	w.sim.DeactivateJoint(j)
	return true
}

func (w *NetWorld) Obstacle(id uint64) (Obstacle, bool) {
	val, ok := w.obstacles.Get(id)
	if !ok {
		return nil, false
	}
	return val.(Obstacle), true
}

func (w *NetWorld) ObstacleID(obj Obstacle) (uint64, bool) {
	id, ok := w.obstacleIDs[obj]
	return id, ok
}

func (w *NetWorld) Joint(id uint64) (Joint, bool) {
	j, ok := w.joints[id]
	return j, ok
}

func (w *NetWorld) JointID(j Joint) (uint64, bool) {
	id, ok := w.jointIDs[j]
	return id, ok
}

// Returns every obstacle, ordered by id.
func (w *NetWorld) Obstacles() []Obstacle {
	ret := make([]Obstacle, 0, w.obstacles.Size())
	for _, v := range w.obstacles.Values() {
		ret = append(ret, v.(Obstacle))
	}
	return ret
}

func (w *NetWorld) NumObstacles() int {
	return w.obstacles.Size()
}

func (w *NetWorld) NumJoints() int {
	return len(w.joints)
}

// Records this device as the author of the obstacle for the given
// number of ticks.  A duration of zero is indefinite.  Repeated calls
// overwrite the previous duration.
func (w *NetWorld) Own(obj Obstacle, duration uint64) {
	if _, ok := w.obstacleIDs[obj]; !ok {
		return
	}
	w.owned[obj] = duration
}

func (w *NetWorld) Disown(obj Obstacle) {
	delete(w.owned, obj)
}

func (w *NetWorld) IsOwned(obj Obstacle) bool {
	_, ok := w.owned[obj]
	return ok
}

// Returns the remaining duration of this device's authorship.
func (w *NetWorld) Ownership(obj Obstacle) (uint64, bool) {
	dur, ok := w.owned[obj]
	return dur, ok
}

// Returns a copy of the ownership table.
func (w *NetWorld) OwnedObstacles() map[Obstacle]uint64 {
	ret := make(map[Obstacle]uint64, len(w.owned))
	for k, v := range w.owned {
		ret[k] = v
	}
	return ret
}

// Flags the obstacle for removal on the next garbage collection.
func (w *NetWorld) MarkRemoved(obj Obstacle) {
	if _, ok := w.obstacleIDs[obj]; ok {
		w.removed[obj] = struct{}{}
	}
}

func (w *NetWorld) MarkJointRemoved(j Joint) {
	if _, ok := w.jointIDs[j]; ok {
		w.removedJoints[j] = struct{}{}
	}
}

func (w *NetWorld) IsRemoved(obj Obstacle) bool {
	_, ok := w.removed[obj]
	return ok
}

// Sweeps every marked joint and obstacle.  Joints go first so that
// their removal is not reported as a side effect of obstacle removal.
// Returns the number of objects swept.
func (w *NetWorld) GarbageCollect() int {
	num := 0
	for j := range w.removedJoints {
		if w.RemoveJoint(j) {
			num++
		}
	}
	w.removedJoints = make(map[Joint]struct{})

	marked := make([]Obstacle, 0, len(w.removed))
	for obj := range w.removed {
		marked = append(marked, obj)
	}
	for _, obj := range marked {
		if w.RemoveObstacle(obj) {
			num++
		}
	}
	w.removed = make(map[Obstacle]struct{})
	return num
}

// Advances the simulation and then sweeps marked objects.
func (w *NetWorld) Update(dt float32) {
	w.sim.Step(dt)
	w.GarbageCollect()
}

// Returns the next obstacle in a round robin over the world, ordered by
// id.  The cursor is an id rather than a position, so removals never
// invalidate it.  After the last obstacle the cursor wraps to the
// first.  Returns false only if the world is empty.
func (w *NetWorld) NextObstacle() (Obstacle, bool) {
	if w.obstacles.Empty() {
		return nil, false
	}

	var key, val interface{}
	if !w.exhausted {
		key, val = w.obstacles.Ceiling(w.cursor)
	}
	if key == nil {
		key, val = w.obstacles.Min()
	}

	id := key.(uint64)
	if id == math.MaxUint64 {
		w.cursor, w.exhausted = 0, true
	} else {
		w.cursor, w.exhausted = id+1, false
	}
	return val.(Obstacle), true
}

// Registers a hook invoked after a joint is destroyed as a side effect
// of removing one of its obstacles.  The world's own bookkeeping for
// the joint is cleared before the hook runs.
func (w *NetWorld) OnJointDestroyed(fn func(Joint)) {
	w.onJointDestroyed = fn
}

func (w *NetWorld) jointDestroyed(j Joint) {
	w.forgetJoint(j)
	if fn := w.onJointDestroyed; fn != nil {
		fn(j)
	}
}

func (w *NetWorld) forgetJoint(j Joint) bool {
	id, ok := w.jointIDs[j]
	if !ok {
		return false
	}

	delete(w.jointIDs, j)
	delete(w.joints, id)
	delete(w.removedJoints, j)
	w.logger.Debug("Removed joint [%#x]", id)
	return true
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
