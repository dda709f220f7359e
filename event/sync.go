package event

import (
	"fmt"

	"github.com/pkg/errors"
)

// The wire size of a single snapshot: an id and six floats.
const snapshotSize = 8 + 6*4

// The kinematic state of one obstacle.
type Snapshot struct {
	ID         uint64
	X, Y       float32
	VX, VY     float32
	Angle      float32
	AngularVel float32
}

// The readable kinematic state of a simulated body.
type Kinematic interface {
	Position() Vec2
	Velocity() Vec2
	Angle() float32
	AngularVelocity() float32
}

// A batch of obstacle snapshots.  An obstacle appears at most once per
// event: later additions of an id already present are ignored.
type PhysSyncEvent struct {
	snapshots []Snapshot
	ids       map[uint64]struct{}
}

func NewPhysSync() *PhysSyncEvent {
	return &PhysSyncEvent{ids: make(map[uint64]struct{})}
}

// Adds a snapshot.  Returns false if the id was already present.
func (e *PhysSyncEvent) Add(s Snapshot) bool {
	if e.ids == nil {
		e.ids = make(map[uint64]struct{})
	}

	if _, ok := e.ids[s.ID]; ok {
		return false
	}

	e.ids[s.ID] = struct{}{}
	e.snapshots = append(e.snapshots, s)
	return true
}

// Adds a snapshot of the body's current state.
func (e *PhysSyncEvent) AddObstacle(id uint64, body Kinematic) bool {
	pos, vel := body.Position(), body.Velocity()
	return e.Add(Snapshot{
		ID:         id,
		X:          pos.X,
		Y:          pos.Y,
		VX:         vel.X,
		VY:         vel.Y,
		Angle:      body.Angle(),
		AngularVel: body.AngularVelocity(),
	})
}

func (e *PhysSyncEvent) Contains(id uint64) bool {
	_, ok := e.ids[id]
	return ok
}

// Returns the snapshots in insertion order.
func (e *PhysSyncEvent) Snapshots() []Snapshot {
	return append([]Snapshot(nil), e.snapshots...)
}

func (e *PhysSyncEvent) Len() int {
	return len(e.snapshots)
}

func (e *PhysSyncEvent) Serialize() []byte {
	enc := NewEncoder()
	enc.PutUint64(uint64(len(e.snapshots)))
	for _, s := range e.snapshots {
		enc.PutUint64(s.ID)
		enc.PutFloat32(s.X)
		enc.PutFloat32(s.Y)
		enc.PutFloat32(s.VX)
		enc.PutFloat32(s.VY)
		enc.PutFloat32(s.Angle)
		enc.PutFloat32(s.AngularVel)
	}
	return enc.Bytes()
}

// Replaces the contents of the event with the decoded snapshots.
func (e *PhysSyncEvent) Deserialize(data []byte) error {
	if len(data) < 8 {
		return errors.Wrapf(TruncatedError, "Sync event of [%v] bytes", len(data))
	}

	dec := NewDecoder(data)
	count := dec.ReadUint64()
	if count > uint64(dec.Remaining()/snapshotSize) {
		return errors.Wrapf(TruncatedError, "Sync event claims [%v] snapshots in [%v] bytes", count, len(data))
	}

	tmp := NewPhysSync()
	for i := uint64(0); i < count; i++ {
		tmp.Add(Snapshot{
			ID:         dec.ReadUint64(),
			X:          dec.ReadFloat32(),
			Y:          dec.ReadFloat32(),
			VX:         dec.ReadFloat32(),
			VY:         dec.ReadFloat32(),
			Angle:      dec.ReadFloat32(),
			AngularVel: dec.ReadFloat32(),
		})
	}

	if err := dec.Err(); err != nil {
		return errors.Wrap(err, "Decoding sync event")
	}

	*e = *tmp
	return nil
}

func (e *PhysSyncEvent) String() string {
	return fmt.Sprintf("PhysSync(%v)", len(e.snapshots))
}
