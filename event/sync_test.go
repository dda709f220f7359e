package event

import (
	"encoding/binary"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

type body struct {
	pos, vel    Vec2
	angle, spin float32
}

func (b body) Position() Vec2           { return b.pos }
func (b body) Velocity() Vec2           { return b.vel }
func (b body) Angle() float32           { return b.angle }
func (b body) AngularVelocity() float32 { return b.spin }

func TestPhysSync_Empty(t *testing.T) {
	data := NewPhysSync().Serialize()
	assert.Equal(t, make([]byte, 8), data)

	out := NewPhysSync()
	out.Add(Snapshot{ID: 1})
	assert.Nil(t, out.Deserialize(data))
	assert.Equal(t, 0, out.Len())
}

func TestPhysSync_RoundTrip(t *testing.T) {
	in := NewPhysSync()
	assert.True(t, in.AddObstacle(1, body{Vec2{1, 2}, Vec2{3, 4}, 5, 6}))
	assert.True(t, in.Add(Snapshot{ID: 0xFFFFFFFFFFFFFFFF, X: -1}))

	data := in.Serialize()
	assert.Equal(t, 8+2*snapshotSize, len(data))

	out := NewPhysSync()
	assert.Nil(t, out.Deserialize(data))
	assert.Equal(t, in.Snapshots(), out.Snapshots())
	assert.Equal(t, Snapshot{1, 1, 2, 3, 4, 5, 6}, out.Snapshots()[0])
	assert.True(t, out.Contains(0xFFFFFFFFFFFFFFFF))
}

func TestPhysSync_Dedup(t *testing.T) {
	in := NewPhysSync()
	assert.True(t, in.AddObstacle(7, body{pos: Vec2{1, 1}}))
	assert.False(t, in.AddObstacle(7, body{pos: Vec2{2, 2}}))

	data := in.Serialize()
	assert.Equal(t, uint64(1), binary.BigEndian.Uint64(data[:8]))
	assert.Equal(t, float32(1), in.Snapshots()[0].X)
}

func TestPhysSync_ZeroValue(t *testing.T) {
	var e PhysSyncEvent
	assert.True(t, e.Add(Snapshot{ID: 1}))
	assert.False(t, e.Add(Snapshot{ID: 1}))
}

func TestPhysSync_Truncated(t *testing.T) {
	in := NewPhysSync()
	in.Add(Snapshot{ID: 1})
	in.Add(Snapshot{ID: 2})
	data := in.Serialize()

	out := NewPhysSync()
	out.Add(Snapshot{ID: 3})
	for i := 0; i < len(data); i++ {
		err := out.Deserialize(data[:i])
		assert.Equal(t, TruncatedError, errors.Cause(err), "length %v", i)
		assert.Equal(t, 1, out.Len())
		assert.True(t, out.Contains(3))
	}
}

func TestPhysSync_HugeCount(t *testing.T) {
	data := make([]byte, 8)
	binary.BigEndian.PutUint64(data, 1<<62)

	out := NewPhysSync()
	err := out.Deserialize(data)
	assert.Equal(t, TruncatedError, errors.Cause(err))
}
