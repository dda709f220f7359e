package control

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/pkopriv2/lockstep/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrame_RoundTrip(t *testing.T) {
	data := Frame{Kind: 3, Tick: 0x0102030405060708, Payload: []byte{9}}.Serialize()
	assert.Equal(t, []byte{3, 1, 2, 3, 4, 5, 6, 7, 8, 9}, data)

	frame, err := ParseFrame(data)
	require.Nil(t, err)
	assert.Equal(t, uint8(3), frame.Kind)
	assert.Equal(t, uint64(0x0102030405060708), frame.Tick)
	assert.Equal(t, []byte{9}, frame.Payload)
}

func TestFrame_Short(t *testing.T) {
	_, err := ParseFrame(make([]byte, 8))
	assert.Equal(t, MalformedFrameError, errors.Cause(err))

	frame, err := ParseFrame(make([]byte, 9))
	assert.Nil(t, err)
	assert.Empty(t, frame.Payload)
}

func TestRegistry_Attach(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, uint8(0), r.Attach(func() event.Event { return &event.GameStateEvent{} }))
	assert.Equal(t, uint8(1), r.Attach(func() event.Event { return event.NewPhysSync() }))
	assert.Equal(t, uint8(0), r.Attach(func() event.Event { return &event.GameStateEvent{} }))
	assert.Equal(t, 2, r.Len())

	kind, ok := r.Kind(event.NewGameStart())
	assert.True(t, ok)
	assert.Equal(t, uint8(0), kind)

	_, ok = r.Kind(event.NewDeletion(1))
	assert.False(t, ok)
}

func TestRegistry_WrapUnwrap(t *testing.T) {
	r := NewRegistry()
	r.Attach(func() event.Event { return &event.GameStateEvent{} })
	r.Attach(func() event.Event { return &event.PhysObstEvent{} })

	data, err := r.Wrap(event.NewPosition(5, event.Vec2{X: 1, Y: 2}), 12)
	require.Nil(t, err)
	assert.Equal(t, uint8(1), data[0])

	e, tick, err := r.Unwrap(data)
	require.Nil(t, err)
	assert.Equal(t, uint64(12), tick)
	assert.Equal(t, event.NewPosition(5, event.Vec2{X: 1, Y: 2}), e)
}

func TestRegistry_Unattached(t *testing.T) {
	r := NewRegistry()
	r.Attach(func() event.Event { return &event.GameStateEvent{} })

	_, err := r.Wrap(event.NewPhysSync(), 0)
	assert.Equal(t, UnknownEventError, errors.Cause(err))

	_, _, err = r.Unwrap(Frame{Kind: 1}.Serialize())
	assert.Equal(t, UnknownEventError, errors.Cause(err))
}

func TestRegistry_BadPayload(t *testing.T) {
	r := NewRegistry()
	r.Attach(func() event.Event { return &event.GameStateEvent{} })

	_, _, err := r.Unwrap(Frame{Kind: 0, Payload: []byte{7}}.Serialize())
	assert.Equal(t, event.UnknownTypeError, errors.Cause(err))

	_, _, err = r.Unwrap(Frame{Kind: 0}.Serialize())
	assert.Equal(t, event.TruncatedError, errors.Cause(err))
}
