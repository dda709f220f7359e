package control

import (
	"reflect"

	"github.com/pkg/errors"
	"github.com/pkopriv2/lockstep/common"
	"github.com/pkopriv2/lockstep/event"
)

var (
	MalformedFrameError = errors.New("Control:MalformedFrame")
	UnknownEventError   = errors.New("Control:UnknownEvent")
)

// The size of the kind and tick header.
const frameHeader = 1 + 8

// A framed event: the kind index assigned by the registry, the game
// tick at which the event was sent, and the serialized event.
type Frame struct {
	Kind    uint8
	Tick    uint64
	Payload []byte
}

func (f Frame) Serialize() []byte {
	enc := event.NewEncoder()
	enc.PutUint8(f.Kind)
	enc.PutUint64(f.Tick)
	enc.PutRaw(f.Payload)
	return enc.Bytes()
}

func ParseFrame(data []byte) (Frame, error) {
	if len(data) < frameHeader {
		return Frame{}, errors.Wrapf(MalformedFrameError, "Frame of [%v] bytes", len(data))
	}

	dec := event.NewDecoder(data)
	return Frame{Kind: dec.ReadUint8(), Tick: dec.ReadUint64(), Payload: dec.ReadRest()}, dec.Err()
}

// Builds an empty event of a single kind.
type Factory func() event.Event

// The registry maps event kinds to the single byte index that prefixes
// them on the wire.  Every device in a session must attach the same
// kinds in the same order.
type Registry struct {
	factories []Factory
	kinds     map[reflect.Type]uint8
}

func NewRegistry() *Registry {
	return &Registry{kinds: make(map[reflect.Type]uint8)}
}

// Attaches the kind built by fn and returns its index.  Attaching a kind
// twice returns the original index.
func (r *Registry) Attach(fn Factory) uint8 {
	typ := reflect.TypeOf(fn())
	if kind, ok := r.kinds[typ]; ok {
		return kind
	}

	common.Assert(len(r.factories) < 256, "Too many event kinds")
	kind := uint8(len(r.factories))
	r.factories = append(r.factories, fn)
	r.kinds[typ] = kind
	return kind
}

func (r *Registry) Kind(e event.Event) (uint8, bool) {
	kind, ok := r.kinds[reflect.TypeOf(e)]
	return kind, ok
}

func (r *Registry) Len() int {
	return len(r.factories)
}

func (r *Registry) Wrap(e event.Event, tick uint64) ([]byte, error) {
	kind, ok := r.Kind(e)
	if !ok {
		return nil, errors.Wrapf(UnknownEventError, "Unattached event [%T]", e)
	}
	return Frame{Kind: kind, Tick: tick, Payload: e.Serialize()}.Serialize(), nil
}

// Parses a frame and the event within it.
func (r *Registry) Unwrap(data []byte) (event.Event, uint64, error) {
	frame, err := ParseFrame(data)
	if err != nil {
		return nil, 0, err
	}

	if int(frame.Kind) >= len(r.factories) {
		return nil, 0, errors.Wrapf(UnknownEventError, "Kind [%v]", frame.Kind)
	}

	e := r.factories[frame.Kind]()
	if err := e.Deserialize(frame.Payload); err != nil {
		return nil, 0, errors.Wrapf(err, "Kind [%v]", frame.Kind)
	}
	return e, frame.Tick, nil
}
