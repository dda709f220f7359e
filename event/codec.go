package event

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"

	"github.com/pkg/errors"
)

var (
	TruncatedError   = errors.New("Event:TruncatedError")
	UnknownTypeError = errors.New("Event:UnknownTypeError")
)

// An event is a unit of game traffic with a fixed binary layout.  All
// multi-byte values are big-endian.
//
// Deserialize never panics.  If the buffer is malformed, it returns an
// error and leaves the event untouched.
type Event interface {
	Serialize() []byte
	Deserialize(data []byte) error
}

// A fixed-width binary encoder.  Once an encoding error occurs, every
// subsequent write is a no-op.
type Encoder struct {
	buf *bytes.Buffer
	err error
}

func NewEncoder() *Encoder {
	return &Encoder{buf: &bytes.Buffer{}}
}

func (e *Encoder) PutUint8(val uint8) {
	if e.err != nil {
		return
	}
	e.err = e.buf.WriteByte(val)
}

func (e *Encoder) PutBool(val bool) {
	if val {
		e.PutUint8(1)
		return
	}
	e.PutUint8(0)
}

func (e *Encoder) PutUint32(val uint32) {
	if e.err != nil {
		return
	}
	e.err = binary.Write(e.buf, binary.BigEndian, val)
}

func (e *Encoder) PutUint64(val uint64) {
	if e.err != nil {
		return
	}
	e.err = binary.Write(e.buf, binary.BigEndian, val)
}

func (e *Encoder) PutFloat32(val float32) {
	e.PutUint32(math.Float32bits(val))
}

// Writes the raw bytes without a length prefix.
func (e *Encoder) PutRaw(val []byte) {
	if e.err != nil {
		return
	}
	_, e.err = e.buf.Write(val)
}

func (e *Encoder) Bytes() []byte {
	return e.buf.Bytes()
}

func (e *Encoder) Err() error {
	return e.err
}

// A fixed-width binary decoder.  Once a read fails, every subsequent
// read returns the zero value.
type Decoder struct {
	buf *bytes.Reader
	err error
}

func NewDecoder(data []byte) *Decoder {
	return &Decoder{buf: bytes.NewReader(data)}
}

func (d *Decoder) ReadUint8() (ret uint8) {
	if d.err != nil {
		return
	}

	ret, d.err = d.buf.ReadByte()
	if d.err != nil {
		d.err = errors.Wrap(TruncatedError, d.err.Error())
	}
	return
}

func (d *Decoder) ReadBool() bool {
	return d.ReadUint8() != 0
}

func (d *Decoder) ReadUint32() (ret uint32) {
	d.read(&ret)
	return
}

func (d *Decoder) ReadUint64() (ret uint64) {
	d.read(&ret)
	return
}

func (d *Decoder) ReadFloat32() float32 {
	return math.Float32frombits(d.ReadUint32())
}

// Reads every remaining byte.  The result is never nil.
func (d *Decoder) ReadRest() []byte {
	if d.err != nil {
		return []byte{}
	}

	ret := make([]byte, d.buf.Len())
	if _, err := io.ReadFull(d.buf, ret); err != nil {
		d.err = errors.Wrap(TruncatedError, err.Error())
	}
	return ret
}

// The number of unread bytes.
func (d *Decoder) Remaining() int {
	return d.buf.Len()
}

func (d *Decoder) Err() error {
	return d.err
}

func (d *Decoder) read(val interface{}) {
	if d.err != nil {
		return
	}

	if err := binary.Read(d.buf, binary.BigEndian, val); err != nil {
		d.err = errors.Wrap(TruncatedError, err.Error())
	}
}
