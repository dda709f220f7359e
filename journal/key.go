package journal

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"
	uuid "github.com/satori/go.uuid"
)

// A hierarchical bolt key.  Children share their parent's bytes as a
// prefix, so a cursor seeked to a parent visits its children in order.
type Key []byte

func (k Key) Child(child []byte) Key {
	ret := make([]byte, 0, len(k)+len(child))
	return Key(append(append(ret, k...), child...))
}

func (k Key) ChildUint64(child uint64) Key {
	return k.Child(Uint64Bytes(child))
}

func (k Key) ParentOf(other []byte) bool {
	return len(other) > len(k) && bytes.HasPrefix(other, k)
}

func (k Key) Raw() []byte {
	return []byte(k)
}

func UUID(id uuid.UUID) Key {
	return Key(id.Bytes())
}

func Uint64Bytes(val uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, val)
	return buf
}

func ParseUint64(val []byte) (uint64, error) {
	if len(val) != 8 {
		return 0, errors.Errorf("Expected 8 bytes. Got [%v]", len(val))
	}
	return binary.BigEndian.Uint64(val), nil
}
