package event

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestEncoder_BigEndian(t *testing.T) {
	enc := NewEncoder()
	enc.PutUint8(1)
	enc.PutUint32(0x01020304)
	enc.PutUint64(0x05060708090A0B0C)
	enc.PutBool(true)
	assert.Nil(t, enc.Err())
	assert.Equal(t, []byte{1, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 1}, enc.Bytes())
}

func TestDecoder_Sticky(t *testing.T) {
	dec := NewDecoder([]byte{1, 2, 3})
	assert.Equal(t, uint32(0), dec.ReadUint32())
	assert.Equal(t, TruncatedError, errors.Cause(dec.Err()))

	// subsequent reads never succeed
	assert.Equal(t, uint8(0), dec.ReadUint8())
	assert.Equal(t, []byte{}, dec.ReadRest())
}

func TestDecoder_Rest(t *testing.T) {
	dec := NewDecoder([]byte{1, 2, 3})
	assert.Equal(t, uint8(1), dec.ReadUint8())
	assert.Equal(t, 2, dec.Remaining())
	assert.Equal(t, []byte{2, 3}, dec.ReadRest())
	assert.Equal(t, []byte{}, dec.ReadRest())
	assert.Nil(t, dec.Err())
}
