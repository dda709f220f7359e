package scribe

import (
	"fmt"
	"reflect"
)

// This package implements a very simple, "map-like" message format over
// json.  Signaling messages exchanged with the lobby are loosely typed
// and extensible; the lobby may add fields at will and devices ignore
// what they do not understand.  Consumers populate a message with a
// Writer and inspect it with a Reader, without having to declare the
// complete structure of every message at compile time.
//
// ```
//  msg := scribe.Build(func(w scribe.Writer) {
//     w.WriteString("type", "lobby")
//     w.WriteInt("maxPlayers", 4)
//  })
// ```

// To be returned when a requested field does not exist.
type MissingFieldError struct {
	field string
}

func (m *MissingFieldError) Error() string {
	return fmt.Sprintf("Missing field [%v].", m.field)
}

// To be returned when a field holds a value of another type.
type IncompatibleTypeError struct {
	expected string
	actual   string
}

func NewIncompatibleTypeError(e interface{}, a interface{}) *IncompatibleTypeError {
	return &IncompatibleTypeError{reflect.TypeOf(e).String(), reflect.TypeOf(a).String()}
}

func (m *IncompatibleTypeError) Error() string {
	return fmt.Sprintf("Incompatible types. Expected [%v]; Actual [%v]", m.expected, m.actual)
}

// Returned when an unknown type is encountered.
type UnsupportedTypeError struct {
	actual string
}

func NewUnsupportedTypeError(e interface{}) *UnsupportedTypeError {
	return &UnsupportedTypeError{reflect.TypeOf(e).String()}
}

func (u *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("Unsupported type: %v", u.actual)
}

// Any writable object may be embedded in a message.
type Writable interface {
	Write(Writer)
}

// The primary encoding interface. Consumers use the writer to populate
// the fields of a message
type Writer interface {
	WriteBool(field string, val bool)
	WriteString(field string, val string)
	WriteStrings(field string, val []string)
	WriteInt(field string, val int)
	WriteMessage(field string, val Writable)
}

// The primary decoding interface. Consumers use the reader to populate
// the fields of an object.
type Reader interface {
	ReadBool(field string, val *bool) error
	ReadString(field string, val *string) error
	ReadStrings(field string, val *[]string) error
	ReadInt(field string, val *int) error
	ReadMessage(field string, val *Message) error
}

// An immutable data object.
type Message interface {
	Reader
	Writable

	// Returns a copy of the message with the given fields overwritten.
	Merge(fn func(w Writer)) Message

	// Returns the json encoding of the message.
	Bytes() []byte
}
