package scribe

import (
	"encoding/json"
	"strconv"

	"github.com/pkg/errors"
)

// The empty message
var EmptyMessage = newWriter().Build()

// Builds a message from the given builder func
func Build(fn func(w Writer)) Message {
	writer := newWriter()
	fn(writer)
	return writer.Build()
}

// Encodes the writable onto a message and returns it.
func Write(w Writable) Message {
	return Build(w.Write)
}

// Parses a message from its json encoding.  Only json objects are
// messages.
func Parse(data []byte) (Message, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "Error parsing message")
	}

	if raw == nil {
		return nil, errors.New("Scribe:NotAnObject")
	}

	obj, err := parseObject(raw)
	if err != nil {
		return nil, errors.Wrap(err, "Error parsing message")
	}

	return message(obj), nil
}

type writer Object

func newWriter() writer {
	return writer(make(map[string]Value))
}

func (w writer) WriteBool(field string, val bool) {
	w[field] = Bool(val)
}

func (w writer) WriteString(field string, val string) {
	w[field] = String(val)
}

func (w writer) WriteStrings(field string, val []string) {
	arr := make([]Value, 0, len(val))
	for _, v := range val {
		arr = append(arr, String(v))
	}
	w[field] = Array(arr)
}

func (w writer) WriteInt(field string, val int) {
	w[field] = Number(val)
}

func (w writer) WriteMessage(field string, val Writable) {
	w[field] = Object(Write(val).(message))
}

func (w writer) Build() Message {
	return message(Object(w).Copy())
}

type message Object

func (m message) ReadBool(field string, val *bool) error {
	return Object(m).Read(field, val)
}

func (m message) ReadString(field string, val *string) error {
	return Object(m).Read(field, val)
}

func (m message) ReadStrings(field string, val *[]string) error {
	return Object(m).Read(field, val)
}

// Integers may be encoded as json numbers or as decimal strings.
func (m message) ReadInt(field string, val *int) error {
	raw, ok := m[field]
	if !ok {
		return &MissingFieldError{field}
	}

	if str, ok := raw.(String); ok {
		i, err := strconv.Atoi(string(str))
		if err != nil {
			return errors.Wrapf(err, "Unable to convert [%v] to int", str)
		}

		*val = i
		return nil
	}

	return Object(m).Read(field, val)
}

func (m message) ReadMessage(field string, val *Message) error {
	var raw Object
	if err := Object(m).Read(field, &raw); err != nil {
		return err
	}

	*val = message(raw)
	return nil
}

func (m message) Write(w Writer) {
	raw := w.(writer)
	for k, v := range m {
		raw[k] = v
	}
}

func (m message) Merge(fn func(w Writer)) Message {
	w := newWriter()
	m.Write(w)
	fn(w)
	return w.Build()
}

func (m message) Bytes() []byte {
	bytes, err := json.Marshal(Object(m).Dump())
	if err != nil {
		panic(errors.Wrap(err, "Error encoding message"))
	}
	return bytes
}

func (m message) String() string {
	return string(m.Bytes())
}
