package scribe

import (
	"math"

	"github.com/pkg/errors"
)

var NullValueError = errors.New("Scribe:NullValue")

// A Value is one of the few shapes a lobby message may carry: booleans,
// strings, numbers, arrays and objects.  Anything else is rejected at
// parse time.
type Value interface {

	// Stores the value into ptr, failing if ptr has an incompatible type.
	AssignTo(ptr interface{}) error

	// Returns the plain go form used for json encoding.
	Dump() interface{}
}

type Bool bool

func (b Bool) AssignTo(raw interface{}) error {
	ptr, ok := raw.(*bool)
	if !ok {
		return NewIncompatibleTypeError(b, raw)
	}
	*ptr = bool(b)
	return nil
}

func (b Bool) Dump() interface{} {
	return bool(b)
}

type String string

func (s String) AssignTo(raw interface{}) error {
	ptr, ok := raw.(*string)
	if !ok {
		return NewIncompatibleTypeError(s, raw)
	}
	*ptr = string(s)
	return nil
}

func (s String) Dump() interface{} {
	return string(s)
}

// Json has a single numeric type, so integers are checked on the way
// out.
type Number float64

func (n Number) AssignTo(raw interface{}) error {
	switch ptr := raw.(type) {
	case *float64:
		*ptr = float64(n)
	case *int:
		if math.Trunc(float64(n)) != float64(n) {
			return errors.Errorf("Number [%v] is not an integer", float64(n))
		}
		*ptr = int(n)
	default:
		return NewIncompatibleTypeError(n, raw)
	}
	return nil
}

func (n Number) Dump() interface{} {
	return float64(n)
}

type Array []Value

func (a Array) AssignTo(raw interface{}) error {
	switch ptr := raw.(type) {
	case *[]string:
		ret := make([]string, len(a))
		for i, v := range a {
			if err := v.AssignTo(&ret[i]); err != nil {
				return errors.Wrapf(err, "Index [%v]", i)
			}
		}
		*ptr = ret
	case *[]Object:
		ret := make([]Object, len(a))
		for i, v := range a {
			if err := v.AssignTo(&ret[i]); err != nil {
				return errors.Wrapf(err, "Index [%v]", i)
			}
		}
		*ptr = ret
	default:
		return NewUnsupportedTypeError(raw)
	}
	return nil
}

func (a Array) Dump() interface{} {
	ret := make([]interface{}, 0, len(a))
	for _, v := range a {
		ret = append(ret, v.Dump())
	}
	return ret
}

// A set of named values.
type Object map[string]Value

func (o Object) AssignTo(raw interface{}) error {
	ptr, ok := raw.(*Object)
	if !ok {
		return NewUnsupportedTypeError(raw)
	}
	*ptr = o
	return nil
}

func (o Object) Read(field string, ptr interface{}) error {
	val, ok := o[field]
	if !ok {
		return &MissingFieldError{field}
	}
	return errors.Wrapf(val.AssignTo(ptr), "Field [%v]", field)
}

func (o Object) Copy() Object {
	ret := make(Object, len(o))
	for k, v := range o {
		ret[k] = v
	}
	return ret
}

func (o Object) Dump() interface{} {
	ret := make(map[string]interface{}, len(o))
	for k, v := range o {
		ret[k] = v.Dump()
	}
	return ret
}

func parseObject(raw map[string]interface{}) (Object, error) {
	ret := make(Object, len(raw))
	for k, v := range raw {
		val, err := parseValue(v)
		if err != nil {
			return nil, errors.Wrapf(err, "Field [%v]", k)
		}
		ret[k] = val
	}
	return ret, nil
}

// Converts decoded json back into values.
func parseValue(raw interface{}) (Value, error) {
	switch val := raw.(type) {
	case nil:
		return nil, NullValueError
	case bool:
		return Bool(val), nil
	case string:
		return String(val), nil
	case float64:
		return Number(val), nil
	case map[string]interface{}:
		return parseObject(val)
	case []interface{}:
		ret := make(Array, 0, len(val))
		for i, cur := range val {
			v, err := parseValue(cur)
			if err != nil {
				return nil, errors.Wrapf(err, "Index [%v]", i)
			}
			ret = append(ret, v)
		}
		return ret, nil
	default:
		return nil, NewUnsupportedTypeError(val)
	}
}
