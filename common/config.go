package common

import (
	"fmt"
	"strconv"
	"time"
)

// The goal of this package is to move configuration to a mostly runtime
// consideration.  Missing keys fall back to the supplied defaults, but a
// key holding a value of the wrong type panics.  Misconfiguration should
// terminate the program as soon as possible.
//
// Durations are stored as plain integers and interpreted as milliseconds.
type ConfigType string

const (
	Bool     ConfigType = "bool"
	Int      ConfigType = "int"
	Str      ConfigType = "string"
	Duration ConfigType = "int(milliseconds)"
)

type ConfigMissingError struct {
	key string
}

func (c ConfigMissingError) Error() string {
	return fmt.Sprintf("Config is missing key [%s]", c.key)
}

type ConfigParsingError struct {
	expected ConfigType
	key      string
	val      interface{}
}

func (c ConfigParsingError) Error() string {
	return fmt.Sprintf("Error parsing config key [%s].  Expected type [%s], which can't be converted from [%v]", c.key, c.expected, c.val)
}

type Config interface {
	Optional(key string, def string) string
	OptionalInt(key string, def int) int
	OptionalBool(key string, def bool) bool
	OptionalDuration(key string, def time.Duration) time.Duration
}

func NewEmptyConfig() Config {
	return NewConfig(nil)
}

func NewConfig(internal map[string]interface{}) Config {
	if internal == nil {
		internal = make(map[string]interface{})
	}

	return &config{internal}
}

type config struct {
	internal map[string]interface{}
}

func (c *config) Optional(key string, def string) string {
	val, err := readString(c.internal, key)
	return orDefault(err, val, def).(string)
}

func (c *config) OptionalInt(key string, def int) int {
	val, err := readInt(c.internal, key)
	return orDefault(err, val, def).(int)
}

func (c *config) OptionalBool(key string, def bool) bool {
	val, err := readBool(c.internal, key)
	return orDefault(err, val, def).(bool)
}

func (c *config) OptionalDuration(key string, def time.Duration) time.Duration {
	val, err := readInt(c.internal, key)
	if err != nil {
		if _, ok := err.(ConfigParsingError); ok {
			panic(ConfigParsingError{Duration, key, c.internal[key]})
		}
		return def
	}

	return time.Duration(val) * time.Millisecond
}

func orDefault(err error, val interface{}, def interface{}) interface{} {
	if err == nil {
		return val
	}

	switch err.(type) {
	case ConfigMissingError:
		return def
	}

	panic(err)
}

func readString(m map[string]interface{}, key string) (string, error) {
	val, ok := m[key]
	if !ok {
		return "", ConfigMissingError{key}
	}

	ret, ok := val.(string)
	if !ok {
		return "", ConfigParsingError{Str, key, val}
	}

	return ret, nil
}

func readInt(m map[string]interface{}, key string) (int, error) {
	val, ok := m[key]
	if !ok {
		return 0, ConfigMissingError{key}
	}

	switch ret := val.(type) {
	case int:
		return ret, nil
	case string:
		if i, err := strconv.Atoi(ret); err == nil {
			return i, nil
		}
	}

	return 0, ConfigParsingError{Int, key, val}
}

func readBool(m map[string]interface{}, key string) (bool, error) {
	val, ok := m[key]
	if !ok {
		return false, ConfigMissingError{key}
	}

	ret, ok := val.(bool)
	if !ok {
		return false, ConfigParsingError{Bool, key, val}
	}

	return ret, nil
}
