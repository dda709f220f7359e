package common

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestContext_SubClosesWithParent(t *testing.T) {
	ctx := NewContext(NewEmptyConfig())
	sub := ctx.Sub("Child(%v)", 1)

	assert.False(t, sub.Control().IsClosed())
	assert.Nil(t, ctx.Close())

	select {
	case <-sub.Control().Closed():
	case <-time.After(time.Second):
		assert.Fail(t, "child was not closed")
	}
}

func TestControl_DeferRunsInReverse(t *testing.T) {
	ctrl := NewControl(nil)

	order := make([]int, 0, 2)
	ctrl.Defer(func(error) { order = append(order, 1) })
	ctrl.Defer(func(error) { order = append(order, 2) })
	ctrl.Close()

	assert.Equal(t, []int{2, 1}, order)
}

func TestControl_DeferAfterClose(t *testing.T) {
	ctrl := NewControl(nil)
	cause := errors.New("boom")
	ctrl.Fail(cause)

	var seen error
	ctrl.Defer(func(e error) { seen = e })
	assert.Equal(t, cause, seen)
	assert.Equal(t, cause, ctrl.Failure())
}

func TestControl_FailOnlyOnce(t *testing.T) {
	ctrl := NewControl(nil)

	calls := 0
	ctrl.Defer(func(error) { calls++ })
	ctrl.Close()
	ctrl.Fail(errors.New("late"))

	assert.Equal(t, 1, calls)
	assert.Nil(t, ctrl.Failure())
}

func TestConfig_Defaults(t *testing.T) {
	conf := NewConfig(map[string]interface{}{
		"int":      10,
		"str":      "val",
		"bool":     true,
		"duration": 250,
	})

	assert.Equal(t, 10, conf.OptionalInt("int", 0))
	assert.Equal(t, 5, conf.OptionalInt("missing", 5))
	assert.Equal(t, "val", conf.Optional("str", ""))
	assert.True(t, conf.OptionalBool("bool", false))
	assert.Equal(t, 250*time.Millisecond, conf.OptionalDuration("duration", time.Second))
	assert.Equal(t, time.Second, conf.OptionalDuration("missing", time.Second))
}

func TestConfig_WrongTypePanics(t *testing.T) {
	conf := NewConfig(map[string]interface{}{"int": true})
	assert.Panics(t, func() {
		conf.OptionalInt("int", 0)
	})
}

func TestAssert(t *testing.T) {
	assert.NotPanics(t, func() { Assert(true, "never") })
	assert.Panics(t, func() { Assert(false, "fails: %v", 1) })
}
