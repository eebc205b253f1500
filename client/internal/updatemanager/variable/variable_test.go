package variable

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopy_GetSetUnset(t *testing.T) {
	v := NewCopy[string]("os_version", ModeSync)

	_, ok := v.Get()
	assert.False(t, ok, "new variable should be unset")

	v.Set("13315.60.12")
	value, ok := v.Get()
	require.True(t, ok)
	assert.Equal(t, "13315.60.12", value)

	v.Unset()
	value, ok = v.Get()
	assert.False(t, ok)
	assert.Empty(t, value)
}

func TestCopy_SubscribeIsOneShot(t *testing.T) {
	v := NewCopy[int]("counter", ModeAsync)

	var calls atomic.Int32
	unsubscribe := v.Subscribe(func() { calls.Add(1) })
	defer unsubscribe()

	v.Set(1)
	v.Set(2)

	assert.Equal(t, int32(1), calls.Load(), "subscription should fire only once")
	assert.Equal(t, uint64(2), v.Generation())
}

func TestCopy_Unsubscribe(t *testing.T) {
	v := NewCopy[int]("counter", ModeAsync)

	var calls atomic.Int32
	unsubscribe := v.Subscribe(func() { calls.Add(1) })
	unsubscribe()
	unsubscribe()

	v.Set(1)
	assert.Zero(t, calls.Load())
}

func TestCopy_UnsetOnlyNotifiesWhenSet(t *testing.T) {
	v := NewCopy[bool]("flag", ModeAsync)

	v.Unset()
	assert.Zero(t, v.Generation())

	v.Set(true)
	v.Unset()
	assert.Equal(t, uint64(2), v.Generation())
}

func TestCopy_CallbackMayResubscribe(t *testing.T) {
	v := NewCopy[int]("counter", ModeAsync)

	var calls atomic.Int32
	var cb func()
	cb = func() {
		calls.Add(1)
		v.Subscribe(cb)
	}
	v.Subscribe(cb)

	v.Set(1)
	v.Set(2)
	assert.Equal(t, int32(2), calls.Load())
}

func TestConstAndFunc(t *testing.T) {
	c := NewConst("official", true)
	value, ok := c.Get()
	assert.True(t, ok)
	assert.True(t, value)
	assert.Equal(t, ModeSync, c.Mode())

	n := 0
	f := NewFunc("ticks", time.Minute, func() (int, bool) {
		n++
		return n, true
	})
	first, _ := f.Get()
	second, _ := f.Get()
	assert.Equal(t, 1, first)
	assert.Equal(t, 2, second)
	assert.Equal(t, time.Minute, f.PollInterval())
}
