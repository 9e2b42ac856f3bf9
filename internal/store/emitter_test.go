package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitter_IndependentSubscribers(t *testing.T) {
	e := NewEmitter[string, int]()
	var a, b []int
	unsubA := e.Subscribe("tick", func(v int) { a = append(a, v) })
	e.Subscribe("tick", func(v int) { b = append(b, v) })

	e.Emit("tick", 1)
	unsubA()
	unsubA()
	e.Emit("tick", 2)

	assert.Equal(t, []int{1}, a)
	assert.Equal(t, []int{1, 2}, b)
	assert.Equal(t, 1, e.ListenerCount("tick"))
}

func TestEmitter_ReentrantEmitIsQueuedFIFO(t *testing.T) {
	e := NewEmitter[string, string]()
	var got []string
	e.Subscribe("outer", func(v string) {
		got = append(got, "outer:"+v)
		e.Emit("inner", v)
		got = append(got, "outer-done:"+v)
	})
	e.Subscribe("inner", func(v string) { got = append(got, "inner:"+v) })

	e.Emit("outer", "x")

	assert.Equal(t, []string{"outer:x", "outer-done:x", "inner:x"}, got)
}

func TestEmitter_UnsubscribeDuringDelivery(t *testing.T) {
	e := NewEmitter[string, int]()
	var second int
	var unsubSecond func()
	e.Subscribe("tick", func(int) { unsubSecond() })
	unsubSecond = e.Subscribe("tick", func(int) { second++ })

	e.Emit("tick", 1)
	e.Emit("tick", 2)

	assert.Zero(t, second)
}

func TestEmitter_PanicReleasesDrainer(t *testing.T) {
	e := NewEmitter[string, int]()
	var calls int
	e.Subscribe("boom", func(int) { panic("handler failed") })
	e.Subscribe("ok", func(int) { calls++ })

	require.Panics(t, func() { e.Emit("boom", 1) })
	e.Emit("ok", 1)

	assert.Equal(t, 1, calls)
}
