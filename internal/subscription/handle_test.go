package subscription

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHandle_ReleaseRunsOnce(t *testing.T) {
	var calls atomic.Int32
	h := New(func() { calls.Add(1) })

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.Release()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	assert.True(t, h.Released())
}

func TestHandle_NilAndNoop(t *testing.T) {
	var h *Handle
	assert.NotPanics(t, h.Release)
	assert.True(t, h.Released())

	n := Noop()
	assert.False(t, n.Released())
	n.Release()
	n.Release()
	assert.True(t, n.Released())
}

func TestJoin_ReleasesAllInOrder(t *testing.T) {
	var order []int
	a := New(func() { order = append(order, 1) })
	b := New(func() { order = append(order, 2) })

	j := Join(a, nil, b)
	j.Release()
	j.Release()

	assert.Equal(t, []int{1, 2}, order)
	assert.True(t, a.Released())
	assert.True(t, b.Released())
}

func TestJoin_SkipsAlreadyReleased(t *testing.T) {
	var calls int
	a := New(func() { calls++ })
	a.Release()

	Join(a).Release()
	assert.Equal(t, 1, calls)
}
