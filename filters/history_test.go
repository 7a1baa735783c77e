package filters

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHistory_Spread(t *testing.T) {
	h := NewHistory(20)
	_, _, ok := h.Spread()
	assert.False(t, ok)

	for i := 0; i < 10; i++ {
		h.Push(float64(i))
	}
	assert.Equal(t, 10, h.Len())
	assert.False(t, h.Full())

	floor, peak, ok := h.Spread()
	assert.True(t, ok)
	assert.Equal(t, 1.0, floor)
	assert.Equal(t, 9.0, peak)
}

func TestHistory_Wraps(t *testing.T) {
	h := NewHistory(4)
	for i := 0; i < 6; i++ {
		h.Push(float64(i))
	}
	assert.True(t, h.Full())
	assert.Equal(t, 4, h.Len())

	floor, peak, _ := h.Spread()
	assert.Equal(t, 2.0, floor)
	assert.Equal(t, 5.0, peak)

	h.Reset()
	assert.Equal(t, 0, h.Len())
}

func TestHistory_Drifted(t *testing.T) {
	h := NewHistory(10)
	for i := 0; i < 10; i++ {
		h.Push(120)
	}
	assert.False(t, h.Drifted(100, 150))

	// 整个窗口都远高于 B
	for i := 0; i < 10; i++ {
		h.Push(200)
	}
	assert.True(t, h.Drifted(100, 150))

	// 整个窗口都远低于 A
	for i := 0; i < 10; i++ {
		h.Push(50)
	}
	assert.True(t, h.Drifted(100, 150))
	assert.True(t, h.Drifted(150, 100))
}

func TestHistory_NotFullNeverDrifts(t *testing.T) {
	h := NewHistory(10)
	h.Push(1000)
	assert.False(t, h.Drifted(100, 150))
}
