package navigation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompute_ThreeSteps(t *testing.T) {
	tests := []struct {
		current int
		want    State
	}{
		{1, State{CurrentStep: 1, TotalSteps: 3, CanGoNext: true, IsFirstStep: true, Progress: 33}},
		{2, State{CurrentStep: 2, TotalSteps: 3, CanGoNext: true, CanGoPrevious: true, Progress: 67}},
		{3, State{CurrentStep: 3, TotalSteps: 3, CanGoPrevious: true, IsLastStep: true, Progress: 100}},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Compute(tt.current, 3), "step %d", tt.current)
	}
}

func TestCompute_SingleStep(t *testing.T) {
	state := Compute(1, 1)

	assert.True(t, state.IsFirstStep)
	assert.True(t, state.IsLastStep)
	assert.False(t, state.CanGoNext)
	assert.False(t, state.CanGoPrevious)
	assert.Equal(t, 100, state.Progress)
}

func TestCompute_NoSteps(t *testing.T) {
	assert.Equal(t, State{CurrentStep: 1, TotalSteps: 0}, Compute(1, 0))
}

func TestProgress_Rounding(t *testing.T) {
	assert.Equal(t, 17, Progress(1, 6))
	assert.Equal(t, 50, Progress(3, 6))
	assert.Equal(t, 14, Progress(1, 7))
	assert.Equal(t, 29, Progress(2, 7))
	assert.Equal(t, 0, Progress(0, 3))
	assert.Equal(t, 100, Progress(5, 3))
}

func TestNextPrevious(t *testing.T) {
	next, ok := Next(1, 3)
	assert.True(t, ok)
	assert.Equal(t, 2, next)

	next, ok = Next(3, 3)
	assert.False(t, ok)
	assert.Equal(t, 3, next)

	prev, ok := Previous(2)
	assert.True(t, ok)
	assert.Equal(t, 1, prev)

	prev, ok = Previous(1)
	assert.False(t, ok)
	assert.Equal(t, 1, prev)
}

func TestInRange(t *testing.T) {
	assert.False(t, InRange(0, 3))
	assert.True(t, InRange(1, 3))
	assert.True(t, InRange(3, 3))
	assert.False(t, InRange(4, 3))
}
