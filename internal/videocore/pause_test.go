package videocore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPauseCoordinatorPerCameraIsolation(t *testing.T) {
	t.Parallel()

	p := NewPauseCoordinator()
	assert.False(t, p.IsPaused(0), "unknown camera defaults to running")

	p.SetPaused(0, true)
	assert.True(t, p.IsPaused(0))
	assert.False(t, p.IsPaused(1), "pausing one camera must not affect another")
	assert.False(t, p.IsPaused(2))

	p.SetPaused(0, false)
	assert.False(t, p.IsPaused(0))
}

func TestPauseCoordinatorPausedIndices(t *testing.T) {
	t.Parallel()

	p := NewPauseCoordinator()
	assert.Empty(t, p.PausedIndices())

	p.SetPaused(2, true)
	p.SetPaused(5, true)
	p.SetPaused(2, false)
	assert.Equal(t, []int{5}, p.PausedIndices())
}

func TestPauseCoordinatorRestore(t *testing.T) {
	t.Parallel()

	p := NewPauseCoordinator()
	p.SetPaused(0, true)

	p.Restore([]int{1, 3})
	assert.False(t, p.IsPaused(0), "restore replaces the previous set")
	assert.True(t, p.IsPaused(1))
	assert.True(t, p.IsPaused(3))

	p.Restore(nil)
	assert.Empty(t, p.PausedIndices())
}
