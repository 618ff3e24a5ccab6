package errors

import (
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorBuilder(t *testing.T) {
	t.Parallel()

	base := stderrors.New("camera unreadable")
	ee := New(base).
		Component("videocore").
		Category(CategoryCapture).
		Context("device_id", "cam-0").
		Build()

	require.NotNil(t, ee)
	assert.Equal(t, "camera unreadable", ee.Error())
	assert.Equal(t, "videocore", ee.Component)
	assert.Equal(t, string(CategoryCapture), ee.GetCategory())
	assert.Equal(t, "cam-0", ee.GetContext()["device_id"])
	assert.True(t, Is(ee, base))
}

func TestErrorBuilderDefaults(t *testing.T) {
	t.Parallel()

	ee := Newf("something failed: %d", 42).Build()
	assert.Equal(t, ComponentUnknown, ee.Component)
	assert.Equal(t, CategoryGeneric, ee.Category)
	assert.False(t, ee.Timestamp.IsZero())
}

func TestEnhancedErrorIsMatchesCategory(t *testing.T) {
	t.Parallel()

	a := Newf("first").Category(CategoryTimeout).Build()
	b := Newf("second").Category(CategoryTimeout).Build()
	c := Newf("third").Category(CategoryDevice).Build()

	assert.True(t, stderrors.Is(a, b))
	assert.False(t, stderrors.Is(a, c))
}

func TestContextCopyIsIsolated(t *testing.T) {
	t.Parallel()

	ee := Newf("ctx").Context("k", "v").Build()
	got := ee.GetContext()
	got["k"] = "mutated"
	assert.Equal(t, "v", ee.GetContext()["k"])
}

func TestTimingContext(t *testing.T) {
	t.Parallel()

	ee := Newf("slow").Timing("detect", 1500*time.Millisecond).Build()
	ctx := ee.GetContext()
	assert.Equal(t, "detect", ctx["operation"])
	assert.Equal(t, int64(1500), ctx["duration_ms"])
}
