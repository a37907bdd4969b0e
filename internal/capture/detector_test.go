package capture

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSilenceDetector(t *testing.T) {
	t.Parallel()

	d := newSilenceDetector(1, 6)
	quiet := []int16{0, 1, -1}
	loud := []int16{0, 2, 0}

	assert.False(t, d.observe(quiet))
	assert.True(t, d.observe(quiet), "window reached")
	assert.False(t, d.observe(quiet), "fires once per stretch")
	assert.False(t, d.observe(loud))
	assert.False(t, d.observe(quiet))
	assert.True(t, d.observe(quiet), "re-armed after a loud frame")

	d.reset()
	assert.False(t, d.observe(quiet))
}

func TestSilenceDetector_Extremes(t *testing.T) {
	t.Parallel()

	d := newSilenceDetector(0, 1)
	assert.False(t, d.observe([]int16{-32768}))
	assert.False(t, d.observe([]int16{32767}))
	assert.True(t, d.observe([]int16{0}))
}
