package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestModePreambleFallsBackForUnknownKey(t *testing.T) {
	assert.Equal(t, modePreambles["basic"], ModePreamble("no-such-mode"))
	assert.Equal(t, modePreambles["expert"], ModePreamble("expert"))
	assert.Equal(t, modePreambles["alpha"], ModePreamble("alpha"))
}

func TestOrientationPreambleUnknownKeyIsEmpty(t *testing.T) {
	assert.Empty(t, OrientationPreamble("unknown"))
	assert.NotEmpty(t, OrientationPreamble("hetero"))
	assert.NotEmpty(t, OrientationPreamble("aseks"))
}

func TestBuildSystemPreamble(t *testing.T) {
	withFraming := BuildSystemPreamble("expert", "bi")
	assert.Contains(t, withFraming, modePreambles["expert"])
	assert.Contains(t, withFraming, orientationPreambles["bi"])

	withoutFraming := BuildSystemPreamble("basic", "")
	assert.Equal(t, modePreambles["basic"], withoutFraming)

	// Unknown keys never error, they fall back.
	fallback := BuildSystemPreamble("???", "???")
	assert.Equal(t, modePreambles["basic"], fallback)
}
