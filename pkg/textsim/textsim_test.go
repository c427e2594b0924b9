package textsim

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRatioIdentical(t *testing.T) {
	assert.Equal(t, 1.0, Ratio("a person at the desk", "a person at the desk"))
}

func TestRatioCaseAndWhitespaceInsensitive(t *testing.T) {
	assert.Equal(t, 1.0, Ratio("A Person  at the desk", "a person at the desk "))
}

func TestRatioDisjoint(t *testing.T) {
	assert.Equal(t, 0.0, Ratio("red car outside", "empty kitchen table"))
}

func TestRatioEmpty(t *testing.T) {
	assert.Equal(t, 1.0, Ratio("", ""))
	assert.Equal(t, 0.0, Ratio("something", ""))
	assert.Equal(t, 0.0, Ratio("", "something"))
}

func TestRatioNearDuplicate(t *testing.T) {
	a := "a person is sitting at the desk typing on a laptop"
	b := "a person is sitting at the desk typing on a keyboard"
	r := Ratio(a, b)
	assert.Greater(t, r, 0.9)
	assert.Less(t, r, 1.0)
}

func TestRatioPartialOverlap(t *testing.T) {
	a := "a person walked into the room"
	b := "the room is now empty"
	r := Ratio(a, b)
	assert.Greater(t, r, 0.0)
	assert.Less(t, r, 0.9)
}
