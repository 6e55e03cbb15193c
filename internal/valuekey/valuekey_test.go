package valuekey

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncoderDenseFirstSeen(t *testing.T) {
	e := NewEncoder()
	assert.Equal(t, Key(1), e.Encode("a"))
	assert.Equal(t, Key(2), e.Encode("b"))
	assert.Equal(t, Key(1), e.Encode("a"))
	assert.Equal(t, 2, e.Distinct())
}

func TestCombineDeterministic(t *testing.T) {
	a, b := Key(1), Key(2)
	assert.Equal(t, Combine(a, b), Combine(a, b))
}

func TestCombineOrderSensitive(t *testing.T) {
	a, b := Key(1), Key(2)
	// Concatenation-based combination must not be order-independent: this
	// is what avoids the XOR-style collision spec §9 warns about.
	assert.NotEqual(t, Combine(a, b), Combine(b, a))
}

func TestCombineDistinctInputsDistinctOutputsUsually(t *testing.T) {
	seen := map[Key]bool{}
	collisions := 0
	for i := Key(0); i < 2000; i++ {
		k := Combine(i, i*7+1)
		if seen[k] {
			collisions++
		}
		seen[k] = true
	}
	// A 64-bit digest over 2000 inputs should not collide in practice;
	// this guards against a degenerate (e.g. truncating) combine function.
	assert.Zero(t, collisions)
}
