package channel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCombineOp(t *testing.T) {
	op, err := ParseCombineOp("Multiply")
	require.NoError(t, err)
	assert.Equal(t, Multiply, op)

	op, err = ParseCombineOp("")
	require.NoError(t, err)
	assert.Equal(t, Add, op)

	_, err = ParseCombineOp("max")
	assert.Error(t, err)
}

func TestCombineOpString(t *testing.T) {
	for _, op := range []CombineOp{Add, Multiply} {
		got, err := ParseCombineOp(op.String())
		require.NoError(t, err)
		assert.Equal(t, op, got)
	}
}
