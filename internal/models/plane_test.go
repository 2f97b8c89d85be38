package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlaneRange(t *testing.T) {
	p := NewPlane(3, 2)
	p.Set(0, 0, -2)
	p.Set(2, 1, 9)

	min, max := p.Range()
	assert.Equal(t, -2.0, min)
	assert.Equal(t, 9.0, max)
	assert.Equal(t, 9.0, p.At(2, 1))
}

func TestPlaneCloneIsDeep(t *testing.T) {
	p := NewPlane(2, 2)
	c := p.Clone()
	c.Set(1, 1, 5)
	assert.Zero(t, p.At(1, 1))
}

func TestMaxProjection(t *testing.T) {
	a := NewPlane(2, 1)
	b := NewPlane(2, 1)
	a.Set(0, 0, 4)
	b.Set(0, 0, 1)
	b.Set(1, 0, 7)

	proj, err := Stack{Planes: []Plane{a, b}}.MaxProjection()
	require.NoError(t, err)
	assert.Equal(t, []float64{4, 7}, proj.Data)
	assert.Zero(t, a.At(1, 0), "projection must not alias the first plane")
}

func TestMaxProjectionErrors(t *testing.T) {
	_, err := Stack{}.MaxProjection()
	assert.Error(t, err)

	_, err = Stack{Planes: []Plane{NewPlane(2, 2), NewPlane(3, 2)}}.MaxProjection()
	assert.Error(t, err)
}
