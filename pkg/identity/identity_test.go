package identity

import (
	"testing"

	"github.com/leapstack-labs/objsql/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type node struct {
	Name string
	Next *node
}

func TestRegistry_Assign(t *testing.T) {
	r := New(100)
	a, b := &node{Name: "a"}, &node{Name: "a"}

	idA, fresh, err := r.Assign(a)
	require.NoError(t, err)
	assert.True(t, fresh)
	assert.Equal(t, int64(100), idA)

	idB, fresh, err := r.Assign(b)
	require.NoError(t, err)
	assert.True(t, fresh, "equal content, different handle")
	assert.Equal(t, int64(101), idB)

	again, fresh, err := r.Assign(a)
	require.NoError(t, err)
	assert.False(t, fresh)
	assert.Equal(t, idA, again)

	id, ok := r.Lookup(b)
	assert.True(t, ok)
	assert.Equal(t, idB, id)

	assert.Equal(t, int64(100), r.First())
	assert.Equal(t, int64(101), r.Last())
	assert.Equal(t, 2, r.Len())
}

func TestRegistry_EmbeddedHandlesAreDistinct(t *testing.T) {
	type outer struct {
		Inner node
	}
	o := &outer{}
	r := New(1)

	idOuter, _, err := r.Assign(o)
	require.NoError(t, err)
	idInner, _, err := r.Assign(&o.Inner)
	require.NoError(t, err)
	assert.NotEqual(t, idOuter, idInner, "same address, different type")
}

func TestRegistry_RejectsNonPointers(t *testing.T) {
	r := New(0)
	tests := []struct {
		name string
		obj  any
	}{
		{"nil", nil},
		{"typed nil", (*node)(nil)},
		{"value", node{}},
		{"int", 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := r.Assign(tt.obj)
			require.Error(t, err)
			assert.ErrorIs(t, err, core.ErrInvalidMemberSpec)
			_, ok := r.Lookup(tt.obj)
			assert.False(t, ok)
		})
	}
	assert.Equal(t, int64(1), r.First(), "first id is at least 1")
}

func TestRegistry_Register(t *testing.T) {
	r := New(5)
	n := &node{Name: "x"}
	r.Register(7, n, nil)

	inst, _, ok := r.Instance(7)
	require.True(t, ok)
	assert.Same(t, n, inst)

	id, ok := r.Lookup(n)
	assert.True(t, ok)
	assert.Equal(t, int64(7), id)

	_, _, ok = r.Instance(8)
	assert.False(t, ok)
}

func TestIsNil(t *testing.T) {
	var n *node
	var iface any = n
	assert.True(t, IsNil(nil))
	assert.True(t, IsNil(iface))
	assert.False(t, IsNil(&node{}))
	assert.False(t, IsNil(3))
}
