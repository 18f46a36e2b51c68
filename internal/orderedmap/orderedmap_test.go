package orderedmap

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapKeepsInsertionOrder(t *testing.T) {
	m := New[string, int]()
	m.Set("left", 1)
	m.Set("right", 2)
	m.Set("disp", 3)
	m.Set("left", 10)

	if diff := cmp.Diff([]string{"left", "right", "disp"}, m.Keys()); diff != "" {
		t.Errorf("Reihenfolge falsch (-want +got):\n%s", diff)
	}

	v, ok := m.Get("left")
	require.True(t, ok)
	assert.Equal(t, 10, v)
	assert.Equal(t, 3, m.Len())
}

func TestMapDelete(t *testing.T) {
	m := New[string, int]()
	m.Set("a", 1)
	m.Set("b", 2)

	assert.True(t, m.Delete("a"))
	assert.False(t, m.Delete("a"))
	assert.Equal(t, []string{"b"}, m.Keys())
	assert.Equal(t, map[string]int{"b": 2}, m.ToMap())
}

func TestNilMap(t *testing.T) {
	var m *Map[string, int]
	_, ok := m.Get("x")
	assert.False(t, ok)
	assert.Zero(t, m.Len())
	assert.Empty(t, m.Keys())
}

func TestAllStopsEarly(t *testing.T) {
	m := New[int, int]()
	for i := range 5 {
		m.Set(i, i*i)
	}

	var seen []int
	for k := range m.All() {
		if k == 2 {
			break
		}
		seen = append(seen, k)
	}
	assert.Equal(t, []int{0, 1}, seen)
}
