package mask

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndex_AssignsInFirstSeenOrder(t *testing.T) {
	x := NewIndex("state", "InitialS")

	m1, err := x.Add("S1")
	require.NoError(t, err)
	m2, err := x.Add("S2")
	require.NoError(t, err)
	again, err := x.Add("S1")
	require.NoError(t, err)

	assert.Equal(t, uint64(1), m1)
	assert.Equal(t, uint64(2), m2)
	assert.Equal(t, m1, again, "re-adding a name keeps its mask")
	assert.Equal(t, 2, x.Len())
	assert.Equal(t, uint64(3), x.Full())
}

func TestIndex_ZeroName(t *testing.T) {
	x := NewIndex("transition", "InitialT")

	m, err := x.Add("InitialT")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), m)
	assert.Equal(t, 0, x.Len())

	got, ok := x.Mask("InitialT")
	assert.True(t, ok)
	assert.Equal(t, uint64(0), got)
	assert.Equal(t, "InitialT", x.Name(0))
}

func TestIndex_NameLookup(t *testing.T) {
	x := NewIndex("transition", "")
	for _, n := range []string{"Ta", "Tb", "Tc"} {
		_, err := x.Add(n)
		require.NoError(t, err)
	}

	assert.Equal(t, "Tb", x.Name(2))
	assert.Equal(t, "", x.Name(3), "multi-bit mask has no single name")
	assert.Equal(t, "", x.Name(1<<10), "unassigned bit")
	assert.Equal(t, []string{"Ta", "Tc"}, x.Names(5))

	_, ok := x.Mask("Tz")
	assert.False(t, ok)
}

func TestIndex_TooLarge(t *testing.T) {
	x := NewIndex("state", "")
	for i := 0; i < Limit; i++ {
		_, err := x.Add(fmt.Sprintf("S%d", i))
		require.NoError(t, err)
	}

	_, err := x.Add("overflow")
	require.Error(t, err)

	var tooLarge *ModelTooLargeError
	require.ErrorAs(t, err, &tooLarge)
	assert.Equal(t, "state", tooLarge.Kind)
	assert.Equal(t, Limit+1, tooLarge.Count)
	assert.Contains(t, err.Error(), "too many states")
}

func TestIndex_CloneIsIndependent(t *testing.T) {
	x := NewIndex("state", "")
	_, _ = x.Add("S1")

	c := x.Clone()
	_, _ = c.Add("S2")

	assert.Equal(t, 1, x.Len())
	assert.Equal(t, 2, c.Len())
}

func TestEach_Ascending(t *testing.T) {
	var got []uint64
	Each(0b10110, func(bit uint64) { got = append(got, bit) })
	assert.Equal(t, []uint64{2, 4, 16}, got)

	Each(0, func(uint64) { t.Fatal("no bits expected") })
}

func TestBitHelpers(t *testing.T) {
	assert.Equal(t, 3, Count(0b1011))
	assert.Equal(t, 0, Position(0))
	assert.Equal(t, 1, Position(1))
	assert.Equal(t, 5, Position(16))
	assert.True(t, Contains(0b111, 0b101))
	assert.False(t, Contains(0b011, 0b101))
	assert.True(t, Contains(0b011, 0))
}

func TestSplitNames(t *testing.T) {
	assert.Nil(t, SplitNames(""))
	assert.Nil(t, SplitNames(" , "))
	assert.Equal(t, []string{"T1", "T2"}, SplitNames("T1, T2,"))
	assert.Equal(t, []string{"T1"}, SplitNames(" T1 "))
}
