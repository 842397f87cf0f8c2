package rendcache

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAccountant_AddSub(t *testing.T) {
	a := newAccountant(nil)
	a.add(100)
	require.Equal(t, uint64(100), a.get())
	a.sub(40)
	require.Equal(t, uint64(60), a.get())
}

func TestAccountant_SubNeverNegative(t *testing.T) {
	a := newAccountant(nil)
	a.add(10)
	a.sub(100)
	require.Equal(t, uint64(0), a.get())
}

func TestAccountant_AddSaturates(t *testing.T) {
	a := newAccountant(nil)
	a.add(math.MaxUint64)
	a.add(1)
	require.Equal(t, uint64(math.MaxUint64), a.get())
	require.True(t, a.warnedOverflow)
}

func TestAccountant_Reset(t *testing.T) {
	a := newAccountant(nil)
	a.add(500)
	a.reset()
	require.Equal(t, uint64(0), a.get())
}
