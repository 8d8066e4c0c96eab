package netconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test AllocateSlot hands out distinct slots to concurrent callers, within
// the 0-253 range.
func TestAllocateSlotDistinct(t *testing.T) {
	slotA, releaseA, err := AllocateSlot(1000)
	require.NoError(t, err)
	defer releaseA()

	slotB, releaseB, err := AllocateSlot(2000)
	require.NoError(t, err)
	defer releaseB()

	assert.NotEqual(t, slotA, slotB)
	assert.GreaterOrEqual(t, slotA, 0)
	assert.LessOrEqual(t, slotA, 253)
}

// Test AllocateSlot reuses a slot once it has been released.
func TestAllocateSlotReuse(t *testing.T) {
	slot, release, err := AllocateSlot(42)
	require.NoError(t, err)
	release()

	again, release2, err := AllocateSlot(42)
	require.NoError(t, err)
	defer release2()

	assert.Equal(t, slot, again)
}
