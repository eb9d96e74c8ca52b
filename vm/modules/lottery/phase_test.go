package lottery

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ddlab/luckchain/core"
)

func TestPhaseFromHeight(t *testing.T) {
	cases := []struct {
		height int64
		want   core.Phase
	}{
		{0, core.PhaseCommitment},
		{1, core.PhaseCommitment},
		{5999, core.PhaseCommitment},
		{6000, core.PhaseReveal},
		{8999, core.PhaseReveal},
		{9000, core.PhaseSettlement},
		{9999, core.PhaseSettlement},
		{10000, core.PhaseCommitment},
		{16000, core.PhaseReveal},
		{19000, core.PhaseSettlement},
		{29999, core.PhaseSettlement},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, PhaseFromHeight(c.height), "height %d", c.height)
	}
}

func TestCycleBoundaries(t *testing.T) {
	assert.True(t, IsCycleStart(0))
	assert.True(t, IsCycleStart(10000))
	assert.False(t, IsCycleStart(1))
	assert.False(t, IsCycleStart(9999))

	assert.Equal(t, int64(0), CycleOffset(10000))
	assert.Equal(t, int64(9999), CycleOffset(19999))
}

func TestRemainingBlocks(t *testing.T) {
	assert.Equal(t, int64(6000), RemainingBlocks(0))
	assert.Equal(t, int64(1), RemainingBlocks(5999))
	assert.Equal(t, int64(3000), RemainingBlocks(6000))
	assert.Equal(t, int64(1000), RemainingBlocks(9000))
	assert.Equal(t, int64(1), RemainingBlocks(9999))
	assert.Equal(t, int64(6000), RemainingBlocks(10000))
}

func TestCompatible(t *testing.T) {
	// A session opened during commitments lives through commit and reveal.
	assert.True(t, Compatible(core.PhaseCommitment, core.PhaseCommitment))
	assert.True(t, Compatible(core.PhaseCommitment, core.PhaseReveal))
	assert.False(t, Compatible(core.PhaseCommitment, core.PhaseSettlement))

	assert.True(t, Compatible(core.PhaseReveal, core.PhaseReveal))
	assert.True(t, Compatible(core.PhaseReveal, core.PhaseSettlement))
	assert.False(t, Compatible(core.PhaseReveal, core.PhaseCommitment))

	assert.True(t, Compatible(core.PhaseSettlement, core.PhaseSettlement))
	assert.False(t, Compatible(core.PhaseSettlement, core.PhaseCommitment))
	assert.False(t, Compatible(core.PhaseSettlement, core.PhaseReveal))
}

func TestInfoAt(t *testing.T) {
	info := InfoAt(16500)
	assert.Equal(t, core.PhaseReveal, info.Phase)
	assert.Equal(t, int64(16500), info.Height)
	assert.Equal(t, int64(6500), info.Offset)
	assert.Equal(t, int64(2500), info.Remaining)
}
