package pow

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompactRoundTrip(t *testing.T) {
	cases := []uint32{0x1d00ffff, 0x01010000, 0x04123456, 0x207fffff}
	for _, c := range cases {
		target := FromCompact(c)
		back := ToCompact(target)
		require.Equal(t, c, back, "compact value %08x did not round-trip", c)
	}
}

func TestVeryEasyDifficultyProducesLargeTarget(t *testing.T) {
	easy := Target(0x1d00ffff)
	hard := Target(0x01010000)
	require.True(t, easy.Gt(hard), "0x1d00ffff should be a far easier (larger target) difficulty than 0x01010000")
}

func TestHashMeetsTargetEasyDifficulty(t *testing.T) {
	target := Target(0x1d00ffff)
	require.True(t, HashMeetsTarget("00", target))
}

func TestHashMeetsTargetComparison(t *testing.T) {
	target := Target(0x1d00ffff)
	allFF := ""
	for i := 0; i < 64; i++ {
		allFF += "f"
	}
	require.False(t, HashMeetsTarget(allFF, target))
}

func TestCalculateNextDifficultyBounds(t *testing.T) {
	base := uint64(0x1d00ffff)

	// spacing under target: difficulty should tighten (harder == smaller target).
	harder := CalculateNextDifficulty(base, 1000, 1005)
	require.True(t, Target(harder).Lt(Target(base)))

	// spacing over target: difficulty should loosen (easier == larger target).
	easier := CalculateNextDifficulty(base, 1000, 2000)
	require.True(t, Target(easier).Gt(Target(base)))
}
