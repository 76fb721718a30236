package miner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/example/gnode/core/types"
	"github.com/example/gnode/pow"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestTrivialMineFindsNonceQuickly(t *testing.T) {
	candidate := &types.Block{
		Header: types.BlockHeader{
			Version:     1,
			Height:      1,
			Difficulty:  0x20ffffff, // exponent near the top of the compact range: target spans nearly the full 256-bit space, so a hit is all but certain within a handful of nonces
			Timestamp:   1700000000,
			TrxTrieRoot: types.MerkleRoot(nil),
		},
	}
	h := &Handle{}
	result := Mine(h, candidate, 0)

	require.True(t, result.Success)
	require.NotNil(t, result.Block)
	target := pow.Target(candidate.Header.Difficulty)
	hash := result.Block.Header.Hash()
	require.True(t, pow.HashMeetsTarget(hexLower(hash[:]), target))
	require.Equal(t, uint64(result.Difficulty), result.Block.Header.TotalDifficulty)
}

func TestCancellationStopsQuickly(t *testing.T) {
	candidate := &types.Block{
		Header: types.BlockHeader{
			Version:     1,
			Height:      1,
			Difficulty:  0x01010000, // low exponent: target is astronomically small, mining never completes in the test window
			Timestamp:   1700000000,
			TrxTrieRoot: types.MerkleRoot(nil),
		},
	}
	h := &Handle{}
	done := make(chan MineResult, 1)
	go func() {
		done <- Mine(h, candidate, 0)
	}()

	time.Sleep(10 * time.Millisecond)
	h.Stop()

	select {
	case result := <-done:
		require.False(t, result.Success)
	case <-time.After(50 * time.Millisecond):
		t.Fatal("mine did not stop within 50ms of Stop()")
	}
}

func TestSkipIsANoOpWhenNotMining(t *testing.T) {
	h := &Handle{}
	h.Skip() // must not panic
}
