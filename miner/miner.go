// Package miner implements the header-nonce search loop: given a candidate
// block, it searches nonces in [0, 2^32) for one whose double-SHA256 header
// hash undercuts the difficulty target, returning either a sealed block or a
// cancellation.
//
// A process-wide boolean "is mining" flag would race across concurrent
// callers, so this package follows a singleton-miner design instead: Start
// returns an owned *Handle carrying its own cancellation token, and the
// at-most-one-mining-task invariant is enforced by the caller holding at
// most one live Handle rather than by shared mutable global state.
package miner

import (
	"sync/atomic"

	"github.com/example/gnode/core/types"
	"github.com/example/gnode/internal/gethlog"
	"github.com/example/gnode/pow"
)

var log = gethlog.New("miner")

// MineResult is the outcome of one mining attempt.
type MineResult struct {
	Success    bool
	Difficulty uint64
	Nonce      uint32
	Block      *types.Block
}

// Handle controls one in-flight mining attempt. At most one goroutine should
// ever be searching nonces for a given Handle; Stop and Skip are idempotent
// and safe to call from any goroutine.
type Handle struct {
	working atomic.Bool
	height  atomic.Uint64
}

// Height reports the height of the block this handle is mining, so callers
// (the manager) can decide whether an imported block should cancel it.
func (h *Handle) Height() uint64 { return h.height.Load() }

// Stop requests cancellation. A STOP request is idempotent.
func (h *Handle) Stop() {
	h.working.Store(false)
}

// Skip is an alias for Stop used when the caller wants to abandon the current
// attempt and immediately start another. A Skip request while not mining is
// a no-op, same as Stop.
func (h *Handle) Skip() {
	h.working.Store(false)
}

// Mine searches for a nonce over candidate, returning a MineResult.
// parentTotalDifficulty is the parent block's TotalDifficulty, used to
// populate the sealed block's TotalDifficulty on success (candidate itself
// carries TotalDifficulty=0, per generateNewBlock's contract). Between
// iterations Mine checks h's cancellation flag; once cleared by Stop/Skip it
// returns success=false immediately. Exhaustion of the full [0, 2^32) nonce
// space without a hit also returns success=false, with Nonce set to the last
// value tried -- the caller is expected to alter the block (refresh
// timestamp or transactions) and retry.
func Mine(h *Handle, candidate *types.Block, parentTotalDifficulty uint64) MineResult {
	h.height.Store(candidate.Header.Height)
	h.working.Store(true)

	target := pow.Target(candidate.Header.Difficulty)
	header := candidate.Header

	var nonce uint32
	for {
		if !h.working.Load() {
			return MineResult{Success: false, Difficulty: header.Difficulty, Nonce: nonce}
		}

		header.Nonce = nonce
		hash := header.Hash()
		if pow.HashMeetsTarget(hexLower(hash[:]), target) {
			if !h.working.Load() {
				// a cancel raced with the hit; honor the cancellation.
				return MineResult{Success: false, Difficulty: header.Difficulty, Nonce: nonce}
			}
			sealed := *candidate
			sealed.Header = header
			sealed.Header.TotalDifficulty = parentTotalDifficulty + header.Difficulty
			log.Info("mined block", "height", header.Height, "nonce", nonce, "difficulty", header.Difficulty)
			return MineResult{
				Success:    true,
				Difficulty: header.Difficulty,
				Nonce:      nonce,
				Block:      &sealed,
			}
		}

		if nonce == ^uint32(0) {
			log.Warn("nonce space exhausted without a hit", "height", header.Height)
			return MineResult{Success: false, Difficulty: header.Difficulty, Nonce: nonce}
		}
		nonce++
	}
}

func hexLower(b []byte) string {
	const hexdigits = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hexdigits[c>>4]
		out[i*2+1] = hexdigits[c&0x0f]
	}
	return string(out)
}
