// Package pow implements the compact-difficulty/target arithmetic and the
// difficulty-retarget schedule this chain's proof-of-work consensus relies
// on. The mining preimage and its double-SHA256 hash live in package
// core/types (BlockHeader.MiningPreimage / BlockHeader.Hash);
// this package only turns a stored difficulty value into a comparable
// target and back, and decides how difficulty should move from block to
// block.
//
// By convention, difficulty's low 32 bits ARE the Bitcoin-style compact
// encoding: high byte exponent, low three bytes mantissa, with
// target = mantissa * 2^(8*(exponent-3)). The example values
// (0x1d00ffff "very easy", 0x01010000 "astronomically hard") are themselves
// classic compact bit patterns, which is what fixes this reading; see
// DESIGN.md "Open Questions resolved" #2.
package pow

import (
	"encoding/hex"
	"strings"

	"github.com/holiman/uint256"
)

// TargetSpacingSeconds is the desired interval between blocks. Chosen as the
// consensus parameter for the bounded difficulty adjustment below; see
// DESIGN.md "Open Questions resolved" #1.
const TargetSpacingSeconds = 15

// adjustmentDenominator controls the per-block adjustment step: the target
// moves by at most 1/2048 of its current value each block.
const adjustmentDenominator = 2048

// FromCompact decodes a compact-encoded difficulty into the raw 256-bit
// target value mant * 2^(8*(exp-3)).
func FromCompact(compact uint32) *uint256.Int {
	exp := compact >> 24
	mant := compact & 0x00ffffff
	result := new(uint256.Int).SetUint64(uint64(mant))
	shift := int(exp) - 3
	if shift > 0 {
		return new(uint256.Int).Lsh(result, uint(shift*8))
	} else if shift < 0 {
		return new(uint256.Int).Rsh(result, uint(-shift*8))
	}
	return result
}

// ToCompact encodes a 256-bit target back into the 32-bit Bitcoin-style
// compact form, the inverse of FromCompact.
func ToCompact(target *uint256.Int) uint32 {
	b := target.Bytes()
	for len(b) > 0 && b[0] == 0 {
		b = b[1:]
	}
	if len(b) == 0 {
		return 0
	}
	size := len(b)
	var mant uint32
	if size <= 3 {
		padded := make([]byte, 3)
		copy(padded, b)
		mant = uint32(padded[0])<<16 | uint32(padded[1])<<8 | uint32(padded[2])
	} else {
		mant = uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
	}
	// if the high bit of the mantissa is set it would read as a sign bit in
	// legacy compact encodings; shift down to keep it unsigned.
	if mant&0x00800000 != 0 {
		mant >>= 8
		size++
	}
	return uint32(size)<<24 | mant
}

// Target returns the 256-bit target a header of the given difficulty must
// undercut: difficulty's low 32 bits are read directly as compact bits.
func Target(difficulty uint64) *uint256.Int {
	return FromCompact(uint32(difficulty))
}

// TargetHex renders a target as a zero-padded, lowercase 64-hex-digit string
// suitable for lexicographic comparison against a hash's hex encoding.
func TargetHex(target *uint256.Int) string {
	b := target.Bytes32()
	return hex.EncodeToString(b[:])
}

// HashMeetsTarget reports whether hash (lowercase hex, any length up to 64
// digits) is lexicographically less than target's zero-padded 64-hex-digit
// string -- equivalent to unsigned big-endian integer comparison.
func HashMeetsTarget(hashHex string, target *uint256.Int) bool {
	padded := strings.Repeat("0", 64-len(hashHex)) + strings.ToLower(hashHex)
	return padded < TargetHex(target)
}

// CalculateNextDifficulty applies a bounded retarget: the parent difficulty
// is expanded to its target, the target is tightened by 1/2048 if the actual
// spacing between parent and candidate timestamps is below
// TargetSpacingSeconds (harder), or loosened by 1/2048 otherwise (easier),
// and the adjusted target is re-encoded back to compact form. This is a
// bounded-adjustment schedule; see DESIGN.md "Open Questions resolved" #1
// for why 1/2048 was fixed as the consensus parameter.
func CalculateNextDifficulty(parentDifficulty uint64, parentTime, time uint64) uint64 {
	target := Target(parentDifficulty)
	step := new(uint256.Int).Div(target, uint256.NewInt(adjustmentDenominator))
	if step.IsZero() {
		step = uint256.NewInt(1)
	}

	var spacing uint64
	if time > parentTime {
		spacing = time - parentTime
	}

	var next *uint256.Int
	if spacing < TargetSpacingSeconds {
		next = new(uint256.Int).Sub(target, step) // smaller target, harder
	} else {
		next = new(uint256.Int).Add(target, step) // larger target, easier
	}
	if next.IsZero() {
		next = uint256.NewInt(1)
	}
	return uint64(ToCompact(next))
}
