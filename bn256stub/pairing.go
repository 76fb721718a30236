// Package bn256stub declares the interface for the elliptic-curve
// pairing-check primitive the chain engine's executor collaborator may
// invoke (e.g. for precompiled contracts). The internal pairing algorithm
// over the BN256 group is out of scope; only the boolean
// check contract is fixed here.
package bn256stub

// G1Point and G2Point are opaque serialized curve-point encodings; their
// internal representation is the pairing library's concern, not this core's.
type G1Point []byte
type G2Point []byte

// PairingChecker verifies that the product of pairings e(a_i, b_i) equals
// the identity element in GT, the primitive used by BN256-based precompiles.
type PairingChecker interface {
	PairingCheck(a []G1Point, b []G2Point) (bool, error)
}
