package types

import (
	"math/big"

	"github.com/example/gnode/common"
	"github.com/example/gnode/crypto"
)

// Transaction is immutable once created; its identity is the double-SHA256
// hash of signingPayload, a fixed concatenation of every field except the
// signature. That payload is not the DER encoding of package canonical.
type Transaction struct {
	Sender      common.Address
	Receiver    common.Address
	Amount      *big.Int
	TimestampMs int64
	PublicKey   []byte
	Signature   []byte
	NonceBytes  []byte
	GasPrice    *big.Int
	GasLimit    uint64
	Data        []byte
}

// Nonce interprets NonceBytes as a big-endian unsigned integer, the form
// used for per-sender monotonicity checks on import.
func (tx *Transaction) Nonce() *big.Int {
	return new(big.Int).SetBytes(tx.NonceBytes)
}

// signingPayload returns the bytes used both for the tx-identity hash and for
// signature verification: every field except Signature itself, appended in
// declaration order with no length prefixes (big integers as their minimal
// big-endian bytes, TimestampMs and GasLimit as 8 big-endian bytes).
func (tx *Transaction) signingPayload() []byte {
	var buf []byte
	buf = append(buf, tx.Sender.Bytes()...)
	buf = append(buf, tx.Receiver.Bytes()...)
	buf = append(buf, bigIntBytes(tx.Amount)...)
	buf = append(buf, int64Bytes(tx.TimestampMs)...)
	buf = append(buf, tx.PublicKey...)
	buf = append(buf, tx.NonceBytes...)
	buf = append(buf, bigIntBytes(tx.GasPrice)...)
	buf = append(buf, uint64Bytes(tx.GasLimit)...)
	buf = append(buf, tx.Data...)
	return buf
}

// Hash returns the transaction's identity: double-SHA256 of signingPayload,
// which leaves out the signature field.
func (tx *Transaction) Hash() common.Hash {
	return crypto.DoubleSHA256(tx.signingPayload())
}

// VerifySignature checks Signature against PublicKey over Hash(), and that
// PublicKey derives to Sender via the key-hash address scheme.
func (tx *Transaction) VerifySignature() bool {
	if crypto.PubkeyToAddress(tx.PublicKey) != tx.Sender {
		return false
	}
	h := tx.Hash()
	return crypto.Verify(tx.PublicKey, h[:], tx.Signature)
}

func bigIntBytes(v *big.Int) []byte {
	if v == nil {
		return nil
	}
	return v.Bytes()
}

func int64Bytes(v int64) []byte {
	b := make([]byte, 8)
	u := uint64(v)
	for i := 7; i >= 0; i-- {
		b[i] = byte(u)
		u >>= 8
	}
	return b
}

func uint64Bytes(v uint64) []byte {
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	return b
}
