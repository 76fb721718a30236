// Package crypto provides the hashing, address-derivation and signature
// primitives the rest of this module is built on: double-SHA256 for header
// and transaction identity, a key-hash address scheme over secp256k1 public
// keys, and ECDSA sign/verify.
package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"math/big"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // retained for hash160-style address derivation

	"github.com/example/gnode/common"
)

// DoubleSHA256 hashes b twice with SHA256, the scheme used for block-header
// identity and transaction identity throughout this module.
func DoubleSHA256(b []byte) common.Hash {
	first := sha256.Sum256(b)
	second := sha256.Sum256(first[:])
	return common.Hash(second)
}

// PrivateKey wraps a secp256k1 private key.
type PrivateKey struct {
	key *secp256k1.PrivateKey
}

// GenerateKey creates a new random keypair.
func GenerateKey() (*PrivateKey, error) {
	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key: key}, nil
}

// PublicKeyBytes returns the uncompressed SEC1 encoding of the public key.
func (p *PrivateKey) PublicKeyBytes() []byte {
	return p.key.PubKey().SerializeUncompressed()
}

// Sign produces an ECDSA signature (r||s, 64 bytes) over hash, drawing its
// per-signature randomness from crypto/rand, so repeated calls differ.
func (p *PrivateKey) Sign(hash []byte) ([]byte, error) {
	if len(hash) != 32 {
		return nil, errors.New("crypto: hash must be 32 bytes")
	}
	sig := ecdsaSign(p.key.ToECDSA(), hash)
	return sig, nil
}

func ecdsaSign(key *ecdsa.PrivateKey, hash []byte) []byte {
	r, s, err := ecdsa.Sign(rand.Reader, key, hash)
	if err != nil {
		panic(err) // rand.Reader failure is not a recoverable condition here
	}
	out := make([]byte, 64)
	rb := r.Bytes()
	sb := s.Bytes()
	copy(out[32-len(rb):32], rb)
	copy(out[64-len(sb):64], sb)
	return out
}

// Verify checks a 64-byte r||s signature over hash against an uncompressed
// SEC1-encoded public key.
func Verify(pubKey, hash, sig []byte) bool {
	if len(sig) != 64 || len(hash) != 32 {
		return false
	}
	pk, err := secp256k1.ParsePubKey(pubKey)
	if err != nil {
		return false
	}
	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:])
	return ecdsa.Verify(pk.ToECDSA(), hash, r, s)
}

// PubkeyToAddress derives a 20-byte key-hash address from an uncompressed
// SEC1 public key: SHA256 followed by RIPEMD160, truncated to AddressLength.
func PubkeyToAddress(pubKey []byte) common.Address {
	sh := sha256.Sum256(pubKey)
	ripe := ripemd160.New()
	ripe.Write(sh[:])
	return common.BytesToAddress(ripe.Sum(nil))
}
