// Package common holds the small fixed-width value types shared across the
// rest of this module: 32-byte hashes and 20-byte addresses.
package common

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

const (
	HashLength    = 32
	AddressLength = 20
)

// Hash represents a 32-byte double-SHA256 digest.
type Hash [HashLength]byte

// BytesToHash pads or truncates b to HashLength and returns a Hash.
func BytesToHash(b []byte) Hash {
	var h Hash
	if len(b) > HashLength {
		b = b[len(b)-HashLength:]
	}
	copy(h[HashLength-len(b):], b)
	return h
}

func (h Hash) Bytes() []byte { return h[:] }

func (h Hash) Hex() string { return "0x" + hex.EncodeToString(h[:]) }

func (h Hash) String() string { return h.Hex() }

func (h Hash) IsZero() bool { return h == Hash{} }

// HexToHash decodes a 0x-prefixed or bare hex string into a Hash.
func HexToHash(s string) (Hash, error) {
	b, err := decodeHex(s)
	if err != nil {
		return Hash{}, err
	}
	return BytesToHash(b), nil
}

// Address represents a 20-byte account address.
type Address [AddressLength]byte

func BytesToAddress(b []byte) Address {
	var a Address
	if len(b) > AddressLength {
		b = b[len(b)-AddressLength:]
	}
	copy(a[AddressLength-len(b):], b)
	return a
}

func (a Address) Bytes() []byte { return a[:] }

func (a Address) Hex() string { return "0x" + hex.EncodeToString(a[:]) }

func (a Address) String() string { return a.Hex() }

func (a Address) IsZero() bool { return a == Address{} }

func HexToAddress(s string) (Address, error) {
	b, err := decodeHex(s)
	if err != nil {
		return Address{}, err
	}
	return BytesToAddress(b), nil
}

func decodeHex(s string) ([]byte, error) {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex string: %w", err)
	}
	return b, nil
}

// EmptyCodeHash and EmptyStateRoot are the fixed sentinel values an
// AccountState carries when it owns no code / no storage, per the data model.
// Both are the double-SHA256 digest of the empty byte string, matching the
// header-hash scheme used everywhere else in this module.
var (
	EmptyCodeHash  = doubleSHA256(nil)
	EmptyStateRoot = doubleSHA256(nil)
)

func doubleSHA256(b []byte) Hash {
	first := sha256.Sum256(b)
	second := sha256.Sum256(first[:])
	return Hash(second)
}
