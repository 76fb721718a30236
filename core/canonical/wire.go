// Package canonical implements the ASN.1 DER byte encoding used for the
// wire-protocol payloads and for the values the repository stores, so two
// implementations that encode the same value must produce byte-identical
// DER. Hashes are not computed over it: a block hash is taken over the
// header's mining preimage and a transaction hash over the field
// concatenation in package types. Byte-strings are
// carried as BIT STRINGs with no unused bits
package canonical

import (
	"encoding/asn1"
	"fmt"
	"math/big"

	"github.com/example/gnode/common"
	"github.com/example/gnode/core/types"
)

func bitString(b []byte) asn1.BitString {
	return asn1.BitString{Bytes: b, BitLength: len(b) * 8}
}

// --- Transaction -----------------------------------------------------------

type wireTransaction struct {
	Sender      []byte
	Receiver    []byte
	Amount      *big.Int
	TimestampMs int64
	PublicKey   asn1.BitString
	Signature   asn1.BitString
	NonceBytes  asn1.BitString
	GasPrice    *big.Int
	GasLimit    int64
	Data        asn1.BitString
}

// EncodeTransaction produces the canonical DER encoding of tx, in the field
// order declared for wireTransaction above.
func EncodeTransaction(tx *types.Transaction) ([]byte, error) {
	w := wireTransaction{
		Sender:      tx.Sender.Bytes(),
		Receiver:    tx.Receiver.Bytes(),
		Amount:      nonNil(tx.Amount),
		TimestampMs: tx.TimestampMs,
		PublicKey:   bitString(tx.PublicKey),
		Signature:   bitString(tx.Signature),
		NonceBytes:  bitString(tx.NonceBytes),
		GasPrice:    nonNil(tx.GasPrice),
		GasLimit:    int64(tx.GasLimit),
		Data:        bitString(tx.Data),
	}
	return asn1.Marshal(w)
}

// DecodeTransaction reverses EncodeTransaction.
func DecodeTransaction(data []byte) (*types.Transaction, error) {
	var w wireTransaction
	if _, err := asn1.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("canonical: decode transaction: %w", err)
	}
	return &types.Transaction{
		Sender:      common.BytesToAddress(w.Sender),
		Receiver:    common.BytesToAddress(w.Receiver),
		Amount:      w.Amount,
		TimestampMs: w.TimestampMs,
		PublicKey:   cloneBytes(w.PublicKey.Bytes),
		Signature:   cloneBytes(w.Signature.Bytes),
		NonceBytes:  cloneBytes(w.NonceBytes.Bytes),
		GasPrice:    w.GasPrice,
		GasLimit:    uint64(w.GasLimit),
		Data:        cloneBytes(w.Data.Bytes),
	}, nil
}

// --- BlockHeader / Block -----------------------------------------------------

type wireHeader struct {
	Version         int64
	Height          int64
	ParentHash      []byte
	Coinbase        []byte
	Timestamp       int64
	Difficulty      int64
	Nonce           int64
	TotalDifficulty int64
	StateRoot       []byte
	TrxTrieRoot     []byte
}

type wireBlock struct {
	Header        wireHeader
	Transactions  []wireTransaction
	GasLimitBytes asn1.BitString
}

func headerToWire(h *types.BlockHeader) wireHeader {
	return wireHeader{
		Version:         int64(h.Version),
		Height:          int64(h.Height),
		ParentHash:      h.ParentHash.Bytes(),
		Coinbase:        h.Coinbase.Bytes(),
		Timestamp:       int64(h.Timestamp),
		Difficulty:      int64(h.Difficulty),
		Nonce:           int64(h.Nonce),
		TotalDifficulty: int64(h.TotalDifficulty),
		StateRoot:       h.StateRoot.Bytes(),
		TrxTrieRoot:     h.TrxTrieRoot.Bytes(),
	}
}

func wireToHeader(w wireHeader) types.BlockHeader {
	return types.BlockHeader{
		Version:         uint32(w.Version),
		Height:          uint64(w.Height),
		ParentHash:      common.BytesToHash(w.ParentHash),
		Coinbase:        common.BytesToAddress(w.Coinbase),
		Timestamp:       uint32(w.Timestamp),
		Difficulty:      uint64(w.Difficulty),
		Nonce:           uint32(w.Nonce),
		TotalDifficulty: uint64(w.TotalDifficulty),
		StateRoot:       common.BytesToHash(w.StateRoot),
		TrxTrieRoot:     common.BytesToHash(w.TrxTrieRoot),
	}
}

// EncodeHeader produces the canonical DER encoding of a header on its own,
// used for the BLOCK_HEADERS wire message where bodies aren't
// needed.
func EncodeHeader(h *types.BlockHeader) ([]byte, error) {
	return asn1.Marshal(headerToWire(h))
}

// DecodeHeader reverses EncodeHeader.
func DecodeHeader(data []byte) (*types.BlockHeader, error) {
	var w wireHeader
	if _, err := asn1.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("canonical: decode header: %w", err)
	}
	h := wireToHeader(w)
	return &h, nil
}

// EncodeBlock produces the canonical DER encoding of b.
func EncodeBlock(b *types.Block) ([]byte, error) {
	wtxs := make([]wireTransaction, len(b.Transactions))
	for i, tx := range b.Transactions {
		wtxs[i] = wireTransaction{
			Sender:      tx.Sender.Bytes(),
			Receiver:    tx.Receiver.Bytes(),
			Amount:      nonNil(tx.Amount),
			TimestampMs: tx.TimestampMs,
			PublicKey:   bitString(tx.PublicKey),
			Signature:   bitString(tx.Signature),
			NonceBytes:  bitString(tx.NonceBytes),
			GasPrice:    nonNil(tx.GasPrice),
			GasLimit:    int64(tx.GasLimit),
			Data:        bitString(tx.Data),
		}
	}
	w := wireBlock{
		Header:        headerToWire(&b.Header),
		Transactions:  wtxs,
		GasLimitBytes: bitString(b.GasLimitBytes),
	}
	return asn1.Marshal(w)
}

// DecodeBlock reverses EncodeBlock.
func DecodeBlock(data []byte) (*types.Block, error) {
	var w wireBlock
	if _, err := asn1.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("canonical: decode block: %w", err)
	}
	txs := make([]*types.Transaction, len(w.Transactions))
	for i, wtx := range w.Transactions {
		txs[i] = &types.Transaction{
			Sender:      common.BytesToAddress(wtx.Sender),
			Receiver:    common.BytesToAddress(wtx.Receiver),
			Amount:      wtx.Amount,
			TimestampMs: wtx.TimestampMs,
			PublicKey:   cloneBytes(wtx.PublicKey.Bytes),
			Signature:   cloneBytes(wtx.Signature.Bytes),
			NonceBytes:  cloneBytes(wtx.NonceBytes.Bytes),
			GasPrice:    wtx.GasPrice,
			GasLimit:    uint64(wtx.GasLimit),
			Data:        cloneBytes(wtx.Data.Bytes),
		}
	}
	return &types.Block{
		Header:        wireToHeader(w.Header),
		Transactions:  txs,
		GasLimitBytes: cloneBytes(w.GasLimitBytes.Bytes),
	}, nil
}

// --- AccountState ------------------------------------------------------------

type wireAccountState struct {
	Nonce     *big.Int
	Balance   *big.Int
	StateRoot []byte
	CodeHash  []byte
}

// EncodeAccountState produces the canonical DER encoding of a.
func EncodeAccountState(a *types.AccountState) ([]byte, error) {
	w := wireAccountState{
		Nonce:     nonNil(a.Nonce),
		Balance:   nonNil(a.Balance),
		StateRoot: a.StateRoot.Bytes(),
		CodeHash:  a.CodeHash.Bytes(),
	}
	return asn1.Marshal(w)
}

// DecodeAccountState reverses EncodeAccountState.
func DecodeAccountState(data []byte) (*types.AccountState, error) {
	var w wireAccountState
	if _, err := asn1.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("canonical: decode account state: %w", err)
	}
	return &types.AccountState{
		Nonce:     w.Nonce,
		Balance:   w.Balance,
		StateRoot: common.BytesToHash(w.StateRoot),
		CodeHash:  common.BytesToHash(w.CodeHash),
	}, nil
}

// --- BlockInfo -----------------------------------------------------------

type wireBlockInfo struct {
	Hash            []byte
	IsMain          bool
	TotalDifficulty int64
}

// EncodeBlockInfo produces the canonical DER encoding of bi.
func EncodeBlockInfo(bi *types.BlockInfo) ([]byte, error) {
	w := wireBlockInfo{
		Hash:            bi.Hash.Bytes(),
		IsMain:          bi.IsMain,
		TotalDifficulty: int64(bi.TotalDifficulty),
	}
	return asn1.Marshal(w)
}

// DecodeBlockInfo reverses EncodeBlockInfo.
func DecodeBlockInfo(data []byte) (*types.BlockInfo, error) {
	var w wireBlockInfo
	if _, err := asn1.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("canonical: decode block info: %w", err)
	}
	return &types.BlockInfo{
		Hash:            common.BytesToHash(w.Hash),
		IsMain:          w.IsMain,
		TotalDifficulty: uint64(w.TotalDifficulty),
	}, nil
}

func nonNil(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
