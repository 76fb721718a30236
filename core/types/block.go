package types

import (
	"encoding/binary"

	"github.com/example/gnode/common"
	"github.com/example/gnode/crypto"
)

// BlockHeader carries everything needed to identify and mine a block. The
// mining preimage (84 bytes) uses a layout distinct from this struct's field
// order; MiningPreimage below reproduces that exact layout.
//
// Difficulty is stored as the raw 64-bit value hashed by MiningPreimage.
// Its compact (exponent, mantissa) form -- referred to elsewhere as
// difficulty-compact -- is derived on demand via pow.ToCompact/FromCompact
// purely to compute the comparison target; no separate compact field is
// persisted. See DESIGN.md "Open Questions resolved" #2.
type BlockHeader struct {
	Version         uint32
	Height          uint64
	ParentHash      common.Hash
	Coinbase        common.Address
	Timestamp       uint32 // unix seconds
	Difficulty      uint64
	Nonce           uint32
	TotalDifficulty uint64
	StateRoot       common.Hash
	TrxTrieRoot     common.Hash
}

// MiningPreimage assembles the fixed 84-byte, big-endian layout hashed for
// proof-of-work: version(4) | parent-hash(32) | trx-trie-root(32) | time(4) |
// difficulty(8) | nonce(4).
func (h *BlockHeader) MiningPreimage() []byte {
	buf := make([]byte, 84)
	binary.BigEndian.PutUint32(buf[0:4], h.Version)
	copy(buf[4:36], h.ParentHash.Bytes())
	copy(buf[36:68], h.TrxTrieRoot.Bytes())
	binary.BigEndian.PutUint32(buf[68:72], h.Timestamp)
	binary.BigEndian.PutUint64(buf[72:80], h.Difficulty)
	binary.BigEndian.PutUint32(buf[80:84], h.Nonce)
	return buf
}

// Hash is SHA256(SHA256(MiningPreimage())), the header's proof-of-work
// identity.
func (h *BlockHeader) Hash() common.Hash {
	return crypto.DoubleSHA256(h.MiningPreimage())
}

// Block is a header plus its ordered transaction list and raw gas-limit
// encoding.
type Block struct {
	Header       BlockHeader
	Transactions []*Transaction
	GasLimitBytes []byte
}

func (b *Block) Hash() common.Hash   { return b.Header.Hash() }
func (b *Block) Height() uint64      { return b.Header.Height }
func (b *Block) ParentHash() common.Hash { return b.Header.ParentHash }

// MerkleRoot computes a Merkle-style digest over the block's transactions in
// order: leaves are transaction hashes, internal nodes are
// DoubleSHA256(left||right), and an odd trailing leaf is duplicated, the
// standard Bitcoin/Ethereum-style construction.
func MerkleRoot(txs []*Transaction) common.Hash {
	if len(txs) == 0 {
		return crypto.DoubleSHA256(nil)
	}
	layer := make([]common.Hash, len(txs))
	for i, tx := range txs {
		layer[i] = tx.Hash()
	}
	for len(layer) > 1 {
		if len(layer)%2 == 1 {
			layer = append(layer, layer[len(layer)-1])
		}
		next := make([]common.Hash, len(layer)/2)
		for i := 0; i < len(next); i++ {
			var buf []byte
			buf = append(buf, layer[2*i].Bytes()...)
			buf = append(buf, layer[2*i+1].Bytes()...)
			next[i] = crypto.DoubleSHA256(buf)
		}
		layer = next
	}
	return layer[0]
}
