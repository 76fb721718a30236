package p2p

import (
	"fmt"

	"github.com/example/gnode/core/canonical"
	"github.com/example/gnode/core/types"
)

// EncodeStatus/DecodeStatus carry the STATUS message payload.
func EncodeStatus(s Status) []byte {
	var buf []byte
	buf = append(buf, putUint32(s.ProtocolVersion)...)
	buf = append(buf, putUint64(s.NetworkID)...)
	buf = append(buf, s.BestHash.Bytes()...)
	buf = append(buf, s.GenesisHash.Bytes()...)
	buf = append(buf, putUint64(s.TotalDifficulty)...)
	return buf
}

func DecodeStatus(data []byte) (Status, error) {
	var s Status
	version, rest, err := getUint32(data)
	if err != nil {
		return s, err
	}
	networkID, rest, err := getUint64(rest)
	if err != nil {
		return s, err
	}
	if len(rest) < 64 {
		return s, fmt.Errorf("p2p: truncated status payload")
	}
	s.ProtocolVersion = version
	s.NetworkID = networkID
	s.BestHash = hashFrom(rest[0:32])
	s.GenesisHash = hashFrom(rest[32:64])
	rest = rest[64:]
	td, _, err := getUint64(rest)
	if err != nil {
		return s, err
	}
	s.TotalDifficulty = td
	return s, nil
}

// EncodeHeightRequest/DecodeHeightRequest carry a (fromHeight, count) pair,
// shared by GET_BLOCKS and GET_BLOCK_HEADERS.
func EncodeHeightRequest(fromHeight uint64, count uint32) []byte {
	return append(putUint64(fromHeight), putUint32(count)...)
}

func DecodeHeightRequest(data []byte) (fromHeight uint64, count uint32, err error) {
	fromHeight, rest, err := getUint64(data)
	if err != nil {
		return 0, 0, err
	}
	count, _, err = getUint32(rest)
	return fromHeight, count, err
}

// EncodeBlockHeaders/DecodeBlockHeaders carry a BLOCK_HEADERS payload: a
// count-prefixed list of length-prefixed canonical header encodings.
func EncodeBlockHeaders(headers []*types.BlockHeader) ([]byte, error) {
	buf := putUint32(uint32(len(headers)))
	for _, h := range headers {
		enc, err := canonical.EncodeHeader(h)
		if err != nil {
			return nil, err
		}
		buf = append(buf, putUint32(uint32(len(enc)))...)
		buf = append(buf, enc...)
	}
	return buf, nil
}

func DecodeBlockHeaders(data []byte) ([]*types.BlockHeader, error) {
	n, rest, err := getUint32(data)
	if err != nil {
		return nil, err
	}
	headers := make([]*types.BlockHeader, 0, n)
	for i := uint32(0); i < n; i++ {
		size, tail, err := getUint32(rest)
		if err != nil {
			return nil, err
		}
		if uint32(len(tail)) < size {
			return nil, fmt.Errorf("p2p: truncated header entry")
		}
		h, err := canonical.DecodeHeader(tail[:size])
		if err != nil {
			return nil, err
		}
		headers = append(headers, h)
		rest = tail[size:]
	}
	return headers, nil
}

// EncodeBlocks/DecodeBlocks carry a BLOCKS payload plus the "more remain"
// flag the sync manager uses to decide whether to request another batch.
func EncodeBlocks(blocks []*types.Block, hasMore bool) ([]byte, error) {
	var flag byte
	if hasMore {
		flag = 1
	}
	buf := []byte{flag}
	buf = append(buf, putUint32(uint32(len(blocks)))...)
	for _, b := range blocks {
		enc, err := canonical.EncodeBlock(b)
		if err != nil {
			return nil, err
		}
		buf = append(buf, putUint32(uint32(len(enc)))...)
		buf = append(buf, enc...)
	}
	return buf, nil
}

func DecodeBlocks(data []byte) (blocks []*types.Block, hasMore bool, err error) {
	if len(data) < 1 {
		return nil, false, fmt.Errorf("p2p: truncated blocks payload")
	}
	hasMore = data[0] == 1
	n, rest, err := getUint32(data[1:])
	if err != nil {
		return nil, false, err
	}
	blocks = make([]*types.Block, 0, n)
	for i := uint32(0); i < n; i++ {
		size, tail, err := getUint32(rest)
		if err != nil {
			return nil, false, err
		}
		if uint32(len(tail)) < size {
			return nil, false, fmt.Errorf("p2p: truncated block entry")
		}
		b, err := canonical.DecodeBlock(tail[:size])
		if err != nil {
			return nil, false, err
		}
		blocks = append(blocks, b)
		rest = tail[size:]
	}
	return blocks, hasMore, nil
}

// EncodeTransactions/DecodeTransactions carry a NEW_TRANSACTIONS payload.
func EncodeTransactions(txs []*types.Transaction) ([]byte, error) {
	buf := putUint32(uint32(len(txs)))
	for _, tx := range txs {
		enc, err := canonical.EncodeTransaction(tx)
		if err != nil {
			return nil, err
		}
		buf = append(buf, putUint32(uint32(len(enc)))...)
		buf = append(buf, enc...)
	}
	return buf, nil
}

func DecodeTransactions(data []byte) ([]*types.Transaction, error) {
	n, rest, err := getUint32(data)
	if err != nil {
		return nil, err
	}
	txs := make([]*types.Transaction, 0, n)
	for i := uint32(0); i < n; i++ {
		size, tail, err := getUint32(rest)
		if err != nil {
			return nil, err
		}
		if uint32(len(tail)) < size {
			return nil, fmt.Errorf("p2p: truncated transaction entry")
		}
		tx, err := canonical.DecodeTransaction(tail[:size])
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
		rest = tail[size:]
	}
	return txs, nil
}

func hashFrom(b []byte) (h [32]byte) {
	copy(h[:], b)
	return h
}
