package repository

import "github.com/example/gnode/common"

// Key-space prefixes for the logical stores this node keeps:
// block-by-hash, block-infos-by-height, account-state-by-address,
// code-by-hash, encrypted-keys-by-index. Grounded on the prefix+suffix key
// convention used throughout klaytn's storage/database package.
var (
	blockPrefix        = []byte("b-") // blockPrefix + hash -> canonical Block encoding
	blockInfoPrefix    = []byte("i-") // blockInfoPrefix + height(8BE) -> canonical []BlockInfo encoding
	accountStatePrefix = []byte("a-") // accountStatePrefix + address -> canonical AccountState encoding
	codePrefix         = []byte("c-") // codePrefix + hash -> raw contract code bytes
	encryptedKeyPrefix = []byte("k-") // encryptedKeyPrefix + index(8BE) -> encrypted keystore blob
	bestBlockKey       = []byte("best-block") // singleton key -> hash(32) || height(8BE) || totalDifficulty(8BE)
)

func blockKey(hash common.Hash) []byte {
	return append(append([]byte{}, blockPrefix...), hash.Bytes()...)
}

func blockInfoKey(height uint64) []byte {
	return append(append([]byte{}, blockInfoPrefix...), heightBytes(height)...)
}

func accountStateKey(addr common.Address) []byte {
	return append(append([]byte{}, accountStatePrefix...), addr.Bytes()...)
}

func codeKey(hash common.Hash) []byte {
	return append(append([]byte{}, codePrefix...), hash.Bytes()...)
}

func encryptedKeyKey(index uint64) []byte {
	return append(append([]byte{}, encryptedKeyPrefix...), heightBytes(index)...)
}

func heightBytes(h uint64) []byte {
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(h)
		h >>= 8
	}
	return b
}
