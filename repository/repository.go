// Package repository is the persistent mapping service behind the chain
// engine: block-by-hash, block-infos-by-height (a list, since several
// BlockInfos may share a height during a fork), account-state-by-address,
// contract-code-by-hash, and the encrypted keystore. It is safe for
// concurrent reads from any goroutine; writes are expected from the manager
// goroutine only
package repository

import (
	"encoding/binary"
	"errors"
	"sync"

	"github.com/VictoriaMetrics/fastcache"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"

	"github.com/example/gnode/common"
	"github.com/example/gnode/core/canonical"
	"github.com/example/gnode/core/types"
	"github.com/example/gnode/internal/gethlog"
)

var log = gethlog.New("repository")

var ErrNotFound = errors.New("repository: not found")

// blockCacheBytes and accountCacheBytes size the in-memory fastcache fronts
// kept ahead of leveldb for the hottest keys -- recently imported blocks and
// recently touched accounts.
const (
	blockCacheBytes   = 32 * 1024 * 1024
	accountCacheBytes = 16 * 1024 * 1024
)

// Repository owns the on-disk key-value store and the hot-key caches in
// front of it.
type Repository struct {
	db *leveldb.DB

	blockCache   *fastcache.Cache
	accountCache *fastcache.Cache

	mu sync.RWMutex // guards writes; reads may proceed concurrently with leveldb's own locking
}

// Open opens (creating if absent) a leveldb store at dir.
func Open(dir string) (*Repository, error) {
	db, err := leveldb.OpenFile(dir, &opt.Options{OpenFilesCacheCapacity: 64})
	if err != nil {
		return nil, err
	}
	return &Repository{
		db:           db,
		blockCache:   fastcache.New(blockCacheBytes),
		accountCache: fastcache.New(accountCacheBytes),
	}, nil
}

// Close releases the underlying leveldb handle.
func (r *Repository) Close() error {
	return r.db.Close()
}

// --- blocks ----------------------------------------------------------------

// HasBlock reports whether a block with this hash is already known.
func (r *Repository) HasBlock(hash common.Hash) bool {
	if r.blockCache.Has(hash.Bytes()) {
		return true
	}
	ok, _ := r.db.Has(blockKey(hash), nil)
	return ok
}

// PutBlock persists b under its header hash.
func (r *Repository) PutBlock(b *types.Block) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	enc, err := canonical.EncodeBlock(b)
	if err != nil {
		return err
	}
	hash := b.Hash()
	if err := r.db.Put(blockKey(hash), enc, nil); err != nil {
		return err
	}
	r.blockCache.Set(hash.Bytes(), enc)
	log.Debug("persisted block", "hash", hash.Hex(), "height", b.Height())
	return nil
}

// GetBlock retrieves a block by hash.
func (r *Repository) GetBlock(hash common.Hash) (*types.Block, error) {
	if enc, ok := r.blockCache.HasGet(nil, hash.Bytes()); ok {
		return canonical.DecodeBlock(enc)
	}
	enc, err := r.db.Get(blockKey(hash), nil)
	if err == leveldb.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	r.blockCache.Set(hash.Bytes(), enc)
	return canonical.DecodeBlock(enc)
}

// --- block infos -------------------------------------------------------------

// PutBlockInfos replaces the list of BlockInfos recorded at height.
func (r *Repository) PutBlockInfos(height uint64, infos []*types.BlockInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	enc, err := encodeBlockInfoList(infos)
	if err != nil {
		return err
	}
	return r.db.Put(blockInfoKey(height), enc, nil)
}

// GetBlockInfos returns every BlockInfo recorded at height, in insertion
// order, or an empty slice if none exist.
func (r *Repository) GetBlockInfos(height uint64) ([]*types.BlockInfo, error) {
	enc, err := r.db.Get(blockInfoKey(height), nil)
	if err == leveldb.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeBlockInfoList(enc)
}

func encodeBlockInfoList(infos []*types.BlockInfo) ([]byte, error) {
	var out []byte
	for _, info := range infos {
		enc, err := canonical.EncodeBlockInfo(info)
		if err != nil {
			return nil, err
		}
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(enc)))
		out = append(out, lenBuf[:]...)
		out = append(out, enc...)
	}
	return out, nil
}

func decodeBlockInfoList(data []byte) ([]*types.BlockInfo, error) {
	var infos []*types.BlockInfo
	for len(data) > 0 {
		if len(data) < 4 {
			return nil, errors.New("repository: truncated block-info list")
		}
		n := binary.BigEndian.Uint32(data[:4])
		data = data[4:]
		if uint32(len(data)) < n {
			return nil, errors.New("repository: truncated block-info entry")
		}
		info, err := canonical.DecodeBlockInfo(data[:n])
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
		data = data[n:]
	}
	return infos, nil
}

// --- best-block cursor -------------------------------------------------------

// PutBestBlockCursor persists the canonical tip's hash, height, and
// cumulative difficulty, so a restart can restore the chain's cursor without
// rescanning every BlockInfo.
func (r *Repository) PutBestBlockCursor(hash common.Hash, height, totalDifficulty uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	buf := make([]byte, 0, common.HashLength+16)
	buf = append(buf, hash.Bytes()...)
	buf = append(buf, heightBytes(height)...)
	buf = append(buf, heightBytes(totalDifficulty)...)
	return r.db.Put(bestBlockKey, buf, nil)
}

// GetBestBlockCursor retrieves the persisted canonical tip pointer.
// ErrNotFound means no block has ever been imported into this repository.
func (r *Repository) GetBestBlockCursor() (hash common.Hash, height, totalDifficulty uint64, err error) {
	enc, err := r.db.Get(bestBlockKey, nil)
	if err == leveldb.ErrNotFound {
		return common.Hash{}, 0, 0, ErrNotFound
	}
	if err != nil {
		return common.Hash{}, 0, 0, err
	}
	if len(enc) != common.HashLength+16 {
		return common.Hash{}, 0, 0, errors.New("repository: corrupt best-block cursor")
	}
	hash = common.BytesToHash(enc[:common.HashLength])
	height = binary.BigEndian.Uint64(enc[common.HashLength : common.HashLength+8])
	totalDifficulty = binary.BigEndian.Uint64(enc[common.HashLength+8:])
	return hash, height, totalDifficulty, nil
}

// --- account state -----------------------------------------------------------

// PutAccountState persists the account state for addr.
func (r *Repository) PutAccountState(addr common.Address, acc *types.AccountState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	enc, err := canonical.EncodeAccountState(acc)
	if err != nil {
		return err
	}
	if err := r.db.Put(accountStateKey(addr), enc, nil); err != nil {
		return err
	}
	r.accountCache.Set(addr.Bytes(), enc)
	return nil
}

// GetAccountState retrieves the account state for addr, or a fresh empty
// account if none has been recorded yet.
func (r *Repository) GetAccountState(addr common.Address) (*types.AccountState, error) {
	if enc, ok := r.accountCache.HasGet(nil, addr.Bytes()); ok {
		return canonical.DecodeAccountState(enc)
	}
	enc, err := r.db.Get(accountStateKey(addr), nil)
	if err == leveldb.ErrNotFound {
		return types.NewEmptyAccountState(), nil
	}
	if err != nil {
		return nil, err
	}
	r.accountCache.Set(addr.Bytes(), enc)
	return canonical.DecodeAccountState(enc)
}

// --- contract code -----------------------------------------------------------

// PutCode persists raw contract bytecode under its hash.
func (r *Repository) PutCode(hash common.Hash, code []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.db.Put(codeKey(hash), code, nil)
}

// GetCode retrieves contract bytecode by hash.
func (r *Repository) GetCode(hash common.Hash) ([]byte, error) {
	b, err := r.db.Get(codeKey(hash), nil)
	if err == leveldb.ErrNotFound {
		return nil, ErrNotFound
	}
	return b, err
}

// --- encrypted keystore --------------------------------------------------------

// PutEncryptedKey stores an encrypted keystore blob at index.
func (r *Repository) PutEncryptedKey(index uint64, blob []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.db.Put(encryptedKeyKey(index), blob, nil)
}

// GetEncryptedKey retrieves the encrypted keystore blob at index.
func (r *Repository) GetEncryptedKey(index uint64) ([]byte, error) {
	b, err := r.db.Get(encryptedKeyKey(index), nil)
	if err == leveldb.ErrNotFound {
		return nil, ErrNotFound
	}
	return b, err
}
