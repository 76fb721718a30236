// Package chain implements block import, fork-choice, the pending-difficulty
// calculator and new-block composition: the engine that turns a stream of
// candidate blocks (mined locally or received from peers) into the canonical
// chain.
package chain

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/holiman/uint256"

	"github.com/example/gnode/common"
	"github.com/example/gnode/core/types"
	"github.com/example/gnode/internal/gethlog"
	"github.com/example/gnode/pow"
	"github.com/example/gnode/repository"
	"github.com/example/gnode/vmstub"
)

var log = gethlog.New("chain")

// ImportResult is the closed set of outcomes importBlock may return. Expected
// outcomes are never signaled by error/panic
type ImportResult int

const (
	INVALID ImportResult = iota
	EXIST
	BEST_BLOCK
	NON_BEST_BLOCK
)

func (r ImportResult) String() string {
	switch r {
	case INVALID:
		return "INVALID"
	case EXIST:
		return "EXIST"
	case BEST_BLOCK:
		return "BEST_BLOCK"
	case NON_BEST_BLOCK:
		return "NON_BEST_BLOCK"
	default:
		return "UNKNOWN"
	}
}

var (
	// ErrUnknownParent describes a block whose parent the repository has never
	// seen. Nothing in this package returns it: ImportBlock reports that case
	// as INVALID, and GenerateNewBlock/CalculateBlockDifficulty take the parent
	// block itself rather than looking it up.
	ErrUnknownParent = errors.New("chain: unknown parent")
)

// Chain owns the repository handle and the best-block cursor. It is driven
// exclusively from the manager's single event thread; mining-worker reads
// must snapshot GetBestBlock before each attempt rather than poll it
// mid-search.
type Chain struct {
	repo     *repository.Repository
	executor vmstub.Executor

	bestHash   common.Hash
	bestHeight uint64
	bestTD     uint64
}

// Open constructs a Chain over an already-opened repository and executor
// collaborator, restoring the best-block cursor the repository last
// persisted. If the repository holds no blocks yet, GetBestBlock returns an
// error until genesis is imported via ImportBlock.
func Open(repo *repository.Repository, executor vmstub.Executor) *Chain {
	c := &Chain{repo: repo, executor: executor}
	if hash, height, totalDifficulty, err := repo.GetBestBlockCursor(); err == nil {
		c.bestHash = hash
		c.bestHeight = height
		c.bestTD = totalDifficulty
	} else if err != repository.ErrNotFound {
		log.Error("chain: failed to restore best-block cursor", "err", err)
	}
	return c
}

// SetBestBlock seeds the best-block cursor and persists it, so a restart
// resumes from the same tip instead of re-importing genesis.
func (c *Chain) SetBestBlock(hash common.Hash, height, totalDifficulty uint64) {
	c.bestHash = hash
	c.bestHeight = height
	c.bestTD = totalDifficulty
	if err := c.repo.PutBestBlockCursor(hash, height, totalDifficulty); err != nil {
		log.Error("chain: failed to persist best-block cursor", "err", err)
	}
}

// GetBestBlock returns the current canonical tip.
func (c *Chain) GetBestBlock() (*types.Block, error) {
	return c.repo.GetBlock(c.bestHash)
}

// BestTotalDifficulty reports the canonical tip's cumulative difficulty.
func (c *Chain) BestTotalDifficulty() uint64 { return c.bestTD }

// BestHeight reports the canonical tip's height.
func (c *Chain) BestHeight() uint64 { return c.bestHeight }

// HasBlock reports whether hash is already known to the repository, used by
// the sync manager to recognize a common ancestor.
func (c *Chain) HasBlock(hash common.Hash) bool { return c.repo.HasBlock(hash) }

// ImportBlock runs the full import algorithm of: existence
// check, validation, persistence, and fork-choice rewire.
func (c *Chain) ImportBlock(b *types.Block) ImportResult {
	hash := b.Hash()
	if c.repo.HasBlock(hash) {
		return EXIST
	}

	isGenesis := b.Header.Height == 0
	var parent *types.Block
	var parentTD uint64
	if !isGenesis {
		var err error
		parent, err = c.repo.GetBlock(b.Header.ParentHash)
		if err != nil {
			log.Warn("import: unknown parent", "hash", hash.Hex(), "parent", b.Header.ParentHash.Hex())
			return INVALID
		}
		infos, err := c.repo.GetBlockInfos(parent.Header.Height)
		if err != nil {
			log.Error("import: failed reading parent block-infos", "err", err)
			return INVALID
		}
		found := false
		for _, info := range infos {
			if info.Hash == b.Header.ParentHash {
				parentTD = info.TotalDifficulty
				found = true
				break
			}
		}
		if !found {
			return INVALID
		}
	}

	if !c.validate(b, parent) {
		return INVALID
	}

	total := parentTD + b.Header.Difficulty

	if err := c.repo.PutBlock(b); err != nil {
		log.Error("import: failed to persist block", "err", err)
		return INVALID
	}

	info := &types.BlockInfo{Hash: hash, IsMain: false, TotalDifficulty: total}
	infos, err := c.repo.GetBlockInfos(b.Header.Height)
	if err != nil {
		log.Error("import: failed reading block-infos", "err", err)
		return INVALID
	}
	infos = append(infos, info)
	if err := c.repo.PutBlockInfos(b.Header.Height, infos); err != nil {
		log.Error("import: failed to persist block-info", "err", err)
		return INVALID
	}

	if isGenesis && c.bestHash.IsZero() {
		info.IsMain = true
		if err := c.repo.PutBlockInfos(b.Header.Height, infos); err != nil {
			log.Error("import: failed to persist genesis block-info", "err", err)
			return INVALID
		}
		c.SetBestBlock(hash, b.Header.Height, total)
		return BEST_BLOCK
	}

	if total > c.bestTD {
		if err := c.switchBest(b, hash, total); err != nil {
			log.Error("import: fork-choice rewire failed", "err", err)
			return INVALID
		}
		return BEST_BLOCK
	}

	// Tie-break favors the incumbent on equal total difficulty.
	return NON_BEST_BLOCK
}

// validate runs the structural/consensus checks:
// recomputed header hash meets its own difficulty target, trx-trie-root
// matches the transaction list, and each transaction carries a valid
// signature with a per-sender monotonically increasing nonce within the
// block.
func (c *Chain) validate(b *types.Block, parent *types.Block) bool {
	target := pow.Target(b.Header.Difficulty)
	hash := b.Header.Hash()
	if !pow.HashMeetsTarget(hexLower(hash[:]), target) {
		log.Warn("validate: header does not meet its own target", "hash", hash.Hex())
		return false
	}

	if got, want := types.MerkleRoot(b.Transactions), b.Header.TrxTrieRoot; got != want {
		log.Warn("validate: trx-trie-root mismatch", "got", got.Hex(), "want", want.Hex())
		return false
	}

	lastNonce := make(map[common.Address]*big.Int)
	for _, tx := range b.Transactions {
		if !tx.VerifySignature() {
			log.Warn("validate: bad transaction signature", "tx", tx.Hash().Hex())
			return false
		}
		n := tx.Nonce()
		if prev, ok := lastNonce[tx.Sender]; ok && n.Cmp(prev) <= 0 {
			log.Warn("validate: non-monotonic nonce", "sender", tx.Sender.Hex())
			return false
		}
		lastNonce[tx.Sender] = n
	}

	if parent != nil && b.Header.ParentHash != parent.Hash() {
		return false
	}
	return true
}

// switchBest rewires the main chain: walk back from b and from the current
// best toward their common ancestor, flipping isMain off on the old branch
// and on on the new one, executing state transitions along the new branch,
// then moving the best cursor.
func (c *Chain) switchBest(newTip *types.Block, newHash common.Hash, newTD uint64) error {
	newChain, err := c.pathToCommonAncestor(newTip, newHash)
	if err != nil {
		return err
	}

	oldTip, err := c.repo.GetBlock(c.bestHash)
	if err != nil {
		return err
	}
	oldChain, err := c.pathToCommonAncestor(oldTip, c.bestHash)
	if err != nil {
		return err
	}

	ancestorHeight := commonAncestorHeight(newChain, oldChain)

	for _, step := range oldChain {
		if step.height <= ancestorHeight {
			continue
		}
		if err := c.setIsMain(step.height, step.hash, false); err != nil {
			return err
		}
	}
	for _, step := range newChain {
		if step.height <= ancestorHeight {
			continue
		}
		if err := c.setIsMain(step.height, step.hash, true); err != nil {
			return err
		}
	}

	if err := c.executeBranch(newChain, ancestorHeight); err != nil {
		return err
	}

	c.SetBestBlock(newHash, newTip.Header.Height, newTD)
	return nil
}

type chainStep struct {
	hash   common.Hash
	height uint64
}

// pathToCommonAncestor walks parent pointers from tip back to genesis,
// returning the path in ascending-height order. Real chains share long
// common prefixes, so callers only use the suffix past the ancestor height.
func (c *Chain) pathToCommonAncestor(tip *types.Block, tipHash common.Hash) ([]chainStep, error) {
	var path []chainStep
	cur := tip
	curHash := tipHash
	for {
		path = append([]chainStep{{hash: curHash, height: cur.Header.Height}}, path...)
		if cur.Header.Height == 0 {
			return path, nil
		}
		parent, err := c.repo.GetBlock(cur.Header.ParentHash)
		if err != nil {
			return nil, fmt.Errorf("chain: walking to genesis: %w", err)
		}
		curHash = cur.Header.ParentHash
		cur = parent
	}
}

// commonAncestorHeight finds the highest height at which both paths agree on
// the block hash.
func commonAncestorHeight(a, b []chainStep) uint64 {
	byHeight := make(map[uint64]common.Hash, len(b))
	for _, s := range b {
		byHeight[s.height] = s.hash
	}
	var ancestor uint64
	for _, s := range a {
		if h, ok := byHeight[s.height]; ok && h == s.hash {
			ancestor = s.height
		}
	}
	return ancestor
}

func (c *Chain) setIsMain(height uint64, hash common.Hash, isMain bool) error {
	infos, err := c.repo.GetBlockInfos(height)
	if err != nil {
		return err
	}
	for _, info := range infos {
		if info.Hash == hash {
			info.IsMain = isMain
		}
	}
	return c.repo.PutBlockInfos(height, infos)
}

// executeBranch replays state transitions for every block on the new branch
// above ancestorHeight, via the executor collaborator. Failures here are
// logged but do not revert the fork-choice decision: the chain engine only
// observes success/failure and the resulting state-root;
// rejecting an already-validated block's transactions is the executor's
// concern, not the import algorithm's.
func (c *Chain) executeBranch(path []chainStep, ancestorHeight uint64) error {
	if c.executor == nil {
		return nil
	}
	for _, step := range path {
		if step.height <= ancestorHeight {
			continue
		}
		b, err := c.repo.GetBlock(step.hash)
		if err != nil {
			return err
		}
		view := c.executor.StartTracking()
		for _, tx := range b.Transactions {
			result := c.executor.Apply(view, tx.Hash(), tx.Sender, tx.Receiver, tx.Amount, tx.Data, tx.GasLimit)
			if !result.Succeeded() {
				log.Warn("executeBranch: transaction halted", "tx", tx.Hash().Hex(), "halt", result.Halt.String())
			}
		}
		if _, err := view.Commit(); err != nil {
			return err
		}
	}
	return nil
}

// CalculateBlockDifficulty derives the difficulty a block built on parent
// should carry, given the candidate's timestamp, via the bounded retarget
// schedule in package pow.
func (c *Chain) CalculateBlockDifficulty(parent *types.Block, candidateTime uint32) uint64 {
	return pow.CalculateNextDifficulty(parent.Header.Difficulty, uint64(parent.Header.Timestamp), uint64(candidateTime))
}

// GenerateNewBlock composes a candidate block extending parent with
// pendingTxs: totalDifficulty is left at zero, to be filled
// once mining succeeds.
func (c *Chain) GenerateNewBlock(parent *types.Block, coinbase common.Address, pendingTxs []*types.Transaction, now time.Time) *types.Block {
	header := types.BlockHeader{
		Version:     parent.Header.Version,
		Height:      parent.Header.Height + 1,
		ParentHash:  parent.Hash(),
		Coinbase:    coinbase,
		Timestamp:   uint32(now.Unix()),
		Difficulty:  c.CalculateBlockDifficulty(parent, uint32(now.Unix())),
		Nonce:       0,
		TrxTrieRoot: types.MerkleRoot(pendingTxs),
		StateRoot:   parent.Header.StateRoot, // provisional; executor fills the real post-execution root on commit
	}
	return &types.Block{
		Header:       header,
		Transactions: pendingTxs,
	}
}

// TotalDifficultyUint256 is a convenience for callers comparing total
// difficulties with the same uint256 arithmetic the difficulty/target code
// uses elsewhere.
func TotalDifficultyUint256(td uint64) *uint256.Int {
	return uint256.NewInt(td)
}

func hexLower(b []byte) string {
	const hexdigits = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, v := range b {
		out[i*2] = hexdigits[v>>4]
		out[i*2+1] = hexdigits[v&0x0f]
	}
	return string(out)
}
