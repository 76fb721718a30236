// Package txpool holds the pending-transaction pool: a multiset of valid but
// unconfirmed transactions, kept in admission order, purged of exactly a
// block's transactions when that block becomes the best block.
package txpool

import (
	"sync"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/example/gnode/common"
	"github.com/example/gnode/core/types"
)

// Pool is mutated from the manager goroutine only; the miner reads an
// immutable snapshot taken at mine-start
type Pool struct {
	mu      sync.Mutex
	order   []common.Hash
	byHash  map[common.Hash]*types.Transaction
	present mapset.Set[common.Hash]
}

func New() *Pool {
	return &Pool{
		byHash:  make(map[common.Hash]*types.Transaction),
		present: mapset.NewSet[common.Hash](),
	}
}

// Admit adds tx to the pool if it isn't already present, preserving
// admission order.
func (p *Pool) Admit(tx *types.Transaction) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	hash := tx.Hash()
	if p.present.Contains(hash) {
		return false
	}
	p.present.Add(hash)
	p.byHash[hash] = tx
	p.order = append(p.order, hash)
	return true
}

// Remove discards a single transaction by hash, if present.
func (p *Pool) Remove(hash common.Hash) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removeLocked(hash)
}

func (p *Pool) removeLocked(hash common.Hash) {
	if !p.present.Contains(hash) {
		return
	}
	p.present.Remove(hash)
	delete(p.byHash, hash)
	for i, h := range p.order {
		if h == hash {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
}

// PurgeIncluded removes exactly the transactions named by hashes -- the set
// carried by a newly-confirmed best block -- leaving every other pending
// transaction untouched. Losing-fork blocks must not call this.
func (p *Pool) PurgeIncluded(hashes []common.Hash) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, h := range hashes {
		p.removeLocked(h)
	}
}

// Pending returns a snapshot of pending transactions in admission order,
// safe to hand to the miner as its stable input for one mining attempt.
func (p *Pool) Pending() []*types.Transaction {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*types.Transaction, 0, len(p.order))
	for _, h := range p.order {
		out = append(out, p.byHash[h])
	}
	return out
}

// Len reports the current pool size.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.order)
}

// Has reports whether a transaction with this hash is pending.
func (p *Pool) Has(hash common.Hash) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.present.Contains(hash)
}
