package types

import (
	"math/big"

	"github.com/example/gnode/common"
)

// AccountState is the world-state record for one address. A contract is an
// account whose CodeHash differs from the empty sentinel.
type AccountState struct {
	Nonce     *big.Int
	Balance   *big.Int
	StateRoot common.Hash
	CodeHash  common.Hash
}

// NewEmptyAccountState returns a fresh, zero-balance account with the fixed
// sentinel state-root and code-hash.
func NewEmptyAccountState() *AccountState {
	return &AccountState{
		Nonce:     new(big.Int),
		Balance:   new(big.Int),
		StateRoot: common.EmptyStateRoot,
		CodeHash:  common.EmptyCodeHash,
	}
}

// IsContract reports whether this account owns non-empty code.
func (a *AccountState) IsContract() bool {
	return a.CodeHash != common.EmptyCodeHash
}

// BlockInfo is the per-height bookkeeping record the repository keeps
// alongside each imported block. A height may carry several BlockInfos
// during a fork; exactly one has IsMain set at any time.
type BlockInfo struct {
	Hash            common.Hash
	IsMain          bool
	TotalDifficulty uint64
}
