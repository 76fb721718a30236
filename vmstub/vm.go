// Package vmstub declares the interface the chain engine invokes to apply a
// transaction against the world-state. The stack-based VM's internal
// algorithm (opcodes, gas accounting, contract-creation address derivation,
// code-size limits) is out of scope; this package only fixes the
// collaborator contract and the tagged-result shape the chain engine
// branches on.
package vmstub

import (
	"math/big"

	"github.com/example/gnode/common"
	"github.com/example/gnode/core/types"
)

// HaltReason tags how execution of a single transaction ended. VM halts are
// represented as this tagged variant rather than as thrown errors, so the
// chain engine can branch on the tag without depending on VM internals.
type HaltReason int

const (
	HaltNone HaltReason = iota
	HaltOutOfGas
	HaltBadJump
	HaltStackUnderflow
	HaltStackOverflow
	HaltIllegalOp
	HaltRevert
	HaltReturn
)

func (r HaltReason) String() string {
	switch r {
	case HaltNone:
		return "none"
	case HaltOutOfGas:
		return "out-of-gas"
	case HaltBadJump:
		return "bad-jump"
	case HaltStackUnderflow:
		return "stack-underflow"
	case HaltStackOverflow:
		return "stack-overflow"
	case HaltIllegalOp:
		return "illegal-op"
	case HaltRevert:
		return "revert"
	case HaltReturn:
		return "return"
	default:
		return "unknown"
	}
}

// ExecResult is what the chain engine observes after applying one
// transaction: success/failure via Halt, the gas actually consumed, and the
// resulting state-root if the transaction committed.
type ExecResult struct {
	Halt      HaltReason
	GasUsed   uint64
	StateRoot common.Hash
	ReturnData []byte
}

// Succeeded reports whether the transaction committed its state changes.
func (r ExecResult) Succeeded() bool {
	return r.Halt == HaltNone || r.Halt == HaltReturn
}

// StateView is the mutable world-state view the executor operates against,
// obtained via StartTracking. Commit finalizes mutations into a new
// state-root; Rollback discards them.
type StateView interface {
	GetAccount(addr common.Address) (*types.AccountState, bool)
	SetAccount(addr common.Address, acc *types.AccountState)
	Commit() (common.Hash, error)
	Rollback()
}

// Executor applies one transaction against a StateView obtained via
// StartTracking. The chain engine only observes ExecResult; gas accounting,
// CREATE-address derivation, and code-size limits are the executor's own
// concern.
type Executor interface {
	StartTracking() StateView
	Apply(view StateView, txHash common.Hash, sender, receiver common.Address, amount *big.Int, data []byte, gasLimit uint64) ExecResult
}
