// Package syncmgr implements the header-first catch-up state machine of
//: IDLE, INIT_SYNC_GET_HEADERS, INIT_SYNC_GET_BLOCKS,
// INIT_SYNC_COMPLETED, driven by peer status and message arrivals, with a
// backwards common-ancestor search in fixed-size windows.
package syncmgr

import (
	"sync"
	"time"

	"github.com/example/gnode/chain"
	"github.com/example/gnode/common"
	"github.com/example/gnode/core/types"
	"github.com/example/gnode/internal/gethlog"
)

var log = gethlog.New("syncmgr")

// State is one of the four sync states this manager cycles through.
type State int

const (
	IDLE State = iota
	INIT_SYNC_GET_HEADERS
	INIT_SYNC_GET_BLOCKS
	INIT_SYNC_COMPLETED
)

func (s State) String() string {
	switch s {
	case IDLE:
		return "IDLE"
	case INIT_SYNC_GET_HEADERS:
		return "INIT_SYNC_GET_HEADERS"
	case INIT_SYNC_GET_BLOCKS:
		return "INIT_SYNC_GET_BLOCKS"
	case INIT_SYNC_COMPLETED:
		return "INIT_SYNC_COMPLETED"
	default:
		return "UNKNOWN"
	}
}

// headerWindow is the fixed-size backwards step used both for the initial
// header request and for each retreat when a header's parent is unknown.
const headerWindow = 200

// headerBatchCount is how many headers are requested per INIT_SYNC_GET_HEADERS round.
const headerBatchCount = 10

// ChainView is the subset of the chain engine the sync manager needs: local
// best height and a way to check whether a hash is already known, so it can
// recognize a common ancestor and hand off imported blocks.
type ChainView interface {
	HasBlock(hash common.Hash) bool
	BestHeight() uint64
	ImportBlock(b *types.Block) chain.ImportResult
}

// PeerRequester is the outbound half of sync: asking the active peer for
// headers or block bodies. Implemented by package p2p; kept as an interface
// here so syncmgr has no transport dependency.
type PeerRequester interface {
	RequestHeaders(fromHeight uint64, count int)
	RequestBlocks(fromHeight uint64)
}

// Manager drives the state machine. Its state-changing methods take mu, so
// concurrent calls are serialized; the manager package calls it from its
// single event thread.
type Manager struct {
	mu sync.Mutex

	state       State
	chain       ChainView
	peer        PeerRequester
	windowStart uint64

	stallTimeout time.Duration
	stallTimer   *time.Timer
}

// New constructs a sync manager in the IDLE state with the given stall
// timeout: no progress for that long reverts to IDLE.
func New(chain ChainView, stallTimeout time.Duration) *Manager {
	m := &Manager{chain: chain, state: IDLE, stallTimeout: stallTimeout}
	m.stallTimer = time.NewTimer(stallTimeout)
	m.stallTimer.Stop()
	return m
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// StallC exposes the stall timer's channel so the manager's event loop can
// select on it alongside peer messages.
func (m *Manager) StallC() <-chan time.Time {
	return m.stallTimer.C
}

// HandleStallTimeout reverts to IDLE when no sync progress has been observed
// within the stall timeout. Safe to call even if the timer fired spuriously
// after a transition already reset it.
func (m *Manager) HandleStallTimeout() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == IDLE {
		return
	}
	log.Warn("sync stalled, reverting to idle", "state", m.state.String())
	m.state = IDLE
}

func (m *Manager) resetStallTimer() {
	if !m.stallTimer.Stop() {
		select {
		case <-m.stallTimer.C:
		default:
		}
	}
	if m.stallTimeout > 0 {
		m.stallTimer.Reset(m.stallTimeout)
	}
}

func clampHeight(h int64) uint64 {
	if h < 1 {
		return 1
	}
	return uint64(h)
}

// OnPeerStatus is the IDLE-state trigger: a peer announced a totalDifficulty
// greater than ours. bestHeight==0 (no local chain yet) goes straight to
// bulk block fetch from height 1; otherwise start a header-first
// common-ancestor search headerWindow blocks back from our tip.
func (m *Manager) OnPeerStatus(peer PeerRequester, peerTotalDifficulty, ourTotalDifficulty uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != IDLE || peerTotalDifficulty <= ourTotalDifficulty {
		return
	}
	m.peer = peer
	best := m.chain.BestHeight()
	if best == 0 {
		m.state = INIT_SYNC_GET_BLOCKS
		m.resetStallTimer()
		peer.RequestBlocks(1)
		return
	}
	m.windowStart = clampHeight(int64(best) - headerWindow + 1)
	m.state = INIT_SYNC_GET_HEADERS
	m.resetStallTimer()
	peer.RequestHeaders(m.windowStart, headerBatchCount)
}

// OnHeaders handles a BlockHeaders arrival while in INIT_SYNC_GET_HEADERS.
func (m *Manager) OnHeaders(headers []*types.BlockHeader) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != INIT_SYNC_GET_HEADERS {
		return
	}
	m.resetStallTimer()

	if len(headers) == 0 {
		m.state = INIT_SYNC_COMPLETED
		return
	}

	first := headers[0]
	if m.chain.HasBlock(first.ParentHash) {
		m.state = INIT_SYNC_GET_BLOCKS
		m.peer.RequestBlocks(first.Height)
		return
	}

	m.windowStart = clampHeight(int64(m.windowStart) - headerWindow)
	m.peer.RequestHeaders(m.windowStart, headerBatchCount)
}

// OnBlocks handles a Blocks arrival while in INIT_SYNC_GET_BLOCKS: every
// block is imported in order; hasMore signals whether the peer has further
// bodies to send for this run.
func (m *Manager) OnBlocks(blocks []*types.Block, hasMore bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != INIT_SYNC_GET_BLOCKS {
		return
	}
	m.resetStallTimer()

	var lastHeight uint64
	for _, b := range blocks {
		m.chain.ImportBlock(b)
		lastHeight = b.Header.Height
	}

	if !hasMore {
		m.state = INIT_SYNC_COMPLETED
		return
	}
	m.peer.RequestBlocks(lastHeight + 1)
}

// Reset returns the manager to IDLE, e.g. after INIT_SYNC_COMPLETED has been
// observed by the manager and it wants to go idle again.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = IDLE
	m.stallTimer.Stop()
}
