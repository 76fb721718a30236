// Package manager is the node's central lifecycle object: a single event
// thread owning every chain-engine mutation, one background worker
// dedicated to mining, with network messages delivered onto the event
// thread rather than processed inline on a connection goroutine.
//
// Guarantees: at most one mining task runs; starting
// mining while syncing is a no-op; importing a new best block while mining
// cancels the miner if the new block's height is at or above the miner's
// in-flight height; a mined or imported best block is broadcast excluding
// the peer it came from; the pending pool is purged of exactly the included
// block's transactions, never on a losing-fork import.
package manager

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/gnode/chain"
	"github.com/example/gnode/common"
	"github.com/example/gnode/core/types"
	"github.com/example/gnode/internal/gethlog"
	"github.com/example/gnode/miner"
	"github.com/example/gnode/p2p"
	"github.com/example/gnode/repository"
	"github.com/example/gnode/syncmgr"
	"github.com/example/gnode/txpool"
)

var log = gethlog.New("manager")

type inboundMessage struct {
	peer    *p2p.Peer
	code    p2p.Code
	payload []byte
}

// Manager wires the chain engine, pending pool, peer roster, sync manager
// and miner into a single event thread.
type Manager struct {
	chain    *chain.Chain
	pool     *txpool.Pool
	peers    *p2p.PeerSet
	sync     *syncmgr.Manager
	dispatch *p2p.Dispatcher
	coinbase common.Address

	inbound chan inboundMessage
	mined   chan miner.MineResult
	quit    chan struct{}
	wg      sync.WaitGroup

	mu     sync.Mutex
	handle *miner.Handle
	mining bool
}

// New wires a Manager over its collaborators. repo backs the dispatcher's
// GET_BLOCKS/GET_BLOCK_HEADERS replies; coinbase is the address mined
// blocks credit.
func New(c *chain.Chain, repo *repository.Repository, pool *txpool.Pool, peers *p2p.PeerSet, sm *syncmgr.Manager, coinbase common.Address) *Manager {
	m := &Manager{
		chain:    c,
		pool:     pool,
		peers:    peers,
		sync:     sm,
		coinbase: coinbase,
		inbound:  make(chan inboundMessage, 64),
		mined:    make(chan miner.MineResult, 1),
		quit:     make(chan struct{}),
	}
	m.dispatch = p2p.NewDispatcher(c, repo, pool, peers, sm, m, m.onPeerBlock)
	return m
}

// Deliver enqueues a decoded frame for processing on the event thread. Safe
// to call from any connection goroutine: network handlers never block the
// manager thread on I/O beyond enqueuing the frame.
func (m *Manager) Deliver(peer *p2p.Peer, code p2p.Code, payload []byte) {
	select {
	case m.inbound <- inboundMessage{peer, code, payload}:
	case <-m.quit:
	}
}

// ServePeer reads frames off peer's transport until it errs or Manager
// stops, delivering each onto the event thread, then disconnects the peer.
func (m *Manager) ServePeer(peer *p2p.Peer) {
	for {
		code, payload, err := peer.Receive()
		if err != nil {
			m.peers.Disconnect(peer.ID)
			return
		}
		m.Deliver(peer, code, payload)
	}
}

// Run is the manager's single event thread: it never returns until Stop is
// called. Start exactly one goroutine on this method.
func (m *Manager) Run() {
	for {
		select {
		case msg := <-m.inbound:
			if err := m.dispatch.Dispatch(msg.peer, msg.code, msg.payload); err != nil {
				log.Warn("dispatch failed", "peer", msg.peer.ID.String(), "code", msg.code.String(), "err", err)
			}
			m.afterSyncTransition()

		case result := <-m.mined:
			m.onMineResult(result)

		case <-m.sync.StallC():
			m.sync.HandleStallTimeout()
			m.afterSyncTransition()

		case <-m.quit:
			return
		}
	}
}

// Stop ends the event thread and waits for the in-flight mining worker, if
// any, to observe cancellation and return.
func (m *Manager) Stop() {
	m.StopMining()
	close(m.quit)
	m.wg.Wait()
}

// afterSyncTransition notices when the sync manager has reached
// INIT_SYNC_COMPLETED and resumes normal operation: go idle, then call
// StartMining.
func (m *Manager) afterSyncTransition() {
	if m.sync.State() == syncmgr.INIT_SYNC_COMPLETED {
		m.sync.Reset()
		m.StartMining()
	}
}

// StopMining cancels the in-flight mining attempt, if any. Idempotent.
func (m *Manager) StopMining() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handle != nil {
		m.handle.Stop()
	}
	m.mining = false
}

// StartMining begins a new mining attempt over the current best block and
// pending pool snapshot. A no-op if a mining task is already running, or if
// the sync manager is not IDLE.
func (m *Manager) StartMining() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mining {
		return
	}
	if m.sync.State() != syncmgr.IDLE {
		return
	}

	best, err := m.chain.GetBestBlock()
	if err != nil {
		log.Error("mining: failed to load best block", "err", err)
		return
	}

	pending := m.pool.Pending()
	candidate := m.chain.GenerateNewBlock(best, m.coinbase, pending, time.Now())
	parentTD := m.chain.BestTotalDifficulty()

	h := &miner.Handle{}
	m.handle = h
	m.mining = true

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		result := miner.Mine(h, candidate, parentTD)
		select {
		case m.mined <- result:
		case <-m.quit:
		}
	}()
}

// onMineResult runs on the event thread after the background miner worker
// returns, whether by success, cancellation, or nonce-space exhaustion.
func (m *Manager) onMineResult(result miner.MineResult) {
	m.mu.Lock()
	m.mining = false
	m.handle = nil
	m.mu.Unlock()

	if !result.Success {
		m.StartMining()
		return
	}

	if importResult := m.chain.ImportBlock(result.Block); importResult == chain.BEST_BLOCK {
		m.pool.PurgeIncluded(includedHashes(result.Block))
		m.broadcastBlock(result.Block, nil)
	}
	m.StartMining()
}

// onPeerBlock is the dispatcher's broadcast hook: it runs on the event
// thread immediately after a peer's NEW_BLOCK becomes the best block.
func (m *Manager) onPeerBlock(b *types.Block, from *p2p.Peer) {
	m.mu.Lock()
	if m.handle != nil && b.Header.Height >= m.handle.Height() {
		m.handle.Stop()
	}
	m.mu.Unlock()

	m.pool.PurgeIncluded(includedHashes(b))
	m.broadcastBlock(b, from)
}

// broadcastBlock relays a newly-best block to every connected peer except
// the one it arrived from (nil for a locally mined block).
func (m *Manager) broadcastBlock(b *types.Block, from *p2p.Peer) {
	payload, err := p2p.EncodeBlocks([]*types.Block{b}, false)
	if err != nil {
		log.Error("broadcast: failed to encode block", "err", err)
		return
	}
	var excluded uuid.UUID
	if from != nil {
		excluded = from.ID
	}
	for _, peer := range m.peers.Roster(excluded) {
		if err := peer.Send(p2p.CodeNewBlock, payload); err != nil {
			log.Warn("broadcast: send failed", "peer", peer.ID.String(), "err", err)
		}
	}
}

func includedHashes(b *types.Block) []common.Hash {
	hashes := make([]common.Hash, len(b.Transactions))
	for i, tx := range b.Transactions {
		hashes[i] = tx.Hash()
	}
	return hashes
}
