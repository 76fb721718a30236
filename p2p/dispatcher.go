package p2p

import (
	"fmt"

	"golang.org/x/sync/singleflight"

	"github.com/example/gnode/chain"
	"github.com/example/gnode/core/types"
	"github.com/example/gnode/repository"
	"github.com/example/gnode/syncmgr"
	"github.com/example/gnode/txpool"
)

// MiningController is the subset of the manager's lifecycle control the
// dispatcher needs to arbitrate mine-vs-sync on STATUS.
type MiningController interface {
	StopMining()
	StartMining()
}

// ChainImporter is the subset of the chain engine the dispatcher drives.
type ChainImporter interface {
	ImportBlock(b *types.Block) chain.ImportResult
	BestTotalDifficulty() uint64
	BestHeight() uint64
}

// Dispatcher decodes a wire frame into {code, payload} and routes it to
// chain / sync / txpool / peer-roster actions Each
// message handler is fault-isolated: a bad message is logged and dropped,
// never disconnecting the peer unless it is DISCONNECT or the peer's
// consensus-error score crosses the threshold.
type Dispatcher struct {
	chain   ChainImporter
	repo    *repository.Repository
	pool    *txpool.Pool
	peers   *PeerSet
	sync    *syncmgr.Manager
	mining  MiningController
	onBlock func(b *types.Block, from *Peer) // broadcast hook, wired by manager

	// blockFetch collapses concurrent GET_BLOCKS/GET_BLOCK_HEADERS requests
	// for the same starting height -- several peers catching up from the same point
	// share one repository read instead of each walking it independently.
	blockFetch singleflight.Group
}

// NewDispatcher constructs a dispatcher over its collaborators. repo backs
// the GET_BLOCKS/GET_BLOCK_HEADERS replies, walking main-chain BlockInfos
// for each requested range.
func NewDispatcher(c ChainImporter, repo *repository.Repository, pool *txpool.Pool, peers *PeerSet, sync *syncmgr.Manager, mining MiningController, onBlock func(*types.Block, *Peer)) *Dispatcher {
	return &Dispatcher{chain: c, repo: repo, pool: pool, peers: peers, sync: sync, mining: mining, onBlock: onBlock}
}

// mainChainBlocksFrom collects the main-chain blocks from height `from`
// through the local tip, loading each from the repository by its
// main-chain BlockInfo.
func (d *Dispatcher) mainChainBlocksFrom(from uint64) ([]*types.Block, error) {
	var blocks []*types.Block
	best := d.chain.BestHeight()
	for h := from; h <= best; h++ {
		infos, err := d.repo.GetBlockInfos(h)
		if err != nil {
			return nil, err
		}
		for _, info := range infos {
			if !info.IsMain {
				continue
			}
			b, err := d.repo.GetBlock(info.Hash)
			if err != nil {
				return nil, err
			}
			blocks = append(blocks, b)
			break
		}
	}
	return blocks, nil
}

// fetchMainChainBlocksFrom collapses concurrent requests for the same
// starting height into a single repository walk via singleflight, since
// several peers commonly catch up from the same common-ancestor height at
// once.
func (d *Dispatcher) fetchMainChainBlocksFrom(from uint64) ([]*types.Block, error) {
	key := fmt.Sprintf("%d", from)
	v, err, _ := d.blockFetch.Do(key, func() (interface{}, error) {
		return d.mainChainBlocksFrom(from)
	})
	if err != nil {
		return nil, err
	}
	return v.([]*types.Block), nil
}

// peerRequester adapts one Peer into the syncmgr.PeerRequester interface.
type peerRequester struct{ p *Peer }

func (r peerRequester) RequestHeaders(fromHeight uint64, count int) {
	r.p.Send(CodeGetBlockHeaders, EncodeHeightRequest(fromHeight, uint32(count)))
}

func (r peerRequester) RequestBlocks(fromHeight uint64) {
	r.p.Send(CodeGetBlocks, EncodeHeightRequest(fromHeight, 0))
}

// Dispatch decodes and routes a single frame received from peer. Every code
// but DISCONNECT is subject to the peer's request-rate budget (PeerSet.Allow);
// a peer that exceeds it has the frame dropped and its consensus-error score
// penalized rather than processed.
func (d *Dispatcher) Dispatch(peer *Peer, code Code, payload []byte) error {
	if code != CodeDisconnect && !d.peers.Allow(peer.ID) {
		log.Warn("dispatch: peer exceeded request-rate budget, dropping frame", "peer", peer.ID.String(), "code", code.String())
		d.peers.Penalize(peer.ID)
		return nil
	}

	switch code {
	case CodeDisconnect:
		d.peers.Disconnect(peer.ID)
		return nil

	case CodeStatus:
		status, err := DecodeStatus(payload)
		if err != nil {
			log.Warn("dispatch: bad STATUS payload", "peer", peer.ID.String(), "err", err)
			return nil
		}
		peer.Status = status
		if status.TotalDifficulty > d.chain.BestTotalDifficulty() {
			d.mining.StopMining()
			d.sync.OnPeerStatus(peerRequester{peer}, status.TotalDifficulty, d.chain.BestTotalDifficulty())
		} else {
			d.mining.StartMining()
		}
		return nil

	case CodeGetNodes:
		return d.replyNodes(peer)

	case CodeNodes:
		// NODES frames are accepted and dropped: the payload is neither
		// decoded nor merged into any discovery set, here or in the manager.
		return nil

	case CodeNewTransactions:
		txs, err := DecodeTransactions(payload)
		if err != nil {
			log.Warn("dispatch: bad NEW_TRANSACTIONS payload", "peer", peer.ID.String(), "err", err)
			return nil
		}
		for _, tx := range txs {
			if !tx.VerifySignature() {
				d.peers.Penalize(peer.ID)
				continue
			}
			d.pool.Admit(tx)
		}
		return nil

	case CodeNewBlock:
		blocks, _, err := DecodeBlocks(payload)
		if err != nil || len(blocks) != 1 {
			log.Warn("dispatch: bad NEW_BLOCK payload", "peer", peer.ID.String(), "err", err)
			return nil
		}
		b := blocks[0]
		result := d.chain.ImportBlock(b)
		if result == chain.INVALID {
			d.peers.Penalize(peer.ID)
			return nil
		}
		if result == chain.BEST_BLOCK {
			if d.onBlock != nil {
				d.onBlock(b, peer)
			}
		}
		return nil

	case CodeGetBlocks:
		from, _, err := DecodeHeightRequest(payload)
		if err != nil {
			return nil
		}
		return d.replyBlocks(peer, from)

	case CodeBlocks:
		blocks, hasMore, err := DecodeBlocks(payload)
		if err != nil {
			log.Warn("dispatch: bad BLOCKS payload", "peer", peer.ID.String(), "err", err)
			return nil
		}
		d.sync.OnBlocks(blocks, hasMore)
		return nil

	case CodeGetBlockHeaders:
		from, count, err := DecodeHeightRequest(payload)
		if err != nil {
			return nil
		}
		return d.replyHeaders(peer, from, count)

	case CodeBlockHeaders:
		headers, err := DecodeBlockHeaders(payload)
		if err != nil {
			log.Warn("dispatch: bad BLOCK_HEADERS payload", "peer", peer.ID.String(), "err", err)
			return nil
		}
		d.sync.OnHeaders(headers)
		return nil

	default:
		return fmt.Errorf("p2p: unknown message code %d", code)
	}
}

func (d *Dispatcher) replyNodes(peer *Peer) error {
	roster := d.peers.Roster(peer.ID)
	var payload []byte
	for _, p := range roster {
		payload = append(payload, p.ID[:]...)
	}
	return peer.Send(CodeNodes, payload)
}

// replyBlocks answers GET_BLOCKS with every main-chain block from height
// `from` through the local tip, marked as no-more-remain since the whole
// requested range is returned in one frame.
func (d *Dispatcher) replyBlocks(peer *Peer, from uint64) error {
	blocks, err := d.fetchMainChainBlocksFrom(from)
	if err != nil {
		log.Error("dispatch: failed collecting blocks for GET_BLOCKS reply", "err", err)
		return nil
	}
	payload, err := EncodeBlocks(blocks, false)
	if err != nil {
		return err
	}
	return peer.Send(CodeBlocks, payload)
}

// replyHeaders answers GET_BLOCK_HEADERS with up to count main-chain headers
// starting at height `from`.
func (d *Dispatcher) replyHeaders(peer *Peer, from uint64, count uint32) error {
	best := d.chain.BestHeight()
	through := from + uint64(count) - 1
	if through > best {
		through = best
	}
	blocks, err := d.fetchMainChainBlocksFrom(from)
	if err != nil {
		log.Error("dispatch: failed collecting headers for GET_BLOCK_HEADERS reply", "err", err)
		return nil
	}
	headers := make([]*types.BlockHeader, 0, len(blocks))
	for _, b := range blocks {
		if b.Header.Height > through {
			break
		}
		h := b.Header
		headers = append(headers, &h)
	}
	payload, err := EncodeBlockHeaders(headers)
	if err != nil {
		return err
	}
	return peer.Send(CodeBlockHeaders, payload)
}
