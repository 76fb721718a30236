package p2p

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/example/gnode/chain"
	"github.com/example/gnode/common"
	"github.com/example/gnode/core/types"
	"github.com/example/gnode/crypto"
	"github.com/example/gnode/syncmgr"
	"github.com/example/gnode/txpool"
)

// fakeTransport records every frame written to it, with no real network.
type fakeTransport struct {
	sent []struct {
		code    Code
		payload []byte
	}
}

func (f *fakeTransport) WriteFrame(code Code, payload []byte) error {
	f.sent = append(f.sent, struct {
		code    Code
		payload []byte
	}{code, payload})
	return nil
}
func (f *fakeTransport) ReadFrame() (Code, []byte, error) { return 0, nil, nil }
func (f *fakeTransport) Close() error                     { return nil }

func newTestPeer() (*Peer, *fakeTransport) {
	ft := &fakeTransport{}
	return NewPeer(ft), ft
}

// fakeChainImporter is a minimal ChainImporter stub independent of a real
// repository, for dispatcher unit tests.
type fakeChainImporter struct {
	result     chain.ImportResult
	bestTD     uint64
	bestHeight uint64
	imported   []*types.Block
}

func (f *fakeChainImporter) ImportBlock(b *types.Block) chain.ImportResult {
	f.imported = append(f.imported, b)
	return f.result
}
func (f *fakeChainImporter) BestTotalDifficulty() uint64 { return f.bestTD }
func (f *fakeChainImporter) BestHeight() uint64          { return f.bestHeight }

type fakeMiningController struct {
	stopped, started int
}

func (m *fakeMiningController) StopMining()  { m.stopped++ }
func (m *fakeMiningController) StartMining() { m.started++ }

func newTestDispatcher(t *testing.T, result chain.ImportResult) (*Dispatcher, *fakeChainImporter, *fakeMiningController, *PeerSet, func() []*types.Block) {
	t.Helper()
	fc := &fakeChainImporter{result: result}
	mc := &fakeMiningController{}
	peers := NewPeerSet()
	sync := syncmgr.New(fakeSyncChain{}, 0)
	pool := txpool.New()
	var broadcasted []*types.Block
	d := NewDispatcher(fc, nil, pool, peers, sync, mc, func(b *types.Block, from *Peer) {
		broadcasted = append(broadcasted, b)
	})
	return d, fc, mc, peers, func() []*types.Block { return broadcasted }
}

// fakeSyncChain satisfies syncmgr.ChainView without a real chain.Chain.
type fakeSyncChain struct{}

func (fakeSyncChain) HasBlock(h common.Hash) bool { return false }
func (fakeSyncChain) BestHeight() uint64          { return 0 }
func (fakeSyncChain) ImportBlock(b *types.Block) chain.ImportResult {
	return chain.BEST_BLOCK
}

func signedTx(t *testing.T, nonce byte) *types.Transaction {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	pub := key.PublicKeyBytes()
	tx := &types.Transaction{
		Sender:     crypto.PubkeyToAddress(pub),
		Receiver:   crypto.PubkeyToAddress(pub),
		Amount:     big.NewInt(1),
		PublicKey:  pub,
		NonceBytes: []byte{nonce},
		GasPrice:   big.NewInt(1),
	}
	h := tx.Hash()
	sig, err := key.Sign(h[:])
	require.NoError(t, err)
	tx.Signature = sig
	return tx
}

func TestDispatchNewTransactionsAdmitsValidAndPenalizesInvalid(t *testing.T) {
	d, _, _, peers, _ := newTestDispatcher(t, chain.NON_BEST_BLOCK)
	peer, _ := newTestPeer()
	peers.Connect(peer)

	good := signedTx(t, 1)
	bad := signedTx(t, 2)
	bad.Signature = []byte("not a real signature of the right length!!")

	payload, err := EncodeTransactions([]*types.Transaction{good, bad})
	require.NoError(t, err)

	err = d.Dispatch(peer, CodeNewTransactions, payload)
	require.NoError(t, err)
	require.Equal(t, 1, d.pool.Len())
	require.True(t, d.pool.Has(good.Hash()))
	require.Equal(t, -1, peer.score)
}

func TestDispatchNewBlockBroadcastsOnlyWhenBest(t *testing.T) {
	d, fc, _, peers, broadcasted := newTestDispatcher(t, chain.BEST_BLOCK)
	peer, _ := newTestPeer()
	peers.Connect(peer)

	b := &types.Block{Header: types.BlockHeader{Height: 1}}
	payload, err := EncodeBlocks([]*types.Block{b}, false)
	require.NoError(t, err)

	require.NoError(t, d.Dispatch(peer, CodeNewBlock, payload))
	require.Len(t, fc.imported, 1)
	require.Len(t, broadcasted(), 1)
}

func TestDispatchStatusArbitratesMiningVsSync(t *testing.T) {
	d, fc, mc, peers, _ := newTestDispatcher(t, chain.NON_BEST_BLOCK)
	fc.bestTD = 100
	peer, _ := newTestPeer()
	peers.Connect(peer)

	ahead := Status{TotalDifficulty: 200}
	require.NoError(t, d.Dispatch(peer, CodeStatus, EncodeStatus(ahead)))
	require.Equal(t, 1, mc.stopped)

	behind := Status{TotalDifficulty: 50}
	require.NoError(t, d.Dispatch(peer, CodeStatus, EncodeStatus(behind)))
	require.Equal(t, 1, mc.started)
}

func TestDispatchGetNodesExcludesRequester(t *testing.T) {
	d, _, _, peers, _ := newTestDispatcher(t, chain.NON_BEST_BLOCK)
	requester, requesterTransport := newTestPeer()
	other, _ := newTestPeer()
	peers.Connect(requester)
	peers.Connect(other)

	require.NoError(t, d.Dispatch(requester, CodeGetNodes, nil))
	require.Len(t, requesterTransport.sent, 1)
	require.Equal(t, CodeNodes, requesterTransport.sent[0].code)
	require.Equal(t, other.ID[:], requesterTransport.sent[0].payload)
}
