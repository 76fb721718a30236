package manager

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/example/gnode/chain"
	"github.com/example/gnode/common"
	"github.com/example/gnode/core/types"
	"github.com/example/gnode/crypto"
	"github.com/example/gnode/miner"
	"github.com/example/gnode/p2p"
	"github.com/example/gnode/pow"
	"github.com/example/gnode/repository"
	"github.com/example/gnode/syncmgr"
	"github.com/example/gnode/txpool"
)

// easyDifficulty mirrors chain's test constant: an exponent near the top of
// the compact range, so sealing a block never needs more than a handful of
// nonce attempts (see chain/chain_test.go and DESIGN.md "Open Questions
// resolved" #2).
const easyDifficulty = 0x20ffffff

func seal(t *testing.T, h types.BlockHeader) types.BlockHeader {
	t.Helper()
	target := pow.Target(h.Difficulty)
	for nonce := uint32(0); ; nonce++ {
		h.Nonce = nonce
		hash := h.Hash()
		if pow.HashMeetsTarget(hexLowerTest(hash[:]), target) {
			return h
		}
		if nonce == ^uint32(0) {
			t.Fatal("exhausted nonce space sealing test block")
		}
	}
}

func hexLowerTest(b []byte) string {
	const hexdigits = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, v := range b {
		out[i*2] = hexdigits[v>>4]
		out[i*2+1] = hexdigits[v&0x0f]
	}
	return string(out)
}

func genesisBlock() *types.Block {
	h := types.BlockHeader{
		Version:     1,
		Height:      0,
		Timestamp:   1700000000,
		Difficulty:  easyDifficulty,
		TrxTrieRoot: types.MerkleRoot(nil),
	}
	return &types.Block{Header: h}
}

// signedTx builds a valid, independently-verifiable transaction.
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

func newTestManager(t *testing.T) (*Manager, *chain.Chain, *txpool.Pool) {
	t.Helper()
	repo, err := repository.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	c := chain.Open(repo, nil)
	genesis := genesisBlock()
	genesis.Header = seal(t, genesis.Header)
	require.Equal(t, chain.BEST_BLOCK, c.ImportBlock(genesis))

	pool := txpool.New()
	peers := p2p.NewPeerSet()
	sm := syncmgr.New(c, time.Hour)
	m := New(c, repo, pool, peers, sm, common.BytesToAddress([]byte{1}))
	return m, c, pool
}

func TestStartMiningIsNoOpWhileSyncing(t *testing.T) {
	m, _, _ := newTestManager(t)

	// Any peer status ahead of ours (genesis-only, height 0) drives the sync
	// manager straight out of IDLE.
	m.sync.OnPeerStatus(noopRequester{}, 100, 0)
	require.NotEqual(t, syncmgr.IDLE, m.sync.State())

	m.StartMining()

	m.mu.Lock()
	mining := m.mining
	m.mu.Unlock()
	require.False(t, mining, "StartMining must no-op while syncing")
}

type noopRequester struct{}

func (noopRequester) RequestHeaders(fromHeight uint64, count int) {}
func (noopRequester) RequestBlocks(fromHeight uint64)             {}

func TestMinedBlockBecomesBestAndPurgesPool(t *testing.T) {
	m, c, pool := newTestManager(t)

	tx := signedTx(t, 1)
	pool.Admit(tx)

	go m.Run()
	t.Cleanup(m.Stop)

	m.StartMining()

	require.Eventually(t, func() bool {
		return c.BestHeight() == 1
	}, 5*time.Second, time.Millisecond)

	require.False(t, pool.Has(tx.Hash()), "included transaction must be purged from the pool")
}

func TestPeerBlockCancelsInFlightMinerAtOrAboveItsHeight(t *testing.T) {
	m, c, _ := newTestManager(t)
	best, err := c.GetBestBlock()
	require.NoError(t, err)

	// An astronomically hard candidate, same pattern as
	// miner/miner_test.go's cancellation test: without an external stop it
	// would never seal within any reasonable test timeout.
	const hardDifficulty = 0x01010000
	candidate := &types.Block{Header: types.BlockHeader{
		Version:     1,
		Height:      best.Header.Height + 1,
		ParentHash:  best.Hash(),
		Timestamp:   best.Header.Timestamp + 20,
		Difficulty:  hardDifficulty,
		TrxTrieRoot: types.MerkleRoot(nil),
	}}

	h := &miner.Handle{}
	m.mu.Lock()
	m.handle = h
	m.mining = true
	m.mu.Unlock()

	done := make(chan miner.MineResult, 1)
	go func() {
		done <- miner.Mine(h, candidate, c.BestTotalDifficulty())
	}()

	require.Eventually(t, func() bool { return h.Height() == candidate.Header.Height }, time.Second, time.Millisecond)

	peerBlock := &types.Block{Header: types.BlockHeader{Height: candidate.Header.Height}}
	m.onPeerBlock(peerBlock, nil)

	select {
	case result := <-done:
		require.False(t, result.Success, "cancellation must stop the in-flight attempt before it seals")
	case <-time.After(time.Second):
		t.Fatal("miner did not observe cancellation in time")
	}
}

func TestBroadcastExcludesOriginPeer(t *testing.T) {
	m, _, _ := newTestManager(t)

	origin, _ := newFakePeer()
	other, otherTransport := newFakePeer()
	m.peers.Connect(origin)
	m.peers.Connect(other)

	b := &types.Block{Header: types.BlockHeader{Height: 1}}
	m.broadcastBlock(b, origin)

	require.Len(t, otherTransport.sent, 1)
	require.Equal(t, p2p.CodeNewBlock, otherTransport.sent[0].code)
}

// fakeTransport/newFakePeer mirror p2p's own test doubles, kept local here
// since manager has no access to p2p's unexported test helpers.
type fakeTransport struct {
	sent []struct {
		code    p2p.Code
		payload []byte
	}
}

func (f *fakeTransport) WriteFrame(code p2p.Code, payload []byte) error {
	f.sent = append(f.sent, struct {
		code    p2p.Code
		payload []byte
	}{code, payload})
	return nil
}
func (f *fakeTransport) ReadFrame() (p2p.Code, []byte, error) { return 0, nil, nil }
func (f *fakeTransport) Close() error                         { return nil }

func newFakePeer() (*p2p.Peer, *fakeTransport) {
	ft := &fakeTransport{}
	return p2p.NewPeer(ft), ft
}
