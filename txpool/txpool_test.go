package txpool

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/example/gnode/common"
	"github.com/example/gnode/core/types"
)

func newTx(nonce byte) *types.Transaction {
	return &types.Transaction{
		Sender:     common.BytesToAddress([]byte{1}),
		Receiver:   common.BytesToAddress([]byte{2}),
		Amount:     big.NewInt(1),
		NonceBytes: []byte{nonce},
		GasPrice:   big.NewInt(1),
	}
}

func TestAdmitPreservesOrderAndDedups(t *testing.T) {
	p := New()
	t1, t2, t3 := newTx(1), newTx(2), newTx(3)
	require.True(t, p.Admit(t1))
	require.True(t, p.Admit(t2))
	require.True(t, p.Admit(t3))
	require.False(t, p.Admit(t1)) // duplicate

	pending := p.Pending()
	require.Len(t, pending, 3)
	require.Equal(t, t1.Hash(), pending[0].Hash())
	require.Equal(t, t2.Hash(), pending[1].Hash())
	require.Equal(t, t3.Hash(), pending[2].Hash())
}

func TestPurgeIncludedRemovesExactlyThoseTxs(t *testing.T) {
	p := New()
	t1, t2, t3, t4 := newTx(1), newTx(2), newTx(3), newTx(4)
	for _, tx := range []*types.Transaction{t1, t2, t3, t4} {
		p.Admit(tx)
	}

	p.PurgeIncluded([]common.Hash{t1.Hash(), t3.Hash()})

	pending := p.Pending()
	require.Len(t, pending, 2)
	require.Equal(t, t2.Hash(), pending[0].Hash())
	require.Equal(t, t4.Hash(), pending[1].Hash())
}
