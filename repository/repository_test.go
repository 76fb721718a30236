package repository

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/example/gnode/common"
	"github.com/example/gnode/core/types"
)

func openTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestPutGetBlock(t *testing.T) {
	repo := openTestRepo(t)
	b := &types.Block{Header: types.BlockHeader{Height: 1, Difficulty: 10}}
	require.False(t, repo.HasBlock(b.Hash()))

	require.NoError(t, repo.PutBlock(b))
	require.True(t, repo.HasBlock(b.Hash()))

	got, err := repo.GetBlock(b.Hash())
	require.NoError(t, err)
	require.Equal(t, b.Header.Height, got.Header.Height)
}

func TestGetBlockMissing(t *testing.T) {
	repo := openTestRepo(t)
	_, err := repo.GetBlock(common.BytesToHash([]byte{1}))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestBlockInfosMultiplePerHeight(t *testing.T) {
	repo := openTestRepo(t)
	infos := []*types.BlockInfo{
		{Hash: common.BytesToHash([]byte{1}), IsMain: true, TotalDifficulty: 30},
		{Hash: common.BytesToHash([]byte{2}), IsMain: false, TotalDifficulty: 25},
	}
	require.NoError(t, repo.PutBlockInfos(5, infos))

	got, err := repo.GetBlockInfos(5)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, infos[0].Hash, got[0].Hash)
	require.True(t, got[0].IsMain)
	require.False(t, got[1].IsMain)
}

func TestAccountStateDefaultsToEmpty(t *testing.T) {
	repo := openTestRepo(t)
	addr := common.BytesToAddress([]byte{1, 2, 3})
	acc, err := repo.GetAccountState(addr)
	require.NoError(t, err)
	require.Equal(t, common.EmptyCodeHash, acc.CodeHash)

	acc.Balance = big.NewInt(500)
	require.NoError(t, repo.PutAccountState(addr, acc))

	got, err := repo.GetAccountState(addr)
	require.NoError(t, err)
	require.Equal(t, 0, got.Balance.Cmp(big.NewInt(500)))
}

func TestBestBlockCursorRoundTrips(t *testing.T) {
	repo := openTestRepo(t)
	_, _, _, err := repo.GetBestBlockCursor()
	require.ErrorIs(t, err, ErrNotFound)

	hash := common.BytesToHash([]byte{0xCD})
	require.NoError(t, repo.PutBestBlockCursor(hash, 7, 700))

	gotHash, gotHeight, gotTD, err := repo.GetBestBlockCursor()
	require.NoError(t, err)
	require.Equal(t, hash, gotHash)
	require.Equal(t, uint64(7), gotHeight)
	require.Equal(t, uint64(700), gotTD)
}

func TestCodeAndKeystore(t *testing.T) {
	repo := openTestRepo(t)
	hash := common.BytesToHash([]byte{0xAB})
	require.NoError(t, repo.PutCode(hash, []byte{0x60, 0x00}))
	code, err := repo.GetCode(hash)
	require.NoError(t, err)
	require.Equal(t, []byte{0x60, 0x00}, code)

	require.NoError(t, repo.PutEncryptedKey(0, []byte("blob")))
	blob, err := repo.GetEncryptedKey(0)
	require.NoError(t, err)
	require.Equal(t, []byte("blob"), blob)
}
