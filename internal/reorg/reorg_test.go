package reorg

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hieutt50/xmr-ingestor/internal/rpc"
)

type fakeHeaders map[uint64]string

func (f fakeHeaders) HeaderByHeight(_ context.Context, height uint64) (*rpc.BlockHeader, error) {
	hash, ok := f[height]
	if !ok {
		return nil, errors.New("no such header")
	}
	return &rpc.BlockHeader{Height: height, Hash: hash}, nil
}

type fakeStore struct {
	stored      map[int64]string
	rolledBackTo int64
	rollbackCalled bool
}

func (f *fakeStore) StoredHash(_ context.Context, height int64) (string, bool, error) {
	h, ok := f.stored[height]
	return h, ok, nil
}

func (f *fakeStore) RollbackToHeight(_ context.Context, forkHeight int64) (int, error) {
	f.rolledBackTo = forkHeight
	f.rollbackCalled = true
	count := 0
	for h := range f.stored {
		if h >= forkHeight {
			count++
		}
	}
	return count, nil
}

// Seeded chain 100,101,102,103 with stored hashes aa,ab,ac,ad; daemon's
// header at 102 diverges (ee instead of ac).
func TestHeal_ForksAtDivergence(t *testing.T) {
	store := &fakeStore{stored: map[int64]string{
		100: "aa", 101: "ab", 102: "ac", 103: "ad",
	}}
	daemon := fakeHeaders{
		100: "aa", // matches
		101: "ab", // matches
		102: "ee", // diverges from stored "ac"
	}
	h := New(daemon, store, 30)

	forkHeight, err := h.Heal(context.Background(), 103)
	require.NoError(t, err)
	assert.Equal(t, int64(102), forkHeight)
	assert.True(t, store.rollbackCalled)
	assert.Equal(t, int64(102), store.rolledBackTo)
}

func TestHeal_TooDeepFails(t *testing.T) {
	store := &fakeStore{stored: map[int64]string{}}
	daemon := fakeHeaders{}
	h := New(daemon, store, 2)

	for height := uint64(0); height <= 9; height++ {
		store.stored[int64(height)] = "x"
		daemon[height] = "mismatch"
	}

	_, err := h.Heal(context.Background(), 10)
	assert.ErrorIs(t, err, ErrTooDeep)
	assert.False(t, store.rollbackCalled)
}

func TestHeal_ImmediateMatchPreservesChain(t *testing.T) {
	store := &fakeStore{stored: map[int64]string{100: "aa"}}
	daemon := fakeHeaders{100: "aa"}
	h := New(daemon, store, 30)

	forkHeight, err := h.Heal(context.Background(), 101)
	require.NoError(t, err)
	assert.Equal(t, int64(101), forkHeight)
}
