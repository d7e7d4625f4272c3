package cache

import (
	"context"
	"math/rand"
	"sync"
	"testing"

	"github.com/crytic/medusa-geth/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNonPersistentCacheRace hammers the in-memory cache with concurrent readers and writers of both accounts and
// slots. It is meant to be run with -race.
func TestNonPersistentCacheRace(t *testing.T) {
	cache := newNonPersistentStateCache()
	const (
		numAddresses = 5
		workers      = 8
		operations   = 5_000
	)

	var wg sync.WaitGroup
	wg.Add(workers * 2)
	for i := 0; i < workers; i++ {
		go func(r *rand.Rand) {
			defer wg.Done()
			for n := 0; n < operations; n++ {
				addr := common.BytesToAddress([]byte{byte(r.Intn(numAddresses))})
				slot := common.BytesToHash([]byte{byte(r.Intn(numAddresses))})
				assert.NoError(t, cache.WriteStateObject(addr, StateObject{Nonce: r.Uint64()}))
				assert.NoError(t, cache.WriteSlotData(addr, slot, common.BytesToHash([]byte{byte(n)})))
			}
		}(rand.New(rand.NewSource(int64(i))))

		go func(r *rand.Rand) {
			defer wg.Done()
			for n := 0; n < operations; n++ {
				addr := common.BytesToAddress([]byte{byte(r.Intn(numAddresses))})
				slot := common.BytesToHash([]byte{byte(r.Intn(numAddresses))})
				_, _ = cache.GetStateObject(addr)
				_, _ = cache.GetSlotData(addr, slot)
			}
		}(rand.New(rand.NewSource(int64(i + workers))))
	}
	wg.Wait()
}

// TestNonPersistentCacheStats verifies hits and misses are counted.
func TestNonPersistentCacheStats(t *testing.T) {
	cache := newNonPersistentStateCache()
	addr := common.Address{0x01}

	_, err := cache.GetStateObject(addr)
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, cache.WriteStateObject(addr, StateObject{Balance: uint256.NewInt(1)}))
	_, err = cache.GetStateObject(addr)
	assert.NoError(t, err)

	assert.Equal(t, Stats{Hits: 1, Misses: 1}, cache.Stats())
}

// TestPersistentCache tests read/write capability of the persistent cache, along with persistence itself.
func TestPersistentCache(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rpcAddr := "https://rpc.example/ethereum"
	blockHeight := uint64(20_000_000)
	tmpDir := t.TempDir()

	pc, err := newPersistentCache(ctx, tmpDir, rpcAddr, blockHeight)
	require.NoError(t, err)

	addr := common.Address{0x55}
	object := StateObject{
		Balance: uint256.NewInt(12345),
		Nonce:   rand.Uint64(),
		Code:    []byte{0x60, 0x00},
	}
	slot := common.Hash{0x66, 0x01}
	slotValue := common.Hash{0x81}

	_, err = pc.GetStateObject(addr)
	assert.ErrorIs(t, err, ErrCacheMiss)
	_, err = pc.GetSlotData(addr, slot)
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, pc.WriteStateObject(addr, object))
	require.NoError(t, pc.WriteSlotData(addr, slot, slotValue))

	so, err := pc.GetStateObject(addr)
	require.NoError(t, err)
	assert.Equal(t, object, *so)

	// closing flushes the buffered writes, which are below the flush threshold
	require.NoError(t, pc.Close())
	require.NoError(t, pc.Close())

	pc, err = newPersistentCache(ctx, tmpDir, rpcAddr, blockHeight)
	require.NoError(t, err)
	defer pc.Close()

	so, err = pc.GetStateObject(addr)
	require.NoError(t, err)
	assert.Equal(t, object.Nonce, so.Nonce)
	assert.Equal(t, object.Code, so.Code)
	assert.True(t, object.Balance.Eq(so.Balance))

	data, err := pc.GetSlotData(addr, slot)
	require.NoError(t, err)
	assert.Equal(t, slotValue, data)

	// a different fork height must not see these entries
	other, err := newPersistentCache(ctx, tmpDir, rpcAddr, blockHeight+1)
	require.NoError(t, err)
	defer other.Close()
	_, err = other.GetStateObject(addr)
	assert.ErrorIs(t, err, ErrCacheMiss)
}
