package cache

import "context"

// NewPersistentCache returns a StateCache that is flushed to a bbolt file under workingDir. The file is keyed by the
// RPC endpoint and the pinned block height, so it must only be used for a fixed fork block. The file is closed when
// ctx is done.
func NewPersistentCache(ctx context.Context, workingDir string, rpcAddr string, height uint64) (StateCache, error) {
	return newPersistentCache(ctx, workingDir, rpcAddr, height)
}

// NewNonPersistentCache returns an in-memory StateCache.
func NewNonPersistentCache() StateCache {
	return newNonPersistentStateCache()
}
