package cache

import (
	"sync"
	"sync/atomic"

	"github.com/crytic/medusa-geth/common"
)

// Stats counts cache lookups. It is exported through the metrics package.
type Stats struct {
	Hits   uint64
	Misses uint64
}

// nonPersistentStateCache is an in-memory StateCache guarded by a single RWMutex. Reads vastly outnumber writes once
// the hot accounts of a router have been fetched.
type nonPersistentStateCache struct {
	lock    sync.RWMutex
	objects map[common.Address]*StateObject
	slots   map[common.Address]map[common.Hash]common.Hash

	hits   atomic.Uint64
	misses atomic.Uint64
}

func newNonPersistentStateCache() *nonPersistentStateCache {
	return &nonPersistentStateCache{
		objects: make(map[common.Address]*StateObject),
		slots:   make(map[common.Address]map[common.Hash]common.Hash),
	}
}

// GetStateObject returns the cached object for addr, or ErrCacheMiss.
func (s *nonPersistentStateCache) GetStateObject(addr common.Address) (*StateObject, error) {
	s.lock.RLock()
	obj, ok := s.objects[addr]
	s.lock.RUnlock()

	if !ok {
		s.misses.Add(1)
		return nil, ErrCacheMiss
	}
	s.hits.Add(1)
	return obj, nil
}

func (s *nonPersistentStateCache) WriteStateObject(addr common.Address, data StateObject) error {
	s.lock.Lock()
	s.objects[addr] = &data
	s.lock.Unlock()
	return nil
}

// GetSlotData returns the cached value of slot at addr, or ErrCacheMiss.
func (s *nonPersistentStateCache) GetSlotData(addr common.Address, slot common.Hash) (common.Hash, error) {
	s.lock.RLock()
	data, ok := s.slots[addr][slot]
	s.lock.RUnlock()

	if !ok {
		s.misses.Add(1)
		return common.Hash{}, ErrCacheMiss
	}
	s.hits.Add(1)
	return data, nil
}

func (s *nonPersistentStateCache) WriteSlotData(addr common.Address, slot common.Hash, data common.Hash) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if _, ok := s.slots[addr]; !ok {
		s.slots[addr] = make(map[common.Hash]common.Hash)
	}
	s.slots[addr][slot] = data
	return nil
}

// Stats returns the lookup counters accumulated so far.
func (s *nonPersistentStateCache) Stats() Stats {
	return Stats{Hits: s.hits.Load(), Misses: s.misses.Load()}
}
