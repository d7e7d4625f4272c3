package mempool

import (
	"sync"

	"github.com/crytic/medusa-geth/common"
	mapset "github.com/deckarep/golang-set/v2"
)

// defaultSeenWindow is the number of recent hashes remembered for de-duplication.
const defaultSeenWindow = 4096

// seenWindow remembers the most recent hashes. Once full, the oldest hash is forgotten for every new one.
type seenWindow struct {
	set   mapset.Set[common.Hash]
	order []common.Hash
	next  int
	lock  sync.Mutex
}

func newSeenWindow(capacity int) *seenWindow {
	return &seenWindow{
		set:   mapset.NewThreadUnsafeSetWithSize[common.Hash](capacity),
		order: make([]common.Hash, 0, capacity),
	}
}

// Add records hash and returns false if it is already in the window.
func (w *seenWindow) Add(hash common.Hash) bool {
	w.lock.Lock()
	defer w.lock.Unlock()

	if !w.set.Add(hash) {
		return false
	}
	if len(w.order) < cap(w.order) {
		w.order = append(w.order, hash)
		return true
	}
	w.set.Remove(w.order[w.next])
	w.order[w.next] = hash
	w.next = (w.next + 1) % len(w.order)
	return true
}

// Len returns the number of remembered hashes.
func (w *seenWindow) Len() int {
	w.lock.Lock()
	defer w.lock.Unlock()
	return w.set.Cardinality()
}
