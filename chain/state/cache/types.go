package cache

import (
	"github.com/crytic/medusa-geth/common"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

// ErrCacheMiss is returned when a requested account or slot has not been cached yet.
var ErrCacheMiss = errors.New("not found in cache")

// StateObject is the cached form of an account as reported by the remote node.
type StateObject struct {
	Balance *uint256.Int `json:"balance"`
	Nonce   uint64       `json:"nonce"`
	Code    []byte       `json:"code"`
}

// StateCache memoizes remote account and storage reads. Implementations must be safe for concurrent use.
type StateCache interface {
	GetStateObject(addr common.Address) (*StateObject, error)
	WriteStateObject(addr common.Address, data StateObject) error

	GetSlotData(addr common.Address, slot common.Hash) (common.Hash, error)
	WriteSlotData(addr common.Address, slot common.Hash, data common.Hash) error
}

// StatsProvider is implemented by caches that count their lookups.
type StatsProvider interface {
	Stats() Stats
}
