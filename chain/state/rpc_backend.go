package state

import (
	"context"

	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/medusa-geth/common/hexutil"
	"github.com/holiman/uint256"
	"github.com/syafiqeil/mev-builder/chain/state/cache"
	"github.com/syafiqeil/mev-builder/chain/state/rpc"
)

// RequestExecutor issues JSON-RPC requests without blocking the caller. The returned PendingResult lets the caller
// decide when to wait, and the wait parks only the calling goroutine. rpc.ClientPool is the production implementation.
type RequestExecutor interface {
	ExecuteRequestAsync(ctx context.Context, method string, args ...any) (*rpc.PendingResult, error)
}

var _ RequestExecutor = (*rpc.ClientPool)(nil)

// RPCBackend is a StateSource that reads from a remote node at a single block. Every answer is memoized in a
// cache.StateCache with no expiry.
type RPCBackend struct {
	ctx      context.Context
	executor RequestExecutor
	blockTag string

	cache cache.StateCache
}

// NewRPCBackend creates an RPCBackend reading at blockNumber, or at the node's latest block when blockNumber is zero.
func NewRPCBackend(ctx context.Context, executor RequestExecutor, blockNumber uint64, stateCache cache.StateCache) *RPCBackend {
	blockTag := "latest"
	if blockNumber != 0 {
		blockTag = hexutil.Uint64(blockNumber).String()
	}
	if stateCache == nil {
		stateCache = cache.NewNonPersistentCache()
	}
	return &RPCBackend{
		ctx:      ctx,
		executor: executor,
		blockTag: blockTag,
		cache:    stateCache,
	}
}

// BlockTag returns the block parameter sent with every request.
func (q *RPCBackend) BlockTag() string {
	return q.blockTag
}

// Cache returns the cache memoizing this backend's answers.
func (q *RPCBackend) Cache() cache.StateCache {
	return q.cache
}

// GetStorageAt returns the value of slot at addr. Slots that were never written, and slots of accounts without code,
// read as zero.
func (q *RPCBackend) GetStorageAt(addr common.Address, slot common.Hash) (common.Hash, error) {
	if data, err := q.cache.GetSlotData(addr, slot); err == nil {
		return data, nil
	}

	var result hexutil.Bytes
	pending, err := q.executor.ExecuteRequestAsync(q.ctx, "eth_getStorageAt", addr, slot, q.blockTag)
	if err == nil {
		err = pending.GetResultBlocking(&result)
	}
	if err != nil {
		return common.Hash{}, &DataSourceError{Address: addr, Slot: &slot, Err: err}
	}

	value := common.BytesToHash(result)
	if err = q.cache.WriteSlotData(addr, slot, value); err != nil {
		return common.Hash{}, &DataSourceError{Address: addr, Slot: &slot, Err: err}
	}
	return value, nil
}

// GetStateObject returns the balance, nonce and code of addr. The three reads are issued together and awaited
// afterwards, so the account costs one round trip of latency.
func (q *RPCBackend) GetStateObject(addr common.Address) (*uint256.Int, uint64, []byte, error) {
	if obj, err := q.cache.GetStateObject(addr); err == nil {
		return obj.Balance, obj.Nonce, obj.Code, nil
	}

	var (
		balance hexutil.Big
		nonce   hexutil.Uint64
		code    hexutil.Bytes
	)
	requests := []struct {
		method string
		result any
	}{
		{"eth_getBalance", &balance},
		{"eth_getTransactionCount", &nonce},
		{"eth_getCode", &code},
	}

	pendings := make([]*rpc.PendingResult, len(requests))
	for i, request := range requests {
		pending, err := q.executor.ExecuteRequestAsync(q.ctx, request.method, addr, q.blockTag)
		if err != nil {
			return nil, 0, nil, &DataSourceError{Address: addr, Err: err}
		}
		pendings[i] = pending
	}
	for i, pending := range pendings {
		if err := pending.GetResultBlocking(requests[i].result); err != nil {
			return nil, 0, nil, &DataSourceError{Address: addr, Err: err}
		}
	}

	balanceTyped, overflow := uint256.FromBig(balance.ToInt())
	if overflow {
		return nil, 0, nil, &DataSourceError{Address: addr, Err: errBalanceOverflow}
	}
	object := cache.StateObject{
		Balance: balanceTyped,
		Nonce:   uint64(nonce),
		Code:    code,
	}
	if err := q.cache.WriteStateObject(addr, object); err != nil {
		return nil, 0, nil, &DataSourceError{Address: addr, Err: err}
	}
	return object.Balance, object.Nonce, object.Code, nil
}

// GetCodeByHash is not supported. Code always arrives with the account through GetStateObject, so this returns
// empty code.
func (q *RPCBackend) GetCodeByHash(common.Hash) []byte {
	return nil
}

// GetBlockHash is not supported. Simulations never depend on historical block hashes, so this returns the zero hash.
func (q *RPCBackend) GetBlockHash(uint64) common.Hash {
	return common.Hash{}
}
