package chain

import (
	"math/big"

	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/medusa-geth/core"
	"github.com/crytic/medusa-geth/core/vm"
)

// BlockEnvironment describes the block every speculative transaction executes in.
type BlockEnvironment struct {
	// Number is the block number.
	Number uint64
	// Time is the block timestamp.
	Time uint64
	// Coinbase receives transaction fees.
	Coinbase common.Address
	// GasLimit is the block gas limit.
	GasLimit uint64
	// MixDigest is the value returned by PREVRANDAO.
	MixDigest common.Hash
}

// DefaultBlockEnvironment returns a post-Cancun mainnet environment. It is used until the chain head is known.
func DefaultBlockEnvironment() BlockEnvironment {
	return BlockEnvironment{
		Number:   20_000_000,
		Time:     1_717_281_407,
		GasLimit: 30_000_000,
	}
}

// newBlockContext obtains a vm.BlockContext for env. The base fee is zero so any gas price is accepted, and historical
// block hashes resolve to the zero hash.
func newBlockContext(env BlockEnvironment) vm.BlockContext {
	random := env.MixDigest
	return vm.BlockContext{
		CanTransfer: core.CanTransfer,
		Transfer:    core.Transfer,
		GetHash: func(uint64) common.Hash {
			return common.Hash{}
		},
		Coinbase:    env.Coinbase,
		BlockNumber: new(big.Int).SetUint64(env.Number),
		Time:        env.Time,
		Difficulty:  new(big.Int),
		BaseFee:     new(big.Int),
		BlobBaseFee: new(big.Int),
		GasLimit:    env.GasLimit,
		Random:      &random,
	}
}
