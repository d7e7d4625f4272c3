package sandwich

import (
	"math/big"

	"github.com/crytic/medusa-geth/common"
	gethtypes "github.com/crytic/medusa-geth/core/types"
)

// Candidate is a pending transaction considered for sandwiching.
type Candidate struct {
	// Tx is the pending transaction as seen in the mempool.
	Tx *gethtypes.Transaction
	// From is the recovered sender of Tx.
	From common.Address
}

// NewCandidate wraps a pending transaction and its sender.
func NewCandidate(tx *gethtypes.Transaction, from common.Address) *Candidate {
	return &Candidate{Tx: tx, From: from}
}

// Hash returns the transaction hash.
func (c *Candidate) Hash() common.Hash {
	return c.Tx.Hash()
}

// To returns the call target, or nil for creations.
func (c *Candidate) To() *common.Address {
	return c.Tx.To()
}

// Value returns the amount of wei sent.
func (c *Candidate) Value() *big.Int {
	return c.Tx.Value()
}

// Data returns the calldata.
func (c *Candidate) Data() []byte {
	return c.Tx.Data()
}

// Gas returns the gas limit the sender signed.
func (c *Candidate) Gas() uint64 {
	return c.Tx.Gas()
}

// GasPrice returns the legacy gas price, or the fee cap of dynamic fee transactions.
func (c *Candidate) GasPrice() *big.Int {
	return c.Tx.GasFeeCap()
}
