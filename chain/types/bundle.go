package types

import (
	"math/big"

	"github.com/crytic/medusa-geth/common"
)

// Bundle is an ordered list of transactions simulated atomically against one overlay.
type Bundle struct {
	// Transactions run in order, each seeing the effects of its predecessors.
	Transactions []*TransactionIntent
	// CriticalRole marks the transaction whose failure invalidates the bundle. RoleNone disables the check.
	CriticalRole TransactionRole
	// Beneficiary is the account whose balance change is reported. The zero address selects the sender of the first
	// transaction.
	Beneficiary common.Address
}

// CriticalIndex returns the position of the first transaction playing CriticalRole, or -1 if there is none.
func (b *Bundle) CriticalIndex() int {
	if b.CriticalRole == RoleNone {
		return -1
	}
	for i, tx := range b.Transactions {
		if tx.Role == b.CriticalRole {
			return i
		}
	}
	return -1
}

// BeneficiaryAddress returns the account whose balance delta is reported.
func (b *Bundle) BeneficiaryAddress() common.Address {
	if b.Beneficiary == (common.Address{}) && len(b.Transactions) > 0 {
		return b.Transactions[0].From
	}
	return b.Beneficiary
}

// BundleResult summarizes a bundle simulation.
type BundleResult struct {
	// GasUsed is the gas of every successful transaction combined.
	GasUsed uint64
	// CriticalFailed is set when the critical transaction reverted or halted.
	CriticalFailed bool
	// CriticalReason describes the critical failure.
	CriticalReason string
	// BeneficiaryDelta is the signed balance change of the beneficiary, in wei.
	BeneficiaryDelta *big.Int
	// CreatedAddress is the latest contract created by the bundle, if any.
	CreatedAddress *common.Address
	// CreatedCode is the runtime code at CreatedAddress.
	CreatedCode []byte
	// Outcomes holds one outcome per transaction, in order.
	Outcomes []*ExecutionOutcome
}
