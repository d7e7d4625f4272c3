package types

import (
	"math/big"

	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/medusa-geth/core"
)

// TransactionRole describes the part a transaction plays within a bundle.
type TransactionRole int

const (
	// RoleNone is used for transactions that play no particular part.
	RoleNone TransactionRole = iota
	// RoleAttackerBuy is the front-running buy placed before the victim.
	RoleAttackerBuy
	// RoleVictim is the pending transaction being sandwiched.
	RoleVictim
	// RoleAttackerSell is the back-running sell placed after the victim.
	RoleAttackerSell
	// RoleDeploy is a contract creation.
	RoleDeploy
)

// String returns a human-readable name for the role.
func (r TransactionRole) String() string {
	switch r {
	case RoleAttackerBuy:
		return "buy"
	case RoleVictim:
		return "victim"
	case RoleAttackerSell:
		return "sell"
	case RoleDeploy:
		return "deploy"
	default:
		return "none"
	}
}

// TransactionIntent describes a transaction to be executed speculatively. It carries no signature, the sender is
// trusted as given.
type TransactionIntent struct {
	// Role is the part this transaction plays within its bundle.
	Role TransactionRole
	// From is the sender.
	From common.Address
	// To is the call target, or nil for contract creation.
	To *common.Address
	// Value is the amount of wei transferred.
	Value *big.Int
	// Data is the calldata, or init code for creations.
	Data []byte
	// GasLimit is the maximum amount of gas the transaction may use.
	GasLimit uint64
	// GasPrice is the price per unit of gas in wei.
	GasPrice *big.Int
	// Nonce is the sender's nonce.
	Nonce uint64
}

// IsCreate returns whether the intent deploys a contract.
func (t *TransactionIntent) IsCreate() bool {
	return t.To == nil
}

// ToMessage converts the intent into a message the EVM can apply. The gas price doubles as fee and tip cap, so the
// intent is priced the same with or without a base fee.
func (t *TransactionIntent) ToMessage() *core.Message {
	value := t.Value
	if value == nil {
		value = new(big.Int)
	}
	gasPrice := t.GasPrice
	if gasPrice == nil {
		gasPrice = new(big.Int)
	}
	return &core.Message{
		To:        t.To,
		From:      t.From,
		Nonce:     t.Nonce,
		Value:     new(big.Int).Set(value),
		GasLimit:  t.GasLimit,
		GasPrice:  new(big.Int).Set(gasPrice),
		GasFeeCap: new(big.Int).Set(gasPrice),
		GasTipCap: new(big.Int).Set(gasPrice),
		Data:      t.Data,
	}
}
