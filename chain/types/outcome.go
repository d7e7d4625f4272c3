package types

import (
	"fmt"

	"github.com/crytic/medusa-geth/common"
)

// OutcomeKind classifies an attempted execution.
type OutcomeKind int

const (
	// Success means the transaction completed and its effects were committed.
	Success OutcomeKind = iota
	// Revert means contract logic rejected the transaction.
	Revert
	// Halt means execution stopped abnormally, for example by running out of gas or hitting an invalid opcode.
	Halt
)

// String returns a human-readable name for the outcome kind.
func (k OutcomeKind) String() string {
	switch k {
	case Success:
		return "success"
	case Revert:
		return "revert"
	case Halt:
		return "halt"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// ExecutionOutcome is the result of a transaction the engine managed to execute. Engine failures are reported as
// errors instead.
type ExecutionOutcome struct {
	// Kind classifies the outcome.
	Kind OutcomeKind
	// GasUsed is the gas consumed by the transaction.
	GasUsed uint64
	// Output is the return data on success or the revert data on revert.
	Output []byte
	// CreatedAddress is set when a creation succeeded.
	CreatedAddress *common.Address
	// CreatedCode is the runtime code of the created contract.
	CreatedCode []byte
	// Reason is a readable description of a revert or halt.
	Reason string
}

// Succeeded returns whether the outcome is Success.
func (o *ExecutionOutcome) Succeeded() bool {
	return o.Kind == Success
}

// String returns a short description of the outcome.
func (o *ExecutionOutcome) String() string {
	if o.Kind == Success {
		return fmt.Sprintf("success (gas: %d)", o.GasUsed)
	}
	return fmt.Sprintf("%s: %s", o.Kind, o.Reason)
}
