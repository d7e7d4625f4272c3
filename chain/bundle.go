package chain

import (
	"math/big"

	"github.com/pkg/errors"
	"github.com/syafiqeil/mev-builder/chain/state"
	"github.com/syafiqeil/mev-builder/chain/types"
	"github.com/syafiqeil/mev-builder/logging"
)

// ErrEmptyBundle is returned when simulating a bundle without transactions.
var ErrEmptyBundle = errors.New("bundle contains no transactions")

// TransactionExecutor applies a single transaction to an overlay. Executor is the EVM-backed implementation.
type TransactionExecutor interface {
	Apply(intent *types.TransactionIntent, overlay *state.Overlay) (*types.ExecutionOutcome, error)
}

var _ TransactionExecutor = (*Executor)(nil)

// BundleSimulator runs bundles transaction by transaction against a single overlay, so each transaction observes the
// effects of the ones before it, as it would within one block.
type BundleSimulator struct {
	executor TransactionExecutor
	logger   *logging.Logger
}

// NewBundleSimulator creates a BundleSimulator applying transactions with executor.
func NewBundleSimulator(executor TransactionExecutor) *BundleSimulator {
	return &BundleSimulator{
		executor: executor,
		logger:   logging.GlobalLogger.NewSubLogger(logging.SERVICE_KEY, logging.STATE_SERVICE),
	}
}

// Simulate executes bundle against overlay. If any transaction could not be executed at all, or its state could not
// be fetched, the whole attempt fails and the overlay must be discarded, since earlier transactions already modified
// it. Reverts and halts are recorded in the result instead.
func (s *BundleSimulator) Simulate(bundle *types.Bundle, overlay *state.Overlay) (*types.BundleResult, error) {
	if bundle == nil || len(bundle.Transactions) == 0 {
		return nil, ErrEmptyBundle
	}

	beneficiary := bundle.BeneficiaryAddress()
	balanceBefore, err := overlay.Balance(beneficiary)
	if err != nil {
		return nil, err
	}

	result := &types.BundleResult{
		Outcomes: make([]*types.ExecutionOutcome, 0, len(bundle.Transactions)),
	}
	criticalIndex := bundle.CriticalIndex()
	for i, tx := range bundle.Transactions {
		outcome, err := s.executor.Apply(tx, overlay)
		if err != nil {
			return nil, errors.WithMessagef(err, "bundle position %d", i)
		}
		result.Outcomes = append(result.Outcomes, outcome)

		if outcome.Succeeded() {
			result.GasUsed += outcome.GasUsed
			if outcome.CreatedAddress != nil {
				created := *outcome.CreatedAddress
				result.CreatedAddress = &created
				result.CreatedCode = outcome.CreatedCode
			}
			if i > 0 && tx.To != nil {
				s.logCodelessTarget(tx, overlay)
			}
			continue
		}

		if i == criticalIndex {
			result.CriticalFailed = true
			result.CriticalReason = outcome.Reason
		}
		s.logger.Debug("Bundle position ", i, " (", tx.Role, ") did not succeed: ", outcome)
	}

	balanceAfter, err := overlay.Balance(beneficiary)
	if err != nil {
		return nil, err
	}
	result.BeneficiaryDelta = new(big.Int).Sub(balanceAfter.ToBig(), balanceBefore.ToBig())
	return result, nil
}

// logCodelessTarget notes successful calls to accounts without code, which usually means a contract the bundle relies
// on was never deployed.
func (s *BundleSimulator) logCodelessTarget(tx *types.TransactionIntent, overlay *state.Overlay) {
	account, err := overlay.Load(*tx.To)
	if err == nil && !account.HasCode() && len(tx.Data) > 0 {
		s.logger.Debug("Call to ", tx.To.Hex(), " succeeded but the account has no code")
	}
}
