package chain

import (
	"fmt"

	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/medusa-geth/core"
	"github.com/crytic/medusa-geth/core/rawdb"
	gethstate "github.com/crytic/medusa-geth/core/state"
	"github.com/crytic/medusa-geth/core/tracing"
	gethtypes "github.com/crytic/medusa-geth/core/types"
	"github.com/crytic/medusa-geth/core/vm"
	"github.com/crytic/medusa-geth/crypto"
	"github.com/crytic/medusa-geth/params"
	"github.com/crytic/medusa-geth/triedb"
	"github.com/crytic/medusa-geth/triedb/hashdb"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/syafiqeil/mev-builder/chain/state"
	"github.com/syafiqeil/mev-builder/chain/types"
	"github.com/syafiqeil/mev-builder/utils"
)

// ExecutionError is returned when the EVM could not process a transaction at all, as opposed to executing it with a
// revert or halt. Examples are nonce mismatches, insufficient funds for gas, or a gas limit below the intrinsic cost.
type ExecutionError struct {
	// Role is the role of the transaction that could not be processed.
	Role types.TransactionRole
	// Err is the error reported by the EVM.
	Err error
}

// Error returns the error message string, implementing the `error` interface.
func (e *ExecutionError) Error() string {
	return fmt.Sprintf("could not execute %s transaction: %v", e.Role, e.Err)
}

// Unwrap returns the underlying error.
func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// executionStateDB is the subset of the forked state db the executor relies on.
type executionStateDB interface {
	vm.StateDB
	Finalise(bool)
}

// Executor applies single transactions to an Overlay through the EVM. It holds no per-transaction state and is safe
// for concurrent use as long as each call works on its own overlay.
type Executor struct {
	// chainConfig selects the hard fork rules in effect.
	chainConfig *params.ChainConfig
	// environment is the block every transaction executes in.
	environment BlockEnvironment
	// stateDatabase backs the empty trie each forked state db starts from.
	stateDatabase gethstate.Database
}

// NewExecutor creates an Executor for the given chain rules and block.
func NewExecutor(chainConfig *params.ChainConfig, environment BlockEnvironment) (*Executor, error) {
	if chainConfig == nil {
		chainConfig = params.MainnetChainConfig
	}
	chainConfig, err := utils.CopyChainConfig(chainConfig)
	if err != nil {
		return nil, err
	}

	db := rawdb.NewMemoryDatabase()
	trieDB := triedb.NewDatabase(db, &triedb.Config{HashDB: hashdb.Defaults})
	return &Executor{
		chainConfig:   chainConfig,
		environment:   environment,
		stateDatabase: gethstate.NewDatabase(trieDB, nil),
	}, nil
}

// Environment returns the block environment transactions execute in.
func (e *Executor) Environment() BlockEnvironment {
	return e.environment
}

// Apply executes intent against overlay. The overlay receives the transaction's effects only when the outcome is
// types.Success. An *ExecutionError is returned when the EVM could not process the transaction, and a
// *state.DataSourceError when the state it needed could not be fetched. In both cases the overlay is untouched.
func (e *Executor) Apply(intent *types.TransactionIntent, overlay *state.Overlay) (*types.ExecutionOutcome, error) {
	provider := state.NewOverlayStateProvider(overlay)
	stateDb, err := gethstate.NewForkedStateDb(gethtypes.EmptyRootHash, e.stateDatabase, provider)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	evm := vm.NewEVM(newBlockContext(e.environment), stateDb, e.chainConfig, vm.Config{NoBaseFee: true, Tracer: storageWriteHooks(provider)})
	gasPool := new(core.GasPool).AddGas(intent.GasLimit)
	result, err := core.ApplyMessage(evm, intent.ToMessage(), gasPool)

	// A failed fetch leaves the state db with made-up empty values, so nothing it computed can be trusted
	if fetchErr := provider.FetchError(); fetchErr != nil {
		return nil, fetchErr
	}
	if err != nil {
		return nil, &ExecutionError{Role: intent.Role, Err: err}
	}

	outcome := &types.ExecutionOutcome{
		GasUsed: result.UsedGas,
	}
	switch {
	case result.Err == nil:
		outcome.Kind = types.Success
		outcome.Output = result.ReturnData
		if intent.IsCreate() {
			created := crypto.CreateAddress(intent.From, intent.Nonce)
			outcome.CreatedAddress = &created
			outcome.CreatedCode = stateDb.GetCode(created)
		}
		e.commit(stateDb, provider, overlay)
	case errors.Is(result.Err, vm.ErrExecutionReverted):
		outcome.Kind = types.Revert
		outcome.Output = result.Revert()
		outcome.Reason = DecodeRevertReason(outcome.Output)
	default:
		outcome.Kind = types.Halt
		outcome.Reason = result.Err.Error()
	}
	return outcome, nil
}

// commit copies the final value of everything the transaction touched into the overlay.
func (e *Executor) commit(stateDb executionStateDB, provider *state.OverlayStateProvider, overlay *state.Overlay) {
	stateDb.Finalise(true)

	removed := make(map[common.Address]struct{})
	for _, addr := range provider.TouchedAccounts() {
		if !stateDb.Exist(addr) {
			overlay.DeleteAccount(addr)
			removed[addr] = struct{}{}
			continue
		}
		if provider.WasCreated(addr) {
			overlay.ResetStorage(addr)
		}
		balance := stateDb.GetBalance(addr)
		if balance == nil {
			balance = uint256.NewInt(0)
		}
		overlay.CommitAccount(addr, balance, stateDb.GetNonce(addr), stateDb.GetCode(addr))
	}

	for addr, slots := range provider.TouchedSlots() {
		if _, ok := removed[addr]; ok {
			continue
		}
		for _, slot := range slots {
			overlay.WriteStorage(addr, slot, stateDb.GetState(addr, slot))
		}
	}
}

// storageWriteHooks reports the target slot of every SSTORE to provider. Slots of contracts created during execution
// are never imported, so this is the only record of constructor writes.
func storageWriteHooks(provider *state.OverlayStateProvider) *tracing.Hooks {
	return &tracing.Hooks{
		OnOpcode: func(pc uint64, op byte, gas, cost uint64, scope tracing.OpContext, rData []byte, depth int, err error) {
			if vm.OpCode(op) != vm.SSTORE {
				return
			}
			stack := scope.StackData()
			if len(stack) == 0 {
				return
			}
			provider.RecordSlotWritten(scope.Address(), common.Hash(stack[len(stack)-1].Bytes32()))
		},
	}
}
