package chain

import (
	"errors"
	"math/big"
	"testing"

	"github.com/crytic/medusa-geth/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syafiqeil/mev-builder/chain/state"
	"github.com/syafiqeil/mev-builder/chain/types"
)

// scriptedExecutor returns a fixed outcome per role, applying an optional balance change to the beneficiary on
// success.
type scriptedExecutor struct {
	outcomes map[types.TransactionRole]*types.ExecutionOutcome
	errs     map[types.TransactionRole]error
	credit   map[types.TransactionRole]int64
	account  common.Address
	applied  []types.TransactionRole
}

func (e *scriptedExecutor) Apply(intent *types.TransactionIntent, overlay *state.Overlay) (*types.ExecutionOutcome, error) {
	e.applied = append(e.applied, intent.Role)
	if err := e.errs[intent.Role]; err != nil {
		return nil, err
	}
	outcome := e.outcomes[intent.Role]
	if outcome.Succeeded() {
		if credit, ok := e.credit[intent.Role]; ok {
			balance, err := overlay.Balance(e.account)
			if err != nil {
				return nil, err
			}
			updated := new(big.Int).Add(balance.ToBig(), big.NewInt(credit))
			if err := overlay.OverrideBalance(e.account, uint256.MustFromBig(updated)); err != nil {
				return nil, err
			}
		}
	}
	return outcome, nil
}

// fundedOverlay returns an offline overlay where account holds 1000 wei.
func fundedOverlay(t *testing.T, account common.Address) *state.Overlay {
	overlay := state.NewOverlay(nil)
	require.NoError(t, overlay.OverrideBalance(account, uint256.NewInt(1000)))
	return overlay
}

func sandwichBundle(helper common.Address) *types.Bundle {
	router := common.HexToAddress("0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D")
	return &types.Bundle{
		Transactions: []*types.TransactionIntent{
			{Role: types.RoleAttackerBuy, To: &helper},
			{Role: types.RoleVictim, To: &router},
			{Role: types.RoleAttackerSell, To: &helper},
		},
		CriticalRole: types.RoleVictim,
		Beneficiary:  helper,
	}
}

// TestSimulateEmptyBundle verifies empty bundles are rejected before touching state.
func TestSimulateEmptyBundle(t *testing.T) {
	executor := &scriptedExecutor{}
	simulator := NewBundleSimulator(executor)

	_, err := simulator.Simulate(&types.Bundle{}, state.NewOverlay(nil))
	assert.ErrorIs(t, err, ErrEmptyBundle)
	assert.Empty(t, executor.applied)
}

// TestSimulateCriticalHalt verifies a halt at the critical position flags the result while earlier gas still counts.
func TestSimulateCriticalHalt(t *testing.T) {
	helper := common.HexToAddress("0xbe")
	executor := &scriptedExecutor{
		outcomes: map[types.TransactionRole]*types.ExecutionOutcome{
			types.RoleAttackerBuy:  {Kind: types.Success, GasUsed: 120_000},
			types.RoleVictim:       {Kind: types.Halt, GasUsed: 500_000, Reason: "out of gas"},
			types.RoleAttackerSell: {Kind: types.Success, GasUsed: 80_000},
		},
		credit:  map[types.TransactionRole]int64{types.RoleAttackerBuy: -100, types.RoleAttackerSell: 250},
		account: helper,
	}
	result, err := NewBundleSimulator(executor).Simulate(sandwichBundle(helper), fundedOverlay(t, helper))
	require.NoError(t, err)

	assert.True(t, result.CriticalFailed)
	assert.Equal(t, "out of gas", result.CriticalReason)
	assert.EqualValues(t, 200_000, result.GasUsed)
	assert.EqualValues(t, 150, result.BeneficiaryDelta.Int64())
	assert.Len(t, result.Outcomes, 3)
}

// TestSimulateNonCriticalRevert verifies reverts away from the critical position are recorded but not fatal.
func TestSimulateNonCriticalRevert(t *testing.T) {
	helper := common.HexToAddress("0xbe")
	executor := &scriptedExecutor{
		outcomes: map[types.TransactionRole]*types.ExecutionOutcome{
			types.RoleAttackerBuy:  {Kind: types.Success, GasUsed: 100_000},
			types.RoleVictim:       {Kind: types.Success, GasUsed: 150_000},
			types.RoleAttackerSell: {Kind: types.Revert, GasUsed: 30_000, Reason: "K"},
		},
		credit:  map[types.TransactionRole]int64{types.RoleAttackerBuy: -500},
		account: helper,
	}
	result, err := NewBundleSimulator(executor).Simulate(sandwichBundle(helper), fundedOverlay(t, helper))
	require.NoError(t, err)

	assert.False(t, result.CriticalFailed)
	assert.Empty(t, result.CriticalReason)
	assert.EqualValues(t, 250_000, result.GasUsed)
	assert.EqualValues(t, -500, result.BeneficiaryDelta.Int64())
}

// TestSimulateExecutionErrorAborts verifies an engine failure aborts the whole attempt.
func TestSimulateExecutionErrorAborts(t *testing.T) {
	helper := common.HexToAddress("0xbe")
	executor := &scriptedExecutor{
		outcomes: map[types.TransactionRole]*types.ExecutionOutcome{
			types.RoleAttackerBuy: {Kind: types.Success, GasUsed: 100_000},
		},
		errs: map[types.TransactionRole]error{
			types.RoleVictim: &ExecutionError{Role: types.RoleVictim, Err: errors.New("nonce too low")},
		},
	}
	result, err := NewBundleSimulator(executor).Simulate(sandwichBundle(helper), state.NewOverlay(nil))
	assert.Nil(t, result)

	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, types.RoleVictim, execErr.Role)
	assert.Equal(t, []types.TransactionRole{types.RoleAttackerBuy, types.RoleVictim}, executor.applied)
}

// TestSimulateDataSourceErrorAborts verifies a failed state fetch aborts the whole attempt.
func TestSimulateDataSourceErrorAborts(t *testing.T) {
	helper := common.HexToAddress("0xbe")
	executor := &scriptedExecutor{
		outcomes: map[types.TransactionRole]*types.ExecutionOutcome{
			types.RoleAttackerBuy: {Kind: types.Success},
		},
		errs: map[types.TransactionRole]error{
			types.RoleAttackerSell: &state.DataSourceError{Address: helper, Err: errors.New("connection reset")},
		},
	}
	executor.outcomes[types.RoleVictim] = &types.ExecutionOutcome{Kind: types.Success}

	_, err := NewBundleSimulator(executor).Simulate(sandwichBundle(helper), state.NewOverlay(nil))
	var dataErr *state.DataSourceError
	require.ErrorAs(t, err, &dataErr)
	assert.Equal(t, helper, dataErr.Address)
}

// TestSimulateLatestCreationWins verifies the latest created contract is reported.
func TestSimulateLatestCreationWins(t *testing.T) {
	first := common.HexToAddress("0xc1")
	second := common.HexToAddress("0xc2")
	deployer := common.HexToAddress("0xd0")
	executor := &sequenceExecutor{outcomes: []*types.ExecutionOutcome{
		{Kind: types.Success, CreatedAddress: &first, CreatedCode: []byte{0x01}},
		{Kind: types.Revert, Reason: "no"},
		{Kind: types.Success, CreatedAddress: &second, CreatedCode: []byte{0x02}},
	}}
	bundle := &types.Bundle{Transactions: []*types.TransactionIntent{
		{Role: types.RoleDeploy, From: deployer},
		{Role: types.RoleDeploy, From: deployer},
		{Role: types.RoleDeploy, From: deployer},
	}}

	result, err := NewBundleSimulator(executor).Simulate(bundle, state.NewOverlay(nil))
	require.NoError(t, err)
	require.NotNil(t, result.CreatedAddress)
	assert.Equal(t, second, *result.CreatedAddress)
	assert.Equal(t, []byte{0x02}, result.CreatedCode)
	assert.False(t, result.CriticalFailed)
	assert.EqualValues(t, 0, result.BeneficiaryDelta.Sign())
}

// sequenceExecutor returns its outcomes in order.
type sequenceExecutor struct {
	outcomes []*types.ExecutionOutcome
	next     int
}

func (e *sequenceExecutor) Apply(*types.TransactionIntent, *state.Overlay) (*types.ExecutionOutcome, error) {
	outcome := e.outcomes[e.next]
	e.next++
	return outcome, nil
}
