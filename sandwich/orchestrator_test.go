package sandwich

import (
	"context"
	"math/big"
	"testing"

	"github.com/crytic/medusa-geth/common"
	gethtypes "github.com/crytic/medusa-geth/core/types"
	"github.com/crytic/medusa-geth/crypto"
	"github.com/crytic/medusa-geth/params"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syafiqeil/mev-builder/chain"
	"github.com/syafiqeil/mev-builder/chain/state"
	"github.com/syafiqeil/mev-builder/chain/types"
)

// newArmedOrchestrator creates an orchestrator over an offline overlay and arms it with simulator.
func newArmedOrchestrator(t *testing.T, config OrchestratorConfig, simulator BundleSimulator, chainReader ChainReader, submitter Submitter) *Orchestrator {
	orchestrator, err := NewOrchestrator(config, state.NewOverlay(nil), simulator, chainReader, submitter, passthroughSigner{})
	require.NoError(t, err)
	require.NoError(t, orchestrator.Arm(context.Background()))
	require.Equal(t, Armed, orchestrator.State())
	return orchestrator
}

// TestOrchestratorSubmitsProfitableBundle verifies a profitable opportunity turns into a signed buy and sell with
// consecutive nonces targeting the next block.
func TestOrchestratorSubmitsProfitableBundle(t *testing.T) {
	config := testOrchestratorConfig()
	simulator := &marketSimulator{threshold: milliEther(2000), revenue: tenthOf}
	submitter := &recordingSubmitter{}
	orchestrator := newArmedOrchestrator(t, config, simulator, &fakeChain{nonce: 7, head: 100}, submitter)

	var submitted []BundleSubmittedEvent
	orchestrator.Events.BundleSubmitted.Subscribe(func(event BundleSubmittedEvent) error {
		submitted = append(submitted, event)
		return nil
	})

	decision, err := orchestrator.ProcessCandidate(context.Background(), newVictimCandidate(t, config.RouterAddress, milliEther(5000)))
	require.NoError(t, err)
	require.Equal(t, ActionSubmitted, decision.Action)
	assert.NoError(t, decision.Err)
	assert.Equal(t, testToken, decision.Token)
	assert.Equal(t, "0xbundle", decision.BundleHash)
	assert.EqualValues(t, 101, decision.TargetBlock)

	require.Equal(t, 1, submitter.calls)
	assert.EqualValues(t, 101, submitter.targetBlock)
	require.Len(t, submitter.txs, 2)

	buy, sell := submitter.txs[0], submitter.txs[1]
	assert.EqualValues(t, 7, buy.Nonce())
	assert.EqualValues(t, 8, sell.Nonce())
	for _, tx := range submitter.txs {
		assert.EqualValues(t, gethtypes.DynamicFeeTxType, tx.Type())
		assert.Equal(t, testHelper, *tx.To())
		assert.Equal(t, config.ChainID, tx.ChainId())
		assert.EqualValues(t, config.SubmissionGasLimit, tx.Gas())
		assert.EqualValues(t, int64(2*params.GWei), tx.GasTipCap().Int64())
		assert.EqualValues(t, int64(22*params.GWei), tx.GasFeeCap().Int64())
	}
	assert.Equal(t, decision.Search.BestAmount, buy.Value())
	assert.Zero(t, sell.Value().Sign())

	amount, err := decodeBuyAmount(buy.Data())
	require.NoError(t, err)
	assert.Equal(t, decision.Search.BestAmount, amount)

	require.Len(t, submitted, 1)
	assert.Equal(t, decision.ID, submitted[0].ID)
	assert.NoError(t, submitted[0].Err)
}

// TestOrchestratorIncludesVictim verifies the victim's own transaction sits between buy and sell when requested.
func TestOrchestratorIncludesVictim(t *testing.T) {
	config := testOrchestratorConfig()
	config.IncludeVictim = true
	submitter := &recordingSubmitter{}
	orchestrator := newArmedOrchestrator(t, config, &marketSimulator{threshold: milliEther(2000), revenue: tenthOf},
		&fakeChain{nonce: 0, head: 5}, submitter)

	victim := newVictimCandidate(t, config.RouterAddress, milliEther(5000))
	decision, err := orchestrator.ProcessCandidate(context.Background(), victim)
	require.NoError(t, err)
	require.Equal(t, ActionSubmitted, decision.Action)
	require.Len(t, submitter.txs, 3)
	assert.Equal(t, victim.Hash(), submitter.txs[1].Hash())
}

// TestOrchestratorProfitGate verifies a positive profit below the minimum is reported as a near miss and never sent.
func TestOrchestratorProfitGate(t *testing.T) {
	config := testOrchestratorConfig()
	fixedRevenue := func(*big.Int) *big.Int { return milliEther(6) }
	submitter := &recordingSubmitter{}
	orchestrator := newArmedOrchestrator(t, config, &marketSimulator{threshold: milliEther(2000), revenue: fixedRevenue},
		&fakeChain{nonce: 7, head: 100}, submitter)

	var evaluations []OpportunityEvaluatedEvent
	orchestrator.Events.OpportunityEvaluated.Subscribe(func(event OpportunityEvaluatedEvent) error {
		evaluations = append(evaluations, event)
		return nil
	})

	decision, err := orchestrator.ProcessCandidate(context.Background(), newVictimCandidate(t, config.RouterAddress, milliEther(5000)))
	require.NoError(t, err)
	assert.Equal(t, ActionNearMiss, decision.Action)
	assert.Equal(t, milliEther(1), decision.Search.BestProfit)
	assert.Zero(t, submitter.calls)

	require.Len(t, evaluations, 1)
	assert.False(t, evaluations[0].Profitable)
}

// TestOrchestratorDiscardsUnprofitable verifies a search without any profitable probe is discarded.
func TestOrchestratorDiscardsUnprofitable(t *testing.T) {
	config := testOrchestratorConfig()
	noRevenue := func(*big.Int) *big.Int { return new(big.Int) }
	submitter := &recordingSubmitter{}
	orchestrator := newArmedOrchestrator(t, config, &marketSimulator{threshold: milliEther(2000), revenue: noRevenue},
		&fakeChain{}, submitter)

	decision, err := orchestrator.ProcessCandidate(context.Background(), newVictimCandidate(t, config.RouterAddress, milliEther(5000)))
	require.NoError(t, err)
	assert.Equal(t, ActionDiscarded, decision.Action)
	assert.Zero(t, submitter.calls)
}

// TestOrchestratorDryRun verifies dry runs stop after evaluation and need no chain access.
func TestOrchestratorDryRun(t *testing.T) {
	config := testOrchestratorConfig()
	config.DryRun = true
	orchestrator, err := NewOrchestrator(config, state.NewOverlay(nil), &marketSimulator{threshold: milliEther(2000), revenue: tenthOf}, nil, nil, nil)
	require.NoError(t, err)
	require.NoError(t, orchestrator.Arm(context.Background()))

	decision, err := orchestrator.ProcessCandidate(context.Background(), newVictimCandidate(t, config.RouterAddress, milliEther(5000)))
	require.NoError(t, err)
	assert.Equal(t, ActionDryRun, decision.Action)
	assert.Positive(t, decision.Search.BestProfit.Sign())
}

// TestOrchestratorSubmissionFailure verifies relay errors are reported in the decision rather than returned.
func TestOrchestratorSubmissionFailure(t *testing.T) {
	config := testOrchestratorConfig()
	submitter := &recordingSubmitter{err: errors.New("relay rejected bundle")}
	orchestrator := newArmedOrchestrator(t, config, &marketSimulator{threshold: milliEther(2000), revenue: tenthOf},
		&fakeChain{nonce: 1, head: 10}, submitter)

	var submitted []BundleSubmittedEvent
	orchestrator.Events.BundleSubmitted.Subscribe(func(event BundleSubmittedEvent) error {
		submitted = append(submitted, event)
		return nil
	})

	decision, err := orchestrator.ProcessCandidate(context.Background(), newVictimCandidate(t, config.RouterAddress, milliEther(5000)))
	require.NoError(t, err)
	assert.Equal(t, ActionSubmissionFailed, decision.Action)
	assert.ErrorContains(t, decision.Err, "relay rejected bundle")
	require.Len(t, submitted, 1)
	assert.Error(t, submitted[0].Err)
}

// TestOrchestratorIgnoresCandidates verifies disarmed orchestrators and non-router or non-swap transactions are
// skipped without simulation.
func TestOrchestratorIgnoresCandidates(t *testing.T) {
	config := testOrchestratorConfig()
	simulator := &marketSimulator{threshold: milliEther(2000), revenue: tenthOf}
	orchestrator, err := NewOrchestrator(config, state.NewOverlay(nil), simulator, &fakeChain{}, &recordingSubmitter{}, passthroughSigner{})
	require.NoError(t, err)

	victim := newVictimCandidate(t, config.RouterAddress, milliEther(5000))
	decision, err := orchestrator.ProcessCandidate(context.Background(), victim)
	require.NoError(t, err)
	assert.Equal(t, ActionIgnored, decision.Action)
	assert.Empty(t, simulator.bundles)

	require.NoError(t, orchestrator.Arm(context.Background()))
	deployments := len(simulator.bundles)

	elsewhere := newVictimCandidate(t, common.HexToAddress("0x1234"), milliEther(5000))
	decision, err = orchestrator.ProcessCandidate(context.Background(), elsewhere)
	require.NoError(t, err)
	assert.Equal(t, ActionIgnored, decision.Action)

	router := config.RouterAddress
	transfer := NewCandidate(gethtypes.NewTx(&gethtypes.LegacyTx{To: &router, Value: big.NewInt(1), Gas: 21000, GasPrice: big.NewInt(1)}), testVictim)
	decision, err = orchestrator.ProcessCandidate(context.Background(), transfer)
	require.NoError(t, err)
	assert.Equal(t, ActionIgnored, decision.Action)

	assert.Len(t, simulator.bundles, deployments)
}

// TestOrchestratorArmInjectsHelper verifies arming deploys through the simulator and injects the helper code into the
// base overlay.
func TestOrchestratorArmInjectsHelper(t *testing.T) {
	config := testOrchestratorConfig()
	base := state.NewOverlay(nil)
	simulator := &marketSimulator{threshold: milliEther(2000), revenue: tenthOf}
	orchestrator, err := NewOrchestrator(config, base, simulator, &fakeChain{}, &recordingSubmitter{}, passthroughSigner{})
	require.NoError(t, err)
	assert.Equal(t, Uninitialized, orchestrator.State())

	require.NoError(t, orchestrator.Arm(context.Background()))
	assert.Equal(t, testHelper, orchestrator.HelperAddress())

	account, err := base.Load(testHelper)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x60, 0x00}, account.Code)

	require.Len(t, simulator.bundles, 1)
	deploy := simulator.bundles[0].Transactions[0]
	assert.Equal(t, types.RoleDeploy, deploy.Role)
	assert.True(t, deploy.IsCreate())
	assert.Equal(t, config.DeployerAddress, deploy.From)

	// Arming twice is a no-op
	require.NoError(t, orchestrator.Arm(context.Background()))
	assert.Len(t, simulator.bundles, 1)
}

// TestOrchestratorArmWithEVM deploys a contract through the real executor and checks its runtime code lands at the
// deployer's first creation address.
func TestOrchestratorArmWithEVM(t *testing.T) {
	executor, err := chain.NewExecutor(params.MainnetChainConfig, chain.DefaultBlockEnvironment())
	require.NoError(t, err)

	config := testOrchestratorConfig()
	// Init code copying the ten byte runtime that follows it, which returns 42
	config.HelperBytecode = common.FromHex("0x600a600c600039600a6000f3602a60005260206000f3")
	base := state.NewOverlay(state.EmptyBackend{})

	orchestrator, err := NewOrchestrator(config, base, chain.NewBundleSimulator(executor), &fakeChain{}, &recordingSubmitter{}, passthroughSigner{})
	require.NoError(t, err)
	require.NoError(t, orchestrator.Arm(context.Background()))

	expected := crypto.CreateAddress(config.DeployerAddress, 0)
	assert.Equal(t, expected, orchestrator.HelperAddress())
	account, err := base.Load(expected)
	require.NoError(t, err)
	assert.Equal(t, common.FromHex("0x602a60005260206000f3"), account.Code)
}

// TestArmedHelperStorageVisibleInClone verifies state written by the helper's constructor during arming is seen by
// calls on clones of the base overlay, and that those calls leave the base untouched.
func TestArmedHelperStorageVisibleInClone(t *testing.T) {
	executor, err := chain.NewExecutor(params.MainnetChainConfig, chain.DefaultBlockEnvironment())
	require.NoError(t, err)
	simulator := chain.NewBundleSimulator(executor)

	config := testOrchestratorConfig()
	// Constructor storing 0x42 in slot 0, followed by a runtime returning slot 0
	config.HelperBytecode = common.FromHex("0x6042600055600b6011600039600b6000f360005460005260206000f3")
	base := state.NewOverlay(state.EmptyBackend{})

	orchestrator, err := NewOrchestrator(config, base, simulator, &fakeChain{}, &recordingSubmitter{}, passthroughSigner{})
	require.NoError(t, err)
	require.NoError(t, orchestrator.Arm(context.Background()))
	helper := orchestrator.HelperAddress()

	nonce, err := base.Nonce(config.DeployerAddress)
	require.NoError(t, err)
	assert.EqualValues(t, 1, nonce)

	clone := base.Clone()
	result, err := simulator.Simulate(&types.Bundle{
		Transactions: []*types.TransactionIntent{{
			Role:     types.RoleAttackerBuy,
			From:     config.DeployerAddress,
			To:       &helper,
			Value:    new(big.Int),
			GasLimit: 100_000,
			GasPrice: big.NewInt(params.GWei),
			Nonce:    nonce,
		}},
		CriticalRole: types.RoleAttackerBuy,
	}, clone)
	require.NoError(t, err)
	require.False(t, result.CriticalFailed)
	require.Len(t, result.Outcomes, 1)
	require.Len(t, result.Outcomes[0].Output, 32)
	assert.EqualValues(t, 0x42, result.Outcomes[0].Output[31])

	after, err := base.Nonce(config.DeployerAddress)
	require.NoError(t, err)
	assert.Equal(t, nonce, after)
	cloneNonce, err := clone.Nonce(config.DeployerAddress)
	require.NoError(t, err)
	assert.Equal(t, nonce+1, cloneNonce)
}

// TestOrchestratorArmFailure verifies a deployment that halts leaves the orchestrator disarmed.
func TestOrchestratorArmFailure(t *testing.T) {
	executor, err := chain.NewExecutor(params.MainnetChainConfig, chain.DefaultBlockEnvironment())
	require.NoError(t, err)

	config := testOrchestratorConfig()
	config.HelperBytecode = []byte{0xfe}

	orchestrator, err := NewOrchestrator(config, state.NewOverlay(state.EmptyBackend{}), chain.NewBundleSimulator(executor), &fakeChain{}, &recordingSubmitter{}, passthroughSigner{})
	require.NoError(t, err)

	err = orchestrator.Arm(context.Background())
	var deploymentErr *DeploymentError
	require.ErrorAs(t, err, &deploymentErr)
	assert.Equal(t, Uninitialized, orchestrator.State())
	assert.Equal(t, common.Address{}, orchestrator.HelperAddress())
}

// TestNewOrchestratorValidation verifies missing collaborators are rejected outside dry runs.
func TestNewOrchestratorValidation(t *testing.T) {
	simulator := &marketSimulator{threshold: milliEther(2000), revenue: tenthOf}

	_, err := NewOrchestrator(testOrchestratorConfig(), state.NewOverlay(nil), simulator, nil, nil, nil)
	assert.Error(t, err)

	noBytecode := testOrchestratorConfig()
	noBytecode.HelperBytecode = nil
	_, err = NewOrchestrator(noBytecode, state.NewOverlay(nil), simulator, &fakeChain{}, &recordingSubmitter{}, passthroughSigner{})
	assert.Error(t, err)
}
