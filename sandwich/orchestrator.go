package sandwich

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/crytic/medusa-geth/common"
	gethtypes "github.com/crytic/medusa-geth/core/types"
	"github.com/crytic/medusa-geth/params"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/syafiqeil/mev-builder/chain/state"
	"github.com/syafiqeil/mev-builder/chain/types"
	"github.com/syafiqeil/mev-builder/events"
	"github.com/syafiqeil/mev-builder/logging"
	"github.com/syafiqeil/mev-builder/logging/colors"
	"github.com/syafiqeil/mev-builder/utils"
)

// ChainReader reads the live chain values a real bundle depends on. ethclient.Client implements it.
type ChainReader interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// Submitter delivers signed bundles to a block builder. It returns the builder's bundle identifier.
type Submitter interface {
	SendBundle(ctx context.Context, txs []*gethtypes.Transaction, targetBlock uint64) (string, error)
}

// TransactionSigner signs transactions on behalf of the attacker account.
type TransactionSigner interface {
	Address() common.Address
	SignTx(tx *gethtypes.Transaction) (*gethtypes.Transaction, error)
}

// OrchestratorState tracks arming progress.
type OrchestratorState int

const (
	// Uninitialized means the helper contract is not deployed.
	Uninitialized OrchestratorState = iota
	// ContractDeployed means the helper contract was deployed and its code injected into the base overlay.
	ContractDeployed
	// Armed means candidates are being evaluated.
	Armed
)

// String returns a human-readable name for the state.
func (s OrchestratorState) String() string {
	switch s {
	case ContractDeployed:
		return "contract deployed"
	case Armed:
		return "armed"
	default:
		return "uninitialized"
	}
}

// DeploymentError is returned when the helper contract could not be deployed in the simulator.
type DeploymentError struct {
	Reason string
	Err    error
}

// Error returns the error message string, implementing the `error` interface.
func (e *DeploymentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("helper deployment failed: %s: %v", e.Reason, e.Err)
	}
	return "helper deployment failed: " + e.Reason
}

// Unwrap returns the underlying error.
func (e *DeploymentError) Unwrap() error {
	return e.Err
}

// OrchestratorConfig holds everything the orchestrator needs to arm itself and build real bundles.
type OrchestratorConfig struct {
	// RouterAddress is the router whose swaps are sandwiched.
	RouterAddress common.Address
	// WETHAddress is passed to the helper constructor.
	WETHAddress common.Address
	// DeployerAddress deploys and drives the helper contract in the simulator.
	DeployerAddress common.Address
	// HelperBytecode is the helper contract's creation code, without constructor arguments.
	HelperBytecode []byte
	// DeployerFunding is credited to the deployer before the simulated deployment, in wei.
	DeployerFunding *big.Int
	// DeployGasLimit and DeployGasPrice price the simulated deployment.
	DeployGasLimit uint64
	DeployGasPrice *big.Int

	// MinProfit is the net profit a search must exceed before a bundle is submitted, in wei.
	MinProfit *big.Int
	// ChainID is used to sign real transactions.
	ChainID *big.Int
	// SubmissionGasLimit is the gas limit of the real buy and sell.
	SubmissionGasLimit uint64
	// PriorityFee is the tip of the real transactions, in wei.
	PriorityFee *big.Int
	// MaxFeeBuffer is added to PriorityFee to form the fee cap, in wei.
	MaxFeeBuffer *big.Int
	// IncludeVictim places the victim's transaction between buy and sell in the submitted bundle.
	IncludeVictim bool
	// DryRun evaluates opportunities without submitting them.
	DryRun bool

	// Search configures the optimizer.
	Search OptimizerConfig
}

// DefaultOrchestratorConfig returns the mainnet Uniswap V2 router and WETH with the standard local deployer. The
// helper bytecode must still be supplied.
func DefaultOrchestratorConfig() OrchestratorConfig {
	gwei := big.NewInt(params.GWei)
	return OrchestratorConfig{
		RouterAddress:      common.HexToAddress("0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D"),
		WETHAddress:        common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"),
		DeployerAddress:    common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8"),
		DeployerFunding:    new(big.Int).Mul(big.NewInt(10), big.NewInt(params.Ether)),
		DeployGasLimit:     10_000_000,
		DeployGasPrice:     new(big.Int).Mul(big.NewInt(20), gwei),
		MinProfit:          big.NewInt(5 * params.Ether / 1000),
		ChainID:            big.NewInt(1),
		SubmissionGasLimit: 350_000,
		PriorityFee:        new(big.Int).Mul(big.NewInt(2), gwei),
		MaxFeeBuffer:       new(big.Int).Mul(big.NewInt(20), gwei),
		Search:             DefaultOptimizerConfig(),
	}
}

// DecisionAction summarizes what the orchestrator did with a candidate.
type DecisionAction int

const (
	// ActionIgnored means the candidate was not a sandwichable swap, or the orchestrator was not armed.
	ActionIgnored DecisionAction = iota
	// ActionDiscarded means no probe was profitable.
	ActionDiscarded
	// ActionNearMiss means the best profit was positive but did not clear the minimum profit.
	ActionNearMiss
	// ActionDryRun means the opportunity cleared the minimum profit but submission is disabled.
	ActionDryRun
	// ActionSubmitted means the relay accepted the bundle.
	ActionSubmitted
	// ActionSubmissionFailed means building, signing or sending the bundle failed.
	ActionSubmissionFailed
)

// String returns a human-readable name for the action.
func (a DecisionAction) String() string {
	switch a {
	case ActionDiscarded:
		return "discarded"
	case ActionNearMiss:
		return "near miss"
	case ActionDryRun:
		return "dry run"
	case ActionSubmitted:
		return "submitted"
	case ActionSubmissionFailed:
		return "submission failed"
	default:
		return "ignored"
	}
}

// Decision is the orchestrator's verdict on a candidate.
type Decision struct {
	// ID identifies the opportunity. It is the zero UUID for ignored candidates.
	ID uuid.UUID
	// Action is what was done with the candidate.
	Action DecisionAction
	// Reason explains ignored candidates.
	Reason string
	// Token is the token bought by the victim.
	Token common.Address
	// Search is the optimizer result, when the optimizer ran.
	Search *SearchResult
	// TargetBlock, BundleHash and Transactions describe the submitted bundle.
	TargetBlock  uint64
	BundleHash   string
	Transactions []*gethtypes.Transaction
	// Err is the submission error, if any.
	Err error
}

// OrchestratorEvents are the events an Orchestrator publishes.
type OrchestratorEvents struct {
	ProbeCompleted       events.EventEmitter[ProbeCompletedEvent]
	OpportunityEvaluated events.EventEmitter[OpportunityEvaluatedEvent]
	BundleSubmitted      events.EventEmitter[BundleSubmittedEvent]
}

// Orchestrator arms the helper contract in the base overlay, evaluates pending swaps with the optimizer and submits
// the profitable ones. Candidates are processed one at a time.
type Orchestrator struct {
	config OrchestratorConfig

	// base is the overlay every probe clones. It holds the injected helper contract.
	base      *state.Overlay
	simulator BundleSimulator

	chain     ChainReader
	submitter Submitter
	signer    TransactionSigner

	stateLock sync.Mutex
	state     OrchestratorState
	helper    common.Address
	optimizer *Optimizer

	// Events publishes probe, evaluation and submission events.
	Events OrchestratorEvents

	logger *logging.Logger
}

// NewOrchestrator creates a disarmed Orchestrator over base. chainReader, submitter and signer may be nil when
// config.DryRun is set.
func NewOrchestrator(config OrchestratorConfig, base *state.Overlay, simulator BundleSimulator, chainReader ChainReader, submitter Submitter, signer TransactionSigner) (*Orchestrator, error) {
	if err := config.Search.Validate(); err != nil {
		return nil, err
	}
	if base == nil || simulator == nil {
		return nil, errors.New("a base overlay and a bundle simulator are required")
	}
	if len(config.HelperBytecode) == 0 {
		return nil, errors.New("helper contract bytecode is required")
	}
	if config.MinProfit == nil || config.DeployerFunding == nil || config.DeployGasPrice == nil {
		return nil, errors.New("minimum profit, deployer funding and deployment gas price must be set")
	}
	if config.ChainID == nil || config.PriorityFee == nil || config.MaxFeeBuffer == nil {
		return nil, errors.New("chain id and submission fees must be set")
	}
	if !config.DryRun && (chainReader == nil || submitter == nil || signer == nil) {
		return nil, errors.New("a chain reader, submitter and signer are required unless running dry")
	}
	return &Orchestrator{
		config:    config,
		base:      base,
		simulator: simulator,
		chain:     chainReader,
		submitter: submitter,
		signer:    signer,
		state:     Uninitialized,
		logger:    logging.GlobalLogger.NewSubLogger(logging.SERVICE_KEY, logging.STRATEGY_SERVICE),
	}, nil
}

// State returns the arming state.
func (o *Orchestrator) State() OrchestratorState {
	o.stateLock.Lock()
	defer o.stateLock.Unlock()
	return o.state
}

// HelperAddress returns the address of the deployed helper contract, or the zero address when disarmed.
func (o *Orchestrator) HelperAddress() common.Address {
	o.stateLock.Lock()
	defer o.stateLock.Unlock()
	return o.helper
}

// Arm deploys the helper contract in the base overlay and injects its code there, so every probe clone sees it. A
// failed deployment returns a *DeploymentError and leaves the orchestrator disarmed. Arm may be retried.
func (o *Orchestrator) Arm(ctx context.Context) error {
	o.stateLock.Lock()
	defer o.stateLock.Unlock()
	if o.state == Armed {
		return nil
	}
	if utils.CheckContextDone(ctx) {
		return errors.WithStack(ctx.Err())
	}

	o.logger.Info("Deploying helper contract to the simulator")
	data, err := EncodeHelperDeployment(o.config.HelperBytecode, o.config.RouterAddress, o.config.WETHAddress)
	if err != nil {
		return &DeploymentError{Reason: "could not encode constructor arguments", Err: err}
	}

	funding, overflow := uint256.FromBig(o.config.DeployerFunding)
	if overflow {
		return &DeploymentError{Reason: "deployer funding overflows 256 bits"}
	}
	if err = o.base.OverrideBalance(o.config.DeployerAddress, funding); err != nil {
		return &DeploymentError{Reason: "could not fund deployer", Err: err}
	}
	nonce, err := o.base.Nonce(o.config.DeployerAddress)
	if err != nil {
		return &DeploymentError{Reason: "could not read deployer nonce", Err: err}
	}

	result, err := o.simulator.Simulate(&types.Bundle{
		Transactions: []*types.TransactionIntent{{
			Role:     types.RoleDeploy,
			From:     o.config.DeployerAddress,
			Value:    new(big.Int),
			Data:     data,
			GasLimit: o.config.DeployGasLimit,
			GasPrice: o.config.DeployGasPrice,
			Nonce:    nonce,
		}},
	}, o.base)
	if err != nil {
		return &DeploymentError{Reason: "deployment could not be simulated", Err: err}
	}
	if result.CreatedAddress == nil || len(result.CreatedCode) == 0 {
		reason := "no contract was created"
		if len(result.Outcomes) > 0 && !result.Outcomes[0].Succeeded() {
			reason = result.Outcomes[0].String()
		}
		return &DeploymentError{Reason: reason}
	}

	helper := *result.CreatedAddress
	if err = o.base.OverrideCode(helper, result.CreatedCode); err != nil {
		return &DeploymentError{Reason: "could not inject helper code", Err: err}
	}
	o.helper = helper
	o.state = ContractDeployed
	o.logger.Info("Helper contract deployed at ", colors.Bold, helper.Hex())

	o.optimizer = NewOptimizer(o.config.Search, o.simulator, o.config.DeployerAddress, helper, &o.Events.ProbeCompleted)
	o.state = Armed
	return nil
}

// ProcessCandidate evaluates a pending transaction. Candidates are ignored while disarmed, when they are not sent to
// the router or when they are not swapExactETHForTokens calls. Submission failures are reported in the decision, the
// returned error is reserved for a cancelled context.
func (o *Orchestrator) ProcessCandidate(ctx context.Context, candidate *Candidate) (*Decision, error) {
	o.stateLock.Lock()
	armed := o.state == Armed
	optimizer := o.optimizer
	helper := o.helper
	o.stateLock.Unlock()

	if !armed {
		return &Decision{Action: ActionIgnored, Reason: "orchestrator is not armed"}, nil
	}
	if to := candidate.To(); to == nil || *to != o.config.RouterAddress {
		return &Decision{Action: ActionIgnored, Reason: "not sent to the router"}, nil
	}
	swap, err := DecodeSwapExactETHForTokens(candidate.Data())
	if err != nil {
		return &Decision{Action: ActionIgnored, Reason: err.Error()}, nil
	}
	token, err := swap.OutputToken()
	if err != nil {
		return &Decision{Action: ActionIgnored, Reason: err.Error()}, nil
	}

	decision := &Decision{ID: uuid.New(), Token: token}
	o.logger.Info("Target acquired: ", colors.Cyan, candidate.Hash().Hex(), colors.Reset, " swaps ",
		utils.FormatEther(candidate.Value(), 4), " ETH for ", token.Hex(), logging.StructuredLogInfo{"opportunity": decision.ID.String()})

	search, err := optimizer.Optimize(ctx, o.base, candidate, token)
	if err != nil {
		return nil, err
	}
	decision.Search = search

	profitable := search.BestProfit.Cmp(o.config.MinProfit) > 0
	o.publishEvaluation(OpportunityEvaluatedEvent{
		ID:         decision.ID,
		Victim:     candidate.Hash(),
		Token:      token,
		Result:     search,
		Profitable: profitable,
	})

	if !profitable {
		if search.BestProfit.Sign() > 0 {
			decision.Action = ActionNearMiss
			o.logger.Info("Opportunity ignored, profit too low: ", utils.FormatEther(search.BestProfit, 5), " ETH (best input: ",
				utils.FormatEther(search.BestAmount, 4), " ETH)")
		} else {
			decision.Action = ActionDiscarded
		}
		return decision, nil
	}

	o.logger.Info("Sweet spot found: ", colors.GreenBold, utils.FormatEther(search.BestAmount, 4), " ETH", colors.Reset,
		" -> est. profit: ", colors.GreenBold, utils.FormatEther(search.BestProfit, 4), " ETH")
	if o.config.DryRun {
		decision.Action = ActionDryRun
		return decision, nil
	}

	o.submit(ctx, decision, candidate, helper, token, search.BestAmount)
	return decision, nil
}

// submit builds, signs and sends the real bundle, recording the outcome in decision.
func (o *Orchestrator) submit(ctx context.Context, decision *Decision, candidate *Candidate, helper common.Address, token common.Address, amount *big.Int) {
	fail := func(err error) {
		decision.Action = ActionSubmissionFailed
		decision.Err = err
		o.logger.Warn("Bundle submission failed", err)
		o.publishSubmission(BundleSubmittedEvent{ID: decision.ID, TargetBlock: decision.TargetBlock, Amount: amount, Err: err})
	}

	head, err := o.chain.BlockNumber(ctx)
	if err != nil {
		fail(errors.Wrap(err, "could not read the chain head"))
		return
	}
	decision.TargetBlock = head + 1

	txs, err := o.buildBundle(ctx, candidate, helper, token, amount)
	if err != nil {
		fail(err)
		return
	}
	decision.Transactions = txs

	bundleHash, err := o.submitter.SendBundle(ctx, txs, decision.TargetBlock)
	if err != nil {
		fail(err)
		return
	}
	decision.Action = ActionSubmitted
	decision.BundleHash = bundleHash
	o.logger.Info("Bundle sent for block ", decision.TargetBlock, ": ", colors.Green, bundleHash)
	o.publishSubmission(BundleSubmittedEvent{ID: decision.ID, TargetBlock: decision.TargetBlock, BundleHash: bundleHash, Amount: amount})
}

// buildBundle signs buy and sell with consecutive nonces, optionally placing the victim between them.
func (o *Orchestrator) buildBundle(ctx context.Context, candidate *Candidate, helper common.Address, token common.Address, amount *big.Int) ([]*gethtypes.Transaction, error) {
	nonce, err := o.chain.PendingNonceAt(ctx, o.signer.Address())
	if err != nil {
		return nil, errors.Wrap(err, "could not read the attacker nonce")
	}
	buyData, err := EncodeBuy(token, amount)
	if err != nil {
		return nil, err
	}
	sellData, err := EncodeSell(token)
	if err != nil {
		return nil, err
	}

	buy, err := o.signer.SignTx(o.newDynamicFeeTx(helper, nonce, amount, buyData))
	if err != nil {
		return nil, errors.Wrap(err, "could not sign the buy")
	}
	sell, err := o.signer.SignTx(o.newDynamicFeeTx(helper, nonce+1, new(big.Int), sellData))
	if err != nil {
		return nil, errors.Wrap(err, "could not sign the sell")
	}

	if o.config.IncludeVictim {
		return []*gethtypes.Transaction{buy, candidate.Tx, sell}, nil
	}
	return []*gethtypes.Transaction{buy, sell}, nil
}

func (o *Orchestrator) newDynamicFeeTx(to common.Address, nonce uint64, value *big.Int, data []byte) *gethtypes.Transaction {
	return gethtypes.NewTx(&gethtypes.DynamicFeeTx{
		ChainID:   new(big.Int).Set(o.config.ChainID),
		Nonce:     nonce,
		GasTipCap: new(big.Int).Set(o.config.PriorityFee),
		GasFeeCap: new(big.Int).Add(o.config.PriorityFee, o.config.MaxFeeBuffer),
		Gas:       o.config.SubmissionGasLimit,
		To:        &to,
		Value:     new(big.Int).Set(value),
		Data:      data,
	})
}

func (o *Orchestrator) publishEvaluation(event OpportunityEvaluatedEvent) {
	if err := o.Events.OpportunityEvaluated.Publish(event); err != nil {
		o.logger.Error("Opportunity event handler failed", err)
	}
}

func (o *Orchestrator) publishSubmission(event BundleSubmittedEvent) {
	if err := o.Events.BundleSubmitted.Publish(event); err != nil {
		o.logger.Error("Submission event handler failed", err)
	}
}
