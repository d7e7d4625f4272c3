package sandwich

import (
	"context"
	"math/big"

	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/medusa-geth/params"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/syafiqeil/mev-builder/chain/state"
	"github.com/syafiqeil/mev-builder/chain/types"
	"github.com/syafiqeil/mev-builder/events"
	"github.com/syafiqeil/mev-builder/logging"
	"github.com/syafiqeil/mev-builder/logging/colors"
	"github.com/syafiqeil/mev-builder/utils"
)

// BundleSimulator simulates bundles against an overlay. chain.BundleSimulator is the EVM-backed implementation.
type BundleSimulator interface {
	Simulate(bundle *types.Bundle, overlay *state.Overlay) (*types.BundleResult, error)
}

// OptimizerConfig bounds and prices the search for the attack size.
type OptimizerConfig struct {
	// LowerBound and UpperBound form the initial bracket, in wei.
	LowerBound *big.Int
	UpperBound *big.Int
	// Iterations is the number of probes per candidate.
	Iterations int
	// GasCostEstimate is subtracted from every probe's gross revenue, in wei.
	GasCostEstimate *big.Int
	// HelperSeedBalance is credited to the helper contract in every probe clone, in wei.
	HelperSeedBalance *big.Int
	// ProbeGasLimit is the gas limit of the simulated buy and sell. The victim keeps its own.
	ProbeGasLimit uint64
	// BuyGasPrice and SellGasPrice price the simulated buy and sell, in wei.
	BuyGasPrice  *big.Int
	SellGasPrice *big.Int
}

// DefaultOptimizerConfig returns a bracket of [0.01, 10] ether searched with eight probes.
func DefaultOptimizerConfig() OptimizerConfig {
	ether := big.NewInt(params.Ether)
	return OptimizerConfig{
		LowerBound:        new(big.Int).Div(ether, big.NewInt(100)),
		UpperBound:        new(big.Int).Mul(ether, big.NewInt(10)),
		Iterations:        8,
		GasCostEstimate:   big.NewInt(5 * params.Ether / 1000),
		HelperSeedBalance: new(big.Int).Mul(ether, big.NewInt(1_000_000)),
		ProbeGasLimit:     500_000,
		BuyGasPrice:       new(big.Int).Mul(big.NewInt(30), big.NewInt(params.GWei)),
		SellGasPrice:      new(big.Int).Mul(big.NewInt(20), big.NewInt(params.GWei)),
	}
}

// Validate checks the configuration for inconsistencies.
func (c *OptimizerConfig) Validate() error {
	if c.LowerBound == nil || c.UpperBound == nil || c.LowerBound.Sign() < 0 {
		return errors.New("search bracket must be set and non-negative")
	}
	if c.LowerBound.Cmp(c.UpperBound) >= 0 {
		return errors.Errorf("search lower bound %v must be below upper bound %v", c.LowerBound, c.UpperBound)
	}
	if c.Iterations <= 0 {
		return errors.New("search iterations must be positive")
	}
	if c.GasCostEstimate == nil || c.HelperSeedBalance == nil {
		return errors.New("gas cost estimate and helper seed balance must be set")
	}
	if c.ProbeGasLimit == 0 {
		return errors.New("probe gas limit must be positive")
	}
	if c.BuyGasPrice == nil || c.SellGasPrice == nil {
		return errors.New("probe gas prices must be set")
	}
	return nil
}

// ProbeOutcome classifies a single probe.
type ProbeOutcome int

const (
	// ProbeProfitable means the victim survived and the net profit was positive.
	ProbeProfitable ProbeOutcome = iota
	// ProbeUnprofitable means the victim survived but the net profit was zero or negative.
	ProbeUnprofitable
	// ProbeCriticalFailure means the victim transaction reverted or halted.
	ProbeCriticalFailure
	// ProbeDiscarded means the bundle could not be simulated at all.
	ProbeDiscarded
)

// String returns a human-readable name for the probe outcome.
func (o ProbeOutcome) String() string {
	switch o {
	case ProbeProfitable:
		return "profitable"
	case ProbeUnprofitable:
		return "unprofitable"
	case ProbeCriticalFailure:
		return "victim failed"
	default:
		return "discarded"
	}
}

// ProbeResult records one probe of the search.
type ProbeResult struct {
	// Iteration is the zero-based probe index.
	Iteration int
	// Amount is the attack size tried, in wei.
	Amount *big.Int
	// Outcome classifies the probe.
	Outcome ProbeOutcome
	// GrossRevenue is the helper contract's balance change, in wei. Nil unless the victim survived.
	GrossRevenue *big.Int
	// NetProfit is GrossRevenue minus the gas cost estimate. Nil unless the victim survived.
	NetProfit *big.Int
	// GasUsed is the gas of every successful transaction in the probe bundle.
	GasUsed uint64
	// Reason explains a critical failure or a discarded probe.
	Reason string
	// Low and High are the bracket after the probe.
	Low  *big.Int
	High *big.Int
}

// SearchResult is the outcome of a full search.
type SearchResult struct {
	// BestAmount is the attack size with the highest net profit seen, or zero when no probe was profitable.
	BestAmount *big.Int
	// BestProfit is the net profit at BestAmount, in wei.
	BestProfit *big.Int
	// Low and High are the final bracket.
	Low  *big.Int
	High *big.Int
	// Probes records every probe in order.
	Probes []ProbeResult
}

// Optimizer searches for the attack size maximizing net profit without making the victim fail. It bisects the
// bracket under the assumption that profit grows with size until the victim's slippage limit breaks the swap.
type Optimizer struct {
	config    OptimizerConfig
	simulator BundleSimulator

	deployer common.Address
	helper   common.Address

	probeCompleted *events.EventEmitter[ProbeCompletedEvent]
	logger         *logging.Logger
}

// NewOptimizer creates an Optimizer driving helper, a contract controlled by deployer. Probe events are published to
// probeCompleted when it is not nil.
func NewOptimizer(config OptimizerConfig, simulator BundleSimulator, deployer common.Address, helper common.Address, probeCompleted *events.EventEmitter[ProbeCompletedEvent]) *Optimizer {
	return &Optimizer{
		config:         config,
		simulator:      simulator,
		deployer:       deployer,
		helper:         helper,
		probeCompleted: probeCompleted,
		logger:         logging.GlobalLogger.NewSubLogger(logging.SERVICE_KEY, logging.OPTIMIZER_SERVICE),
	}
}

// Optimize runs the configured number of probes for victim buying token. Every probe works on its own clone of base,
// which is never modified. Only a cancelled context ends the search early.
func (o *Optimizer) Optimize(ctx context.Context, base *state.Overlay, victim *Candidate, token common.Address) (*SearchResult, error) {
	low := new(big.Int).Set(o.config.LowerBound)
	high := new(big.Int).Set(o.config.UpperBound)
	result := &SearchResult{
		BestAmount: new(big.Int),
		BestProfit: new(big.Int),
		Probes:     make([]ProbeResult, 0, o.config.Iterations),
	}

	for i := 0; i < o.config.Iterations; i++ {
		if utils.CheckContextDone(ctx) {
			return nil, errors.WithStack(ctx.Err())
		}

		mid := new(big.Int).Add(low, high)
		mid.Rsh(mid, 1)

		probe := o.probe(base, victim, token, mid)
		probe.Iteration = i
		switch probe.Outcome {
		case ProbeCriticalFailure:
			high = mid
		case ProbeProfitable, ProbeUnprofitable:
			if probe.NetProfit.Cmp(result.BestProfit) > 0 {
				result.BestProfit = new(big.Int).Set(probe.NetProfit)
				result.BestAmount = new(big.Int).Set(mid)
			}
			low = mid
		}
		probe.Low = new(big.Int).Set(low)
		probe.High = new(big.Int).Set(high)
		result.Probes = append(result.Probes, probe)
		o.logProbe(&probe)

		if o.probeCompleted != nil {
			if err := o.probeCompleted.Publish(ProbeCompletedEvent{Victim: victim.Hash(), Probe: probe}); err != nil {
				o.logger.Error("Probe event handler failed", err)
			}
		}
	}

	result.Low = low
	result.High = high
	return result, nil
}

// probe simulates buy, victim and sell at the given size on a fresh clone of base.
func (o *Optimizer) probe(base *state.Overlay, victim *Candidate, token common.Address, amount *big.Int) ProbeResult {
	probe := ProbeResult{Amount: new(big.Int).Set(amount)}
	discard := func(err error) ProbeResult {
		probe.Outcome = ProbeDiscarded
		probe.Reason = err.Error()
		return probe
	}

	clone := base.Clone()
	seed, overflow := uint256.FromBig(o.config.HelperSeedBalance)
	if overflow {
		return discard(errors.New("helper seed balance overflows 256 bits"))
	}
	if err := clone.OverrideBalance(o.helper, seed); err != nil {
		return discard(err)
	}

	bundle, err := o.buildProbeBundle(clone, victim, token, amount)
	if err != nil {
		return discard(err)
	}
	result, err := o.simulator.Simulate(bundle, clone)
	if err != nil {
		return discard(err)
	}

	probe.GasUsed = result.GasUsed
	if result.CriticalFailed {
		probe.Outcome = ProbeCriticalFailure
		probe.Reason = result.CriticalReason
		return probe
	}

	probe.GrossRevenue = new(big.Int).Set(result.BeneficiaryDelta)
	probe.NetProfit = new(big.Int).Sub(result.BeneficiaryDelta, o.config.GasCostEstimate)
	if probe.NetProfit.Sign() > 0 {
		probe.Outcome = ProbeProfitable
	} else {
		probe.Outcome = ProbeUnprofitable
	}
	return probe
}

// buildProbeBundle builds helper buy, the unmodified victim swap and helper sell, with nonces read from overlay.
func (o *Optimizer) buildProbeBundle(overlay *state.Overlay, victim *Candidate, token common.Address, amount *big.Int) (*types.Bundle, error) {
	buyData, err := EncodeBuy(token, amount)
	if err != nil {
		return nil, err
	}
	sellData, err := EncodeSell(token)
	if err != nil {
		return nil, err
	}
	deployerNonce, err := overlay.Nonce(o.deployer)
	if err != nil {
		return nil, err
	}
	victimNonce, err := overlay.Nonce(victim.From)
	if err != nil {
		return nil, err
	}

	helper := o.helper
	return &types.Bundle{
		Transactions: []*types.TransactionIntent{
			{
				Role:     types.RoleAttackerBuy,
				From:     o.deployer,
				To:       &helper,
				Value:    new(big.Int),
				Data:     buyData,
				GasLimit: o.config.ProbeGasLimit,
				GasPrice: o.config.BuyGasPrice,
				Nonce:    deployerNonce,
			},
			{
				Role:     types.RoleVictim,
				From:     victim.From,
				To:       victim.To(),
				Value:    victim.Value(),
				Data:     victim.Data(),
				GasLimit: victim.Gas(),
				GasPrice: victim.GasPrice(),
				Nonce:    victimNonce,
			},
			{
				Role:     types.RoleAttackerSell,
				From:     o.deployer,
				To:       &helper,
				Value:    new(big.Int),
				Data:     sellData,
				GasLimit: o.config.ProbeGasLimit,
				GasPrice: o.config.SellGasPrice,
				Nonce:    deployerNonce + 1,
			},
		},
		CriticalRole: types.RoleVictim,
		Beneficiary:  o.helper,
	}, nil
}

func (o *Optimizer) logProbe(probe *ProbeResult) {
	input := utils.FormatEther(probe.Amount, 4)
	switch probe.Outcome {
	case ProbeCriticalFailure:
		o.logger.Info("Probe #", probe.Iteration, " | input: ", input, " ETH -> ", colors.Yellow, "victim failed (", probe.Reason, ")")
	case ProbeDiscarded:
		o.logger.Warn("Probe #", probe.Iteration, " | input: ", input, " ETH -> discarded: ", probe.Reason)
	case ProbeProfitable:
		o.logger.Info("Probe #", probe.Iteration, " | input: ", input, " ETH -> revenue: ", utils.FormatEther(probe.GrossRevenue, 5),
			" ETH | net: ", colors.Green, utils.FormatEther(probe.NetProfit, 5), " ETH")
	default:
		o.logger.Info("Probe #", probe.Iteration, " | input: ", input, " ETH -> revenue: ", utils.FormatEther(probe.GrossRevenue, 5),
			" ETH | net: ", colors.Red, utils.FormatEther(probe.NetProfit, 5), " ETH")
	}
}
