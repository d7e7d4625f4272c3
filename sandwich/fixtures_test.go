package sandwich

import (
	"context"
	"math/big"
	"sync"
	"testing"

	"github.com/crytic/medusa-geth/common"
	gethtypes "github.com/crytic/medusa-geth/core/types"
	"github.com/crytic/medusa-geth/params"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/syafiqeil/mev-builder/chain/state"
	"github.com/syafiqeil/mev-builder/chain/types"
)

var (
	testToken    = common.HexToAddress("0x6b175474e89094c44da98b954eedeac495271d0f")
	testVictim   = common.HexToAddress("0x9000000000000000000000000000000000000009")
	testHelper   = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	testAttacker = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
)

// milliEther returns n thousandths of an ether, in wei.
func milliEther(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(params.Ether/1000))
}

// decodeBuyAmount extracts amountIn from helper.buy calldata.
func decodeBuyAmount(data []byte) (*big.Int, error) {
	method, ok := HelperABI.Methods["buy"]
	if !ok || len(data) < 4 {
		return nil, errors.New("not a buy call")
	}
	values, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, err
	}
	return values[1].(*big.Int), nil
}

// marketSimulator models a pool where the victim's slippage limit breaks once the attack exceeds threshold, and the
// helper earns revenue(amount) otherwise. Deployments create testHelper.
type marketSimulator struct {
	threshold *big.Int
	revenue   func(amount *big.Int) *big.Int
	// failures maps attack sizes to simulation errors.
	failures map[string]error

	lock    sync.Mutex
	bundles []*types.Bundle
}

func (s *marketSimulator) Simulate(bundle *types.Bundle, overlay *state.Overlay) (*types.BundleResult, error) {
	s.lock.Lock()
	s.bundles = append(s.bundles, bundle)
	s.lock.Unlock()

	first := bundle.Transactions[0]
	if first.Role == types.RoleDeploy {
		created := testHelper
		return &types.BundleResult{
			GasUsed:          100_000,
			BeneficiaryDelta: new(big.Int),
			CreatedAddress:   &created,
			CreatedCode:      []byte{0x60, 0x00},
			Outcomes:         []*types.ExecutionOutcome{{Kind: types.Success, GasUsed: 100_000}},
		}, nil
	}

	amount, err := decodeBuyAmount(first.Data)
	if err != nil {
		return nil, err
	}
	if err := s.failures[amount.String()]; err != nil {
		return nil, err
	}
	if amount.Cmp(s.threshold) > 0 {
		return &types.BundleResult{
			GasUsed:          200_000,
			CriticalFailed:   true,
			CriticalReason:   "execution reverted: UniswapV2Router: INSUFFICIENT_OUTPUT_AMOUNT",
			BeneficiaryDelta: new(big.Int),
		}, nil
	}
	return &types.BundleResult{
		GasUsed:          300_000,
		BeneficiaryDelta: s.revenue(amount),
	}, nil
}

// tenthOf earns a tenth of the attack size.
func tenthOf(amount *big.Int) *big.Int {
	return new(big.Int).Div(amount, big.NewInt(10))
}

// newVictimCandidate returns a swapExactETHForTokens of value wei sent to router by testVictim.
func newVictimCandidate(t *testing.T, router common.Address, value *big.Int) *Candidate {
	weth := DefaultOrchestratorConfig().WETHAddress
	data, err := RouterABI.Pack("swapExactETHForTokens", big.NewInt(1), []common.Address{weth, testToken}, testVictim, big.NewInt(1_900_000_000))
	require.NoError(t, err)

	tx := gethtypes.NewTx(&gethtypes.LegacyTx{
		Nonce:    3,
		GasPrice: big.NewInt(25 * params.GWei),
		Gas:      250_000,
		To:       &router,
		Value:    value,
		Data:     data,
	})
	return NewCandidate(tx, testVictim)
}

// fakeChain answers nonce and head queries with fixed values.
type fakeChain struct {
	nonce uint64
	head  uint64
	err   error
}

func (c *fakeChain) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return c.nonce, c.err
}

func (c *fakeChain) BlockNumber(ctx context.Context) (uint64, error) {
	return c.head, c.err
}

// recordingSubmitter records every bundle it is handed.
type recordingSubmitter struct {
	err         error
	calls       int
	txs         []*gethtypes.Transaction
	targetBlock uint64
}

func (s *recordingSubmitter) SendBundle(ctx context.Context, txs []*gethtypes.Transaction, targetBlock uint64) (string, error) {
	s.calls++
	s.txs = txs
	s.targetBlock = targetBlock
	if s.err != nil {
		return "", s.err
	}
	return "0xbundle", nil
}

// passthroughSigner returns transactions unsigned.
type passthroughSigner struct{}

func (passthroughSigner) Address() common.Address {
	return testAttacker
}

func (passthroughSigner) SignTx(tx *gethtypes.Transaction) (*gethtypes.Transaction, error) {
	return tx, nil
}

// testOrchestratorConfig returns the default configuration with a placeholder helper bytecode.
func testOrchestratorConfig() OrchestratorConfig {
	config := DefaultOrchestratorConfig()
	config.HelperBytecode = []byte{0x60, 0x00}
	return config
}
