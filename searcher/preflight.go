package searcher

import (
	"context"

	gethtypes "github.com/crytic/medusa-geth/core/types"
	"github.com/pkg/errors"
	"github.com/syafiqeil/mev-builder/logging"
	"github.com/syafiqeil/mev-builder/relay"
)

// bundleRelay simulates and sends bundles. relay.Client implements it.
type bundleRelay interface {
	SendBundle(ctx context.Context, txs []*gethtypes.Transaction, targetBlock uint64) (string, error)
	CallBundle(ctx context.Context, txs []*gethtypes.Transaction, targetBlock uint64) (*relay.CallBundleResult, error)
}

// preflightSubmitter simulates every bundle on the relay and only sends the ones that execute without reverting.
type preflightSubmitter struct {
	relay  bundleRelay
	logger *logging.Logger
}

func newPreflightSubmitter(relay bundleRelay) *preflightSubmitter {
	return &preflightSubmitter{
		relay:  relay,
		logger: logging.GlobalLogger.NewSubLogger(logging.SERVICE_KEY, logging.RELAY_SERVICE),
	}
}

// SendBundle implements sandwich.Submitter.
func (p *preflightSubmitter) SendBundle(ctx context.Context, txs []*gethtypes.Transaction, targetBlock uint64) (string, error) {
	result, err := p.relay.CallBundle(ctx, txs, targetBlock)
	if err != nil {
		return "", errors.WithMessage(err, "bundle preflight failed")
	}
	if result.Reverted() {
		return "", errors.Errorf("bundle reverts in relay simulation at block %d: %s", result.StateBlockNumber, string(result.FirstRevert))
	}
	p.logger.Debug("Preflight passed, coinbase diff ", result.CoinbaseDiff, " wei using ", result.TotalGasUsed, " gas")
	return p.relay.SendBundle(ctx, txs, targetBlock)
}
