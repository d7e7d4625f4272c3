package config

import (
	"github.com/rs/zerolog"
	"github.com/syafiqeil/mev-builder/mempool"
	"github.com/syafiqeil/mev-builder/relay"
)

// GetDefaultProjectConfig obtains a default configuration for the searcher on Ethereum mainnet. The endpoints and the
// helper bytecode are left empty.
func GetDefaultProjectConfig() *ProjectConfig {
	return &ProjectConfig{
		Fork: ForkConfig{
			RpcUrl:          "",
			WsUrl:           "",
			BlockNumber:     0,
			PoolSize:        8,
			PersistentCache: false,
			CacheDirectory:  ".mevbuilder",
		},
		Chain: ChainConfig{
			ChainId: 1,
		},
		Strategy: StrategyConfig{
			RouterAddress:   "0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D",
			WethAddress:     "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2",
			DeployerAddress: "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
			HelperBytecode:  "",
			DeployerFunding: "10",
		},
		Search: SearchConfig{
			LowerBound:        "0.01",
			UpperBound:        "10",
			Iterations:        8,
			GasCostEstimate:   "0.005",
			HelperSeedBalance: "1000000",
			MinProfit:         "0.005",
			ProbeGasLimit:     500_000,
			BuyGasPriceGwei:   "30",
			SellGasPriceGwei:  "20",
		},
		Submission: SubmissionConfig{
			RelayUrl:         relay.DefaultRelayURL,
			GasLimit:         350_000,
			PriorityFeeGwei:  "2",
			MaxFeeBufferGwei: "20",
			IncludeVictim:    false,
			Preflight:        false,
			DryRun:           false,
		},
		Mempool: MempoolConfig{
			QueueSize: mempool.DefaultQueueSize,
		},
		Metrics: MetricsConfig{
			ListenAddress: "",
		},
		Logging: LoggingConfig{
			Level:                zerolog.InfoLevel,
			EnableConsoleLogging: true,
			LogDirectory:         "",
		},
	}
}
