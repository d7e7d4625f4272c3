package config

import (
	"encoding/json"
	"math/big"
	"os"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/syafiqeil/mev-builder/sandwich"
	"github.com/syafiqeil/mev-builder/utils"
)

// DefaultConfigFile is the file name `init` writes and `run` reads by default.
const DefaultConfigFile = "mevbuilder.json"

// ProjectConfig describes every setting of the searcher.
type ProjectConfig struct {
	// Fork describes where chain state is read from.
	Fork ForkConfig `json:"fork"`

	// Chain describes the target chain.
	Chain ChainConfig `json:"chain"`

	// Strategy describes the sandwiched router and the helper contract.
	Strategy StrategyConfig `json:"strategy"`

	// Search describes the attack size search.
	Search SearchConfig `json:"search"`

	// Submission describes how bundles are built and sent.
	Submission SubmissionConfig `json:"submission"`

	// Mempool describes the pending transaction feed.
	Mempool MempoolConfig `json:"mempool"`

	// Metrics describes the Prometheus endpoint.
	Metrics MetricsConfig `json:"metrics"`

	// Logging describes the configuration used for logging
	Logging LoggingConfig `json:"logging"`
}

// ForkConfig describes the remote node the simulator forks from.
type ForkConfig struct {
	// RpcUrl is the HTTP or websocket endpoint state is read from.
	RpcUrl string `json:"rpcUrl"`

	// WsUrl is the websocket endpoint pending transactions are streamed from.
	WsUrl string `json:"wsUrl"`

	// BlockNumber pins state reads to a block. Zero reads at the node's latest block.
	BlockNumber uint64 `json:"blockNumber"`

	// PoolSize is the number of connections used for state reads.
	PoolSize uint `json:"poolSize"`

	// PersistentCache stores fetched state on disk. It requires a pinned BlockNumber.
	PersistentCache bool `json:"persistentCache"`

	// CacheDirectory holds the persistent cache files.
	CacheDirectory string `json:"cacheDirectory"`
}

// ChainConfig describes the target chain.
type ChainConfig struct {
	// ChainId is used to recover senders and sign transactions.
	ChainId uint64 `json:"chainId"`
}

// StrategyConfig describes the sandwiched router and the helper contract deployed in the simulator.
type StrategyConfig struct {
	RouterAddress   string `json:"routerAddress"`
	WethAddress     string `json:"wethAddress"`
	DeployerAddress string `json:"deployerAddress"`

	// HelperBytecode is the hex-encoded creation code of the helper contract, without constructor arguments.
	HelperBytecode string `json:"helperBytecode"`

	// DeployerFunding is credited to the deployer before deployment, in ether.
	DeployerFunding string `json:"deployerFunding"`
}

// SearchConfig describes the attack size search. Amounts are decimal ether strings, prices are decimal gwei strings.
type SearchConfig struct {
	LowerBound        string `json:"lowerBound"`
	UpperBound        string `json:"upperBound"`
	Iterations        int    `json:"iterations"`
	GasCostEstimate   string `json:"gasCostEstimate"`
	HelperSeedBalance string `json:"helperSeedBalance"`

	// MinProfit is the net profit an opportunity must exceed to be submitted.
	MinProfit string `json:"minProfit"`

	// ProbeGasLimit and the gas prices apply to the simulated buy and sell. The victim is simulated with its own.
	ProbeGasLimit    uint64 `json:"probeGasLimit"`
	BuyGasPriceGwei  string `json:"buyGasPriceGwei"`
	SellGasPriceGwei string `json:"sellGasPriceGwei"`
}

// SubmissionConfig describes how real bundles are built and sent.
type SubmissionConfig struct {
	RelayUrl         string `json:"relayUrl"`
	GasLimit         uint64 `json:"gasLimit"`
	PriorityFeeGwei  string `json:"priorityFeeGwei"`
	MaxFeeBufferGwei string `json:"maxFeeBufferGwei"`

	// IncludeVictim places the victim's transaction between buy and sell.
	IncludeVictim bool `json:"includeVictim"`

	// Preflight simulates every bundle on the relay before sending it.
	Preflight bool `json:"preflight"`

	// DryRun evaluates opportunities without submitting them.
	DryRun bool `json:"dryRun"`
}

// MempoolConfig describes the pending transaction feed.
type MempoolConfig struct {
	// QueueSize bounds the candidates waiting for evaluation. The oldest are dropped first.
	QueueSize int `json:"queueSize"`
}

// MetricsConfig describes the Prometheus endpoint.
type MetricsConfig struct {
	// ListenAddress is where /metrics is served. An empty address disables the endpoint.
	ListenAddress string `json:"listenAddress"`
}

// LoggingConfig describes the configuration options used for logging
type LoggingConfig struct {
	// Level describes whether logs of certain severity levels (eg info, warning, etc.) will be emitted or discarded.
	// Increasing level values represent more severe logs
	Level zerolog.Level `json:"level"`

	// EnableConsoleLogging describes whether console logging is enabled
	EnableConsoleLogging bool `json:"enableConsoleLogging"`

	// LogDirectory describes what directory log files should be outputted in. A non-empty value enables file
	// logging.
	LogDirectory string `json:"logDirectory"`
}

// ReadProjectConfigFromFile reads a JSON-serialized ProjectConfig from a provided file path. Fields missing from the
// file keep their default values.
func ReadProjectConfigFromFile(path string) (*ProjectConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	projectConfig := GetDefaultProjectConfig()
	if err = json.Unmarshal(b, projectConfig); err != nil {
		return nil, errors.WithStack(err)
	}
	return projectConfig, nil
}

// WriteToFile writes the ProjectConfig to a provided file path in a JSON-serialized format.
func (p *ProjectConfig) WriteToFile(path string) error {
	b, err := json.MarshalIndent(p, "", "\t")
	if err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(os.WriteFile(path, b, 0644))
}

// Validate validates that the ProjectConfig meets certain requirements.
// Returns an error if one occurs.
func (p *ProjectConfig) Validate() error {
	if p.Fork.RpcUrl == "" {
		return errors.Errorf("an rpc url must be provided")
	}
	if p.Fork.WsUrl == "" {
		return errors.Errorf("a websocket url must be provided for the pending transaction feed")
	}
	if p.Fork.PoolSize == 0 {
		return errors.Errorf("rpc pool size must be a positive number")
	}
	if p.Fork.PersistentCache && p.Fork.BlockNumber == 0 {
		return errors.Errorf("the persistent cache requires a pinned fork block number")
	}
	if p.Chain.ChainId == 0 {
		return errors.Errorf("chain id must be a positive number")
	}
	if p.Mempool.QueueSize <= 0 {
		return errors.Errorf("mempool queue size must be a positive number")
	}
	if !p.Submission.DryRun && p.Submission.RelayUrl == "" {
		return errors.Errorf("a relay url must be provided unless running dry")
	}
	if p.Submission.GasLimit == 0 {
		return errors.Errorf("submission gas limit must be a positive number")
	}

	// The conversions below check every address, amount and price
	orchestratorConfig, err := p.ToOrchestratorConfig()
	if err != nil {
		return err
	}
	if len(orchestratorConfig.HelperBytecode) == 0 {
		return errors.Errorf("helper contract bytecode must be provided")
	}
	return orchestratorConfig.Search.Validate()
}

// ToOptimizerConfig converts the search section into an optimizer configuration.
func (p *ProjectConfig) ToOptimizerConfig() (sandwich.OptimizerConfig, error) {
	var (
		config = sandwich.OptimizerConfig{
			Iterations:    p.Search.Iterations,
			ProbeGasLimit: p.Search.ProbeGasLimit,
		}
		err error
	)
	amounts := []struct {
		name  string
		value string
		gwei  bool
		dst   **big.Int
	}{
		{"search.lowerBound", p.Search.LowerBound, false, &config.LowerBound},
		{"search.upperBound", p.Search.UpperBound, false, &config.UpperBound},
		{"search.gasCostEstimate", p.Search.GasCostEstimate, false, &config.GasCostEstimate},
		{"search.helperSeedBalance", p.Search.HelperSeedBalance, false, &config.HelperSeedBalance},
		{"search.buyGasPriceGwei", p.Search.BuyGasPriceGwei, true, &config.BuyGasPrice},
		{"search.sellGasPriceGwei", p.Search.SellGasPriceGwei, true, &config.SellGasPrice},
	}
	for _, amount := range amounts {
		if *amount.dst, err = parseAmount(amount.name, amount.value, amount.gwei); err != nil {
			return config, err
		}
	}
	return config, nil
}

// ToOrchestratorConfig converts the strategy, search and submission sections into an orchestrator configuration.
func (p *ProjectConfig) ToOrchestratorConfig() (sandwich.OrchestratorConfig, error) {
	config := sandwich.DefaultOrchestratorConfig()

	var err error
	if config.RouterAddress, err = utils.HexStringToAddress(p.Strategy.RouterAddress); err != nil {
		return config, errors.Errorf("malformed router address")
	}
	if config.WETHAddress, err = utils.HexStringToAddress(p.Strategy.WethAddress); err != nil {
		return config, errors.Errorf("malformed weth address")
	}
	if config.DeployerAddress, err = utils.HexStringToAddress(p.Strategy.DeployerAddress); err != nil {
		return config, errors.Errorf("malformed deployer address")
	}
	if config.HelperBytecode, err = utils.HexStringToBytes(p.Strategy.HelperBytecode); err != nil {
		return config, errors.Errorf("malformed helper contract bytecode")
	}
	if config.DeployerFunding, err = parseAmount("strategy.deployerFunding", p.Strategy.DeployerFunding, false); err != nil {
		return config, err
	}
	if config.MinProfit, err = parseAmount("search.minProfit", p.Search.MinProfit, false); err != nil {
		return config, err
	}
	if config.PriorityFee, err = parseAmount("submission.priorityFeeGwei", p.Submission.PriorityFeeGwei, true); err != nil {
		return config, err
	}
	if config.MaxFeeBuffer, err = parseAmount("submission.maxFeeBufferGwei", p.Submission.MaxFeeBufferGwei, true); err != nil {
		return config, err
	}
	if config.Search, err = p.ToOptimizerConfig(); err != nil {
		return config, err
	}

	config.ChainID = new(big.Int).SetUint64(p.Chain.ChainId)
	config.SubmissionGasLimit = p.Submission.GasLimit
	config.IncludeVictim = p.Submission.IncludeVictim
	config.DryRun = p.Submission.DryRun
	return config, nil
}

// parseAmount parses a decimal ether or gwei string into wei.
func parseAmount(name string, value string, gwei bool) (*big.Int, error) {
	var (
		amount *big.Int
		err    error
	)
	if gwei {
		amount, err = utils.GweiToWei(value)
	} else {
		amount, err = utils.EtherToWei(value)
	}
	if err != nil {
		return nil, errors.WithMessagef(err, "invalid %s", name)
	}
	return amount, nil
}
