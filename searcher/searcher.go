package searcher

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"sort"
	"sync"
	"time"

	gethtypes "github.com/crytic/medusa-geth/core/types"
	"github.com/crytic/medusa-geth/ethclient"
	"github.com/crytic/medusa-geth/params"
	gethrpc "github.com/crytic/medusa-geth/rpc"
	"github.com/pkg/errors"
	"github.com/syafiqeil/mev-builder/chain"
	"github.com/syafiqeil/mev-builder/chain/state"
	"github.com/syafiqeil/mev-builder/chain/state/cache"
	staterpc "github.com/syafiqeil/mev-builder/chain/state/rpc"
	"github.com/syafiqeil/mev-builder/config"
	"github.com/syafiqeil/mev-builder/logging"
	"github.com/syafiqeil/mev-builder/logging/colors"
	"github.com/syafiqeil/mev-builder/mempool"
	"github.com/syafiqeil/mev-builder/metrics"
	"github.com/syafiqeil/mev-builder/relay"
	"github.com/syafiqeil/mev-builder/sandwich"
	"github.com/syafiqeil/mev-builder/utils"
)

// candidateProcessor evaluates a single queued candidate. sandwich.Orchestrator implements it.
type candidateProcessor interface {
	ProcessCandidate(ctx context.Context, candidate *sandwich.Candidate) (*sandwich.Decision, error)
}

// Searcher connects the pending transaction feed to the sandwich orchestrator and runs until stopped.
type Searcher struct {
	// config describes the project configuration the searcher runs with.
	config config.ProjectConfig

	// secrets holds the signing keys. They may be nil when running dry.
	secrets *config.Secrets

	// ctx describes the context for the searcher run. If cancelled, the feed and the consumer loop exit.
	ctx context.Context
	// ctxCancelFunc describes a function which can be used to cancel the run.
	ctxCancelFunc context.CancelFunc

	// metrics counts feed and orchestrator events.
	metrics *metrics.Metrics

	// decisions counts processed candidates per decision action.
	decisions     map[sandwich.DecisionAction]uint64
	decisionsLock sync.Mutex

	// logFile is the structured log file, when file logging is enabled.
	logFile *os.File

	logger *logging.Logger
}

// NewSearcher returns a Searcher for projectConfig, or an error if the configuration or the secrets are unusable.
// It replaces the global logger with one built from the logging configuration.
func NewSearcher(projectConfig config.ProjectConfig, secrets *config.Secrets) (*Searcher, error) {
	if err := projectConfig.Validate(); err != nil {
		return nil, err
	}
	if secrets == nil {
		secrets = &config.Secrets{}
	}
	if !projectConfig.Submission.DryRun {
		if err := secrets.RequireSigningKeys(); err != nil {
			return nil, err
		}
	}

	logFile, err := setupLogging(projectConfig.Logging)
	if err != nil {
		return nil, err
	}

	return &Searcher{
		config:    projectConfig,
		secrets:   secrets,
		metrics:   metrics.NewMetrics(),
		decisions: make(map[sandwich.DecisionAction]uint64),
		logFile:   logFile,
		logger:    logging.GlobalLogger.NewSubLogger(logging.SERVICE_KEY, logging.SEARCHER_SERVICE),
	}, nil
}

// setupLogging rebuilds the global logger. A structured log file is created when a log directory is configured.
func setupLogging(loggingConfig config.LoggingConfig) (*os.File, error) {
	logging.GlobalLogger = logging.NewLogger(loggingConfig.Level, loggingConfig.EnableConsoleLogging)
	if loggingConfig.LogDirectory == "" {
		return nil, nil
	}

	logFile, err := utils.CreateFile(loggingConfig.LogDirectory, fmt.Sprintf("mevbuilder-%d.log", time.Now().Unix()))
	if err != nil {
		return nil, err
	}
	logging.GlobalLogger.AddWriter(logFile, logging.STRUCTURED)
	return logFile, nil
}

// Metrics exposes the searcher's collectors.
func (s *Searcher) Metrics() *metrics.Metrics {
	return s.metrics
}

// DecisionCounts returns how many candidates ended in each decision action so far.
func (s *Searcher) DecisionCounts() map[sandwich.DecisionAction]uint64 {
	s.decisionsLock.Lock()
	defer s.decisionsLock.Unlock()

	counts := make(map[sandwich.DecisionAction]uint64, len(s.decisions))
	for action, count := range s.decisions {
		counts[action] = count
	}
	return counts
}

// Start connects to the node and the relay, arms the orchestrator and processes pending transactions. This operation
// will not return until an error is encountered or the run is cancelled using the Stop method. A failed deployment
// of the helper contract is logged and leaves the searcher observing without acting.
func (s *Searcher) Start() error {
	s.ctx, s.ctxCancelFunc = context.WithCancel(context.Background())
	defer s.ctxCancelFunc()
	if s.logFile != nil {
		defer s.logFile.Close()
	}

	components, err := s.connect(s.ctx)
	if err != nil {
		return err
	}
	defer components.close()

	if err = components.orchestrator.Arm(s.ctx); err != nil {
		var deploymentErr *sandwich.DeploymentError
		if !errors.As(err, &deploymentErr) {
			return err
		}
		s.logger.Error("Helper contract could not be deployed, observing without acting", err)
	}

	s.metrics.AttachOrchestrator(&components.orchestrator.Events)
	s.metrics.AttachFeed(&components.feed.Events)

	var (
		wg      sync.WaitGroup
		feedErr error
	)
	if address := s.config.Metrics.ListenAddress; address != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.metrics.Serve(s.ctx, address); err != nil {
				s.logger.Error("Metrics endpoint stopped", err)
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		feedErr = components.feed.Run(s.ctx)
		if feedErr != nil {
			s.logger.Error("Pending transaction feed stopped", feedErr)
			s.ctxCancelFunc()
		}
	}()

	s.logger.Info("Searcher started on chain ", s.config.Chain.ChainId, " with orchestrator ", colors.Bold,
		components.orchestrator.State().String(), colors.Reset)
	err = s.consume(s.ctx, components.queue, components.orchestrator)

	s.ctxCancelFunc()
	wg.Wait()
	s.logSummary(components)

	if err == nil {
		err = feedErr
	}
	return err
}

// Stop cancels a run invoked by the Start method. This method may return before teardown completes.
func (s *Searcher) Stop() {
	if s.ctxCancelFunc != nil {
		s.ctxCancelFunc()
	}
}

// consume hands queued candidates to processor one at a time until the queue is closed or ctx is done.
func (s *Searcher) consume(ctx context.Context, queue *mempool.Queue[*sandwich.Candidate], processor candidateProcessor) error {
	for {
		candidate, err := queue.Pop(ctx)
		if err != nil {
			if errors.Is(err, mempool.ErrQueueClosed) || utils.CheckContextDone(ctx) {
				return nil
			}
			return err
		}

		decision, err := processor.ProcessCandidate(ctx, candidate)
		if err != nil {
			if utils.CheckContextDone(ctx) {
				return nil
			}
			return err
		}
		s.recordDecision(candidate, decision)
	}
}

// recordDecision counts decision and logs the ones that did not end in submission.
func (s *Searcher) recordDecision(candidate *sandwich.Candidate, decision *sandwich.Decision) {
	s.decisionsLock.Lock()
	s.decisions[decision.Action]++
	s.decisionsLock.Unlock()

	switch decision.Action {
	case sandwich.ActionIgnored:
		s.logger.Trace("Ignored ", candidate.Hash().Hex(), ": ", decision.Reason)
	case sandwich.ActionSubmissionFailed:
		s.logger.Warn("Opportunity ", decision.ID.String(), " was profitable but not submitted", decision.Err)
	case sandwich.ActionDryRun:
		s.logger.Info("Dry run, bundle for ", candidate.Hash().Hex(), " not submitted")
	}
}

// logSummary prints the decision counts once the run is over.
func (s *Searcher) logSummary(c *components) {
	summary := s.summaryInfo(c)
	s.logger.Info("Searcher stopped, ", c.queue.Dropped(), " candidates dropped", summary)
}

// summaryInfo collects the decision counts, queue drops and state cache statistics of a run.
func (s *Searcher) summaryInfo(c *components) logging.StructuredLogInfo {
	counts := s.DecisionCounts()
	actions := make([]sandwich.DecisionAction, 0, len(counts))
	for action := range counts {
		actions = append(actions, action)
	}
	sort.Slice(actions, func(i, j int) bool { return actions[i] < actions[j] })

	summary := logging.StructuredLogInfo{"dropped": c.queue.Dropped()}
	for _, action := range actions {
		summary[action.String()] = counts[action]
	}
	if c.backend != nil {
		if provider, ok := c.backend.Cache().(cache.StatsProvider); ok {
			stats := provider.Stats()
			summary["cacheHits"] = stats.Hits
			summary["cacheMisses"] = stats.Misses
		}
	}
	return summary
}

// components holds the live collaborators of a run.
type components struct {
	statePool    *staterpc.ClientPool
	backend      *state.RPCBackend
	wsClient     *gethrpc.Client
	orchestrator *sandwich.Orchestrator
	feed         *mempool.Feed
	queue        *mempool.Queue[*sandwich.Candidate]
}

// close releases the node connections.
func (c *components) close() {
	if c.wsClient != nil {
		c.wsClient.Close()
	}
	if c.statePool != nil {
		c.statePool.Close()
	}
}

// connect dials the node, builds the forked state and the simulator, and wires the orchestrator to the relay and
// the pending transaction feed.
func (s *Searcher) connect(ctx context.Context) (*components, error) {
	orchestratorConfig, err := s.config.ToOrchestratorConfig()
	if err != nil {
		return nil, err
	}
	c := &components{}

	c.wsClient, err = gethrpc.DialContext(ctx, s.config.Fork.WsUrl)
	if err != nil {
		return nil, errors.Wrapf(err, "could not dial %s", s.config.Fork.WsUrl)
	}
	client := ethclient.NewClient(c.wsClient)

	chainID, err := client.ChainID(ctx)
	if err != nil {
		c.close()
		return nil, errors.Wrap(err, "could not read the chain id")
	}
	if chainID.Cmp(orchestratorConfig.ChainID) != 0 {
		c.close()
		return nil, errors.Errorf("node reports chain id %v but %v is configured", chainID, orchestratorConfig.ChainID)
	}

	var forkBlock *big.Int
	if s.config.Fork.BlockNumber != 0 {
		forkBlock = new(big.Int).SetUint64(s.config.Fork.BlockNumber)
	}
	header, err := client.HeaderByNumber(ctx, forkBlock)
	if err != nil {
		c.close()
		return nil, errors.Wrap(err, "could not read the fork block header")
	}

	base, err := s.newBaseOverlay(ctx, c)
	if err != nil {
		c.close()
		return nil, err
	}

	chainConfig, err := utils.CopyChainConfig(params.MainnetChainConfig)
	if err != nil {
		c.close()
		return nil, err
	}
	chainConfig.ChainID = new(big.Int).Set(orchestratorConfig.ChainID)
	executor, err := chain.NewExecutor(chainConfig, blockEnvironment(header))
	if err != nil {
		c.close()
		return nil, err
	}
	simulator := chain.NewBundleSimulator(executor)

	var (
		submitter sandwich.Submitter
		signer    sandwich.TransactionSigner
	)
	if !orchestratorConfig.DryRun {
		relayClient, err := relay.NewClient(s.config.Submission.RelayUrl, s.secrets.AuthKey)
		if err != nil {
			c.close()
			return nil, err
		}
		submitter = relayClient
		if s.config.Submission.Preflight {
			submitter = newPreflightSubmitter(relayClient)
		}
		if signer, err = relay.NewKeySigner(s.secrets.AttackerKey, orchestratorConfig.ChainID); err != nil {
			c.close()
			return nil, err
		}
		s.logger.Info("Submitting bundles to ", s.config.Submission.RelayUrl, " as ", signer.Address().Hex())
	}

	c.orchestrator, err = sandwich.NewOrchestrator(orchestratorConfig, base, simulator, client, submitter, signer)
	if err != nil {
		c.close()
		return nil, err
	}

	c.queue = mempool.NewQueue[*sandwich.Candidate](s.config.Mempool.QueueSize)
	c.feed = mempool.NewFeed(mempool.NewRPCHashSource(c.wsClient), client, orchestratorConfig.ChainID, c.queue,
		mempool.RecipientFilter(orchestratorConfig.RouterAddress))

	s.logger.Info("Forked state at block ", header.Number, ", simulating block ", executor.Environment().Number)
	return c, nil
}

// newBaseOverlay builds the overlay every simulation starts from, reading through a pooled RPC backend.
func (s *Searcher) newBaseOverlay(ctx context.Context, c *components) (*state.Overlay, error) {
	var err error
	c.statePool, err = staterpc.NewClientPool(ctx, s.config.Fork.RpcUrl, s.config.Fork.PoolSize)
	if err != nil {
		return nil, err
	}

	stateCache := cache.NewNonPersistentCache()
	if s.config.Fork.PersistentCache {
		stateCache, err = cache.NewPersistentCache(ctx, s.config.Fork.CacheDirectory, s.config.Fork.RpcUrl, s.config.Fork.BlockNumber)
		if err != nil {
			return nil, err
		}
	}
	c.backend = state.NewRPCBackend(ctx, c.statePool, s.config.Fork.BlockNumber, stateCache)
	s.logger.Info("Reading state from ", c.statePool.Endpoint(), " at block ", c.backend.BlockTag())
	return state.NewOverlay(c.backend), nil
}

// blockEnvironment describes the block following header, which is where pending transactions would be mined.
func blockEnvironment(header *gethtypes.Header) chain.BlockEnvironment {
	return chain.BlockEnvironment{
		Number:    header.Number.Uint64() + 1,
		Time:      header.Time + 12,
		Coinbase:  header.Coinbase,
		GasLimit:  header.GasLimit,
		MixDigest: header.MixDigest,
	}
}
