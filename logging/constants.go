package logging

// SERVICE_KEY is the key every sub-logger uses to identify the service that produced a log line
const SERVICE_KEY = "service"

// These constants are used to identify the various services that may do some logging
const (
	// CLI_SERVICE is the constant used to identify the cmd package
	CLI_SERVICE = "cli"
	// SEARCHER_SERVICE is the constant used to identify the searcher service loop
	SEARCHER_SERVICE = "searcher"
	// STRATEGY_SERVICE is the constant used to identify the sandwich orchestrator
	STRATEGY_SERVICE = "strategy"
	// OPTIMIZER_SERVICE is the constant used to identify the profit optimizer
	OPTIMIZER_SERVICE = "optimizer"
	// RELAY_SERVICE is the constant used to identify the bundle submitter
	RELAY_SERVICE = "relay"
	// MEMPOOL_SERVICE is the constant used to identify the pending transaction feed
	MEMPOOL_SERVICE = "mempool"
	// STATE_SERVICE is the constant used to identify the forked state layer
	STATE_SERVICE = "state"
	// METRICS_SERVICE is the constant used to identify the metrics exporter
	METRICS_SERVICE = "metrics"
)
