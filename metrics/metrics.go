package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/syafiqeil/mev-builder/logging"
	"github.com/syafiqeil/mev-builder/mempool"
	"github.com/syafiqeil/mev-builder/sandwich"
	"github.com/syafiqeil/mev-builder/utils"
)

// namespace prefixes every metric name.
const namespace = "mevbuilder"

// shutdownTimeout bounds the graceful shutdown of the metrics endpoint.
const shutdownTimeout = 5 * time.Second

// Metrics holds the searcher's Prometheus collectors. Values are fed exclusively through event subscriptions.
type Metrics struct {
	registry *prometheus.Registry

	pendingTransactions *prometheus.CounterVec
	candidatesDropped   prometheus.Counter
	probes              *prometheus.CounterVec
	probeGas            prometheus.Histogram
	opportunities       *prometheus.CounterVec
	bestProfit          prometheus.Histogram
	bundles             *prometheus.CounterVec

	logger *logging.Logger
}

// NewMetrics creates the collectors and registers them with a dedicated registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		pendingTransactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pending_transactions_total",
			Help:      "Pending transactions looked up, by result.",
		}, []string{"result"}),
		candidatesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candidates_dropped_total",
			Help:      "Candidates evicted from the full queue.",
		}),
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probes_total",
			Help:      "Optimizer probes, by outcome.",
		}, []string{"outcome"}),
		probeGas: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "probe_gas_used",
			Help:      "Gas used by the successful transactions of a probe bundle.",
			Buckets:   prometheus.ExponentialBuckets(50_000, 2, 8),
		}),
		opportunities: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "opportunities_total",
			Help:      "Evaluated opportunities, by whether they cleared the minimum profit.",
		}, []string{"profitable"}),
		bestProfit: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "best_profit_ether",
			Help:      "Best net profit of evaluated opportunities with a positive profit, in ether.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		bundles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bundles_submitted_total",
			Help:      "Bundles handed to the relay, by status.",
		}, []string{"status"}),
		logger: logging.GlobalLogger.NewSubLogger(logging.SERVICE_KEY, logging.METRICS_SERVICE),
	}
	m.registry.MustRegister(m.pendingTransactions, m.candidatesDropped, m.probes, m.probeGas, m.opportunities, m.bestProfit, m.bundles)
	return m
}

// Registry returns the registry holding every collector.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// AttachOrchestrator subscribes to the orchestrator's probe, evaluation and submission events.
func (m *Metrics) AttachOrchestrator(events *sandwich.OrchestratorEvents) {
	events.ProbeCompleted.Subscribe(m.onProbeCompleted)
	events.OpportunityEvaluated.Subscribe(m.onOpportunityEvaluated)
	events.BundleSubmitted.Subscribe(m.onBundleSubmitted)
}

// AttachFeed subscribes to the mempool feed's lookup and eviction events.
func (m *Metrics) AttachFeed(events *mempool.FeedEvents) {
	events.PendingTransaction.Subscribe(m.onPendingTransaction)
	events.CandidateDropped.Subscribe(m.onCandidateDropped)
}

func (m *Metrics) onProbeCompleted(event sandwich.ProbeCompletedEvent) error {
	m.probes.WithLabelValues(event.Probe.Outcome.String()).Inc()
	if event.Probe.Outcome != sandwich.ProbeDiscarded {
		m.probeGas.Observe(float64(event.Probe.GasUsed))
	}
	return nil
}

func (m *Metrics) onOpportunityEvaluated(event sandwich.OpportunityEvaluatedEvent) error {
	if event.Profitable {
		m.opportunities.WithLabelValues("true").Inc()
	} else {
		m.opportunities.WithLabelValues("false").Inc()
	}
	if event.Result != nil && event.Result.BestProfit.Sign() > 0 {
		profit, _ := utils.WeiToEther(event.Result.BestProfit).Float64()
		m.bestProfit.Observe(profit)
	}
	return nil
}

func (m *Metrics) onBundleSubmitted(event sandwich.BundleSubmittedEvent) error {
	if event.Err != nil {
		m.bundles.WithLabelValues("failed").Inc()
	} else {
		m.bundles.WithLabelValues("accepted").Inc()
	}
	return nil
}

func (m *Metrics) onPendingTransaction(event mempool.PendingTransactionEvent) error {
	switch {
	case event.Err != nil:
		m.pendingTransactions.WithLabelValues("error").Inc()
	case event.Queued:
		m.pendingTransactions.WithLabelValues("queued").Inc()
	default:
		m.pendingTransactions.WithLabelValues("filtered").Inc()
	}
	return nil
}

func (m *Metrics) onCandidateDropped(mempool.CandidateDroppedEvent) error {
	m.candidatesDropped.Inc()
	return nil
}

// Handler returns the HTTP handler exposing the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on address until ctx is done.
func (m *Metrics) Serve(ctx context.Context, address string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	server := &http.Server{Addr: address, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()
	m.logger.Info("Serving metrics on ", address)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "metrics endpoint failed")
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return errors.WithStack(server.Shutdown(shutdownCtx))
	}
}
