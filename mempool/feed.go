package mempool

import (
	"context"
	"math/big"
	"sync"
	"time"

	ethereum "github.com/crytic/medusa-geth"
	"github.com/crytic/medusa-geth/common"
	gethtypes "github.com/crytic/medusa-geth/core/types"
	"github.com/crytic/medusa-geth/rpc"
	"github.com/pkg/errors"
	"github.com/syafiqeil/mev-builder/events"
	"github.com/syafiqeil/mev-builder/logging"
	"github.com/syafiqeil/mev-builder/sandwich"
)

// defaultFetchTimeout bounds the lookup of a single pending transaction.
const defaultFetchTimeout = 5 * time.Second

// defaultResubscribeDelay is the pause before re-establishing a dropped subscription.
const defaultResubscribeDelay = 2 * time.Second

// defaultFetchWorkers is the number of transactions looked up concurrently.
const defaultFetchWorkers = 16

// PendingHashSource streams the hashes of transactions entering a node's mempool.
type PendingHashSource interface {
	SubscribePendingHashes(ctx context.Context, ch chan<- common.Hash) (ethereum.Subscription, error)
}

// TransactionFetcher looks up transactions by hash. ethclient.Client implements it.
type TransactionFetcher interface {
	TransactionByHash(ctx context.Context, hash common.Hash) (*gethtypes.Transaction, bool, error)
}

// RPCHashSource subscribes to newPendingTransactions over a websocket connection.
type RPCHashSource struct {
	client *rpc.Client
}

// NewRPCHashSource creates a PendingHashSource over client.
func NewRPCHashSource(client *rpc.Client) *RPCHashSource {
	return &RPCHashSource{client: client}
}

// SubscribePendingHashes implements PendingHashSource.
func (s *RPCHashSource) SubscribePendingHashes(ctx context.Context, ch chan<- common.Hash) (ethereum.Subscription, error) {
	sub, err := s.client.EthSubscribe(ctx, ch, "newPendingTransactions")
	if err != nil {
		return nil, errors.Wrap(err, "could not subscribe to pending transactions")
	}
	return sub, nil
}

// PendingTransactionEvent is published for every pending transaction the feed looked up.
type PendingTransactionEvent struct {
	Hash common.Hash
	// Queued is set when the transaction passed the filter and was queued.
	Queued bool
	// Err is set when the lookup failed.
	Err error
}

// CandidateDroppedEvent is published when a full queue evicted a candidate.
type CandidateDroppedEvent struct {
	Hash common.Hash
}

// FeedEvents are the events a Feed publishes.
type FeedEvents struct {
	PendingTransaction events.EventEmitter[PendingTransactionEvent]
	CandidateDropped   events.EventEmitter[CandidateDroppedEvent]
}

// Feed turns pending transaction hashes into candidates on a Queue. Lookups run on their own goroutines, so a slow
// consumer never stalls the subscription.
type Feed struct {
	source  PendingHashSource
	fetcher TransactionFetcher
	signer  gethtypes.Signer
	queue   *Queue[*sandwich.Candidate]

	// filter selects the transactions worth queueing. A nil filter queues everything.
	filter func(tx *gethtypes.Transaction) bool

	// seen skips hashes announced again, e.g. after a resubscription.
	seen *seenWindow

	fetchTimeout     time.Duration
	resubscribeDelay time.Duration
	workers          int

	// Events publishes lookup and eviction events.
	Events FeedEvents

	logger *logging.Logger
}

// NewFeed creates a Feed pushing candidates to queue. Senders are recovered with the latest signer for chainID.
func NewFeed(source PendingHashSource, fetcher TransactionFetcher, chainID *big.Int, queue *Queue[*sandwich.Candidate], filter func(tx *gethtypes.Transaction) bool) *Feed {
	return &Feed{
		source:           source,
		fetcher:          fetcher,
		signer:           gethtypes.LatestSignerForChainID(chainID),
		queue:            queue,
		filter:           filter,
		seen:             newSeenWindow(defaultSeenWindow),
		fetchTimeout:     defaultFetchTimeout,
		resubscribeDelay: defaultResubscribeDelay,
		workers:          defaultFetchWorkers,
		logger:           logging.GlobalLogger.NewSubLogger(logging.SERVICE_KEY, logging.MEMPOOL_SERVICE),
	}
}

// RecipientFilter returns a filter accepting transactions sent to one of addrs.
func RecipientFilter(addrs ...common.Address) func(tx *gethtypes.Transaction) bool {
	allowed := make(map[common.Address]struct{}, len(addrs))
	for _, addr := range addrs {
		allowed[addr] = struct{}{}
	}
	return func(tx *gethtypes.Transaction) bool {
		to := tx.To()
		if to == nil {
			return false
		}
		_, ok := allowed[*to]
		return ok
	}
}

// Run subscribes and feeds the queue until ctx is done, resubscribing whenever the subscription fails. It returns an
// error only when a subscription cannot be established. The queue is closed on return.
func (f *Feed) Run(ctx context.Context) error {
	defer f.queue.Close()

	hashes := make(chan common.Hash, f.workers*4)
	slots := make(chan struct{}, f.workers)
	var wg sync.WaitGroup
	defer wg.Wait()

	sub, err := f.source.SubscribePendingHashes(ctx, hashes)
	if err != nil {
		return err
	}
	f.logger.Info("Listening for pending transactions")

	for {
		select {
		case <-ctx.Done():
			sub.Unsubscribe()
			return nil
		case err := <-sub.Err():
			sub.Unsubscribe()
			f.logger.Warn("Pending transaction subscription dropped, resubscribing", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(f.resubscribeDelay):
			}
			if sub, err = f.source.SubscribePendingHashes(ctx, hashes); err != nil {
				return err
			}
		case hash := <-hashes:
			if !f.seen.Add(hash) {
				continue
			}
			select {
			case slots <- struct{}{}:
			case <-ctx.Done():
				sub.Unsubscribe()
				return nil
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer func() { <-slots }()
				f.handle(ctx, hash)
			}()
		}
	}
}

// handle looks up hash and queues it when it passes the filter.
func (f *Feed) handle(ctx context.Context, hash common.Hash) {
	fetchCtx, cancel := context.WithTimeout(ctx, f.fetchTimeout)
	defer cancel()

	tx, pending, err := f.fetcher.TransactionByHash(fetchCtx, hash)
	if err != nil {
		f.logger.Trace("Could not fetch pending transaction ", hash.Hex(), err)
		f.publishPending(PendingTransactionEvent{Hash: hash, Err: err})
		return
	}
	if !pending || (f.filter != nil && !f.filter(tx)) {
		f.publishPending(PendingTransactionEvent{Hash: hash})
		return
	}

	from, err := gethtypes.Sender(f.signer, tx)
	if err != nil {
		err = errors.Wrap(err, "could not recover sender")
		f.publishPending(PendingTransactionEvent{Hash: hash, Err: err})
		return
	}

	evicted, dropped := f.queue.Push(sandwich.NewCandidate(tx, from))
	f.publishPending(PendingTransactionEvent{Hash: hash, Queued: true})
	if dropped {
		f.logger.Debug("Candidate queue full, dropped ", evicted.Hash().Hex())
		if err := f.Events.CandidateDropped.Publish(CandidateDroppedEvent{Hash: evicted.Hash()}); err != nil {
			f.logger.Error("Drop event handler failed", err)
		}
	}
}

func (f *Feed) publishPending(event PendingTransactionEvent) {
	if err := f.Events.PendingTransaction.Publish(event); err != nil {
		f.logger.Error("Pending transaction event handler failed", err)
	}
}
