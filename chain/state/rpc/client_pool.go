package rpc

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/crytic/medusa-geth/rpc"
	"github.com/pkg/errors"
	"golang.org/x/net/context"
)

// defaultMaxRetries is the number of attempts made for a single request before its error is reported.
const defaultMaxRetries = 3

// retryBackoff is the base delay between attempts. The n-th retry waits n times this amount.
const retryBackoff = 100 * time.Millisecond

// ClientPool fans JSON-RPC requests out over a fixed set of connections to a single endpoint. Every request runs on
// its own goroutine, so a caller waiting on one result never holds up anything else in the process. Identical
// requests that are in flight at the same time share one network round trip.
type ClientPool struct {
	rpcClients       []*rpc.Client
	currentClientIdx int
	clientLock       sync.Mutex

	inflightRequests map[requestKey]*inflightRequest
	inflightLock     sync.Mutex

	endpoint   string
	maxRetries int
}

// NewClientPool dials poolSize connections to endpoint.
func NewClientPool(ctx context.Context, endpoint string, poolSize uint) (*ClientPool, error) {
	if poolSize == 0 {
		return nil, errors.New("client pool size must be positive")
	}

	pool := &ClientPool{
		rpcClients:       make([]*rpc.Client, poolSize),
		inflightRequests: make(map[requestKey]*inflightRequest),
		endpoint:         endpoint,
		maxRetries:       defaultMaxRetries,
	}

	for i := uint(0); i < poolSize; i++ {
		client, err := rpc.DialContext(ctx, endpoint)
		if err != nil {
			pool.Close()
			return nil, errors.Wrapf(err, "could not dial %s", endpoint)
		}
		pool.rpcClients[i] = client
	}
	return pool, nil
}

// Endpoint returns the URL the pool is connected to.
func (c *ClientPool) Endpoint() string {
	return c.endpoint
}

// ExecuteRequestBlocking issues a request and waits for its result, decoding it into result.
func (c *ClientPool) ExecuteRequestBlocking(ctx context.Context, result any, method string, args ...any) error {
	pending, err := c.ExecuteRequestAsync(ctx, method, args...)
	if err != nil {
		return err
	}
	return pending.GetResultBlocking(result)
}

// ExecuteRequestAsync issues a request without waiting for it. If an identical request is already in flight, the
// returned PendingResult resolves with that request's result.
func (c *ClientPool) ExecuteRequestAsync(ctx context.Context, method string, args ...any) (*PendingResult, error) {
	key, err := makeRequestKey(method, args...)
	if err != nil {
		return nil, err
	}

	c.inflightLock.Lock()
	if inflight, exists := c.inflightRequests[key]; exists {
		c.inflightLock.Unlock()
		return newPendingResult(ctx, inflight), nil
	}
	inflight := &inflightRequest{
		Done:    make(chan struct{}),
		Context: ctx,
	}
	c.inflightRequests[key] = inflight
	c.inflightLock.Unlock()

	go c.launchRequest(c.getClient(), key, inflight, method, args...)
	return newPendingResult(ctx, inflight), nil
}

// Close tears down every connection in the pool.
func (c *ClientPool) Close() {
	for _, client := range c.rpcClients {
		if client != nil {
			client.Close()
		}
	}
}

func (c *ClientPool) getClient() *rpc.Client {
	c.clientLock.Lock()
	defer c.clientLock.Unlock()

	client := c.rpcClients[c.currentClientIdx]
	c.currentClientIdx = (c.currentClientIdx + 1) % len(c.rpcClients)
	return client
}

func (c *ClientPool) launchRequest(client *rpc.Client, key requestKey, request *inflightRequest, method string, args ...any) {
	defer func() {
		// the request stops being shareable once it has an answer
		c.inflightLock.Lock()
		delete(c.inflightRequests, key)
		c.inflightLock.Unlock()
		close(request.Done)
	}()

	var err error
	var result json.RawMessage
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		err = client.CallContext(request.Context, &result, method, args...)
		if err == nil {
			request.Result = result
			return
		}
		if request.Context.Err() != nil {
			break
		}
		select {
		case <-time.After(time.Duration(attempt+1) * retryBackoff):
		case <-request.Context.Done():
		}
	}
	request.Error = errors.Wrapf(err, "%s failed after retries", method)
}
