package rpc

import (
	"encoding/json"

	"github.com/pkg/errors"
	"golang.org/x/net/context"
)

// PendingResult is returned when calling the RPC asynchronously. It resolves once the underlying request completes.
type PendingResult struct {
	ctx     context.Context
	request *inflightRequest
}

func newPendingResult(ctx context.Context, request *inflightRequest) *PendingResult {
	return &PendingResult{
		ctx:     ctx,
		request: request,
	}
}

// GetResultBlocking parks the calling goroutine until the result or an error is available, then decodes the result
// into the value result points to. A cancelled caller context returns early with the context's error.
func (p *PendingResult) GetResultBlocking(result any) error {
	select {
	case <-p.request.Done:
		if p.request.Error != nil {
			return p.request.Error
		}
		if len(p.request.Result) == 0 || string(p.request.Result) == "null" {
			return errors.New("rpc returned an empty result")
		}
		return errors.WithStack(json.Unmarshal(p.request.Result, result))
	case <-p.ctx.Done():
		return p.ctx.Err()
	}
}

// requestKey uniquely identifies an Ethereum RPC request for de-duplication purposes.
type requestKey struct {
	Method string
	Args   string
}

func makeRequestKey(method string, args ...any) (requestKey, error) {
	serialized, err := json.Marshal(args)
	if err != nil {
		return requestKey{}, errors.WithStack(err)
	}
	return requestKey{Method: method, Args: string(serialized)}, nil
}

// inflightRequest represents a JSON-RPC request that is currently traversing the network.
type inflightRequest struct {
	// Done is closed once the request completes, possibly with an error.
	Done    chan struct{}
	Error   error
	Result  json.RawMessage
	Context context.Context
}
