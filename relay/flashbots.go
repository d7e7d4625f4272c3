package relay

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/medusa-geth/common/hexutil"
	gethtypes "github.com/crytic/medusa-geth/core/types"
	"github.com/crytic/medusa-geth/crypto"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/syafiqeil/mev-builder/logging"
)

// DefaultRelayURL is the Flashbots mainnet relay.
const DefaultRelayURL = "https://relay.flashbots.net"

// SignatureHeader carries the relay authentication signature.
const SignatureHeader = "X-Flashbots-Signature"

// defaultTimeout bounds a single relay request.
const defaultTimeout = 12 * time.Second

// SubmissionError is returned when the relay could not be reached or rejected a request.
type SubmissionError struct {
	// Method is the relay method that failed.
	Method string
	// StatusCode is the HTTP status, or zero when no response arrived.
	StatusCode int
	// Code and Message are the JSON-RPC error, when the relay returned one.
	Code    int
	Message string
	// Err is the transport error, if any.
	Err error
}

// Error returns the error message string, implementing the `error` interface.
func (e *SubmissionError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s failed: %v", e.Method, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s rejected (%d): %s", e.Method, e.Code, e.Message)
	default:
		return fmt.Sprintf("%s failed with HTTP status %d", e.Method, e.StatusCode)
	}
}

// Unwrap returns the transport error.
func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// Client sends bundles to a Flashbots-compatible relay. Every request body is signed with the auth key, which builds
// searcher reputation and holds no funds.
type Client struct {
	url        string
	authKey    *ecdsa.PrivateKey
	authAddr   common.Address
	httpClient *http.Client

	logger *logging.Logger
}

// NewClient creates a Client posting to url and signing with authKey.
func NewClient(url string, authKey *ecdsa.PrivateKey) (*Client, error) {
	if url == "" {
		return nil, errors.New("relay url is empty")
	}
	if authKey == nil {
		return nil, errors.New("relay auth key is required")
	}
	return &Client{
		url:        url,
		authKey:    authKey,
		authAddr:   crypto.PubkeyToAddress(authKey.PublicKey),
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     logging.GlobalLogger.NewSubLogger(logging.SERVICE_KEY, logging.RELAY_SERVICE),
	}, nil
}

// AuthAddress returns the address identifying this searcher to the relay.
func (c *Client) AuthAddress() common.Address {
	return c.authAddr
}

// sendBundleParams is the single parameter of eth_sendBundle.
type sendBundleParams struct {
	Txs             []string `json:"txs"`
	BlockNumber     string   `json:"blockNumber"`
	ReplacementUUID string   `json:"replacementUuid,omitempty"`
}

// callBundleParams is the single parameter of eth_callBundle.
type callBundleParams struct {
	Txs              []string `json:"txs"`
	BlockNumber      string   `json:"blockNumber"`
	StateBlockNumber string   `json:"stateBlockNumber"`
}

type jsonRPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type jsonRPCResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *jsonRPCError   `json:"error"`
}

// SendBundle submits txs for inclusion in targetBlock and returns the relay's bundle hash. Each submission carries a
// fresh replacement UUID.
func (c *Client) SendBundle(ctx context.Context, txs []*gethtypes.Transaction, targetBlock uint64) (string, error) {
	encoded, err := encodeTransactions(txs)
	if err != nil {
		return "", err
	}
	params := sendBundleParams{
		Txs:             encoded,
		BlockNumber:     hexutil.EncodeUint64(targetBlock),
		ReplacementUUID: uuid.New().String(),
	}

	var result struct {
		BundleHash string `json:"bundleHash"`
	}
	if err = c.call(ctx, "eth_sendBundle", params, &result); err != nil {
		return "", err
	}
	c.logger.Debug("Relay accepted bundle ", result.BundleHash, " for block ", targetBlock)
	return result.BundleHash, nil
}

// CallBundleResult is the relay's simulation of a bundle.
type CallBundleResult struct {
	BundleHash       string          `json:"bundleHash"`
	CoinbaseDiff     string          `json:"coinbaseDiff"`
	TotalGasUsed     uint64          `json:"totalGasUsed"`
	StateBlockNumber uint64          `json:"stateBlockNumber"`
	Results          json.RawMessage `json:"results"`

	// FirstRevert describes the first transaction that reverted, if any.
	FirstRevert json.RawMessage `json:"firstRevert,omitempty"`
}

// Reverted returns whether any transaction of the bundle reverted in the simulation.
func (r *CallBundleResult) Reverted() bool {
	trimmed := strings.TrimSpace(string(r.FirstRevert))
	return trimmed != "" && trimmed != "null" && trimmed != "{}"
}

// CallBundle asks the relay to simulate txs on top of the latest state as if mined in targetBlock, without submitting
// them.
func (c *Client) CallBundle(ctx context.Context, txs []*gethtypes.Transaction, targetBlock uint64) (*CallBundleResult, error) {
	encoded, err := encodeTransactions(txs)
	if err != nil {
		return nil, err
	}
	params := callBundleParams{
		Txs:              encoded,
		BlockNumber:      hexutil.EncodeUint64(targetBlock),
		StateBlockNumber: "latest",
	}

	var result CallBundleResult
	if err = c.call(ctx, "eth_callBundle", params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// call posts a signed JSON-RPC request and decodes its result.
func (c *Client) call(ctx context.Context, method string, params any, result any) error {
	body, err := json.Marshal(jsonRPCRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: []any{params}})
	if err != nil {
		return errors.WithStack(err)
	}
	signature, err := c.sign(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return errors.WithStack(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, signature)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &SubmissionError{Method: method, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &SubmissionError{Method: method, StatusCode: resp.StatusCode, Err: err}
	}

	var decoded jsonRPCResponse
	if err = json.Unmarshal(raw, &decoded); err != nil {
		if resp.StatusCode != http.StatusOK {
			return &SubmissionError{Method: method, StatusCode: resp.StatusCode}
		}
		return &SubmissionError{Method: method, StatusCode: resp.StatusCode, Err: errors.Wrap(err, "malformed relay response")}
	}
	if decoded.Error != nil {
		return &SubmissionError{Method: method, StatusCode: resp.StatusCode, Code: decoded.Error.Code, Message: decoded.Error.Message}
	}
	if resp.StatusCode != http.StatusOK {
		return &SubmissionError{Method: method, StatusCode: resp.StatusCode}
	}
	if len(decoded.Result) == 0 || string(decoded.Result) == "null" {
		return &SubmissionError{Method: method, StatusCode: resp.StatusCode, Err: errors.New("empty relay result")}
	}
	if err = json.Unmarshal(decoded.Result, result); err != nil {
		return &SubmissionError{Method: method, StatusCode: resp.StatusCode, Err: errors.Wrap(err, "unexpected relay result")}
	}
	return nil
}

// sign returns the header value authenticating body: the auth address and the signature of keccak256(body).
func (c *Client) sign(body []byte) (string, error) {
	signature, err := crypto.Sign(crypto.Keccak256(body), c.authKey)
	if err != nil {
		return "", errors.Wrap(err, "could not sign relay request")
	}
	return c.authAddr.Hex() + ":" + hexutil.Encode(signature), nil
}

// encodeTransactions returns the 0x-prefixed binary encoding of every transaction.
func encodeTransactions(txs []*gethtypes.Transaction) ([]string, error) {
	if len(txs) == 0 {
		return nil, errors.New("bundle contains no transactions")
	}
	encoded := make([]string, len(txs))
	for i, tx := range txs {
		raw, err := tx.MarshalBinary()
		if err != nil {
			return nil, errors.Wrapf(err, "could not encode transaction %d", i)
		}
		encoded[i] = hexutil.Encode(raw)
	}
	return encoded, nil
}
