package ethrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"moxie-indexer/internal/observability"
)

// Default configuration values.
const (
	DefaultTimeout    = 10 * time.Second
	DefaultMaxRetries = 3
	DefaultRetryDelay = 500 * time.Millisecond
	DefaultMaxDelay   = 8 * time.Second

	// maxResponseBytes bounds a single response body.
	maxResponseBytes = 8 << 20
)

// codeExecutionReverted is the error code geth-compatible nodes return for a reverted eth_call.
const codeExecutionReverted = 3

// ErrReverted is matched by an RPCError for a reverted call.
var ErrReverted = errors.New("execution reverted")

// RPCError is a JSON-RPC error object returned by the node.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Is lets errors.Is(err, ErrReverted) match reverts. Some nodes report
// them with a generic code, so the message is checked too.
func (e *RPCError) Is(target error) bool {
	return target == ErrReverted &&
		(e.Code == codeExecutionReverted || strings.Contains(e.Message, "execution reverted"))
}

// statusError is a non-200 HTTP answer.
type statusError struct {
	code       int
	body       string
	retryAfter time.Duration
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.code, e.body)
}

// temporary reports whether the request may succeed if sent again.
func (e *statusError) temporary() bool {
	return e.code == http.StatusTooManyRequests || e.code >= http.StatusInternalServerError
}

// HTTPClient implements RPCClient over HTTP JSON-RPC 2.0.
// Transport failures, 429 and 5xx answers are retried with exponential
// backoff; node errors are returned as *RPCError without retrying.
type HTTPClient struct {
	endpoint   string
	client     *http.Client
	maxRetries int
	retryDelay time.Duration
	maxDelay   time.Duration
	metrics    *observability.Metrics
	requestID  atomic.Uint64
}

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets the per-attempt HTTP timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		if d > 0 {
			c.client.Timeout = d
		}
	}
}

// WithMaxRetries sets how many times a failed request is resent.
func WithMaxRetries(n int) ClientOption {
	return func(c *HTTPClient) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// WithRetryDelay sets the first backoff delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.retryDelay = d
	}
}

// WithMaxDelay caps the backoff delay.
func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.maxDelay = d
	}
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.client = client
	}
}

// WithMetrics records call latency per method.
func WithMetrics(m *observability.Metrics) ClientOption {
	return func(c *HTTPClient) {
		c.metrics = m
	}
}

// NewHTTPClient creates a JSON-RPC client for endpoint.
func NewHTTPClient(endpoint string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		endpoint:   endpoint,
		client:     &http.Client{Timeout: DefaultTimeout},
		maxRetries: DefaultMaxRetries,
		retryDelay: DefaultRetryDelay,
		maxDelay:   DefaultMaxDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

func (c *HTTPClient) newRequest(method string, params []interface{}) rpcRequest {
	return rpcRequest{JSONRPC: "2.0", ID: c.requestID.Add(1), Method: method, Params: params}
}

// call performs a single JSON-RPC call.
func (c *HTTPClient) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	defer c.observe(method, time.Now())

	var resp rpcResponse
	if err := c.post(ctx, c.newRequest(method, params), &resp); err != nil {
		return err
	}
	if resp.Error != nil {
		return resp.Error
	}
	if result != nil && len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, result); err != nil {
			return fmt.Errorf("unmarshal %s result: %w", method, err)
		}
	}
	return nil
}

func (c *HTTPClient) observe(method string, start time.Time) {
	if c.metrics != nil {
		c.metrics.RecordRPCLatency(method, time.Since(start).Seconds())
	}
}

// post sends payload, retrying temporary failures, and decodes the answer into out.
func (c *HTTPClient) post(ctx context.Context, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	delay := c.retryDelay
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			wait := delay
			var se *statusError
			if errors.As(lastErr, &se) && se.retryAfter > wait {
				wait = se.retryAfter
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			delay = min(2*delay, c.maxDelay)
		}

		raw, err := c.send(ctx, body)
		if err != nil {
			var se *statusError
			if ctx.Err() != nil || (errors.As(err, &se) && !se.temporary()) {
				return err
			}
			lastErr = err
			continue
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("rpc %s: giving up after %d attempts: %w", c.endpoint, c.maxRetries+1, lastErr)
}

func (c *HTTPClient) send(ctx context.Context, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		se := &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(raw))}
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			se.retryAfter = time.Duration(secs) * time.Second
		}
		return nil, se
	}
	return raw, nil
}

func callParams(msg CallMsg, block string) []interface{} {
	if block == "" {
		block = BlockLatest
	}
	return []interface{}{
		map[string]interface{}{
			"to":   msg.To,
			"data": hexutil.Encode(msg.Data),
		},
		block,
	}
}

// Call executes eth_call against block ("latest" or a hex block number).
func (c *HTTPClient) Call(ctx context.Context, msg CallMsg, block string) ([]byte, error) {
	var result hexutil.Bytes
	if err := c.call(ctx, "eth_call", callParams(msg, block), &result); err != nil {
		return nil, err
	}
	return result, nil
}

// CallResult is the outcome of one call in a batch.
type CallResult struct {
	Data []byte
	Err  error // *RPCError from the node, nil on success
}

// BatchCall executes msgs as one JSON-RPC batch. Results are returned in
// msgs order. A transport failure fails the whole batch; node errors are
// reported per call.
func (c *HTTPClient) BatchCall(ctx context.Context, msgs []CallMsg, block string) ([]CallResult, error) {
	if len(msgs) == 0 {
		return nil, nil
	}
	defer c.observe("eth_call_batch", time.Now())

	reqs := make([]rpcRequest, len(msgs))
	index := make(map[uint64]int, len(msgs))
	for i, msg := range msgs {
		reqs[i] = c.newRequest("eth_call", callParams(msg, block))
		index[reqs[i].ID] = i
	}

	var resps []rpcResponse
	if err := c.post(ctx, reqs, &resps); err != nil {
		return nil, err
	}

	out := make([]CallResult, len(msgs))
	seen := 0
	for _, resp := range resps {
		i, ok := index[resp.ID]
		if !ok {
			return nil, fmt.Errorf("batch response has unknown id %d", resp.ID)
		}
		seen++
		if resp.Error != nil {
			out[i].Err = resp.Error
			continue
		}
		var data hexutil.Bytes
		if err := json.Unmarshal(resp.Result, &data); err != nil {
			return nil, fmt.Errorf("unmarshal batch result %d: %w", i, err)
		}
		out[i].Data = data
	}
	if seen != len(msgs) {
		return nil, fmt.Errorf("batch answered %d of %d calls", seen, len(msgs))
	}
	return out, nil
}

// BlockNumber returns the latest block number.
func (c *HTTPClient) BlockNumber(ctx context.Context) (uint64, error) {
	var result hexutil.Uint64
	if err := c.call(ctx, "eth_blockNumber", nil, &result); err != nil {
		return 0, err
	}
	return uint64(result), nil
}
