package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hieutt50/xmr-ingestor/internal/util"
)

// Client is a daemon RPC client speaking the Monero JSON-RPC and REST-JSON
// dialects over net/http, with retry logic and structured logging layered on
// top the same way the rest of this package's callers expect.
type Client struct {
	httpClient *http.Client
	config     *Config

	capsMu       sync.RWMutex
	capsProbed   bool
	caps         Capabilities
	headerDowngraded atomic.Bool
}

// NewClient creates a new daemon RPC client with the provided configuration.
// Unlike a socket-oriented RPC client, this performs no network I/O itself;
// call ProbeCapabilities once at startup to establish what the daemon supports.
func NewClient(config *Config) (*Client, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	util.Info("configuring daemon rpc client",
		"url_length", len(config.RPCURL), // avoid logging the full URL
		"connection_timeout", config.ConnectionTimeout.String(),
		"request_timeout", config.RequestTimeout.String(),
	)

	return &Client{
		httpClient: &http.Client{
			Timeout: config.ConnectionTimeout + config.RequestTimeout,
		},
		config: config,
	}, nil
}

// Close releases idle connections held by the client's transport.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
	util.Info("rpc client connections closed")
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      string      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

// callJSONRPC issues a single JSON-RPC 2.0 request against /json_rpc and
// decodes the result into out, with retry/backoff and error classification
// wired in around the raw HTTP round trip.
func (c *Client) callJSONRPC(ctx context.Context, method string, params interface{}, out interface{}) error {
	startTime := time.Now()
	var lastErr error

	operation := func() error {
		reqCtx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
		defer cancel()

		body, err := json.Marshal(rpcRequest{
			JSONRPC: "2.0",
			ID:      "0",
			Method:  method,
			Params:  params,
		})
		if err != nil {
			lastErr = err
			return NewShapeMismatchError("failed to marshal rpc request", err)
		}

		httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.config.RPCURL+"/json_rpc", bytes.NewReader(body))
		if err != nil {
			lastErr = err
			return err
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			lastErr = err
			return err
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			lastErr = err
			return err
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("429 too many requests from daemon")
			return lastErr
		}
		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("daemon returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
			return lastErr
		}

		var envelope rpcResponse
		if err := json.Unmarshal(respBody, &envelope); err != nil {
			lastErr = err
			return NewShapeMismatchError("malformed json-rpc envelope", err)
		}

		if envelope.Error != nil {
			rpcErr := fmt.Errorf("daemon rpc error %d: %s", envelope.Error.Code, envelope.Error.Message)
			lastErr = rpcErr
			return fmt.Errorf("invalid parameter or method error: %w", rpcErr)
		}

		if out != nil {
			if err := json.Unmarshal(envelope.Result, out); err != nil {
				lastErr = err
				return NewShapeMismatchError(fmt.Sprintf("unexpected result shape for %s", method), err)
			}
		}

		return nil
	}

	retryCfg := &retryConfig{
		maxRetries: c.config.MaxRetries,
		baseDelay:  c.config.RetryBaseDelay,
	}

	err := retryWithBackoff(ctx, retryCfg, operation, util.GlobalLogger, method)
	duration := time.Since(startTime)

	if err != nil {
		if lastErr != nil {
			util.RecordRPCError(errorTypeToMetricsLabel(classifyError(lastErr)))
		}
		util.Error("daemon rpc call failed",
			"method", method,
			"error", err.Error(),
			"duration_ms", duration.Milliseconds(),
		)
		return err
	}

	util.Debug("daemon rpc call succeeded",
		"method", method,
		"duration_ms", duration.Milliseconds(),
	)
	return nil
}

// callREST issues a POST against a REST-JSON daemon endpoint (the group of
// endpoints, like get_transactions, that sit outside the /json_rpc envelope)
// and decodes the response body into out.
func (c *Client) callREST(ctx context.Context, path string, params interface{}, out interface{}) error {
	startTime := time.Now()
	var lastErr error

	operation := func() error {
		reqCtx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
		defer cancel()

		body, err := json.Marshal(params)
		if err != nil {
			lastErr = err
			return NewShapeMismatchError("failed to marshal rest request", err)
		}

		httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.config.RPCURL+path, bytes.NewReader(body))
		if err != nil {
			lastErr = err
			return err
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			lastErr = err
			return err
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			lastErr = err
			return err
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("429 too many requests from daemon")
			return lastErr
		}
		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("daemon returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
			return lastErr
		}

		if out != nil {
			if err := json.Unmarshal(respBody, out); err != nil {
				lastErr = err
				return NewShapeMismatchError(fmt.Sprintf("unexpected response shape for %s", path), err)
			}
		}
		return nil
	}

	retryCfg := &retryConfig{
		maxRetries: c.config.MaxRetries,
		baseDelay:  c.config.RetryBaseDelay,
	}

	err := retryWithBackoff(ctx, retryCfg, operation, util.GlobalLogger, path)
	duration := time.Since(startTime)

	if err != nil {
		if lastErr != nil {
			util.RecordRPCError(errorTypeToMetricsLabel(classifyError(lastErr)))
		}
		util.Error("daemon rest call failed",
			"path", path,
			"error", err.Error(),
			"duration_ms", duration.Milliseconds(),
		)
		return err
	}

	return nil
}

type blockCountResult struct {
	Count  uint64 `json:"count"`
	Status string `json:"status"`
}

// BlockCount returns the daemon's current chain height (top block height + 1).
func (c *Client) BlockCount(ctx context.Context) (uint64, error) {
	var result blockCountResult
	if err := c.callJSONRPC(ctx, "get_block_count", nil, &result); err != nil {
		return 0, err
	}
	return result.Count, nil
}

type headerByHeightResult struct {
	BlockHeader BlockHeader `json:"block_header"`
	Status      string      `json:"status"`
}

// HeaderByHeight fetches a single block header by height.
func (c *Client) HeaderByHeight(ctx context.Context, height uint64) (*BlockHeader, error) {
	var result headerByHeightResult
	params := map[string]interface{}{"height": height}
	if err := c.callJSONRPC(ctx, "get_block_header_by_height", params, &result); err != nil {
		return nil, err
	}
	return &result.BlockHeader, nil
}

type headersRangeResult struct {
	Headers []BlockHeader `json:"headers"`
	Status  string        `json:"status"`
}

// HeadersRange fetches a contiguous range of block headers [start, end]
// (inclusive on both ends, per the daemon's get_block_headers_range
// semantics). If the daemon does not support ranged headers, or has been
// downgraded after a prior failure, it falls back to one header-by-height
// call per height.
func (c *Client) HeadersRange(ctx context.Context, start, end uint64) ([]BlockHeader, error) {
	if c.supportsRangedHeaders() {
		var result headersRangeResult
		params := map[string]interface{}{"start_height": start, "end_height": end}
		err := c.callJSONRPC(ctx, "get_block_headers_range", params, &result)
		if err == nil {
			return result.Headers, nil
		}
		if classifyError(err) == ErrPermanent || classifyError(err) == ErrShapeMismatch {
			c.downgradeToSingleHeader("get_block_headers_range failed: " + err.Error())
		} else {
			return nil, err
		}
	}

	headers := make([]BlockHeader, 0, end-start+1)
	for h := start; h <= end; h++ {
		hdr, err := c.HeaderByHeight(ctx, h)
		if err != nil {
			return nil, err
		}
		headers = append(headers, *hdr)
	}
	return headers, nil
}

type getBlockResult struct {
	BlockHeader BlockHeader `json:"block_header"`
	Blob        string      `json:"blob"`
	JSON        string      `json:"json"`
	MinerTxHash string      `json:"miner_tx_hash"`
	TxHashes    []string    `json:"tx_hashes"`
	Status      string      `json:"status"`
}

// BlockByHash fetches a full block (header, blob, and embedded miner tx
// JSON) by hash.
func (c *Client) BlockByHash(ctx context.Context, hash string, fillPow bool) (*Block, error) {
	var result getBlockResult
	params := map[string]interface{}{"hash": hash, "fill_pow_hash": fillPow}
	if err := c.callJSONRPC(ctx, "get_block", params, &result); err != nil {
		return nil, err
	}
	return &Block{
		Header:      result.BlockHeader,
		Blob:        result.Blob,
		JSON:        result.JSON,
		MinerTxHash: result.MinerTxHash,
		TxHashes:    result.TxHashes,
	}, nil
}

// BlockByHeight fetches a full block by height.
func (c *Client) BlockByHeight(ctx context.Context, height uint64, fillPow bool) (*Block, error) {
	var result getBlockResult
	params := map[string]interface{}{"height": height, "fill_pow_hash": fillPow}
	if err := c.callJSONRPC(ctx, "get_block", params, &result); err != nil {
		return nil, err
	}
	return &Block{
		Header:      result.BlockHeader,
		Blob:        result.Blob,
		JSON:        result.JSON,
		MinerTxHash: result.MinerTxHash,
		TxHashes:    result.TxHashes,
	}, nil
}

// Transactions fetches the full set of transactions (mempool or confirmed)
// identified by hashes via the REST get_transactions endpoint.
func (c *Client) Transactions(ctx context.Context, hashes []string) (*TransactionsResponse, error) {
	if len(hashes) == 0 {
		return &TransactionsResponse{}, nil
	}

	var result TransactionsResponse
	params := map[string]interface{}{
		"txs_hashes": hashes,
		"decode_as_json": true,
	}
	if err := c.callREST(ctx, "/get_transactions", params, &result); err != nil {
		return nil, err
	}
	if len(result.MissedTx) > 0 {
		util.Warn("daemon reported missed transactions",
			"missed_count", len(result.MissedTx),
		)
	}
	return &result, nil
}

type poolHashesResult struct {
	TxHashes []string `json:"tx_hashes"`
	Status   string   `json:"status"`
}

// PoolHashes fetches the full set of transaction hashes currently sitting in
// the daemon's mempool.
func (c *Client) PoolHashes(ctx context.Context) ([]string, error) {
	var result poolHashesResult
	if err := c.callREST(ctx, "/get_transaction_pool_hashes.bin", map[string]interface{}{}, &result); err != nil {
		return nil, err
	}
	return result.TxHashes, nil
}

// supportsRangedHeaders reports whether the daemon is believed to support
// get_block_headers_range. Prior to the first probe it optimistically
// returns true; ProbeCapabilities and downgradeToSingleHeader are the only
// writers.
func (c *Client) supportsRangedHeaders() bool {
	if c.headerDowngraded.Load() {
		return false
	}
	c.capsMu.RLock()
	defer c.capsMu.RUnlock()
	if !c.capsProbed {
		return true
	}
	return c.caps.RangedHeaders
}

// downgradeToSingleHeader permanently disables ranged-header fetches for the
// lifetime of this client. The downgrade is one-way: once the daemon has
// demonstrated it can't serve a ranged request, this client never retries it.
func (c *Client) downgradeToSingleHeader(reason string) {
	if c.headerDowngraded.CompareAndSwap(false, true) {
		util.Warn("downgrading to single-header fetch mode",
			"reason", reason,
		)
		util.RecordCapability("ranged_headers", false)
	}
}

// ProbeCapabilities performs the one-time startup capability probe described
// for this client: it checks whether ranged header fetches and the binary
// transaction-pool endpoint are available, recording the outcome as metrics
// and caching it for the lifetime of the client.
func (c *Client) ProbeCapabilities(ctx context.Context) Capabilities {
	c.capsMu.Lock()
	defer c.capsMu.Unlock()

	if c.capsProbed {
		return c.caps
	}

	caps := Capabilities{}

	count, err := c.BlockCount(ctx)
	if err == nil && count > 0 {
		top := count - 1
		probeStart := top
		if top > 0 {
			probeStart = top - 1
		}
		if _, rangeErr := c.rawHeadersRangeProbe(ctx, probeStart, top); rangeErr == nil {
			caps.RangedHeaders = true
		}
	}

	if _, poolErr := c.PoolHashes(ctx); poolErr == nil {
		caps.BinaryBlockByHeight = true
	}

	util.RecordCapability("ranged_headers", caps.RangedHeaders)
	util.RecordCapability("binary_pool_hashes", caps.BinaryBlockByHeight)

	c.caps = caps
	c.capsProbed = true
	if !caps.RangedHeaders {
		c.headerDowngraded.Store(true)
	}
	return caps
}

// rawHeadersRangeProbe issues a single get_block_headers_range call without
// going through supportsRangedHeaders/downgrade bookkeeping, used only by
// ProbeCapabilities to establish the baseline.
func (c *Client) rawHeadersRangeProbe(ctx context.Context, start, end uint64) ([]BlockHeader, error) {
	var result headersRangeResult
	params := map[string]interface{}{"start_height": start, "end_height": end}
	if err := c.callJSONRPC(ctx, "get_block_headers_range", params, &result); err != nil {
		return nil, err
	}
	return result.Headers, nil
}
