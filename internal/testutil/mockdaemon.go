// Package testutil provides fixtures for exercising the ingestor against a
// fake monerod daemon without a live testnet/mainnet node.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// MockDaemon is an httptest-backed stand-in for monerod's JSON-RPC and REST
// surfaces, with knobs for injecting transient failures, a single permanent
// failure at a given height, and artificial latency — mirroring the failure
// injection idiom used for the RPC mocks elsewhere in this module.
type MockDaemon struct {
	t *testing.T

	mu              sync.Mutex
	server          *httptest.Server
	headers         map[uint64]Header
	blocks          map[string]Block
	txs             map[string]Tx
	poolHashes      []string
	blockCount      uint64
	globalFailures  int
	permanentHeight uint64
	hasPermanent    bool
	delay           time.Duration
	callCount       int
}

// Block is a registered full block, keyed by hash, served by get_block.
type Block struct {
	Header      Header
	MinerTxHash string
	JSON        string
	TxHashes    []string
}

// Tx is a registered transaction served by get_transactions.
type Tx struct {
	Hash    string
	AsJSON  string
	AsHex   string
	InPool  bool
}

// Header is the subset of monerod's block_header_response this fixture cares about.
type Header struct {
	Height   uint64 `json:"height"`
	Hash     string `json:"hash"`
	PrevHash string `json:"prev_hash"`
	Timestamp int64 `json:"timestamp"`
}

// NewMockDaemon starts an httptest server simulating monerod's RPC surface.
func NewMockDaemon(t *testing.T) *MockDaemon {
	m := &MockDaemon{
		t:       t,
		headers: make(map[uint64]Header),
		blocks:  make(map[string]Block),
		txs:     make(map[string]Tx),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/json_rpc", m.handleJSONRPC)
	mux.HandleFunc("/get_transactions", m.handleGetTransactions)
	mux.HandleFunc("/get_transaction_pool_hashes.bin", m.handlePoolHashes)
	m.server = httptest.NewServer(mux)
	t.Cleanup(m.server.Close)
	return m
}

// URL returns the daemon's base URL, suitable for rpc.NewConfigWithDefaults.
func (m *MockDaemon) URL() string { return m.server.URL }

// AddHeader registers a header to be served for the given height.
func (m *MockDaemon) AddHeader(h Header) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.headers[h.Height] = h
	if h.Height+1 > m.blockCount {
		m.blockCount = h.Height + 1
	}
}

// GenerateHeaders populates count sequential headers starting at startHeight.
func (m *MockDaemon) GenerateHeaders(startHeight uint64, count int) {
	prev := "genesis"
	for i := 0; i < count; i++ {
		h := startHeight + uint64(i)
		hash := hashFor(h)
		m.AddHeader(Header{Height: h, Hash: hash, PrevHash: prev, Timestamp: int64(1700000000 + h*120)})
		prev = hash
	}
}

// SetGlobalFailures makes the next n RPC calls fail with a transient error.
func (m *MockDaemon) SetGlobalFailures(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.globalFailures = n
}

// SetPermanentError makes requests for the given height fail permanently.
func (m *MockDaemon) SetPermanentError(height uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.permanentHeight = height
	m.hasPermanent = true
}

// SetDelay adds artificial latency before every response.
func (m *MockDaemon) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// AddBlock registers a full block to be served by get_block, keyed by its
// header's hash.
func (m *MockDaemon) AddBlock(b Block) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocks[b.Header.Hash] = b
}

// AddTx registers a transaction to be served by get_transactions.
func (m *MockDaemon) AddTx(tx Tx) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txs[tx.Hash] = tx
}

// SetPoolHashes sets the hashes returned by get_transaction_pool_hashes.bin.
func (m *MockDaemon) SetPoolHashes(hashes []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.poolHashes = hashes
}

// GetCallCount returns the number of RPC requests received so far.
func (m *MockDaemon) GetCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// HashForHeight returns the deterministic hash GenerateHeaders assigns to a
// height, so callers can build matching Block/Tx fixtures.
func HashForHeight(height uint64) string {
	return hashFor(height)
}

func hashFor(height uint64) string {
	const hexDigits = "0123456789abcdef"
	b := make([]byte, 64)
	for i := range b {
		b[i] = hexDigits[(height+uint64(i))%16]
	}
	return string(b)
}

func (m *MockDaemon) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.callCount++
	delay := m.delay
	m.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	var req struct {
		Method string                 `json:"method"`
		Params map[string]interface{} `json:"params"`
		ID     string                 `json:"id"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	m.mu.Lock()
	if m.globalFailures > 0 {
		m.globalFailures--
		m.mu.Unlock()
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("temporarily unavailable"))
		return
	}
	m.mu.Unlock()

	switch req.Method {
	case "get_block_count":
		m.mu.Lock()
		count := m.blockCount
		m.mu.Unlock()
		writeResult(w, req.ID, map[string]interface{}{"count": count, "status": "OK"})
	case "get_block_header_by_height":
		height := uint64(req.Params["height"].(float64))

		m.mu.Lock()
		isPermanent := m.hasPermanent && height == m.permanentHeight
		hdr, ok := m.headers[height]
		m.mu.Unlock()

		if isPermanent {
			writeError(w, req.ID, -2, "invalid parameter: height out of range")
			return
		}
		if !ok {
			writeError(w, req.ID, -2, "Internal error: can't get block by height")
			return
		}
		writeResult(w, req.ID, map[string]interface{}{"block_header": hdr, "status": "OK"})
	case "get_block":
		hash, _ := req.Params["hash"].(string)
		if hash == "" {
			if h, ok := req.Params["height"].(float64); ok {
				m.mu.Lock()
				hdr, ok := m.headers[uint64(h)]
				m.mu.Unlock()
				if ok {
					hash = hdr.Hash
				}
			}
		}

		m.mu.Lock()
		blk, ok := m.blocks[hash]
		m.mu.Unlock()
		if !ok {
			writeError(w, req.ID, -2, "Internal error: can't get block by hash")
			return
		}
		writeResult(w, req.ID, map[string]interface{}{
			"block_header":  blk.Header,
			"miner_tx_hash": blk.MinerTxHash,
			"json":          blk.JSON,
			"tx_hashes":     blk.TxHashes,
			"status":        "OK",
		})
	default:
		writeError(w, req.ID, -32601, "Method not found: "+req.Method)
	}
}

func (m *MockDaemon) handleGetTransactions(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.callCount++
	m.mu.Unlock()

	var req struct {
		TxHashes []string `json:"txs_hashes"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	type txEntry struct {
		TxHash string `json:"tx_hash"`
		AsHex  string `json:"as_hex"`
		AsJSON string `json:"as_json"`
		InPool bool   `json:"in_pool"`
	}

	var entries []txEntry
	var missed []string

	m.mu.Lock()
	for _, h := range req.TxHashes {
		tx, ok := m.txs[h]
		if !ok {
			missed = append(missed, h)
			continue
		}
		entries = append(entries, txEntry{TxHash: tx.Hash, AsHex: tx.AsHex, AsJSON: tx.AsJSON, InPool: tx.InPool})
	}
	m.mu.Unlock()

	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"txs":       entries,
		"missed_tx": missed,
		"status":    "OK",
	})
}

func (m *MockDaemon) handlePoolHashes(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.callCount++
	hashes := m.poolHashes
	m.mu.Unlock()

	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"tx_hashes": hashes,
		"status":    "OK",
	})
}

func writeResult(w http.ResponseWriter, id string, result interface{}) {
	resultBytes, _ := json.Marshal(result)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      id,
		"result":  json.RawMessage(resultBytes),
	})
}

func writeError(w http.ResponseWriter, id string, code int, message string) {
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      id,
		"error":   map[string]interface{}{"code": code, "message": message},
	})
}
