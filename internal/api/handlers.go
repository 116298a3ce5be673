package api

import (
	"errors"
	"net/http"
	"regexp"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/hieutt50/xmr-ingestor/internal/store"
)

// hashRegex validates a 64-hex-character Monero transaction/block hash.
var hashRegex = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)

// handleListBlocks handles GET /v1/blocks?limit=&before_height= - lists
// recent blocks, optionally paging backward from before_height.
func (s *Server) handleListBlocks(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 25, 100)
	beforeHeight := parseBeforeHeight(r)

	st := store.NewStore(s.pool.Pool)

	blocks, err := st.ListBlocks(r.Context(), limit, beforeHeight)
	if err != nil {
		writeInternalError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"blocks": blocks,
		"limit":  limit,
	})
}

// handleGetBlock handles GET /v1/blocks/{height} - get a block by height.
func (s *Server) handleGetBlock(w http.ResponseWriter, r *http.Request) {
	heightParam := chi.URLParam(r, "height")

	height, err := strconv.ParseInt(heightParam, 10, 64)
	if err != nil || height < 0 {
		writeBadRequest(w, "invalid block height (expected non-negative integer)")
		return
	}

	st := store.NewStore(s.pool.Pool)

	block, err := st.GetBlockByHeight(r.Context(), height)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeNotFound(w, "block not found")
			return
		}
		writeInternalError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, block)
}

// handleGetTransaction handles GET /v1/txs/{hash} - get a transaction by hash.
func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	txHash := chi.URLParam(r, "hash")

	if !hashRegex.MatchString(txHash) {
		writeBadRequest(w, "invalid transaction hash (expected 64 hex characters)")
		return
	}

	st := store.NewStore(s.pool.Pool)

	tx, err := st.GetTransaction(r.Context(), txHash)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeNotFound(w, "transaction not found")
			return
		}
		writeInternalError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, tx)
}

// handleListMempool handles GET /v1/mempool?limit= - lists current mempool
// entries.
func (s *Server) handleListMempool(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 100, 1000)

	st := store.NewStore(s.pool.Pool)

	entries, err := st.ListMempool(r.Context(), limit)
	if err != nil {
		writeInternalError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"mempool": entries,
		"limit":   limit,
	})
}

// handleStats handles GET /v1/stats - chain tip, lag and checkpoint state.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st := store.NewStore(s.pool.Pool)

	stats, err := st.GetChainStats(r.Context())
	if err != nil {
		writeInternalError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// handleHealth handles GET /healthz - health check endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := store.NewStore(s.pool.Pool)

	health, err := st.CheckHealth(r.Context())
	if err != nil {
		writeServiceUnavailable(w, "health check failed")
		return
	}

	statusCode := http.StatusOK
	if health.Status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, health)
}
