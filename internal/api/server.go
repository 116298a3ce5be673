package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hieutt50/xmr-ingestor/internal/api/websocket"
	"github.com/hieutt50/xmr-ingestor/internal/db"
)

// responseCacheSize is the number of distinct GET requests (by full
// path+query) the LRU response cache holds at once.
const responseCacheSize = 1024

// Server holds the API server dependencies
type Server struct {
	pool   *db.Pool
	config *Config
	hub    *websocket.Hub
	cache  *responseCache
}

// NewServer creates a new API server instance
func NewServer(pool *db.Pool, config *Config) *Server {
	return &Server{
		pool:   pool,
		config: config,
		cache:  newResponseCache(responseCacheSize),
	}
}

// NewServerWithHub creates a new API server instance with a WebSocket hub
// for broadcasting newly ingested blocks/transactions to subscribers.
func NewServerWithHub(pool *db.Pool, config *Config, hub *websocket.Hub) *Server {
	return &Server{
		pool:   pool,
		config: config,
		hub:    hub,
		cache:  newResponseCache(responseCacheSize),
	}
}

// StartHub starts the WebSocket hub if present
func (s *Server) StartHub(ctx context.Context) {
	if s.hub != nil {
		go s.hub.Run(ctx)
	}
}

// Router configures and returns the HTTP router with all middleware and
// the read-only block/tx/mempool query API.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.loggingMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.metricsMiddleware)
	r.Use(s.cache.cacheMiddleware)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/blocks", s.handleListBlocks)
		r.Get("/blocks/{height}", s.handleGetBlock)
		r.Get("/txs/{hash}", s.handleGetTransaction)
		r.Get("/mempool", s.handleListMempool)
		r.Get("/stats", s.handleStats)

		if s.hub != nil {
			wsConfig := websocket.LoadConfig()
			r.Get("/stream", websocket.HandleWebSocket(s.hub, wsConfig))
		}
	})

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	return r
}
