package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		expected string
	}{
		{
			name:     "block by height",
			path:     "/v1/blocks/12345",
			expected: "/v1/blocks/{height}",
		},
		{
			name:     "transaction by hash",
			path:     "/v1/txs/abcdef0123456789abcdef0123456789abcdef0123456789abcdef01234567",
			expected: "/v1/txs/{hash}",
		},
		{
			name:     "blocks list",
			path:     "/v1/blocks",
			expected: "/v1/blocks",
		},
		{
			name:     "mempool",
			path:     "/v1/mempool",
			expected: "/v1/mempool",
		},
		{
			name:     "healthz",
			path:     "/healthz",
			expected: "/healthz",
		},
		{
			name:     "metrics",
			path:     "/metrics",
			expected: "/metrics",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := normalizePath(tt.path)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestCORSMiddleware(t *testing.T) {
	tests := []struct {
		name                  string
		corsOrigins           string
		method                string
		expectedOrigin        string
		expectedStatus        int
		shouldCallNextHandler bool
	}{
		{
			name:                  "regular request with wildcard origins",
			corsOrigins:           "*",
			method:                "GET",
			expectedOrigin:        "*",
			expectedStatus:        http.StatusOK,
			shouldCallNextHandler: true,
		},
		{
			name:                  "regular request with specific origin",
			corsOrigins:           "https://example.com",
			method:                "GET",
			expectedOrigin:        "https://example.com",
			expectedStatus:        http.StatusOK,
			shouldCallNextHandler: true,
		},
		{
			name:                  "preflight OPTIONS request",
			corsOrigins:           "*",
			method:                "OPTIONS",
			expectedOrigin:        "*",
			expectedStatus:        http.StatusNoContent,
			shouldCallNextHandler: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := &Config{CORSOrigins: tt.corsOrigins}
			server := &Server{config: config}

			nextHandlerCalled := false
			nextHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				nextHandlerCalled = true
				w.WriteHeader(http.StatusOK)
			})

			handler := server.corsMiddleware(nextHandler)

			req := httptest.NewRequest(tt.method, "/test", nil)
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedOrigin, w.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, "GET, OPTIONS", w.Header().Get("Access-Control-Allow-Methods"))
			assert.Equal(t, "Content-Type, Authorization", w.Header().Get("Access-Control-Allow-Headers"))

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Equal(t, tt.shouldCallNextHandler, nextHandlerCalled)
		})
	}
}

func TestResponseWriter(t *testing.T) {
	t.Run("captures status code", func(t *testing.T) {
		w := httptest.NewRecorder()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		rw.WriteHeader(http.StatusBadRequest)

		assert.Equal(t, http.StatusBadRequest, rw.statusCode)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("default status is 200", func(t *testing.T) {
		w := httptest.NewRecorder()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		assert.Equal(t, http.StatusOK, rw.statusCode)
	})
}
