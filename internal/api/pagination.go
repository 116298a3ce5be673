package api

import (
	"net/http"
	"strconv"

	"github.com/hieutt50/xmr-ingestor/internal/util"
)

// parseLimit extracts and clamps the "limit" query parameter, validating
// and falling back to defaultLimit on any parse error.
func parseLimit(r *http.Request, defaultLimit, maxLimit int) int {
	limitStr := r.URL.Query().Get("limit")
	if limitStr == "" {
		return defaultLimit
	}

	parsed, err := strconv.Atoi(limitStr)
	if err != nil || parsed < 1 {
		util.Warn("invalid pagination limit, using default",
			"provided", limitStr, "default", defaultLimit, "path", r.URL.Path)
		return defaultLimit
	}
	if parsed > maxLimit {
		util.Info("pagination limit exceeds maximum, clamping to max",
			"provided", parsed, "max", maxLimit, "path", r.URL.Path)
		return maxLimit
	}
	return parsed
}

// parseBeforeHeight extracts the optional "before_height" cursor used by
// GET /v1/blocks to page backward from a given height.
func parseBeforeHeight(r *http.Request) *int64 {
	v := r.URL.Query().Get("before_height")
	if v == "" {
		return nil
	}
	height, err := strconv.ParseInt(v, 10, 64)
	if err != nil || height < 0 {
		util.Warn("invalid before_height cursor, ignoring", "provided", v, "path", r.URL.Path)
		return nil
	}
	return &height
}
