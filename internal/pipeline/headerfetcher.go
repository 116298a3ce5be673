package pipeline

import (
	"context"

	"github.com/hieutt50/xmr-ingestor/internal/rpc"
	"github.com/hieutt50/xmr-ingestor/internal/util"
)

// HeaderBatchSize is the default ranged-header bulk fetch size (§4.3).
const HeaderBatchSize = 200

// HeaderSource is the daemon surface the header fetcher needs.
type HeaderSource interface {
	HeaderByHeight(ctx context.Context, height uint64) (*rpc.BlockHeader, error)
	HeadersRange(ctx context.Context, start, end uint64) ([]rpc.BlockHeader, error)
}

// headerFetcher is a per-block-worker cache of pre-fetched headers, used
// when the daemon supports ranged headers to avoid one round trip per
// height. It downgrades itself to single-header mode permanently on any
// bulk-fetch failure.
type headerFetcher struct {
	source HeaderSource
	ranged bool
	batch  int
	buffer []rpc.BlockHeader
}

// newHeaderFetcher builds a headerFetcher. ranged should reflect the
// daemon's probed ranged-headers capability.
func newHeaderFetcher(source HeaderSource, ranged bool) *headerFetcher {
	return &headerFetcher{source: source, ranged: ranged, batch: HeaderBatchSize}
}

// headerAt resolves the header at height, either from the buffer, a bulk
// range fetch, or a single-header fallback.
func (f *headerFetcher) headerAt(ctx context.Context, height uint64) (*rpc.BlockHeader, error) {
	if f.ranged {
		// Discard anything the caller has already passed.
		for len(f.buffer) > 0 && f.buffer[0].Height < height {
			f.buffer = f.buffer[1:]
		}

		if len(f.buffer) > 0 && f.buffer[0].Height == height {
			h := f.buffer[0]
			f.buffer = f.buffer[1:]
			return &h, nil
		}

		end := height + uint64(f.batch) - 1
		headers, err := f.source.HeadersRange(ctx, height, end)
		if err != nil {
			util.Warn("header fetcher: bulk range fetch failed, downgrading to single-header mode",
				"height", height, "error", err.Error())
			f.ranged = false
			f.buffer = nil
		} else if len(headers) > 0 && headers[0].Height == height {
			f.buffer = headers[1:]
			h := headers[0]
			return &h, nil
		}
	}

	return f.source.HeaderByHeight(ctx, height)
}
