// Package mempool implements the mempool watcher: a long-lived subscriber
// on the daemon's ZMQ publish/subscribe transport that triggers a full
// mempool refresh whenever a raw_tx or raw_block frame arrives, and
// opportunistically on its own receive timeout.
package mempool

import (
	"context"
	"runtime"
	"strings"
	"time"

	zmq4 "github.com/pebbe/zmq4"

	"github.com/hieutt50/xmr-ingestor/internal/util"
)

// topics the watcher subscribes to; any other topic is ignored.
var topics = []string{"raw_tx", "raw_block"}

// PoolSource is the daemon surface the watcher needs to run a refresh.
type PoolSource interface {
	PoolHashes(ctx context.Context) ([]string, error)
}

// Store is the store surface the watcher needs: upserting every hash
// currently in the daemon's pool.
type Store interface {
	UpsertMempoolHashes(ctx context.Context, hashes []string) error
}

// Watcher mirrors the daemon's mempool into the store via ZMQ notifications.
type Watcher struct {
	cfg   *Config
	daemon PoolSource
	store  Store
}

// New builds a Watcher.
func New(cfg *Config, daemon PoolSource, store Store) *Watcher {
	return &Watcher{cfg: cfg, daemon: daemon, store: store}
}

// Run blocks until ctx is done. It issues one full refresh at startup, then
// runs the ZMQ receive loop on a dedicated OS thread (bridged to the rest
// of the program through a buffered trigger channel) to isolate the
// transport's blocking receive from the goroutine scheduler.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.refresh(ctx); err != nil {
		util.Warn("mempool watcher: initial refresh failed", "error", err.Error())
	}

	triggers := make(chan string, 8)
	done := make(chan struct{})

	go w.receiveLoop(ctx, triggers, done)

	for {
		select {
		case <-ctx.Done():
			<-done
			return ctx.Err()
		case reason := <-triggers:
			if err := w.refresh(ctx); err != nil {
				util.Warn("mempool watcher: refresh failed", "reason", reason, "error", err.Error())
			}
		}
	}
}

// receiveLoop runs on a dedicated OS thread for the lifetime of the
// watcher, since zmq4's blocking Recv is not goroutine-friendly. It never
// touches the store or daemon RPC directly; it only signals the async
// world via triggers.
func (w *Watcher) receiveLoop(ctx context.Context, triggers chan<- string, done chan<- struct{}) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(done)

	sock, err := zmq4.NewSocket(zmq4.SUB)
	if err != nil {
		util.Warn("mempool watcher: failed to create zmq socket", "error", err.Error())
		return
	}
	defer sock.Close()

	if err := sock.Connect(w.cfg.ZMQURL); err != nil {
		util.Warn("mempool watcher: failed to connect zmq socket", "url", w.cfg.ZMQURL, "error", err.Error())
		return
	}
	for _, topic := range topics {
		if err := sock.SetSubscribe(topic); err != nil {
			util.Warn("mempool watcher: failed to subscribe", "topic", topic, "error", err.Error())
			return
		}
	}
	if err := sock.SetRcvtimeo(w.cfg.RecvTimeout); err != nil {
		util.Warn("mempool watcher: failed to set recv timeout", "error", err.Error())
		return
	}

	for {
		if ctx.Err() != nil {
			return
		}

		parts, err := sock.RecvMessage(0)
		if err != nil {
			if isTimeout(err) {
				select {
				case triggers <- "periodic":
				default:
				}
				continue
			}
			util.Warn("mempool watcher: zmq receive error", "error", err.Error())
			time.Sleep(w.cfg.ErrorBackoff)
			continue
		}

		if len(parts) == 0 {
			continue
		}
		topic := parts[0]
		switch topic {
		case "raw_tx", "raw_block":
			select {
			case triggers <- topic:
			default:
			}
		default:
			// unknown topic, ignored
		}
	}
}

// isTimeout reports whether err is zmq4's EAGAIN timeout, the expected
// outcome of SetRcvtimeo expiring with no message available.
func isTimeout(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "resource temporarily unavailable") || strings.Contains(msg, "Resource temporarily unavailable")
}

// refresh fetches the daemon's current pool hashes and upserts every one
// into the mempool mirror. Hashes no longer present in the daemon's pool
// are intentionally left alone; eviction happens only on block inclusion
// or reorg rollback.
func (w *Watcher) refresh(ctx context.Context) error {
	hashes, err := w.daemon.PoolHashes(ctx)
	if err != nil {
		return err
	}
	return w.store.UpsertMempoolHashes(ctx, hashes)
}
