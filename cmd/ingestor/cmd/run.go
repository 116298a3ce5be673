package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hieutt50/xmr-ingestor/internal/checkpoint"
	"github.com/hieutt50/xmr-ingestor/internal/db"
	"github.com/hieutt50/xmr-ingestor/internal/limits"
	"github.com/hieutt50/xmr-ingestor/internal/mempool"
	"github.com/hieutt50/xmr-ingestor/internal/pipeline"
	"github.com/hieutt50/xmr-ingestor/internal/rpc"
	"github.com/hieutt50/xmr-ingestor/internal/store"
	"github.com/hieutt50/xmr-ingestor/internal/util"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the ingestion pipeline",
		RunE:  runRun,
	}

	flags := cmd.Flags()
	flags.String("database-url", "", "Postgres connection URL (required)")
	flags.String("rpc-url", "", "daemon JSON-RPC/REST base URL")
	flags.String("zmq-url", "", "daemon ZMQ publish/subscribe endpoint")
	flags.Uint64("finality-window", 30, "confirmation depth beyond which a block is final")
	flags.Int("ingest-concurrency", 8, "worker pool concurrency")
	flags.Float64("rpc-requests-per-second", 10, "rate limiter steady-state rate")
	flags.Bool("bootstrap", false, "enable bootstrap-mode rate/concurrency scaling")
	flags.Uint64("start-height", 0, "override the checkpoint resume height")
	flags.Uint64("limit", 0, "stop after ingesting this many blocks (0 = unbounded)")

	_ = cmd.MarkFlagRequired("database-url")

	for flag, env := range map[string]string{
		"database-url":            "DATABASE_URL",
		"rpc-url":                 "RPC_URL",
		"zmq-url":                 "ZMQ_URL",
		"finality-window":         "FINALITY_WINDOW",
		"ingest-concurrency":      "INGEST_CONCURRENCY",
		"rpc-requests-per-second": "RPC_REQUESTS_PER_SECOND",
		"bootstrap":               "BOOTSTRAP",
		"start-height":            "START_HEIGHT",
		"limit":                   "LIMIT",
	} {
		bindEnv(cmd, flag, env)
	}

	return cmd
}

func runRun(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := util.Init(); err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	go func() {
		if err := util.StartMetricsServer(); err != nil {
			util.Error("metrics server exited", "error", err.Error())
		}
	}()

	dbCfg, err := db.NewConfigFromURL(viper.GetString("database-url"))
	if err != nil {
		return fmt.Errorf("database config: %w", err)
	}
	pool, err := db.NewPool(ctx, dbCfg, util.NewLogger())
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	rpcCfg := rpc.NewConfigWithDefaults(viper.GetString("rpc-url"))
	daemon, err := rpc.NewClient(rpcCfg)
	if err != nil {
		return fmt.Errorf("rpc client: %w", err)
	}
	defer daemon.Close()

	caps := daemon.ProbeCapabilities(ctx)
	util.Info("rpc capability probe complete",
		"ranged_headers", caps.RangedHeaders,
		"binary_pool_hashes", caps.BinaryBlockByHeight,
	)

	limiter, err := limits.New(limits.Config{
		RequestsPerSecond: viper.GetFloat64("rpc-requests-per-second"),
		Concurrency:       viper.GetInt("ingest-concurrency"),
		Bootstrap:         viper.GetBool("bootstrap"),
	})
	if err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	st := store.NewStore(pool.Pool)
	cp := checkpoint.NewStore(pool.Pool)

	pcfg := pipeline.NewConfigWithDefaults()
	pcfg.FinalityWindow = viper.GetUint64("finality-window")
	pcfg.Concurrency = viper.GetInt("ingest-concurrency")
	pcfg.Bootstrap = viper.GetBool("bootstrap")
	if v := viper.GetUint64("start-height"); v != 0 {
		pcfg.StartHeight = &v
	}
	if v := viper.GetUint64("limit"); v != 0 {
		pcfg.Limit = &v
	}
	if err := pcfg.Validate(); err != nil {
		return fmt.Errorf("pipeline config: %w", err)
	}

	errs := make(chan error, 2)

	if zmqURL := viper.GetString("zmq-url"); zmqURL != "" {
		watcherCfg := mempool.NewConfigWithDefaults(zmqURL)
		watcher := mempool.New(watcherCfg, daemon, st)
		go func() {
			if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
				errs <- fmt.Errorf("mempool watcher: %w", err)
			}
		}()
	} else {
		util.Warn("zmq-url not set, mempool watcher disabled")
	}

	go func() {
		errs <- pipeline.Run(ctx, pcfg, daemon, st, cp, limiter, caps.RangedHeaders)
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
		return <-errs
	}
}
