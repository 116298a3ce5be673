package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hieutt50/xmr-ingestor/internal/api"
	"github.com/hieutt50/xmr-ingestor/internal/db"
	"github.com/hieutt50/xmr-ingestor/internal/util"
)

func newServeAPICmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve-api",
		Short: "Serve the read-only block/tx/mempool query API",
		RunE:  runServeAPI,
	}

	flags := cmd.Flags()
	flags.Int("api-port", 8080, "HTTP listen port for the query API")
	flags.String("database-url", "", "Postgres connection URL (required)")

	_ = cmd.MarkFlagRequired("database-url")

	bindEnv(cmd, "api-port", "API_PORT")
	bindEnv(cmd, "database-url", "DATABASE_URL")

	return cmd
}

func runServeAPI(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbCfg, err := db.NewConfigFromURL(viper.GetString("database-url"))
	if err != nil {
		return fmt.Errorf("database config: %w", err)
	}
	pool, err := db.NewPool(ctx, dbCfg, util.NewLogger())
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	apiCfg := api.NewConfig()
	apiCfg.Port = viper.GetInt("api-port")

	server := api.NewServer(pool, apiCfg)

	httpServer := &http.Server{
		Addr:         apiCfg.Address(),
		Handler:      server.Router(),
		ReadTimeout:  apiCfg.ReadTimeout,
		WriteTimeout: apiCfg.WriteTimeout,
		IdleTimeout:  apiCfg.IdleTimeout,
	}

	errs := make(chan error, 1)
	go func() {
		util.Info("query api listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errs <- fmt.Errorf("api server: %w", err)
		}
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
		util.Info("query api shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), apiCfg.ShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	}
}
