package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hieutt50/xmr-ingestor/internal/backfill"
	"github.com/hieutt50/xmr-ingestor/internal/db"
	"github.com/hieutt50/xmr-ingestor/internal/store"
	"github.com/hieutt50/xmr-ingestor/internal/util"
)

func newAnalyticsBackfillCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analytics-backfill",
		Short: "Recompute soft-facts for blocks left analytics_pending",
		RunE:  runAnalyticsBackfill,
	}

	flags := cmd.Flags()
	flags.String("database-url", "", "Postgres connection URL (required)")
	flags.Int("batch", 1000, "number of pending heights to load per pass")
	_ = cmd.MarkFlagRequired("database-url")

	bindEnv(cmd, "database-url", "DATABASE_URL")
	bindEnv(cmd, "batch", "BACKFILL_BATCH")

	return cmd
}

func runAnalyticsBackfill(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	dbCfg, err := db.NewConfigFromURL(viper.GetString("database-url"))
	if err != nil {
		return fmt.Errorf("database config: %w", err)
	}
	pool, err := db.NewPool(ctx, dbCfg, util.NewLogger())
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	st := store.NewStore(pool.Pool)

	processed, err := backfill.Run(ctx, st, viper.GetInt("batch"))
	if err != nil {
		return fmt.Errorf("analytics backfill: %w", err)
	}

	fmt.Println(processed)
	return nil
}
