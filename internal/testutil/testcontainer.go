//go:build integration

package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestDatabase holds a test database connection and its container, for use
// by store/checkpoint/reorg integration tests.
type TestDatabase struct {
	Pool      *pgxpool.Pool
	Container *postgres.PostgresContainer
	ConnStr   string
}

// tables lists every table in the ingestion schema; CleanDatabase truncates
// them one statement at a time, each with CASCADE.
var tables = []string{
	"mempool_txs",
	"rings",
	"tx_inputs",
	"outputs",
	"soft_facts",
	"txs",
	"chain_tips",
	"blocks",
	"ingestor_checkpoint",
}

// SetupTestDB starts a PostgreSQL test container, applies migrations, and
// returns a connection pool. Call the returned cleanup function with defer.
func SetupTestDB(t *testing.T) (*TestDatabase, func()) {
	t.Helper()

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("xmr_ingestor_test"),
		postgres.WithUsername("test_user"),
		postgres.WithPassword("test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "failed to start postgres container")

	connStr, err := container.ConnectionString(ctx)
	require.NoError(t, err, "failed to get connection string")

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err, "failed to create connection pool")

	err = pool.Ping(ctx)
	require.NoError(t, err, "failed to ping database")

	applyMigrations(t, pool)

	testDB := &TestDatabase{
		Pool:      pool,
		Container: container,
		ConnStr:   connStr,
	}

	cleanup := func() {
		if pool != nil {
			pool.Close()
		}
		if container != nil {
			if err := container.Terminate(ctx); err != nil {
				t.Logf("failed to terminate container: %v", err)
			}
		}
	}

	return testDB, cleanup
}

// applyMigrations applies every *.up.sql migration file, in filename order.
func applyMigrations(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	ctx := context.Background()

	projectRoot, err := getProjectRoot()
	require.NoError(t, err, "failed to find project root")

	migrationsDir := filepath.Join(projectRoot, "migrations")

	files, err := filepath.Glob(filepath.Join(migrationsDir, "*_*.up.sql"))
	require.NoError(t, err, "failed to list migration files")

	for _, file := range files {
		t.Logf("applying migration: %s", filepath.Base(file))

		content, err := os.ReadFile(file)
		require.NoError(t, err, "failed to read migration file: %s", file)

		_, err = pool.Exec(ctx, string(content))
		require.NoError(t, err, "failed to apply migration: %s", file)
	}

	t.Logf("successfully applied %d migrations", len(files))
}

func getProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("project root not found (no go.mod)")
		}
		dir = parent
	}
}

// CleanDatabase truncates every ingestion table to reset state between tests
// without tearing down the container.
func CleanDatabase(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	ctx := context.Background()

	for _, table := range tables {
		_, err := pool.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table))
		require.NoError(t, err, "failed to truncate table: %s", table)
	}

	t.Logf("cleaned database (truncated %d tables)", len(tables))
}
