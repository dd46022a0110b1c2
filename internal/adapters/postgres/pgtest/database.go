// Package pgtest starts a throwaway PostgreSQL for adapter tests.
package pgtest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/DanielPopoola/ficmart-payment-automaton/internal/adapters/postgres"
	"github.com/DanielPopoola/ficmart-payment-automaton/internal/config"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	image    = "postgres:16-alpine"
	user     = "automaton"
	password = "automaton"
	dbName   = "automaton_test"
)

// tables in truncation order.
var tables = []string{
	"retry_notifications",
	"payment_attempts",
	"payment_transactions",
	"payments",
	"payment_methods",
	"accounts",
}

type TestDatabase struct {
	Container testcontainers.Container
	DB        *postgres.DB
	Config    *config.DatabaseConfig
}

// SetupTestDatabase starts a container, applies every up migration and
// registers teardown on t.
func SetupTestDatabase(t *testing.T) *TestDatabase {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        image,
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     user,
				"POSTGRES_PASSWORD": password,
				"POSTGRES_DB":       dbName,
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, container.Terminate(context.Background()))
	})

	cfg := containerConfig(ctx, t, container)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	db, err := postgres.Connect(ctx, cfg, logger)
	require.NoError(t, err)
	t.Cleanup(db.Close)

	require.NoError(t, migrate(ctx, db))

	return &TestDatabase{Container: container, DB: db, Config: cfg}
}

func (td *TestDatabase) CleanTables(t *testing.T) {
	t.Helper()
	_, err := td.DB.Pool.Exec(context.Background(), "TRUNCATE TABLE "+strings.Join(tables, ", ")+" CASCADE")
	require.NoError(t, err)
}

func containerConfig(ctx context.Context, t *testing.T, c testcontainers.Container) *config.DatabaseConfig {
	t.Helper()
	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "5432")
	require.NoError(t, err)

	return &config.DatabaseConfig{
		Host:            host,
		Port:            port.Int(),
		User:            user,
		Password:        password,
		Name:            dbName,
		SSLMode:         "disable",
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 30 * time.Minute,
	}
}

// migrationsDir resolves db/migrations relative to this file.
func migrationsDir() string {
	_, file, _, _ := runtime.Caller(0)
	root := filepath.Join(filepath.Dir(file), "..", "..", "..", "..")
	return filepath.Join(root, "db", "migrations")
}

func migrate(ctx context.Context, db *postgres.DB) error {
	files, err := filepath.Glob(filepath.Join(migrationsDir(), "*.up.sql"))
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no migrations found in %s", migrationsDir())
	}
	sort.Strings(files)

	for _, f := range files {
		body, err := os.ReadFile(f) //nolint:gosec // test helper, controlled path
		if err != nil {
			return fmt.Errorf("read migration %s: %w", f, err)
		}
		if _, err := db.Pool.Exec(ctx, string(body)); err != nil {
			return fmt.Errorf("apply migration %s: %w", filepath.Base(f), err)
		}
	}
	return nil
}
