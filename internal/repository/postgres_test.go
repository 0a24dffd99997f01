package repository

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/svd-classify/internal/database"
	"github.com/svd-classify/internal/domain"
)

func setupTestDB(t *testing.T) *pgxpool.Pool {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate PostgreSQL container: %v", err)
		}
	})

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	port, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	config := database.ConfigFromSettings(domain.DatabaseConfig{
		Host:     host,
		Port:     port.Int(),
		Database: "testdb",
		Username: "testuser",
		Password: "testpass",
	})

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	runner, err := database.NewMigrationRunner(config.URL(), "../../migrations", logger)
	require.NoError(t, err)
	require.NoError(t, runner.Up(ctx))
	require.NoError(t, runner.Close())

	db, err := database.NewConnection(ctx, config, logger)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	return db.Pool
}

func TestPostgresStore_Contract(t *testing.T) {
	pool := setupTestDB(t)
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	runStoreContract(t, func(t *testing.T) domain.Store {
		_, err := pool.Exec(context.Background(),
			`TRUNCATE code_answers, checks, classifications, variants, audit_events RESTART IDENTITY CASCADE`)
		require.NoError(t, err)
		return NewPostgresStore(pool, logger)
	})
}

func TestPostgresStore_DuplicateSequence(t *testing.T) {
	pool := setupTestDB(t)
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	store := NewPostgresStore(pool, logger)

	c, _ := seedClassification(t, store, "NM_004333.6:c.1799T>A", "svig_2024")

	err := store.WithinTx(context.Background(), func(ctx context.Context, tx domain.StoreTx) error {
		return tx.CreateCheck(ctx, &domain.Check{ClassificationID: c.ID, Sequence: 1, CreatedAt: time.Now()})
	})
	assert.Error(t, err, "sequences are unique per classification")
}
