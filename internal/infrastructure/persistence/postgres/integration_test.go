//go:build integration

package postgres

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/sync/errgroup"

	"github.com/turtacn/psn/internal/config"
	"github.com/turtacn/psn/internal/domain/repository"
	"github.com/turtacn/psn/pkg/logger"
)

func startPostgres(t *testing.T) *DBConnection {
	t.Helper()
	if os.Getenv("SKIP_DOCKER_TESTS") == "true" {
		t.Skip("Skipping Docker-dependent tests")
	}

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("psn"),
		tcpostgres.WithUsername("psn"),
		tcpostgres.WithPassword("psn"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(2*time.Minute),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	conn, err := NewDBConnection(ctx, &config.DatabaseConfig{
		Host:              host,
		Port:              port.Int(),
		User:              "psn",
		Password:          "psn",
		Database:          "psn",
		SSLMode:           "disable",
		MaxConns:          16,
		MinConns:          1,
		MaxConnLifetime:   300,
		MaxConnIdleTime:   60,
		HealthCheckPeriod: 30,
		ConnTimeout:       10,
	}, logger.NewNoopLogger())
	require.NoError(t, err)
	t.Cleanup(conn.Close)

	require.NoError(t, Migrate(ctx, conn.DB()))
	return conn
}

func TestIntegration_ConcurrentInsertKeepsIdentifierUnique(t *testing.T) {
	conn := startPostgres(t)
	ctx := context.Background()
	log := logger.NewNoopLogger()

	d := newTestDomain("concurrent")
	require.NoError(t, NewDomainRepository(conn.DB(), log).Create(ctx, d))
	repo := NewPseudonymRepository(conn.DB(), log)

	var created, duplicates int32
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < 8; i++ {
		value := fmt.Sprintf("T-%06d", i)
		g.Go(func() error {
			outcome, err := repo.Insert(gctx, newTestRecord(d.ID, "alice", value), false)
			if err != nil {
				return err
			}
			switch outcome {
			case repository.InsertCreated:
				atomic.AddInt32(&created, 1)
			case repository.InsertDuplicateIdentifier:
				atomic.AddInt32(&duplicates, 1)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int32(1), created)
	assert.Equal(t, int32(7), duplicates)
}

func TestIntegration_ConsecutiveCounterUnderContention(t *testing.T) {
	conn := startPostgres(t)
	ctx := context.Background()
	repo := NewDomainRepository(conn.DB(), logger.NewNoopLogger())

	d := newTestDomain("counter")
	require.NoError(t, repo.Create(ctx, d))

	values := make([]int64, 20)
	g, gctx := errgroup.WithContext(ctx)
	for i := range values {
		g.Go(func() error {
			v, err := repo.NextConsecutiveValue(gctx, d.ID)
			values[i] = v
			return err
		})
	}
	require.NoError(t, g.Wait())

	seen := make(map[int64]bool)
	for _, v := range values {
		assert.False(t, seen[v], "value %d handed out twice", v)
		seen[v] = true
	}

	health, err := conn.HealthCheck(ctx)
	require.NoError(t, err)
	assert.Equal(t, "healthy", health["status"])
}
