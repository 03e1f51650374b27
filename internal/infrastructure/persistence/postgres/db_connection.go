// Package postgres provides PostgreSQL persistence for the PSN service.
// Connections are pooled by pgx; repositories talk to the pool through gorm.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/turtacn/psn/internal/config"
	"github.com/turtacn/psn/internal/domain/models"
	"github.com/turtacn/psn/pkg/errors"
	"github.com/turtacn/psn/pkg/logger"
)

// DBConnection manages PostgreSQL database connection pool lifecycle.
// It provides thread-safe connection pool with automatic health monitoring.
type DBConnection struct {
	pool   *pgxpool.Pool
	db     *gorm.DB
	config *config.DatabaseConfig
	logger logger.Logger
}

// NewDBConnection creates a new PostgreSQL connection manager instance.
// It initializes connection pool with configuration parameters and performs initial health check.
//
// Parameters:
//   - ctx: Context for connection timeout control
//   - cfg: Database configuration including host, port, credentials, and pool settings
//   - log: Logger instance for connection lifecycle events
//
// Returns:
//   - *DBConnection: Initialized connection manager
//   - error: Connection establishment error if any
func NewDBConnection(ctx context.Context, cfg *config.DatabaseConfig, log logger.Logger) (*DBConnection, error) {
	if cfg == nil {
		return nil, errors.ErrInternal("database configuration is missing")
	}

	log.Info(ctx, "Initializing PostgreSQL connection pool",
		logger.String("host", cfg.Host),
		logger.Int("port", cfg.Port),
		logger.String("database", cfg.Database),
		logger.Int("max_conns", cfg.MaxConns),
		logger.Int("min_conns", cfg.MinConns),
	)

	// Parse connection configuration
	poolConfig, err := pgxpool.ParseConfig(cfg.GetDSN())
	if err != nil {
		log.Error(ctx, "Failed to parse database connection string", err)
		return nil, errors.ErrDatabaseOperation(err)
	}

	// Configure connection pool parameters
	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = time.Duration(cfg.MaxConnLifetime) * time.Second
	poolConfig.MaxConnIdleTime = time.Duration(cfg.MaxConnIdleTime) * time.Second
	poolConfig.HealthCheckPeriod = time.Duration(cfg.HealthCheckPeriod) * time.Second

	// Set connection timeout
	connectCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.ConnTimeout)*time.Second)
	defer cancel()

	// Create connection pool
	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		log.Error(ctx, "Failed to create database connection pool", err)
		return nil, errors.ErrDatabaseOperation(err)
	}

	db, err := gorm.Open(gormpostgres.New(gormpostgres.Config{Conn: stdlib.OpenDBFromPool(pool)}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		pool.Close()
		log.Error(ctx, "Failed to open gorm session on connection pool", err)
		return nil, errors.ErrDatabaseOperation(err)
	}

	dbConn := &DBConnection{
		pool:   pool,
		db:     db,
		config: cfg,
		logger: log,
	}

	// Perform initial health check
	if err := dbConn.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	log.Info(ctx, "PostgreSQL connection pool initialized successfully",
		logger.Int("total_conns", int(pool.Stat().TotalConns())),
		logger.Int("idle_conns", int(pool.Stat().IdleConns())),
	)

	return dbConn, nil
}

// DB returns the gorm session bound to the pool. Repositories derive their
// per-request sessions from it.
func (c *DBConnection) DB() *gorm.DB {
	return c.db
}

// Ping verifies database connectivity and responsiveness.
func (c *DBConnection) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	startTime := time.Now()
	if err := c.pool.Ping(pingCtx); err != nil {
		c.logger.Error(ctx, "Database ping failed", err)
		return errors.ErrDatabaseOperation(err)
	}

	latency := time.Since(startTime)
	c.logger.Debug(ctx, "Database ping successful", logger.Int64("latency_ms", latency.Milliseconds()))

	// Warn if latency is high (> 100ms)
	if latency > 100*time.Millisecond {
		c.logger.Warn(ctx, "High database latency detected",
			logger.Int64("latency_ms", latency.Milliseconds()),
			logger.Int("threshold_ms", 100),
		)
	}

	return nil
}

// HealthCheck performs comprehensive health check including connection stats.
func (c *DBConnection) HealthCheck(ctx context.Context) (map[string]interface{}, error) {
	if err := c.Ping(ctx); err != nil {
		return nil, err
	}

	stats := c.pool.Stat()
	healthInfo := map[string]interface{}{
		"status":               "healthy",
		"total_connections":    stats.TotalConns(),
		"idle_connections":     stats.IdleConns(),
		"acquired_connections": stats.AcquiredConns(),
		"max_connections":      c.config.MaxConns,
		"acquire_count":        stats.AcquireCount(),
		"acquire_duration_ms":  stats.AcquireDuration().Milliseconds(),
	}

	// Check for potential issues
	if stats.IdleConns() == 0 && stats.TotalConns() >= int32(c.config.MaxConns) {
		c.logger.Warn(ctx, "Connection pool exhausted",
			logger.Int("total_conns", int(stats.TotalConns())),
			logger.Int("max_conns", c.config.MaxConns),
		)
		healthInfo["warning"] = "connection_pool_near_limit"
	}

	return healthInfo, nil
}

// Close gracefully shuts down the connection pool.
func (c *DBConnection) Close() {
	c.logger.Info(context.Background(), "Closing PostgreSQL connection pool",
		logger.Int("total_conns", int(c.pool.Stat().TotalConns())),
	)
	if sqlDB, err := c.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	c.pool.Close()
}

// Migrate creates or updates the tables and indexes of the service.
func Migrate(ctx context.Context, db *gorm.DB) error {
	if err := db.WithContext(ctx).AutoMigrate(&models.Domain{}, &models.Pseudonym{}, &models.AuditEvent{}); err != nil {
		return fmt.Errorf("auto-migrate: %w", errors.ErrDatabaseOperation(err))
	}
	return nil
}
