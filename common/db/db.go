package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/LexiconIndonesia/creator-crawler-service/common/config"
	"github.com/LexiconIndonesia/creator-crawler-service/repository"
	zerolog "github.com/jackc/pgx-zerolog"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"

	"github.com/rs/zerolog/log"
)

// crawler_logs inserts come from the log hook itself, tracing them would loop.
const untracedTable = "crawler_logs"

// DB provides access to the database
type DB struct {
	Pool    *pgxpool.Pool
	Queries *repository.Queries
}

// New creates a new DB instance
func New(pool *pgxpool.Pool, queries *repository.Queries) (*DB, error) {
	if pool == nil {
		return nil, errors.New("cannot use nil database pool")
	}
	if queries == nil {
		return nil, errors.New("cannot use nil queries")
	}
	return &DB{
		Pool:    pool,
		Queries: queries,
	}, nil
}

// Close closes the database connection
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
	}
}

// Ping checks if the database connection is alive
func (db *DB) Ping(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// Stats reports pool usage for the health endpoint.
func (db *DB) Stats() map[string]int32 {
	s := db.Pool.Stat()
	return map[string]int32{
		"total_conns":    s.TotalConns(),
		"idle_conns":     s.IdleConns(),
		"acquired_conns": s.AcquiredConns(),
		"max_conns":      s.MaxConns(),
	}
}

// SetupDatabase initializes the database connection
func SetupDatabase(ctx context.Context, cfg config.Config) (*DB, error) {
	config, err := pgxpool.ParseConfig(cfg.PgSql.ConnStr())
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute
	config.HealthCheckPeriod = 1 * time.Minute

	// Setup logger
	logger := zerolog.NewLogger(log.Logger)
	config.ConnConfig.Tracer = &FilteredTracer{
		inner: &tracelog.TraceLog{
			Logger:   logger,
			LogLevel: tracelog.LogLevelInfo,
		},
		skipTable: untracedTable,
	}

	pgsqlClient, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	// Test connection
	if err := pgsqlClient.Ping(ctx); err != nil {
		pgsqlClient.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	dbConn, err := New(pgsqlClient, repository.New(pgsqlClient))
	if err != nil {
		return nil, fmt.Errorf("creating DB handler: %w", err)
	}

	return dbConn, nil
}
