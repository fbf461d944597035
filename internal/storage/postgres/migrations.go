package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type Migration struct {
	Version     int
	Description string
	Up          string
	Down        string
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "pools and window metrics",
		Up: `
		CREATE TABLE IF NOT EXISTS pools (
			chain_id BIGINT NOT NULL,
			pool_address TEXT NOT NULL,
			factory TEXT NOT NULL,
			token0 TEXT NOT NULL,
			token1 TEXT NOT NULL,
			fee INTEGER NOT NULL,
			first_seen_block BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (chain_id, pool_address)
		);
		CREATE INDEX IF NOT EXISTS idx_pools_pair ON pools(chain_id, token0, token1, fee);

		CREATE TABLE IF NOT EXISTS pool_window_metrics (
			chain_id BIGINT NOT NULL,
			pool_address TEXT NOT NULL,
			window_size_seconds BIGINT NOT NULL,
			window_start_ts TIMESTAMPTZ NOT NULL,
			window_end_ts TIMESTAMPTZ NOT NULL,
			swap_count BIGINT NOT NULL,
			liquidity_adds BIGINT NOT NULL,
			liquidity_removes BIGINT NOT NULL,
			volume0 NUMERIC(78, 0) NOT NULL,
			volume1 NUMERIC(78, 0) NOT NULL,
			fee0 NUMERIC(78, 0) NOT NULL,
			fee1 NUMERIC(78, 0) NOT NULL,
			fee_rate0 NUMERIC,
			fee_rate1 NUMERIC,
			tvl0 NUMERIC(78, 0),
			tvl1 NUMERIC(78, 0),
			apr NUMERIC,
			fee_method TEXT NOT NULL,
			tvl_method TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (chain_id, pool_address, window_size_seconds, window_start_ts)
		);
		CREATE INDEX IF NOT EXISTS idx_pool_window_metrics_start ON pool_window_metrics(window_start_ts DESC);
		`,
		Down: `
		DROP TABLE IF EXISTS pool_window_metrics;
		DROP TABLE IF EXISTS pools;
		`,
	},
	{
		Version:     2,
		Description: "processing state",
		Up: `
		CREATE TABLE IF NOT EXISTS indexer_state (
			name TEXT PRIMARY KEY,
			last_processed_ts BIGINT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);
		`,
		Down: `
		DROP TABLE IF EXISTS indexer_state;
		`,
	},
}

// Migrator applies the schema in order and records applied versions in
// schema_migrations.
type Migrator struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewMigrator(pool *pgxpool.Pool, logger *zap.Logger) *Migrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Migrator{pool: pool, logger: logger}
}

func (m *Migrator) createMigrationsTable(ctx context.Context) error {
	_, err := m.pool.Exec(ctx, `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		description TEXT NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	`)
	return err
}

// Version returns the highest applied migration, or zero.
func (m *Migrator) Version(ctx context.Context) (int, error) {
	if err := m.createMigrationsTable(ctx); err != nil {
		return 0, fmt.Errorf("create migrations table: %w", err)
	}
	var version int
	if err := m.pool.QueryRow(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}

// Up applies every pending migration in one transaction.
func (m *Migrator) Up(ctx context.Context) error {
	current, err := m.Version(ctx)
	if err != nil {
		return err
	}

	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	defer tx.Rollback(ctx)

	applied := 0
	for _, migration := range pending(current) {
		if _, err := tx.Exec(ctx, migration.Up); err != nil {
			return fmt.Errorf("apply migration %d: %w", migration.Version, err)
		}
		if _, err := tx.Exec(ctx,
			"INSERT INTO schema_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			return fmt.Errorf("record migration %d: %w", migration.Version, err)
		}
		applied++
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit migrations: %w", err)
	}
	if applied > 0 {
		m.logger.Info("migrations applied", zap.Int("count", applied), zap.Int("from_version", current))
	}
	return nil
}

// Down rolls back the latest steps migrations.
func (m *Migrator) Down(ctx context.Context, steps int) error {
	current, err := m.Version(ctx)
	if err != nil {
		return err
	}
	if current == 0 {
		return errors.New("no migrations to roll back")
	}

	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin rollback: %w", err)
	}
	defer tx.Rollback(ctx)

	rolledBack := 0
	for _, migration := range rollbacks(current, steps) {
		if _, err := tx.Exec(ctx, migration.Down); err != nil {
			return fmt.Errorf("roll back migration %d: %w", migration.Version, err)
		}
		if _, err := tx.Exec(ctx, "DELETE FROM schema_migrations WHERE version = $1", migration.Version); err != nil {
			return fmt.Errorf("remove migration record %d: %w", migration.Version, err)
		}
		rolledBack++
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit rollback: %w", err)
	}
	m.logger.Info("migrations rolled back", zap.Int("count", rolledBack), zap.Int("from_version", current))
	return nil
}

func pending(current int) []Migration {
	var out []Migration
	for _, migration := range migrations {
		if migration.Version > current {
			out = append(out, migration)
		}
	}
	return out
}

func rollbacks(current, steps int) []Migration {
	var out []Migration
	for i := len(migrations) - 1; i >= 0 && len(out) < steps; i-- {
		if migrations[i].Version <= current {
			out = append(out, migrations[i])
		}
	}
	return out
}
