package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

// Runner applies migration steps against one database.
type Runner interface {
	Dialect() string
	EnsureTable(ctx context.Context) error
	Version(ctx context.Context) (int, error)
	// Step runs query and records (up) or forgets (down) version in one
	// transaction.
	Step(ctx context.Context, version int, query string, up bool) error
}

type migration struct {
	version int
	up      string
	down    string
}

func loadMigrations(dialect string) ([]migration, error) {
	dir := "migrations/" + dialect
	entries, err := migrationsFS.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	byVersion := make(map[int]*migration)
	for _, entry := range entries {
		var version int
		var rest string
		if _, err := fmt.Sscanf(entry.Name(), "%03d_%s", &version, &rest); err != nil {
			continue
		}
		m, ok := byVersion[version]
		if !ok {
			m = &migration{version: version}
			byVersion[version] = m
		}
		switch {
		case strings.HasSuffix(entry.Name(), ".up.sql"):
			m.up = dir + "/" + entry.Name()
		case strings.HasSuffix(entry.Name(), ".down.sql"):
			m.down = dir + "/" + entry.Name()
		}
	}

	out := make([]migration, 0, len(byVersion))
	for _, m := range byVersion {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out, nil
}

// Migrate runs all pending migrations.
func Migrate(ctx context.Context, r Runner) error {
	if err := r.EnsureTable(ctx); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}
	current, err := r.Version(ctx)
	if err != nil {
		return fmt.Errorf("get current version: %w", err)
	}
	migrations, err := loadMigrations(r.Dialect())
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.version <= current || m.up == "" {
			continue
		}
		sql, err := migrationsFS.ReadFile(m.up)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", m.up, err)
		}
		if err := r.Step(ctx, m.version, string(sql), true); err != nil {
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}
		log.Info().Int("version", m.version).Str("file", m.up).Msg("applied migration")
	}
	return nil
}

// MigrateDown rolls back the most recently applied migration.
func MigrateDown(ctx context.Context, r Runner) error {
	if err := r.EnsureTable(ctx); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}
	current, err := r.Version(ctx)
	if err != nil {
		return fmt.Errorf("get current version: %w", err)
	}
	if current == 0 {
		log.Info().Msg("no migrations to roll back")
		return nil
	}
	migrations, err := loadMigrations(r.Dialect())
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.version != current {
			continue
		}
		if m.down == "" {
			return fmt.Errorf("migration %d has no down file", current)
		}
		sql, err := migrationsFS.ReadFile(m.down)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", m.down, err)
		}
		if err := r.Step(ctx, m.version, string(sql), false); err != nil {
			return fmt.Errorf("roll back migration %d: %w", m.version, err)
		}
		log.Info().Int("version", m.version).Str("file", m.down).Msg("rolled back migration")
		return nil
	}
	return fmt.Errorf("migration %d not found", current)
}

type pgRunner struct {
	pool *pgxpool.Pool
}

func NewPostgresRunner(pool *pgxpool.Pool) Runner { return pgRunner{pool: pool} }

func (pgRunner) Dialect() string { return DriverPostgres }

func (r pgRunner) EnsureTable(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

func (r pgRunner) Version(ctx context.Context) (int, error) {
	var v int
	err := r.pool.QueryRow(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&v)
	return v, err
}

func (r pgRunner) Step(ctx context.Context, version int, query string, up bool) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, query); err != nil {
		return err
	}
	record := "DELETE FROM schema_migrations WHERE version = $1"
	if up {
		record = "INSERT INTO schema_migrations (version) VALUES ($1)"
	}
	if _, err := tx.Exec(ctx, record, version); err != nil {
		return fmt.Errorf("record version: %w", err)
	}
	return tx.Commit(ctx)
}

type sqliteRunner struct {
	db *sql.DB
}

func NewSQLiteRunner(db *sql.DB) Runner { return sqliteRunner{db: db} }

func (sqliteRunner) Dialect() string { return DriverSQLite }

func (r sqliteRunner) EnsureTable(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

func (r sqliteRunner) Version(ctx context.Context) (int, error) {
	var v int
	err := r.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&v)
	return v, err
}

func (r sqliteRunner) Step(ctx context.Context, version int, query string, up bool) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, query); err != nil {
		return err
	}
	record := "DELETE FROM schema_migrations WHERE version = ?"
	if up {
		record = "INSERT INTO schema_migrations (version) VALUES (?)"
	}
	if _, err := tx.ExecContext(ctx, record, version); err != nil {
		return fmt.Errorf("record version: %w", err)
	}
	return tx.Commit()
}
