// migrate applies migrations/NNN_*.sql in order, once each, recording a checksum per version.
// A changed file for an already applied version aborts the run.
//
// Usage: go run ./cmd/migrate
package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"receiving-engine/internal/config"
	"receiving-engine/internal/db"
	"receiving-engine/internal/logger"
)

const (
	migrationsDir = "migrations"
	lockKey       = 7462839
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("failed to load configuration: " + err.Error() + "\n")
		os.Exit(1)
	}
	log := logger.New(logger.Config{Level: cfg.LogLevel, Environment: cfg.Environment, ServiceName: "migrate"})

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Str("tag", "CONNECT").Msg("connection failed")
	}
	defer pool.Close()
	log.Info().Str("tag", "CONNECT").Msg("success")

	conn := acquireLock(ctx, log, pool)
	defer conn.Release()

	setupSchemaMigrations(ctx, log, pool)

	for _, filename := range discoverMigrations(log) {
		applyMigration(ctx, log, pool, filename)
	}

	log.Info().Str("tag", "DONE").Msg("all migrations processed")
}

func acquireLock(ctx context.Context, log zerolog.Logger, pool *pgxpool.Pool) *pgxpool.Conn {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		log.Fatal().Err(err).Str("tag", "LOCK").Msg("failed to acquire connection for lock")
	}

	var locked bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", lockKey).Scan(&locked); err != nil {
		log.Fatal().Err(err).Str("tag", "LOCK").Msg("failed to query advisory lock")
	}
	if !locked {
		log.Fatal().Str("tag", "LOCK").Msg("another migrator is currently running")
	}

	log.Info().Str("tag", "LOCK").Msg("success")
	return conn
}

func setupSchemaMigrations(ctx context.Context, log zerolog.Logger, pool *pgxpool.Pool) {
	_, err := pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version TEXT PRIMARY KEY,
	filename TEXT NOT NULL,
	checksum TEXT NOT NULL,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create schema_migrations table")
	}
}

func discoverMigrations(log zerolog.Logger) []string {
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		log.Fatal().Err(err).Str("tag", "DISCOVER").Msg("failed to read migrations directory")
	}

	var filenames []string
	versions := make(map[string]bool)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		version, ok := extractVersion(entry.Name())
		if !ok {
			log.Fatal().Str("tag", "DISCOVER").Str("file", entry.Name()).
				Msg("invalid migration filename, expected NNN_description.sql")
		}
		if versions[version] {
			log.Fatal().Str("tag", "DISCOVER").Str("version", version).Msg("duplicate version")
		}
		versions[version] = true
		filenames = append(filenames, entry.Name())
	}

	sort.Strings(filenames)
	return filenames
}

func extractVersion(filename string) (string, bool) {
	parts := strings.SplitN(filename, "_", 2)
	if len(parts) < 2 || parts[0] == "" {
		return "", false
	}
	return parts[0], true
}

func checksum(sql []byte) string {
	hash := sha256.Sum256(sql)
	return hex.EncodeToString(hash[:])
}

func applyMigration(ctx context.Context, log zerolog.Logger, pool *pgxpool.Pool, filename string) {
	version, _ := extractVersion(filename)
	sqlBytes, err := os.ReadFile(filepath.Join(migrationsDir, filename))
	if err != nil {
		log.Fatal().Err(err).Str("file", filename).Msg("failed to read migration file")
	}
	sum := checksum(sqlBytes)

	var existing string
	err = pool.QueryRow(ctx, "SELECT checksum FROM schema_migrations WHERE version = $1", version).Scan(&existing)
	switch {
	case err == nil:
		if existing == sum {
			log.Info().Str("tag", "SKIP").Str("file", filename).Msg("already applied")
			return
		}
		log.Fatal().Str("file", filename).Str("expected", existing).Str("got", sum).Msg("checksum mismatch")
	case errors.Is(err, pgx.ErrNoRows):
	default:
		log.Fatal().Err(err).Str("file", filename).Msg("failed to query schema_migrations")
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		log.Fatal().Err(err).Str("file", filename).Msg("failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, string(sqlBytes)); err != nil {
		log.Fatal().Err(err).Str("file", filename).Msg("failed to execute migration")
	}
	if _, err := tx.Exec(ctx,
		"INSERT INTO schema_migrations (version, filename, checksum) VALUES ($1, $2, $3)",
		version, filename, sum); err != nil {
		log.Fatal().Err(err).Str("file", filename).Msg("failed to insert migration record")
	}
	if err := tx.Commit(ctx); err != nil {
		log.Fatal().Err(err).Str("file", filename).Msg("failed to commit migration")
	}

	log.Info().Str("tag", "APPLY").Str("file", filename).Msg("applied")
}
