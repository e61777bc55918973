package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/storefront/pkg/database"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrations returns the schema migrations for the snapshot table, rooted so
// database.RunMigrations sees the .sql files directly.
func Migrations() fs.FS {
	sub, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		panic(fmt.Sprintf("postgres migrations: %v", err))
	}
	return sub
}

// Store implements storage.Store on a cart_snapshots table.
type Store struct {
	pool database.DBTX
	now  func() time.Time
}

// NewStore creates a PostgreSQL-backed store.
func NewStore(pool database.DBTX) *Store {
	return &Store{
		pool: pool,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

const (
	selectSnapshotSQL = `SELECT payload FROM cart_snapshots WHERE key = $1`
	upsertSnapshotSQL = `
		INSERT INTO cart_snapshots (key, payload, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at`
	deleteSnapshotSQL = `DELETE FROM cart_snapshots WHERE key = $1`
	purgeSnapshotsSQL = `DELETE FROM cart_snapshots WHERE updated_at < $1`
)

// Get returns the payload stored under key.
func (s *Store) Get(ctx context.Context, key string) (payload string, err error) {
	ctx, end := database.TraceQuery(ctx, "GetSnapshot", selectSnapshotSQL)
	defer func() { end(err) }()

	err = s.pool.QueryRow(ctx, selectSnapshotSQL, key).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", apperrors.NotFound("key", key)
		}
		return "", fmt.Errorf("select cart snapshot: %w", err)
	}
	return payload, nil
}

// Set upserts the payload under key.
func (s *Store) Set(ctx context.Context, key, value string) (err error) {
	ctx, end := database.TraceQuery(ctx, "SetSnapshot", upsertSnapshotSQL)
	defer func() { end(err) }()

	if _, err = s.pool.Exec(ctx, upsertSnapshotSQL, key, value, s.now()); err != nil {
		return fmt.Errorf("upsert cart snapshot: %w", err)
	}
	return nil
}

// Delete removes the row for key.
func (s *Store) Delete(ctx context.Context, key string) (err error) {
	ctx, end := database.TraceQuery(ctx, "DeleteSnapshot", deleteSnapshotSQL)
	defer func() { end(err) }()

	if _, err = s.pool.Exec(ctx, deleteSnapshotSQL, key); err != nil {
		return fmt.Errorf("delete cart snapshot: %w", err)
	}
	return nil
}

// PurgeOlderThan deletes snapshots not written since cutoff and returns how
// many were removed.
func (s *Store) PurgeOlderThan(ctx context.Context, cutoff time.Time) (n int64, err error) {
	ctx, end := database.TraceQuery(ctx, "PurgeSnapshots", purgeSnapshotsSQL)
	defer func() { end(err) }()

	tag, err := s.pool.Exec(ctx, purgeSnapshotsSQL, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge cart snapshots: %w", err)
	}
	return tag.RowsAffected(), nil
}
