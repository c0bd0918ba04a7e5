package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Snapshot kinds stored per target.
const (
	SnapshotKindLeaderboard = "leaderboard"
	SnapshotKindCharts      = "charts"
)

// SnapshotRepository stores read-optimized documents keyed by
// (target, kind). Snapshots are never authoritative and every write
// fully replaces the previous document.
type SnapshotRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewSnapshotRepository(sqlDB *sql.DB, logger zerolog.Logger) *SnapshotRepository {
	return &SnapshotRepository{
		db:     sqlDB,
		logger: logger,
	}
}

// Get returns the stored snapshot document, or nil if none exists.
func (r *SnapshotRepository) Get(ctx context.Context, targetID, kind string) ([]byte, error) {
	var doc []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT doc FROM snapshots WHERE target_id = ? AND kind = ?`, targetID, kind).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot %s/%s: %w", targetID, kind, err)
	}
	return doc, nil
}

func (r *SnapshotRepository) Upsert(ctx context.Context, targetID, kind string, doc []byte) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO snapshots (target_id, kind, doc, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(target_id, kind) DO UPDATE SET doc = excluded.doc, updated_at = excluded.updated_at`,
		targetID, kind, doc, time.Now())
	if err != nil {
		return fmt.Errorf("failed to upsert snapshot %s/%s: %w", targetID, kind, err)
	}
	return nil
}
