package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"jassguru/internal/domain"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// StatsRepository owns the derived player/group statistics documents and
// the contributions ledger that makes incremental updates idempotent: the
// ledger row and the updated aggregate are committed in one transaction,
// so a contribution is either fully applied or not at all.
type StatsRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewStatsRepository(sqlDB *sql.DB, logger zerolog.Logger) *StatsRepository {
	return &StatsRepository{
		db:     sqlDB,
		logger: logger,
	}
}

// GetPlayerStatsDoc returns the raw stored document, or nil if none
// exists. The raw bytes are what drift detection compares against.
func (r *StatsRepository) GetPlayerStatsDoc(ctx context.Context, playerID string) ([]byte, error) {
	return r.getDoc(ctx, `SELECT doc FROM player_stats WHERE player_id = ?`, playerID)
}

func (r *StatsRepository) GetGroupStatsDoc(ctx context.Context, groupID string) ([]byte, error) {
	return r.getDoc(ctx, `SELECT doc FROM group_stats WHERE group_id = ?`, groupID)
}

func (r *StatsRepository) getDoc(ctx context.Context, query, id string) ([]byte, error) {
	var doc []byte
	err := r.db.QueryRowContext(ctx, query, id).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load stats doc for %s: %w", id, err)
	}
	return doc, nil
}

func (r *StatsRepository) GetPlayerStats(ctx context.Context, playerID string) (*domain.PlayerComputedStats, error) {
	doc, err := r.GetPlayerStatsDoc(ctx, playerID)
	if err != nil || doc == nil {
		return nil, err
	}
	var stats domain.PlayerComputedStats
	if err := json.Unmarshal(doc, &stats); err != nil {
		return nil, fmt.Errorf("failed to decode player stats for %s: %w", playerID, err)
	}
	return &stats, nil
}

func (r *StatsRepository) GetGroupStats(ctx context.Context, groupID string) (*domain.GroupComputedStats, error) {
	doc, err := r.GetGroupStatsDoc(ctx, groupID)
	if err != nil || doc == nil {
		return nil, err
	}
	var stats domain.GroupComputedStats
	if err := json.Unmarshal(doc, &stats); err != nil {
		return nil, fmt.Errorf("failed to decode group stats for %s: %w", groupID, err)
	}
	return &stats, nil
}

// HasContribution reports whether a (match, target) contribution was
// already applied.
func (r *StatsRepository) HasContribution(ctx context.Context, matchID, targetID string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM contributions WHERE match_id = ? AND target_id = ?`, matchID, targetID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check contribution %s/%s: %w", matchID, targetID, err)
	}
	return true, nil
}

// ApplyPlayerStats writes an updated player stats doc and records the
// contribution key in the same transaction. If the key was already
// applied the write is skipped entirely (duplicate contributions are not
// an error). matchID may be empty for full recomputes, which replace the
// whole ledger for the target.
func (r *StatsRepository) ApplyPlayerStats(ctx context.Context, playerID, matchID string, stats *domain.PlayerComputedStats) (bool, error) {
	doc, err := json.Marshal(stats)
	if err != nil {
		return false, fmt.Errorf("failed to encode player stats for %s: %w", playerID, err)
	}
	return r.applyDoc(ctx, `
		INSERT INTO player_stats (player_id, doc, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(player_id) DO UPDATE SET doc = excluded.doc, updated_at = excluded.updated_at`,
		playerID, matchID, doc)
}

func (r *StatsRepository) ApplyGroupStats(ctx context.Context, groupID, matchID string, stats *domain.GroupComputedStats) (bool, error) {
	doc, err := json.Marshal(stats)
	if err != nil {
		return false, fmt.Errorf("failed to encode group stats for %s: %w", groupID, err)
	}
	return r.applyDoc(ctx, `
		INSERT INTO group_stats (group_id, doc, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(group_id) DO UPDATE SET doc = excluded.doc, updated_at = excluded.updated_at`,
		groupID, matchID, doc)
}

func (r *StatsRepository) applyDoc(ctx context.Context, upsert, targetID, matchID string, doc []byte) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if matchID != "" {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO contributions (match_id, target_id, applied_at) VALUES (?, ?, ?)
			ON CONFLICT(match_id, target_id) DO NOTHING`,
			matchID, targetID, time.Now())
		if err != nil {
			return false, fmt.Errorf("failed to record contribution %s/%s: %w", matchID, targetID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			// Already applied; idempotence says this is fine.
			return false, nil
		}
	}

	if _, err := tx.ExecContext(ctx, upsert, targetID, doc, time.Now()); err != nil {
		return false, fmt.Errorf("failed to upsert stats doc for %s: %w", targetID, err)
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// ReplaceContributions swaps the full ledger of a target for the given
// match set. Full recomputes call this so the ledger always mirrors what
// the stored aggregate was derived from.
func (r *StatsRepository) ReplaceContributions(ctx context.Context, targetID string, matchIDs []string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM contributions WHERE target_id = ?`, targetID); err != nil {
		return fmt.Errorf("failed to clear contributions for %s: %w", targetID, err)
	}
	now := time.Now()
	for _, matchID := range matchIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO contributions (match_id, target_id, applied_at) VALUES (?, ?, ?)`,
			matchID, targetID, now); err != nil {
			return fmt.Errorf("failed to record contribution %s/%s: %w", matchID, targetID, err)
		}
	}
	return tx.Commit()
}
