package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"jassguru/internal/domain"

	"github.com/rs/zerolog"
)

// entryID derives the history row id from the idempotence key. Replays
// and full rebuilds mint the same id for the same rating event, so two
// consecutive rebuilds produce byte-identical history.
func entryID(matchID string, gameNumber int, playerID string) string {
	return fmt.Sprintf("%s-g%d-%s", matchID, gameNumber, playerID)
}

// RatingRepository owns the mutable rating heads and the append-only
// rating history. The UNIQUE(match_id, game_number, player_id) index on
// rating_entries is the idempotence ledger for rating contributions:
// re-appending an already applied entry is a no-op.
type RatingRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewRatingRepository(sqlDB *sql.DB, logger zerolog.Logger) *RatingRepository {
	return &RatingRepository{
		db:     sqlDB,
		logger: logger,
	}
}

func (r *RatingRepository) GetRating(ctx context.Context, playerID string) (*domain.PlayerRating, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT player_id, rating, games_played, last_delta, last_session_delta,
		       peak_rating, peak_rating_at, lowest_rating, lowest_rating_at, updated_at
		FROM player_ratings WHERE player_id = ?`, playerID)

	var rating domain.PlayerRating
	var peakAt, lowAt sql.NullTime
	err := row.Scan(&rating.PlayerID, &rating.Rating, &rating.GamesPlayed, &rating.LastDelta,
		&rating.LastSessionDelta, &rating.PeakRating, &peakAt, &rating.LowestRating, &lowAt, &rating.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load rating for %s: %w", playerID, err)
	}
	if peakAt.Valid {
		rating.PeakRatingAt = peakAt.Time
	}
	if lowAt.Valid {
		rating.LowestRatingAt = lowAt.Time
	}
	return &rating, nil
}

// GetRatings loads the current rating heads for a set of players. Missing
// players are simply absent from the result; callers decide whether that
// is an error (the rating updater treats it as one).
func (r *RatingRepository) GetRatings(ctx context.Context, playerIDs []string) (map[string]domain.PlayerRating, error) {
	out := make(map[string]domain.PlayerRating, len(playerIDs))
	for _, id := range playerIDs {
		rating, err := r.GetRating(ctx, id)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[id] = *rating
	}
	return out, nil
}

func (r *RatingRepository) UpsertRating(ctx context.Context, rating *domain.PlayerRating) error {
	return r.upsertRatingExec(ctx, r.db, rating)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *RatingRepository) upsertRatingExec(ctx context.Context, ex execer, rating *domain.PlayerRating) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO player_ratings (player_id, rating, games_played, last_delta, last_session_delta,
			peak_rating, peak_rating_at, lowest_rating, lowest_rating_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(player_id) DO UPDATE SET
			rating = excluded.rating,
			games_played = excluded.games_played,
			last_delta = excluded.last_delta,
			last_session_delta = excluded.last_session_delta,
			peak_rating = excluded.peak_rating,
			peak_rating_at = excluded.peak_rating_at,
			lowest_rating = excluded.lowest_rating,
			lowest_rating_at = excluded.lowest_rating_at,
			updated_at = excluded.updated_at`,
		rating.PlayerID, rating.Rating, rating.GamesPlayed, rating.LastDelta, rating.LastSessionDelta,
		rating.PeakRating, nullTime(rating.PeakRatingAt), rating.LowestRating, nullTime(rating.LowestRatingAt),
		rating.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert rating for %s: %w", rating.PlayerID, err)
	}
	return nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

// AppendEntries appends rating-history entries and updates the matching
// rating heads in one transaction. Entries whose idempotence key already
// exists are skipped, and the corresponding head update is skipped with
// them, so replaying a match is a no-op. Returns how many entries were
// actually applied.
func (r *RatingRepository) AppendEntries(ctx context.Context, entries []domain.RatingEntry, heads map[string]domain.PlayerRating) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	applied := 0
	appliedPlayers := map[string]bool{}
	for _, entry := range entries {
		id := entry.ID
		if id == "" {
			id = entryID(entry.MatchID, entry.GameNumber, entry.PlayerID)
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO rating_entries (id, player_id, match_id, game_number, rating, delta, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(match_id, game_number, player_id) DO NOTHING`,
			id, entry.PlayerID, entry.MatchID, entry.GameNumber, entry.Rating, entry.Delta, entry.CreatedAt)
		if err != nil {
			return 0, fmt.Errorf("failed to append rating entry %s/%d/%s: %w", entry.MatchID, entry.GameNumber, entry.PlayerID, err)
		}
		n, _ := res.RowsAffected()
		if n > 0 {
			applied++
			appliedPlayers[entry.PlayerID] = true
		}
	}

	for playerID, head := range heads {
		if !appliedPlayers[playerID] {
			continue
		}
		if err := r.upsertRatingExec(ctx, tx, &head); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return applied, nil
}

// ReplaceAllHistory swaps the entire rating state, every entry and every
// head, in one transaction. Full replays stage their result in memory and
// commit through this, so a failed replay leaves the previous history
// untouched.
func (r *RatingRepository) ReplaceAllHistory(ctx context.Context, entries []domain.RatingEntry, heads map[string]domain.PlayerRating) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM rating_entries`); err != nil {
		return fmt.Errorf("failed to clear rating entries: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM player_ratings`); err != nil {
		return fmt.Errorf("failed to clear rating heads: %w", err)
	}

	for _, entry := range entries {
		id := entry.ID
		if id == "" {
			id = entryID(entry.MatchID, entry.GameNumber, entry.PlayerID)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO rating_entries (id, player_id, match_id, game_number, rating, delta, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, entry.PlayerID, entry.MatchID, entry.GameNumber, entry.Rating, entry.Delta, entry.CreatedAt); err != nil {
			return fmt.Errorf("failed to insert rating entry %s/%d/%s: %w", entry.MatchID, entry.GameNumber, entry.PlayerID, err)
		}
	}
	for _, head := range heads {
		if err := r.upsertRatingExec(ctx, tx, &head); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetHistory returns a player's full rating history, oldest first.
func (r *RatingRepository) GetHistory(ctx context.Context, playerID string) ([]domain.RatingEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, player_id, match_id, game_number, rating, delta, created_at
		FROM rating_entries
		WHERE player_id = ?
		ORDER BY created_at ASC, match_id ASC, game_number ASC`, playerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query rating history for %s: %w", playerID, err)
	}
	defer rows.Close()

	var entries []domain.RatingEntry
	for rows.Next() {
		var e domain.RatingEntry
		if err := rows.Scan(&e.ID, &e.PlayerID, &e.MatchID, &e.GameNumber, &e.Rating, &e.Delta, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan rating entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// DeleteHistory removes a player's rating entries and head, for player
// deletion. Full replays go through ReplaceAllHistory instead so a failed
// replay cannot leave partial state.
func (r *RatingRepository) DeleteHistory(ctx context.Context, playerID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM rating_entries WHERE player_id = ?`, playerID); err != nil {
		return fmt.Errorf("failed to delete rating entries for %s: %w", playerID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM player_ratings WHERE player_id = ?`, playerID); err != nil {
		return fmt.Errorf("failed to delete rating head for %s: %w", playerID, err)
	}
	return tx.Commit()
}

// ListRatings returns every rating head, highest rating first, for the
// leaderboard snapshot.
func (r *RatingRepository) ListRatings(ctx context.Context, playerIDs []string) ([]domain.PlayerRating, error) {
	var ratings []domain.PlayerRating
	for _, id := range playerIDs {
		rating, err := r.GetRating(ctx, id)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, err
		}
		ratings = append(ratings, *rating)
	}
	return ratings, nil
}
