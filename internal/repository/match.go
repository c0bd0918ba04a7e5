package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"jassguru/internal/constants"
	"jassguru/internal/domain"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// MatchRepository reads and writes the immutable match documents. Matches
// are stored as JSON docs with a few extracted columns for querying; the
// engine treats them as read-only inputs.
type MatchRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewMatchRepository(sqlDB *sql.DB, logger zerolog.Logger) *MatchRepository {
	return &MatchRepository{
		db:     sqlDB,
		logger: logger,
	}
}

func (r *MatchRepository) Get(ctx context.Context, matchID string) (*domain.MatchRecord, error) {
	var doc []byte
	err := r.db.QueryRowContext(ctx, `SELECT doc FROM matches WHERE id = ?`, matchID).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("match %s not found: %w", matchID, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load match %s: %w", matchID, err)
	}

	var match domain.MatchRecord
	if err := json.Unmarshal(doc, &match); err != nil {
		return nil, fmt.Errorf("failed to decode match %s: %w", matchID, err)
	}
	return &match, nil
}

// GetByPlayer returns every match a player participated in, oldest first.
// Chronological order matters: streak and rating folds depend on it.
func (r *MatchRepository) GetByPlayer(ctx context.Context, playerID string) ([]domain.MatchRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT m.doc FROM matches m
		JOIN match_participants mp ON mp.match_id = m.id
		WHERE mp.player_id = ?
		ORDER BY m.started_at ASC, m.id ASC`, playerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query matches for player %s: %w", playerID, err)
	}
	defer rows.Close()

	return scanMatches(rows)
}

func (r *MatchRepository) GetByGroup(ctx context.Context, groupID string) ([]domain.MatchRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT doc FROM matches
		WHERE group_id = ?
		ORDER BY started_at ASC, id ASC`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to query matches for group %s: %w", groupID, err)
	}
	defer rows.Close()

	return scanMatches(rows)
}

func scanMatches(rows *sql.Rows) ([]domain.MatchRecord, error) {
	var matches []domain.MatchRecord
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan match row: %w", err)
		}
		var match domain.MatchRecord
		if err := json.Unmarshal(doc, &match); err != nil {
			return nil, fmt.Errorf("failed to decode match doc: %w", err)
		}
		matches = append(matches, match)
	}
	return matches, rows.Err()
}

// ListPlayerIDs returns every known player id, for backfills.
func (r *MatchRepository) ListPlayerIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT player_id FROM match_participants ORDER BY player_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list player ids: %w", err)
	}
	defer rows.Close()
	return scanStrings(rows)
}

// ListGroupIDs returns every group id that has at least one match.
func (r *MatchRepository) ListGroupIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT group_id FROM matches ORDER BY group_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list group ids: %w", err)
	}
	defer rows.Close()
	return scanStrings(rows)
}

func scanStrings(rows *sql.Rows) ([]string, error) {
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan id: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ReplaceParticipants swaps a match's participant index rows for the
// resolved player ids. Called after normalization, so queries by player
// always see canonical ids even when the stored rosters carry transient
// capture identifiers.
func (r *MatchRepository) ReplaceParticipants(ctx context.Context, matchID string, playerIDs []string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM match_participants WHERE match_id = ?`, matchID); err != nil {
		return fmt.Errorf("failed to clear participants of match %s: %w", matchID, err)
	}
	for _, playerID := range playerIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO match_participants (match_id, player_id)
			VALUES (?, ?)
			ON CONFLICT(match_id, player_id) DO NOTHING`,
			matchID, playerID); err != nil {
			return fmt.Errorf("failed to index participant %s of match %s: %w", playerID, matchID, err)
		}
	}
	return tx.Commit()
}

// UpsertBatch writes match documents and their participant index rows in
// one transaction, chunked by the usual batch size. Used by the capture
// flow and by tests; the aggregation engine itself never writes matches.
func (r *MatchRepository) UpsertBatch(ctx context.Context, matches []domain.MatchRecord) error {
	if len(matches) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for i := 0; i < len(matches); i += constants.DBBatchSize {
		end := i + constants.DBBatchSize
		if end > len(matches) {
			end = len(matches)
		}

		for _, match := range matches[i:end] {
			doc, err := json.Marshal(match)
			if err != nil {
				return fmt.Errorf("failed to encode match %s: %w", match.ID, err)
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO matches (id, group_id, kind, doc, started_at, ended_at, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					group_id = excluded.group_id,
					kind = excluded.kind,
					doc = excluded.doc,
					started_at = excluded.started_at,
					ended_at = excluded.ended_at`,
				match.ID, match.GroupID, string(match.Kind), doc, match.StartedAt, match.EndedAt, time.Now())
			if err != nil {
				return fmt.Errorf("failed to upsert match %s: %w", match.ID, err)
			}

			// The index is derived from every roster the doc carries,
			// not just the optional participant list. Normalization
			// later replaces it with the resolved set.
			for _, playerID := range match.RawParticipantIDs() {
				_, err = tx.ExecContext(ctx, `
					INSERT INTO match_participants (match_id, player_id)
					VALUES (?, ?)
					ON CONFLICT(match_id, player_id) DO NOTHING`,
					match.ID, playerID)
				if err != nil {
					return fmt.Errorf("failed to index participant %s of match %s: %w", playerID, match.ID, err)
				}
			}
		}
	}

	return tx.Commit()
}
