package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"jassguru/internal/domain"
	"jassguru/internal/jass"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// PlayerRepository owns the player and group registries. Its main job for
// the engine is building the identity resolver: the mapping from transient
// roster ids (auth uids, guest markers) to canonical player ids.
type PlayerRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewPlayerRepository(sqlDB *sql.DB, logger zerolog.Logger) *PlayerRepository {
	return &PlayerRepository{
		db:     sqlDB,
		logger: logger,
	}
}

func (r *PlayerRepository) Get(ctx context.Context, playerID string) (*domain.Player, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, display_name, auth_uids, created_at, updated_at FROM players WHERE id = ?`, playerID)

	var player domain.Player
	var authUIDs []byte
	err := row.Scan(&player.ID, &player.DisplayName, &authUIDs, &player.CreatedAt, &player.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load player %s: %w", playerID, err)
	}
	if err := json.Unmarshal(authUIDs, &player.AuthUIDs); err != nil {
		return nil, fmt.Errorf("failed to decode auth uids for %s: %w", playerID, err)
	}
	return &player, nil
}

func (r *PlayerRepository) Upsert(ctx context.Context, player *domain.Player) error {
	authUIDs, err := json.Marshal(player.AuthUIDs)
	if err != nil {
		return fmt.Errorf("failed to encode auth uids for %s: %w", player.ID, err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO players (id, display_name, auth_uids, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			display_name = excluded.display_name,
			auth_uids = excluded.auth_uids,
			updated_at = excluded.updated_at`,
		player.ID, player.DisplayName, authUIDs, time.Now(), time.Now())
	if err != nil {
		return fmt.Errorf("failed to upsert player %s: %w", player.ID, err)
	}
	return nil
}

// DisplayNames returns the display names for a set of players. Unknown ids
// are absent from the result.
func (r *PlayerRepository) DisplayNames(ctx context.Context, playerIDs []string) (map[string]string, error) {
	names := make(map[string]string, len(playerIDs))
	for _, id := range playerIDs {
		var name string
		err := r.db.QueryRowContext(ctx, `SELECT display_name FROM players WHERE id = ?`, id).Scan(&name)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load display name for %s: %w", id, err)
		}
		names[id] = name
	}
	return names, nil
}

// Resolver builds the identity resolver over all known players: every
// canonical id maps to itself, every registered auth uid maps to its
// player. Raw ids outside this mapping fail normalization hard.
func (r *PlayerRepository) Resolver(ctx context.Context) (jass.Resolver, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, auth_uids FROM players`)
	if err != nil {
		return nil, fmt.Errorf("failed to query players for resolver: %w", err)
	}
	defer rows.Close()

	resolver := jass.Resolver{}
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan player row: %w", err)
		}
		resolver[id] = id
		var uids []string
		if err := json.Unmarshal(raw, &uids); err != nil {
			return nil, fmt.Errorf("failed to decode auth uids for %s: %w", id, err)
		}
		for _, uid := range uids {
			resolver[uid] = id
		}
	}
	return resolver, rows.Err()
}

// GroupMemberCount counts registered members of a group.
func (r *PlayerRepository) GroupMemberCount(ctx context.Context, groupID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM group_players WHERE group_id = ?`, groupID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count members of group %s: %w", groupID, err)
	}
	return n, nil
}
