package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"jassguru/internal/database"
	"jassguru/internal/domain"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	// One connection so every statement sees the same in-memory database.
	db.SetMaxOpenConns(1)
	require.NoError(t, database.RunMigrations(db, zerolog.Nop()))
	t.Cleanup(func() { db.Close() })
	return db
}

func testEntries(matchID string) ([]domain.RatingEntry, map[string]domain.PlayerRating) {
	at := time.Date(2025, 5, 1, 20, 0, 0, 0, time.UTC)
	entries := []domain.RatingEntry{
		{PlayerID: "anna", MatchID: matchID, GameNumber: 1, Rating: 104, Delta: 4, CreatedAt: at},
		{PlayerID: "beat", MatchID: matchID, GameNumber: 1, Rating: 104, Delta: 4, CreatedAt: at},
		{PlayerID: "cleo", MatchID: matchID, GameNumber: 1, Rating: 96, Delta: -4, CreatedAt: at},
		{PlayerID: "dani", MatchID: matchID, GameNumber: 1, Rating: 96, Delta: -4, CreatedAt: at},
	}
	heads := map[string]domain.PlayerRating{}
	for _, e := range entries {
		heads[e.PlayerID] = domain.PlayerRating{
			PlayerID:    e.PlayerID,
			Rating:      e.Rating,
			GamesPlayed: 1,
			LastDelta:   e.Delta,
			UpdatedAt:   at,
		}
	}
	return entries, heads
}

func TestRatingRepository_AppendEntriesIsIdempotent(t *testing.T) {
	repo := NewRatingRepository(testDB(t), zerolog.Nop())
	ctx := context.Background()

	entries, heads := testEntries("m1")
	applied, err := repo.AppendEntries(ctx, entries, heads)
	require.NoError(t, err)
	assert.Equal(t, 4, applied)

	// Replaying the same match applies nothing and leaves the heads alone.
	staleHeads := map[string]domain.PlayerRating{}
	for id, h := range heads {
		h.Rating = 999
		staleHeads[id] = h
	}
	applied, err = repo.AppendEntries(ctx, entries, staleHeads)
	require.NoError(t, err)
	assert.Equal(t, 0, applied)

	rating, err := repo.GetRating(ctx, "anna")
	require.NoError(t, err)
	assert.InDelta(t, 104, rating.Rating, 1e-9)
	assert.Equal(t, 1, rating.GamesPlayed)
}

func TestRatingRepository_HistoryOrderAndDelete(t *testing.T) {
	repo := NewRatingRepository(testDB(t), zerolog.Nop())
	ctx := context.Background()

	first, firstHeads := testEntries("m1")
	_, err := repo.AppendEntries(ctx, first, firstHeads)
	require.NoError(t, err)

	second, secondHeads := testEntries("m2")
	for i := range second {
		second[i].CreatedAt = second[i].CreatedAt.Add(24 * time.Hour)
	}
	_, err = repo.AppendEntries(ctx, second, secondHeads)
	require.NoError(t, err)

	history, err := repo.GetHistory(ctx, "anna")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "m1", history[0].MatchID)
	assert.Equal(t, "m2", history[1].MatchID)
	assert.NotEmpty(t, history[0].ID)

	require.NoError(t, repo.DeleteHistory(ctx, "anna"))
	history, err = repo.GetHistory(ctx, "anna")
	require.NoError(t, err)
	assert.Empty(t, history)
	_, err = repo.GetRating(ctx, "anna")
	assert.ErrorIs(t, err, sql.ErrNoRows)

	// Other players keep theirs.
	history, err = repo.GetHistory(ctx, "beat")
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestRatingRepository_GetRatingsSkipsUnknown(t *testing.T) {
	repo := NewRatingRepository(testDB(t), zerolog.Nop())
	ctx := context.Background()

	entries, heads := testEntries("m1")
	_, err := repo.AppendEntries(ctx, entries, heads)
	require.NoError(t, err)

	ratings, err := repo.GetRatings(ctx, []string{"anna", "ghost"})
	require.NoError(t, err)
	assert.Len(t, ratings, 1)
	assert.Contains(t, ratings, "anna")
}

func TestRatingRepository_EntryIDsAreDeterministic(t *testing.T) {
	repo := NewRatingRepository(testDB(t), zerolog.Nop())
	ctx := context.Background()

	entries, heads := testEntries("m1")
	_, err := repo.AppendEntries(ctx, entries, heads)
	require.NoError(t, err)

	history, err := repo.GetHistory(ctx, "anna")
	require.NoError(t, err)
	require.Len(t, history, 1)
	firstID := history[0].ID
	assert.Equal(t, entryID("m1", 1, "anna"), firstID)

	// Delete-and-reinsert mints the same id, so consecutive full
	// rebuilds agree entry for entry.
	require.NoError(t, repo.ReplaceAllHistory(ctx, entries, heads))
	history, err = repo.GetHistory(ctx, "anna")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, firstID, history[0].ID)
}

func TestRatingRepository_ReplaceAllHistorySwapsEverything(t *testing.T) {
	repo := NewRatingRepository(testDB(t), zerolog.Nop())
	ctx := context.Background()

	old, oldHeads := testEntries("m1")
	_, err := repo.AppendEntries(ctx, old, oldHeads)
	require.NoError(t, err)

	replacement, replacementHeads := testEntries("m2")
	require.NoError(t, repo.ReplaceAllHistory(ctx, replacement, replacementHeads))

	history, err := repo.GetHistory(ctx, "anna")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "m2", history[0].MatchID)

	rating, err := repo.GetRating(ctx, "anna")
	require.NoError(t, err)
	assert.Equal(t, 1, rating.GamesPlayed)
}
