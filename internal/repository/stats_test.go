package repository

import (
	"context"
	"testing"

	"jassguru/internal/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatsRepository_ContributionLedger(t *testing.T) {
	repo := NewStatsRepository(testDB(t), zerolog.Nop())
	ctx := context.Background()

	stats := domain.NewPlayerComputedStats("anna")
	stats.TotalSessions = 1

	applied, err := repo.ApplyPlayerStats(ctx, "anna", "m1", stats)
	require.NoError(t, err)
	assert.True(t, applied)

	// Replaying the same match must not write the (corrupted) document.
	stats.TotalSessions = 99
	applied, err = repo.ApplyPlayerStats(ctx, "anna", "m1", stats)
	require.NoError(t, err)
	assert.False(t, applied)

	stored, err := repo.GetPlayerStats(ctx, "anna")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, 1, stored.TotalSessions)

	has, err := repo.HasContribution(ctx, "m1", "anna")
	require.NoError(t, err)
	assert.True(t, has)
	has, err = repo.HasContribution(ctx, "m2", "anna")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestStatsRepository_FullRecomputeBypassesLedger(t *testing.T) {
	repo := NewStatsRepository(testDB(t), zerolog.Nop())
	ctx := context.Background()

	stats := domain.NewPlayerComputedStats("anna")
	stats.TotalSessions = 1
	_, err := repo.ApplyPlayerStats(ctx, "anna", "m1", stats)
	require.NoError(t, err)

	// A rebuild writes with no contribution key and then replaces the
	// ledger with the match set it was derived from.
	rebuilt := domain.NewPlayerComputedStats("anna")
	rebuilt.TotalSessions = 2
	applied, err := repo.ApplyPlayerStats(ctx, "anna", "", rebuilt)
	require.NoError(t, err)
	assert.True(t, applied)
	require.NoError(t, repo.ReplaceContributions(ctx, "anna", []string{"m1", "m2"}))

	stored, err := repo.GetPlayerStats(ctx, "anna")
	require.NoError(t, err)
	assert.Equal(t, 2, stored.TotalSessions)

	for _, matchID := range []string{"m1", "m2"} {
		has, err := repo.HasContribution(ctx, matchID, "anna")
		require.NoError(t, err)
		assert.True(t, has, "ledger must cover %s", matchID)
	}
}

func TestStatsRepository_GroupDocs(t *testing.T) {
	repo := NewStatsRepository(testDB(t), zerolog.Nop())
	ctx := context.Background()

	missing, err := repo.GetGroupStats(ctx, "group-1")
	require.NoError(t, err)
	assert.Nil(t, missing)

	stats := domain.NewGroupComputedStats("group-1")
	stats.SessionCount = 3
	stats.GameCount = 5
	applied, err := repo.ApplyGroupStats(ctx, "group-1", "m1", stats)
	require.NoError(t, err)
	assert.True(t, applied)

	stored, err := repo.GetGroupStats(ctx, "group-1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, 3, stored.SessionCount)
	assert.Equal(t, 5, stored.GameCount)
}
