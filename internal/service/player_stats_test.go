package service

import (
	"testing"
	"time"

	"jassguru/internal/domain"
	"jassguru/internal/jass"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var foldResolver = jass.Resolver{
	"anna": "anna", "beat": "beat", "cleo": "cleo", "dani": "dani", "emil": "emil",
}

// testSession builds a one-or-more-game session with a fixed roster. Each
// score pair is one game; the game winner follows the higher score.
func testSession(id string, day int, winnerKey domain.WinnerKey, scores ...[2]int) *domain.MatchRecord {
	started := time.Date(2025, 5, day, 19, 0, 0, 0, time.UTC)
	match := &domain.MatchRecord{
		ID:      id,
		GroupID: "group-1",
		Kind:    domain.MatchKindSession,
		Teams: &domain.RawRosters{
			Top:    []string{"anna", "beat"},
			Bottom: []string{"cleo", "dani"},
		},
		WinnerTeamKey: winnerKey,
		StartedAt:     started,
		EndedAt:       started.Add(2 * time.Hour),
	}
	for i, s := range scores {
		winner := domain.TeamTop
		if s[1] > s[0] {
			winner = domain.TeamBottom
		}
		match.Games = append(match.Games, domain.RawGame{
			FinalScores: domain.TeamScores{Top: s[0], Bottom: s[1]},
			WinnerTeam:  winner,
			CompletedAt: started.Add(time.Duration(i+1) * time.Hour),
		})
	}
	return match
}

func foldAll(t *testing.T, playerID string, matches ...*domain.MatchRecord) *domain.PlayerComputedStats {
	t.Helper()
	stats := domain.NewPlayerComputedStats(playerID)
	for _, match := range matches {
		outcomes, _, err := jass.Normalize(match, foldResolver)
		require.NoError(t, err)
		FoldMatchIntoPlayer(stats, match, outcomes, jass.TrumpfCountsByPlayer(match, outcomes))
	}
	return stats
}

func TestFoldMatchIntoPlayer_Basics(t *testing.T) {
	stats := foldAll(t, "anna",
		testSession("m1", 1, domain.WinnerTop, [2]int{2500, 2000}, [2]int{2500, 1800}))

	assert.Equal(t, 1, stats.TotalSessions)
	assert.Equal(t, 2, stats.TotalGames)
	assert.Equal(t, 1, stats.SessionWins)
	assert.Equal(t, 2, stats.GameWins)
	assert.Equal(t, 0, stats.GameLosses)
	assert.Equal(t, 5000, stats.TotalPointsMade)
	assert.Equal(t, 3800, stats.TotalPointsReceived)
	assert.Equal(t, 1200, stats.TotalPointsDifference)
	assert.InDelta(t, 2500, stats.AvgPointsPerGame, 1e-9)
	assert.InDelta(t, 1.0, stats.GameWinRate.Rate, 1e-9)

	require.Len(t, stats.PartnerAggregates, 1)
	p := stats.PartnerAggregates[0]
	assert.Equal(t, "beat", p.PartnerID)
	assert.Equal(t, 2, p.GamesPlayedWith)
	assert.Equal(t, 1, p.SessionsPlayedWith)
	assert.Equal(t, 1, p.SessionsWonWith)

	require.Len(t, stats.OpponentAggregates, 2)
	assert.Equal(t, "cleo", stats.OpponentAggregates[0].OpponentID)
	assert.Equal(t, 2, stats.OpponentAggregates[0].GamesPlayedAgainst)
}

func TestFoldMatchIntoPlayer_TiesExcludedFromWinRate(t *testing.T) {
	stats := foldAll(t, "anna",
		testSession("m1", 1, domain.WinnerTop, [2]int{2500, 2000}),
		testSession("m2", 2, domain.WinnerDraw, [2]int{2000, 2500}),
		testSession("m3", 3, domain.WinnerBottom, [2]int{1800, 2500}),
	)

	assert.Equal(t, 1, stats.SessionWins)
	assert.Equal(t, 1, stats.SessionTies)
	assert.Equal(t, 1, stats.SessionLosses)

	// A tie is neither won nor lost: 1 of 2 decided sessions.
	assert.Equal(t, 2, stats.SessionWinRate.Total)
	assert.InDelta(t, 0.5, stats.SessionWinRate.Rate, 1e-9)
}

func TestFoldMatchIntoPlayer_Streaks(t *testing.T) {
	stats := foldAll(t, "anna",
		testSession("m1", 1, domain.WinnerTop, [2]int{2500, 2000}),
		testSession("m2", 2, domain.WinnerTop, [2]int{2500, 2100}),
		testSession("m3", 3, domain.WinnerDraw, [2]int{2000, 2500}),
		testSession("m4", 4, domain.WinnerBottom, [2]int{1700, 2500}),
		testSession("m5", 5, domain.WinnerTop, [2]int{2500, 2200}),
	)

	// The draw at m3 ends the win streak but not the undefeated one;
	// the loss at m4 ends both.
	require.NotNil(t, stats.LongestWinStreakSessions)
	assert.Equal(t, 2, stats.LongestWinStreakSessions.Value)
	assert.Equal(t, "m1", stats.LongestWinStreakSessions.StartSessionID)
	assert.Equal(t, "m2", stats.LongestWinStreakSessions.EndSessionID)

	require.NotNil(t, stats.LongestUndefeatedStreakSessions)
	assert.Equal(t, 3, stats.LongestUndefeatedStreakSessions.Value)
	assert.Equal(t, "m1", stats.LongestUndefeatedStreakSessions.StartSessionID)
	assert.Equal(t, "m3", stats.LongestUndefeatedStreakSessions.EndSessionID)

	require.NotNil(t, stats.LongestWinlessStreakSessions)
	assert.Equal(t, 2, stats.LongestWinlessStreakSessions.Value)
	assert.Equal(t, "m3", stats.LongestWinlessStreakSessions.StartSessionID)

	// m5 restarted the win streak but did not beat the record.
	assert.Equal(t, 1, stats.Streaks.SessionWin)
	assert.Equal(t, "m5", stats.Streaks.SessionWinStartID)
}

func TestFoldMatchIntoPlayer_HighlightKeepsFirstOnTie(t *testing.T) {
	stats := foldAll(t, "anna",
		testSession("m1", 1, domain.WinnerTop, [2]int{2500, 2000}),
		testSession("m2", 2, domain.WinnerTop, [2]int{2500, 2000}),
	)

	require.NotNil(t, stats.HighestPointsSession)
	assert.Equal(t, 2500, stats.HighestPointsSession.Value)
	assert.Equal(t, "m1", stats.HighestPointsSession.RelatedID)

	// A strictly better value does take the record over.
	more := testSession("m3", 3, domain.WinnerTop, [2]int{2600, 2000})
	outcomes, _, err := jass.Normalize(more, foldResolver)
	require.NoError(t, err)
	FoldMatchIntoPlayer(stats, more, outcomes, nil)
	assert.Equal(t, "m3", stats.HighestPointsSession.RelatedID)
	assert.Equal(t, 2600, stats.HighestPointsSession.Value)
}

func TestFoldMatchIntoPlayer_TournamentCountsOnceAtSessionLevel(t *testing.T) {
	tournament := &domain.MatchRecord{
		ID:      "tour-1",
		GroupID: "group-1",
		Kind:    domain.MatchKindTournament,
		Games: []domain.RawGame{
			{
				Teams:       &domain.RawRosters{Top: []string{"anna", "beat"}, Bottom: []string{"cleo", "dani"}},
				FinalScores: domain.TeamScores{Top: 2500, Bottom: 1000},
				WinnerTeam:  domain.TeamTop,
			},
			{
				Teams:       &domain.RawRosters{Top: []string{"anna", "cleo"}, Bottom: []string{"beat", "emil"}},
				FinalScores: domain.TeamScores{Top: 2500, Bottom: 900},
				WinnerTeam:  domain.TeamTop,
			},
			{
				Teams:       &domain.RawRosters{Top: []string{"anna", "dani"}, Bottom: []string{"beat", "cleo"}},
				FinalScores: domain.TeamScores{Top: 800, Bottom: 2500},
				WinnerTeam:  domain.TeamBottom,
			},
		},
		StartedAt: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
		EndedAt:   time.Date(2025, 6, 1, 17, 0, 0, 0, time.UTC),
	}

	stats := foldAll(t, "anna", tournament)

	assert.Equal(t, 1, stats.TotalSessions)
	assert.Equal(t, 1, stats.TotalTournaments)
	assert.Equal(t, 3, stats.TotalGames)
	assert.Equal(t, 3, stats.TotalTournamentGames)
	assert.Equal(t, 2, stats.GameWins)
	assert.Equal(t, 1, stats.GameLosses)

	// 2 wins against 1 loss decides the tournament sitting for anna.
	assert.Equal(t, 1, stats.SessionWins)

	// Rotating pairings never count as fixed-roster session partners.
	for _, p := range stats.PartnerAggregates {
		assert.Equal(t, 0, p.SessionsPlayedWith)
	}
}

func TestFoldMatchIntoPlayer_IncrementalMatchesFull(t *testing.T) {
	matches := []*domain.MatchRecord{
		testSession("m1", 1, domain.WinnerTop, [2]int{2500, 2000}, [2]int{1800, 2500}),
		testSession("m2", 2, domain.WinnerDraw, [2]int{2500, 2100}, [2]int{2000, 2500}),
		testSession("m3", 3, domain.WinnerBottom, [2]int{1500, 2500}),
	}

	// Incremental: one fold per match, round-tripping the document
	// through its stored JSON form between folds.
	incremental := domain.NewPlayerComputedStats("anna")
	for _, match := range matches {
		stored, err := json.Marshal(incremental)
		require.NoError(t, err)
		incremental = &domain.PlayerComputedStats{}
		require.NoError(t, json.Unmarshal(stored, incremental))

		outcomes, _, err := jass.Normalize(match, foldResolver)
		require.NoError(t, err)
		FoldMatchIntoPlayer(incremental, match, outcomes, jass.TrumpfCountsByPlayer(match, outcomes))
	}

	// Full: a single pass over the whole history.
	full := foldAll(t, "anna", matches...)

	incDoc, err := json.Marshal(incremental)
	require.NoError(t, err)
	fullDoc, err := json.Marshal(full)
	require.NoError(t, err)
	assert.Equal(t, string(fullDoc), string(incDoc), "incremental and full folds must produce byte-identical documents")
}

func TestFoldMatchIntoPlayer_IgnoresNonParticipants(t *testing.T) {
	stats := foldAll(t, "emil",
		testSession("m1", 1, domain.WinnerTop, [2]int{2500, 2000}))

	assert.Equal(t, 0, stats.TotalSessions)
	assert.Equal(t, 0, stats.TotalGames)
}
