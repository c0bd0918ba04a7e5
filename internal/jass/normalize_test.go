package jass

import (
	"testing"
	"time"

	"jassguru/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testResolver = Resolver{
	"anna": "anna", "beat": "beat", "cleo": "cleo", "dani": "dani", "emil": "emil",
	"uid-123": "anna",
}

func sessionMatch() *domain.MatchRecord {
	return &domain.MatchRecord{
		ID:      "match-1",
		GroupID: "group-1",
		Kind:    domain.MatchKindSession,
		Teams: &domain.RawRosters{
			Top:    []string{"anna", "beat"},
			Bottom: []string{"cleo", "dani"},
		},
		Games: []domain.RawGame{
			{
				FinalScores: domain.TeamScores{Top: 2500, Bottom: 2100},
				WinnerTeam:  domain.TeamTop,
				CompletedAt: time.Date(2025, 3, 1, 20, 0, 0, 0, time.UTC),
			},
			{
				FinalScores: domain.TeamScores{Top: 1900, Bottom: 2500},
				WinnerTeam:  domain.TeamBottom,
				CompletedAt: time.Date(2025, 3, 1, 21, 0, 0, 0, time.UTC),
			},
		},
		WinnerTeamKey: domain.WinnerDraw,
		StartedAt:     time.Date(2025, 3, 1, 19, 0, 0, 0, time.UTC),
		EndedAt:       time.Date(2025, 3, 1, 21, 30, 0, 0, time.UTC),
	}
}

func TestNormalize_Session(t *testing.T) {
	outcomes, warnings, err := Normalize(sessionMatch(), testResolver)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	require.Len(t, outcomes, 2)

	// Session games share the match-level roster and number from one.
	for i, o := range outcomes {
		assert.Equal(t, i+1, o.GameNumber)
		assert.Equal(t, [2]string{"anna", "beat"}, o.Teams.Top)
		assert.Equal(t, [2]string{"cleo", "dani"}, o.Teams.Bottom)
		assert.Equal(t, "match-1", o.MatchID)
	}
	assert.Equal(t, domain.TeamTop, outcomes[0].WinnerTeam)
	assert.Equal(t, domain.TeamBottom, outcomes[1].WinnerTeam)
}

func TestNormalize_ResolvesTransientIDs(t *testing.T) {
	match := sessionMatch()
	match.Teams.Top = []string{"uid-123", "beat"}

	outcomes, _, err := Normalize(match, testResolver)
	require.NoError(t, err)
	assert.Equal(t, "anna", outcomes[0].Teams.Top[0])
}

func TestNormalize_UnresolvedPlayerFailsWholeMatch(t *testing.T) {
	match := sessionMatch()
	match.Teams.Bottom = []string{"cleo", "ghost"}

	outcomes, _, err := Normalize(match, testResolver)
	require.ErrorIs(t, err, ErrUnresolvedPlayer)
	assert.Nil(t, outcomes)
}

func TestNormalize_TournamentRostersRotate(t *testing.T) {
	match := &domain.MatchRecord{
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
				FinalScores: domain.TeamScores{Top: 900, Bottom: 2500},
				WinnerTeam:  domain.TeamBottom,
			},
		},
		EndedAt: time.Date(2025, 4, 5, 18, 0, 0, 0, time.UTC),
	}

	outcomes, _, err := Normalize(match, testResolver)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.Equal(t, [2]string{"anna", "beat"}, outcomes[0].Teams.Top)
	assert.Equal(t, [2]string{"anna", "cleo"}, outcomes[1].Teams.Top)
	assert.Equal(t, [2]string{"beat", "emil"}, outcomes[1].Teams.Bottom)
}

func TestNormalize_WinnerFallbackFromScores(t *testing.T) {
	match := sessionMatch()
	match.Games[0].WinnerTeam = ""

	outcomes, _, err := Normalize(match, testResolver)
	require.NoError(t, err)
	assert.Equal(t, domain.TeamTop, outcomes[0].WinnerTeam)
}

func TestNormalize_RederivesFromRounds(t *testing.T) {
	match := sessionMatch()
	match.Games = match.Games[:1]
	match.Games[0].Rounds = []domain.Round{
		{Index: 0, Trumpf: "eicheln", DeclarerSeat: 1, Points: points(100, 57)},
		{Index: 1, Trumpf: "rosen", DeclarerSeat: 2, Points: points(120, 37), Strich: []domain.StrichInfo{
			{Team: domain.TeamTop, Type: domain.StrichBerg},
		}},
	}
	// The recorded summary disagrees with the rounds; the rounds win.
	match.Games[0].FinalScores = domain.TeamScores{Top: 9999, Bottom: 0}

	outcomes, _, err := Normalize(match, testResolver)
	require.NoError(t, err)
	assert.Equal(t, 220, outcomes[0].FinalScores.Top)
	assert.Equal(t, 94, outcomes[0].FinalScores.Bottom)
	assert.Equal(t, 1, outcomes[0].Striche.Top.Berg)
	assert.Equal(t, 1, outcomes[0].Striche.Top.Sieg)
}

func TestNormalize_StricheMismatchWarns(t *testing.T) {
	match := sessionMatch()
	match.Games = match.Games[:1]
	match.Games[0].Rounds = []domain.Round{
		{Index: 0, Trumpf: "eicheln", DeclarerSeat: 1, Points: points(157, 0), Strich: []domain.StrichInfo{
			{Team: domain.TeamTop, Type: domain.StrichMatsch},
		}},
	}
	match.Games[0].FinalStriche = domain.StricheTotals{
		Top: domain.StricheRecord{Sieg: 1, Matsch: 2},
	}

	_, warnings, err := Normalize(match, testResolver)
	require.NoError(t, err)
	require.NotEmpty(t, warnings)
	assert.Contains(t, warnings[0].Reason, "matsch")
}

func TestNormalize_CompletedAtFallsBackToMatchEnd(t *testing.T) {
	match := sessionMatch()
	match.Games[1].CompletedAt = time.Time{}

	outcomes, _, err := Normalize(match, testResolver)
	require.NoError(t, err)
	assert.Equal(t, match.EndedAt, outcomes[1].CompletedAt)
}

func TestNormalize_NoGames(t *testing.T) {
	match := sessionMatch()
	match.Games = nil

	_, _, err := Normalize(match, testResolver)
	require.Error(t, err)
}

func TestTrumpfCountsByPlayer(t *testing.T) {
	match := sessionMatch()
	match.Games = match.Games[:1]
	match.Games[0].Rounds = []domain.Round{
		{Index: 0, Trumpf: "eicheln", DeclarerSeat: 1, Points: points(100, 57)},
		{Index: 1, Trumpf: "eicheln", DeclarerSeat: 1, Points: points(90, 67)},
		{Index: 2, Trumpf: "schellen", DeclarerSeat: 3, Points: points(40, 117)},
	}

	outcomes, _, err := Normalize(match, testResolver)
	require.NoError(t, err)

	counts := TrumpfCountsByPlayer(match, outcomes)
	assert.Equal(t, map[string]int{"eicheln": 2}, counts["anna"])
	assert.Equal(t, map[string]int{"schellen": 1}, counts["cleo"])
	assert.Nil(t, counts["beat"])
}
