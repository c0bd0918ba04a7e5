package jass

import (
	"testing"

	"jassguru/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func points(top, bottom int) *domain.TeamScores {
	return &domain.TeamScores{Top: top, Bottom: bottom}
}

func TestEvaluateRounds_SkunkGame(t *testing.T) {
	// Top shuts bottom out completely and passes the berg threshold on
	// the way. The round flags carry berg and matsch; the game win adds
	// the sieg stroke on top.
	rounds := []domain.Round{
		{Index: 0, Trumpf: "eicheln", DeclarerSeat: 1, Points: points(80, 0)},
		{Index: 1, Trumpf: "schellen", DeclarerSeat: 2, Points: points(77, 0), Strich: []domain.StrichInfo{
			{Team: domain.TeamTop, Type: domain.StrichBerg},
			{Team: domain.TeamTop, Type: domain.StrichMatsch},
		}},
	}

	tally, warnings := EvaluateRounds(rounds, domain.TeamTop)
	assert.Empty(t, warnings)

	assert.Equal(t, 157, tally.Points.Top)
	assert.Equal(t, 0, tally.Points.Bottom)
	assert.Equal(t, 2, tally.RoundsCounted)

	assert.Equal(t, 1, tally.Striche.Top.Sieg)
	assert.Equal(t, 1, tally.Striche.Top.Berg)
	assert.Equal(t, 1, tally.Striche.Top.Matsch)
	assert.Equal(t, 0, tally.Striche.Bottom.Sum())
	assert.Equal(t, 3, tally.Striche.Top.Sum())
}

func TestEvaluateRounds_MultipleStrichePerRound(t *testing.T) {
	// A single round can trigger several stroke categories at once; all
	// of them count.
	rounds := []domain.Round{
		{Index: 0, Trumpf: "rosen", DeclarerSeat: 3, Points: points(0, 157), Strich: []domain.StrichInfo{
			{Team: domain.TeamBottom, Type: domain.StrichMatsch},
			{Team: domain.TeamBottom, Type: domain.StrichKontermatsch},
		}},
	}

	tally, warnings := EvaluateRounds(rounds, domain.TeamBottom)
	assert.Empty(t, warnings)
	assert.Equal(t, 1, tally.Striche.Bottom.Matsch)
	assert.Equal(t, 1, tally.Striche.Bottom.Kontermatsch)
	assert.Equal(t, 1, tally.Striche.Bottom.Sieg)
}

func TestEvaluateRounds_SkipsMalformedRounds(t *testing.T) {
	rounds := []domain.Round{
		{Index: 0, Trumpf: "", Points: points(50, 100)},
		{Index: 1, Trumpf: "schilten", DeclarerSeat: 4, Points: nil},
		{Index: 2, Trumpf: "eicheln", DeclarerSeat: 1, Points: points(90, 67)},
	}

	tally, warnings := EvaluateRounds(rounds, domain.TeamTop)
	require.Len(t, warnings, 2)
	assert.Equal(t, 0, warnings[0].RoundIndex)
	assert.Equal(t, 1, warnings[1].RoundIndex)

	// Only the well-formed round counts.
	assert.Equal(t, 1, tally.RoundsCounted)
	assert.Equal(t, 90, tally.Points.Top)
	assert.Equal(t, 67, tally.Points.Bottom)
}

func TestEvaluateRounds_TrumpfTracking(t *testing.T) {
	rounds := []domain.Round{
		{Index: 0, Trumpf: "eicheln", DeclarerSeat: 1, Points: points(100, 57)},
		{Index: 1, Trumpf: "eicheln", DeclarerSeat: 3, Points: points(60, 97)},
		{Index: 2, Trumpf: "obenabe", DeclarerSeat: 1, Points: points(120, 37)},
	}

	tally, _ := EvaluateRounds(rounds, domain.TeamTop)
	assert.Equal(t, map[string]int{"eicheln": 2, "obenabe": 1}, tally.TrumpfCounts)
	assert.Equal(t, map[string]int{"eicheln": 1, "obenabe": 1}, tally.TrumpfBySeat[1])
	assert.Equal(t, map[string]int{"eicheln": 1}, tally.TrumpfBySeat[3])
}

func TestVerifyStriche(t *testing.T) {
	derived := domain.StricheTotals{
		Top: domain.StricheRecord{Sieg: 1, Matsch: 1},
	}
	recorded := domain.StricheTotals{
		Top: domain.StricheRecord{Sieg: 1},
	}

	warnings := VerifyStriche(derived, recorded)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0].Reason, "matsch")

	assert.Empty(t, VerifyStriche(derived, derived))
}
