package elo

import (
	"testing"

	"jassguru/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTeams = domain.TeamRosters{
	Top:    [2]string{"anna", "beat"},
	Bottom: [2]string{"cleo", "dani"},
}

func TestExpectedScore(t *testing.T) {
	assert.InDelta(t, 0.5, ExpectedScore(100, 100, 1000), 1e-9)

	// Complementary probabilities.
	e := ExpectedScore(120, 95, 1000)
	assert.InDelta(t, 1.0, e+ExpectedScore(95, 120, 1000), 1e-9)
	assert.Greater(t, e, 0.5)
}

func TestGameUpdate_EqualRatings(t *testing.T) {
	cfg := DefaultConfig()
	ratings := map[string]float64{"anna": 100, "beat": 100, "cleo": 100, "dani": 100}

	deltas, err := GameUpdate(cfg, testTeams, domain.TeamTop, ratings)
	require.NoError(t, err)

	// Expected score is 0.5, so the winning team gains K * 0.5 = 8,
	// split as +4 per winner and -4 per loser.
	for _, d := range deltas[:2] {
		assert.InDelta(t, 4.0, d.Delta, 1e-9)
		assert.InDelta(t, 104.0, d.Rating, 1e-9)
	}
	for _, d := range deltas[2:] {
		assert.InDelta(t, -4.0, d.Delta, 1e-9)
		assert.InDelta(t, 96.0, d.Rating, 1e-9)
	}
}

func TestGameUpdate_ZeroSum(t *testing.T) {
	cfg := DefaultConfig()
	cases := []struct {
		name    string
		ratings map[string]float64
		winner  domain.TeamSide
	}{
		{"equal ratings top wins", map[string]float64{"anna": 100, "beat": 100, "cleo": 100, "dani": 100}, domain.TeamTop},
		{"favorites lose", map[string]float64{"anna": 140, "beat": 130, "cleo": 90, "dani": 85}, domain.TeamBottom},
		{"underdogs lose", map[string]float64{"anna": 80, "beat": 70, "cleo": 120, "dani": 125}, domain.TeamTop},
		{"mixed teams", map[string]float64{"anna": 150, "beat": 60, "cleo": 100, "dani": 110}, domain.TeamBottom},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			deltas, err := GameUpdate(cfg, testTeams, tc.winner, tc.ratings)
			require.NoError(t, err)

			sum := 0.0
			for _, d := range deltas {
				sum += d.Delta
			}
			assert.InDelta(t, 0.0, sum, 1e-9, "the four deltas of one game must sum to zero")

			// Teammates share the delta equally.
			assert.InDelta(t, deltas[0].Delta, deltas[1].Delta, 1e-9)
			assert.InDelta(t, deltas[2].Delta, deltas[3].Delta, 1e-9)
		})
	}
}

func TestGameUpdate_UpsetPaysMore(t *testing.T) {
	cfg := DefaultConfig()
	favorites := map[string]float64{"anna": 140, "beat": 140, "cleo": 100, "dani": 100}

	expected, err := GameUpdate(cfg, testTeams, domain.TeamTop, favorites)
	require.NoError(t, err)
	upset, err := GameUpdate(cfg, testTeams, domain.TeamBottom, favorites)
	require.NoError(t, err)

	// Winning as the favorite pays less than winning as the underdog.
	assert.Less(t, expected[0].Delta, upset[2].Delta)
	assert.Greater(t, expected[0].Delta, 0.0)
	assert.Greater(t, upset[2].Delta, 0.0)
}

func TestGameUpdate_MissingRating(t *testing.T) {
	cfg := DefaultConfig()
	ratings := map[string]float64{"anna": 100, "beat": 100, "cleo": 100}

	_, err := GameUpdate(cfg, testTeams, domain.TeamTop, ratings)
	require.ErrorIs(t, err, ErrMissingRating)
}

func TestTierForRating(t *testing.T) {
	cases := []struct {
		rating float64
		want   string
	}{
		{160, "Göpf Egg"},
		{150, "Göpf Egg"},
		{149.9, "Jassgott"},
		{100, "Jassstudent"},
		{104.9, "Jassstudent"},
		{99.9, "Kleeblatt vierblättrig"},
		{50, "Gurke"},
		{49.9, "Just Egg"},
		{-20, "Just Egg"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, TierForRating(tc.rating).Name, "rating %.1f", tc.rating)
	}
}
