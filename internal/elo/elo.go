// Package elo implements the team-based rating model used for Jass games:
// a classic logistic expected-score curve over the two team mean ratings,
// a fixed K-factor, and a zero-sum team delta split equally between the
// two teammates on each side.
package elo

import (
	"errors"
	"math"

	"jassguru/internal/constants"
	"jassguru/internal/domain"
)

var ErrMissingRating = errors.New("elo: missing rating for participant")

type Config struct {
	KFactor       float64
	DefaultRating float64
	Scale         float64
}

func DefaultConfig() Config {
	return Config{
		KFactor:       constants.EloKFactor,
		DefaultRating: constants.EloDefaultRating,
		Scale:         constants.EloScale,
	}
}

// ExpectedScore returns the probability of side A beating side B given the
// two team ratings.
func ExpectedScore(ratingA, ratingB, scale float64) float64 {
	return 1 / (1 + math.Pow(10, (ratingB-ratingA)/scale))
}

// TeamRating is the mean of the two teammates' ratings.
func TeamRating(a, b float64) float64 {
	return (a + b) / 2
}

// PlayerDelta is the signed rating change of one player in one game.
type PlayerDelta struct {
	PlayerID string
	Delta    float64
	Rating   float64 // rating after applying the delta
}

// GameUpdate computes the four per-player deltas for one completed game.
// ratings must contain a current rating for all four participants; a
// missing rating fails the whole event since a fabricated baseline would
// break the zero-sum guarantee for the other three players.
//
// The winning team's delta is K * (1 - E) where E is its expected score;
// each teammate receives half of the team delta, so the four deltas sum
// to exactly zero.
func GameUpdate(cfg Config, teams domain.TeamRosters, winner domain.TeamSide, ratings map[string]float64) ([4]PlayerDelta, error) {
	var out [4]PlayerDelta

	for _, id := range teams.All() {
		if _, ok := ratings[id]; !ok {
			return out, ErrMissingRating
		}
	}

	top := teams.Side(domain.TeamTop)
	bottom := teams.Side(domain.TeamBottom)

	topRating := TeamRating(ratings[top[0]], ratings[top[1]])
	bottomRating := TeamRating(ratings[bottom[0]], ratings[bottom[1]])

	expectedTop := ExpectedScore(topRating, bottomRating, cfg.Scale)
	scoreTop := 0.0
	if winner == domain.TeamTop {
		scoreTop = 1.0
	}

	teamDeltaTop := cfg.KFactor * (scoreTop - expectedTop)
	perPlayerTop := teamDeltaTop / 2
	perPlayerBottom := -perPlayerTop

	for i, id := range top {
		out[i] = PlayerDelta{
			PlayerID: id,
			Delta:    perPlayerTop,
			Rating:   ratings[id] + perPlayerTop,
		}
	}
	for i, id := range bottom {
		out[2+i] = PlayerDelta{
			PlayerID: id,
			Delta:    perPlayerBottom,
			Rating:   ratings[id] + perPlayerBottom,
		}
	}

	return out, nil
}

// Tier is one step of the rating ladder shown next to leaderboard entries.
type Tier struct {
	Name  string
	Emoji string
}

var tierLadder = []struct {
	min  float64
	tier Tier
}{
	{150, Tier{"Göpf Egg", "👼"}},
	{145, Tier{"Jassgott", "🔱"}},
	{140, Tier{"Jasskönig", "👑"}},
	{135, Tier{"Grossmeister", "🏆"}},
	{130, Tier{"Jasser mit Auszeichnung", "🎖"}},
	{125, Tier{"Diamantjasser II", "💎"}},
	{120, Tier{"Diamantjasser I", "💍"}},
	{115, Tier{"Goldjasser", "🥇"}},
	{110, Tier{"Silberjasser", "🥈"}},
	{105, Tier{"Bronzejasser", "🥉"}},
	{100, Tier{"Jassstudent", "👨‍🎓"}},
	{95, Tier{"Kleeblatt vierblättrig", "🍀"}},
	{90, Tier{"Kleeblatt dreiblättrig", "☘️"}},
	{85, Tier{"Sprössling", "🌱"}},
	{80, Tier{"Hahn", "🐓"}},
	{75, Tier{"Huhn", "🐔"}},
	{70, Tier{"Kücken", "🐥"}},
	{65, Tier{"Chlaus", "🎅"}},
	{60, Tier{"Chäs", "🧀"}},
	{55, Tier{"Ente", "🦆"}},
	{50, Tier{"Gurke", "🥒"}},
}

// TierForRating maps a rating to its ladder tier.
func TierForRating(rating float64) Tier {
	for _, step := range tierLadder {
		if rating >= step.min {
			return step.tier
		}
	}
	return Tier{"Just Egg", "🥚"}
}
