// Package jass holds the pure scoring logic: turning a match's raw games
// and round lists into uniform GameOutcome records.
package jass

import (
	"fmt"

	"jassguru/internal/domain"
)

// Warning records a round that was skipped or a summary field that did not
// match the re-derived value. Warnings never abort an otherwise valid game.
type Warning struct {
	MatchID    string `json:"matchId,omitempty"`
	GameNumber int    `json:"gameNumber,omitempty"`
	RoundIndex int    `json:"roundIndex,omitempty"`
	Reason     string `json:"reason"`
}

func (w Warning) String() string {
	return fmt.Sprintf("match=%s game=%d round=%d: %s", w.MatchID, w.GameNumber, w.RoundIndex, w.Reason)
}

// GameTally is the evaluator's result for one game: per-team point totals,
// stroke counts and meld totals derived from the ordered round list.
type GameTally struct {
	Points        domain.TeamScores
	WeisPoints    domain.TeamScores
	Striche       domain.StricheTotals
	TrumpfCounts  map[string]int         // suit -> rounds declared
	TrumpfBySeat  map[int]map[string]int // declarer seat -> suit -> count
	RoundsCounted int
}

// EvaluateRounds folds a game's round list into a GameTally. The winning
// side is credited one sieg stroke on top of whatever the rounds carry, so
// a 157:0 game yields both a sieg and a matsch for the winner. A round
// with no declared trump or missing point data is skipped with a warning
// rather than poisoning the rest of the game.
func EvaluateRounds(rounds []domain.Round, winner domain.TeamSide) (GameTally, []Warning) {
	tally := GameTally{
		TrumpfCounts: map[string]int{},
		TrumpfBySeat: map[int]map[string]int{},
	}
	var warnings []Warning

	for _, round := range rounds {
		if round.Trumpf == "" {
			warnings = append(warnings, Warning{RoundIndex: round.Index, Reason: "round has no declared trump, skipped"})
			continue
		}
		if round.Points == nil {
			warnings = append(warnings, Warning{RoundIndex: round.Index, Reason: "round has no point data, skipped"})
			continue
		}

		tally.RoundsCounted++
		tally.Points.Top += round.Points.Top
		tally.Points.Bottom += round.Points.Bottom
		tally.WeisPoints.Top += round.WeisPoints.Top
		tally.WeisPoints.Bottom += round.WeisPoints.Bottom

		tally.TrumpfCounts[round.Trumpf]++
		if round.DeclarerSeat > 0 {
			if tally.TrumpfBySeat[round.DeclarerSeat] == nil {
				tally.TrumpfBySeat[round.DeclarerSeat] = map[string]int{}
			}
			tally.TrumpfBySeat[round.DeclarerSeat][round.Trumpf]++
		}

		// A round may trigger more than one stroke category at once; all
		// of them are credited, not just the first.
		for _, strich := range round.Strich {
			switch strich.Team {
			case domain.TeamTop:
				tally.Striche.Top.Add(strich.Type, 1)
			case domain.TeamBottom:
				tally.Striche.Bottom.Add(strich.Type, 1)
			default:
				warnings = append(warnings, Warning{RoundIndex: round.Index, Reason: fmt.Sprintf("strich with unknown team %q, skipped", strich.Team)})
			}
		}
	}

	switch winner {
	case domain.TeamTop:
		tally.Striche.Top.Sieg++
	case domain.TeamBottom:
		tally.Striche.Bottom.Sieg++
	}

	return tally, warnings
}

var strichTypes = []domain.StrichType{
	domain.StrichSieg,
	domain.StrichBerg,
	domain.StrichMatsch,
	domain.StrichSchneider,
	domain.StrichKontermatsch,
}

// VerifyStriche compares a re-derived stroke tally against the counts the
// capture flow recorded on the game. A mismatch is reported, never
// silently overwritten; historically these drifts are exactly what manual
// repair passes kept fixing by hand.
func VerifyStriche(derived, recorded domain.StricheTotals) []Warning {
	var warnings []Warning
	for _, side := range []domain.TeamSide{domain.TeamTop, domain.TeamBottom} {
		d := derived.Side(side)
		r := recorded.Side(side)
		for _, t := range strichTypes {
			if d.Get(t) != r.Get(t) {
				warnings = append(warnings, Warning{
					Reason: fmt.Sprintf("striche mismatch on %s/%s: derived %d, recorded %d", side, t, d.Get(t), r.Get(t)),
				})
			}
		}
	}
	return warnings
}
