package jass

import (
	"errors"
	"fmt"

	"jassguru/internal/domain"
)

// ErrUnresolvedPlayer means a roster id could not be mapped to a canonical
// player id. The whole match fails: silently dropping a participant would
// corrupt the zero-sum rating invariant for the other three.
var ErrUnresolvedPlayer = errors.New("jass: unresolved player id")

var (
	errNoGames     = errors.New("jass: match contains no games")
	errNoRosters   = errors.New("jass: match has neither session nor game rosters")
	errRosterShape = errors.New("jass: roster does not have two players per side")
)

// Resolver maps transient roster identifiers (auth uids, guest markers) to
// canonical player ids. Canonical ids resolve to themselves.
type Resolver map[string]string

func (r Resolver) resolve(raw string) (string, error) {
	if id, ok := r[raw]; ok && id != "" {
		return id, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnresolvedPlayer, raw)
}

func (r Resolver) resolveRosters(raw *domain.RawRosters) (domain.TeamRosters, error) {
	var teams domain.TeamRosters
	if raw == nil || len(raw.Top) != 2 || len(raw.Bottom) != 2 {
		return teams, errRosterShape
	}
	for i, id := range raw.Top {
		resolved, err := r.resolve(id)
		if err != nil {
			return teams, err
		}
		teams.Top[i] = resolved
	}
	for i, id := range raw.Bottom {
		resolved, err := r.resolve(id)
		if err != nil {
			return teams, err
		}
		teams.Bottom[i] = resolved
	}
	return teams, nil
}

// Normalize converts one raw MatchRecord into the uniform, ordered list of
// GameOutcome records the rest of the engine consumes. Session shapes carry
// one roster valid for all games; tournament shapes carry rosters per pass
// because pairings rotate. Game numbers are 1-based.
//
// Where a game carries its round list the outcome is re-derived from the
// rounds; the recorded summary is only cross-checked. Legacy games without
// rounds fall back to the recorded finals.
func Normalize(match *domain.MatchRecord, resolver Resolver) ([]domain.GameOutcome, []Warning, error) {
	if len(match.Games) == 0 {
		return nil, nil, fmt.Errorf("%w (match %s)", errNoGames, match.ID)
	}

	var sessionTeams *domain.TeamRosters
	if match.Teams != nil {
		resolved, err := resolver.resolveRosters(match.Teams)
		if err != nil {
			return nil, nil, fmt.Errorf("match %s session roster: %w", match.ID, err)
		}
		sessionTeams = &resolved
	}

	outcomes := make([]domain.GameOutcome, 0, len(match.Games))
	var warnings []Warning

	for i, game := range match.Games {
		gameNumber := game.GameNumber
		if gameNumber == 0 {
			gameNumber = i + 1
		}

		var teams domain.TeamRosters
		switch {
		case game.Teams != nil:
			resolved, err := resolver.resolveRosters(game.Teams)
			if err != nil {
				return nil, nil, fmt.Errorf("match %s game %d roster: %w", match.ID, gameNumber, err)
			}
			teams = resolved
		case sessionTeams != nil:
			teams = *sessionTeams
		default:
			return nil, nil, fmt.Errorf("%w (match %s game %d)", errNoRosters, match.ID, gameNumber)
		}

		winner := game.WinnerTeam
		if winner == "" {
			if game.FinalScores.Top >= game.FinalScores.Bottom {
				winner = domain.TeamTop
			} else {
				winner = domain.TeamBottom
			}
		}

		outcome := domain.GameOutcome{
			MatchID:         match.ID,
			GameNumber:      gameNumber,
			Teams:           teams,
			FinalScores:     game.FinalScores,
			WeisPoints:      game.WeisPoints,
			Striche:         game.FinalStriche,
			WinnerTeam:      winner,
			CompletedAt:     game.CompletedAt,
			DurationSeconds: game.DurationSeconds,
			TournamentID:    match.TournamentID,
		}
		if outcome.CompletedAt.IsZero() {
			outcome.CompletedAt = match.EndedAt
		}

		if len(game.Rounds) > 0 {
			tally, roundWarnings := EvaluateRounds(game.Rounds, winner)
			for _, w := range roundWarnings {
				w.MatchID = match.ID
				w.GameNumber = gameNumber
				warnings = append(warnings, w)
			}
			outcome.FinalScores = tally.Points
			outcome.WeisPoints = tally.WeisPoints
			outcome.Striche = tally.Striche

			if game.FinalStriche != (domain.StricheTotals{}) {
				for _, w := range VerifyStriche(tally.Striche, game.FinalStriche) {
					w.MatchID = match.ID
					w.GameNumber = gameNumber
					warnings = append(warnings, w)
				}
			}
		}

		outcomes = append(outcomes, outcome)
	}

	return outcomes, warnings, nil
}

// TrumpfCountsByPlayer aggregates trump declarations across a match's
// rounds, keyed by the resolved declarer id. Seats are 1,2 top and 3,4
// bottom; seats that cannot be mapped are skipped.
func TrumpfCountsByPlayer(match *domain.MatchRecord, outcomes []domain.GameOutcome) map[string]map[string]int {
	counts := map[string]map[string]int{}
	for i, game := range match.Games {
		if len(game.Rounds) == 0 || i >= len(outcomes) {
			continue
		}
		teams := outcomes[i].Teams
		seatToPlayer := map[int]string{
			1: teams.Top[0], 2: teams.Top[1],
			3: teams.Bottom[0], 4: teams.Bottom[1],
		}
		for _, round := range game.Rounds {
			if round.Trumpf == "" || round.DeclarerSeat == 0 {
				continue
			}
			playerID, ok := seatToPlayer[round.DeclarerSeat]
			if !ok {
				continue
			}
			if counts[playerID] == nil {
				counts[playerID] = map[string]int{}
			}
			counts[playerID][round.Trumpf]++
		}
	}
	return counts
}
