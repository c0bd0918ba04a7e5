package service

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"time"

	"jassguru/internal/constants"
	"jassguru/internal/domain"
	"jassguru/internal/jass"
	"jassguru/internal/repository"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// PlayerStatsService maintains the derived per-player statistics
// documents. One fold function serves both modes: incremental application
// of a single completed match, and full recomputation from the player's
// entire match history. The streak counters live inside the document, so
// an incremental fold continues exactly where the previous one stopped
// and both modes produce byte-identical documents.
type PlayerStatsService struct {
	matchRepo  *repository.MatchRepository
	playerRepo *repository.PlayerRepository
	statsRepo  *repository.StatsRepository
	logger     zerolog.Logger
}

func NewPlayerStatsService(matchRepo *repository.MatchRepository, playerRepo *repository.PlayerRepository, statsRepo *repository.StatsRepository, logger zerolog.Logger) *PlayerStatsService {
	return &PlayerStatsService{
		matchRepo:  matchRepo,
		playerRepo: playerRepo,
		statsRepo:  statsRepo,
		logger:     logger,
	}
}

// ApplyMatch folds one completed match into the player's stored document.
// Returns false if the match was already applied (the contributions
// ledger absorbs replays) or if the player did not take part.
func (s *PlayerStatsService) ApplyMatch(ctx context.Context, playerID string, match *domain.MatchRecord, outcomes []domain.GameOutcome) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	if !playsIn(playerID, outcomes) {
		return false, nil
	}

	stats, err := s.statsRepo.GetPlayerStats(ctx, playerID)
	if err != nil {
		return false, err
	}
	if stats == nil {
		stats = domain.NewPlayerComputedStats(playerID)
	}

	FoldMatchIntoPlayer(stats, match, outcomes, jass.TrumpfCountsByPlayer(match, outcomes))

	applied, err := s.statsRepo.ApplyPlayerStats(ctx, playerID, match.ID, stats)
	if err != nil {
		return false, err
	}
	if !applied {
		s.logger.Debug().Str("player_id", playerID).Str("match_id", match.ID).Msg("match already applied to player stats")
	}
	return applied, nil
}

// Recompute rebuilds the player's document from scratch and replaces the
// stored one. Returns whether the rebuilt document differs from what was
// stored; a difference means the incremental path drifted and is logged.
func (s *PlayerStatsService) Recompute(ctx context.Context, playerID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.RecomputeTimeout)
	defer cancel()

	prevDoc, err := s.statsRepo.GetPlayerStatsDoc(ctx, playerID)
	if err != nil {
		return false, err
	}

	matches, err := s.matchRepo.GetByPlayer(ctx, playerID)
	if err != nil {
		return false, err
	}
	resolver, err := s.playerRepo.Resolver(ctx)
	if err != nil {
		return false, err
	}

	stats := domain.NewPlayerComputedStats(playerID)
	matchIDs := make([]string, 0, len(matches))
	for i := range matches {
		match := &matches[i]
		outcomes, warnings, err := jass.Normalize(match, resolver)
		if err != nil {
			return false, err
		}
		for _, w := range warnings {
			s.logger.Warn().Str("match_id", w.MatchID).Int("game", w.GameNumber).Str("reason", w.Reason).Msg("normalization warning during recompute")
		}
		if playsIn(playerID, outcomes) {
			FoldMatchIntoPlayer(stats, match, outcomes, jass.TrumpfCountsByPlayer(match, outcomes))
			matchIDs = append(matchIDs, match.ID)
		}
	}

	newDoc, err := json.Marshal(stats)
	if err != nil {
		return false, err
	}

	// A populated document with no reachable matches means the
	// participant index is broken, not that the player never played.
	// Replacing the document would destroy good state.
	if len(matchIDs) == 0 && prevDoc != nil && !bytes.Equal(prevDoc, newDoc) {
		return false, fmt.Errorf("refusing to replace stats of player %s with an empty rebuild: no matches found in the participant index", playerID)
	}

	drifted := prevDoc != nil && !bytes.Equal(prevDoc, newDoc)
	if drifted {
		storedSum, rebuiltSum, offset := docDiff(prevDoc, newDoc)
		s.logger.Warn().Str("player_id", playerID).
			Str("stored_sha", storedSum).Str("rebuilt_sha", rebuiltSum).
			Int("first_diff_offset", offset).
			Msg("player stats drift detected, stored document replaced")
	}

	if err := s.statsRepo.ReplaceContributions(ctx, playerID, matchIDs); err != nil {
		return false, err
	}
	if _, err := s.statsRepo.ApplyPlayerStats(ctx, playerID, "", stats); err != nil {
		return false, err
	}
	return drifted, nil
}

func playsIn(playerID string, outcomes []domain.GameOutcome) bool {
	for _, o := range outcomes {
		if _, ok := o.Teams.SideOf(playerID); ok {
			return true
		}
	}
	return false
}

// FoldMatchIntoPlayer folds one normalized match into a player's stats
// document. Matches must be folded in chronological order; the streak
// state inside the document assumes it.
func FoldMatchIntoPlayer(stats *domain.PlayerComputedStats, match *domain.MatchRecord, outcomes []domain.GameOutcome, trumpfByPlayer map[string]map[string]int) {
	playerID := stats.PlayerID

	var played []domain.GameOutcome
	for _, o := range outcomes {
		if _, ok := o.Teams.SideOf(playerID); ok {
			played = append(played, o)
		}
	}
	if len(played) == 0 {
		return
	}

	if stats.FirstJassAt.IsZero() || match.StartedAt.Before(stats.FirstJassAt) {
		stats.FirstJassAt = match.StartedAt
	}
	if match.EndedAt.After(stats.LastJassAt) {
		stats.LastJassAt = match.EndedAt
	}

	tournament := match.IsTournament()
	stats.TotalSessions++
	if tournament {
		stats.TotalTournaments++
		stats.TotalTournamentGames += len(played)
	}

	partners := partnerMap(stats.PartnerAggregates)
	opponents := opponentMap(stats.OpponentAggregates)

	relKind := "session"
	if tournament {
		relKind = "tournament"
	}

	// Session-level accumulators over the games this player was part of.
	var sessionPoints, sessionPointsAgainst int
	var sessionStriche, sessionStricheAgainst int
	var sessionMatsch, sessionMatschAgainst int
	var sessionWeis, sessionWeisAgainst int
	var sessionPlaySeconds int64
	gameWinsInMatch := 0

	for _, outcome := range played {
		side, _ := outcome.Teams.SideOf(playerID)
		other := side.Other()
		won := outcome.WinnerTeam == side

		myPoints := outcome.FinalScores.Side(side)
		theirPoints := outcome.FinalScores.Side(other)
		myStriche := outcome.Striche.Side(side)
		theirStriche := outcome.Striche.Side(other)
		myWeis := outcome.WeisPoints.Side(side)
		theirWeis := outcome.WeisPoints.Side(other)

		stats.TotalGames++
		if won {
			stats.GameWins++
			gameWinsInMatch++
		} else {
			stats.GameLosses++
		}

		stats.TotalPointsMade += myPoints
		stats.TotalPointsReceived += theirPoints
		stats.TotalStricheMade += myStriche.Sum()
		stats.TotalStricheReceived += theirStriche.Sum()
		stats.TotalWeisMade += myWeis
		stats.TotalWeisReceived += theirWeis

		stats.MatschMade += myStriche.Matsch
		stats.MatschReceived += theirStriche.Matsch
		stats.SchneiderMade += myStriche.Schneider
		stats.SchneiderReceived += theirStriche.Schneider
		stats.KontermatschMade += myStriche.Kontermatsch
		stats.KontermatschReceived += theirStriche.Kontermatsch

		sessionPoints += myPoints
		sessionPointsAgainst += theirPoints
		sessionStriche += myStriche.Sum()
		sessionStricheAgainst += theirStriche.Sum()
		sessionMatsch += myStriche.Matsch
		sessionMatschAgainst += theirStriche.Matsch
		sessionWeis += myWeis
		sessionWeisAgainst += theirWeis
		sessionPlaySeconds += outcome.DurationSeconds

		// Game highlights. Strict comparisons keep the earliest occurrence
		// on ties.
		setHighlight(&stats.HighestPointsGame, "highestPointsGame", myPoints, outcome.CompletedAt, match.ID, "game", greater)
		setHighlight(&stats.LowestPointsGame, "lowestPointsGame", myPoints, outcome.CompletedAt, match.ID, "game", less)
		setHighlight(&stats.HighestStricheGame, "highestStricheGame", myStriche.Sum(), outcome.CompletedAt, match.ID, "game", greater)
		setHighlight(&stats.HighestStricheReceivedGame, "highestStricheReceivedGame", theirStriche.Sum(), outcome.CompletedAt, match.ID, "game", greater)
		setHighlight(&stats.MostWeisPointsGame, "mostWeisPointsGame", myWeis, outcome.CompletedAt, match.ID, "game", greater)

		// Game streaks.
		st := &stats.Streaks
		extendStreak(&st.GameWin, &st.GameWinStartID, &st.GameWinStartAt, won, match.ID, outcome.CompletedAt, &stats.LongestWinStreakGames)
		extendStreak(&st.GameLoss, &st.GameLossStartID, &st.GameLossStartAt, !won, match.ID, outcome.CompletedAt, &stats.LongestLossStreakGames)
		extendStreak(&st.GameWinless, &st.GameWinlessStartID, &st.GameWinlessStartAt, !won, match.ID, outcome.CompletedAt, &stats.LongestWinlessStreakGames)
		extendStreak(&st.GameUndefeated, &st.GameUndefeatedStartID, &st.GameUndefeatedStartAt, won, match.ID, outcome.CompletedAt, &stats.LongestUndefeatedStreakGames)

		// Partner.
		partnerID, _ := outcome.Teams.Partner(playerID)
		p := partners[partnerID]
		if p == nil {
			p = &domain.PartnerAggregate{PartnerID: partnerID}
			partners[partnerID] = p
		}
		p.GamesPlayedWith++
		if won {
			p.GamesWonWith++
		}
		p.PointsWith += myPoints
		p.PointsDifferenceWith += myPoints - theirPoints
		p.StricheDifferenceWith += myStriche.Sum() - theirStriche.Sum()
		p.MatschMadeWith += myStriche.Matsch
		p.MatschReceivedWith += theirStriche.Matsch
		p.SchneiderMadeWith += myStriche.Schneider
		p.SchneiderReceivedWith += theirStriche.Schneider
		p.KontermatschMadeWith += myStriche.Kontermatsch
		p.KontermatschReceivedWith += theirStriche.Kontermatsch
		if outcome.CompletedAt.After(p.LastPlayedWith) {
			p.LastPlayedWith = outcome.CompletedAt
		}

		// Opponents.
		for _, oppID := range outcome.Teams.Side(other) {
			o := opponents[oppID]
			if o == nil {
				o = &domain.OpponentAggregate{OpponentID: oppID}
				opponents[oppID] = o
			}
			o.GamesPlayedAgainst++
			if won {
				o.GamesWonAgainst++
			}
			o.PointsAgainst += myPoints
			o.PointsDifferenceAgainst += myPoints - theirPoints
			o.StricheDifferenceAgainst += myStriche.Sum() - theirStriche.Sum()
			o.MatschMadeAgainst += myStriche.Matsch
			o.MatschReceivedAgainst += theirStriche.Matsch
			o.SchneiderMadeAgainst += myStriche.Schneider
			o.SchneiderReceivedAgainst += theirStriche.Schneider
			o.KontermatschMadeAgainst += myStriche.Kontermatsch
			o.KontermatschReceivedAgainst += theirStriche.Kontermatsch
			if outcome.CompletedAt.After(o.LastPlayedAgainst) {
				o.LastPlayedAgainst = outcome.CompletedAt
			}
		}
	}

	if sessionPlaySeconds == 0 {
		sessionPlaySeconds = match.DurationSeconds
	}
	stats.TotalPlayTimeSeconds += sessionPlaySeconds

	// Session outcome. Fixed-roster sittings use the recorded winner key;
	// tournament pairings rotate, so the player's own game balance decides.
	var sessionWon, sessionTied bool
	if tournament {
		losses := len(played) - gameWinsInMatch
		sessionWon = gameWinsInMatch > losses
		sessionTied = gameWinsInMatch == losses
	} else {
		side, _ := played[0].Teams.SideOf(playerID)
		sessionWon = string(match.WinnerTeamKey) == string(side)
		sessionTied = match.WinnerTeamKey == domain.WinnerDraw
	}
	switch {
	case sessionTied:
		stats.SessionTies++
	case sessionWon:
		stats.SessionWins++
	default:
		stats.SessionLosses++
	}

	// Partner and opponent session tallies only make sense when the roster
	// holds for the whole sitting.
	if !tournament {
		side, _ := played[0].Teams.SideOf(playerID)
		partnerID, _ := played[0].Teams.Partner(playerID)
		if p := partners[partnerID]; p != nil {
			p.SessionsPlayedWith++
			if sessionWon {
				p.SessionsWonWith++
			}
		}
		for _, oppID := range played[0].Teams.Side(side.Other()) {
			if o := opponents[oppID]; o != nil {
				o.SessionsPlayedAgainst++
				if sessionWon {
					o.SessionsWonAgainst++
				}
			}
		}
	}

	// Session highlights.
	endAt := match.EndedAt
	setHighlight(&stats.HighestPointsSession, "highestPointsSession", sessionPoints, endAt, match.ID, relKind, greater)
	setHighlight(&stats.LowestPointsSession, "lowestPointsSession", sessionPoints, endAt, match.ID, relKind, less)
	setHighlight(&stats.HighestStricheSession, "highestStricheSession", sessionStriche, endAt, match.ID, relKind, greater)
	setHighlight(&stats.HighestStricheReceivedSession, "highestStricheReceivedSession", sessionStricheAgainst, endAt, match.ID, relKind, greater)
	setHighlight(&stats.MostMatschSession, "mostMatschSession", sessionMatsch, endAt, match.ID, relKind, greater)
	setHighlight(&stats.MostMatschReceivedSession, "mostMatschReceivedSession", sessionMatschAgainst, endAt, match.ID, relKind, greater)
	setHighlight(&stats.MostWeisPointsSession, "mostWeisPointsSession", sessionWeis, endAt, match.ID, relKind, greater)
	setHighlight(&stats.MostWeisPointsReceivedSession, "mostWeisPointsReceivedSession", sessionWeisAgainst, endAt, match.ID, relKind, greater)

	// Session streaks. A tie breaks both the win and the loss streak but
	// keeps winless and undefeated runs alive.
	st := &stats.Streaks
	extendStreak(&st.SessionWin, &st.SessionWinStartID, &st.SessionWinStartAt, sessionWon, match.ID, endAt, &stats.LongestWinStreakSessions)
	extendStreak(&st.SessionLoss, &st.SessionLossStartID, &st.SessionLossStartAt, !sessionWon && !sessionTied, match.ID, endAt, &stats.LongestLossStreakSessions)
	extendStreak(&st.SessionWinless, &st.SessionWinlessStartID, &st.SessionWinlessStartAt, !sessionWon, match.ID, endAt, &stats.LongestWinlessStreakSessions)
	extendStreak(&st.SessionUndefeated, &st.SessionUndefeatedStartID, &st.SessionUndefeatedStartAt, sessionWon || sessionTied, match.ID, endAt, &stats.LongestUndefeatedStreakSessions)

	// Trump declarations. The map can come back nil from a stored doc
	// that had none.
	if stats.TrumpfStatistik == nil {
		stats.TrumpfStatistik = map[string]int{}
	}
	for trumpf, n := range trumpfByPlayer[playerID] {
		stats.TrumpfStatistik[trumpf] += n
		stats.TotalTrumpfCount += n
	}

	// Derived totals and rates.
	stats.TotalPointsDifference = stats.TotalPointsMade - stats.TotalPointsReceived
	stats.TotalStricheDifference = stats.TotalStricheMade - stats.TotalStricheReceived
	stats.WeisDifference = stats.TotalWeisMade - stats.TotalWeisReceived
	stats.MatschBilanz = stats.MatschMade - stats.MatschReceived
	stats.SchneiderBilanz = stats.SchneiderMade - stats.SchneiderReceived
	stats.KontermatschBilanz = stats.KontermatschMade - stats.KontermatschReceived

	stats.SessionWinRate = winRate(stats.SessionWins, stats.SessionWins+stats.SessionLosses)
	stats.GameWinRate = winRate(stats.GameWins, stats.GameWins+stats.GameLosses)

	if stats.TotalGames > 0 {
		games := float64(stats.TotalGames)
		stats.AvgPointsPerGame = float64(stats.TotalPointsMade) / games
		stats.AvgStrichePerGame = float64(stats.TotalStricheMade) / games
		stats.AvgWeisPointsPerGame = float64(stats.TotalWeisMade) / games
		stats.AvgMatschPerGame = float64(stats.MatschMade) / games
		stats.AvgSchneiderPerGame = float64(stats.SchneiderMade) / games
		stats.AvgKontermatschPerGame = float64(stats.KontermatschMade) / games
	}

	stats.PartnerAggregates = sortedPartners(partners)
	stats.OpponentAggregates = sortedOpponents(opponents)
}

// winRate excludes ties from the denominator.
func winRate(wins, decided int) domain.WinRateInfo {
	info := domain.WinRateInfo{Wins: wins, Total: decided}
	if decided > 0 {
		info.Rate = float64(wins) / float64(decided)
	}
	return info
}

func greater(a, b int) bool { return a > b }
func less(a, b int) bool    { return a < b }

func setHighlight(slot **domain.StatHighlight, typ string, value int, date time.Time, relatedID, relatedType string, better func(a, b int) bool) {
	if *slot != nil && !better(value, (*slot).Value) {
		return
	}
	*slot = &domain.StatHighlight{
		Type:        typ,
		Value:       value,
		Date:        date,
		RelatedID:   relatedID,
		RelatedType: relatedType,
	}
}

// extendStreak advances or resets one running streak and promotes it to
// the longest-streak record when it strictly exceeds the stored value.
func extendStreak(counter *int, startID *string, startAt *time.Time, active bool, id string, at time.Time, record **domain.StatStreak) {
	if !active {
		*counter = 0
		*startID = ""
		*startAt = time.Time{}
		return
	}
	if *counter == 0 {
		*startID = id
		*startAt = at
	}
	*counter++
	if *record == nil || *counter > (*record).Value {
		*record = &domain.StatStreak{
			Value:          *counter,
			StartDate:      *startAt,
			EndDate:        at,
			StartSessionID: *startID,
			EndSessionID:   id,
		}
	}
}

func partnerMap(list []domain.PartnerAggregate) map[string]*domain.PartnerAggregate {
	m := make(map[string]*domain.PartnerAggregate, len(list))
	for i := range list {
		p := list[i]
		m[p.PartnerID] = &p
	}
	return m
}

func opponentMap(list []domain.OpponentAggregate) map[string]*domain.OpponentAggregate {
	m := make(map[string]*domain.OpponentAggregate, len(list))
	for i := range list {
		o := list[i]
		m[o.OpponentID] = &o
	}
	return m
}

func sortedPartners(m map[string]*domain.PartnerAggregate) []domain.PartnerAggregate {
	out := make([]domain.PartnerAggregate, 0, len(m))
	for _, p := range m {
		p.SessionWinRate = winRate(p.SessionsWonWith, p.SessionsPlayedWith)
		p.GameWinRate = winRate(p.GamesWonWith, p.GamesPlayedWith)
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PartnerID < out[j].PartnerID })
	return out
}

func sortedOpponents(m map[string]*domain.OpponentAggregate) []domain.OpponentAggregate {
	out := make([]domain.OpponentAggregate, 0, len(m))
	for _, o := range m {
		o.SessionWinRate = winRate(o.SessionsWonAgainst, o.SessionsPlayedAgainst)
		o.GameWinRate = winRate(o.GamesWonAgainst, o.GamesPlayedAgainst)
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpponentID < out[j].OpponentID })
	return out
}
