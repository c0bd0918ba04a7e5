package service

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	"jassguru/internal/constants"
	"jassguru/internal/domain"
	"jassguru/internal/jass"
	"jassguru/internal/repository"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// GroupStatsService maintains the derived per-group statistics documents:
// overall counts, the group-wide trump distribution, and the player and
// team leaderboards. A tournament counts once at the session level no
// matter how many passes it bundles; every pass counts at the game level.
type GroupStatsService struct {
	matchRepo  *repository.MatchRepository
	playerRepo *repository.PlayerRepository
	statsRepo  *repository.StatsRepository
	logger     zerolog.Logger
}

func NewGroupStatsService(matchRepo *repository.MatchRepository, playerRepo *repository.PlayerRepository, statsRepo *repository.StatsRepository, logger zerolog.Logger) *GroupStatsService {
	return &GroupStatsService{
		matchRepo:  matchRepo,
		playerRepo: playerRepo,
		statsRepo:  statsRepo,
		logger:     logger,
	}
}

// ApplyMatch folds one completed match into the group's stored document.
// Returns false when the contributions ledger already holds the match.
func (s *GroupStatsService) ApplyMatch(ctx context.Context, groupID string, match *domain.MatchRecord, outcomes []domain.GameOutcome) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	stats, err := s.statsRepo.GetGroupStats(ctx, groupID)
	if err != nil {
		return false, err
	}
	if stats == nil {
		stats = domain.NewGroupComputedStats(groupID)
	}

	FoldMatchIntoGroup(stats, match, outcomes)

	memberCount, err := s.playerRepo.GroupMemberCount(ctx, groupID)
	if err != nil {
		return false, err
	}
	stats.MemberCount = memberCount

	applied, err := s.statsRepo.ApplyGroupStats(ctx, groupID, match.ID, stats)
	if err != nil {
		return false, err
	}
	if !applied {
		s.logger.Debug().Str("group_id", groupID).Str("match_id", match.ID).Msg("match already applied to group stats")
	}
	return applied, nil
}

// Recompute rebuilds the group's document from its full match history and
// replaces the stored one. Returns whether the rebuilt document differs.
func (s *GroupStatsService) Recompute(ctx context.Context, groupID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.RecomputeTimeout)
	defer cancel()

	prevDoc, err := s.statsRepo.GetGroupStatsDoc(ctx, groupID)
	if err != nil {
		return false, err
	}

	matches, err := s.matchRepo.GetByGroup(ctx, groupID)
	if err != nil {
		return false, err
	}
	resolver, err := s.playerRepo.Resolver(ctx)
	if err != nil {
		return false, err
	}

	stats := domain.NewGroupComputedStats(groupID)
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
		FoldMatchIntoGroup(stats, match, outcomes)
		matchIDs = append(matchIDs, match.ID)
	}

	memberCount, err := s.playerRepo.GroupMemberCount(ctx, groupID)
	if err != nil {
		return false, err
	}
	stats.MemberCount = memberCount

	newDoc, err := json.Marshal(stats)
	if err != nil {
		return false, err
	}

	// A populated document with zero reachable matches means lookup is
	// broken, not that the group never played.
	if len(matchIDs) == 0 && prevDoc != nil && !bytes.Equal(prevDoc, newDoc) {
		return false, fmt.Errorf("refusing to replace stats of group %s with an empty rebuild: no matches found", groupID)
	}

	drifted := prevDoc != nil && !bytes.Equal(prevDoc, newDoc)
	if drifted {
		storedSum, rebuiltSum, offset := docDiff(prevDoc, newDoc)
		s.logger.Warn().Str("group_id", groupID).
			Str("stored_sha", storedSum).Str("rebuilt_sha", rebuiltSum).
			Int("first_diff_offset", offset).
			Msg("group stats drift detected, stored document replaced")
	}

	if err := s.statsRepo.ReplaceContributions(ctx, groupID, matchIDs); err != nil {
		return false, err
	}
	if _, err := s.statsRepo.ApplyGroupStats(ctx, groupID, "", stats); err != nil {
		return false, err
	}
	return drifted, nil
}

// FoldMatchIntoGroup folds one normalized match into a group's stats
// document and re-derives the leaderboards from the running tallies.
func FoldMatchIntoGroup(stats *domain.GroupComputedStats, match *domain.MatchRecord, outcomes []domain.GameOutcome) {
	if stats.TrumpfStatistik == nil {
		stats.TrumpfStatistik = map[string]int{}
	}
	if stats.PlayerTotals == nil {
		stats.PlayerTotals = map[string]*domain.GroupPlayerTotals{}
	}
	if stats.TeamTotals == nil {
		stats.TeamTotals = map[string]*domain.GroupTeamTotals{}
	}
	tournament := match.IsTournament()

	stats.SessionCount++
	stats.GameCount += len(outcomes)
	if tournament {
		stats.TournamentCount++
	}

	if stats.FirstJassAt.IsZero() || match.StartedAt.Before(stats.FirstJassAt) {
		stats.FirstJassAt = match.StartedAt
	}
	if match.EndedAt.After(stats.LastJassAt) {
		stats.LastJassAt = match.EndedAt
	}

	rounds := match.TotalRounds
	if rounds == 0 {
		for _, g := range match.Games {
			rounds += len(g.Rounds)
		}
	}
	stats.TotalRounds += rounds

	var playSeconds int64
	for _, o := range outcomes {
		playSeconds += o.DurationSeconds
	}
	if playSeconds == 0 {
		playSeconds = match.DurationSeconds
	}
	stats.TotalPlayTimeSeconds += playSeconds

	for _, game := range match.Games {
		for _, round := range game.Rounds {
			if round.Trumpf == "" {
				continue
			}
			stats.TrumpfStatistik[round.Trumpf]++
			stats.TotalTrumpfCount++
		}
	}

	// Per-game tallies.
	for _, outcome := range outcomes {
		for _, side := range []domain.TeamSide{domain.TeamTop, domain.TeamBottom} {
			other := side.Other()
			myStriche := outcome.Striche.Side(side)
			theirStriche := outcome.Striche.Side(other)
			pointsDiff := outcome.FinalScores.Side(side) - outcome.FinalScores.Side(other)
			won := outcome.WinnerTeam == side

			for _, playerID := range outcome.Teams.Side(side) {
				t := stats.PlayerTotals[playerID]
				if t == nil {
					t = &domain.GroupPlayerTotals{}
					stats.PlayerTotals[playerID] = t
				}
				t.Games++
				if won {
					t.GameWins++
				}
				t.PointsDiff += pointsDiff
				t.StricheDiff += myStriche.Sum() - theirStriche.Sum()
				t.MatschBilanz += myStriche.Matsch - theirStriche.Matsch
				t.SchneiderBilanz += myStriche.Schneider - theirStriche.Schneider
				t.KontermatschBilanz += myStriche.Kontermatsch - theirStriche.Kontermatsch
				t.WeisPoints += outcome.WeisPoints.Side(side)
			}

			pair := outcome.Teams.Side(side)
			key := teamKey(pair[0], pair[1])
			tt := stats.TeamTotals[key]
			if tt == nil {
				a, b := pair[0], pair[1]
				if b < a {
					a, b = b, a
				}
				tt = &domain.GroupTeamTotals{PlayerIDs: [2]string{a, b}}
				stats.TeamTotals[key] = tt
			}
			tt.Games++
			if won {
				tt.GameWins++
			}
			tt.PointsDiff += pointsDiff
			tt.StricheDiff += myStriche.Sum() - theirStriche.Sum()
		}
	}

	// Per-session tallies. Tournament pairings rotate, so the player's own
	// game balance decides the session outcome there.
	sessionParticipants := map[string]bool{}
	gameWins := map[string]int{}
	gamesPlayed := map[string]int{}
	for _, outcome := range outcomes {
		for _, id := range outcome.Teams.All() {
			sessionParticipants[id] = true
			gamesPlayed[id]++
			if side, ok := outcome.Teams.SideOf(id); ok && outcome.WinnerTeam == side {
				gameWins[id]++
			}
		}
	}
	for id := range sessionParticipants {
		t := stats.PlayerTotals[id]
		if t == nil {
			continue
		}
		t.Sessions++
		var won, tied bool
		if tournament {
			wins := gameWins[id]
			losses := gamesPlayed[id] - wins
			won = wins > losses
			tied = wins == losses
		} else {
			side, ok := outcomes[0].Teams.SideOf(id)
			if !ok {
				continue
			}
			won = string(match.WinnerTeamKey) == string(side)
			tied = match.WinnerTeamKey == domain.WinnerDraw
		}
		switch {
		case tied:
		case won:
			t.SessionWins++
		default:
			t.SessionLosses++
		}
	}

	if stats.GameCount > 0 {
		stats.AvgGameDurationSeconds = float64(stats.TotalPlayTimeSeconds) / float64(stats.GameCount)
	}

	rebuildLeaderboards(stats)
}

func teamKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}

// rebuildLeaderboards re-derives every ranked list from the running
// tallies. Rate categories require a minimum event count, so one lucky
// sitting does not top the board.
func rebuildLeaderboards(stats *domain.GroupComputedStats) {
	stats.PlayerMostGames = playerBoard(stats.PlayerTotals, 0, func(t *domain.GroupPlayerTotals) (float64, int) {
		return float64(t.Games), t.Games
	})
	stats.PlayerPointsDiff = playerBoard(stats.PlayerTotals, 0, func(t *domain.GroupPlayerTotals) (float64, int) {
		return float64(t.PointsDiff), t.Games
	})
	stats.PlayerStricheDiff = playerBoard(stats.PlayerTotals, 0, func(t *domain.GroupPlayerTotals) (float64, int) {
		return float64(t.StricheDiff), t.Games
	})
	stats.PlayerSessionWinRate = playerBoard(stats.PlayerTotals, constants.MinSessionsForRate, func(t *domain.GroupPlayerTotals) (float64, int) {
		decided := t.SessionWins + t.SessionLosses
		if decided == 0 {
			return 0, t.Sessions
		}
		return float64(t.SessionWins) / float64(decided), t.Sessions
	})
	stats.PlayerGameWinRate = playerGameBoard(stats.PlayerTotals, constants.MinGamesForRate, func(t *domain.GroupPlayerTotals) float64 {
		return float64(t.GameWins) / float64(t.Games)
	})
	stats.PlayerMatschBilanz = playerBoard(stats.PlayerTotals, 0, func(t *domain.GroupPlayerTotals) (float64, int) {
		return float64(t.MatschBilanz), t.Games
	})
	stats.PlayerSchneiderBilanz = playerBoard(stats.PlayerTotals, 0, func(t *domain.GroupPlayerTotals) (float64, int) {
		return float64(t.SchneiderBilanz), t.Games
	})
	stats.PlayerKontermatschBilanz = playerBoard(stats.PlayerTotals, 0, func(t *domain.GroupPlayerTotals) (float64, int) {
		return float64(t.KontermatschBilanz), t.Games
	})
	stats.PlayerWeisAvg = playerGameBoard(stats.PlayerTotals, constants.MinGamesForRate, func(t *domain.GroupPlayerTotals) float64 {
		return float64(t.WeisPoints) / float64(t.Games)
	})

	stats.TeamGameWinRate = teamBoard(stats.TeamTotals, constants.MinGamesForRate, func(t *domain.GroupTeamTotals) float64 {
		return float64(t.GameWins) / float64(t.Games)
	})
	stats.TeamPointsDiff = teamBoard(stats.TeamTotals, 0, func(t *domain.GroupTeamTotals) float64 {
		return float64(t.PointsDiff)
	})
	stats.TeamStricheDiff = teamBoard(stats.TeamTotals, 0, func(t *domain.GroupTeamTotals) float64 {
		return float64(t.StricheDiff)
	})
}

// playerBoard builds a ranked list over all players with at least
// minSessions sessions. Ties rank by player id so rebuilds are stable.
func playerBoard(totals map[string]*domain.GroupPlayerTotals, minSessions int, value func(*domain.GroupPlayerTotals) (float64, int)) []domain.LeaderboardRow {
	rows := make([]domain.LeaderboardRow, 0, len(totals))
	for id, t := range totals {
		if t.Sessions < minSessions {
			continue
		}
		v, count := value(t)
		rows = append(rows, domain.LeaderboardRow{PlayerID: id, Value: v, EventCount: count})
	}
	return rankRows(rows)
}

func playerGameBoard(totals map[string]*domain.GroupPlayerTotals, minGames int, value func(*domain.GroupPlayerTotals) float64) []domain.LeaderboardRow {
	rows := make([]domain.LeaderboardRow, 0, len(totals))
	for id, t := range totals {
		if t.Games < minGames || t.Games == 0 {
			continue
		}
		rows = append(rows, domain.LeaderboardRow{PlayerID: id, Value: value(t), EventCount: t.Games})
	}
	return rankRows(rows)
}

func teamBoard(totals map[string]*domain.GroupTeamTotals, minGames int, value func(*domain.GroupTeamTotals) float64) []domain.LeaderboardRow {
	rows := make([]domain.LeaderboardRow, 0, len(totals))
	for _, t := range totals {
		if t.Games < minGames || t.Games == 0 {
			continue
		}
		rows = append(rows, domain.LeaderboardRow{
			PlayerIDs:  []string{t.PlayerIDs[0], t.PlayerIDs[1]},
			Value:      value(t),
			EventCount: t.Games,
		})
	}
	return rankRows(rows)
}

func rankRows(rows []domain.LeaderboardRow) []domain.LeaderboardRow {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Value != rows[j].Value {
			return rows[i].Value > rows[j].Value
		}
		return rowKey(rows[i]) < rowKey(rows[j])
	})
	if len(rows) > constants.LeaderboardTopN {
		rows = rows[:constants.LeaderboardTopN]
	}
	return rows
}

func rowKey(r domain.LeaderboardRow) string {
	if r.PlayerID != "" {
		return r.PlayerID
	}
	key := ""
	for _, id := range r.PlayerIDs {
		key += id + "|"
	}
	return key
}
