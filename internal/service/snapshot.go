package service

import (
	"context"
	"sort"

	"jassguru/internal/constants"
	"jassguru/internal/domain"
	"jassguru/internal/elo"
	"jassguru/internal/jass"
	"jassguru/internal/repository"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// SnapshotService publishes the read-optimized documents the frontends
// consume directly: rating leaderboards per group and cumulative chart
// series per player. Snapshots are always regenerated whole from the
// canonical histories; they carry no state of their own.
type SnapshotService struct {
	matchRepo    *repository.MatchRepository
	playerRepo   *repository.PlayerRepository
	ratingRepo   *repository.RatingRepository
	statsRepo    *repository.StatsRepository
	snapshotRepo *repository.SnapshotRepository
	logger       zerolog.Logger
}

func NewSnapshotService(matchRepo *repository.MatchRepository, playerRepo *repository.PlayerRepository, ratingRepo *repository.RatingRepository, statsRepo *repository.StatsRepository, snapshotRepo *repository.SnapshotRepository, logger zerolog.Logger) *SnapshotService {
	return &SnapshotService{
		matchRepo:    matchRepo,
		playerRepo:   playerRepo,
		ratingRepo:   ratingRepo,
		statsRepo:    statsRepo,
		snapshotRepo: snapshotRepo,
		logger:       logger,
	}
}

// PublishGroupLeaderboard rebuilds and stores the rating leaderboard of
// one group: every player the group has seen, ranked by current rating,
// annotated with the ladder tier.
func (s *SnapshotService) PublishGroupLeaderboard(ctx context.Context, groupID string) error {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	stats, err := s.statsRepo.GetGroupStats(ctx, groupID)
	if err != nil {
		return err
	}
	if stats == nil {
		// Nothing played yet; publish nothing rather than an empty board.
		return nil
	}

	playerIDs := make([]string, 0, len(stats.PlayerTotals))
	for id := range stats.PlayerTotals {
		playerIDs = append(playerIDs, id)
	}
	sort.Strings(playerIDs)

	ratings, err := s.ratingRepo.ListRatings(ctx, playerIDs)
	if err != nil {
		return err
	}
	names, err := s.playerRepo.DisplayNames(ctx, playerIDs)
	if err != nil {
		return err
	}

	entries := make([]domain.LeaderboardEntry, 0, len(ratings))
	for _, rating := range ratings {
		tier := elo.TierForRating(rating.Rating)
		entries = append(entries, domain.LeaderboardEntry{
			PlayerID:    rating.PlayerID,
			DisplayName: names[rating.PlayerID],
			Rating:      rating.Rating,
			GamesPlayed: rating.GamesPlayed,
			LastDelta:   rating.LastSessionDelta,
			Tier:        tier.Name,
			TierEmoji:   tier.Emoji,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Rating != entries[j].Rating {
			return entries[i].Rating > entries[j].Rating
		}
		return entries[i].PlayerID < entries[j].PlayerID
	})

	doc, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	if err := s.snapshotRepo.Upsert(ctx, groupID, repository.SnapshotKindLeaderboard, doc); err != nil {
		return err
	}
	s.logger.Debug().Str("group_id", groupID).Int("entries", len(entries)).Msg("group leaderboard published")
	return nil
}

// PublishPlayerCharts rebuilds the player's cumulative chart series:
// rating over time from the rating history, plus running striche and weis
// differences from the match history.
func (s *SnapshotService) PublishPlayerCharts(ctx context.Context, playerID string) error {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	history, err := s.ratingRepo.GetHistory(ctx, playerID)
	if err != nil {
		return err
	}
	ratingSeries := domain.ChartSeries{PlayerID: playerID, Metric: "rating", Points: []domain.ChartPoint{}}
	for _, entry := range history {
		ratingSeries.Points = append(ratingSeries.Points, domain.ChartPoint{
			Date:  entry.CreatedAt,
			Value: entry.Rating,
		})
	}

	matches, err := s.matchRepo.GetByPlayer(ctx, playerID)
	if err != nil {
		return err
	}
	resolver, err := s.playerRepo.Resolver(ctx)
	if err != nil {
		return err
	}

	stricheSeries := domain.ChartSeries{PlayerID: playerID, Metric: "stricheDiff", Points: []domain.ChartPoint{}}
	weisSeries := domain.ChartSeries{PlayerID: playerID, Metric: "weisDiff", Points: []domain.ChartPoint{}}
	stricheDiff, weisDiff := 0, 0
	for i := range matches {
		match := &matches[i]
		outcomes, _, err := jass.Normalize(match, resolver)
		if err != nil {
			return err
		}
		for _, outcome := range outcomes {
			side, ok := outcome.Teams.SideOf(playerID)
			if !ok {
				continue
			}
			other := side.Other()
			stricheDiff += outcome.Striche.Side(side).Sum() - outcome.Striche.Side(other).Sum()
			weisDiff += outcome.WeisPoints.Side(side) - outcome.WeisPoints.Side(other)
		}
		stricheSeries.Points = append(stricheSeries.Points, domain.ChartPoint{Date: match.EndedAt, Value: float64(stricheDiff)})
		weisSeries.Points = append(weisSeries.Points, domain.ChartPoint{Date: match.EndedAt, Value: float64(weisDiff)})
	}

	doc, err := json.Marshal([]domain.ChartSeries{ratingSeries, stricheSeries, weisSeries})
	if err != nil {
		return err
	}
	if err := s.snapshotRepo.Upsert(ctx, playerID, repository.SnapshotKindCharts, doc); err != nil {
		return err
	}
	s.logger.Debug().Str("player_id", playerID).Int("rating_points", len(ratingSeries.Points)).Msg("player charts published")
	return nil
}
