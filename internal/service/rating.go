package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"jassguru/internal/config"
	"jassguru/internal/constants"
	"jassguru/internal/domain"
	"jassguru/internal/elo"
	"jassguru/internal/jass"
	"jassguru/internal/repository"

	"github.com/rs/zerolog"
)

// RatingService applies the Elo model to normalized game outcomes and
// maintains the per-player rating heads and the append-only history. All
// writes go through the rating ledger, so replaying a match changes
// nothing.
type RatingService struct {
	ratingRepo *repository.RatingRepository
	matchRepo  *repository.MatchRepository
	playerRepo *repository.PlayerRepository
	cfg        elo.Config
	logger     zerolog.Logger
}

func NewRatingService(appCfg *config.Config, ratingRepo *repository.RatingRepository, matchRepo *repository.MatchRepository, playerRepo *repository.PlayerRepository, logger zerolog.Logger) *RatingService {
	cfg := elo.DefaultConfig()
	if appCfg != nil && appCfg.EloKFactor > 0 {
		cfg.KFactor = appCfg.EloKFactor
	}
	return &RatingService{
		ratingRepo: ratingRepo,
		matchRepo:  matchRepo,
		playerRepo: playerRepo,
		cfg:        cfg,
		logger:     logger,
	}
}

// ApplyMatch folds one match's games, in game-number order, into the
// rating state. Players without a rating head start at the default
// rating. Returns how many history entries were newly applied; zero means
// the match was already rated.
func (s *RatingService) ApplyMatch(ctx context.Context, match *domain.MatchRecord, outcomes []domain.GameOutcome) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	heads, err := s.loadHeads(ctx, participantSet(outcomes))
	if err != nil {
		return 0, err
	}

	entries, err := s.rateOutcomes(outcomes, heads)
	if err != nil {
		return 0, err
	}

	applied, err := s.ratingRepo.AppendEntries(ctx, entries, heads)
	if err != nil {
		return 0, err
	}
	if applied > 0 {
		s.logger.Info().Str("match_id", match.ID).Int("entries_applied", applied).Msg("rating entries applied")
	} else {
		s.logger.Debug().Str("match_id", match.ID).Msg("match already rated, no entries applied")
	}
	return applied, nil
}

// rateOutcomes walks the outcomes in order and mutates heads in place so
// later games of the same match see the ratings produced by earlier ones.
func (s *RatingService) rateOutcomes(outcomes []domain.GameOutcome, heads map[string]domain.PlayerRating) ([]domain.RatingEntry, error) {
	sessionDeltas := map[string]float64{}
	var entries []domain.RatingEntry

	for _, outcome := range outcomes {
		ratings := make(map[string]float64, 4)
		for _, id := range outcome.Teams.All() {
			ratings[id] = heads[id].Rating
		}

		deltas, err := elo.GameUpdate(s.cfg, outcome.Teams, outcome.WinnerTeam, ratings)
		if err != nil {
			return nil, fmt.Errorf("failed to rate game %d of match %s: %w", outcome.GameNumber, outcome.MatchID, err)
		}

		for _, d := range deltas {
			head := heads[d.PlayerID]
			head.Rating = d.Rating
			head.GamesPlayed++
			head.LastDelta = d.Delta
			sessionDeltas[d.PlayerID] += d.Delta
			head.LastSessionDelta = sessionDeltas[d.PlayerID]
			if d.Rating > head.PeakRating || head.PeakRatingAt.IsZero() {
				head.PeakRating = d.Rating
				head.PeakRatingAt = outcome.CompletedAt
			}
			if d.Rating < head.LowestRating || head.LowestRatingAt.IsZero() {
				head.LowestRating = d.Rating
				head.LowestRatingAt = outcome.CompletedAt
			}
			head.UpdatedAt = time.Now()
			heads[d.PlayerID] = head

			entries = append(entries, domain.RatingEntry{
				PlayerID:   d.PlayerID,
				MatchID:    outcome.MatchID,
				GameNumber: outcome.GameNumber,
				Rating:     d.Rating,
				Delta:      d.Delta,
				CreatedAt:  outcome.CompletedAt,
			})
		}
	}

	return entries, nil
}

// loadHeads loads the rating heads for a set of players, seeding missing
// players at the default rating.
func (s *RatingService) loadHeads(ctx context.Context, playerIDs []string) (map[string]domain.PlayerRating, error) {
	heads, err := s.ratingRepo.GetRatings(ctx, playerIDs)
	if err != nil {
		return nil, err
	}
	for _, id := range playerIDs {
		if _, ok := heads[id]; !ok {
			heads[id] = domain.PlayerRating{
				PlayerID: id,
				Rating:   s.cfg.DefaultRating,
			}
		}
	}
	return heads, nil
}

// ReplayAll re-derives every rating head and history entry by replaying
// all matches in chronological order, then swaps the stored history in
// one transaction. Ratings interlock across all four seats of every game,
// so this is the only sound full recompute for ratings; per-target
// recomputes cover the derived stats documents instead.
func (s *RatingService) ReplayAll(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, constants.RecomputeTimeout)
	defer cancel()

	groupIDs, err := s.matchRepo.ListGroupIDs(ctx)
	if err != nil {
		return err
	}

	resolver, err := s.playerRepo.Resolver(ctx)
	if err != nil {
		return err
	}

	var matches []domain.MatchRecord
	for _, groupID := range groupIDs {
		groupMatches, err := s.matchRepo.GetByGroup(ctx, groupID)
		if err != nil {
			return err
		}
		matches = append(matches, groupMatches...)
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if !matches[i].StartedAt.Equal(matches[j].StartedAt) {
			return matches[i].StartedAt.Before(matches[j].StartedAt)
		}
		return matches[i].ID < matches[j].ID
	})

	// The whole replay is staged in memory first. Nothing is written
	// until every match normalizes and rates cleanly, so one bad match
	// cannot leave truncated history behind.
	heads := map[string]domain.PlayerRating{}
	var entries []domain.RatingEntry
	resolved := map[string][]string{}
	for i := range matches {
		match := &matches[i]
		outcomes, warnings, err := jass.Normalize(match, resolver)
		if err != nil {
			return fmt.Errorf("failed to normalize match %s during replay: %w", match.ID, err)
		}
		for _, w := range warnings {
			s.logger.Warn().Str("match_id", w.MatchID).Int("game", w.GameNumber).Str("reason", w.Reason).Msg("normalization warning during replay")
		}

		ids := participantSet(outcomes)
		resolved[match.ID] = ids
		for _, id := range ids {
			if _, ok := heads[id]; !ok {
				heads[id] = domain.PlayerRating{PlayerID: id, Rating: s.cfg.DefaultRating}
			}
		}

		matchEntries, err := s.rateOutcomes(outcomes, heads)
		if err != nil {
			return err
		}
		entries = append(entries, matchEntries...)
	}

	if err := s.ratingRepo.ReplaceAllHistory(ctx, entries, heads); err != nil {
		return err
	}

	// Refresh the participant index from the resolved rosters while the
	// replay already holds them.
	for matchID, ids := range resolved {
		if err := s.matchRepo.ReplaceParticipants(ctx, matchID, ids); err != nil {
			return err
		}
	}

	s.logger.Info().Int("matches", len(matches)).Int("entries", len(entries)).Msg("rating history replayed")
	return nil
}

func participantSet(outcomes []domain.GameOutcome) []string {
	seen := map[string]bool{}
	var ids []string
	for _, outcome := range outcomes {
		for _, id := range outcome.Teams.All() {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	sort.Strings(ids)
	return ids
}
