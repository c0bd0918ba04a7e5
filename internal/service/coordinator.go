package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"jassguru/internal/config"
	"jassguru/internal/constants"
	"jassguru/internal/jass"
	"jassguru/internal/repository"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// TargetStatus is the coordinator's view of one player or group target.
// A failed run returns to idle; the next trigger simply retries.
type TargetStatus string

const (
	StatusIdle        TargetStatus = "idle"
	StatusRecomputing TargetStatus = "recomputing"
)

// Coordinator sequences all derived-state updates. Runs for the same
// target never overlap: a trigger arriving while a run is in flight is
// coalesced into at most one follow-up run. Distinct targets proceed
// concurrently up to the configured limit.
type Coordinator struct {
	matchRepo   *repository.MatchRepository
	playerRepo  *repository.PlayerRepository
	ratings     *RatingService
	playerStats *PlayerStatsService
	groupStats  *GroupStatsService
	snapshots   *SnapshotService
	concurrency int
	logger      zerolog.Logger

	mu     sync.Mutex
	cond   *sync.Cond
	states map[string]*targetState
}

type targetState struct {
	running   bool
	pending   bool
	recompute bool
}

// ratingTarget is the slot guarding rating application. Deltas interlock
// across all four seats of a game, so rating writes are ordered through
// one global slot rather than per player.
const ratingTarget = "ratings:global"

func NewCoordinator(cfg *config.Config, matchRepo *repository.MatchRepository, playerRepo *repository.PlayerRepository, ratings *RatingService, playerStats *PlayerStatsService, groupStats *GroupStatsService, snapshots *SnapshotService, logger zerolog.Logger) *Coordinator {
	concurrency := 0
	if cfg != nil {
		concurrency = cfg.Concurrency
	}
	if concurrency <= 0 {
		concurrency = constants.RecomputeConcurrency
	}
	c := &Coordinator{
		matchRepo:   matchRepo,
		playerRepo:  playerRepo,
		ratings:     ratings,
		playerStats: playerStats,
		groupStats:  groupStats,
		snapshots:   snapshots,
		concurrency: concurrency,
		logger:      logger,
		states:      map[string]*targetState{},
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Status reports whether a target currently has a run in flight.
func (c *Coordinator) Status(targetID string) TargetStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st, ok := c.states[targetID]; ok && st.running {
		return StatusRecomputing
	}
	return StatusIdle
}

// lockTarget takes the target's slot, waiting for any in-flight run to
// finish first.
func (c *Coordinator) lockTarget(targetID string, recompute bool) *targetState {
	c.mu.Lock()
	defer c.mu.Unlock()
	for {
		st, ok := c.states[targetID]
		if !ok {
			st = &targetState{running: true, recompute: recompute}
			c.states[targetID] = st
			return st
		}
		if !st.running {
			st.running = true
			st.recompute = recompute
			return st
		}
		c.cond.Wait()
	}
}

func (c *Coordinator) unlockTarget(targetID string, st *targetState) {
	c.mu.Lock()
	st.running = false
	if !st.pending {
		delete(c.states, targetID)
	}
	c.cond.Broadcast()
	c.mu.Unlock()
}

// withTarget runs fn holding the target's slot exclusively. Match folds
// use this: every fold must run, serialized per derived-state target, so
// concurrent completions touching the same player or group cannot lose
// each other's read-modify-write.
func (c *Coordinator) withTarget(targetID string, fn func() error) error {
	st := c.lockTarget(targetID, false)
	err := fn()
	c.unlockTarget(targetID, st)
	return err
}

// runSerialized executes fn under the target's slot. If a recompute for
// the same target is already in flight the call is coalesced: one
// follow-up run is scheduled and the call returns immediately. Otherwise
// fn runs once the slot frees, repeating once per coalesced trigger that
// arrived meanwhile.
func (c *Coordinator) runSerialized(targetID string, fn func() error) error {
	c.mu.Lock()
	if st, ok := c.states[targetID]; ok && st.running && st.recompute {
		st.pending = true
		c.mu.Unlock()
		c.logger.Debug().Str("target_id", targetID).Msg("run coalesced into in-flight run")
		return nil
	}
	c.mu.Unlock()

	st := c.lockTarget(targetID, true)
	for {
		err := fn()

		c.mu.Lock()
		if st.pending {
			st.pending = false
			c.mu.Unlock()
			if err != nil {
				c.logger.Warn().Err(err).Str("target_id", targetID).Msg("run failed, coalesced follow-up runs anyway")
			}
			continue
		}
		st.running = false
		delete(c.states, targetID)
		c.cond.Broadcast()
		c.mu.Unlock()
		return err
	}
}

// OnMatchCompleted applies one completed match incrementally: ratings
// first, then the player and group documents, then the snapshots. Each
// fold runs under the slot of the target it mutates, so two completed
// matches sharing a player serialize on that player. Every step is
// idempotent, so a crash between steps is healed by re-triggering the
// same match.
func (c *Coordinator) OnMatchCompleted(ctx context.Context, matchID string) error {
	match, err := c.matchRepo.Get(ctx, matchID)
	if err != nil {
		return err
	}

	resolver, err := c.playerRepo.Resolver(ctx)
	if err != nil {
		return err
	}
	outcomes, warnings, err := jass.Normalize(match, resolver)
	if err != nil {
		return fmt.Errorf("failed to normalize match %s: %w", matchID, err)
	}
	for _, w := range warnings {
		c.logger.Warn().Str("match_id", w.MatchID).Int("game", w.GameNumber).Int("round", w.RoundIndex).Str("reason", w.Reason).Msg("normalization warning")
	}

	playerIDs := participantSet(outcomes)
	if err := c.matchRepo.ReplaceParticipants(ctx, match.ID, playerIDs); err != nil {
		return err
	}

	if err := c.withTarget(ratingTarget, func() error {
		_, err := c.ratings.ApplyMatch(ctx, match, outcomes)
		return err
	}); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for _, playerID := range playerIDs {
		g.Go(func() error {
			return c.withTarget(playerID, func() error {
				if _, err := c.playerStats.ApplyMatch(gctx, playerID, match, outcomes); err != nil {
					return err
				}
				return c.snapshots.PublishPlayerCharts(gctx, playerID)
			})
		})
	}
	g.Go(func() error {
		return c.withTarget(match.GroupID, func() error {
			if _, err := c.groupStats.ApplyMatch(gctx, match.GroupID, match, outcomes); err != nil {
				return err
			}
			return c.snapshots.PublishGroupLeaderboard(gctx, match.GroupID)
		})
	})
	if err := g.Wait(); err != nil {
		return err
	}

	c.logger.Info().Str("match_id", matchID).Str("group_id", match.GroupID).Int("games", len(outcomes)).Msg("match applied")
	return nil
}

// RecomputePlayer rebuilds one player's derived document and charts from
// scratch. Drift between the stored and rebuilt document is logged by the
// stats service and resolved in favor of the rebuild.
func (c *Coordinator) RecomputePlayer(ctx context.Context, playerID string) error {
	return c.runSerialized(playerID, func() error {
		if _, err := c.playerStats.Recompute(ctx, playerID); err != nil {
			return err
		}
		return c.snapshots.PublishPlayerCharts(ctx, playerID)
	})
}

// RecomputeGroup rebuilds one group's derived document and leaderboard
// from scratch.
func (c *Coordinator) RecomputeGroup(ctx context.Context, groupID string) error {
	return c.runSerialized(groupID, func() error {
		if _, err := c.groupStats.Recompute(ctx, groupID); err != nil {
			return err
		}
		return c.snapshots.PublishGroupLeaderboard(ctx, groupID)
	})
}

// BackfillAll rebuilds everything: the global rating history first (it
// interlocks across players and cannot be split), then every player and
// group target, fanned out in bounded batches. A failing batch aborts
// only its own remaining targets; later batches still run, and the
// collected errors are returned together.
func (c *Coordinator) BackfillAll(ctx context.Context) error {
	runID, err := gonanoid.New()
	if err != nil {
		return fmt.Errorf("failed to generate nanoid: %w", err)
	}
	logger := c.logger.With().Str("backfill_run_id", runID).Logger()
	logger.Info().Msg("backfill started")

	if err := c.ratings.ReplayAll(ctx); err != nil {
		return fmt.Errorf("rating replay failed: %w", err)
	}

	playerIDs, err := c.matchRepo.ListPlayerIDs(ctx)
	if err != nil {
		return err
	}
	groupIDs, err := c.matchRepo.ListGroupIDs(ctx)
	if err != nil {
		return err
	}

	var errs []error
	errs = append(errs, c.backfillTargets(ctx, playerIDs, c.RecomputePlayer)...)
	errs = append(errs, c.backfillTargets(ctx, groupIDs, c.RecomputeGroup)...)

	if len(errs) > 0 {
		logger.Error().Int("failed_batches", len(errs)).Msg("backfill finished with failures")
		return errors.Join(errs...)
	}
	logger.Info().Int("players", len(playerIDs)).Int("groups", len(groupIDs)).Msg("backfill finished")
	return nil
}

func (c *Coordinator) backfillTargets(ctx context.Context, targetIDs []string, recompute func(context.Context, string) error) []error {
	var errs []error
	for i := 0; i < len(targetIDs); i += constants.BackfillBatchSize {
		end := i + constants.BackfillBatchSize
		if end > len(targetIDs) {
			end = len(targetIDs)
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(c.concurrency)
		for _, targetID := range targetIDs[i:end] {
			g.Go(func() error {
				if err := recompute(gctx, targetID); err != nil {
					return fmt.Errorf("target %s: %w", targetID, err)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
