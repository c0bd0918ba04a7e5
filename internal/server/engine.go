package server

import (
	"database/sql"
	"net/http"

	"jassguru/internal/repository"
	"jassguru/internal/service"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// EngineServer exposes the aggregation engine over plain JSON endpoints:
// the match-completed trigger, the recompute and backfill triggers, and
// read access to the derived documents and snapshots.
type EngineServer struct {
	coordinator  *service.Coordinator
	statsRepo    *repository.StatsRepository
	ratingRepo   *repository.RatingRepository
	snapshotRepo *repository.SnapshotRepository
	logger       zerolog.Logger
}

func NewEngineServer(coordinator *service.Coordinator, statsRepo *repository.StatsRepository, ratingRepo *repository.RatingRepository, snapshotRepo *repository.SnapshotRepository, logger zerolog.Logger) *EngineServer {
	return &EngineServer{
		coordinator:  coordinator,
		statsRepo:    statsRepo,
		ratingRepo:   ratingRepo,
		snapshotRepo: snapshotRepo,
		logger:       logger,
	}
}

// Register mounts every engine route on the mux.
func (s *EngineServer) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/matches/{id}/complete", s.handleMatchCompleted)
	mux.HandleFunc("POST /v1/players/{id}/recompute", s.handleRecomputePlayer)
	mux.HandleFunc("POST /v1/groups/{id}/recompute", s.handleRecomputeGroup)
	mux.HandleFunc("POST /v1/backfill", s.handleBackfill)
	mux.HandleFunc("GET /v1/players/{id}/stats", s.handlePlayerStats)
	mux.HandleFunc("GET /v1/players/{id}/rating", s.handlePlayerRating)
	mux.HandleFunc("GET /v1/players/{id}/charts", s.handlePlayerCharts)
	mux.HandleFunc("GET /v1/groups/{id}/stats", s.handleGroupStats)
	mux.HandleFunc("GET /v1/groups/{id}/leaderboard", s.handleGroupLeaderboard)
	mux.HandleFunc("GET /v1/status/{id}", s.handleStatus)
	mux.HandleFunc("GET /healthz", s.handleHealth)
}

func (s *EngineServer) handleMatchCompleted(w http.ResponseWriter, r *http.Request) {
	matchID := r.PathValue("id")
	if err := s.coordinator.OnMatchCompleted(r.Context(), matchID); err != nil {
		s.logger.Error().Err(err).Str("match_id", matchID).Msg("match completion handling failed")
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "applied", "matchId": matchID})
}

func (s *EngineServer) handleRecomputePlayer(w http.ResponseWriter, r *http.Request) {
	playerID := r.PathValue("id")
	if err := s.coordinator.RecomputePlayer(r.Context(), playerID); err != nil {
		s.logger.Error().Err(err).Str("player_id", playerID).Msg("player recompute failed")
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "recomputed", "playerId": playerID})
}

func (s *EngineServer) handleRecomputeGroup(w http.ResponseWriter, r *http.Request) {
	groupID := r.PathValue("id")
	if err := s.coordinator.RecomputeGroup(r.Context(), groupID); err != nil {
		s.logger.Error().Err(err).Str("group_id", groupID).Msg("group recompute failed")
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "recomputed", "groupId": groupID})
}

func (s *EngineServer) handleBackfill(w http.ResponseWriter, r *http.Request) {
	if err := s.coordinator.BackfillAll(r.Context()); err != nil {
		s.logger.Error().Err(err).Msg("backfill failed")
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "backfilled"})
}

func (s *EngineServer) handlePlayerStats(w http.ResponseWriter, r *http.Request) {
	doc, err := s.statsRepo.GetPlayerStatsDoc(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeDoc(w, doc)
}

func (s *EngineServer) handlePlayerRating(w http.ResponseWriter, r *http.Request) {
	rating, err := s.ratingRepo.GetRating(r.Context(), r.PathValue("id"))
	if err == sql.ErrNoRows {
		writeDoc(w, nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, rating)
}

func (s *EngineServer) handlePlayerCharts(w http.ResponseWriter, r *http.Request) {
	doc, err := s.snapshotRepo.Get(r.Context(), r.PathValue("id"), repository.SnapshotKindCharts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeDoc(w, doc)
}

func (s *EngineServer) handleGroupStats(w http.ResponseWriter, r *http.Request) {
	doc, err := s.statsRepo.GetGroupStatsDoc(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeDoc(w, doc)
}

func (s *EngineServer) handleGroupLeaderboard(w http.ResponseWriter, r *http.Request) {
	doc, err := s.snapshotRepo.Get(r.Context(), r.PathValue("id"), repository.SnapshotKindLeaderboard)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeDoc(w, doc)
}

func (s *EngineServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	targetID := r.PathValue("id")
	writeJSON(w, http.StatusOK, map[string]string{
		"targetId": targetID,
		"status":   string(s.coordinator.Status(targetID)),
	})
}

func (s *EngineServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeDoc serves an already encoded document as-is, 404 when absent.
func writeDoc(w http.ResponseWriter, doc []byte) {
	if doc == nil {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(doc)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
