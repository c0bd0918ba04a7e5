package constants

import "time"

// Elo parameters. Kept in sync with the historical rating data; changing
// them invalidates every stored RatingEntry until the next full backfill.
const (
	EloKFactor       = 16.0
	EloDefaultRating = 100.0
	EloScale         = 1000.0
)

const (
	DatabaseTimeout  = 5 * time.Second
	RecomputeTimeout = 60 * time.Second
	RequestTimeout   = 30 * time.Second
)

const (
	DBMaxOpenConns    = 100
	DBMaxIdleConns    = 10
	DBConnMaxLifetime = 1 * time.Hour
	DBMaxIdleTime     = 10 * time.Minute
	DBBatchSize       = 100
)

const (
	// BackfillBatchSize bounds how many targets one backfill shard commits
	// before moving on; a shard failure aborts only the remaining targets.
	BackfillBatchSize = 200
	// RecomputeConcurrency bounds the coordinator fan-out across
	// independent targets.
	RecomputeConcurrency = 8
)

const (
	LeaderboardTopN = 10
	// MinSessionsForRate keeps one-session wonders off the win-rate
	// leaderboards.
	MinSessionsForRate = 3
	MinGamesForRate    = 5
)

const (
	ShutdownTimeout = 5 * time.Second
)
