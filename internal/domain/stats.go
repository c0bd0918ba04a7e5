package domain

import (
	"time"
)

// StatHighlight is a single-winner-per-category record (best or worst). On
// a tie the earlier occurrence keeps the record.
type StatHighlight struct {
	Type        string    `json:"type"`
	Value       int       `json:"value"`
	Date        time.Time `json:"date"`
	RelatedID   string    `json:"relatedId,omitempty"`
	RelatedType string    `json:"relatedType,omitempty"` // "game", "session" or "tournament"
	Label       string    `json:"label,omitempty"`
}

// StatStreak records the longest run of a kind, with the sessions that
// bounded it.
type StatStreak struct {
	Value          int       `json:"value"`
	StartDate      time.Time `json:"startDate,omitempty"`
	EndDate        time.Time `json:"endDate,omitempty"`
	StartSessionID string    `json:"startSessionId,omitempty"`
	EndSessionID   string    `json:"endSessionId,omitempty"`
}

// WinRateInfo keeps the fraction alongside the rate so the UI can render
// "12/17 = 70.6%" without re-deriving it.
type WinRateInfo struct {
	Wins  int     `json:"wins"`
	Total int     `json:"total"`
	Rate  float64 `json:"rate"`
}

// PartnerAggregate accumulates everything a player did together with one
// teammate.
type PartnerAggregate struct {
	PartnerID                string      `json:"partnerId"`
	SessionsPlayedWith       int         `json:"sessionsPlayedWith"`
	SessionsWonWith          int         `json:"sessionsWonWith"`
	GamesPlayedWith          int         `json:"gamesPlayedWith"`
	GamesWonWith             int         `json:"gamesWonWith"`
	PointsWith               int         `json:"totalPointsWith"`
	PointsDifferenceWith     int         `json:"totalPointsDifferenceWith"`
	StricheDifferenceWith    int         `json:"totalStricheDifferenceWith"`
	MatschMadeWith           int         `json:"matschEventsMadeWith"`
	MatschReceivedWith       int         `json:"matschEventsReceivedWith"`
	SchneiderMadeWith        int         `json:"schneiderEventsMadeWith"`
	SchneiderReceivedWith    int         `json:"schneiderEventsReceivedWith"`
	KontermatschMadeWith     int         `json:"kontermatschEventsMadeWith"`
	KontermatschReceivedWith int         `json:"kontermatschEventsReceivedWith"`
	LastPlayedWith           time.Time   `json:"lastPlayedWith,omitempty"`
	SessionWinRate           WinRateInfo `json:"sessionWinRateInfo"`
	GameWinRate              WinRateInfo `json:"gameWinRateInfo"`
}

// OpponentAggregate accumulates everything a player did against one
// opponent.
type OpponentAggregate struct {
	OpponentID                  string      `json:"opponentId"`
	SessionsPlayedAgainst       int         `json:"sessionsPlayedAgainst"`
	SessionsWonAgainst          int         `json:"sessionsWonAgainst"`
	GamesPlayedAgainst          int         `json:"gamesPlayedAgainst"`
	GamesWonAgainst             int         `json:"gamesWonAgainst"`
	PointsAgainst               int         `json:"totalPointsScoredWhenOpponent"`
	PointsDifferenceAgainst     int         `json:"totalPointsDifferenceAgainst"`
	StricheDifferenceAgainst    int         `json:"totalStricheDifferenceAgainst"`
	MatschMadeAgainst           int         `json:"matschEventsMadeAgainst"`
	MatschReceivedAgainst       int         `json:"matschEventsReceivedAgainst"`
	SchneiderMadeAgainst        int         `json:"schneiderEventsMadeAgainst"`
	SchneiderReceivedAgainst    int         `json:"schneiderEventsReceivedAgainst"`
	KontermatschMadeAgainst     int         `json:"kontermatschEventsMadeAgainst"`
	KontermatschReceivedAgainst int         `json:"kontermatschEventsReceivedAgainst"`
	LastPlayedAgainst           time.Time   `json:"lastPlayedAgainst,omitempty"`
	SessionWinRate              WinRateInfo `json:"sessionWinRateInfo"`
	GameWinRate                 WinRateInfo `json:"gameWinRateInfo"`
}

// StreakState carries the running streak counters inside the stats doc so
// an incremental fold continues exactly where the last one stopped.
type StreakState struct {
	SessionWin        int `json:"sessionWin"`
	SessionLoss       int `json:"sessionLoss"`
	SessionWinless    int `json:"sessionWinless"`
	SessionUndefeated int `json:"sessionUndefeated"`
	GameWin           int `json:"gameWin"`
	GameLoss          int `json:"gameLoss"`
	GameWinless       int `json:"gameWinless"`
	GameUndefeated    int `json:"gameUndefeated"`

	SessionWinStartID        string    `json:"sessionWinStartId,omitempty"`
	SessionWinStartAt        time.Time `json:"sessionWinStartAt,omitempty"`
	SessionLossStartID       string    `json:"sessionLossStartId,omitempty"`
	SessionLossStartAt       time.Time `json:"sessionLossStartAt,omitempty"`
	SessionWinlessStartID    string    `json:"sessionWinlessStartId,omitempty"`
	SessionWinlessStartAt    time.Time `json:"sessionWinlessStartAt,omitempty"`
	SessionUndefeatedStartID string    `json:"sessionUndefeatedStartId,omitempty"`
	SessionUndefeatedStartAt time.Time `json:"sessionUndefeatedStartAt,omitempty"`

	GameWinStartID        string    `json:"gameWinStartId,omitempty"`
	GameWinStartAt        time.Time `json:"gameWinStartAt,omitempty"`
	GameLossStartID       string    `json:"gameLossStartId,omitempty"`
	GameLossStartAt       time.Time `json:"gameLossStartAt,omitempty"`
	GameWinlessStartID    string    `json:"gameWinlessStartId,omitempty"`
	GameWinlessStartAt    time.Time `json:"gameWinlessStartAt,omitempty"`
	GameUndefeatedStartID string    `json:"gameUndefeatedStartId,omitempty"`
	GameUndefeatedStartAt time.Time `json:"gameUndefeatedStartAt,omitempty"`
}

// PlayerComputedStats is the fully derived statistics document of one
// player. It is always reproducible from the player's match history.
type PlayerComputedStats struct {
	PlayerID    string    `json:"playerId"`
	FirstJassAt time.Time `json:"firstJassTimestamp,omitempty"`
	LastJassAt  time.Time `json:"lastJassTimestamp,omitempty"`

	TotalSessions        int   `json:"totalSessions"`
	TotalGames           int   `json:"totalGames"`
	TotalPlayTimeSeconds int64 `json:"totalPlayTimeSeconds"`

	SessionWins   int `json:"sessionWins"`
	SessionTies   int `json:"sessionTies"`
	SessionLosses int `json:"sessionLosses"`
	GameWins      int `json:"gameWins"`
	GameLosses    int `json:"gameLosses"`

	TotalStricheMade       int `json:"totalStricheMade"`
	TotalStricheReceived   int `json:"totalStricheReceived"`
	TotalStricheDifference int `json:"totalStricheDifference"`
	TotalPointsMade        int `json:"totalPointsMade"`
	TotalPointsReceived    int `json:"totalPointsReceived"`
	TotalPointsDifference  int `json:"totalPointsDifference"`
	TotalWeisMade          int `json:"playerTotalWeisMade"`
	TotalWeisReceived      int `json:"playerTotalWeisReceived"`
	WeisDifference         int `json:"weisDifference"`

	MatschMade           int `json:"totalMatschEventsMade"`
	MatschReceived       int `json:"totalMatschEventsReceived"`
	SchneiderMade        int `json:"totalSchneiderEventsMade"`
	SchneiderReceived    int `json:"totalSchneiderEventsReceived"`
	KontermatschMade     int `json:"totalKontermatschEventsMade"`
	KontermatschReceived int `json:"totalKontermatschEventsReceived"`
	MatschBilanz         int `json:"matschBilanz"`
	SchneiderBilanz      int `json:"schneiderBilanz"`
	KontermatschBilanz   int `json:"kontermatschBilanz"`

	SessionWinRate WinRateInfo `json:"sessionWinRateInfo"`
	GameWinRate    WinRateInfo `json:"gameWinRateInfo"`

	AvgPointsPerGame       float64 `json:"avgPointsPerGame"`
	AvgStrichePerGame      float64 `json:"avgStrichePerGame"`
	AvgWeisPointsPerGame   float64 `json:"avgWeisPointsPerGame"`
	AvgMatschPerGame       float64 `json:"avgMatschPerGame"`
	AvgSchneiderPerGame    float64 `json:"avgSchneiderPerGame"`
	AvgKontermatschPerGame float64 `json:"avgKontermatschPerGame"`

	TotalTournaments     int `json:"totalTournamentsParticipated"`
	TotalTournamentGames int `json:"totalTournamentGamesPlayed"`

	Streaks StreakState `json:"streaks"`

	LongestWinStreakSessions        *StatStreak `json:"longestWinStreakSessions,omitempty"`
	LongestLossStreakSessions       *StatStreak `json:"longestLossStreakSessions,omitempty"`
	LongestWinlessStreakSessions    *StatStreak `json:"longestWinlessStreakSessions,omitempty"`
	LongestUndefeatedStreakSessions *StatStreak `json:"longestUndefeatedStreakSessions,omitempty"`
	LongestWinStreakGames           *StatStreak `json:"longestWinStreakGames,omitempty"`
	LongestLossStreakGames          *StatStreak `json:"longestLossStreakGames,omitempty"`
	LongestWinlessStreakGames       *StatStreak `json:"longestWinlessStreakGames,omitempty"`
	LongestUndefeatedStreakGames    *StatStreak `json:"longestUndefeatedStreakGames,omitempty"`

	HighestPointsGame             *StatHighlight `json:"highestPointsGame,omitempty"`
	LowestPointsGame              *StatHighlight `json:"lowestPointsGame,omitempty"`
	HighestStricheGame            *StatHighlight `json:"highestStricheGame,omitempty"`
	HighestStricheReceivedGame    *StatHighlight `json:"highestStricheReceivedGame,omitempty"`
	MostWeisPointsGame            *StatHighlight `json:"mostWeisPointsGame,omitempty"`
	HighestPointsSession          *StatHighlight `json:"highestPointsSession,omitempty"`
	LowestPointsSession           *StatHighlight `json:"lowestPointsSession,omitempty"`
	HighestStricheSession         *StatHighlight `json:"highestStricheSession,omitempty"`
	HighestStricheReceivedSession *StatHighlight `json:"highestStricheReceivedSession,omitempty"`
	MostMatschSession             *StatHighlight `json:"mostMatschSession,omitempty"`
	MostMatschReceivedSession     *StatHighlight `json:"mostMatschReceivedSession,omitempty"`
	MostWeisPointsSession         *StatHighlight `json:"mostWeisPointsSession,omitempty"`
	MostWeisPointsReceivedSession *StatHighlight `json:"mostWeisPointsReceivedSession,omitempty"`

	PartnerAggregates  []PartnerAggregate  `json:"partnerAggregates"`
	OpponentAggregates []OpponentAggregate `json:"opponentAggregates"`

	TrumpfStatistik  map[string]int `json:"trumpfStatistik,omitempty"`
	TotalTrumpfCount int            `json:"totalTrumpfCount"`
}

// NewPlayerComputedStats returns the zero document an aggregate fold
// starts from.
func NewPlayerComputedStats(playerID string) *PlayerComputedStats {
	return &PlayerComputedStats{
		PlayerID:           playerID,
		PartnerAggregates:  []PartnerAggregate{},
		OpponentAggregates: []OpponentAggregate{},
		TrumpfStatistik:    map[string]int{},
	}
}

// LeaderboardRow is one ranked entry of a group leaderboard category. The
// EventCount says how many qualifying events back the value.
type LeaderboardRow struct {
	PlayerID   string   `json:"playerId,omitempty"`
	PlayerIDs  []string `json:"playerIds,omitempty"` // team categories
	Value      float64  `json:"value"`
	EventCount int      `json:"eventCount"`
}

// GroupPlayerTotals is the per-player running tally carried inside the
// group document. Leaderboards are re-derived from these after every
// fold, which keeps incremental and full recomputes equivalent.
type GroupPlayerTotals struct {
	Sessions           int `json:"sessions"`
	SessionWins        int `json:"sessionWins"`
	SessionLosses      int `json:"sessionLosses"`
	Games              int `json:"games"`
	GameWins           int `json:"gameWins"`
	PointsDiff         int `json:"pointsDiff"`
	StricheDiff        int `json:"stricheDiff"`
	MatschBilanz       int `json:"matschBilanz"`
	SchneiderBilanz    int `json:"schneiderBilanz"`
	KontermatschBilanz int `json:"kontermatschBilanz"`
	WeisPoints         int `json:"weisPoints"`
}

// GroupTeamTotals is the running tally of one fixed pairing, keyed by the
// sorted pair of player ids.
type GroupTeamTotals struct {
	PlayerIDs   [2]string `json:"playerIds"`
	Games       int       `json:"games"`
	GameWins    int       `json:"gameWins"`
	PointsDiff  int       `json:"pointsDiff"`
	StricheDiff int       `json:"stricheDiff"`
}

// GroupComputedStats is the fully derived statistics document of one group.
type GroupComputedStats struct {
	GroupID                string    `json:"groupId"`
	MemberCount            int       `json:"memberCount"`
	SessionCount           int       `json:"sessionCount"`
	GameCount              int       `json:"gameCount"`
	TournamentCount        int       `json:"tournamentCount"`
	TotalRounds            int       `json:"totalRounds"`
	TotalPlayTimeSeconds   int64     `json:"totalPlayTimeSeconds"`
	AvgGameDurationSeconds float64   `json:"avgGameDurationSeconds"`
	FirstJassAt            time.Time `json:"firstJassTimestamp,omitempty"`
	LastJassAt             time.Time `json:"lastJassTimestamp,omitempty"`

	TrumpfStatistik  map[string]int `json:"trumpfStatistik,omitempty"`
	TotalTrumpfCount int            `json:"totalTrumpfCount"`

	// Player leaderboards, each sorted best-first, capped at the top N.
	PlayerMostGames          []LeaderboardRow `json:"playerMostGames"`
	PlayerPointsDiff         []LeaderboardRow `json:"playerPointsDiff"`
	PlayerStricheDiff        []LeaderboardRow `json:"playerStricheDiff"`
	PlayerSessionWinRate     []LeaderboardRow `json:"playerSessionWinRate"`
	PlayerGameWinRate        []LeaderboardRow `json:"playerGameWinRate"`
	PlayerMatschBilanz       []LeaderboardRow `json:"playerMatschBilanz"`
	PlayerSchneiderBilanz    []LeaderboardRow `json:"playerSchneiderBilanz"`
	PlayerKontermatschBilanz []LeaderboardRow `json:"playerKontermatschBilanz"`
	PlayerWeisAvg            []LeaderboardRow `json:"playerWeisAvg"`

	// Team (fixed pairing) leaderboards.
	TeamGameWinRate []LeaderboardRow `json:"teamGameWinRate"`
	TeamPointsDiff  []LeaderboardRow `json:"teamPointsDiff"`
	TeamStricheDiff []LeaderboardRow `json:"teamStricheDiff"`

	// Running tallies the leaderboards are derived from.
	PlayerTotals map[string]*GroupPlayerTotals `json:"playerTotals"`
	TeamTotals   map[string]*GroupTeamTotals   `json:"teamTotals"`
}

// NewGroupComputedStats returns the zero document for a group fold.
func NewGroupComputedStats(groupID string) *GroupComputedStats {
	return &GroupComputedStats{
		GroupID:         groupID,
		TrumpfStatistik: map[string]int{},
		PlayerTotals:    map[string]*GroupPlayerTotals{},
		TeamTotals:      map[string]*GroupTeamTotals{},
	}
}

// LeaderboardEntry is one row of the read-optimized rating leaderboard
// snapshot. Never authoritative.
type LeaderboardEntry struct {
	PlayerID    string  `json:"playerId"`
	DisplayName string  `json:"displayName,omitempty"`
	Rating      float64 `json:"rating"`
	GamesPlayed int     `json:"gamesPlayed"`
	LastDelta   float64 `json:"lastDelta"`
	Tier        string  `json:"tier"`
	TierEmoji   string  `json:"tierEmoji"`
}

// ChartPoint is one value of a cumulative time series.
type ChartPoint struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// ChartSeries is a chart-ready cumulative series for one player, rebuilt
// from the canonical histories on every recompute.
type ChartSeries struct {
	PlayerID string       `json:"playerId"`
	Metric   string       `json:"metric"` // "rating", "stricheDiff", "weisDiff"
	Points   []ChartPoint `json:"points"`
}
