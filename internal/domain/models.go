package domain

import (
	"sort"
	"time"
)

type TeamSide string

const (
	TeamTop    TeamSide = "top"
	TeamBottom TeamSide = "bottom"
)

// Other returns the opposing side.
func (s TeamSide) Other() TeamSide {
	if s == TeamTop {
		return TeamBottom
	}
	return TeamTop
}

// WinnerKey is a TeamSide or "draw" for session-level results.
type WinnerKey string

const (
	WinnerTop    WinnerKey = "top"
	WinnerBottom WinnerKey = "bottom"
	WinnerDraw   WinnerKey = "draw"
)

type MatchKind string

const (
	MatchKindSession    MatchKind = "session"
	MatchKindTournament MatchKind = "tournament"
)

// StrichType is one of the five stroke categories chalked up on the board.
type StrichType string

const (
	StrichSieg         StrichType = "sieg"         // game win
	StrichBerg         StrichType = "berg"         // threshold win
	StrichMatsch       StrichType = "matsch"       // opponents took zero points
	StrichSchneider    StrichType = "schneider"    // loss below the schneider line
	StrichKontermatsch StrichType = "kontermatsch" // matsch against the declaring team
)

// StricheRecord holds the per-category stroke counts for one team.
type StricheRecord struct {
	Sieg         int `json:"sieg"`
	Berg         int `json:"berg"`
	Matsch       int `json:"matsch"`
	Schneider    int `json:"schneider"`
	Kontermatsch int `json:"kontermatsch"`
}

func (r StricheRecord) Sum() int {
	return r.Sieg + r.Berg + r.Matsch + r.Schneider + r.Kontermatsch
}

func (r *StricheRecord) Add(t StrichType, n int) {
	switch t {
	case StrichSieg:
		r.Sieg += n
	case StrichBerg:
		r.Berg += n
	case StrichMatsch:
		r.Matsch += n
	case StrichSchneider:
		r.Schneider += n
	case StrichKontermatsch:
		r.Kontermatsch += n
	}
}

func (r StricheRecord) Get(t StrichType) int {
	switch t {
	case StrichSieg:
		return r.Sieg
	case StrichBerg:
		return r.Berg
	case StrichMatsch:
		return r.Matsch
	case StrichSchneider:
		return r.Schneider
	case StrichKontermatsch:
		return r.Kontermatsch
	}
	return 0
}

// StricheTotals aggregates stroke records for both sides.
type StricheTotals struct {
	Top    StricheRecord `json:"top"`
	Bottom StricheRecord `json:"bottom"`
}

func (t StricheTotals) Side(s TeamSide) StricheRecord {
	if s == TeamTop {
		return t.Top
	}
	return t.Bottom
}

// TeamScores holds one numeric value per side (points, weis, rounds won).
type TeamScores struct {
	Top    int `json:"top"`
	Bottom int `json:"bottom"`
}

func (t TeamScores) Side(s TeamSide) int {
	if s == TeamTop {
		return t.Top
	}
	return t.Bottom
}

// StrichInfo marks a stroke-triggering event recorded on a round. A single
// round may carry several (a berg round can also be a matsch).
type StrichInfo struct {
	Team TeamSide   `json:"team"`
	Type StrichType `json:"type"`
}

// Round is one deal. Rounds are recorded by the live capture flow and are
// immutable inputs to the engine. Points may be absent on malformed legacy
// rounds; the evaluator skips those with a warning.
type Round struct {
	Index          int          `json:"index"`
	Trumpf         string       `json:"trumpf"`
	DeclarerSeat   int          `json:"declarerSeat"` // 1..4, 0 if unknown
	Points         *TeamScores  `json:"points,omitempty"`
	WeisPoints     TeamScores   `json:"weisPoints"`
	Strich         []StrichInfo `json:"strich,omitempty"`
	DurationMillis int64        `json:"durationMillis,omitempty"`
}

// TeamRosters carries the two resolved player ids per side.
type TeamRosters struct {
	Top    [2]string `json:"top"`
	Bottom [2]string `json:"bottom"`
}

func (t TeamRosters) Side(s TeamSide) [2]string {
	if s == TeamTop {
		return t.Top
	}
	return t.Bottom
}

func (t TeamRosters) All() []string {
	return []string{t.Top[0], t.Top[1], t.Bottom[0], t.Bottom[1]}
}

// SideOf returns the side a player is on, or false if the player is not
// part of the rosters.
func (t TeamRosters) SideOf(playerID string) (TeamSide, bool) {
	if t.Top[0] == playerID || t.Top[1] == playerID {
		return TeamTop, true
	}
	if t.Bottom[0] == playerID || t.Bottom[1] == playerID {
		return TeamBottom, true
	}
	return "", false
}

// Partner returns the teammate of a player within the rosters.
func (t TeamRosters) Partner(playerID string) (string, bool) {
	for _, pair := range [][2]string{t.Top, t.Bottom} {
		if pair[0] == playerID {
			return pair[1], true
		}
		if pair[1] == playerID {
			return pair[0], true
		}
	}
	return "", false
}

// GameOutcome is one complete game, derived deterministically from a
// match's raw games by the normalizer. Never hand-edited.
type GameOutcome struct {
	MatchID         string        `json:"matchId"`
	GameNumber      int           `json:"gameNumber"` // 1-based index within the match
	Teams           TeamRosters   `json:"teams"`
	FinalScores     TeamScores    `json:"finalScores"`
	WeisPoints      TeamScores    `json:"weisPoints"`
	Striche         StricheTotals `json:"striche"`
	WinnerTeam      TeamSide      `json:"winnerTeam"`
	CompletedAt     time.Time     `json:"completedAt"`
	DurationSeconds int64         `json:"durationSeconds,omitempty"`
	TournamentID    string        `json:"tournamentId,omitempty"`
}

// RawGame is one game as recorded inside a MatchRecord. Session games share
// the match-level rosters; tournament passes carry their own because
// pairings rotate between passes.
type RawGame struct {
	GameNumber      int           `json:"gameNumber"`
	Teams           *RawRosters   `json:"teams,omitempty"`
	Rounds          []Round       `json:"rounds,omitempty"`
	FinalScores     TeamScores    `json:"finalScores"`
	FinalStriche    StricheTotals `json:"finalStriche"`
	WeisPoints      TeamScores    `json:"weisPoints"`
	WinnerTeam      TeamSide      `json:"winnerTeam"`
	CompletedAt     time.Time     `json:"completedAt"`
	DurationSeconds int64         `json:"durationSeconds,omitempty"`
}

// RawRosters holds roster ids as recorded by the capture flow. These may be
// transient seat or auth identifiers and must be resolved to canonical
// player ids before the engine touches them.
type RawRosters struct {
	Top    []string `json:"top"`
	Bottom []string `json:"bottom"`
}

type WinLoss struct {
	Wins   int `json:"wins"`
	Losses int `json:"losses"`
}

// MatchRecord is one completed sitting: either a session (fixed foursome,
// one or more games) or a tournament (many passes with rotating pairings,
// aggregated into one summary). Immutable input to the engine.
type MatchRecord struct {
	ID               string             `json:"id"`
	GroupID          string             `json:"groupId"`
	Kind             MatchKind          `json:"kind"`
	ParticipantIDs   []string           `json:"participantPlayerIds"`
	Teams            *RawRosters        `json:"teams,omitempty"` // nil for tournaments
	Games            []RawGame          `json:"games"`
	FinalScores      TeamScores         `json:"finalScores"`
	FinalStriche     *StricheTotals     `json:"finalStriche,omitempty"`
	SessionWeis      TeamScores         `json:"sessionTotalWeisPoints"`
	WinnerTeamKey    WinnerKey          `json:"winnerTeamKey"`
	TournamentID     string             `json:"tournamentId,omitempty"`
	TournamentName   string             `json:"tournamentName,omitempty"`
	StartedAt        time.Time          `json:"startedAt"`
	EndedAt          time.Time          `json:"endedAt"`
	DurationSeconds  int64              `json:"durationSeconds,omitempty"`
	GamesPlayed      int                `json:"gamesPlayed"`
	TotalRounds      int                `json:"totalRounds,omitempty"`
	GameWinsByPlayer map[string]WinLoss `json:"gameWinsByPlayer,omitempty"`
}

// RawParticipantIDs returns every player id the record mentions: the
// explicit participant list, the match-level rosters and the per-game
// rosters. Sorted and de-duplicated. Roster ids may still be transient
// capture identifiers; the resolved set replaces these in the participant
// index once the match is normalized.
func (m *MatchRecord) RawParticipantIDs() []string {
	seen := map[string]bool{}
	var ids []string
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for _, id := range m.ParticipantIDs {
		add(id)
	}
	addRosters := func(r *RawRosters) {
		if r == nil {
			return
		}
		for _, id := range r.Top {
			add(id)
		}
		for _, id := range r.Bottom {
			add(id)
		}
	}
	addRosters(m.Teams)
	for _, g := range m.Games {
		addRosters(g.Teams)
	}
	sort.Strings(ids)
	return ids
}

// IsTournament reports whether the record is a tournament bundle. The raw
// shape is disambiguated by the presence of per-game rosters.
func (m *MatchRecord) IsTournament() bool {
	if m.Kind == MatchKindTournament {
		return true
	}
	for _, g := range m.Games {
		if g.Teams != nil {
			return true
		}
	}
	return false
}

// RatingEntry is one immutable rating-history record per player per
// completed game. The four deltas of one game sum to zero.
type RatingEntry struct {
	ID         string    `json:"id"`
	PlayerID   string    `json:"playerId"`
	MatchID    string    `json:"matchId"`
	GameNumber int       `json:"gameNumber"`
	Rating     float64   `json:"rating"` // rating after the event
	Delta      float64   `json:"delta"`
	CreatedAt  time.Time `json:"createdAt"`
}

// PlayerRating is the mutable rating head of one player.
type PlayerRating struct {
	PlayerID         string    `json:"playerId"`
	DisplayName      string    `json:"displayName,omitempty"`
	Rating           float64   `json:"rating"`
	GamesPlayed      int       `json:"gamesPlayed"`
	LastDelta        float64   `json:"lastDelta"`
	LastSessionDelta float64   `json:"lastSessionDelta"`
	PeakRating       float64   `json:"peakRating"`
	PeakRatingAt     time.Time `json:"peakRatingAt,omitempty"`
	LowestRating     float64   `json:"lowestRating"`
	LowestRatingAt   time.Time `json:"lowestRatingAt,omitempty"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

type Player struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName"`
	AuthUIDs    []string  `json:"authUids,omitempty"` // transient identifiers mapping to this player
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type Group struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	PlayerIDs []string  `json:"playerIds"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
