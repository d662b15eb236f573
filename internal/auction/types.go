package auction

import (
	"time"

	"github.com/lox/blindbid/internal/catalog"
)

// Status is the session-level lifecycle state.
type Status string

const (
	StatusLobby      Status = "lobby"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Phase is the state of the current round as reported to clients. Lobby and
// completed mirror the session status when no round is open.
type Phase string

const (
	PhaseLobby     Phase = "lobby"
	PhaseBidding   Phase = "bidding"
	PhaseReveal    Phase = "reveal"
	PhaseCompleted Phase = "completed"
)

// DefaultStartingBalance is the credit every player starts with.
const DefaultStartingBalance = 1000

// Rules are the per-game policy knobs.
type Rules struct {
	StartingBalance int
	// MinPlayers counts the host. One means a solo host may start.
	MinPlayers int
	// MaxPlayers caps joins; zero means unbounded.
	MaxPlayers int
	// AutoSettle settles a round as soon as every player has locked a bid.
	AutoSettle bool
}

// DefaultRules returns the permissive defaults used by the browser client.
func DefaultRules() Rules {
	return Rules{
		StartingBalance: DefaultStartingBalance,
		MinPlayers:      1,
	}
}

// Player is a participant's public state.
type Player struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	IsHost   bool      `json:"isHost"`
	Balance  int       `json:"balance"`
	JoinedAt time.Time `json:"-"`
	Wins     []Win     `json:"wins"`
}

func (p *Player) clone() Player {
	c := *p
	c.Wins = append([]Win(nil), p.Wins...)
	return c
}

// Win records an item a player bought and what it earned them.
type Win struct {
	ItemID  string `json:"itemId"`
	Name    string `json:"name"`
	Emoji   string `json:"emoji"`
	Value   int    `json:"value"`
	Bid     int    `json:"bid"`
	NetGain int    `json:"netGain"`
}

// Bid is a locked, write-once bid for one round.
type Bid struct {
	PlayerID    string    `json:"playerId"`
	RoundIndex  int       `json:"roundIndex"`
	Amount      int       `json:"amount"`
	SubmittedAt time.Time `json:"submittedAt"`
	// seq orders bids that share a timestamp; it is assigned under the
	// session lock so it always agrees with arrival order.
	seq int
}

// PlayerRef identifies a player inside a summary.
type PlayerRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// BidResult is one line of a settled round's bid board. Players who never
// bid appear with Amount zero and Submitted false.
type BidResult struct {
	PlayerID  string `json:"playerId"`
	Name      string `json:"name"`
	Amount    int    `json:"amount"`
	Submitted bool   `json:"submitted"`
}

// RoundSummary is produced exactly once, when a round is settled. It is never
// modified afterwards, so it may be shared between snapshots.
type RoundSummary struct {
	RoundIndex int          `json:"roundIndex"`
	Item       catalog.Item `json:"item"`
	Winner     *PlayerRef   `json:"winner"`
	WinningBid int          `json:"winningBid"`
	NetGain    int          `json:"netGain"`
	Bids       []BidResult  `json:"bids"`
	Timestamp  int64        `json:"timestamp"`
}

// Position identifies a point in the game's progression. It doubles as a
// fencing token for host commands.
type Position struct {
	Round int   `json:"round"`
	Phase Phase `json:"phase"`
}

// Action is what an Advance call did.
type Action string

const (
	ActionSettled   Action = "settled"
	ActionNextRound Action = "next"
	ActionCompleted Action = "completed"
	ActionNone      Action = "none"
)

// AdvanceResult reports the outcome of a host Advance.
type AdvanceResult struct {
	Action   Action        `json:"status"`
	Position Position      `json:"position"`
	Summary  *RoundSummary `json:"roundSummary,omitempty"`
	// Replayed is set when the call matched an already-applied step.
	Replayed bool `json:"replayed"`
}

// Standing is a player's final position.
type Standing struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Balance int    `json:"balance"`
}

// Results are the final standings of a completed game.
type Results struct {
	GameID      string         `json:"gameId"`
	CompletedAt time.Time      `json:"completedAt"`
	Standings   []Standing     `json:"standings"`
	Winner      *Standing      `json:"winner"`
	History     []RoundSummary `json:"history"`
}
