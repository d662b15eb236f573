// Package auction implements the blind-auction game engine: one Session per
// game, owning its players, its rounds and the settlement rules.
package auction

import (
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/quartz"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lox/blindbid/internal/catalog"
	"github.com/lox/blindbid/internal/gameerr"
)

// Session is one game. All mutations take the write lock, so operations on a
// single game are linearized; snapshots only need the read lock.
type Session struct {
	id     string
	rules  Rules
	clock  quartz.Clock
	logger zerolog.Logger
	newID  func() string

	mu           sync.RWMutex
	status       Status
	items        []catalog.Item
	currentIndex int
	current      *Round
	history      []*Round
	players      *registry
	version      uint64
	createdAt    time.Time
	completedAt  time.Time

	lastActivity atomic.Int64
}

// Config carries a Session's collaborators. Zero values get defaults.
type Config struct {
	Rules  Rules
	Clock  quartz.Clock
	Logger zerolog.Logger
	// NewPlayerID generates opaque player tokens.
	NewPlayerID func() string
}

func defaultPlayerID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// NewSession creates a game in the lobby with its host as the only player.
func NewSession(id, hostName string, items []catalog.Item, cfg Config) (*Session, Player, error) {
	if len(items) == 0 {
		return nil, Player{}, gameerr.Wrap(gameerr.ErrInvalidCatalog, "at least one item is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = quartz.NewReal()
	}
	if cfg.NewPlayerID == nil {
		cfg.NewPlayerID = defaultPlayerID
	}
	if cfg.Rules.StartingBalance <= 0 {
		cfg.Rules.StartingBalance = DefaultStartingBalance
	}
	if cfg.Rules.MinPlayers < 1 {
		cfg.Rules.MinPlayers = 1
	}

	now := cfg.Clock.Now()
	s := &Session{
		id:        id,
		rules:     cfg.Rules,
		clock:     cfg.Clock,
		logger:    cfg.Logger.With().Str("game_id", id).Logger(),
		newID:     cfg.NewPlayerID,
		status:    StatusLobby,
		items:     append([]catalog.Item(nil), items...),
		players:   newRegistry(),
		createdAt: now,
	}
	s.touch(now)

	host := s.players.add(s.newID(), normalizeName(hostName, defaultHostName), true, s.rules.StartingBalance, now)
	s.logger.Info().Str("player_id", host.ID).Int("items", len(items)).Msg("Game created")

	return s, host.clone(), nil
}

// ID returns the game code.
func (s *Session) ID() string {
	return s.id
}

// Status returns the current lifecycle state.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// LastActivity is the time of the most recent read or write.
func (s *Session) LastActivity() time.Time {
	return time.Unix(0, s.lastActivity.Load())
}

func (s *Session) touch(now time.Time) {
	s.lastActivity.Store(now.UnixNano())
}

// commit records an accepted mutation.
func (s *Session) commit(now time.Time) {
	s.version++
	s.touch(now)
}

// AddPlayer joins a new player while the game is still in the lobby.
func (s *Session) AddPlayer(name string) (Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusLobby {
		return Player{}, gameerr.ErrGameAlreadyStarted
	}
	if s.rules.MaxPlayers > 0 && s.players.len() >= s.rules.MaxPlayers {
		return Player{}, gameerr.ErrGameFull
	}

	now := s.clock.Now()
	p := s.players.add(s.newID(), normalizeName(name, defaultPlayerName), false, s.rules.StartingBalance, now)
	s.commit(now)

	s.logger.Info().Str("player_id", p.ID).Str("name", p.Name).Int("players", s.players.len()).Msg("Player joined")
	return p.clone(), nil
}

// Player looks up a player by ID.
func (s *Session) Player(playerID string) (Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, err := s.players.get(playerID)
	if err != nil {
		return Player{}, err
	}
	return p.clone(), nil
}

// Start opens the first round. Only the host may start, and only from the
// lobby with at least Rules.MinPlayers present.
func (s *Session) Start(requesterID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.players.isHost(requesterID) {
		return gameerr.ErrNotHost
	}
	if s.status != StatusLobby {
		return gameerr.ErrGameAlreadyStarted
	}
	if s.players.len() < s.rules.MinPlayers {
		return gameerr.Wrap(gameerr.ErrNotEnoughPlayers, "need %d, have %d", s.rules.MinPlayers, s.players.len())
	}

	now := s.clock.Now()
	s.status = StatusInProgress
	s.currentIndex = 0
	s.current = newRound(0, s.items[0])
	s.commit(now)

	s.logger.Info().Int("players", s.players.len()).Msg("Game started")
	return nil
}

// SubmitBid locks a player's bid for the current round. Bids are write-once:
// a second submission for the same round fails with ErrBidAlreadyLocked.
func (s *Session) SubmitBid(playerID string, amount int) (Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusInProgress || s.current == nil || s.current.Phase != PhaseBidding {
		return Bid{}, gameerr.ErrBiddingClosed
	}
	p, err := s.players.get(playerID)
	if err != nil {
		return Bid{}, err
	}

	now := s.clock.Now()
	bid, err := s.current.lock(p, amount, now)
	if err != nil {
		s.logger.Debug().Err(err).Str("player_id", playerID).Int("amount", amount).Msg("Bid rejected")
		return Bid{}, err
	}
	s.commit(now)

	s.logger.Debug().Str("player_id", playerID).Int("round", s.currentIndex).Msg("Bid locked")

	if s.rules.AutoSettle && len(s.current.bids) == s.players.len() {
		s.settleRound(now)
	}
	return bid, nil
}

// Advance is the host's single "next" action. On a round still open for
// bids it settles the round; on a settled round it opens the next one or
// completes the game. The two steps are separate so a settlement is always
// recorded before the game moves past it.
//
// When expect is set, the call only acts if the game is at that position.
// If the game is exactly one step past it the call is treated as a retry of
// an already-applied command and changes nothing.
func (s *Session) Advance(requesterID string, expect *Position) (AdvanceResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.players.isHost(requesterID) {
		return AdvanceResult{}, gameerr.ErrNotHost
	}

	cur := s.position()
	if expect != nil && *expect != cur {
		if next, ok := s.nextPosition(*expect); ok && next == cur {
			s.touch(s.clock.Now())
			return AdvanceResult{Action: ActionNone, Position: cur, Replayed: true}, nil
		}
		return AdvanceResult{}, gameerr.Wrap(gameerr.ErrStaleAdvance, "expected round %d %s, at round %d %s",
			expect.Round, expect.Phase, cur.Round, cur.Phase)
	}

	if s.status != StatusInProgress {
		return AdvanceResult{}, gameerr.ErrGameNotInProgress
	}

	now := s.clock.Now()
	switch s.current.Phase {
	case PhaseBidding:
		summary := s.settleRound(now)
		return AdvanceResult{Action: ActionSettled, Position: s.position(), Summary: summary}, nil
	default:
		action := s.nextRound(now)
		return AdvanceResult{Action: action, Position: s.position()}, nil
	}
}

// settleRound closes bidding on the current round and appends it to history.
func (s *Session) settleRound(now time.Time) *RoundSummary {
	before := s.players.totalBalance()
	summary := s.current.settle(s.players, now)
	s.history = append(s.history, s.current)
	s.commit(now)

	ev := s.logger.Info().
		Int("round", s.current.Index).
		Str("item", s.current.Item.Name).
		Int("bids", len(s.current.bids)).
		Int("bank_delta", s.players.totalBalance()-before)
	if summary.Winner != nil {
		ev = ev.Str("winner_id", summary.Winner.ID).Int("winning_bid", summary.WinningBid).Int("net_gain", summary.NetGain)
	}
	ev.Msg("Round settled")

	return summary
}

// nextRound moves past a settled round.
func (s *Session) nextRound(now time.Time) Action {
	s.currentIndex++
	if s.currentIndex >= len(s.items) {
		s.currentIndex = len(s.items)
		s.current = nil
		s.status = StatusCompleted
		s.completedAt = now
		s.commit(now)
		s.logger.Info().Int("rounds", len(s.history)).Msg("Game completed")
		return ActionCompleted
	}

	s.current = newRound(s.currentIndex, s.items[s.currentIndex])
	s.commit(now)
	s.logger.Debug().Int("round", s.currentIndex).Msg("Round opened")
	return ActionNextRound
}

func (s *Session) phase() Phase {
	switch s.status {
	case StatusLobby:
		return PhaseLobby
	case StatusCompleted:
		return PhaseCompleted
	default:
		return s.current.Phase
	}
}

func (s *Session) position() Position {
	return Position{Round: s.currentIndex, Phase: s.phase()}
}

// nextPosition is the position one host action after p.
func (s *Session) nextPosition(p Position) (Position, bool) {
	switch p.Phase {
	case PhaseLobby:
		return Position{Round: 0, Phase: PhaseBidding}, true
	case PhaseBidding:
		return Position{Round: p.Round, Phase: PhaseReveal}, true
	case PhaseReveal:
		if p.Round+1 >= len(s.items) {
			return Position{Round: len(s.items), Phase: PhaseCompleted}, true
		}
		return Position{Round: p.Round + 1, Phase: PhaseBidding}, true
	default:
		return Position{}, false
	}
}

// Results returns the final standings once the game is completed.
func (s *Session) Results() (Results, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.status != StatusCompleted {
		return Results{}, false
	}
	return s.results(), true
}

func (s *Session) results() Results {
	standings := make([]Standing, 0, s.players.len())
	for _, p := range s.players.order {
		standings = append(standings, Standing{ID: p.ID, Name: p.Name, Balance: p.Balance})
	}
	sort.SliceStable(standings, func(i, j int) bool {
		return standings[i].Balance > standings[j].Balance
	})

	res := Results{
		GameID:      s.id,
		CompletedAt: s.completedAt,
		Standings:   standings,
		History:     s.summaries(len(s.history)),
	}
	if len(standings) > 0 {
		winner := standings[0]
		res.Winner = &winner
	}
	return res
}

func (s *Session) summaries(n int) []RoundSummary {
	out := make([]RoundSummary, 0, n)
	for _, r := range s.history[:n] {
		out = append(out, *r.summary)
	}
	return out
}
