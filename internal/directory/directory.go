// Package directory maps game codes to live sessions. It owns game creation,
// lookup and the sweeper that retires finished or abandoned games.
package directory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"

	"github.com/lox/blindbid/internal/auction"
	"github.com/lox/blindbid/internal/catalog"
	"github.com/lox/blindbid/internal/gameerr"
	"github.com/lox/blindbid/internal/gameid"
)

// CodeGenerator produces candidate game codes. Collisions are allowed; the
// directory retries until it finds a free code.
type CodeGenerator interface {
	Generate() (string, error)
}

// Archiver persists the results of completed games before they are evicted.
type Archiver interface {
	Save(ctx context.Context, res auction.Results) error
}

// Config controls session rules and retention.
type Config struct {
	Rules           auction.Rules
	IdleTTL         time.Duration
	CompletedTTL    time.Duration
	SweepInterval   time.Duration
	MaxCodeAttempts int
}

// DefaultConfig returns retention suited to a party game: finished games
// linger long enough for everyone to see the results.
func DefaultConfig() Config {
	return Config{
		Rules:           auction.DefaultRules(),
		IdleTTL:         2 * time.Hour,
		CompletedTTL:    30 * time.Minute,
		SweepInterval:   time.Minute,
		MaxCodeAttempts: 32,
	}
}

// Directory is safe for concurrent use. Its lock only guards the map; each
// session serializes its own mutations, so different games never contend
// beyond a map lookup.
type Directory struct {
	logger  zerolog.Logger
	clock   quartz.Clock
	catalog *catalog.Catalog
	codes   CodeGenerator
	archive Archiver
	config  Config

	mu    sync.RWMutex
	games map[string]*auction.Session
}

// Option configures a Directory.
type Option func(*Directory)

// WithClock injects the clock used for timestamps and expiry.
func WithClock(clock quartz.Clock) Option {
	return func(d *Directory) { d.clock = clock }
}

// WithCodeGenerator replaces the game code generator.
func WithCodeGenerator(gen CodeGenerator) Option {
	return func(d *Directory) { d.codes = gen }
}

// WithArchiver stores completed games' results on eviction.
func WithArchiver(a Archiver) Option {
	return func(d *Directory) { d.archive = a }
}

// WithConfig overrides DefaultConfig.
func WithConfig(cfg Config) Option {
	return func(d *Directory) { d.config = cfg }
}

// New creates an empty directory.
func New(cat *catalog.Catalog, logger zerolog.Logger, opts ...Option) *Directory {
	d := &Directory{
		logger:  logger.With().Str("component", "directory").Logger(),
		clock:   quartz.NewReal(),
		catalog: cat,
		codes:   gameid.NewGenerator(nil, gameid.DefaultLength),
		config:  DefaultConfig(),
		games:   make(map[string]*auction.Session),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.config.MaxCodeAttempts <= 0 {
		d.config.MaxCodeAttempts = DefaultConfig().MaxCodeAttempts
	}
	return d
}

// Catalog returns the item catalog games are created from.
func (d *Directory) Catalog() *catalog.Catalog {
	return d.catalog
}

// CreateGame resolves the item set and registers a new game under a fresh
// code. The host is the game's first player.
func (d *Directory) CreateGame(hostName string, sel catalog.Selector) (*auction.Session, auction.Player, error) {
	items, err := d.catalog.Resolve(sel)
	if err != nil {
		return nil, auction.Player{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	code, err := d.freeCode()
	if err != nil {
		return nil, auction.Player{}, err
	}

	session, host, err := auction.NewSession(code, hostName, items, auction.Config{
		Rules:  d.config.Rules,
		Clock:  d.clock,
		Logger: d.logger,
	})
	if err != nil {
		return nil, auction.Player{}, err
	}
	d.games[code] = session

	return session, host, nil
}

// freeCode must be called with d.mu held.
func (d *Directory) freeCode() (string, error) {
	for attempt := 1; attempt <= d.config.MaxCodeAttempts; attempt++ {
		code, err := d.codes.Generate()
		if err != nil {
			return "", err
		}
		code = gameid.Normalize(code)
		if _, taken := d.games[code]; !taken {
			return code, nil
		}
		d.logger.Debug().Str("game_id", code).Int("attempt", attempt).Msg("Game code collision, retrying")
	}
	return "", fmt.Errorf("no free game code after %d attempts: %w", d.config.MaxCodeAttempts, gameerr.ErrCodeCollision)
}

// Get looks up a live game. Codes are matched case-insensitively.
func (d *Directory) Get(gameID string) (*auction.Session, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	session, ok := d.games[gameid.Normalize(gameID)]
	if !ok {
		return nil, gameerr.ErrGameNotFound
	}
	return session, nil
}

// JoinGame adds a player to a game still in its lobby.
func (d *Directory) JoinGame(gameID, name string) (auction.Player, error) {
	session, err := d.Get(gameID)
	if err != nil {
		return auction.Player{}, err
	}
	return session.AddPlayer(name)
}

// StartGame opens the first round on behalf of the host.
func (d *Directory) StartGame(gameID, requesterID string) error {
	session, err := d.Get(gameID)
	if err != nil {
		return err
	}
	return session.Start(requesterID)
}

// SubmitBid locks a bid for the current round.
func (d *Directory) SubmitBid(gameID, playerID string, amount int) (auction.Bid, error) {
	session, err := d.Get(gameID)
	if err != nil {
		return auction.Bid{}, err
	}
	return session.SubmitBid(playerID, amount)
}

// Advance performs the host's next-step action.
func (d *Directory) Advance(gameID, requesterID string, expect *auction.Position) (auction.AdvanceResult, error) {
	session, err := d.Get(gameID)
	if err != nil {
		return auction.AdvanceResult{}, err
	}
	return session.Advance(requesterID, expect)
}

// Snapshot returns the game as seen by viewerID.
func (d *Directory) Snapshot(gameID, viewerID string) (auction.View, error) {
	session, err := d.Get(gameID)
	if err != nil {
		return auction.View{}, err
	}
	return session.Snapshot(viewerID), nil
}

// Remove tears a game down immediately. Completed games are not archived.
func (d *Directory) Remove(gameID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	code := gameid.Normalize(gameID)
	if _, ok := d.games[code]; !ok {
		return false
	}
	delete(d.games, code)
	d.logger.Info().Str("game_id", code).Msg("Game removed")
	return true
}

// Len returns the number of live games.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.games)
}

// Sweep evicts completed games idle for longer than CompletedTTL and any
// game idle for longer than IdleTTL. Completed games are archived first; if
// archiving fails the game is kept and retried on the next sweep.
func (d *Directory) Sweep(ctx context.Context) int {
	now := d.clock.Now()

	type candidate struct {
		code    string
		session *auction.Session
	}
	var expired []candidate

	d.mu.RLock()
	for code, session := range d.games {
		idle := now.Sub(session.LastActivity())
		switch {
		case session.Status() == auction.StatusCompleted && idle > d.config.CompletedTTL:
			expired = append(expired, candidate{code, session})
		case idle > d.config.IdleTTL:
			expired = append(expired, candidate{code, session})
		}
	}
	d.mu.RUnlock()

	evicted := 0
	for _, c := range expired {
		if res, ok := c.session.Results(); ok && d.archive != nil {
			if err := d.archive.Save(ctx, res); err != nil {
				d.logger.Error().Err(err).Str("game_id", c.code).Msg("Failed to archive results")
				continue
			}
			d.logger.Info().Str("game_id", c.code).Msg("Results archived")
		}

		d.mu.Lock()
		if d.games[c.code] == c.session {
			delete(d.games, c.code)
			evicted++
		}
		d.mu.Unlock()

		d.logger.Info().
			Str("game_id", c.code).
			Str("status", string(c.session.Status())).
			Dur("idle", now.Sub(c.session.LastActivity())).
			Msg("Game evicted")
	}
	return evicted
}

// Flush archives every completed game without evicting it. It returns the
// number of games archived.
func (d *Directory) Flush(ctx context.Context) (int, error) {
	if d.archive == nil {
		return 0, nil
	}

	d.mu.RLock()
	sessions := make([]*auction.Session, 0, len(d.games))
	for _, session := range d.games {
		sessions = append(sessions, session)
	}
	d.mu.RUnlock()

	var errs []error
	archived := 0
	for _, session := range sessions {
		res, ok := session.Results()
		if !ok {
			continue
		}
		if err := d.archive.Save(ctx, res); err != nil {
			errs = append(errs, fmt.Errorf("game %s: %w", session.ID(), err))
			continue
		}
		archived++
	}

	d.logger.Info().Int("archived", archived).Msg("Flushed completed games")
	return archived, errors.Join(errs...)
}

// Run sweeps on SweepInterval until ctx is cancelled.
func (d *Directory) Run(ctx context.Context) error {
	d.logger.Info().
		Dur("interval", d.config.SweepInterval).
		Dur("idle_ttl", d.config.IdleTTL).
		Dur("completed_ttl", d.config.CompletedTTL).
		Msg("Starting game sweeper")

	waiter := d.clock.TickerFunc(ctx, d.config.SweepInterval, func() error {
		d.Sweep(ctx)
		return nil
	}, "directory", "sweep")

	err := waiter.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
