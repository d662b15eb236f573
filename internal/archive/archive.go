// Package archive stores the final results of completed games in SQLite so
// they outlive the in-memory session.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/lox/blindbid/internal/auction"
	"github.com/lox/blindbid/internal/gameerr"
)

const schema = `CREATE TABLE IF NOT EXISTS game_results (
	game_id      TEXT PRIMARY KEY,
	completed_at INTEGER NOT NULL,
	winner_name  TEXT,
	players      INTEGER NOT NULL,
	rounds       INTEGER NOT NULL,
	payload      TEXT NOT NULL,
	archived_at  TIMESTAMP DEFAULT CURRENT_TIMESTAMP
)`

// Summary is one row of the archive listing.
type Summary struct {
	GameID      string    `json:"gameId"`
	CompletedAt time.Time `json:"completedAt"`
	WinnerName  string    `json:"winnerName,omitempty"`
	Players     int       `json:"players"`
	Rounds      int       `json:"rounds"`
}

// Store is a SQLite-backed results archive.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Open opens (creating if needed) the archive database at path.
func Open(path string, logger zerolog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}

	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate archive: %w", err)
	}

	return &Store{
		db:     db,
		logger: logger.With().Str("component", "archive").Logger(),
	}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save stores res, replacing any earlier copy of the same game.
func (s *Store) Save(ctx context.Context, res auction.Results) error {
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}

	var winner sql.NullString
	if res.Winner != nil {
		winner = sql.NullString{String: res.Winner.Name, Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `INSERT OR REPLACE INTO game_results
		(game_id, completed_at, winner_name, players, rounds, payload)
		VALUES (?, ?, ?, ?, ?, ?)`,
		res.GameID, res.CompletedAt.UnixMilli(), winner, len(res.Standings), len(res.History), string(payload))
	if err != nil {
		return fmt.Errorf("failed to save results for %s: %w", res.GameID, err)
	}

	s.logger.Debug().Str("game_id", res.GameID).Msg("Stored results")
	return nil
}

// Get loads the results of one game.
func (s *Store) Get(ctx context.Context, gameID string) (auction.Results, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM game_results WHERE game_id = ?`, gameID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return auction.Results{}, gameerr.ErrGameNotFound
	}
	if err != nil {
		return auction.Results{}, fmt.Errorf("failed to load results for %s: %w", gameID, err)
	}

	var res auction.Results
	if err := json.Unmarshal([]byte(payload), &res); err != nil {
		return auction.Results{}, fmt.Errorf("failed to decode results for %s: %w", gameID, err)
	}
	return res, nil
}

// List returns the most recently completed games first. A limit of zero or
// less returns every row.
func (s *Store) List(ctx context.Context, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx, `SELECT game_id, completed_at, winner_name, players, rounds
		FROM game_results ORDER BY completed_at DESC, game_id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var (
			sum         Summary
			completedAt int64
			winner      sql.NullString
		)
		if err := rows.Scan(&sum.GameID, &completedAt, &winner, &sum.Players, &sum.Rounds); err != nil {
			return nil, fmt.Errorf("failed to scan result row: %w", err)
		}
		sum.CompletedAt = time.UnixMilli(completedAt).UTC()
		sum.WinnerName = winner.String
		out = append(out, sum)
	}
	return out, rows.Err()
}
