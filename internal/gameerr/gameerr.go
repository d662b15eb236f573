// Package gameerr defines the error taxonomy shared by the game engine, the
// session directory and the HTTP layer.
package gameerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error so callers can react without string matching.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindInvalidState
	KindNotHost
	KindValidation
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindInvalidState:
		return "invalid_state"
	case KindNotHost:
		return "not_host"
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// Error is a classified game error. Code is a stable identifier the
// presentation layer can switch on; Message is safe to show to players.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

var (
	ErrGameNotFound     = &Error{Kind: KindNotFound, Code: "game_not_found", Message: "Game not found"}
	ErrPlayerNotFound   = &Error{Kind: KindNotFound, Code: "player_not_found", Message: "Player not part of this game"}
	ErrTemplateNotFound = &Error{Kind: KindNotFound, Code: "template_not_found", Message: "Template not found"}

	ErrGameAlreadyStarted = &Error{Kind: KindInvalidState, Code: "game_already_started", Message: "Game already started"}
	ErrGameNotInProgress  = &Error{Kind: KindInvalidState, Code: "game_not_in_progress", Message: "Game is not in progress"}
	ErrBiddingClosed      = &Error{Kind: KindInvalidState, Code: "bidding_closed", Message: "Bidding is not active"}
	ErrNotEnoughPlayers   = &Error{Kind: KindInvalidState, Code: "not_enough_players", Message: "Not enough players to start"}
	ErrGameFull           = &Error{Kind: KindInvalidState, Code: "game_full", Message: "Game is full"}

	ErrNotHost = &Error{Kind: KindNotHost, Code: "not_host", Message: "Only the host can do that"}

	ErrInvalidCatalog      = &Error{Kind: KindValidation, Code: "invalid_catalog", Message: "Invalid item list"}
	ErrInvalidBid          = &Error{Kind: KindValidation, Code: "invalid_bid", Message: "Bid cannot be negative"}
	ErrInsufficientBalance = &Error{Kind: KindValidation, Code: "insufficient_balance", Message: "Bid exceeds available balance"}
	ErrInvalidRequest      = &Error{Kind: KindValidation, Code: "invalid_request", Message: "Malformed request"}

	ErrBidAlreadyLocked = &Error{Kind: KindConflict, Code: "bid_already_locked", Message: "Bid already locked in for this round"}
	ErrStaleAdvance     = &Error{Kind: KindConflict, Code: "stale_advance", Message: "Game has moved on since this action was issued"}
	ErrCodeCollision    = &Error{Kind: KindConflict, Code: "code_collision", Message: "Game code already in use"}
)

// wrapped carries extra detail while still matching its sentinel with
// errors.Is and errors.As.
type wrapped struct {
	base   *Error
	detail string
}

func (w *wrapped) Error() string {
	return w.base.Message + ": " + w.detail
}

func (w *wrapped) Unwrap() error {
	return w.base
}

// Wrap attaches a formatted detail to a sentinel error.
func Wrap(base *Error, format string, args ...any) error {
	return &wrapped{base: base, detail: fmt.Sprintf(format, args...)}
}

// KindOf returns the Kind of the first classified error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// CodeOf returns the stable code for err, or "internal" when unclassified.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "internal"
}
