package auction

import (
	"strings"
	"time"

	"github.com/lox/blindbid/internal/gameerr"
)

const (
	defaultHostName   = "Host"
	defaultPlayerName = "Player"
	maxPlayerName     = 32
)

// registry tracks a game's players in join order. It is not safe for
// concurrent use; the owning Session serializes access.
type registry struct {
	byID   map[string]*Player
	order  []*Player
	hostID string
}

func newRegistry() *registry {
	return &registry{byID: make(map[string]*Player)}
}

func (r *registry) add(id, name string, isHost bool, balance int, joinedAt time.Time) *Player {
	p := &Player{
		ID:       id,
		Name:     name,
		IsHost:   isHost,
		Balance:  balance,
		JoinedAt: joinedAt,
	}
	r.byID[id] = p
	r.order = append(r.order, p)
	if isHost {
		r.hostID = id
	}
	return p
}

func (r *registry) get(id string) (*Player, error) {
	p, ok := r.byID[id]
	if !ok {
		return nil, gameerr.ErrPlayerNotFound
	}
	return p, nil
}

func (r *registry) isHost(id string) bool {
	return id != "" && id == r.hostID
}

func (r *registry) len() int {
	return len(r.order)
}

func (r *registry) totalBalance() int {
	total := 0
	for _, p := range r.order {
		total += p.Balance
	}
	return total
}

// normalizeName trims a display name, substituting fallback when blank.
func normalizeName(name, fallback string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return fallback
	}
	runes := []rune(name)
	if len(runes) > maxPlayerName {
		name = strings.TrimSpace(string(runes[:maxPlayerName]))
	}
	return name
}
