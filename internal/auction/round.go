package auction

import (
	"time"

	"github.com/lox/blindbid/internal/catalog"
	"github.com/lox/blindbid/internal/gameerr"
)

// Round is the auction of a single item. It starts in PhaseBidding and moves
// to PhaseReveal exactly once, when settle produces its summary.
type Round struct {
	Index   int
	Item    catalog.Item
	Phase   Phase
	bids    map[string]Bid
	nextSeq int
	summary *RoundSummary
}

func newRound(index int, item catalog.Item) *Round {
	return &Round{
		Index: index,
		Item:  item,
		Phase: PhaseBidding,
		bids:  make(map[string]Bid),
	}
}

// lock records a player's bid. The first successful lock wins; later
// attempts for the same player fail and leave the round untouched.
func (r *Round) lock(p *Player, amount int, now time.Time) (Bid, error) {
	if r.Phase != PhaseBidding {
		return Bid{}, gameerr.ErrBiddingClosed
	}
	if _, locked := r.bids[p.ID]; locked {
		return Bid{}, gameerr.ErrBidAlreadyLocked
	}
	if amount < 0 {
		return Bid{}, gameerr.ErrInvalidBid
	}
	if amount > p.Balance {
		return Bid{}, gameerr.Wrap(gameerr.ErrInsufficientBalance, "bid %d, balance %d", amount, p.Balance)
	}

	bid := Bid{
		PlayerID:    p.ID,
		RoundIndex:  r.Index,
		Amount:      amount,
		SubmittedAt: now,
		seq:         r.nextSeq,
	}
	r.nextSeq++
	r.bids[p.ID] = bid
	return bid, nil
}

func (r *Round) hasBid(playerID string) bool {
	_, ok := r.bids[playerID]
	return ok
}

// winningBid picks the strictly highest bid. Ties go to the earliest
// submission, then to arrival order.
func (r *Round) winningBid() (Bid, bool) {
	var (
		best  Bid
		found bool
	)
	for _, bid := range r.bids {
		if !found || outranks(bid, best) {
			best = bid
			found = true
		}
	}
	return best, found
}

func outranks(a, b Bid) bool {
	if a.Amount != b.Amount {
		return a.Amount > b.Amount
	}
	if !a.SubmittedAt.Equal(b.SubmittedAt) {
		return a.SubmittedAt.Before(b.SubmittedAt)
	}
	return a.seq < b.seq
}

// settle computes the round's outcome, applies the winner's net gain and
// closes bidding. Only the winner's balance changes. Calling settle on a
// round that is already in reveal returns the existing summary unchanged.
func (r *Round) settle(players *registry, now time.Time) *RoundSummary {
	if r.Phase == PhaseReveal {
		return r.summary
	}

	summary := &RoundSummary{
		RoundIndex: r.Index,
		Item:       r.Item,
		Bids:       make([]BidResult, 0, players.len()),
		Timestamp:  now.Unix(),
	}

	for _, p := range players.order {
		bid, ok := r.bids[p.ID]
		summary.Bids = append(summary.Bids, BidResult{
			PlayerID:  p.ID,
			Name:      p.Name,
			Amount:    bid.Amount,
			Submitted: ok,
		})
	}

	if best, ok := r.winningBid(); ok {
		winner := players.byID[best.PlayerID]
		net := r.Item.Value - best.Amount

		winner.Balance += net
		winner.Wins = append(winner.Wins, Win{
			ItemID:  r.Item.ID,
			Name:    r.Item.Name,
			Emoji:   r.Item.Emoji,
			Value:   r.Item.Value,
			Bid:     best.Amount,
			NetGain: net,
		})

		summary.Winner = &PlayerRef{ID: winner.ID, Name: winner.Name}
		summary.WinningBid = best.Amount
		summary.NetGain = net
	}

	r.Phase = PhaseReveal
	r.summary = summary
	return summary
}
