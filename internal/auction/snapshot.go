package auction

// View is a read-only, viewer-scoped projection of a session. Each call to
// Snapshot builds a fresh View; nothing in it aliases mutable session state.
type View struct {
	GameID        string         `json:"gameId"`
	Version       uint64         `json:"version"`
	Status        Status         `json:"status"`
	RoundPhase    Phase          `json:"roundPhase"`
	CurrentIndex  int            `json:"currentIndex"`
	TotalItems    int            `json:"totalItems"`
	IsHost        bool           `json:"isHost"`
	Players       []PlayerView   `json:"players"`
	Player        *SelfView      `json:"player,omitempty"`
	CurrentItem   *CurrentItem   `json:"currentItem,omitempty"`
	LockedPlayers []string       `json:"lockedPlayers"`
	History       []RoundSummary `json:"history"`
	RoundSummary  *RoundSummary  `json:"roundSummary,omitempty"`
	Results       *Results       `json:"results,omitempty"`
}

// PlayerView is how every viewer sees a player.
type PlayerView struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Balance int    `json:"balance"`
	IsHost  bool   `json:"isHost"`
}

// SelfView is the viewer's own state.
type SelfView struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Balance int    `json:"balance"`
	IsHost  bool   `json:"isHost"`
	// Bid is the viewer's locked bid for the open round, if any.
	Bid  *int  `json:"bid,omitempty"`
	Wins []Win `json:"wins"`
}

// CurrentItem is the item on the block. Its value stays hidden.
type CurrentItem struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Emoji string `json:"emoji"`
	Index int    `json:"index"`
}

// Snapshot projects the session for viewerID. Unknown or empty viewers get
// the public view.
//
// While a round is in reveal only the host sees its summary; everyone else
// keeps seeing the previous history until the host moves the game on.
func (s *Session) Snapshot(viewerID string) View {
	s.mu.RLock()
	defer s.mu.RUnlock()

	s.touch(s.clock.Now())

	isHost := s.players.isHost(viewerID)
	phase := s.phase()

	v := View{
		GameID:        s.id,
		Version:       s.version,
		Status:        s.status,
		RoundPhase:    phase,
		CurrentIndex:  s.currentIndex,
		TotalItems:    len(s.items),
		IsHost:        isHost,
		Players:       make([]PlayerView, 0, s.players.len()),
		LockedPlayers: []string{},
	}

	for _, p := range s.players.order {
		v.Players = append(v.Players, PlayerView{ID: p.ID, Name: p.Name, Balance: p.Balance, IsHost: p.IsHost})
	}

	if p, ok := s.players.byID[viewerID]; ok {
		self := &SelfView{
			ID:      p.ID,
			Name:    p.Name,
			Balance: p.Balance,
			IsHost:  p.IsHost,
			Wins:    append([]Win{}, p.Wins...),
		}
		if s.current != nil && s.current.Phase == PhaseBidding {
			if bid, locked := s.current.bids[p.ID]; locked {
				amount := bid.Amount
				self.Bid = &amount
			}
		}
		v.Player = self
	}

	visible := len(s.history)
	if phase == PhaseReveal && !isHost && visible > 0 {
		visible--
	}
	v.History = s.summaries(visible)

	switch s.status {
	case StatusInProgress:
		item := s.current.Item
		v.CurrentItem = &CurrentItem{ID: item.ID, Name: item.Name, Emoji: item.Emoji, Index: s.currentIndex}

		if phase == PhaseBidding {
			for _, p := range s.players.order {
				if s.current.hasBid(p.ID) {
					v.LockedPlayers = append(v.LockedPlayers, p.ID)
				}
			}
		}
		if phase == PhaseReveal && isHost {
			summary := *s.current.summary
			v.RoundSummary = &summary
		}
	case StatusCompleted:
		res := s.results()
		v.Results = &res
		if n := len(s.history); n > 0 {
			summary := *s.history[n-1].summary
			v.RoundSummary = &summary
		}
	}

	return v
}
