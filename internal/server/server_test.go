package server

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/blindbid/internal/archive"
	"github.com/lox/blindbid/internal/auction"
	"github.com/lox/blindbid/internal/catalog"
	"github.com/lox/blindbid/internal/directory"
)

type createResp struct {
	GameID  string         `json:"gameId"`
	Player  auction.Player `json:"player"`
	JoinURL string         `json:"joinUrl"`
}

type playerResp struct {
	Player auction.Player `json:"player"`
}

func customGame() map[string]any {
	return map[string]any{
		"hostName": "Host",
		"items": []map[string]any{
			{"emoji": "🏺", "name": "Urn", "value": 100},
			{"emoji": "🗿", "name": "Statue", "value": 200},
		},
	}
}

func (a *testAPI) create(body map[string]any) createResp {
	a.t.Helper()
	var out createResp
	require.Equal(a.t, http.StatusCreated, a.do(http.MethodPost, "/api/games", body, &out))
	return out
}

func (a *testAPI) join(gameID, name string) auction.Player {
	a.t.Helper()
	var out playerResp
	require.Equal(a.t, http.StatusOK, a.do(http.MethodPost, "/api/games/"+gameID+"/join", map[string]any{"name": name}, &out))
	return out.Player
}

func (a *testAPI) state(gameID, playerID string) auction.View {
	a.t.Helper()
	var v auction.View
	require.Equal(a.t, http.StatusOK, a.do(http.MethodGet, "/api/games/"+gameID+"?playerId="+playerID, nil, &v))
	return v
}

func (a *testAPI) bid(gameID, playerID string, amount int) {
	a.t.Helper()
	require.Equal(a.t, http.StatusOK, a.do(http.MethodPost, "/api/games/"+gameID+"/bid",
		map[string]any{"playerId": playerID, "amount": amount}, nil))
}

func (a *testAPI) next(gameID, playerID string) auction.AdvanceResult {
	a.t.Helper()
	var res auction.AdvanceResult
	require.Equal(a.t, http.StatusOK, a.do(http.MethodPost, "/api/games/"+gameID+"/next",
		map[string]any{"playerId": playerID}, &res))
	return res
}

func TestHealth(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t, nil)

	resp, err := api.srv.Client().Get(api.srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(body))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.NoError(t, WaitForHealthy(ctx, api.srv.URL))
}

func TestTemplatesHideValues(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t, nil)

	var raw map[string][]map[string]any
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/api/templates", nil, &raw))
	require.Len(t, raw["templates"], 3)

	first := raw["templates"][0]
	assert.Equal(t, "whimsical-museum", first["id"])
	items := first["items"].([]any)
	require.NotEmpty(t, items)
	for _, item := range items {
		fields := item.(map[string]any)
		assert.NotContains(t, fields, "value")
		assert.Contains(t, fields, "emoji")
		assert.Contains(t, fields, "name")
	}
}

func TestFullGameOverHTTP(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t, nil)

	game := api.create(customGame())
	id := game.GameID
	host := game.Player
	assert.True(t, host.IsHost)
	assert.Equal(t, 1000, host.Balance)
	assert.Contains(t, game.JoinURL, "/?game="+id)

	joiner := api.join(id, "Joiner")
	assert.False(t, joiner.IsHost)

	require.Equal(t, http.StatusOK, api.do(http.MethodPost, "/api/games/"+id+"/start",
		map[string]any{"playerId": host.ID}, nil))

	v := api.state(id, joiner.ID)
	assert.Equal(t, auction.PhaseBidding, v.RoundPhase)
	require.NotNil(t, v.CurrentItem)
	assert.Equal(t, "Urn", v.CurrentItem.Name)

	api.bid(id, host.ID, 150)
	api.bid(id, joiner.ID, 80)

	v = api.state(id, joiner.ID)
	assert.ElementsMatch(t, []string{host.ID, joiner.ID}, v.LockedPlayers)
	require.NotNil(t, v.Player.Bid)
	assert.Equal(t, 80, *v.Player.Bid)

	res := api.next(id, host.ID)
	assert.Equal(t, auction.ActionSettled, res.Action)
	require.NotNil(t, res.Summary)
	assert.Equal(t, host.ID, res.Summary.Winner.ID)
	assert.Equal(t, -50, res.Summary.NetGain)

	// Only the host sees the result until the game moves on.
	hostView := api.state(id, host.ID)
	assert.NotNil(t, hostView.RoundSummary)
	assert.Len(t, hostView.History, 1)
	joinerView := api.state(id, joiner.ID)
	assert.Equal(t, auction.PhaseReveal, joinerView.RoundPhase)
	assert.Nil(t, joinerView.RoundSummary)
	assert.Empty(t, joinerView.History)

	assert.Equal(t, auction.ActionNextRound, api.next(id, host.ID).Action)
	joinerView = api.state(id, joiner.ID)
	assert.Len(t, joinerView.History, 1)

	api.bid(id, joiner.ID, 180)
	assert.Equal(t, auction.ActionSettled, api.next(id, host.ID).Action)
	assert.Equal(t, auction.ActionCompleted, api.next(id, host.ID).Action)

	final := api.state(id, joiner.ID)
	assert.Equal(t, auction.StatusCompleted, final.Status)
	require.NotNil(t, final.Results)
	require.Len(t, final.Results.Standings, 2)
	assert.Equal(t, "Joiner", final.Results.Standings[0].Name)
	assert.Equal(t, 1020, final.Results.Standings[0].Balance)
	assert.Equal(t, 950, final.Results.Standings[1].Balance)

	var results auction.Results
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/api/results/"+id, nil, &results))
	assert.Equal(t, "Joiner", results.Winner.Name)
	assert.Len(t, results.History, 2)
}

func TestErrorMapping(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t, nil)
	game := api.create(customGame())
	id := game.GameID
	host := game.Player
	joiner := api.join(id, "Joiner")

	tests := []struct {
		name       string
		method     string
		path       string
		body       any
		wantStatus int
		wantCode   string
	}{
		{"unknown game", http.MethodGet, "/api/games/ZZZZZZ", nil, http.StatusNotFound, "game_not_found"},
		{"unknown template", http.MethodPost, "/api/games", map[string]any{"hostName": "H", "templateId": "nope"}, http.StatusNotFound, "template_not_found"},
		{"no items", http.MethodPost, "/api/games", map[string]any{"hostName": "H"}, http.StatusBadRequest, "invalid_catalog"},
		{"string value", http.MethodPost, "/api/games", map[string]any{"items": []map[string]any{{"name": "x", "value": "ten"}}}, http.StatusBadRequest, "invalid_request"},
		{"bid before start", http.MethodPost, "/api/games/" + id + "/bid", map[string]any{"playerId": joiner.ID, "amount": 10}, http.StatusConflict, "bidding_closed"},
		{"non-host start", http.MethodPost, "/api/games/" + id + "/start", map[string]any{"playerId": joiner.ID}, http.StatusForbidden, "not_host"},
		{"non-host next", http.MethodPost, "/api/games/" + id + "/next", map[string]any{"playerId": joiner.ID}, http.StatusForbidden, "not_host"},
		{"next in lobby", http.MethodPost, "/api/games/" + id + "/next", map[string]any{"playerId": host.ID}, http.StatusConflict, "game_not_in_progress"},
		{"results before completion", http.MethodGet, "/api/results/" + id, nil, http.StatusConflict, "game_not_in_progress"},
		{"unknown results", http.MethodGet, "/api/results/ZZZZZZ", nil, http.StatusNotFound, "game_not_found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var e apiError
			assert.Equal(t, tt.wantStatus, api.do(tt.method, tt.path, tt.body, &e))
			assert.Equal(t, tt.wantCode, e.Code)
			assert.NotEmpty(t, e.Error)
		})
	}
}

func TestBidErrors(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t, nil)
	game := api.create(customGame())
	id := game.GameID
	host := game.Player
	joiner := api.join(id, "Joiner")
	require.Equal(t, http.StatusOK, api.do(http.MethodPost, "/api/games/"+id+"/start", map[string]any{"playerId": host.ID}, nil))

	var e apiError
	assert.Equal(t, http.StatusBadRequest, api.do(http.MethodPost, "/api/games/"+id+"/bid",
		map[string]any{"playerId": joiner.ID, "amount": -1}, &e))
	assert.Equal(t, "invalid_bid", e.Code)

	assert.Equal(t, http.StatusBadRequest, api.do(http.MethodPost, "/api/games/"+id+"/bid",
		map[string]any{"playerId": joiner.ID, "amount": 1001}, &e))
	assert.Equal(t, "insufficient_balance", e.Code)

	assert.Equal(t, http.StatusBadRequest, api.do(http.MethodPost, "/api/games/"+id+"/bid",
		map[string]any{"playerId": joiner.ID}, &e))
	assert.Equal(t, "invalid_request", e.Code)

	assert.Equal(t, http.StatusNotFound, api.do(http.MethodPost, "/api/games/"+id+"/bid",
		map[string]any{"playerId": "stranger", "amount": 1}, &e))
	assert.Equal(t, "player_not_found", e.Code)

	api.bid(id, joiner.ID, 10)
	assert.Equal(t, http.StatusConflict, api.do(http.MethodPost, "/api/games/"+id+"/bid",
		map[string]any{"playerId": joiner.ID, "amount": 20}, &e))
	assert.Equal(t, "bid_already_locked", e.Code)

	assert.Equal(t, http.StatusConflict, api.do(http.MethodPost, "/api/games/"+id+"/join",
		map[string]any{"name": "Late"}, &e))
	assert.Equal(t, "game_already_started", e.Code)

	v := api.state(id, joiner.ID)
	assert.Equal(t, 1000, v.Player.Balance, "rejected bids leave the balance untouched")
	assert.Equal(t, 10, *v.Player.Bid)
}

func TestNextReplayIsIdempotent(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t, nil)
	game := api.create(customGame())
	id := game.GameID
	host := game.Player
	require.Equal(t, http.StatusOK, api.do(http.MethodPost, "/api/games/"+id+"/start", map[string]any{"playerId": host.ID}, nil))
	api.bid(id, host.ID, 50)

	body := map[string]any{
		"playerId": host.ID,
		"expect":   map[string]any{"round": 0, "phase": "bidding"},
	}

	var first, second auction.AdvanceResult
	require.Equal(t, http.StatusOK, api.do(http.MethodPost, "/api/games/"+id+"/next", body, &first))
	require.Equal(t, http.StatusOK, api.do(http.MethodPost, "/api/games/"+id+"/next", body, &second))

	assert.Equal(t, auction.ActionSettled, first.Action)
	assert.Equal(t, auction.ActionNone, second.Action)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Position, second.Position)

	var e apiError
	stale := map[string]any{
		"playerId": host.ID,
		"expect":   map[string]any{"round": 1, "phase": "reveal"},
	}
	assert.Equal(t, http.StatusConflict, api.do(http.MethodPost, "/api/games/"+id+"/next", stale, &e))
	assert.Equal(t, "stale_advance", e.Code)

	v := api.state(id, host.ID)
	assert.Len(t, v.History, 1)
	assert.Equal(t, auction.PhaseReveal, v.RoundPhase)
}

func TestQRCode(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t, nil, WithPublicURL("https://party.example.com"))
	game := api.create(customGame())
	assert.Equal(t, "https://party.example.com/?game="+game.GameID, game.JoinURL)

	resp, err := api.srv.Client().Get(api.srv.URL + "/api/games/" + game.GameID + "/qr.png")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	png, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "\x89PNG", string(png[:4]))

	var e apiError
	assert.Equal(t, http.StatusNotFound, api.do(http.MethodGet, "/api/games/ZZZZZZ/qr.png", nil, &e))
}

func TestArchivedResults(t *testing.T) {
	t.Parallel()

	store, err := archive.Open(filepath.Join(t.TempDir(), "results.db"), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	winner := auction.Standing{ID: "p1", Name: "Ada", Balance: 1200}
	require.NoError(t, store.Save(context.Background(), auction.Results{
		GameID:      "OLD123",
		CompletedAt: time.Date(2026, 2, 1, 20, 0, 0, 0, time.UTC),
		Standings:   []auction.Standing{winner},
		Winner:      &winner,
		History: []auction.RoundSummary{{
			Item:       catalog.Item{ID: "i", Name: "Urn", Emoji: "🏺", Value: 300},
			Winner:     &auction.PlayerRef{ID: "p1", Name: "Ada"},
			WinningBid: 100,
			NetGain:    200,
		}},
	}))

	api := newTestAPI(t, []directory.Option{directory.WithArchiver(store)}, WithResultStore(store))

	var res auction.Results
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/api/results/OLD123", nil, &res))
	assert.Equal(t, "Ada", res.Winner.Name)
	assert.Equal(t, 1200, res.Winner.Balance)

	var list struct {
		Results []archive.Summary `json:"results"`
	}
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/api/results?limit=10", nil, &list))
	require.Len(t, list.Results, 1)
	assert.Equal(t, "OLD123", list.Results[0].GameID)

	var e apiError
	assert.Equal(t, http.StatusBadRequest, api.do(http.MethodGet, "/api/results?limit=zero", nil, &e))
	assert.Equal(t, http.StatusNotFound, api.do(http.MethodGet, "/api/results/NOPE00", nil, &e))
}

func TestCORS(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t, nil, WithCORSOrigins([]string{"https://party.example.com"}))

	preflight, err := http.NewRequest(http.MethodOptions, api.srv.URL+"/api/games", nil)
	require.NoError(t, err)
	preflight.Header.Set("Origin", "https://party.example.com")
	preflight.Header.Set("Access-Control-Request-Method", http.MethodPost)

	resp, err := api.srv.Client().Do(preflight)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "https://party.example.com", resp.Header.Get("Access-Control-Allow-Origin"))

	req, err := http.NewRequest(http.MethodGet, api.srv.URL+"/api/templates", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://elsewhere.example.com")
	resp, err = api.srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestServeAndShutdown(t *testing.T) {
	t.Parallel()

	cat, err := catalog.Default()
	require.NoError(t, err)
	s := NewServer(testLogger(), directory.New(cat, testLogger()))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.Serve(ln) }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, WaitForHealthy(ctx, "http://"+ln.Addr().String()))

	require.NoError(t, s.Shutdown(ctx))
	select {
	case err := <-done:
		assert.True(t, errors.Is(err, http.ErrServerClosed))
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after Shutdown")
	}
}

func TestWaitForHealthyTimesOut(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	err = WaitForHealthy(ctx, "http://"+addr)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
