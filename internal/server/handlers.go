package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/skip2/go-qrcode"

	"github.com/lox/blindbid/internal/archive"
	"github.com/lox/blindbid/internal/auction"
	"github.com/lox/blindbid/internal/catalog"
	"github.com/lox/blindbid/internal/gameerr"
)

const maxBodyBytes = 64 << 10

type createGameRequest struct {
	HostName   string             `json:"hostName"`
	TemplateID string             `json:"templateId"`
	Items      []catalog.ItemSpec `json:"items"`
}

type createGameResponse struct {
	GameID  string         `json:"gameId"`
	Player  auction.Player `json:"player"`
	JoinURL string         `json:"joinUrl"`
}

type joinRequest struct {
	Name string `json:"name"`
}

type playerResponse struct {
	Player auction.Player `json:"player"`
}

type hostRequest struct {
	PlayerID string `json:"playerId"`
	// Expect fences the next action against retries.
	Expect *auction.Position `json:"expect,omitempty"`
}

type bidRequest struct {
	PlayerID string `json:"playerId"`
	Amount   *int   `json:"amount"`
}

type bidResponse struct {
	Status string      `json:"status"`
	Bid    auction.Bid `json:"bid"`
}

type statusResponse struct {
	Status string `json:"status"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "OK")
}

func (s *Server) handleTemplates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"templates": s.games.Catalog().Templates(),
	})
}

func (s *Server) handleCreateGame(w http.ResponseWriter, r *http.Request) {
	var req createGameRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	session, host, err := s.games.CreateGame(req.HostName, catalog.Selector{
		TemplateID: req.TemplateID,
		Items:      req.Items,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, createGameResponse{
		GameID:  session.ID(),
		Player:  host,
		JoinURL: s.joinURL(r, session.ID()),
	})
}

func (s *Server) handleGameState(w http.ResponseWriter, r *http.Request) {
	view, err := s.games.Snapshot(r.PathValue("id"), r.URL.Query().Get("playerId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	player, err := s.games.JoinGame(r.PathValue("id"), req.Name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, playerResponse{Player: player})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req hostRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.games.StartGame(r.PathValue("id"), req.PlayerID); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "started"})
}

func (s *Server) handleBid(w http.ResponseWriter, r *http.Request) {
	var req bidRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Amount == nil {
		s.writeError(w, r, gameerr.Wrap(gameerr.ErrInvalidRequest, "amount is required"))
		return
	}

	bid, err := s.games.SubmitBid(r.PathValue("id"), req.PlayerID, *req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bidResponse{Status: "accepted", Bid: bid})
}

func (s *Server) handleNext(w http.ResponseWriter, r *http.Request) {
	var req hostRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.games.Advance(r.PathValue("id"), req.PlayerID, req.Expect)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleQRCode(w http.ResponseWriter, r *http.Request) {
	session, err := s.games.Get(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	png, err := qrcode.Encode(s.joinURL(r, session.ID()), qrcode.Medium, 256)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("failed to encode QR code: %w", err))
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_, _ = w.Write(png)
}

// handleResults serves final results, from memory while the game is still
// live and from the archive afterwards.
func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if session, err := s.games.Get(id); err == nil {
		res, ok := session.Results()
		if !ok {
			s.writeError(w, r, gameerr.Wrap(gameerr.ErrGameNotInProgress, "results are published when the game completes"))
			return
		}
		writeJSON(w, http.StatusOK, res)
		return
	}

	if s.results == nil {
		s.writeError(w, r, gameerr.ErrGameNotFound)
		return
	}
	res, err := s.results.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleListResults(w http.ResponseWriter, r *http.Request) {
	if s.results == nil {
		writeJSON(w, http.StatusOK, map[string]any{"results": []any{}})
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.writeError(w, r, gameerr.Wrap(gameerr.ErrInvalidRequest, "limit must be a positive integer"))
			return
		}
		limit = n
	}

	list, err := s.results.List(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []archive.Summary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": list})
}

// joinURL is the link a QR code points players at.
func (s *Server) joinURL(r *http.Request, gameID string) string {
	base := s.publicURL
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		base = scheme + "://" + r.Host
	}
	return base + "/?game=" + url.QueryEscape(gameID)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return gameerr.Wrap(gameerr.ErrInvalidRequest, "%v", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
		message = "Internal server error"
	}
	writeJSON(w, status, errorResponse{Error: message, Code: gameerr.CodeOf(err)})
}

// statusFor maps an error's kind to an HTTP status.
func statusFor(err error) int {
	switch gameerr.KindOf(err) {
	case gameerr.KindNotFound:
		return http.StatusNotFound
	case gameerr.KindInvalidState, gameerr.KindConflict:
		return http.StatusConflict
	case gameerr.KindNotHost:
		return http.StatusForbidden
	case gameerr.KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
