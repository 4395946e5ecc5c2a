// Package api exposes the game engine over HTTP: signed action endpoints,
// polling state, challenge issuance, and a WebSocket snapshot feed.
//
// Handlers do no game logic. Each one decodes a request into an action,
// hands it to the engine with the caller's proof, and returns the
// resulting snapshot.
package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"

	"github.com/flarepoly/game-engine/internal/action"
	"github.com/flarepoly/game-engine/internal/apperr"
	"github.com/flarepoly/game-engine/internal/auth"
	"github.com/flarepoly/game-engine/internal/game"
	"github.com/flarepoly/game-engine/internal/metrics"
	"github.com/flarepoly/game-engine/internal/model"
)

var (
	errBadBody       = apperr.New(apperr.KindValidation, "invalid request body")
	errMissingPlayer = apperr.New(apperr.KindValidation, "playerIndex is required")
	errBadAdminToken = apperr.New(apperr.KindAuthorization, "admin token required")
)

// Server handles the HTTP API.
type Server struct {
	engine     *game.Engine
	hub        *WSHub
	adminToken string
	log        *slog.Logger
}

// NewServer creates the API. hub may be nil to disable the WebSocket feed.
// When adminToken is non-empty, reset requires it in X-Admin-Token.
func NewServer(eng *game.Engine, hub *WSHub, adminToken string, log *slog.Logger) *Server {
	return &Server{engine: eng, hub: hub, adminToken: adminToken, log: log}
}

// Router builds the full HTTP handler with middleware. limiter may be nil.
func (s *Server) Router(limiter *RateLimiter) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metrics.Middleware)
	r.Use(cors)

	r.Get("/health", s.Health)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if s.hub != nil {
			// Long-lived; kept outside the rate limit and request timeout.
			r.Get("/ws", s.hub.HandleWS)
		}
		r.Group(func(r chi.Router) {
			if limiter != nil {
				r.Use(limiter.Middleware)
			}
			r.Use(middleware.Timeout(30 * time.Second))
			s.Routes(r)
		})
	})
	return r
}

// Routes registers the API endpoints on r.
func (s *Server) Routes(r chi.Router) {
	r.Get("/state", s.GetState)
	r.Get("/layout", s.GetLayout)
	r.Get("/action_message", s.GetActionMessage)
	r.Get("/settlements", s.ListSettlements)

	r.Post("/connect", s.Connect)
	r.Post("/reset", s.Reset)
	r.Post("/roll", s.Roll)
	r.Post("/buy", s.Buy)
	r.Post("/skip_buy", s.SkipBuy)
	r.Post("/settle", s.Settle)
	r.Post("/offers", s.CreateOffer)
	r.Post("/offers/{offerID}/accept", s.AcceptOffer)
	r.Post("/offers/{offerID}/decline", s.DeclineOffer)
	r.Post("/chat", s.Chat)
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Admin-Token")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// --- Request types ---

// SignedRequest is the common part of every action body: the acting seat
// and the signature over the challenge for this exact action.
type SignedRequest struct {
	PlayerIndex *int       `json:"playerIndex"`
	Proof       auth.Proof `json:"proof"`
}

type ConnectRequest struct {
	SignedRequest
	Address string `json:"address"`
}

type TileRequest struct {
	SignedRequest
	TileID int `json:"tileId"`
}

type SettleRequest struct {
	SignedRequest
	TxHash string `json:"txHash"`
}

type OfferRequest struct {
	SignedRequest
	Kind    string          `json:"kind"`
	To      int             `json:"to"`
	TileID  int             `json:"tileId"`
	PriceFC decimal.Decimal `json:"priceFC"`
}

type ChatRequest struct {
	SignedRequest
	Text string `json:"text"`
}

type ResetRequest struct {
	Players int `json:"players"`
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// --- Read-only handlers ---

// Health handles GET /health. A halted engine reports 503 so orchestrators
// stop routing to it.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	if s.engine.Halted() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "halted", "service": "game-engine"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "game-engine"})
}

// GetState handles GET /api/v1/state.
func (s *Server) GetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Snapshot())
}

// GetLayout handles GET /api/v1/layout.
func (s *Server) GetLayout(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"tiles":      s.engine.Board().Tiles(),
		"ledgerMode": s.engine.LedgerMode(),
	})
}

// GetActionMessage handles GET /api/v1/action_message?playerIndex=&action=&params=
// and returns the exact text the player must sign for that action.
func (s *Server) GetActionMessage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	player, err := strconv.Atoi(q.Get("playerIndex"))
	if err != nil {
		writeError(w, errMissingPlayer)
		return
	}
	act, err := action.Parse(q.Get("action"), q.Get("params"))
	if err != nil {
		writeError(w, err)
		return
	}
	ch, err := s.engine.Challenge(r.Context(), player, act)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

// ListSettlements handles GET /api/v1/settlements?gameId=. Without gameId
// every recorded settlement is returned.
func (s *Server) ListSettlements(w http.ResponseWriter, r *http.Request) {
	recs, err := s.engine.Settlements(r.Context(), r.URL.Query().Get("gameId"))
	if err != nil {
		s.log.Error("list settlements failed", "err", err)
		writeError(w, err)
		return
	}
	if recs == nil {
		recs = []model.SettlementRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

// Reset handles POST /api/v1/reset.
func (s *Server) Reset(w http.ResponseWriter, r *http.Request) {
	if s.adminToken != "" && subtle.ConstantTimeCompare([]byte(r.Header.Get("X-Admin-Token")), []byte(s.adminToken)) != 1 {
		writeError(w, errBadAdminToken)
		return
	}
	var req ResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, errBadBody)
		return
	}
	snap, err := s.engine.Reset(r.Context(), req.Players)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// --- Signed action handlers ---

// Connect handles POST /api/v1/connect.
func (s *Server) Connect(w http.ResponseWriter, r *http.Request) {
	var req ConnectRequest
	if !decode(w, r, &req) {
		return
	}
	s.execute(w, r, req.SignedRequest, action.Connect{Address: req.Address})
}

// Roll handles POST /api/v1/roll.
func (s *Server) Roll(w http.ResponseWriter, r *http.Request) {
	var req SignedRequest
	if !decode(w, r, &req) {
		return
	}
	s.execute(w, r, req, action.Roll{})
}

// Buy handles POST /api/v1/buy.
func (s *Server) Buy(w http.ResponseWriter, r *http.Request) {
	var req TileRequest
	if !decode(w, r, &req) {
		return
	}
	s.execute(w, r, req.SignedRequest, action.Buy{TileID: req.TileID})
}

// SkipBuy handles POST /api/v1/skip_buy.
func (s *Server) SkipBuy(w http.ResponseWriter, r *http.Request) {
	var req TileRequest
	if !decode(w, r, &req) {
		return
	}
	s.execute(w, r, req.SignedRequest, action.SkipBuy{TileID: req.TileID})
}

// Settle handles POST /api/v1/settle.
func (s *Server) Settle(w http.ResponseWriter, r *http.Request) {
	var req SettleRequest
	if !decode(w, r, &req) {
		return
	}
	s.execute(w, r, req.SignedRequest, action.Settle{TxHash: req.TxHash})
}

// CreateOffer handles POST /api/v1/offers.
func (s *Server) CreateOffer(w http.ResponseWriter, r *http.Request) {
	var req OfferRequest
	if !decode(w, r, &req) {
		return
	}
	s.execute(w, r, req.SignedRequest, action.CreateOffer{
		OfferKind: req.Kind,
		To:        req.To,
		TileID:    req.TileID,
		PriceFC:   req.PriceFC,
	})
}

// AcceptOffer handles POST /api/v1/offers/{offerID}/accept.
func (s *Server) AcceptOffer(w http.ResponseWriter, r *http.Request) {
	var req SignedRequest
	if !decode(w, r, &req) {
		return
	}
	s.execute(w, r, req, action.AcceptOffer{OfferID: chi.URLParam(r, "offerID")})
}

// DeclineOffer handles POST /api/v1/offers/{offerID}/decline.
func (s *Server) DeclineOffer(w http.ResponseWriter, r *http.Request) {
	var req SignedRequest
	if !decode(w, r, &req) {
		return
	}
	s.execute(w, r, req, action.DeclineOffer{OfferID: chi.URLParam(r, "offerID")})
}

// Chat handles POST /api/v1/chat.
func (s *Server) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if !decode(w, r, &req) {
		return
	}
	s.execute(w, r, req.SignedRequest, action.Chat{Text: req.Text})
}

func (s *Server) execute(w http.ResponseWriter, r *http.Request, req SignedRequest, act action.Action) {
	if req.PlayerIndex == nil {
		writeError(w, errMissingPlayer)
		return
	}
	snap, err := s.engine.Execute(r.Context(), *req.PlayerIndex, req.Proof, act)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// --- Helpers ---

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, errBadBody)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps err to its status and writes {"error", "kind"}.
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, apperr.HTTPStatus(err), errorBody{Error: err.Error(), Kind: apperr.KindOf(err).String()})
}
