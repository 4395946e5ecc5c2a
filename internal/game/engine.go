// Package game is the authoritative game engine: turn order, landing
// resolution, the ownership ledger, peer-to-peer trades, settlement, and
// elimination.
//
// The Engine is the single writer. Each action is authenticated, applied to
// a private clone of the current state, persisted, and only then published.
// Readers load the published state without locking and never observe a
// partially-applied action.
package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/flarepoly/game-engine/internal/action"
	"github.com/flarepoly/game-engine/internal/apperr"
	"github.com/flarepoly/game-engine/internal/auth"
	"github.com/flarepoly/game-engine/internal/board"
	"github.com/flarepoly/game-engine/internal/chance"
	"github.com/flarepoly/game-engine/internal/metrics"
	"github.com/flarepoly/game-engine/internal/model"
	"github.com/flarepoly/game-engine/internal/settlement"
	"github.com/flarepoly/game-engine/internal/store"
)

// EliminationPolicy decides when an unpayable debt eliminates a player.
type EliminationPolicy string

const (
	// PolicyAssets eliminates only if the player's tiles, at list price,
	// could not cover the shortfall.
	PolicyAssets EliminationPolicy = "assets"
	// PolicyStrict eliminates on any shortfall.
	PolicyStrict EliminationPolicy = "strict"
)

const (
	MinPlayers = 2
	MaxPlayers = 4
)

// Options configures an Engine. Zero values get defaults where noted.
type Options struct {
	Players      int             // default 4
	StartBalance decimal.Decimal // default 1500
	JailTurns    int             // default 2
	Policy       EliminationPolicy

	Board *board.Board  // default board.Reference()
	Dice  chance.Roller // required
	Deck  chance.Drawer // required

	// Gateway verifies on-chain purchases. Nil selects ledger mode, where
	// BUY pays from the in-game balance immediately.
	Gateway *settlement.Gateway

	Store  store.Store         // required
	Auth   *auth.Authenticator // required
	Logger *slog.Logger        // default slog.Default()
	Now    func() time.Time    // default time.Now
}

// Engine owns the game state.
type Engine struct {
	opts Options
	log  *slog.Logger

	mu      sync.Mutex // serializes writers
	current atomic.Pointer[model.GameState]
	halted  atomic.Bool

	subMu       sync.RWMutex
	subscribers []func(model.Snapshot)
}

// New creates an engine, restoring the last saved game from the store or
// starting a fresh one.
func New(ctx context.Context, opts Options) (*Engine, error) {
	if opts.Dice == nil || opts.Deck == nil || opts.Store == nil || opts.Auth == nil {
		return nil, errors.New("game: dice, deck, store and auth are required")
	}
	if opts.Players == 0 {
		opts.Players = MaxPlayers
	}
	if opts.Players < MinPlayers || opts.Players > MaxPlayers {
		return nil, ErrInvalidPlayerCount
	}
	if opts.StartBalance.IsZero() {
		opts.StartBalance = decimal.NewFromInt(1500)
	}
	if opts.JailTurns == 0 {
		opts.JailTurns = 2
	}
	if opts.Policy == "" {
		opts.Policy = PolicyAssets
	}
	if opts.Policy != PolicyAssets && opts.Policy != PolicyStrict {
		return nil, fmt.Errorf("game: unknown elimination policy %q", opts.Policy)
	}
	if opts.Board == nil {
		opts.Board = board.Reference()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	e := &Engine{opts: opts, log: opts.Logger}

	st, err := opts.Store.LoadState(ctx)
	switch {
	case err == nil:
		if err := e.checkRestored(st); err != nil {
			return nil, err
		}
		e.current.Store(st)
		metrics.StateVersion.Set(float64(st.Version))
		e.log.Info("game restored", "game_id", st.GameID, "version", st.Version, "players", len(st.Players))
		return e, nil
	case errors.Is(err, store.ErrNotFound):
		if _, err := e.Reset(ctx, opts.Players); err != nil {
			return nil, err
		}
		return e, nil
	default:
		return nil, fmt.Errorf("load state: %w", err)
	}
}

func (e *Engine) checkRestored(st *model.GameState) error {
	n := len(st.Players)
	if n < MinPlayers || n > MaxPlayers || st.Active < 0 || st.Active >= n {
		return fmt.Errorf("game: saved state is corrupt (players=%d active=%d)", n, st.Active)
	}
	if st.Ownership == nil {
		st.Ownership = make(map[int]int)
	}
	if st.UsedTxHashes == nil {
		st.UsedTxHashes = make(map[string]bool)
	}
	return nil
}

// OnCommit registers fn to receive every committed snapshot, in commit
// order. fn runs on the writer's goroutine and must not block.
func (e *Engine) OnCommit(fn func(model.Snapshot)) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	e.subscribers = append(e.subscribers, fn)
}

// Snapshot returns the latest committed state.
func (e *Engine) Snapshot() model.Snapshot {
	return e.current.Load().Snapshot()
}

// Board returns the tile ring the engine plays on.
func (e *Engine) Board() *board.Board { return e.opts.Board }

// LedgerMode reports whether purchases are paid from in-game balances.
func (e *Engine) LedgerMode() bool { return e.opts.Gateway == nil }

// Halted reports whether a persistence failure has stopped the engine.
func (e *Engine) Halted() bool { return e.halted.Load() }

// Challenge returns the message player must sign to perform act.
func (e *Engine) Challenge(ctx context.Context, player int, act action.Action) (auth.Challenge, error) {
	st := e.current.Load()
	if player < 0 || player >= len(st.Players) {
		return auth.Challenge{}, ErrInvalidPlayer
	}
	return e.opts.Auth.Issue(ctx, st.GameID, player, act)
}

// Settlements lists verified settlements for gameID, or for every game
// when gameID is empty.
func (e *Engine) Settlements(ctx context.Context, gameID string) ([]model.SettlementRecord, error) {
	return e.opts.Store.ListSettlements(ctx, gameID)
}

// Reset starts a new game with the given number of players (0 keeps the
// configured count). The game id rotates, so every outstanding challenge
// becomes stale.
func (e *Engine) Reset(ctx context.Context, players int) (model.Snapshot, error) {
	if players == 0 {
		players = e.opts.Players
	}
	if players < MinPlayers || players > MaxPlayers {
		return model.Snapshot{}, ErrInvalidPlayerCount
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.halted.Load() {
		return model.Snapshot{}, ErrHalted
	}

	now := e.opts.Now().UTC()
	st := &model.GameState{
		GameID:       uuid.NewString(),
		Players:      make([]model.Player, players),
		Ownership:    make(map[int]int),
		UsedTxHashes: make(map[string]bool),
		SettledTotal: decimal.Zero,
	}
	for i := range st.Players {
		st.Players[i] = model.Player{Index: i, Balance: e.opts.StartBalance}
	}
	if prev := e.current.Load(); prev != nil {
		st.Version = prev.Version
	}
	st.Log(model.Message{User: model.SystemUser, Text: fmt.Sprintf("Game created for %d players", players), Type: model.MessageChat, At: now})

	if err := e.commit(ctx, &txn{st: st}); err != nil {
		return model.Snapshot{}, err
	}
	metrics.GamesStarted.Inc()
	e.log.Info("game reset", "game_id", st.GameID, "players", players)
	return st.Snapshot(), nil
}

// txn is one action being applied to a private copy of the state.
type txn struct {
	st          *model.GameState
	now         time.Time
	settlements []model.SettlementRecord
	eliminated  int
	// keep commits the state even though the action was rejected; used
	// when rejection itself changes state, such as discarding a stale offer.
	keep  bool
	attrs []any
}

func (t *txn) note(attrs ...any) { t.attrs = append(t.attrs, attrs...) }

// Execute authenticates proof for act by player and applies it. On
// rejection no state changes, except where the rejection discards stale
// data; the returned snapshot then reflects that.
func (e *Engine) Execute(ctx context.Context, player int, proof auth.Proof, act action.Action) (model.Snapshot, error) {
	start := time.Now()
	kind := string(act.Kind())
	defer func() {
		metrics.ActionLatency.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	}()

	e.mu.Lock()
	defer e.mu.Unlock()

	snap, err := e.execute(ctx, player, proof, act)
	result := "ok"
	if err != nil {
		result = apperr.KindOf(err).String()
		e.log.Warn("action rejected", "action", kind, "player", player, "err", err)
	}
	metrics.ActionsTotal.WithLabelValues(kind, result).Inc()
	return snap, err
}

func (e *Engine) execute(ctx context.Context, player int, proof auth.Proof, act action.Action) (model.Snapshot, error) {
	if e.halted.Load() {
		return model.Snapshot{}, ErrHalted
	}
	cur := e.current.Load()
	if player < 0 || player >= len(cur.Players) {
		return model.Snapshot{}, ErrInvalidPlayer
	}
	if err := e.opts.Auth.Verify(ctx, cur, proof, player, act); err != nil {
		metrics.AuthFailures.WithLabelValues(authReason(err)).Inc()
		return model.Snapshot{}, err
	}

	t := &txn{st: cur.Clone(), now: e.opts.Now().UTC()}
	applyErr := e.apply(ctx, t, player, act)
	if applyErr != nil && !t.keep {
		return model.Snapshot{}, applyErr
	}
	if err := e.commit(ctx, t); err != nil {
		return model.Snapshot{}, err
	}
	if applyErr != nil {
		return t.st.Snapshot(), applyErr
	}

	attrs := append([]any{"action", string(act.Kind()), "player", player, "game_id", t.st.GameID, "version", t.st.Version}, t.attrs...)
	e.log.Info("action committed", attrs...)
	return t.st.Snapshot(), nil
}

func (e *Engine) apply(ctx context.Context, t *txn, player int, act action.Action) error {
	switch a := act.(type) {
	case action.Connect:
		return e.connect(t, player, a.Address)
	case action.Roll:
		return e.roll(t, player)
	case action.Buy:
		return e.buy(t, player, a.TileID)
	case action.SkipBuy:
		return e.skipBuy(t, player, a.TileID)
	case action.Settle:
		return e.settle(ctx, t, player, a.TxHash)
	case action.CreateOffer:
		return e.createOffer(t, player, a)
	case action.AcceptOffer:
		return e.acceptOffer(t, player, a.OfferID)
	case action.DeclineOffer:
		return e.declineOffer(t, player, a.OfferID)
	case action.Chat:
		return e.chat(t, player, a.Text)
	default:
		return fmt.Errorf("%w: unsupported action %s", action.ErrInvalidParams, act.Kind())
	}
}

// commit persists t, state and settlement records together, and publishes
// it. A persistence failure halts the engine; the previously published
// state stays visible.
func (e *Engine) commit(ctx context.Context, t *txn) error {
	st := t.st
	st.Version++
	st.UpdatedAt = e.opts.Now().UTC()

	if err := e.opts.Store.Commit(ctx, st, t.settlements); err != nil {
		if errors.Is(err, store.ErrDuplicateTx) {
			// Nothing was written; another writer recorded the hash first.
			return ErrTxAlreadyUsed
		}
		return e.halt(err)
	}

	e.current.Store(st)
	metrics.StateVersion.Set(float64(st.Version))
	for i := 0; i < t.eliminated; i++ {
		metrics.Eliminations.Inc()
	}

	snap := st.Snapshot()
	e.subMu.RLock()
	defer e.subMu.RUnlock()
	for _, fn := range e.subscribers {
		fn(snap)
	}
	return nil
}

func (e *Engine) halt(cause error) error {
	e.halted.Store(true)
	metrics.EngineHalted.Set(1)
	e.log.Error("persistence failed; engine halted", "err", cause)
	return fmt.Errorf("%w: %v", ErrHalted, cause)
}

func authReason(err error) string {
	switch {
	case errors.Is(err, auth.ErrNoWalletBound):
		return "no_wallet_bound"
	case errors.Is(err, auth.ErrWrongActiveAddress):
		return "wrong_active_address"
	case errors.Is(err, auth.ErrSignatureInvalid):
		return "signature_invalid"
	case errors.Is(err, auth.ErrNonceReplayed):
		return "nonce_replayed"
	case errors.Is(err, auth.ErrStaleChallenge):
		return "stale_challenge"
	case errors.Is(err, auth.ErrChallengeMismatch):
		return "challenge_mismatch"
	case errors.Is(err, auth.ErrNotYourTurn):
		return "not_your_turn"
	default:
		return "other"
	}
}

// name is the display name used in log messages.
func name(player int) string { return fmt.Sprintf("Player %d", player+1) }
