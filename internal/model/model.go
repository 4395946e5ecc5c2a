// Package model defines the core domain types shared across the game engine.
// Money is shopspring/decimal throughout; float64 never holds a balance or price.
package model

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Message types.
const (
	MessageChat = "chat"
	MessageNews = "news"
)

// Offer kinds.
const (
	OfferSell = "sell"
	OfferBuy  = "buy"
)

// SettlementBuy is the only settlement kind the engine creates today.
const SettlementBuy = "buy"

// Phases reported in snapshots.
const (
	PhaseAwaitingRoll       = "awaiting_roll"
	PhaseAwaitingBuy        = "awaiting_buy_decision"
	PhaseAwaitingSettlement = "awaiting_settlement"
	PhaseGameOver           = "game_over"
)

// SystemUser authors every engine-generated message.
const SystemUser = "System"

// MaxMessages bounds the message log; older entries are dropped.
const MaxMessages = 400

// Player is one seat at the table.
type Player struct {
	Index      int             `json:"index"`
	Wallet     string          `json:"wallet,omitempty"` // checksummed hex; empty until CONNECT
	Balance    decimal.Decimal `json:"balance"`
	Position   int             `json:"position"`
	Eliminated bool            `json:"eliminated"`
	SkipTurns  int             `json:"skip_turns"`
}

// Message is an append-only log entry. News entries carry the balance delta
// that produced them.
type Message struct {
	User  string           `json:"user"`
	Text  string           `json:"text"`
	Type  string           `json:"type"`
	Delta *decimal.Decimal `json:"delta,omitempty"`
	At    time.Time        `json:"at"`
}

// BuyPrompt is set when the active player lands on an unowned property.
type BuyPrompt struct {
	TileID      int             `json:"tileId"`
	PlayerIndex int             `json:"playerIndex"`
	Price       decimal.Decimal `json:"price"`
}

// TradeOffer is a peer-to-peer proposal. Offers are never mutated; accept
// and decline remove them.
type TradeOffer struct {
	ID         string          `json:"id"`
	Kind       string          `json:"type"` // "sell" or "buy"
	FromPlayer int             `json:"from"`
	ToPlayer   int             `json:"to"`
	TileID     int             `json:"tileId"`
	PriceFC    decimal.Decimal `json:"priceFC"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// Parties returns (seller, buyer) implied by the offer kind.
func (o TradeOffer) Parties() (seller, buyer int) {
	if o.Kind == OfferSell {
		return o.FromPlayer, o.ToPlayer
	}
	return o.ToPlayer, o.FromPlayer
}

// PendingSettlement records a purchase waiting on an external transfer.
// At most one exists at a time.
type PendingSettlement struct {
	Kind        string          `json:"kind"`
	TileID      int             `json:"tileId"`
	FromAddress string          `json:"from"`
	ToAddress   string          `json:"to"`
	AmountRaw   decimal.Decimal `json:"amountRaw"` // integer token base units
	PriceFC     decimal.Decimal `json:"priceFC"`
	ForPlayer   int             `json:"forPlayer"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// SettlementRecord is an immutable audit entry for a verified transfer.
type SettlementRecord struct {
	ID        string          `json:"id" db:"id"`
	GameID    string          `json:"game_id" db:"game_id"`
	TileID    int             `json:"tile_id" db:"tile_id"`
	Player    int             `json:"player" db:"player"`
	From      string          `json:"from" db:"from_address"`
	To        string          `json:"to" db:"to_address"`
	AmountRaw decimal.Decimal `json:"amount_raw" db:"amount_raw"`
	PriceFC   decimal.Decimal `json:"price_fc" db:"price_fc"`
	TxHash    string          `json:"tx_hash" db:"tx_hash"`
	SettledAt time.Time       `json:"settled_at" db:"settled_at"`
}

// GameState is the complete mutable state of one game. The engine never
// mutates a published GameState; it clones, applies, and swaps.
type GameState struct {
	GameID            string             `json:"game_id"`
	Version           uint64             `json:"version"`
	Players           []Player           `json:"players"`
	Active            int                `json:"active"`
	Dice              [2]int             `json:"dice"`
	Ownership         map[int]int        `json:"ownership"` // tile id → player index
	Messages          []Message          `json:"messages"`
	BuyPrompt         *BuyPrompt         `json:"buy_prompt,omitempty"`
	TradeOffers       []TradeOffer       `json:"trade_offers"`
	PendingSettlement *PendingSettlement `json:"pending_settlement,omitempty"`
	GameOver          bool               `json:"game_over"`
	Winner            *int               `json:"winner,omitempty"`
	SettledTotal      decimal.Decimal    `json:"settled_total"`
	UsedTxHashes      map[string]bool    `json:"used_tx_hashes"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

// Clone returns a deep copy.
func (g *GameState) Clone() *GameState {
	c := *g
	c.Players = append([]Player(nil), g.Players...)
	c.Ownership = make(map[int]int, len(g.Ownership))
	for k, v := range g.Ownership {
		c.Ownership[k] = v
	}
	c.Messages = append([]Message(nil), g.Messages...)
	c.TradeOffers = append([]TradeOffer(nil), g.TradeOffers...)
	c.UsedTxHashes = make(map[string]bool, len(g.UsedTxHashes))
	for k, v := range g.UsedTxHashes {
		c.UsedTxHashes[k] = v
	}
	if g.BuyPrompt != nil {
		bp := *g.BuyPrompt
		c.BuyPrompt = &bp
	}
	if g.PendingSettlement != nil {
		ps := *g.PendingSettlement
		c.PendingSettlement = &ps
	}
	if g.Winner != nil {
		w := *g.Winner
		c.Winner = &w
	}
	return &c
}

// Log appends a message, trimming the log to MaxMessages.
func (g *GameState) Log(m Message) {
	if m.At.IsZero() {
		m.At = time.Now().UTC()
	}
	g.Messages = append(g.Messages, m)
	if n := len(g.Messages); n > MaxMessages {
		g.Messages = append([]Message(nil), g.Messages[n-MaxMessages:]...)
	}
}

// Phase derives the turn phase from the state.
func (g *GameState) Phase() string {
	switch {
	case g.GameOver:
		return PhaseGameOver
	case g.PendingSettlement != nil:
		return PhaseAwaitingSettlement
	case g.BuyPrompt != nil:
		return PhaseAwaitingBuy
	default:
		return PhaseAwaitingRoll
	}
}

// OwnedBy returns the sorted tile ids owned by player.
func (g *GameState) OwnedBy(player int) []int {
	var tiles []int
	for tile, owner := range g.Ownership {
		if owner == player {
			tiles = append(tiles, tile)
		}
	}
	sort.Ints(tiles)
	return tiles
}

// Alive returns the indices of non-eliminated players.
func (g *GameState) Alive() []int {
	var alive []int
	for _, p := range g.Players {
		if !p.Eliminated {
			alive = append(alive, p.Index)
		}
	}
	return alive
}

// WalletOf returns the wallet bound to player, if any.
func (g *GameState) WalletOf(player int) (string, bool) {
	if player < 0 || player >= len(g.Players) || g.Players[player].Wallet == "" {
		return "", false
	}
	return g.Players[player].Wallet, true
}

// ActivePlayer returns the index of the player whose turn it is.
func (g *GameState) ActivePlayer() int { return g.Active }

// ID returns the game id.
func (g *GameState) ID() string { return g.GameID }

// Snapshot is the polling view returned to clients.
type Snapshot struct {
	GameID            string             `json:"gameId"`
	Version           uint64             `json:"version"`
	Phase             string             `json:"phase"`
	ActivePlayer      int                `json:"activePlayer"`
	Positions         []int              `json:"positions"`
	Balances          []decimal.Decimal  `json:"balances"`
	Ownership         map[int]int        `json:"ownership"`
	Messages          []Message          `json:"messages"`
	BuyPrompt         *BuyPrompt         `json:"buyPrompt"`
	TradeOffers       []TradeOffer       `json:"tradeOffers"`
	Dice              [2]int             `json:"dice"`
	Eliminated        []bool             `json:"eliminated"`
	SkipTurns         []int              `json:"skipTurns"`
	GameOver          bool               `json:"gameOver"`
	Winner            *int               `json:"winner"`
	PlayerWallets     []*string          `json:"playerWallets"`
	PendingSettlement *PendingSettlement `json:"pendingSettlement"`
	SettledTotal      decimal.Decimal    `json:"settledTotal"`
}

// Snapshot flattens the state into the client view. The result shares no
// mutable memory with g.
func (g *GameState) Snapshot() Snapshot {
	c := g.Clone()
	s := Snapshot{
		GameID:            c.GameID,
		Version:           c.Version,
		Phase:             c.Phase(),
		ActivePlayer:      c.Active,
		Ownership:         c.Ownership,
		Messages:          c.Messages,
		BuyPrompt:         c.BuyPrompt,
		TradeOffers:       c.TradeOffers,
		Dice:              c.Dice,
		GameOver:          c.GameOver,
		Winner:            c.Winner,
		PendingSettlement: c.PendingSettlement,
		SettledTotal:      c.SettledTotal,
	}
	for _, p := range c.Players {
		s.Positions = append(s.Positions, p.Position)
		s.Balances = append(s.Balances, p.Balance)
		s.Eliminated = append(s.Eliminated, p.Eliminated)
		s.SkipTurns = append(s.SkipTurns, p.SkipTurns)
		if p.Wallet == "" {
			s.PlayerWallets = append(s.PlayerWallets, nil)
		} else {
			w := p.Wallet
			s.PlayerWallets = append(s.PlayerWallets, &w)
		}
	}
	if s.Messages == nil {
		s.Messages = []Message{}
	}
	if s.TradeOffers == nil {
		s.TradeOffers = []TradeOffer{}
	}
	return s
}
