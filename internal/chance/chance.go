// Package chance provides the randomness the engine consumes: dice rolls
// and chance cards. Both take an injected source so games can be replayed.
package chance

import (
	crand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
	"sync"

	"github.com/shopspring/decimal"
)

// Card is one chance outcome. Delta is applied to the drawing player's
// balance.
type Card struct {
	Text  string          `json:"text"`
	Delta decimal.Decimal `json:"delta"`
}

// Drawer draws chance cards.
type Drawer interface {
	Draw() Card
}

// Roller rolls a pair of six-sided dice.
type Roller interface {
	Roll() [2]int
}

// Table is the reference card table. Draws are with replacement.
func Table() []Card {
	return []Card{
		{Text: "Airdrop reward", Delta: decimal.NewFromInt(250)},
		{Text: "Validator reward", Delta: decimal.NewFromInt(150)},
		{Text: "Referral bonus", Delta: decimal.NewFromInt(100)},
		{Text: "Gas spike fee", Delta: decimal.NewFromInt(-100)},
		{Text: "Slashed for downtime", Delta: decimal.NewFromInt(-200)},
	}
}

// NewRand returns a generator seeded from seed, or from the OS when seed
// is nil.
func NewRand(seed *uint64) *rand.Rand {
	if seed != nil {
		return rand.New(rand.NewPCG(*seed, *seed^0x9e3779b97f4a7c15))
	}
	var key [32]byte
	if _, err := crand.Read(key[:]); err != nil {
		// crypto/rand does not fail on supported platforms.
		binary.LittleEndian.PutUint64(key[:], rand.Uint64())
	}
	return rand.New(rand.NewChaCha8(key))
}

// Deck draws uniformly from a fixed table.
type Deck struct {
	mu    sync.Mutex
	rng   *rand.Rand
	cards []Card
}

// NewDeck creates a deck over cards. cards must not be empty.
func NewDeck(rng *rand.Rand, cards []Card) *Deck {
	if len(cards) == 0 {
		panic("chance: empty card table")
	}
	return &Deck{rng: rng, cards: append([]Card(nil), cards...)}
}

func (d *Deck) Draw() Card {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cards[d.rng.IntN(len(d.cards))]
}

// Dice rolls two independent uniform values in [1,6].
type Dice struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewDice(rng *rand.Rand) *Dice {
	return &Dice{rng: rng}
}

func (d *Dice) Roll() [2]int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return [2]int{d.rng.IntN(6) + 1, d.rng.IntN(6) + 1}
}

// Sequence replays cards in order, wrapping around. Used to script games.
type Sequence struct {
	mu    sync.Mutex
	cards []Card
	next  int
}

func NewSequence(cards ...Card) *Sequence {
	return &Sequence{cards: cards}
}

func (s *Sequence) Draw() Card {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.cards[s.next%len(s.cards)]
	s.next++
	return c
}

// FixedDice replays rolls in order, wrapping around.
type FixedDice struct {
	mu    sync.Mutex
	rolls [][2]int
	next  int
}

func NewFixedDice(rolls ...[2]int) *FixedDice {
	return &FixedDice{rolls: rolls}
}

func (f *FixedDice) Roll() [2]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.rolls[f.next%len(f.rolls)]
	f.next++
	return r
}
