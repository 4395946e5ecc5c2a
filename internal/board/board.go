// Package board holds the static tile ring. Tiles are immutable; ownership
// lives in the game state, never here.
package board

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/flarepoly/game-engine/internal/apperr"
)

// Tile types.
const (
	TypeProperty = "property"
	TypeTax      = "tax"
	TypeChance   = "chance"
	TypeCorner   = "corner"
)

// Corner subtypes.
const (
	CornerGo       = "go"
	CornerJail     = "jail"
	CornerParking  = "parking"
	CornerGoToJail = "gotojail"
)

var ErrInvalidTile = apperr.New(apperr.KindValidation, "board: invalid tile id")

// Tile is one square on the board. Price is the purchase price for
// properties and the charge for tax tiles.
type Tile struct {
	ID      int              `json:"id"`
	Type    string           `json:"type"`
	Subtype string           `json:"subtype,omitempty"`
	Name    string           `json:"name"`
	Family  string           `json:"family,omitempty"`
	Price   *decimal.Decimal `json:"price"`
	Rent    *decimal.Decimal `json:"rent,omitempty"`
}

// Purchasable reports whether the tile can be bought and traded.
func (t Tile) Purchasable() bool {
	return t.Type == TypeProperty && t.Price != nil
}

// Board is an ordered ring of tiles.
type Board struct {
	tiles []Tile
	jail  int
}

// New validates tiles and builds a Board. Tile ids must equal their index.
func New(tiles []Tile) (*Board, error) {
	if len(tiles) == 0 {
		return nil, errors.New("board: no tiles")
	}
	jail := -1
	for i, t := range tiles {
		if t.ID != i {
			return nil, fmt.Errorf("board: tile at index %d has id %d", i, t.ID)
		}
		if t.Type == TypeProperty && (t.Price == nil || t.Rent == nil) {
			return nil, fmt.Errorf("board: property %d missing price or rent", i)
		}
		if t.Type == TypeTax && t.Price == nil {
			return nil, fmt.Errorf("board: tax tile %d missing amount", i)
		}
		if t.Subtype == CornerJail {
			jail = i
		}
	}
	return &Board{tiles: append([]Tile(nil), tiles...), jail: jail}, nil
}

// Len returns the number of tiles.
func (b *Board) Len() int { return len(b.tiles) }

// Tile looks up a tile by id.
func (b *Board) Tile(id int) (Tile, error) {
	if id < 0 || id >= len(b.tiles) {
		return Tile{}, fmt.Errorf("%w: %d", ErrInvalidTile, id)
	}
	return b.tiles[id], nil
}

// Tiles returns a copy of the ring.
func (b *Board) Tiles() []Tile {
	return append([]Tile(nil), b.tiles...)
}

// Jail returns the jail tile id, or -1 if the board has none.
func (b *Board) Jail() int { return b.jail }

// Advance returns the position reached after moving steps from pos.
func (b *Board) Advance(pos, steps int) int {
	n := len(b.tiles)
	return ((pos+steps)%n + n) % n
}

func fc(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func property(id int, family, name, price, rent string) Tile {
	return Tile{ID: id, Type: TypeProperty, Name: name, Family: family, Price: fc(price), Rent: fc(rent)}
}

func corner(id int, subtype, name string) Tile {
	return Tile{ID: id, Type: TypeCorner, Subtype: subtype, Name: name}
}

func chance(id int) Tile {
	return Tile{ID: id, Type: TypeChance, Name: "Chance"}
}

func tax(id int, amount string) Tile {
	return Tile{ID: id, Type: TypeTax, Name: "Gas Fee", Price: fc(amount)}
}

// Reference returns the 24-tile reference board.
func Reference() *Board {
	b, err := New([]Tile{
		corner(0, CornerGo, "START"),
		property(1, "meme", "DOGE", "0.12", "10"),
		property(2, "meme", "PEPE", "0.00001", "5"),
		chance(3),
		property(4, "sol", "BONK", "0.00002", "8"),
		tax(5, "100"),
		corner(6, CornerJail, "JAIL"),
		property(7, "sol", "SOL", "145", "14"),
		property(8, "sol", "JUP", "1.2", "12"),
		chance(9),
		property(10, "bnb", "BNB", "580", "50"),
		property(11, "bnb", "CAKE", "2.5", "20"),
		corner(12, CornerParking, "HODL"),
		property(13, "bnb", "TWT", "1.1", "16"),
		property(14, "eth", "ETH", "2400", "200"),
		property(15, "eth", "ARB", "1.1", "15"),
		chance(16),
		property(17, "eth", "UNI", "7.5", "18"),
		corner(18, CornerGoToJail, "GO TO JAIL"),
		tax(19, "100"),
		property(20, "btc", "BTC", "65000", "500"),
		property(21, "btc", "WBTC", "64900", "480"),
		chance(22),
		property(23, "btc", "STX", "1.8", "25"),
	})
	if err != nil {
		panic(err)
	}
	return b
}
