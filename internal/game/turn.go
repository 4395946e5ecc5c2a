package game

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/flarepoly/game-engine/internal/auth"
	"github.com/flarepoly/game-engine/internal/board"
	"github.com/flarepoly/game-engine/internal/model"
)

const maxChatLen = 280

func (t *txn) system(format string, args ...any) {
	t.st.Log(model.Message{User: model.SystemUser, Text: fmt.Sprintf(format, args...), Type: model.MessageChat, At: t.now})
}

func (t *txn) news(delta decimal.Decimal, format string, args ...any) {
	d := delta
	t.st.Log(model.Message{User: model.SystemUser, Text: fmt.Sprintf(format, args...), Type: model.MessageNews, Delta: &d, At: t.now})
}

func (e *Engine) connect(t *txn, player int, address string) error {
	if !common.IsHexAddress(address) {
		return ErrInvalidAddress
	}
	st := t.st
	addr := common.HexToAddress(address).Hex()
	if st.Players[player].Wallet != "" {
		return ErrSlotBound
	}
	for _, p := range st.Players {
		if p.Wallet == addr {
			return fmt.Errorf("%w: bound to %s", ErrWalletInUse, name(p.Index))
		}
	}
	st.Players[player].Wallet = addr
	t.system("%s connected wallet %s", name(player), addr)
	t.note("wallet", addr)
	return nil
}

func (e *Engine) chat(t *txn, player int, text string) error {
	text = strings.TrimSpace(text)
	if n := utf8.RuneCountInString(text); n == 0 || n > maxChatLen {
		return ErrInvalidChat
	}
	if pendingFor(t.st, player) {
		return ErrSettlementPending
	}
	t.st.Log(model.Message{User: name(player), Text: text, Type: model.MessageChat, At: t.now})
	return nil
}

// roll moves the active player and resolves the landing tile.
func (e *Engine) roll(t *txn, player int) error {
	st := t.st
	switch {
	case st.GameOver:
		return ErrGameOver
	case player != st.Active:
		return auth.ErrNotYourTurn
	case st.Players[player].Eliminated:
		return ErrEliminated
	case st.PendingSettlement != nil:
		return ErrSettlementPending
	case st.BuyPrompt != nil:
		return ErrBuyPromptOutstanding
	}
	for _, o := range st.TradeOffers {
		if o.ToPlayer == player {
			return ErrOfferOutstanding
		}
	}

	dice := e.opts.Dice.Roll()
	st.Dice = dice
	steps := dice[0] + dice[1]
	p := &st.Players[player]
	from := p.Position
	p.Position = e.opts.Board.Advance(from, steps)
	t.system("%s rolled %d (%d+%d) and moved %d -> %d", name(player), steps, dice[0], dice[1], from, p.Position)
	t.note("dice", dice, "from", from, "to", p.Position)

	if err := e.land(t, player); err != nil {
		return err
	}
	if st.BuyPrompt == nil {
		e.advanceTurn(t)
	}
	return nil
}

// land resolves the tile under player.
func (e *Engine) land(t *txn, player int) error {
	st := t.st
	p := &st.Players[player]
	tile, err := e.opts.Board.Tile(p.Position)
	if err != nil {
		return err
	}

	switch tile.Type {
	case board.TypeChance:
		card := e.opts.Deck.Draw()
		t.news(card.Delta, "%s: %s (%s FC)", name(player), card.Text, signed(card.Delta))
		if card.Delta.IsPositive() {
			p.Balance = p.Balance.Add(card.Delta)
		} else if card.Delta.IsNegative() {
			e.debit(t, player, card.Delta.Neg(), -1)
		}
		t.note("chance", card.Text)

	case board.TypeTax:
		t.news(tile.Price.Neg(), "%s paid %s FC %s", name(player), tile.Price, tile.Name)
		e.debit(t, player, *tile.Price, -1)

	case board.TypeProperty:
		owner, owned := st.Ownership[tile.ID]
		switch {
		case !owned:
			st.BuyPrompt = &model.BuyPrompt{TileID: tile.ID, PlayerIndex: player, Price: *tile.Price}
			t.system("%s can buy %s for %s FC", name(player), tile.Name, tile.Price)
		case owner != player && !st.Players[owner].Eliminated:
			paid := e.debit(t, player, *tile.Rent, owner)
			t.system("%s paid %s FC rent to %s for %s", name(player), paid, name(owner), tile.Name)
			t.note("rent", paid.String(), "owner", owner)
		}

	case board.TypeCorner:
		if tile.Subtype == board.CornerGoToJail && e.opts.Board.Jail() >= 0 {
			p.Position = e.opts.Board.Jail()
			p.SkipTurns = e.opts.JailTurns
			t.system("%s goes to jail for %d turns", name(player), e.opts.JailTurns)
		}
	}
	return nil
}

// advanceTurn passes the turn to the next player who may roll. Eliminated
// players are skipped; jailed players lose one turn per pass.
func (e *Engine) advanceTurn(t *txn) {
	st := t.st
	if st.GameOver {
		return
	}
	n := len(st.Players)
	idx := st.Active
	// Every full lap decrements at least one counter, so this is bounded.
	for i := 0; i < n*(e.opts.JailTurns+2); i++ {
		idx = (idx + 1) % n
		p := &st.Players[idx]
		if p.Eliminated {
			continue
		}
		if p.SkipTurns > 0 {
			p.SkipTurns--
			t.system("%s is in jail and skips a turn (%d left)", name(idx), p.SkipTurns)
			continue
		}
		st.Active = idx
		return
	}
	if alive := st.Alive(); len(alive) > 0 {
		st.Active = alive[0]
	}
}

func pendingFor(st *model.GameState, player int) bool {
	return st.PendingSettlement != nil && st.PendingSettlement.ForPlayer == player
}

func signed(d decimal.Decimal) string {
	if d.IsPositive() {
		return "+" + d.String()
	}
	return d.String()
}
