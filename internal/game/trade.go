package game

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/flarepoly/game-engine/internal/action"
	"github.com/flarepoly/game-engine/internal/model"
)

func findOffer(st *model.GameState, id string) (int, bool) {
	for i, o := range st.TradeOffers {
		if o.ID == id {
			return i, true
		}
	}
	return -1, false
}

func removeOffer(st *model.GameState, i int) {
	st.TradeOffers = append(st.TradeOffers[:i:i], st.TradeOffers[i+1:]...)
}

// createOffer posts a peer-to-peer offer. Offers are out of band: any
// player may create one at any time.
func (e *Engine) createOffer(t *txn, player int, a action.CreateOffer) error {
	st := t.st
	if st.GameOver {
		return ErrGameOver
	}
	if st.Players[player].Eliminated {
		return ErrEliminated
	}
	if pendingFor(st, player) {
		return ErrSettlementPending
	}
	if a.OfferKind != model.OfferSell && a.OfferKind != model.OfferBuy {
		return ErrInvalidOfferKind
	}
	if a.To < 0 || a.To >= len(st.Players) {
		return ErrInvalidPlayer
	}
	if a.To == player {
		return ErrSelfTrade
	}
	if st.Players[a.To].Eliminated {
		return fmt.Errorf("%w: %s", ErrEliminated, name(a.To))
	}
	tile, err := e.opts.Board.Tile(a.TileID)
	if err != nil {
		return err
	}
	if !tile.Purchasable() {
		return ErrNotTradable
	}
	if !a.PriceFC.IsPositive() {
		return ErrInvalidPrice
	}

	owner, owned := st.Ownership[a.TileID]
	wantOwner := player
	if a.OfferKind == model.OfferBuy {
		wantOwner = a.To
	}
	if !owned || owner != wantOwner {
		return ErrWrongOwner
	}

	offer := model.TradeOffer{
		ID:         uuid.NewString(),
		Kind:       a.OfferKind,
		FromPlayer: player,
		ToPlayer:   a.To,
		TileID:     a.TileID,
		PriceFC:    a.PriceFC,
		CreatedAt:  t.now,
	}
	// Newest first.
	st.TradeOffers = append([]model.TradeOffer{offer}, st.TradeOffers...)
	verb := "sell"
	if offer.Kind == model.OfferBuy {
		verb = "buy"
	}
	t.system("Offer: %s wants to %s %s with %s for %s FC", name(player), verb, tile.Name, name(a.To), a.PriceFC)
	t.note("offer_id", offer.ID, "kind", offer.Kind, "to", a.To, "tile", a.TileID, "price", a.PriceFC.String())
	return nil
}

// acceptOffer executes a trade: the buyer pays the seller and the tile
// changes hands in one step, or nothing happens.
func (e *Engine) acceptOffer(t *txn, player int, id string) error {
	st := t.st
	if st.GameOver {
		return ErrGameOver
	}
	i, ok := findOffer(st, id)
	if !ok {
		return ErrOfferNotFound
	}
	o := st.TradeOffers[i]
	if o.ToPlayer != player {
		return ErrNotRecipient
	}
	if pendingFor(st, player) {
		return ErrSettlementPending
	}

	seller, buyer := o.Parties()
	if owner, owned := st.Ownership[o.TileID]; !owned || owner != seller ||
		st.Players[seller].Eliminated || st.Players[buyer].Eliminated {
		removeOffer(st, i)
		t.system("Offer %s discarded: tile %d changed hands", o.ID, o.TileID)
		t.keep = true
		return ErrOwnershipChanged
	}
	b, s := &st.Players[buyer], &st.Players[seller]
	if b.Balance.LessThan(o.PriceFC) {
		return fmt.Errorf("%w: %s has %s FC, offer is %s FC", ErrInsufficientFunds, name(buyer), b.Balance, o.PriceFC)
	}

	b.Balance = b.Balance.Sub(o.PriceFC)
	s.Balance = s.Balance.Add(o.PriceFC)
	st.Ownership[o.TileID] = buyer
	removeOffer(st, i)

	tileName := fmt.Sprintf("tile %d", o.TileID)
	if tile, err := e.opts.Board.Tile(o.TileID); err == nil {
		tileName = tile.Name
	}
	t.system("Deal: %s %s -> %s for %s FC", tileName, name(seller), name(buyer), o.PriceFC)
	t.note("offer_id", o.ID, "seller", seller, "buyer", buyer, "price", o.PriceFC.String())
	return nil
}

// declineOffer withdraws or rejects an offer. Either party may do it.
func (e *Engine) declineOffer(t *txn, player int, id string) error {
	st := t.st
	i, ok := findOffer(st, id)
	if !ok {
		return ErrOfferNotFound
	}
	o := st.TradeOffers[i]
	if o.ToPlayer != player && o.FromPlayer != player {
		return ErrNotRecipient
	}
	if pendingFor(st, player) {
		return ErrSettlementPending
	}
	removeOffer(st, i)
	if player == o.FromPlayer {
		t.system("%s withdrew offer on tile %d", name(player), o.TileID)
	} else {
		t.system("%s declined offer on tile %d", name(player), o.TileID)
	}
	t.note("offer_id", o.ID)
	return nil
}
