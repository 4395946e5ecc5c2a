package game

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/flarepoly/game-engine/internal/metrics"
	"github.com/flarepoly/game-engine/internal/model"
	"github.com/flarepoly/game-engine/internal/settlement"
)

// debit charges amount to player and credits creditor (-1 for the bank)
// with whatever was actually paid. Balances never go negative: a shortfall
// is clamped and may eliminate the debtor.
func (e *Engine) debit(t *txn, player int, amount decimal.Decimal, creditor int) decimal.Decimal {
	st := t.st
	p := &st.Players[player]
	paid := amount
	if p.Balance.LessThan(amount) {
		paid = p.Balance
	}
	p.Balance = p.Balance.Sub(paid)
	if creditor >= 0 {
		st.Players[creditor].Balance = st.Players[creditor].Balance.Add(paid)
	}

	shortfall := amount.Sub(paid)
	if shortfall.IsPositive() && e.insolvent(st, player, shortfall) {
		e.eliminate(t, player)
	}
	return paid
}

func (e *Engine) insolvent(st *model.GameState, player int, shortfall decimal.Decimal) bool {
	if e.opts.Policy == PolicyStrict {
		return true
	}
	return e.assetValue(st, player).LessThan(shortfall)
}

// assetValue is the list price of every tile player owns.
func (e *Engine) assetValue(st *model.GameState, player int) decimal.Decimal {
	total := decimal.Zero
	for _, id := range st.OwnedBy(player) {
		if tile, err := e.opts.Board.Tile(id); err == nil && tile.Price != nil {
			total = total.Add(*tile.Price)
		}
	}
	return total
}

// eliminate removes player from play: their tiles return to the bank and
// everything addressed to or from them is dropped.
func (e *Engine) eliminate(t *txn, player int) {
	st := t.st
	p := &st.Players[player]
	if p.Eliminated {
		return
	}
	p.Eliminated = true
	p.SkipTurns = 0
	for _, id := range st.OwnedBy(player) {
		delete(st.Ownership, id)
	}
	offers := st.TradeOffers[:0]
	for _, o := range st.TradeOffers {
		if o.FromPlayer != player && o.ToPlayer != player {
			offers = append(offers, o)
		}
	}
	st.TradeOffers = offers
	if st.BuyPrompt != nil && st.BuyPrompt.PlayerIndex == player {
		st.BuyPrompt = nil
	}
	if pendingFor(st, player) {
		st.PendingSettlement = nil
	}
	t.eliminated++
	t.news(decimal.Zero, "%s is bankrupt and has been eliminated", name(player))
	t.note("eliminated", player)
	e.checkGameOver(t)
}

func (e *Engine) checkGameOver(t *txn) {
	st := t.st
	alive := st.Alive()
	if len(alive) > 1 || st.GameOver {
		return
	}
	st.GameOver = true
	st.BuyPrompt = nil
	st.PendingSettlement = nil
	st.TradeOffers = nil
	if len(alive) == 1 {
		w := alive[0]
		st.Winner = &w
		st.Active = w
		t.system("Game over: %s wins", name(w))
	} else {
		t.system("Game over: no players remain")
	}
}

func (e *Engine) matchPrompt(st *model.GameState, player, tileID int) error {
	bp := st.BuyPrompt
	if bp == nil {
		return ErrNoBuyPrompt
	}
	if bp.PlayerIndex != player || bp.TileID != tileID {
		return fmt.Errorf("%w: prompt is for tile %d, player %d", ErrNoBuyPrompt, bp.TileID, bp.PlayerIndex)
	}
	return nil
}

// buy answers a buy prompt. With a payment rail it records the transfer
// the player must make; in ledger mode it pays from the balance at once.
func (e *Engine) buy(t *txn, player, tileID int) error {
	st := t.st
	if st.GameOver {
		return ErrGameOver
	}
	if st.PendingSettlement != nil {
		return ErrSettlementPending
	}
	if err := e.matchPrompt(st, player, tileID); err != nil {
		return err
	}
	tile, err := e.opts.Board.Tile(tileID)
	if err != nil {
		return err
	}
	price := *tile.Price

	if e.opts.Gateway == nil {
		p := &st.Players[player]
		if p.Balance.LessThan(price) {
			return fmt.Errorf("%w: need %s FC, have %s FC", ErrInsufficientFunds, price, p.Balance)
		}
		p.Balance = p.Balance.Sub(price)
		st.Ownership[tileID] = player
		st.BuyPrompt = nil
		t.system("%s bought %s for %s FC", name(player), tile.Name, price)
		t.note("tile", tileID, "price", price.String())
		e.advanceTurn(t)
		return nil
	}

	wallet, ok := st.WalletOf(player)
	if !ok {
		return fmt.Errorf("%w: no wallet to pay from", ErrInvalidAddress)
	}
	pending := e.opts.Gateway.Request(tileID, player, wallet, price, t.now)
	if !pending.AmountRaw.IsPositive() {
		return fmt.Errorf("%w: %s FC is below token precision", ErrInvalidPrice, price)
	}
	st.PendingSettlement = pending
	t.system("%s is buying %s for %s FC; awaiting transfer", name(player), tile.Name, price)
	t.note("tile", tileID, "amount_raw", pending.AmountRaw.String())
	return nil
}

// skipBuy declines a buy prompt, cancelling any pending settlement.
func (e *Engine) skipBuy(t *txn, player, tileID int) error {
	st := t.st
	if st.GameOver {
		return ErrGameOver
	}
	if err := e.matchPrompt(st, player, tileID); err != nil {
		return err
	}
	cancelled := pendingFor(st, player)
	st.BuyPrompt = nil
	st.PendingSettlement = nil
	if cancelled {
		t.system("%s cancelled the purchase of tile %d", name(player), tileID)
	} else {
		t.system("%s skipped buying tile %d", name(player), tileID)
	}
	e.advanceTurn(t)
	return nil
}

// settle finalizes the pending purchase once the payment rail confirms the
// transfer. Verification failures leave the pending record for a retry.
func (e *Engine) settle(ctx context.Context, t *txn, player int, txHash string) error {
	st := t.st
	if st.GameOver {
		return ErrGameOver
	}
	ps := st.PendingSettlement
	if ps == nil || ps.ForPlayer != player || e.opts.Gateway == nil {
		return ErrNoPendingSettlement
	}
	hash, err := settlement.NormalizeTxHash(txHash)
	if err != nil {
		return err
	}
	if st.UsedTxHashes[hash] {
		return ErrTxAlreadyUsed
	}
	// The audit ledger outlives resets; a hash spent in an earlier game
	// stays spent.
	used, err := e.opts.Store.TxUsed(ctx, hash)
	if err != nil {
		return fmt.Errorf("check tx hash: %w", err)
	}
	if used {
		return ErrTxAlreadyUsed
	}

	start := time.Now()
	err = e.opts.Gateway.Confirm(ctx, ps, hash)
	metrics.SettlementLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.SettlementsTotal.WithLabelValues("rejected").Inc()
		return err
	}
	metrics.SettlementsTotal.WithLabelValues("verified").Inc()

	st.Ownership[ps.TileID] = player
	st.SettledTotal = st.SettledTotal.Add(ps.PriceFC)
	st.UsedTxHashes[hash] = true
	t.settlements = append(t.settlements, model.SettlementRecord{
		ID:        uuid.NewString(),
		GameID:    st.GameID,
		TileID:    ps.TileID,
		Player:    player,
		From:      ps.FromAddress,
		To:        ps.ToAddress,
		AmountRaw: ps.AmountRaw,
		PriceFC:   ps.PriceFC,
		TxHash:    hash,
		SettledAt: t.now,
	})
	tileName := fmt.Sprintf("tile %d", ps.TileID)
	if tile, err := e.opts.Board.Tile(ps.TileID); err == nil {
		tileName = tile.Name
	}
	t.system("%s bought %s for %s FC (tx %s)", name(player), tileName, ps.PriceFC, hash)
	t.note("tile", ps.TileID, "tx", hash)

	st.BuyPrompt = nil
	st.PendingSettlement = nil
	e.advanceTurn(t)
	return nil
}
