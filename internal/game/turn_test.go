package game

import (
	"testing"

	"github.com/flarepoly/game-engine/internal/action"
	"github.com/flarepoly/game-engine/internal/auth"
	"github.com/flarepoly/game-engine/internal/chance"
	"github.com/flarepoly/game-engine/internal/model"
)

func TestRoll_LandsOnUnownedPropertyAndWaits(t *testing.T) {
	env := newTestEnv(t)
	s := env.must(0, action.Roll{})

	if s.Dice != [2]int{3, 4} || s.Positions[0] != 7 {
		t.Fatalf("dice %v position %d", s.Dice, s.Positions[0])
	}
	if s.BuyPrompt == nil || s.BuyPrompt.TileID != 7 || s.BuyPrompt.PlayerIndex != 0 {
		t.Fatalf("buy prompt = %+v", s.BuyPrompt)
	}
	if !s.BuyPrompt.Price.Equal(d("145")) {
		t.Errorf("prompt price = %s", s.BuyPrompt.Price)
	}
	if s.ActivePlayer != 0 || s.Phase != model.PhaseAwaitingBuy {
		t.Errorf("active %d phase %s, want 0 awaiting_buy_decision", s.ActivePlayer, s.Phase)
	}

	// A second roll must wait for the decision.
	env.expect(ErrBuyPromptOutstanding, 0, action.Roll{})
}

func TestRoll_OnlyActivePlayer(t *testing.T) {
	env := newTestEnv(t)
	env.expect(auth.ErrNotYourTurn, 1, action.Roll{})
}

func TestRoll_ChanceAppliesDeltaAndAdvances(t *testing.T) {
	env := newTestEnv(t, withDice([2]int{1, 2}))
	s := env.must(0, action.Roll{})

	if s.Positions[0] != 3 {
		t.Fatalf("position = %d, want 3", s.Positions[0])
	}
	if !s.Balances[0].Equal(d("1600")) {
		t.Errorf("balance = %s, want 1600", s.Balances[0])
	}
	var news *model.Message
	for i := range s.Messages {
		if s.Messages[i].Type == model.MessageNews {
			news = &s.Messages[i]
		}
	}
	if news == nil || news.Delta == nil || !news.Delta.Equal(d("100")) {
		t.Fatalf("news message = %+v", news)
	}
	if s.ActivePlayer != 1 {
		t.Errorf("active = %d, want 1", s.ActivePlayer)
	}
}

func TestRoll_TaxDebitsBalance(t *testing.T) {
	env := newTestEnv(t, withDice([2]int{2, 3}))
	s := env.must(0, action.Roll{})

	if s.Positions[0] != 5 || !s.Balances[0].Equal(d("1400")) {
		t.Fatalf("position %d balance %s, want 5 and 1400", s.Positions[0], s.Balances[0])
	}
	m := lastMessage(s)
	if m.Type != model.MessageNews || m.Delta == nil || !m.Delta.Equal(d("-100")) {
		t.Errorf("tax news = %+v", m)
	}
}

func TestRoll_RentMovesToOwner(t *testing.T) {
	env := newTestEnv(t)
	env.edit(func(st *model.GameState) { st.Ownership[7] = 1 })
	before := env.eng.Snapshot()

	s := env.must(0, action.Roll{})
	if !s.Balances[0].Equal(d("1486")) || !s.Balances[1].Equal(d("1514")) {
		t.Errorf("balances = %v, want [1486 1514]", s.Balances)
	}
	if !sumBalances(s).Equal(sumBalances(before)) {
		t.Error("rent did not conserve balances")
	}
	if s.BuyPrompt != nil || s.ActivePlayer != 1 {
		t.Errorf("prompt %+v active %d", s.BuyPrompt, s.ActivePlayer)
	}
}

func TestRoll_OwnTileIsFree(t *testing.T) {
	env := newTestEnv(t)
	env.edit(func(st *model.GameState) { st.Ownership[7] = 0 })
	s := env.must(0, action.Roll{})
	if !s.Balances[0].Equal(d("1500")) || s.ActivePlayer != 1 {
		t.Errorf("balance %s active %d", s.Balances[0], s.ActivePlayer)
	}
}

func TestRoll_GoToJailSkipsTurns(t *testing.T) {
	// P1 goes 12 -> 18 (go to jail). P2 then lands on 3 (chance), 5 (tax),
	// 9 (chance) while P1 sits out two turns.
	env := newTestEnv(t, withDice([2]int{3, 3}, [2]int{1, 2}, [2]int{1, 1}, [2]int{2, 2}))
	env.edit(func(st *model.GameState) { st.Players[0].Position = 12 })

	s := env.must(0, action.Roll{})
	if s.Positions[0] != 6 || s.SkipTurns[0] != 2 {
		t.Fatalf("position %d skip %d, want jail(6) and 2", s.Positions[0], s.SkipTurns[0])
	}
	if s.ActivePlayer != 1 {
		t.Fatalf("active = %d, want 1", s.ActivePlayer)
	}

	s = env.must(1, action.Roll{})
	if s.ActivePlayer != 1 || s.SkipTurns[0] != 1 {
		t.Fatalf("after first skip: active %d skip %d", s.ActivePlayer, s.SkipTurns[0])
	}
	s = env.must(1, action.Roll{})
	if s.ActivePlayer != 1 || s.SkipTurns[0] != 0 {
		t.Fatalf("after second skip: active %d skip %d", s.ActivePlayer, s.SkipTurns[0])
	}
	s = env.must(1, action.Roll{})
	if s.ActivePlayer != 0 {
		t.Fatalf("jail should be over, active = %d", s.ActivePlayer)
	}
}

func TestRoll_BlockedByOfferToActivePlayer(t *testing.T) {
	env := newTestEnv(t)
	env.edit(func(st *model.GameState) { st.Ownership[10] = 1 })
	env.must(1, action.CreateOffer{OfferKind: model.OfferSell, To: 0, TileID: 10, PriceFC: d("300")})

	env.expect(ErrOfferOutstanding, 0, action.Roll{})

	offerID := env.eng.Snapshot().TradeOffers[0].ID
	env.must(0, action.DeclineOffer{OfferID: offerID})
	env.must(0, action.Roll{})
}

// --- Elimination ---

func TestElimination_SkippedInRotation(t *testing.T) {
	env := newTestEnv(t, withPlayers(3), withDice([2]int{1, 2}))
	env.edit(func(st *model.GameState) {
		st.Players[2].Eliminated = true
		st.Active = 1
	})

	s := env.must(1, action.Roll{})
	if s.ActivePlayer != 0 {
		t.Fatalf("active = %d, want 0 (player 2 eliminated)", s.ActivePlayer)
	}
	// The eliminated player never becomes active, so rolling is refused.
	env.expect(auth.ErrNotYourTurn, 2, action.Roll{})
}

func TestElimination_LastPlayerStandingWins(t *testing.T) {
	env := newTestEnv(t, withDice([2]int{1, 2}), withCards(chance.Card{Text: "Gas spike fee", Delta: d("-50")}))
	env.edit(func(st *model.GameState) { st.Players[0].Balance = d("30") })

	s := env.must(0, action.Roll{})
	if !s.Eliminated[0] || !s.Balances[0].IsZero() {
		t.Fatalf("eliminated %v balance %s", s.Eliminated[0], s.Balances[0])
	}
	if !s.GameOver || s.Winner == nil || *s.Winner != 1 || s.Phase != model.PhaseGameOver {
		t.Fatalf("game over %v winner %v phase %s", s.GameOver, s.Winner, s.Phase)
	}
	env.expect(ErrGameOver, 1, action.Roll{})
}

func TestChance_FloorsBalanceWhenAssetsCoverShortfall(t *testing.T) {
	env := newTestEnv(t, withDice([2]int{1, 2}), withCards(chance.Card{Text: "Gas spike fee", Delta: d("-50")}))
	env.edit(func(st *model.GameState) {
		st.Players[0].Balance = d("30")
		st.Ownership[7] = 0 // SOL, list price 145
	})

	s := env.must(0, action.Roll{})
	if !s.Balances[0].IsZero() {
		t.Errorf("balance = %s, want 0", s.Balances[0])
	}
	if s.Eliminated[0] || s.GameOver {
		t.Error("player with assets should not be eliminated")
	}
	found := false
	for _, m := range s.Messages {
		if m.Type == model.MessageNews && m.Delta != nil && m.Delta.Equal(d("-50")) {
			found = true
		}
	}
	if !found {
		t.Error("no news message for the chance draw")
	}
}

func TestChance_StrictPolicyEliminates(t *testing.T) {
	env := newTestEnv(t, withPlayers(3), withPolicy(PolicyStrict), withDice([2]int{1, 2}),
		withCards(chance.Card{Text: "Gas spike fee", Delta: d("-50")}))
	env.edit(func(st *model.GameState) {
		st.Players[0].Balance = d("30")
		st.Ownership[7] = 0
	})
	env.must(0, action.CreateOffer{OfferKind: model.OfferSell, To: 1, TileID: 7, PriceFC: d("10")})

	s := env.must(0, action.Roll{})
	if !s.Eliminated[0] {
		t.Fatal("strict policy should eliminate on any shortfall")
	}
	if _, owned := s.Ownership[7]; owned {
		t.Error("eliminated player's tile was not released")
	}
	if len(s.TradeOffers) != 0 {
		t.Errorf("offers involving the eliminated player remain: %+v", s.TradeOffers)
	}
	if s.GameOver || s.ActivePlayer != 1 {
		t.Errorf("game over %v active %d, want false and 1", s.GameOver, s.ActivePlayer)
	}
}

func TestAdvanceTurn_NeverSelectsEliminated(t *testing.T) {
	env := newTestEnv(t, withPlayers(4))
	st := env.state().Clone()
	st.Players[1].Eliminated = true
	st.Players[3].Eliminated = true
	st.Players[2].SkipTurns = 1

	tx := &txn{st: st}
	for i := 0; i < 10; i++ {
		env.eng.advanceTurn(tx)
		if st.Players[st.Active].Eliminated {
			t.Fatalf("step %d selected eliminated player %d", i, st.Active)
		}
	}
	if st.Players[2].SkipTurns != 0 {
		t.Errorf("skip counter = %d, want 0", st.Players[2].SkipTurns)
	}
}

func TestEliminationHelper_ReleasesEverything(t *testing.T) {
	env := newTestEnv(t, withPlayers(3))
	st := env.state().Clone()
	st.Ownership[7] = 1
	st.Ownership[8] = 1
	st.Ownership[10] = 2
	st.BuyPrompt = &model.BuyPrompt{TileID: 1, PlayerIndex: 1}
	st.TradeOffers = []model.TradeOffer{
		{ID: "a", FromPlayer: 1, ToPlayer: 0},
		{ID: "b", FromPlayer: 2, ToPlayer: 0},
		{ID: "c", FromPlayer: 0, ToPlayer: 1},
	}

	tx := &txn{st: st}
	env.eng.eliminate(tx, 1)

	if len(st.OwnedBy(1)) != 0 || st.Ownership[10] != 2 {
		t.Errorf("ownership = %v", st.Ownership)
	}
	if st.BuyPrompt != nil {
		t.Error("buy prompt kept")
	}
	if len(st.TradeOffers) != 1 || st.TradeOffers[0].ID != "b" {
		t.Errorf("offers = %+v", st.TradeOffers)
	}
	if tx.eliminated != 1 || st.GameOver {
		t.Errorf("eliminated %d game over %v", tx.eliminated, st.GameOver)
	}

	env.eng.eliminate(tx, 2)
	if !st.GameOver || st.Winner == nil || *st.Winner != 0 {
		t.Errorf("game over %v winner %v", st.GameOver, st.Winner)
	}
}
