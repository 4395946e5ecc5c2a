package action

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParams_Canonical(t *testing.T) {
	assert.Equal(t, "", Roll{}.Params())
	assert.Equal(t, "tileId=5", Buy{TileID: 5}.Params())
	assert.Equal(t, "tileId=5", SkipBuy{TileID: 5}.Params())
	assert.Equal(t, "tx=0xabc", Settle{TxHash: "0xABC"}.Params())
	assert.Equal(t, "offerId=o-1", AcceptOffer{OfferID: "o-1"}.Params())
	assert.Equal(t, "text=gm+all", Chat{Text: "gm all"}.Params())

	offer := CreateOffer{OfferKind: "sell", To: 1, TileID: 7, PriceFC: decimal.NewFromInt(300)}
	assert.Equal(t, "kind=sell&priceFC=300&tileId=7&to=1", offer.Params())
}

func TestParse_RoundTripsThroughParams(t *testing.T) {
	actions := []Action{
		Roll{},
		Buy{TileID: 14},
		SkipBuy{TileID: 14},
		Settle{TxHash: "0xdeadbeef"},
		CreateOffer{OfferKind: "buy", To: 2, TileID: 20, PriceFC: decimal.RequireFromString("12.5")},
		AcceptOffer{OfferID: "abc"},
		DeclineOffer{OfferID: "abc"},
		Chat{Text: "hello & welcome"},
		Connect{Address: "0x00000000000000000000000000000000000000aa"},
	}
	for _, a := range actions {
		parsed, err := Parse(string(a.Kind()), a.Params())
		require.NoError(t, err, a.Kind())
		assert.Equal(t, a.Kind(), parsed.Kind())
		assert.Equal(t, a.Params(), parsed.Params(), a.Kind())
	}
}

func TestParse_Rejects(t *testing.T) {
	cases := []struct{ name, params string }{
		{"BUY", "tileId=x"},
		{"BUY", ""},
		{"CREATE_OFFER", "kind=sell&to=1&tileId=7&priceFC=abc"},
		{"TELEPORT", ""},
	}
	for _, c := range cases {
		_, err := Parse(c.name, c.params)
		assert.True(t, errors.Is(err, ErrInvalidParams), "%s %q: got %v", c.name, c.params, err)
	}
}

func TestTurnGated(t *testing.T) {
	gated := []Kind{KindRoll, KindBuy, KindSkipBuy, KindSettle, KindAcceptOffer}
	free := []Kind{KindConnect, KindCreateOffer, KindDeclineOffer, KindChat}
	for _, k := range gated {
		assert.True(t, k.TurnGated(), k)
	}
	for _, k := range free {
		assert.False(t, k.TurnGated(), k)
	}
}
