package settlement

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flarepoly/game-engine/internal/apperr"
	"github.com/flarepoly/game-engine/internal/chain"
)

var treasury = common.HexToAddress("0x3333333333333333333333333333333333333333")

type recordingVerifier struct {
	got      chain.Transfer
	hash     string
	deadline bool
	err      error
}

func (r *recordingVerifier) Verify(ctx context.Context, txHash string, want chain.Transfer) error {
	r.got, r.hash = want, txHash
	_, r.deadline = ctx.Deadline()
	return r.err
}

func TestAmountRaw(t *testing.T) {
	g := NewGateway(nil, treasury, 18, 0)
	cases := map[string]string{
		"100":     "100000000000000000000",
		"0.12":    "120000000000000000",
		"0.00001": "10000000000000",
		"65000":   "65000000000000000000000",
	}
	for price, want := range cases {
		got := g.AmountRaw(decimal.RequireFromString(price))
		assert.Equal(t, want, got.String(), price)
	}

	g6 := NewGateway(nil, treasury, 6, 0)
	assert.Equal(t, "0", g6.AmountRaw(decimal.RequireFromString("0.0000001")).String())
	assert.Equal(t, "1200000", g6.AmountRaw(decimal.RequireFromString("1.2")).String())
}

func TestRequestAndConfirm(t *testing.T) {
	v := &recordingVerifier{}
	g := NewGateway(v, treasury, 18, time.Second)
	buyer := "0x2222222222222222222222222222222222222222"

	p := g.Request(7, 0, buyer, decimal.NewFromInt(145), time.Now())
	assert.Equal(t, 7, p.TileID)
	assert.Equal(t, 0, p.ForPlayer)
	assert.Equal(t, treasury.Hex(), p.ToAddress)
	assert.Equal(t, common.HexToAddress(buyer).Hex(), p.FromAddress)

	require.NoError(t, g.Confirm(context.Background(), p, "0xabc"))
	assert.Equal(t, "0xabc", v.hash)
	assert.True(t, v.deadline, "verification should run under a deadline")
	assert.Equal(t, common.HexToAddress(buyer), v.got.From)
	assert.Equal(t, treasury, v.got.To)
	want, _ := new(big.Int).SetString("145000000000000000000", 10)
	assert.Equal(t, 0, v.got.Value.Cmp(want))
}

func TestConfirmWrapsFailures(t *testing.T) {
	g := NewGateway(&recordingVerifier{err: chain.ErrTransferMissing}, treasury, 18, 0)
	p := g.Request(7, 0, "0x2222222222222222222222222222222222222222", decimal.NewFromInt(1), time.Now())

	err := g.Confirm(context.Background(), p, "0xabc")
	assert.True(t, errors.Is(err, ErrSettlementNotVerified))
	assert.Equal(t, apperr.KindSettlement, apperr.KindOf(err))
}

func TestNormalizeTxHash(t *testing.T) {
	got, err := NormalizeTxHash("  0xABcd ")
	require.NoError(t, err)
	assert.Equal(t, "0xabcd", got)

	_, err = NormalizeTxHash("   ")
	assert.ErrorIs(t, err, ErrInvalidTxHash)
}
