// Package settlement runs the two-phase purchase flow: a pending record
// naming the exact transfer required, then independent verification of the
// transaction the client claims paid for it.
package settlement

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/flarepoly/game-engine/internal/apperr"
	"github.com/flarepoly/game-engine/internal/chain"
	"github.com/flarepoly/game-engine/internal/model"
)

var (
	ErrSettlementNotVerified = apperr.New(apperr.KindSettlement, "settlement: transfer not verified")
	ErrInvalidTxHash         = apperr.New(apperr.KindValidation, "settlement: transaction hash required")
)

// Verifier checks a transaction against the payment rail.
type Verifier interface {
	Verify(ctx context.Context, txHash string, want chain.Transfer) error
}

// Gateway computes settlement amounts and verifies transfers.
type Gateway struct {
	verifier Verifier
	treasury common.Address
	decimals int32
	timeout  time.Duration
}

// NewGateway creates a gateway paying into treasury. decimals is the token's
// base-unit exponent; timeout bounds each verification.
func NewGateway(v Verifier, treasury common.Address, decimals int32, timeout time.Duration) *Gateway {
	return &Gateway{verifier: v, treasury: treasury, decimals: decimals, timeout: timeout}
}

// Treasury returns the address purchases pay into.
func (g *Gateway) Treasury() common.Address { return g.treasury }

// AmountRaw converts an FC price into integer token base units, truncating
// anything below one unit.
func (g *Gateway) AmountRaw(price decimal.Decimal) decimal.Decimal {
	return price.Shift(g.decimals).Truncate(0)
}

// Request builds the pending record for player buying tileID from buyer's
// wallet. It has no side effects.
func (g *Gateway) Request(tileID, player int, buyer string, price decimal.Decimal, now time.Time) *model.PendingSettlement {
	return &model.PendingSettlement{
		Kind:        model.SettlementBuy,
		TileID:      tileID,
		FromAddress: common.HexToAddress(buyer).Hex(),
		ToAddress:   g.treasury.Hex(),
		AmountRaw:   g.AmountRaw(price),
		PriceFC:     price,
		ForPlayer:   player,
		CreatedAt:   now,
	}
}

// Confirm verifies that txHash carries exactly the transfer p requires.
// Every failure wraps ErrSettlementNotVerified; p is never modified.
func (g *Gateway) Confirm(ctx context.Context, p *model.PendingSettlement, txHash string) error {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	want := chain.Transfer{
		From:  common.HexToAddress(p.FromAddress),
		To:    common.HexToAddress(p.ToAddress),
		Value: p.AmountRaw.BigInt(),
	}
	if err := g.verifier.Verify(ctx, txHash, want); err != nil {
		return fmt.Errorf("%w: %v", ErrSettlementNotVerified, err)
	}
	return nil
}

// NormalizeTxHash canonicalizes a client-supplied hash so reuse checks are
// case-insensitive.
func NormalizeTxHash(s string) (string, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", ErrInvalidTxHash
	}
	return s, nil
}
