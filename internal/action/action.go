// Package action defines the closed set of player actions. Each variant
// carries its own typed payload and renders a canonical params string that
// is embedded in, and checked against, the signed challenge.
package action

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/flarepoly/game-engine/internal/apperr"
)

// Kind names an action on the wire and inside challenges.
type Kind string

const (
	KindConnect      Kind = "CONNECT"
	KindRoll         Kind = "ROLL"
	KindBuy          Kind = "BUY"
	KindSkipBuy      Kind = "SKIP_BUY"
	KindSettle       Kind = "SETTLE"
	KindCreateOffer  Kind = "CREATE_OFFER"
	KindAcceptOffer  Kind = "ACCEPT_OFFER"
	KindDeclineOffer Kind = "DECLINE_OFFER"
	KindChat         Kind = "CHAT"
)

var ErrInvalidParams = apperr.New(apperr.KindValidation, "action: invalid params")

// TurnGated reports whether only the active player may perform the action.
func (k Kind) TurnGated() bool {
	switch k {
	case KindRoll, KindBuy, KindSkipBuy, KindSettle, KindAcceptOffer:
		return true
	}
	return false
}

// Action is implemented only by the types in this package.
type Action interface {
	Kind() Kind
	// Params is the canonical, sorted, URL-encoded payload.
	Params() string
	sealed()
}

type Connect struct{ Address string }
type Roll struct{}
type Buy struct{ TileID int }
type SkipBuy struct{ TileID int }
type Settle struct{ TxHash string }
type CreateOffer struct {
	OfferKind string // "sell" or "buy"
	To        int
	TileID    int
	PriceFC   decimal.Decimal
}
type AcceptOffer struct{ OfferID string }
type DeclineOffer struct{ OfferID string }
type Chat struct{ Text string }

func (Connect) Kind() Kind      { return KindConnect }
func (Roll) Kind() Kind         { return KindRoll }
func (Buy) Kind() Kind          { return KindBuy }
func (SkipBuy) Kind() Kind      { return KindSkipBuy }
func (Settle) Kind() Kind       { return KindSettle }
func (CreateOffer) Kind() Kind  { return KindCreateOffer }
func (AcceptOffer) Kind() Kind  { return KindAcceptOffer }
func (DeclineOffer) Kind() Kind { return KindDeclineOffer }
func (Chat) Kind() Kind         { return KindChat }

func (a Connect) Params() string {
	return url.Values{"address": {strings.ToLower(a.Address)}}.Encode()
}
func (Roll) Params() string { return "" }
func (a Buy) Params() string {
	return url.Values{"tileId": {strconv.Itoa(a.TileID)}}.Encode()
}
func (a SkipBuy) Params() string {
	return url.Values{"tileId": {strconv.Itoa(a.TileID)}}.Encode()
}
func (a Settle) Params() string {
	return url.Values{"tx": {strings.ToLower(a.TxHash)}}.Encode()
}
func (a CreateOffer) Params() string {
	return url.Values{
		"kind":    {a.OfferKind},
		"to":      {strconv.Itoa(a.To)},
		"tileId":  {strconv.Itoa(a.TileID)},
		"priceFC": {a.PriceFC.String()},
	}.Encode()
}
func (a AcceptOffer) Params() string {
	return url.Values{"offerId": {a.OfferID}}.Encode()
}
func (a DeclineOffer) Params() string {
	return url.Values{"offerId": {a.OfferID}}.Encode()
}
func (a Chat) Params() string {
	return url.Values{"text": {a.Text}}.Encode()
}

func (Connect) sealed()      {}
func (Roll) sealed()         {}
func (Buy) sealed()          {}
func (SkipBuy) sealed()      {}
func (Settle) sealed()       {}
func (CreateOffer) sealed()  {}
func (AcceptOffer) sealed()  {}
func (DeclineOffer) sealed() {}
func (Chat) sealed()         {}

// Parse builds an Action from its wire name and a URL-encoded params
// string. It is only used at the transport boundary, for challenge requests.
func Parse(name, raw string) (Action, error) {
	q, err := url.ParseQuery(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	switch Kind(strings.ToUpper(name)) {
	case KindConnect:
		return Connect{Address: q.Get("address")}, nil
	case KindRoll:
		return Roll{}, nil
	case KindBuy:
		id, err := intParam(q, "tileId")
		return Buy{TileID: id}, err
	case KindSkipBuy:
		id, err := intParam(q, "tileId")
		return SkipBuy{TileID: id}, err
	case KindSettle:
		return Settle{TxHash: q.Get("tx")}, nil
	case KindCreateOffer:
		to, err := intParam(q, "to")
		if err != nil {
			return nil, err
		}
		tile, err := intParam(q, "tileId")
		if err != nil {
			return nil, err
		}
		price, err := decimal.NewFromString(q.Get("priceFC"))
		if err != nil {
			return nil, fmt.Errorf("%w: priceFC: %v", ErrInvalidParams, err)
		}
		return CreateOffer{OfferKind: q.Get("kind"), To: to, TileID: tile, PriceFC: price}, nil
	case KindAcceptOffer:
		return AcceptOffer{OfferID: q.Get("offerId")}, nil
	case KindDeclineOffer:
		return DeclineOffer{OfferID: q.Get("offerId")}, nil
	case KindChat:
		return Chat{Text: q.Get("text")}, nil
	default:
		return nil, fmt.Errorf("%w: unknown action %q", ErrInvalidParams, name)
	}
}

func intParam(q url.Values, key string) (int, error) {
	v, err := strconv.Atoi(q.Get(key))
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", ErrInvalidParams, key)
	}
	return v, nil
}
