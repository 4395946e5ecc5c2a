// Package auth issues signing challenges and verifies signed proofs.
//
// A challenge binds one player slot, one action with its canonical params,
// and one nonce. A proof is accepted only if the signature recovers to the
// wallet bound to that slot and the nonce is the next one in sequence for
// the slot; acceptance consumes the nonce.
package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/flarepoly/game-engine/internal/action"
	"github.com/flarepoly/game-engine/internal/apperr"
)

var (
	ErrNoWalletBound      = apperr.New(apperr.KindAuthorization, "auth: no wallet bound to player")
	ErrWrongActiveAddress = apperr.New(apperr.KindAuthorization, "auth: signer is not the wallet bound to player")
	ErrSignatureInvalid   = apperr.New(apperr.KindAuthorization, "auth: signature invalid")
	ErrNonceReplayed      = apperr.New(apperr.KindAuthorization, "auth: nonce already consumed")
	ErrStaleChallenge     = apperr.New(apperr.KindAuthorization, "auth: stale challenge")
	ErrChallengeMismatch  = apperr.New(apperr.KindAuthorization, "auth: challenge does not match action")
	ErrNotYourTurn        = apperr.New(apperr.KindAuthorization, "auth: player is not the active player")
)

// Proof is a signed challenge as submitted by a client.
type Proof struct {
	Address   string `json:"address"`
	Message   string `json:"message"`
	Signature string `json:"signature"`
}

// Binding is the read-only view of game state the authenticator needs.
type Binding interface {
	ID() string
	ActivePlayer() int
	WalletOf(player int) (string, bool)
}

// Authenticator issues and verifies challenges.
type Authenticator struct {
	recoverer Recoverer
	nonces    NonceStore
	chainID   int64
	session   string
}

// New creates an Authenticator. Each instance has its own session id, so
// challenges issued by a previous process are rejected as stale.
func New(rec Recoverer, nonces NonceStore, chainID int64) *Authenticator {
	return &Authenticator{
		recoverer: rec,
		nonces:    nonces,
		chainID:   chainID,
		session:   uuid.NewString(),
	}
}

// ChainID returns the chain id embedded in challenges.
func (a *Authenticator) ChainID() int64 { return a.chainID }

// Issue builds the challenge for player's next action in game gameID. It
// does not consume anything; issuing twice returns the same nonce.
func (a *Authenticator) Issue(ctx context.Context, gameID string, player int, act action.Action) (Challenge, error) {
	last, err := a.nonces.Last(ctx, a.scope(gameID), player)
	if err != nil {
		return Challenge{}, fmt.Errorf("read nonce: %w", err)
	}
	f := challengeFields{
		Game:        gameID,
		Session:     a.session,
		ChainID:     a.chainID,
		PlayerIndex: player,
		Action:      act.Kind(),
		Params:      act.Params(),
		Nonce:       last + 1,
	}
	return Challenge{Message: f.render(), Nonce: f.Nonce}, nil
}

// Verify checks proof for act performed by player and consumes its nonce.
// CONNECT is checked against the address it proposes to bind instead of an
// existing binding.
func (a *Authenticator) Verify(ctx context.Context, b Binding, proof Proof, player int, act action.Action) error {
	if !common.IsHexAddress(proof.Address) {
		return fmt.Errorf("%w: malformed address", ErrSignatureInvalid)
	}
	signer, err := a.recoverer.Recover(proof.Message, proof.Signature)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
	if signer != common.HexToAddress(proof.Address) {
		return fmt.Errorf("%w: recovered %s", ErrSignatureInvalid, signer.Hex())
	}

	if c, ok := act.(action.Connect); ok {
		if !common.IsHexAddress(c.Address) || common.HexToAddress(c.Address) != signer {
			return fmt.Errorf("%w: connect address differs from signer", ErrWrongActiveAddress)
		}
	} else {
		bound, ok := b.WalletOf(player)
		if !ok {
			return ErrNoWalletBound
		}
		if common.HexToAddress(bound) != signer {
			return ErrWrongActiveAddress
		}
		if act.Kind().TurnGated() && player != b.ActivePlayer() {
			return ErrNotYourTurn
		}
	}

	f, err := parseChallenge(proof.Message)
	if err != nil {
		return err
	}
	if f.Game != b.ID() || f.Session != a.session || f.ChainID != a.chainID {
		return ErrStaleChallenge
	}
	if f.PlayerIndex != player || f.Action != act.Kind() || f.Params != act.Params() {
		return fmt.Errorf("%w: signed %s(%s) for player %d", ErrChallengeMismatch, f.Action, f.Params, f.PlayerIndex)
	}
	return a.nonces.Consume(ctx, a.scope(b.ID()), player, f.Nonce)
}

func (a *Authenticator) scope(gameID string) string {
	return strings.Join([]string{gameID, a.session}, "/")
}
