package auth

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flarepoly/game-engine/internal/action"
)

const (
	aliceKeyHex = "289c2857d4598e37fb9647507e47a309d6133539bf21a8b9cb6df88fd5232032"
	aliceAddr   = "0x970E8128AB834E8EAC17Ab8E3812F010678CF791"
	bobKeyHex   = "8a1f9a8f95be41cd7ccb6168179afb4504aefe388d1e14474d32c45c72ce7b7a"
)

type fakeBinding struct {
	id      string
	active  int
	wallets map[int]string
}

func (f fakeBinding) ID() string        { return f.id }
func (f fakeBinding) ActivePlayer() int { return f.active }
func (f fakeBinding) WalletOf(p int) (string, bool) {
	w, ok := f.wallets[p]
	return w, ok
}

func mustKey(t *testing.T, hex string) *ecdsa.PrivateKey {
	t.Helper()
	k, err := crypto.HexToECDSA(hex)
	require.NoError(t, err)
	return k
}

func addrOf(k *ecdsa.PrivateKey) string {
	return crypto.PubkeyToAddress(k.PublicKey).Hex()
}

type env struct {
	auth    *Authenticator
	binding fakeBinding
	alice   *ecdsa.PrivateKey
	bob     *ecdsa.PrivateKey
}

func newEnv(t *testing.T) *env {
	t.Helper()
	alice, bob := mustKey(t, aliceKeyHex), mustKey(t, bobKeyHex)
	return &env{
		auth: New(PersonalSign{}, NewMemoryNonceStore(), 114),
		binding: fakeBinding{
			id:      "game-1",
			active:  0,
			wallets: map[int]string{0: addrOf(alice), 1: addrOf(bob)},
		},
		alice: alice,
		bob:   bob,
	}
}

func (e *env) proof(t *testing.T, key *ecdsa.PrivateKey, player int, act action.Action) Proof {
	t.Helper()
	ch, err := e.auth.Issue(context.Background(), e.binding.id, player, act)
	require.NoError(t, err)
	return signed(t, key, ch.Message)
}

func signed(t *testing.T, key *ecdsa.PrivateKey, msg string) Proof {
	t.Helper()
	sig, err := SignText(key, msg)
	require.NoError(t, err)
	return Proof{Address: addrOf(key), Message: msg, Signature: sig}
}

func TestPersonalSign_KnownVector(t *testing.T) {
	key := mustKey(t, aliceKeyHex)
	assert.True(t, strings.EqualFold(aliceAddr, addrOf(key)), "derived %s", addrOf(key))

	sig, err := SignText(key, "hello flarepoly")
	require.NoError(t, err)
	got, err := PersonalSign{}.Recover("hello flarepoly", sig)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(aliceAddr), got)

	other, err := PersonalSign{}.Recover("hello flarepoly!", sig)
	require.NoError(t, err)
	assert.NotEqual(t, common.HexToAddress(aliceAddr), other)
}

func TestPersonalSign_RejectsGarbage(t *testing.T) {
	_, err := PersonalSign{}.Recover("x", "0x1234")
	assert.Error(t, err)
	_, err = PersonalSign{}.Recover("x", "not-hex")
	assert.Error(t, err)
}

func TestIssue_IsDeterministicAndReadOnly(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a, err := e.auth.Issue(ctx, "game-1", 0, action.Buy{TileID: 7})
	require.NoError(t, err)
	b, err := e.auth.Issue(ctx, "game-1", 0, action.Buy{TileID: 7})
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, uint64(1), a.Nonce)
	assert.Contains(t, a.Message, "PlayerIndex: 0\n")
	assert.Contains(t, a.Message, "Action: BUY\n")
	assert.Contains(t, a.Message, "Params: tileId=7\n")
	assert.Contains(t, a.Message, "ChainId: 114\n")
}

func TestVerify_AcceptsThenRejectsReplay(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p := e.proof(t, e.alice, 0, action.Roll{})

	require.NoError(t, e.auth.Verify(ctx, e.binding, p, 0, action.Roll{}))
	err := e.auth.Verify(ctx, e.binding, p, 0, action.Roll{})
	assert.True(t, errors.Is(err, ErrNonceReplayed), "got %v", err)

	next, err := e.auth.Issue(ctx, "game-1", 0, action.Roll{})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), next.Nonce)
}

func TestVerify_ConcurrentReplayOnlyOneWins(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p := e.proof(t, e.alice, 0, action.Roll{})

	const n = 16
	var wg sync.WaitGroup
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- e.auth.Verify(ctx, e.binding, p, 0, action.Roll{})
		}()
	}
	wg.Wait()
	close(results)

	ok := 0
	for err := range results {
		if err == nil {
			ok++
		} else {
			assert.True(t, errors.Is(err, ErrNonceReplayed), "got %v", err)
		}
	}
	assert.Equal(t, 1, ok)
}

func TestVerify_WrongSigner(t *testing.T) {
	e := newEnv(t)
	// Bob signs a challenge for Alice's slot.
	ch, err := e.auth.Issue(context.Background(), "game-1", 0, action.Roll{})
	require.NoError(t, err)
	p := signed(t, e.bob, ch.Message)

	err = e.auth.Verify(context.Background(), e.binding, p, 0, action.Roll{})
	assert.True(t, errors.Is(err, ErrWrongActiveAddress), "got %v", err)
}

func TestVerify_NoWalletBound(t *testing.T) {
	e := newEnv(t)
	p := e.proof(t, e.alice, 2, action.Chat{Text: "hi"})
	err := e.auth.Verify(context.Background(), e.binding, p, 2, action.Chat{Text: "hi"})
	assert.True(t, errors.Is(err, ErrNoWalletBound), "got %v", err)
}

func TestVerify_TamperedMessage(t *testing.T) {
	e := newEnv(t)
	p := e.proof(t, e.alice, 0, action.Buy{TileID: 7})
	p.Message = strings.Replace(p.Message, "tileId=7", "tileId=8", 1)

	err := e.auth.Verify(context.Background(), e.binding, p, 0, action.Buy{TileID: 8})
	assert.True(t, errors.Is(err, ErrSignatureInvalid), "got %v", err)
}

func TestVerify_ParamsMustMatchAction(t *testing.T) {
	e := newEnv(t)
	p := e.proof(t, e.alice, 0, action.Buy{TileID: 7})
	err := e.auth.Verify(context.Background(), e.binding, p, 0, action.Buy{TileID: 8})
	assert.True(t, errors.Is(err, ErrChallengeMismatch), "got %v", err)

	// The rejected attempt must not burn the nonce.
	require.NoError(t, e.auth.Verify(context.Background(), e.binding, p, 0, action.Buy{TileID: 7}))
}

func TestVerify_StaleChallenges(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	// Nonce skipping ahead of the sequence.
	f := challengeFields{Game: "game-1", Session: e.auth.session, ChainID: 114,
		PlayerIndex: 0, Action: action.KindRoll, Nonce: 5}
	err := e.auth.Verify(ctx, e.binding, signed(t, e.alice, f.render()), 0, action.Roll{})
	assert.True(t, errors.Is(err, ErrStaleChallenge), "future nonce: got %v", err)

	// Challenge from a previous game.
	p := e.proof(t, e.alice, 0, action.Roll{})
	reset := e.binding
	reset.id = "game-2"
	err = e.auth.Verify(ctx, reset, p, 0, action.Roll{})
	assert.True(t, errors.Is(err, ErrStaleChallenge), "old game: got %v", err)

	// Challenge from a previous process.
	restarted := New(PersonalSign{}, NewMemoryNonceStore(), 114)
	err = restarted.Verify(ctx, e.binding, p, 0, action.Roll{})
	assert.True(t, errors.Is(err, ErrStaleChallenge), "old session: got %v", err)
}

func TestVerify_TurnGatedRequiresActivePlayer(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	p := e.proof(t, e.bob, 1, action.Roll{})
	err := e.auth.Verify(ctx, e.binding, p, 1, action.Roll{})
	assert.True(t, errors.Is(err, ErrNotYourTurn), "got %v", err)

	// Chat is allowed out of turn.
	p = e.proof(t, e.bob, 1, action.Chat{Text: "gm"})
	assert.NoError(t, e.auth.Verify(ctx, e.binding, p, 1, action.Chat{Text: "gm"}))
}

func TestVerify_ConnectUsesProspectiveAddress(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	carol := mustKey(t, "0123456789012345678901234567890123456789012345678901234567890123")
	act := action.Connect{Address: addrOf(carol)}

	p := e.proof(t, carol, 2, act)
	require.NoError(t, e.auth.Verify(ctx, e.binding, p, 2, act))

	// Signing a CONNECT for someone else's address fails.
	act = action.Connect{Address: addrOf(e.bob)}
	p = e.proof(t, carol, 3, act)
	err := e.auth.Verify(ctx, e.binding, p, 3, act)
	assert.True(t, errors.Is(err, ErrWrongActiveAddress), "got %v", err)
}

func TestParseChallenge_RejectsLayoutChanges(t *testing.T) {
	f := challengeFields{Game: "g", Session: "s", ChainID: 1, PlayerIndex: 0, Action: action.KindRoll, Nonce: 1}
	good := f.render()
	_, err := parseChallenge(good)
	require.NoError(t, err)

	for _, bad := range []string{
		"",
		strings.Replace(good, "FlarePoly Action", "Other Action", 1),
		strings.Replace(good, "Nonce: 1", "Nonce: one", 1),
		good + "\nextra",
	} {
		_, err := parseChallenge(bad)
		assert.True(t, errors.Is(err, ErrChallengeMismatch), "%q: got %v", bad, err)
	}
}
