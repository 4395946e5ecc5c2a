package auth

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/flarepoly/game-engine/internal/action"
)

const (
	challengeHeader = "FlarePoly Action"
	challengeFooter = "Sign this to prove wallet ownership for this action."
)

// Challenge is the exact text a wallet must sign for one action.
type Challenge struct {
	Message string `json:"message"`
	Nonce   uint64 `json:"nonce"`
}

// challengeFields are the values embedded in a challenge message.
type challengeFields struct {
	Game        string
	Session     string
	ChainID     int64
	PlayerIndex int
	Action      action.Kind
	Params      string
	Nonce       uint64
}

func (f challengeFields) render() string {
	var b strings.Builder
	b.WriteString(challengeHeader + "\n")
	fmt.Fprintf(&b, "Game: %s\n", f.Game)
	fmt.Fprintf(&b, "Session: %s\n", f.Session)
	fmt.Fprintf(&b, "ChainId: %d\n", f.ChainID)
	fmt.Fprintf(&b, "PlayerIndex: %d\n", f.PlayerIndex)
	fmt.Fprintf(&b, "Action: %s\n", f.Action)
	fmt.Fprintf(&b, "Params: %s\n", f.Params)
	fmt.Fprintf(&b, "Nonce: %d\n", f.Nonce)
	b.WriteString(challengeFooter)
	return b.String()
}

// parseChallenge is the inverse of render. Any deviation in layout is
// rejected; the message must be byte-for-byte what the issuer produced.
func parseChallenge(msg string) (challengeFields, error) {
	var f challengeFields
	lines := strings.Split(msg, "\n")
	if len(lines) != 9 || lines[0] != challengeHeader || lines[8] != challengeFooter {
		return f, fmt.Errorf("%w: unexpected layout", ErrChallengeMismatch)
	}
	want := []string{"Game", "Session", "ChainId", "PlayerIndex", "Action", "Params", "Nonce"}
	vals := make(map[string]string, len(want))
	for i, key := range want {
		k, v, ok := strings.Cut(lines[i+1], ": ")
		if !ok {
			// "Params: " with empty params loses nothing but the trailing space.
			k, v, ok = strings.TrimSuffix(lines[i+1], ":"), "", strings.HasSuffix(lines[i+1], ":")
		}
		if !ok || k != key {
			return f, fmt.Errorf("%w: expected %s line", ErrChallengeMismatch, key)
		}
		vals[key] = v
	}

	var err error
	f.Game = vals["Game"]
	f.Session = vals["Session"]
	f.Action = action.Kind(vals["Action"])
	f.Params = vals["Params"]
	if f.ChainID, err = strconv.ParseInt(vals["ChainId"], 10, 64); err != nil {
		return f, fmt.Errorf("%w: chain id", ErrChallengeMismatch)
	}
	if f.PlayerIndex, err = strconv.Atoi(vals["PlayerIndex"]); err != nil {
		return f, fmt.Errorf("%w: player index", ErrChallengeMismatch)
	}
	if f.Nonce, err = strconv.ParseUint(vals["Nonce"], 10, 64); err != nil {
		return f, fmt.Errorf("%w: nonce", ErrChallengeMismatch)
	}
	return f, nil
}
