// Package config reads server configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Config holds all server configuration.
type Config struct {
	Port        string
	DatabaseURL string
	RedisURL    string
	LevelDBPath string

	// Payment rail. Settlement is on-chain only when RPCURL, TokenContract
	// and Treasury are all set; otherwise BUY pays from the in-game ledger.
	RPCURL           string
	TokenContract    string
	Treasury         string
	TokenDecimals    int32
	ChainID          int64
	MinConfirmations uint64
	SettleTimeout    time.Duration

	Players           int
	StartBalance      decimal.Decimal
	JailTurns         int
	DiceSeed          *uint64
	EliminationPolicy string

	AdminToken     string
	RateLimitRPS   float64
	RateLimitBurst int
}

// Default returns the development configuration.
func Default() *Config {
	return &Config{
		Port:              "8080",
		TokenDecimals:     18,
		ChainID:           114, // Coston2
		MinConfirmations:  1,
		SettleTimeout:     15 * time.Second,
		Players:           4,
		StartBalance:      decimal.NewFromInt(1500),
		JailTurns:         2,
		EliminationPolicy: "assets",
		RateLimitRPS:      10,
		RateLimitBurst:    20,
	}
}

// ChainSettlement reports whether a payment rail is fully configured.
func (c *Config) ChainSettlement() bool {
	return c.RPCURL != "" && c.TokenContract != "" && c.Treasury != ""
}

// Load reads the environment over Default. Any malformed value is an error.
func Load() (*Config, error) {
	c := Default()
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	parse := func(key string, fn func(string) error) {
		v, ok := os.LookupEnv(key)
		if !ok || v == "" {
			return
		}
		if err := fn(v); err != nil {
			errs = append(errs, fmt.Errorf("%s=%q: %w", key, v, err))
		}
	}

	str("PORT", &c.Port)
	str("DATABASE_URL", &c.DatabaseURL)
	str("REDIS_URL", &c.RedisURL)
	str("LEVELDB_PATH", &c.LevelDBPath)
	str("FLARE_RPC_URL", &c.RPCURL)
	str("FXRP_CONTRACT", &c.TokenContract)
	str("TREASURY_ADDRESS", &c.Treasury)
	str("ADMIN_TOKEN", &c.AdminToken)

	parse("TOKEN_DECIMALS", func(v string) error {
		n, err := strconv.ParseInt(v, 10, 32)
		if err == nil && (n < 0 || n > 36) {
			err = errors.New("out of range 0..36")
		}
		c.TokenDecimals = int32(n)
		return err
	})
	parse("CHAIN_ID", func(v string) (err error) {
		c.ChainID, err = strconv.ParseInt(v, 10, 64)
		return err
	})
	parse("MIN_CONFIRMATIONS", func(v string) (err error) {
		c.MinConfirmations, err = strconv.ParseUint(v, 10, 64)
		return err
	})
	parse("SETTLE_TIMEOUT", func(v string) (err error) {
		c.SettleTimeout, err = time.ParseDuration(v)
		return err
	})
	parse("PLAYERS", func(v string) (err error) {
		c.Players, err = strconv.Atoi(v)
		if err == nil && (c.Players < 2 || c.Players > 4) {
			err = errors.New("must be 2..4")
		}
		return err
	})
	parse("START_BALANCE", func(v string) (err error) {
		c.StartBalance, err = decimal.NewFromString(v)
		if err == nil && !c.StartBalance.IsPositive() {
			err = errors.New("must be positive")
		}
		return err
	})
	parse("JAIL_TURNS", func(v string) (err error) {
		c.JailTurns, err = strconv.Atoi(v)
		if err == nil && c.JailTurns < 1 {
			err = errors.New("must be at least 1")
		}
		return err
	})
	parse("DICE_SEED", func(v string) error {
		seed, err := strconv.ParseUint(v, 10, 64)
		c.DiceSeed = &seed
		return err
	})
	parse("ELIMINATION_POLICY", func(v string) error {
		if v != "assets" && v != "strict" {
			return errors.New("must be assets or strict")
		}
		c.EliminationPolicy = v
		return nil
	})
	parse("RATE_LIMIT_RPS", func(v string) (err error) {
		c.RateLimitRPS, err = strconv.ParseFloat(v, 64)
		return err
	})
	parse("RATE_LIMIT_BURST", func(v string) (err error) {
		c.RateLimitBurst, err = strconv.Atoi(v)
		return err
	})

	for key, addr := range map[string]string{"FXRP_CONTRACT": c.TokenContract, "TREASURY_ADDRESS": c.Treasury} {
		if addr != "" && !common.IsHexAddress(addr) {
			errs = append(errs, fmt.Errorf("%s=%q: not a hex address", key, addr))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return c, nil
}
