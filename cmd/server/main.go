package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/flarepoly/game-engine/internal/api"
	"github.com/flarepoly/game-engine/internal/auth"
	"github.com/flarepoly/game-engine/internal/chain"
	"github.com/flarepoly/game-engine/internal/chance"
	"github.com/flarepoly/game-engine/internal/config"
	"github.com/flarepoly/game-engine/internal/game"
	"github.com/flarepoly/game-engine/internal/settlement"
	"github.com/flarepoly/game-engine/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var cleanup []func()
	defer func() {
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
	}()
	fatal := func(msg string, args ...any) {
		slog.Error(msg, args...)
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
		os.Exit(1)
	}

	// --- Redis: state cache and nonce counters ---
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			fatal("invalid REDIS_URL", "err", err)
		}
		rdb = redis.NewClient(opt)
		cleanup = append(cleanup, func() { rdb.Close() })
		if err := rdb.Ping(ctx).Err(); err != nil {
			fatal("redis unreachable", "err", err)
		}
		slog.Info("connected to Redis")
	}

	// --- Store ---
	var st store.Store
	switch {
	case cfg.DatabaseURL != "":
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			fatal("database connection failed", "err", err)
		}
		cleanup = append(cleanup, pool.Close)
		pg := store.NewPostgresStore(pool)
		if err := pg.Migrate(ctx); err != nil {
			fatal("database migration failed", "err", err)
		}
		st = pg
		slog.Info("connected to PostgreSQL")
	case cfg.LevelDBPath != "":
		lv, err := store.OpenLevelStore(cfg.LevelDBPath)
		if err != nil {
			fatal("leveldb open failed", "path", cfg.LevelDBPath, "err", err)
		}
		cleanup = append(cleanup, func() { lv.Close() })
		st = lv
		slog.Info("using LevelDB store", "path", cfg.LevelDBPath)
	default:
		slog.Warn("DATABASE_URL and LEVELDB_PATH not set, using in-memory store (games will not survive a restart)")
		st = store.NewMemoryStore()
	}
	if rdb != nil {
		st = store.NewCachedStore(st, rdb, 30*time.Second)
		slog.Info("Redis cache enabled")
	}

	// --- Authentication ---
	var nonces auth.NonceStore = auth.NewMemoryNonceStore()
	if rdb != nil {
		nonces = auth.NewRedisNonceStore(rdb)
	}

	// --- Payment rail ---
	chainID := cfg.ChainID
	var gateway *settlement.Gateway
	if cfg.ChainSettlement() {
		client, id, err := chain.Dial(ctx, cfg.RPCURL)
		if err != nil {
			fatal("rpc connection failed", "err", err)
		}
		cleanup = append(cleanup, client.Close)
		if id.IsInt64() && id.Int64() != chainID {
			slog.Info("using chain id reported by node", "configured", chainID, "node", id.Int64())
			chainID = id.Int64()
		}
		verifier := chain.NewERC20Verifier(client, common.HexToAddress(cfg.TokenContract), cfg.MinConfirmations)
		gateway = settlement.NewGateway(verifier, common.HexToAddress(cfg.Treasury), cfg.TokenDecimals, cfg.SettleTimeout)
		slog.Info("on-chain settlement enabled",
			"token", cfg.TokenContract,
			"treasury", cfg.Treasury,
			"chain_id", chainID,
			"min_confirmations", cfg.MinConfirmations,
		)
	} else {
		slog.Warn("payment rail not configured, purchases are paid from in-game balances")
	}

	// --- Randomness ---
	// Dice and deck get independent generators; a *rand.Rand is not safe to
	// share between them.
	var deckSeed *uint64
	if cfg.DiceSeed != nil {
		s := *cfg.DiceSeed + 1
		deckSeed = &s
		slog.Warn("DICE_SEED set, rolls and chance draws are reproducible")
	}

	// --- Engine ---
	engine, err := game.New(ctx, game.Options{
		Players:      cfg.Players,
		StartBalance: cfg.StartBalance,
		JailTurns:    cfg.JailTurns,
		Policy:       game.EliminationPolicy(cfg.EliminationPolicy),
		Dice:         chance.NewDice(chance.NewRand(cfg.DiceSeed)),
		Deck:         chance.NewDeck(chance.NewRand(deckSeed), chance.Table()),
		Gateway:      gateway,
		Store:        st,
		Auth:         auth.New(auth.PersonalSign{}, nonces, chainID),
		Logger:       logger,
	})
	if err != nil {
		fatal("engine start failed", "err", err)
	}

	// --- WebSocket hub ---
	hub := api.NewWSHub(engine.Snapshot, logger)
	engine.OnCommit(hub.Publish)
	go hub.Run(ctx)

	// --- HTTP ---
	handler := api.NewServer(engine, hub, cfg.AdminToken, logger).
		Router(api.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst))

	// WriteTimeout leaves room for a settlement verification.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.SettleTimeout + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("game-engine listening", "port", cfg.Port, "ledger_mode", engine.LedgerMode())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down game-engine...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("game-engine stopped")
}
