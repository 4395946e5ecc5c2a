package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flarepoly/game-engine/internal/model"
)

// Schema creates the tables PostgresStore uses. Amounts are NUMERIC for
// exact decimal precision.
const Schema = `
CREATE TABLE IF NOT EXISTS game_states (
	slot       TEXT PRIMARY KEY,
	game_id    TEXT NOT NULL,
	version    BIGINT NOT NULL,
	state      JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS settlements (
	id           TEXT PRIMARY KEY,
	game_id      TEXT NOT NULL,
	tile_id      INT NOT NULL,
	player       INT NOT NULL,
	from_address TEXT NOT NULL,
	to_address   TEXT NOT NULL,
	amount_raw   NUMERIC NOT NULL,
	price_fc     NUMERIC NOT NULL,
	tx_hash      TEXT NOT NULL UNIQUE,
	settled_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS settlements_game_idx ON settlements (game_id, settled_at);
`

// currentSlot is the single row holding the live game.
const currentSlot = "current"

// PostgresStore implements Store using PostgreSQL as the source of truth.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the schema if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, Schema)
	return err
}

// Commit writes the state row and the settlement rows in one transaction.
func (s *PostgresStore) Commit(ctx context.Context, st *model.GameState, recs []model.SettlementRecord) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO game_states (slot, game_id, version, state, updated_at)
			 VALUES ($1, $2, $3, $4::JSONB, $5)
			 ON CONFLICT (slot) DO UPDATE
			 SET game_id = EXCLUDED.game_id, version = EXCLUDED.version,
			     state = EXCLUDED.state, updated_at = EXCLUDED.updated_at`,
			currentSlot, st.GameID, int64(st.Version), data, st.UpdatedAt,
		); err != nil {
			return fmt.Errorf("save state: %w", err)
		}
		for i := range recs {
			r := &recs[i]
			if _, err := tx.Exec(ctx,
				`INSERT INTO settlements (id, game_id, tile_id, player, from_address, to_address,
				                          amount_raw, price_fc, tx_hash, settled_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7::NUMERIC, $8::NUMERIC, $9, $10)`,
				r.ID, r.GameID, r.TileID, r.Player, r.From, r.To,
				r.AmountRaw.String(), r.PriceFC.String(), r.TxHash, r.SettledAt,
			); err != nil {
				return fmt.Errorf("record settlement %s: %w", r.ID, err)
			}
		}
		return nil
	})
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "settlements_tx_hash_key" {
		return ErrDuplicateTx
	}
	return err
}

func (s *PostgresStore) LoadState(ctx context.Context) (*model.GameState, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT state FROM game_states WHERE slot = $1`, currentSlot).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	var st model.GameState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	return &st, nil
}

func (s *PostgresStore) TxUsed(ctx context.Context, txHash string) (bool, error) {
	var used bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM settlements WHERE tx_hash = $1)`, txHash).Scan(&used)
	if err != nil {
		return false, fmt.Errorf("lookup tx hash: %w", err)
	}
	return used, nil
}

func (s *PostgresStore) ListSettlements(ctx context.Context, gameID string) ([]model.SettlementRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, game_id, tile_id, player, from_address, to_address,
		        amount_raw::TEXT, price_fc::TEXT, tx_hash, settled_at
		 FROM settlements
		 WHERE $1 = '' OR game_id = $1
		 ORDER BY settled_at`, gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSettlements(rows)
}

// pgxRows is the subset of pgx.Rows scanSettlements reads.
type pgxRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanSettlements(rows pgxRows) ([]model.SettlementRecord, error) {
	out := []model.SettlementRecord{}
	for rows.Next() {
		var r model.SettlementRecord
		// decimal.Decimal scans the TEXT columns and rejects malformed values.
		if err := rows.Scan(&r.ID, &r.GameID, &r.TileID, &r.Player, &r.From, &r.To,
			&r.AmountRaw, &r.PriceFC, &r.TxHash, &r.SettledAt); err != nil {
			return nil, fmt.Errorf("scan settlement: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
