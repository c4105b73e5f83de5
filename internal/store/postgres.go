package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/lbp/pool-engine/internal/model"
)

// schema creates the tables the PostgresStore reads and writes.
// All token amounts are NUMERIC so base units never lose precision.
const schema = `
CREATE TABLE IF NOT EXISTS pools (
	id                                   TEXT PRIMARY KEY,
	variant                              TEXT NOT NULL,
	token0                               TEXT NOT NULL,
	token1                               TEXT NOT NULL,
	lp_token                             TEXT NOT NULL,
	reward_token                         TEXT NOT NULL,
	admin                                TEXT NOT NULL,
	phase                                SMALLINT NOT NULL,
	start_time                           TIMESTAMPTZ NOT NULL,
	deposit_phase_start                  TIMESTAMPTZ NOT NULL,
	deposit_window_end                   TIMESTAMPTZ NOT NULL,
	transfer_phase_start                 TIMESTAMPTZ NOT NULL,
	price_ratio_shifted                  NUMERIC NOT NULL,
	last_price_feed_timestamp            TIMESTAMPTZ NOT NULL,
	total_deposits                       INTEGER NOT NULL,
	transfer_cursor                      INTEGER NOT NULL,
	total_lp_tokens                      NUMERIC NOT NULL,
	total_transferred0                   NUMERIC NOT NULL,
	total_transferred1                   NUMERIC NOT NULL,
	total_transferred_with_bonus_x10000  NUMERIC NOT NULL,
	penalty0                             NUMERIC NOT NULL,
	penalty1                             NUMERIC NOT NULL,
	reward_allocation                    NUMERIC NOT NULL,
	updated_at                           TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS pool_events (
	seq             BIGSERIAL PRIMARY KEY,
	id              UUID NOT NULL UNIQUE,
	pool_id         TEXT NOT NULL,
	kind            TEXT NOT NULL,
	user_address    TEXT NOT NULL DEFAULT '',
	locking_period  INTEGER NOT NULL DEFAULT 0,
	amount0         NUMERIC NOT NULL DEFAULT 0,
	amount1         NUMERIC NOT NULL DEFAULT 0,
	shares          NUMERIC NOT NULL DEFAULT 0,
	reward          NUMERIC NOT NULL DEFAULT 0,
	phase           SMALLINT NOT NULL,
	timestamp       TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS pool_events_pool_idx ON pool_events (pool_id, seq);
CREATE INDEX IF NOT EXISTS pool_events_user_idx ON pool_events (LOWER(user_address), seq);
`

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All token amounts are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the store's tables if they do not exist yet.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

const poolColumns = `id, variant, token0, token1, lp_token, reward_token, admin, phase,
	start_time, deposit_phase_start, deposit_window_end, transfer_phase_start,
	price_ratio_shifted::TEXT, last_price_feed_timestamp, total_deposits, transfer_cursor,
	total_lp_tokens::TEXT, total_transferred0::TEXT, total_transferred1::TEXT,
	total_transferred_with_bonus_x10000::TEXT, penalty0::TEXT, penalty1::TEXT,
	reward_allocation::TEXT, updated_at`

func (s *PostgresStore) SavePool(ctx context.Context, p *model.PoolSnapshot) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO pools (id, variant, token0, token1, lp_token, reward_token, admin, phase,
		        start_time, deposit_phase_start, deposit_window_end, transfer_phase_start,
		        price_ratio_shifted, last_price_feed_timestamp, total_deposits, transfer_cursor,
		        total_lp_tokens, total_transferred0, total_transferred1,
		        total_transferred_with_bonus_x10000, penalty0, penalty1,
		        reward_allocation, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
		         $13::NUMERIC, $14, $15, $16, $17::NUMERIC, $18::NUMERIC, $19::NUMERIC,
		         $20::NUMERIC, $21::NUMERIC, $22::NUMERIC, $23::NUMERIC, $24)
		 ON CONFLICT (id) DO UPDATE SET
		        phase = EXCLUDED.phase,
		        deposit_phase_start = EXCLUDED.deposit_phase_start,
		        deposit_window_end = EXCLUDED.deposit_window_end,
		        transfer_phase_start = EXCLUDED.transfer_phase_start,
		        price_ratio_shifted = EXCLUDED.price_ratio_shifted,
		        last_price_feed_timestamp = EXCLUDED.last_price_feed_timestamp,
		        total_deposits = EXCLUDED.total_deposits,
		        transfer_cursor = EXCLUDED.transfer_cursor,
		        total_lp_tokens = EXCLUDED.total_lp_tokens,
		        total_transferred0 = EXCLUDED.total_transferred0,
		        total_transferred1 = EXCLUDED.total_transferred1,
		        total_transferred_with_bonus_x10000 = EXCLUDED.total_transferred_with_bonus_x10000,
		        penalty0 = EXCLUDED.penalty0,
		        penalty1 = EXCLUDED.penalty1,
		        reward_allocation = EXCLUDED.reward_allocation,
		        updated_at = EXCLUDED.updated_at`,
		p.ID, p.Variant, p.Token0, p.Token1, p.LpToken, p.RewardToken, p.Admin, int16(p.Phase),
		p.StartTime, p.DepositPhaseStart, p.DepositWindowEnd, p.TransferPhaseStart,
		p.PriceRatioShifted.String(), p.LastPriceFeedTimestamp, p.TotalDeposits, p.TransferCursor,
		p.TotalLpTokens.String(), p.TotalTransferred0.String(), p.TotalTransferred1.String(),
		p.TotalTransferredWithBonusX10000.String(), p.Penalty0.String(), p.Penalty1.String(),
		p.RewardAllocation.String(), p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save pool %s: %w", p.ID, err)
	}
	return nil
}

func (s *PostgresStore) GetPool(ctx context.Context, id string) (*model.PoolSnapshot, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+poolColumns+` FROM pools WHERE id = $1`, id)
	p, err := scanPool(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("pool %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get pool %s: %w", id, err)
	}
	return p, nil
}

func (s *PostgresStore) ListPools(ctx context.Context) ([]model.PoolSnapshot, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+poolColumns+` FROM pools ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pools []model.PoolSnapshot
	for rows.Next() {
		p, err := scanPool(rows)
		if err != nil {
			return nil, err
		}
		pools = append(pools, *p)
	}
	return pools, rows.Err()
}

func (s *PostgresStore) AppendEvent(ctx context.Context, e *model.Event) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO pool_events (id, pool_id, kind, user_address, locking_period,
		        amount0, amount1, shares, reward, phase, timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC, $9::NUMERIC, $10, $11)`,
		e.ID, e.PoolID, e.Kind, e.User, int64(e.LockingPeriod),
		e.Amount0.String(), e.Amount1.String(), e.Shares.String(), e.Reward.String(),
		int16(e.Phase), e.Timestamp,
	)
	return err
}

func (s *PostgresStore) EventsByPool(ctx context.Context, poolID string) ([]model.Event, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id::TEXT, pool_id, kind, user_address, locking_period,
		        amount0::TEXT, amount1::TEXT, shares::TEXT, reward::TEXT, phase, timestamp
		 FROM pool_events WHERE pool_id = $1 ORDER BY seq`, poolID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEvents(rows)
}

func (s *PostgresStore) EventsByUser(ctx context.Context, user string) ([]model.Event, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id::TEXT, pool_id, kind, user_address, locking_period,
		        amount0::TEXT, amount1::TEXT, shares::TEXT, reward::TEXT, phase, timestamp
		 FROM pool_events WHERE LOWER(user_address) = LOWER($1) AND user_address <> ''
		 ORDER BY seq`, user)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEvents(rows)
}

// pgxRow is satisfied by both pgx.Row and pgx.Rows.
type pgxRow interface {
	Scan(dest ...interface{}) error
}

type pgxRows interface {
	pgxRow
	Next() bool
	Err() error
}

func scanPool(row pgxRow) (*model.PoolSnapshot, error) {
	var p model.PoolSnapshot
	var phase int16
	var ratioS, lpS, t0S, t1S, bonusS, pen0S, pen1S, rewardS string

	if err := row.Scan(&p.ID, &p.Variant, &p.Token0, &p.Token1, &p.LpToken, &p.RewardToken, &p.Admin, &phase,
		&p.StartTime, &p.DepositPhaseStart, &p.DepositWindowEnd, &p.TransferPhaseStart,
		&ratioS, &p.LastPriceFeedTimestamp, &p.TotalDeposits, &p.TransferCursor,
		&lpS, &t0S, &t1S, &bonusS, &pen0S, &pen1S, &rewardS, &p.UpdatedAt); err != nil {
		return nil, err
	}

	p.Phase = model.Phase(phase)
	p.PriceRatioShifted, _ = decimal.NewFromString(ratioS)
	p.TotalLpTokens, _ = decimal.NewFromString(lpS)
	p.TotalTransferred0, _ = decimal.NewFromString(t0S)
	p.TotalTransferred1, _ = decimal.NewFromString(t1S)
	p.TotalTransferredWithBonusX10000, _ = decimal.NewFromString(bonusS)
	p.Penalty0, _ = decimal.NewFromString(pen0S)
	p.Penalty1, _ = decimal.NewFromString(pen1S)
	p.RewardAllocation, _ = decimal.NewFromString(rewardS)
	return &p, nil
}

func scanEvents(rows pgxRows) ([]model.Event, error) {
	var events []model.Event
	for rows.Next() {
		var e model.Event
		var lockingPeriod int64
		var phase int16
		var a0S, a1S, sharesS, rewardS string

		if err := rows.Scan(&e.ID, &e.PoolID, &e.Kind, &e.User, &lockingPeriod,
			&a0S, &a1S, &sharesS, &rewardS, &phase, &e.Timestamp); err != nil {
			return nil, err
		}

		e.LockingPeriod = uint32(lockingPeriod)
		e.Phase = model.Phase(phase)
		e.Amount0, _ = decimal.NewFromString(a0S)
		e.Amount1, _ = decimal.NewFromString(a1S)
		e.Shares, _ = decimal.NewFromString(sharesS)
		e.Reward, _ = decimal.NewFromString(rewardS)

		events = append(events, e)
	}
	return events, rows.Err()
}
