// Package pool implements the two-sided intermediate pool: a time-phased
// escrow that collects pairs of tokens at a daily-cached price ratio,
// migrates them into an AMM pair in bounded batches, and then releases the
// AMM shares on a locking-period-weighted schedule.
//
// Every exported method is one atomic call: it either fails without any
// observable effect or completes fully. Calls are serialised by a mutex.
package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/lbp/pool-engine/internal/arena"
	"github.com/lbp/pool-engine/internal/chain"
	"github.com/lbp/pool-engine/internal/lifecycle"
	"github.com/lbp/pool-engine/internal/lockperiod"
	"github.com/lbp/pool-engine/internal/model"
	"github.com/lbp/pool-engine/internal/pricefeed"
)

// Defaults applied by New when the config leaves a field zero.
const (
	DefaultDepositWindow = 7 * 24 * time.Hour
	DefaultPenaltyBps    = 1000
)

const day = 24 * time.Hour

// Logger is satisfied by *slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Debug(string, ...any) {}
func (NopLogger) Info(string, ...any)  {}
func (NopLogger) Warn(string, ...any)  {}
func (NopLogger) Error(string, ...any) {}

// Config wires a pool to its tokens, collaborators and parameters.
type Config struct {
	ID      string
	Address common.Address

	Token0      common.Address
	Token1      common.Address
	LpToken     common.Address
	RewardToken common.Address

	// RewardAllocation is the amount of RewardToken the pool holds for
	// depositors, shared pro-rata by bonus-weighted contribution.
	RewardAllocation decimal.Decimal

	Admin         common.Address
	StartTime     time.Time
	DepositWindow time.Duration
	PenaltyBps    int64
	Menu          *lockperiod.Menu

	Ledger chain.TokenLedger
	Router chain.Router
	Prices *pricefeed.Normalizer

	Now    func() time.Time
	Logger Logger
}

func (c *Config) setDefaults() {
	if c.DepositWindow <= 0 {
		c.DepositWindow = DefaultDepositWindow
	}
	if c.PenaltyBps == 0 {
		c.PenaltyBps = DefaultPenaltyBps
	}
	if c.Menu == nil {
		c.Menu = lockperiod.MustParse(lockperiod.DefaultIntermediate)
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Logger == nil {
		c.Logger = NopLogger{}
	}
	if c.ID == "" {
		c.ID = c.Address.Hex()
	}
}

func (c *Config) validate() error {
	switch {
	case c.Ledger == nil || c.Router == nil || c.Prices == nil:
		return fmt.Errorf("%w: ledger, router and prices are required", ErrInvalidConfig)
	case c.Token0 == c.Token1:
		return fmt.Errorf("%w: identical tokens", ErrInvalidConfig)
	case c.Address == (common.Address{}):
		return fmt.Errorf("%w: missing pool address", ErrInvalidConfig)
	case c.PenaltyBps < 0 || c.PenaltyBps > 10_000:
		return fmt.Errorf("%w: penalty %d bps out of range", ErrInvalidConfig, c.PenaltyBps)
	case c.RewardAllocation.IsNegative():
		return fmt.Errorf("%w: negative reward allocation", ErrInvalidConfig)
	case c.RewardAllocation.IsPositive() && c.RewardToken == (common.Address{}):
		return fmt.Errorf("%w: reward allocation without reward token", ErrInvalidConfig)
	}
	return nil
}

// Pool is the two-sided intermediate pool.
type Pool struct {
	mu  sync.Mutex
	cfg Config

	machine *lifecycle.Machine

	depositPhaseStart  time.Time
	depositWindowEnd   time.Time
	transferPhaseStart time.Time
	frozenRatio        decimal.Decimal

	users    arena.Arena
	deposits map[common.Address][]*depositEntry

	penalties Penalties
	vesting   map[common.Address]map[uint32]*vestingEntry
	leftovers map[common.Address]*leftoverEntry

	cursor            int
	totalLpTokens     decimal.Decimal
	transferred       model.Pair
	totalWeight       decimal.Decimal
	rewardAllocation  decimal.Decimal
	unclaimedLeftover model.Pair
	updatedAt         time.Time
}

// New creates a pool in PhaseCreated.
func New(cfg Config) (*Pool, error) {
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Pool{
		cfg:              cfg,
		machine:          lifecycle.New(cfg.Admin),
		deposits:         make(map[common.Address][]*depositEntry),
		vesting:          make(map[common.Address]map[uint32]*vestingEntry),
		leftovers:        make(map[common.Address]*leftoverEntry),
		rewardAllocation: cfg.RewardAllocation,
		updatedAt:        cfg.Now(),
	}, nil
}

// ID returns the pool identifier.
func (p *Pool) ID() string { return p.cfg.ID }

// Address returns the account holding the pool's funds.
func (p *Pool) Address() common.Address { return p.cfg.Address }

// Tokens returns the two pool assets in order.
func (p *Pool) Tokens() (common.Address, common.Address) { return p.cfg.Token0, p.cfg.Token1 }

// TriggerDepositPhase opens the deposit window. It is callable by anyone
// once StartTime has passed.
func (p *Pool) TriggerDepositPhase(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.machine.Require(model.PhaseCreated); err != nil {
		return err
	}
	now := p.cfg.Now()
	if now.Before(p.cfg.StartTime) {
		return fmt.Errorf("%w: starts at %s", lifecycle.ErrTooEarly, p.cfg.StartTime.UTC().Format(time.RFC3339))
	}
	if err := p.machine.Advance(model.PhaseCreated, model.PhaseDeposit); err != nil {
		return err
	}
	p.depositPhaseStart = now
	p.depositWindowEnd = now.Add(p.cfg.DepositWindow)
	p.updatedAt = now

	p.cfg.Logger.Info("deposit phase started",
		"pool", p.cfg.ID,
		"window_end", p.depositWindowEnd,
	)
	return nil
}

// TriggerTransferPhase closes deposits, refreshes the price ratio one last
// time and freezes it for the batch transfer.
func (p *Pool) TriggerTransferPhase(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.machine.Require(model.PhaseDeposit); err != nil {
		return err
	}
	now := p.cfg.Now()
	if now.Before(p.depositWindowEnd) {
		return fmt.Errorf("%w: deposits close at %s", lifecycle.ErrTooEarly, p.depositWindowEnd.UTC().Format(time.RFC3339))
	}
	r, err := p.cfg.Prices.Refresh(ctx, now)
	if err != nil {
		return fmt.Errorf("pool: refresh price: %w", err)
	}
	if err := p.machine.Advance(model.PhaseDeposit, model.PhaseTransfer); err != nil {
		return err
	}
	p.frozenRatio = r
	p.transferPhaseStart = now
	p.updatedAt = now

	p.cfg.Logger.Info("transfer phase started",
		"pool", p.cfg.ID,
		"ratio", r.String(),
		"depositors", p.users.Len(),
	)
	return nil
}

// Phase returns the current phase.
func (p *Pool) Phase() model.Phase {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.machine.Phase()
}

// PriceRatioShifted returns the frozen ratio once transfers started, the
// cached one before.
func (p *Pool) PriceRatioShifted() decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ratio()
}

func (p *Pool) ratio() decimal.Decimal {
	if !p.frozenRatio.IsZero() {
		return p.frozenRatio
	}
	return p.cfg.Prices.Ratio()
}

// LastPriceFeedTimestamp returns the time of the last price refresh.
func (p *Pool) LastPriceFeedTimestamp() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg.Prices.LastUpdate()
}

// TotalDeposits returns the number of unique depositors.
func (p *Pool) TotalDeposits() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.users.Len()
}

// TotalLpTokens returns the shares minted to the pool by all batches.
func (p *Pool) TotalLpTokens() decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.totalLpTokens
}

// Snapshot returns the aggregate state of the pool.
func (p *Pool) Snapshot() model.PoolSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	return model.PoolSnapshot{
		ID:                              p.cfg.ID,
		Variant:                         model.VariantIntermediate,
		Token0:                          model.AddressString(p.cfg.Token0),
		Token1:                          model.AddressString(p.cfg.Token1),
		LpToken:                         model.AddressString(p.cfg.LpToken),
		RewardToken:                     model.AddressString(p.cfg.RewardToken),
		Admin:                           model.AddressString(p.cfg.Admin),
		Phase:                           p.machine.Phase(),
		StartTime:                       p.cfg.StartTime,
		DepositPhaseStart:               p.depositPhaseStart,
		DepositWindowEnd:                p.depositWindowEnd,
		TransferPhaseStart:              p.transferPhaseStart,
		PriceRatioShifted:               p.ratio(),
		LastPriceFeedTimestamp:          p.cfg.Prices.LastUpdate(),
		TotalDeposits:                   p.users.Len(),
		TransferCursor:                  p.cursor,
		TotalLpTokens:                   p.totalLpTokens,
		TotalTransferred0:               p.transferred.Amount0,
		TotalTransferred1:               p.transferred.Amount1,
		TotalTransferredWithBonusX10000: p.totalWeight,
		Penalty0:                        p.penalties.Total().Amount0,
		Penalty1:                        p.penalties.Total().Amount1,
		RewardAllocation:                p.rewardAllocation,
		UpdatedAt:                       p.updatedAt,
	}
}
