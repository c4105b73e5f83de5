// Package discovery implements the price discovery pool. It runs the same
// lifecycle as the two-sided pool, but deposits are single-sided: users
// bring either asset and the opening price is whatever ratio the deposits
// add up to when the window closes. Shares vest gradually, and the reward
// allocation is claimed separately.
package discovery

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
	"github.com/lbp/pool-engine/internal/pool"
	"github.com/lbp/pool-engine/internal/ratio"
)

// DefaultInitialReleaseBps is the share of each bucket released as soon as
// the pool completes.
const DefaultInitialReleaseBps = 2500

// Config wires a discovery pool.
type Config struct {
	ID      string
	Address common.Address

	// Token0 is usually the token whose price is being discovered.
	Token0      common.Address
	Token1      common.Address
	LpToken     common.Address
	RewardToken common.Address

	RewardAllocation decimal.Decimal

	Admin             common.Address
	StartTime         time.Time
	DepositWindow     time.Duration
	PenaltyBps        int64
	InitialReleaseBps int64
	Menu              *lockperiod.Menu

	Ledger chain.TokenLedger
	Router chain.Router

	Now    func() time.Time
	Logger pool.Logger
}

func (c *Config) setDefaults() {
	if c.DepositWindow <= 0 {
		c.DepositWindow = pool.DefaultDepositWindow
	}
	if c.PenaltyBps == 0 {
		c.PenaltyBps = pool.DefaultPenaltyBps
	}
	if c.InitialReleaseBps == 0 {
		c.InitialReleaseBps = DefaultInitialReleaseBps
	}
	if c.Menu == nil {
		c.Menu = lockperiod.MustParse(lockperiod.DefaultDiscovery)
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Logger == nil {
		c.Logger = pool.NopLogger{}
	}
	if c.ID == "" {
		c.ID = c.Address.Hex()
	}
}

func (c *Config) validate() error {
	switch {
	case c.Ledger == nil || c.Router == nil:
		return fmt.Errorf("%w: ledger and router are required", ErrInvalidConfig)
	case c.Token0 == c.Token1:
		return fmt.Errorf("%w: identical tokens", ErrInvalidConfig)
	case c.Address == (common.Address{}):
		return fmt.Errorf("%w: missing pool address", ErrInvalidConfig)
	case c.PenaltyBps < 0 || c.PenaltyBps > ratio.BasisPoints:
		return fmt.Errorf("%w: penalty %d bps out of range", ErrInvalidConfig, c.PenaltyBps)
	case c.InitialReleaseBps < 0 || c.InitialReleaseBps > ratio.BasisPoints:
		return fmt.Errorf("%w: initial release %d bps out of range", ErrInvalidConfig, c.InitialReleaseBps)
	case c.RewardAllocation.IsNegative():
		return fmt.Errorf("%w: negative reward allocation", ErrInvalidConfig)
	case c.RewardAllocation.IsPositive() && c.RewardToken == (common.Address{}):
		return fmt.Errorf("%w: reward allocation without reward token", ErrInvalidConfig)
	}
	return nil
}

// Pool is a price discovery pool.
type Pool struct {
	mu  sync.Mutex
	cfg Config

	machine *lifecycle.Machine

	depositPhaseStart  time.Time
	depositWindowEnd   time.Time
	transferPhaseStart time.Time
	discoveredRatio    decimal.Decimal

	users    arena.Arena
	deposits map[common.Address]map[uint32]*model.Pair
	totals   model.Pair

	penalties pool.Penalties
	vesting   map[common.Address]map[uint32]*bucket
	claimed   map[common.Address]bool

	totalLpTokens    decimal.Decimal
	transferred      model.Pair
	totalWeight      decimal.Decimal
	rewardAllocation decimal.Decimal
	updatedAt        time.Time
}

// New creates a discovery pool in PhaseCreated.
func New(cfg Config) (*Pool, error) {
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Pool{
		cfg:              cfg,
		machine:          lifecycle.New(cfg.Admin),
		deposits:         make(map[common.Address]map[uint32]*model.Pair),
		vesting:          make(map[common.Address]map[uint32]*bucket),
		claimed:          make(map[common.Address]bool),
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

// TriggerDepositPhase opens the deposit window once StartTime has passed.
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

// TriggerTransferPhase closes deposits and fixes the discovered ratio
// total0 * 2^31 / total1. Both sides must have been deposited.
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
	if !p.totals.Amount0.IsPositive() || !p.totals.Amount1.IsPositive() {
		return ErrInsufficientLiquidity
	}
	r := ratio.MulDiv(p.totals.Amount0, ratio.Scale, p.totals.Amount1)
	if !r.IsPositive() {
		return ErrInsufficientLiquidity
	}
	if err := p.machine.Advance(model.PhaseDeposit, model.PhaseTransfer); err != nil {
		return err
	}
	p.discoveredRatio = r
	p.transferPhaseStart = now
	p.updatedAt = now

	p.cfg.Logger.Info("transfer phase started",
		"pool", p.cfg.ID,
		"ratio", r.String(),
		"total0", p.totals.Amount0.String(),
		"total1", p.totals.Amount1.String(),
	)
	return nil
}

// Phase returns the current phase.
func (p *Pool) Phase() model.Phase {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.machine.Phase()
}

// PriceRatioShifted returns the discovered ratio; zero before the transfer
// phase.
func (p *Pool) PriceRatioShifted() decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.discoveredRatio
}

// TotalDeposits returns the number of unique depositors.
func (p *Pool) TotalDeposits() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.users.Len()
}

// Totals returns the live deposit totals per token.
func (p *Pool) Totals() model.Pair {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.totals
}

// TotalLpTokens returns the shares minted at transfer.
func (p *Pool) TotalLpTokens() decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.totalLpTokens
}

// Snapshot returns the aggregate state of the pool.
func (p *Pool) Snapshot() model.PoolSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	pen := p.penalties.Total()
	return model.PoolSnapshot{
		ID:                              p.cfg.ID,
		Variant:                         model.VariantDiscovery,
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
		PriceRatioShifted:               p.discoveredRatio,
		TotalDeposits:                   p.users.Len(),
		TotalLpTokens:                   p.totalLpTokens,
		TotalTransferred0:               p.transferred.Amount0,
		TotalTransferred1:               p.transferred.Amount1,
		TotalTransferredWithBonusX10000: p.totalWeight,
		Penalty0:                        pen.Amount0,
		Penalty1:                        pen.Amount1,
		RewardAllocation:                p.rewardAllocation,
		UpdatedAt:                       p.updatedAt,
	}
}
