package pool

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/lbp/pool-engine/internal/chain"
	"github.com/lbp/pool-engine/internal/model"
	"github.com/lbp/pool-engine/internal/ratio"
)

// depositEntry is the accumulated deposit of one user for one
// (locking period, day bucket). It is zeroed when migrated or withdrawn.
type depositEntry struct {
	weeks  uint32
	day    int
	amount model.Pair
}

// DepositResult describes an accepted deposit.
type DepositResult struct {
	Matched model.Pair      `json:"matched"`
	Day     int             `json:"day"`
	Ratio   decimal.Decimal `json:"price_ratio_shifted"`
	// NewDepositor is true when this was the user's first deposit.
	NewDepositor bool `json:"new_depositor"`
}

// WithdrawalResult describes an early exit.
type WithdrawalResult struct {
	Refund  model.Pair `json:"refund"`
	Penalty model.Pair `json:"penalty"`
}

// Deposit offers amount0/amount1 for the given locking period. The offer is
// normalized to the current price ratio and only the matched pair is pulled
// from the user.
func (p *Pool) Deposit(ctx context.Context, user common.Address, amount0, amount1 decimal.Decimal, lockingPeriod uint32) (*DepositResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.cfg.Menu.Valid(lockingPeriod) {
		return nil, ErrInvalidLockingPeriod
	}
	now := p.cfg.Now()
	if err := p.requireDepositsOpen(now); err != nil {
		return nil, err
	}
	if ratio.ValidateAmount(amount0) != nil || ratio.ValidateAmount(amount1) != nil {
		return nil, ErrInvalidAmount
	}
	if !amount0.IsPositive() || !amount1.IsPositive() {
		return nil, ErrInsufficientAmounts
	}

	prevRatio, prevUpdate := p.cfg.Prices.Ratio(), p.cfg.Prices.LastUpdate()
	r, refreshed, err := p.cfg.Prices.Current(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("pool: price: %w", err)
	}
	m0, m1 := ratio.Match(amount0, amount1, r)
	if m0.IsZero() {
		p.cfg.Prices.Reset(prevRatio, prevUpdate)
		return nil, ErrInsufficientAmounts
	}

	if err := p.pull(ctx, user, m0, m1); err != nil {
		p.cfg.Prices.Reset(prevRatio, prevUpdate)
		return nil, err
	}

	d := p.dayOf(now)
	_, added := p.users.Add(user)
	e := p.entry(user, lockingPeriod, d)
	e.amount = e.amount.Add(model.Pair{Amount0: m0, Amount1: m1})
	p.updatedAt = now

	if refreshed {
		p.cfg.Logger.Debug("price ratio refreshed", "pool", p.cfg.ID, "ratio", r.String())
	}
	p.cfg.Logger.Info("deposit accepted",
		"pool", p.cfg.ID,
		"user", user.Hex(),
		"locking_period", lockingPeriod,
		"day", d,
		"amount0", m0.String(),
		"amount1", m1.String(),
	)
	return &DepositResult{
		Matched:      model.Pair{Amount0: m0, Amount1: m1},
		Day:          d,
		Ratio:        r,
		NewDepositor: added,
	}, nil
}

// WithdrawWithPenalty returns a deposit record before the window closes,
// minus the early-exit penalty on each side.
func (p *Pool) WithdrawWithPenalty(ctx context.Context, user common.Address, lockingPeriod uint32, dayBucket int) (*WithdrawalResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.cfg.Menu.Valid(lockingPeriod) {
		return nil, ErrInvalidLockingPeriod
	}
	now := p.cfg.Now()
	if err := p.requireDepositsOpen(now); err != nil {
		return nil, err
	}
	if dayBucket < 0 || dayBucket > p.dayOf(now) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDepositDay, dayBucket)
	}
	e := p.find(user, lockingPeriod, dayBucket)
	if e == nil || e.amount.IsZero() {
		return nil, ErrNoDeposit
	}

	held := e.amount
	prevPot := p.penalties.Total()
	refund, penalty := p.penalties.Apply(held, p.cfg.PenaltyBps)
	e.amount = model.Pair{}

	err := chain.Payout(ctx, p.cfg.Ledger, p.cfg.Address, user,
		chain.Leg{Token: p.cfg.Token0, Amount: refund.Amount0},
		chain.Leg{Token: p.cfg.Token1, Amount: refund.Amount1},
	)
	if err != nil {
		e.amount = held
		p.penalties.Restore(prevPot)
		return nil, fmt.Errorf("pool: refund: %w", err)
	}
	p.updatedAt = now

	p.cfg.Logger.Info("deposit withdrawn with penalty",
		"pool", p.cfg.ID,
		"user", user.Hex(),
		"locking_period", lockingPeriod,
		"day", dayBucket,
		"penalty0", penalty.Amount0.String(),
		"penalty1", penalty.Amount1.String(),
	)
	return &WithdrawalResult{Refund: refund, Penalty: penalty}, nil
}

// Deposits returns the live deposit record for (user, lockingPeriod, day).
func (p *Pool) Deposits(user common.Address, lockingPeriod uint32, dayBucket int) model.Pair {
	p.mu.Lock()
	defer p.mu.Unlock()

	if e := p.find(user, lockingPeriod, dayBucket); e != nil {
		return e.amount
	}
	return model.Pair{}
}

// Penalties returns the penalty pot.
func (p *Pool) Penalties() model.Pair {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.penalties.Total()
}

func (p *Pool) requireDepositsOpen(now time.Time) error {
	if err := p.machine.Require(model.PhaseDeposit); err != nil {
		return fmt.Errorf("%w: %w", ErrDepositsClosed, err)
	}
	if !now.Before(p.depositWindowEnd) {
		return ErrDepositsClosed
	}
	return nil
}

// pull moves the matched pair from user to the pool, returning the first
// leg if the second fails.
func (p *Pool) pull(ctx context.Context, user common.Address, m0, m1 decimal.Decimal) error {
	if err := p.cfg.Ledger.Transfer(ctx, p.cfg.Token0, user, p.cfg.Address, m0); err != nil {
		return fmt.Errorf("pool: pull token0: %w", err)
	}
	if err := p.cfg.Ledger.Transfer(ctx, p.cfg.Token1, user, p.cfg.Address, m1); err != nil {
		_ = p.cfg.Ledger.Transfer(ctx, p.cfg.Token0, p.cfg.Address, user, m0)
		return fmt.Errorf("pool: pull token1: %w", err)
	}
	return nil
}

func (p *Pool) dayOf(now time.Time) int {
	if now.Before(p.depositPhaseStart) {
		return 0
	}
	return int(now.Sub(p.depositPhaseStart) / day)
}

func (p *Pool) find(user common.Address, weeks uint32, d int) *depositEntry {
	for _, e := range p.deposits[user] {
		if e.weeks == weeks && e.day == d {
			return e
		}
	}
	return nil
}

func (p *Pool) entry(user common.Address, weeks uint32, d int) *depositEntry {
	if e := p.find(user, weeks, d); e != nil {
		return e
	}
	e := &depositEntry{weeks: weeks, day: d}
	p.deposits[user] = append(p.deposits[user], e)
	return e
}
