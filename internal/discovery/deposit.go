package discovery

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/lbp/pool-engine/internal/chain"
	"github.com/lbp/pool-engine/internal/model"
	"github.com/lbp/pool-engine/internal/pool"
	"github.com/lbp/pool-engine/internal/ratio"
)

// Deposit adds amount of token (either pool asset) to the user's bucket for
// lockingPeriod.
func (p *Pool) Deposit(ctx context.Context, user, token common.Address, amount decimal.Decimal, lockingPeriod uint32) (model.Pair, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.cfg.Menu.Valid(lockingPeriod) {
		return model.Pair{}, pool.ErrInvalidLockingPeriod
	}
	now := p.cfg.Now()
	if err := p.requireDepositsOpen(now); err != nil {
		return model.Pair{}, err
	}
	side, err := p.sideOf(token, amount)
	if err != nil {
		return model.Pair{}, err
	}

	if err := p.cfg.Ledger.Transfer(ctx, token, user, p.cfg.Address, amount); err != nil {
		return model.Pair{}, fmt.Errorf("discovery: pull: %w", err)
	}

	p.users.Add(user)
	b := p.depositOf(user, lockingPeriod)
	*b = b.Add(side)
	p.totals = p.totals.Add(side)
	p.updatedAt = now

	p.cfg.Logger.Info("deposit accepted",
		"pool", p.cfg.ID,
		"user", user.Hex(),
		"token", token.Hex(),
		"locking_period", lockingPeriod,
		"amount", amount.String(),
	)
	return side, nil
}

// WithdrawWithPenalty takes amount of token back out of the user's bucket
// while deposits are open, minus the early-exit penalty.
func (p *Pool) WithdrawWithPenalty(ctx context.Context, user, token common.Address, amount decimal.Decimal, lockingPeriod uint32) (*pool.WithdrawalResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.cfg.Menu.Valid(lockingPeriod) {
		return nil, pool.ErrInvalidLockingPeriod
	}
	now := p.cfg.Now()
	if err := p.requireDepositsOpen(now); err != nil {
		return nil, err
	}
	side, err := p.sideOf(token, amount)
	if err != nil {
		return nil, err
	}
	b := p.deposits[user][lockingPeriod]
	if b == nil || b.Amount0.LessThan(side.Amount0) || b.Amount1.LessThan(side.Amount1) {
		return nil, ErrInsufficientDeposit
	}

	held := *b
	prevPot := p.penalties.Total()
	refund, penalty := p.penalties.Apply(side, p.cfg.PenaltyBps)
	*b = b.Sub(side)
	p.totals = p.totals.Sub(side)

	err = chain.Payout(ctx, p.cfg.Ledger, p.cfg.Address, user,
		chain.Leg{Token: p.cfg.Token0, Amount: refund.Amount0},
		chain.Leg{Token: p.cfg.Token1, Amount: refund.Amount1},
	)
	if err != nil {
		*b = held
		p.totals = p.totals.Add(side)
		p.penalties.Restore(prevPot)
		return nil, fmt.Errorf("discovery: refund: %w", err)
	}
	p.updatedAt = now

	p.cfg.Logger.Info("deposit withdrawn with penalty",
		"pool", p.cfg.ID,
		"user", user.Hex(),
		"token", token.Hex(),
		"locking_period", lockingPeriod,
		"refund0", refund.Amount0.String(),
		"refund1", refund.Amount1.String(),
	)
	return &pool.WithdrawalResult{Refund: refund, Penalty: penalty}, nil
}

// Deposits returns the user's live deposit for lockingPeriod.
func (p *Pool) Deposits(user common.Address, lockingPeriod uint32) model.Pair {
	p.mu.Lock()
	defer p.mu.Unlock()

	if b := p.deposits[user][lockingPeriod]; b != nil {
		return *b
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
		return fmt.Errorf("%w: %w", pool.ErrDepositsClosed, err)
	}
	if !now.Before(p.depositWindowEnd) {
		return pool.ErrDepositsClosed
	}
	return nil
}

// sideOf validates a single-sided amount and places it on its side.
func (p *Pool) sideOf(token common.Address, amount decimal.Decimal) (model.Pair, error) {
	if token != p.cfg.Token0 && token != p.cfg.Token1 {
		return model.Pair{}, ErrInvalidToken
	}
	if ratio.ValidateAmount(amount) != nil {
		return model.Pair{}, pool.ErrInvalidAmount
	}
	if !amount.IsPositive() {
		return model.Pair{}, ErrInsufficientAmount
	}
	if token == p.cfg.Token0 {
		return model.Pair{Amount0: amount, Amount1: decimal.Zero}, nil
	}
	return model.Pair{Amount0: decimal.Zero, Amount1: amount}, nil
}

func (p *Pool) depositOf(user common.Address, weeks uint32) *model.Pair {
	byPeriod := p.deposits[user]
	if byPeriod == nil {
		byPeriod = make(map[uint32]*model.Pair)
		p.deposits[user] = byPeriod
	}
	b := byPeriod[weeks]
	if b == nil {
		b = &model.Pair{Amount0: decimal.Zero, Amount1: decimal.Zero}
		byPeriod[weeks] = b
	}
	return b
}
