package discovery

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/lbp/pool-engine/internal/chain"
	"github.com/lbp/pool-engine/internal/model"
	"github.com/lbp/pool-engine/internal/pool"
	"github.com/lbp/pool-engine/internal/ratio"
)

// bucket is a user's vesting position for one locking period.
type bucket struct {
	weight    decimal.Decimal
	duration  time.Duration
	withdrawn decimal.Decimal
	settled   bool
}

// LpRelease describes a WithdrawLpTokens call.
type LpRelease struct {
	Shares    decimal.Decimal `json:"shares"`
	Entitled  decimal.Decimal `json:"entitled"`
	Withdrawn decimal.Decimal `json:"withdrawn"`
}

// TransferToRealPool adds every deposit to the AMM pair in one call and
// completes the pool. Each bucket is weighted by its value in Token1 at the
// discovered ratio times its bonus.
func (p *Pool) TransferToRealPool(ctx context.Context) (*pool.BatchResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.machine.Require(model.PhaseTransfer); err != nil {
		return nil, err
	}

	weights := make(map[common.Address]map[uint32]*bucket, p.users.Len())
	total := decimal.Zero
	for i := 0; i < p.users.Len(); i++ {
		user := p.users.At(i)
		for weeks, d := range p.deposits[user] {
			if d.IsZero() {
				continue
			}
			period, err := p.cfg.Menu.Lookup(weeks)
			if err != nil {
				return nil, &pool.TransferError{Cursor: i, Err: err}
			}
			w := weight(*d, p.totals, period.BonusX10000)
			if !w.IsPositive() {
				continue
			}
			if weights[user] == nil {
				weights[user] = make(map[uint32]*bucket)
			}
			weights[user][weeks] = &bucket{weight: w, duration: period.Duration, withdrawn: decimal.Zero}
			total = total.Add(w)
		}
	}

	shares, err := p.cfg.Router.AddLiquidity(ctx, p.cfg.Token0, p.cfg.Token1,
		p.totals.Amount0, p.totals.Amount1, p.cfg.Address, p.cfg.Address)
	if err != nil {
		p.cfg.Logger.Warn("transfer failed", "pool", p.cfg.ID, "error", err)
		return nil, &pool.TransferError{Cursor: 0, Err: err}
	}
	if err := p.machine.Advance(model.PhaseTransfer, model.PhaseCompleted); err != nil {
		return nil, err
	}

	matched := p.totals
	for _, byPeriod := range p.deposits {
		for _, d := range byPeriod {
			*d = model.Pair{}
		}
	}
	p.vesting = weights
	p.totalWeight = total
	p.totalLpTokens = shares
	p.transferred = matched
	p.totals = model.Pair{}
	p.updatedAt = p.cfg.Now()

	p.cfg.Logger.Info("pool completed",
		"pool", p.cfg.ID,
		"amount0", matched.Amount0.String(),
		"amount1", matched.Amount1.String(),
		"shares", shares.String(),
	)
	return &pool.BatchResult{
		Processed: p.users.Len(),
		Remaining: 0,
		Matched:   matched,
		Shares:    shares,
		Completed: true,
	}, nil
}

// weight values a deposit in Token1 at the ratio of totals, times bonus.
func weight(d, totals model.Pair, bonusX10000 int64) decimal.Decimal {
	bonus := decimal.NewFromInt(bonusX10000)
	w0 := ratio.MulDiv(d.Amount0.Mul(bonus), totals.Amount1, totals.Amount0)
	return w0.Add(d.Amount1.Mul(bonus))
}

// WithdrawLpTokens pays every newly vested share across the user's buckets.
// A bucket releases InitialReleaseBps at completion and the rest linearly
// over its lock. Once every bucket is fully paid, further calls fail.
func (p *Pool) WithdrawLpTokens(ctx context.Context, user common.Address) (*LpRelease, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.machine.Require(model.PhaseCompleted); err != nil {
		return nil, err
	}
	buckets := p.vesting[user]
	if len(buckets) == 0 {
		return nil, pool.ErrNoDeposit
	}
	now := p.cfg.Now()

	type update struct {
		b         *bucket
		withdrawn decimal.Decimal
		settled   bool
	}
	var (
		updates  []update
		pay      = decimal.Zero
		entitled = decimal.Zero
		open     = false
	)
	for _, b := range buckets {
		e := ratio.Share(p.totalLpTokens, b.weight, p.totalWeight)
		entitled = entitled.Add(e)
		if b.settled {
			continue
		}
		open = true
		vested, full := p.vested(e, b.duration, now)
		if d := vested.Sub(b.withdrawn); d.IsPositive() {
			pay = pay.Add(d)
		}
		updates = append(updates, update{b: b, withdrawn: vested, settled: full})
	}
	if !open {
		return nil, ErrAlreadyWithdrawn
	}

	prev := make([]bucket, len(updates))
	for i, u := range updates {
		prev[i] = *u.b
		if u.withdrawn.GreaterThan(u.b.withdrawn) {
			u.b.withdrawn = u.withdrawn
		}
		u.b.settled = u.settled
	}
	if err := chain.Payout(ctx, p.cfg.Ledger, p.cfg.Address, user,
		chain.Leg{Token: p.cfg.LpToken, Amount: pay}); err != nil {
		for i, u := range updates {
			*u.b = prev[i]
		}
		return nil, fmt.Errorf("discovery: pay lp shares: %w", err)
	}
	p.updatedAt = now

	withdrawn := decimal.Zero
	for _, b := range buckets {
		withdrawn = withdrawn.Add(b.withdrawn)
	}
	if pay.IsPositive() {
		p.cfg.Logger.Info("lp tokens released",
			"pool", p.cfg.ID,
			"user", user.Hex(),
			"shares", pay.String(),
		)
	}
	return &LpRelease{Shares: pay, Entitled: entitled, Withdrawn: withdrawn}, nil
}

// vested returns how much of entitled is released at now and whether all of
// it is.
func (p *Pool) vested(entitled decimal.Decimal, lock time.Duration, now time.Time) (decimal.Decimal, bool) {
	elapsed := now.Sub(p.transferPhaseStart)
	if lock <= 0 || elapsed >= lock {
		return entitled, true
	}
	if elapsed < 0 {
		elapsed = 0
	}
	initial := p.cfg.InitialReleaseBps
	// entitled * (initial*lock + (10000-initial)*elapsed) / (10000*lock)
	num := decimal.NewFromInt(initial).Mul(decimal.NewFromInt(int64(lock))).
		Add(decimal.NewFromInt(ratio.BasisPoints - initial).Mul(decimal.NewFromInt(int64(elapsed))))
	den := decimal.NewFromInt(ratio.BasisPoints).Mul(decimal.NewFromInt(int64(lock)))
	return ratio.MulDiv(entitled, num, den), false
}

// ClaimRewards pays the user's share of the reward allocation, once.
func (p *Pool) ClaimRewards(ctx context.Context, user common.Address) (decimal.Decimal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.machine.Require(model.PhaseCompleted); err != nil {
		return decimal.Zero, err
	}
	if p.claimed[user] {
		return decimal.Zero, ErrAlreadyClaimed
	}
	w := p.weightOf(user)
	if !w.IsPositive() {
		return decimal.Zero, ErrNothingToClaim
	}
	amount := ratio.Share(p.rewardAllocation, w, p.totalWeight)

	p.claimed[user] = true
	if err := chain.Payout(ctx, p.cfg.Ledger, p.cfg.Address, user,
		chain.Leg{Token: p.cfg.RewardToken, Amount: amount}); err != nil {
		delete(p.claimed, user)
		return decimal.Zero, fmt.Errorf("discovery: pay reward: %w", err)
	}
	p.updatedAt = p.cfg.Now()

	p.cfg.Logger.Info("rewards claimed",
		"pool", p.cfg.ID,
		"user", user.Hex(),
		"reward", amount.String(),
	)
	return amount, nil
}

// ViewRewardTokens returns the unclaimed reward share of user.
func (p *Pool) ViewRewardTokens(user common.Address) decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.claimed[user] {
		return decimal.Zero
	}
	return ratio.Share(p.rewardAllocation, p.weightOf(user), p.totalWeight)
}

// ViewLpTokens returns the shares user is entitled to in total, how many
// are vested now and how many were already withdrawn.
func (p *Pool) ViewLpTokens(user common.Address) (entitled, vested, withdrawn decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entitled, vested, withdrawn = decimal.Zero, decimal.Zero, decimal.Zero
	now := p.cfg.Now()
	for _, b := range p.vesting[user] {
		e := ratio.Share(p.totalLpTokens, b.weight, p.totalWeight)
		v, _ := p.vested(e, b.duration, now)
		entitled = entitled.Add(e)
		vested = vested.Add(v)
		withdrawn = withdrawn.Add(b.withdrawn)
	}
	return entitled, vested, withdrawn
}

// Position returns everything the pool holds or owes for user.
func (p *Pool) Position(user common.Address) model.UserPosition {
	p.mu.Lock()
	defer p.mu.Unlock()

	pos := model.UserPosition{
		PoolID:    p.cfg.ID,
		User:      user.Hex(),
		Deposits:  []model.DepositPosition{},
		Buckets:   []model.BucketPosition{},
		Leftover0: decimal.Zero,
		Leftover1: decimal.Zero,
	}
	if !p.claimed[user] {
		pos.Reward = ratio.Share(p.rewardAllocation, p.weightOf(user), p.totalWeight)
	}
	for weeks, d := range p.deposits[user] {
		if d.IsZero() {
			continue
		}
		pos.Deposits = append(pos.Deposits, model.DepositPosition{
			LockingPeriod: weeks,
			Amount0:       d.Amount0,
			Amount1:       d.Amount1,
		})
	}
	for weeks, b := range p.vesting[user] {
		pos.Buckets = append(pos.Buckets, model.BucketPosition{
			LockingPeriod: weeks,
			UnlockAt:      p.transferPhaseStart.Add(b.duration),
			Weight:        b.weight,
			Entitled:      ratio.Share(p.totalLpTokens, b.weight, p.totalWeight),
			Withdrawn:     b.withdrawn,
		})
	}
	sort.Slice(pos.Deposits, func(i, j int) bool {
		return pos.Deposits[i].LockingPeriod < pos.Deposits[j].LockingPeriod
	})
	sort.Slice(pos.Buckets, func(i, j int) bool {
		return pos.Buckets[i].LockingPeriod < pos.Buckets[j].LockingPeriod
	})
	return pos
}

func (p *Pool) weightOf(user common.Address) decimal.Decimal {
	w := decimal.Zero
	for _, b := range p.vesting[user] {
		w = w.Add(b.weight)
	}
	return w
}
