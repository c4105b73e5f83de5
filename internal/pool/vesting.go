package pool

import (
	"context"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/lbp/pool-engine/internal/chain"
	"github.com/lbp/pool-engine/internal/lifecycle"
	"github.com/lbp/pool-engine/internal/model"
	"github.com/lbp/pool-engine/internal/ratio"
)

// vestingEntry is a user's bonus-weighted contribution for one locking
// period, and how many LP shares have been paid against it.
type vestingEntry struct {
	weight    decimal.Decimal
	withdrawn decimal.Decimal
}

// leftoverEntry holds the unmatched residue of a user's migrated deposits
// and whether the reward share has been paid.
type leftoverEntry struct {
	amount        model.Pair
	rewardClaimed bool
}

// LpWithdrawal describes a WithdrawLpTokens call.
type LpWithdrawal struct {
	Shares    decimal.Decimal `json:"shares"`
	Entitled  decimal.Decimal `json:"entitled"`
	Withdrawn decimal.Decimal `json:"withdrawn"`
}

// Claim describes a ClaimLeftovers call.
type Claim struct {
	Leftover model.Pair      `json:"leftover"`
	Reward   decimal.Decimal `json:"reward"`
}

// WithdrawLpTokens pays the user's LP shares for one locking period once the
// lock has elapsed since the transfer phase started. Later calls for the
// same bucket succeed and pay nothing.
func (p *Pool) WithdrawLpTokens(ctx context.Context, user common.Address, lockingPeriod uint32) (*LpWithdrawal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	period, err := p.cfg.Menu.Lookup(lockingPeriod)
	if err != nil {
		return nil, ErrInvalidLockingPeriod
	}
	if err := p.machine.Require(model.PhaseCompleted); err != nil {
		return nil, err
	}
	now := p.cfg.Now()
	unlock := p.transferPhaseStart.Add(period.Duration)
	if now.Before(unlock) {
		return nil, fmt.Errorf("%w: unlocks at %s", lifecycle.ErrTooEarly, unlock.UTC())
	}

	v := p.vesting[user][lockingPeriod]
	if v == nil {
		return &LpWithdrawal{Shares: decimal.Zero, Entitled: decimal.Zero, Withdrawn: decimal.Zero}, nil
	}
	entitled := ratio.Share(p.totalLpTokens, v.weight, p.totalWeight)
	pay := entitled.Sub(v.withdrawn)
	if !pay.IsPositive() {
		return &LpWithdrawal{Shares: decimal.Zero, Entitled: entitled, Withdrawn: v.withdrawn}, nil
	}

	prev := v.withdrawn
	v.withdrawn = entitled
	if err := chain.Payout(ctx, p.cfg.Ledger, p.cfg.Address, user,
		chain.Leg{Token: p.cfg.LpToken, Amount: pay}); err != nil {
		v.withdrawn = prev
		return nil, fmt.Errorf("pool: pay lp shares: %w", err)
	}
	p.updatedAt = now

	p.cfg.Logger.Info("lp tokens withdrawn",
		"pool", p.cfg.ID,
		"user", user.Hex(),
		"locking_period", lockingPeriod,
		"shares", pay.String(),
	)
	return &LpWithdrawal{Shares: pay, Entitled: entitled, Withdrawn: v.withdrawn}, nil
}

// ClaimLeftovers pays the unmatched residue of the user's deposits together
// with the user's share of the reward allocation. A second call pays nothing.
func (p *Pool) ClaimLeftovers(ctx context.Context, user common.Address) (*Claim, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.machine.Require(model.PhaseCompleted); err != nil {
		return nil, err
	}

	lo := p.leftovers[user]
	claim := &Claim{Reward: p.rewardOf(user)}
	if lo != nil {
		claim.Leftover = lo.amount
	}
	if claim.Leftover.IsZero() && !claim.Reward.IsPositive() {
		return &Claim{Reward: decimal.Zero}, nil
	}

	lo = p.leftoverOf(user)
	prev := *lo
	lo.amount = model.Pair{}
	lo.rewardClaimed = true
	p.unclaimedLeftover = p.unclaimedLeftover.Sub(claim.Leftover)

	err := chain.Payout(ctx, p.cfg.Ledger, p.cfg.Address, user,
		chain.Leg{Token: p.cfg.Token0, Amount: claim.Leftover.Amount0},
		chain.Leg{Token: p.cfg.Token1, Amount: claim.Leftover.Amount1},
		chain.Leg{Token: p.cfg.RewardToken, Amount: claim.Reward},
	)
	if err != nil {
		*lo = prev
		p.unclaimedLeftover = p.unclaimedLeftover.Add(claim.Leftover)
		return nil, fmt.Errorf("pool: pay leftovers: %w", err)
	}
	p.updatedAt = p.cfg.Now()

	p.cfg.Logger.Info("leftovers claimed",
		"pool", p.cfg.ID,
		"user", user.Hex(),
		"amount0", claim.Leftover.Amount0.String(),
		"amount1", claim.Leftover.Amount1.String(),
		"reward", claim.Reward.String(),
	)
	return claim, nil
}

// ViewLeftovers returns the unclaimed residue owed to user.
func (p *Pool) ViewLeftovers(user common.Address) model.Pair {
	p.mu.Lock()
	defer p.mu.Unlock()

	if lo := p.leftovers[user]; lo != nil {
		return lo.amount
	}
	return model.Pair{}
}

// ViewRewardTokens returns the unclaimed reward share of user.
func (p *Pool) ViewRewardTokens(user common.Address) decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rewardOf(user)
}

// ViewLpTokens returns the LP shares user is entitled to for lockingPeriod
// and how many of them were already withdrawn.
func (p *Pool) ViewLpTokens(user common.Address, lockingPeriod uint32) (entitled, withdrawn decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()

	v := p.vesting[user][lockingPeriod]
	if v == nil {
		return decimal.Zero, decimal.Zero
	}
	return ratio.Share(p.totalLpTokens, v.weight, p.totalWeight), v.withdrawn
}

// Position returns everything the pool holds or owes for user.
func (p *Pool) Position(user common.Address) model.UserPosition {
	p.mu.Lock()
	defer p.mu.Unlock()

	pos := model.UserPosition{
		PoolID:   p.cfg.ID,
		User:     user.Hex(),
		Deposits: []model.DepositPosition{},
		Buckets:  []model.BucketPosition{},
		Reward:   p.rewardOf(user),
	}
	for _, e := range p.deposits[user] {
		if e.amount.IsZero() {
			continue
		}
		pos.Deposits = append(pos.Deposits, model.DepositPosition{
			LockingPeriod: e.weeks,
			Day:           e.day,
			Amount0:       e.amount.Amount0,
			Amount1:       e.amount.Amount1,
		})
	}
	if lo := p.leftovers[user]; lo != nil {
		pos.Leftover0 = lo.amount.Amount0
		pos.Leftover1 = lo.amount.Amount1
	}
	for weeks, v := range p.vesting[user] {
		b := model.BucketPosition{
			LockingPeriod: weeks,
			Weight:        v.weight,
			Entitled:      ratio.Share(p.totalLpTokens, v.weight, p.totalWeight),
			Withdrawn:     v.withdrawn,
		}
		if period, err := p.cfg.Menu.Lookup(weeks); err == nil && !p.transferPhaseStart.IsZero() {
			b.UnlockAt = p.transferPhaseStart.Add(period.Duration)
		}
		pos.Buckets = append(pos.Buckets, b)
	}
	sort.Slice(pos.Buckets, func(i, j int) bool {
		return pos.Buckets[i].LockingPeriod < pos.Buckets[j].LockingPeriod
	})
	return pos
}

func (p *Pool) rewardOf(user common.Address) decimal.Decimal {
	if lo := p.leftovers[user]; lo != nil && lo.rewardClaimed {
		return decimal.Zero
	}
	return ratio.Share(p.rewardAllocation, p.weightOf(user), p.totalWeight)
}

func (p *Pool) weightOf(user common.Address) decimal.Decimal {
	w := decimal.Zero
	for _, v := range p.vesting[user] {
		w = w.Add(v.weight)
	}
	return w
}

func (p *Pool) leftoverOf(user common.Address) *leftoverEntry {
	lo := p.leftovers[user]
	if lo == nil {
		lo = &leftoverEntry{}
		p.leftovers[user] = lo
	}
	return lo
}

func (p *Pool) vestingOf(user common.Address, weeks uint32) *vestingEntry {
	byPeriod := p.vesting[user]
	if byPeriod == nil {
		byPeriod = make(map[uint32]*vestingEntry)
		p.vesting[user] = byPeriod
	}
	v := byPeriod[weeks]
	if v == nil {
		v = &vestingEntry{}
		byPeriod[weeks] = v
	}
	return v
}
