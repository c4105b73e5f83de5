package pool

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/lbp/pool-engine/internal/model"
	"github.com/lbp/pool-engine/internal/ratio"
)

// BatchResult describes one TransferToRealPool call.
type BatchResult struct {
	Processed int             `json:"processed"`
	Remaining int             `json:"remaining"`
	Matched   model.Pair      `json:"matched"`
	Shares    decimal.Decimal `json:"shares"`
	Completed bool            `json:"completed"`
}

// migration is the planned outcome for one deposit record.
type migration struct {
	user     common.Address
	entry    *depositEntry
	matched  model.Pair
	leftover model.Pair
	weight   decimal.Decimal
}

// TransferToRealPool migrates the deposits of up to n depositors into the
// AMM pair, starting at the cursor. Each record is re-matched at the frozen
// ratio; the matched sums of the chunk go to the router in one call.
// When the cursor passes the last depositor the pool is Completed.
func (p *Pool) TransferToRealPool(ctx context.Context, n int) (*BatchResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if n <= 0 {
		return nil, ErrInvalidTransfersNumber
	}
	if err := p.machine.Require(model.PhaseTransfer); err != nil {
		return nil, err
	}

	// Clamp against what is left so a huge n cannot overflow the cursor.
	start := p.cursor
	end := p.users.Len()
	if n < end-start {
		end = start + n
	}

	plan, matched, err := p.planBatch(start, end)
	if err != nil {
		return nil, &TransferError{Cursor: start, Err: err}
	}

	shares := decimal.Zero
	if matched.Amount0.IsPositive() {
		shares, err = p.cfg.Router.AddLiquidity(ctx, p.cfg.Token0, p.cfg.Token1,
			matched.Amount0, matched.Amount1, p.cfg.Address, p.cfg.Address)
		if err != nil {
			p.cfg.Logger.Warn("batch transfer failed",
				"pool", p.cfg.ID,
				"cursor", start,
				"error", err,
			)
			return nil, &TransferError{Cursor: start, Err: err}
		}
	}

	for _, m := range plan {
		m.entry.amount = model.Pair{}
		if !m.leftover.IsZero() {
			lo := p.leftoverOf(m.user)
			lo.amount = lo.amount.Add(m.leftover)
			p.unclaimedLeftover = p.unclaimedLeftover.Add(m.leftover)
		}
		if m.weight.IsPositive() {
			v := p.vestingOf(m.user, m.entry.weeks)
			v.weight = v.weight.Add(m.weight)
			p.totalWeight = p.totalWeight.Add(m.weight)
		}
	}
	p.transferred = p.transferred.Add(matched)
	p.totalLpTokens = p.totalLpTokens.Add(shares)
	p.cursor = end
	p.updatedAt = p.cfg.Now()

	res := &BatchResult{
		Processed: end - start,
		Remaining: p.users.Len() - end,
		Matched:   matched,
		Shares:    shares,
	}
	if end == p.users.Len() {
		if err := p.machine.Advance(model.PhaseTransfer, model.PhaseCompleted); err != nil {
			return nil, err
		}
		res.Completed = true
		p.cfg.Logger.Info("pool completed",
			"pool", p.cfg.ID,
			"total_lp_tokens", p.totalLpTokens.String(),
			"total_weight", p.totalWeight.String(),
		)
	}

	p.cfg.Logger.Info("batch transferred",
		"pool", p.cfg.ID,
		"from", start,
		"to", end,
		"amount0", matched.Amount0.String(),
		"amount1", matched.Amount1.String(),
		"shares", shares.String(),
	)
	return res, nil
}

// planBatch computes the migration of depositors [start, end) without
// touching pool state.
func (p *Pool) planBatch(start, end int) ([]migration, model.Pair, error) {
	r := p.frozenRatio
	var (
		plan    []migration
		matched model.Pair
	)
	for i := start; i < end; i++ {
		user := p.users.At(i)
		for _, e := range p.deposits[user] {
			if e.amount.IsZero() {
				continue
			}
			period, err := p.cfg.Menu.Lookup(e.weeks)
			if err != nil {
				return nil, model.Pair{}, err
			}
			m0, m1 := ratio.Match(e.amount.Amount0, e.amount.Amount1, r)
			m := migration{
				user:     user,
				entry:    e,
				matched:  model.Pair{Amount0: m0, Amount1: m1},
				leftover: e.amount.Sub(model.Pair{Amount0: m0, Amount1: m1}),
				weight:   m0.Mul(decimal.NewFromInt(period.BonusX10000)),
			}
			plan = append(plan, m)
			matched = matched.Add(m.matched)
		}
	}
	return plan, matched, nil
}
