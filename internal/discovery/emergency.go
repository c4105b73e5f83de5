package discovery

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/lbp/pool-engine/internal/chain"
	"github.com/lbp/pool-engine/internal/model"
	"github.com/lbp/pool-engine/internal/pool"
)

// EmergencyStop freezes every entry point except resume and rescue.
func (p *Pool) EmergencyStop(caller common.Address) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.machine.Stop(caller); err != nil {
		return err
	}
	p.updatedAt = p.cfg.Now()
	p.cfg.Logger.Warn("emergency stop",
		"pool", p.cfg.ID,
		"stopped_from", p.machine.StoppedFrom().String(),
	)
	return nil
}

// EmergencyResume releases the stop into target.
func (p *Pool) EmergencyResume(caller common.Address, target model.Phase) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.machine.Resume(caller, target); err != nil {
		return err
	}
	p.updatedAt = p.cfg.Now()
	p.cfg.Logger.Warn("emergency resume", "pool", p.cfg.ID, "phase", target.String())
	return nil
}

// EmergencyRescueFunds sweeps every balance the pool holds to the admin and
// zeroes the counters that tracked them.
func (p *Pool) EmergencyRescueFunds(ctx context.Context, caller common.Address) (pool.Rescue, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.machine.RequireStoppedAdmin(caller); err != nil {
		return nil, err
	}

	swept := make(pool.Rescue, 4)
	var legs []chain.Leg
	for _, token := range []common.Address{p.cfg.Token0, p.cfg.Token1, p.cfg.RewardToken, p.cfg.LpToken} {
		if token == (common.Address{}) {
			continue
		}
		if _, dup := swept[token]; dup {
			continue
		}
		bal, err := p.cfg.Ledger.BalanceOf(ctx, token, p.cfg.Address)
		if err != nil {
			return nil, fmt.Errorf("discovery: rescue balance: %w", err)
		}
		swept[token] = bal
		legs = append(legs, chain.Leg{Token: token, Amount: bal})
	}
	if err := chain.Payout(ctx, p.cfg.Ledger, p.cfg.Address, p.machine.Admin(), legs...); err != nil {
		return nil, fmt.Errorf("discovery: rescue: %w", err)
	}

	p.penalties.Reset()
	p.deposits = make(map[common.Address]map[uint32]*model.Pair)
	p.totals = model.Pair{}
	p.rewardAllocation = decimal.Zero
	p.totalLpTokens = decimal.Zero
	p.updatedAt = p.cfg.Now()

	p.cfg.Logger.Warn("emergency rescue", "pool", p.cfg.ID, "admin", caller.Hex(), "tokens", len(legs))
	return swept, nil
}
