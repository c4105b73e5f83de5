package pool

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/lbp/pool-engine/internal/chain"
	"github.com/lbp/pool-engine/internal/model"
)

// Rescue lists the balances swept to the admin, by token.
type Rescue map[common.Address]decimal.Decimal

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

// EmergencyResume releases the stop into target. No state is rebuilt; the
// admin is trusted to pick a phase consistent with the pool's ledgers.
func (p *Pool) EmergencyResume(caller common.Address, target model.Phase) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.machine.Resume(caller, target); err != nil {
		return err
	}
	p.updatedAt = p.cfg.Now()
	p.cfg.Logger.Warn("emergency resume",
		"pool", p.cfg.ID,
		"phase", target.String(),
	)
	return nil
}

// EmergencyRescueFunds sweeps every balance the pool holds to the admin and
// zeroes the counters that tracked them. The pool is not meant to be used
// normally afterwards.
func (p *Pool) EmergencyRescueFunds(ctx context.Context, caller common.Address) (Rescue, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.machine.RequireStoppedAdmin(caller); err != nil {
		return nil, err
	}

	tokens := []common.Address{p.cfg.Token0, p.cfg.Token1, p.cfg.RewardToken, p.cfg.LpToken}
	swept := make(Rescue, len(tokens))
	var legs []chain.Leg
	for _, token := range tokens {
		if token == (common.Address{}) {
			continue
		}
		if _, dup := swept[token]; dup {
			continue
		}
		bal, err := p.cfg.Ledger.BalanceOf(ctx, token, p.cfg.Address)
		if err != nil {
			return nil, fmt.Errorf("pool: rescue balance: %w", err)
		}
		swept[token] = bal
		legs = append(legs, chain.Leg{Token: token, Amount: bal})
	}
	if err := chain.Payout(ctx, p.cfg.Ledger, p.cfg.Address, p.machine.Admin(), legs...); err != nil {
		return nil, fmt.Errorf("pool: rescue: %w", err)
	}

	p.penalties.Reset()
	p.unclaimedLeftover = model.Pair{}
	p.leftovers = make(map[common.Address]*leftoverEntry)
	p.deposits = make(map[common.Address][]*depositEntry)
	p.rewardAllocation = decimal.Zero
	p.totalLpTokens = decimal.Zero
	p.updatedAt = p.cfg.Now()

	args := []any{"pool", p.cfg.ID, "admin", caller.Hex()}
	for token, amount := range swept {
		args = append(args, token.Hex(), amount.String())
	}
	p.cfg.Logger.Warn("emergency rescue", args...)
	return swept, nil
}
