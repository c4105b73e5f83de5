package chain

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Leg is one token movement of a multi-token payout.
type Leg struct {
	Token  common.Address
	Amount decimal.Decimal
}

// Payout moves every leg from `from` to `to`. Balances are checked for all
// legs before anything moves; if a transfer still fails, the legs already
// sent are returned so the payout has no effect.
func Payout(ctx context.Context, ledger TokenLedger, from, to common.Address, legs ...Leg) error {
	need := make(map[common.Address]decimal.Decimal, len(legs))
	for _, leg := range legs {
		if leg.Amount.IsNegative() {
			return ErrInvalidAmount
		}
		if leg.Amount.IsPositive() {
			need[leg.Token] = need[leg.Token].Add(leg.Amount)
		}
	}
	for token, amount := range need {
		bal, err := ledger.BalanceOf(ctx, token, from)
		if err != nil {
			return fmt.Errorf("balance of %s: %w", token.Hex(), err)
		}
		if bal.LessThan(amount) {
			return fmt.Errorf("%w: %s holds %s of %s, owes %s",
				ErrInsufficientBalance, from.Hex(), bal, token.Hex(), amount)
		}
	}

	for i, leg := range legs {
		if !leg.Amount.IsPositive() {
			continue
		}
		if err := ledger.Transfer(ctx, leg.Token, from, to, leg.Amount); err != nil {
			for j := i - 1; j >= 0; j-- {
				if legs[j].Amount.IsPositive() {
					_ = ledger.Transfer(ctx, legs[j].Token, to, from, legs[j].Amount)
				}
			}
			return fmt.Errorf("transfer %s: %w", leg.Token.Hex(), err)
		}
	}
	return nil
}
