// Package chain defines the external collaborators a pool talks to: the
// fungible-token ledger, the AMM router that mints pool shares, and price
// feeds. Memory implementations back the development server and tests.
package chain

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

var (
	ErrInsufficientBalance = errors.New("chain: insufficient balance")
	ErrInvalidAmount       = errors.New("chain: amount must be positive")
	ErrPairNotFound        = errors.New("chain: pair not found")
	ErrPairExists          = errors.New("chain: pair already exists")
	ErrNoAnswer            = errors.New("chain: feed has no answer")
)

// TokenLedger moves fungible tokens between accounts. The pool only ever
// moves its own funds or funds a depositor has authorised.
type TokenLedger interface {
	Transfer(ctx context.Context, token, from, to common.Address, amount decimal.Decimal) error
	BalanceOf(ctx context.Context, token, owner common.Address) (decimal.Decimal, error)
}

// Router is the AMM boundary: it holds reserves and mints liquidity shares.
type Router interface {
	// GetPair returns the share token of the pool for the token pair.
	GetPair(token0, token1 common.Address) (common.Address, bool)

	// AddLiquidity pulls amount0/amount1 from `from`, adds them to the pair
	// reserves and mints shares to `to`. It returns the shares minted.
	AddLiquidity(ctx context.Context, token0, token1 common.Address,
		amount0, amount1 decimal.Decimal, from, to common.Address) (decimal.Decimal, error)
}

// PriceFeed returns a scaled price for one asset. All feeds wired to the
// same pool must share decimals.
type PriceFeed interface {
	LatestAnswer(ctx context.Context) (answer decimal.Decimal, updatedAt time.Time, err error)
}
