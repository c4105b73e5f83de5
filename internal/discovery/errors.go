package discovery

import "github.com/lbp/pool-engine/internal/lifecycle"

var (
	ErrInvalidToken          = lifecycle.NewError(lifecycle.KindInput, "discovery: invalid token")
	ErrInsufficientAmount    = lifecycle.NewError(lifecycle.KindInput, "discovery: insufficient amount")
	ErrInsufficientDeposit   = lifecycle.NewError(lifecycle.KindInput, "discovery: insufficient deposit")
	ErrInsufficientLiquidity = lifecycle.NewError(lifecycle.KindPhase, "discovery: insufficient liquidity")
	ErrAlreadyClaimed        = lifecycle.NewError(lifecycle.KindIdempotency, "discovery: already claimed")
	ErrAlreadyWithdrawn      = lifecycle.NewError(lifecycle.KindIdempotency, "discovery: already withdrawn")
	ErrNothingToClaim        = lifecycle.NewError(lifecycle.KindInput, "discovery: nothing to claim")
	ErrInvalidConfig         = lifecycle.NewError(lifecycle.KindInput, "discovery: invalid config")
)
