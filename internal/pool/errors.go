package pool

import (
	"fmt"

	"github.com/lbp/pool-engine/internal/lifecycle"
)

var (
	ErrDepositsClosed         = lifecycle.NewError(lifecycle.KindPhase, "pool: deposits closed")
	ErrInvalidLockingPeriod   = lifecycle.NewError(lifecycle.KindInput, "pool: invalid locking period")
	ErrInvalidDepositDay      = lifecycle.NewError(lifecycle.KindInput, "pool: invalid deposit day")
	ErrInsufficientAmounts    = lifecycle.NewError(lifecycle.KindInput, "pool: insufficient amounts")
	ErrInvalidAmount          = lifecycle.NewError(lifecycle.KindInput, "pool: invalid amount")
	ErrNoDeposit              = lifecycle.NewError(lifecycle.KindInput, "pool: no deposit")
	ErrInvalidTransfersNumber = lifecycle.NewError(lifecycle.KindInput, "pool: transfers number must be positive")
	ErrInvalidConfig          = lifecycle.NewError(lifecycle.KindInput, "pool: invalid config")
)

// TransferError reports a failed batch. Cursor is the first depositor index
// of the chunk that was rejected; the pool is unchanged and the chunk can be
// retried.
type TransferError struct {
	Cursor int
	Err    error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("pool: batch at cursor %d failed: %v", e.Cursor, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }
