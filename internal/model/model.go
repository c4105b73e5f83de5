// Package model defines the core domain types shared across the pool engine.
// All token amounts use shopspring/decimal holding whole base units; never
// float64 for money.
package model

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Phase is the lifecycle state of a pool. Numeric values are part of the
// external contract.
type Phase uint8

const (
	PhaseCreated Phase = iota
	PhaseDeposit
	PhaseTransfer
	PhaseCompleted
	PhaseEmergencyStopped
)

func (p Phase) String() string {
	switch p {
	case PhaseCreated:
		return "created"
	case PhaseDeposit:
		return "deposit"
	case PhaseTransfer:
		return "transfer"
	case PhaseCompleted:
		return "completed"
	case PhaseEmergencyStopped:
		return "emergency_stopped"
	default:
		return fmt.Sprintf("phase(%d)", uint8(p))
	}
}

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool { return p <= PhaseEmergencyStopped }

// Variant distinguishes the two pool flavours.
const (
	VariantIntermediate = "intermediate"
	VariantDiscovery    = "discovery"
)

// Event kinds recorded in the journal.
const (
	EventPoolCreated       = "pool_created"
	EventDepositPhase      = "deposit_phase"
	EventTransferPhase     = "transfer_phase"
	EventDeposit           = "deposit"
	EventPenaltyWithdrawal = "penalty_withdrawal"
	EventBatchTransfer     = "batch_transfer"
	EventLpWithdrawal      = "lp_withdrawal"
	EventLeftoverClaim     = "leftover_claim"
	EventRewardClaim       = "reward_claim"
	EventEmergencyStop     = "emergency_stop"
	EventEmergencyResume   = "emergency_resume"
	EventEmergencyRescue   = "emergency_rescue"
)

// Event is an immutable journal record of a successful pool call.
// Once created, these are never modified or deleted.
type Event struct {
	ID            string          `json:"id" db:"id"`
	PoolID        string          `json:"pool_id" db:"pool_id"`
	Kind          string          `json:"kind" db:"kind"`
	User          string          `json:"user,omitempty" db:"user_address"`
	LockingPeriod uint32          `json:"locking_period,omitempty" db:"locking_period"`
	Amount0       decimal.Decimal `json:"amount0" db:"amount0"`
	Amount1       decimal.Decimal `json:"amount1" db:"amount1"`
	Shares        decimal.Decimal `json:"shares" db:"shares"`
	Reward        decimal.Decimal `json:"reward" db:"reward"`
	Phase         Phase           `json:"phase" db:"phase"`
	Timestamp     time.Time       `json:"timestamp" db:"timestamp"`
}

// Pair is an ordered pair of amounts, one per pool asset.
type Pair struct {
	Amount0 decimal.Decimal `json:"amount0"`
	Amount1 decimal.Decimal `json:"amount1"`
}

// Add returns the element-wise sum.
func (p Pair) Add(o Pair) Pair {
	return Pair{Amount0: p.Amount0.Add(o.Amount0), Amount1: p.Amount1.Add(o.Amount1)}
}

// Sub returns the element-wise difference.
func (p Pair) Sub(o Pair) Pair {
	return Pair{Amount0: p.Amount0.Sub(o.Amount0), Amount1: p.Amount1.Sub(o.Amount1)}
}

// IsZero reports whether both amounts are zero.
func (p Pair) IsZero() bool { return p.Amount0.IsZero() && p.Amount1.IsZero() }

// PoolSnapshot is the read view of a pool's aggregate state.
type PoolSnapshot struct {
	ID                              string          `json:"id" db:"id"`
	Variant                         string          `json:"variant" db:"variant"`
	Token0                          string          `json:"token0" db:"token0"`
	Token1                          string          `json:"token1" db:"token1"`
	LpToken                         string          `json:"lp_token" db:"lp_token"`
	RewardToken                     string          `json:"reward_token" db:"reward_token"`
	Admin                           string          `json:"admin" db:"admin"`
	Phase                           Phase           `json:"phase" db:"phase"`
	StartTime                       time.Time       `json:"start_time" db:"start_time"`
	DepositPhaseStart               time.Time       `json:"deposit_phase_start" db:"deposit_phase_start"`
	DepositWindowEnd                time.Time       `json:"deposit_window_end" db:"deposit_window_end"`
	TransferPhaseStart              time.Time       `json:"transfer_phase_start" db:"transfer_phase_start"`
	PriceRatioShifted               decimal.Decimal `json:"price_ratio_shifted" db:"price_ratio_shifted"`
	LastPriceFeedTimestamp          time.Time       `json:"last_price_feed_timestamp" db:"last_price_feed_timestamp"`
	TotalDeposits                   int             `json:"total_deposits" db:"total_deposits"`
	TransferCursor                  int             `json:"transfer_cursor" db:"transfer_cursor"`
	TotalLpTokens                   decimal.Decimal `json:"total_lp_tokens" db:"total_lp_tokens"`
	TotalTransferred0               decimal.Decimal `json:"total_transferred0" db:"total_transferred0"`
	TotalTransferred1               decimal.Decimal `json:"total_transferred1" db:"total_transferred1"`
	TotalTransferredWithBonusX10000 decimal.Decimal `json:"total_transferred_with_bonus_x10000" db:"total_transferred_with_bonus_x10000"`
	Penalty0                        decimal.Decimal `json:"penalty0" db:"penalty0"`
	Penalty1                        decimal.Decimal `json:"penalty1" db:"penalty1"`
	RewardAllocation                decimal.Decimal `json:"reward_allocation" db:"reward_allocation"`
	UpdatedAt                       time.Time       `json:"updated_at" db:"updated_at"`
}

// BucketPosition is a user's vesting bucket for one locking period.
type BucketPosition struct {
	LockingPeriod uint32          `json:"locking_period"`
	UnlockAt      time.Time       `json:"unlock_at"`
	Weight        decimal.Decimal `json:"weight_x10000"`
	Entitled      decimal.Decimal `json:"entitled"`
	Withdrawn     decimal.Decimal `json:"withdrawn"`
}

// DepositPosition is one live deposit record.
type DepositPosition struct {
	LockingPeriod uint32          `json:"locking_period"`
	Day           int             `json:"day"`
	Amount0       decimal.Decimal `json:"amount0"`
	Amount1       decimal.Decimal `json:"amount1"`
}

// UserPosition aggregates everything a pool owes or holds for one user.
type UserPosition struct {
	PoolID    string            `json:"pool_id"`
	User      string            `json:"user"`
	Deposits  []DepositPosition `json:"deposits"`
	Leftover0 decimal.Decimal   `json:"leftover0"`
	Leftover1 decimal.Decimal   `json:"leftover1"`
	Reward    decimal.Decimal   `json:"reward"`
	Buckets   []BucketPosition  `json:"buckets"`
}

// AddressString renders addr for snapshots; the zero address renders empty.
func AddressString(addr common.Address) string {
	if addr == (common.Address{}) {
		return ""
	}
	return addr.Hex()
}
