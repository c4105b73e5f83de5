// Package lifecycle implements the pool phase state machine and the
// administrative circuit breaker that can freeze it.
//
//	Created(0) -> DepositPhase(1) -> TransferPhase(2) -> Completed(3)
//
// EmergencyStopped(4) is reachable from every other phase; resuming moves to
// an admin-chosen phase without reconstructing any state.
package lifecycle

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/lbp/pool-engine/internal/model"
)

var (
	ErrWrongPhase   = NewError(KindPhase, "wrong phase")
	ErrTooEarly     = NewError(KindPhase, "too early")
	ErrAdminOnly    = NewError(KindAuth, "admin only")
	ErrInvalidPhase = NewError(KindInput, "invalid phase")
)

// Machine holds the phase and the admin allowed to stop it. It is not safe
// for concurrent use; pools call it under their own lock.
type Machine struct {
	phase       model.Phase
	admin       common.Address
	stoppedFrom model.Phase
}

// New creates a machine in PhaseCreated administered by admin.
func New(admin common.Address) *Machine {
	return &Machine{phase: model.PhaseCreated, admin: admin}
}

// Phase returns the current phase.
func (m *Machine) Phase() model.Phase { return m.phase }

// Admin returns the admin address.
func (m *Machine) Admin() common.Address { return m.admin }

// StoppedFrom returns the phase the machine was in when last stopped.
func (m *Machine) StoppedFrom() model.Phase { return m.stoppedFrom }

// Stopped reports whether the emergency breaker is engaged.
func (m *Machine) Stopped() bool { return m.phase == model.PhaseEmergencyStopped }

// Require fails unless the current phase is one of phases. A stopped
// machine never satisfies Require, so every entry point that calls it
// first is frozen by an emergency stop.
func (m *Machine) Require(phases ...model.Phase) error {
	if m.Stopped() {
		return fmt.Errorf("%w: pool is emergency stopped", ErrWrongPhase)
	}
	for _, p := range phases {
		if m.phase == p {
			return nil
		}
	}
	return fmt.Errorf("%w: in %s", ErrWrongPhase, m.phase)
}

// Advance moves from `from` to `to`. Transitions only go forward.
func (m *Machine) Advance(from, to model.Phase) error {
	if err := m.Require(from); err != nil {
		return err
	}
	if to <= from || to == model.PhaseEmergencyStopped {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidPhase, from, to)
	}
	m.phase = to
	return nil
}

// Stop engages the breaker. Admin only; fails when already stopped.
func (m *Machine) Stop(caller common.Address) error {
	if caller != m.admin {
		return ErrAdminOnly
	}
	if m.Stopped() {
		return fmt.Errorf("%w: already stopped", ErrWrongPhase)
	}
	m.stoppedFrom = m.phase
	m.phase = model.PhaseEmergencyStopped
	return nil
}

// Resume releases the breaker into target. Admin only; the admin is trusted
// to pick a phase consistent with the pool's state.
func (m *Machine) Resume(caller common.Address, target model.Phase) error {
	if caller != m.admin {
		return ErrAdminOnly
	}
	if !m.Stopped() {
		return fmt.Errorf("%w: not stopped", ErrWrongPhase)
	}
	if !target.Valid() || target == model.PhaseEmergencyStopped {
		return fmt.Errorf("%w: %d", ErrInvalidPhase, uint8(target))
	}
	m.phase = target
	return nil
}

// RequireStoppedAdmin guards the rescue path: admin only, breaker engaged.
func (m *Machine) RequireStoppedAdmin(caller common.Address) error {
	if caller != m.admin {
		return ErrAdminOnly
	}
	if !m.Stopped() {
		return fmt.Errorf("%w: rescue requires an emergency stop", ErrWrongPhase)
	}
	return nil
}
