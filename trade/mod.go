// Package trade implements the escrow of a multi-party trade and its
// settlement.
//
// A trade instance is owned by a coordinator that serializes every state
// transition. Parties never touch the state directly: they redeem an invite to
// get the capability of their seat, and every operation on the seat is a
// request handed to the coordinator, which answers with a promise.
//
// An instance either settles, in which case a reallocation that conserves the
// escrowed quantities is committed at once, or it is cancelled and every party
// gets back exactly what it deposited. Both outcomes are terminal.
package trade

import (
	"fmt"

	"go.dedis.ch/escrow/asset"
	"go.dedis.ch/escrow/offer"
	"go.dedis.ch/escrow/quantity"
	"golang.org/x/xerrors"
)

// Status is the status of a trade instance.
type Status int

const (
	// Open is the status of an instance that accepts deposits.
	Open Status = iota

	// Settled is the status of an instance that has committed a reallocation.
	Settled

	// Cancelled is the status of an instance that has refunded its deposits.
	Cancelled
)

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case Open:
		return "open"
	case Settled:
		return "settled"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// IsTerminal returns true if no more mutation can happen.
func (s Status) IsTerminal() bool {
	return s == Settled || s == Cancelled
}

// SeatStatus is the status of a seat.
type SeatStatus int

const (
	// SeatPending is the status of a seat waiting for its deposit.
	SeatPending SeatStatus = iota

	// SeatEscrowed is the status of a seat whose deposit is held in escrow.
	SeatEscrowed

	// SeatSettled is the status of a seat that has received its payout.
	SeatSettled

	// SeatCancelled is the status of a seat that has been refunded.
	SeatCancelled
)

// String implements fmt.Stringer.
func (s SeatStatus) String() string {
	switch s {
	case SeatPending:
		return "pendingDeposit"
	case SeatEscrowed:
		return "escrowed"
	case SeatSettled:
		return "settled"
	case SeatCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// IsTerminal returns true if the seat has received its payout or its refund.
func (s SeatStatus) IsTerminal() bool {
	return s == SeatSettled || s == SeatCancelled
}

var (
	// ErrTerminal is returned when a mutation is requested on an instance that
	// is settled or cancelled.
	ErrTerminal = xerrors.New("trade instance is terminal")

	// ErrNotEscrowed is returned when a seat is expected to hold a deposit.
	ErrNotEscrowed = xerrors.New("seat is not escrowed")

	// ErrCancelled is the reason of the payouts rejected by a cancellation.
	ErrCancelled = xerrors.New("trade cancelled")

	// ErrClosed is returned when the coordinator does not accept requests
	// anymore.
	ErrClosed = xerrors.New("coordinator is closed")

	// ErrNotAdmin is returned when a party seat tries an administrative
	// operation.
	ErrNotAdmin = xerrors.New("seat is not administrative")
)

// RuleMismatchError is returned when an amount does not satisfy the rule of
// its slot. The seat stays in the same state.
type RuleMismatchError struct {
	Slot   int
	Kind   offer.RuleKind
	Reason string
}

// Error implements error.
func (e RuleMismatchError) Error() string {
	return fmt.Sprintf("slot %d does not satisfy %s: %s", e.Slot, e.Kind, e.Reason)
}

// ConservationViolationError is returned when a proposed reallocation does not
// preserve the escrowed quantities of a slot. It always leads to the
// cancellation of the instance.
type ConservationViolationError struct {
	Slot   int
	Reason string
}

// Error implements error.
func (e ConservationViolationError) Error() string {
	return fmt.Sprintf("conservation violated at slot %d: %s", e.Slot, e.Reason)
}

// DepositError is returned when the escrow fails to take the payments after
// they have been checked. The payments already taken are returned as fresh
// payments.
type DepositError struct {
	Slot     int
	Returned []asset.Payment
	Err      error
}

// Error implements error.
func (e DepositError) Error() string {
	return fmt.Sprintf("couldn't deposit slot %d: %v", e.Slot, e.Err)
}

// Proposal is a reallocation of the quantities of some seats. Seats[i] gets
// Quantities[i], one quantity per slot. The seats that are not named keep
// their current allocation.
type Proposal struct {
	Seats      []int
	Quantities [][]quantity.Quantity
}

// Payout is what a seat gets back from the escrow, one entry per slot. A
// payment is nil when the amount of its slot is empty.
type Payout struct {
	Amounts  []offer.Amount
	Payments []asset.Payment
}

// Outcome is the final state of a trade instance.
type Outcome struct {
	InstanceID string
	Status     Status

	// Allocations are the final amounts of every seat, indexed by seat. The
	// allocation of a cancelled seat is what it has been refunded.
	Allocations [][]offer.Amount

	// Reason is the cause of a cancellation.
	Reason error
}
