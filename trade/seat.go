package trade

import (
	"fmt"

	"go.dedis.ch/escrow/asset"
	"go.dedis.ch/escrow/offer"
	"go.dedis.ch/escrow/promise"
	"go.dedis.ch/escrow/quantity"
	"golang.org/x/xerrors"
)

// seatState is the state of a seat. It is only accessed by the goroutine of the
// coordinator.
type seatState struct {
	role     string
	desc     offer.Description
	admin    bool
	status   SeatStatus
	redeemed bool

	// deposit is the escrowed quantity of every slot, nil until the seat is
	// escrowed.
	deposit []quantity.Quantity

	// final is what the seat has left the trade with.
	final []offer.Amount

	payout *promise.Promise[Payout]
	refund *promise.Promise[Payout]
}

// toPayout returns true if the allocation of the slot is paid out rather than
// refunded. Administrative seats have no rule and get everything as payout.
func (s *seatState) toPayout(slot int) bool {
	if slot >= s.desc.Len() {
		return true
	}

	return !s.desc.Get(slot).GetKind().IsOffer()
}

// kindOf returns the rule kind of the slot, or an empty kind for the slots of
// an administrative seat.
func (s *seatState) kindOf(slot int) offer.RuleKind {
	if slot >= s.desc.Len() {
		return ""
	}

	return s.desc.Get(slot).GetKind()
}

// Seat is the capability of a party over its position in a trade. It is only
// obtained by redeeming an invite.
type Seat struct {
	coord  *Coordinator
	index  int
	role   string
	desc   offer.Description
	admin  bool
	payout *promise.Promise[Payout]
	refund *promise.Promise[Payout]
}

// Index returns the index of the seat in the trade.
func (s *Seat) Index() int {
	return s.index
}

// Role returns the role of the seat.
func (s *Seat) Role() string {
	return s.role
}

// Description returns the offer the seat has committed to.
func (s *Seat) Description() offer.Description {
	return s.desc
}

// IsAdmin returns true for an administrative seat.
func (s *Seat) IsAdmin() bool {
	return s.admin
}

// InstanceID returns the identifier of the trade instance of the seat. It is
// empty for a seat that has not been obtained from a coordinator.
func (s *Seat) InstanceID() string {
	if s == nil || s.coord == nil {
		return ""
	}

	return s.coord.instanceID
}

// Deposit hands the payments to the escrow, one per slot in the order of the
// terms. A nil payment stands for an empty amount and missing trailing
// payments are nil. The promise resolves to the escrowed amounts, or is
// rejected with a RuleMismatchError if an amount does not satisfy the rule of
// its slot, in which case no payment is consumed and the seat can deposit
// again.
func (s *Seat) Deposit(payments ...asset.Payment) *promise.Promise[[]offer.Amount] {
	p := promise.New[[]offer.Amount]()

	err := s.coord.submit(func() {
		amounts, err := s.coord.handleDeposit(s.index, payments)
		if err != nil {
			p.Reject(err)
		} else {
			p.Resolve(amounts)
		}
	})

	if err != nil {
		p.Reject(err)
	}

	return p
}

// Payout returns the placeholder of what the seat receives when the trade is
// settled. It is rejected when the seat is refunded.
func (s *Seat) Payout() *promise.Promise[Payout] {
	return s.payout
}

// Refund returns the placeholder of what the escrow gives back to the seat.
// After a settlement, it holds the unused remainder of the offered amounts.
// After a cancellation, it holds the original deposit.
func (s *Seat) Refund() *promise.Promise[Payout] {
	return s.refund
}

// Status returns the current status of the seat.
func (s *Seat) Status() (SeatStatus, error) {
	return s.coord.SeatStatus(s.index)
}

// Cancel cancels the trade instance. Only an administrative seat is allowed to
// do so.
func (s *Seat) Cancel() *promise.Promise[Outcome] {
	if !s.admin {
		return promise.Rejected[Outcome](ErrNotAdmin)
	}

	return s.coord.Cancel(xerrors.Errorf("cancelled by '%s'", s.role))
}

// String implements fmt.Stringer.
func (s *Seat) String() string {
	if s == nil || s.coord == nil {
		return "Seat[none]"
	}

	return fmt.Sprintf("Seat[%d:%s@%s]", s.index, s.role, s.coord.instanceID)
}

// checkRule verifies that the amount can be deposited for the rule.
func checkRule(slot int, s quantity.Strategy, rule offer.Rule, amount offer.Amount) error {
	q := amount.GetQuantity()
	limit := rule.GetAmount().GetQuantity()

	switch rule.GetKind() {
	case offer.OfferExactly:
		if !s.Equals(q, limit) {
			return RuleMismatchError{
				Slot:   slot,
				Kind:   rule.GetKind(),
				Reason: fmt.Sprintf("expected '%v' but got '%v'", limit, q),
			}
		}
	case offer.OfferAtMost:
		_, err := s.Without(limit, q)
		if err != nil {
			return RuleMismatchError{
				Slot:   slot,
				Kind:   rule.GetKind(),
				Reason: err.Error(),
			}
		}
	case offer.WantExactly:
		if !quantity.IsEmpty(s, q) {
			return RuleMismatchError{
				Slot:   slot,
				Kind:   rule.GetKind(),
				Reason: fmt.Sprintf("nothing can be deposited but got '%v'", q),
			}
		}
	default:
		return RuleMismatchError{Slot: slot, Kind: rule.GetKind(), Reason: "unknown rule"}
	}

	return nil
}

// checkWant verifies that the allocation satisfies the wants of the seat.
func checkWant(strategies []quantity.Strategy, desc offer.Description, row []quantity.Quantity) error {
	for slot, rule := range desc.Rules() {
		if rule.GetKind() != offer.WantExactly {
			continue
		}

		expected := rule.GetAmount().GetQuantity()

		if !strategies[slot].Equals(row[slot], expected) {
			return RuleMismatchError{
				Slot:   slot,
				Kind:   rule.GetKind(),
				Reason: fmt.Sprintf("expected payout '%v' but got '%v'", expected, row[slot]),
			}
		}
	}

	return nil
}
