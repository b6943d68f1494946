// Package contracts provides the helpers shared by the contracts written on top
// of the trade coordinator.
//
// A contract drives a coordinator: it decides which offers are acceptable and
// which reallocation settles them. The coordinator alone enforces the offer
// rules and the conservation of the quantities.
package contracts

import (
	"context"
	"fmt"

	"github.com/rs/xid"
	"go.dedis.ch/escrow"
	"go.dedis.ch/escrow/offer"
	"go.dedis.ch/escrow/trade"
	"golang.org/x/xerrors"
)

const (
	// DefaultAcceptanceMsg is the answer of a contract to an offer it accepts.
	DefaultAcceptanceMsg = "The offer has been accepted. Once the contract has been " +
		"completed, please check your payout"

	// DefaultRejectMsg is the reason given to a party whose offer is rejected.
	DefaultRejectMsg = "The offer was invalid. Please check your refund."
)

// NewInstallation returns a unique identifier for a contract. Every instance
// created by the contract shares the identifier, which lets a party verify what
// code it is invited to.
func NewInstallation(name string) string {
	return fmt.Sprintf("%s:%s", name, xid.New().String())
}

// RejectOffer ejects the seat so that it gets its deposit back, and returns the
// rejection that the seat also receives on its payout.
func RejectOffer(ctx context.Context, coord *trade.Coordinator, seat int, message string) error {
	if message == "" {
		message = DefaultRejectMsg
	}

	reason := xerrors.New(message)

	// The seat might have left already, the rejection stands anyway.
	_, err := coord.Eject(seat, reason).Await(ctx)
	if err != nil {
		escrow.Logger.Warn().Err(err).Int("seat", seat).Msg("rejected seat couldn't be ejected")
	}

	return reason
}

// Handler is the logic of a contract method. It returns the reallocation that
// settles the trade, or nil when the offer has to wait for others.
type Handler func(ctx context.Context, seat int) (*trade.Proposal, error)

// Method is an operation that a contract exposes to the parties once they have
// deposited their offer.
type Method struct {
	Coordinator *trade.Coordinator

	// IsValidOffer checks the shape of the offer before anything else. A nil
	// predicate accepts every offer.
	IsValidOffer func(offer.Description) bool

	// Handle computes the reallocation.
	Handle Handler

	SuccessMsg string
	RejectMsg  string
}

// Call runs the method for the seat. An offer that does not have the expected
// shape is rejected right away and the seat is refunded. Otherwise the handler
// runs and its reallocation, if any, settles the trade.
func (m Method) Call(ctx context.Context, seat *trade.Seat) (string, error) {
	if seat.InstanceID() != m.Coordinator.InstanceID() {
		return "", xerrors.Errorf("seat '%s' belongs to another instance", seat)
	}

	status, err := m.Coordinator.SeatStatus(seat.Index())
	if err != nil {
		return "", xerrors.Errorf("couldn't read seat: %v", err)
	}

	if status != trade.SeatEscrowed {
		return "", xerrors.Errorf("%v: %w", seat, trade.ErrNotEscrowed)
	}

	if m.IsValidOffer != nil && !m.IsValidOffer(seat.Description()) {
		return "", RejectOffer(ctx, m.Coordinator, seat.Index(), m.RejectMsg)
	}

	proposal, err := m.Handle(ctx, seat.Index())
	if err != nil {
		return "", err
	}

	if proposal != nil {
		_, err = m.Coordinator.Settle(*proposal).Await(ctx)
		if err != nil {
			return "", xerrors.Errorf("couldn't settle: %w", err)
		}
	}

	if m.SuccessMsg == "" {
		return DefaultAcceptanceMsg, nil
	}

	return m.SuccessMsg, nil
}
