// Package refund implements a contract that gives every party its deposit
// back as soon as the offer is made.
package refund

import (
	"context"
	"sync"

	"go.dedis.ch/escrow/asset"
	"go.dedis.ch/escrow/contracts"
	"go.dedis.ch/escrow/invite"
	"go.dedis.ch/escrow/offer"
	"go.dedis.ch/escrow/trade"
	"golang.org/x/xerrors"
)

// Installation is the identifier shared by every instance of the contract.
var Installation = contracts.NewInstallation("automaticRefund")

// AcceptanceMsg is the answer to every offer.
const AcceptanceMsg = "The offer was accepted"

// Refund is an instance of the refund contract.
type Refund struct {
	sync.Mutex

	coord  *trade.Coordinator
	offers int
}

// NewRefund creates a refund instance over the assets of the issuers.
func NewRefund(issuers []asset.Issuer, opts ...trade.Option) (*Refund, error) {
	coord, err := trade.NewCoordinator(Installation, issuers, opts...)
	if err != nil {
		return nil, xerrors.Errorf("couldn't create coordinator: %v", err)
	}

	return &Refund{coord: coord}, nil
}

// Coordinator returns the coordinator of the instance.
func (r *Refund) Coordinator() *trade.Coordinator {
	return r.coord
}

// MakeInvite adds a seat committed to the offer and returns its invite.
func (r *Refund) MakeInvite(role string, desc offer.Description) (invite.Invite, error) {
	return r.coord.AddSeat(role, desc)
}

// MakeOffer completes the seat right away. Its deposit comes back through the
// refund, or through the payout for the slots it wants.
func (r *Refund) MakeOffer(ctx context.Context, seat *trade.Seat) (string, error) {
	method := contracts.Method{
		Coordinator: r.coord,
		Handle:      r.handle,
		SuccessMsg:  AcceptanceMsg,
	}

	return method.Call(ctx, seat)
}

// GetOffersCount returns the number of offers made so far.
func (r *Refund) GetOffersCount() int {
	r.Lock()
	defer r.Unlock()

	return r.offers
}

// Close releases the coordinator.
func (r *Refund) Close() error {
	return r.coord.Close()
}

func (r *Refund) handle(ctx context.Context, index int) (*trade.Proposal, error) {
	_, err := r.coord.Complete(index).Await(ctx)
	if err != nil {
		return nil, xerrors.Errorf("couldn't complete seat %d: %v", index, err)
	}

	r.Lock()
	r.offers++
	r.Unlock()

	return nil, nil
}
