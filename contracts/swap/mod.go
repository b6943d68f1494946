// Package swap implements a contract where two parties exchange exactly what
// they offer against exactly what they want.
//
// The first offer is kept in escrow until a matching counter-offer arrives,
// that is an offer which wants what the first one offers and offers what the
// first one wants. The match settles the trade. Any other counter-offer is
// rejected and refunded.
package swap

import (
	"context"
	"sync"

	"go.dedis.ch/escrow/asset"
	"go.dedis.ch/escrow/contracts"
	"go.dedis.ch/escrow/invite"
	"go.dedis.ch/escrow/offer"
	"go.dedis.ch/escrow/quantity"
	"go.dedis.ch/escrow/trade"
	"golang.org/x/xerrors"
)

// Installation is the identifier shared by every instance of the contract.
var Installation = contracts.NewInstallation("simpleOfferSwap")

// Swap is an instance of the swap contract.
type Swap struct {
	sync.Mutex

	coord *trade.Coordinator
	first int
}

// NewSwap creates a swap instance over the assets of the issuers.
func NewSwap(issuers []asset.Issuer, opts ...trade.Option) (*Swap, error) {
	coord, err := trade.NewCoordinator(Installation, issuers, opts...)
	if err != nil {
		return nil, xerrors.Errorf("couldn't create coordinator: %v", err)
	}

	s := &Swap{
		coord: coord,
		first: -1,
	}

	return s, nil
}

// Coordinator returns the coordinator of the instance.
func (s *Swap) Coordinator() *trade.Coordinator {
	return s.coord
}

// MakeInvite adds a seat committed to the offer and returns its invite. An
// offer that can't be swapped is only refused when it is made.
func (s *Swap) MakeInvite(role string, desc offer.Description) (invite.Invite, error) {
	return s.coord.AddSeat(role, desc)
}

// MakeOffer submits the escrowed offer of the seat. The first offer waits for
// a counter-offer; a matching counter-offer settles the swap.
func (s *Swap) MakeOffer(ctx context.Context, seat *trade.Seat) (string, error) {
	method := contracts.Method{
		Coordinator:  s.coord,
		IsValidOffer: isValidOffer,
		Handle:       s.handle,
	}

	return method.Call(ctx, seat)
}

// Close releases the coordinator. An unsettled swap is cancelled.
func (s *Swap) Close() error {
	return s.coord.Close()
}

func (s *Swap) handle(ctx context.Context, index int) (*trade.Proposal, error) {
	s.Lock()
	defer s.Unlock()

	if s.first < 0 || s.first == index {
		s.first = index
		return nil, nil
	}

	strategies := s.coord.Terms().Strategies()

	first, err := s.coord.SeatDescription(s.first)
	if err != nil {
		return nil, xerrors.Errorf("couldn't read first offer: %v", err)
	}

	counter, err := s.coord.SeatDescription(index)
	if err != nil {
		return nil, xerrors.Errorf("couldn't read counter-offer: %v", err)
	}

	if !offer.Equal(strategies, mirror(first), counter) {
		return nil, contracts.RejectOffer(ctx, s.coord, index, "")
	}

	firstDeposit, err := s.coord.Deposited(s.first)
	if err != nil {
		return nil, xerrors.Errorf("couldn't read first deposit: %v", err)
	}

	counterDeposit, err := s.coord.Deposited(index)
	if err != nil {
		return nil, xerrors.Errorf("couldn't read counter deposit: %v", err)
	}

	proposal := &trade.Proposal{
		Seats: []int{s.first, index},
		Quantities: [][]quantity.Quantity{
			offer.QuantitiesOf(strategies, counterDeposit),
			offer.QuantitiesOf(strategies, firstDeposit),
		},
	}

	return proposal, nil
}

// isValidOffer accepts offers made of exact rules only, with at least one slot
// to give and one slot to receive.
func isValidOffer(desc offer.Description) bool {
	offers, wants := 0, 0

	for _, kind := range desc.Kinds() {
		switch kind {
		case offer.OfferExactly:
			offers++
		case offer.WantExactly:
			wants++
		default:
			return false
		}
	}

	return offers > 0 && wants > 0
}

// mirror returns the description of the counter-offer that matches the offer.
func mirror(desc offer.Description) offer.Description {
	rules := desc.Rules()

	for i, rule := range rules {
		kind := offer.WantExactly
		if rule.GetKind() == offer.WantExactly {
			kind = offer.OfferExactly
		}

		rules[i] = offer.NewRule(kind, rule.GetAmount())
	}

	return offer.NewDescription(rules...)
}
