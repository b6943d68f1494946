// Package agency implements a contract where an agency buys goods on behalf of
// a buyer.
//
// The buyer escrows up to a ceiling of currency and wants exactly some goods.
// The agency holds an administrative seat: it can look at the deposit of the
// buyer, cancel the trade, or consummate the deal at a price that does not
// exceed the deposit. Consummating invites a seller who delivers the goods
// against the price. The buyer finally gets the goods and what is left of its
// deposit.
package agency

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
var Installation = contracts.NewInstallation("agencyEscrow")

const (
	// CurrencySlot is the slot of the currency in the terms.
	CurrencySlot = 0

	// GoodsSlot is the slot of the goods in the terms.
	GoodsSlot = 1
)

const (
	roleBuyer  = "buyer"
	roleAgency = "agency"
	roleSeller = "seller"
)

// ErrNotAgency is returned when a seat that is not the agency's tries an
// operation of the agency.
var ErrNotAgency = xerrors.New("seat is not the agency")

// Invites are the invites created with an instance.
type Invites struct {
	Agency invite.Invite
	Buyer  invite.Invite
}

// Agency is an instance of the agency contract.
type Agency struct {
	sync.Mutex

	coord  *trade.Coordinator
	buyer  int
	agency int
	seller int
}

// NewAgency creates an instance where the buyer offers at most the ceiling of
// currency and wants exactly the goods.
func NewAgency(currency, goods asset.Issuer, ceiling, wanted quantity.Quantity,
	opts ...trade.Option) (*Agency, Invites, error) {

	coord, err := trade.NewCoordinator(Installation, []asset.Issuer{currency, goods}, opts...)
	if err != nil {
		return nil, Invites{}, xerrors.Errorf("couldn't create coordinator: %v", err)
	}

	terms := coord.Terms()

	desc, err := offer.MakeDescription(terms.Strategies(), terms.Labels(),
		[]offer.RuleKind{offer.OfferAtMost, offer.WantExactly},
		[]quantity.Quantity{ceiling, wanted})
	if err != nil {
		coord.Close()
		return nil, Invites{}, xerrors.Errorf("invalid buyer offer: %v", err)
	}

	var invites Invites

	invites.Buyer, err = coord.AddSeat(roleBuyer, desc)
	if err != nil {
		coord.Close()
		return nil, Invites{}, xerrors.Errorf("couldn't add buyer: %v", err)
	}

	invites.Agency, err = coord.AddAdminSeat(roleAgency)
	if err != nil {
		coord.Close()
		return nil, Invites{}, xerrors.Errorf("couldn't add agency: %v", err)
	}

	a := &Agency{
		coord:  coord,
		buyer:  0,
		agency: 1,
		seller: -1,
	}

	return a, invites, nil
}

// Coordinator returns the coordinator of the instance.
func (a *Agency) Coordinator() *trade.Coordinator {
	return a.coord
}

// OfferAmount returns the currency deposited by the buyer.
func (a *Agency) OfferAmount(agency *trade.Seat) (offer.Amount, error) {
	err := a.checkAgency(agency)
	if err != nil {
		return offer.Amount{}, err
	}

	deposit, err := a.coord.Deposited(a.buyer)
	if err != nil {
		return offer.Amount{}, xerrors.Errorf("buyer: %w", err)
	}

	return deposit[CurrencySlot], nil
}

// Cancel cancels the trade and refunds the buyer.
func (a *Agency) Cancel(ctx context.Context, agency *trade.Seat) (trade.Outcome, error) {
	err := a.checkAgency(agency)
	if err != nil {
		return trade.Outcome{}, err
	}

	return agency.Cancel().Await(ctx)
}

// ConsummateDeal agrees on the price with a seller and returns the invite of
// the seller. The seller must offer exactly the goods the buyer wants against
// exactly the price.
func (a *Agency) ConsummateDeal(agency *trade.Seat, price quantity.Quantity) (invite.Invite, error) {
	err := a.checkAgency(agency)
	if err != nil {
		return invite.Invite{}, err
	}

	a.Lock()
	defer a.Unlock()

	if a.seller >= 0 {
		return invite.Invite{}, xerrors.New("deal already consummated")
	}

	terms := a.coord.Terms()
	currency := terms.GetSlot(CurrencySlot).Strategy

	deposit, err := a.coord.Deposited(a.buyer)
	if err != nil {
		return invite.Invite{}, xerrors.Errorf("buyer: %w", err)
	}

	_, err = currency.Without(deposit[CurrencySlot].GetQuantity(), price)
	if err != nil {
		return invite.Invite{}, xerrors.Errorf("price exceeds the deposit: %v", err)
	}

	buyerDesc, err := a.coord.SeatDescription(a.buyer)
	if err != nil {
		return invite.Invite{}, xerrors.Errorf("couldn't read buyer offer: %v", err)
	}

	desc, err := offer.MakeDescription(terms.Strategies(), terms.Labels(),
		[]offer.RuleKind{offer.WantExactly, offer.OfferExactly},
		[]quantity.Quantity{price, buyerDesc.Get(GoodsSlot).GetAmount().GetQuantity()})
	if err != nil {
		return invite.Invite{}, xerrors.Errorf("invalid seller offer: %v", err)
	}

	inv, err := a.coord.AddSeat(roleSeller, desc)
	if err != nil {
		return invite.Invite{}, xerrors.Errorf("couldn't add seller: %v", err)
	}

	count, err := a.coord.NumSeats()
	if err != nil {
		return invite.Invite{}, err
	}

	a.seller = count - 1

	return inv, nil
}

// Deliver submits the escrowed goods of the seller and settles the trade.
func (a *Agency) Deliver(ctx context.Context, seller *trade.Seat) (string, error) {
	method := contracts.Method{
		Coordinator:  a.coord,
		IsValidOffer: offer.HasRequiredRules(offer.WantExactly, offer.OfferExactly),
		Handle:       a.handleDelivery,
		SuccessMsg:   "The goods have been delivered",
	}

	return method.Call(ctx, seller)
}

// Close releases the coordinator. An unsettled trade is cancelled.
func (a *Agency) Close() error {
	return a.coord.Close()
}

func (a *Agency) handleDelivery(ctx context.Context, index int) (*trade.Proposal, error) {
	a.Lock()
	defer a.Unlock()

	if index != a.seller {
		return nil, xerrors.Errorf("seat %d is not the seller", index)
	}

	strategies := a.coord.Terms().Strategies()

	deposit, err := a.coord.Deposited(a.buyer)
	if err != nil {
		return nil, xerrors.Errorf("buyer: %w", err)
	}

	goods, err := a.coord.Deposited(a.seller)
	if err != nil {
		return nil, xerrors.Errorf("seller: %w", err)
	}

	sellerDesc, err := a.coord.SeatDescription(a.seller)
	if err != nil {
		return nil, xerrors.Errorf("couldn't read seller offer: %v", err)
	}

	price := sellerDesc.Get(CurrencySlot).GetAmount().GetQuantity()

	remainder, err := strategies[CurrencySlot].Without(deposit[CurrencySlot].GetQuantity(), price)
	if err != nil {
		return nil, xerrors.Errorf("couldn't pay the price: %v", err)
	}

	proposal := &trade.Proposal{
		Seats: []int{a.buyer, a.seller},
		Quantities: [][]quantity.Quantity{
			{remainder, goods[GoodsSlot].GetQuantity()},
			{price, strategies[GoodsSlot].Empty()},
		},
	}

	return proposal, nil
}

func (a *Agency) checkAgency(seat *trade.Seat) error {
	if seat.InstanceID() != a.coord.InstanceID() || seat.Index() != a.agency || !seat.IsAdmin() {
		return ErrNotAgency
	}

	return nil
}
