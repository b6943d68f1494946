// Package mem implements an in-memory asset issuer.
//
// Every purse and payment of an issuer is protected by the lock of the issuer,
// so that a payment can never be spent twice even when two purses race for it.
package mem

import (
	"sync"

	"github.com/rs/xid"
	"go.dedis.ch/escrow/asset"
	"go.dedis.ch/escrow/offer"
	"go.dedis.ch/escrow/quantity"
	"golang.org/x/xerrors"
)

// Issuer is an in-memory issuer of one kind of asset.
//
// - implements asset.Issuer
type Issuer struct {
	sync.Mutex

	label    offer.Label
	strategy quantity.Strategy
	supply   quantity.Quantity
	live     map[*Payment]struct{}
}

// NewIssuer creates a new issuer. The issuer receives a unique identity so that
// two issuers with the same name are never mistaken for each other.
func NewIssuer(name string, strategy quantity.Strategy) *Issuer {
	return &Issuer{
		label: offer.Label{
			Issuer: xid.New().String(),
			Name:   name,
		},
		strategy: strategy,
		supply:   strategy.Empty(),
		live:     make(map[*Payment]struct{}),
	}
}

// GetLabel implements asset.Issuer.
func (i *Issuer) GetLabel() offer.Label {
	return i.label
}

// GetStrategy implements asset.Issuer.
func (i *Issuer) GetStrategy() quantity.Strategy {
	return i.strategy
}

// GetSupply returns the amount minted so far.
func (i *Issuer) GetSupply() offer.Amount {
	i.Lock()
	defer i.Unlock()

	return i.amount(i.supply)
}

// MakeAmount returns an amount of the asset.
func (i *Issuer) MakeAmount(q quantity.Quantity) (offer.Amount, error) {
	return offer.MakeAmount(i.strategy, i.label, q)
}

// Mint creates new assets and returns a purse holding them.
func (i *Issuer) Mint(q quantity.Quantity) (*Purse, error) {
	err := i.strategy.InsistKind(q)
	if err != nil {
		return nil, xerrors.Errorf("invalid quantity: %w", err)
	}

	i.Lock()
	defer i.Unlock()

	supply, err := i.strategy.With(i.supply, q)
	if err != nil {
		return nil, xerrors.Errorf("couldn't mint: %v", err)
	}

	i.supply = supply

	return &Purse{issuer: i, balance: q}, nil
}

// MakeEmptyPurse implements asset.Issuer.
func (i *Issuer) MakeEmptyPurse() asset.Purse {
	return &Purse{issuer: i, balance: i.strategy.Empty()}
}

// AmountOf implements asset.Issuer.
func (i *Issuer) AmountOf(p asset.Payment) (offer.Amount, error) {
	i.Lock()
	defer i.Unlock()

	payment, err := i.getLive(p)
	if err != nil {
		return offer.Amount{}, err
	}

	return payment.amount, nil
}

// Claim implements asset.Issuer.
func (i *Issuer) Claim(p asset.Payment) (asset.Payment, error) {
	i.Lock()
	defer i.Unlock()

	payment, err := i.getLive(p)
	if err != nil {
		return nil, err
	}

	delete(i.live, payment)

	return i.makePayment(payment.amount), nil
}

// getLive returns the payment if it belongs to the issuer and is not spent.
// The lock must be held.
func (i *Issuer) getLive(p asset.Payment) (*Payment, error) {
	payment, ok := p.(*Payment)
	if !ok || payment == nil || payment.issuer != i {
		return nil, xerrors.Errorf("payment is not from issuer '%s'", i.label)
	}

	_, found := i.live[payment]
	if !found {
		return nil, xerrors.Errorf("payment of %v is already spent", payment.amount)
	}

	return payment, nil
}

// makePayment creates a new live payment. The lock must be held.
func (i *Issuer) makePayment(amount offer.Amount) *Payment {
	payment := &Payment{issuer: i, amount: amount}
	i.live[payment] = struct{}{}

	return payment
}

func (i *Issuer) amount(q quantity.Quantity) offer.Amount {
	amount, err := offer.MakeAmount(i.strategy, i.label, q)
	if err != nil {
		// Balances are only built by the strategy itself.
		panic(err)
	}

	return amount
}

// Purse is an in-memory purse.
//
// - implements asset.Purse
type Purse struct {
	issuer  *Issuer
	balance quantity.Quantity
}

// GetBalance implements asset.Purse.
func (p *Purse) GetBalance() offer.Amount {
	p.issuer.Lock()
	defer p.issuer.Unlock()

	return p.issuer.amount(p.balance)
}

// Withdraw implements asset.Purse.
func (p *Purse) Withdraw(amount offer.Amount) (asset.Payment, error) {
	issuer := p.issuer

	if !amount.GetLabel().Equal(issuer.label) {
		return nil, xerrors.Errorf("amount of '%s' cannot be withdrawn from a purse of '%s'",
			amount.GetLabel(), issuer.label)
	}

	issuer.Lock()
	defer issuer.Unlock()

	balance, err := issuer.strategy.Without(p.balance, amount.GetQuantity())
	if err != nil {
		return nil, xerrors.Errorf("insufficient balance: %w", err)
	}

	p.balance = balance

	return issuer.makePayment(amount), nil
}

// WithdrawAll takes the whole balance out of the purse.
func (p *Purse) WithdrawAll() (asset.Payment, error) {
	return p.Withdraw(p.GetBalance())
}

// Deposit implements asset.Purse.
func (p *Purse) Deposit(payment asset.Payment) (offer.Amount, error) {
	issuer := p.issuer

	issuer.Lock()
	defer issuer.Unlock()

	live, err := issuer.getLive(payment)
	if err != nil {
		return offer.Amount{}, err
	}

	balance, err := issuer.strategy.With(p.balance, live.amount.GetQuantity())
	if err != nil {
		return offer.Amount{}, xerrors.Errorf("couldn't add to balance: %v", err)
	}

	p.balance = balance
	delete(issuer.live, live)

	return live.amount, nil
}

// Payment is an in-memory payment.
//
// - implements asset.Payment
type Payment struct {
	issuer *Issuer
	amount offer.Amount
}

// GetAllegedAmount implements asset.Payment.
func (p *Payment) GetAllegedAmount() offer.Amount {
	return p.amount
}
