// Package asset defines the asset service the escrow relies on: issuers,
// purses and payments.
//
// A payment is a linear value. Once it has been deposited or claimed it is
// spent and any further use is refused by its issuer.
package asset

import (
	"go.dedis.ch/escrow/offer"
	"go.dedis.ch/escrow/quantity"
)

// Payment is a transferable amount of an asset. Its content is only trusted
// when it is confirmed by its issuer.
type Payment interface {
	// GetAllegedAmount returns the amount that the payment claims to hold.
	GetAllegedAmount() offer.Amount
}

// Purse holds a balance of one kind of asset.
type Purse interface {
	// GetBalance returns the current balance of the purse.
	GetBalance() offer.Amount

	// Withdraw takes the amount out of the purse and returns it as a fresh
	// payment.
	Withdraw(amount offer.Amount) (Payment, error)

	// Deposit spends the payment and adds its amount to the purse.
	Deposit(payment Payment) (offer.Amount, error)
}

// Issuer is the authority of one kind of asset.
type Issuer interface {
	// GetLabel returns the label of the asset kind.
	GetLabel() offer.Label

	// GetStrategy returns the arithmetic of the quantities.
	GetStrategy() quantity.Strategy

	// MakeEmptyPurse returns a new purse with an empty balance.
	MakeEmptyPurse() Purse

	// AmountOf returns the amount of a live payment of the issuer, or an error
	// if the payment is unknown or already spent.
	AmountOf(payment Payment) (offer.Amount, error)

	// Claim spends the payment and returns a new one of the same amount that
	// only the caller knows about.
	Claim(payment Payment) (Payment, error)
}

// Slot returns the offer slot of the issuer.
func Slot(issuer Issuer) offer.Slot {
	return offer.Slot{
		Label:    issuer.GetLabel(),
		Strategy: issuer.GetStrategy(),
	}
}

// Terms returns the terms of a trade of the issuers' assets.
func Terms(issuers ...Issuer) offer.Terms {
	slots := make([]offer.Slot, len(issuers))
	for i, issuer := range issuers {
		slots[i] = Slot(issuer)
	}

	return offer.NewTerms(slots...)
}
