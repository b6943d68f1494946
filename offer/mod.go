// Package offer defines the amounts, the rules and the offer descriptions that
// parties commit to when they join a trade.
//
// An offer description is an ordered list of rules, one per asset slot. Slot i
// refers to the same asset kind for every party of a trade, which is what the
// Terms of the trade declare.
//
// Every type of the package is immutable once created.
package offer

import (
	"fmt"
	"io"

	"go.dedis.ch/escrow/quantity"
	"golang.org/x/xerrors"
)

// RuleKind is the tag of an offer rule.
type RuleKind string

const (
	// OfferExactly means that the party deposits precisely the amount.
	OfferExactly RuleKind = "offerExactly"

	// WantExactly means that the party expects precisely the amount as a
	// payout.
	WantExactly RuleKind = "wantExactly"

	// OfferAtMost means that the party deposits up to the amount and gets the
	// unused remainder back.
	OfferAtMost RuleKind = "offerAtMost"
)

// IsOffer returns true if the rule requires the party to deposit.
func (k RuleKind) IsOffer() bool {
	return k == OfferExactly || k == OfferAtMost
}

// Valid returns true if the kind is a known rule.
func (k RuleKind) Valid() bool {
	switch k {
	case OfferExactly, WantExactly, OfferAtMost:
		return true
	default:
		return false
	}
}

// Label identifies an asset kind. Two labels are equal when they are tied to
// the same issuer, the name being only informative.
type Label struct {
	Issuer string
	Name   string
}

// Equal returns true if both labels belong to the same issuer.
func (l Label) Equal(other Label) bool {
	return l.Issuer == other.Issuer
}

// String implements fmt.Stringer.
func (l Label) String() string {
	if l.Name == "" {
		return l.Issuer
	}

	return l.Name
}

// Amount is a quantity of one kind of asset.
type Amount struct {
	label    Label
	quantity quantity.Quantity
}

// MakeAmount returns an amount after making sure the quantity is well-formed
// for the strategy. The quantity is copied through its canonical form so that
// the amount does not share memory with the caller.
func MakeAmount(s quantity.Strategy, label Label, q quantity.Quantity) (Amount, error) {
	data, err := s.Encode(q)
	if err != nil {
		return Amount{}, err
	}

	clone, err := s.Decode(data)
	if err != nil {
		return Amount{}, xerrors.Errorf("failed to copy quantity: %v", err)
	}

	amount := Amount{
		label:    label,
		quantity: clone,
	}

	return amount, nil
}

// EmptyAmount returns the empty amount of the label.
func EmptyAmount(s quantity.Strategy, label Label) Amount {
	return Amount{label: label, quantity: s.Empty()}
}

// GetLabel returns the label of the amount.
func (a Amount) GetLabel() Label {
	return a.label
}

// GetQuantity returns the quantity of the amount. It must not be modified.
func (a Amount) GetQuantity() quantity.Quantity {
	return a.quantity
}

// IsZero returns true if the amount has never been set.
func (a Amount) IsZero() bool {
	return a.quantity == nil
}

// String implements fmt.Stringer.
func (a Amount) String() string {
	return fmt.Sprintf("%v %s", a.quantity, a.label)
}

// Rule is one slot of an offer description.
type Rule struct {
	kind   RuleKind
	amount Amount
}

// NewRule returns a new rule.
func NewRule(kind RuleKind, amount Amount) Rule {
	return Rule{kind: kind, amount: amount}
}

// GetKind returns the tag of the rule.
func (r Rule) GetKind() RuleKind {
	return r.kind
}

// GetAmount returns the amount of the rule.
func (r Rule) GetAmount() Amount {
	return r.amount
}

// String implements fmt.Stringer.
func (r Rule) String() string {
	return fmt.Sprintf("%s(%v)", r.kind, r.amount)
}

// Description is the ordered list of rules a party commits to.
type Description struct {
	rules []Rule
}

// NewDescription returns a description made of the rules.
func NewDescription(rules ...Rule) Description {
	copied := make([]Rule, len(rules))
	copy(copied, rules)

	return Description{rules: copied}
}

// MakeDescription builds a description out of parallel lists of strategies,
// labels, rule kinds and quantities. It returns a MalformedQuantityError if a
// quantity does not fit its strategy.
func MakeDescription(strategies []quantity.Strategy, labels []Label,
	kinds []RuleKind, quantities []quantity.Quantity) (Description, error) {

	if len(labels) != len(strategies) || len(kinds) != len(strategies) ||
		len(quantities) != len(strategies) {

		return Description{}, xerrors.Errorf("mismatching lengths: %d strategies, "+
			"%d labels, %d rules, %d quantities",
			len(strategies), len(labels), len(kinds), len(quantities))
	}

	rules := make([]Rule, len(strategies))

	for i, s := range strategies {
		if !kinds[i].Valid() {
			return Description{}, xerrors.Errorf("slot %d: unknown rule '%s'", i, kinds[i])
		}

		amount, err := MakeAmount(s, labels[i], quantities[i])
		if err != nil {
			return Description{}, xerrors.Errorf("slot %d: %w", i, err)
		}

		rules[i] = NewRule(kinds[i], amount)
	}

	return Description{rules: rules}, nil
}

// Len returns the number of slots.
func (d Description) Len() int {
	return len(d.rules)
}

// Get returns the rule of the slot.
func (d Description) Get(index int) Rule {
	return d.rules[index]
}

// Rules returns a copy of the rules.
func (d Description) Rules() []Rule {
	rules := make([]Rule, len(d.rules))
	copy(rules, d.rules)

	return rules
}

// Kinds returns the rule tags of every slot.
func (d Description) Kinds() []RuleKind {
	kinds := make([]RuleKind, len(d.rules))
	for i, r := range d.rules {
		kinds[i] = r.kind
	}

	return kinds
}

// Quantities returns the quantities of every slot.
func (d Description) Quantities() []quantity.Quantity {
	quantities := make([]quantity.Quantity, len(d.rules))
	for i, r := range d.rules {
		quantities[i] = r.amount.quantity
	}

	return quantities
}

// Fingerprint writes a deterministic binary representation of the description
// to the writer.
func (d Description) Fingerprint(strategies []quantity.Strategy, w io.Writer) error {
	if len(strategies) != len(d.rules) {
		return xerrors.Errorf("expected %d strategies but got %d", len(d.rules), len(strategies))
	}

	for i, r := range d.rules {
		data, err := strategies[i].Encode(r.amount.quantity)
		if err != nil {
			return xerrors.Errorf("couldn't encode slot %d: %v", i, err)
		}

		_, err = fmt.Fprintf(w, "%s|%s|%x;", r.kind, r.amount.label.Issuer, data)
		if err != nil {
			return xerrors.Errorf("couldn't write slot %d: %v", i, err)
		}
	}

	return nil
}

// Equal returns true if both descriptions have the same length and, at each
// slot, the same rule tag, the same issuer and equal quantities.
func Equal(strategies []quantity.Strategy, left, right Description) bool {
	if left.Len() != right.Len() || len(strategies) < left.Len() {
		return false
	}

	for i, l := range left.rules {
		r := right.rules[i]

		if l.kind != r.kind {
			return false
		}

		if !l.amount.label.Equal(r.amount.label) {
			return false
		}

		if !strategies[i].Equals(l.amount.quantity, r.amount.quantity) {
			return false
		}
	}

	return true
}

// HasRequiredRules returns a predicate that checks the rule tags of an offer
// against the expected pattern, slot by slot.
func HasRequiredRules(kinds ...RuleKind) func(Description) bool {
	expected := make([]RuleKind, len(kinds))
	copy(expected, kinds)

	return func(d Description) bool {
		if d.Len() != len(expected) {
			return false
		}

		for i, kind := range expected {
			if d.rules[i].kind != kind {
				return false
			}
		}

		return true
	}
}
