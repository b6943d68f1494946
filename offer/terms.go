package offer

import (
	"fmt"
	"io"

	"go.dedis.ch/escrow/quantity"
	"golang.org/x/xerrors"
)

// Slot declares the asset kind of one position of the offers.
type Slot struct {
	Label    Label
	Strategy quantity.Strategy
}

// Terms are the asset slots of a trade. Every offer description of the trade
// is aligned with them.
type Terms struct {
	slots []Slot
}

// NewTerms returns the terms made of the slots.
func NewTerms(slots ...Slot) Terms {
	copied := make([]Slot, len(slots))
	copy(copied, slots)

	return Terms{slots: copied}
}

// Len returns the number of slots.
func (t Terms) Len() int {
	return len(t.slots)
}

// GetSlot returns the slot at the index.
func (t Terms) GetSlot(index int) Slot {
	return t.slots[index]
}

// Labels returns the labels of the slots.
func (t Terms) Labels() []Label {
	labels := make([]Label, len(t.slots))
	for i, s := range t.slots {
		labels[i] = s.Label
	}

	return labels
}

// Strategies returns the strategies of the slots.
func (t Terms) Strategies() []quantity.Strategy {
	strategies := make([]quantity.Strategy, len(t.slots))
	for i, s := range t.slots {
		strategies[i] = s.Strategy
	}

	return strategies
}

// Equal returns true if both terms declare the same issuers and strategies in
// the same order.
func (t Terms) Equal(other Terms) bool {
	if len(t.slots) != len(other.slots) {
		return false
	}

	for i, s := range t.slots {
		o := other.slots[i]

		if !s.Label.Equal(o.Label) || s.Strategy.Name() != o.Strategy.Name() {
			return false
		}
	}

	return true
}

// Fingerprint writes a deterministic binary representation of the terms.
func (t Terms) Fingerprint(w io.Writer) error {
	for i, s := range t.slots {
		_, err := fmt.Fprintf(w, "%s|%s;", s.Label.Issuer, s.Strategy.Name())
		if err != nil {
			return xerrors.Errorf("couldn't write slot %d: %v", i, err)
		}
	}

	return nil
}

// Validate checks that the description is aligned with the terms and that
// every quantity is well-formed.
func (t Terms) Validate(d Description) error {
	if d.Len() != len(t.slots) {
		return xerrors.Errorf("expected %d slots but got %d", len(t.slots), d.Len())
	}

	for i, rule := range d.rules {
		slot := t.slots[i]

		if !rule.kind.Valid() {
			return xerrors.Errorf("slot %d: unknown rule '%s'", i, rule.kind)
		}

		if !rule.amount.label.Equal(slot.Label) {
			return xerrors.Errorf("slot %d: expected label '%s' but got '%s'",
				i, slot.Label, rule.amount.label)
		}

		err := slot.Strategy.InsistKind(rule.amount.quantity)
		if err != nil {
			return xerrors.Errorf("slot %d: %w", i, err)
		}
	}

	return nil
}

// EmptyAmounts returns the empty amount of every slot.
func (t Terms) EmptyAmounts() []Amount {
	amounts := make([]Amount, len(t.slots))
	for i, s := range t.slots {
		amounts[i] = EmptyAmount(s.Strategy, s.Label)
	}

	return amounts
}
