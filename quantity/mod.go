// Package quantity defines the arithmetic over asset quantities.
//
// A strategy is the only component that knows what a quantity looks like. The
// rest of the library handles quantities as opaque values and delegates every
// combination, comparison and validation to the strategy of the asset slot.
//
// Implementations must guarantee that With is associative and commutative and
// that Without(With(a, b), b) equals a.
package quantity

import "fmt"

// Quantity is an opaque quantity of an asset. Only the strategy of the asset
// can interpret it.
type Quantity interface{}

// Strategy is the arithmetic of one kind of asset.
type Strategy interface {
	// Name returns the name of the strategy. Two strategies with the same name
	// must interpret quantities the same way.
	Name() string

	// Empty returns the neutral quantity.
	Empty() Quantity

	// With combines both quantities.
	With(a, b Quantity) (Quantity, error)

	// Without removes b from a. It returns an UnderflowError if b is not
	// included in a.
	Without(a, b Quantity) (Quantity, error)

	// Equals returns true when both quantities are the same.
	Equals(a, b Quantity) bool

	// InsistKind returns a MalformedQuantityError if the quantity is not valid
	// for the strategy.
	InsistKind(q Quantity) error

	// Encode returns a canonical binary representation of the quantity.
	Encode(q Quantity) ([]byte, error)

	// Decode returns the quantity from its canonical binary representation.
	Decode(data []byte) (Quantity, error)
}

// MalformedQuantityError is returned when a quantity does not pass the
// validation of its strategy.
type MalformedQuantityError struct {
	Strategy string
	Quantity Quantity
	Reason   string
}

// Error implements error.
func (e MalformedQuantityError) Error() string {
	return fmt.Sprintf("malformed %s quantity '%v': %s", e.Strategy, e.Quantity, e.Reason)
}

// UnderflowError is returned when a quantity cannot be removed from another.
type UnderflowError struct {
	Strategy string
	Left     Quantity
	Right    Quantity
}

// Error implements error.
func (e UnderflowError) Error() string {
	return fmt.Sprintf("%s underflow: '%v' is not included in '%v'", e.Strategy, e.Right, e.Left)
}

// IsEmpty returns true if the quantity is the neutral quantity of the strategy.
func IsEmpty(s Strategy, q Quantity) bool {
	return s.Equals(q, s.Empty())
}

// Includes returns true if b can be removed from a.
func Includes(s Strategy, a, b Quantity) bool {
	_, err := s.Without(a, b)
	return err == nil
}
