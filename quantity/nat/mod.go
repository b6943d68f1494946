// Package nat implements the strategy of fungible assets. A quantity is a
// natural number stored as an uint64.
package nat

import (
	"encoding/binary"
	"fmt"
	"math/bits"

	"go.dedis.ch/escrow/quantity"
	"golang.org/x/xerrors"
)

// StrategyName is the name of the fungible strategy.
const StrategyName = "nat"

// Strategy is the strategy of fungible assets.
//
// - implements quantity.Strategy
type Strategy struct{}

// NewStrategy returns a new fungible strategy.
func NewStrategy() Strategy {
	return Strategy{}
}

// Name implements quantity.Strategy.
func (Strategy) Name() string {
	return StrategyName
}

// Empty implements quantity.Strategy. It returns zero.
func (Strategy) Empty() quantity.Quantity {
	return uint64(0)
}

// With implements quantity.Strategy. It returns the sum of both quantities or
// an error if it overflows.
func (s Strategy) With(a, b quantity.Quantity) (quantity.Quantity, error) {
	left, right, err := s.pair(a, b)
	if err != nil {
		return nil, err
	}

	sum, err := Add(left, right)
	if err != nil {
		return nil, err
	}

	return sum, nil
}

// Without implements quantity.Strategy. It returns the difference or an
// UnderflowError if b is greater than a.
func (s Strategy) Without(a, b quantity.Quantity) (quantity.Quantity, error) {
	left, right, err := s.pair(a, b)
	if err != nil {
		return nil, err
	}

	diff, err := Subtract(left, right)
	if err != nil {
		return nil, err
	}

	return diff, nil
}

// Equals implements quantity.Strategy.
func (Strategy) Equals(a, b quantity.Quantity) bool {
	left, ok := a.(uint64)
	if !ok {
		return false
	}

	right, ok := b.(uint64)
	if !ok {
		return false
	}

	return left == right
}

// InsistKind implements quantity.Strategy. Only uint64 values are accepted.
func (Strategy) InsistKind(q quantity.Quantity) error {
	_, ok := q.(uint64)
	if !ok {
		return quantity.MalformedQuantityError{
			Strategy: StrategyName,
			Quantity: q,
			Reason:   fmt.Sprintf("expected uint64 but got %T", q),
		}
	}

	return nil
}

// Encode implements quantity.Strategy. The quantity is encoded as 8 bytes in
// big endian.
func (s Strategy) Encode(q quantity.Quantity) ([]byte, error) {
	err := s.InsistKind(q)
	if err != nil {
		return nil, err
	}

	buffer := make([]byte, 8)
	binary.BigEndian.PutUint64(buffer, q.(uint64))

	return buffer, nil
}

// Decode implements quantity.Strategy.
func (Strategy) Decode(data []byte) (quantity.Quantity, error) {
	if len(data) != 8 {
		return nil, xerrors.Errorf("invalid length %d", len(data))
	}

	return binary.BigEndian.Uint64(data), nil
}

func (s Strategy) pair(a, b quantity.Quantity) (uint64, uint64, error) {
	err := s.InsistKind(a)
	if err != nil {
		return 0, 0, err
	}

	err = s.InsistKind(b)
	if err != nil {
		return 0, 0, err
	}

	return a.(uint64), b.(uint64), nil
}

// Add returns x+y or an error if it overflows.
func Add(x, y uint64) (uint64, error) {
	sum, carry := bits.Add64(x, y, 0)
	if carry != 0 {
		return 0, xerrors.Errorf("overflow: %d + %d", x, y)
	}

	return sum, nil
}

// Subtract returns x-y or an UnderflowError if y is greater than x.
func Subtract(x, y uint64) (uint64, error) {
	if y > x {
		return 0, quantity.UnderflowError{Strategy: StrategyName, Left: x, Right: y}
	}

	return x - y, nil
}

// Multiply returns x*y or an error if it overflows.
func Multiply(x, y uint64) (uint64, error) {
	hi, lo := bits.Mul64(x, y)
	if hi != 0 {
		return 0, xerrors.Errorf("overflow: %d * %d", x, y)
	}

	return lo, nil
}

// Divide returns the floor of x/y. Dividing by zero is an error.
func Divide(x, y uint64) (uint64, error) {
	if y == 0 {
		return 0, xerrors.New("division by zero")
	}

	return x / y, nil
}
