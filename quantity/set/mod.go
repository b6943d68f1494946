// Package set implements the strategy of non-fungible assets. A quantity is a
// set of unique item identifiers.
package set

import (
	"encoding/json"
	"fmt"
	"sort"

	"go.dedis.ch/escrow/quantity"
	"golang.org/x/xerrors"
)

// StrategyName is the name of the set strategy.
const StrategyName = "set"

// Items is a sorted list of unique item identifiers. It should be created with
// New so that the order is respected.
type Items []string

// New returns the set of the identifiers. Duplicates are ignored.
func New(ids ...string) Items {
	items := make(Items, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))

	for _, id := range ids {
		_, found := seen[id]
		if found {
			continue
		}

		seen[id] = struct{}{}
		items = append(items, id)
	}

	sort.Strings(items)

	return items
}

// Contains returns true if the identifier is part of the set.
func (items Items) Contains(id string) bool {
	i := sort.SearchStrings(items, id)
	return i < len(items) && items[i] == id
}

// Strategy is the strategy of non-fungible assets.
//
// - implements quantity.Strategy
type Strategy struct{}

// NewStrategy returns a new set strategy.
func NewStrategy() Strategy {
	return Strategy{}
}

// Name implements quantity.Strategy.
func (Strategy) Name() string {
	return StrategyName
}

// Empty implements quantity.Strategy. It returns the empty set.
func (Strategy) Empty() quantity.Quantity {
	return Items{}
}

// With implements quantity.Strategy. It returns the union of both sets, or an
// error if an item belongs to both of them.
func (s Strategy) With(a, b quantity.Quantity) (quantity.Quantity, error) {
	left, right, err := s.pair(a, b)
	if err != nil {
		return nil, err
	}

	union := make(Items, 0, len(left)+len(right))
	union = append(union, left...)

	for _, id := range right {
		if left.Contains(id) {
			return nil, xerrors.Errorf("item '%s' is in both sets", id)
		}

		union = append(union, id)
	}

	sort.Strings(union)

	return union, nil
}

// Without implements quantity.Strategy. It returns the difference of the sets,
// or an UnderflowError if b is not a subset of a.
func (s Strategy) Without(a, b quantity.Quantity) (quantity.Quantity, error) {
	left, right, err := s.pair(a, b)
	if err != nil {
		return nil, err
	}

	for _, id := range right {
		if !left.Contains(id) {
			return nil, quantity.UnderflowError{Strategy: StrategyName, Left: left, Right: right}
		}
	}

	diff := make(Items, 0, len(left))
	for _, id := range left {
		if !right.Contains(id) {
			diff = append(diff, id)
		}
	}

	return diff, nil
}

// Equals implements quantity.Strategy.
func (s Strategy) Equals(a, b quantity.Quantity) bool {
	left, right, err := s.pair(a, b)
	if err != nil {
		return false
	}

	if len(left) != len(right) {
		return false
	}

	for i := range left {
		if left[i] != right[i] {
			return false
		}
	}

	return true
}

// InsistKind implements quantity.Strategy. The quantity must be a sorted list
// of unique and non-empty identifiers.
func (Strategy) InsistKind(q quantity.Quantity) error {
	items, ok := q.(Items)
	if !ok {
		return quantity.MalformedQuantityError{
			Strategy: StrategyName,
			Quantity: q,
			Reason:   fmt.Sprintf("expected set.Items but got %T", q),
		}
	}

	for i, id := range items {
		if id == "" {
			return quantity.MalformedQuantityError{
				Strategy: StrategyName,
				Quantity: q,
				Reason:   "empty identifier",
			}
		}

		if i > 0 && items[i-1] >= id {
			return quantity.MalformedQuantityError{
				Strategy: StrategyName,
				Quantity: q,
				Reason:   "identifiers must be sorted and unique",
			}
		}
	}

	return nil
}

// Encode implements quantity.Strategy. The set is encoded as a JSON array.
func (s Strategy) Encode(q quantity.Quantity) ([]byte, error) {
	err := s.InsistKind(q)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal([]string(q.(Items)))
	if err != nil {
		return nil, xerrors.Errorf("failed to marshal: %v", err)
	}

	return data, nil
}

// Decode implements quantity.Strategy.
func (s Strategy) Decode(data []byte) (quantity.Quantity, error) {
	var ids []string

	err := json.Unmarshal(data, &ids)
	if err != nil {
		return nil, xerrors.Errorf("failed to unmarshal: %v", err)
	}

	items := Items(ids)
	if items == nil {
		items = Items{}
	}

	err = s.InsistKind(items)
	if err != nil {
		return nil, err
	}

	return items, nil
}

func (s Strategy) pair(a, b quantity.Quantity) (Items, Items, error) {
	err := s.InsistKind(a)
	if err != nil {
		return nil, nil, err
	}

	err = s.InsistKind(b)
	if err != nil {
		return nil, nil, err
	}

	return a.(Items), b.(Items), nil
}
