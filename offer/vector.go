package offer

import (
	"go.dedis.ch/escrow/quantity"
	"golang.org/x/xerrors"
)

// EmptyQuantities returns the empty quantity of every strategy.
func EmptyQuantities(strategies []quantity.Strategy) []quantity.Quantity {
	quantities := make([]quantity.Quantity, len(strategies))
	for i, s := range strategies {
		quantities[i] = s.Empty()
	}

	return quantities
}

// VectorWith combines the quantities slot by slot.
func VectorWith(strategies []quantity.Strategy, left, right []quantity.Quantity) ([]quantity.Quantity, error) {
	if len(left) != len(strategies) || len(right) != len(strategies) {
		return nil, xerrors.Errorf("vectors of size %d and %d for %d strategies",
			len(left), len(right), len(strategies))
	}

	res := make([]quantity.Quantity, len(strategies))

	for i, s := range strategies {
		q, err := s.With(left[i], right[i])
		if err != nil {
			return nil, xerrors.Errorf("slot %d: %w", i, err)
		}

		res[i] = q
	}

	return res, nil
}

// VectorWithout removes the right quantities from the left ones slot by slot.
func VectorWithout(strategies []quantity.Strategy, left, right []quantity.Quantity) ([]quantity.Quantity, error) {
	if len(left) != len(strategies) || len(right) != len(strategies) {
		return nil, xerrors.Errorf("vectors of size %d and %d for %d strategies",
			len(left), len(right), len(strategies))
	}

	res := make([]quantity.Quantity, len(strategies))

	for i, s := range strategies {
		q, err := s.Without(left[i], right[i])
		if err != nil {
			return nil, xerrors.Errorf("slot %d: %w", i, err)
		}

		res[i] = q
	}

	return res, nil
}

// Sum returns the combination of every vector of the matrix.
func Sum(strategies []quantity.Strategy, matrix [][]quantity.Quantity) ([]quantity.Quantity, error) {
	total := EmptyQuantities(strategies)

	for i, row := range matrix {
		next, err := VectorWith(strategies, total, row)
		if err != nil {
			return nil, xerrors.Errorf("row %d: %w", i, err)
		}

		total = next
	}

	return total, nil
}

// Transpose returns the transposed matrix, so that rows per party become rows
// per asset slot. Every row must have the same length.
func Transpose(matrix [][]quantity.Quantity) [][]quantity.Quantity {
	if len(matrix) == 0 {
		return nil
	}

	res := make([][]quantity.Quantity, len(matrix[0]))
	for i := range res {
		res[i] = make([]quantity.Quantity, len(matrix))

		for j, row := range matrix {
			res[i][j] = row[i]
		}
	}

	return res
}

// ToAmountMatrix converts a matrix of quantities into a matrix of amounts.
func ToAmountMatrix(strategies []quantity.Strategy, labels []Label,
	matrix [][]quantity.Quantity) ([][]Amount, error) {

	res := make([][]Amount, len(matrix))

	for i, row := range matrix {
		if len(row) != len(strategies) || len(labels) != len(strategies) {
			return nil, xerrors.Errorf("row %d: expected %d slots but got %d", i, len(strategies), len(row))
		}

		res[i] = make([]Amount, len(row))

		for j, q := range row {
			amount, err := MakeAmount(strategies[j], labels[j], q)
			if err != nil {
				return nil, xerrors.Errorf("row %d slot %d: %w", i, j, err)
			}

			res[i][j] = amount
		}
	}

	return res, nil
}

// QuantitiesOf returns the quantities of the amounts. A zero amount stands for
// the empty quantity of the slot.
func QuantitiesOf(strategies []quantity.Strategy, amounts []Amount) []quantity.Quantity {
	quantities := make([]quantity.Quantity, len(strategies))

	for i, s := range strategies {
		if i >= len(amounts) || amounts[i].IsZero() {
			quantities[i] = s.Empty()
		} else {
			quantities[i] = amounts[i].quantity
		}
	}

	return quantities
}
