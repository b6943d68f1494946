package trade

import (
	"fmt"

	"go.dedis.ch/escrow/core/store"
	"go.dedis.ch/escrow/offer"
	"go.dedis.ch/escrow/quantity"
	"golang.org/x/xerrors"
)

// Status returns the status of the instance.
func (c *Coordinator) Status() Status {
	var status Status

	err := c.call(func() error {
		status = c.status
		return nil
	})

	if err != nil {
		// The goroutine is over and the state cannot change anymore.
		<-c.stopped
		return c.status
	}

	return status
}

// Outcome returns the outcome of the instance, or nil if it is still open.
func (c *Coordinator) Outcome() *Outcome {
	var outcome *Outcome

	err := c.call(func() error {
		outcome = c.outcome
		return nil
	})

	if err != nil {
		<-c.stopped
		return c.outcome
	}

	return outcome
}

// NumSeats returns the number of seats of the instance.
func (c *Coordinator) NumSeats() (int, error) {
	var num int

	err := c.call(func() error {
		num = len(c.seats)
		return nil
	})

	return num, err
}

// SeatStatus returns the status of the seat.
func (c *Coordinator) SeatStatus(index int) (SeatStatus, error) {
	var status SeatStatus

	err := c.call(func() error {
		seat, err := c.getSeat(index)
		if err != nil {
			return err
		}

		status = seat.status

		return nil
	})

	return status, err
}

// SeatDescription returns the offer of the seat.
func (c *Coordinator) SeatDescription(index int) (offer.Description, error) {
	var desc offer.Description

	err := c.call(func() error {
		seat, err := c.getSeat(index)
		if err != nil {
			return err
		}

		desc = seat.desc

		return nil
	})

	return desc, err
}

// Deposited returns the amounts escrowed by the seat. It fails with
// ErrNotEscrowed if the seat has not deposited.
func (c *Coordinator) Deposited(index int) ([]offer.Amount, error) {
	var amounts [][]offer.Amount

	err := c.call(func() error {
		seat, err := c.getSeat(index)
		if err != nil {
			return err
		}

		if seat.deposit == nil {
			return xerrors.Errorf("seat %d: %w", index, ErrNotEscrowed)
		}

		amounts, err = offer.ToAmountMatrix(c.strategies, c.terms.Labels(),
			[][]quantity.Quantity{seat.deposit})
		if err != nil {
			return err
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	return amounts[0], nil
}

// Allocation returns the current allocation of the seat.
func (c *Coordinator) Allocation(index int) ([]offer.Amount, error) {
	var amounts [][]offer.Amount

	err := c.call(func() error {
		_, err := c.getSeat(index)
		if err != nil {
			return err
		}

		row, err := c.currentRow(index)
		if err != nil {
			return xerrors.Errorf("couldn't read allocation: %v", err)
		}

		amounts, err = offer.ToAmountMatrix(c.strategies, c.terms.Labels(), [][]quantity.Quantity{row})

		return err
	})

	if err != nil {
		return nil, err
	}

	return amounts[0], nil
}

func (c *Coordinator) getSeat(index int) (*seatState, error) {
	if index < 0 || index >= len(c.seats) {
		return nil, xerrors.Errorf("unknown seat %d", index)
	}

	return c.seats[index], nil
}

func (c *Coordinator) currentMatrix() ([][]quantity.Quantity, error) {
	matrix := make([][]quantity.Quantity, len(c.seats))

	for index := range c.seats {
		row, err := c.currentRow(index)
		if err != nil {
			return nil, err
		}

		matrix[index] = row
	}

	return matrix, nil
}

func (c *Coordinator) currentRow(index int) ([]quantity.Quantity, error) {
	row := make([]quantity.Quantity, len(c.strategies))

	for slot, s := range c.strategies {
		data, err := c.allocation.Get(allocationKey(index, slot))
		if err != nil {
			return nil, err
		}

		q, err := s.Decode(data)
		if err != nil {
			return nil, xerrors.Errorf("couldn't decode seat %d slot %d: %v", index, slot, err)
		}

		row[slot] = q
	}

	return row, nil
}

// stage returns the allocation where the rows of the seats are replaced. The
// current allocation is left untouched.
func (c *Coordinator) stage(seats []int, rows [][]quantity.Quantity) (store.Staging, error) {
	return c.allocation.Stage(func(snap store.Snapshot) error {
		for i, index := range seats {
			for slot, q := range rows[i] {
				data, err := c.strategies[slot].Encode(q)
				if err != nil {
					return xerrors.Errorf("couldn't encode seat %d slot %d: %v", index, slot, err)
				}

				err = snap.Set(allocationKey(index, slot), data)
				if err != nil {
					return xerrors.Errorf("couldn't write seat %d slot %d: %v", index, slot, err)
				}
			}
		}

		return nil
	})
}

func allocationKey(seat, slot int) []byte {
	return []byte(fmt.Sprintf("%d:%d", seat, slot))
}
