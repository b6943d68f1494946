package contracts

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/escrow/asset"
	"go.dedis.ch/escrow/asset/mem"
	"go.dedis.ch/escrow/internal/testing/fake"
	"go.dedis.ch/escrow/offer"
	"go.dedis.ch/escrow/quantity"
	"go.dedis.ch/escrow/quantity/nat"
	"go.dedis.ch/escrow/trade"
	"golang.org/x/xerrors"
)

func TestNewInstallation(t *testing.T) {
	first := NewInstallation("swap")
	require.True(t, strings.HasPrefix(first, "swap:"))

	second := NewInstallation("swap")
	require.NotEqual(t, first, second)
}

func TestRejectOffer(t *testing.T) {
	ctx := newContext(t)

	env := newEnv(t)
	defer env.coord.Close()

	env.deposit(t)

	err := RejectOffer(ctx, env.coord, 0, "")
	require.EqualError(t, err, DefaultRejectMsg)

	refund, err := env.seat.Refund().Await(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(3), collect(t, env.moola, refund.Payments[0]))

	_, err = env.seat.Payout().Await(ctx)
	require.EqualError(t, err, DefaultRejectMsg)

	// The seat has left already but the rejection is still returned.
	err = RejectOffer(ctx, env.coord, 0, "not again")
	require.EqualError(t, err, "not again")

	require.Equal(t, trade.Open, env.coord.Status())
}

func TestMethod_Call(t *testing.T) {
	ctx := newContext(t)

	env := newEnv(t)
	defer env.coord.Close()

	env.deposit(t)

	calls := 0

	method := Method{
		Coordinator:  env.coord,
		IsValidOffer: offer.HasRequiredRules(offer.OfferExactly, offer.WantExactly),
		Handle: func(ctx context.Context, seat int) (*trade.Proposal, error) {
			calls++
			return nil, nil
		},
	}

	msg, err := method.Call(ctx, env.seat)
	require.NoError(t, err)
	require.Equal(t, DefaultAcceptanceMsg, msg)
	require.Equal(t, 1, calls)

	method.SuccessMsg = "deal"
	method.Handle = func(ctx context.Context, seat int) (*trade.Proposal, error) {
		proposal := &trade.Proposal{
			Seats:      []int{seat},
			Quantities: [][]quantity.Quantity{{uint64(3), uint64(0)}},
		}

		return proposal, nil
	}

	// The seat doesn't get what it wants.
	_, err = method.Call(ctx, env.seat)
	require.Error(t, err)
	require.Regexp(t, "^couldn't settle: seat 0: ", err.Error())

	var mismatch trade.RuleMismatchError
	require.True(t, xerrors.As(err, &mismatch))
	require.Equal(t, trade.Open, env.coord.Status())

	_, err = env.coord.Cancel(nil).Await(ctx)
	require.NoError(t, err)

	_, err = method.Call(ctx, env.seat)
	require.True(t, xerrors.Is(err, trade.ErrNotEscrowed))
}

func TestMethod_CallFailures(t *testing.T) {
	ctx := newContext(t)

	env := newEnv(t)
	defer env.coord.Close()

	method := Method{
		Coordinator: env.coord,
		Handle: func(context.Context, int) (*trade.Proposal, error) {
			return nil, fake.GetError()
		},
	}

	_, err := method.Call(ctx, env.seat)
	require.True(t, xerrors.Is(err, trade.ErrNotEscrowed))

	other := newEnv(t)
	defer other.coord.Close()

	_, err = method.Call(ctx, other.seat)
	require.EqualError(t, err, "seat 'Seat[0:A@"+other.coord.InstanceID()+
		"]' belongs to another instance")

	_, err = method.Call(ctx, nil)
	require.EqualError(t, err, "seat 'Seat[none]' belongs to another instance")

	_, err = method.Call(ctx, &trade.Seat{})
	require.EqualError(t, err, "seat 'Seat[none]' belongs to another instance")

	env.deposit(t)

	_, err = method.Call(ctx, env.seat)
	require.Equal(t, fake.GetError(), err)

	method.IsValidOffer = offer.HasRequiredRules(offer.WantExactly)
	method.RejectMsg = "wrong shape"

	_, err = method.Call(ctx, env.seat)
	require.EqualError(t, err, "wrong shape")

	refund, err := env.seat.Refund().Await(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(3), collect(t, env.moola, refund.Payments[0]))
}

// -----------------------------------------------------------------------------
// Utility functions

func newContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	return ctx
}

type env struct {
	moola    *mem.Issuer
	simolean *mem.Issuer
	coord    *trade.Coordinator
	seat     *trade.Seat
}

// newEnv creates a trade with a single seat that offers 3 moola for 7
// simoleans.
func newEnv(t *testing.T) env {
	moola := mem.NewIssuer("moola", nat.NewStrategy())
	simolean := mem.NewIssuer("simolean", nat.NewStrategy())

	coord, err := trade.NewCoordinator(NewInstallation("test"), []asset.Issuer{moola, simolean})
	require.NoError(t, err)

	give, err := moola.MakeAmount(uint64(3))
	require.NoError(t, err)

	want, err := simolean.MakeAmount(uint64(7))
	require.NoError(t, err)

	inv, err := coord.AddSeat("A", offer.NewDescription(
		offer.NewRule(offer.OfferExactly, give),
		offer.NewRule(offer.WantExactly, want),
	))
	require.NoError(t, err)

	seat, err := coord.Redeem(inv)
	require.NoError(t, err)

	return env{
		moola:    moola,
		simolean: simolean,
		coord:    coord,
		seat:     seat,
	}
}

func (e env) deposit(t *testing.T) {
	purse, err := e.moola.Mint(uint64(3))
	require.NoError(t, err)

	payment, err := purse.WithdrawAll()
	require.NoError(t, err)

	_, err = e.seat.Deposit(payment).Await(newContext(t))
	require.NoError(t, err)
}

func collect(t *testing.T, issuer *mem.Issuer, payment asset.Payment) uint64 {
	purse := issuer.MakeEmptyPurse()

	_, err := purse.Deposit(payment)
	require.NoError(t, err)

	return purse.GetBalance().GetQuantity().(uint64)
}
