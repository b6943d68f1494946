package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.dedis.ch/escrow/asset"
	"go.dedis.ch/escrow/asset/mem"
	"go.dedis.ch/escrow/cli"
	"go.dedis.ch/escrow/contracts/refund"
	"go.dedis.ch/escrow/contracts/swap"
	"go.dedis.ch/escrow/invite"
	"go.dedis.ch/escrow/journal"
	"go.dedis.ch/escrow/offer"
	"go.dedis.ch/escrow/quantity"
	"go.dedis.ch/escrow/trade"
	"golang.org/x/xerrors"
)

// contract is the part of a contract instance the runner plays with.
type contract interface {
	Coordinator() *trade.Coordinator
	MakeInvite(role string, desc offer.Description) (invite.Invite, error)
	MakeOffer(ctx context.Context, seat *trade.Seat) (string, error)
	Close() error
}

// party is a seat of the running scenario.
type party struct {
	role string
	seat *trade.Seat
}

// runAction is the action to run a scenario.
//
// - implements cli.Action
type runAction struct {
	out io.Writer
}

// Execute runs the trade of the scenario, waits for its outcome and prints
// what every party gets.
func (a runAction) Execute(flags cli.Flags) error {
	scenario, err := LoadScenario(flags.Path("scenario"))
	if err != nil {
		return err
	}

	var opts []trade.Option

	waiter := newOutcomeWaiter()
	opts = append(opts, trade.WithObserver(waiter))

	if flags.Path("journal") != "" {
		j, err := journal.Open(flags.Path("journal"))
		if err != nil {
			return xerrors.Errorf("failed to open journal: %v", err)
		}

		defer j.Close()

		opts = append(opts, trade.WithObserver(j))
	}

	if flags.String("promaddr") != "" {
		srv, err := startMetrics(flags.String("promaddr"))
		if err != nil {
			return xerrors.Errorf("failed to start metrics: %v", err)
		}

		defer srv.Stop()

		fmt.Fprintf(a.out, "serving metrics on %s\n", srv.Addr())
	}

	timeout := scenario.Timeout
	if flags.Duration("timeout") > 0 {
		timeout = flags.Duration("timeout")
	}

	issuers, err := scenario.MakeIssuers()
	if err != nil {
		return err
	}

	c, err := makeContract(scenario.Contract, issuers, opts...)
	if err != nil {
		return xerrors.Errorf("failed to create contract: %v", err)
	}

	defer c.Close()

	coord := c.Coordinator()

	fmt.Fprintf(a.out, "instance %s of %s\n", coord.InstanceID(), coord.Installation())

	ctx, cancel := context.WithTimeout(context.Background(), timeout+time.Minute)
	defer cancel()

	parties := make([]party, 0, len(scenario.Parties))

	for _, spec := range scenario.Parties {
		seat, err := a.join(ctx, c, issuers, spec)
		if err != nil {
			fmt.Fprintf(a.out, "%s: %v\n", spec.Role, err)
		}

		if seat != nil {
			parties = append(parties, party{role: spec.Role, seat: seat})
		}
	}

	if coord.Status() == trade.Open {
		if timeout > 0 {
			stop := coord.CancelAfter(timeout)
			defer stop()
		} else {
			c.Close()
		}
	}

	outcome, err := waiter.wait(ctx)
	if err != nil {
		return xerrors.Errorf("couldn't get outcome: %v", err)
	}

	fmt.Fprintf(a.out, "outcome: %s", outcome.Status)
	if outcome.Reason != nil {
		fmt.Fprintf(a.out, " (%v)", outcome.Reason)
	}
	fmt.Fprintln(a.out)

	for _, p := range parties {
		a.printPayouts(ctx, p)
	}

	return nil
}

// join creates the seat of the party, checks and redeems its invite, deposits
// and makes the offer. A party that fails to deposit keeps its seat.
func (a runAction) join(ctx context.Context, c contract, issuers []*mem.Issuer,
	spec PartySpec) (*trade.Seat, error) {

	coord := c.Coordinator()

	desc, err := spec.MakeDescription(coord.Terms())
	if err != nil {
		return nil, xerrors.Errorf("invalid offer: %v", err)
	}

	inv, err := c.MakeInvite(spec.Role, desc)
	if err != nil {
		return nil, xerrors.Errorf("no invite: %v", err)
	}

	err = invite.Verify(inv, coord.GetPublicKey())
	if err != nil {
		return nil, xerrors.Errorf("invite not trusted: %v", err)
	}

	seat, err := coord.Redeem(inv)
	if err != nil {
		return nil, xerrors.Errorf("couldn't redeem: %v", err)
	}

	payments, err := mintAll(issuers, spec.Deposits(coord.Terms()))
	if err != nil {
		return seat, err
	}

	_, err = seat.Deposit(payments...).Await(ctx)
	if err != nil {
		return seat, xerrors.Errorf("deposit refused: %v", err)
	}

	msg, err := c.MakeOffer(ctx, seat)
	if err != nil {
		return seat, xerrors.Errorf("offer refused: %v", err)
	}

	fmt.Fprintf(a.out, "%s: %s\n", spec.Role, msg)

	return seat, nil
}

func (a runAction) printPayouts(ctx context.Context, p party) {
	payout, err := p.seat.Payout().Await(ctx)
	if err != nil {
		fmt.Fprintf(a.out, "%s: no payout: %v\n", p.role, err)
	} else {
		fmt.Fprintf(a.out, "%s: payout %v\n", p.role, payout.Amounts)
	}

	refund, err := p.seat.Refund().Await(ctx)
	if err != nil {
		fmt.Fprintf(a.out, "%s: no refund: %v\n", p.role, err)
	} else {
		fmt.Fprintf(a.out, "%s: refund %v\n", p.role, refund.Amounts)
	}
}

// showAction is the action to print the records of a journal.
//
// - implements cli.Action
type showAction struct {
	out io.Writer
}

// Execute prints either a single record or every record of the journal.
func (a showAction) Execute(flags cli.Flags) error {
	j, err := journal.Open(flags.Path("journal"))
	if err != nil {
		return xerrors.Errorf("failed to open journal: %v", err)
	}

	defer j.Close()

	id := flags.String("instance")
	if id != "" {
		record, err := j.Get(id)
		if err != nil {
			return err
		}

		a.print(record)

		return nil
	}

	return j.ForEach(func(record journal.Record) error {
		a.print(record)
		return nil
	})
}

func (a showAction) print(record journal.Record) {
	fmt.Fprintf(a.out, "%s %s %s", record.Time.Format(time.RFC3339), record.InstanceID, record.Status)
	if record.Reason != "" {
		fmt.Fprintf(a.out, " (%s)", record.Reason)
	}
	fmt.Fprintln(a.out)

	for _, seat := range record.Seats {
		fmt.Fprintf(a.out, "  %d %s:", seat.Index, seat.Role)

		for _, amount := range seat.Amounts {
			name := amount.Name
			if name == "" {
				name = amount.Issuer
			}

			fmt.Fprintf(a.out, " %s %s", amount.Quantity, name)
		}

		fmt.Fprintln(a.out)
	}
}

func makeContract(name string, issuers []*mem.Issuer, opts ...trade.Option) (contract, error) {
	list := make([]asset.Issuer, len(issuers))
	for i, issuer := range issuers {
		list[i] = issuer
	}

	switch name {
	case contractSwap:
		return swap.NewSwap(list, opts...)
	case contractRefund:
		return refund.NewRefund(list, opts...)
	default:
		return nil, xerrors.Errorf("unknown contract '%s'", name)
	}
}

// mintAll mints a payment for every non-empty quantity. An empty quantity
// gives a nil payment.
func mintAll(issuers []*mem.Issuer, quantities []quantity.Quantity) ([]asset.Payment, error) {
	payments := make([]asset.Payment, len(quantities))

	for i, q := range quantities {
		issuer := issuers[i]

		if quantity.IsEmpty(issuer.GetStrategy(), q) {
			continue
		}

		purse, err := issuer.Mint(q)
		if err != nil {
			return nil, xerrors.Errorf("couldn't mint '%v': %v", q, err)
		}

		payments[i], err = purse.WithdrawAll()
		if err != nil {
			return nil, xerrors.Errorf("couldn't withdraw '%v': %v", q, err)
		}
	}

	return payments, nil
}

// outcomeWaiter is an observer that catches the outcome of the instance.
//
// - implements trade.Observer
type outcomeWaiter struct {
	ch chan trade.Outcome
}

func newOutcomeWaiter() outcomeWaiter {
	return outcomeWaiter{
		ch: make(chan trade.Outcome, 1),
	}
}

// NotifyCallback implements trade.Observer.
func (w outcomeWaiter) NotifyCallback(event trade.Event) {
	if event.Outcome == nil {
		return
	}

	select {
	case w.ch <- *event.Outcome:
	default:
	}
}

func (w outcomeWaiter) wait(ctx context.Context) (trade.Outcome, error) {
	select {
	case outcome := <-w.ch:
		return outcome, nil
	case <-ctx.Done():
		return trade.Outcome{}, ctx.Err()
	}
}
