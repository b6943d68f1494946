package trade

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/xid"
	"github.com/rs/zerolog"
	"go.dedis.ch/escrow"
	"go.dedis.ch/escrow/asset"
	"go.dedis.ch/escrow/core/store"
	"go.dedis.ch/escrow/core/store/mem"
	"go.dedis.ch/escrow/crypto"
	"go.dedis.ch/escrow/invite"
	"go.dedis.ch/escrow/invite/registry"
	"go.dedis.ch/escrow/offer"
	"go.dedis.ch/escrow/promise"
	"go.dedis.ch/escrow/quantity"
	"golang.org/x/xerrors"
)

const defaultQueueSize = 16

// ErrTimeout is the reason of a cancellation triggered by CancelAfter.
var ErrTimeout = xerrors.New("timeout")

type config struct {
	logger     *zerolog.Logger
	observers  []Observer
	queueSize  int
	registry   []registry.Option
	instanceID string
}

// Option is the type of options to create a coordinator.
type Option func(*config)

// WithLogger sets the logger of the coordinator.
func WithLogger(logger zerolog.Logger) Option {
	return func(cfg *config) {
		cfg.logger = &logger
	}
}

// WithObserver adds an observer of the events of the instance.
func WithObserver(obs Observer) Option {
	return func(cfg *config) {
		cfg.observers = append(cfg.observers, obs)
	}
}

// WithQueueSize sets the number of requests that can wait for the coordinator
// before a caller is blocked.
func WithQueueSize(size int) Option {
	return func(cfg *config) {
		cfg.queueSize = size
	}
}

// WithRegistryOptions sets the options of the invite registry of the instance.
func WithRegistryOptions(opts ...registry.Option) Option {
	return func(cfg *config) {
		cfg.registry = append(cfg.registry, opts...)
	}
}

// WithInstanceID sets the identifier of the instance instead of a random one.
func WithInstanceID(id string) Option {
	return func(cfg *config) {
		cfg.instanceID = id
	}
}

// Coordinator is the single owner of a trade instance. Every state transition
// happens in its goroutine, one request after the other.
type Coordinator struct {
	installation string
	instanceID   string
	issuers      []asset.Issuer
	terms        offer.Terms
	strategies   []quantity.Strategy
	invites      *registry.Registry
	logger       zerolog.Logger
	watcher      *Watcher

	// The following fields are only accessed by the goroutine of the
	// coordinator.
	purses     []asset.Purse
	seats      []*seatState
	allocation store.Staging
	status     Status
	outcome    *Outcome

	lock    sync.RWMutex
	closed  bool
	queue   chan func()
	stopped chan struct{}
}

// NewCoordinator creates a trade instance of the installation over the assets
// of the issuers, one slot per issuer, and starts its goroutine.
func NewCoordinator(installation string, issuers []asset.Issuer, opts ...Option) (*Coordinator, error) {
	if len(issuers) == 0 {
		return nil, xerrors.New("no issuer")
	}

	seen := make(map[string]struct{})
	for _, issuer := range issuers {
		label := issuer.GetLabel()

		_, found := seen[label.Issuer]
		if found {
			return nil, xerrors.Errorf("issuer '%s' appears twice", label)
		}

		seen[label.Issuer] = struct{}{}
	}

	cfg := config{
		queueSize:  defaultQueueSize,
		instanceID: xid.New().String(),
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	logger := escrow.Logger.With().Str("instance", cfg.instanceID).Logger()
	if cfg.logger != nil {
		logger = *cfg.logger
	}

	regOpts := append([]registry.Option{registry.WithLogger(logger)}, cfg.registry...)

	terms := asset.Terms(issuers...)

	c := &Coordinator{
		installation: installation,
		instanceID:   cfg.instanceID,
		issuers:      append([]asset.Issuer{}, issuers...),
		terms:        terms,
		strategies:   terms.Strategies(),
		invites:      registry.NewRegistry(installation, cfg.instanceID, regOpts...),
		logger:       logger,
		watcher:      NewWatcher(),
		purses:       make([]asset.Purse, len(issuers)),
		allocation:   mem.NewTrie(),
		status:       Open,
		queue:        make(chan func(), cfg.queueSize),
		stopped:      make(chan struct{}),
	}

	for i, issuer := range issuers {
		c.purses[i] = issuer.MakeEmptyPurse()
	}

	for _, obs := range cfg.observers {
		c.watcher.Add(obs)
	}

	promOpen.Inc()

	go c.listen()

	return c, nil
}

// InstanceID returns the unique identifier of the trade instance.
func (c *Coordinator) InstanceID() string {
	return c.instanceID
}

// Installation returns the identifier of the contract running the trade.
func (c *Coordinator) Installation() string {
	return c.installation
}

// Terms returns the asset slots of the trade.
func (c *Coordinator) Terms() offer.Terms {
	return c.terms
}

// GetPublicKey returns the key that verifies the invites of the instance.
func (c *Coordinator) GetPublicKey() crypto.PublicKey {
	return c.invites.GetPublicKey()
}

// Close cancels the instance if it is still open and stops the goroutine. It
// waits for every pending request to be processed.
func (c *Coordinator) Close() error {
	c.Cancel(ErrClosed).Await(context.Background())

	c.lock.Lock()
	if c.closed {
		c.lock.Unlock()
		return nil
	}

	c.closed = true
	close(c.queue)
	c.lock.Unlock()

	<-c.stopped

	return nil
}

func (c *Coordinator) listen() {
	defer close(c.stopped)

	for req := range c.queue {
		req()
	}

	c.logger.Trace().Msg("coordinator stopped")
}

// submit queues the request for the goroutine of the coordinator.
func (c *Coordinator) submit(req func()) error {
	c.lock.RLock()
	defer c.lock.RUnlock()

	if c.closed {
		return ErrClosed
	}

	c.queue <- req

	return nil
}

// call runs the function in the goroutine of the coordinator and waits for its
// result.
func (c *Coordinator) call(fn func() error) error {
	res := promise.New[struct{}]()

	err := c.submit(func() {
		err := fn()
		if err != nil {
			res.Reject(err)
		} else {
			res.Resolve(struct{}{})
		}
	})

	if err != nil {
		return err
	}

	_, err = res.Await(context.Background())

	return err
}

// AddSeat creates a party seat that commits to the offer and returns the only
// invite that grants it.
func (c *Coordinator) AddSeat(role string, desc offer.Description) (invite.Invite, error) {
	err := c.terms.Validate(desc)
	if err != nil {
		return invite.Invite{}, xerrors.Errorf("invalid offer: %w", err)
	}

	return c.addSeat(role, desc, false)
}

// AddAdminSeat creates an administrative seat and returns the only invite that
// grants it. The seat holds no deposit and is allowed to cancel the trade.
func (c *Coordinator) AddAdminSeat(role string) (invite.Invite, error) {
	return c.addSeat(role, offer.NewDescription(), true)
}

func (c *Coordinator) addSeat(role string, desc offer.Description, admin bool) (invite.Invite, error) {
	var inv invite.Invite

	err := c.call(func() error {
		var err error
		inv, err = c.handleAddSeat(role, desc, admin)
		return err
	})

	return inv, err
}

func (c *Coordinator) handleAddSeat(role string, desc offer.Description, admin bool) (invite.Invite, error) {
	if c.status.IsTerminal() {
		return invite.Invite{}, ErrTerminal
	}

	index := len(c.seats)

	next, err := c.stage([]int{index}, [][]quantity.Quantity{offer.EmptyQuantities(c.strategies)})
	if err != nil {
		return invite.Invite{}, xerrors.Errorf("couldn't stage seat: %v", err)
	}

	inv, err := c.invites.Mint(role, invite.SeatRef(index), c.terms, desc)
	if err != nil {
		return invite.Invite{}, xerrors.Errorf("couldn't mint invite: %v", err)
	}

	seat := &seatState{
		role:   role,
		desc:   desc,
		admin:  admin,
		status: SeatPending,
		payout: promise.New[Payout](),
		refund: promise.New[Payout](),
	}

	if admin {
		seat.status = SeatEscrowed
		seat.deposit = offer.EmptyQuantities(c.strategies)
	}

	c.allocation = next
	c.seats = append(c.seats, seat)

	c.watcher.Notify(Event{
		Kind:       SeatAdded,
		InstanceID: c.instanceID,
		Seat:       index,
		Role:       role,
	})

	return inv, nil
}

// Redeem consumes the invite and returns the capability of its seat. It fails
// with an invite.AlreadyRedeemedError or an invite.ForgedInviteError when the
// invite cannot be redeemed.
func (c *Coordinator) Redeem(inv invite.Invite) (*Seat, error) {
	var seat *Seat

	err := c.call(func() error {
		var err error
		seat, err = c.handleRedeem(inv)
		return err
	})

	return seat, err
}

func (c *Coordinator) handleRedeem(inv invite.Invite) (*Seat, error) {
	if c.status.IsTerminal() {
		return nil, ErrTerminal
	}

	ref, err := c.invites.Redeem(inv)
	if err != nil {
		return nil, xerrors.Errorf("couldn't redeem: %w", err)
	}

	index := int(ref)
	state := c.seats[index]
	state.redeemed = true

	c.watcher.Notify(Event{
		Kind:       SeatRedeemed,
		InstanceID: c.instanceID,
		Seat:       index,
		Role:       state.role,
	})

	return &Seat{
		coord:  c,
		index:  index,
		role:   state.role,
		desc:   state.desc,
		admin:  state.admin,
		payout: state.payout,
		refund: state.refund,
	}, nil
}

func (c *Coordinator) handleDeposit(index int, payments []asset.Payment) ([]offer.Amount, error) {
	if c.status.IsTerminal() {
		return nil, ErrTerminal
	}

	seat := c.seats[index]

	if seat.status != SeatPending {
		return nil, xerrors.Errorf("seat %d is %s", index, seat.status)
	}

	if len(payments) > c.terms.Len() {
		return nil, xerrors.Errorf("expected at most %d payments but got %d",
			c.terms.Len(), len(payments))
	}

	amounts := c.terms.EmptyAmounts()

	for slot, payment := range payments {
		if payment == nil {
			continue
		}

		err := c.checkLabel(index, slot, payment)
		if err != nil {
			return nil, err
		}

		amount, err := c.issuers[slot].AmountOf(payment)
		if err != nil {
			return nil, xerrors.Errorf("slot %d: invalid payment: %v", slot, err)
		}

		amounts[slot] = amount
	}

	for slot, rule := range seat.desc.Rules() {
		err := checkRule(slot, c.strategies[slot], rule, amounts[slot])
		if err != nil {
			promRejectedDeposits.Inc()
			c.logger.Debug().Err(err).Int("seat", index).Msg("deposit refused")

			return nil, err
		}
	}

	for slot, payment := range payments {
		if payment == nil {
			continue
		}

		_, err := c.purses[slot].Deposit(payment)
		if err != nil {
			return nil, DepositError{
				Slot:     slot,
				Returned: c.rollback(payments[:slot], amounts),
				Err:      err,
			}
		}
	}

	quantities := offer.QuantitiesOf(c.strategies, amounts)

	next, err := c.stage([]int{index}, [][]quantity.Quantity{quantities})
	if err != nil {
		return nil, DepositError{
			Slot:     -1,
			Returned: c.rollback(payments, amounts),
			Err:      xerrors.Errorf("couldn't stage deposit: %v", err),
		}
	}

	c.allocation = next
	seat.deposit = quantities
	seat.status = SeatEscrowed

	promDeposits.Inc()

	c.logger.Debug().Int("seat", index).Str("role", seat.role).
		Msgf("deposit of %v accepted", amounts)

	c.watcher.Notify(Event{
		Kind:       Deposited,
		InstanceID: c.instanceID,
		Seat:       index,
		Role:       seat.role,
		Amounts:    amounts,
	})

	return amounts, nil
}

// checkLabel refuses a payment that claims to hold an asset kind other than
// the one of the slot.
func (c *Coordinator) checkLabel(index, slot int, payment asset.Payment) error {
	expected := c.terms.GetSlot(slot).Label
	got := payment.GetAllegedAmount().GetLabel()

	if got.Equal(expected) {
		return nil
	}

	err := RuleMismatchError{
		Slot:   slot,
		Kind:   c.seats[index].kindOf(slot),
		Reason: fmt.Sprintf("expected label '%s' but got '%s'", expected, got),
	}

	promRejectedDeposits.Inc()
	c.logger.Debug().Err(err).Int("seat", index).Msg("deposit refused")

	return err
}

// rollback withdraws from escrow the amounts of the payments that have been
// taken and returns them as fresh payments.
func (c *Coordinator) rollback(taken []asset.Payment, amounts []offer.Amount) []asset.Payment {
	returned := make([]asset.Payment, len(amounts))

	for slot, payment := range taken {
		if payment == nil {
			continue
		}

		fresh, err := c.purses[slot].Withdraw(amounts[slot])
		if err != nil {
			c.logger.Error().Err(err).Int("slot", slot).Msg("couldn't return payment")
			continue
		}

		returned[slot] = fresh
	}

	return returned
}

// Settle asks the coordinator to commit the reallocation. The promise resolves
// to the outcome of the instance, or is rejected if the proposal is refused.
//
// A proposal that names a seat without deposit fails with ErrNotEscrowed and a
// proposal that does not give a seat what it wants fails with a
// RuleMismatchError. The instance stays open in both cases. A proposal that
// does not conserve the escrowed quantities fails with a
// ConservationViolationError and the instance is cancelled.
//
// Once the instance is terminal, the promise resolves to the existing outcome.
func (c *Coordinator) Settle(p Proposal) *promise.Promise[Outcome] {
	res := promise.New[Outcome]()

	err := c.submit(func() {
		outcome, err := c.handleSettle(p)
		if err != nil {
			res.Reject(err)
		} else {
			res.Resolve(outcome)
		}
	})

	if err != nil {
		res.Reject(err)
	}

	return res
}

func (c *Coordinator) handleSettle(p Proposal) (Outcome, error) {
	if c.status.IsTerminal() {
		return *c.outcome, nil
	}

	if len(p.Seats) != len(p.Quantities) {
		return Outcome{}, xerrors.Errorf("expected %d allocations but got %d",
			len(p.Seats), len(p.Quantities))
	}

	current, err := c.currentMatrix()
	if err != nil {
		return Outcome{}, xerrors.Errorf("couldn't read allocation: %v", err)
	}

	next := make([][]quantity.Quantity, len(current))
	copy(next, current)

	named := make(map[int]struct{})

	for i, index := range p.Seats {
		if index < 0 || index >= len(c.seats) {
			return Outcome{}, xerrors.Errorf("unknown seat %d", index)
		}

		_, found := named[index]
		if found {
			return Outcome{}, xerrors.Errorf("seat %d appears twice", index)
		}

		named[index] = struct{}{}

		if c.seats[index].status != SeatEscrowed {
			return Outcome{}, xerrors.Errorf("seat %d: %w", index, ErrNotEscrowed)
		}

		row := p.Quantities[i]
		if len(row) != len(c.strategies) {
			return Outcome{}, xerrors.Errorf("seat %d: expected %d quantities but got %d",
				index, len(c.strategies), len(row))
		}

		for slot, q := range row {
			err = c.strategies[slot].InsistKind(q)
			if err != nil {
				return Outcome{}, xerrors.Errorf("seat %d slot %d: %w", index, slot, err)
			}
		}

		next[index] = row
	}

	err = c.checkConservation(current, next)
	if err != nil {
		promViolations.Inc()
		c.logger.Error().Err(err).Msg("reallocation refused")

		c.cancel(err)

		return Outcome{}, err
	}

	// Every escrowed seat must get what it wants, whether it is named or keeps
	// its current allocation.
	for index, seat := range c.seats {
		if seat.status != SeatEscrowed {
			continue
		}

		err = checkWant(c.strategies, seat.desc, next[index])
		if err != nil {
			return Outcome{}, xerrors.Errorf("seat %d: %w", index, err)
		}
	}

	staged, err := c.stage(p.Seats, p.Quantities)
	if err != nil {
		return Outcome{}, xerrors.Errorf("couldn't stage reallocation: %v", err)
	}

	c.allocation = staged
	c.status = Settled

	for index, seat := range c.seats {
		switch seat.status {
		case SeatEscrowed:
			c.release(index, next[index], true, nil)
		case SeatPending:
			c.release(index, next[index], false, xerrors.Errorf("seat %d: %w", index, ErrNotEscrowed))
		}
	}

	c.finish(nil)

	promSettlements.Inc()
	c.logger.Info().Int("seats", len(p.Seats)).Msg("trade settled")

	return *c.outcome, nil
}

// checkConservation verifies that, for every slot, the combination of the
// next allocation is equal to the combination of the current one.
func (c *Coordinator) checkConservation(current, next [][]quantity.Quantity) error {
	before := offer.Transpose(current)
	after := offer.Transpose(next)

	for slot, s := range c.strategies {
		if slot >= len(before) {
			break
		}

		escrowed, err := sumColumn(s, before[slot])
		if err != nil {
			return ConservationViolationError{Slot: slot, Reason: err.Error()}
		}

		proposed, err := sumColumn(s, after[slot])
		if err != nil {
			return ConservationViolationError{Slot: slot, Reason: err.Error()}
		}

		if !s.Equals(escrowed, proposed) {
			return ConservationViolationError{
				Slot:   slot,
				Reason: fmt.Sprintf("escrowed '%v' but proposed '%v'", escrowed, proposed),
			}
		}
	}

	return nil
}

func sumColumn(s quantity.Strategy, column []quantity.Quantity) (quantity.Quantity, error) {
	total := s.Empty()

	for _, q := range column {
		next, err := s.With(total, q)
		if err != nil {
			return nil, err
		}

		total = next
	}

	return total, nil
}

// Cancel asks the coordinator to cancel the instance. Every seat is refunded
// with its deposit and every payout is rejected. Once the instance is terminal,
// the promise resolves to the existing outcome.
func (c *Coordinator) Cancel(reason error) *promise.Promise[Outcome] {
	res := promise.New[Outcome]()

	err := c.submit(func() {
		if !c.status.IsTerminal() {
			c.cancel(reason)
		}

		res.Resolve(*c.outcome)
	})

	if err != nil {
		res.Reject(err)
	}

	return res
}

// CancelAfter cancels the instance after the delay unless the returned
// function is called first.
func (c *Coordinator) CancelAfter(d time.Duration) (stop func() bool) {
	timer := time.AfterFunc(d, func() {
		c.Cancel(ErrTimeout)
	})

	return timer.Stop
}

func (c *Coordinator) cancel(reason error) {
	c.status = Cancelled

	cause := ErrCancelled
	if reason != nil {
		cause = xerrors.Errorf("%v: %w", reason, ErrCancelled)
	}

	for index, seat := range c.seats {
		if seat.status.IsTerminal() {
			continue
		}

		row := seat.deposit
		if row == nil {
			row = offer.EmptyQuantities(c.strategies)
		}

		c.release(index, row, false, cause)
	}

	c.finish(reason)

	promCancellations.Inc()
	c.logger.Info().Err(reason).Msg("trade cancelled")
}

// Complete lets an escrowed seat leave the open instance with its current
// allocation.
func (c *Coordinator) Complete(index int) *promise.Promise[Payout] {
	return c.exit(index, true, nil)
}

// Eject refunds the seat and rejects its payout with the reason. The instance
// stays open for the other seats.
func (c *Coordinator) Eject(index int, reason error) *promise.Promise[Payout] {
	if reason == nil {
		reason = ErrCancelled
	}

	return c.exit(index, false, reason)
}

func (c *Coordinator) exit(index int, complete bool, reason error) *promise.Promise[Payout] {
	res := promise.New[Payout]()

	err := c.submit(func() {
		err := c.handleExit(index, complete, reason)
		if err != nil {
			res.Reject(err)
			return
		}

		settled := c.seats[index].refund
		if complete {
			settled = c.seats[index].payout
		}

		// The placeholder is already settled by the exit.
		value, err := settled.Await(context.Background())
		if err != nil {
			res.Reject(err)
		} else {
			res.Resolve(value)
		}
	})

	if err != nil {
		res.Reject(err)
	}

	return res
}

func (c *Coordinator) handleExit(index int, complete bool, reason error) error {
	if c.status.IsTerminal() {
		return ErrTerminal
	}

	if index < 0 || index >= len(c.seats) {
		return xerrors.Errorf("unknown seat %d", index)
	}

	seat := c.seats[index]

	if complete && seat.status != SeatEscrowed {
		return xerrors.Errorf("seat %d: %w", index, ErrNotEscrowed)
	}

	if seat.status.IsTerminal() {
		return xerrors.Errorf("seat %d is %s", index, seat.status)
	}

	row, err := c.currentRow(index)
	if err != nil {
		return xerrors.Errorf("couldn't read allocation: %v", err)
	}

	next, err := c.stage([]int{index}, [][]quantity.Quantity{offer.EmptyQuantities(c.strategies)})
	if err != nil {
		return xerrors.Errorf("couldn't stage exit: %v", err)
	}

	c.allocation = next

	c.release(index, row, complete, reason)

	c.watcher.Notify(Event{
		Kind:       SeatExited,
		InstanceID: c.instanceID,
		Seat:       index,
		Role:       seat.role,
		Amounts:    seat.final,
	})

	return nil
}

// release withdraws the allocation of the seat from escrow and settles its
// placeholders. When complete is true, the slots are split between the payout
// and the refund according to the rules of the seat. Otherwise everything is
// refunded and the payout is rejected with the reason.
func (c *Coordinator) release(index int, row []quantity.Quantity, complete bool, reason error) {
	seat := c.seats[index]

	payout := Payout{
		Amounts:  c.terms.EmptyAmounts(),
		Payments: make([]asset.Payment, len(row)),
	}

	refund := Payout{
		Amounts:  c.terms.EmptyAmounts(),
		Payments: make([]asset.Payment, len(row)),
	}

	final := c.terms.EmptyAmounts()

	for slot, q := range row {
		slotInfo := c.terms.GetSlot(slot)

		amount, err := offer.MakeAmount(slotInfo.Strategy, slotInfo.Label, q)
		if err != nil {
			c.fail(seat, index, xerrors.Errorf("slot %d: %v", slot, err))
			return
		}

		final[slot] = amount

		var payment asset.Payment
		if !quantity.IsEmpty(slotInfo.Strategy, q) {
			payment, err = c.purses[slot].Withdraw(amount)
			if err != nil {
				c.fail(seat, index, xerrors.Errorf("couldn't withdraw slot %d: %v", slot, err))
				return
			}
		}

		target := &refund
		if complete && seat.toPayout(slot) {
			target = &payout
		}

		target.Amounts[slot] = amount
		target.Payments[slot] = payment
	}

	seat.final = final

	if complete {
		seat.status = SeatSettled
		seat.payout.Resolve(payout)
	} else {
		seat.status = SeatCancelled
		seat.payout.Reject(reason)
	}

	seat.refund.Resolve(refund)
}

// fail settles the placeholders of a seat whose allocation cannot be released.
// It only happens if the escrow purses do not hold the allocation anymore.
func (c *Coordinator) fail(seat *seatState, index int, err error) {
	c.logger.Error().Err(err).Int("seat", index).Msg("couldn't release allocation")

	seat.status = SeatCancelled
	seat.final = c.terms.EmptyAmounts()
	seat.payout.Reject(err)
	seat.refund.Reject(err)
}

// finish records the outcome of the instance and notifies the observers.
func (c *Coordinator) finish(reason error) {
	outcome := &Outcome{
		InstanceID:  c.instanceID,
		Status:      c.status,
		Allocations: make([][]offer.Amount, len(c.seats)),
		Reason:      reason,
	}

	for i, seat := range c.seats {
		outcome.Allocations[i] = seat.final
	}

	c.outcome = outcome

	promOpen.Dec()

	kind := InstanceSettled
	if c.status == Cancelled {
		kind = InstanceCancelled
	}

	c.watcher.Notify(Event{
		Kind:       kind,
		InstanceID: c.instanceID,
		Seat:       -1,
		Outcome:    outcome,
	})
}
