package trade

import (
	"sync"

	"go.dedis.ch/escrow/offer"
)

// EventKind is the kind of a trade event.
type EventKind int

const (
	// SeatAdded is emitted when a seat and its invite are created.
	SeatAdded EventKind = iota

	// SeatRedeemed is emitted when the invite of a seat is redeemed.
	SeatRedeemed

	// Deposited is emitted when a deposit is accepted in escrow.
	Deposited

	// SeatExited is emitted when a seat leaves an open instance.
	SeatExited

	// InstanceSettled is emitted when a reallocation is committed.
	InstanceSettled

	// InstanceCancelled is emitted when the deposits are refunded.
	InstanceCancelled
)

var eventNames = map[EventKind]string{
	SeatAdded:         "seatAdded",
	SeatRedeemed:      "seatRedeemed",
	Deposited:         "deposited",
	SeatExited:        "seatExited",
	InstanceSettled:   "settled",
	InstanceCancelled: "cancelled",
}

// String implements fmt.Stringer.
func (k EventKind) String() string {
	name, found := eventNames[k]
	if !found {
		return "unknown"
	}

	return name
}

// Event is a notification of a trade instance.
type Event struct {
	Kind       EventKind
	InstanceID string

	// Seat is the index of the seat of a seat event, -1 otherwise.
	Seat int

	// Role is the role of the seat of a seat event.
	Role string

	// Amounts are the deposited amounts, or the amounts a seat exits with.
	Amounts []offer.Amount

	// Outcome is set for the terminal events.
	Outcome *Outcome
}

// Observer is the interface to implement to watch events. The callback is
// called by the goroutine of the coordinator and therefore must not call the
// coordinator back.
type Observer interface {
	NotifyCallback(event Event)
}

// Watcher keeps a list of observers and notifies them of the events.
type Watcher struct {
	sync.RWMutex

	observers map[Observer]struct{}
}

// NewWatcher creates a new empty watcher.
func NewWatcher() *Watcher {
	return &Watcher{
		observers: make(map[Observer]struct{}),
	}
}

// Add adds the observer to the list of observers that will be notified of new
// events.
func (w *Watcher) Add(observer Observer) {
	w.Lock()
	w.observers[observer] = struct{}{}
	w.Unlock()
}

// Remove removes the observer from the list thus stopping it from receiving
// new events.
func (w *Watcher) Remove(observer Observer) {
	w.Lock()
	delete(w.observers, observer)
	w.Unlock()
}

// Notify notifies the whole list of observers one after each other.
func (w *Watcher) Notify(event Event) {
	w.RLock()
	defer w.RUnlock()

	for obs := range w.observers {
		obs.NotifyCallback(event)
	}
}
