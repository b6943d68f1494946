package trade

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWatcher_Add(t *testing.T) {
	watcher := NewWatcher()

	watcher.Add(newFakeObserver())
	require.Len(t, watcher.observers, 1)

	obs := newFakeObserver()
	watcher.Add(obs)
	require.Len(t, watcher.observers, 2)

	watcher.Add(obs)
	require.Len(t, watcher.observers, 2)
}

func TestWatcher_Remove(t *testing.T) {
	watcher := NewWatcher()
	watcher.observers[newFakeObserver()] = struct{}{}

	obs := newFakeObserver()
	watcher.observers[obs] = struct{}{}
	require.Len(t, watcher.observers, 2)

	watcher.Remove(obs)
	require.Len(t, watcher.observers, 1)

	watcher.Remove(obs)
	require.Len(t, watcher.observers, 1)
}

func TestWatcher_Notify(t *testing.T) {
	watcher := NewWatcher()

	obs := newFakeObserver()
	watcher.observers[obs] = struct{}{}

	watcher.Notify(Event{Kind: Deposited, InstanceID: "abc", Seat: 2})

	evt := <-obs.ch
	require.Equal(t, Deposited, evt.Kind)
	require.Equal(t, "abc", evt.InstanceID)
	require.Equal(t, 2, evt.Seat)
}

// -----------------------------------------------------------------------------
// Utility functions

type fakeObserver struct {
	ch chan Event
}

func newFakeObserver() fakeObserver {
	return fakeObserver{
		ch: make(chan Event, 1),
	}
}

func (o fakeObserver) NotifyCallback(evt Event) {
	o.ch <- evt
}
