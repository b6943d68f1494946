// Package store defines the primitives of a simple key/value storage.
//
// The trade coordinator keeps the allocation of a trade in a store. Updates are
// staged on a copy and only become visible when the whole staging succeeded,
// which is how a reallocation is committed as one indivisible step.
package store

// Readable is the interface for a readable store.
type Readable interface {
	Get(key []byte) ([]byte, error)
}

// Writable is the interface for a writable store.
type Writable interface {
	Set(key []byte, value []byte) error

	Delete(key []byte) error
}

// Snapshot is a state of the store that can be read and write independently. A
// write is applied only to the snapshot reference.
type Snapshot interface {
	Readable
	Writable
}

// Staging is a read-only state of the store that can produce a new state out
// of a set of writes.
type Staging interface {
	Readable

	// Len returns the number of keys of the state.
	Len() int

	// Stage applies the callback on a copy of the state and returns the new
	// state. When the callback fails, the error is returned and nothing is
	// visible from the receiver.
	Stage(fn func(Snapshot) error) (Staging, error)
}
