package fake

import (
	"go.dedis.ch/escrow/core/store"
	"golang.org/x/xerrors"
)

// InMemorySnapshot is a fake implementation of a store snapshot.
//
// - implements store.Snapshot
type InMemorySnapshot struct {
	values    map[string][]byte
	ErrRead   error
	ErrWrite  error
	ErrDelete error
}

// NewSnapshot creates a new empty snapshot.
func NewSnapshot() *InMemorySnapshot {
	return &InMemorySnapshot{
		values: make(map[string][]byte),
	}
}

// NewBadSnapshot creates a new empty snapshot that will always return an error.
func NewBadSnapshot() *InMemorySnapshot {
	return &InMemorySnapshot{
		values:    make(map[string][]byte),
		ErrRead:   fakeErr,
		ErrWrite:  fakeErr,
		ErrDelete: fakeErr,
	}
}

// Get implements store.Readable.
func (snap *InMemorySnapshot) Get(key []byte) ([]byte, error) {
	if snap.ErrRead != nil {
		return nil, snap.ErrRead
	}

	value, found := snap.values[string(key)]
	if !found {
		return nil, xerrors.Errorf("key %#x not found", key)
	}

	return value, nil
}

// Set implements store.Writable.
func (snap *InMemorySnapshot) Set(key, value []byte) error {
	if snap.ErrWrite != nil {
		return snap.ErrWrite
	}

	snap.values[string(key)] = value

	return nil
}

// Delete implements store.Writable.
func (snap *InMemorySnapshot) Delete(key []byte) error {
	if snap.ErrDelete != nil {
		return snap.ErrDelete
	}

	delete(snap.values, string(key))

	return nil
}

var _ store.Snapshot = (*InMemorySnapshot)(nil)

// Staging is a fake implementation of a store staging. The reads are forwarded
// to the parent staging and the writes go to a fake snapshot.
//
// - implements store.Staging
type Staging struct {
	store.Staging

	snap     *InMemorySnapshot
	ErrStage error
}

// NewBadStaging returns a staging that always fails to stage.
func NewBadStaging(parent store.Staging) Staging {
	return Staging{
		Staging:  parent,
		snap:     NewSnapshot(),
		ErrStage: fakeErr,
	}
}

// NewBadWriteStaging returns a staging whose snapshot fails every write.
func NewBadWriteStaging(parent store.Staging) Staging {
	return Staging{
		Staging: parent,
		snap:    NewBadSnapshot(),
	}
}

// Stage implements store.Staging.
func (s Staging) Stage(fn func(store.Snapshot) error) (store.Staging, error) {
	if s.ErrStage != nil {
		return nil, s.ErrStage
	}

	err := fn(s.snap)
	if err != nil {
		return nil, err
	}

	return s, nil
}
