// Package mem implements an in-memory staging store.
package mem

import (
	"go.dedis.ch/escrow/core/store"
	"golang.org/x/xerrors"
)

// Trie is an in-memory implementation of a staging store. A trie is never
// modified once it is returned to the caller: staging writes into a child that
// only hosts the updates, and the child is flattened into a new trie.
//
// - implements store.Staging
type Trie struct {
	parent *Trie
	store  map[string]item
}

type item struct {
	value   []byte
	deleted bool
}

// NewTrie creates a new empty trie.
func NewTrie() *Trie {
	return &Trie{
		store: make(map[string]item),
	}
}

// Get implements store.Readable. It returns the value of the key, or an error
// if it does not exist.
func (t *Trie) Get(key []byte) ([]byte, error) {
	it, found := t.store[string(key)]
	if found {
		if it.deleted {
			return nil, xerrors.Errorf("item %#x not found", key)
		}

		return it.value, nil
	}

	if t.parent == nil {
		return nil, xerrors.Errorf("item %#x not found", key)
	}

	return t.parent.Get(key)
}

// Set implements store.Writable.
func (t *Trie) Set(key, value []byte) error {
	copied := make([]byte, len(value))
	copy(copied, value)

	t.store[string(key)] = item{value: copied}

	return nil
}

// Delete implements store.Writable.
func (t *Trie) Delete(key []byte) error {
	t.store[string(key)] = item{deleted: true}

	return nil
}

// Len implements store.Staging.
func (t *Trie) Len() int {
	return len(t.flatten())
}

// Stage implements store.Staging. The trie is left untouched whatever the
// outcome of the callback.
func (t *Trie) Stage(fn func(store.Snapshot) error) (store.Staging, error) {
	child := &Trie{
		parent: t,
		store:  make(map[string]item),
	}

	err := fn(child)
	if err != nil {
		return nil, err
	}

	next := NewTrie()
	next.store = child.flatten()

	return next, nil
}

// flatten returns the live items of the trie and its parents.
func (t *Trie) flatten() map[string]item {
	var items map[string]item

	if t.parent != nil {
		items = t.parent.flatten()
	} else {
		items = make(map[string]item, len(t.store))
	}

	for key, it := range t.store {
		if it.deleted {
			delete(items, key)
		} else {
			items[key] = it
		}
	}

	return items
}
