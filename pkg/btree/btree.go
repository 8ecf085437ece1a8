package btree

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ironbase/ironbase/pkg/errors"
	"github.com/ironbase/ironbase/pkg/types"
)

// BPlusTree is a concurrent B+tree whose leaves carry document ids. It is
// the index structure backing every index descriptor a collection defines:
// a unique tree enforces one entry per key, a non-unique tree is keyed on
// types.IndexEntryKey so repeated field values still sort into distinct,
// ordered entries (see pkg/types).
type BPlusTree struct {
	T         int
	Root      *Node
	UniqueKey bool
	mu        sync.RWMutex
}

// NewTree creates a tree whose Insert of an existing key overwrites that
// key's value instead of failing (a non-unique index's backing structure —
// callers key it with types.IndexEntryKey so repeated field values stay
// distinct keys).
func NewTree(t int) *BPlusTree {
	return &BPlusTree{T: t, Root: NewNode(t, true), UniqueKey: false}
}

// NewUniqueTree creates a tree that rejects duplicate keys.
func NewUniqueTree(t int) *BPlusTree {
	return &BPlusTree{T: t, Root: NewNode(t, true), UniqueKey: true}
}

// Insert adds key->dataPtr, failing with DuplicateKeyError if the tree is
// unique and the key already exists.
func (b *BPlusTree) Insert(key types.Comparable, dataPtr types.DocID) error {
	return b.insertHelper(key, dataPtr, b.UniqueKey)
}

// Replace unconditionally sets the value for key, inserting it if absent.
func (b *BPlusTree) Replace(key types.Comparable, dataPtr types.DocID) error {
	return b.Upsert(key, func(types.DocID, bool) (types.DocID, error) {
		return dataPtr, nil
	})
}

// Upsert runs fn against the current value for key (if any) while holding
// the leaf's lock, so the read-modify-write is atomic with respect to other
// tree operations.
func (b *BPlusTree) Upsert(key types.Comparable, fn func(oldValue types.DocID, exists bool) (newValue types.DocID, err error)) error {
	return b.upsertHelper(key, fn)
}

// Delete removes key from the tree if present.
func (b *BPlusTree) Delete(key types.Comparable) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Root.Remove(key)
}

func (b *BPlusTree) insertHelper(key types.Comparable, dataPtr types.DocID, uniqueKey bool) error {
	return b.Upsert(key, func(oldValue types.DocID, exists bool) (types.DocID, error) {
		if exists && uniqueKey {
			return types.DocID{}, &errors.DuplicateKeyError{Key: fmt.Sprintf("%v", key)}
		}
		return dataPtr, nil
	})
}

func (b *BPlusTree) upsertHelper(key types.Comparable, fn func(oldValue types.DocID, exists bool) (newValue types.DocID, err error)) error {
	b.mu.Lock()
	root := b.Root
	root.Lock()

	if root.IsFull() {
		newRoot := NewNode(b.T, false)
		newRoot.Children = append(newRoot.Children, root)
		newRoot.SplitChild(0)
		b.Root = newRoot
		b.mu.Unlock()

		newRoot.Lock()
		root.Unlock()

		return b.upsertTopDown(newRoot, key, fn)
	}

	b.mu.Unlock()
	return b.upsertTopDown(root, key, fn)
}

// upsertTopDown descends the tree with preventive splits, latch-crabbing:
// the child is locked before the parent is released, so a concurrent
// reader/writer never observes a node with no lock held at all.
func (b *BPlusTree) upsertTopDown(curr *Node, key types.Comparable, fn func(oldValue types.DocID, exists bool) (newValue types.DocID, err error)) error {
	defer func() {
		if curr != nil {
			curr.Unlock()
		}
	}()

	for !curr.Leaf {
		i := 0
		for i < curr.N && key.Compare(curr.Keys[i]) >= 0 {
			i++
		}

		child := curr.Children[i]
		child.Lock()

		if child.IsFull() {
			curr.SplitChild(i)

			if key.Compare(curr.Keys[i]) >= 0 {
				child.Unlock()
				child = curr.Children[i+1]
				child.Lock()
			}
		}

		curr.Unlock()
		curr = child
	}

	return curr.UpsertNonFull(key, fn)
}

// Search reports whether key is present, using read-lock coupling.
func (b *BPlusTree) Search(key types.Comparable) (*Node, bool) {
	b.mu.RLock()
	curr := b.Root
	curr.RLock()
	b.mu.RUnlock()

	for !curr.Leaf {
		i := 0
		for i < curr.N && key.Compare(curr.Keys[i]) >= 0 {
			i++
		}
		child := curr.Children[i]
		child.RLock()

		curr.RUnlock()
		curr = child
	}

	defer curr.RUnlock()

	for j := 0; j < curr.N; j++ {
		if key.Compare(curr.Keys[j]) == 0 {
			return curr, true
		}
	}
	return nil, false
}

// Get returns the value stored for key, if present.
func (b *BPlusTree) Get(key types.Comparable) (types.DocID, bool) {
	if b == nil {
		return types.DocID{}, false
	}
	b.mu.RLock()
	curr := b.Root
	if curr == nil {
		b.mu.RUnlock()
		return types.DocID{}, false
	}
	curr.RLock()
	b.mu.RUnlock()

	for !curr.Leaf {
		i := 0
		for i < curr.N && key.Compare(curr.Keys[i]) >= 0 {
			i++
		}
		child := curr.Children[i]
		child.RLock()

		curr.RUnlock()
		curr = child
	}

	defer curr.RUnlock()

	for j := 0; j < curr.N; j++ {
		if key.Compare(curr.Keys[j]) == 0 {
			return curr.DataPtrs[j], true
		}
	}
	return types.DocID{}, false
}

// FindLeafLowerBound returns the leaf node and in-node index of the first
// entry >= key (or the first entry overall if key is nil), with an RLock
// held on the returned node. The caller must RUnlock it.
func (b *BPlusTree) FindLeafLowerBound(key types.Comparable) (*Node, int) {
	b.mu.RLock()
	curr := b.Root
	curr.RLock()
	b.mu.RUnlock()

	for !curr.Leaf {
		var i int
		if key == nil {
			i = 0
		} else {
			i = sort.Search(curr.N, func(i int) bool {
				return curr.Keys[i].Compare(key) >= 0
			})
		}

		child := curr.Children[i]
		child.RLock()
		curr.RUnlock()
		curr = child
	}

	var idx int
	if key == nil {
		idx = 0
	} else {
		idx = sort.Search(curr.N, func(i int) bool {
			return curr.Keys[i].Compare(key) >= 0
		})
	}

	return curr, idx
}

// findLeafLowerBound is an internal wrapper that returns the node unlocked,
// kept for older call sites/tests that don't need the lock handoff.
func (b *BPlusTree) findLeafLowerBound(key types.Comparable) (*Node, int) {
	node, idx := b.FindLeafLowerBound(key)
	if node != nil {
		node.RUnlock()
	}
	return node, idx
}
