package btree

import "github.com/ironbase/ironbase/pkg/types"

// Cursor is a restartable, lock-coupled iterator over a tree's leaves. It
// holds an RLock on whichever leaf it currently sits on; Seek/Next hand the
// lock forward one leaf at a time (lock coupling) so a concurrent writer
// splitting or merging nodes elsewhere in the tree never invalidates an
// in-flight scan.
type Cursor struct {
	tree         *BPlusTree
	currentNode  *Node
	currentIndex int
}

// NewCursor creates a cursor over tree. It starts unpositioned; call Seek.
func NewCursor(tree *BPlusTree) *Cursor { return &Cursor{tree: tree} }

// Close releases any lock the cursor is holding. Safe to call multiple
// times and on an already-closed cursor.
func (c *Cursor) Close() {
	if c.currentNode != nil {
		c.currentNode.RUnlock()
		c.currentNode = nil
	}
}

func (c *Cursor) Key() types.Comparable { return c.currentNode.Keys[c.currentIndex] }
func (c *Cursor) Value() types.DocID    { return c.currentNode.DataPtrs[c.currentIndex] }
func (c *Cursor) Valid() bool           { return c.currentNode != nil && c.currentIndex < c.currentNode.N }

// Seek positions the cursor at key, or at the first entry after it if key
// is absent. Passing a nil key seeks to the first entry in the tree.
func (c *Cursor) Seek(key types.Comparable) {
	c.Close()

	leaf, idx := c.tree.FindLeafLowerBound(key)

	if leaf == nil {
		c.currentNode = nil
		c.currentIndex = 0
		return
	}

	if idx >= leaf.N {
		nextLeaf := leaf.Next

		if nextLeaf != nil {
			nextLeaf.RLock()
			leaf.RUnlock()
			leaf = nextLeaf
			idx = 0
			for leaf != nil && leaf.N == 0 {
				next := leaf.Next
				if next != nil {
					next.RLock()
				}
				leaf.RUnlock()
				leaf = next
				idx = 0
			}
		} else {
			leaf.RUnlock()
			c.currentNode = nil
			return
		}
	}

	if leaf == nil {
		c.currentNode = nil
		return
	}

	c.currentNode = leaf
	c.currentIndex = idx
}

// Next advances the cursor by one entry, returning false once exhausted.
func (c *Cursor) Next() bool {
	if c.currentNode == nil {
		return false
	}

	if c.currentIndex+1 < c.currentNode.N {
		c.currentIndex++
		return true
	}

	nextLeaf := c.currentNode.Next

	if nextLeaf != nil {
		nextLeaf.RLock()
	}

	c.currentNode.RUnlock()
	c.currentNode = nextLeaf
	c.currentIndex = 0

	for c.currentNode != nil && c.currentNode.N == 0 {
		next := c.currentNode.Next
		if next != nil {
			next.RLock()
		}
		c.currentNode.RUnlock()
		c.currentNode = next
		c.currentIndex = 0
	}

	return c.currentNode != nil
}
