// Package order provides a generic ordered index backed by an ajwerner
// btree.Set, generalized from the teacher's single-purpose
// request-strategy/ajwerner-btree.go (which indexed one concrete
// PieceRequestOrderItem type) into a reusable ordered-key index over any
// comparable item type. rangelist uses it to keep Range64 entries sorted
// by Begin. (partdata orders its candidate Chunks with sort.Slice
// instead.)
package order

import (
	"github.com/ajwerner/btree"
)

// Index is an ordered set of items of type T, compared with less.
type Index[T any] struct {
	less func(a, b T) bool
	tree btree.Set[T]
}

// New builds an Index ordered by less(a, b) == "a sorts before b".
func New[T any](less func(a, b T) bool) *Index[T] {
	idx := &Index[T]{less: less}
	idx.tree = btree.MakeSet(func(a, b T) int {
		switch {
		case less(a, b):
			return -1
		case less(b, a):
			return 1
		default:
			return 0
		}
	})
	return idx
}

// Upsert inserts item, replacing any existing item that compares equal.
func (idx *Index[T]) Upsert(item T) {
	idx.tree.Upsert(item)
}

// Delete removes any item comparing equal to item. It is a no-op if absent.
func (idx *Index[T]) Delete(item T) {
	idx.tree.Delete(item)
}

// Scan calls f for every item in ascending order until f returns false.
func (idx *Index[T]) Scan(f func(T) bool) {
	it := idx.tree.Iterator()
	for it.First(); it.Valid(); it.Next() {
		if !f(it.Cur()) {
			return
		}
	}
}

// Len returns the number of items stored. It is O(n); callers that need
// this on a hot path should track their own count alongside the Index.
func (idx *Index[T]) Len() (n int) {
	idx.Scan(func(T) bool { n++; return true })
	return
}
