// Package rangelist implements closed-interval arithmetic over unsigned
// 64-bit offsets and a sorted, disjoint, auto-merging list of such
// intervals. PartData uses it for complete/verified/corrupt/locked/
// dontDownload byte ranges (spec.md §3, §4.G).
//
// The merge/coalesce discipline is grounded on the ordering technique in
// the teacher's internal/order (itself adapted from
// request-strategy/ajwerner-btree.go): ranges are kept in an order.Index
// sorted by Begin so neighbours are always adjacent during insert/erase.
package rangelist

import (
	"fmt"

	"github.com/hydranode/hydranode/internal/order"
)

// Range64 is the closed interval [Begin, End], Begin <= End.
type Range64 struct {
	Begin, End uint64
}

// Len returns the number of bytes the range covers.
func (r Range64) Len() uint64 {
	return r.End - r.Begin + 1
}

// Overlaps reports whether r and o share at least one byte.
func (r Range64) Overlaps(o Range64) bool {
	return r.Begin <= o.End && o.Begin <= r.End
}

// Adjacent reports whether r and o are overlapping or touching (no gap).
func (r Range64) Adjacent(o Range64) bool {
	if r.Overlaps(o) {
		return true
	}
	if r.End+1 == o.Begin || o.End+1 == r.Begin {
		return true
	}
	return false
}

// Contains reports whether o lies entirely within r.
func (r Range64) Contains(o Range64) bool {
	return r.Begin <= o.Begin && o.End <= r.End
}

func (r Range64) String() string {
	return fmt.Sprintf("[%d,%d]", r.Begin, r.End)
}

func less(a, b Range64) bool { return a.Begin < b.Begin }

// List is a sorted, disjoint, auto-merging collection of Range64.
// The zero value is ready to use.
type List struct {
	idx *order.Index[Range64]
}

func (l *List) ensure() {
	if l.idx == nil {
		l.idx = order.New(less)
	}
}

// Merge inserts r, coalescing with any overlapping or adjacent ranges
// already present.
func (l *List) Merge(r Range64) {
	l.ensure()
	var toDelete []Range64
	merged := r
	l.idx.Scan(func(o Range64) bool {
		if o.Adjacent(merged) {
			toDelete = append(toDelete, o)
			if o.Begin < merged.Begin {
				merged.Begin = o.Begin
			}
			if o.End > merged.End {
				merged.End = o.End
			}
		}
		return true
	})
	for _, d := range toDelete {
		l.idx.Delete(d)
	}
	l.idx.Upsert(merged)
}

// Erase removes the portion of any stored range that overlaps r, shrinking
// or splitting stored ranges as necessary.
func (l *List) Erase(r Range64) {
	l.ensure()
	var toDelete []Range64
	var toAdd []Range64
	l.idx.Scan(func(o Range64) bool {
		if !o.Overlaps(r) {
			return true
		}
		toDelete = append(toDelete, o)
		if o.Begin < r.Begin {
			toAdd = append(toAdd, Range64{o.Begin, r.Begin - 1})
		}
		if o.End > r.End {
			toAdd = append(toAdd, Range64{r.End + 1, o.End})
		}
		return true
	})
	for _, d := range toDelete {
		l.idx.Delete(d)
	}
	for _, a := range toAdd {
		l.idx.Upsert(a)
	}
}

// Contains reports whether any stored range overlaps r at all (spec.md
// §3's "contains(r) = any overlap").
func (l *List) Contains(r Range64) bool {
	if l.idx == nil {
		return false
	}
	found := false
	l.idx.Scan(func(o Range64) bool {
		if o.Overlaps(r) {
			found = true
			return false
		}
		return true
	})
	return found
}

// ContainsFull reports whether r is entirely covered by a single stored
// range (spec.md §3's "covers-full").
func (l *List) ContainsFull(r Range64) bool {
	if l.idx == nil {
		return false
	}
	found := false
	l.idx.Scan(func(o Range64) bool {
		if o.Contains(r) {
			found = true
			return false
		}
		if o.Begin > r.End {
			return false
		}
		return true
	})
	return found
}

// GetContains returns the first stored range overlapping r, if any.
func (l *List) GetContains(r Range64) (Range64, bool) {
	if l.idx == nil {
		return Range64{}, false
	}
	var got Range64
	found := false
	l.idx.Scan(func(o Range64) bool {
		if o.Overlaps(r) {
			got = o
			found = true
			return false
		}
		return true
	})
	return got, found
}

// Ranges returns a snapshot slice of all stored ranges in ascending order.
func (l *List) Ranges() []Range64 {
	if l.idx == nil {
		return nil
	}
	var out []Range64
	l.idx.Scan(func(o Range64) bool {
		out = append(out, o)
		return true
	})
	return out
}

// TotalLen returns the sum of lengths of all stored ranges.
func (l *List) TotalLen() (n uint64) {
	if l.idx == nil {
		return 0
	}
	l.idx.Scan(func(o Range64) bool {
		n += o.Len()
		return true
	})
	return
}

// Intersects reports whether l and o share any overlapping byte.
func (l *List) Intersects(o *List) bool {
	for _, r := range l.Ranges() {
		if o.Contains(r) {
			return true
		}
	}
	return false
}

// IsEmpty reports whether the list holds no ranges.
func (l *List) IsEmpty() bool {
	return l.idx == nil || l.idx.Len() == 0
}
