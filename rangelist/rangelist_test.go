package rangelist

import (
	"reflect"
	"testing"
)

func TestMergeCoalesces(t *testing.T) {
	var l List
	l.Merge(Range64{0, 9})
	l.Merge(Range64{10, 19})
	l.Merge(Range64{30, 39})
	got := l.Ranges()
	want := []Range64{{0, 19}, {30, 39}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestMergeOverlapping(t *testing.T) {
	var l List
	l.Merge(Range64{0, 9})
	l.Merge(Range64{5, 14})
	got := l.Ranges()
	want := []Range64{{0, 14}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestEraseSplits(t *testing.T) {
	var l List
	l.Merge(Range64{0, 99})
	l.Erase(Range64{40, 59})
	got := l.Ranges()
	want := []Range64{{0, 39}, {60, 99}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestContainsFull(t *testing.T) {
	var l List
	l.Merge(Range64{0, 99})
	if !l.ContainsFull(Range64{10, 20}) {
		t.Fatal("expected full containment")
	}
	l.Erase(Range64{15, 15})
	if l.ContainsFull(Range64{10, 20}) {
		t.Fatal("expected not fully contained after erase")
	}
	if !l.Contains(Range64{10, 20}) {
		t.Fatal("expected overlap still present")
	}
}

func TestGetContains(t *testing.T) {
	var l List
	l.Merge(Range64{100, 199})
	r, ok := l.GetContains(Range64{150, 300})
	if !ok || r != (Range64{100, 199}) {
		t.Fatalf("got %v %v", r, ok)
	}
	if _, ok := l.GetContains(Range64{300, 400}); ok {
		t.Fatal("expected no overlap")
	}
}

func TestTotalLenAndEmpty(t *testing.T) {
	var l List
	if !l.IsEmpty() {
		t.Fatal("expected empty")
	}
	l.Merge(Range64{0, 9})
	l.Merge(Range64{20, 29})
	if l.TotalLen() != 20 {
		t.Fatalf("got %d", l.TotalLen())
	}
	if l.IsEmpty() {
		t.Fatal("expected non-empty")
	}
}
