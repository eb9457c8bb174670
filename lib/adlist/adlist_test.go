package adlist

import "testing"

// values collects the list contents head to tail.
func values(l *List[int]) []int {
	var out []int
	l.ForEach(func(v int) bool {
		out = append(out, v)
		return true
	})
	return out
}

// TestEmpty tests the zero state
func TestEmpty(t *testing.T) {
	l := New[int]()
	if l.Len() != 0 {
		t.Errorf("Len = %d, want 0", l.Len())
	}
	if l.First() != nil || l.Last() != nil {
		t.Error("empty list has non-nil boundary nodes")
	}
	if l.Index(0) != nil || l.Index(-1) != nil {
		t.Error("Index on an empty list is not nil")
	}
}

// TestPush tests prepending and appending
func TestPush(t *testing.T) {
	l := New[int]()
	l.PushTail(2)
	l.PushHead(1)
	l.PushTail(3)

	got := values(l)
	want := []int{1, 2, 3}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("element %d = %d, want %d", i, got[i], want[i])
		}
	}
	if l.First().Value != 1 || l.Last().Value != 3 {
		t.Error("boundary nodes wrong after pushes")
	}
}

// TestInsert tests insertion relative to existing nodes
func TestInsert(t *testing.T) {
	l := New[int]()
	a := l.PushTail(1)
	c := l.PushTail(3)

	l.InsertAfter(a, 2)
	l.InsertBefore(a, 0)
	l.InsertAfter(c, 4)

	got := values(l)
	want := []int{0, 1, 2, 3, 4}
	if len(got) != len(want) {
		t.Fatalf("Len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("element %d = %d, want %d", i, got[i], want[i])
		}
	}
	if l.First().Value != 0 || l.Last().Value != 4 {
		t.Error("boundary nodes wrong after inserts")
	}
}

// TestRemove tests unlinking at the head, middle and tail
func TestRemove(t *testing.T) {
	l := New[int]()
	var nodes []*Node[int]
	for i := 0; i < 5; i++ {
		nodes = append(nodes, l.PushTail(i))
	}

	l.Remove(nodes[2]) // middle
	l.Remove(nodes[0]) // head
	l.Remove(nodes[4]) // tail

	got := values(l)
	want := []int{1, 3}
	if len(got) != len(want) {
		t.Fatalf("Len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("element %d = %d, want %d", i, got[i], want[i])
		}
	}
	if l.First().Value != 1 || l.Last().Value != 3 {
		t.Error("boundary nodes wrong after removals")
	}

	l.Remove(l.First())
	l.Remove(l.First())
	if l.Len() != 0 || l.First() != nil || l.Last() != nil {
		t.Error("list not empty after removing every node")
	}
}

// TestRemoveWhileIterating tests unlinking the current node mid-walk
func TestRemoveWhileIterating(t *testing.T) {
	l := New[int]()
	for i := 0; i < 6; i++ {
		l.PushTail(i)
	}

	// drop the even values during a forward walk
	for n := l.First(); n != nil; {
		next := n.Next()
		if n.Value%2 == 0 {
			l.Remove(n)
		}
		n = next
	}

	got := values(l)
	want := []int{1, 3, 5}
	if len(got) != len(want) {
		t.Fatalf("Len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("element %d = %d, want %d", i, got[i], want[i])
		}
	}
}

// TestIndex tests positional access with negative positions
func TestIndex(t *testing.T) {
	l := New[int]()
	for i := 0; i < 5; i++ {
		l.PushTail(i)
	}

	for _, tc := range []struct{ idx, want int }{
		{0, 0}, {4, 4}, {-1, 4}, {-5, 0}, {2, 2}, {-3, 2},
	} {
		n := l.Index(tc.idx)
		if n == nil || n.Value != tc.want {
			t.Errorf("Index(%d) = %v, want %d", tc.idx, n, tc.want)
		}
	}
	if l.Index(5) != nil || l.Index(-6) != nil {
		t.Error("out of range Index is not nil")
	}
}

// TestBackwardWalk tests the prev links
func TestBackwardWalk(t *testing.T) {
	l := New[int]()
	for i := 0; i < 4; i++ {
		l.PushTail(i)
	}

	var got []int
	for n := l.Last(); n != nil; n = n.Prev() {
		got = append(got, n.Value)
	}
	want := []int{3, 2, 1, 0}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("backward element %d = %d, want %d", i, got[i], want[i])
		}
	}
}

// TestDup tests the deep copy with and without a copy callback
func TestDup(t *testing.T) {
	l := New[int]()
	for i := 0; i < 3; i++ {
		l.PushTail(i)
	}

	cp := l.Dup(nil)
	if cp.Len() != 3 {
		t.Fatalf("copy Len = %d, want 3", cp.Len())
	}
	cp.PushTail(99)
	if l.Len() != 3 {
		t.Error("mutating the copy changed the original")
	}

	doubled := l.Dup(func(v int) int { return v * 2 })
	got := values(doubled)
	want := []int{0, 2, 4}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("dup element %d = %d, want %d", i, got[i], want[i])
		}
	}
}

// TestForEachEarlyExit tests stopping a walk
func TestForEachEarlyExit(t *testing.T) {
	l := New[int]()
	for i := 0; i < 10; i++ {
		l.PushTail(i)
	}

	count := 0
	l.ForEach(func(v int) bool {
		count++
		return count < 4
	})
	if count != 4 {
		t.Errorf("walk visited %d elements, want 4", count)
	}
}
