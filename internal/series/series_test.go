package series

import "testing"

func TestSeries_CapacityNeverExceeded(t *testing.T) {
	s := New[int](5)

	for i := 0; i < 100; i++ {
		s.Push(i)
		if s.Len() > s.Cap() {
			t.Fatalf("len %d exceeded cap %d after push %d", s.Len(), s.Cap(), i)
		}
	}

	if s.Len() != 5 {
		t.Errorf("expected len=5, got %d", s.Len())
	}
}

func TestSeries_FIFOEviction(t *testing.T) {
	s := New[int](3)
	for i := 1; i <= 5; i++ {
		s.Push(i)
	}

	got := s.Values()
	want := []int{3, 4, 5}
	if len(got) != len(want) {
		t.Fatalf("expected %d values, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("values[%d]: expected %d, got %d", i, want[i], got[i])
		}
	}
}

func TestSeries_Last(t *testing.T) {
	s := New[string](2)

	if _, ok := s.Last(); ok {
		t.Error("expected ok=false on empty series")
	}

	s.Push("a")
	s.Push("b")
	s.Push("c")

	v, ok := s.Last()
	if !ok || v != "c" {
		t.Errorf("expected last=c, got %q ok=%v", v, ok)
	}
}

func TestSeries_ValuesIsACopy(t *testing.T) {
	s := New[int](4)
	s.Push(10)
	s.Push(20)

	vals := s.Values()
	vals[0] = 999

	if s.At(0) != 10 {
		t.Errorf("mutating Values() copy leaked into series: got %d", s.At(0))
	}
}

func TestSeries_PartialFill(t *testing.T) {
	s := New[int](10)
	s.Push(1)
	s.Push(2)

	if s.Len() != 2 {
		t.Errorf("expected len=2, got %d", s.Len())
	}
	if s.At(0) != 1 || s.At(1) != 2 {
		t.Errorf("unexpected order: %v", s.Values())
	}
}
