package store

import "testing"

func TestPathSet_Difference(t *testing.T) {
	original := NewPathSet("/nix/store/aaa-one", "/nix/store/bbb-two")
	final := NewPathSet("/nix/store/aaa-one", "/nix/store/bbb-two", "/nix/store/ccc-three")

	diff := final.Difference(original)

	if diff.Len() != 1 {
		t.Fatalf("Difference returned %d paths, want 1", diff.Len())
	}
	if !diff.Contains("/nix/store/ccc-three") {
		t.Errorf("Difference missing /nix/store/ccc-three")
	}

	// New paths are always disjoint from the original set
	for p := range diff {
		if original.Contains(p) {
			t.Errorf("Difference returned %q, which is in the original set", p)
		}
	}
}

func TestPathSet_DifferenceEmpty(t *testing.T) {
	a := NewPathSet("/nix/store/aaa-one")
	diff := a.Difference(a)
	if diff.Len() != 0 {
		t.Errorf("set difference with itself returned %d paths, want 0", diff.Len())
	}
}

func TestPathSet_DifferenceDoesNotMutate(t *testing.T) {
	original := NewPathSet("/nix/store/aaa-one")
	final := NewPathSet("/nix/store/aaa-one", "/nix/store/bbb-two")

	_ = final.Difference(original)

	if final.Len() != 2 {
		t.Errorf("Difference mutated receiver: len=%d, want 2", final.Len())
	}
	if original.Len() != 1 {
		t.Errorf("Difference mutated argument: len=%d, want 1", original.Len())
	}
}

func TestPathSet_AddDeduplicates(t *testing.T) {
	s := NewPathSet()
	s.Add("/nix/store/aaa-one")
	s.Add("/nix/store/aaa-one")
	if s.Len() != 1 {
		t.Errorf("duplicate Add produced %d entries, want 1", s.Len())
	}
}

func TestPathSet_Sorted(t *testing.T) {
	s := NewPathSet("/nix/store/ccc", "/nix/store/aaa", "/nix/store/bbb")
	sorted := s.Sorted()

	want := []StorePath{"/nix/store/aaa", "/nix/store/bbb", "/nix/store/ccc"}
	if len(sorted) != len(want) {
		t.Fatalf("Sorted returned %d paths, want %d", len(sorted), len(want))
	}
	for i := range want {
		if sorted[i] != want[i] {
			t.Errorf("Sorted[%d] = %q, want %q", i, sorted[i], want[i])
		}
	}
}
