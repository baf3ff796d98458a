package rng

import (
	"reflect"
	"testing"
)

func TestNextUint32_KnownSequence(t *testing.T) {
	// First two outputs of xorshift32(13,17,5) for seed 1, computed by hand.
	// If these move, recorded runs are no longer reproducible.
	s := New(1)

	if got := s.NextUint32(); got != 270369 {
		t.Errorf("first output = %d, want 270369", got)
	}
	if got := s.NextUint32(); got != 67634689 {
		t.Errorf("second output = %d, want 67634689", got)
	}
}

func TestNextUint32_SameSeedSameSequence(t *testing.T) {
	a := New(42)
	b := New(42)

	for i := 0; i < 100; i++ {
		va, vb := a.NextUint32(), b.NextUint32()
		if va != vb {
			t.Fatalf("sequences diverged at position %d: %d != %d", i, va, vb)
		}
	}
}

func TestNextFloat_Range(t *testing.T) {
	s := New(7)
	for i := 0; i < 1000; i++ {
		f := s.NextFloat()
		if f < 0 || f >= 1 {
			t.Fatalf("NextFloat() = %v at position %d, want [0, 1)", f, i)
		}
	}
}

func TestDerive(t *testing.T) {
	t.Run("same domain yields same stream", func(t *testing.T) {
		base := New(99)
		a := base.Derive("sample")
		b := base.Derive("sample")
		if a.NextUint32() != b.NextUint32() {
			t.Error("two derivations of the same domain produced different sequences")
		}
	})

	t.Run("different domains yield different streams", func(t *testing.T) {
		base := New(99)
		a := base.Derive("agent:A:tick:5")
		b := base.Derive("agent:B:tick:5")
		if a.NextUint32() == b.NextUint32() {
			t.Error("streams for different agents share their first output")
		}
	})

	t.Run("derivation ignores parent consumption", func(t *testing.T) {
		fresh := New(99).Derive("events")

		consumed := New(99)
		for i := 0; i < 50; i++ {
			consumed.NextUint32()
		}
		late := consumed.Derive("events")

		if fresh.NextUint32() != late.NextUint32() {
			t.Error("derived stream depends on how much of the parent was consumed")
		}
	})

	t.Run("child seed differs per parent seed", func(t *testing.T) {
		a := New(1).Derive("sample")
		b := New(2).Derive("sample")
		if a.Seed() == b.Seed() {
			t.Error("different parent seeds derived the same child seed")
		}
	})
}

func TestSample(t *testing.T) {
	items := []string{"a", "b", "c", "d", "e"}

	t.Run("exact order for seed 1", func(t *testing.T) {
		// Partial Fisher-Yates with the known seed-1 sequence:
		// 270369 % 5 = 4 (swap 0,4), 67634689 % 4 = 1 (swap 1,2).
		got := Sample(New(1), items, 2)
		want := []string{"e", "c"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("Sample() = %v, want %v", got, want)
		}
	})

	t.Run("deterministic", func(t *testing.T) {
		a := Sample(New(123), items, 3)
		b := Sample(New(123), items, 3)
		if !reflect.DeepEqual(a, b) {
			t.Errorf("same seed produced different samples: %v vs %v", a, b)
		}
	})

	t.Run("no duplicates", func(t *testing.T) {
		got := Sample(New(77), items, 4)
		seen := make(map[string]bool)
		for _, v := range got {
			if seen[v] {
				t.Fatalf("duplicate element %q in sample %v", v, got)
			}
			seen[v] = true
		}
	})

	t.Run("k clamped to population size", func(t *testing.T) {
		got := Sample(New(5), items, 10)
		if len(got) != len(items) {
			t.Errorf("len = %d, want %d", len(got), len(items))
		}
	})

	t.Run("k zero returns nil", func(t *testing.T) {
		if got := Sample(New(5), items, 0); got != nil {
			t.Errorf("Sample(k=0) = %v, want nil", got)
		}
	})

	t.Run("input not modified", func(t *testing.T) {
		in := []int{1, 2, 3, 4, 5, 6}
		Sample(New(9), in, 4)
		if !reflect.DeepEqual(in, []int{1, 2, 3, 4, 5, 6}) {
			t.Errorf("input slice was modified: %v", in)
		}
	})
}
