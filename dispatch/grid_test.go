package dispatch

import (
	"testing"

	"github.com/notargets/kerneldispatch/kernelspec"
)

func build1DSpec(t *testing.T, allowPad bool) *kernelspec.Spec {
	t.Helper()
	b := kernelspec.NewBuilder("axpy", nil).
		AddParameter("n", "r", "u32", false).
		AddDimension("n", "n", "").
		AddTuneable("blockSize", 4).
		SetGridExpression("[ceilDiv(n, blockSize) * blockSize]", "[blockSize]").
		SetEntry(kernelspec.EntryRef{Name: "axpy"}, 1)
	if allowPad {
		b = b.AllowGridPadding()
	}
	spec, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return spec
}

func TestResolveGridExactMultiple(t *testing.T) {
	spec := build1DSpec(t, false)
	env := spec.BaseEnv()
	env.Set("n", 16)
	resolved, err := ResolveGrid(spec, env)
	if err != nil {
		t.Fatalf("ResolveGrid: %v", err)
	}
	if resolved.Ranges[0].Len() != 16 {
		t.Errorf("launched length = %d, want 16", resolved.Ranges[0].Len())
	}
}

func TestResolveGridRejectsRawMisalignmentWithoutPadding(t *testing.T) {
	spec, err := kernelspec.NewBuilder("raw", nil).
		AddDimension("n", "n", "").
		AddTuneable("n", 15).
		AddTuneable("blockSize", 4).
		SetGridExpression("[n]", "[blockSize]").
		SetEntry(kernelspec.EntryRef{Name: "raw"}, 1).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if _, err := ResolveGrid(spec, spec.BaseEnv()); err == nil {
		t.Fatal("expected GridMisalignment for 15 not a multiple of 4 without padding")
	}
}

func TestResolveGridPaddingProperty(t *testing.T) {
	// Testable property: ceilDiv(global, local) * local >= global always holds.
	spec := build1DSpec(t, true)
	for n := uint32(1); n <= 40; n++ {
		env := spec.BaseEnv()
		env.Set("n", int64(n))
		resolved, err := ResolveGrid(spec, env)
		if err != nil {
			t.Fatalf("n=%d: ResolveGrid: %v", n, err)
		}
		launched := resolved.Ranges[0].Len()
		if launched < n {
			t.Fatalf("n=%d: launched %d items, fewer than logical extent", n, launched)
		}
		if resolved.Ranges[0].Extent != n {
			t.Errorf("n=%d: Extent = %d, want %d", n, resolved.Ranges[0].Extent, n)
		}
	}
}

func TestGridRangeIterate(t *testing.T) {
	r := GridRange{Lo: 2, Hi: 5, Extent: 5}
	var seen []uint32
	r.Iterate(func(i uint32) { seen = append(seen, i) })
	want := []uint32{2, 3, 4}
	if len(seen) != len(want) {
		t.Fatalf("got %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("got %v, want %v", seen, want)
		}
	}
}
