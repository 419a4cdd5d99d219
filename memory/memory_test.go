package memory

import (
	"testing"

	"github.com/notargets/kerneldispatch/typedesc"
)

func TestHandleReleaseFiresOnlyAtZeroRefs(t *testing.T) {
	fired := 0
	h := NewHandle("host", "buf-1", 0, 16, typedesc.ID{}, func() { fired++ })

	h2 := h.Retain()
	h.Release()
	if fired != 0 {
		t.Fatalf("fired = %d, want 0 after releasing one of two refs", fired)
	}
	h2.Release()
	if fired != 1 {
		t.Fatalf("fired = %d, want 1 after releasing the last ref", fired)
	}
}

func TestHandleReleaseIsNilSafeWithoutCallback(t *testing.T) {
	h := NewHandle("host", "buf-1", 0, 16, typedesc.ID{}, nil)
	h.Release() // must not panic
}

func TestWithRangeSharesRefCount(t *testing.T) {
	fired := false
	h := NewHandle("host", "buf-1", 0, 64, typedesc.ID{}, func() { fired = true })
	view := h.WithRange(8, 16)
	if view.Offset != 8 || view.LengthBytes != 16 {
		t.Fatalf("view = %+v, want offset 8 length 16", view)
	}
	if view.DeviceBufferID != h.DeviceBufferID {
		t.Errorf("view should reference the same buffer")
	}

	view.Retain()
	h.Release()
	if fired {
		t.Fatal("release fired while the view still holds a reference")
	}
	view.Release()
	if !fired {
		t.Fatal("release should fire once both the handle and its view are released")
	}
}

func TestPinReleaseIsIdempotent(t *testing.T) {
	count := 0
	p := NewPin(func() { count++ })
	p.Release()
	p.Release()
	if count != 1 {
		t.Fatalf("release callback ran %d times, want 1", count)
	}
}

func TestPinReleaseNilCallbackIsNoop(t *testing.T) {
	p := NewPin(nil)
	p.Release() // must not panic
}

func TestReleaseAllReleasesEveryPinInOrder(t *testing.T) {
	var order []int
	pins := []Pin{
		NewPin(func() { order = append(order, 0) }),
		NewPin(func() { order = append(order, 1) }),
		NewPin(func() { order = append(order, 2) }),
	}
	ReleaseAll(pins)
	want := []int{0, 1, 2}
	if len(order) != len(want) {
		t.Fatalf("got %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("got %v, want %v", order, want)
		}
	}
}

func TestReleaseAllToleratesNilSlice(t *testing.T) {
	ReleaseAll(nil) // must not panic
}
