package argument

import (
	"errors"
	"testing"
	"unsafe"

	"github.com/notargets/kerneldispatch/kernelerrors"
	"github.com/notargets/kerneldispatch/memory"
	"github.com/notargets/kerneldispatch/typedesc"
)

type fakeCtx string

func (f fakeCtx) Backend() string { return string(f) }

func TestPrimitiveArgExposesBytesAndRejectsOtherCapabilities(t *testing.T) {
	elem := typedesc.Default.MustResolve("u32")
	p := NewPrimitive([]byte{1, 2, 3, 4}, elem)

	if p.Kind() != Primitive {
		t.Fatalf("Kind() = %v, want Primitive", p.Kind())
	}
	b, gotElem, err := p.GetPrimitive("op", fakeCtx("host"))
	if err != nil {
		t.Fatalf("GetPrimitive: %v", err)
	}
	if len(b) != 4 || gotElem.ID != elem.ID {
		t.Errorf("got bytes=%v elem=%v", b, gotElem)
	}

	if _, _, _, err := p.GetConstRange("op", fakeCtx("host")); !isCapabilityMissing(err) {
		t.Errorf("GetConstRange on a Primitive should fail with CapabilityMissing, got %v", err)
	}
	if _, _, _, err := p.GetRange("op", fakeCtx("host")); !isCapabilityMissing(err) {
		t.Errorf("GetRange on a Primitive should fail with CapabilityMissing, got %v", err)
	}
	if _, err := p.GetHandle("op", fakeCtx("host")); !isCapabilityMissing(err) {
		t.Errorf("GetHandle on a Primitive should fail with CapabilityMissing, got %v", err)
	}
}

func TestConstRangeArgReleaseFiresOnPinRelease(t *testing.T) {
	elem := typedesc.Default.MustResolve("u32")
	data := []uint32{1, 2, 3, 4}
	released := false
	c := NewConstRange(unsafe.Pointer(&data[0]), len(data)*4, elem, func() { released = true })

	if c.Kind() != ConstRange {
		t.Fatalf("Kind() = %v, want ConstRange", c.Kind())
	}
	ptr, length, pin, err := c.GetConstRange("op", fakeCtx("host"))
	if err != nil {
		t.Fatalf("GetConstRange: %v", err)
	}
	if ptr == nil || length != 16 {
		t.Fatalf("got ptr=%v length=%d, want non-nil/16", ptr, length)
	}
	if released {
		t.Fatal("release fired before the pin was released")
	}
	pin.Release()
	if !released {
		t.Fatal("expected release to fire once the pin was released")
	}
}

func TestMutRangeArgGetRange(t *testing.T) {
	elem := typedesc.Default.MustResolve("f32")
	data := []float32{1, 2}
	m := NewMutRange(unsafe.Pointer(&data[0]), len(data)*4, elem, nil)
	if m.Kind() != MutRange {
		t.Fatalf("Kind() = %v, want MutRange", m.Kind())
	}
	_, length, _, err := m.GetRange("op", fakeCtx("host"))
	if err != nil {
		t.Fatalf("GetRange: %v", err)
	}
	if length != 8 {
		t.Errorf("length = %d, want 8", length)
	}
	if _, _, _, err := m.GetConstRange("op", fakeCtx("host")); !isCapabilityMissing(err) {
		t.Errorf("GetConstRange on a MutRange should fail with CapabilityMissing")
	}
}

func TestDeviceHandleArgRetainsOnGetHandle(t *testing.T) {
	elem := typedesc.Default.MustResolve("u32")
	released := false
	h := memory.NewHandle("host", "buf-1", 0, 4, elem.ID, func() { released = true })
	d := NewDeviceHandle(h, elem)

	if d.Kind() != DeviceHandle {
		t.Fatalf("Kind() = %v, want DeviceHandle", d.Kind())
	}
	got, err := d.GetHandle("op", fakeCtx("host"))
	if err != nil {
		t.Fatalf("GetHandle: %v", err)
	}
	h.Release()
	if released {
		t.Fatal("handle released while GetHandle's returned copy still holds a reference")
	}
	got.Release()
	if !released {
		t.Fatal("expected release once both references are gone")
	}
}

func isCapabilityMissing(err error) bool {
	var cm *kernelerrors.CapabilityMissing
	return errors.As(err, &cm)
}
