// Package kerneltest provides small test doubles for the kernel dispatch
// runtime: a scratch TypeDescriptor registry isolated from
// typedesc.Default, and constructors that wrap ordinary Go values as
// argument.Handlers without needing a real back-end context, mirroring
// the plain-testing-package fixtures the teacher repo's runner tests use
// (see runner/utils.CreateTestDevice for the equivalent device-side
// fixture this package's device-free handlers stand in for).
package kerneltest

import (
	"unsafe"

	"github.com/notargets/kerneldispatch/argument"
	"github.com/notargets/kerneldispatch/memory"
	"github.com/notargets/kerneldispatch/typedesc"
)

// NewRegistry returns a fresh Registry pre-populated with the same
// primitives as typedesc.Default, so a test can register additional,
// test-only primitives without polluting the process-wide default.
func NewRegistry() *typedesc.Registry {
	r := typedesc.NewRegistry()
	for _, name := range []string{"u32", "u64", "i32", "i64", "f32", "f64", "byte"} {
		if d, ok := typedesc.Default.Resolve(name); ok {
			r.Register(name, d.Size, d.CopyInto)
		}
	}
	return r
}

// Uint32 wraps a uint32 value as a Primitive argument.Handler.
func Uint32(reg *typedesc.Registry, v uint32) argument.Handler {
	desc := reg.MustResolve("u32")
	b := make([]byte, 4)
	*(*uint32)(unsafe.Pointer(&b[0])) = v
	return argument.NewPrimitive(b, desc)
}

// Float32 wraps a float32 value as a Primitive argument.Handler.
func Float32(reg *typedesc.Registry, v float32) argument.Handler {
	desc := reg.MustResolve("f32")
	b := make([]byte, 4)
	*(*float32)(unsafe.Pointer(&b[0])) = v
	return argument.NewPrimitive(b, desc)
}

// MutSliceUint32 wraps a live []uint32 as a mutable-range argument.Handler
// with no release step, for tests that only need in-process memory.
func MutSliceUint32(reg *typedesc.Registry, s []uint32) argument.Handler {
	desc := reg.MustResolve("u32")
	if len(s) == 0 {
		return argument.NewMutRange(nil, 0, desc, nil)
	}
	return argument.NewMutRange(unsafe.Pointer(&s[0]), len(s)*4, desc, nil)
}

// ConstSliceUint32 wraps a live []uint32 as a const-range argument.Handler.
func ConstSliceUint32(reg *typedesc.Registry, s []uint32) argument.Handler {
	desc := reg.MustResolve("u32")
	if len(s) == 0 {
		return argument.NewConstRange(nil, 0, desc, nil)
	}
	return argument.NewConstRange(unsafe.Pointer(&s[0]), len(s)*4, desc, nil)
}

// FakeBackend is a minimal argument.Context whose Backend() is fixed at
// construction, for tests that need to satisfy the interface without a
// real host or device Context.
type FakeBackend string

func (f FakeBackend) Backend() string { return string(f) }

// DeviceHandle wraps a memory.Handle directly as a DeviceHandle
// argument.Handler.
func DeviceHandle(reg *typedesc.Registry, elementName string, h memory.Handle) argument.Handler {
	return argument.NewDeviceHandle(h, reg.MustResolve(elementName))
}
