// Package argument implements the capability-bearing wrapper a caller uses
// to present a value to the binder: a tagged variant over {primitive,
// const range, mutable range, device handle}, each advertising which
// extraction operations it supports and failing with CapabilityMissing
// when an incompatible extraction is attempted.
package argument

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/notargets/kerneldispatch/kernelerrors"
	"github.com/notargets/kerneldispatch/memory"
	"github.com/notargets/kerneldispatch/typedesc"
)

// Kind identifies which single capability a Handler offers. A Handler's
// Kind is stable for its lifetime.
type Kind int

const (
	Primitive Kind = iota
	ConstRange
	MutRange
	DeviceHandle
)

func (k Kind) String() string {
	switch k {
	case Primitive:
		return "primitive"
	case ConstRange:
		return "const range"
	case MutRange:
		return "mut range"
	case DeviceHandle:
		return "device handle"
	default:
		return "unknown"
	}
}

// Context is the minimal back-end context a Handler needs to resolve its
// capability: enough to know which device/queue a pinned range or handle
// belongs to. Back-ends implement this with their own concrete context
// type; the binder only ever calls it by interface.
type Context interface {
	Backend() string
}

// Handler is the capability-bearing wrapper around a single caller
// argument. Exactly one of the four Kind values applies; calling an
// extraction method the Kind does not support returns CapabilityMissing.
type Handler interface {
	Kind() Kind

	// GetPrimitive returns the serialized bytes of a single value plus the
	// TypeDescriptor describing their layout. Valid only when Kind() ==
	// Primitive.
	GetPrimitive(opName string, ctx Context) ([]byte, typedesc.Descriptor, error)

	// GetConstRange returns a read-only pointer/length pair plus a Pin that
	// keeps it valid. Valid only when Kind() == ConstRange.
	GetConstRange(opName string, ctx Context) (unsafe.Pointer, int, memory.Pin, error)

	// GetRange returns a mutable pointer/length pair plus a Pin that keeps
	// it valid. Valid only when Kind() == MutRange.
	GetRange(opName string, ctx Context) (unsafe.Pointer, int, memory.Pin, error)

	// GetHandle returns a MemoryHandle directly, with no pin: the handle
	// itself owns a reference count on the underlying buffer. Valid only
	// when Kind() == DeviceHandle.
	GetHandle(opName string, ctx Context) (memory.Handle, error)

	// Element reports the TypeDescriptor for this argument's element type,
	// used by the binder's type check regardless of which capability is
	// ultimately exercised.
	Element() typedesc.Descriptor
}

func capabilityMissing(opName string, have Kind, want Kind) error {
	return fmt.Errorf("%s: %w", opName, &kernelerrors.CapabilityMissing{
		Needed:    want.String(),
		Available: have.String(),
	})
}

// base implements the three capability methods a Handler does not support
// as a uniform CapabilityMissing error, so each concrete Handler only has
// to implement the one method it actually offers.
type base struct {
	kind Kind
	elem typedesc.Descriptor
}

func (b base) Kind() Kind                      { return b.kind }
func (b base) Element() typedesc.Descriptor     { return b.elem }
func (b base) GetPrimitive(op string, _ Context) ([]byte, typedesc.Descriptor, error) {
	return nil, typedesc.Descriptor{}, capabilityMissing(op, b.kind, Primitive)
}
func (b base) GetConstRange(op string, _ Context) (unsafe.Pointer, int, memory.Pin, error) {
	return nil, 0, memory.Pin{}, capabilityMissing(op, b.kind, ConstRange)
}
func (b base) GetRange(op string, _ Context) (unsafe.Pointer, int, memory.Pin, error) {
	return nil, 0, memory.Pin{}, capabilityMissing(op, b.kind, MutRange)
}
func (b base) GetHandle(op string, _ Context) (memory.Handle, error) {
	return memory.Handle{}, capabilityMissing(op, b.kind, DeviceHandle)
}

// PrimitiveArg wraps a single scalar value's serialized bytes.
type PrimitiveArg struct {
	base
	bytes []byte
}

// NewPrimitive wraps bytes (the little-endian, or back-end-native, encoding
// of a single value) with the TypeDescriptor describing it.
func NewPrimitive(bytes []byte, elem typedesc.Descriptor) *PrimitiveArg {
	return &PrimitiveArg{base: base{kind: Primitive, elem: elem}, bytes: bytes}
}

func (p *PrimitiveArg) GetPrimitive(string, Context) ([]byte, typedesc.Descriptor, error) {
	return p.bytes, p.elem, nil
}

// ConstRangeArg wraps a read-only host memory range with a release
// callback that unpins it when the binder is done.
type ConstRangeArg struct {
	base
	ptr     unsafe.Pointer
	length  int
	release func()
	pins    int32 // outstanding Pins handed out by GetConstRange
}

// NewConstRange wraps a read-only range [ptr, ptr+length). release, if
// non-nil, is invoked when every Pin handed out for this range is
// released.
func NewConstRange(ptr unsafe.Pointer, length int, elem typedesc.Descriptor, release func()) *ConstRangeArg {
	return &ConstRangeArg{base: base{kind: ConstRange, elem: elem}, ptr: ptr, length: length, release: release}
}

func (c *ConstRangeArg) GetConstRange(string, Context) (unsafe.Pointer, int, memory.Pin, error) {
	if c.release == nil {
		return c.ptr, c.length, memory.NewPin(nil), nil
	}
	atomic.AddInt32(&c.pins, 1)
	return c.ptr, c.length, memory.NewPin(func() {
		if atomic.AddInt32(&c.pins, -1) == 0 {
			c.release()
		}
	}), nil
}

// MutRangeArg wraps a mutable host memory range with a release callback.
type MutRangeArg struct {
	base
	ptr     unsafe.Pointer
	length  int
	release func()
}

// NewMutRange wraps a mutable range [ptr, ptr+length).
func NewMutRange(ptr unsafe.Pointer, length int, elem typedesc.Descriptor, release func()) *MutRangeArg {
	return &MutRangeArg{base: base{kind: MutRange, elem: elem}, ptr: ptr, length: length, release: release}
}

func (m *MutRangeArg) GetRange(string, Context) (unsafe.Pointer, int, memory.Pin, error) {
	return m.ptr, m.length, memory.NewPin(m.release), nil
}

// DeviceHandleArg wraps a zero-copy MemoryHandle.
type DeviceHandleArg struct {
	base
	handle memory.Handle
}

// NewDeviceHandle wraps a MemoryHandle for direct, zero-copy binding.
func NewDeviceHandle(h memory.Handle, elem typedesc.Descriptor) *DeviceHandleArg {
	return &DeviceHandleArg{base: base{kind: DeviceHandle, elem: elem}, handle: h}
}

func (d *DeviceHandleArg) GetHandle(string, Context) (memory.Handle, error) {
	return d.handle.Retain(), nil
}
