// Package memory implements the opaque device-buffer handle and the
// scoped lifetime token ("pin") the rest of the runtime uses to keep
// mapped ranges valid for the duration of a kernel call, per the
// ownership summary in the kernel dispatch specification: handles are
// reference-counted and shared between ArgumentHandlers, the back-end's
// buffer table, and bound argument tuples.
package memory

import (
	"sync/atomic"

	"github.com/notargets/kerneldispatch/typedesc"
)

// Handle is an opaque reference to a buffer owned by a device. It carries
// its own reference count so a back-end's buffer table, an ArgumentHandler
// wrapping it, and a BoundKernel's tuple of bindings can all hold a
// (shared) claim on the same underlying allocation.
type Handle struct {
	Backend        string
	DeviceBufferID string
	Offset         int64
	LengthBytes    int64
	Element        typedesc.ID

	refs    *int32
	release func()
}

// NewHandle creates a Handle with a fresh reference count of one. release
// is invoked exactly once, when the count drops to zero.
func NewHandle(backend, bufferID string, offset, lengthBytes int64, element typedesc.ID, release func()) Handle {
	count := int32(1)
	return Handle{
		Backend:        backend,
		DeviceBufferID: bufferID,
		Offset:         offset,
		LengthBytes:    lengthBytes,
		Element:        element,
		refs:           &count,
		release:        release,
	}
}

// Retain increments the handle's shared reference count and returns the
// same handle, so callers can express "I am keeping a copy of this" at
// the call site that stores it.
func (h Handle) Retain() Handle {
	if h.refs != nil {
		atomic.AddInt32(h.refs, 1)
	}
	return h
}

// Release decrements the handle's shared reference count. When the count
// reaches zero, the back-end's release callback runs, freeing the
// underlying buffer. Release is safe to call at most once per Retain
// (including the implicit first reference from NewHandle).
func (h Handle) Release() {
	if h.refs == nil {
		return
	}
	if atomic.AddInt32(h.refs, -1) == 0 && h.release != nil {
		h.release()
	}
}

// WithRange returns a new Handle over a sub-range of the same buffer,
// sharing the parent's reference count (the sub-range keeps the whole
// buffer alive, matching how a view is carved out of a region without
// pinning a separate allocation).
func (h Handle) WithRange(offset, lengthBytes int64) Handle {
	h2 := h
	h2.Offset = offset
	h2.LengthBytes = lengthBytes
	return h2
}

// Pin is an opaque lifetime token: holding it guarantees the range it was
// produced for remains valid and, for mutable/const ranges, mapped into
// host-addressable space. Dropping every Pin for a range allows the
// back-end to unmap or reclaim it. A Pin is thread-local to the call frame
// that produced it and must not outlive that frame.
type Pin struct {
	release func()
}

// NewPin wraps a release callback as a Pin. release may be nil for
// back-ends that need no unmap step (e.g. host memory that is always
// addressable).
func NewPin(release func()) Pin {
	return Pin{release: release}
}

// Release runs the pin's release callback, if any. Release is idempotent:
// calling it more than once is a no-op after the first call.
func (p *Pin) Release() {
	if p.release == nil {
		return
	}
	release := p.release
	p.release = nil
	release()
}

// ReleaseAll releases every pin in pins, in order, tolerating a nil slice.
// Used by the binder to unwind all pins accumulated so far when a later
// parameter fails to bind.
func ReleaseAll(pins []Pin) {
	for i := range pins {
		pins[i].Release()
	}
}
