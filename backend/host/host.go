// Package host implements the in-process, single-threaded cooperative
// back-end named "host" in the registry: kernel bodies are plain Go
// closures invoked directly on the submitting goroutine, mirroring the
// "we do everything synchronously, for now" comment on HostComputeEvent
// in the source this runtime generalizes from. Device buffers are
// ordinary Go byte slices kept in a process-local table, addressed
// through the same opaque memory.Handle every other back-end uses.
package host

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/google/uuid"

	"github.com/notargets/kerneldispatch/argument"
	"github.com/notargets/kerneldispatch/binder"
	"github.com/notargets/kerneldispatch/dispatch"
	"github.com/notargets/kerneldispatch/kernelspec"
	"github.com/notargets/kerneldispatch/memory"
	"github.com/notargets/kerneldispatch/queue"
	"github.com/notargets/kerneldispatch/typedesc"
)

// BackendName is the stable registry-visible string for this back-end.
const BackendName = "host"

// Entry is the compute function signature a kernel registered for the
// host back-end provides as its kernelspec.EntryRef.Native value. It is
// invoked once per DeliverIndex combination of the resolved grid (see
// dispatch.RunHost); frame gives it typed access to its bound arguments.
type Entry func(frame *CallFrame) error

// Context owns the host back-end's buffer table and its single
// synchronous Queue. It implements argument.Context.
type Context struct {
	mu      sync.Mutex
	buffers map[string][]byte
	q       *queue.Queue
}

// NewContext returns a fresh host Context with an empty buffer table.
func NewContext() *Context {
	return &Context{buffers: make(map[string][]byte), q: queue.NewQueue(BackendName, true)}
}

// Backend reports "host".
func (c *Context) Backend() string { return BackendName }

// Queue returns the context's synchronous submission queue.
func (c *Context) Queue() *queue.Queue { return c.q }

// Alloc reserves a fresh zero-filled buffer of length elements of elem's
// size and returns a Handle over it with a reference count of one.
func (c *Context) Alloc(elem typedesc.Descriptor, length int) memory.Handle {
	id := uuid.NewString()
	buf := make([]byte, int(elem.Size)*length)
	c.mu.Lock()
	c.buffers[id] = buf
	c.mu.Unlock()
	return memory.NewHandle(BackendName, id, 0, int64(len(buf)), elem.ID, func() {
		c.mu.Lock()
		delete(c.buffers, id)
		c.mu.Unlock()
	})
}

func (c *Context) bufferBytes(h memory.Handle) ([]byte, error) {
	c.mu.Lock()
	buf, ok := c.buffers[h.DeviceBufferID]
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("backend/host: unknown buffer %s", h.DeviceBufferID)
	}
	end := h.Offset + h.LengthBytes
	if h.Offset < 0 || end > int64(len(buf)) {
		return nil, fmt.Errorf("backend/host: range [%d,%d) out of bounds for buffer of length %d", h.Offset, end, len(buf))
	}
	return buf[h.Offset:end], nil
}

// Submit resolves bound's grid expression against grid (the caller's
// per-dimension extents, one entry per declared Dimension), then runs
// the kernel's Entry closure to completion before returning an already-
// resolved (or failed) Event, per the host back-end's synchronous
// scheduling model.
func (c *Context) Submit(opName string, bound *binder.BoundKernel, grid []uint32, prereqs []*queue.Event) (*queue.Event, error) {
	entry, ok := bound.Spec.Entry.Native.(Entry)
	if !ok {
		return nil, fmt.Errorf("backend/host: kernel %s has no host Entry registered", bound.Spec.Name)
	}

	env, err := bound.ScalarEnv()
	if err != nil {
		return nil, err
	}
	for i, d := range bound.Spec.Dimensions {
		if i < len(grid) {
			env.Set(d.Name, int64(grid[i]))
		}
	}
	if err := bound.Spec.CheckConstraints(env); err != nil {
		return nil, err
	}

	resolved, err := dispatch.ResolveGrid(bound.Spec, env)
	if err != nil {
		return nil, err
	}

	return c.q.Submit(opName, len(bound.Spec.Dimensions), grid, prereqs, func() error {
		return dispatch.RunHost(resolved, nil, func(ranges []dispatch.GridRange) error {
			return entry(&CallFrame{bound: bound, grid: ranges, ctx: c})
		})
	})
}

// FillArray initialises [startOffsetBytes, startOffsetBytes+lengthBytes)
// of h's buffer. lengthBytes == -1 means "to the end of the handle's
// range". FillUninitialized leaves the bytes untouched (they are already
// zero from Alloc, matching the host back-end's allocation behavior).
func (c *Context) FillArray(opName string, h memory.Handle, init queue.FillInit, value byte, startOffsetBytes, lengthBytes int64, prereqs []*queue.Event) (*queue.Event, error) {
	return c.q.FillArray(opName, h, prereqs, func() error {
		buf, err := c.bufferBytes(h)
		if err != nil {
			return err
		}
		if lengthBytes < 0 {
			lengthBytes = int64(len(buf)) - startOffsetBytes
		}
		end := startOffsetBytes + lengthBytes
		if startOffsetBytes < 0 || end > int64(len(buf)) {
			return fmt.Errorf("backend/host: fill range [%d,%d) out of bounds for length %d", startOffsetBytes, end, len(buf))
		}
		switch init {
		case queue.FillUninitialized:
			return nil
		case queue.FillValue:
			for i := startOffsetBytes; i < end; i++ {
				buf[i] = value
			}
		default: // FillZero
			for i := startOffsetBytes; i < end; i++ {
				buf[i] = 0
			}
		}
		return nil
	})
}

// CallFrame gives a host Entry closure typed access to its bound
// arguments and the grid ranges the dispatcher invoked it with.
type CallFrame struct {
	bound *binder.BoundKernel
	grid  []dispatch.GridRange
	ctx   *Context
}

// Grid returns the per-axis GridRange the dispatcher invoked this call
// with, innermost axis last.
func (f *CallFrame) Grid() []dispatch.GridRange { return f.grid }

func (f *CallFrame) bindingByName(name string) (binder.Binding, error) {
	for _, b := range f.bound.Bindings {
		if b.Param.Name == name {
			return b, nil
		}
	}
	return binder.Binding{}, fmt.Errorf("backend/host: kernel %s has no parameter %q", f.bound.Spec.Name, name)
}

// Scalar returns the raw, element-type-native bytes bound to a scalar
// parameter named name.
func (f *CallFrame) Scalar(name string) ([]byte, error) {
	b, err := f.bindingByName(name)
	if err != nil {
		return nil, err
	}
	if b.Kind != binder.BoundScalar {
		return nil, fmt.Errorf("backend/host: parameter %q is not scalar", name)
	}
	return b.ScalarBytes, nil
}

// Uint32 decodes a scalar u32/i32-sized parameter named name.
func (f *CallFrame) Uint32(name string) (uint32, error) {
	b, err := f.Scalar(name)
	if err != nil {
		return 0, err
	}
	if len(b) != 4 {
		return 0, fmt.Errorf("backend/host: parameter %q is not 4 bytes wide", name)
	}
	return *(*uint32)(unsafe.Pointer(&b[0])), nil
}

// Bytes returns the host-addressable byte span bound to an array
// parameter named name, regardless of whether it arrived as a pinned
// host span or a zero-copy device handle — both are plain Go memory on
// this back-end.
func (f *CallFrame) Bytes(name string) ([]byte, error) {
	b, err := f.bindingByName(name)
	if err != nil {
		return nil, err
	}
	switch b.Kind {
	case binder.BoundRange:
		elemSize := int(b.Param.Element.Size)
		return unsafe.Slice((*byte)(b.Ptr), b.Len*elemSize), nil
	case binder.BoundDevice:
		return f.ctx.bufferBytes(b.Handle)
	default:
		return nil, fmt.Errorf("backend/host: parameter %q is scalar, not an array", name)
	}
}

// AsFactory wraps a KernelSpec, already built against the host Entry
// closure it will run, as a registry.Factory. The host back-end needs no
// per-context compilation step, so the same Spec serves every Context.
func AsFactory(spec *kernelspec.Spec) func(ctx argument.Context) (*kernelspec.Spec, error) {
	return func(argument.Context) (*kernelspec.Spec, error) { return spec, nil }
}
