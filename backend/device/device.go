// Package device implements the GPU/accelerator back-ends ("opencl",
// "metal", and any other OCCA mode string a host application wants to
// register) on top of a single *gocca.OCCADevice per Context, the one
// library the teacher repo uses to reach every non-host compute target
// through one API. Kernel bodies are compiled OKL source strings;
// buffers are OCCA-managed device memory addressed through the same
// opaque memory.Handle every other back-end uses.
package device

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/google/uuid"
	"github.com/notargets/gocca"

	"github.com/notargets/kerneldispatch/binder"
	"github.com/notargets/kerneldispatch/dispatch"
	"github.com/notargets/kerneldispatch/kernelspec"
	"github.com/notargets/kerneldispatch/memory"
	"github.com/notargets/kerneldispatch/queue"
	"github.com/notargets/kerneldispatch/typedesc"
)

// Entry is the kernelspec.EntryRef.Native value a kernel registered for a
// device back-end provides: the OKL source defining it, the function
// name inside that source OCCA should compile and launch, and the
// compute-function arity it expects.
type Entry struct {
	Source string
	Name   string
	Arity  int
}

// Context owns one OCCA device, its compiled-kernel cache, its buffer
// table, and an asynchronous Queue. backend names the registry-visible
// back-end string ("opencl", "metal", ...); NewContext's mode argument is
// the OCCA device JSON properties string passed to gocca.NewDevice (e.g.
// `{"mode": "OpenCL", "device_id": 0}`).
type Context struct {
	backend string
	device  *gocca.OCCADevice

	mu      sync.Mutex
	kernels map[string]*gocca.OCCAKernel
	buffers map[string]*gocca.OCCAMemory

	q *queue.Queue
}

// NewContext creates the underlying OCCA device in mode and wraps it as
// backend.
func NewContext(backend, mode string) (*Context, error) {
	dev, err := gocca.NewDevice(mode)
	if err != nil {
		return nil, fmt.Errorf("backend/device: creating %s device: %w", backend, err)
	}
	return &Context{
		backend: backend,
		device:  dev,
		kernels: make(map[string]*gocca.OCCAKernel),
		buffers: make(map[string]*gocca.OCCAMemory),
		q:       queue.NewQueue(backend, false),
	}, nil
}

// defaultModeProbeOrder is the fallback sequence NewContextAutoDetect tries,
// preferring parallel backends over the Serial reference implementation.
var defaultModeProbeOrder = []string{
	`{"mode": "OpenMP"}`,
	`{"mode": "CUDA", "device_id": 0}`,
	`{"mode": "OpenCL", "platform_id": 0, "device_id": 0}`,
	`{"mode": "Serial"}`,
}

// NewContextAutoDetect tries each mode string in defaultModeProbeOrder in
// turn and wraps the first one OCCA can actually create, for callers that
// want "the fastest backend available on this machine" without hardcoding
// one. It fails only if every mode in the probe order fails.
func NewContextAutoDetect(backend string) (*Context, error) {
	var lastErr error
	for _, mode := range defaultModeProbeOrder {
		ctx, err := NewContext(backend, mode)
		if err == nil {
			return ctx, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("backend/device: no usable OCCA mode found: %w", lastErr)
}

// Backend reports this context's registry-visible back-end name.
func (c *Context) Backend() string { return c.backend }

// Queue returns the context's asynchronous submission queue.
func (c *Context) Queue() *queue.Queue { return c.q }

// Mode returns the underlying OCCA device's mode string ("OpenCL",
// "Metal", "Serial", ...), for diagnostics.
func (c *Context) Mode() string { return c.device.Mode() }

// Close releases every cached kernel and buffer this context owns.
func (c *Context) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range c.kernels {
		k.Free()
	}
	for _, m := range c.buffers {
		m.Free()
	}
	c.kernels = make(map[string]*gocca.OCCAKernel)
	c.buffers = make(map[string]*gocca.OCCAMemory)
}

// Alloc allocates a fresh device buffer of length elements of elem's size
// and returns a zero-copy Handle over it.
func (c *Context) Alloc(elem typedesc.Descriptor, length int) memory.Handle {
	size := int64(length) * int64(elem.Size)
	mem := c.device.Malloc(size, nil, nil)
	id := uuid.NewString()
	c.mu.Lock()
	c.buffers[id] = mem
	c.mu.Unlock()
	return memory.NewHandle(c.backend, id, 0, size, elem.ID, func() {
		c.mu.Lock()
		m := c.buffers[id]
		delete(c.buffers, id)
		c.mu.Unlock()
		if m != nil {
			m.Free()
		}
	})
}

func (c *Context) lookupMemory(h memory.Handle) (*gocca.OCCAMemory, error) {
	c.mu.Lock()
	mem, ok := c.buffers[h.DeviceBufferID]
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("backend/device: unknown buffer %s on backend %s", h.DeviceBufferID, c.backend)
	}
	return mem, nil
}

func (c *Context) compile(spec *kernelspec.Spec) (*gocca.OCCAKernel, error) {
	entry, ok := spec.Entry.Native.(Entry)
	if !ok {
		return nil, fmt.Errorf("backend/device: kernel %s has no device Entry registered", spec.Name)
	}
	key := spec.Name + "#" + spec.BuildID

	c.mu.Lock()
	defer c.mu.Unlock()
	if k, ok := c.kernels[key]; ok {
		return k, nil
	}

	var kernel *gocca.OCCAKernel
	var err error
	if c.device.Mode() == "OpenMP" {
		props := gocca.JsonParse(`{"compiler_flags": "-O3"}`)
		defer props.Free()
		kernel, err = c.device.BuildKernelFromString(entry.Source, entry.Name, props)
	} else {
		kernel, err = c.device.BuildKernelFromString(entry.Source, entry.Name, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("backend/device: compiling kernel %s: %w", spec.Name, err)
	}
	c.kernels[key] = kernel
	return kernel, nil
}

// Submit resolves bound's grid expression against grid (one entry per
// declared Dimension), compiles (or reuses) its OCCA kernel, and enqueues
// the launch on this context's asynchronous Queue. Only scalar and
// DeviceHandle-bound parameters are supported: a pinned host span bound
// via MutRange/ConstRange has no OCCA-native representation without an
// explicit upload, which this back-end does not perform implicitly.
func (c *Context) Submit(opName string, bound *binder.BoundKernel, grid []uint32, prereqs []*queue.Event) (*queue.Event, error) {
	kernel, err := c.compile(bound.Spec)
	if err != nil {
		return nil, err
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
	if _, err := dispatch.ResolveGrid(bound.Spec, env); err != nil {
		return nil, err
	}

	args, err := c.buildArgs(bound)
	if err != nil {
		return nil, err
	}

	return c.q.Submit(opName, len(bound.Spec.Dimensions), grid, prereqs, func() error {
		if err := kernel.RunWithArgs(args...); err != nil {
			return fmt.Errorf("backend/device: launch %s failed: %w", opName, err)
		}
		c.device.Finish()
		return nil
	})
}

func (c *Context) buildArgs(bound *binder.BoundKernel) ([]interface{}, error) {
	args := make([]interface{}, 0, len(bound.Bindings))
	for _, b := range bound.Bindings {
		switch b.Kind {
		case binder.BoundScalar:
			v, err := decodeScalar(b.Param.Element.ID.String(), b.ScalarBytes)
			if err != nil {
				return nil, fmt.Errorf("backend/device: parameter %s: %w", b.Param.Name, err)
			}
			args = append(args, v)
		case binder.BoundDevice:
			mem, err := c.lookupMemory(b.Handle)
			if err != nil {
				return nil, err
			}
			args = append(args, mem)
		default:
			return nil, fmt.Errorf("backend/device: parameter %s: pinned host ranges are not supported on backend %s", b.Param.Name, c.backend)
		}
	}
	return args, nil
}

func decodeScalar(elementID string, b []byte) (interface{}, error) {
	want := 0
	switch elementID {
	case "u32", "i32", "f32":
		want = 4
	case "u64", "i64", "f64":
		want = 8
	default:
		return nil, fmt.Errorf("no native scalar decoding for element type %q", elementID)
	}
	if len(b) != want {
		return nil, fmt.Errorf("scalar has %d bytes, want %d", len(b), want)
	}
	ptr := unsafe.Pointer(&b[0])
	switch elementID {
	case "u32":
		return *(*uint32)(ptr), nil
	case "i32":
		return *(*int32)(ptr), nil
	case "f32":
		return *(*float32)(ptr), nil
	case "u64":
		return *(*uint64)(ptr), nil
	case "i64":
		return *(*int64)(ptr), nil
	default: // f64
		return *(*float64)(ptr), nil
	}
}
