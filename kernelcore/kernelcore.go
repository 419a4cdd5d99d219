// Package kernelcore re-exports the pieces of the kernel dispatch runtime
// a host application typically needs at its call sites — Registry,
// Builder, Bind, and the host/device Context constructors — so ordinary
// callers rarely need to import every subpackage directly. Advanced
// callers (writing a new back-end, or a test harness) still import the
// subpackages themselves.
package kernelcore

import (
	"fmt"
	"log"

	"github.com/notargets/kerneldispatch/argument"
	"github.com/notargets/kerneldispatch/backend/device"
	"github.com/notargets/kerneldispatch/backend/host"
	"github.com/notargets/kerneldispatch/binder"
	"github.com/notargets/kerneldispatch/dispatch"
	"github.com/notargets/kerneldispatch/kernelspec"
	"github.com/notargets/kerneldispatch/memory"
	"github.com/notargets/kerneldispatch/queue"
	"github.com/notargets/kerneldispatch/registry"
	"github.com/notargets/kerneldispatch/typedesc"
)

// Re-exported types and constructors host applications assemble a
// runtime from without reaching into every leaf package individually.
type (
	Spec         = kernelspec.Spec
	Builder      = kernelspec.Builder
	BoundKernel  = binder.BoundKernel
	Event        = queue.Event
	Registry     = registry.Registry
	Handler      = argument.Handler
	Context      = argument.Context
	Handle       = memory.Handle
	ResolvedGrid = dispatch.ResolvedGrid
)

// NewBuilder starts a kernelspec.Builder against typedesc.Default.
func NewBuilder(name string) *Builder { return kernelspec.NewBuilder(name, typedesc.Default) }

// Bind reconciles spec against args for ctx, per binder.Bind.
func Bind(spec *Spec, ctx Context, args []Handler) (*BoundKernel, error) {
	return binder.Bind(spec, ctx, args)
}

// NewHostContext returns a fresh in-process host back-end context.
func NewHostContext() *host.Context { return host.NewContext() }

// NewDeviceContext creates an OCCA-backed context for backend (e.g.
// "opencl", "metal") using the given OCCA device-properties JSON string.
func NewDeviceContext(backend, mode string) (*device.Context, error) {
	return device.NewContext(backend, mode)
}

// MustRegister registers factory under (backend, name) in reg, panicking
// on a duplicate registration.
func MustRegister(reg *Registry, backend, name string, factory registry.Factory) {
	reg.MustRegister(backend, name, factory)
}

// Default is the process-wide registry every back-end registers its
// kernels into by default.
var Default = registry.Default

// Config mirrors the teacher's own construction-time Config struct,
// expanded from its fixed {K, FloatType, IntType} fields to the
// back-end-selection and diagnostics knobs this generalized runtime
// needs: which registry back-end to target, the device-selection JSON
// (ignored for the host back-end), an optional logger, and whether
// Runtime.Launch logs each event's ProfilingInfo. Events record their
// timestamps whether or not EnableProfiling is set.
type Config struct {
	Backend         string
	DeviceProps     string
	Logger          *log.Logger
	EnableProfiling bool
}

// BackendContext is the subset of host.Context's and device.Context's
// methods a Runtime needs to submit work without knowing which back-end
// it is holding.
type BackendContext interface {
	argument.Context
	Queue() *queue.Queue
	Alloc(elem typedesc.Descriptor, length int) memory.Handle
	Submit(opName string, bound *BoundKernel, grid []uint32, prereqs []*Event) (*Event, error)
}

// Runtime pairs a BackendContext with the diagnostics knobs Config
// declares, following the teacher's own NewRunner constructor, which
// resolves a device and logs its selection before returning.
type Runtime struct {
	ctx       BackendContext
	logger    *log.Logger
	profiling bool
}

// NewRuntime resolves cfg.Backend to a concrete Context: "host" gets the
// in-process synchronous back-end, anything else is used as the back-end
// name of an OCCA device opened via backend/device, with cfg.DeviceProps
// as its device properties (or, if empty, the first mode that
// device.NewContextAutoDetect can open). Device selection is
// logged at Config.Logger (log.Default() if nil), the same diagnostic
// the teacher's NewRunner prints via fmt.Printf on successful device
// creation.
func NewRuntime(cfg Config) (*Runtime, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	var ctx BackendContext
	if cfg.Backend == "" || cfg.Backend == host.BackendName {
		ctx = NewHostContext()
		logger.Printf("kernelcore: using host backend")
	} else {
		var devCtx *device.Context
		var err error
		if cfg.DeviceProps == "" {
			devCtx, err = device.NewContextAutoDetect(cfg.Backend)
		} else {
			devCtx, err = device.NewContext(cfg.Backend, cfg.DeviceProps)
		}
		if err != nil {
			return nil, fmt.Errorf("kernelcore: NewRuntime: %w", err)
		}
		logger.Printf("kernelcore: using %s backend (OCCA mode %s)", cfg.Backend, devCtx.Mode())
		ctx = devCtx
	}

	return &Runtime{ctx: ctx, logger: logger, profiling: cfg.EnableProfiling}, nil
}

// Context returns the underlying back-end context, for callers that need
// argument.Context to pass to Bind or want the concrete *host.Context /
// *device.Context for back-end-specific operations (e.g. host.Context's
// FillArray).
func (r *Runtime) Context() BackendContext { return r.ctx }

// Logger returns the runtime's diagnostics logger.
func (r *Runtime) Logger() *log.Logger { return r.logger }

// Launch binds args against spec and submits it on the runtime's
// back-end in one call, the common path a host application takes for a
// one-shot kernel invocation.
func (r *Runtime) Launch(opName string, spec *Spec, args []Handler, grid []uint32, prereqs []*Event) (*Event, error) {
	bound, err := Bind(spec, r.ctx, args)
	if err != nil {
		return nil, err
	}
	ev, err := r.ctx.Submit(opName, bound, grid, prereqs)
	if err != nil {
		bound.Release()
		return nil, err
	}
	// Releases bound's pins once ev reaches a terminal state, regardless of
	// outcome — Then only runs its callback on success, so a plain Await in
	// its own goroutine is used here instead.
	go func() {
		_ = ev.Await()
		if r.profiling {
			r.logger.Printf("kernelcore: %s profiling: %v", opName, ev.Profiling().JSON())
		}
		bound.Release()
	}()
	return ev, nil
}
