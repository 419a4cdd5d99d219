// Package binder reconciles a kernel's formal parameters against
// caller-supplied ArgumentHandlers, producing a BoundKernel: one typed
// binding per parameter, the set of pins keeping their underlying memory
// alive, and the entry point ready to hand to a back-end's queue.
//
// The source this runtime generalizes from drives the same decisions
// through compile-time overload resolution over concrete parameter types
// (see SPEC_FULL.md §5.5); this package replaces that with a runtime
// switch over each formal parameter's declared shape and access mode
// combined with a capability query on the supplied handler, exactly the
// table the kernel dispatch specification gives for the Binder component.
package binder

import (
	"fmt"
	"unsafe"

	"github.com/notargets/kerneldispatch/argument"
	"github.com/notargets/kerneldispatch/kernelerrors"
	"github.com/notargets/kerneldispatch/kernelspec"
	"github.com/notargets/kerneldispatch/memory"
)

// BindingKind distinguishes the three shapes a bound argument can take
// once extraction has happened.
type BindingKind int

const (
	BoundScalar BindingKind = iota
	BoundRange
	BoundDevice
)

// Binding is one formal parameter's resolved argument.
type Binding struct {
	Param kernelspec.FormalParameter
	Kind  BindingKind

	// ScalarBytes holds the value, in the formal parameter's element
	// type's own byte representation, for Kind == BoundScalar.
	ScalarBytes []byte

	// Ptr and Len (element count, not bytes) describe a pinned host span
	// for Kind == BoundRange.
	Ptr unsafe.Pointer
	Len int

	// Handle is the zero-copy device buffer reference for Kind ==
	// BoundDevice (the zero Handle otherwise).
	Handle memory.Handle
}

// BoundKernel is a KernelSpec paired with validated arguments: every
// formal parameter has exactly one Binding, and Pins holds every lifetime
// token produced while extracting them. No pin reference in Pins
// dangles: they are released together, by the caller, once the launch
// Event this BoundKernel feeds reaches a terminal state.
type BoundKernel struct {
	Spec     *kernelspec.Spec
	Bindings []Binding
	Pins     []memory.Pin
}

// Release releases every pin this BoundKernel holds. Callers must not use
// any BoundRange binding's Ptr after calling Release.
func (bk *BoundKernel) Release() {
	memory.ReleaseAll(bk.Pins)
	bk.Pins = nil
}

// ScalarEnv builds a kernelspec.Env seeded with the spec's tuneables and,
// for every scalar-shaped, integer-typed parameter that was bound, its
// bound value — the inputs a grid or shape expression may reference per
// the KernelSpec identifier-closure invariant.
func (bk *BoundKernel) ScalarEnv() (*kernelspec.Env, error) {
	env := bk.Spec.BaseEnv()
	for _, b := range bk.Bindings {
		if b.Kind != BoundScalar {
			continue
		}
		v, err := decodeInt(b.Param.Element.ID.String(), b.ScalarBytes)
		if err != nil {
			continue // non-integer scalars simply aren't available to expressions
		}
		env.Set(b.Param.Name, v)
	}
	for _, d := range bk.Spec.Dimensions {
		if v, ok := env.Lookup(d.Name); ok {
			env.Set(d.Name, v)
			continue
		}
		v, err := d.Extent.Eval(env)
		if err == nil {
			env.Set(d.Name, v)
		}
	}
	return env, nil
}

func decodeInt(elementID string, b []byte) (int64, error) {
	switch {
	case elementID == "u32" && len(b) == 4:
		return int64(*(*uint32)(unsafe.Pointer(&b[0]))), nil
	case elementID == "i32" && len(b) == 4:
		return int64(*(*int32)(unsafe.Pointer(&b[0]))), nil
	case (elementID == "u64" || elementID == "i64") && len(b) == 8:
		return *(*int64)(unsafe.Pointer(&b[0])), nil
	default:
		return 0, fmt.Errorf("binder: scalar of type %s (%d bytes) is not an integer", elementID, len(b))
	}
}

// Bind reconciles args against spec's formal parameters, in order. Arity
// is checked first; every subsequent failure discards all pins
// accumulated so far before returning, annotated with the failing
// parameter's index, name, and the kernel's name, per the propagation
// policy in the kernel dispatch specification.
func Bind(spec *kernelspec.Spec, ctx argument.Context, args []argument.Handler) (*BoundKernel, error) {
	if len(args) != len(spec.Parameters) {
		return nil, &kernelerrors.ArityMismatch{Kernel: spec.Name, Expected: len(spec.Parameters), Got: len(args)}
	}

	bk := &BoundKernel{Spec: spec, Bindings: make([]Binding, len(args))}

	for i, param := range spec.Parameters {
		opName := fmt.Sprintf("kernel %s bind param %d %s", spec.Name, i, param.Name)
		binding, pin, err := bindOne(opName, i, spec.Name, param, ctx, args[i])
		if err != nil {
			bk.Release()
			return nil, err
		}
		bk.Bindings[i] = binding
		if pin != nil {
			bk.Pins = append(bk.Pins, *pin)
		}
	}

	return bk, nil
}

func bindOne(opName string, index int, kernel string, param kernelspec.FormalParameter, ctx argument.Context, h argument.Handler) (Binding, *memory.Pin, error) {
	if param.IsScalar() {
		return bindScalar(opName, index, kernel, param, ctx, h)
	}
	if param.ExtractAsHandle {
		return bindDeviceHandle(opName, index, kernel, param, ctx, h)
	}
	if param.Access == kernelspec.ReadOnly {
		return bindConstRange(opName, index, kernel, param, ctx, h)
	}
	return bindMutRange(opName, index, kernel, param, ctx, h)
}

func bindScalar(opName string, index int, kernel string, param kernelspec.FormalParameter, ctx argument.Context, h argument.Handler) (Binding, *memory.Pin, error) {
	if h.Kind() != argument.Primitive {
		return Binding{}, nil, &kernelerrors.CapabilityMissing{
			Kernel: kernel, ParamIndex: index, ParamName: param.Name,
			Needed: argument.Primitive.String(), Available: h.Kind().String(),
		}
	}
	src, srcDesc, err := h.GetPrimitive(opName, ctx)
	if err != nil {
		return Binding{}, nil, fmt.Errorf("%s: %w", opName, err)
	}
	buf := make([]byte, param.Element.Size)
	if srcDesc.CopyInto == nil {
		return Binding{}, nil, &kernelerrors.TypeMismatch{
			Kernel: kernel, ParamIndex: index, ParamName: param.Name,
			ExpectedType: param.Element.ID.String(), GotType: srcDesc.ID.String(),
		}
	}
	if err := srcDesc.CopyInto(src, unsafe.Pointer(&buf[0]), param.Element.ID); err != nil {
		return Binding{}, nil, &kernelerrors.TypeMismatch{
			Kernel: kernel, ParamIndex: index, ParamName: param.Name,
			ExpectedType: param.Element.ID.String(), GotType: srcDesc.ID.String(),
		}
	}
	return Binding{Param: param, Kind: BoundScalar, ScalarBytes: buf}, nil, nil
}

func bindDeviceHandle(opName string, index int, kernel string, param kernelspec.FormalParameter, ctx argument.Context, h argument.Handler) (Binding, *memory.Pin, error) {
	if h.Kind() != argument.DeviceHandle {
		return Binding{}, nil, &kernelerrors.CapabilityMissing{
			Kernel: kernel, ParamIndex: index, ParamName: param.Name,
			Needed: argument.DeviceHandle.String(), Available: h.Kind().String(),
		}
	}
	if h.Element().ID != param.Element.ID {
		return Binding{}, nil, &kernelerrors.TypeMismatch{
			Kernel: kernel, ParamIndex: index, ParamName: param.Name,
			ExpectedType: param.Element.ID.String(), GotType: h.Element().ID.String(),
		}
	}
	handle, err := h.GetHandle(opName, ctx)
	if err != nil {
		return Binding{}, nil, fmt.Errorf("%s: %w", opName, err)
	}
	if ctx != nil && handle.Backend != "" && handle.Backend != ctx.Backend() {
		return Binding{}, nil, &kernelerrors.BackendMismatch{Expected: ctx.Backend(), Got: handle.Backend}
	}
	return Binding{Param: param, Kind: BoundDevice, Handle: handle}, nil, nil
}

func bindConstRange(opName string, index int, kernel string, param kernelspec.FormalParameter, ctx argument.Context, h argument.Handler) (Binding, *memory.Pin, error) {
	if h.Kind() != argument.ConstRange {
		return Binding{}, nil, &kernelerrors.CapabilityMissing{
			Kernel: kernel, ParamIndex: index, ParamName: param.Name,
			Needed: argument.ConstRange.String(), Available: h.Kind().String(),
		}
	}
	if h.Element().ID != param.Element.ID {
		return Binding{}, nil, &kernelerrors.TypeMismatch{
			Kernel: kernel, ParamIndex: index, ParamName: param.Name,
			ExpectedType: param.Element.ID.String(), GotType: h.Element().ID.String(),
		}
	}
	ptr, byteLen, pin, err := h.GetConstRange(opName, ctx)
	if err != nil {
		return Binding{}, nil, fmt.Errorf("%s: %w", opName, err)
	}
	elemSize := int(param.Element.Size)
	if elemSize == 0 || byteLen%elemSize != 0 {
		pin.Release()
		return Binding{}, nil, &kernelerrors.SizeNotAligned{
			Kernel: kernel, ParamIndex: index, ParamName: param.Name,
			ElementSize: elemSize, ByteLen: byteLen,
		}
	}
	return Binding{Param: param, Kind: BoundRange, Ptr: ptr, Len: byteLen / elemSize}, &pin, nil
}

func bindMutRange(opName string, index int, kernel string, param kernelspec.FormalParameter, ctx argument.Context, h argument.Handler) (Binding, *memory.Pin, error) {
	if h.Kind() != argument.MutRange {
		return Binding{}, nil, &kernelerrors.CapabilityMissing{
			Kernel: kernel, ParamIndex: index, ParamName: param.Name,
			Needed: argument.MutRange.String(), Available: h.Kind().String(),
		}
	}
	if h.Element().ID != param.Element.ID {
		return Binding{}, nil, &kernelerrors.TypeMismatch{
			Kernel: kernel, ParamIndex: index, ParamName: param.Name,
			ExpectedType: param.Element.ID.String(), GotType: h.Element().ID.String(),
		}
	}
	ptr, byteLen, pin, err := h.GetRange(opName, ctx)
	if err != nil {
		return Binding{}, nil, fmt.Errorf("%s: %w", opName, err)
	}
	elemSize := int(param.Element.Size)
	if elemSize == 0 || byteLen%elemSize != 0 {
		pin.Release()
		return Binding{}, nil, &kernelerrors.SizeNotAligned{
			Kernel: kernel, ParamIndex: index, ParamName: param.Name,
			ElementSize: elemSize, ByteLen: byteLen,
		}
	}
	return Binding{Param: param, Kind: BoundRange, Ptr: ptr, Len: byteLen / elemSize}, &pin, nil
}
