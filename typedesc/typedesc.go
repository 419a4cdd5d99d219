// Package typedesc defines the opaque type-identity and byte-copy contract
// the rest of the runtime uses to bridge serialized argument bytes into
// typed kernel-local bindings, without the core depending on any concrete
// value-description or serialization library.
package typedesc

import (
	"fmt"
	"sync"
	"unsafe"
)

// ID is an opaque, equality-comparable token identifying a concrete value
// type. Two IDs compare equal only if they were produced for the same
// registered name.
type ID struct {
	name string
}

// String returns the identifier's registered name, for error messages.
func (id ID) String() string { return id.name }

// IsZero reports whether id is the unset zero value.
func (id ID) IsZero() bool { return id.name == "" }

// Descriptor is the sole bridge from a serialized byte span to a typed
// primitive: a stable identity, its size on the wire, and a copy function
// that fails with a type-mismatch error if the destination identity is
// incompatible with the source bytes.
type Descriptor struct {
	ID   ID
	Size uintptr

	// CopyInto copies src into the memory pointed to by dst, which the
	// caller asserts is large enough to hold a value of type dstID. It
	// returns an error if dstID is not compatible with this descriptor's
	// ID.
	CopyInto func(src []byte, dst unsafe.Pointer, dstID ID) error
}

// Registry is a process-wide, read-mostly table of Descriptors keyed by
// name, consulted when a kernelspec.Builder resolves a <prim> grammar term.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]Descriptor
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Descriptor)}
}

// Register adds or replaces the Descriptor for name.
func (r *Registry) Register(name string, size uintptr, copyInto func([]byte, unsafe.Pointer, ID) error) Descriptor {
	d := Descriptor{ID: ID{name: name}, Size: size, CopyInto: copyInto}
	r.mu.Lock()
	r.byName[name] = d
	r.mu.Unlock()
	return d
}

// Resolve looks up a Descriptor by its registered name.
func (r *Registry) Resolve(name string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byName[name]
	return d, ok
}

// MustResolve is Resolve but panics on an unknown name; intended for
// package-level primitive registration where the name is a compile-time
// constant, not caller input.
func (r *Registry) MustResolve(name string) Descriptor {
	d, ok := r.Resolve(name)
	if !ok {
		panic(fmt.Sprintf("typedesc: unregistered primitive %q", name))
	}
	return d
}

// Default is the package-level registry pre-populated with the fixed-width
// scalar primitives every back-end in this runtime understands natively.
// Host applications register their own Descriptors (for struct or
// domain-specific element types) into the same Registry, or into one of
// their own.
var Default = NewRegistry()

func init() {
	registerNumeric[uint32](Default, "u32")
	registerNumeric[uint64](Default, "u64")
	registerNumeric[int32](Default, "i32")
	registerNumeric[int64](Default, "i64")
	registerNumeric[float32](Default, "f32")
	registerNumeric[float64](Default, "f64")
	Default.Register("byte", 1, func(src []byte, dst unsafe.Pointer, dstID ID) error {
		if dstID.name != "byte" {
			return fmt.Errorf("typedesc: cannot copy byte into %s", dstID)
		}
		if len(src) != 1 {
			return fmt.Errorf("typedesc: byte copy expects 1 source byte, got %d", len(src))
		}
		*(*byte)(dst) = src[0]
		return nil
	})
}

type numeric interface {
	uint32 | uint64 | int32 | int64 | float32 | float64
}

func registerNumeric[T numeric](r *Registry, name string) {
	var zero T
	size := unsafe.Sizeof(zero)
	r.Register(name, size, func(src []byte, dst unsafe.Pointer, dstID ID) error {
		if dstID.name != name {
			return fmt.Errorf("typedesc: cannot copy %s into %s", name, dstID)
		}
		if uintptr(len(src)) != size {
			return fmt.Errorf("typedesc: %s copy expects %d source bytes, got %d", name, size, len(src))
		}
		*(*T)(dst) = *(*T)(unsafe.Pointer(&src[0]))
		return nil
	})
}
