// Package kernelerrors defines the error taxonomy raised by the kernel
// dispatch layer: spec-build failures, bind-time mismatches, submission
// validation failures, and the small set of event-terminal causes.
package kernelerrors

import "fmt"

// ArityMismatch is raised when a call supplies a different number of
// arguments than a kernel's formal parameter list declares.
type ArityMismatch struct {
	Kernel   string
	Expected int
	Got      int
}

func (e *ArityMismatch) Error() string {
	return fmt.Sprintf("kernel %s: arity mismatch: expected %d arguments, got %d",
		e.Kernel, e.Expected, e.Got)
}

// TypeMismatch is raised when an argument's element type cannot satisfy a
// formal parameter's declared type.
type TypeMismatch struct {
	Kernel       string
	ParamIndex   int
	ParamName    string
	ExpectedType string
	GotType      string
}

func (e *TypeMismatch) Error() string {
	return fmt.Sprintf("kernel %s: parameter %d (%s): type mismatch: expected %s, got %s",
		e.Kernel, e.ParamIndex, e.ParamName, e.ExpectedType, e.GotType)
}

// CapabilityMissing is raised when an ArgumentHandler cannot yield the
// capability a formal parameter's shape requires.
type CapabilityMissing struct {
	Kernel     string
	ParamIndex int
	ParamName  string
	Needed     string
	Available  string
}

func (e *CapabilityMissing) Error() string {
	return fmt.Sprintf("kernel %s: parameter %d (%s): needs %s capability, handler only offers %s",
		e.Kernel, e.ParamIndex, e.ParamName, e.Needed, e.Available)
}

// SizeNotAligned is raised when a byte range's length is not a multiple of
// the target element size during a range-to-span reinterpretation.
type SizeNotAligned struct {
	Kernel      string
	ParamIndex  int
	ParamName   string
	ElementSize int
	ByteLen     int
}

func (e *SizeNotAligned) Error() string {
	return fmt.Sprintf("kernel %s: parameter %d (%s): byte length %d is not a multiple of element size %d",
		e.Kernel, e.ParamIndex, e.ParamName, e.ByteLen, e.ElementSize)
}

// DuplicateName is raised when a spec builder registers the same
// identifier twice within one naming scope (parameter/dimension/tuneable).
type DuplicateName struct {
	Scope string
	Name  string
}

func (e *DuplicateName) Error() string {
	return fmt.Sprintf("duplicate %s name: %q", e.Scope, e.Name)
}

// UnknownIdentifier is raised when a shape or grid expression references a
// name that is not a declared tuneable, dimension, or primitive parameter.
type UnknownIdentifier struct {
	Context string
	Name    string
}

func (e *UnknownIdentifier) Error() string {
	return fmt.Sprintf("%s: unknown identifier %q", e.Context, e.Name)
}

// GridMisalignment is raised when a grid's global extent on an axis is not
// an exact multiple of its local block size and the kernel does not allow
// grid padding.
type GridMisalignment struct {
	Kernel string
	Axis   int
	Global uint32
	Local  uint32
}

func (e *GridMisalignment) Error() string {
	return fmt.Sprintf("kernel %s: axis %d: global extent %d is not a multiple of local size %d and grid padding is not allowed",
		e.Kernel, e.Axis, e.Global, e.Local)
}

// BackendMismatch is raised when a handle, event, or queue produced by one
// back-end is presented to a different back-end's context.
type BackendMismatch struct {
	Expected string
	Got      string
}

func (e *BackendMismatch) Error() string {
	return fmt.Sprintf("backend mismatch: expected %q, got %q", e.Expected, e.Got)
}

// AlreadyRegistered is raised when a (backend, kernel name) pair is
// registered a second time; the first registration is left intact.
type AlreadyRegistered struct {
	Backend string
	Name    string
}

func (e *AlreadyRegistered) Error() string {
	return fmt.Sprintf("kernel %q already registered for backend %q", e.Name, e.Backend)
}

// PrereqFailed wraps the root cause of a failed prerequisite event. It is
// infectious: any event depending, directly or transitively, on a failed
// prerequisite carries the same root cause.
type PrereqFailed struct {
	Inner error
}

func (e *PrereqFailed) Error() string {
	return fmt.Sprintf("prerequisite failed: %v", e.Inner)
}

func (e *PrereqFailed) Unwrap() error { return e.Inner }

// Cancelled indicates an event was cancelled before it reached a resolved
// or failed terminal state.
type Cancelled struct{}

func (e *Cancelled) Error() string { return "cancelled" }

// TimedOut indicates AwaitFor returned before the event reached a terminal
// state; it never changes the event's own state.
type TimedOut struct{}

func (e *TimedOut) Error() string { return "timed out" }
