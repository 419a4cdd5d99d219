// Package kernelspec implements the static description of a kernel: its
// formal parameter list, grid-dimension declarations, tuneables,
// constraints and grid expression, as described by the kernel dispatch
// specification's KernelSpec component and its compact type-expression
// grammar.
package kernelspec

import (
	"fmt"

	"github.com/notargets/kerneldispatch/kernelerrors"
	"github.com/notargets/kerneldispatch/typedesc"
)

// AccessMode describes how a kernel body may touch a bound parameter.
type AccessMode int

const (
	ReadOnly AccessMode = iota
	WriteOnly
	ReadWrite
)

// ParseAccessMode parses the short access strings the external
// declaration surface uses ("r", "w", "rw").
func ParseAccessMode(s string) (AccessMode, error) {
	switch s {
	case "r":
		return ReadOnly, nil
	case "w":
		return WriteOnly, nil
	case "rw":
		return ReadWrite, nil
	default:
		return 0, fmt.Errorf("kernelspec: invalid access mode %q (want \"r\", \"w\", or \"rw\")", s)
	}
}

func (a AccessMode) String() string {
	switch a {
	case ReadOnly:
		return "r"
	case WriteOnly:
		return "w"
	case ReadWrite:
		return "rw"
	default:
		return "?"
	}
}

// ShapeKind distinguishes scalar from array parameters; the binder
// combines it with the access mode and ExtractAsHandle to pick an
// extraction strategy.
type ShapeKind int

const (
	// ShapeScalar is a bare primitive value.
	ShapeScalar ShapeKind = iota
	// ShapeArray is an array extent expression, extracted either as a
	// device handle (zero-copy) or as a pinned host span depending on the
	// access mode and the ExtractAsHandle flag.
	ShapeArray
)

// ParameterShape is a formal parameter's size description: either a bare
// scalar or an array whose length is given by an expression over
// tuneables, dimensions, or other primitive parameters.
type ParameterShape struct {
	Kind   ShapeKind
	Length Term // nil when Kind == ShapeScalar
}

// FormalParameter is one entry in a KernelSpec's parameter list.
type FormalParameter struct {
	Name    string
	Element typedesc.Descriptor
	Access  AccessMode
	Shape   ParameterShape

	// ExtractAsHandle requests the DeviceHandle (zero-copy) extraction
	// strategy for an array parameter instead of a pinned host span. It
	// has no effect on scalar parameters.
	ExtractAsHandle bool
}

// IsScalar reports whether this parameter is a bare primitive.
func (p FormalParameter) IsScalar() bool { return p.Shape.Kind == ShapeScalar }

// Dimension is one axis of a kernel's declared grid.
type Dimension struct {
	Name         string
	Extent       Term
	DefaultBlock Term // nil if the kernel declares no default block size
}

// Constraint is a bind-time hint or assertion relating two expressions.
// Per the open-question resolution in the dispatch specification,
// constraints are treated as hints unless every identifier they reference
// is bindable (a tuneable, dimension, or primitive parameter) at bind
// time, in which case they become assertions. Neither Build nor Bind
// evaluates them; Spec.CheckConstraints does, and the back-ends' Submit
// calls it before launching.
type Constraint struct {
	Lhs, Rhs Term
	Op       string // one of == <= < >= > !=
	Why      string
}

func (c Constraint) eval(env *Env) (bool, error) {
	l, err := c.Lhs.Eval(env)
	if err != nil {
		return false, err
	}
	r, err := c.Rhs.Eval(env)
	if err != nil {
		return false, err
	}
	switch c.Op {
	case "==":
		return l == r, nil
	case "<=":
		return l <= r, nil
	case "<":
		return l < r, nil
	case ">=":
		return l >= r, nil
	case ">":
		return l > r, nil
	case "!=":
		return l != r, nil
	default:
		return false, fmt.Errorf("kernelspec: unknown constraint operator %q", c.Op)
	}
}

// EntryRef names the compiled entry point a bound kernel ultimately
// invokes. Its Native field is back-end-specific (e.g. a device.Entry
// holding OKL source for the OCCA-backed back-ends in this runtime, or a
// host.Entry closure for the in-process host back-end); the dispatch
// layer never interprets it, only carries it through to the back-end's
// launch path.
type EntryRef struct {
	Name   string
	Native any
}

// GridExpr holds the two bracketed expression lists that resolve a
// kernel's absolute work count (Global) and block size (Local) per axis.
type GridExpr struct {
	Global []Term
	Local  []Term
}

// Spec is the fully built, immutable description of a kernel: name,
// ordered formal parameters, grid dimensions, tuneables, constraints, grid
// expression and entry point. Every identifier referenced by a shape or
// grid expression is guaranteed, by Build, to resolve to a tuneable, a
// dimension, or a primitive parameter.
type Spec struct {
	Name             string
	Parameters       []FormalParameter
	Dimensions       []Dimension
	Tuneables        map[string]int64
	Constraints      []Constraint
	Grid             GridExpr
	Entry            EntryRef
	AllowGridPadding bool

	// BuildID distinguishes two Specs built for the same kernel Name
	// against different device contexts (e.g. the same kernel registered
	// once for "host" and once for "opencl"). The device back-end keys its
	// compiled-kernel cache on Name and BuildID; error messages do not
	// include it.
	BuildID string
}

// ParamByName returns the formal parameter named name, if any.
func (s *Spec) ParamByName(name string) (FormalParameter, bool) {
	for _, p := range s.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return FormalParameter{}, false
}

// DimensionCount returns the kernel's declared grid arity (0, 1, 2 or 3).
func (s *Spec) DimensionCount() int { return len(s.Dimensions) }

// BaseEnv returns an Env pre-populated with every tuneable at its default
// value; callers layer dimension extents and primitive-parameter values
// on top before evaluating shape or grid expressions.
func (s *Spec) BaseEnv() *Env {
	env := NewEnv()
	for name, v := range s.Tuneables {
		env.Set(name, v)
	}
	return env
}

// CheckConstraints evaluates every constraint whose identifiers are fully
// resolvable against env. Constraints that reference an identifier env
// cannot resolve are silently skipped (they remain hints, per the open
// question this runtime resolves in the kernel dispatch specification);
// constraints that do resolve and fail to hold are returned as errors.
func (s *Spec) CheckConstraints(env *Env) error {
	for _, c := range s.Constraints {
		ids := map[string]struct{}{}
		c.Lhs.Identifiers(ids)
		c.Rhs.Identifiers(ids)
		resolvable := true
		for id := range ids {
			if _, ok := env.Lookup(id); !ok {
				resolvable = false
				break
			}
		}
		if !resolvable {
			continue
		}
		ok, err := c.eval(env)
		if err != nil {
			return fmt.Errorf("kernel %s: constraint %s %s %s (%s): %w",
				s.Name, c.Lhs, c.Op, c.Rhs, c.Why, err)
		}
		if !ok {
			return fmt.Errorf("kernel %s: constraint %s %s %s failed (%s)",
				s.Name, c.Lhs, c.Op, c.Rhs, c.Why)
		}
	}
	return nil
}

func duplicateName(scope, name string) error {
	return &kernelerrors.DuplicateName{Scope: scope, Name: name}
}

func unknownIdentifier(context, name string) error {
	return &kernelerrors.UnknownIdentifier{Context: context, Name: name}
}
