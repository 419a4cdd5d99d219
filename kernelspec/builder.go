package kernelspec

import (
	"fmt"

	"github.com/notargets/kerneldispatch/typedesc"
)

// Builder provides the imperative declaration surface described by the
// kernel dispatch specification's external interfaces: AddParameter,
// AddDimension, AddTuneable, AddConstraint, SetGridExpression, SetEntry
// and AllowGridPadding, culminating in Build, which enforces the
// KernelSpec identifier-closure invariant before handing back an
// immutable Spec.
type Builder struct {
	name        string
	registry    *typedesc.Registry
	params      []FormalParameter
	paramNames  map[string]struct{}
	dims        []Dimension
	dimNames    map[string]struct{}
	tuneables   map[string]int64
	constraints []Constraint
	grid        GridExpr
	gridSet     bool
	entry       EntryRef
	allowPad    bool
	arityHint   int
	err         error
}

// NewBuilder starts a Builder for a kernel named name, resolving <prim>
// type-expression terms against registry (typedesc.Default if nil).
func NewBuilder(name string, registry *typedesc.Registry) *Builder {
	if registry == nil {
		registry = typedesc.Default
	}
	return &Builder{
		name:       name,
		registry:   registry,
		paramNames: make(map[string]struct{}),
		dimNames:   make(map[string]struct{}),
		tuneables:  make(map[string]int64),
	}
}

func (b *Builder) fail(err error) *Builder {
	if b.err == nil {
		b.err = err
	}
	return b
}

// AddParameter declares a formal parameter. access is "r", "w" or "rw".
// typeExpr follows the grammar `IDENT | IDENT "[" EXPR "]"`: a bare
// primitive name for a scalar, or a primitive followed by a bracketed
// length expression for an array. extractAsHandle requests the zero-copy
// DeviceHandle binding strategy for array parameters.
func (b *Builder) AddParameter(name, access, typeExpr string, extractAsHandle bool) *Builder {
	if b.err != nil {
		return b
	}
	if _, exists := b.paramNames[name]; exists {
		return b.fail(duplicateName("parameter", name))
	}
	mode, err := ParseAccessMode(access)
	if err != nil {
		return b.fail(err)
	}
	prim, sizeExpr, err := ParseTypeExpr(typeExpr)
	if err != nil {
		return b.fail(err)
	}
	desc, ok := b.registry.Resolve(prim)
	if !ok {
		return b.fail(unknownIdentifier("parameter "+name+" element type", prim))
	}

	shape := ParameterShape{Kind: ShapeScalar}
	if sizeExpr != nil {
		shape = ParameterShape{Kind: ShapeArray, Length: sizeExpr}
	}

	b.paramNames[name] = struct{}{}
	b.params = append(b.params, FormalParameter{
		Name:            name,
		Element:         desc,
		Access:          mode,
		Shape:           shape,
		ExtractAsHandle: extractAsHandle,
	})
	return b
}

// AddDimension declares a grid axis. extentExpr is parsed with the same
// EXPR grammar as array lengths. defaultBlock, if non-empty, sets the
// axis's default block size.
func (b *Builder) AddDimension(name, extentExpr string, defaultBlock string) *Builder {
	if b.err != nil {
		return b
	}
	if _, exists := b.dimNames[name]; exists {
		return b.fail(duplicateName("dimension", name))
	}
	extent, err := ParseExpr(extentExpr)
	if err != nil {
		return b.fail(fmt.Errorf("kernelspec: dimension %s extent: %w", name, err))
	}
	var block Term
	if defaultBlock != "" {
		block, err = ParseExpr(defaultBlock)
		if err != nil {
			return b.fail(fmt.Errorf("kernelspec: dimension %s default block: %w", name, err))
		}
	}
	b.dimNames[name] = struct{}{}
	b.dims = append(b.dims, Dimension{Name: name, Extent: extent, DefaultBlock: block})
	return b
}

// AddTuneable declares a named integer tuneable with its default value.
func (b *Builder) AddTuneable(name string, def int64) *Builder {
	if b.err != nil {
		return b
	}
	if _, exists := b.tuneables[name]; exists {
		return b.fail(duplicateName("tuneable", name))
	}
	b.tuneables[name] = def
	return b
}

// AddConstraint records a relation between two expressions, evaluated as
// a hint or an assertion per Spec.CheckConstraints.
func (b *Builder) AddConstraint(lhs, op, rhs, why string) *Builder {
	if b.err != nil {
		return b
	}
	l, err := ParseExpr(lhs)
	if err != nil {
		return b.fail(fmt.Errorf("kernelspec: constraint lhs: %w", err))
	}
	r, err := ParseExpr(rhs)
	if err != nil {
		return b.fail(fmt.Errorf("kernelspec: constraint rhs: %w", err))
	}
	switch op {
	case "==", "<=", "<", ">=", ">", "!=":
	default:
		return b.fail(fmt.Errorf("kernelspec: invalid constraint operator %q", op))
	}
	b.constraints = append(b.constraints, Constraint{Lhs: l, Rhs: r, Op: op, Why: why})
	return b
}

// SetGridExpression parses global and local as bracketed, comma-separated
// expression lists (e.g. "[blocksPerGrid, numActiveFeatures+1]") and
// records them as the kernel's grid expression. Both lists must reference
// only declared identifiers or ceilDiv of them; that closure is verified
// by Build.
func (b *Builder) SetGridExpression(global, local string) *Builder {
	if b.err != nil {
		return b
	}
	g, err := ParseExprList(global)
	if err != nil {
		return b.fail(fmt.Errorf("kernelspec: grid global expression: %w", err))
	}
	l, err := ParseExprList(local)
	if err != nil {
		return b.fail(fmt.Errorf("kernelspec: grid local expression: %w", err))
	}
	if len(g) != len(l) {
		return b.fail(fmt.Errorf("kernelspec: grid global has %d axes but local has %d", len(g), len(l)))
	}
	b.grid = GridExpr{Global: g, Local: l}
	b.gridSet = true
	return b
}

// SetEntry names the kernel's compiled entry point and the arity (0-3) of
// the compute function signature it expects, checked against the number
// of declared dimensions at build time rather than deferred to first
// bind, per the supplemented early-validation behavior in SPEC_FULL.md.
func (b *Builder) SetEntry(entry EntryRef, arityHint int) *Builder {
	if b.err != nil {
		return b
	}
	if arityHint < 0 || arityHint > 3 {
		return b.fail(fmt.Errorf("kernelspec: arity hint must be 0-3, got %d", arityHint))
	}
	b.entry = entry
	b.arityHint = arityHint
	return b
}

// AllowGridPadding marks the kernel as tolerant of launched work items
// whose index exceeds its logical extent; such items must observe the
// padding themselves and return early.
func (b *Builder) AllowGridPadding() *Builder {
	b.allowPad = true
	return b
}

// Build validates the identifier-closure invariant (every identifier
// referenced by a shape or grid expression must be a tuneable, a
// dimension name, or the name of a primitive-valued parameter), checks
// the compute-function arity against the declared dimension count, and
// returns the immutable Spec.
func (b *Builder) Build() (*Spec, error) {
	if b.err != nil {
		return nil, b.err
	}
	if !b.gridSet && len(b.dims) > 0 {
		return nil, fmt.Errorf("kernel %s: grid expression not set", b.name)
	}
	if b.arityHint != len(b.dims) {
		return nil, fmt.Errorf("kernel %s: compute function arity %d does not match %d declared dimensions",
			b.name, b.arityHint, len(b.dims))
	}
	if b.gridSet && len(b.grid.Global) != len(b.dims) {
		return nil, fmt.Errorf("kernel %s: grid expression declares %d axes but %d dimensions were declared",
			b.name, len(b.grid.Global), len(b.dims))
	}

	bindable := make(map[string]struct{}, len(b.tuneables)+len(b.dimNames)+len(b.paramNames))
	for name := range b.tuneables {
		bindable[name] = struct{}{}
	}
	for name := range b.dimNames {
		bindable[name] = struct{}{}
	}
	for _, p := range b.params {
		if p.IsScalar() {
			bindable[p.Name] = struct{}{}
		}
	}

	checkClosure := func(context string, t Term) error {
		if t == nil {
			return nil
		}
		ids := map[string]struct{}{}
		t.Identifiers(ids)
		for id := range ids {
			if _, ok := bindable[id]; !ok {
				return fmt.Errorf("kernel %s: %s: %w", b.name, context, unknownIdentifier(context, id))
			}
		}
		return nil
	}

	for _, p := range b.params {
		if p.Shape.Kind == ShapeArray {
			if err := checkClosure("parameter "+p.Name+" shape", p.Shape.Length); err != nil {
				return nil, err
			}
		}
	}
	for _, d := range b.dims {
		if err := checkClosure("dimension "+d.Name+" extent", d.Extent); err != nil {
			return nil, err
		}
		if err := checkClosure("dimension "+d.Name+" default block", d.DefaultBlock); err != nil {
			return nil, err
		}
	}
	for _, t := range b.grid.Global {
		if err := checkClosure("grid global expression", t); err != nil {
			return nil, err
		}
	}
	for _, t := range b.grid.Local {
		if err := checkClosure("grid local expression", t); err != nil {
			return nil, err
		}
	}

	return &Spec{
		Name:             b.name,
		Parameters:       append([]FormalParameter(nil), b.params...),
		Dimensions:       append([]Dimension(nil), b.dims...),
		Tuneables:        copyInt64Map(b.tuneables),
		Constraints:      append([]Constraint(nil), b.constraints...),
		Grid:             b.grid,
		Entry:            b.entry,
		AllowGridPadding: b.allowPad,
	}, nil
}

func copyInt64Map(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
