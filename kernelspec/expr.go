package kernelspec

import (
	"fmt"

	"github.com/notargets/kerneldispatch/kernelerrors"
)

// Env is the evaluation environment a shape or grid expression resolves
// against: tuneables, declared dimension extents, and primitive parameter
// values bound at call time. Parsing happens once at spec-build time;
// evaluation happens at bind time against a fresh Env per call.
type Env struct {
	values map[string]int64
}

// NewEnv returns an empty Env.
func NewEnv() *Env {
	return &Env{values: make(map[string]int64)}
}

// Set binds name to value, overwriting any prior binding.
func (e *Env) Set(name string, value int64) { e.values[name] = value }

// Lookup returns the bound value for name, if any.
func (e *Env) Lookup(name string) (int64, bool) {
	v, ok := e.values[name]
	return v, ok
}

// Term is a node in the grid/shape expression AST: Const | Ident | Add |
// Sub | Mul | CeilDiv, per the mini-language the kernel dispatch
// specification calls for.
type Term interface {
	Eval(env *Env) (int64, error)
	// Identifiers returns the set of free identifiers this term
	// references, used to check the KernelSpec closure invariant at
	// build time.
	Identifiers(into map[string]struct{})
	String() string
}

// Const is an integer literal term.
type Const int64

func (c Const) Eval(*Env) (int64, error)        { return int64(c), nil }
func (c Const) Identifiers(map[string]struct{}) {}
func (c Const) String() string                  { return fmt.Sprintf("%d", int64(c)) }

// Ident is a named reference to a tuneable, dimension, or primitive
// parameter, resolved against an Env at evaluation time.
type Ident string

func (id Ident) Eval(env *Env) (int64, error) {
	v, ok := env.Lookup(string(id))
	if !ok {
		return 0, &kernelerrors.UnknownIdentifier{Context: "expression evaluation", Name: string(id)}
	}
	return v, nil
}
func (id Ident) Identifiers(into map[string]struct{}) { into[string(id)] = struct{}{} }
func (id Ident) String() string                       { return string(id) }

type binOp struct {
	left, right Term
	op          byte // '+', '-', '*'
}

func (b binOp) Eval(env *Env) (int64, error) {
	l, err := b.left.Eval(env)
	if err != nil {
		return 0, err
	}
	r, err := b.right.Eval(env)
	if err != nil {
		return 0, err
	}
	switch b.op {
	case '+':
		return l + r, nil
	case '-':
		return l - r, nil
	case '*':
		return l * r, nil
	default:
		return 0, fmt.Errorf("kernelspec: unknown operator %q", b.op)
	}
}

func (b binOp) Identifiers(into map[string]struct{}) {
	b.left.Identifiers(into)
	b.right.Identifiers(into)
}

func (b binOp) String() string {
	return fmt.Sprintf("(%s %c %s)", b.left, b.op, b.right)
}

// Add returns left + right.
func Add(left, right Term) Term { return binOp{left: left, right: right, op: '+'} }

// Sub returns left - right.
func Sub(left, right Term) Term { return binOp{left: left, right: right, op: '-'} }

// Mul returns left * right.
func Mul(left, right Term) Term { return binOp{left: left, right: right, op: '*'} }

// CeilDivTerm is the pseudo-function ceilDiv(a, b): ceiling integer
// division, used both in array-length expressions and in grid expressions
// to compute a block count from a global extent and a block size.
type CeilDivTerm struct {
	A, B Term
}

func (c CeilDivTerm) Eval(env *Env) (int64, error) {
	a, err := c.A.Eval(env)
	if err != nil {
		return 0, err
	}
	b, err := c.B.Eval(env)
	if err != nil {
		return 0, err
	}
	if b == 0 {
		return 0, fmt.Errorf("kernelspec: ceilDiv by zero")
	}
	return CeilDiv(a, b), nil
}

func (c CeilDivTerm) Identifiers(into map[string]struct{}) {
	c.A.Identifiers(into)
	c.B.Identifiers(into)
}

func (c CeilDivTerm) String() string { return fmt.Sprintf("ceilDiv(%s, %s)", c.A, c.B) }

// CeilDiv is ceiling integer division on int64 values.
func CeilDiv(a, b int64) int64 {
	if b == 0 {
		return 0
	}
	return (a + b - 1) / b
}
