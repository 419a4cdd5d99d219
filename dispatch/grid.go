// Package dispatch resolves a KernelSpec's grid expression against bound
// tuneables and dimension extents, and iterates or launches a kernel's
// work items over the resulting N-dimensional grid, per the dispatcher
// component of the kernel dispatch specification.
package dispatch

import (
	"github.com/notargets/kerneldispatch/kernelerrors"
	"github.com/notargets/kerneldispatch/kernelspec"
)

// GridRange is a half-open interval [Lo, Hi) over one grid axis, plus the
// axis's full logical extent (its Range), used for boundary checks when
// padding is allowed.
type GridRange struct {
	Lo, Hi uint32
	Extent uint32
}

// Range returns the axis's full logical extent, for kernels that need to
// bounds-check a padded work item against it.
func (g GridRange) Range() uint32 { return g.Extent }

// Len returns the number of indices in [Lo, Hi).
func (g GridRange) Len() uint32 {
	if g.Hi <= g.Lo {
		return 0
	}
	return g.Hi - g.Lo
}

// Iterate calls fn with every index in [Lo, Hi), in ascending order.
func (g GridRange) Iterate(fn func(i uint32)) {
	for i := g.Lo; i < g.Hi; i++ {
		fn(i)
	}
}

// CeilDiv is ceiling integer division on uint32 axis sizes.
func CeilDiv(global, local uint32) uint32 {
	if local == 0 {
		return 0
	}
	return uint32(kernelspec.CeilDiv(int64(global), int64(local)))
}

// ResolvedGrid is the two-phase result of evaluating a Spec's grid
// expression: per-axis global extent, local block size, and the derived
// GridRange used to drive iteration or launch.
type ResolvedGrid struct {
	Global []uint32
	Local  []uint32
	Ranges []GridRange
}

// ResolveGrid evaluates spec.Grid against env (which must already carry
// every tuneable and dimension extent the grid expression references),
// checks the padding/exact-multiple rule, and returns the resolved grid.
//
// If spec.AllowGridPadding is false, every axis's global extent must be an
// exact multiple of its local size; otherwise submission fails with
// GridMisalignment. If true, ceilDiv(global, local) blocks are launched
// and kernels bound to this spec are responsible for bounds-checking
// indices at or beyond the axis's logical extent (carried in each
// GridRange.Extent) themselves.
func ResolveGrid(spec *kernelspec.Spec, env *kernelspec.Env) (ResolvedGrid, error) {
	n := len(spec.Grid.Global)
	global := make([]uint32, n)
	local := make([]uint32, n)
	ranges := make([]GridRange, n)

	// Phase 1: dimension extents and tuneables already populate env by the
	// caller's contract. Phase 2: evaluate global/local per axis.
	for axis := 0; axis < n; axis++ {
		g, err := spec.Grid.Global[axis].Eval(env)
		if err != nil {
			return ResolvedGrid{}, err
		}
		l, err := spec.Grid.Local[axis].Eval(env)
		if err != nil {
			return ResolvedGrid{}, err
		}
		if l <= 0 {
			return ResolvedGrid{}, &kernelerrors.GridMisalignment{Kernel: spec.Name, Axis: axis, Global: uint32(g), Local: uint32(l)}
		}
		if !spec.AllowGridPadding && g%l != 0 {
			return ResolvedGrid{}, &kernelerrors.GridMisalignment{
				Kernel: spec.Name, Axis: axis, Global: uint32(g), Local: uint32(l),
			}
		}

		var logicalExtent int64
		if axis < len(spec.Dimensions) {
			if v, ok := env.Lookup(spec.Dimensions[axis].Name); ok {
				logicalExtent = v
			} else {
				logicalExtent = g
			}
		} else {
			logicalExtent = g
		}

		blocks := kernelspec.CeilDiv(g, l)
		launched := blocks * l

		global[axis] = uint32(g)
		local[axis] = uint32(l)
		ranges[axis] = GridRange{Lo: 0, Hi: uint32(launched), Extent: uint32(logicalExtent)}
	}

	return ResolvedGrid{Global: global, Local: local, Ranges: ranges}, nil
}
