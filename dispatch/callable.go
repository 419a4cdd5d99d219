package dispatch

import "fmt"

// AxisDelivery selects, per axis, whether the host dispatcher drives the
// kernel body with a scalar (index, range) pair or hands it the whole
// GridRange to iterate itself — useful for tiled loops over the
// outermost axis. Inner axes requesting GridRange delivery are still
// iterated sequentially by the host dispatcher at the correct nesting
// level.
type AxisDelivery int

const (
	DeliverIndex AxisDelivery = iota
	DeliverRange
)

// Body is the kernel's executable body for the host back-end: given the
// resolved grid and the per-axis delivery mode, it is invoked once per
// combination of DeliverIndex axes, receiving the full GridRange slice so
// it can read whichever axes it asked to receive as ranges.
type Body func(grid []GridRange) error

// RunHost iterates grid according to delivery (one entry per axis,
// defaulting to DeliverIndex for any axis delivery omits) and invokes body
// at the innermost nesting level, in lexicographic order over axes (axis 0
// outermost), per the host dispatcher semantics in the kernel dispatch
// specification.
func RunHost(grid ResolvedGrid, delivery []AxisDelivery, body Body) error {
	n := len(grid.Ranges)
	mode := make([]AxisDelivery, n)
	for i := 0; i < n; i++ {
		if i < len(delivery) {
			mode[i] = delivery[i]
		} else {
			mode[i] = DeliverIndex
		}
	}

	switch n {
	case 0:
		return body(nil)
	case 1, 2, 3:
		return runAxis(grid.Ranges, mode, 0, body)
	default:
		return fmt.Errorf("dispatch: unsupported grid arity %d (host back-end supports 0-3)", n)
	}
}

// runAxis recurses over axes whose delivery mode is DeliverIndex, calling
// body once per combination of their indices; only the outermost axis
// (axis 0) is exempt from host iteration when delivered as DeliverRange —
// the kernel body receives the whole GridRange for that axis and iterates
// it itself. An inner axis marked DeliverRange is still host-iterated at
// its correct nesting level, per RunHost's doc comment; only the caller's
// choice of outermost delivery mode can skip host iteration.
func runAxis(ranges []GridRange, mode []AxisDelivery, axis int, body Body) error {
	if axis == len(ranges) {
		return body(ranges)
	}
	if axis == 0 && mode[axis] == DeliverRange {
		return runAxis(ranges, mode, axis+1, body)
	}
	var err error
	ranges[axis].Iterate(func(i uint32) {
		if err != nil {
			return
		}
		sub := append([]GridRange(nil), ranges...)
		sub[axis] = GridRange{Lo: i, Hi: i + 1, Extent: ranges[axis].Extent}
		err = runAxis(sub, mode, axis+1, body)
	})
	return err
}
