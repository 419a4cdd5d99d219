package host

import (
	"testing"
	"unsafe"

	"github.com/notargets/kerneldispatch/argument"
	"github.com/notargets/kerneldispatch/binder"
	"github.com/notargets/kerneldispatch/kernelspec"
	"github.com/notargets/kerneldispatch/kerneltest"
	"github.com/notargets/kerneldispatch/queue"
)

// buildAdd2 grounds scenario S1 from the kernel dispatch walkthrough:
// add2(a, b, c): c[0] = a + b, on a 0D grid.
func buildAdd2(t *testing.T) *kernelspec.Spec {
	t.Helper()
	entry := Entry(func(frame *CallFrame) error {
		a, err := frame.Uint32("a")
		if err != nil {
			return err
		}
		b, err := frame.Uint32("b")
		if err != nil {
			return err
		}
		out, err := frame.Bytes("c")
		if err != nil {
			return err
		}
		sum := a + b
		copy(out, unsafe.Slice((*byte)(unsafe.Pointer(&sum)), 4))
		return nil
	})
	spec, err := kernelspec.NewBuilder("add2", nil).
		AddParameter("a", "r", "u32", false).
		AddParameter("b", "r", "u32", false).
		AddParameter("c", "w", "u32[1]", true).
		SetEntry(kernelspec.EntryRef{Name: "add2", Native: entry}, 0).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return spec
}

func TestScalarAddHostScenario(t *testing.T) {
	ctx := NewContext()
	spec := buildAdd2(t)
	reg := kerneltest.NewRegistry()

	out := ctx.Alloc(reg.MustResolve("u32"), 1)
	defer out.Release()

	args := []argument.Handler{
		kerneltest.Uint32(reg, 3),
		kerneltest.Uint32(reg, 4),
		kerneltest.DeviceHandle(reg, "u32", out),
	}
	bound, err := binder.Bind(spec, ctx, args)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}

	ev, err := ctx.Submit("add2", bound, nil, nil)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := ev.Await(); err != nil {
		t.Fatalf("Await: %v", err)
	}
	bound.Release()

	buf, err := ctx.bufferBytes(out)
	if err != nil {
		t.Fatalf("bufferBytes: %v", err)
	}
	got := *(*uint32)(unsafe.Pointer(&buf[0]))
	if got != 7 {
		t.Errorf("c[0] = %d, want 7", got)
	}
}

func buildMapScale(t *testing.T, allowPad bool) *kernelspec.Spec {
	t.Helper()
	entry := Entry(func(frame *CallFrame) error {
		grid := frame.Grid()
		i := grid[0].Lo
		scale, err := frame.Uint32("scale")
		if err != nil {
			return err
		}
		xs, err := frame.Bytes("xs")
		if err != nil {
			return err
		}
		n, err := frame.Uint32("n")
		if err != nil {
			return err
		}
		if i >= n {
			return nil // padding tail item; observe extent and return early
		}
		vals := unsafe.Slice((*uint32)(unsafe.Pointer(&xs[0])), n)
		vals[i] *= scale
		return nil
	})
	b := kernelspec.NewBuilder("mapscale", nil).
		AddParameter("n", "r", "u32", false).
		AddParameter("scale", "r", "u32", false).
		AddParameter("xs", "rw", "u32[n]", true).
		AddDimension("n", "n", "").
		AddTuneable("blockSize", 4).
		SetGridExpression("[ceilDiv(n, blockSize) * blockSize]", "[blockSize]").
		SetEntry(kernelspec.EntryRef{Name: "mapscale", Native: entry}, 1)
	if allowPad {
		b = b.AllowGridPadding()
	}
	spec, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return spec
}

func TestMapScaleHostScenarioWithGridPadding(t *testing.T) {
	ctx := NewContext()
	spec := buildMapScale(t, true)
	reg := kerneltest.NewRegistry()

	n := uint32(5) // not a multiple of blockSize=4, exercises padding
	data := ctx.Alloc(reg.MustResolve("u32"), int(n))
	defer data.Release()

	buf, err := ctx.bufferBytes(data)
	if err != nil {
		t.Fatalf("bufferBytes: %v", err)
	}
	src := []uint32{1, 2, 3, 4, 5}
	vals := unsafe.Slice((*uint32)(unsafe.Pointer(&buf[0])), n)
	copy(vals, src)

	args := []argument.Handler{
		kerneltest.Uint32(reg, n),
		kerneltest.Uint32(reg, 3),
		kerneltest.DeviceHandle(reg, "u32", data),
	}
	bound, err := binder.Bind(spec, ctx, args)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}

	ev, err := ctx.Submit("mapscale", bound, []uint32{n}, nil)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := ev.Await(); err != nil {
		t.Fatalf("Await: %v", err)
	}
	bound.Release()

	want := []uint32{3, 6, 9, 12, 15}
	for i, w := range want {
		if vals[i] != w {
			t.Errorf("vals[%d] = %d, want %d", i, vals[i], w)
		}
	}
}

func TestBindArityMismatchScenario(t *testing.T) {
	ctx := NewContext()
	spec := buildAdd2(t)
	reg := kerneltest.NewRegistry()
	args := []argument.Handler{kerneltest.Uint32(reg, 3), kerneltest.Uint32(reg, 4)}
	if _, err := binder.Bind(spec, ctx, args); err == nil {
		t.Fatal("expected arity mismatch")
	}
}

func TestBindTypeMismatchScenario(t *testing.T) {
	ctx := NewContext()
	spec := buildAdd2(t)
	reg := kerneltest.NewRegistry()
	out := ctx.Alloc(reg.MustResolve("u32"), 1)
	defer out.Release()
	args := []argument.Handler{
		kerneltest.Float32(reg, 3), // a wants u32, this is f32
		kerneltest.Uint32(reg, 4),
		kerneltest.DeviceHandle(reg, "u32", out),
	}
	if _, err := binder.Bind(spec, ctx, args); err == nil {
		t.Fatal("expected type mismatch for a float passed where u32 is required")
	}
}

func TestPrereqFailurePropagatesScenario(t *testing.T) {
	ctx := NewContext()
	spec := buildAdd2(t)
	reg := kerneltest.NewRegistry()
	out := ctx.Alloc(reg.MustResolve("u32"), 1)
	defer out.Release()

	args := []argument.Handler{
		kerneltest.Uint32(reg, 3),
		kerneltest.Uint32(reg, 4),
		kerneltest.DeviceHandle(reg, "u32", out),
	}
	bound, err := binder.Bind(spec, ctx, args)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	defer bound.Release()

	failed, err := ctx.Queue().Submit("willfail", 0, nil, nil, func() error {
		return errSubmitBoom
	})
	if err != nil {
		t.Fatalf("Submit (failing prereq): %v", err)
	}

	ev, err := ctx.Submit("add2", bound, nil, []*queue.Event{failed})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := ev.Await(); err == nil {
		t.Fatal("expected the dependent event to fail when its prereq failed")
	}
}

type errBoomType string

func (e errBoomType) Error() string { return string(e) }

var errSubmitBoom = errBoomType("boom")
